package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/response"
	"github.com/cydxin/channel-sdk/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextUserIDKey gin context 里保存 user id 的 key
	ContextUserIDKey = "user_id"
	ContextTokenKey  = "token"
)

// AuthOptions 可选配置，零值即默认配置
type AuthOptions struct {
	// HeaderKey 默认 Authorization，取 "Bearer <token>"
	HeaderKey string
	// QueryKey 默认 token，浏览器 WS 连不能带 header 时使用
	QueryKey  string
	UserIDKey string
	TokenKey  string

	// RefreshTTL 大于 0 时每次鉴权成功把 Redis token 的有效期重置为该值
	RefreshTTL time.Duration
	// Log 续期失败时打印 warn，为空不打印
	Log *logger.Logger
}

func (o *AuthOptions) withDefaults() AuthOptions {
	var out AuthOptions
	if o != nil {
		out = *o
	}
	if out.HeaderKey == "" {
		out.HeaderKey = "Authorization"
	}
	if out.QueryKey == "" {
		out.QueryKey = "token"
	}
	if out.UserIDKey == "" {
		out.UserIDKey = ContextUserIDKey
	}
	if out.TokenKey == "" {
		out.TokenKey = ContextTokenKey
	}
	return out
}

// bearerToken header 优先，其次 query
func bearerToken(c *gin.Context, cfg *AuthOptions) string {
	if scheme, tok, ok := strings.Cut(strings.TrimSpace(c.GetHeader(cfg.HeaderKey)), " "); ok && strings.EqualFold(scheme, "Bearer") {
		if tok = strings.TrimSpace(tok); tok != "" {
			return tok
		}
	}
	return strings.TrimSpace(c.Query(cfg.QueryKey))
}

func abortJSON(c *gin.Context, status, code int, msg string) {
	c.AbortWithStatusJSON(status, response.Error(code, msg))
}

// GinAuthMiddleware 校验 token（Redis 或 JWT），把 userID 和 token 写入 gin.Context
//
//	router.Use(middleware.GinAuthMiddleware(authService, &middleware.AuthOptions{RefreshTTL: 24 * time.Hour}))
func GinAuthMiddleware(auth *service.AuthService, opt *AuthOptions) gin.HandlerFunc {
	cfg := opt.withDefaults()

	return func(c *gin.Context) {
		if auth == nil {
			abortJSON(c, http.StatusInternalServerError, response.CodeInternalError, "auth service is nil")
			return
		}

		token := bearerToken(c, &cfg)
		if token == "" {
			abortJSON(c, http.StatusUnauthorized, response.CodeTokenInvalid, "missing token")
			return
		}

		uid, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, response.CodeTokenInvalid, "invalid token")
			return
		}

		if cfg.RefreshTTL > 0 {
			if err := auth.Touch(c.Request.Context(), token, uid, cfg.RefreshTTL); err != nil && cfg.Log != nil {
				cfg.Log.Warn("refresh token ttl failed", "user", uid, "error", err)
			}
		}

		c.Set(cfg.UserIDKey, uid)
		c.Set(cfg.TokenKey, token)
		c.Next()
	}
}

// UserID 取中间件写入的 userID，没有时返回空串
func UserID(c *gin.Context) string {
	uid, _ := c.Value(ContextUserIDKey).(string)
	return uid
}
