package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// AuthService 提供“鉴权核心能力”，供调用方自建中间件/拦截器使用。
// - 解析 token（Bearer 优先，其次 query）
// - 校验 token -> userID：JWT（配置了 verifier 且形如 a.b.c）或 Redis opaque token
// - 注销 token / 注销用户全部 token
//
// Gin 等框架的中间件建议作为单独适配层，内部调用该 service。
type AuthService struct {
	token *TokenService
	jwt   *JWTVerifier
}

func NewAuthService(rdb *redis.Client) *AuthService {
	var ts *TokenService
	if rdb != nil {
		ts = NewTokenService(rdb)
	}
	return &AuthService{token: ts}
}

// WithJWT 开启 JWT 校验
func (a *AuthService) WithJWT(v *JWTVerifier) *AuthService {
	a.jwt = v
	return a
}

// Tokens 暴露底层 TokenService（签发 token 用），未配置 Redis 时为 nil
func (a *AuthService) Tokens() *TokenService {
	return a.token
}

// IssueToken 签发 token：配置了 JWT 时签 JWT，否则写 Redis opaque token
func (a *AuthService) IssueToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if a.jwt != nil {
		return a.jwt.Sign(userID, ttl)
	}
	if a.token == nil {
		return "", fmt.Errorf("no token backend configured: %w", ErrUnauthorized)
	}
	return a.token.IssueToken(ctx, userID, ttl)
}

// ExtractToken 从 HTTP 请求中提取 token：优先 Authorization: Bearer，其次 query: token。
func (a *AuthService) ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}

	// Authorization: Bearer <token>
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah != "" {
		parts := strings.SplitN(ah, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// query: ?token=xxx
	q := r.URL.Query().Get("token")
	return strings.TrimSpace(q)
}

func looksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// Authenticate 根据 token 获取 userID。
func (a *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("missing token: %w", ErrUnauthorized)
	}
	if a.jwt != nil && looksLikeJWT(token) {
		return a.jwt.Verify(token)
	}
	if a.token == nil {
		return "", fmt.Errorf("no token store configured: %w", ErrUnauthorized)
	}
	return a.token.Lookup(ctx, token)
}

// AuthenticateRequest 从请求里抽 token 并鉴权。
func (a *AuthService) AuthenticateRequest(ctx context.Context, r *http.Request) (string, string, error) {
	t := a.ExtractToken(r)
	uid, err := a.Authenticate(ctx, t)
	return uid, t, err
}

// RevokeToken 注销单个 token（JWT 无状态，不处理）。
func (a *AuthService) RevokeToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" || a.token == nil || (a.jwt != nil && looksLikeJWT(token)) {
		return nil
	}
	return a.token.RevokeToken(ctx, token)
}

// RevokeAllTokensByUser 注销用户全部 token。
func (a *AuthService) RevokeAllTokensByUser(ctx context.Context, userID string) error {
	if a.token == nil {
		return nil
	}
	return a.token.RevokeUser(ctx, userID)
}

// Touch 滑动续期：Redis token 的有效期重置为 ttl，JWT 自带过期时间不处理
func (a *AuthService) Touch(ctx context.Context, token, userID string, ttl time.Duration) error {
	if a.token == nil || ttl <= 0 || (a.jwt != nil && looksLikeJWT(token)) {
		return nil
	}
	return a.token.Touch(ctx, token, userID, ttl)
}
