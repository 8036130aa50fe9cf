package channel_sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/middleware"
	"github.com/cydxin/channel-sdk/repository"
	"github.com/cydxin/channel-sdk/service"
	"github.com/gin-gonic/gin"
)

// ChannelEngine 频道消息核心：存储网关 + 广播 Hub + HTTP/WS 接口
// 由调用方创建、Start、Shutdown，不做全局单例。
type ChannelEngine struct {
	config *Config
	log    *logger.Logger

	MsgService  *service.MessageService
	AuthService *service.AuthService // 鉴权服务
	Hub         *Hub

	cancel context.CancelFunc
}

// NewEngine 创建实例
// 使用选项模式传入配置，Option回调
func NewEngine(opts ...Option) (*ChannelEngine, error) {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.Log == nil {
		c.Log = logger.Nop()
	}

	if c.Messages == nil || c.Channels == nil {
		if c.DB == nil {
			return nil, errors.New("channel_sdk: WithDB or WithRepositories is required")
		}
		if c.Messages == nil {
			c.Messages = repository.NewMessageDAO(c.DB)
		}
		if c.Channels == nil {
			c.Channels = repository.NewChannelDAO(c.DB)
		}
	}
	if c.RedisRelay && c.RDB == nil {
		return nil, errors.New("channel_sdk: WithRedisRelay requires WithRDB")
	}

	e := &ChannelEngine{config: c, log: c.Log}

	auth := service.NewAuthService(c.RDB)
	if c.JWTSecret != "" {
		auth.WithJWT(service.NewJWTVerifier(c.JWTSecret, c.JWTIssuer))
	}
	e.AuthService = auth

	// 初始化基础 Service，Publish 稍后指向 Hub
	baseService := &service.Service{
		Messages: c.Messages,
		Channels: c.Channels,
		RDB:      c.RDB,
		Log:      c.Log.Named("message-service"),
		Now:      c.Clock,
		PageSize: c.PageSize,
	}
	e.MsgService = service.NewMessageService(baseService)

	hubCfg := c.Hub
	if hubCfg.Log == nil {
		hubCfg.Log = c.Log
	}
	if hubCfg.Authorizer == nil {
		hubCfg.Authorizer = ChannelTopicAuthorizer(e.MsgService)
	}
	if hubCfg.Relay == nil && c.RedisRelay {
		hubCfg.Relay = NewRedisRelay(c.RDB, c.RelayChannel)
	}
	e.Hub = NewHub(hubCfg)

	// 注入广播回调
	baseService.Publish = e.Hub.Publish

	return e, nil
}

// Start 启动 Hub，等待可以投递（relay 订阅确认）后返回
func (c *ChannelEngine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		if err := c.Hub.Run(runCtx); err != nil {
			c.log.Error("hub stopped", "error", err)
		}
	}()

	select {
	case <-c.Hub.Ready():
		c.log.Info("channel engine started", "relay", c.config.Hub.Relay != nil || c.config.RedisRelay)
		return nil
	case <-ctx.Done():
		cancel()
		return fmt.Errorf("start hub: %w", ctx.Err())
	}
}

// Shutdown 关闭所有 WS 连接
func (c *ChannelEngine) Shutdown(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	return c.Hub.Shutdown(ctx)
}

// RegisterRoutes 挂载消息接口和 WS 入口，全部需要鉴权
//
// 使用示例:
//
//	engine, _ := channel_sdk.NewEngine(channel_sdk.WithDB(db), channel_sdk.WithRDB(rdb))
//	r := gin.Default()
//	engine.RegisterRoutes(r.Group("/api/v1"))
func (c *ChannelEngine) RegisterRoutes(r gin.IRouter) {
	g := r.Group("", c.GinAuthMiddleware(&middleware.AuthOptions{RefreshTTL: c.config.TokenRefreshTTL}))
	g.GET("/messages", c.GinHandleFetchMessages)
	g.POST("/messages", c.GinHandleCreateMessage)
	g.PATCH("/messages/:messageId", c.GinHandleUpdateMessage)
	g.DELETE("/messages/:messageId", c.GinHandleDeleteMessage)
	g.GET("/ws", c.GinHandleWS)
}

// ServeWS 处理 WebSocket 请求，userID 由调用方鉴权后传入
func (c *ChannelEngine) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	c.Hub.ServeWS(w, r, userID)
}

// GinAuthMiddleware 返回配置好的 Gin 鉴权中间件
// 使用 ChannelEngine 内部的 AuthService（Redis token / JWT）
//
// 使用示例:
//
//	r.Use(engine.GinAuthMiddleware(nil)) // 使用默认配置
//	// 或自定义配置
//	r.Use(engine.GinAuthMiddleware(&middleware.AuthOptions{
//	    HeaderKey: "X-Token",
//	    QueryKey: "access_token",
//	}))
func (c *ChannelEngine) GinAuthMiddleware(opt *middleware.AuthOptions) gin.HandlerFunc {
	if opt == nil {
		opt = &middleware.AuthOptions{}
	}
	if opt.Log == nil {
		opt.Log = c.log.Named("auth")
	}
	return middleware.GinAuthMiddleware(c.AuthService, opt)
}
