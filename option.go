package channel_sdk

import (
	"time"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/service"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type Config struct {
	DB  *gorm.DB
	RDB *redis.Client
	Log *logger.Logger

	// Messages / Channels 自定义存储；为空时用 DB 构造 gorm DAO
	Messages service.MessageRepository
	Channels service.ChannelRepository

	// JWT 校验（为空只走 Redis opaque token）
	JWTSecret string
	JWTIssuer string
	// TokenRefreshTTL 大于 0 时开启 Redis token 滑动过期
	TokenRefreshTTL time.Duration

	// RedisRelay 多实例部署时通过 Redis pub/sub 转发广播
	RedisRelay   bool
	RelayChannel string

	PageSize int
	Clock    func() time.Time

	Hub HubConfig
}

type Option func(*Config)

func WithDB(db *gorm.DB) Option {
	return func(c *Config) {
		c.DB = db
	}
}

func WithRDB(RDB *redis.Client) Option {
	return func(c *Config) {
		c.RDB = RDB
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Config) {
		c.Log = l
	}
}

// WithRepositories 替换存储实现（如 repository.MemoryStore）
func WithRepositories(messages service.MessageRepository, channels service.ChannelRepository) Option {
	return func(c *Config) {
		c.Messages = messages
		c.Channels = channels
	}
}

// WithJWTSecret 开启 HS256 JWT 鉴权，issuer 可为空
func WithJWTSecret(secret, issuer string) Option {
	return func(c *Config) {
		c.JWTSecret = secret
		c.JWTIssuer = issuer
	}
}

// WithTokenRefresh 每次鉴权成功把 Redis token 有效期重置为 ttl
func WithTokenRefresh(ttl time.Duration) Option {
	return func(c *Config) {
		c.TokenRefreshTTL = ttl
	}
}

// WithRedisRelay 开启 Redis 广播转发，需要同时配置 WithRDB
func WithRedisRelay(enabled bool) Option {
	return func(c *Config) {
		c.RedisRelay = enabled
	}
}

func WithPageSize(size int) Option {
	return func(c *Config) {
		c.PageSize = size
	}
}

// WithClock 替换服务时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		c.Clock = now
	}
}

// WithHubConfig 调整 WS 参数（缓冲、最大帧、Origin 校验）
func WithHubConfig(cfg HubConfig) Option {
	return func(c *Config) {
		c.Hub = cfg
	}
}
