package service

import (
	"context"
	"time"

	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/models"
	"github.com/go-redis/redis/v8"
)

// MessageRepository 消息存储（gorm 实现：repository.MessageDAO；内存实现：repository.MemoryStore）
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	FindPage(ctx context.Context, channelID string, offset, limit int) ([]models.Message, error)
	SoftDelete(ctx context.Context, id, tombstone string) (bool, error)
	UpdateContent(ctx context.Context, id, authorID, content string, at time.Time) (bool, error)
}

// ChannelRepository 频道只读查询
type ChannelRepository interface {
	FindByID(ctx context.Context, id string) (*models.Channel, error)
}

// PublishFunc 广播回调，由 engine 注入 Hub.Publish
// 通过函数注入避免 service 依赖根包
type PublishFunc func(ctx context.Context, topic string, payload any) error

// Service 基础服务，包含存储、Redis 和广播回调
type Service struct {
	Messages MessageRepository
	Channels ChannelRepository
	RDB      *redis.Client

	// Publish 写库成功后推送给订阅者，可为空
	Publish PublishFunc

	Log *logger.Logger

	// Now 服务时钟，测试可替换
	Now func() time.Time

	// PageSize 分页默认条数
	PageSize int
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	// MySQL datetime(3) 只保留毫秒，写库前截断，保证推送内容和回查一致
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *Service) log() *logger.Logger {
	if s.Log == nil {
		return logger.Nop()
	}
	return s.Log
}
