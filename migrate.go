package channel_sdk

import (
	"context"
	"errors"
	"fmt"

	"github.com/cydxin/channel-sdk/models"
	"github.com/cydxin/channel-sdk/repository"
)

// AutoMigrate 建表（只在使用 gorm 存储时可用）
func (c *ChannelEngine) AutoMigrate() error {
	db := c.config.DB
	if db == nil {
		return errors.New("channel_sdk: AutoMigrate requires WithDB")
	}
	c.log.Info("AutoMigrate...")
	return db.AutoMigrate(
		&models.Channel{},
		&models.Message{},
	)
}

type channelCreator interface {
	Create(ctx context.Context, ch *models.Channel) error
}

// EnsureChannel 频道不存在时写入（频道由上游系统管理，这里只给本地开发/测试准备数据）
func (c *ChannelEngine) EnsureChannel(ctx context.Context, ch *models.Channel) error {
	if ch == nil || ch.ID == "" {
		return errors.New("channel_sdk: channel id is required")
	}
	_, err := c.config.Channels.FindByID(ctx, ch.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("find channel %s: %w", ch.ID, err)
	}
	creator, ok := c.config.Channels.(channelCreator)
	if !ok {
		return errors.New("channel_sdk: channel repository is read-only")
	}
	return creator.Create(ctx, ch)
}
