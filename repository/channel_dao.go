package repository

import (
	"context"
	"errors"

	"github.com/cydxin/channel-sdk/models"
	"gorm.io/gorm"
)

// ChannelDAO 频道只读查询 + 初始化写入（频道管理不在本 SDK 范围）
type ChannelDAO struct {
	db *gorm.DB
}

func NewChannelDAO(db *gorm.DB) *ChannelDAO {
	return &ChannelDAO{db: db}
}

// WithDB 用于在事务（tx）中复用 DAO
func (dao *ChannelDAO) WithDB(db *gorm.DB) *ChannelDAO {
	if db == nil {
		return dao
	}
	return &ChannelDAO{db: db}
}

// FindByID 按 ID 查询频道
func (dao *ChannelDAO) FindByID(ctx context.Context, id string) (*models.Channel, error) {
	var ch models.Channel
	err := dao.db.WithContext(ctx).Where("id = ?", id).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Create 新建频道（example / 测试数据用）
func (dao *ChannelDAO) Create(ctx context.Context, ch *models.Channel) error {
	return dao.db.WithContext(ctx).Create(ch).Error
}
