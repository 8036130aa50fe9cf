package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cydxin/channel-sdk/models"
	"gorm.io/gorm"
)

// MessageDAO 封装 Message 相关的数据库操作
//
// 约定：
// - 只做“数据访问”，权限判断由 service 负责。
// - 写操作都是单条语句，条件更新通过返回的 affected 判断是否命中。
type MessageDAO struct {
	db *gorm.DB
}

func NewMessageDAO(db *gorm.DB) *MessageDAO {
	return &MessageDAO{db: db}
}

// WithDB 用于在事务（tx）中复用 DAO
func (dao *MessageDAO) WithDB(db *gorm.DB) *MessageDAO {
	if db == nil {
		return dao
	}
	return &MessageDAO{db: db}
}

// Create 插入一条消息，ID 为空时由 BeforeCreate 生成
func (dao *MessageDAO) Create(ctx context.Context, msg *models.Message) error {
	err := dao.db.WithContext(ctx).Create(msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

// FindByID 按 ID 查询消息
func (dao *MessageDAO) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := dao.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// FindPage 从最新一条开始倒序取 limit 条，跳过 offset 条
func (dao *MessageDAO) FindPage(ctx context.Context, channelID string, offset, limit int) ([]models.Message, error) {
	var list []models.Message
	q := dao.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// SoftDelete 写入墓碑内容并清空附件，只对未删除的消息生效
// updated_at 不变。
func (dao *MessageDAO) SoftDelete(ctx context.Context, id, tombstone string) (bool, error) {
	res := dao.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{
			"content":    tombstone,
			"file_url":   nil,
			"is_deleted": true,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateContent 作者编辑内容，只对未删除的消息生效
func (dao *MessageDAO) UpdateContent(ctx context.Context, id, authorID, content string, at time.Time) (bool, error) {
	res := dao.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND user_id = ? AND is_deleted = ?", id, authorID, false).
		Updates(map[string]any{
			"content":    content,
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
