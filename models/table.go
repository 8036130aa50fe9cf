package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	prefix = "im_"
)

// Channel 频道表（只关心成员/管理员，频道的增删改不在本 SDK 内）
type Channel struct {
	ID          string                      `gorm:"primaryKey;size:36"`
	WorkspaceID string                      `gorm:"size:36;index;not null"`
	Name        string                      `gorm:"size:100"`
	UserID      string                      `gorm:"size:36;not null"` // 创建者（超管）
	Members     datatypes.JSONSlice[string] `gorm:"type:json"`        // 可读写的成员
	Regulators  datatypes.JSONSlice[string] `gorm:"type:json"`        // 除作者外可删除消息的人
	CreatedAt   time.Time
}

func (Channel) TableName() string {
	return prefix + "channel"
}

// BeforeCreate 没有 ID 时自动生成
func (c *Channel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsMember 是否为频道成员
func (c *Channel) IsMember(userID string) bool {
	return containsID(c.Members, userID)
}

// IsRegulator 是否为频道管理员（regulator）
func (c *Channel) IsRegulator(userID string) bool {
	return containsID(c.Regulators, userID)
}

func containsID(ids []string, id string) bool {
	if id == "" {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Message 消息表
// created_at / updated_at 由 service 写入，关闭 gorm 的自动时间：软删除不能改 updated_at。
type Message struct {
	ID          string    `gorm:"primaryKey;size:36;index:idx_channel_created,priority:3"`
	ChannelID   string    `gorm:"size:36;not null;index:idx_channel_created,priority:1"`
	WorkspaceID string    `gorm:"size:36;not null"`
	UserID      string    `gorm:"size:36;not null;index"`
	Content     *string   `gorm:"type:text"`
	FileURL     *string   `gorm:"column:file_url;size:500"`
	IsDeleted   bool      `gorm:"default:false"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false;not null;index:idx_channel_created,priority:2"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false;not null"`
}

func (Message) TableName() string {
	return prefix + "message"
}

// BeforeCreate 自动生成消息 ID (UUID)，已设置的不覆盖
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
