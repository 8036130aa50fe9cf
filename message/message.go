package message

import "time"

// Message 消息的对外结构（HTTP 返回 / WS 事件 / 客户端缓存共用）
type Message struct {
	ID          string    `json:"id"`
	ChannelID   string    `json:"channel_id"`
	WorkspaceID string    `json:"workspace_id"`
	UserID      string    `json:"user_id"`
	Content     *string   `json:"content"`
	FileURL     *string   `json:"file_url"`
	IsDeleted   bool      `json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsUpdated 是否被编辑过（updated_at 与 created_at 不同）
func (m Message) IsUpdated() bool {
	return !m.UpdatedAt.Equal(m.CreatedAt)
}

// Before 按 (created_at, id) 的全序比较
func (m Message) Before(o Message) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.ID < o.ID
	}
	return m.CreatedAt.Before(o.CreatedAt)
}

// Text 取正文，nil 时返回空串
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// CreateReq POST /messages 的 body
type CreateReq struct {
	Content *string `json:"content,omitempty" example:"<p>hello</p>"`
	FileURL *string `json:"fileUrl,omitempty" example:"https://cdn.example.com/a.png"`
}

// UpdateReq PATCH /messages/:messageId 的 body
type UpdateReq struct {
	Content string `json:"content" example:"<p>edited</p>"`
}
