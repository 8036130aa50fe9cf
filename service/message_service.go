package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cydxin/channel-sdk/cons"
	"github.com/cydxin/channel-sdk/message"
	"github.com/cydxin/channel-sdk/models"
	"github.com/cydxin/channel-sdk/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// InsertReq 发送消息参数
type InsertReq struct {
	ChannelID   string
	WorkspaceID string
	UserID      string
	Content     *string
	FileURL     *string
}

// MessageService 频道消息读写（存储网关），写成功后推送到对应 topic
type MessageService struct {
	*Service
}

func NewMessageService(s *Service) *MessageService {
	return &MessageService{Service: s}
}

// ToMessage 将 models.Message 转换为传输结构
func ToMessage(m *models.Message) message.Message {
	return message.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		WorkspaceID: m.WorkspaceID,
		UserID:      m.UserID,
		Content:     m.Content,
		FileURL:     m.FileURL,
		IsDeleted:   m.IsDeleted,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func nonEmpty(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	v := *p
	return &v
}

// loadChannel 频道不存在按无权限处理，不暴露频道是否存在
func (s *MessageService) loadChannel(ctx context.Context, channelID string) (*models.Channel, error) {
	ch, err := s.Channels.FindByID(ctx, channelID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("channel %s: %w", channelID, ErrForbidden)
	}
	if err != nil {
		return nil, fmt.Errorf("load channel: %v: %w", err, ErrStoreUnavailable)
	}
	return ch, nil
}

func (s *MessageService) loadMessage(ctx context.Context, messageID, channelID string) (*models.Message, error) {
	m, err := s.Messages.FindByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load message: %v: %w", err, ErrStoreUnavailable)
	}
	if m.ChannelID != channelID {
		return nil, fmt.Errorf("message %s in channel %s: %w", messageID, channelID, ErrNotFound)
	}
	return m, nil
}

// CanAccess 判断用户是否为频道成员，Hub 订阅鉴权也走这里
func (s *MessageService) CanAccess(ctx context.Context, userID, channelID string) error {
	if userID == "" {
		return ErrUnauthorized
	}
	ch, err := s.loadChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if !ch.IsMember(userID) {
		return fmt.Errorf("user %s not in channel %s: %w", userID, channelID, ErrForbidden)
	}
	return nil
}

// Insert 发送消息：成员才能写，content / file_url 至少一个非空
func (s *MessageService) Insert(ctx context.Context, req InsertReq) (*message.Message, error) {
	if req.UserID == "" {
		return nil, ErrUnauthorized
	}
	if req.ChannelID == "" || req.WorkspaceID == "" {
		return nil, fmt.Errorf("channelId and workspaceId are required: %w", ErrValidation)
	}
	content, fileURL := nonEmpty(req.Content), nonEmpty(req.FileURL)
	if content == nil && fileURL == nil {
		return nil, fmt.Errorf("content or fileUrl is required: %w", ErrValidation)
	}

	ch, err := s.loadChannel(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if ch.WorkspaceID != req.WorkspaceID {
		return nil, fmt.Errorf("channel %s not in workspace %s: %w", req.ChannelID, req.WorkspaceID, ErrForbidden)
	}
	if !ch.IsMember(req.UserID) {
		return nil, fmt.Errorf("user %s not in channel %s: %w", req.UserID, req.ChannelID, ErrForbidden)
	}

	now := s.now()
	m := &models.Message{
		ChannelID:   req.ChannelID,
		WorkspaceID: req.WorkspaceID,
		UserID:      req.UserID,
		Content:     content,
		FileURL:     fileURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %v: %w", err, ErrStoreUnavailable)
	}

	out := ToMessage(m)
	s.publish(ctx, cons.EventMessageCreated, cons.ChannelMessagesTopic(req.ChannelID), out)
	return &out, nil
}

// SoftDelete 删除消息（墓碑）：作者 / 频道创建者 / regulator 可删，已删除的再删返回 ErrForbidden
func (s *MessageService) SoftDelete(ctx context.Context, messageID, actorID, channelID string) (*message.Message, error) {
	if actorID == "" {
		return nil, ErrUnauthorized
	}
	if messageID == "" || channelID == "" {
		return nil, fmt.Errorf("messageId and channelId are required: %w", ErrValidation)
	}

	m, err := s.loadMessage(ctx, messageID, channelID)
	if err != nil {
		return nil, err
	}
	ch, err := s.loadChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if m.UserID != actorID && ch.UserID != actorID && !ch.IsRegulator(actorID) {
		return nil, fmt.Errorf("user %s cannot delete message %s: %w", actorID, messageID, ErrForbidden)
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("message %s already deleted: %w", messageID, ErrForbidden)
	}

	ok, err := s.Messages.SoftDelete(ctx, messageID, cons.TombstoneContent)
	if err != nil {
		return nil, fmt.Errorf("delete message: %v: %w", err, ErrStoreUnavailable)
	}
	if !ok {
		// 并发删除，另一方已经写入墓碑
		return nil, fmt.Errorf("message %s already deleted: %w", messageID, ErrForbidden)
	}

	tombstone := cons.TombstoneContent
	m.Content = &tombstone
	m.FileURL = nil
	m.IsDeleted = true

	out := ToMessage(m)
	s.publish(ctx, cons.EventMessageDeleted, cons.ChannelMessagesUpdateTopic(channelID), out)
	return &out, nil
}

// Update 编辑消息：仅作者，且未删除
func (s *MessageService) Update(ctx context.Context, messageID, actorID, channelID, content string) (*message.Message, error) {
	if actorID == "" {
		return nil, ErrUnauthorized
	}
	if messageID == "" || channelID == "" {
		return nil, fmt.Errorf("messageId and channelId are required: %w", ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("content is required: %w", ErrValidation)
	}

	m, err := s.loadMessage(ctx, messageID, channelID)
	if err != nil {
		return nil, err
	}
	if m.UserID != actorID {
		return nil, fmt.Errorf("user %s is not the author of %s: %w", actorID, messageID, ErrForbidden)
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("message %s is deleted: %w", messageID, ErrForbidden)
	}

	now := s.now()
	ok, err := s.Messages.UpdateContent(ctx, messageID, actorID, content, now)
	if err != nil {
		return nil, fmt.Errorf("update message: %v: %w", err, ErrStoreUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("message %s is deleted: %w", messageID, ErrForbidden)
	}

	m.Content = &content
	m.UpdatedAt = now

	out := ToMessage(m)
	s.publish(ctx, cons.EventMessageUpdated, cons.ChannelMessagesUpdateTopic(channelID), out)
	return &out, nil
}

// FetchPage 分页查询，olderThanPage=0 为最新一页，越大越旧；返回结果按时间升序
func (s *MessageService) FetchPage(ctx context.Context, channelID, viewerID string, olderThanPage, size int) ([]message.Message, error) {
	if viewerID == "" {
		return nil, ErrUnauthorized
	}
	if channelID == "" {
		return nil, fmt.Errorf("channelId is required: %w", ErrValidation)
	}
	if olderThanPage < 0 {
		return nil, fmt.Errorf("page must be >= 0: %w", ErrValidation)
	}
	size = s.clampSize(size)

	if err := s.CanAccess(ctx, viewerID, channelID); err != nil {
		return nil, err
	}

	rows, err := s.Messages.FindPage(ctx, channelID, olderThanPage*size, size)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %v: %w", err, ErrStoreUnavailable)
	}

	out := make([]message.Message, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = ToMessage(&rows[i])
	}
	return out, nil
}

func (s *MessageService) clampSize(size int) int {
	if size <= 0 {
		size = s.PageSize
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size
}

// publish 推送失败只记日志，不影响写操作结果
func (s *MessageService) publish(ctx context.Context, event, topic string, payload message.Message) {
	if s.Publish == nil {
		return
	}
	if err := s.Publish(ctx, topic, payload); err != nil {
		s.log().Warn("publish failed", "event", event, "topic", topic, "message_id", payload.ID, "error", err)
		return
	}
	s.log().Debug("published", "event", event, "topic", topic, "message_id", payload.ID)
}
