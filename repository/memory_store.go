package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cydxin/channel-sdk/models"
	"github.com/google/uuid"
)

// MemoryStore 内存版存储，本地 -memory 模式和 service 测试使用
// 同时满足 MessageDAO / ChannelDAO 的方法集；返回的都是拷贝。
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]models.Message
	channels map[string]models.Channel
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]models.Message),
		channels: make(map[string]models.Channel),
	}
}

func (s *MemoryStore) Create(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; ok {
		return fmt.Errorf("message %s: %w", msg.ID, ErrDuplicateKey)
	}
	s.messages[msg.ID] = cloneMessage(*msg)
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	m = cloneMessage(m)
	return &m, nil
}

func (s *MemoryStore) FindPage(ctx context.Context, channelID string, offset, limit int) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	list := make([]models.Message, 0)
	for _, m := range s.messages {
		if m.ChannelID == channelID {
			list = append(list, cloneMessage(m))
		}
	}
	s.mu.RUnlock()

	// created_at DESC, id DESC
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	if offset >= len(list) {
		return []models.Message{}, nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end], nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id, tombstone string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return false, nil
	}
	m.Content = &tombstone
	m.FileURL = nil
	m.IsDeleted = true
	s.messages[id] = m
	return true, nil
}

func (s *MemoryStore) UpdateContent(ctx context.Context, id, authorID, content string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted || m.UserID != authorID {
		return false, nil
	}
	m.Content = &content
	m.UpdatedAt = at
	s.messages[id] = m
	return true, nil
}

// FindChannel 对应 ChannelDAO.FindByID（方法名与消息查询冲突，单独命名）
func (s *MemoryStore) FindChannel(ctx context.Context, id string) (*models.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	ch.Members = append([]string(nil), ch.Members...)
	ch.Regulators = append([]string(nil), ch.Regulators...)
	return &ch, nil
}

// CreateChannel 对应 ChannelDAO.Create
func (s *MemoryStore) CreateChannel(ctx context.Context, ch *models.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ch.ID == "" {
		ch.ID = uuid.New().String()
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[ch.ID]; ok {
		return fmt.Errorf("channel %s: %w", ch.ID, ErrDuplicateKey)
	}
	cp := *ch
	cp.Members = append([]string(nil), ch.Members...)
	cp.Regulators = append([]string(nil), ch.Regulators...)
	s.channels[ch.ID] = cp
	return nil
}

// Channels 返回一个只暴露频道方法的视图，满足 service.ChannelRepository
func (s *MemoryStore) Channels() *MemoryChannels {
	return &MemoryChannels{store: s}
}

// MemoryChannels MemoryStore 的频道视图
type MemoryChannels struct {
	store *MemoryStore
}

func (c *MemoryChannels) FindByID(ctx context.Context, id string) (*models.Channel, error) {
	return c.store.FindChannel(ctx, id)
}

func (c *MemoryChannels) Create(ctx context.Context, ch *models.Channel) error {
	return c.store.CreateChannel(ctx, ch)
}

func cloneMessage(m models.Message) models.Message {
	if m.Content != nil {
		v := *m.Content
		m.Content = &v
	}
	if m.FileURL != nil {
		v := *m.FileURL
		m.FileURL = &v
	}
	return m
}
