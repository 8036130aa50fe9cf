package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cydxin/channel-sdk/models"
)

func seedMessages(t *testing.T, s *MemoryStore, channelID string, n int) time.Time {
	t.Helper()
	return seedWithPrefix(t, s, channelID, "id", n)
}

func seedWithPrefix(t *testing.T, s *MemoryStore, channelID, prefix string, n int) time.Time {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := fmt.Sprintf("msg-%02d", i)
		at := base.Add(time.Duration(i) * time.Second)
		err := s.Create(context.Background(), &models.Message{
			ID: fmt.Sprintf("%s-%02d", prefix, i), ChannelID: channelID, WorkspaceID: "w1", UserID: "u1",
			Content: &c, CreatedAt: at, UpdatedAt: at,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	return base
}

func TestMemoryStore_FindPageNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	seedMessages(t, s, "c1", 25)
	seedWithPrefix(t, s, "other", "other", 3)

	page, err := s.FindPage(context.Background(), "c1", 0, 10)
	if err != nil {
		t.Fatalf("FindPage: %v", err)
	}
	if len(page) != 10 || page[0].ID != "id-24" || page[9].ID != "id-15" {
		t.Fatalf("page 0 wrong: first=%s last=%s", page[0].ID, page[len(page)-1].ID)
	}

	last, _ := s.FindPage(context.Background(), "c1", 20, 10)
	if len(last) != 5 || last[4].ID != "id-00" {
		t.Fatalf("last page wrong: %d", len(last))
	}

	empty, _ := s.FindPage(context.Background(), "c1", 30, 10)
	if len(empty) != 0 {
		t.Fatalf("past the end must be empty")
	}
}

func TestMemoryStore_TieBreakOnID(t *testing.T) {
	s := NewMemoryStore()
	at := time.Now()
	for _, id := range []string{"b", "a", "c"} {
		_ = s.Create(context.Background(), &models.Message{ID: id, ChannelID: "c1", CreatedAt: at, UpdatedAt: at})
	}
	page, _ := s.FindPage(context.Background(), "c1", 0, 10)
	if page[0].ID != "c" || page[2].ID != "a" {
		t.Fatalf("equal timestamps must order by id desc: %v %v %v", page[0].ID, page[1].ID, page[2].ID)
	}
}

func TestMemoryStore_SoftDeleteOnce(t *testing.T) {
	s := NewMemoryStore()
	url := "https://cdn/x.png"
	at := time.Now()
	_ = s.Create(context.Background(), &models.Message{ID: "m1", ChannelID: "c1", FileURL: &url, CreatedAt: at, UpdatedAt: at})

	ok, err := s.SoftDelete(context.Background(), "m1", "gone")
	if err != nil || !ok {
		t.Fatalf("first delete: %v %v", ok, err)
	}
	ok, _ = s.SoftDelete(context.Background(), "m1", "gone")
	if ok {
		t.Fatalf("second delete must not match")
	}

	m, _ := s.FindByID(context.Background(), "m1")
	if !m.IsDeleted || m.FileURL != nil || *m.Content != "gone" || !m.UpdatedAt.Equal(at) {
		t.Fatalf("tombstone wrong: %+v", m)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	c := "orig"
	_ = s.Create(context.Background(), &models.Message{ID: "m1", ChannelID: "c1", Content: &c})

	m, _ := s.FindByID(context.Background(), "m1")
	*m.Content = "mutated"

	again, _ := s.FindByID(context.Background(), "m1")
	if *again.Content != "orig" {
		t.Fatalf("store leaked internal pointer")
	}
}

func TestMemoryChannels(t *testing.T) {
	s := NewMemoryStore()
	chs := s.Channels()
	if _, err := chs.FindByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ch := &models.Channel{WorkspaceID: "w1", UserID: "owner", Members: []string{"u1"}}
	if err := chs.Create(context.Background(), ch); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := chs.FindByID(context.Background(), ch.ID)
	if err != nil || !got.IsMember("u1") {
		t.Fatalf("FindByID: %+v %v", got, err)
	}
}

func TestMemoryStore_CreateRejectsDuplicateID(t *testing.T) {
	s := NewMemoryStore()
	seedMessages(t, s, "c1", 3)

	c := "overwrite"
	err := s.Create(context.Background(), &models.Message{ID: "id-01", ChannelID: "other", Content: &c})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	m, _ := s.FindByID(context.Background(), "id-01")
	if m.ChannelID != "c1" || *m.Content != "msg-01" {
		t.Fatalf("existing row overwritten: %+v", m)
	}

	chs := s.Channels()
	ch := &models.Channel{ID: "ch1", WorkspaceID: "w1"}
	if err := chs.Create(context.Background(), ch); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := chs.Create(context.Background(), &models.Channel{ID: "ch1"}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey for channel, got %v", err)
	}
}
