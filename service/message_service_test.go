package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cydxin/channel-sdk/cons"
	"github.com/cydxin/channel-sdk/logger"
	"github.com/cydxin/channel-sdk/message"
	"github.com/cydxin/channel-sdk/models"
	"github.com/cydxin/channel-sdk/repository"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type published struct {
	topic string
	msg   message.Message
}

type recorder struct {
	mu   sync.Mutex
	list []published
}

func (r *recorder) publish(_ context.Context, topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, published{topic: topic, msg: payload.(message.Message)})
	return nil
}

func (r *recorder) last() published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list[len(r.list)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}

// stepClock 每次调用前进 1 秒
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestMessageService(t *testing.T) (*MessageService, *recorder) {
	t.Helper()
	store := repository.NewMemoryStore()
	err := store.CreateChannel(context.Background(), &models.Channel{
		ID:          "c1",
		WorkspaceID: "w1",
		Name:        "general",
		UserID:      "owner",
		Members:     []string{"alice", "bob", "mod"},
		Regulators:  []string{"mod"},
	})
	if err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	rec := &recorder{}
	svc := NewMessageService(&Service{
		Messages: store,
		Channels: store.Channels(),
		Publish:  rec.publish,
		Now:      stepClock(),
	})
	return svc, rec
}

func strPtr(s string) *string { return &s }

func mustInsert(t *testing.T, svc *MessageService, user, content string) *message.Message {
	t.Helper()
	m, err := svc.Insert(context.Background(), InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: user, Content: strPtr(content)})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return m
}

func TestMessageService_InsertMember(t *testing.T) {
	svc, rec := newTestMessageService(t)

	m := mustInsert(t, svc, "alice", "<p>hi</p>")
	if m.ID == "" || m.UserID != "alice" || m.Text() != "<p>hi</p>" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.IsUpdated() || m.IsDeleted {
		t.Fatalf("new message must not be updated or deleted")
	}
	got := rec.last()
	if got.topic != cons.ChannelMessagesTopic("c1") || got.msg.ID != m.ID {
		t.Fatalf("publish wrong: %+v", got)
	}
}

func TestMessageService_InsertRejected(t *testing.T) {
	svc, rec := newTestMessageService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  InsertReq
		want error
	}{
		{"non member", InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "eve", Content: strPtr("x")}, ErrForbidden},
		{"creator not in members", InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "owner", Content: strPtr("x")}, ErrForbidden},
		{"workspace mismatch", InsertReq{ChannelID: "c1", WorkspaceID: "w2", UserID: "alice", Content: strPtr("x")}, ErrForbidden},
		{"missing channel", InsertReq{ChannelID: "nope", WorkspaceID: "w1", UserID: "alice", Content: strPtr("x")}, ErrForbidden},
		{"no channel id", InsertReq{WorkspaceID: "w1", UserID: "alice", Content: strPtr("x")}, ErrValidation},
		{"no workspace id", InsertReq{ChannelID: "c1", UserID: "alice", Content: strPtr("x")}, ErrValidation},
		{"no content no file", InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "alice"}, ErrValidation},
		{"empty strings", InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "alice", Content: strPtr(""), FileURL: strPtr("")}, ErrValidation},
		{"no session", InsertReq{ChannelID: "c1", WorkspaceID: "w1", Content: strPtr("x")}, ErrUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Insert(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if rec.count() != 0 {
		t.Fatalf("rejected inserts must not publish")
	}
}

func TestMessageService_InsertFileOnly(t *testing.T) {
	svc, _ := newTestMessageService(t)
	m, err := svc.Insert(context.Background(), InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "bob", FileURL: strPtr("https://cdn/a.png")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if m.Content != nil || m.FileURL == nil {
		t.Fatalf("file-only message wrong: %+v", m)
	}
}

func TestMessageService_SoftDeleteTombstone(t *testing.T) {
	svc, rec := newTestMessageService(t)
	ctx := context.Background()

	orig, err := svc.Insert(ctx, InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "alice", Content: strPtr("secret"), FileURL: strPtr("https://cdn/a.png")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	del, err := svc.SoftDelete(ctx, orig.ID, "alice", "c1")
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if !del.IsDeleted || del.FileURL != nil || del.Text() != cons.TombstoneContent {
		t.Fatalf("tombstone wrong: %+v", del)
	}
	if !del.UpdatedAt.Equal(orig.UpdatedAt) {
		t.Fatalf("soft delete must not touch updated_at")
	}
	if got := rec.last(); got.topic != cons.ChannelMessagesUpdateTopic("c1") || !got.msg.IsDeleted {
		t.Fatalf("publish wrong: %+v", got)
	}

	// 回查也是墓碑
	page, err := svc.FetchPage(ctx, "c1", "bob", 0, 10)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page) != 1 || page[0].Text() != cons.TombstoneContent || page[0].FileURL != nil {
		t.Fatalf("stored tombstone wrong: %+v", page)
	}

	before := rec.count()
	if _, err := svc.SoftDelete(ctx, orig.ID, "alice", "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("double delete: expected ErrForbidden, got %v", err)
	}
	if rec.count() != before {
		t.Fatalf("double delete must not publish")
	}
}

func TestMessageService_SoftDeletePermissions(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()

	for _, actor := range []string{"owner", "mod"} {
		m := mustInsert(t, svc, "alice", "by alice")
		if _, err := svc.SoftDelete(ctx, m.ID, actor, "c1"); err != nil {
			t.Fatalf("%s should be allowed to delete: %v", actor, err)
		}
	}

	m := mustInsert(t, svc, "alice", "by alice")
	if _, err := svc.SoftDelete(ctx, m.ID, "bob", "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("plain member: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.SoftDelete(ctx, m.ID, "alice", "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong channel: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.SoftDelete(ctx, "missing", "alice", "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing: expected ErrNotFound, got %v", err)
	}
}

func TestMessageService_Update(t *testing.T) {
	svc, rec := newTestMessageService(t)
	ctx := context.Background()

	m := mustInsert(t, svc, "alice", "v1")
	up, err := svc.Update(ctx, m.ID, "alice", "c1", "v2")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if up.Text() != "v2" || !up.IsUpdated() || !up.CreatedAt.Equal(m.CreatedAt) {
		t.Fatalf("update wrong: %+v", up)
	}
	if got := rec.last(); got.topic != cons.ChannelMessagesUpdateTopic("c1") || got.msg.Text() != "v2" {
		t.Fatalf("publish wrong: %+v", got)
	}

	if _, err := svc.Update(ctx, m.ID, "bob", "c1", "hijack"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non author: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Update(ctx, m.ID, "alice", "c1", "   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty content: expected ErrValidation, got %v", err)
	}
	if _, err := svc.SoftDelete(ctx, m.ID, "alice", "c1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := svc.Update(ctx, m.ID, "alice", "c1", "v3"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("deleted: expected ErrForbidden, got %v", err)
	}
}

func TestMessageService_FetchPage(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		mustInsert(t, svc, "alice", fmt.Sprintf("m%02d", i))
	}

	page0, err := svc.FetchPage(ctx, "c1", "bob", 0, 0)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(page0) != DefaultPageSize || page0[0].Text() != "m15" || page0[9].Text() != "m24" {
		t.Fatalf("page 0 must be the newest 10 ascending, got %s..%s", page0[0].Text(), page0[len(page0)-1].Text())
	}
	for i := 1; i < len(page0); i++ {
		if !page0[i-1].Before(page0[i]) {
			t.Fatalf("page not ascending at %d", i)
		}
	}

	page2, _ := svc.FetchPage(ctx, "c1", "bob", 2, 10)
	if len(page2) != 5 || page2[0].Text() != "m00" || page2[4].Text() != "m04" {
		t.Fatalf("page 2 wrong: %d", len(page2))
	}

	page3, _ := svc.FetchPage(ctx, "c1", "bob", 3, 10)
	if len(page3) != 0 {
		t.Fatalf("page past the end must be empty")
	}

	all, _ := svc.FetchPage(ctx, "c1", "bob", 0, 1000)
	if len(all) != 25 {
		t.Fatalf("clamped size should still cover all 25, got %d", len(all))
	}

	// 相同参数重复请求结果一致
	again, _ := svc.FetchPage(ctx, "c1", "bob", 0, 0)
	for i := range page0 {
		if page0[i].ID != again[i].ID {
			t.Fatalf("repeated fetch differs at %d", i)
		}
	}
}

func TestMessageService_FetchPageRejected(t *testing.T) {
	svc, _ := newTestMessageService(t)
	ctx := context.Background()

	if _, err := svc.FetchPage(ctx, "c1", "eve", 0, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non member: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.FetchPage(ctx, "", "bob", 0, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("no channel: expected ErrValidation, got %v", err)
	}
	if _, err := svc.FetchPage(ctx, "c1", "bob", -1, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative page: expected ErrValidation, got %v", err)
	}
	if _, err := svc.FetchPage(ctx, "c1", "", 0, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("no session: expected ErrUnauthorized, got %v", err)
	}
}

func TestMessageService_StoreUnavailable(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	mock.ExpectQuery("SELECT \\* FROM `im_channel`").WillReturnError(errors.New("connection refused"))

	svc := NewMessageService(&Service{
		Messages: repository.NewMessageDAO(db),
		Channels: repository.NewChannelDAO(db),
	})
	_, err := svc.FetchPage(context.Background(), "c1", "bob", 0, 10)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestMessageService_PublishFailureIgnored(t *testing.T) {
	svc, _ := newTestMessageService(t)
	core, logs := observer.New(zap.DebugLevel)
	svc.Log = logger.FromZap(zap.New(core))
	svc.Publish = func(context.Context, string, any) error { return errors.New("hub down") }

	if _, err := svc.Insert(context.Background(), InsertReq{ChannelID: "c1", WorkspaceID: "w1", UserID: "alice", Content: strPtr("x")}); err != nil {
		t.Fatalf("publish failure must not fail the write: %v", err)
	}
	failed := logs.FilterMessage("publish failed").All()
	if len(failed) != 1 || failed[0].Level != zap.WarnLevel || failed[0].ContextMap()["event"] != cons.EventMessageCreated {
		t.Fatalf("expected one warn carrying the event, got %+v", failed)
	}
}

func TestMessageService_CanAccess(t *testing.T) {
	svc, _ := newTestMessageService(t)
	if err := svc.CanAccess(context.Background(), "alice", "c1"); err != nil {
		t.Fatalf("member: %v", err)
	}
	if err := svc.CanAccess(context.Background(), "eve", "c1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non member: %v", err)
	}
}

func TestMessageService_LogsEventPerWrite(t *testing.T) {
	svc, _ := newTestMessageService(t)
	core, logs := observer.New(zap.DebugLevel)
	svc.Log = logger.FromZap(zap.New(core))
	ctx := context.Background()

	m := mustInsert(t, svc, "alice", "hi")
	if _, err := svc.Update(ctx, m.ID, "alice", "c1", "edited"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.SoftDelete(ctx, m.ID, "alice", "c1"); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}

	var events []string
	for _, e := range logs.FilterMessage("published").All() {
		events = append(events, e.ContextMap()["event"].(string))
	}
	want := []string{cons.EventMessageCreated, cons.EventMessageUpdated, cons.EventMessageDeleted}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}
