package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cydxin/channel-sdk/models"
	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// newMockDB 用 go-sqlmock 创建一个可被 GORM 使用的 *gorm.DB（mysql 方言，? 占位符）
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqldb, SkipInitializeWithVersion: true}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		_ = sqldb.Close()
		t.Fatalf("gorm.Open: %v", err)
	}
	return db, mock, sqldb
}

var messageColumns = []string{"id", "channel_id", "workspace_id", "user_id", "content", "file_url", "is_deleted", "created_at", "updated_at"}

func TestMessageDAO_FindPage_FirstPageOmitsOffset(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `im_message` WHERE channel_id = ? ORDER BY created_at DESC, id DESC LIMIT ?")).
		WithArgs("c1", 10).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("m2", "c1", "w1", "u1", "b", nil, false, now.Add(time.Second), now.Add(time.Second)).
			AddRow("m1", "c1", "w1", "u1", "a", nil, false, now, now))

	list, err := NewMessageDAO(db).FindPage(context.Background(), "c1", 0, 10)
	if err != nil {
		t.Fatalf("FindPage: %v", err)
	}
	if len(list) != 2 || list[0].ID != "m2" || list[1].ID != "m1" {
		t.Fatalf("unexpected rows: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestMessageDAO_FindPage_OlderPageUsesOffset(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `im_message` WHERE channel_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")).
		WithArgs("c1", 10, 20).
		WillReturnRows(sqlmock.NewRows(messageColumns))

	list, err := NewMessageDAO(db).FindPage(context.Background(), "c1", 20, 10)
	if err != nil {
		t.Fatalf("FindPage: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty page, got %d", len(list))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestMessageDAO_FindByID_NotFound(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `im_message` WHERE id = ?")).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows(messageColumns))

	_, err := NewMessageDAO(db).FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMessageDAO_SoftDelete_Conditional(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	q := regexp.QuoteMeta("UPDATE `im_message` SET `content`=?,`file_url`=?,`is_deleted`=? WHERE id = ? AND is_deleted = ?")
	mock.ExpectExec(q).
		WithArgs("This message has been deleted", nil, true, "m1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs("This message has been deleted", nil, true, "m1", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	dao := NewMessageDAO(db)
	ok, err := dao.SoftDelete(context.Background(), "m1", "This message has been deleted")
	if err != nil || !ok {
		t.Fatalf("first delete: ok=%v err=%v", ok, err)
	}
	ok, err = dao.SoftDelete(context.Background(), "m1", "This message has been deleted")
	if err != nil || ok {
		t.Fatalf("second delete must not match: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestMessageDAO_UpdateContent(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `im_message` SET `content`=?,`updated_at`=? WHERE id = ? AND user_id = ? AND is_deleted = ?")).
		WithArgs("edited", at, "m1", "u1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := NewMessageDAO(db).UpdateContent(context.Background(), "m1", "u1", "edited", at)
	if err != nil || !ok {
		t.Fatalf("UpdateContent: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestMessageDAO_Create(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	mock.ExpectExec("INSERT INTO `im_message`").WillReturnResult(sqlmock.NewResult(0, 1))

	content := "hi"
	now := time.Now()
	msg := &models.Message{ChannelID: "c1", WorkspaceID: "w1", UserID: "u1", Content: &content, CreatedAt: now, UpdatedAt: now}
	if err := NewMessageDAO(db).Create(context.Background(), msg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if msg.ID == "" {
		t.Fatalf("id should be assigned by BeforeCreate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet: %v", err)
	}
}

func TestChannelDAO_FindByID_ScansJSONMembers(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `im_channel` WHERE id = ?")).
		WithArgs("c1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "name", "user_id", "members", "regulators", "created_at"}).
			AddRow("c1", "w1", "general", "owner", []byte(`["u1","u2"]`), []byte(`["mod"]`), time.Now()))

	ch, err := NewChannelDAO(db).FindByID(context.Background(), "c1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !ch.IsMember("u2") || !ch.IsRegulator("mod") {
		t.Fatalf("json columns not scanned: %+v", ch)
	}
}

func TestMessageDAO_Create_DuplicateKey(t *testing.T) {
	sqldb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer sqldb.Close()
	// TranslateError 让 mysql 1062 变成 gorm.ErrDuplicatedKey
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqldb, SkipInitializeWithVersion: true}),
		&gorm.Config{SkipDefaultTransaction: true, TranslateError: true})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `im_message`")).
		WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry 'm1' for key 'PRIMARY'"})

	c := "hi"
	now := time.Now()
	err = NewMessageDAO(db).Create(context.Background(), &models.Message{ID: "m1", ChannelID: "c1", Content: &c, CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}
