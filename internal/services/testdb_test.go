package services

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testDB opens an isolated in-memory sqlite database with the schema laid
// out by hand; the postgres-only column defaults in the model tags do not
// translate, and gorm fills the timestamp fields itself anyway.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	stmts := []string{
		`CREATE TABLE "user" (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password TEXT,
			tier TEXT NOT NULL DEFAULT 'registered',
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE "chat" (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title TEXT NOT NULL,
			visibility TEXT NOT NULL DEFAULT 'private',
			created_at DATETIME
		)`,
		`CREATE TABLE "message" (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			parts TEXT,
			attachments TEXT,
			seq INTEGER NOT NULL,
			created_at DATETIME,
			UNIQUE (chat_id, seq)
		)`,
		`CREATE TABLE "stream_record" (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			created_at DATETIME
		)`,
		`CREATE TABLE "document" (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			chat_id TEXT,
			title TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'text',
			content TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE "suggestion" (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			owner_id TEXT NOT NULL,
			original_text TEXT,
			suggested_text TEXT,
			description TEXT,
			tool_call_id TEXT,
			created_at DATETIME
		)`,
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}
