package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/surveydesk/surveydesk/internal/store"
	"github.com/surveydesk/surveydesk/internal/utils"
)

// openRecordStore picks the persistence backend from SURVEYDESK_DB:
// "memory" (default), "sqlite" (SURVEYDESK_DB_PATH) or "postgres"
// (SURVEYDESK_DB_DSN).
func openRecordStore() (store.RecordStore, error) {
	switch backend := utils.SafeEnv("SURVEYDESK_DB", "memory"); backend {
	case "memory":
		log.Printf("using in-memory record store; data will not survive restarts")
		return store.NewMemoryStore(), nil
	case "sqlite":
		path := utils.SafeEnv("SURVEYDESK_DB_PATH", "data/surveydesk.db")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000", filepath.ToSlash(path))
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store.NewSQLiteStore(db)
	case "postgres":
		dsn := os.Getenv("SURVEYDESK_DB_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("SURVEYDESK_DB_DSN is required for the postgres backend")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store.NewPostgresStore(db)
	default:
		return nil, fmt.Errorf("unknown SURVEYDESK_DB backend %q", backend)
	}
}
