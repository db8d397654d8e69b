package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// SQLiteStore persists collections in a single records table. Each Write
// replaces a collection inside one transaction, so readers never observe a
// half-written collection.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (collection, key)
)`

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Read(collection string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query("SELECT key, value FROM records WHERE collection = ?", collection)
	if err != nil {
		return nil, fmt.Errorf("read collection %q: %w", collection, err)
	}
	defer rows.Close()
	out := map[string]json.RawMessage{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan record in %q: %w", collection, err)
		}
		out[key] = json.RawMessage(value)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Write(collection string, records map[string]json.RawMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin write to %q: %w", collection, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec("DELETE FROM records WHERE collection = ?", collection); err != nil {
		return fmt.Errorf("clear collection %q: %w", collection, err)
	}
	for key, value := range records {
		if _, err := tx.Exec("INSERT INTO records (collection, key, value) VALUES (?, ?, ?)",
			collection, key, string(value)); err != nil {
			return fmt.Errorf("insert record %q into %q: %w", key, collection, err)
		}
	}
	return tx.Commit()
}
