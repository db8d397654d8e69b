package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore implements RecordStore on a Postgres records table with the
// same replace-the-collection write semantics as SQLiteStore.
type PostgresStore struct {
	db *sql.DB
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS records (
	collection TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (collection, key)
)`

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Read(collection string) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query("SELECT key, value FROM records WHERE collection = $1", collection)
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

func (s *PostgresStore) Write(collection string, records map[string]json.RawMessage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin write to %q: %w", collection, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec("DELETE FROM records WHERE collection = $1", collection); err != nil {
		return fmt.Errorf("clear collection %q: %w", collection, err)
	}
	for key, value := range records {
		if _, err := tx.Exec("INSERT INTO records (collection, key, value) VALUES ($1, $2, $3)",
			collection, key, string(value)); err != nil {
			return fmt.Errorf("insert record %q into %q: %w", key, collection, err)
		}
	}
	return tx.Commit()
}
