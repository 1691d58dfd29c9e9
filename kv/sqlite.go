package kv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_tables (
	name TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS kv_items (
	tbl        TEXT NOT NULL REFERENCES kv_tables(name),
	id         TEXT NOT NULL,
	doc        TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (tbl, id)
);`

// SQLite is a Backend that keeps every table in one SQLite file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory '%s': %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set SQLite synchronous pragma: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Run executes req against the database.
func (s *SQLite) Run(ctx context.Context, req Request) (*Response, error) {
	return dispatch(ctx, s, req)
}

// CreateTable registers table.
func (s *SQLite) CreateTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO kv_tables (name) VALUES (?)`, table); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) ensureTable(ctx context.Context, table string) error {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM kv_tables WHERE name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTableNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return nil
}

func (s *SQLite) get(ctx context.Context, table, id string) (map[string]any, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM kv_items WHERE tbl = ? AND id = ?`, table, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from %s: %w", id, table, err)
	}
	return decodeItem([]byte(doc))
}

func (s *SQLite) scan(ctx context.Context, table string) ([]map[string]any, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM kv_items WHERE tbl = ? ORDER BY id`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer rows.Close()

	var items []map[string]any
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to read row from %s: %w", table, err)
		}
		item, err := decodeItem([]byte(doc))
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	return items, nil
}

func (s *SQLite) put(ctx context.Context, table, id string, item map[string]any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item %s: %w", id, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO kv_tables (name) VALUES (?)`, table); err != nil {
		return fmt.Errorf("failed to register table %s: %w", table, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv_items (tbl, id, doc, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(tbl, id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		table, id, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to put %s into %s: %w", id, table, err)
	}
	return tx.Commit()
}
