package data

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hobojuki/feishu-hobojuki/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// ledgerRepo implements the reply ledger on sqlite
type ledgerRepo struct {
	db *sql.DB
}

// NewLedgerRepo opens (or creates) the ledger database
func NewLedgerRepo(dbPath string) (repo.LedgerRepo, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps Claim's INSERT OR IGNORE race free across goroutines.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS replies (
			msg_id TEXT PRIMARY KEY,
			claimed_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS deliveries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			msg_id TEXT NOT NULL DEFAULT '',
			chat_id TEXT NOT NULL,
			path TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_replies_claimed_at ON replies(claimed_at)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &ledgerRepo{db: db}, nil
}

// Claim claims a message ID for replying
func (r *ledgerRepo) Claim(ctx context.Context, msgID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO replies (msg_id, claimed_at) VALUES (?, ?)`,
		msgID, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", msgID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Record stores a delivery outcome
func (r *ledgerRepo) Record(ctx context.Context, d *repo.Delivery) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	ok := 0
	if d.OK {
		ok = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO deliveries (msg_id, chat_id, path, ok, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.MessageID, d.ChatID, d.Path, ok, d.Error, d.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		d.ID = id
	}
	return nil
}

// Recent returns the newest deliveries
func (r *ledgerRepo) Recent(ctx context.Context, limit int) ([]*repo.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, msg_id, chat_id, path, ok, error, created_at
		FROM deliveries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*repo.Delivery
	for rows.Next() {
		var d repo.Delivery
		var ok int
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.MessageID, &d.ChatID, &d.Path, &ok, &d.Error, &createdAt); err != nil {
			return nil, err
		}
		d.OK = ok == 1
		d.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Cleanup removes old claims and deliveries
func (r *ledgerRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM replies WHERE claimed_at < ?`, before.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM deliveries WHERE created_at < ?`, before.Unix()); err != nil {
		return n, err
	}
	return n, nil
}

// Close closes the database
func (r *ledgerRepo) Close() error {
	return r.db.Close()
}
