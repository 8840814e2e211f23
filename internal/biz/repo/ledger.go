package repo

import (
	"context"
	"time"
)

// Delivery records the outcome of one reply or scheduled send
type Delivery struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id,omitempty"`
	ChatID    string    `json:"chat_id"`
	Path      string    `json:"path"` // schedule, url, search, plain, scheduled
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LedgerRepo is the reply ledger interface
// Persisted in sqlite so redelivered events never produce a second reply
type LedgerRepo interface {
	// Claim atomically claims a message ID. Returns false if it was already claimed.
	Claim(ctx context.Context, msgID string) (bool, error)

	// Record stores a delivery outcome
	Record(ctx context.Context, d *Delivery) error

	// Recent returns the most recent deliveries, newest first
	Recent(ctx context.Context, limit int) ([]*Delivery, error)

	// Cleanup removes claims older than the given time
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
