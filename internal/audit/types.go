package audit

import (
	"context"
	"time"
)

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Entry records one payout dispatch attempt. The session token is never
// stored, only a redacted hint.
type Entry struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	TokenHint string    `json:"token_hint"`
	Amount    int64     `json:"amount"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps an append-only journal of payout dispatches. It is an audit
// trail only; nothing reads it back to decide whether to pay.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, ownerID string, limit int) ([]Entry, error)
	Close() error
}
