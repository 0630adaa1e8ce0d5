package model

import (
	"context"
	"time"
)

// TurnRepository keeps a short log of completed turns per sender and the
// details a handler left pending for confirm_show_details.
type TurnRepository interface {
	// AppendTurn records a finalized turn for the sender.
	AppendTurn(ctx context.Context, sender string, record TurnRecord) error

	// RecentTurns returns up to limit most recent turns, oldest first.
	RecentTurns(ctx context.Context, sender string, limit int) ([]TurnRecord, error)

	// SavePendingDetails stores details the user may ask for on the next turn.
	SavePendingDetails(ctx context.Context, sender string, details string) error

	// TakePendingDetails returns and clears pending details; "" when none.
	TakePendingDetails(ctx context.Context, sender string) (string, error)

	// ClearHistory removes everything stored for the sender.
	ClearHistory(ctx context.Context, sender string) error
}

// TurnRecord is the persisted summary of a finalized turn.
type TurnRecord struct {
	TurnID    string    `json:"turn_id"`
	Message   string    `json:"message"`
	Intent    Intent    `json:"intent"`
	Slots     Slots     `json:"slots,omitempty"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
