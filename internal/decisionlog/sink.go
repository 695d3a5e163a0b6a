package decisionlog

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("decision log closed")

// Sink persists decision log entries.
type Sink interface {
	// Append durably records e. Entries are appended in call order.
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// Prune deletes entries logged before cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// DefaultRecentLimit applies when Recent is called with a non-positive limit.
const DefaultRecentLimit = 100
