package journal

import (
	"context"
	"errors"
	"fmt"

	"soundwork/pkg/ledger"
)

// ErrSequenceConflict means an event with the same sequence number is already
// stored, usually because a second writer shares the journal.
var ErrSequenceConflict = errors.New("journal sequence conflict")

// Journal is the durable, ordered log of ledger events.
type Journal interface {
	ledger.Recorder
	// Load returns every event in sequence order.
	Load(ctx context.Context) ([]ledger.Event, error)
}

// Restore replays the journal into an empty ledger.
func Restore(ctx context.Context, j Journal, l *ledger.Ledger) (int, error) {
	events, err := j.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load journal: %w", err)
	}
	if err := l.Replay(events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// Verify replays the journal into a scratch ledger and reports the first
// inconsistency, without touching any live state.
func Verify(ctx context.Context, j Journal, owner, marketplace ledger.Address) (int, error) {
	scratch, err := ledger.New(ledger.Config{Owner: owner, Marketplace: marketplace})
	if err != nil {
		return 0, err
	}
	return Restore(ctx, j, scratch)
}
