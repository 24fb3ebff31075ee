package journal

import (
	"context"
	"fmt"
	"sync"

	"soundwork/pkg/ledger"
)

// MemoryJournal keeps events in process memory. It backs tests and the
// STORAGE_BACKEND=memory mode.
type MemoryJournal struct {
	mu     sync.RWMutex
	events []ledger.Event
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (m *MemoryJournal) Append(ctx context.Context, ev ledger.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if want := int64(len(m.events)) + 1; ev.Seq != want {
		return fmt.Errorf("%w: got seq %d, want %d", ErrSequenceConflict, ev.Seq, want)
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryJournal) Load(ctx context.Context) ([]ledger.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Event, len(m.events))
	copy(out, m.events)
	return out, nil
}
