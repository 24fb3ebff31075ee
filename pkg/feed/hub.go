package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"soundwork/pkg/ledger"
)

const sendBuffer = 64

// Filter narrows a subscription. Zero values match everything.
type Filter struct {
	Address ledger.Address
	AssetID int64
}

func (f Filter) Match(ev ledger.Event) bool {
	if f.AssetID != 0 && ev.AssetID != f.AssetID {
		return false
	}
	if f.Address != "" && !ev.Involves(f.Address) {
		return false
	}
	return true
}

// Subscriber is one live feed connection.
type Subscriber struct {
	ID     uuid.UUID
	Filter Filter
	Conn   *websocket.Conn
	Send   chan ledger.Event
	Done   chan struct{}

	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// Hub fans committed ledger events out to subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	log         *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]*Subscriber),
		log:         log,
	}
}

// Subscribe registers a subscriber. conn may be nil for in-process consumers.
func (h *Hub) Subscribe(filter Filter, conn *websocket.Conn) *Subscriber {
	s := &Subscriber{
		ID:     uuid.New(),
		Filter: filter,
		Conn:   conn,
		Send:   make(chan ledger.Event, sendBuffer),
		Done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.subscribers[s.ID] = s
	h.mu.Unlock()
	return s
}

func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	s, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()

	if ok {
		s.close()
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Publish queues ev for every matching subscriber without blocking. A
// subscriber whose queue is full misses the event. Events are forwarded in
// arrival order, which may differ from seq order under concurrent commits;
// clients order by the seq field.
func (h *Hub) Publish(_ context.Context, ev ledger.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subscribers {
		if !s.Filter.Match(ev) {
			continue
		}
		select {
		case s.Send <- ev:
		case <-s.Done:
		default:
			h.log.Warn("feed subscriber queue full, dropping event",
				zap.String("subscriber", s.ID.String()),
				zap.Int64("seq", ev.Seq),
			)
		}
	}
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[uuid.UUID]*Subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
