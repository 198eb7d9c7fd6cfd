package api

import (
	"sync"

	"go.uber.org/zap"

	"reward-center/internal/domain"
	"reward-center/internal/observability"
)

// subscriberBuffer bounds the receipts queued for one feed subscriber.
const subscriberBuffer = 64

// Hub fans committed receipts out to feed subscribers. A subscriber whose
// buffer is full misses receipts rather than blocking settlement.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan *domain.Receipt]struct{}
	logger *zap.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[chan *domain.Receipt]struct{}),
		logger: logger,
	}
}

// Publish implements settlement.Publisher.
func (h *Hub) Publish(r *domain.Receipt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- r:
		default:
			h.logger.Warn("receipt feed subscriber lagging, dropping receipt", zap.String("receipt", r.ID))
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel.
func (h *Hub) Subscribe() (<-chan *domain.Receipt, func()) {
	ch := make(chan *domain.Receipt, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	observability.UpdateFeedSubscribers(n)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			n := len(h.subs)
			close(ch)
			h.mu.Unlock()
			observability.UpdateFeedSubscribers(n)
		})
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
