package realtime

import (
	"context"
	"errors"
	"sync"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/pkg/utils"
)

// Notifier delivers order status changes to interested parties. Implementations must
// not block the caller for long; a failed notification never undoes the status change.
type Notifier interface {
	NotifyOrderStatus(ctx context.Context, event models.OrderStatusEvent) error
}

const defaultBuffer = 8

// Hub fans order status events out to in-process subscribers keyed by order number.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// Subscription receives events for a single order until Close is called.
type Subscription struct {
	OrderNumber string
	C           <-chan models.OrderStatusEvent

	ch   chan models.OrderStatusEvent
	hub  *Hub
	once sync.Once
}

// NewHub creates a Hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: map[string]map[*Subscription]struct{}{}, buffer: buffer}
}

// Subscribe registers interest in orderNumber.
func (h *Hub) Subscribe(orderNumber string) *Subscription {
	ch := make(chan models.OrderStatusEvent, h.buffer)
	sub := &Subscription{OrderNumber: orderNumber, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[orderNumber]
	if !ok {
		set = map[*Subscription]struct{}{}
		h.subs[orderNumber] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Close unregisters the subscription and closes its channel. It is safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[s.OrderNumber]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.OrderNumber)
			}
		}
		close(s.ch)
	})
}

// Publish delivers event to every subscriber of its order and returns how many received it.
// Subscribers with a full buffer miss the event.
func (h *Hub) Publish(event models.OrderStatusEvent) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[event.OrderNumber] {
		select {
		case sub.ch <- event:
			delivered++
		default:
			utils.LogWarn("Dropping order event for slow subscriber", map[string]interface{}{
				"order_number": event.OrderNumber, "status": event.Status,
			})
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions for orderNumber.
func (h *Hub) SubscriberCount(orderNumber string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderNumber])
}

// CloseAll closes every subscription, ending their event streams.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		sub.Close()
	}
}

func (h *Hub) NotifyOrderStatus(_ context.Context, event models.OrderStatusEvent) error {
	h.Publish(event)
	return nil
}

// MultiNotifier notifies every wrapped Notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) NotifyOrderStatus(ctx context.Context, event models.OrderStatusEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyOrderStatus(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*Hub)(nil)
	_ Notifier = MultiNotifier(nil)
)
