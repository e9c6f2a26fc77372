// Package events provides the in-process fan-out bus the session
// controller publishes on. Delivery is synchronous and best effort:
// one misbehaving listener never blocks or crashes the others.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names a class of session or device event.
type Type string

const (
	TypeProgress      Type = "conversion_progress"
	TypePhaseChange   Type = "conversion_phase_change"
	TypeStateChange   Type = "session_state_change"
	TypeCompleted     Type = "conversion_completed"
	TypeFailed        Type = "conversion_failed"
	TypeCancelled     Type = "conversion_cancelled"
	TypeDeviceWarning Type = "device_warning"
)

// Event is what listeners receive. SessionID is empty for device-level
// events.
type Event struct {
	Type      Type
	SessionID string
	Timestamp time.Time
	Payload   any
}

// ProgressPayload accompanies TypeProgress events.
type ProgressPayload struct {
	Percentage         float64
	ProcessedDuration  time.Duration
	TotalDuration      time.Duration
	Phase              string
	Speed              float64
	EstimatedRemaining time.Duration
}

// FailurePayload accompanies TypeFailed events.
type FailurePayload struct {
	Kind    string
	Message string
}

// DeviceWarningPayload accompanies TypeDeviceWarning events emitted by
// the periodic monitor.
type DeviceWarningPayload struct {
	Reason         string
	Suggestion     string
	RecommendPause bool
}

// Listener receives events synchronously on the publisher's goroutine.
type Listener func(Event)

type subscription struct {
	id    string
	types map[Type]struct{}
	fn    Listener
}

// Bus fans events out to subscribed listeners. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[string]*subscription),
		logger: logger.With("component", "events"),
	}
}

// Subscribe registers a listener for the given event types. An empty
// type list subscribes to everything. Returns the subscription id.
func (b *Bus) Subscribe(types []Type, fn Listener) string {
	sub := &subscription{
		id: uuid.NewString(),
		fn: fn,
	}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub.id
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Publish delivers the event to every matching listener on the calling
// goroutine. A panicking listener is logged and skipped; the rest still
// receive the event. Within one listener, delivery order matches
// publish order.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.matches(evt.Type) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		b.deliver(sub, evt)
	}
}

func (b *Bus) deliver(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				"subscription_id", sub.id,
				"event_type", evt.Type,
				"panic", r)
		}
	}()
	sub.fn(evt)
}

func (s *subscription) matches(t Type) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}
