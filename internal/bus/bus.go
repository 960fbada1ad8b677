// Package bus implements the typed, in-process pub/sub Event Bus (spec
// §4.A): the control-plane nervous system that the DAG Runner, Story
// State, and Story Loop Phase Machine all publish and subscribe on.
//
// Grounded on control_plane/streaming/interface.go's Publisher/Subscriber
// contract shape, generalized with glob-pattern subscriptions, priority
// ordering, and a bounded per-type history ring
// (control_plane/timeline/store.go).
package bus

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sherndon-labs/adventurecore/internal/observability"
)

// Event is immutable after emission (spec §3).
type Event struct {
	Type      string
	Payload   any
	Timestamp time.Time
	ID        string
	Source    string
}

// HandlerErrorPayload is the payload of a bus:handler_error event (spec
// §4.A guarantee 3).
type HandlerErrorPayload struct {
	EventType      string
	Error          string
	SubscriptionID string
}

const handlerErrorEventType = "bus:handler_error"

// Bus is the event bus. The zero value is not usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	literal     map[string][]*subscription // keyed by exact event type
	patterned   []*subscription            // subscriptions whose pattern contains a wildcard
	history     *ring
	historyCap  int
}

// New constructs a Bus with the given per-event-type history capacity
// (0 uses a sane default of 100).
func New(historyCapacity int) *Bus {
	return &Bus{
		literal:    make(map[string][]*subscription),
		patterned:  make([]*subscription, 0),
		history:    newRing(historyCapacity),
		historyCap: historyCapacity,
	}
}

// Subscribe registers handler against eventType or a glob pattern
// ("*" = one segment, "**" = any suffix). Returns a CancelFunc whose
// repeated invocation is a no-op.
func (b *Bus) Subscribe(pattern string, handler Handler, opts Options) CancelFunc {
	sub := &subscription{
		id:       uuid.NewString(),
		pattern:  pattern,
		priority: opts.Priority,
		once:     opts.Once,
		filter:   opts.Filter,
		handler:  handler,
		seq:      nextSeq(),
	}

	b.mu.Lock()
	if isLiteral(pattern) {
		b.literal[pattern] = append(b.literal[pattern], sub)
	} else {
		b.patterned = append(b.patterned, sub)
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.cancelled.Store(true)
			b.removeSubscription(sub)
		})
	}
}

func (b *Bus) removeSubscription(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isLiteral(sub.pattern) {
		list := b.literal[sub.pattern]
		for i, s := range list {
			if s == sub {
				b.literal[sub.pattern] = append(list[:i], list[i+1:]...)
				break
			}
		}
		return
	}
	for i, s := range b.patterned {
		if s == sub {
			b.patterned = append(b.patterned[:i], b.patterned[i+1:]...)
			break
		}
	}
}

// matching returns a priority-ordered, subscribe-order-tiebroken snapshot
// of subscriptions that match eventType at the instant of the call.
// Snapshotting here is what guarantees guarantee (2): a subscription
// registered by a handler mid-delivery never receives the event currently
// being delivered.
func (b *Bus) matching(eventType string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*subscription, 0, 4)
	for _, s := range b.literal[eventType] {
		if !s.cancelled.Load() {
			out = append(out, s)
		}
	}
	for _, s := range b.patterned {
		if !s.cancelled.Load() && matchPattern(s.pattern, eventType) {
			out = append(out, s)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority // higher priority first
		}
		return out[i].seq < out[j].seq // FIFO within equal priority
	})
	return out
}

func (b *Bus) buildEvent(eventType string, payload any) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
		ID:        uuid.NewString(),
	}
}

// Emit delivers eventType synchronously: it returns once every matching,
// non-cancelled subscription present at call time has been invoked (or
// skipped by its filter). Handler errors are isolated (guarantee 3) — they
// never propagate to the caller, only to bus:handler_error observers.
func (b *Bus) Emit(eventType string, payload any) {
	event := b.buildEvent(eventType, payload)
	b.deliver(event)
}

// EmitAsync delivers eventType with each matching handler run in its own
// goroutine, returning a Future that resolves once all of them finish (or
// the context passed to Wait expires). Handler errors remain isolated the
// same way Emit isolates them; the Future additionally reports whether any
// handler failed, for callers that want to know without subscribing to
// bus:handler_error themselves.
func (b *Bus) EmitAsync(eventType string, payload any) *Future {
	event := b.buildEvent(eventType, payload)

	subs := b.matching(eventType)
	b.recordAndCount(event, len(subs))

	f := &Future{done: make(chan struct{})}
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, sub := range subs {
		sub := sub
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.invoke(sub, event); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
		if sub.once {
			sub.cancelled.Store(true)
			b.removeSubscription(sub)
		}
	}

	go func() {
		wg.Wait()
		f.err = firstErr
		close(f.done)
	}()
	return f
}

// Future is the result of EmitAsync (spec §4.A emitAsync "→ promise").
type Future struct {
	done chan struct{}
	err  error
}

// Wait blocks until every asynchronous handler has completed or ctx is
// done, whichever comes first.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) deliver(event Event) {
	subs := b.matching(event.Type)
	b.recordAndCount(event, len(subs))

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		if sub.once {
			sub.cancelled.Store(true)
			b.removeSubscription(sub)
		}
		_ = b.invoke(sub, event)
	}
}

func (b *Bus) invoke(sub *subscription, event Event) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		observability.BusDeliveries.WithLabelValues(event.Type).Inc()
		observability.BusDeliveryDuration.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
		if err != nil {
			observability.BusHandlerErrors.WithLabelValues(event.Type).Inc()
			if event.Type != handlerErrorEventType {
				b.Emit(handlerErrorEventType, HandlerErrorPayload{
					EventType:      event.Type,
					Error:          err.Error(),
					SubscriptionID: sub.id,
				})
			}
		}
	}()
	return sub.handler(event)
}

func (b *Bus) recordAndCount(event Event, matched int) {
	observability.BusEmissions.WithLabelValues(event.Type).Inc()
	b.history.record(event)
}

// GetRecent returns the most recent (up to limit) events of eventType,
// oldest first, for late subscribers (spec §4.A guarantee 5).
func (b *Bus) GetRecent(eventType string, limit int) []Event {
	return b.history.recent(eventType, limit)
}
