package bus

import "sync/atomic"

// Handler processes one delivered Event. A returned error is isolated by
// the bus: it never aborts delivery to other subscriptions, and is
// republished as a bus:handler_error event instead.
type Handler func(Event) error

// Filter narrows delivery further than the pattern match alone (spec
// §3 Subscription.filter).
type Filter func(Event) bool

// CancelFunc unsubscribes. Invoking it more than once is a no-op (spec §3:
// "a subscription yields a cancel token whose invocation is idempotent").
type CancelFunc func()

// Options configures a subscription at Subscribe time.
type Options struct {
	Priority int
	Once     bool
	Filter   Filter
}

type subscription struct {
	id       string
	pattern  string
	priority int
	once     bool
	filter   Filter
	handler  Handler
	seq      int64 // subscribe-order tiebreaker within equal priority

	cancelled atomic.Bool
}

var seqCounter atomic.Int64

func nextSeq() int64 { return seqCounter.Add(1) }
