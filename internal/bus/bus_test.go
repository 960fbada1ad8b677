package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEmitDeliversInPriorityThenSubscribeOrder(t *testing.T) {
	b := New(10)
	var order []string

	b.Subscribe("greet", func(Event) error { order = append(order, "low"); return nil }, Options{Priority: 0})
	b.Subscribe("greet", func(Event) error { order = append(order, "high"); return nil }, Options{Priority: 10})
	b.Subscribe("greet", func(Event) error { order = append(order, "mid"); return nil }, Options{Priority: 5})

	b.Emit("greet", nil)

	want := []string{"high", "mid", "low"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestOnceSubscriptionFiresExactlyOnce(t *testing.T) {
	b := New(10)
	count := 0
	b.Subscribe("x", func(Event) error { count++; return nil }, Options{Once: true})

	b.Emit("x", nil)
	b.Emit("x", nil)

	if count != 1 {
		t.Fatalf("got %d deliveries, want 1", count)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	b := New(10)
	count := 0
	cancel := b.Subscribe("x", func(Event) error { count++; return nil }, Options{})

	cancel()
	cancel() // must not panic or double-remove

	b.Emit("x", nil)
	if count != 0 {
		t.Fatalf("got %d deliveries after cancel, want 0", count)
	}
}

func TestHandlerErrorIsolatedAndPublished(t *testing.T) {
	b := New(10)
	secondRan := false
	var captured HandlerErrorPayload

	b.Subscribe(handlerErrorEventType, func(e Event) error {
		captured = e.Payload.(HandlerErrorPayload)
		return nil
	}, Options{})
	b.Subscribe("x", func(Event) error { return errors.New("boom") }, Options{Priority: 10})
	b.Subscribe("x", func(Event) error { secondRan = true; return nil }, Options{Priority: 0})

	b.Emit("x", nil)

	if !secondRan {
		t.Fatal("second handler did not run after first handler's error")
	}
	if captured.Error != "boom" {
		t.Fatalf("got handler_error payload %+v", captured)
	}
}

func TestSubscriptionAddedDuringDeliveryDoesNotReceiveCurrentEvent(t *testing.T) {
	b := New(10)
	lateFired := false

	b.Subscribe("x", func(Event) error {
		b.Subscribe("x", func(Event) error { lateFired = true; return nil }, Options{})
		return nil
	}, Options{})

	b.Emit("x", nil)
	if lateFired {
		t.Fatal("subscription added mid-delivery received the in-flight event")
	}

	b.Emit("x", nil)
	if !lateFired {
		t.Fatal("subscription added mid-delivery should receive the next event")
	}
}

func TestWildcardPatterns(t *testing.T) {
	b := New(10)
	var got []string
	b.Subscribe("orchestrator:stage:*", func(e Event) error { got = append(got, e.Type); return nil }, Options{})
	b.Subscribe("orchestrator:**", func(e Event) error { got = append(got, "suffix:"+e.Type); return nil }, Options{})

	b.Emit("orchestrator:stage:complete", nil)
	b.Emit("orchestrator:stage:retry:extra", nil)

	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestGetRecentReturnsBoundedHistoryOldestFirst(t *testing.T) {
	b := New(2)
	b.Emit("x", 1)
	b.Emit("x", 2)
	b.Emit("x", 3)

	recent := b.GetRecent("x", 10)
	if len(recent) != 2 {
		t.Fatalf("got %d events, want 2", len(recent))
	}
	if recent[0].Payload != 2 || recent[1].Payload != 3 {
		t.Fatalf("got %v, want [2,3]", recent)
	}
}

func TestEmitAsyncWaitsForAllHandlers(t *testing.T) {
	b := New(10)
	done := make(chan struct{})
	b.Subscribe("x", func(Event) error {
		<-done
		return nil
	}, Options{})

	f := b.EmitAsync("x", nil)
	close(done)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
