// Package handlers provides the default stage-type handler factories
// (spec §4.J): bus-mediated RPC wrappers the Orchestrator Manager
// registers against well-known stage.type values.
//
// The repeated "emit a request, await a correlated response, time out"
// shape duplicated across the teacher's scheduler deadline handling
// (control_plane/scheduler/scheduler.go) is factored into one helper here
// instead of being copy-pasted per handler, per the Design Notes'
// "formalize as a request-response helper on the bus" instruction.
package handlers

import (
	"context"
	"fmt"

	"time"

	"github.com/google/uuid"

	"github.com/sherndon-labs/adventurecore/internal/bus"
	"github.com/sherndon-labs/adventurecore/internal/corerr"
)

// Request emits requestType with payload (after stamping it with a fresh
// requestId) and awaits the matching responseType event, correlating on
// that same requestId. It is the bus-mediated RPC primitive every default
// type handler in this package is built on.
func Request(ctx context.Context, b *bus.Bus, requestType string, payload map[string]any, responseType string, timeout time.Duration) (map[string]any, error) {
	requestID := uuid.NewString()
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["requestId"] = requestID

	resultCh := make(chan map[string]any, 1)
	cancel := b.Subscribe(responseType, func(e bus.Event) error {
		resp, ok := e.Payload.(map[string]any)
		if !ok {
			return nil
		}
		if id, _ := resp["requestId"].(string); id != requestID {
			return nil
		}
		select {
		case resultCh <- resp:
		default:
		}
		return nil
	}, bus.Options{})
	defer cancel()

	b.Emit(requestType, payload)

	return awaitResult(ctx, resultCh, timeout, responseType, requestID)
}

// awaitCorrelated subscribes to eventType, calls send, and waits for a
// payload whose field matchKey equals matchValue, used by handlers (e.g.
// `competition`) that correlate on something other than a requestId (here,
// batchId). Subscribing before send means a reply emitted synchronously
// from within send is not missed.
func awaitCorrelated(ctx context.Context, b *bus.Bus, send func(), eventType, matchKey string, matchValue any, timeout time.Duration) (map[string]any, error) {
	resultCh := make(chan map[string]any, 1)
	cancel := b.Subscribe(eventType, func(e bus.Event) error {
		resp, ok := e.Payload.(map[string]any)
		if !ok {
			return nil
		}
		if resp[matchKey] != matchValue {
			return nil
		}
		select {
		case resultCh <- resp:
		default:
		}
		return nil
	}, bus.Options{})
	defer cancel()

	send()

	return awaitResult(ctx, resultCh, timeout, eventType, fmt.Sprintf("%v", matchValue))
}

func awaitResult(ctx context.Context, resultCh <-chan map[string]any, timeout time.Duration, awaitedOn, id string) (map[string]any, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-resultCh:
		if errVal, hasErr := resp["error"]; hasErr && errVal != nil {
			return nil, &corerr.ProviderError{Provider: awaitedOn, Reason: fmt.Sprintf("%v", errVal)}
		}
		return resp, nil
	case <-timer.C:
		return nil, &corerr.RequestTimeout{RequestID: id, AwaitedOn: awaitedOn}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BudgetOr returns budgetMs as a duration if positive, else fallback.
func BudgetOr(budgetMs int, fallback time.Duration) time.Duration {
	if budgetMs > 0 {
		return time.Duration(budgetMs) * time.Millisecond
	}
	return fallback
}
