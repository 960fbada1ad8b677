package responders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sherndon-labs/adventurecore/internal/audio"
	"github.com/sherndon-labs/adventurecore/internal/bus"
)

const resultEventAudio = "orchestrator:audio:result"

// AudioResponder owns the single WS connection to the external audio
// service and answers orchestrator:audio:request (spec §4.K).
//
// The connect/reconnect/write-deadline lifecycle is grounded on the
// teacher's control_plane/ws_hub.go MetricsHub, inverted from a server hub
// accepting N dashboard clients (register/unregister channels, broadcast
// loop) to a client dialing one external service and tracking a single
// connected/offline flag; the reconnect backoff plays the role the hub's
// connection cap plays there (both exist to keep one runaway peer from
// spinning the loop).
type AudioResponder struct {
	bus    *bus.Bus
	dialer AudioDialer
	url    string

	mu        sync.Mutex
	conn      AudioConn
	connected atomic.Bool

	unsubscribe bus.CancelFunc
	stop        chan struct{}
}

func NewAudioResponder(b *bus.Bus, dialer AudioDialer, url string) *AudioResponder {
	r := &AudioResponder{bus: b, dialer: dialer, url: url, stop: make(chan struct{})}
	r.unsubscribe = b.Subscribe("orchestrator:audio:request", r.handle, bus.Options{})
	go r.connectLoop()
	return r
}

// Close stops the reconnect loop and the bus subscription. It does not
// wait for the read pump goroutine of an in-flight connection to exit.
func (r *AudioResponder) Close() {
	close(r.stop)
	r.unsubscribe()
	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
	}
	r.mu.Unlock()
}

func (r *AudioResponder) Connected() bool { return r.connected.Load() }

func (r *AudioResponder) connectLoop() {
	backoff := 500 * time.Millisecond
	const maxBackoff = 10 * time.Second
	for {
		select {
		case <-r.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, err := r.dialer.Dial(ctx, r.url)
		cancel()
		if err != nil {
			log.Printf("audio responder: dial failed: %v", err)
			time.Sleep(backoff)
			backoff = minDuration(backoff*2, maxBackoff)
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		r.connected.Store(true)
		backoff = 500 * time.Millisecond

		r.readPump(conn)

		r.connected.Store(false)
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()

		select {
		case <-r.stop:
			return
		default:
		}
	}
}

// readPump drains inbound messages until the connection breaks. Every
// message, audio_status included, is read and discarded; none of them
// changes the connected flag, which is set when the dial succeeds and
// cleared once a read fails. The loop exists to detect the connection dying.
func (r *AudioResponder) readPump(conn AudioConn) {
	for {
		var msg audio.InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (r *AudioResponder) handle(e bus.Event) error {
	req, ok := e.Payload.(map[string]any)
	if !ok {
		return nil
	}
	requestID, _ := req["requestId"].(string)
	optional, _ := req["optional"].(bool)
	data, _ := req["payload"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}

	if !r.connected.Load() {
		if !optional {
			r.bus.Emit(resultEventAudio, map[string]any{"requestId": requestID, "error": "Audio service not connected"})
			return nil
		}
		r.bus.Emit(resultEventAudio, map[string]any{"requestId": requestID, "result": map[string]any{
			"status": string(audio.StatusOffline), "connected": false, "warnings": []string{"Audio service not connected"},
		}})
		return nil
	}

	var items []audio.ItemResult
	var warnings []string
	failed := 0

	if sync, ok := data["sync"].(map[string]any); ok {
		syncID, _ := sync["id"].(string)
		res := r.sendControl(audio.CommandRegisterSync, audio.RegisterSyncParams{
			SyncID: syncID, Channels: toChannels(sync["channels"]), Metadata: sync["metadata"],
		})
		items = append(items, res)
		if !res.Success {
			failed++
			warnings = append(warnings, res.Message)
		}
	}

	for _, channel := range audio.Channels {
		update, ok := data[string(channel)]
		if !ok {
			continue
		}
		res := r.sendChannelUpdate(channel, update)
		items = append(items, res)
		if !res.Success {
			failed++
			warnings = append(warnings, fmt.Sprintf("%s: %s", channel, res.Message))
		}
	}

	if controls, ok := data["controls"].([]any); ok {
		for _, c := range controls {
			cm, _ := c.(map[string]any)
			command, _ := cm["command"].(string)
			res := r.sendControl(audio.Command(command), cm["params"])
			items = append(items, res)
			if !res.Success {
				failed++
				warnings = append(warnings, fmt.Sprintf("%s: %s", command, res.Message))
			}
		}
	}

	if failed > 0 && !optional {
		r.bus.Emit(resultEventAudio, map[string]any{
			"requestId": requestID,
			"error":     fmt.Sprintf("audio request failed: %s", strings.Join(warnings, "; ")),
		})
		return nil
	}

	status := audio.StatusQueued
	switch {
	case len(items) == 0:
		status = audio.StatusNoop
	case failed > 0:
		status = audio.StatusPartial
	}

	result := map[string]any{"status": string(status), "requests": items, "connected": true}
	if len(warnings) > 0 {
		result["warnings"] = warnings
	}
	r.bus.Emit(resultEventAudio, map[string]any{"requestId": requestID, "result": result})
	return nil
}

func (r *AudioResponder) sendChannelUpdate(channel audio.Channel, data any) audio.ItemResult {
	return r.send(audio.NewStoryUpdate(channel, data))
}

func (r *AudioResponder) sendControl(command audio.Command, params any) audio.ItemResult {
	return r.send(audio.NewControl(command, params))
}

func (r *AudioResponder) send(message any) audio.ItemResult {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return audio.ItemResult{Success: false, Message: "not connected"}
	}

	start := time.Now()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	err := conn.WriteJSON(message)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return audio.ItemResult{Success: false, Message: err.Error(), DurationMs: elapsed}
	}
	return audio.ItemResult{Success: true, Message: "ok", DurationMs: elapsed}
}

// toChannels coerces a loosely-typed "channels" field (as decoded from a
// bus event payload) into typed Channel values.
func toChannels(v any) []audio.Channel {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]audio.Channel, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			out = append(out, audio.Channel(s))
		}
	}
	return out
}
