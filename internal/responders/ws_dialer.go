package responders

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// GorillaDialer is the concrete AudioDialer backing AudioResponder in
// production, wrapping gorilla/websocket — the same library the teacher's
// control_plane/ws_hub.go uses, here as a client instead of a server.
type GorillaDialer struct{}

func (GorillaDialer) Dial(ctx context.Context, url string) (AudioConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return gorillaConn{conn}, nil
}

type gorillaConn struct {
	conn *websocket.Conn
}

func (g gorillaConn) WriteJSON(v any) error               { return g.conn.WriteJSON(v) }
func (g gorillaConn) ReadJSON(v any) error                { return g.conn.ReadJSON(v) }
func (g gorillaConn) SetWriteDeadline(t time.Time) error  { return g.conn.SetWriteDeadline(t) }
func (g gorillaConn) Close() error                        { return g.conn.Close() }
