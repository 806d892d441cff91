package realtime

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is one open push channel.
type Conn interface {
	// Read blocks until the next inbound frame. On connection loss it
	// returns an error; websocket.CloseStatus extracts the close code
	// when one was received.
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a channel to the given URL. The manager only ever holds
// one live Conn; tests substitute a fake Dialer to drive the state
// machine without sockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

// NewWebsocketDialer returns the production Dialer.
func NewWebsocketDialer() Dialer {
	return wsDialer{}
}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.conn.Close(websocket.StatusNormalClosure, "teardown")
}
