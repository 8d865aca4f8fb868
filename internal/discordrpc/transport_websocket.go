package discordrpc

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// dialWebsocketIPC is the optional fallback transport named in §4.3, used
// when no Unix socket/named pipe is reachable (e.g. Discord running inside
// a container or a future web-only client). It wraps a gorilla/websocket
// connection to satisfy the same net.Conn-ish frame Read/Write contract the
// rest of the client uses.
func dialWebsocketIPC(appID string) (net.Conn, error) {
	var lastErr error
	for port := 6463; port <= 6472; port++ {
		u := url.URL{
			Scheme:   "ws",
			Host:     fmt.Sprintf("127.0.0.1:%d", port),
			Path:     "/",
			RawQuery: fmt.Sprintf("v=1&client_id=%s&encoding=json", url.QueryEscape(appID)),
		}

		header := http.Header{}
		header.Set("Origin", "https://discord.com")

		dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
		conn, _, err := dialer.Dial(u.String(), header)
		if err == nil {
			return &wsConn{conn: conn}, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no Discord websocket IPC candidate ports responded")
	}
	return nil, fmt.Errorf("discord websocket IPC unavailable: %w", lastErr)
}

// wsConn adapts a gorilla/websocket connection, which is message-oriented,
// to the byte-stream Read/Write the frame codec expects by buffering
// partially-consumed messages.
type wsConn struct {
	conn    *websocket.Conn
	pending []byte
}

func (w *wsConn) Read(b []byte) (int, error) {
	for len(w.pending) == 0 {
		_, msg, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		w.pending = msg
	}
	n := copy(b, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *wsConn) Write(b []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (w *wsConn) Close() error { return w.conn.Close() }

func (w *wsConn) LocalAddr() net.Addr                { return w.conn.LocalAddr() }
func (w *wsConn) RemoteAddr() net.Addr               { return w.conn.RemoteAddr() }
func (w *wsConn) SetDeadline(t time.Time) error      { return w.conn.UnderlyingConn().SetDeadline(t) }
func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.conn.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.conn.SetWriteDeadline(t) }
