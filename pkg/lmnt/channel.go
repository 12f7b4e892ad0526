package lmnt

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel is a full-duplex message channel owned by one Session.
//
// WriteFrame may be called concurrently with ReadFrame, but not with
// itself. ReadFrame returns io.EOF when the peer closed the channel
// cleanly; any other error is an abrupt close. Close must be safe to call
// more than once and must unblock pending reads and writes.
type Channel interface {
	WriteFrame(f Frame) error
	ReadFrame() (Frame, error)
	Close() error
}

// Dialer opens Channels for streaming sessions.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Channel, error)
}

// WebSocketDialer is the default Dialer, backed by gorilla/websocket.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the opening handshake. Zero means no limit
	// beyond the context deadline.
	HandshakeTimeout time.Duration
}

// Dial implements Dialer. A handshake rejected with an HTTP error status
// is reported as a service error carrying that status.
func (d *WebSocketDialer) Dial(ctx context.Context, url string, header http.Header) (Channel, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, parseError(body, resp.StatusCode, "Sessions.Connect")
		}
		return nil, connectionError("Sessions.Connect", err)
	}
	return &wsChannel{conn: conn}, nil
}

// wsChannel adapts a *websocket.Conn to Channel.
type wsChannel struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func (c *wsChannel) WriteFrame(f Frame) error {
	mt := websocket.TextMessage
	if f.Type == FrameBinary {
		mt = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(mt, f.Data)
}

func (c *wsChannel) ReadFrame() (Frame, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, io.EOF
			}
			return Frame{}, err
		}
		switch mt {
		case websocket.TextMessage:
			return Frame{Type: FrameText, Data: data}, nil
		case websocket.BinaryMessage:
			return Frame{Type: FrameBinary, Data: data}, nil
		}
	}
}

// Close sends a normal close frame on a best-effort basis, then closes the
// underlying connection.
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
