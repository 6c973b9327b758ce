package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/wakecall/pkg/errorsx"
	"github.com/harunnryd/wakecall/pkg/logging"
	"github.com/harunnryd/wakecall/pkg/redact"
)

// Channel is an open realtime connection.
type Channel interface {
	Send(v any) error
	Close() error
}

// ChannelHandler receives frames from a channel's read loop.
type ChannelHandler interface {
	OnMessage(data []byte)
	// OnClosed fires once when the read loop exits; err is nil for a clean close.
	OnClosed(err error)
}

// Dialer opens channels.
type Dialer interface {
	Dial(ctx context.Context, rawURL, token string, h ChannelHandler) (Channel, error)
}

// WSDialer dials the platform's websocket endpoint.
type WSDialer struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

func (d WSDialer) Dial(ctx context.Context, rawURL, token string, h ChannelHandler) (Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errorsx.Newf(errorsx.ReasonChannelOpen, "realtime: parse url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	target := u.String()
	logging.NewComponentLogger(d.Logger, "realtime_channel").Debug("channel_dialing", slog.String("url", redact.URL(target)))

	dialer := websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(dialCtx, target, nil)
	if err != nil {
		if clean := redact.Credentials(err.Error()); clean != err.Error() {
			err = errors.New(clean)
		}
		if resp != nil {
			err = fmt.Errorf("realtime: dial failed (status %d): %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("realtime: dial failed: %w", err)
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonChannelOpen)
	}

	ch := &wsChannel{conn: conn, handler: h, done: make(chan struct{})}
	go ch.readLoop()
	return ch, nil
}

type wsChannel struct {
	conn    *websocket.Conn
	handler ChannelHandler
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (c *wsChannel) Send(v any) error {
	if c.closed.Load() {
		return errorsx.Newf(errorsx.ReasonChannelSend, "realtime: channel closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonChannelSend)
	}
	return nil
}

// Close sends a close frame and releases the socket. It does not wait for
// the read loop, so it is safe to call from a handler.
func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		if cerr := c.conn.Close(); cerr != nil {
			err = errorsx.Wrap(cerr, errorsx.ReasonChannelClose)
		}
	})
	return err
}

func (c *wsChannel) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.handler.OnClosed(nil)
				return
			}
			c.handler.OnClosed(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handler.OnMessage(data)
	}
}
