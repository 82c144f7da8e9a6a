package reconciler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/ws"
)

// ErrConnClosed is returned by writes after Close.
var ErrConnClosed = errors.New("connection closed")

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Conn is the websocket side of a Session: one connection per logged-in
// user, frames multiplexing room subscriptions over it. It reconnects
// with exponential backoff and restores the current subscription, leaving
// history reconciliation to the Session (a resubscribe does not refetch).
type Conn struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *logger.Logger

	mu     sync.Mutex
	sock   *websocket.Conn
	group  uint
	closed bool

	events chan ws.ServerFrame
	done   chan struct{}
}

// Dial connects to url (ws:// or wss://) authenticating with the bearer
// token and starts the read loop.
func Dial(url, token string, log *logger.Logger) (*Conn, error) {
	c := &Conn{
		url:    url,
		header: http.Header{"Authorization": []string{"Bearer " + token}},
		dialer: websocket.DefaultDialer,
		log:    log,
		events: make(chan ws.ServerFrame, 64),
		done:   make(chan struct{}),
	}
	sock, _, err := c.dialer.Dial(c.url, c.header)
	if err != nil {
		return nil, err
	}
	c.sock = sock
	go c.readLoop()
	return c, nil
}

// Events exposes the inbound frame stream. The channel closes after Close.
func (c *Conn) Events() <-chan ws.ServerFrame {
	return c.events
}

// Subscribe records groupID as the subscription to restore on reconnect
// and sends the subscribe frame.
func (c *Conn) Subscribe(groupID uint) error {
	c.mu.Lock()
	c.group = groupID
	c.mu.Unlock()
	return c.write(&ws.ClientFrame{Type: ws.FrameSubscribe, GroupID: groupID})
}

// Unsubscribe clears the tracked subscription and sends the unsubscribe
// frame.
func (c *Conn) Unsubscribe() error {
	c.mu.Lock()
	c.group = 0
	c.mu.Unlock()
	return c.write(&ws.ClientFrame{Type: ws.FrameUnsubscribe})
}

// Send posts a message frame for groupID.
func (c *Conn) Send(groupID uint, content string) error {
	return c.write(&ws.ClientFrame{Type: ws.FrameMessage, GroupID: groupID, Content: content})
}

// Close tears the connection down and stops reconnecting.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sock := c.sock
	c.mu.Unlock()
	close(c.done)
	if sock != nil {
		return sock.Close()
	}
	return nil
}

func (c *Conn) write(frame *ws.ClientFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if c.sock == nil {
		return ErrConnClosed
	}
	c.sock.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.sock.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) readLoop() {
	defer close(c.events)
	for {
		c.mu.Lock()
		sock := c.sock
		c.mu.Unlock()

		for {
			_, raw, err := sock.ReadMessage()
			if err != nil {
				break
			}
			var frame ws.ServerFrame
			if err := json.Unmarshal(raw, &frame); err != nil {
				continue
			}
			select {
			case c.events <- frame:
			case <-c.done:
				return
			}
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect retries with exponential backoff until the dial succeeds or
// the connection is closed, then restores the current room subscription.
func (c *Conn) reconnect() bool {
	backoff := reconnectBase
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		sock, _, err := c.dialer.Dial(c.url, c.header)
		if err != nil {
			c.log.Warn("reconnect failed", zap.Duration("backoff", backoff), zap.Error(err))
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			sock.Close()
			return false
		}
		c.sock = sock
		group := c.group
		c.mu.Unlock()

		if group != 0 {
			if err := c.write(&ws.ClientFrame{Type: ws.FrameSubscribe, GroupID: group}); err != nil {
				c.log.Warn("resubscribe after reconnect failed", zap.Uint("group_id", group), zap.Error(err))
				continue
			}
		}
		c.log.Info("reconnected", zap.Uint("group_id", group))
		return true
	}
}
