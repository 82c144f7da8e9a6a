package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/services"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxFrameSize = 4096

	// Per-connection outbound buffer.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// MessageSender is the send path the broker hands inbound message frames
// to. The message service implements it.
type MessageSender interface {
	Send(groupID, userID uint, senderName, content string) (*models.Message, error)
}

// Client is one long-lived websocket connection. It lives for the whole
// session and carries room subscriptions as frames; groupID is its current
// room (0 when unsubscribed), guarded by the hub mutex.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *ServerFrame

	userID      uint
	displayName string
	groupID     uint

	sender MessageSender
	log    *logger.Logger
}

// enqueue attempts a non-blocking push to the outbound buffer. Callers hold
// the hub mutex; a false return means the consumer is too slow.
func (c *Client) enqueue(frame *ServerFrame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.hub.refreshPresence(c)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", zap.Uint("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.enqueue(&ServerFrame{Type: FrameError, Code: CodeBadFrame})
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *Client) handleFrame(frame *ClientFrame) {
	switch frame.Type {
	case FrameSubscribe:
		if err := c.hub.Subscribe(c, frame.GroupID); err != nil {
			code := CodeInternal
			if errors.Is(err, ErrForbidden) {
				code = CodeForbidden
			}
			c.enqueue(&ServerFrame{Type: FrameError, GroupID: frame.GroupID, Code: code})
		}
	case FrameUnsubscribe:
		c.hub.Unsubscribe(c)
	case FrameMessage:
		// Fire-and-forget: no success frame. The authoritative copy comes
		// back through the room like it does for every other subscriber.
		if _, err := c.sender.Send(frame.GroupID, c.userID, c.displayName, frame.Content); err != nil {
			code := CodeInternal
			if errors.Is(err, services.ErrNotMember) || errors.Is(err, services.ErrForbidden) {
				code = CodeForbidden
			}
			c.enqueue(&ServerFrame{Type: FrameError, GroupID: frame.GroupID, Code: code})
		}
	default:
		c.enqueue(&ServerFrame{Type: FrameError, Code: CodeBadFrame})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := json.NewEncoder(w).Encode(frame); err != nil {
				w.Close()
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades the request and registers the connection with the hub.
// Authentication happened in middleware; the identity on the context is the
// one every frame on this connection is attributed to.
func ServeWS(hub *Hub, sender MessageSender, log *logger.Logger, c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	displayName := c.GetString("display_name")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan *ServerFrame, sendBuffer),
		userID:      userID,
		displayName: displayName,
		sender:      sender,
		log:         log,
	}
	hub.register(client)

	go client.writePump()
	go client.readPump()
}
