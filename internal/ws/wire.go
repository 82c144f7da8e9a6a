package ws

import (
	"github.com/campuslink/groupchat/internal/models"
)

// Frame types exchanged over the single long-lived connection. Room
// subscription is a lightweight frame on that connection, never a new
// websocket.
const (
	// client -> server
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameMessage     = "message"

	// server -> client
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameEvent        = "event"
	FrameError        = "error"
)

// Error codes carried on FrameError.
const (
	CodeForbidden = "forbidden"
	CodeBadFrame  = "bad_frame"
	CodeInternal  = "internal"
)

// ClientFrame is a request from the client: join or leave a room, or send a
// message to the currently relevant group.
type ClientFrame struct {
	Type    string `json:"type"`
	GroupID uint   `json:"group_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// ServerFrame is what the broker pushes down: subscription acks, errors and
// live message events.
type ServerFrame struct {
	Type    string          `json:"type"`
	GroupID uint            `json:"group_id,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message *models.Message `json:"message,omitempty"`
}
