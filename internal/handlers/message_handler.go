package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/services"
)

// MessageHandler serves the persisted timeline and an HTTP send path for
// clients without a live connection.
type MessageHandler struct {
	messages *services.MessageService
	log      *logger.Logger
}

func NewMessageHandler(messages *services.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, log: log}
}

// History returns the group's messages oldest first. Members only.
func (h *MessageHandler) History(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	msgs, err := h.messages.History(groupID, c.GetUint("user_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, msgs)
}

type sendRequest struct {
	Content string `json:"content" binding:"required"`
}

// Send posts a message over HTTP. Delivery to live subscribers happens
// asynchronously, hence 202.
func (h *MessageHandler) Send(c *gin.Context) {
	groupID, err := pathID(c, "id")
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	msg, err := h.messages.Send(groupID, c.GetUint("user_id"), c.GetString("display_name"), req.Content)
	if err != nil {
		failErr(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "accepted",
		"data":    gin.H{"message_id": msg.ID},
	})
}
