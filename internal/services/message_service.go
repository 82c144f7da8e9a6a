package services

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/repositories"
	"github.com/campuslink/groupchat/utils/snowflake"
)

// Broadcaster delivers a persisted message to the group's live room. The
// websocket hub implements it; tests substitute a recorder.
type Broadcaster interface {
	Publish(groupID uint, msg *models.Message)
}

// Producer hands a message to the async ingest pipeline (Kafka). When no
// producer is configured the service persists and broadcasts directly.
type Producer interface {
	Publish(key string, value any) error
}

// MessageService owns the send path and the history fetch. Messages are
// append-only; the broker never persists, and senders see their own messages
// only through the live event path.
type MessageService struct {
	messages   repositories.MessageStore
	membership *MembershipService
	ids        *snowflake.Generator
	producer   Producer
	broadcast  Broadcaster
	log        *logger.Logger
}

func NewMessageService(
	messages repositories.MessageStore,
	membership *MembershipService,
	ids *snowflake.Generator,
	producer Producer,
	broadcast Broadcaster,
	log *logger.Logger,
) *MessageService {
	return &MessageService{
		messages:   messages,
		membership: membership,
		ids:        ids,
		producer:   producer,
		broadcast:  broadcast,
		log:        log,
	}
}

// History returns the group's full ordered message history. Only current
// members may read it; the check runs at call time.
func (s *MessageService) History(groupID, userID uint) ([]models.Message, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if !s.membership.IsMember(groupID, userID) {
		return nil, ErrNotMember
	}
	return s.messages.ListGroupMessages(groupID)
}

// Send assigns the server-side identifier and hands the message to the
// ingest pipeline. It does not wait for delivery: the authoritative copy
// reaches the sender through the live room like any other subscriber.
func (s *MessageService) Send(groupID, userID uint, senderName, content string) (*models.Message, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if !s.membership.IsMember(groupID, userID) {
		return nil, ErrNotMember
	}

	id, err := s.ids.NextID()
	if err != nil {
		return nil, err
	}
	msg := &models.Message{
		ID:         id,
		GroupID:    groupID,
		SenderID:   userID,
		SenderName: senderName,
		Content:    content,
		CreatedAt:  time.Now(),
	}

	if s.producer != nil {
		// Key by group so Kafka preserves per-group ordering.
		if err := s.producer.Publish(strconv.FormatUint(uint64(groupID), 10), msg); err != nil {
			s.log.Warn("message produce failed, falling back to direct write",
				zap.Int64("message_id", msg.ID), zap.Error(err))
			if err := s.SaveAndBroadcast(msg); err != nil {
				return nil, err
			}
		}
		return msg, nil
	}
	if err := s.SaveAndBroadcast(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// SaveAndBroadcast persists the message and fans it out to the live room.
// It is the terminal step of both the direct path and the Kafka consumer.
func (s *MessageService) SaveAndBroadcast(msg *models.Message) error {
	if err := s.messages.CreateMessage(msg); err != nil {
		return err
	}
	if s.broadcast != nil {
		s.broadcast.Publish(msg.GroupID, msg)
	}
	return nil
}
