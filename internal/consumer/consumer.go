package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	logger "github.com/campuslink/groupchat/middleware/log"

	"github.com/campuslink/groupchat/internal/models"
	"github.com/campuslink/groupchat/internal/services"
)

// MessageConsumer drains the message topic: each record is a fully-formed
// message (the producer already assigned its ID and timestamp), so the
// consumer only persists and fans out. Partitioning by group ID means one
// consumer sees a group's messages in order.
type MessageConsumer struct {
	messages *services.MessageService
	log      *logger.Logger
}

func NewMessageConsumer(messages *services.MessageService, log *logger.Logger) *MessageConsumer {
	return &MessageConsumer{messages: messages, log: log}
}

// DecodeMessage parses a topic record back into a message and checks the
// fields the pipeline depends on.
func DecodeMessage(value []byte) (*models.Message, error) {
	var msg models.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message record: %w", err)
	}
	if msg.ID == 0 || msg.GroupID == 0 || msg.SenderID == 0 {
		return nil, fmt.Errorf("message record missing required fields")
	}
	return &msg, nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (c *MessageConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines
// have exited.
func (c *MessageConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim persists and broadcasts each record. Malformed records are
// logged and skipped; a persistence failure is also marked consumed to
// avoid wedging the partition on a poison record.
func (c *MessageConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		msg, err := DecodeMessage(record.Value)
		if err != nil {
			c.log.Warn("skipping malformed record",
				zap.String("topic", record.Topic),
				zap.Int64("offset", record.Offset),
				zap.Error(err))
			session.MarkMessage(record, "")
			continue
		}

		if err := c.messages.SaveAndBroadcast(msg); err != nil {
			c.log.Error("persist consumed message failed",
				zap.Int64("message_id", msg.ID),
				zap.Uint("group_id", msg.GroupID),
				zap.Error(err))
		}
		session.MarkMessage(record, "")
	}
	return nil
}

// StartConsumer joins the consumer group and consumes until ctx is done.
func StartConsumer(ctx context.Context, brokers []string, groupID, topic string, consumer *MessageConsumer, log *logger.Logger) error {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	go func() {
		defer client.Close()
		for {
			if err := client.Consume(ctx, []string{topic}, consumer); err != nil {
				log.Error("consumer group error", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return nil
}
