package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AccelByte/extend-proactive-intervention/pkg/dispatch"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const defaultChannelHint = "push"

// MessageWriter is the part of kafka.Writer the channel needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// deliveryMessage is the payload consumed by the transport workers.
type deliveryMessage struct {
	ReceiptID string    `json:"receiptId"`
	UserID    string    `json:"userId"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	SentAt    time.Time `json:"sentAt"`
}

// KafkaChannel hands messages to channel workers through one topic per
// channel hint.
type KafkaChannel struct {
	writer MessageWriter
	cfg    KafkaChannelConfig
	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

type KafkaChannelConfig struct {
	TopicPrefix    string
	DefaultChannel string
}

// NewKafkaWriter creates a writer without a fixed topic so each message can
// carry its own.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaChannel(writer MessageWriter, cfg KafkaChannelConfig) *KafkaChannel {
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = defaultChannelHint
	}
	return &KafkaChannel{
		writer: writer,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Topic returns the topic for a channel hint.
func (c *KafkaChannel) Topic(channelHint string) string {
	if channelHint == "" {
		channelHint = c.cfg.DefaultChannel
	}
	return c.cfg.TopicPrefix + channelHint
}

// Deliver publishes the message keyed by user so one user's messages stay
// ordered within a partition.
func (c *KafkaChannel) Deliver(ctx context.Context, userID, message, channelHint string) (dispatch.Receipt, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return dispatch.Receipt{}, fmt.Errorf("delivery channel closed")
	}
	c.mu.Unlock()

	if channelHint == "" {
		channelHint = c.cfg.DefaultChannel
	}
	receipt := dispatch.Receipt{
		ID:      uuid.New().String(),
		Channel: channelHint,
		SentAt:  c.now(),
	}

	value, err := json.Marshal(deliveryMessage{
		ReceiptID: receipt.ID,
		UserID:    userID,
		Channel:   channelHint,
		Message:   message,
		SentAt:    receipt.SentAt,
	})
	if err != nil {
		return dispatch.Receipt{}, fmt.Errorf("failed to marshal delivery: %w", err)
	}

	err = c.writer.WriteMessages(ctx, kafka.Message{
		Topic: c.Topic(channelHint),
		Key:   []byte(userID),
		Value: value,
	})
	if err != nil {
		return dispatch.Receipt{}, fmt.Errorf("failed to publish delivery: %w", err)
	}
	return receipt, nil
}

// Close closes the underlying writer once.
func (c *KafkaChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.writer.Close()
}
