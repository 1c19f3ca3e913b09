package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &KafkaPublisher{writer: w}
}

// PublishOrderPlaced keys the message by session so events of one session
// stay ordered.
func (p *KafkaPublisher) PublishOrderPlaced(ctx context.Context, event OrderPlaced) error {
	value, err := encode(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.SessionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeOrderPlaced)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", EventTypeOrderPlaced, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Consumer reads OrderPlaced events so other storefront instances sharing
// the store can reload the cart of the ordering session.
type Consumer struct {
	reader  *kafka.Reader
	handler func(ctx context.Context, event OrderPlaced) error
	log     *zap.Logger
}

func NewConsumer(topic, groupID string, handler func(context.Context, OrderPlaced) error, log *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, handler: handler, log: log}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.log.Warn("error reading message", zap.Error(err))
			continue
		}
		c.handle(ctx, m)
	}
}

func (c *Consumer) handle(ctx context.Context, m kafka.Message) {
	event, ok, err := decode(m)
	if err != nil {
		c.log.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if err := c.handler(ctx, event); err != nil {
		c.log.Warn("order event handler failed",
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	}
}

// decode reports ok=false for messages of other event types.
func decode(m kafka.Message) (OrderPlaced, bool, error) {
	for _, h := range m.Headers {
		if h.Key == "event_type" && string(h.Value) != EventTypeOrderPlaced {
			return OrderPlaced{}, false, nil
		}
	}

	var event OrderPlaced
	if err := json.Unmarshal(m.Value, &event); err != nil {
		return OrderPlaced{}, false, err
	}
	if event.SessionID == "" {
		return OrderPlaced{}, false, errors.New("missing session_id")
	}
	return event, true, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
