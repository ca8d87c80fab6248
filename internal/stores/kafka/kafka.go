package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Conf struct {
	client *kgo.Client
}

func NewConf(brokers []string) (*Conf, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}
	return &Conf{client: client}, nil
}

func (c *Conf) ProduceMessage(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := c.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message to %s: %w", topic, err)
	}
	return nil
}

func (c *Conf) Close() {
	c.client.Close()
}

// OrderPlaced implements the checkout orchestrator's EventPublisher.
func (c *Conf) OrderPlaced(ctx context.Context, orderID, userID string, total int64) error {
	data, err := json.Marshal(OrderPlacedEvent{
		OrderID:   orderID,
		UserID:    userID,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal order-placed event: %w", err)
	}
	return c.ProduceMessage(ctx, TopicOrderPlaced, []byte(orderID), data)
}

// OrderCancelled publishes the cancellation event after a successful status
// update to cancelled.
func (c *Conf) OrderCancelled(ctx context.Context, orderID string) error {
	data, err := json.Marshal(OrderCancelledEvent{
		OrderID:     orderID,
		CancelledAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal order-cancelled event: %w", err)
	}
	return c.ProduceMessage(ctx, TopicOrderCancelled, []byte(orderID), data)
}
