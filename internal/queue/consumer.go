package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/doorguard/internal/models"
)

type NotificationHandler func(ctx context.Context, n models.Notification) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// ConsumeNotifications relays new notifications to handler until ctx is done.
func (c *Consumer) ConsumeNotifications(ctx context.Context, consumerName string, handler NotificationHandler) error {
	stream, err := c.js.Stream(ctx, NotificationsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", NotificationsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: NotificationsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch notifications error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				n, err := DecodeNotification(msg.Data())
				if err != nil {
					slog.Error("unmarshal notification", "subject", msg.Subject(), "error", err)
					_ = msg.Term()
					continue
				}
				if err := handler(ctx, n); err != nil {
					slog.Error("relay notification", "topic", n.Topic, "error", err)
					_ = msg.Nak()
					continue
				}
				_ = msg.Ack()
			}
		}
	}()

	slog.Info("notification consumer started", "consumer", consumerName)
	return nil
}

func DecodeNotification(data []byte) (models.Notification, error) {
	var n models.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	if n.Topic == "" {
		return n, fmt.Errorf("decode notification: missing topic")
	}
	return n, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
