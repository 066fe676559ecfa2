// Package notify fans notifications out to every configured publisher.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/observability"
)

// Publisher delivers a notification to the subscribers of its topic.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Dispatcher is best effort: publisher failures are logged and counted,
// never returned.
type Dispatcher struct {
	publishers []Publisher
	timeout    time.Duration
	now        func() time.Time
}

func NewDispatcher(timeout time.Duration, publishers ...Publisher) *Dispatcher {
	return &Dispatcher{publishers: publishers, timeout: timeout, now: time.Now}
}

func (d *Dispatcher) Notify(ctx context.Context, topic, title, body, imageURL string) {
	n := models.Notification{
		Topic:    topic,
		Title:    title,
		Body:     body,
		ImageURL: imageURL,
		At:       d.now(),
	}

	for _, p := range d.publishers {
		if err := d.publish(ctx, p, n); err != nil {
			observability.NotificationsSent.WithLabelValues(topic, "failed").Inc()
			slog.Warn("publish notification", "publisher", fmt.Sprintf("%T", p), "topic", topic, "error", err)
			continue
		}
		observability.NotificationsSent.WithLabelValues(topic, "ok").Inc()
	}
}

func (d *Dispatcher) publish(ctx context.Context, p Publisher, n models.Notification) (err error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	return p.Publish(ctx, n)
}
