// Package effects carries out recognition decisions: audit entries and
// notifications.
package effects

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/your-org/doorguard/internal/models"
)

type Recorder interface {
	Record(ctx context.Context, identity string, frame image.Image, success bool) (models.AccessLogEntry, error)
}

type Notifier interface {
	Notify(ctx context.Context, topic, title, body, imageURL string)
}

type Executor struct {
	recorder   Recorder
	notifier   Notifier
	alertTopic string
}

func NewExecutor(recorder Recorder, notifier Notifier, alertTopic string) *Executor {
	return &Executor{recorder: recorder, notifier: notifier, alertTopic: alertTopic}
}

// Handle records the decision. An entry is logged as a success (the recorder
// sends the entry notification). An alert is logged as a failed attempt by
// the unknown identity and then announced on the alert topic with the
// evidence URL.
func (e *Executor) Handle(ctx context.Context, d models.Decision) error {
	switch d.Kind {
	case models.DecisionEntry:
		if _, err := e.recorder.Record(ctx, d.Identity, d.Frame, true); err != nil {
			return fmt.Errorf("record entry of %s: %w", d.Identity, err)
		}
		return nil

	case models.DecisionAlert:
		entry, err := e.recorder.Record(ctx, models.UnknownIdentity, d.Frame, false)
		if err != nil {
			// the alert still goes out; the audit failure is reported to the caller
			slog.Error("record alert", "error", err)
		}
		e.notifier.Notify(ctx, e.alertTopic, "Security Alert", "Unknown entry attempt.", entry.ImageURL)
		if err != nil {
			return fmt.Errorf("record alert: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown decision kind %q", d.Kind)
	}
}
