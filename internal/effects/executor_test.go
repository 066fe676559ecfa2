package effects

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorguard/internal/models"
)

type recordCall struct {
	identity string
	success  bool
	hasFrame bool
}

type fakeRecorder struct {
	calls []recordCall
	err   error
}

func (r *fakeRecorder) Record(_ context.Context, identity string, frame image.Image, success bool) (models.AccessLogEntry, error) {
	r.calls = append(r.calls, recordCall{identity, success, frame != nil})
	if r.err != nil {
		return models.AccessLogEntry{Name: identity}, r.err
	}
	return models.AccessLogEntry{Name: identity, Success: success, ImageURL: "https://blobs/e.jpg"}, nil
}

type notification struct {
	topic, title, body, imageURL string
}

type fakeNotifier struct {
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, topic, title, body, imageURL string) {
	n.sent = append(n.sent, notification{topic, title, body, imageURL})
}

func evidence() image.Image { return image.NewGray(image.Rect(0, 0, 2, 2)) }

func TestHandle_Entry(t *testing.T) {
	rec, n := &fakeRecorder{}, &fakeNotifier{}
	x := NewExecutor(rec, n, "intruder_alerts")

	err := x.Handle(context.Background(), models.Decision{Kind: models.DecisionEntry, Identity: "Alice", Frame: evidence()})
	require.NoError(t, err)

	assert.Equal(t, []recordCall{{"Alice", true, true}}, rec.calls)
	assert.Empty(t, n.sent)
}

func TestHandle_Alert(t *testing.T) {
	rec, n := &fakeRecorder{}, &fakeNotifier{}
	x := NewExecutor(rec, n, "intruder_alerts")

	err := x.Handle(context.Background(), models.Decision{Kind: models.DecisionAlert, Identity: models.UnknownIdentity, Frame: evidence()})
	require.NoError(t, err)

	assert.Equal(t, []recordCall{{models.UnknownIdentity, false, true}}, rec.calls)
	assert.Equal(t, []notification{{"intruder_alerts", "Security Alert", "Unknown entry attempt.", "https://blobs/e.jpg"}}, n.sent)
}

func TestHandle_AlertStillNotifiesWhenAuditFails(t *testing.T) {
	rec, n := &fakeRecorder{err: errors.New("db down")}, &fakeNotifier{}
	x := NewExecutor(rec, n, "intruder_alerts")

	err := x.Handle(context.Background(), models.Decision{Kind: models.DecisionAlert, Frame: evidence()})
	require.Error(t, err)
	require.Len(t, n.sent, 1)
	assert.Empty(t, n.sent[0].imageURL)
}

func TestHandle_UnknownKind(t *testing.T) {
	x := NewExecutor(&fakeRecorder{}, &fakeNotifier{}, "intruder_alerts")
	assert.Error(t, x.Handle(context.Background(), models.Decision{Kind: "bogus"}))
}
