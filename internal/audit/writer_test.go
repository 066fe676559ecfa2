package audit

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorguard/internal/models"
)

type fakeBlobs struct {
	uploaded []string
	existed  []bool
	url      string
	err      error
}

func (b *fakeBlobs) Upload(_ context.Context, path string) (string, error) {
	_, statErr := os.Stat(path)
	b.uploaded = append(b.uploaded, filepath.Base(path))
	b.existed = append(b.existed, statErr == nil)
	if b.err != nil {
		return "", b.err
	}
	return b.url, nil
}

type fakeLogs struct {
	entries   []models.AccessLogEntry
	appendErr error
	// calls records the order of side effects shared with fakeNotifier
	calls *[]string
}

func (l *fakeLogs) AppendAccessLog(_ context.Context, e *models.AccessLogEntry) error {
	*l.calls = append(*l.calls, "append")
	if l.appendErr != nil {
		return l.appendErr
	}
	l.entries = append(l.entries, *e)
	return nil
}

func (l *fakeLogs) RecentAccessLogs(_ context.Context, limit int) ([]models.AccessLogEntry, error) {
	out := make([]models.AccessLogEntry, 0, limit)
	for i := len(l.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out, nil
}

type sent struct {
	topic, title, body, imageURL string
}

type fakeNotifier struct {
	sent  []sent
	calls *[]string
}

func (n *fakeNotifier) Notify(_ context.Context, topic, title, body, imageURL string) {
	*n.calls = append(*n.calls, "notify")
	n.sent = append(n.sent, sent{topic, title, body, imageURL})
}

type fixture struct {
	w        *Writer
	blobs    *fakeBlobs
	logs     *fakeLogs
	notifier *fakeNotifier
	calls    []string
	tempDir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{tempDir: filepath.Join(t.TempDir(), "temp")}
	f.blobs = &fakeBlobs{url: "https://blobs.example/evidence.jpg"}
	f.logs = &fakeLogs{calls: &f.calls}
	f.notifier = &fakeNotifier{calls: &f.calls}
	f.w = NewWriter(f.blobs, f.logs, f.notifier, Options{
		TempDir:     f.tempDir,
		EntryTopic:  "entry_notifications",
		JPEGQuality: 80,
	})
	f.w.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC) }
	return f
}

func frame() image.Image { return image.NewRGBA(image.Rect(0, 0, 8, 8)) }

func (f *fixture) tempFiles(t *testing.T) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	return entries
}

func TestRecord_SuccessNotifiesAfterAppend(t *testing.T) {
	f := newFixture(t)

	entry, err := f.w.Record(context.Background(), "Alice", frame(), true)
	require.NoError(t, err)

	assert.Equal(t, "Alice", entry.Name)
	assert.True(t, entry.Success)
	assert.Equal(t, "https://blobs.example/evidence.jpg", entry.ImageURL)
	require.Len(t, f.logs.entries, 1)

	assert.Equal(t, []string{"append", "notify"}, f.calls)
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, sent{"entry_notifications", "Door Opened", "Alice entered.", entry.ImageURL}, f.notifier.sent[0])

	require.Len(t, f.blobs.uploaded, 1)
	assert.True(t, f.blobs.existed[0])
	assert.Equal(t, "Alice_2024-05-01T08_30_15.000000.jpg", f.blobs.uploaded[0])
	assert.Empty(t, f.tempFiles(t))
}

func TestRecord_UploadFailureStillAppends(t *testing.T) {
	f := newFixture(t)
	f.blobs.err = errors.New("connection refused")

	entry, err := f.w.Record(context.Background(), "Alice", frame(), true)
	require.NoError(t, err)

	assert.Equal(t, "", entry.ImageURL)
	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, "", f.logs.entries[0].ImageURL)
	assert.Empty(t, f.tempFiles(t), "evidence file must be removed after a failed upload")
}

func TestRecord_UnknownDoesNotNotify(t *testing.T) {
	f := newFixture(t)

	_, err := f.w.Record(context.Background(), models.UnknownIdentity, frame(), false)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.sent)

	// even a "successful" unknown never produces an entry notification
	_, err = f.w.Record(context.Background(), models.UnknownIdentity, frame(), true)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.sent)

	_, err = f.w.Record(context.Background(), "Bob", frame(), false)
	require.NoError(t, err)
	assert.Empty(t, f.notifier.sent)
	assert.Len(t, f.logs.entries, 3)
}

func TestRecord_AppendFailureSkipsNotification(t *testing.T) {
	f := newFixture(t)
	f.logs.appendErr = errors.New("db down")

	_, err := f.w.Record(context.Background(), "Alice", frame(), true)
	require.Error(t, err)
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.tempFiles(t))
}

func TestRecord_NoFrame(t *testing.T) {
	f := newFixture(t)

	entry, err := f.w.Record(context.Background(), "Alice", nil, true)
	require.NoError(t, err)
	assert.Empty(t, entry.ImageURL)
	assert.Empty(t, f.blobs.uploaded)
}

func TestRecent(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := f.w.Record(context.Background(), name, nil, true)
		require.NoError(t, err)
	}

	entries, err := f.w.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)

	entries, err = f.w.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
