package terminal

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/doorguard/internal/audit"
	"github.com/your-org/doorguard/internal/auth"
	"github.com/your-org/doorguard/internal/capture"
	"github.com/your-org/doorguard/internal/effects"
	"github.com/your-org/doorguard/internal/enroll"
	"github.com/your-org/doorguard/internal/gallery"
	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/notify"
	"github.com/your-org/doorguard/internal/recognition"
	"github.com/your-org/doorguard/internal/schedule"
	"github.com/your-org/doorguard/internal/storage"
	"github.com/your-org/doorguard/internal/vision"
)

type camera struct {
	mu     sync.Mutex
	closed bool
}

func (c *camera) ReadFrame(context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, capture.ErrClosed
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(3, 3, color.RGBA{R: 255, A: 255})
	return img, nil
}

// analyzer sees one face on every frame and embeds it as face.
type analyzer struct {
	mu   sync.Mutex
	face []float32
}

func (a *analyzer) set(face []float32) {
	a.mu.Lock()
	a.face = face
	a.mu.Unlock()
}

func (a *analyzer) DetectRegions(image.Image) ([]vision.Region, error) {
	return []vision.Region{{BBox: [4]float32{0, 0, 8, 8}, Confidence: 0.99}}, nil
}

func (a *analyzer) Embed(image.Image, []vision.Region) ([][]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return [][]float32{a.face}, nil
}

type blobStore struct{}

func (blobStore) Upload(_ context.Context, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}
	return "https://blobs.test/" + filepath.Base(localPath), nil
}

type logStore struct {
	mu      sync.Mutex
	entries []models.AccessLogEntry
}

func (s *logStore) AppendAccessLog(ctx context.Context, e *models.AccessLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *logStore) RecentAccessLogs(_ context.Context, limit int) ([]models.AccessLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AccessLogEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

type publisher struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (p *publisher) Publish(_ context.Context, n models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return nil
}

func (p *publisher) all() []models.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Notification(nil), p.sent...)
}

type authenticator struct{}

func (authenticator) SignIn(_ context.Context, id, secret string) (string, error) {
	if secret != "hunter2" {
		return "", &auth.Error{Code: 400, Message: "INVALID_PASSWORD"}
	}
	return "uid-" + id, nil
}

type statusLog struct {
	mu     sync.Mutex
	all    []models.Status
	onSend func(models.Status)
}

func (l *statusLog) BroadcastStatus(s models.Status) {
	l.mu.Lock()
	l.all = append(l.all, s)
	hook := l.onSend
	l.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

func (l *statusLog) last() models.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.all[len(l.all)-1]
}

type station struct {
	term      *Terminal
	analyzer  *analyzer
	camera    *camera
	logs      *logStore
	published *publisher
	statuses  *statusLog
	backend   *storage.FileGallery
	knownDir  string
}

func newStation(t *testing.T) *station {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	backend := storage.NewFileGallery(filepath.Join(dir, "known_faces_encodings.gob"))
	store, err := gallery.Open(ctx, backend)
	require.NoError(t, err)

	st := &station{
		analyzer:  &analyzer{},
		camera:    &camera{},
		logs:      &logStore{},
		published: &publisher{},
		statuses:  &statusLog{},
		backend:   backend,
		knownDir:  filepath.Join(dir, "known_faces"),
	}

	dispatcher := notify.NewDispatcher(time.Second, st.published)
	writer := audit.NewWriter(blobStore{}, st.logs, dispatcher, audit.Options{
		TempDir:     filepath.Join(dir, "temp"),
		EntryTopic:  "entry_notifications",
		JPEGQuality: 80,
	})

	st.term = New(Deps{
		Source:  st.camera,
		Gallery: store,
		Enroller: enroll.NewPipeline(st.analyzer, store, enroll.Params{
			ImageCount:  7,
			FrameReduce: 0.25,
			KnownDir:    st.knownDir,
			JPEGQuality: 80,
		}, schedule.NoDelay()),
		Engine: recognition.NewEngine(st.analyzer, recognition.Params{
			MaxFrames:      200,
			AlertThreshold: 10,
			Tolerance:      0.5,
			FrameReduce:    0.25,
		}),
		Sink:        effects.NewExecutor(writer, dispatcher, "intruder_alerts"),
		Logs:        writer,
		Auth:        authenticator{},
		Broadcaster: st.statuses,
	})
	return st
}

func (st *station) enroll(t *testing.T, name string, face []float32) {
	t.Helper()
	if st.term.Admin() == "" {
		_, err := st.term.Login(context.Background(), "admin@example.com", "hunter2")
		require.NoError(t, err)
	}
	st.analyzer.set(face)
	res, err := st.term.Enroll(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, 7, res.Encodings)
}

func TestTerminal_EnrollAndRecognizeAlice(t *testing.T) {
	st := newStation(t)
	ctx := context.Background()

	_, err := st.term.Enroll(ctx, "Alice")
	require.ErrorIs(t, err, ErrNotAuthorized)

	st.enroll(t, "Alice", []float32{0, 0})
	assert.Equal(t, []models.Identity{{Name: "Alice", Encodings: 7}}, st.term.Identities())
	assert.Equal(t, "Alice registered.", st.term.Status().Message)

	persisted, err := st.backend.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, persisted.Len())

	images, err := os.ReadDir(filepath.Join(st.knownDir, "Alice"))
	require.NoError(t, err)
	assert.Len(t, images, 7)

	st.analyzer.set([]float32{0.1, 0})
	res, err := st.term.OpenDoor(ctx)
	require.NoError(t, err)
	assert.Equal(t, recognition.StateRecognized, res.State)
	assert.Equal(t, "Alice", res.Identity)
	assert.Equal(t, 1, res.FramesAttempted)

	logs, err := st.term.RecentLogs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Alice", logs[0].Name)
	assert.True(t, logs[0].Success)
	assert.NotEmpty(t, logs[0].ImageURL)

	sent := st.published.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "entry_notifications", sent[0].Topic)
	assert.Equal(t, "Door Opened", sent[0].Title)
	assert.Equal(t, "Alice entered.", sent[0].Body)

	assert.Equal(t, models.PhaseRecognized, st.term.Status().Phase)
	assert.Equal(t, "Welcome Alice", st.term.Status().Message)
}

func TestTerminal_IntruderAlert(t *testing.T) {
	st := newStation(t)
	ctx := context.Background()
	st.enroll(t, "Alice", []float32{0, 0})

	st.analyzer.set([]float32{5, 5})
	res, err := st.term.OpenDoor(ctx)
	require.NoError(t, err)
	assert.Equal(t, recognition.StateAlerted, res.State)
	assert.True(t, res.Alerted)
	assert.Equal(t, 200, res.FramesAttempted)

	logs, err := st.term.RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.UnknownIdentity, logs[0].Name)
	assert.False(t, logs[0].Success)
	assert.NotEmpty(t, logs[0].ImageURL)

	sent := st.published.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "intruder_alerts", sent[0].Topic)
	assert.Equal(t, "Security Alert", sent[0].Title)
	assert.Equal(t, "Unknown entry attempt.", sent[0].Body)
	assert.Equal(t, logs[0].ImageURL, sent[0].ImageURL)

	assert.Equal(t, models.PhaseAlerted, st.term.Status().Phase)
}

func TestTerminal_NeverEndsOnScanning(t *testing.T) {
	st := newStation(t)
	st.analyzer.set([]float32{1, 1})

	_, err := st.term.OpenDoor(context.Background())
	require.NoError(t, err)

	st.statuses.mu.Lock()
	defer st.statuses.mu.Unlock()
	require.NotEmpty(t, st.statuses.all)
	assert.Equal(t, "Scanning...", st.statuses.all[0].Message)
	assert.True(t, st.statuses.all[len(st.statuses.all)-1].Terminal())
	assert.True(t, st.term.Status().Terminal())
}

func TestTerminal_LoginFailureKeepsSessionEmpty(t *testing.T) {
	st := newStation(t)

	_, err := st.term.Login(context.Background(), "admin@example.com", "wrong")
	var authErr *auth.Error
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "INVALID_PASSWORD", authErr.Message)
	assert.Empty(t, st.term.Admin())
	assert.Equal(t, models.PhaseFailed, st.term.Status().Phase)
	assert.Equal(t, "Login failed: INVALID_PASSWORD", st.statuses.last().Message)

	subject, err := st.term.Login(context.Background(), "admin@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "uid-admin@example.com", subject)

	st.term.Logout()
	assert.Empty(t, st.term.Admin())
}

func TestTerminal_DeleteIdentity(t *testing.T) {
	st := newStation(t)
	ctx := context.Background()
	st.enroll(t, "Alice", []float32{0, 0})
	st.enroll(t, "Bob", []float32{3, 3})

	removed, err := st.term.DeleteIdentity(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, 7, removed)
	assert.Equal(t, []models.Identity{{Name: "Bob", Encodings: 7}}, st.term.Identities())
	assert.NoDirExists(t, filepath.Join(st.knownDir, "Alice"))
	assert.DirExists(t, filepath.Join(st.knownDir, "Bob"))

	_, err = st.term.DeleteIdentity(ctx, "Alice")
	assert.ErrorIs(t, err, gallery.ErrNotFound)
	assert.Equal(t, models.Status{Phase: models.PhaseFailed, Message: "Alice not found."}, withoutTime(st.term.Status()))

	_, err = st.term.DeleteIdentity(ctx, "../Bob")
	assert.ErrorIs(t, err, gallery.ErrNotFound)

	st.term.Logout()
	_, err = st.term.DeleteIdentity(ctx, "Bob")
	assert.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, "Admin login required.", st.term.Status().Message)
}

func withoutTime(s models.Status) models.Status {
	s.At = time.Time{}
	return s
}

func TestTerminal_DuplicateEnrollment(t *testing.T) {
	st := newStation(t)
	st.enroll(t, "Alice", []float32{0, 0})

	_, err := st.term.Enroll(context.Background(), "Alice")
	assert.ErrorIs(t, err, gallery.ErrDuplicate)
	assert.Equal(t, []models.Identity{{Name: "Alice", Encodings: 7}}, st.term.Identities())
}

func TestTerminal_BusyRejectsSecondInvocation(t *testing.T) {
	st := newStation(t)
	st.term.op.Lock()
	defer st.term.op.Unlock()

	_, err := st.term.OpenDoor(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestTerminal_Preview(t *testing.T) {
	st := newStation(t)
	assert.Nil(t, st.term.Preview())

	require.NoError(t, st.term.previewTick(context.Background()))
	data := st.term.Preview()
	require.NotEmpty(t, data)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestTerminal_PreviewSkipsWhileDeviceBusy(t *testing.T) {
	st := newStation(t)
	st.term.device.Lock()
	require.NoError(t, st.term.previewTick(context.Background()))
	st.term.device.Unlock()
	assert.Nil(t, st.term.Preview())
}

func TestTerminal_RunPreviewStopsWhenCameraCloses(t *testing.T) {
	st := newStation(t)
	st.camera.mu.Lock()
	st.camera.closed = true
	st.camera.mu.Unlock()

	done := make(chan struct{})
	go func() {
		st.term.RunPreview(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("preview did not stop")
	}
}

func TestTerminal_IntruderAuditSurvivesClientDisconnect(t *testing.T) {
	st := newStation(t)
	st.enroll(t, "Alice", []float32{0, 0})
	st.analyzer.set([]float32{5, 5})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st.statuses.mu.Lock()
	st.statuses.onSend = func(s models.Status) {
		if s.Phase == models.PhaseAlerted {
			cancel()
		}
	}
	st.statuses.mu.Unlock()

	_, err := st.term.OpenDoor(ctx)
	require.NoError(t, err)

	logs, err := st.term.RecentLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.UnknownIdentity, logs[0].Name)
	require.Len(t, st.published.all(), 1)
	assert.Equal(t, "intruder_alerts", st.published.all()[0].Topic)
}
