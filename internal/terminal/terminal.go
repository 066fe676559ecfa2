// Package terminal is the door station controller. It owns the camera, the
// admin session and the status indicator, and runs one capture-driven
// operation at a time.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/your-org/doorguard/internal/auth"
	"github.com/your-org/doorguard/internal/capture"
	"github.com/your-org/doorguard/internal/enroll"
	"github.com/your-org/doorguard/internal/gallery"
	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/recognition"
	"github.com/your-org/doorguard/internal/schedule"
	"github.com/your-org/doorguard/internal/vision"
)

var (
	ErrNotAuthorized = errors.New("admin login required")
	ErrBusy          = errors.New("station busy")
)

// Broadcaster receives every status indicator change.
type Broadcaster interface {
	BroadcastStatus(models.Status)
}

type AccessLog interface {
	Recent(ctx context.Context, limit int) ([]models.AccessLogEntry, error)
}

type Deps struct {
	Source      capture.Source
	Gallery     *gallery.Store
	Enroller    *enroll.Pipeline
	Engine      *recognition.Engine
	Sink        recognition.Sink
	Logs        AccessLog
	Auth        auth.Authenticator
	Broadcaster Broadcaster
	// PreviewPace defaults to no delay.
	PreviewPace schedule.Factory
	LogLimit    int
	JPEGQuality int
}

type Terminal struct {
	deps    Deps
	session auth.Session
	now     func() time.Time

	// op admits one enrollment or recognition at a time; device guards reads.
	op     sync.Mutex
	device sync.Mutex

	statusMu sync.RWMutex
	status   models.Status

	previewMu sync.RWMutex
	preview   []byte
}

func New(deps Deps) *Terminal {
	if deps.PreviewPace == nil {
		deps.PreviewPace = schedule.NoDelay()
	}
	if deps.LogLimit <= 0 {
		deps.LogLimit = 10
	}
	if deps.JPEGQuality <= 0 {
		deps.JPEGQuality = 90
	}
	t := &Terminal{deps: deps, now: time.Now}
	t.status = models.Status{Phase: models.PhaseIdle, Message: "Ready.", At: t.now()}
	return t
}

// Login signs in an admin. On failure the session stays empty and the
// provider's message is returned unchanged.
func (t *Terminal) Login(ctx context.Context, identifier, secret string) (string, error) {
	subject, err := t.deps.Auth.SignIn(ctx, identifier, secret)
	if err != nil {
		slog.Warn("admin login failed", "identifier", identifier, "error", err)
		t.fail("Login failed: " + err.Error())
		return "", err
	}
	t.session.Set(subject)
	slog.Info("admin logged in", "subject", subject)
	t.setStatus(models.Status{Phase: models.PhaseIdle, Message: "Admin logged in."})
	return subject, nil
}

func (t *Terminal) Logout() {
	if subject := t.session.Subject(); subject != "" {
		slog.Info("admin logged out", "subject", subject)
	}
	t.session.Clear()
}

// Admin returns the signed-in admin, or "".
func (t *Terminal) Admin() string {
	return t.session.Subject()
}

// Session exposes the admin session to HTTP middleware.
func (t *Terminal) Session() *auth.Session {
	return &t.session
}

// Enroll captures and registers a new identity. Requires an admin session.
func (t *Terminal) Enroll(ctx context.Context, name string) (enroll.Result, error) {
	if !t.session.Active() {
		t.fail("Admin login required.")
		return enroll.Result{}, ErrNotAuthorized
	}
	release, err := t.acquire()
	if err != nil {
		return enroll.Result{}, err
	}
	defer release()

	res, err := t.deps.Enroller.Run(ctx, t.deps.Source, name, t.setStatus)
	if err != nil {
		slog.Warn("enrollment failed", "identity", name, "captured", res.Captured, "error", err)
		return res, err
	}
	return res, nil
}

// DeleteIdentity removes every encoding of name and its stored images.
// Requires an admin session.
func (t *Terminal) DeleteIdentity(ctx context.Context, name string) (int, error) {
	if !t.session.Active() {
		t.fail("Admin login required.")
		return 0, ErrNotAuthorized
	}
	if err := models.ValidateName(name); err != nil {
		t.fail(name + " not found.")
		return 0, fmt.Errorf("%q: %w", name, gallery.ErrNotFound)
	}

	removed, err := t.deps.Gallery.Remove(ctx, name)
	if err != nil {
		if errors.Is(err, gallery.ErrNotFound) {
			t.fail(name + " not found.")
		} else {
			t.fail("Deleting " + name + " failed.")
		}
		return 0, err
	}

	if err := os.RemoveAll(t.deps.Enroller.ImageDir(name)); err != nil {
		slog.Warn("remove identity images", "identity", name, "error", err)
	}

	slog.Info("identity deleted", "identity", name, "encodings", removed)
	t.setStatus(models.Status{Phase: models.PhaseIdle, Message: name + " deleted."})
	return removed, nil
}

// OpenDoor runs one recognition invocation against the current gallery.
func (t *Terminal) OpenDoor(ctx context.Context) (recognition.Result, error) {
	release, err := t.acquire()
	if err != nil {
		return recognition.Result{}, err
	}
	defer release()

	res := t.deps.Engine.Run(ctx, t.deps.Source, t.deps.Gallery.Snapshot(), t.deps.Sink, t.setStatus)
	slog.Info("door invocation finished",
		"state", res.State,
		"identity", res.Identity,
		"frames", res.FramesAttempted,
		"unknown_frames", res.UnknownFrames,
		"alerted", res.Alerted,
	)
	return res, nil
}

func (t *Terminal) acquire() (func(), error) {
	if !t.op.TryLock() {
		return nil, ErrBusy
	}
	t.device.Lock()
	return func() {
		t.device.Unlock()
		t.op.Unlock()
	}, nil
}

// RecentLogs returns up to limit access log entries, newest first. A limit
// of zero uses the configured default.
func (t *Terminal) RecentLogs(ctx context.Context, limit int) ([]models.AccessLogEntry, error) {
	if limit <= 0 {
		limit = t.deps.LogLimit
	}
	return t.deps.Logs.Recent(ctx, limit)
}

func (t *Terminal) Identities() []models.Identity {
	return t.deps.Gallery.Identities()
}

func (t *Terminal) Status() models.Status {
	t.statusMu.RLock()
	defer t.statusMu.RUnlock()
	return t.status
}

func (t *Terminal) fail(msg string) {
	t.setStatus(models.Status{Phase: models.PhaseFailed, Message: msg})
}

func (t *Terminal) setStatus(s models.Status) {
	if s.At.IsZero() {
		s.At = t.now()
	}
	t.statusMu.Lock()
	t.status = s
	t.statusMu.Unlock()

	if t.deps.Broadcaster != nil {
		t.deps.Broadcaster.BroadcastStatus(s)
	}
}

// RunPreview keeps the latest camera frame as JPEG until ctx is done. Ticks
// that find the device in use are skipped.
func (t *Terminal) RunPreview(ctx context.Context) {
	pacer, stop := t.deps.PreviewPace()
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedule.Loop(ctx, pacer, func(ctx context.Context) {
		if err := t.previewTick(ctx); err != nil {
			slog.Warn("preview stopped", "error", err)
			cancel()
		}
	})
}

// previewTick returns an error only when the camera is gone for good.
func (t *Terminal) previewTick(ctx context.Context) error {
	if !t.device.TryLock() {
		return nil
	}
	frame, err := t.deps.Source.ReadFrame(ctx)
	t.device.Unlock()
	if err != nil {
		if errors.Is(err, capture.ErrClosed) || errors.Is(err, capture.ErrSourceEnded) {
			return err
		}
		if !errors.Is(err, capture.ErrNoFrame) && ctx.Err() == nil {
			slog.Debug("preview frame unavailable", "error", err)
		}
		return nil
	}

	data, err := vision.JPEGBytes(frame, t.deps.JPEGQuality)
	if err != nil {
		slog.Warn("encode preview frame", "error", err)
		return nil
	}
	t.previewMu.Lock()
	t.preview = data
	t.previewMu.Unlock()
	return nil
}

// Preview returns the latest preview JPEG, or nil before the first frame.
func (t *Terminal) Preview() []byte {
	t.previewMu.RLock()
	defer t.previewMu.RUnlock()
	return t.preview
}
