// Package audit records every door decision with its evidence image.
package audit

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/observability"
	"github.com/your-org/doorguard/internal/vision"
)

// BlobStore uploads a local file and returns a URL to retrieve it.
type BlobStore interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// LogStore is append-only storage for access log entries.
type LogStore interface {
	AppendAccessLog(ctx context.Context, entry *models.AccessLogEntry) error
	RecentAccessLogs(ctx context.Context, limit int) ([]models.AccessLogEntry, error)
}

// Notifier fans a message out to the subscribers of a topic.
type Notifier interface {
	Notify(ctx context.Context, topic, title, body, imageURL string)
}

type Options struct {
	TempDir     string
	EntryTopic  string
	JPEGQuality int
	// DefaultLimit applies to Recent when limit <= 0.
	DefaultLimit int
}

type Writer struct {
	blobs    BlobStore
	logs     LogStore
	notifier Notifier
	opts     Options
	now      func() time.Time
}

func NewWriter(blobs BlobStore, logs LogStore, notifier Notifier, opts Options) *Writer {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	return &Writer{blobs: blobs, logs: logs, notifier: notifier, opts: opts, now: time.Now}
}

// Record writes one access log entry for identity.
//
// The evidence frame goes through a temporary file to the blob store; any
// failure there leaves ImageURL empty and the entry is still appended. The
// temporary file is always removed. An entry notification is sent only after
// the entry is stored, and only for a successful known identity.
func (w *Writer) Record(ctx context.Context, identity string, frame image.Image, success bool) (models.AccessLogEntry, error) {
	at := w.now()
	entry := models.AccessLogEntry{
		ID:      uuid.New(),
		Name:    identity,
		Time:    at,
		Success: success,
	}

	entry.ImageURL = w.uploadEvidence(ctx, identity, at, frame)

	if err := w.logs.AppendAccessLog(ctx, &entry); err != nil {
		observability.AuditFailures.WithLabelValues("append").Inc()
		return entry, fmt.Errorf("append access log: %w", err)
	}
	slog.Info("access recorded", "identity", identity, "success", success, "image_url", entry.ImageURL)

	if success && identity != models.UnknownIdentity && w.notifier != nil {
		w.notifier.Notify(ctx, w.opts.EntryTopic, "Door Opened", identity+" entered.", entry.ImageURL)
	}
	return entry, nil
}

// Recent lists the newest entries first.
func (w *Writer) Recent(ctx context.Context, limit int) ([]models.AccessLogEntry, error) {
	if limit <= 0 {
		limit = w.opts.DefaultLimit
	}
	entries, err := w.logs.RecentAccessLogs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent access logs: %w", err)
	}
	return entries, nil
}

// uploadEvidence never fails: every problem degrades to an empty URL.
func (w *Writer) uploadEvidence(ctx context.Context, identity string, at time.Time, frame image.Image) string {
	if frame == nil || w.blobs == nil {
		return ""
	}

	path, err := w.writeTemp(identity, at, frame)
	if path != "" {
		defer func() {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				slog.Warn("remove evidence file", "path", path, "error", err)
			}
		}()
	}
	if err != nil {
		observability.AuditFailures.WithLabelValues("evidence").Inc()
		slog.Warn("write evidence file", "identity", identity, "error", err)
		return ""
	}

	url, err := w.blobs.Upload(ctx, path)
	if err != nil {
		observability.AuditFailures.WithLabelValues("upload").Inc()
		slog.Warn("upload evidence", "identity", identity, "error", err)
		return ""
	}
	return url
}

// writeTemp returns the path it created even when writing fails, so the
// caller can clean it up.
func (w *Writer) writeTemp(identity string, at time.Time, frame image.Image) (string, error) {
	if err := os.MkdirAll(w.opts.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(w.opts.TempDir, EvidenceFileName(identity, at))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}
	if err := vision.EncodeJPEG(f, frame, w.opts.JPEGQuality); err != nil {
		f.Close()
		return path, err
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("close evidence file: %w", err)
	}
	return path, nil
}

// EvidenceFileName is <identity>_<timestamp>.jpg with the colons of the
// timestamp replaced, so it is valid on every filesystem.
func EvidenceFileName(identity string, at time.Time) string {
	ts := strings.ReplaceAll(at.Format("2006-01-02T15:04:05.000000"), ":", "_")
	return identity + "_" + ts + ".jpg"
}
