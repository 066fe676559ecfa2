// Package capture owns the station camera.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/doorguard/internal/config"
	"github.com/your-org/doorguard/internal/observability"
)

var (
	// ErrNoFrame is a transient read failure: no new frame arrived in time.
	ErrNoFrame = errors.New("no frame available")
	ErrClosed  = errors.New("camera closed")
	// ErrSourceEnded means the input stopped and restarts were exhausted.
	ErrSourceEnded = errors.New("capture source ended")
)

// Source yields decoded frames.
type Source interface {
	ReadFrame(ctx context.Context) (image.Image, error)
}

// Camera keeps the latest frame produced by a restarting ffmpeg process.
// Each ReadFrame returns a frame newer than the previous one.
type Camera struct {
	opts        Options
	readTimeout time.Duration
	maxRestarts int

	mu       sync.Mutex
	latest   []byte
	seq      uint64
	consumed uint64
	updated  chan struct{}
	failed   error

	cancel    context.CancelFunc
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newCamera(cfg config.CaptureConfig) *Camera {
	return &Camera{
		opts: Options{
			Device:      cfg.Device,
			InputFormat: cfg.InputFormat,
			FPS:         cfg.FPS,
			Width:       cfg.FrameWidth,
		},
		readTimeout: cfg.ReadTimeout,
		maxRestarts: cfg.MaxRestarts,
		updated:     make(chan struct{}),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
}

// Open starts capturing from cfg.Device. The camera must be closed exactly
// once by its owner; extra Close calls are no-ops.
func Open(ctx context.Context, cfg config.CaptureConfig) *Camera {
	c := newCamera(cfg)
	ctx, c.cancel = context.WithCancel(ctx)

	slog.Info("opening camera", "device", cfg.Device, "fps", cfg.FPS, "width", cfg.FrameWidth)
	go c.run(ctx)
	return c
}

func (c *Camera) run(ctx context.Context) {
	defer close(c.stopped)

	for attempt := 0; attempt <= c.maxRestarts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt)) * time.Second // 2s, 4s, 8s
			slog.Warn("restarting capture", "device", c.opts.Device, "attempt", attempt, "delay", delay)
			observability.CameraRestarts.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		extractor := &FFmpegExtractor{}
		err := extractor.StartExtraction(ctx, c.opts, c.publish)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			slog.Warn("capture input ended", "device", c.opts.Device)
			continue
		}
		slog.Error("capture failed", "device", c.opts.Device, "attempt", attempt, "error", err)
	}

	c.fail(fmt.Errorf("%w after %d restarts", ErrSourceEnded, c.maxRestarts))
}

func (c *Camera) publish(frame []byte) {
	c.mu.Lock()
	c.latest = frame
	c.seq++
	close(c.updated)
	c.updated = make(chan struct{})
	c.mu.Unlock()
}

func (c *Camera) fail(err error) {
	c.mu.Lock()
	c.failed = err
	close(c.updated)
	c.updated = make(chan struct{})
	c.mu.Unlock()
}

// ReadFrame waits up to the read timeout for a frame newer than the last one
// returned. A timeout yields ErrNoFrame.
func (c *Camera) ReadFrame(ctx context.Context) (image.Image, error) {
	timer := time.NewTimer(c.readTimeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.seq > c.consumed {
			data := c.latest
			c.consumed = c.seq
			c.mu.Unlock()

			img, err := jpeg.Decode(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("decode frame: %w", err)
			}
			return img, nil
		}
		if c.failed != nil {
			err := c.failed
			c.mu.Unlock()
			return nil, err
		}
		wait := c.updated
		c.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return nil, ErrNoFrame
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		}
	}
}

// Close stops capture and waits for ffmpeg to exit.
func (c *Camera) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
			<-c.stopped
		}
		slog.Info("camera released", "device", c.opts.Device)
	})
	return nil
}
