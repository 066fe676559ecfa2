// Package enroll captures face images for a new identity and commits their
// encodings to the gallery.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/your-org/doorguard/internal/capture"
	"github.com/your-org/doorguard/internal/gallery"
	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/observability"
	"github.com/your-org/doorguard/internal/schedule"
	"github.com/your-org/doorguard/internal/vision"
)

var (
	// ErrEncodingFailed means no captured image produced an embedding. The
	// gallery is left untouched.
	ErrEncodingFailed   = errors.New("encoding failed")
	ErrAttemptsExceeded = errors.New("enrollment attempts exceeded")
)

type Analyzer interface {
	DetectRegions(img image.Image) ([]vision.Region, error)
	Embed(img image.Image, regions []vision.Region) ([][]float32, error)
}

// Gallery is the part of gallery.Store enrollment needs.
type Gallery interface {
	Contains(name string) bool
	Insert(ctx context.Context, name string, encodings [][]float32) error
}

type Reporter func(models.Status)

type Params struct {
	ImageCount int
	// MaxAttempts caps frames read per run; 0 means no cap.
	MaxAttempts int
	FrameReduce float64
	KnownDir    string
	JPEGQuality int
}

type Result struct {
	Name      string
	Captured  int
	Attempts  int
	Encodings int
}

type Pipeline struct {
	analyzer Analyzer
	gallery  Gallery
	params   Params
	pace     schedule.Factory
}

func NewPipeline(analyzer Analyzer, g Gallery, params Params, pace schedule.Factory) *Pipeline {
	if pace == nil {
		pace = schedule.NoDelay()
	}
	return &Pipeline{analyzer: analyzer, gallery: g, params: params, pace: pace}
}

// ImageDir is where the captured images of name are kept.
func (p *Pipeline) ImageDir(name string) string {
	return filepath.Join(p.params.KnownDir, name)
}

// Run enrolls name from frames read off source. Frames without a detectable
// face are retried without limit unless MaxAttempts is set.
func (p *Pipeline) Run(ctx context.Context, source capture.Source, name string, report Reporter) (Result, error) {
	if report == nil {
		report = func(models.Status) {}
	}
	res := Result{Name: name}
	total := p.params.ImageCount

	fail := func(outcome, msg string, err error) (Result, error) {
		observability.EnrollmentOutcomes.WithLabelValues(outcome).Inc()
		report(models.Status{Phase: models.PhaseFailed, Message: msg, Current: res.Captured, Total: total})
		return res, err
	}

	if err := models.ValidateName(name); err != nil {
		return fail("invalid", "Invalid name.", err)
	}
	if p.gallery.Contains(name) {
		return fail("duplicate", name+" already exists.", fmt.Errorf("%q: %w", name, gallery.ErrDuplicate))
	}

	dir := p.ImageDir(name)
	if err := os.RemoveAll(dir); err != nil {
		return fail("error", "Storage error.", fmt.Errorf("clear image directory: %w", err))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("error", "Storage error.", fmt.Errorf("create image directory: %w", err))
	}
	committed := false
	defer func() {
		if !committed {
			if err := os.RemoveAll(dir); err != nil {
				slog.Warn("remove enrollment images", "dir", dir, "error", err)
			}
		}
	}()

	report(models.Status{Phase: models.PhaseEnrolling, Message: fmt.Sprintf("Capturing %d images...", total), Total: total})

	paths, err := p.capture(ctx, source, dir, &res, report)
	if err != nil {
		if errors.Is(err, ErrAttemptsExceeded) {
			return fail("attempts_exceeded", "Face not captured, giving up.", err)
		}
		return fail("error", "Capture stopped.", err)
	}

	report(models.Status{Phase: models.PhaseEnrolling, Message: "Encoding data...", Current: res.Captured, Total: total})

	encodings := p.encode(paths)
	res.Encodings = len(encodings)
	if len(encodings) == 0 {
		return fail("encoding_failed", "Encoding failed.", fmt.Errorf("%q: %w", name, ErrEncodingFailed))
	}

	if err := p.gallery.Insert(ctx, name, encodings); err != nil {
		if errors.Is(err, gallery.ErrDuplicate) {
			return fail("duplicate", name+" already exists.", err)
		}
		return fail("error", "Saving failed.", fmt.Errorf("commit encodings: %w", err))
	}
	committed = true

	slog.Info("identity enrolled", "identity", name, "images", res.Captured, "encodings", res.Encodings, "attempts", res.Attempts)
	observability.EnrollmentOutcomes.WithLabelValues("registered").Inc()
	report(models.Status{Phase: models.PhaseRegistered, Message: name + " registered.", Current: res.Captured, Total: total})
	return res, nil
}

// capture collects ImageCount full-resolution frames that contain a face.
func (p *Pipeline) capture(ctx context.Context, source capture.Source, dir string, res *Result, report Reporter) ([]string, error) {
	total := p.params.ImageCount
	pacer, stop := p.pace()
	defer stop()

	paths := make([]string, 0, total)
	for res.Captured < total {
		if p.params.MaxAttempts > 0 && res.Attempts >= p.params.MaxAttempts {
			return nil, fmt.Errorf("%w: %d frames read, %d/%d captured", ErrAttemptsExceeded, res.Attempts, res.Captured, total)
		}
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}
		res.Attempts++

		frame, err := source.ReadFrame(ctx)
		if err != nil {
			observability.FramesProcessed.WithLabelValues("enrollment", "failed").Inc()
			if errors.Is(err, capture.ErrClosed) || errors.Is(err, capture.ErrSourceEnded) || ctx.Err() != nil {
				return nil, fmt.Errorf("read frame: %w", err)
			}
			continue
		}
		observability.FramesProcessed.WithLabelValues("enrollment", "read").Inc()

		regions, err := p.analyzer.DetectRegions(vision.Downscale(frame, p.params.FrameReduce))
		if err != nil {
			slog.Warn("detect faces", "error", err)
		}
		if len(regions) == 0 {
			report(models.Status{Phase: models.PhaseEnrolling, Message: "Face not detected, retrying...", Current: res.Captured, Total: total})
			continue
		}
		observability.FacesDetected.WithLabelValues("enrollment").Add(float64(len(regions)))

		path := filepath.Join(dir, strconv.Itoa(res.Captured)+".jpg")
		if err := p.writeImage(path, frame); err != nil {
			return nil, err
		}
		paths = append(paths, path)
		res.Captured++
		report(models.Status{Phase: models.PhaseEnrolling, Message: fmt.Sprintf("Captured %d/%d", res.Captured, total), Current: res.Captured, Total: total})
	}
	return paths, nil
}

func (p *Pipeline) writeImage(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if err := vision.EncodeJPEG(f, img, p.params.JPEGQuality); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close image: %w", err)
	}
	return nil
}

// encode embeds every stored image. Images that yield nothing are skipped.
func (p *Pipeline) encode(paths []string) [][]float32 {
	var encodings [][]float32
	for _, path := range paths {
		img, err := readImage(path)
		if err != nil {
			slog.Warn("read enrollment image", "path", path, "error", err)
			continue
		}
		embs, err := p.analyzer.Embed(img, nil)
		if err != nil {
			slog.Warn("embed enrollment image", "path", path, "error", err)
			continue
		}
		if len(embs) == 0 {
			slog.Debug("no embedding in enrollment image", "path", path)
			continue
		}
		encodings = append(encodings, embs[0])
	}
	return encodings
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}
