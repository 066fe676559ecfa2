// Package recognition decides, from a bounded run of camera frames, whether
// the person at the door is enrolled, unknown, or absent.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/your-org/doorguard/internal/capture"
	"github.com/your-org/doorguard/internal/models"
	"github.com/your-org/doorguard/internal/observability"
	"github.com/your-org/doorguard/internal/vision"
)

type State string

const (
	StateScanning   State = "scanning"
	StateRecognized State = "recognized"
	StateAlerted    State = "alerted"
	StateExhausted  State = "exhausted"
)

// Analyzer finds faces and turns them into embeddings.
type Analyzer interface {
	DetectRegions(img image.Image) ([]vision.Region, error)
	Embed(img image.Image, regions []vision.Region) ([][]float32, error)
}

// Sink carries out decisions. Its errors are logged and never stop a run.
type Sink interface {
	Handle(ctx context.Context, d models.Decision) error
}

// Reporter receives every status change of a run.
type Reporter func(models.Status)

type Params struct {
	MaxFrames      int
	AlertThreshold int
	Tolerance      float64
	FrameReduce    float64
	// CountOnlyReadFrames leaves failed captures out of the frame budget.
	CountOnlyReadFrames bool
}

// Result summarizes one run.
type Result struct {
	State           State
	Identity        string
	Distance        float64
	FramesAttempted int
	FramesRead      int
	UnknownFrames   int
	Alerted         bool
	Message         string
	Err             error
}

type Engine struct {
	analyzer Analyzer
	params   Params
	now      func() time.Time
}

func NewEngine(analyzer Analyzer, params Params) *Engine {
	return &Engine{analyzer: analyzer, params: params, now: time.Now}
}

// run holds the per-invocation state machine.
type run struct {
	e        *Engine
	ctx      context.Context
	gallery  models.Gallery
	sink     Sink
	report   Reporter
	result   Result
	streak   int
	evidence image.Image
	last     models.Status
}

// Run scans up to MaxFrames frames from source. A match stops the run at
// once. An unknown streak reaching AlertThreshold raises a single alert and
// scanning continues.
func (e *Engine) Run(ctx context.Context, source capture.Source, gallery models.Gallery, sink Sink, report Reporter) Result {
	if report == nil {
		report = func(models.Status) {}
	}
	r := &run{
		e:       e,
		ctx:     ctx,
		gallery: gallery,
		sink:    sink,
		report:  report,
		result:  Result{State: StateScanning, Distance: math.Inf(1)},
	}
	r.status(models.PhaseScanning, "Scanning...", 0)

	consecutiveFailures := 0
	for r.budgetLeft() {
		if err := ctx.Err(); err != nil {
			r.result.Err = err
			return r.finish(models.PhaseExhausted, "Cancelled.")
		}

		r.result.FramesAttempted++
		frame, err := source.ReadFrame(ctx)
		if err != nil {
			observability.FramesProcessed.WithLabelValues("recognition", "failed").Inc()
			if errors.Is(err, capture.ErrClosed) || errors.Is(err, capture.ErrSourceEnded) {
				r.result.Err = err
				return r.finish(models.PhaseFailed, "Camera unavailable.")
			}
			// a dead camera must not spin forever when failures are free
			consecutiveFailures++
			if e.params.CountOnlyReadFrames && consecutiveFailures >= e.params.MaxFrames {
				r.result.Err = fmt.Errorf("%d consecutive capture failures: %w", consecutiveFailures, err)
				break
			}
			slog.Debug("capture failed, skipping frame", "error", err)
			continue
		}
		consecutiveFailures = 0
		r.result.FramesRead++
		observability.FramesProcessed.WithLabelValues("recognition", "read").Inc()

		if r.examine(frame) {
			return r.result
		}
	}

	switch {
	case r.result.Alerted:
		return r.finish(models.PhaseAlerted, "ALERT!")
	case r.result.UnknownFrames == 0:
		return r.finish(models.PhaseExhausted, "Not recognized.")
	default:
		return r.finish(models.PhaseExhausted, r.last.Message)
	}
}

func (r *run) budgetLeft() bool {
	if r.e.params.CountOnlyReadFrames {
		return r.result.FramesRead < r.e.params.MaxFrames
	}
	return r.result.FramesAttempted < r.e.params.MaxFrames
}

// examine processes one frame and reports whether the run is over.
func (r *run) examine(frame image.Image) bool {
	small := vision.Downscale(frame, r.e.params.FrameReduce)

	var embeddings [][]float32
	regions, err := r.e.analyzer.DetectRegions(small)
	if err != nil {
		slog.Warn("detect faces", "error", err)
	}
	if len(regions) > 0 {
		observability.FacesDetected.WithLabelValues("recognition").Add(float64(len(regions)))
		embeddings, err = r.e.analyzer.Embed(small, regions)
		if err != nil {
			slog.Warn("embed faces", "error", err)
		}
	}

	if len(embeddings) == 0 {
		r.streak = 0
		r.status(models.PhaseScanning, "No face...", 0)
		return false
	}

	frameBest := math.Inf(1)
	for _, emb := range embeddings {
		idx, dist, ok := vision.BestMatch(r.gallery.Encodings, emb)
		if !ok {
			continue
		}
		frameBest = math.Min(frameBest, dist)
		if dist < r.e.params.Tolerance {
			r.recognize(r.gallery.Names[idx], dist, frame)
			return true
		}
	}

	r.streak++
	r.result.UnknownFrames++
	r.evidence = frame
	r.status(models.PhaseScanning, fmt.Sprintf("Unknown %d/%d", r.streak, r.e.params.AlertThreshold), r.streak)

	if r.streak >= r.e.params.AlertThreshold && !r.result.Alerted {
		r.alert(frameBest)
	}
	return false
}

func (r *run) recognize(name string, dist float64, frame image.Image) {
	r.result.State = StateRecognized
	r.result.Identity = name
	r.result.Distance = dist

	r.emit(models.Decision{
		Kind:       models.DecisionEntry,
		Identity:   name,
		Distance:   dist,
		FrameIndex: r.result.FramesAttempted,
		Frame:      frame,
		At:         r.e.now(),
	})
	r.finish(models.PhaseRecognized, "Welcome "+name)
}

func (r *run) alert(dist float64) {
	r.result.Alerted = true
	r.result.State = StateAlerted
	r.result.Distance = dist

	r.status(models.PhaseAlerted, "ALERT!", r.streak)
	r.emit(models.Decision{
		Kind:          models.DecisionAlert,
		Identity:      models.UnknownIdentity,
		Distance:      dist,
		FrameIndex:    r.result.FramesAttempted,
		UnknownStreak: r.streak,
		Frame:         r.evidence,
		At:            r.e.now(),
	})
}

func (r *run) emit(d models.Decision) {
	observability.Decisions.WithLabelValues(string(d.Kind)).Inc()
	if r.sink == nil {
		return
	}
	// a decision already shown to the operator is carried out even if the
	// caller goes away
	if err := r.sink.Handle(context.WithoutCancel(r.ctx), d); err != nil {
		slog.Error("handle decision", "kind", d.Kind, "identity", d.Identity, "error", err)
	}
}

func (r *run) status(phase models.Phase, msg string, current int) {
	r.last = models.Status{
		Phase:   phase,
		Message: msg,
		Current: current,
		Total:   r.e.params.AlertThreshold,
		At:      r.e.now(),
	}
	r.report(r.last)
}

// finish settles the terminal state and publishes the final status.
func (r *run) finish(phase models.Phase, msg string) Result {
	switch phase {
	case models.PhaseRecognized:
		r.result.State = StateRecognized
	case models.PhaseAlerted:
		r.result.State = StateAlerted
	default:
		if r.result.State == StateScanning {
			r.result.State = StateExhausted
		}
	}
	r.result.Message = msg
	observability.RecognitionOutcomes.WithLabelValues(string(r.result.State)).Inc()
	r.status(phase, msg, r.streak)
	return r.result
}
