package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/doorguard/internal/config"
	"github.com/your-org/doorguard/internal/observability"
)

const (
	ProfileCPU  = "cpu"
	ProfileCUDA = "cuda"
)

// Analyzer detects faces and extracts embeddings with the ONNX models. The
// ONNX sessions reuse fixed tensors, so calls are serialized.
type Analyzer struct {
	mu       sync.Mutex
	detector *Detector
	embedder *Embedder
}

// NewSessionOptions builds the execution options shared by both models for
// the given profile.
func NewSessionOptions(profile string, threads int) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if threads > 0 {
		if err := opts.SetIntraOpNumThreads(threads); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("set threads: %w", err)
		}
	}

	switch profile {
	case ProfileCPU, "":
	case ProfileCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("create cuda options: %w", err)
		}
		defer cuda.Destroy()
		if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("enable cuda: %w", err)
		}
	default:
		opts.Destroy()
		return nil, fmt.Errorf("unknown vision profile %q", profile)
	}
	return opts, nil
}

// NewAnalyzer loads det_10g.onnx and w600k_r50.onnx from cfg.ModelsDir.
func NewAnalyzer(cfg config.VisionConfig) (*Analyzer, error) {
	opts, err := NewSessionOptions(cfg.Profile, cfg.Threads)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
	embPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")

	slog.Info("loading detection model", "path", detPath, "profile", cfg.Profile)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), opts)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath)
	emb, err := NewEmbedder(embPath, opts)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &Analyzer{detector: det, embedder: emb}, nil
}

// DetectRegions returns the faces found in img.
func (a *Analyzer) DetectRegions(img image.Image) ([]Region, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.detect(img)
}

func (a *Analyzer) detect(img image.Image) ([]Region, error) {
	start := time.Now()
	regions, err := a.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	return regions, nil
}

// Embed returns one embedding per region, in region order. With no regions
// given, faces are detected first. Regions that cannot be cropped or embedded
// are skipped, so the result may be shorter than regions.
func (a *Analyzer) Embed(img image.Image, regions []Region) ([][]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if regions == nil {
		var err error
		if regions, err = a.detect(img); err != nil {
			return nil, err
		}
	}

	embeddings := make([][]float32, 0, len(regions))
	for _, r := range regions {
		face := cropFace(img, r.BBox)
		if face == nil {
			continue
		}

		start := time.Now()
		emb, err := a.embedder.Extract(face)
		if err != nil {
			slog.Warn("embed region", "error", err)
			continue
		}
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
		embeddings = append(embeddings, emb)
	}
	return embeddings, nil
}

// Close releases all ONNX sessions.
func (a *Analyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detector != nil {
		a.detector.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}
