package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/doorguard/internal/api"
	"github.com/your-org/doorguard/internal/api/ws"
	"github.com/your-org/doorguard/internal/audit"
	"github.com/your-org/doorguard/internal/auth"
	"github.com/your-org/doorguard/internal/capture"
	"github.com/your-org/doorguard/internal/config"
	"github.com/your-org/doorguard/internal/effects"
	"github.com/your-org/doorguard/internal/enroll"
	"github.com/your-org/doorguard/internal/gallery"
	"github.com/your-org/doorguard/internal/notify"
	"github.com/your-org/doorguard/internal/observability"
	"github.com/your-org/doorguard/internal/queue"
	"github.com/your-org/doorguard/internal/recognition"
	"github.com/your-org/doorguard/internal/schedule"
	"github.com/your-org/doorguard/internal/storage"
	"github.com/your-org/doorguard/internal/terminal"
	"github.com/your-org/doorguard/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/terminal.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	// registered first so it runs after every other deferred release
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	slog.Info("starting door terminal",
		"port", cfg.Server.Port,
		"device", cfg.Capture.Device,
		"gallery", cfg.Gallery.Backend,
		"profile", cfg.Vision.Profile,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	analyzer, err := vision.NewAnalyzer(cfg.Vision)
	if err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer analyzer.Close()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		slog.Error("migrate postgres", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Load the gallery
	var backend gallery.Backend
	switch cfg.Gallery.Backend {
	case "postgres":
		backend = storage.NewPostgresGallery(db)
	default:
		backend = storage.NewFileGallery(cfg.Gallery.EncodingsFile)
	}
	store, err := gallery.Open(ctx, backend)
	if err != nil {
		slog.Error("load gallery", "error", err)
		os.Exit(1)
	}
	slog.Info("gallery loaded", "encodings", store.Len(), "identities", len(store.Identities()))

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Notifications go to NATS when configured and are relayed back to
	// WebSocket subscribers; otherwise straight to the hub.
	var producer *queue.Producer
	publishers := []notify.Publisher{hub}
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create notification consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		if err := consumer.ConsumeNotifications(ctx, "terminal-ws-relay", hub.Publish); err != nil {
			slog.Warn("start notification relay, publishing to websocket directly", "error", err)
		} else {
			publishers = []notify.Publisher{producer}
		}
	}
	dispatcher := notify.NewDispatcher(cfg.Notify.PublishTimeout, publishers...)

	writer := audit.NewWriter(minioStore, db, dispatcher, audit.Options{
		TempDir:      cfg.Audit.TempDir,
		EntryTopic:   cfg.Notify.EntryTopic,
		JPEGQuality:  cfg.Audit.JPEGQuality,
		DefaultLimit: cfg.Audit.LogLimit,
	})

	// Acquire the camera
	camera := capture.Open(ctx, cfg.Capture)
	defer func() {
		if err := camera.Close(); err != nil {
			slog.Warn("release camera", "error", err)
		}
	}()

	term := terminal.New(terminal.Deps{
		Source:  camera,
		Gallery: store,
		Enroller: enroll.NewPipeline(analyzer, store, enroll.Params{
			ImageCount:  cfg.Enrollment.ImageCount,
			MaxAttempts: cfg.Enrollment.MaxAttempts,
			FrameReduce: cfg.Vision.FrameReduce,
			KnownDir:    cfg.Enrollment.KnownDir,
			JPEGQuality: cfg.Audit.JPEGQuality,
		}, schedule.Every(cfg.Enrollment.CaptureInterval)),
		Engine: recognition.NewEngine(analyzer, recognition.Params{
			MaxFrames:           cfg.Recognition.MaxFrames,
			AlertThreshold:      cfg.Recognition.AlertThreshold,
			Tolerance:           cfg.Recognition.Tolerance,
			FrameReduce:         cfg.Vision.FrameReduce,
			CountOnlyReadFrames: cfg.Recognition.CountOnlyReadFrames,
		}),
		Sink:        effects.NewExecutor(writer, dispatcher, cfg.Notify.AlertTopic),
		Logs:        writer,
		Auth:        auth.NewIdentityToolkit(cfg.Auth),
		Broadcaster: hub,
		PreviewPace: schedule.Every(cfg.Capture.PreviewInterval),
		LogLimit:    cfg.Audit.LogLimit,
		JPEGQuality: cfg.Audit.JPEGQuality,
	})
	go term.RunPreview(ctx)

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		DB:       db,
		MinIO:    minioStore,
		Producer: producer,
		Hub:      hub,
		Station:  term,
	})

	// Start HTTP server. Enrollment and recognition requests block until the
	// run finishes, hence the long write timeout.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("terminal API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		slog.Error("server error", "error", err)
		exitCode = 1
	}

	slog.Info("shutting down door terminal...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	cancel()

	slog.Info("door terminal stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
