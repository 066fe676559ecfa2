package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Auth        AuthConfig        `yaml:"auth"`
	Capture     CaptureConfig     `yaml:"capture"`
	Vision      VisionConfig      `yaml:"vision"`
	Enrollment  EnrollmentConfig  `yaml:"enrollment"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Gallery     GalleryConfig     `yaml:"gallery"`
	Audit       AuditConfig       `yaml:"audit"`
	Notify      NotifyConfig      `yaml:"notify"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig is optional: with an empty URL notifications go to WebSocket
// subscribers only.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	// PublicURL, when set, is used as the prefix of evidence URLs instead of
	// presigned links.
	PublicURL    string        `yaml:"public_url"`
	PresignedTTL time.Duration `yaml:"presigned_ttl"`
}

type AuthConfig struct {
	// APIKey of the Identity Toolkit compatible sign-in endpoint.
	APIKey   string        `yaml:"api_key"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type CaptureConfig struct {
	// Device is anything ffmpeg accepts as input: /dev/video0, rtsp://..., a file.
	Device          string        `yaml:"device"`
	InputFormat     string        `yaml:"input_format"`
	FrameWidth      int           `yaml:"frame_width"`
	FPS             int           `yaml:"fps"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PreviewInterval time.Duration `yaml:"preview_interval"`
	MaxRestarts     int           `yaml:"max_restarts"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// Profile selects the execution provider for both models: "cpu" or "cuda".
	Profile     string  `yaml:"profile"`
	Threads     int     `yaml:"threads"`
	FrameReduce float64 `yaml:"frame_reduce"`
}

type EnrollmentConfig struct {
	ImageCount      int           `yaml:"image_count"`
	CaptureInterval time.Duration `yaml:"capture_interval"`
	// MaxAttempts bounds the number of frames read per run; 0 means unbounded.
	MaxAttempts int    `yaml:"max_attempts"`
	KnownDir    string `yaml:"known_dir"`
}

type RecognitionConfig struct {
	MaxFrames      int     `yaml:"max_frames"`
	AlertThreshold int     `yaml:"alert_threshold"`
	Tolerance      float64 `yaml:"tolerance"`
	// CountOnlyReadFrames excludes failed captures from the frame budget.
	CountOnlyReadFrames bool `yaml:"count_only_read_frames"`
}

type GalleryConfig struct {
	// Backend is "file" or "postgres".
	Backend       string `yaml:"backend"`
	EncodingsFile string `yaml:"encodings_file"`
}

type AuditConfig struct {
	TempDir     string `yaml:"temp_dir"`
	LogLimit    int    `yaml:"log_limit"`
	JPEGQuality int    `yaml:"jpeg_quality"`
}

type NotifyConfig struct {
	EntryTopic     string        `yaml:"entry_topic"`
	AlertTopic     string        `yaml:"alert_topic"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config populated only with defaults.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// Validate rejects values that would make the decision pipeline meaningless.
func (c *Config) Validate() error {
	switch c.Gallery.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("gallery.backend: unsupported value %q", c.Gallery.Backend)
	}
	switch c.Vision.Profile {
	case "cpu", "cuda":
	default:
		return fmt.Errorf("vision.profile: unsupported value %q", c.Vision.Profile)
	}
	if c.Vision.FrameReduce <= 0 || c.Vision.FrameReduce > 1 {
		return fmt.Errorf("vision.frame_reduce must be in (0, 1], got %v", c.Vision.FrameReduce)
	}
	if c.Recognition.Tolerance <= 0 {
		return fmt.Errorf("recognition.tolerance must be positive, got %v", c.Recognition.Tolerance)
	}
	if c.Enrollment.ImageCount < 1 {
		return fmt.Errorf("enrollment.image_count must be at least 1, got %d", c.Enrollment.ImageCount)
	}
	if c.Enrollment.MaxAttempts < 0 {
		return fmt.Errorf("enrollment.max_attempts must not be negative, got %d", c.Enrollment.MaxAttempts)
	}
	if c.Recognition.MaxFrames < 1 {
		return fmt.Errorf("recognition.max_frames must be at least 1, got %d", c.Recognition.MaxFrames)
	}
	if c.Recognition.AlertThreshold < 1 {
		return fmt.Errorf("recognition.alert_threshold must be at least 1, got %d", c.Recognition.AlertThreshold)
	}
	if c.Recognition.AlertThreshold > c.Recognition.MaxFrames {
		return fmt.Errorf("recognition.alert_threshold (%d) exceeds max_frames (%d)",
			c.Recognition.AlertThreshold, c.Recognition.MaxFrames)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 5
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "door-evidence"
	}
	if cfg.MinIO.PresignedTTL == 0 {
		cfg.MinIO.PresignedTTL = 7 * 24 * time.Hour
	}
	if cfg.Auth.Endpoint == "" {
		cfg.Auth.Endpoint = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"
	}
	if cfg.Auth.Timeout == 0 {
		cfg.Auth.Timeout = 10 * time.Second
	}
	if cfg.Capture.Device == "" {
		cfg.Capture.Device = "/dev/video0"
	}
	if cfg.Capture.FrameWidth == 0 {
		cfg.Capture.FrameWidth = 640
	}
	if cfg.Capture.FPS == 0 {
		cfg.Capture.FPS = 15
	}
	if cfg.Capture.ReadTimeout == 0 {
		cfg.Capture.ReadTimeout = time.Second
	}
	if cfg.Capture.PreviewInterval == 0 {
		cfg.Capture.PreviewInterval = 10 * time.Millisecond
	}
	if cfg.Capture.MaxRestarts == 0 {
		cfg.Capture.MaxRestarts = 3
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.Profile == "" {
		cfg.Vision.Profile = "cpu"
	}
	if cfg.Vision.FrameReduce == 0 {
		cfg.Vision.FrameReduce = 0.25
	}
	if cfg.Enrollment.ImageCount == 0 {
		cfg.Enrollment.ImageCount = 7
	}
	if cfg.Enrollment.CaptureInterval == 0 {
		cfg.Enrollment.CaptureInterval = 500 * time.Millisecond
	}
	if cfg.Enrollment.KnownDir == "" {
		cfg.Enrollment.KnownDir = "known_faces"
	}
	if cfg.Recognition.MaxFrames == 0 {
		cfg.Recognition.MaxFrames = 200
	}
	if cfg.Recognition.AlertThreshold == 0 {
		cfg.Recognition.AlertThreshold = 10
	}
	if cfg.Recognition.Tolerance == 0 {
		cfg.Recognition.Tolerance = 0.5
	}
	if cfg.Gallery.Backend == "" {
		cfg.Gallery.Backend = "file"
	}
	if cfg.Gallery.EncodingsFile == "" {
		cfg.Gallery.EncodingsFile = "known_faces_encodings.gob"
	}
	if cfg.Audit.TempDir == "" {
		cfg.Audit.TempDir = "temp"
	}
	if cfg.Audit.LogLimit == 0 {
		cfg.Audit.LogLimit = 10
	}
	if cfg.Audit.JPEGQuality == 0 {
		cfg.Audit.JPEGQuality = 90
	}
	if cfg.Notify.EntryTopic == "" {
		cfg.Notify.EntryTopic = "entry_notifications"
	}
	if cfg.Notify.AlertTopic == "" {
		cfg.Notify.AlertTopic = "intruder_alerts"
	}
	if cfg.Notify.PublishTimeout == 0 {
		cfg.Notify.PublishTimeout = 5 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DG_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("DG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("DG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("DG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("DG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("DG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("DG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("DG_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("DG_CAPTURE_DEVICE"); v != "" {
		cfg.Capture.Device = v
	}
	if v := os.Getenv("DG_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("DG_VISION_PROFILE"); v != "" {
		cfg.Vision.Profile = v
	}
	if v := os.Getenv("DG_TOLERANCE"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.Tolerance = t
		}
	}
	if v := os.Getenv("DG_GALLERY_BACKEND"); v != "" {
		cfg.Gallery.Backend = v
	}
}
