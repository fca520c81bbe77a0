package config

import (
	"errors"
	"fmt"
	"image/png"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/pixelpress/internal/imaging"
	"github.com/dunamismax/pixelpress/internal/logging"
	"github.com/hibiken/asynq"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix selects the environment overrides; "__" separates sections,
	// so PIXELPRESS_QUEUE__REDIS_ADDR sets queue.redis_addr.
	EnvPrefix = "PIXELPRESS_"

	// ConfigPathEnv names an optional YAML file loaded before the environment.
	ConfigPathEnv = "PIXELPRESS_CONFIG"
)

type Config struct {
	API       APIConfig       `koanf:"api"`
	Queue     QueueConfig     `koanf:"queue"`
	Worker    WorkerConfig    `koanf:"worker"`
	Storage   StorageConfig   `koanf:"storage"`
	Database  DatabaseConfig  `koanf:"database"`
	Imaging   ImagingConfig   `koanf:"imaging"`
	Tracing   TracingConfig   `koanf:"tracing"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Webhook   WebhookConfig   `koanf:"webhook"`
	Log       logging.Options `koanf:"log"`
}

type APIConfig struct {
	Addr           string        `koanf:"addr"`
	PresignTTL     time.Duration `koanf:"presign_ttl"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

type QueueConfig struct {
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	Name          string        `koanf:"name"`
	MaxRetry      int           `koanf:"max_retry"`
	TaskTimeout   time.Duration `koanf:"task_timeout"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int    `koanf:"concurrency"`
	MaxActiveJobs  int    `koanf:"max_active_jobs"`
	LocalInputDir  string `koanf:"local_input_dir"`
	LocalOutputDir string `koanf:"local_output_dir"`
	OutputPrefix   string `koanf:"output_prefix"`
	MetricsAddr    string `koanf:"metrics_addr"`
}

type StorageConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

type DatabaseConfig struct {
	// DSN selects the PostgreSQL job store; empty keeps jobs in memory.
	DSN string `koanf:"dsn"`
}

type ImagingConfig struct {
	Resampler          string `koanf:"resampler"`
	PNGCompression     string `koanf:"png_compression"`
	MaxPixels          int    `koanf:"max_pixels"`
	MaxDimension       int    `koanf:"max_dimension"`
	DisablePassthrough bool   `koanf:"disable_passthrough"`
}

// Settings converts the section into engine settings.
func (c ImagingConfig) Settings() (imaging.Settings, error) {
	resampler, err := imaging.ParseResampler(c.Resampler)
	if err != nil {
		return imaging.Settings{}, err
	}
	level, err := ParsePNGCompression(c.PNGCompression)
	if err != nil {
		return imaging.Settings{}, err
	}
	return imaging.Settings{
		Resampler:          resampler,
		PNGCompression:     level,
		MaxPixels:          c.MaxPixels,
		MaxDimension:       c.MaxDimension,
		DisablePassthrough: c.DisablePassthrough,
	}, nil
}

// ParsePNGCompression maps a level name onto image/png levels. There is no
// "default" name: the engine treats the zero level as unset.
func ParsePNGCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best":
		return png.BestCompression, nil
	case "speed", "fast":
		return png.BestSpeed, nil
	case "none":
		return png.NoCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q", s)
	}
}

type TracingConfig struct {
	ServiceName  string  `koanf:"service_name"`
	Exporter     string  `koanf:"exporter"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	OTLPInsecure bool    `koanf:"otlp_insecure"`
	SampleRatio  float64 `koanf:"sample_ratio"`
}

type RateLimitConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Requests     int           `koanf:"requests"`
	Window       time.Duration `koanf:"window"`
	UserIDHeader string        `koanf:"user_id_header"`
	KeyPrefix    string        `koanf:"key_prefix"`
}

type WebhookConfig struct {
	SigningSecret  string        `koanf:"signing_secret"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
}

// Load reads the file named by PIXELPRESS_CONFIG, if any, then the
// environment.
func Load() (Config, error) {
	return LoadFile(os.Getenv(ConfigPathEnv))
}

func LoadFile(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func applyDefaults(c *Config) {
	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.API.PresignTTL == 0 {
		c.API.PresignTTL = 15 * time.Minute
	}
	if c.API.MaxUploadBytes == 0 {
		c.API.MaxUploadBytes = 32 << 20
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 60 * time.Second
	}

	if c.Queue.RedisAddr == "" {
		c.Queue.RedisAddr = "localhost:6379"
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "default"
	}
	if c.Queue.MaxRetry == 0 {
		c.Queue.MaxRetry = 5
	}
	if c.Queue.TaskTimeout == 0 {
		c.Queue.TaskTimeout = 3 * time.Minute
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = max(2, runtime.NumCPU())
	}
	if c.Worker.MaxActiveJobs == 0 {
		c.Worker.MaxActiveJobs = max(1, runtime.NumCPU()/2)
	}
	if c.Worker.LocalInputDir == "" {
		c.Worker.LocalInputDir = "./.pixelpress-input"
	}
	if c.Worker.LocalOutputDir == "" {
		c.Worker.LocalOutputDir = "./.pixelpress-output"
	}
	if c.Worker.OutputPrefix == "" {
		c.Worker.OutputPrefix = "outputs"
	}
	if c.Worker.MetricsAddr == "" {
		c.Worker.MetricsAddr = ":9091"
	}

	if c.Storage.Endpoint == "" {
		c.Storage.Endpoint = "localhost:9000"
	}
	if c.Storage.AccessKey == "" {
		c.Storage.AccessKey = "minioadmin"
	}
	if c.Storage.SecretKey == "" {
		c.Storage.SecretKey = "minioadmin"
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "pixelpress-jobs"
	}

	if c.Imaging.MaxPixels == 0 {
		c.Imaging.MaxPixels = imaging.DefaultMaxPixels
	}
	if c.Imaging.MaxDimension == 0 {
		c.Imaging.MaxDimension = imaging.DefaultMaxDimension
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "pixelpress"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "none"
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 60
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.RateLimit.UserIDHeader == "" {
		c.RateLimit.UserIDHeader = "X-User-ID"
	}
	if c.RateLimit.KeyPrefix == "" {
		c.RateLimit.KeyPrefix = "pixelpress:ratelimit"
	}

	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 10 * time.Second
	}
	if c.Webhook.MaxAttempts == 0 {
		c.Webhook.MaxAttempts = 5
	}
	if c.Webhook.InitialBackoff == 0 {
		c.Webhook.InitialBackoff = time.Second
	}
	if c.Webhook.MaxBackoff == 0 {
		c.Webhook.MaxBackoff = 30 * time.Second
	}
}
