// Package config loads layered service configuration: built-in defaults,
// then an optional YAML file, then DEEPFAKE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment keys; "__" separates sections.
	EnvPrefix = "DEEPFAKE_"
	// EnvPort overrides server.addr with ":<PORT>" when set.
	EnvPort = "PORT"
)

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	ONNX    ONNXConfig    `koanf:"onnx"`
	Image   ImageConfig   `koanf:"image"`
	Audio   AudioConfig   `koanf:"audio"`
	Cache   CacheConfig   `koanf:"cache"`
	History HistoryConfig `koanf:"history"`
}

type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	MaxImageBytes     int64         `koanf:"max_image_bytes"`
	MaxAudioBytes     int64         `koanf:"max_audio_bytes"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type ONNXConfig struct {
	SharedLibraryPath string `koanf:"shared_library_path"`
	Device            string `koanf:"device"`
	IntraOpThreads    int    `koanf:"intra_op_threads"`
	CUDADeviceID      int    `koanf:"cuda_device_id"`
}

type ImageConfig struct {
	CheckpointPath string `koanf:"checkpoint_path"`
}

type AudioConfig struct {
	Enabled   bool   `koanf:"enabled"`
	BundleDir string `koanf:"bundle_dir"`
}

type CacheConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	TTL          time.Duration `koanf:"ttl"`
	Namespace    string        `koanf:"namespace"`
	PurgeOnStart bool          `koanf:"purge_on_start"`
}

type HistoryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Driver  string `koanf:"driver"`
	DSN     string `koanf:"dsn"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8000",
			MaxImageBytes:     10 << 20,
			MaxAudioBytes:     50 << 20,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		ONNX:    ONNXConfig{Device: "auto"},
		Image:   ImageConfig{CheckpointPath: "models/best_model.onnx"},
		Audio:   AudioConfig{Enabled: true, BundleDir: "models/audio"},
		Cache: CacheConfig{
			Addr:         "localhost:6379",
			TTL:          10 * time.Minute,
			Namespace:    "predictions",
			PurgeOnStart: true,
		},
		History: HistoryConfig{Driver: "sqlite", DSN: "deepfake.db"},
	}
}

// Load reads path (if it exists) over the defaults and applies environment overrides.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if port := strings.TrimSpace(os.Getenv(EnvPort)); port != "" {
		cfg.Server.Addr = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DEEPFAKE_IMAGE__CHECKPOINT_PATH to image.checkpoint_path.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Image.CheckpointPath) == "" {
		return errors.New("image.checkpoint_path is required")
	}
	if c.Server.MaxImageBytes <= 0 || c.Server.MaxAudioBytes <= 0 {
		return errors.New("server upload limits must be positive")
	}
	switch strings.ToLower(c.ONNX.Device) {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("onnx.device must be auto, cuda or cpu, got %q", c.ONNX.Device)
	}
	if c.History.Enabled {
		switch strings.ToLower(c.History.Driver) {
		case "sqlite", "postgres", "mysql":
		default:
			return fmt.Errorf("history.driver must be sqlite, postgres or mysql, got %q", c.History.Driver)
		}
	}
	return nil
}
