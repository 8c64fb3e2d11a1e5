// Package config loads settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug      bool             `yaml:"debug"`
	Port       string           `yaml:"port"`
	ScratchDir string           `yaml:"scratch-dir"`
	Image      ImageConfig      `yaml:"image"`
	Detector   DetectorConfig   `yaml:"detector"`
	AirQuality AirQualityConfig `yaml:"air-quality"`
}

type ImageConfig struct {
	MinWidth  int `yaml:"min-width"`
	MinHeight int `yaml:"min-height"`
	MaxPixels int `yaml:"max-pixels"`
}

// DetectorConfig selects and configures the tree detection backend.
// Backend is either "onnx" (in-process) or "remote" (HTTP inference service).
type DetectorConfig struct {
	Backend        string        `yaml:"backend"`
	ModelPath      string        `yaml:"model-path"`
	MetadataPath   string        `yaml:"metadata-path"`
	LibraryPath    string        `yaml:"library-path"`
	InferenceURL   string        `yaml:"inference-url"`
	ScoreThreshold float64       `yaml:"score-threshold"`
	Timeout        time.Duration `yaml:"timeout"`
}

type AirQualityConfig struct {
	BaseURL string        `yaml:"base-url"`
	APIKey  string        `yaml:"api-key"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		Port: "8080",
		Image: ImageConfig{
			MinWidth:  100,
			MinHeight: 100,
			MaxPixels: 40_000_000,
		},
		Detector: DetectorConfig{
			Backend:        "onnx",
			ModelPath:      "./models/deepforest.onnx",
			MetadataPath:   "./models/deepforest_metadata.json",
			InferenceURL:   "http://localhost:5000",
			ScoreThreshold: 0.1,
			Timeout:        60 * time.Second,
		},
		AirQuality: AirQualityConfig{
			BaseURL: "https://api.airvisual.com/v2",
			Timeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path,
// and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Detector.Backend {
	case "onnx":
		if c.Detector.ModelPath == "" || c.Detector.MetadataPath == "" {
			return fmt.Errorf("onnx detector needs model-path and metadata-path")
		}
	case "remote":
		if c.Detector.InferenceURL == "" {
			return fmt.Errorf("remote detector needs inference-url")
		}
	default:
		return fmt.Errorf("unknown detector backend: %q", c.Detector.Backend)
	}

	if c.Image.MinWidth <= 0 || c.Image.MinHeight <= 0 {
		return fmt.Errorf("image minimum dimensions must be positive, got %dx%d", c.Image.MinWidth, c.Image.MinHeight)
	}
	if c.Image.MaxPixels < c.Image.MinWidth*c.Image.MinHeight {
		return fmt.Errorf("image max-pixels %d is below the minimum raster area", c.Image.MaxPixels)
	}
	if c.Detector.ScoreThreshold < 0 || c.Detector.ScoreThreshold > 1 {
		return fmt.Errorf("score-threshold must be within [0,1], got %v", c.Detector.ScoreThreshold)
	}
	if c.Detector.Timeout <= 0 || c.AirQuality.Timeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.ScratchDir = getEnv("SCRATCH_DIR", cfg.ScratchDir)

	cfg.Detector.Backend = getEnv("DETECTOR_BACKEND", cfg.Detector.Backend)
	cfg.Detector.ModelPath = getEnv("MODEL_PATH", cfg.Detector.ModelPath)
	cfg.Detector.MetadataPath = getEnv("MODEL_METADATA_PATH", cfg.Detector.MetadataPath)
	cfg.Detector.LibraryPath = getEnv("ONNXRUNTIME_LIB", cfg.Detector.LibraryPath)
	cfg.Detector.InferenceURL = getEnv("INFERENCE_URL", cfg.Detector.InferenceURL)

	cfg.AirQuality.BaseURL = getEnv("AIRVISUAL_BASE_URL", cfg.AirQuality.BaseURL)
	cfg.AirQuality.APIKey = getEnv("AIRVISUAL_API_KEY", cfg.AirQuality.APIKey)

	var err error
	if cfg.Debug, err = getEnvBool("DEBUG", cfg.Debug); err != nil {
		return err
	}
	if cfg.AirQuality.Timeout, err = getEnvDuration("AIR_QUALITY_TIMEOUT", cfg.AirQuality.Timeout); err != nil {
		return err
	}
	if cfg.Detector.Timeout, err = getEnvDuration("DETECTOR_TIMEOUT", cfg.Detector.Timeout); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
