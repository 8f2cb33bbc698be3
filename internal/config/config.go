// Package config handles platform configuration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	CaptureProvider string  `yaml:"capture_provider"` // feed | screen
	CaptureWidth    int     `yaml:"capture_width"`
	CaptureHeight   int     `yaml:"capture_height"`
	CaptureFPS      float64 `yaml:"capture_fps"`

	OCRBackend  string `yaml:"ocr_backend"` // grpc | tesseract
	OCRAddr     string `yaml:"ocr_addr"`
	OCRLanguage string `yaml:"ocr_language"`

	TranslateURL     string        `yaml:"translate_url"`
	TranslateAPIKey  string        `yaml:"translate_api_key"`
	TranslateTimeout time.Duration `yaml:"translate_timeout"`
	TranslateRetries int           `yaml:"translate_retries"`
	CacheMaxEntries  int           `yaml:"cache_max_entries"` // 0 = unbounded
	RedisURL         string        `yaml:"redis_url"`

	SourceLanguage    string `yaml:"source_language"`
	TargetLanguage    string `yaml:"target_language"`
	DetectBubbles     bool   `yaml:"detect_bubbles"`
	DetectOrientation bool   `yaml:"detect_orientation"`
	SkipSimilarFrames bool   `yaml:"skip_similar_frames"`
	BubbleBackend     string `yaml:"bubble_backend"` // vision | gocv

	OverlayFont     string  `yaml:"overlay_font"` // TrueType path; built-in face when empty
	OverlayFontSize float64 `yaml:"overlay_font_size"`

	LogLevel string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		HTTPAddr:          ":8000",
		CaptureProvider:   "feed",
		CaptureWidth:      1080,
		CaptureHeight:     1920,
		CaptureFPS:        10,
		OCRBackend:        "grpc",
		OCRAddr:           "localhost:50051",
		OCRLanguage:       "eng",
		TranslateURL:      "https://api.libretranslate.de",
		TranslateTimeout:  30 * time.Second,
		SourceLanguage:    "auto",
		TargetLanguage:    "id",
		DetectBubbles:     true,
		DetectOrientation: true,
		SkipSimilarFrames: false,
		BubbleBackend:     "vision",
		OverlayFontSize:   16,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables (a local .env file is read first).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.CaptureProvider = getEnv("CAPTURE_PROVIDER", c.CaptureProvider)
	c.CaptureWidth = getEnvInt("CAPTURE_WIDTH", c.CaptureWidth)
	c.CaptureHeight = getEnvInt("CAPTURE_HEIGHT", c.CaptureHeight)
	c.CaptureFPS = getEnvFloat("CAPTURE_FPS", c.CaptureFPS)
	c.OCRBackend = getEnv("OCR_BACKEND", c.OCRBackend)
	c.OCRAddr = getEnv("OCR_ADDR", c.OCRAddr)
	c.OCRLanguage = getEnv("OCR_LANGUAGE", c.OCRLanguage)
	c.TranslateURL = getEnv("TRANSLATE_URL", c.TranslateURL)
	c.TranslateAPIKey = getEnv("TRANSLATE_API_KEY", c.TranslateAPIKey)
	c.TranslateTimeout = getEnvDuration("TRANSLATE_TIMEOUT", c.TranslateTimeout)
	c.TranslateRetries = getEnvInt("TRANSLATE_RETRIES", c.TranslateRetries)
	c.CacheMaxEntries = getEnvInt("CACHE_MAX_ENTRIES", c.CacheMaxEntries)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.SourceLanguage = getEnv("SOURCE_LANGUAGE", c.SourceLanguage)
	c.TargetLanguage = getEnv("TARGET_LANGUAGE", c.TargetLanguage)
	c.DetectBubbles = getEnvBool("DETECT_BUBBLES", c.DetectBubbles)
	c.DetectOrientation = getEnvBool("DETECT_ORIENTATION", c.DetectOrientation)
	c.SkipSimilarFrames = getEnvBool("SKIP_SIMILAR_FRAMES", c.SkipSimilarFrames)
	c.BubbleBackend = getEnv("BUBBLE_BACKEND", c.BubbleBackend)
	c.OverlayFont = getEnv("OVERLAY_FONT", c.OverlayFont)
	c.OverlayFontSize = getEnvFloat("OVERLAY_FONT_SIZE", c.OverlayFontSize)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.CaptureFPS <= 0 || c.CaptureFPS > 60 {
		return fmt.Errorf("CAPTURE_FPS must be in (0, 60], got %v", c.CaptureFPS)
	}
	if c.CaptureWidth <= 0 || c.CaptureHeight <= 0 {
		return fmt.Errorf("capture size must be positive, got %dx%d", c.CaptureWidth, c.CaptureHeight)
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must be >= 0, got %d", c.CacheMaxEntries)
	}
	if c.TranslateRetries < 0 {
		return fmt.Errorf("TRANSLATE_RETRIES must be >= 0, got %d", c.TranslateRetries)
	}
	if c.TranslateTimeout <= 0 {
		return fmt.Errorf("TRANSLATE_TIMEOUT must be positive, got %v", c.TranslateTimeout)
	}
	if c.TargetLanguage == "" || c.TargetLanguage == "auto" {
		return fmt.Errorf("TARGET_LANGUAGE must name a concrete language, got %q", c.TargetLanguage)
	}
	if c.OverlayFont != "" && c.OverlayFontSize <= 0 {
		return fmt.Errorf("OVERLAY_FONT_SIZE must be positive, got %v", c.OverlayFontSize)
	}
	switch c.CaptureProvider {
	case "feed", "screen":
	default:
		return fmt.Errorf("unknown CAPTURE_PROVIDER %q", c.CaptureProvider)
	}
	switch c.OCRBackend {
	case "grpc", "tesseract":
	default:
		return fmt.Errorf("unknown OCR_BACKEND %q", c.OCRBackend)
	}
	switch c.BubbleBackend {
	case "vision", "gocv":
	default:
		return fmt.Errorf("unknown BUBBLE_BACKEND %q", c.BubbleBackend)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
