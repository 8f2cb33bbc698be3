package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnvVars = []string{
	"HTTP_ADDR", "CAPTURE_PROVIDER", "CAPTURE_WIDTH", "CAPTURE_HEIGHT", "CAPTURE_FPS",
	"OCR_BACKEND", "OCR_ADDR", "OCR_LANGUAGE", "TRANSLATE_URL", "TRANSLATE_API_KEY",
	"TRANSLATE_TIMEOUT", "TRANSLATE_RETRIES", "CACHE_MAX_ENTRIES", "REDIS_URL",
	"SOURCE_LANGUAGE", "TARGET_LANGUAGE", "DETECT_BUBBLES", "DETECT_ORIENTATION",
	"SKIP_SIMILAR_FRAMES", "BUBBLE_BACKEND", "LOG_LEVEL", "CONFIG_FILE",
	"OVERLAY_FONT", "OVERLAY_FONT_SIZE",
}

func clearEnv() {
	for _, v := range configEnvVars {
		os.Unsetenv(v)
	}
}

func TestLoad(t *testing.T) {
	clearEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.CaptureFPS != 10 {
		t.Errorf("CaptureFPS = %f, want %f", cfg.CaptureFPS, 10.0)
	}
	if cfg.SourceLanguage != "auto" {
		t.Errorf("SourceLanguage = %q, want %q", cfg.SourceLanguage, "auto")
	}
	if cfg.TargetLanguage != "id" {
		t.Errorf("TargetLanguage = %q, want %q", cfg.TargetLanguage, "id")
	}
	if !cfg.DetectBubbles {
		t.Error("DetectBubbles should default to true")
	}
	if !cfg.DetectOrientation {
		t.Error("DetectOrientation should default to true")
	}
	if cfg.TranslateTimeout != 30*time.Second {
		t.Errorf("TranslateTimeout = %v, want %v", cfg.TranslateTimeout, 30*time.Second)
	}
	if cfg.TranslateRetries != 0 {
		t.Errorf("TranslateRetries = %d, want 0", cfg.TranslateRetries)
	}
	if cfg.CacheMaxEntries != 0 {
		t.Errorf("CacheMaxEntries = %d, want 0", cfg.CacheMaxEntries)
	}
	if cfg.SkipSimilarFrames {
		t.Error("SkipSimilarFrames should default to false")
	}
}

func TestLoadWithEnv(t *testing.T) {
	clearEnv()
	os.Setenv("HTTP_ADDR", ":9000")
	os.Setenv("CAPTURE_FPS", "5")
	os.Setenv("TARGET_LANGUAGE", "ja")
	os.Setenv("DETECT_BUBBLES", "false")
	os.Setenv("TRANSLATE_TIMEOUT", "5s")
	os.Setenv("CACHE_MAX_ENTRIES", "512")
	os.Setenv("OCR_BACKEND", "tesseract")
	defer clearEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9000")
	}
	if cfg.CaptureFPS != 5 {
		t.Errorf("CaptureFPS = %f, want %f", cfg.CaptureFPS, 5.0)
	}
	if cfg.TargetLanguage != "ja" {
		t.Errorf("TargetLanguage = %q, want %q", cfg.TargetLanguage, "ja")
	}
	if cfg.DetectBubbles {
		t.Error("DetectBubbles should be false")
	}
	if cfg.TranslateTimeout != 5*time.Second {
		t.Errorf("TranslateTimeout = %v, want %v", cfg.TranslateTimeout, 5*time.Second)
	}
	if cfg.CacheMaxEntries != 512 {
		t.Errorf("CacheMaxEntries = %d, want %d", cfg.CacheMaxEntries, 512)
	}
	if cfg.OCRBackend != "tesseract" {
		t.Errorf("OCRBackend = %q, want %q", cfg.OCRBackend, "tesseract")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv()
	defer clearEnv()

	path := filepath.Join(t.TempDir(), "translator.yaml")
	body := "target_language: fr\ncapture_fps: 2\ntranslate_timeout: 10s\ndetect_orientation: false\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Setenv("CONFIG_FILE", path)
	os.Setenv("CAPTURE_FPS", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TargetLanguage != "fr" {
		t.Errorf("TargetLanguage = %q, want %q", cfg.TargetLanguage, "fr")
	}
	if cfg.CaptureFPS != 4 {
		t.Errorf("CaptureFPS = %f, env should override file", cfg.CaptureFPS)
	}
	if cfg.TranslateTimeout != 10*time.Second {
		t.Errorf("TranslateTimeout = %v, want %v", cfg.TranslateTimeout, 10*time.Second)
	}
	if cfg.DetectOrientation {
		t.Error("DetectOrientation should be false from file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv()
	defer clearEnv()
	os.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Error("Load() should fail for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero fps", func(c *Config) { c.CaptureFPS = 0 }, "CAPTURE_FPS"},
		{"negative cache", func(c *Config) { c.CacheMaxEntries = -1 }, "CACHE_MAX_ENTRIES"},
		{"auto target", func(c *Config) { c.TargetLanguage = "auto" }, "TARGET_LANGUAGE"},
		{"bad provider", func(c *Config) { c.CaptureProvider = "webcam" }, "CAPTURE_PROVIDER"},
		{"bad ocr", func(c *Config) { c.OCRBackend = "cloud" }, "OCR_BACKEND"},
		{"bad bubble backend", func(c *Config) { c.BubbleBackend = "magic" }, "BUBBLE_BACKEND"},
		{"zero timeout", func(c *Config) { c.TranslateTimeout = 0 }, "TRANSLATE_TIMEOUT"},
		{"font without size", func(c *Config) { c.OverlayFont = "a.ttf"; c.OverlayFontSize = 0 }, "OVERLAY_FONT_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Defaults()
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo,
	} {
		cfg.LogLevel = in
		if got := cfg.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetEnvHelpers(t *testing.T) {
	os.Setenv("TEST_STRING", "hello")
	defer os.Unsetenv("TEST_STRING")
	if v := getEnv("TEST_STRING", "default"); v != "hello" {
		t.Errorf("getEnv = %q, want %q", v, "hello")
	}
	if v := getEnv("NONEXISTENT", "default"); v != "default" {
		t.Errorf("getEnv = %q, want %q", v, "default")
	}

	os.Setenv("TEST_INT_INVALID", "not-a-number")
	defer os.Unsetenv("TEST_INT_INVALID")
	if v := getEnvInt("TEST_INT_INVALID", 100); v != 100 {
		t.Errorf("getEnvInt with invalid = %d, want %d", v, 100)
	}

	os.Setenv("TEST_FLOAT", "3.14")
	defer os.Unsetenv("TEST_FLOAT")
	if v := getEnvFloat("TEST_FLOAT", 0.0); v != 3.14 {
		t.Errorf("getEnvFloat = %f, want %f", v, 3.14)
	}

	os.Setenv("TEST_BOOL_ONE", "1")
	defer os.Unsetenv("TEST_BOOL_ONE")
	if !getEnvBool("TEST_BOOL_ONE", false) {
		t.Error("getEnvBool should return true for '1'")
	}

	os.Setenv("TEST_DURATION", "250ms")
	defer os.Unsetenv("TEST_DURATION")
	if v := getEnvDuration("TEST_DURATION", time.Second); v != 250*time.Millisecond {
		t.Errorf("getEnvDuration = %v, want %v", v, 250*time.Millisecond)
	}
	if v := getEnvDuration("NONEXISTENT", time.Second); v != time.Second {
		t.Errorf("getEnvDuration = %v, want %v", v, time.Second)
	}
}
