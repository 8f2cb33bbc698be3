// Screen translator server - captures frames, translates on-screen text and
// serves the overlay over HTTP and WebSocket
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GriffinCanCode/screen-translator/internal/bubble"
	"github.com/GriffinCanCode/screen-translator/internal/capture"
	"github.com/GriffinCanCode/screen-translator/internal/config"
	"github.com/GriffinCanCode/screen-translator/internal/grpcclient"
	"github.com/GriffinCanCode/screen-translator/internal/overlay"
	"github.com/GriffinCanCode/screen-translator/internal/resilience"
	"github.com/GriffinCanCode/screen-translator/internal/server"
	"github.com/GriffinCanCode/screen-translator/internal/session"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
	"github.com/GriffinCanCode/screen-translator/internal/translate"
)

// L2TTL is how long translations persist in Redis.
const L2TTL = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Frame provider: pushed over /ws/capture or taken from the local screen
	var (
		feed     *capture.Feed
		provider capture.Provider
	)
	switch cfg.CaptureProvider {
	case "screen":
		provider = capture.NewScreen()
	default:
		feed = capture.NewFeed()
		provider = feed
	}
	source := capture.NewSource(provider, capture.Config{
		Width:     cfg.CaptureWidth,
		Height:    cfg.CaptureHeight,
		TargetFPS: cfg.CaptureFPS,
	})

	// OCR engine
	var (
		recognizer textdetect.Recognizer
		backends   []*resilience.Breaker
	)
	switch cfg.OCRBackend {
	case "tesseract":
		tess, err := textdetect.NewTesseract(cfg.OCRLanguage)
		if err != nil {
			slog.Error("failed to start tesseract", "error", err)
			os.Exit(1)
		}
		defer func() { _ = tess.Close() }()
		recognizer = tess
	default:
		ocr, err := grpcclient.New(cfg.OCRAddr, grpcclient.Options{Language: cfg.OCRLanguage})
		if err != nil {
			slog.Error("failed to connect to OCR server", "addr", cfg.OCRAddr, "error", err)
			os.Exit(1)
		}
		defer func() { _ = ocr.Close() }()
		go ocr.MonitorHealth(ctx, grpcclient.DefaultHealthCheckInterval)
		recognizer = ocr
		backends = append(backends, ocr.Breaker())
	}

	extractor, err := bubble.NewExtractor(cfg.BubbleBackend)
	if err != nil {
		slog.Error("bubble detector unavailable", "backend", cfg.BubbleBackend, "error", err)
		os.Exit(1)
	}

	remote := translate.NewLibre(translate.LibreOptions{
		BaseURL: cfg.TranslateURL,
		APIKey:  cfg.TranslateAPIKey,
		Timeout: cfg.TranslateTimeout,
		Retries: cfg.TranslateRetries,
	})
	backends = append(backends, remote.Breaker())

	var l2 translate.SecondLevel
	if cfg.RedisURL != "" {
		store, err := translate.NewRedisStore(cfg.RedisURL, L2TTL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		defer func() { _ = store.Close() }()

		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := store.Ping(pingCtx); err != nil {
			slog.Warn("redis unreachable, translations cached in memory only", "error", err)
		} else {
			l2 = store
		}
		pingCancel()
	}

	overlayOpts := overlay.Options{}
	if cfg.OverlayFont != "" {
		face, err := overlay.LoadFace(cfg.OverlayFont, cfg.OverlayFontSize)
		if err != nil {
			slog.Warn("using built-in overlay font", "error", err)
		} else {
			overlayOpts.Face = face
		}
	}

	sessions := session.New(session.Deps{
		Source:     source,
		Recognizer: recognizer,
		Bubbles:    bubble.NewDetector(extractor),
		Remote:     remote,
		L2:         l2,
		Renderer:   overlay.NewRenderer(overlayOpts),
		Backends:   backends,
	}, session.Options{
		CacheMaxEntries:   cfg.CacheMaxEntries,
		SkipSimilarFrames: cfg.SkipSimilarFrames,
	})

	// Create HTTP/WebSocket server
	srv := server.New(sessions, feed, cfg)

	// No WriteTimeout: WebSocket connections are long-lived
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("screen translator starting",
			"http", cfg.HTTPAddr, "capture", cfg.CaptureProvider,
			"ocr", cfg.OCRBackend, "target", cfg.TargetLanguage)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	sessions.Close(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}
