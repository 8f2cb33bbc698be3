// OCR daemon - serves Tesseract recognition over gRPC for the screen
// translator. Build with -tags tesseract.
package main

import (
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/screen-translator/internal/config"
	"github.com/GriffinCanCode/screen-translator/internal/grpcclient"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	tess, err := textdetect.NewTesseract(cfg.OCRLanguage)
	if err != nil {
		slog.Error("failed to start tesseract", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tess.Close() }()

	lis, err := net.Listen("tcp", cfg.OCRAddr)
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.OCRAddr, "error", err)
		os.Exit(1)
	}

	srv := grpcclient.NewServer(tess)
	go func() {
		slog.Info("ocr server starting", "addr", cfg.OCRAddr, "language", cfg.OCRLanguage)
		if err := srv.Serve(lis); err != nil {
			slog.Error("grpc serve error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	srv.GracefulStop()
}
