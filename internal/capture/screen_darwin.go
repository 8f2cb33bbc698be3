//go:build darwin

package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type darwinBackend struct{}

func platformBackend() backend { return darwinBackend{} }

func (darwinBackend) available() error {
	_, err := exec.LookPath("screencapture")
	return err
}

func (darwinBackend) captureRaw(ctx context.Context, tempDir string) ([]byte, error) {
	tmpFile := filepath.Join(tempDir, "screenshot.png")
	// -x: no sound, -m: main display only
	cmd := exec.CommandContext(ctx, "screencapture", "-x", "-t", "png", "-m", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screencapture: %w: %s", err, stderr.String())
	}
	defer os.Remove(tmpFile)
	return os.ReadFile(tmpFile)
}
