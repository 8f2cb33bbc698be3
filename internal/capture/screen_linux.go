//go:build linux

package capture

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

type linuxBackend struct{}

func platformBackend() backend { return linuxBackend{} }

func (linuxBackend) tool() (string, []string, bool) {
	if _, err := exec.LookPath("gnome-screenshot"); err == nil {
		return "gnome-screenshot", []string{"-f"}, true
	}
	if _, err := exec.LookPath("scrot"); err == nil {
		return "scrot", []string{"-o"}, true
	}
	return "", nil, false
}

func (l linuxBackend) available() error {
	if _, _, ok := l.tool(); !ok {
		return stderrors.New("install gnome-screenshot or scrot")
	}
	return nil
}

func (l linuxBackend) captureRaw(ctx context.Context, tempDir string) ([]byte, error) {
	name, args, ok := l.tool()
	if !ok {
		return nil, stderrors.New("no screenshot tool found")
	}
	tmpFile := filepath.Join(tempDir, "screenshot.png")
	cmd := exec.CommandContext(ctx, name, append(args, tmpFile)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, stderr.String())
	}
	defer os.Remove(tmpFile)
	return os.ReadFile(tmpFile)
}
