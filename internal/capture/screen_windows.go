//go:build windows

package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const psCapture = `Add-Type -AssemblyName System.Windows.Forms,System.Drawing;` +
	`$b=[System.Windows.Forms.Screen]::PrimaryScreen.Bounds;` +
	`$bmp=New-Object System.Drawing.Bitmap $b.Width,$b.Height;` +
	`$g=[System.Drawing.Graphics]::FromImage($bmp);` +
	`$g.CopyFromScreen($b.Location,[System.Drawing.Point]::Empty,$b.Size);` +
	`$bmp.Save($args[0],[System.Drawing.Imaging.ImageFormat]::Png)`

type windowsBackend struct{}

func platformBackend() backend { return windowsBackend{} }

func (windowsBackend) available() error {
	_, err := exec.LookPath("powershell")
	return err
}

func (windowsBackend) captureRaw(ctx context.Context, tempDir string) ([]byte, error) {
	tmpFile := filepath.Join(tempDir, "screenshot.png")
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command",
		"& {"+psCapture+"}", tmpFile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("powershell capture: %w: %s", err, stderr.String())
	}
	defer os.Remove(tmpFile)
	return os.ReadFile(tmpFile)
}
