//go:build !linux && !darwin && !windows

package capture

import (
	"context"
	stderrors "errors"
)

var errUnsupported = stderrors.New("screen capture not supported on this platform")

type unsupportedBackend struct{}

func platformBackend() backend { return unsupportedBackend{} }

func (unsupportedBackend) available() error { return errUnsupported }

func (unsupportedBackend) captureRaw(context.Context, string) ([]byte, error) {
	return nil, errUnsupported
}
