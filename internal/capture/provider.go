package capture

import "context"

// Handle identifies one acquired capture surface.
type Handle uint64

// Provider is the platform capture surface. Start acquires the surface
// (including any permission prompt), OnFrame blocks for the next captured
// frame and Stop releases the surface.
type Provider interface {
	Start(ctx context.Context, width, height int, format PixelFormat) (Handle, error)
	OnFrame(ctx context.Context, h Handle) (*Frame, error)
	Stop(h Handle) error
}
