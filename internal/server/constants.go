// Package server provides the HTTP and WebSocket host control surface
package server

import "time"

// Server configuration constants
const (
	// Sliding-window limits per WebSocket connection
	RateLimitWindow        = time.Second
	ControlRateLimit       = 30  // control messages on /ws
	CaptureRateLimitFrames = 120 // frames on /ws/capture; excess frames are dropped

	// MaxFrameBytes bounds one binary capture message (raw 1080x1920 RGBA fits)
	MaxFrameBytes = 16 << 20

	// Per-client outbound queue; a client that falls this far behind misses events
	ClientQueue  = 32
	WriteTimeout = 5 * time.Second

	// Largest overlay image served by /api/overlay.png
	MaxOverlaySide = 8192
)
