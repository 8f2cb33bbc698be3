package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

// handleCaptureSocket receives msgpack frames from a remote capture client
// and feeds them to the running session. Push blocks until the session takes
// the frame, so a busy pipeline slows the client down instead of queueing.
func (s *Server) handleCaptureSocket(w http.ResponseWriter, r *http.Request) {
	if s.feed == nil {
		http.Error(w, "remote capture disabled", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("capture websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
	conn.SetReadLimit(MaxFrameBytes)

	ctx := r.Context()
	log := trace.Logger(ctx)
	log.Info("capture client connected", "remote", r.RemoteAddr)

	rl := &rateLimiter{limit: CaptureRateLimitFrames}
	var received, dropped uint64
	defer func() {
		log.Info("capture client disconnected", "received", received, "dropped", dropped)
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			log.Debug("capture read error", "error", err)
			return
		}
		if typ != websocket.MessageBinary {
			continue
		}
		received++

		if !rl.allow() {
			dropped++
			continue
		}

		f, err := capture.DecodeWireFrame(data)
		if err != nil {
			log.Warn("bad capture frame", "error", err)
			s.reply(ctx, conn, ErrorMessage{Type: "error", Message: err.Error(), Code: "BAD_FRAME"})
			continue
		}

		if err := s.feed.Push(ctx, f); err != nil {
			if errors.Is(err, capture.ErrFeedIdle) {
				dropped++
				s.reply(ctx, conn, ErrorMessage{Type: "error", Message: "no active session", Code: "SESSION_INACTIVE"})
				continue
			}
			return
		}
	}
}

func (s *Server) reply(ctx context.Context, conn *websocket.Conn, m any) {
	wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	_ = wsjson.Write(wctx, conn, m)
}
