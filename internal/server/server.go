package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	"github.com/GriffinCanCode/screen-translator/internal/config"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/pipeline"
	"github.com/GriffinCanCode/screen-translator/internal/session"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

// Sessions is the session control the server exposes. *session.Manager
// satisfies it.
type Sessions interface {
	Start(ctx context.Context, s pipeline.Settings) (session.Status, error)
	Stop(ctx context.Context) session.Status
	Status() session.Status
	ClearCache(ctx context.Context)
	Overlay(w, h int) image.Image
	Events() <-chan session.Event
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	limit      int
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= r.limit {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// client is one overlay WebSocket. Events are written in order by a single
// writer goroutine.
type client struct {
	conn *websocket.Conn
	out  chan any
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	sess     Sessions
	feed     *capture.Feed
	defaults pipeline.Settings
	width    int
	height   int

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

// New creates a new server. feed is nil unless frames arrive over
// /ws/capture.
func New(sess Sessions, feed *capture.Feed, cfg *config.Config) *Server {
	s := &Server{
		sess: sess,
		feed: feed,
		defaults: pipeline.Settings{
			SourceLanguage:    cfg.SourceLanguage,
			TargetLanguage:    cfg.TargetLanguage,
			DetectBubbles:     cfg.DetectBubbles,
			DetectOrientation: cfg.DetectOrientation,
		},
		width:   cfg.CaptureWidth,
		height:  cfg.CaptureHeight,
		clients: make(map[*websocket.Conn]*client),
	}

	go s.broadcastEvents()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoints
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/ws/capture", s.handleCaptureSocket)

	// REST API
	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/stop", s.handleSessionStop)
	mux.HandleFunc("GET /api/session", s.handleSessionStatus)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("POST /api/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET /api/overlay.png", s.handleOverlay)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), errorBody{Error: err.Error(), Code: string(code)})
}

func httpStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.InvalidArgument, apperrors.ConfigInvalid:
		return http.StatusBadRequest
	case apperrors.NotFound:
		return http.StatusNotFound
	case apperrors.SessionActive, apperrors.SessionInactive:
		return http.StatusConflict
	case apperrors.CaptureUnavailable, apperrors.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	settings := s.defaults
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.Wrap(err, apperrors.InvalidArgument, "decode session settings"))
		return
	}

	st, err := s.sess.Start(r.Context(), settings)
	if err != nil {
		trace.Logger(r.Context()).Warn("session start failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Stop(r.Context()))
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.sess.Status())
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.Languages())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.sess.ClearCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	width, err := dimension(r, "width", s.width)
	if err != nil {
		writeError(w, err)
		return
	}
	height, err := dimension(r, "height", s.height)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, s.sess.Overlay(width, height)); err != nil {
		trace.Logger(r.Context()).Warn("overlay encode failed", "error", err)
	}
}

func dimension(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > MaxOverlaySide {
		return 0, apperrors.Newf(apperrors.InvalidArgument, "%s must be in [1, %d], got %q", key, MaxOverlaySide, v)
	}
	return n, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Get trace context from HTTP upgrade request
	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("overlay client connected", "remote", r.RemoteAddr)

	c := &client{conn: conn, out: make(chan any, ClientQueue)}
	st := s.sess.Status()
	c.out <- session.Event{Type: session.EventStatus, Status: &st}

	s.mu.Lock()
	s.clients[conn] = c
	s.mu.Unlock()

	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(baseCtx))
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(writerCtx)
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		stopWriter()
		<-writerDone
	}()

	rl := &rateLimiter{limit: ControlRateLimit}
	for {
		var msg Message
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.send(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		switch msg.Type {
		case "status":
			st := s.sess.Status()
			c.send(session.Event{Type: session.EventStatus, Status: &st})
		}
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, m)
			cancel()
			if err != nil {
				slog.Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

// send queues m without blocking; a full queue drops it.
func (c *client) send(m any) bool {
	select {
	case c.out <- m:
		return true
	default:
		return false
	}
}

func (s *Server) broadcastEvents() {
	for evt := range s.sess.Events() {
		s.mu.RLock()
		for _, c := range s.clients {
			if !c.send(evt) {
				slog.Warn("overlay client lagging, event dropped", "type", evt.Type)
			}
		}
		s.mu.RUnlock()
	}
}

// Clients reports the number of connected overlay clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
