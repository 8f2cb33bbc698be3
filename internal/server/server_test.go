package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	"github.com/GriffinCanCode/screen-translator/internal/config"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/pipeline"
	"github.com/GriffinCanCode/screen-translator/internal/session"
)

// mockSessions for testing.
type mockSessions struct {
	mu       sync.Mutex
	started  []pipeline.Settings
	startErr error
	cleared  bool
	status   session.Status
	events   chan session.Event
}

func newMockSessions() *mockSessions {
	return &mockSessions{
		status: session.Status{ID: "s-1", State: pipeline.Running},
		events: make(chan session.Event, 10),
	}
}

func (m *mockSessions) Start(_ context.Context, s pipeline.Settings) (session.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, s)
	if m.startErr != nil {
		return session.Status{}, m.startErr
	}
	return m.status, nil
}

func (m *mockSessions) Stop(context.Context) session.Status {
	return session.Status{ID: "s-1", State: pipeline.Idle}
}

func (m *mockSessions) Status() session.Status { return m.status }

func (m *mockSessions) ClearCache(context.Context) {
	m.mu.Lock()
	m.cleared = true
	m.mu.Unlock()
}

func (m *mockSessions) Overlay(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func (m *mockSessions) Events() <-chan session.Event { return m.events }

func newTestServer(feed *capture.Feed) (*Server, *mockSessions) {
	m := newMockSessions()
	return New(m, feed, config.Defaults()), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Test OPTIONS request
	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}
}

func TestSessionStart(t *testing.T) {
	s, m := newTestServer(nil)
	h := s.Handler()

	rec := do(t, h, "POST", "/api/session/start", `{"targetLanguage": "ja", "detectOrientation": false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var st session.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.ID != "s-1" || st.State != pipeline.Running {
		t.Errorf("status = %+v", st)
	}

	got := m.started[0]
	want := pipeline.Settings{SourceLanguage: "auto", TargetLanguage: "ja", DetectBubbles: true, DetectOrientation: false}
	if got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}

	// empty body starts with configured defaults
	if rec := do(t, h, "POST", "/api/session/start", ""); rec.Code != http.StatusOK {
		t.Errorf("empty body status = %d", rec.Code)
	}
	if m.started[1].TargetLanguage != "id" {
		t.Errorf("default target = %q", m.started[1].TargetLanguage)
	}
}

func TestSessionStartErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		status   int
		code     string
	}{
		{"bad json", `{"targetLanguage":`, nil, http.StatusBadRequest, "INVALID_ARGUMENT"},
		{"active", `{}`, apperrors.New(apperrors.SessionActive, "running"), http.StatusConflict, "SESSION_ACTIVE"},
		{"capture", `{}`, apperrors.New(apperrors.CaptureUnavailable, "denied"), http.StatusServiceUnavailable, "CAPTURE_UNAVAILABLE"},
		{"overlay", `{}`, apperrors.New(apperrors.OverlayAttachFailed, "no surface"), http.StatusInternalServerError, "OVERLAY_ATTACH_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := newTestServer(nil)
			m.startErr = tt.startErr

			rec := do(t, s.Handler(), "POST", "/api/session/start", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Code != tt.code {
				t.Errorf("code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

func TestReadRoutes(t *testing.T) {
	s, m := newTestServer(nil)
	h := s.Handler()

	rec := do(t, h, "POST", "/api/session/stop", "")
	if !strings.Contains(rec.Body.String(), `"state":"idle"`) {
		t.Errorf("stop body = %s", rec.Body)
	}

	rec = do(t, h, "GET", "/api/session", "")
	if !strings.Contains(rec.Body.String(), `"state":"running"`) {
		t.Errorf("status body = %s", rec.Body)
	}

	rec = do(t, h, "GET", "/api/languages", "")
	var langs []model.LanguageOption
	if err := json.Unmarshal(rec.Body.Bytes(), &langs); err != nil {
		t.Fatal(err)
	}
	if len(langs) != len(model.Languages()) || langs[0].Code != model.AutoDetect {
		t.Errorf("languages = %+v", langs)
	}

	if rec := do(t, h, "POST", "/api/cache/clear", ""); rec.Code != http.StatusOK || !m.cleared {
		t.Errorf("cache clear status = %d cleared = %v", rec.Code, m.cleared)
	}

	if rec := do(t, h, "GET", "/api/session/start", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET start status = %d", rec.Code)
	}
}

func TestOverlayPNG(t *testing.T) {
	s, _ := newTestServer(nil)
	h := s.Handler()

	rec := do(t, h, "GET", "/api/overlay.png?width=40&height=30", "")
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 30 {
		t.Errorf("bounds = %v", img.Bounds())
	}

	for _, q := range []string{"width=0", "width=abc", "height=99999"} {
		if rec := do(t, h, "GET", "/api/overlay.png?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, rec.Code)
		}
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestOverlayWebSocket(t *testing.T) {
	s, m := newTestServer(nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var evt session.Event
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != session.EventStatus || evt.Status.ID != "s-1" {
		t.Errorf("greeting = %+v", evt)
	}

	for s.Clients() == 0 {
		time.Sleep(time.Millisecond)
	}
	box := model.Rect{Left: 10, Top: 10, Right: 110, Bottom: 40}
	m.events <- session.Event{Type: session.EventTranslations, Translations: []model.TranslationResult{{OriginalText: "Hello", TranslatedText: "Halo", Box: box}}}
	m.events <- session.Event{Type: session.EventClear}

	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != session.EventTranslations || evt.Translations[0].TranslatedText != "Halo" || evt.Translations[0].Box != box {
		t.Errorf("event = %+v", evt)
	}
	evt = session.Event{}
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != session.EventClear {
		t.Errorf("event type = %q, want clear", evt.Type)
	}

	if err := wsjson.Write(ctx, conn, Message{Type: "status"}); err != nil {
		t.Fatal(err)
	}
	evt = session.Event{}
	if err := wsjson.Read(ctx, conn, &evt); err != nil {
		t.Fatal(err)
	}
	if evt.Type != session.EventStatus {
		t.Errorf("status reply type = %q", evt.Type)
	}
}

func TestCaptureSocketDisabled(t *testing.T) {
	s, _ := newTestServer(nil)
	if rec := do(t, s.Handler(), "GET", "/ws/capture", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCaptureSocketFeedsSource(t *testing.T) {
	feed := capture.NewFeed()
	s, _ := newTestServer(feed)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(ts, "/ws/capture"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	frame := func(seq uint64) []byte {
		msg, err := capture.EncodeWireFrame(capture.WireFrame{
			Seq: seq, Width: 2, Height: 2, Format: "gray8",
			Timestamp: time.Now().UnixMilli(), Data: []byte{1, 2, 3, 4},
		})
		if err != nil {
			t.Fatal(err)
		}
		return msg
	}

	// no session holds the feed yet
	if err := conn.Write(ctx, websocket.MessageBinary, frame(1)); err != nil {
		t.Fatal(err)
	}
	var reply ErrorMessage
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Code != "SESSION_INACTIVE" {
		t.Errorf("reply = %+v", reply)
	}

	// malformed payload
	if err := conn.Write(ctx, websocket.MessageBinary, []byte{0xc1}); err != nil {
		t.Fatal(err)
	}
	if err := wsjson.Read(ctx, conn, &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Code != "BAD_FRAME" {
		t.Errorf("reply = %+v", reply)
	}

	src := capture.NewSource(feed, capture.Config{Width: 2, Height: 2})
	if err := src.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = src.Stop() }()

	if err := conn.Write(ctx, websocket.MessageBinary, frame(7)); err != nil {
		t.Fatal(err)
	}
	f, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if f.Seq != 7 || f.Width != 2 || f.Format != capture.Gray8 {
		t.Errorf("frame = seq %d width %d format %v", f.Seq, f.Width, f.Format)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{limit: 2}
	if !rl.allow() || !rl.allow() {
		t.Fatal("first two messages rejected")
	}
	if rl.allow() {
		t.Error("third message in window allowed")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[apperrors.ErrorCode]int{
		apperrors.InvalidArgument:    http.StatusBadRequest,
		apperrors.SessionActive:      http.StatusConflict,
		apperrors.CaptureUnavailable: http.StatusServiceUnavailable,
		apperrors.Unknown:            http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := httpStatus(code); got != want {
			t.Errorf("httpStatus(%s) = %d, want %d", code, got, want)
		}
	}
}
