package session

import (
	"context"
	stderrors "errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/overlay"
	"github.com/GriffinCanCode/screen-translator/internal/pipeline"
	"github.com/GriffinCanCode/screen-translator/internal/resilience"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
	"github.com/GriffinCanCode/screen-translator/internal/translate"
)

var helloBox = model.Rect{Left: 10, Top: 10, Right: 110, Bottom: 40}

type fixture struct {
	feed    *capture.Feed
	mgr     *Manager
	remote  atomic.Int32
	pushed  int
	started time.Time
}

func newFixture(t *testing.T, l2 translate.SecondLevel) *fixture {
	t.Helper()
	f := &fixture{feed: capture.NewFeed(), started: time.Now()}

	ocr := textdetect.RecognizerFunc(func(context.Context, *capture.Frame) ([]textdetect.Region, error) {
		return []textdetect.Region{{Text: "Hello", Box: helloBox}}, nil
	})
	remote := translate.RemoteFunc(func(_ context.Context, text, _, _ string) (string, error) {
		f.remote.Add(1)
		if text == "Hello" {
			return "Halo", nil
		}
		return "", stderrors.New("unknown phrase")
	})

	f.mgr = New(Deps{
		Source:     capture.NewSource(f.feed, capture.Config{Width: 32, Height: 32, TargetFPS: 1000}),
		Recognizer: ocr,
		Remote:     remote,
		L2:         l2,
		Renderer:   overlay.NewRenderer(overlay.Options{}),
	}, Options{})
	t.Cleanup(func() { f.mgr.Stop(context.Background()) })
	return f
}

func (f *fixture) push(t *testing.T) {
	t.Helper()
	f.pushed++
	fr := capture.NewFrame(image.NewGray(image.Rect(0, 0, 32, 32)), f.started.Add(time.Duration(f.pushed)*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.feed.Push(ctx, fr); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
}

// next returns the first event of type kind, skipping others.
func next(t *testing.T, events <-chan Event, kind string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-events:
			if !ok {
				t.Fatalf("event stream closed waiting for %s", kind)
			}
			if e.Type == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

var settings = pipeline.Settings{TargetLanguage: "id"}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	events := f.mgr.Events()

	st, err := f.mgr.Start(context.Background(), settings)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := uuid.Parse(st.ID); err != nil {
		t.Errorf("session id %q is not a uuid", st.ID)
	}
	if st.State != pipeline.Running {
		t.Errorf("State = %v, want running", st.State)
	}
	if st.Settings.SourceLanguage != model.AutoDetect {
		t.Errorf("source language = %q, want auto", st.Settings.SourceLanguage)
	}
	if e := next(t, events, EventStatus); e.Status.ID != st.ID {
		t.Errorf("status event for %q, want %q", e.Status.ID, st.ID)
	}

	f.push(t)
	e := next(t, events, EventTranslations)
	if len(e.Translations) != 1 || e.Translations[0].TranslatedText != "Halo" || e.Translations[0].Box != helloBox {
		t.Errorf("translations = %+v", e.Translations)
	}
	if got := f.mgr.Translations(); len(got) != 1 {
		t.Errorf("Translations() = %+v", got)
	}

	final := f.mgr.Stop(context.Background())
	if final.State != pipeline.Idle || final.EndedAt == nil || final.Error != "" {
		t.Errorf("final status = %+v", final)
	}
	if final.Stats.Published != 1 || final.Cache.Misses != 1 {
		t.Errorf("final stats = %+v cache = %+v", final.Stats, final.Cache)
	}
	next(t, events, EventClear)
	if e := next(t, events, EventStatus); e.Status.EndedAt == nil {
		t.Error("end status event missing EndedAt")
	}
	if f.feed.Active() {
		t.Error("capture still held after Stop")
	}
	if f.mgr.Status().ID != st.ID {
		t.Error("Status() after stop does not describe the last session")
	}

	// second stop is a no-op
	if again := f.mgr.Stop(context.Background()); again.ID != st.ID {
		t.Errorf("second Stop() = %+v", again)
	}
}

func TestSecondStartRejected(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.mgr.Start(context.Background(), settings); err != nil {
		t.Fatal(err)
	}
	if _, err := f.mgr.Start(context.Background(), settings); !apperrors.IsCode(err, apperrors.SessionActive) {
		t.Errorf("second Start() error = %v, want SESSION_ACTIVE", err)
	}
}

func TestInvalidSettings(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.mgr.Start(context.Background(), pipeline.Settings{TargetLanguage: "xx"})
	if !apperrors.IsCode(err, apperrors.InvalidArgument) {
		t.Errorf("Start() error = %v, want INVALID_ARGUMENT", err)
	}
	if f.feed.Active() {
		t.Error("capture acquired for invalid settings")
	}
}

func TestCachePerSession(t *testing.T) {
	f := newFixture(t, nil)
	events := f.mgr.Events()

	for i := 0; i < 2; i++ {
		if _, err := f.mgr.Start(context.Background(), settings); err != nil {
			t.Fatal(err)
		}
		f.push(t)
		next(t, events, EventTranslations)
		f.mgr.Stop(context.Background())
	}
	if n := f.remote.Load(); n != 2 {
		t.Errorf("remote calls = %d, want one per session", n)
	}
}

func TestSecondLevelSurvivesSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	l2 := translate.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	f := newFixture(t, l2)
	events := f.mgr.Events()

	for i := 0; i < 2; i++ {
		if _, err := f.mgr.Start(context.Background(), settings); err != nil {
			t.Fatal(err)
		}
		f.push(t)
		next(t, events, EventTranslations)
		f.mgr.Stop(context.Background())
	}
	if n := f.remote.Load(); n != 1 {
		t.Errorf("remote calls = %d, want 1", n)
	}

	f.mgr.ClearCache(context.Background())
	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("keys after ClearCache = %v", keys)
	}
}

func TestCaptureFaultEndsSession(t *testing.T) {
	f := newFixture(t, nil)
	events := f.mgr.Events()

	st, err := f.mgr.Start(context.Background(), settings)
	if err != nil {
		t.Fatal(err)
	}
	next(t, events, EventStatus)

	f.feed.Lose(stderrors.New("display unplugged"))

	e := next(t, events, EventStatus)
	if e.Status.ID != st.ID || e.Status.ErrorCode != string(apperrors.CaptureLost) {
		t.Errorf("fault status = %+v", e.Status)
	}
	if got := f.mgr.Status(); got.State != pipeline.Idle || got.ErrorCode != string(apperrors.CaptureLost) {
		t.Errorf("Status() = %+v", got)
	}

	if _, err := f.mgr.Start(context.Background(), settings); err != nil {
		t.Errorf("restart after fault error = %v", err)
	}
}

func TestCaptureDenied(t *testing.T) {
	f := newFixture(t, nil)
	f.feed.Deny(stderrors.New("permission refused"))

	_, err := f.mgr.Start(context.Background(), settings)
	if !apperrors.IsCode(err, apperrors.CaptureUnavailable) {
		t.Errorf("Start() error = %v, want CAPTURE_UNAVAILABLE", err)
	}
	if f.mgr.deps.Renderer.Attached() {
		t.Error("overlay left attached after failed start")
	}
}

func TestOverlayAttachFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.mgr.Close(context.Background())

	_, err := f.mgr.Start(context.Background(), settings)
	if !apperrors.IsCode(err, apperrors.OverlayAttachFailed) {
		t.Errorf("Start() error = %v, want OVERLAY_ATTACH_FAILED", err)
	}
	if f.feed.Active() {
		t.Error("capture acquired without an overlay")
	}
}

func TestHubNeverBlocks(t *testing.T) {
	h := newHub(2)
	for i := 0; i < 5; i++ {
		h.Emit(Event{Type: EventClear})
	}
	if h.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", h.Dropped())
	}

	h.Close()
	h.Emit(Event{Type: EventClear})
	h.Close()

	n := 0
	for range h.Events() {
		n++
	}
	if n != 2 {
		t.Errorf("buffered events = %d, want 2", n)
	}
}

func TestBackendStateReported(t *testing.T) {
	b := resilience.New(resilience.Config{Name: "translate", Threshold: 1, ResetTimeout: time.Hour})
	m := New(Deps{Renderer: overlay.NewRenderer(overlay.Options{}), Backends: []*resilience.Breaker{b}}, Options{})

	b.Failure()

	e := next(t, m.Events(), EventBackend)
	if e.Backend.Name != "translate" || e.Backend.State != "open" {
		t.Errorf("backend event = %+v", e.Backend)
	}

	_ = b.Allow()
	st := m.Status()
	if len(st.Backends) != 1 || st.Backends[0].State != "open" || st.Backends[0].Rejected != 1 {
		t.Errorf("Status().Backends = %+v", st.Backends)
	}
}
