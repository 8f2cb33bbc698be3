// Package session wires capture, detection, translation and the overlay into
// start/stop-able translation sessions for the host control surface.
package session

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/overlay"
	"github.com/GriffinCanCode/screen-translator/internal/pipeline"
	"github.com/GriffinCanCode/screen-translator/internal/resilience"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
	"github.com/GriffinCanCode/screen-translator/internal/translate"
)

// EventBuffer is the capacity of the overlay event stream.
const EventBuffer = 64

// Deps are shared by every session. Source and Renderer are reused; a fresh
// translation cache is built over Remote for each session.
type Deps struct {
	Source     pipeline.FrameSource
	Recognizer textdetect.Recognizer
	Bubbles    pipeline.BubbleDetector
	Remote     translate.Remote
	L2         translate.SecondLevel
	Renderer   *overlay.Renderer

	// Backends are the breakers guarding remote OCR and translation; their
	// state is reported in Status and pushed as backend events.
	Backends []*resilience.Breaker
}

type Options struct {
	CacheMaxEntries   int
	SkipSimilarFrames bool
	MaxHashDistance   int
}

// Status describes the current session, or the last one when idle.
type Status struct {
	ID        string             `json:"id,omitempty"`
	State     pipeline.State     `json:"state"`
	Settings  *pipeline.Settings `json:"settings,omitempty"`
	StartedAt *time.Time         `json:"started_at,omitempty"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	Stats     pipeline.Stats     `json:"stats"`
	Cache     translate.Stats    `json:"cache"`
	Shown     int                `json:"shown"`
	Error     string             `json:"error,omitempty"`
	ErrorCode string             `json:"error_code,omitempty"`
	Backends  []Backend          `json:"backends,omitempty"`
}

// Backend is the circuit state of one remote dependency.
type Backend struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Rejected uint64 `json:"rejected"`
}

// active is one running session.
type active struct {
	id       string
	settings pipeline.Settings
	started  time.Time
	cache    *translate.Cache
	coord    *pipeline.Coordinator
}

// Manager runs at most one session at a time.
type Manager struct {
	deps Deps
	opts Options
	hub  *hub

	state atomic.Int32

	mu   sync.Mutex
	cur  *active
	last Status
}

func New(deps Deps, opts Options) *Manager {
	m := &Manager{
		deps: deps,
		opts: opts,
		hub:  newHub(EventBuffer),
	}
	m.last = Status{State: pipeline.Idle}
	for _, b := range deps.Backends {
		b.WithHook(m.backendChanged)
	}
	return m
}

// Events streams overlay notifications until Close.
func (m *Manager) Events() <-chan Event {
	return m.hub.Events()
}

// Start begins a session. A session already running is SESSION_ACTIVE; an
// overlay that cannot be shown ends the attempt before capture starts.
func (m *Manager) Start(ctx context.Context, s pipeline.Settings) (Status, error) {
	ctx, span := trace.StartSpan(ctx, "session_start")
	defer span.End()

	if err := s.Validate(); err != nil {
		span.Fail(err)
		return Status{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		return Status{}, apperrors.Newf(apperrors.SessionActive, "session %s is running", m.cur.id)
	}

	cache, err := translate.New(m.deps.Remote, translate.Options{
		MaxEntries: m.opts.CacheMaxEntries,
		L2:         m.deps.L2,
	})
	if err != nil {
		span.Fail(err)
		return Status{}, err
	}

	a := &active{
		id:       uuid.NewString(),
		settings: s,
		started:  time.Now(),
		cache:    cache,
	}
	a.coord = pipeline.New(pipeline.Deps{
		Source:     m.deps.Source,
		Recognizer: m.deps.Recognizer,
		Bubbles:    m.deps.Bubbles,
		Translator: cache,
		Renderer:   m.deps.Renderer,
	}, pipeline.Options{
		SkipSimilarFrames: m.opts.SkipSimilarFrames,
		MaxHashDistance:   m.opts.MaxHashDistance,
		Hooks: pipeline.Hooks{
			OnBubbles: m.publishBubbles,
			OnFault:   func(err error) { go m.end(a.id, err) },
			OnState:   func(st pipeline.State) { m.state.Store(int32(st)) },
		},
	})
	span.SetAttr("session", a.id)

	if err := m.deps.Renderer.Attach(&eventSurface{m: m}); err != nil {
		span.Fail(err)
		return Status{}, err
	}
	if err := a.coord.Start(ctx, s); err != nil {
		_ = m.deps.Renderer.Detach()
		span.Fail(err)
		return Status{}, err
	}

	m.cur = a
	st := m.statusLocked()
	m.hub.Emit(Event{Type: EventStatus, Status: &st})
	trace.Logger(ctx).Info("session started", "session", a.id, "target", s.TargetLanguage)
	return st, nil
}

// Stop ends the running session and returns its final status. Stopping with
// no session running is a no-op.
func (m *Manager) Stop(ctx context.Context) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil {
		return m.last
	}
	m.cur.coord.Stop()
	st := m.teardownLocked(nil)
	trace.Logger(ctx).Info("session stopped", "session", st.ID, "stats", st.Stats)
	return st
}

// end tears down session id after a pipeline fault, unless it already ended.
func (m *Manager) end(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur == nil || m.cur.id != id {
		return
	}
	m.cur.coord.Stop()
	st := m.teardownLocked(err)
	trace.Logger(context.Background()).Error("session ended by fault", "session", id, "code", st.ErrorCode, "error", err)
}

// teardownLocked drops the session's cache and overlay. Called with mu held
// after the coordinator has stopped.
func (m *Manager) teardownLocked(cause error) Status {
	a := m.cur
	m.deps.Renderer.Clear()

	st := m.statusLocked()
	ended := time.Now()
	st.EndedAt = &ended
	st.State = pipeline.Idle
	if cause != nil {
		st.Error = cause.Error()
		st.ErrorCode = string(apperrors.CodeOf(cause))
	}

	if err := m.deps.Renderer.Detach(); err != nil {
		trace.Logger(context.Background()).Warn("overlay detach failed", "session", a.id, "error", err)
	}
	m.cur = nil
	m.last = st
	m.hub.Emit(Event{Type: EventStatus, Status: &st})
	return st
}

// Status reports the running session, or the last one.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		return m.statusLocked()
	}
	st := m.last
	st.Backends = m.backends()
	return st
}

func (m *Manager) backends() []Backend {
	if len(m.deps.Backends) == 0 {
		return nil
	}
	out := make([]Backend, 0, len(m.deps.Backends))
	for _, b := range m.deps.Backends {
		out = append(out, Backend{Name: b.Name(), State: b.State().String(), Rejected: b.Rejected()})
	}
	return out
}

// backendChanged runs on whichever goroutine tripped the breaker, possibly
// the pipeline's, so it must not take mu.
func (m *Manager) backendChanged(name string, _, to resilience.State) {
	m.hub.Emit(Event{Type: EventBackend, Backend: &Backend{Name: name, State: to.String()}})
}

func (m *Manager) statusLocked() Status {
	a := m.cur
	settings := a.settings
	started := a.started
	return Status{
		ID:        a.id,
		State:     pipeline.State(m.state.Load()),
		Settings:  &settings,
		StartedAt: &started,
		Stats:     a.coord.Stats(),
		Cache:     a.cache.Stats(),
		Shown:     m.deps.Renderer.Len(),
		Backends:  m.backends(),
	}
}

// ClearCache empties the running session's cache and the shared second
// level, if any.
func (m *Manager) ClearCache(ctx context.Context) {
	m.mu.Lock()
	a := m.cur
	m.mu.Unlock()

	if a != nil {
		a.cache.Clear(ctx)
		return
	}
	if m.deps.L2 != nil {
		if err := m.deps.L2.Clear(ctx); err != nil {
			trace.Logger(ctx).Warn("translation l2 clear failed", "error", err)
		}
	}
}

// Overlay paints the displayed translations onto a transparent w×h image.
func (m *Manager) Overlay(w, h int) image.Image {
	return m.deps.Renderer.Render(w, h)
}

// Translations returns the displayed set.
func (m *Manager) Translations() []model.TranslationResult {
	return m.deps.Renderer.Snapshot()
}

// Bubbles returns the bubbles of the last analyzed frame.
func (m *Manager) Bubbles() []model.SpeechBubble {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return []model.SpeechBubble{}
	}
	return m.cur.coord.Bubbles()
}

// Close stops any session and ends the event stream.
func (m *Manager) Close(ctx context.Context) {
	m.Stop(ctx)
	m.hub.Close()
}

func (m *Manager) publishBubbles(b []model.SpeechBubble) {
	m.hub.Emit(Event{Type: EventBubbles, Bubbles: append([]model.SpeechBubble{}, b...)})
}

// eventSurface presents the overlay to pushed clients: every invalidation
// becomes a translations or clear event carrying the full displayed set.
type eventSurface struct {
	m *Manager
}

func (s *eventSurface) Attach() error {
	if s.m.hub.Closed() {
		return apperrors.New(apperrors.Unavailable, "overlay event stream closed")
	}
	return nil
}

func (s *eventSurface) Detach() error { return nil }

func (s *eventSurface) Invalidate() {
	shown := s.m.deps.Renderer.Snapshot()
	if len(shown) == 0 {
		s.m.hub.Emit(Event{Type: EventClear})
		return
	}
	s.m.hub.Emit(Event{Type: EventTranslations, Translations: shown})
}
