// Package pipeline runs frame analysis: capture, text and bubble detection,
// translation and the hand-off to the overlay.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/corona10/goimagehash"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/screen-translator/internal/capture"
	apperrors "github.com/GriffinCanCode/screen-translator/internal/errors"
	"github.com/GriffinCanCode/screen-translator/internal/model"
	"github.com/GriffinCanCode/screen-translator/internal/syncx"
	"github.com/GriffinCanCode/screen-translator/internal/textdetect"
	"github.com/GriffinCanCode/screen-translator/internal/trace"
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	case "stopping":
		*s = Stopping
	default:
		return apperrors.Newf(apperrors.InvalidArgument, "unknown pipeline state %q", b)
	}
	return nil
}

// Settings parameterize one run.
type Settings struct {
	SourceLanguage    string `json:"sourceLanguage"`
	TargetLanguage    string `json:"targetLanguage"`
	DetectBubbles     bool   `json:"detectBubbles"`
	DetectOrientation bool   `json:"detectOrientation"`
}

// Validate fills the source default and rejects languages outside the
// catalog.
func (s *Settings) Validate() error {
	if s.SourceLanguage == "" {
		s.SourceLanguage = model.AutoDetect
	}
	if _, ok := model.LookupLanguage(s.SourceLanguage); !ok {
		return apperrors.Newf(apperrors.InvalidArgument, "invalid source language %q", s.SourceLanguage)
	}
	if !model.ValidTarget(s.TargetLanguage) {
		return apperrors.Newf(apperrors.InvalidArgument, "invalid target language %q", s.TargetLanguage)
	}
	return nil
}

// FrameSource delivers throttled frames. *capture.Source satisfies it.
type FrameSource interface {
	Start(ctx context.Context) error
	Next(ctx context.Context) (*capture.Frame, error)
	Stop() error
}

// BubbleDetector finds speech bubbles. *bubble.Detector satisfies it.
type BubbleDetector interface {
	Detect(ctx context.Context, f *capture.Frame) []model.SpeechBubble
}

// Translator never fails; it falls back to the input. *translate.Cache
// satisfies it.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) string
}

// checkedTranslator also reports fallbacks, so a frame whose text could not
// be translated is never taken as the similar-frame reference.
type checkedTranslator interface {
	TranslateChecked(ctx context.Context, text, source, target string) (string, bool)
}

// Renderer receives whole batches. *overlay.Renderer satisfies it.
type Renderer interface {
	Update(batch []model.TranslationResult)
	Clear()
}

type Deps struct {
	Source     FrameSource
	Recognizer textdetect.Recognizer
	Bubbles    BubbleDetector
	Translator Translator
	Renderer   Renderer
}

// Hooks are called from the pipeline goroutine and must not block.
type Hooks struct {
	OnBubbles func(bubbles []model.SpeechBubble)
	OnFault   func(err error)
	OnState   func(s State)
}

type Options struct {
	SkipSimilarFrames bool
	MaxHashDistance   int
	Hooks             Hooks
}

type Stats struct {
	Analyzed  uint64 `json:"analyzed"`
	Skipped   uint64 `json:"skipped"`
	Textless  uint64 `json:"textless"`
	Published uint64 `json:"published"`
	Abandoned uint64 `json:"abandoned"`
}

// Coordinator owns the Idle → Running → Stopping → Idle lifecycle. At most
// one frame is analyzed at a time; frames arriving meanwhile replace each
// other in the source and only the newest is analyzed next.
type Coordinator struct {
	deps Deps
	opts Options
	gate *similarGate

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	released chan struct{}

	bubbles *syncx.RWGuard[[]model.SpeechBubble]

	analyzed  atomic.Uint64
	skipped   atomic.Uint64
	textless  atomic.Uint64
	published atomic.Uint64
	abandoned atomic.Uint64
}

func New(deps Deps, opts Options) *Coordinator {
	return &Coordinator{
		deps:    deps,
		opts:    opts,
		gate:    newSimilarGate(opts.MaxHashDistance),
		bubbles: syncx.NewGuard([]model.SpeechBubble{}),
	}
}

// Start acquires the frame source and begins analysis. The run outlives ctx;
// only Stop or a capture fault ends it.
func (c *Coordinator) Start(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return apperrors.Newf(apperrors.SessionActive, "pipeline is %s", c.state)
	}
	if err := c.deps.Source.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.released = make(chan struct{})
	c.gate.Reset()
	c.bubbles.Set([]model.SpeechBubble{})

	detector := textdetect.NewDetector(c.deps.Recognizer, textdetect.Options{DetectOrientation: s.DetectOrientation})
	go c.loop(runCtx, s, detector, c.done)

	c.setState(Running)
	trace.Logger(ctx).Info("pipeline started",
		"source", s.SourceLanguage, "target", s.TargetLanguage,
		"bubbles", s.DetectBubbles, "orientation", s.DetectOrientation)
	return nil
}

// Stop cancels in-flight work, waits for it to unwind and releases the
// source. Stopping an idle coordinator is a no-op; concurrent callers all
// return once the source is released.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	switch c.state {
	case Idle:
		c.mu.Unlock()
		return
	case Stopping:
		released := c.released
		c.mu.Unlock()
		<-released
		return
	}
	c.setState(Stopping)
	cancel, done, released := c.cancel, c.done, c.released
	c.mu.Unlock()

	cancel()
	<-done
	if err := c.deps.Source.Stop(); err != nil {
		trace.Logger(context.Background()).Warn("frame source release failed", "error", err)
	}

	c.mu.Lock()
	c.setState(Idle)
	c.mu.Unlock()
	close(released)
	trace.Logger(context.Background()).Info("pipeline stopped", "stats", c.Stats())
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bubbles returns the bubbles of the last published frame.
func (c *Coordinator) Bubbles() []model.SpeechBubble {
	return syncx.View(c.bubbles, func(b []model.SpeechBubble) []model.SpeechBubble {
		return append([]model.SpeechBubble(nil), b...)
	})
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Analyzed:  c.analyzed.Load(),
		Skipped:   c.skipped.Load(),
		Textless:  c.textless.Load(),
		Published: c.published.Load(),
		Abandoned: c.abandoned.Load(),
	}
}

// setState must be called with mu held.
func (c *Coordinator) setState(s State) {
	c.state = s
	if c.opts.Hooks.OnState != nil {
		c.opts.Hooks.OnState(s)
	}
}

func (c *Coordinator) loop(ctx context.Context, s Settings, detector *textdetect.Detector, done chan struct{}) {
	defer close(done)

	for {
		f, err := c.deps.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fault(err)
			return
		}
		c.analyze(ctx, f, s, detector)
	}
}

// fault ends the run after a capture error. Stop waits for the loop, so it
// runs on its own goroutine.
func (c *Coordinator) fault(err error) {
	if !apperrors.IsTerminal(err) {
		err = apperrors.Wrap(err, apperrors.CaptureLost, "frame source ended")
	}
	trace.Logger(context.Background()).Error("pipeline fault", "error", err)
	if c.opts.Hooks.OnFault != nil {
		c.opts.Hooks.OnFault(err)
	}
	go c.Stop()
}

// analyze runs one frame through detection and translation and publishes the
// complete batch, or nothing if ctx is cancelled first.
func (c *Coordinator) analyze(ctx context.Context, f *capture.Frame, s Settings, detector *textdetect.Detector) {
	if f.TraceID != "" {
		ctx = trace.WithContext(ctx, trace.FromID(f.TraceID))
	}
	ctx, span := trace.StartSpan(ctx, "analyze_frame")
	defer span.End()
	span.SetAttr("seq", f.Seq)

	if ctx.Err() != nil {
		c.abandoned.Add(1)
		return
	}
	var hash *goimagehash.ImageHash
	if c.opts.SkipSimilarFrames {
		var similar bool
		if hash, similar = c.gate.Check(f.Image); similar {
			c.skipped.Add(1)
			span.SetAttr("skipped", true)
			return
		}
	}
	c.analyzed.Add(1)

	blocks := detector.Detect(ctx, f)
	if ctx.Err() != nil {
		c.abandoned.Add(1)
		return
	}
	span.SetAttr("blocks", len(blocks))
	if len(blocks) == 0 {
		c.gate.Reset()
		c.deps.Renderer.Clear()
		if s.DetectBubbles && c.deps.Bubbles != nil {
			c.publishBubbles([]model.SpeechBubble{})
		}
		c.textless.Add(1)
		return
	}

	var bubbles []model.SpeechBubble
	g, gctx := errgroup.WithContext(ctx)
	if s.DetectBubbles && c.deps.Bubbles != nil {
		g.Go(func() error {
			bubbles = c.deps.Bubbles.Detect(gctx, f)
			return nil
		})
	}

	checked, _ := c.deps.Translator.(checkedTranslator)
	clean := true
	results := make([]model.TranslationResult, 0, len(blocks))
	for _, b := range blocks {
		if ctx.Err() != nil {
			break
		}
		var translated string
		if checked != nil {
			var ok bool
			translated, ok = checked.TranslateChecked(ctx, b.Text, s.SourceLanguage, s.TargetLanguage)
			clean = clean && ok
		} else {
			translated = c.deps.Translator.Translate(ctx, b.Text, s.SourceLanguage, s.TargetLanguage)
		}
		results = append(results, model.NewTranslationResult(b, translated, s.SourceLanguage, s.TargetLanguage))
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		c.abandoned.Add(1)
		return
	}

	c.deps.Renderer.Update(results)
	c.published.Add(1)
	span.SetAttr("published", len(results))

	// Fallbacks are retried on the next frame, however similar.
	if clean {
		c.gate.Commit(hash)
	} else {
		c.gate.Reset()
		span.SetAttr("fallback", true)
	}

	if s.DetectBubbles && c.deps.Bubbles != nil {
		c.publishBubbles(bubbles)
	}
}

func (c *Coordinator) publishBubbles(b []model.SpeechBubble) {
	c.bubbles.Set(b)
	if c.opts.Hooks.OnBubbles != nil {
		c.opts.Hooks.OnBubbles(b)
	}
}
