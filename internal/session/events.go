package session

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/screen-translator/internal/model"
)

// Event types pushed to overlay clients.
const (
	EventTranslations = "translations"
	EventClear        = "clear"
	EventBubbles      = "bubbles"
	EventStatus       = "status"
	EventBackend      = "backend"
)

// Event is one overlay notification.
type Event struct {
	Type         string                    `json:"type"`
	Translations []model.TranslationResult `json:"translations,omitempty"`
	Bubbles      []model.SpeechBubble      `json:"bubbles,omitempty"`
	Status       *Status                   `json:"status,omitempty"`
	Backend      *Backend                  `json:"backend,omitempty"`
}

// hub is a buffered event stream. Emit never blocks; when the buffer is full
// the event is dropped and overlay clients catch up on the next one.
type hub struct {
	mu      sync.RWMutex
	ch      chan Event
	closed  bool
	dropped atomic.Uint64
}

func newHub(buffer int) *hub {
	return &hub{ch: make(chan Event, buffer)}
}

func (h *hub) Events() <-chan Event {
	return h.ch
}

func (h *hub) Emit(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	select {
	case h.ch <- e:
	default:
		h.dropped.Add(1)
	}
}

func (h *hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *hub) Dropped() uint64 { return h.dropped.Load() }

// Close ends the stream. Later Emits are ignored.
func (h *hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.ch)
	}
}
