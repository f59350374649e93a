package buildio

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// PausableHandler is a slog.Handler that can hold records back while an
// interactive child owns the terminal. Records logged while paused are
// replayed in order on resume.
type PausableHandler struct {
	inner slog.Handler
	state *pauseState
}

type pauseState struct {
	mu      sync.Mutex
	paused  int
	pending []pendingRecord
}

type pendingRecord struct {
	handler slog.Handler
	ctx     context.Context
	record  slog.Record
}

// NewPausableHandler wraps inner
func NewPausableHandler(inner slog.Handler) *PausableHandler {
	return &PausableHandler{inner: inner, state: &pauseState{}}
}

// Enabled implements slog.Handler
func (h *PausableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler
func (h *PausableHandler) Handle(ctx context.Context, r slog.Record) error {
	h.state.mu.Lock()
	if h.state.paused > 0 {
		h.state.pending = append(h.state.pending, pendingRecord{handler: h.inner, ctx: ctx, record: r.Clone()})
		h.state.mu.Unlock()
		return nil
	}
	h.state.mu.Unlock()
	return h.inner.Handle(ctx, r)
}

// WithAttrs implements slog.Handler. Derived handlers share the pause state.
func (h *PausableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &PausableHandler{inner: h.inner.WithAttrs(attrs), state: h.state}
}

// WithGroup implements slog.Handler. Derived handlers share the pause state.
func (h *PausableHandler) WithGroup(name string) slog.Handler {
	return &PausableHandler{inner: h.inner.WithGroup(name), state: h.state}
}

// Pause starts holding records back. Pauses nest.
func (h *PausableHandler) Pause() {
	h.state.mu.Lock()
	h.state.paused++
	h.state.mu.Unlock()
}

// Resume undoes one Pause. When the last pause is undone the held records
// are written.
func (h *PausableHandler) Resume() {
	h.state.mu.Lock()
	if h.state.paused == 0 {
		h.state.mu.Unlock()
		return
	}
	h.state.paused--
	if h.state.paused > 0 {
		h.state.mu.Unlock()
		return
	}
	pending := h.state.pending
	h.state.pending = nil
	h.state.mu.Unlock()

	for _, p := range pending {
		_ = p.handler.Handle(p.ctx, p.record)
	}
}

// Paused reports whether records are currently being held back
func (h *PausableHandler) Paused() bool {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	return h.state.paused > 0
}

var (
	logHandler atomic.Pointer[PausableHandler]
	logger     atomic.Pointer[slog.Logger]
)

func init() {
	SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// Logger returns the process-wide logger used by buildio
func Logger() *slog.Logger {
	return logger.Load()
}

// SetLogger replaces the process-wide logger. Its handler is wrapped so
// that interactive programs can pause it.
func SetLogger(l *slog.Logger) {
	h, ok := l.Handler().(*PausableHandler)
	if !ok {
		h = NewPausableHandler(l.Handler())
		l = slog.New(h)
	}
	logHandler.Store(h)
	logger.Store(l)
}

// PauseLogger pauses the process-wide logger and returns the function that
// resumes it. The returned function may be called more than once; only the
// first call has an effect.
func PauseLogger() (resume func()) {
	h := logHandler.Load()
	h.Pause()
	var once sync.Once
	return func() {
		once.Do(h.Resume)
	}
}
