package buildio

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPausableHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewPausableHandler(slog.NewTextHandler(&buf, nil))
	log := slog.New(h)

	log.Info("before")
	h.Pause()
	h.Pause()
	log.Info("held one")
	log.With("component", "engine").Warn("held two")
	assert.True(t, h.Paused())
	assert.NotContains(t, buf.String(), "held")

	h.Resume()
	assert.True(t, h.Paused(), "pauses nest")
	assert.NotContains(t, buf.String(), "held")

	h.Resume()
	assert.False(t, h.Paused())
	out := buf.String()
	assert.Less(t, strings.Index(out, "before"), strings.Index(out, "held one"))
	assert.Less(t, strings.Index(out, "held one"), strings.Index(out, "held two"))
	assert.Contains(t, out, "component=engine")

	// An unmatched resume is ignored
	h.Resume()
	assert.False(t, h.Paused())
}

func TestPauseLogger(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	resume := PauseLogger()
	Logger().Info("paused message")
	assert.Empty(t, buf.String())

	resume()
	resume()
	assert.Contains(t, buf.String(), "paused message")
	assert.False(t, logHandler.Load().Paused())
}

func TestSetLoggerKeepsPausableHandler(t *testing.T) {
	prev := Logger()
	defer SetLogger(prev)

	h := NewPausableHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))
	SetLogger(slog.New(h))
	assert.Same(t, h, logHandler.Load())
}
