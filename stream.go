package buildio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Source is a pull-based byte stream shared by captured process output and
// downloaded bodies.
//
// Read blocks until at least one byte is available or the stream reaches a
// terminal state. A drained stream returns io.EOF, and keeps returning
// io.EOF on every further call. A failed stream returns its failure instead.
// Close releases the producer; it is safe to call more than once.
type Source interface {
	io.Reader
	io.Closer
}

// Sink consumes bytes pushed by DrainInto. Any io.Writer is a Sink.
type Sink = io.Writer

// SinkFunc adapts a function to a Sink. The whole slice is considered
// written unless the function fails.
type SinkFunc func(p []byte) error

// Write calls f(p)
func (f SinkFunc) Write(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// aborter is implemented by sources that can tell their producer to stop
// when a consumer gives up mid-stream.
type aborter interface {
	Abort(cause error)
}

// drainChunk is the read size used by DrainInto
const drainChunk = 64 * 1024

// DrainInto reads src until end of stream and forwards every chunk to sink.
//
// A failure from src is returned as is. A failure from sink is returned
// unchanged as well, and the source is aborted: its producer stops and any
// later read from src panics, because the stream is in an incomplete state.
func DrainInto(src Source, sink Sink) error {
	buf := make([]byte, drainChunk)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				if a, ok := src.(aborter); ok {
					a.Abort(werr)
				}
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Drain reads src until end of stream and returns everything read. On
// failure the bytes read so far are returned along with the error.
func Drain(src Source) ([]byte, error) {
	var buf bytes.Buffer
	err := DrainInto(src, &buf)
	return buf.Bytes(), err
}

// DrainString is Drain returning a string
func DrainString(src Source) (string, error) {
	data, err := Drain(src)
	return string(data), err
}

// abortGuard records that a source was abandoned mid-stream, and turns any
// further read into a contract violation.
type abortGuard struct {
	aborted atomic.Bool
	mu      sync.Mutex
	cause   error
}

func (g *abortGuard) markAborted(cause error) {
	g.mu.Lock()
	if g.cause == nil {
		g.cause = cause
	}
	g.mu.Unlock()
	g.aborted.Store(true)
}

func (g *abortGuard) checkReadable(name string) {
	if !g.aborted.Load() {
		return
	}
	g.mu.Lock()
	cause := g.cause
	g.mu.Unlock()
	panic(fmt.Sprintf("buildio: read from aborted source %s (aborted by: %v)", name, cause))
}

// FileSource is a Source over a file descriptor, typically the read end of
// a pipe connected to a child's output.
type FileSource struct {
	abortGuard
	file      *os.File
	closeOnce sync.Once
	closeErr  error
	eof       bool
}

// NewFileSource wraps f. The FileSource owns f and closes it on Close.
func NewFileSource(f *os.File) *FileSource {
	return &FileSource{file: f}
}

// Read implements Source
func (s *FileSource) Read(p []byte) (int, error) {
	s.checkReadable(s.file.Name())
	if s.eof {
		return 0, io.EOF
	}
	for {
		n, err := s.file.Read(p)
		if errors.Is(err, io.EOF) {
			s.eof = true
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		}
		if err != nil {
			return n, &OpError{Op: OpRead, Path: s.file.Name(), Err: err}
		}
		if n > 0 || len(p) == 0 {
			return n, nil
		}
	}
}

// Abort marks the source as abandoned by its consumer
func (s *FileSource) Abort(cause error) {
	s.markAborted(cause)
}

// Close closes the underlying file
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.file.Close()
	})
	return s.closeErr
}
