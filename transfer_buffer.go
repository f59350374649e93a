package buildio

import (
	"io"
	"sync"
)

// transferBuffer is a bounded byte ring between one producer (the transfer
// worker) and one consumer (the Source returned to the caller). A full
// buffer blocks only its own producer, and an empty one only its own
// consumer; transfers never share a buffer or its lock.
type transferBuffer struct {
	mu       sync.Mutex
	readable sync.Cond
	writable sync.Cond

	buf   []byte
	start int
	n     int

	// closed is set by the producer; err is io.EOF on a clean end
	closed bool
	err    error
	// aborted is set by the consumer; abortErr is returned to the producer
	aborted  bool
	abortErr error
}

func newTransferBuffer(size int) *transferBuffer {
	if size <= 0 {
		size = DefaultBufferSize
	}
	b := &transferBuffer{buf: make([]byte, size)}
	b.readable.L = &b.mu
	b.writable.L = &b.mu
	return b
}

// Write copies all of p into the buffer, blocking while it is full. It fails
// once the consumer has aborted.
func (b *transferBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for len(p) > 0 {
		for b.n == len(b.buf) && !b.aborted {
			b.writable.Wait()
		}
		if b.aborted {
			return written, b.abortErr
		}
		if b.closed {
			return written, io.ErrClosedPipe
		}

		end := (b.start + b.n) % len(b.buf)
		free := len(b.buf) - b.n
		chunk := len(b.buf) - end
		if chunk > free {
			chunk = free
		}
		c := copy(b.buf[end:end+chunk], p)
		b.n += c
		written += c
		p = p[c:]
		b.readable.Signal()
	}
	return written, nil
}

// Read blocks until data is buffered or the producer has finished. Buffered
// data is always delivered before the producer's final error. The final
// error repeats on every later call.
func (b *transferBuffer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.n == 0 && !b.closed && !b.aborted {
		b.readable.Wait()
	}
	if b.n == 0 {
		if b.aborted {
			return 0, b.abortErr
		}
		return 0, b.err
	}

	chunk := len(b.buf) - b.start
	if chunk > b.n {
		chunk = b.n
	}
	c := copy(p, b.buf[b.start:b.start+chunk])
	b.start = (b.start + c) % len(b.buf)
	b.n -= c
	if b.n == 0 {
		b.start = 0
	}
	b.writable.Signal()
	return c, nil
}

// CloseWithError ends the stream from the producer side. A nil err is a
// clean end of stream. Only the first call has an effect.
func (b *transferBuffer) CloseWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.err = err
	b.readable.Broadcast()
}

// Abort ends the stream from the consumer side, discarding buffered data
// and failing any blocked or later Write with err.
func (b *transferBuffer) Abort(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return
	}
	b.aborted = true
	b.abortErr = err
	b.n = 0
	b.start = 0
	b.writable.Broadcast()
	b.readable.Broadcast()
}

// Aborted reports whether the consumer has aborted
func (b *transferBuffer) Aborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// Buffered returns the number of bytes waiting to be read
func (b *transferBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}
