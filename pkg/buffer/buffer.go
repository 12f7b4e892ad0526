package buffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next once the buffer is closed for writing
// and fully drained.
var ErrIteratorDone = errors.New("iterator done")

// Buffer is a thread-safe unbounded FIFO queue. Writers never block; a
// reader blocks in Next until an element is available or the buffer is
// closed.
//
// CloseWrite ends the stream gracefully: queued elements remain readable
// and Next returns ErrIteratorDone once they are consumed. CloseWithError
// discards queued elements and fails every pending and future call with
// the given error.
//
// Buffer supports any number of writers and one reader.
type Buffer[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	closeErr   error
	buf        []T
}

// N creates a new Buffer with an initial capacity of n elements.
func N[T any](n int) *Buffer[T] {
	return &Buffer[T]{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]T, 0, n),
	}
}

// Add appends one element to the tail of the buffer.
//
// Returns an error if the buffer is closed for writing or has been closed
// with an error.
func (b *Buffer[T]) Add(t T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writableLocked(); err != nil {
		return err
	}
	b.buf = append(b.buf, t)
	b.notifyLocked()
	return nil
}

// Write appends all elements of p in order. It returns len(p) on success.
func (b *Buffer[T]) Write(p []T) (n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writableLocked(); err != nil {
		return 0, err
	}
	b.buf = append(b.buf, p...)
	b.notifyLocked()
	return len(p), nil
}

// Next removes and returns the element at the head of the buffer, blocking
// until one is available.
//
// Returns ErrIteratorDone if the buffer is closed for writing and empty.
func (b *Buffer[T]) Next() (t T, err error) {
	return b.NextContext(context.Background())
}

// NextContext is Next with cancellation. If ctx is done before an element
// is available, ctx.Err() is returned and the buffer is left untouched.
func (b *Buffer[T]) NextContext(ctx context.Context) (t T, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.buf) == 0 {
		if b.closeErr != nil {
			err = fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
			return
		}
		if b.closeWrite {
			err = ErrIteratorDone
			return
		}
		b.mu.Unlock()
		select {
		case <-b.writeNotify:
		case <-ctx.Done():
			b.mu.Lock()
			err = ctx.Err()
			return
		}
		b.mu.Lock()
	}
	if b.closeErr != nil {
		err = fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
		return
	}
	t = b.buf[0]
	var zero T
	b.buf[0] = zero
	b.buf = b.buf[1:]
	return t, nil
}

// Len returns the number of queued elements.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// CloseWrite closes the write side. Queued elements can still be read.
// It returns nil if the write side was already closed.
func (b *Buffer[T]) CloseWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeWrite {
		return nil
	}
	b.closeWrite = true
	close(b.writeNotify)
	return nil
}

// CloseWithError closes both ends and drops queued elements. Pending and
// future calls fail with err (io.ErrClosedPipe if err is nil). Only the
// first close takes effect.
func (b *Buffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return nil
	}
	b.closeErr = err
	b.buf = nil
	if !b.closeWrite {
		b.closeWrite = true
		close(b.writeNotify)
	}
	return nil
}

func (b *Buffer[T]) writableLocked() error {
	if b.closeErr != nil {
		return fmt.Errorf("buffer: write to closed buffer: %w", b.closeErr)
	}
	if b.closeWrite {
		return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	return nil
}

// notifyLocked wakes a blocked reader without blocking the writer.
func (b *Buffer[T]) notifyLocked() {
	select {
	case b.writeNotify <- struct{}{}:
	default:
	}
}
