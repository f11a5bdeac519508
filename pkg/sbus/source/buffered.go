// Package source provides sbus.ByteSource implementations.
package source

import (
	"context"
	"errors"
	"io"
	"sync"
)

// DefaultCapacity holds 10 frames, which covers 70-140ms of traffic.
const DefaultCapacity = 250

var (
	// ErrClosed indicates the source has stopped reading.
	ErrClosed = errors.New("source closed")
)

// Buffered turns a blocking io.Reader into a non-blocking ByteSource.
// Run reads in the background; Available and Read only touch the buffer.
// When the buffer is full the oldest bytes are dropped and counted as
// overruns, the same way a UART FIFO overflows.
type Buffered struct {
	Reader   io.Reader
	Capacity int

	buf      []byte
	overruns uint64
	err      error
	lock     sync.Mutex
}

// NewBuffered creates a Buffered with DefaultCapacity.
func NewBuffered(r io.Reader) *Buffered {
	return &Buffered{Reader: r, Capacity: DefaultCapacity}
}

// Available implements sbus.ByteSource.
func (b *Buffered) Available() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.buf)
}

// Read implements sbus.ByteSource. It never blocks and returns the
// terminal reader error once the buffer is drained.
func (b *Buffered) Read(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	n := copy(p, b.buf)
	b.buf = b.buf[:copy(b.buf, b.buf[n:])]
	if n == 0 && len(p) > 0 && b.err != nil {
		return 0, b.err
	}
	return n, nil
}

// Overruns returns the number of bytes dropped because the buffer was full.
func (b *Buffered) Overruns() uint64 {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.overruns
}

// Err returns the error that stopped Run, if any.
func (b *Buffered) Err() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.err
}

// Run implements Runnable. It reads until ctx is done or the reader fails.
// Reader is closed on cancel if it implements io.Closer, to unblock Read.
func (b *Buffered) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.readLoop()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		b.fail(ErrClosed)
		if closer, ok := b.Reader.(io.Closer); ok {
			closer.Close()
		}
		return ctx.Err()
	}
}

func (b *Buffered) readLoop() error {
	chunk := make([]byte, 64)
	for {
		n, err := b.Reader.Read(chunk)
		if n > 0 {
			b.append(chunk[:n])
		}
		if err != nil {
			b.fail(err)
			return err
		}
	}
}

func (b *Buffered) append(p []byte) {
	b.lock.Lock()
	defer b.lock.Unlock()
	capacity := b.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if len(p) > capacity {
		b.overruns += uint64(len(p) - capacity)
		p = p[len(p)-capacity:]
	}
	if drop := len(b.buf) + len(p) - capacity; drop > 0 {
		b.overruns += uint64(drop)
		b.buf = b.buf[:copy(b.buf, b.buf[drop:])]
	}
	b.buf = append(b.buf, p...)
}

func (b *Buffered) fail(err error) {
	b.lock.Lock()
	if b.err == nil {
		b.err = err
	}
	b.lock.Unlock()
}
