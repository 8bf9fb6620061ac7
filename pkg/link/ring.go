// Package link provides byte stream links for the xgrid engine.
//
// Each implementation keeps a receive Ring filled by a producer (a reader
// goroutine, a subscription callback, or the peer of an in-memory pipe)
// and a transmit Ring drained the same way, so the engine only ever
// touches memory and never blocks.
package link

import (
	"sync"
)

// DefaultRingSize is the default capacity of a Ring.
const DefaultRingSize = 1024

// Ring is a bounded byte FIFO safe for one producer and one consumer.
type Ring struct {
	buf  []byte
	head int
	size int
	lock sync.Mutex

	// notify is signaled when bytes are written.
	notify chan struct{}
}

// NewRing creates a Ring with capacity n.
func NewRing(n int) *Ring {
	if n <= 0 {
		n = DefaultRingSize
	}
	return &Ring{buf: make([]byte, n), notify: make(chan struct{}, 1)}
}

// Cap returns the capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Available returns the number of buffered bytes.
func (r *Ring) Available() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.size
}

// Free returns the number of bytes Write accepts.
func (r *Ring) Free() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.buf) - r.size
}

// Peek returns the byte at offset without consuming it. It returns 0 when
// offset is out of range.
func (r *Ring) Peek(offset int) byte {
	r.lock.Lock()
	defer r.lock.Unlock()
	if offset < 0 || offset >= r.size {
		return 0
	}
	return r.buf[(r.head+offset)%len(r.buf)]
}

// Read consumes up to len(p) bytes.
func (r *Ring) Read(p []byte) int {
	r.lock.Lock()
	defer r.lock.Unlock()
	n := 0
	for n < len(p) && r.size > 0 {
		c := copy(p[n:], r.buf[r.head:r.head+r.contiguous()])
		n += c
		r.head = (r.head + c) % len(r.buf)
		r.size -= c
	}
	return n
}

// contiguous is the number of buffered bytes before wrapping.
func (r *Ring) contiguous() int {
	if r.head+r.size > len(r.buf) {
		return len(r.buf) - r.head
	}
	return r.size
}

// Write appends up to len(p) bytes, whatever fits.
func (r *Ring) Write(p []byte) int {
	r.lock.Lock()
	n := 0
	for n < len(p) && r.size < len(r.buf) {
		tail := (r.head + r.size) % len(r.buf)
		end := len(r.buf)
		if tail < r.head {
			end = r.head
		}
		c := copy(r.buf[tail:end], p[n:])
		n += c
		r.size += c
	}
	r.lock.Unlock()
	if n > 0 {
		select {
		case r.notify <- struct{}{}:
		default:
		}
	}
	return n
}

// Notify returns a channel signaled after bytes are written.
func (r *Ring) Notify() <-chan struct{} {
	return r.notify
}
