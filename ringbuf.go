// Package ringbuf implements a fixed-capacity circular byte buffer.
//
// A Buffer stores a bounded run of bytes between two cursors: front, the
// physical index of the oldest valid byte, and rear, the physical index of
// the next free slot. Writes append at rear, reads and FIFO discards consume
// at front, and LIFO discards retreat rear. Peek, Modify, Fill and the scan
// operations address data by logical index, counted from front, so callers
// never see the physical wrap point.
//
// Operations report invalid arguments through their return value (0, false
// or NotFound) rather than an error. A nil or closed Buffer behaves as an
// empty buffer of capacity zero: every operation on it is a no-op.
//
// A Buffer is not safe for concurrent use. Callers that share one across
// goroutines must serialize access themselves.
package ringbuf

import (
	"errors"
	"fmt"
)

// NotFound is returned by the scan operations when nothing matches.
const NotFound = -1

var (
	// ErrInvalidArgument is returned by the constructors for absent storage
	// or a non-positive capacity.
	ErrInvalidArgument = errors.New("ringbuf: invalid argument")

	// ErrAllocation is returned by New when the allocator cannot supply the
	// backing storage.
	ErrAllocation = errors.New("ringbuf: allocation failed")

	// ErrFull is returned by WriteByte when there is no free slot.
	ErrFull = errors.New("ringbuf: buffer full")

	// ErrClosed is returned by the io adaptors on a nil or closed buffer.
	ErrClosed = errors.New("ringbuf: buffer closed")
)

// Buffer is a fixed-capacity circular byte buffer.
type Buffer struct {
	mem   region
	size  int
	used  int
	front int
	rear  int
}

// State is a snapshot of the cursors of a Buffer.
type State struct {
	Capacity int `json:"capacity"`
	Used     int `json:"used"`
	Front    int `json:"front"`
	Rear     int `json:"rear"`
}

// NewBorrowed binds a Buffer to caller-supplied storage. The capacity is
// len(storage). The Buffer never frees the storage; the caller keeps
// ownership and must not touch it while the Buffer is in use, except through
// Resync.
func NewBorrowed(storage []byte) (*Buffer, error) {
	if len(storage) == 0 {
		return nil, fmt.Errorf("%w: storage is empty", ErrInvalidArgument)
	}
	return &Buffer{
		mem:  region{buf: storage},
		size: len(storage),
	}, nil
}

// New creates a Buffer that owns capacity bytes of storage obtained from the
// configured Allocator (HeapAllocator by default). The storage is returned to
// the allocator by Close.
func New(capacity int, opts ...Option) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
	}

	o := options{alloc: HeapAllocator{}}
	for _, opt := range opts {
		opt(&o)
	}

	mem, err := allocRegion(o.alloc, capacity)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		mem:  mem,
		size: capacity,
	}, nil
}

// Close releases owned storage and resets the Buffer to the inert
// zero-capacity state. Borrowed storage is left untouched. Close is
// idempotent and safe on a nil Buffer.
func (b *Buffer) Close() error {
	if b == nil {
		return nil
	}
	err := b.mem.release()
	b.mem = region{}
	b.size = 0
	b.used = 0
	b.front = 0
	b.rear = 0
	return err
}

// Len returns the number of valid bytes held.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.used
}

// Cap returns the fixed capacity, or 0 for a nil or closed Buffer.
func (b *Buffer) Cap() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Free returns the number of bytes that can be written without overwriting.
func (b *Buffer) Free() int {
	if b == nil {
		return 0
	}
	return b.size - b.used
}

// IsEmpty reports whether no valid bytes are held. A nil Buffer is empty.
func (b *Buffer) IsEmpty() bool {
	if b == nil {
		return true
	}
	return b.used == 0
}

// IsFull reports whether every slot holds a valid byte. A nil or closed
// Buffer is never full.
func (b *Buffer) IsFull() bool {
	if b == nil || b.size == 0 {
		return false
	}
	return b.used >= b.size
}

// Owned reports whether the Buffer allocated its own storage.
func (b *Buffer) Owned() bool {
	if b == nil {
		return false
	}
	return b.mem.owned
}

// State returns the current cursor values.
func (b *Buffer) State() State {
	if b == nil {
		return State{}
	}
	return State{
		Capacity: b.size,
		Used:     b.used,
		Front:    b.front,
		Rear:     b.rear,
	}
}

func (b *Buffer) String() string {
	s := b.State()
	return fmt.Sprintf("ringbuf{cap=%d used=%d front=%d rear=%d}", s.Capacity, s.Used, s.Front, s.Rear)
}

// usable reports whether the buffer has storage to operate on.
func (b *Buffer) usable() bool {
	return b != nil && b.size > 0
}

// wrap maps a non-negative position onto [0, size).
func (b *Buffer) wrap(i int) int {
	return i % b.size
}

// phys converts a logical index (relative to front) to a physical index.
func (b *Buffer) phys(index int) int {
	return b.wrap(b.front + index)
}

// span returns the one or two physical slices covering n slots starting at
// physical index start. n must not exceed size.
func (b *Buffer) span(start, n int) (first, second []byte) {
	if start+n <= b.size {
		return b.mem.buf[start : start+n], nil
	}
	return b.mem.buf[start:], b.mem.buf[:n-(b.size-start)]
}

// segments is span addressed by logical index.
func (b *Buffer) segments(index, n int) (first, second []byte) {
	return b.span(b.phys(index), n)
}

// validRange reports whether [index, index+n) lies inside the valid data.
func (b *Buffer) validRange(index, n int) bool {
	return b.usable() && index >= 0 && index < b.used && n > 0 && n <= b.used-index
}
