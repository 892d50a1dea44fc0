package ringbuf

import "fmt"

// Allocator supplies and reclaims owned backing storage.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(buf []byte) error
}

// HeapAllocator allocates from the Go heap. Free is a no-op and leaves the
// memory to the garbage collector.
type HeapAllocator struct{}

// Alloc returns a zeroed slice of n bytes.
func (HeapAllocator) Alloc(n int) ([]byte, error) {
	return make([]byte, n), nil
}

// Free does nothing.
func (HeapAllocator) Free([]byte) error { return nil }

// AllocatorFuncs adapts a pair of functions to the Allocator interface.
// A nil FreeFunc is treated as a no-op.
type AllocatorFuncs struct {
	AllocFunc func(n int) ([]byte, error)
	FreeFunc  func(buf []byte) error
}

// Alloc calls AllocFunc.
func (f AllocatorFuncs) Alloc(n int) ([]byte, error) {
	return f.AllocFunc(n)
}

// Free calls FreeFunc if set.
func (f AllocatorFuncs) Free(buf []byte) error {
	if f.FreeFunc == nil {
		return nil
	}
	return f.FreeFunc(buf)
}

// Option configures New.
type Option func(*options)

type options struct {
	alloc Allocator
}

// WithAllocator sets the allocator used for owned storage. A nil allocator
// keeps the default.
func WithAllocator(a Allocator) Option {
	return func(o *options) {
		if a != nil {
			o.alloc = a
		}
	}
}

// region is the backing storage together with its ownership. Borrowed
// regions have a nil alloc and are never released.
type region struct {
	buf   []byte
	owned bool
	alloc Allocator
}

func allocRegion(a Allocator, n int) (region, error) {
	buf, err := a.Alloc(n)
	if err != nil {
		return region{}, fmt.Errorf("%w: %w", ErrAllocation, err)
	}
	if len(buf) < n {
		if buf != nil {
			_ = a.Free(buf)
		}
		return region{}, fmt.Errorf("%w: allocator returned %d bytes, want %d", ErrAllocation, len(buf), n)
	}
	return region{buf: buf[:n], owned: true, alloc: a}, nil
}

func (r region) release() error {
	if !r.owned || r.buf == nil {
		return nil
	}
	return r.alloc.Free(r.buf)
}
