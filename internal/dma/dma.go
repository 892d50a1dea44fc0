// Package dma simulates a transfer unit that writes straight into a ring
// buffer's storage and then declares the new cursors, the way a UART RX DMA
// channel fills a staging ring behind the CPU's back.
package dma

import (
	"errors"

	"github.com/kahiteam/ringbuf"
)

var (
	// ErrResyncRejected is returned when the buffer refuses the cursors
	// declared after a transfer.
	ErrResyncRejected = errors.New("dma: resync rejected")

	// ErrNoStorage is returned for a closed buffer.
	ErrNoStorage = errors.New("dma: buffer has no storage")
)

// Engine describes how transfers behave.
type Engine struct {
	// Circular lets the write head run over unread data. The oldest bytes
	// are evicted and front advances past them.
	Circular bool

	// Prestage fills every free slot with Fill before the transfer, so the
	// storage beyond the valid data holds a known pattern.
	Prestage bool
	Fill     byte
}

// Result reports what a transfer did.
type Result struct {
	Deposited int // bytes of src now held by the buffer
	Evicted   int // previously stored bytes overrun in circular mode
	Dropped   int // bytes of src that were never held
}

// Transfer deposits src at the buffer's rear through Region and declares the
// new cursors with Resync.
func (e Engine) Transfer(buf *ringbuf.Buffer, src []byte) (Result, error) {
	st := buf.State()
	region := buf.Region()
	if st.Capacity == 0 || region == nil {
		return Result{}, ErrNoStorage
	}
	if len(src) == 0 {
		return Result{}, nil
	}

	if e.Prestage && st.Used < st.Capacity {
		buf.Fill(st.Used, e.Fill, st.Capacity-st.Used)
	}

	size := st.Capacity
	total := len(src)
	var res Result
	if !e.Circular {
		total = min(total, size-st.Used)
		res.Dropped = len(src) - total
		if total == 0 {
			return res, nil
		}
		src = src[:total]
	}

	// The head moves by total. Only the last size bytes can survive it.
	kept := src[len(src)-min(len(src), size):]
	start := (st.Rear + total - len(kept)) % size
	c := copy(region[start:], kept)
	copy(region, kept[c:])

	overrun := max(0, st.Used+total-size)
	res.Deposited = len(kept)
	res.Evicted = min(overrun, st.Used)
	res.Dropped += len(src) - len(kept)

	front := (st.Front + overrun) % size
	rear := (st.Rear + total) % size
	used := min(st.Used+total, size)
	if err := commit(buf, front, rear, used); err != nil {
		return Result{}, err
	}
	return res, nil
}

// commit declares the cursors the hardware reports after a transfer.
func commit(buf *ringbuf.Buffer, front, rear, used int) error {
	if !buf.Resync(front, rear, used) {
		return ErrResyncRejected
	}
	return nil
}
