// Package framer cuts the byte stream staged in a ring buffer into frames.
// Frames are located with the buffer's scans, copied out with Peek and only
// then consumed with Remove, so a frame that has not fully arrived stays in
// the buffer untouched.
package framer

import (
	"errors"
	"fmt"

	"github.com/kahiteam/ringbuf"
)

// Framing modes.
const (
	ModeDelimiter = "delimiter"
	ModeNUL       = "nul"
	ModeFixed     = "fixed"
)

// Config describes how frames are delimited.
type Config struct {
	Mode          string
	Delimiter     []byte // delimiter mode only
	KeepDelimiter bool   // include the terminator in emitted frames
	Size          int    // fixed mode record size
	MaxFrame      int    // 0 means unlimited
}

// Frame is one unit of output.
type Frame struct {
	Data     []byte
	Oversize bool // truncated to MaxFrame, or forced out of a full buffer
	Partial  bool // emitted by Flush without a terminator
}

// Framer extracts frames from a buffer. It is not safe for concurrent use;
// callers serialize it with the rest of the buffer access.
type Framer struct {
	cfg Config
	buf *ringbuf.Buffer
}

// New validates cfg and returns a framer reading from buf.
func New(buf *ringbuf.Buffer, cfg Config) (*Framer, error) {
	if buf == nil {
		return nil, errors.New("framer: nil buffer")
	}
	if cfg.MaxFrame < 0 {
		return nil, fmt.Errorf("framer: negative max frame %d", cfg.MaxFrame)
	}

	switch cfg.Mode {
	case ModeDelimiter:
		if len(cfg.Delimiter) == 0 {
			return nil, errors.New("framer: delimiter mode needs a delimiter")
		}
		if len(cfg.Delimiter) >= buf.Cap() {
			return nil, fmt.Errorf("framer: delimiter of %d bytes does not fit a %d byte buffer", len(cfg.Delimiter), buf.Cap())
		}
	case ModeNUL:
		cfg.Delimiter = []byte{0}
	case ModeFixed:
		if cfg.Size <= 0 || cfg.Size > buf.Cap() {
			return nil, fmt.Errorf("framer: fixed size %d must be between 1 and %d", cfg.Size, buf.Cap())
		}
	default:
		return nil, fmt.Errorf("framer: unknown mode %q", cfg.Mode)
	}

	return &Framer{cfg: cfg, buf: buf}, nil
}

// Next returns the next complete frame and consumes it from the buffer. It
// returns false when no complete frame is buffered yet. A full buffer with
// no terminator in it is emitted whole as an oversize frame, otherwise
// nothing could ever be written again.
func (f *Framer) Next() (Frame, bool) {
	return f.next(true)
}

// NextComplete is Next without the full-buffer escape: it only returns
// frames that ended with a terminator or reached the fixed size.
func (f *Framer) NextComplete() (Frame, bool) {
	return f.next(false)
}

func (f *Framer) next(force bool) (Frame, bool) {
	if f.buf.IsEmpty() {
		return Frame{}, false
	}

	if f.cfg.Mode == ModeFixed {
		if f.buf.Len() < f.cfg.Size {
			return Frame{}, false
		}
		return f.take(f.cfg.Size, 0), true
	}

	end := f.terminator()
	if end == ringbuf.NotFound {
		if !force || !f.buf.IsFull() {
			return Frame{}, false
		}
		fr := f.take(f.buf.Len(), 0)
		fr.Oversize = true
		return fr, true
	}

	n, skip := end, len(f.cfg.Delimiter)
	if f.cfg.KeepDelimiter {
		n, skip = end+skip, 0
	}
	return f.take(n, skip), true
}

// Flush drains whatever is left as a final partial frame.
func (f *Framer) Flush() (Frame, bool) {
	if f.buf.IsEmpty() {
		return Frame{}, false
	}
	fr := f.take(f.buf.Len(), 0)
	fr.Partial = true
	return fr, true
}

// terminator returns the logical index of the first delimiter.
func (f *Framer) terminator() int {
	if f.cfg.Mode == ModeNUL {
		n := f.buf.RunLength(0)
		if n == f.buf.Len() {
			return ringbuf.NotFound
		}
		return n
	}
	if len(f.cfg.Delimiter) == 1 {
		return f.buf.IndexByte(0, f.cfg.Delimiter[0])
	}
	return f.buf.Index(0, f.cfg.Delimiter)
}

// take copies the first n bytes out as a frame and consumes n+skip bytes.
func (f *Framer) take(n, skip int) Frame {
	var fr Frame
	keep := n
	if f.cfg.MaxFrame > 0 && n > f.cfg.MaxFrame {
		keep = f.cfg.MaxFrame
		fr.Oversize = true
	}

	fr.Data = make([]byte, keep)
	if keep > 0 {
		f.buf.Peek(0, fr.Data)
	}
	f.buf.Remove(n + skip)
	return fr
}
