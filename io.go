package ringbuf

import "io"

var (
	_ io.Writer     = (*Buffer)(nil)
	_ io.Reader     = (*Buffer)(nil)
	_ io.ByteWriter = (*Buffer)(nil)
	_ io.ByteReader = (*Buffer)(nil)
)

// Put appends p at rear and returns the number of bytes accepted.
//
// With overwrite false the write is bounded: at most Free() bytes are copied
// and the rest of p is dropped.
//
// With overwrite true every byte of p is written; once free space runs out
// each further byte evicts the oldest stored byte and front advances with it.
// When len(p) exceeds the capacity only the last Cap() bytes of p survive,
// and the cursors end up where a byte-by-byte write of all of p would have
// left them. The return value is capped at Cap().
func (b *Buffer) Put(p []byte, overwrite bool) int {
	if !b.usable() || len(p) == 0 {
		return 0
	}

	if !overwrite {
		n := min(len(p), b.size-b.used)
		if n == 0 {
			return 0
		}
		first, second := b.span(b.rear, n)
		c := copy(first, p)
		copy(second, p[c:n])
		b.rear = b.wrap(b.rear + n)
		b.used += n
		return n
	}

	total := len(p)
	free := b.size - b.used
	tail := p[total-min(total, b.size):]

	b.rear = b.wrap(b.rear + total)
	start := b.wrap(b.rear - len(tail) + b.size)
	first, second := b.span(start, len(tail))
	c := copy(first, tail)
	copy(second, tail[c:])

	if total > free {
		b.front = b.wrap(b.front + total - free)
		b.used = b.size
	} else {
		b.used += total
	}
	return len(tail)
}

// Write is the bounded form of Put. It returns io.ErrShortWrite when part of
// p was dropped for lack of space.
func (b *Buffer) Write(p []byte) (int, error) {
	if !b.usable() {
		return 0, ErrClosed
	}
	n := b.Put(p, false)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// WriteByte appends a single byte, or returns ErrFull.
func (b *Buffer) WriteByte(c byte) error {
	if !b.usable() {
		return ErrClosed
	}
	if b.used >= b.size {
		return ErrFull
	}
	b.mem.buf[b.rear] = c
	b.rear = b.wrap(b.rear + 1)
	b.used++
	return nil
}

// Get copies the oldest bytes into p and removes them from the buffer.
// It is best-effort unless strict is set: a strict Get asking for more than
// Len() bytes copies nothing, changes nothing and returns 0.
func (b *Buffer) Get(p []byte, strict bool) int {
	if !b.usable() || len(p) == 0 || b.used == 0 {
		return 0
	}
	if strict && len(p) > b.used {
		return 0
	}

	n := min(len(p), b.used)
	first, second := b.span(b.front, n)
	c := copy(p, first)
	copy(p[c:n], second)
	b.front = b.wrap(b.front + n)
	b.used -= n
	return n
}

// Read is the best-effort form of Get. It returns io.EOF when the buffer is
// empty.
func (b *Buffer) Read(p []byte) (int, error) {
	if !b.usable() {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	if b.used == 0 {
		return 0, io.EOF
	}
	return b.Get(p, false), nil
}

// ReadByte removes and returns the oldest byte.
func (b *Buffer) ReadByte() (byte, error) {
	if !b.usable() {
		return 0, ErrClosed
	}
	if b.used == 0 {
		return 0, io.EOF
	}
	c := b.mem.buf[b.front]
	b.front = b.wrap(b.front + 1)
	b.used--
	return c, nil
}

// Remove discards bytes without copying them out. A positive n drops the n
// oldest bytes (FIFO), a negative n drops the -n newest bytes (LIFO). When
// the magnitude reaches Len() the buffer is cleared and all cursors return to
// zero. The result is the number of bytes actually removed.
func (b *Buffer) Remove(n int) int {
	if !b.usable() || n == 0 || b.used == 0 {
		return 0
	}

	if n >= b.used || n <= -b.used {
		removed := b.used
		b.Reset()
		return removed
	}

	if n > 0 {
		b.front = b.wrap(b.front + n)
		b.used -= n
		return n
	}
	b.rear = b.wrap(b.rear + b.size + n)
	b.used += n
	return -n
}

// RemoveFront discards up to n of the oldest bytes.
func (b *Buffer) RemoveFront(n int) int {
	if n <= 0 {
		return 0
	}
	return b.Remove(n)
}

// RemoveBack discards up to n of the newest bytes.
func (b *Buffer) RemoveBack(n int) int {
	if n <= 0 {
		return 0
	}
	return b.Remove(-n)
}

// Reset empties the buffer and returns every cursor to zero. Stored bytes
// are not cleared.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.front = 0
	b.rear = 0
	b.used = 0
}
