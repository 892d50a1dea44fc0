package ringbuf

import "bytes"

// RunLength counts bytes from logical index up to, not including, the first
// zero byte. The count stops at the end of the valid data when no zero byte
// is found. It returns 0 for an index outside the valid data.
func (b *Buffer) RunLength(index int) int {
	if !b.usable() || index < 0 || index >= b.used {
		return 0
	}
	first, second := b.segments(index, b.used-index)
	if i := bytes.IndexByte(first, 0); i >= 0 {
		return i
	}
	if i := bytes.IndexByte(second, 0); i >= 0 {
		return len(first) + i
	}
	return len(first) + len(second)
}

// IndexByte searches the valid data for c, starting at logical index and
// wrapping around to logical 0, so every valid byte is examined once. It
// returns the logical index of the first match or NotFound.
func (b *Buffer) IndexByte(index int, c byte) int {
	if !b.usable() || index < 0 || index >= b.used {
		return NotFound
	}
	if i := b.indexByteIn(index, b.used-index, c); i >= 0 {
		return index + i
	}
	if index > 0 {
		if i := b.indexByteIn(0, index, c); i >= 0 {
			return i
		}
	}
	return NotFound
}

func (b *Buffer) indexByteIn(index, n int, c byte) int {
	first, second := b.segments(index, n)
	if i := bytes.IndexByte(first, c); i >= 0 {
		return i
	}
	if i := bytes.IndexByte(second, c); i >= 0 {
		return len(first) + i
	}
	return NotFound
}

// Index returns the first logical position at or after index where pattern
// occurs wholly inside the valid data, or NotFound. Matches may straddle the
// physical end of the storage. An empty pattern matches at index.
func (b *Buffer) Index(index int, pattern []byte) int {
	if !b.usable() || index < 0 || index >= b.used {
		return NotFound
	}
	m := len(pattern)
	if m == 0 {
		return index
	}
	if m > b.used-index {
		return NotFound
	}

	first, second := b.segments(index, b.used-index)
	if i := bytes.Index(first, pattern); i >= 0 {
		return index + i
	}
	if len(second) == 0 {
		return NotFound
	}

	// Candidates that start in first and end in second.
	for s := max(0, len(first)-m+1); s < len(first); s++ {
		head := len(first) - s
		if m-head > len(second) {
			continue
		}
		if bytes.Equal(first[s:], pattern[:head]) && bytes.Equal(second[:m-head], pattern[head:]) {
			return index + s
		}
	}

	if i := bytes.Index(second, pattern); i >= 0 {
		return index + len(first) + i
	}
	return NotFound
}
