package ringbuf

// Peek copies len(p) bytes starting at logical index into p without
// consuming them. It fails, copying nothing, unless the whole range lies
// inside the valid data.
func (b *Buffer) Peek(index int, p []byte) bool {
	if !b.validRange(index, len(p)) {
		return false
	}
	first, second := b.segments(index, len(p))
	c := copy(p, first)
	copy(p[c:], second)
	return true
}

// Modify overwrites valid bytes in place starting at logical index. It never
// extends the valid data: the whole range must already be held.
func (b *Buffer) Modify(index int, p []byte) bool {
	if !b.validRange(index, len(p)) {
		return false
	}
	first, second := b.segments(index, len(p))
	c := copy(first, p)
	copy(second, p[c:])
	return true
}

// Fill writes value into n slots starting at logical index and returns the
// number of slots filled. Unlike Modify it is bounded by the capacity, not by
// Len(): n is clamped to Cap() and the fill may run past the valid data into
// free slots. The cursors are not changed. Fill is meant for staging storage
// before an out-of-band writer and a Resync.
func (b *Buffer) Fill(index int, value byte, n int) int {
	if !b.usable() || n <= 0 || index < 0 || index >= b.size {
		return 0
	}
	n = min(n, b.size)
	first, second := b.segments(index, n)
	for i := range first {
		first[i] = value
	}
	for i := range second {
		second[i] = value
	}
	return n
}

// Bytes returns a copy of the valid data in logical order, or nil when the
// buffer is empty.
func (b *Buffer) Bytes() []byte {
	if !b.usable() || b.used == 0 {
		return nil
	}
	out := make([]byte, b.used)
	first, second := b.span(b.front, b.used)
	c := copy(out, first)
	copy(out[c:], second)
	return out
}

// Region returns the backing storage itself. It exists for out-of-band
// writers such as a DMA engine, which deposit bytes at physical positions
// and then declare the new cursors with Resync. Writing through Region
// without a matching Resync leaves the cursors describing stale data.
func (b *Buffer) Region() []byte {
	if !b.usable() {
		return nil
	}
	return b.mem.buf
}

// Resync replaces the cursors after the storage was changed by an
// out-of-band writer. front and rear are physical indices and are reduced
// modulo the capacity. The update is rejected, leaving the buffer
// unchanged, unless used agrees with the distance from front to rear. When
// front equals rear the distance is ambiguous and both used == 0 (empty) and
// used == Cap() (full) are accepted.
func (b *Buffer) Resync(front, rear, used int) bool {
	if !b.usable() || front < 0 || rear < 0 || used < 0 || used > b.size {
		return false
	}

	front = b.wrap(front)
	rear = b.wrap(rear)
	implied := b.wrap(rear - front + b.size)

	if implied != b.wrap(used) {
		return false
	}

	b.front = front
	b.rear = rear
	b.used = used
	return true
}
