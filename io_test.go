package ringbuf

import (
	"errors"
	"io"
	"math"
	"testing"
)

func mustNew(t *testing.T, capacity int) *Buffer {
	t.Helper()
	b, err := New(capacity)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestBoundedWriteDropsOverflow(t *testing.T) {
	b := mustNew(t, 4)

	if n := b.Put([]byte("abcdef"), false); n != 4 {
		t.Fatalf("put = %d, want 4", n)
	}
	if got := string(b.Bytes()); got != "abcd" {
		t.Fatalf("got %q, want 'abcd'", got)
	}
	if n := b.Put([]byte("x"), false); n != 0 {
		t.Fatalf("put into full buffer = %d, want 0", n)
	}
}

func TestBoundedWriteWraps(t *testing.T) {
	b := mustNew(t, 5)
	b.Put([]byte("abcd"), false)
	b.Get(make([]byte, 3), false)

	if n := b.Put([]byte("efgh"), false); n != 4 {
		t.Fatalf("put = %d, want 4", n)
	}
	if got := string(b.Bytes()); got != "defgh" {
		t.Fatalf("got %q, want 'defgh'", got)
	}
	if s := b.State(); s.Front != 3 || s.Rear != 3 || s.Used != 5 {
		t.Fatalf("state = %+v", s)
	}
}

func TestOverwriteKeepsNewest(t *testing.T) {
	b := mustNew(t, 4)

	n := b.Put([]byte("WXYZ123"), true)
	if n != 4 {
		t.Fatalf("put = %d, want 4", n)
	}
	if got := string(b.Bytes()); got != "Z123" {
		t.Fatalf("got %q, want 'Z123'", got)
	}
	s := b.State()
	if s.Used != 4 || s.Front != 3 || s.Rear != 3 {
		t.Fatalf("state = %+v, want used=4 front=3 rear=3", s)
	}
}

func TestOverwriteEvictsOldest(t *testing.T) {
	b := mustNew(t, 4)
	b.Put([]byte("abc"), false)

	if n := b.Put([]byte("de"), true); n != 2 {
		t.Fatalf("put = %d, want 2", n)
	}
	if got := string(b.Bytes()); got != "bcde" {
		t.Fatalf("got %q, want 'bcde'", got)
	}
	if s := b.State(); s.Front != 1 || s.Used != 4 {
		t.Fatalf("state = %+v, want front=1 used=4", s)
	}
}

func TestOverwriteWithinFreeSpace(t *testing.T) {
	b := mustNew(t, 8)
	if n := b.Put([]byte("abc"), true); n != 3 {
		t.Fatalf("put = %d, want 3", n)
	}
	if s := b.State(); s.Front != 0 || s.Rear != 3 || s.Used != 3 {
		t.Fatalf("state = %+v", s)
	}
}

func TestScenarioWriteReadOverwrite(t *testing.T) {
	b := mustNew(t, 8)

	if n := b.Put([]byte("ABCDE"), false); n != 5 || b.Len() != 5 {
		t.Fatalf("put = %d used = %d, want 5/5", n, b.Len())
	}

	peek := make([]byte, 5)
	if !b.Peek(0, peek) || string(peek) != "ABCDE" {
		t.Fatalf("peek = %q", peek)
	}
	if b.Len() != 5 {
		t.Fatal("peek consumed data")
	}

	out := make([]byte, 3)
	if n := b.Get(out, false); n != 3 || string(out) != "ABC" {
		t.Fatalf("get = %d %q, want 3 'ABC'", n, out)
	}
	if b.Len() != 2 {
		t.Fatalf("used = %d, want 2", b.Len())
	}

	if n := b.Put([]byte("FGHIJKL"), true); n != 7 {
		t.Fatalf("overwrite put = %d, want 7", n)
	}
	if b.Len() != 8 {
		t.Fatalf("used = %d, want 8", b.Len())
	}
	if got := string(b.Bytes()); got != "EFGHIJKL" {
		t.Fatalf("got %q, want last 8 bytes 'EFGHIJKL'", got)
	}
}

func TestGetBestEffort(t *testing.T) {
	b := mustNew(t, 8)
	b.Put([]byte("hi"), false)

	out := make([]byte, 10)
	if n := b.Get(out, false); n != 2 || string(out[:n]) != "hi" {
		t.Fatalf("get = %d %q", n, out[:n])
	}
	if !b.IsEmpty() {
		t.Fatal("expected empty buffer after draining")
	}
}

func TestGetStrictLeavesBufferUnchanged(t *testing.T) {
	b := mustNew(t, 8)
	b.Put([]byte("hey"), false)
	before := b.State()

	if n := b.Get(make([]byte, 4), true); n != 0 {
		t.Fatalf("strict get = %d, want 0", n)
	}
	if b.State() != before || string(b.Bytes()) != "hey" {
		t.Fatalf("strict get mutated the buffer: %s", b)
	}

	out := make([]byte, 3)
	if n := b.Get(out, true); n != 3 || string(out) != "hey" {
		t.Fatalf("strict get = %d %q", n, out)
	}
}

func TestGetAcrossWrap(t *testing.T) {
	b := mustNew(t, 4)
	b.Put([]byte("abc"), false)
	b.Get(make([]byte, 2), false)
	b.Put([]byte("def"), false)

	out := make([]byte, 4)
	if n := b.Get(out, false); n != 4 || string(out) != "cdef" {
		t.Fatalf("get = %d %q, want 4 'cdef'", n, out)
	}
}

func TestIOWriterReader(t *testing.T) {
	b := mustNew(t, 4)

	n, err := b.Write([]byte("abcdef"))
	if n != 4 || !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("write = %d, %v; want 4, ErrShortWrite", n, err)
	}

	data, err := io.ReadAll(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcd" {
		t.Fatalf("read %q, want 'abcd'", data)
	}

	if _, err := b.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("read on empty = %v, want EOF", err)
	}
	if n, err := b.Read(nil); n != 0 || err != nil {
		t.Fatalf("zero-length read = %d, %v", n, err)
	}
}

func TestByteReaderWriter(t *testing.T) {
	b := mustNew(t, 2)

	if err := b.WriteByte('a'); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByte('b'); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByte('c'); !errors.Is(err, ErrFull) {
		t.Fatalf("err = %v, want ErrFull", err)
	}

	c, err := b.ReadByte()
	if err != nil || c != 'a' {
		t.Fatalf("read byte = %q, %v", c, err)
	}
	if err := b.WriteByte('c'); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Bytes()); got != "bc" {
		t.Fatalf("got %q, want 'bc'", got)
	}
	b.ReadByte()
	b.ReadByte()
	if _, err := b.ReadByte(); err != io.EOF {
		t.Fatalf("err = %v, want EOF", err)
	}
}

func TestRemoveFIFO(t *testing.T) {
	b := mustNew(t, 8)
	b.Put([]byte("abcdef"), false)

	if n := b.Remove(2); n != 2 {
		t.Fatalf("remove = %d, want 2", n)
	}
	if got := string(b.Bytes()); got != "cdef" {
		t.Fatalf("got %q, want 'cdef'", got)
	}
}

func TestRemoveLIFO(t *testing.T) {
	b := mustNew(t, 8)
	b.Put([]byte("abcdef"), false)

	if n := b.Remove(-2); n != 2 {
		t.Fatalf("remove = %d, want 2", n)
	}
	if got := string(b.Bytes()); got != "abcd" {
		t.Fatalf("got %q, want 'abcd'", got)
	}

	b.Put([]byte("XY"), false)
	if got := string(b.Bytes()); got != "abcdXY" {
		t.Fatalf("got %q, want rear reused after LIFO discard", got)
	}
}

func TestRemoveLIFOAcrossWrap(t *testing.T) {
	b := mustNew(t, 4)
	b.Put([]byte("abcd"), false)
	b.Remove(3)
	b.Put([]byte("efg"), false) // rear wraps to 3

	if n := b.Remove(-2); n != 2 {
		t.Fatalf("remove = %d, want 2", n)
	}
	if got := string(b.Bytes()); got != "de" {
		t.Fatalf("got %q, want 'de'", got)
	}
	if s := b.State(); s.Rear != 1 {
		t.Fatalf("rear = %d, want 1", s.Rear)
	}
}

func TestRemoveClearsWhenMagnitudeCoversUsed(t *testing.T) {
	for _, n := range []int{3, 10, -3, -10, math.MaxInt, math.MinInt} {
		b := mustNew(t, 8)
		b.Put([]byte("abcde"), false)
		b.Remove(2)

		if got := b.Remove(n); got != 3 {
			t.Fatalf("remove(%d) = %d, want 3 (bytes actually held)", n, got)
		}
		if s := b.State(); s != (State{Capacity: 8}) {
			t.Fatalf("remove(%d) state = %+v, want cleared", n, s)
		}
	}
}

func TestRemoveExtremeMagnitudes(t *testing.T) {
	b := mustNew(t, 8)
	b.Put([]byte("abc"), false)
	if got := b.Remove(math.MinInt); got != 3 {
		t.Fatalf("remove(MinInt) = %d, want 3", got)
	}
	if s := b.State(); s != (State{Capacity: 8}) {
		t.Fatalf("state = %+v, want cleared", s)
	}

	b.Put([]byte("xyz"), false)
	if got := b.RemoveBack(math.MaxInt); got != 3 || !b.IsEmpty() {
		t.Fatalf("removeBack(MaxInt) = %d, used = %d", got, b.Len())
	}
}

func TestRemoveEquivalentToRead(t *testing.T) {
	a := mustNew(t, 6)
	b := mustNew(t, 6)
	for _, buf := range []*Buffer{a, b} {
		buf.Put([]byte("abcd"), false)
		buf.Remove(3)
		buf.Put([]byte("efgh"), false)
	}

	a.Remove(2)
	b.Get(make([]byte, 2), false)

	if a.State() != b.State() || string(a.Bytes()) != string(b.Bytes()) {
		t.Fatalf("remove %s != read %s", a, b)
	}
}

func TestRemoveZeroAndEmpty(t *testing.T) {
	b := mustNew(t, 4)
	if n := b.Remove(1); n != 0 {
		t.Fatalf("remove on empty = %d", n)
	}
	b.Put([]byte("a"), false)
	if n := b.Remove(0); n != 0 {
		t.Fatalf("remove(0) = %d", n)
	}
}

func TestRemoveFrontBack(t *testing.T) {
	b := mustNew(t, 8)
	b.Put([]byte("abcdef"), false)

	if n := b.RemoveFront(1); n != 1 {
		t.Fatalf("remove front = %d", n)
	}
	if n := b.RemoveBack(1); n != 1 {
		t.Fatalf("remove back = %d", n)
	}
	if n := b.RemoveBack(-1); n != 0 {
		t.Fatalf("remove back with negative count = %d", n)
	}
	if got := string(b.Bytes()); got != "bcde" {
		t.Fatalf("got %q, want 'bcde'", got)
	}
}
