package ringbuf_test

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kahiteam/ringbuf"
)

// model is a plain slice implementation of the buffer semantics.
type model struct {
	cap  int
	data []byte
}

func (m *model) put(p []byte, overwrite bool) int {
	if !overwrite {
		n := min(len(p), m.cap-len(m.data))
		m.data = append(m.data, p[:n]...)
		return n
	}
	m.data = append(m.data, p...)
	if len(m.data) > m.cap {
		m.data = append([]byte(nil), m.data[len(m.data)-m.cap:]...)
	}
	return min(len(p), m.cap)
}

func (m *model) get(n int, strict bool) []byte {
	if n == 0 || len(m.data) == 0 || (strict && n > len(m.data)) {
		return nil
	}
	n = min(n, len(m.data))
	out := append([]byte(nil), m.data[:n]...)
	m.data = m.data[n:]
	return out
}

func (m *model) remove(n int) int {
	used := len(m.data)
	switch {
	case n == 0 || used == 0:
		return 0
	case n >= used || -n >= used:
		m.data = nil
		return used
	case n > 0:
		m.data = m.data[n:]
		return n
	default:
		m.data = m.data[:used+n]
		return -n
	}
}

func (m *model) indexByte(index int, c byte) int {
	used := len(m.data)
	if index < 0 || index >= used {
		return ringbuf.NotFound
	}
	for k := 0; k < used; k++ {
		i := (index + k) % used
		if m.data[i] == c {
			return i
		}
	}
	return ringbuf.NotFound
}

func (m *model) index(index int, pattern []byte) int {
	if index < 0 || index >= len(m.data) {
		return ringbuf.NotFound
	}
	if i := bytes.Index(m.data[index:], pattern); i >= 0 {
		return index + i
	}
	return ringbuf.NotFound
}

func (m *model) runLength(index int) int {
	if index < 0 || index >= len(m.data) {
		return 0
	}
	if i := bytes.IndexByte(m.data[index:], 0); i >= 0 {
		return i
	}
	return len(m.data) - index
}

func requireInvariants(t *testing.T, b *ringbuf.Buffer) {
	t.Helper()
	s := b.State()
	require.GreaterOrEqual(t, s.Used, 0)
	require.LessOrEqual(t, s.Used, s.Capacity)
	require.GreaterOrEqual(t, s.Front, 0)
	require.Less(t, s.Front, s.Capacity)
	require.GreaterOrEqual(t, s.Rear, 0)
	require.Less(t, s.Rear, s.Capacity)
	require.Equal(t, s.Rear, (s.Front+s.Used)%s.Capacity, "rear must equal front+used mod capacity")
}

func randomBytes(r *rand.Rand, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		// Small alphabet so the scans actually find things.
		p[i] = "abc\x00"[r.IntN(4)]
	}
	return p
}

func TestRandomOperationsMatchModel(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 2, 3, 7, 16} {
		r := rand.New(rand.NewPCG(uint64(capacity), 42))
		b, err := ringbuf.New(capacity)
		require.NoError(t, err)
		m := &model{cap: capacity}

		for step := 0; step < 2000; step++ {
			switch op := r.IntN(8); op {
			case 0, 1:
				p := randomBytes(r, r.IntN(2*capacity+1))
				overwrite := op == 1
				require.Equal(t, m.put(p, overwrite), b.Put(p, overwrite), "put step %d", step)
			case 2:
				n := r.IntN(capacity + 2)
				strict := r.IntN(2) == 0
				out := make([]byte, n)
				got := b.Get(out, strict)
				want := m.get(n, strict)
				require.Equal(t, len(want), got, "get step %d", step)
				require.Equal(t, want, out[:got])
			case 3:
				n := r.IntN(2*capacity+1) - capacity
				require.Equal(t, m.remove(n), b.Remove(n), "remove step %d", step)
			case 4:
				idx := r.IntN(capacity + 1)
				c := "abc\x00"[r.IntN(4)]
				assert.Equal(t, m.indexByte(idx, c), b.IndexByte(idx, c), "index byte step %d", step)
			case 5:
				idx := r.IntN(capacity + 1)
				pat := randomBytes(r, 1+r.IntN(3))
				assert.Equal(t, m.index(idx, pat), b.Index(idx, pat), "index step %d", step)
			case 6:
				idx := r.IntN(capacity + 1)
				assert.Equal(t, m.runLength(idx), b.RunLength(idx), "run length step %d", step)
			case 7:
				idx := r.IntN(capacity + 1)
				n := r.IntN(capacity + 1)
				p := randomBytes(r, n)
				ok := idx < len(m.data) && n > 0 && n <= len(m.data)-idx
				require.Equal(t, ok, b.Modify(idx, p), "modify step %d", step)
				if ok {
					copy(m.data[idx:], p)
				}
			}

			requireInvariants(t, b)
			require.Equal(t, len(m.data), b.Len())
			if len(m.data) == 0 {
				require.Nil(t, b.Bytes())
			} else {
				require.Equal(t, m.data, b.Bytes(), "contents diverged at step %d", step)
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := ringbuf.New(32)
	require.NoError(t, err)

	// Advance the cursors so the round trip crosses the wrap point.
	b.Put(make([]byte, 20), false)
	b.Remove(20)

	in := []byte("the quick brown fox jumps over")
	require.Equal(t, len(in), b.Put(in, false))

	out := make([]byte, len(in))
	require.Equal(t, len(in), b.Get(out, false))
	assert.Equal(t, in, out)
	assert.True(t, b.IsEmpty())
}

func TestOverwriteLaw(t *testing.T) {
	t.Parallel()
	const capacity = 10
	for k := 1; k <= 25; k++ {
		b, err := ringbuf.New(capacity)
		require.NoError(t, err)

		in := make([]byte, capacity+k)
		for i := range in {
			in[i] = byte(i)
		}
		assert.Equal(t, capacity, b.Put(in, true))
		assert.Equal(t, capacity, b.Len())
		assert.Equal(t, in[k:], b.Bytes(), "k=%d", k)
		requireInvariants(t, b)
	}
}

func TestResyncConsistency(t *testing.T) {
	t.Parallel()
	const capacity = 6
	b, err := ringbuf.New(capacity)
	require.NoError(t, err)

	for f := 0; f < 2*capacity; f++ {
		for r := 0; r < 2*capacity; r++ {
			for u := 0; u <= capacity; u++ {
				distance := ((r-f)%capacity + capacity) % capacity
				want := distance == u%capacity
				if f%capacity == r%capacity && u == capacity {
					want = true
				}
				before := b.State()
				got := b.Resync(f, r, u)
				require.Equal(t, want, got, "resync(%d, %d, %d)", f, r, u)
				if got {
					requireInvariants(t, b)
					assert.Equal(t, u, b.Len())
				} else {
					assert.Equal(t, before, b.State())
				}
			}
		}
	}
}

func TestBorrowedAndOwnedBehaveAlike(t *testing.T) {
	t.Parallel()
	owned, err := ringbuf.New(5)
	require.NoError(t, err)
	borrowed, err := ringbuf.NewBorrowed(make([]byte, 5))
	require.NoError(t, err)

	for _, b := range []*ringbuf.Buffer{owned, borrowed} {
		b.Put([]byte("abc"), false)
		b.Remove(2)
		b.Put([]byte("defgh"), true)
	}
	assert.Equal(t, owned.State(), borrowed.State())
	assert.Equal(t, owned.Bytes(), borrowed.Bytes())
}
