package segmap

import (
	"bytes"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func sessionKey(i int) string {
	return "session:" + strconv.Itoa(i)
}

// topBitsHash routes key k to segment k of a map with 2^bits segments.
func topBitsHash(bits uint) HashFunc[int] {
	return func(k int) uint64 {
		return uint64(k)<<(64-bits) | uint64(k)
	}
}

func TestMap_Basic(t *testing.T) {
	m := New[string, int]()

	// Insert and Get
	old, ok := m.Insert("foo", 42)
	require.False(t, ok)
	assert.Zero(t, old)

	g, ok := m.Get("foo")
	require.True(t, ok)
	assert.Equal(t, 42, g.Value())
	g.Release()

	// Update existing key
	old, ok = m.Insert("foo", 100)
	require.True(t, ok)
	assert.Equal(t, 42, old)

	require.True(t, m.Contains("foo"))

	// Get non-existent key
	_, ok = m.Get("bar")
	assert.False(t, ok)
	_, ok = m.GetMut("bar")
	assert.False(t, ok)
	assert.False(t, m.Contains("bar"))

	// Remove
	v, ok := m.Remove("foo")
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	assert.False(t, m.Contains("foo"))
	_, ok = m.Get("foo")
	assert.False(t, ok)

	// Remove non-existent key
	_, ok = m.Remove("foo")
	assert.False(t, ok)
}

func TestMap_Construction(t *testing.T) {
	tests := []struct {
		name             string
		capacity         int
		concurrencyLevel int
		wantSegments     int
		wantSegmentSlots int
	}{
		{"defaults", DefaultCapacity, DefaultConcurrencyLevel, 16, 8},
		{"zero", 0, 0, 1, 8},
		{"single segment", 0, 1, 1, 8},
		{"negative", -10, -3, 1, 8},
		{"rounded up", 1000, 3, 4, 256},
		{"capacity not divisible", 100, 16, 16, 8},
		{"large", 1 << 16, 64, 64, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewWithOptions[int, int](tt.capacity, nil, tt.concurrencyLevel)

			require.Equal(t, tt.wantSegments, m.SegmentCount())

			st := m.Stats()
			require.Len(t, st.Segments, tt.wantSegments)
			for i, seg := range st.Segments {
				require.Equal(t, i, seg.Index)
				require.Equal(t, tt.wantSegmentSlots, seg.Capacity)
				require.Zero(t, seg.Size)
			}

			// Degenerate configurations still work.
			m.Insert(1, 1)
			require.True(t, m.Contains(1))
		})
	}
}

func TestMap_New_Defaults(t *testing.T) {
	m := New[int, int]()

	require.Equal(t, DefaultConcurrencyLevel, m.SegmentCount())
	require.Equal(t, DefaultConcurrencyLevel*groupSize, m.Stats().Capacity)
}

func TestMap_segmentIndex(t *testing.T) {
	m := New[int, int](WithConcurrencyLevel[int](16))

	tests := []struct {
		hash uint64
		want int
	}{
		{0, 0},
		{0x0FFFFFFFFFFFFFFF, 0},
		{0x1000000000000000, 1},
		{0x7ABCDEF012345678, 7},
		{0xF000000000000000, 15},
		{0xFFFFFFFFFFFFFFFF, 15},
	}

	for _, tt := range tests {
		require.Equalf(t, tt.want, m.segmentIndex(tt.hash), "segmentIndex(%#x)", tt.hash)
	}

	single := New[int, int](WithConcurrencyLevel[int](1))
	for _, h := range []uint64{0, 1, 1 << 63, ^uint64(0)} {
		require.Equal(t, 0, single.segmentIndex(h))
	}
}

func TestMap_Routing(t *testing.T) {
	m := New[int, string](
		WithConcurrencyLevel[int](16),
		WithHashFunc(topBitsHash(4)),
	)

	for k := range 16 {
		m.Insert(k, strconv.Itoa(k))
	}

	st := m.Stats()
	require.Equal(t, 16, st.Size)
	for _, seg := range st.Segments {
		require.Equalf(t, 1, seg.Size, "segment %d", seg.Index)
	}
}

func TestMap_SameHashDifferentKeys(t *testing.T) {
	m := New[string, int](WithHashFunc(func(string) uint64 { return 42 }))

	for i := range 100 {
		m.Insert(sessionKey(i), i)
	}

	require.Equal(t, 100, m.Len())
	for i := range 100 {
		require.True(t, m.View(sessionKey(i), func(v int) {
			require.Equal(t, i, v)
		}))
	}
}

func TestMap_InsertThenContains(t *testing.T) {
	m := New[string, int]()

	var eg errgroup.Group
	for w := range 8 {
		eg.Go(func() error {
			for i := range 1000 {
				key := sessionKey(w*1000 + i)
				m.Insert(key, i)
				assert.Truef(t, m.Contains(key), "%s missing right after insert", key)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.Equal(t, 8000, m.Len())
}

func TestMap_RemoveThenAbsent(t *testing.T) {
	m := New[int, int]()

	for i := range 1000 {
		m.Insert(i, i)
	}

	var eg errgroup.Group
	for w := range 4 {
		eg.Go(func() error {
			for i := w; i < 1000; i += 4 {
				v, ok := m.Remove(i)
				assert.True(t, ok)
				assert.Equal(t, i, v)
				assert.False(t, m.Contains(i))
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	require.Zero(t, m.Len())
}

func TestMap_InsertOrUpdate_Atomic(t *testing.T) {
	const (
		workers = 32
		perWork = 1000
	)

	m := New[string, int](WithConcurrencyLevel[string](4))

	var eg errgroup.Group
	for range workers {
		eg.Go(func() error {
			for range perWork {
				m.InsertOrUpdate("counter",
					func() int { return 0 },
					func(v *int) { *v++ },
				)
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	// The first call only creates the counter, every later one increments it.
	require.True(t, m.View("counter", func(v int) {
		require.Equal(t, workers*perWork-1, v)
	}))
}

func TestMap_InsertOrUpdate_CallsOnce(t *testing.T) {
	m := New[string, []string]()

	made, updated := 0, 0
	m.InsertOrUpdate("k",
		func() []string { made++; return []string{"a"} },
		func(v *[]string) { updated++ },
	)
	m.InsertOrUpdate("k",
		func() []string { made++; return nil },
		func(v *[]string) { updated++; *v = append(*v, "b") },
	)

	require.Equal(t, 1, made)
	require.Equal(t, 1, updated)

	g, ok := m.Get("k")
	require.True(t, ok)
	defer g.Release()
	require.Equal(t, []string{"a", "b"}, g.Value())
}

func TestMap_GetMut_Increments(t *testing.T) {
	const (
		keys    = 8
		total   = 8 * 1024
		workers = 16
	)

	m := New[int, int]()
	for k := range keys {
		m.Insert(k, 0)
	}

	var eg errgroup.Group
	for w := range workers {
		eg.Go(func() error {
			for x := w * total / workers; x < (w+1)*total/workers; x++ {
				g, ok := m.GetMut(x % keys)
				if !assert.True(t, ok) {
					continue
				}

				*g.Ptr() += 1
				g.Release()
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	for k := range keys {
		g, ok := m.Get(k)
		require.True(t, ok)
		require.Equal(t, 1024, g.Value())
		g.Release()
	}
}

func TestMap_WriteGuard_Exclusive(t *testing.T) {
	m := New[int, int](WithConcurrencyLevel[int](1))
	m.Insert(1, 1)
	m.Insert(2, 2)

	g, ok := m.GetMut(1)
	require.True(t, ok)

	var (
		readDone  = make(chan int, 1)
		writeDone = make(chan struct{})
	)

	go func() {
		m.View(2, func(v int) { readDone <- v })
	}()
	go func() {
		m.Insert(3, 3)
		close(writeDone)
	}()

	assert.Never(t, func() bool {
		select {
		case <-writeDone:
			return true
		default:
			return len(readDone) > 0
		}
	}, 100*time.Millisecond, 10*time.Millisecond)

	g.Set(10)
	g.Release()

	require.Eventually(t, func() bool {
		select {
		case <-writeDone:
			return len(readDone) > 0
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	require.True(t, m.View(1, func(v int) { require.Equal(t, 10, v) }))
}

func TestMap_ReadGuard_BlocksWriterOnly(t *testing.T) {
	m := New[int, int](WithConcurrencyLevel[int](1))
	m.Insert(1, 1)

	g, ok := m.Get(1)
	require.True(t, ok)

	// Another reader of the same segment proceeds.
	readDone := make(chan struct{})
	go func() {
		assert.True(t, m.Contains(1))
		close(readDone)
	}()
	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("reader blocked by a read guard")
	}

	writeDone := make(chan struct{})
	go func() {
		m.Remove(1)
		close(writeDone)
	}()

	assert.Never(t, func() bool {
		select {
		case <-writeDone:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	require.Equal(t, 1, g.Value())
	g.Release()

	require.Eventually(t, func() bool {
		select {
		case <-writeDone:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestMap_SegmentIsolation(t *testing.T) {
	m := New[int, int](
		WithConcurrencyLevel[int](2),
		WithHashFunc(topBitsHash(1)),
	)
	m.Insert(0, 0)

	// Key 0 lives in segment 0, key 1 in segment 1.
	g, ok := m.GetMut(0)
	require.True(t, ok)
	defer g.Release()

	done := make(chan struct{})
	go func() {
		m.Insert(1, 1)
		m.InsertOrUpdate(1, func() int { return 0 }, func(v *int) { *v++ })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write to another segment blocked by a held guard")
	}
}

func TestMap_PanicInCallbackReleasesLock(t *testing.T) {
	m := New[string, int](WithConcurrencyLevel[string](1))
	m.Insert("k", 1)

	require.PanicsWithValue(t, "boom", func() {
		m.InsertOrUpdate("k", func() int { return 0 }, func(*int) { panic("boom") })
	})
	require.PanicsWithValue(t, "boom", func() {
		m.InsertOrUpdate("other", func() int { panic("boom") }, func(*int) {})
	})
	require.PanicsWithValue(t, "boom", func() {
		m.Modify("k", func(*int) { panic("boom") })
	})
	require.PanicsWithValue(t, "boom", func() {
		m.Range(func(string, int) bool { panic("boom") })
	})

	done := make(chan struct{})
	go func() {
		m.Insert("k", 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("segment stayed locked after a panic")
	}

	require.False(t, m.Contains("other"))
	require.True(t, m.View("k", func(v int) { require.Equal(t, 2, v) }))
}

func TestMap_ViewModify(t *testing.T) {
	m := New[string, []int]()
	m.Insert("a", []int{1})

	require.True(t, m.Modify("a", func(v *[]int) {
		*v = append(*v, 2)
	}))
	require.False(t, m.Modify("b", func(*[]int) {
		t.Fatal("called for a missing key")
	}))

	var got []int
	require.True(t, m.View("a", func(v []int) { got = v }))
	require.Equal(t, []int{1, 2}, got)
	require.False(t, m.View("b", func([]int) {
		t.Fatal("called for a missing key")
	}))
}

func TestMap_Range(t *testing.T) {
	m := New[int, int]()
	want := map[int]int{}
	for i := range 500 {
		m.Insert(i, i*2)
		want[i] = i * 2
	}

	got := map[int]int{}
	m.Range(func(k, v int) bool {
		got[k] = v
		return true
	})
	require.Equal(t, want, got)

	seen := 0
	for range m.All() {
		seen++
		if seen == 10 {
			break
		}
	}
	require.Equal(t, 10, seen)
}

func TestMap_Clear(t *testing.T) {
	m := New[int, int]()
	for i := range 100 {
		m.Insert(i, i)
	}

	m.Clear()

	require.Zero(t, m.Len())
	require.False(t, m.Contains(1))

	m.Insert(1, 1)
	require.Equal(t, 1, m.Len())
}

func TestMap_Stats(t *testing.T) {
	m := New[int, int](WithConcurrencyLevel[int](4), WithCapacity[int](32))

	st := m.Stats()
	assert.Equal(t, 0, st.Size)
	assert.Equal(t, 4*8, st.Capacity)
	assert.Zero(t, st.LoadFactor())

	for i := range 200 {
		m.Insert(i, i)
	}

	st = m.Stats()
	assert.Equal(t, 200, st.Size)
	assert.Greater(t, st.Capacity, 200)

	var grows uint64
	for _, seg := range st.Segments {
		grows += seg.Grows
		assert.LessOrEqual(t, seg.Size, seg.EffectiveCapacity)
	}
	assert.Positive(t, grows)
}

func TestMap_WithLogger(t *testing.T) {
	var buf bytes.Buffer

	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	m := New[int, int](
		WithConcurrencyLevel[int](1),
		WithLogger[int](slog.New(handler)),
	)

	for i := range 64 {
		m.Insert(i, i)
	}

	out := buf.String()
	assert.Contains(t, out, `"msg":"segmap created"`)
	assert.Contains(t, out, `"msg":"segment grew"`)
	assert.Contains(t, out, `"segment":0`)
}
