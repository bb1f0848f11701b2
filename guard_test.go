package segmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadGuard(t *testing.T) {
	m := New[string, int]()
	m.Insert("foo", 42)

	g, ok := m.Get("foo")
	require.True(t, ok)

	assert.Equal(t, "foo", g.Key())
	assert.Equal(t, 42, g.Value())
	assert.True(t, GuardEqual(g, 42))
	assert.False(t, GuardEqual(g, 43))

	g.Release()
	g.Release()

	require.PanicsWithError(t, ErrGuardReleased.Error(), func() { g.Value() })
	require.PanicsWithError(t, ErrGuardReleased.Error(), func() { g.Key() })
}

func TestWriteGuard(t *testing.T) {
	type session struct {
		user  string
		hits  int
		roles []string
	}

	m := New[string, session]()
	m.Insert("s1", session{user: "alice"})

	g, ok := m.GetMut("s1")
	require.True(t, ok)

	assert.Equal(t, "s1", g.Key())
	assert.Equal(t, "alice", g.Value().user)

	p := g.Ptr()
	p.hits++
	p.roles = append(p.roles, "admin")
	assert.Equal(t, 1, g.Value().hits)

	g.Set(session{user: "bob", hits: 5})
	g.Release()
	g.Release()

	require.PanicsWithError(t, ErrGuardReleased.Error(), func() { g.Set(session{}) })
	require.PanicsWithError(t, ErrGuardReleased.Error(), func() { g.Ptr() })
	require.PanicsWithError(t, ErrGuardReleased.Error(), func() { g.Value() })

	r, ok := m.Get("s1")
	require.True(t, ok)
	defer r.Release()

	assert.Equal(t, session{user: "bob", hits: 5}, r.Value())
}

func TestWriteGuard_VisibleAcrossGoroutines(t *testing.T) {
	m := New[int, int](WithConcurrencyLevel[int](1))
	m.Insert(7, 0)

	g, ok := m.GetMut(7)
	require.True(t, ok)

	seen := make(chan int)
	go func() {
		r, ok := m.Get(7)
		if !assert.True(t, ok) {
			close(seen)
			return
		}
		defer r.Release()

		seen <- r.Value()
	}()

	*g.Ptr() = 99
	g.Release()

	require.Equal(t, 99, <-seen)
}
