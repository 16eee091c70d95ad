package tunnel

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bootdash/cloudops/common/stats"
)

func newFakeManager(t *testing.T) *Manager {
	target := echoServer(t)
	m := NewManager(
		WithAcceptTimeout(10*time.Millisecond),
		WithSessionFactory(func(SessionParams, time.Duration, stats.StatsReceiver) (Session, error) {
			return newFakeSession(target), nil
		}))
	t.Cleanup(m.DisposeAll)
	return m
}

func TestManagerReplacesTunnelPerKey(t *testing.T) {
	m := newFakeManager(t)

	first, err := m.Open("app1", SessionParams{Host: "h"}, 8000, 0)
	require.NoError(t, err)
	other, err := m.Open("app2", SessionParams{Host: "h"}, 8000, 0)
	require.NoError(t, err)
	second, err := m.Open("app1", SessionParams{Host: "h"}, 8000, 0)
	require.NoError(t, err)

	assert.True(t, first.IsDisposed(), "previous tunnel for the key is disposed")
	assert.False(t, second.IsDisposed())
	assert.False(t, other.IsDisposed())

	got, ok := m.Get("app1")
	assert.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, map[string]int{
		"app1": second.LocalPort(),
		"app2": other.LocalPort(),
	}, m.Ports())

	echoed, err := roundTrip(t, second.LocalPort(), "via manager")
	require.NoError(t, err)
	assert.Equal(t, "via manager", echoed)
}

func TestManagerDispose(t *testing.T) {
	m := newFakeManager(t)
	a, err := m.Open("a", SessionParams{Host: "h"}, 8000, 0)
	require.NoError(t, err)
	b, err := m.Open("b", SessionParams{Host: "h"}, 8000, 0)
	require.NoError(t, err)

	assert.True(t, m.Dispose("a"))
	assert.False(t, m.Dispose("a"))
	assert.True(t, a.IsDisposed())
	_, ok := m.Get("a")
	assert.False(t, ok)

	// A tunnel that disposed itself is forgotten on lookup.
	b.Dispose()
	_, ok = m.Get("b")
	assert.False(t, ok)
	assert.Empty(t, m.Ports())
}

func TestManagerDisposeAll(t *testing.T) {
	m := newFakeManager(t)
	var opened []*Tunnel
	for _, key := range []string{"a", "b", "c"} {
		tun, err := m.Open(key, SessionParams{Host: "h"}, 8000, 0)
		require.NoError(t, err)
		opened = append(opened, tun)
	}
	m.DisposeAll()
	for _, tun := range opened {
		assert.True(t, tun.IsDisposed())
	}
	assert.Empty(t, m.Ports())
}

func TestManagerOpenFailureRegistersNothing(t *testing.T) {
	m := NewManager(WithSessionFactory(func(SessionParams, time.Duration, stats.StatsReceiver) (Session, error) {
		return nil, errors.New("connection refused")
	}))
	_, err := m.Open("a", SessionParams{Host: "h"}, 8000, 0)
	assert.Error(t, err)
	_, ok := m.Get("a")
	assert.False(t, ok)
}
