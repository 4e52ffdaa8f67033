package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waiting(id string) *Match {
	return &Match{ID: id, Host: &Client{UserID: id + "-host"}, PlayerCount: 1, State: StateWaiting}
}

func full(id string) *Match {
	return &Match{
		ID:          id,
		Host:        &Client{UserID: id + "-host"},
		Guest:       &Client{UserID: id + "-guest"},
		PlayerCount: 2,
		Active:      true,
		State:       StateActive,
	}
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(waiting("a")))
	assert.Error(t, r.Add(waiting("a")))
	assert.Equal(t, 1, r.Count())

	m, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", m.ID)

	removed, ok := r.Remove("a")
	require.True(t, ok)
	assert.Same(t, m, removed)
	assert.Equal(t, 0, r.Count())

	_, ok = r.Remove("a")
	assert.False(t, ok)
	_, ok = r.Get("a")
	assert.False(t, ok)
}

func TestRegistry_InsertionOrder(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, r.Add(full(id)))
	}
	r.Remove("b")

	var ids []string
	for _, m := range r.All() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "c", "d"}, ids)
}

func TestRegistry_FirstOpen(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.FirstOpen())

	require.NoError(t, r.Add(full("a")))
	assert.Nil(t, r.FirstOpen())

	require.NoError(t, r.Add(waiting("b")))
	require.NoError(t, r.Add(waiting("c")))
	assert.Equal(t, "b", r.FirstOpen().ID)

	r.Remove("b")
	assert.Equal(t, "c", r.FirstOpen().ID)
}

func TestRegistry_AllIsACopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add(full("a")))
	all := r.All()
	all[0] = nil
	assert.NotNil(t, r.All()[0])
}

func TestMatch_Other(t *testing.T) {
	m := full("m")
	assert.Equal(t, "m-guest", m.Other("m-host").UserID)
	assert.Equal(t, "m-host", m.Other("m-guest").UserID)
	// anyone who is not the host is answered with the host
	assert.Equal(t, "m-host", m.Other("stranger").UserID)

	w := waiting("w")
	assert.Nil(t, w.Other("w-host"))
	assert.Len(t, w.Occupants(), 1)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "empty", State(0).String())
}
