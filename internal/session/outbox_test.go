package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_Send(t *testing.T) {
	o := NewOutbox("u1", 4)
	require.NoError(t, o.Send("s.p.1"))
	assert.Equal(t, "s.p.1", <-o.Messages())
	assert.Equal(t, "u1", o.ID())
}

func TestOutbox_SendClosed(t *testing.T) {
	o := NewOutbox("u1", 4)
	require.NoError(t, o.Close())
	assert.True(t, o.IsClosed())
	assert.ErrorIs(t, o.Send("s.e"), ErrOutboxClosed)
}

func TestOutbox_SendFullDrops(t *testing.T) {
	o := NewOutbox("u1", 1)
	require.NoError(t, o.Send("first"))
	assert.ErrorIs(t, o.Send("overflow"), ErrOutboxFull)
	assert.Equal(t, uint64(1), o.Dropped())
}

func TestOutbox_CloseIdempotent(t *testing.T) {
	o := NewOutbox("u1", 0)
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	_, ok := <-o.Messages()
	assert.False(t, ok)
}
