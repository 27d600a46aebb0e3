package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minekube.com/vanish/pkg/util/uuid"
)

func TestUser_Apply(t *testing.T) {
	u := New(uuid.OfflinePlayerUUID("alice"), "alice")
	require.False(t, u.Vanished)
	require.Zero(t, u.Level)

	assert.True(t, u.Apply(State{Vanished: true, Level: 2}))
	assert.Equal(t, State{Vanished: true, Level: 2}, u.State)

	assert.False(t, u.Apply(State{Vanished: true, Level: 2}), "same state is a no-op")

	assert.True(t, u.Apply(State{Vanished: true, Level: 3}), "level change alone is a change")
	assert.True(t, u.Apply(State{Vanished: false, Level: 3}))
}

func TestUser_Clone(t *testing.T) {
	u := New(uuid.OfflinePlayerUUID("bob"), "bob")
	c := u.Clone()
	c.Apply(State{Vanished: true})
	assert.False(t, u.Vanished)
	assert.True(t, u.Is(c))
}

func TestUser_Is(t *testing.T) {
	a := New(uuid.OfflinePlayerUUID("a"), "a")
	b := New(uuid.OfflinePlayerUUID("b"), "b")
	assert.True(t, a.Is(a))
	assert.False(t, a.Is(b))
	assert.False(t, a.Is(nil))
	var n *User
	assert.False(t, n.Is(a))
}
