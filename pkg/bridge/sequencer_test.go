package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.minekube.com/vanish/pkg/util/uuid"
)

func change(id uuid.UUID, origin string, seq uint64) *StateChange {
	return &StateChange{ID: id, Origin: origin, Seq: seq}
}

func TestSequencer_Accept(t *testing.T) {
	s := NewSequencer(0)
	id := uuid.OfflinePlayerUUID("alice")

	_, ok := s.Last(id)
	assert.False(t, ok)

	assert.True(t, s.Accept(change(id, "s1", 5)))
	assert.False(t, s.Accept(change(id, "s1", 3)), "lower sequence is stale")
	assert.False(t, s.Accept(change(id, "s1", 5)), "equal sequence is stale")
	assert.True(t, s.Accept(change(id, "s1", 6)))

	last, ok := s.Last(id)
	assert.True(t, ok)
	assert.EqualValues(t, 6, last)

	other := uuid.OfflinePlayerUUID("bob")
	assert.True(t, s.Accept(change(other, "s1", 1)), "players are sequenced independently")
}

func TestSequencer_RemovalBlocksOlderChangesOfOrigin(t *testing.T) {
	s := NewSequencer(0)
	id := uuid.OfflinePlayerUUID("alice")

	assert.True(t, s.Accept(change(id, "s1", 10)))
	assert.True(t, s.Accept(RemovalOf(id, "alice", "s1", 12)))
	assert.False(t, s.Accept(RemovalOf(id, "alice", "s1", 12)), "duplicate removal")
	assert.False(t, s.Accept(change(id, "s1", 11)), "redelivered change from before the removal")

	// the server the player moved to drew 11 before s1 drew the removal
	assert.True(t, s.Accept(change(id, "s2", 11)))
	last, _ := s.Last(id)
	assert.EqualValues(t, 11, last)
}
