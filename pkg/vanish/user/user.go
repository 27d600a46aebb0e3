// Package user holds the per-player vanish record.
package user

import (
	"fmt"

	"go.minekube.com/vanish/pkg/util/uuid"
)

// State is the mutable part of a User.
type State struct {
	Vanished bool `json:"vanished"`
	// Level is only meaningful relative to another user's level.
	Level int `json:"level"`
}

// User is the vanish record of one player on one process.
//
// ID and Username are fixed once the record exists. State fields are
// changed only through Apply so that no-op writes can be detected.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	State
	// ServerID is the backend currently hosting the player's session.
	ServerID string `json:"serverId,omitempty"`
	// Seq is the sequence number of the last change applied to this record.
	Seq uint64 `json:"seq,omitempty"`
}

// New returns a visible user at level 0.
func New(id uuid.UUID, username string) *User {
	return &User{ID: id, Username: username}
}

// Apply sets the user's state and reports whether anything changed.
func (u *User) Apply(s State) (changed bool) {
	if u.State == s {
		return false
	}
	u.State = s
	return true
}

// Clone returns a copy of u that shares no memory with it.
func (u User) Clone() *User { return &u }

// Is reports whether u and o are the same player.
func (u *User) Is(o *User) bool {
	return u != nil && o != nil && u.ID == o.ID
}

func (u User) String() string {
	return fmt.Sprintf("%s(%s vanished=%t level=%d server=%q)",
		u.Username, u.ID, u.Vanished, u.Level, u.ServerID)
}
