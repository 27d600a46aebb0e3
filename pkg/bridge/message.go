package bridge

import (
	"errors"
	"fmt"

	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish/user"
)

// Kind identifies the payload of a Message.
type Kind string

// Message kinds exchanged between backends and the proxy.
const (
	KindStateChange      Kind = "state_change"
	KindSnapshotRequest  Kind = "snapshot_request"
	KindSnapshotResponse Kind = "snapshot_response"
)

// Message is the envelope of every bridge frame.
// Exactly one payload field matching Kind is set.
type Message struct {
	Kind             Kind              `json:"kind"`
	StateChange      *StateChange      `json:"stateChange,omitempty"`
	SnapshotRequest  *SnapshotRequest  `json:"snapshotRequest,omitempty"`
	SnapshotResponse *SnapshotResponse `json:"snapshotResponse,omitempty"`
}

// StateChange announces the vanish state of one player.
type StateChange struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Vanished bool      `json:"vanished"`
	Level    int       `json:"level"`
	// Origin is the server that hosts the player and produced the change.
	Origin string `json:"origin"`
	// Seq orders changes of the same player. Higher wins.
	Seq uint64 `json:"seq"`
	// Removed announces that the player left Origin.
	Removed bool `json:"removed,omitempty"`
}

// SnapshotRequest asks the proxy for every entry it knows.
type SnapshotRequest struct {
	ServerID string `json:"serverId"`
}

// SnapshotResponse carries the proxy's entries, excluding the requester's own.
type SnapshotResponse struct {
	Entries []user.User `json:"entries"`
}

// ErrInvalidMessage is wrapped by Validate errors.
var ErrInvalidMessage = errors.New("invalid bridge message")

// Validate checks that m carries the payload its Kind requires.
func (m *Message) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	switch m.Kind {
	case KindStateChange:
		if m.StateChange == nil {
			return fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Kind)
		}
		if m.StateChange.ID.IsNil() {
			return fmt.Errorf("%w: %s with nil player id", ErrInvalidMessage, m.Kind)
		}
	case KindSnapshotRequest:
		if m.SnapshotRequest == nil {
			return fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Kind)
		}
	case KindSnapshotResponse:
		if m.SnapshotResponse == nil {
			return fmt.Errorf("%w: %s without payload", ErrInvalidMessage, m.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

func (m *Message) String() string {
	switch m.Kind {
	case KindStateChange:
		c := m.StateChange
		return fmt.Sprintf("%s{%s origin=%q seq=%d removed=%t}", m.Kind, c.Username, c.Origin, c.Seq, c.Removed)
	case KindSnapshotResponse:
		return fmt.Sprintf("%s{entries=%d}", m.Kind, len(m.SnapshotResponse.Entries))
	default:
		return string(m.Kind)
	}
}

// ChangeOf returns the StateChange describing u as hosted on origin.
func ChangeOf(u user.User, origin string, seq uint64) *StateChange {
	return &StateChange{
		ID:       u.ID,
		Username: u.Username,
		Vanished: u.Vanished,
		Level:    u.Level,
		Origin:   origin,
		Seq:      seq,
	}
}

// RemovalOf returns the StateChange announcing that id left origin.
func RemovalOf(id uuid.UUID, username, origin string, seq uint64) *StateChange {
	return &StateChange{
		ID:       id,
		Username: username,
		Origin:   origin,
		Seq:      seq,
		Removed:  true,
	}
}

// User returns the record described by c.
func (c *StateChange) User() user.User {
	return user.User{
		ID:       c.ID,
		Username: c.Username,
		State:    user.State{Vanished: c.Vanished, Level: c.Level},
		ServerID: c.Origin,
		Seq:      c.Seq,
	}
}

// Wrap returns c in a Message.
func (c *StateChange) Wrap() *Message {
	return &Message{Kind: KindStateChange, StateChange: c}
}

func snapshotRequest(serverID string) *Message {
	return &Message{Kind: KindSnapshotRequest, SnapshotRequest: &SnapshotRequest{ServerID: serverID}}
}

func snapshotResponse(entries []user.User) *Message {
	if entries == nil {
		entries = []user.User{}
	}
	return &Message{Kind: KindSnapshotResponse, SnapshotResponse: &SnapshotResponse{Entries: entries}}
}
