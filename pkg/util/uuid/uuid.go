// Package uuid provides the player identity type shared by every
// vanish component.
package uuid

import (
	"crypto/md5"
	"fmt"
	"strconv"

	guuid "github.com/google/uuid"
)

// UUID is a player's stable unique id.
type UUID guuid.UUID

// Nil is the empty UUID, all zeros.
var Nil = UUID(guuid.Nil)

// String returns the string form of uuid,
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx.
func (i UUID) String() string {
	return guuid.UUID(i).String()
}

// IsNil reports whether i is the Nil UUID.
func (i UUID) IsNil() bool { return i == Nil }

func (i UUID) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(i.String())), nil
}

func (i *UUID) UnmarshalJSON(b []byte) (err error) {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("expected quoted uuid, but got %s: %w", b, err)
	}
	*i, err = Parse(s)
	return
}

// MarshalText implements encoding.TextMarshaler so ids can be used as map keys.
func (i UUID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *UUID) UnmarshalText(b []byte) (err error) {
	*i, err = Parse(string(b))
	return
}

// Parse decodes s into a UUID or returns an error.
// Dashed, urn and raw hex forms are accepted.
func Parse(s string) (UUID, error) {
	id, err := guuid.Parse(s)
	return UUID(id), err
}

// MustParse is like Parse but panics on invalid input.
func MustParse(s string) UUID {
	return UUID(guuid.MustParse(s))
}

// OfflinePlayerUUID returns the id an offline-mode server assigns to username.
func OfflinePlayerUUID(username string) UUID {
	const version = 3 // UUID v3
	id := md5.Sum([]byte("OfflinePlayer:" + username))
	id[6] = (id[6] & 0x0f) | uint8((version&0xf)<<4)
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant
	return id
}

// New creates a new random UUID or panics.
func New() UUID { return UUID(guuid.New()) }
