package vanish

import (
	"go.minekube.com/common/minecraft/component"

	"go.minekube.com/vanish/pkg/util/permission"
	"go.minekube.com/vanish/pkg/util/uuid"
)

// PermissionVanish allows a player to vanish and to see vanished players
// up to their own level.
const PermissionVanish = "vanish.action.vanish"

// PermissionFunc reports whether the player with the given id has PermissionVanish.
type PermissionFunc func(id uuid.UUID) bool

// Scheduler runs tasks on the game thread.
type Scheduler interface {
	// RunDeferred runs fn delayTicks ticks from now, at least one.
	RunDeferred(fn func(), delayTicks int)
}

// GameMode is a Minecraft game mode.
type GameMode int

// Game modes.
const (
	Survival GameMode = iota
	Creative
	Adventure
	Spectator
)

func (g GameMode) String() string {
	switch g {
	case Survival:
		return "survival"
	case Creative:
		return "creative"
	case Adventure:
		return "adventure"
	case Spectator:
		return "spectator"
	}
	return "unknown"
}

// Player is an online player of the host server.
type Player interface {
	permission.Subject
	ID() uuid.UUID
	Username() string
	GameMode() GameMode
}

// Host is the game server vanish runs on.
// Methods are only called from the game thread.
type Host interface {
	// Players returns the online players.
	Players() []Player
	// Player returns the online player with the given id.
	Player(id uuid.UUID) (Player, bool)
	// HidePlayer hides target from observer, removing its entity.
	HidePlayer(observer, target Player)
	// ShowPlayer reverts HidePlayer.
	ShowPlayer(observer, target Player)
	// SendGameMode tells observer that target is in the given game mode
	// without changing target's real game mode.
	SendGameMode(observer, target Player, mode GameMode)
	// OpenInventory opens owner's inventory to viewer.
	OpenInventory(viewer, owner Player)
	// Broadcast sends a chat message to every online player.
	Broadcast(msg component.Component)
}
