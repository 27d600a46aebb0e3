package vanish

import (
	"go.minekube.com/common/minecraft/component"

	"go.minekube.com/vanish/pkg/vanish/user"
)

// VanishEvent is fired one tick after a player became vanished.
type VanishEvent struct {
	User user.User
	// Remote is true if the change was made on another server.
	Remote bool
}

// UnVanishEvent is fired one tick after a player became visible.
type UnVanishEvent struct {
	User   user.User
	Remote bool
}

// LevelChangeEvent is fired one tick after the vanish level of a player changed.
type LevelChangeEvent struct {
	User     user.User
	Previous int
	Remote   bool
}

// JoinEvent is fired one tick after a player joined this server.
type JoinEvent struct {
	User user.User
}

// QuitEvent is fired one tick after a player left this server.
type QuitEvent struct {
	User user.User
}

// The following events are fired by the host adapter for game events.

// cancellable is embedded by events the handlers may cancel.
type cancellable struct{ cancelled bool }

// SetCancelled sets whether the game action is prevented.
func (c *cancellable) SetCancelled(cancelled bool) { c.cancelled = cancelled }

// Cancelled returns whether the game action is prevented.
func (c *cancellable) Cancelled() bool { return c.cancelled }

// GameModeChangeEvent is fired when a player's game mode changes.
type GameModeChangeEvent struct {
	Player  Player
	NewMode GameMode
}

// TabCompleteEvent is fired when the server answers a tab completion request.
type TabCompleteEvent struct {
	Player      Player
	Suggestions []string
}

// InteractAction is the kind of a block interaction.
type InteractAction int

// Interact actions.
const (
	RightClickBlock InteractAction = iota
	LeftClickBlock
	// Physical is stepping on a block like a pressure plate.
	Physical
)

// InteractEvent is fired when a player interacts with a block.
type InteractEvent struct {
	cancellable
	Player Player
	Action InteractAction
	// Block is the block type name, e.g. STONE_PRESSURE_PLATE or BIG_DRIPLEAF.
	Block string
	// Container is true if the block holds an inventory.
	Container bool
}

// InteractAtPlayerEvent is fired when a player right-clicks another player.
type InteractAtPlayerEvent struct {
	cancellable
	Player Player
	Target Player
}

// InventoryClickEvent is fired when a player clicks a slot of an open inventory.
type InventoryClickEvent struct {
	cancellable
	Player Player
}

// InventoryCloseEvent is fired when a player closes an inventory.
type InventoryCloseEvent struct {
	Player Player
}

// JoinMessageEvent is fired before the join message of a player is broadcast.
// Setting Message to nil suppresses it.
type JoinMessageEvent struct {
	Player  Player
	Message component.Component
}

// QuitMessageEvent is fired before the quit message of a player is broadcast.
// Setting Message to nil suppresses it.
type QuitMessageEvent struct {
	Player  Player
	Message component.Component
}
