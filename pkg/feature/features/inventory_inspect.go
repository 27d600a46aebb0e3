package features

import (
	"sync"

	"github.com/robinbraemer/event"

	"go.minekube.com/vanish/pkg/feature"
	"go.minekube.com/vanish/pkg/util/permission"
	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish"
	"go.minekube.com/vanish/pkg/vanish/config"
)

// InventoryInspect opens the inventory of a clicked player to a vanished
// player. Without the modify permission the inventory is read-only.
type InventoryInspect struct {
	feature.Base
	core Core
	host vanish.Host
	cfg  config.InventoryInspect

	mu         sync.Mutex // protects inspecting
	inspecting map[uuid.UUID]struct{}
}

// NewInventoryInspect returns the inventory_inspect feature.
func NewInventoryInspect(core Core, host vanish.Host, cfg config.InventoryInspect) *InventoryInspect {
	return &InventoryInspect{
		Base:       feature.NewBase(config.FeatureInventoryInspect, feature.General),
		core:       core,
		host:       host,
		cfg:        cfg,
		inspecting: map[uuid.UUID]struct{}{},
	}
}

func (f *InventoryInspect) Events() []any {
	return []any{
		(*vanish.InteractAtPlayerEvent)(nil),
		(*vanish.InventoryClickEvent)(nil),
		(*vanish.InventoryCloseEvent)(nil),
		(*vanish.QuitEvent)(nil),
	}
}

func (f *InventoryInspect) OnEvent(e event.Event) {
	switch e := e.(type) {
	case *vanish.InteractAtPlayerEvent:
		if e.Target == nil {
			return
		}
		if _, ok := vanished(f.core, e.Player.ID()); !ok {
			return
		}
		e.SetCancelled(true)
		f.host.OpenInventory(e.Player, e.Target)
		f.mu.Lock()
		f.inspecting[e.Player.ID()] = struct{}{}
		f.mu.Unlock()
	case *vanish.InventoryClickEvent:
		if f.Inspecting(e.Player.ID()) && !f.canModify(e.Player) {
			e.SetCancelled(true)
		}
	case *vanish.InventoryCloseEvent:
		f.stop(e.Player.ID())
	case *vanish.QuitEvent:
		f.stop(e.User.ID)
	}
}

// Inspecting reports whether the player is viewing another player's inventory.
func (f *InventoryInspect) Inspecting(id uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inspecting[id]
	return ok
}

func (f *InventoryInspect) stop(id uuid.UUID) {
	f.mu.Lock()
	delete(f.inspecting, id)
	f.mu.Unlock()
}

func (f *InventoryInspect) canModify(p vanish.Player) bool {
	if f.cfg.ModifyPermission == "" {
		return false
	}
	ok, err := permission.Has(p, f.cfg.ModifyPermission)
	return err == nil && ok
}
