package features

import (
	"slices"
	"strings"

	"github.com/robinbraemer/event"

	"go.minekube.com/vanish/pkg/feature"
	"go.minekube.com/vanish/pkg/vanish"
	"go.minekube.com/vanish/pkg/vanish/config"
	"go.minekube.com/vanish/pkg/vanish/visibility"
)

// PreventTabComplete removes vanished player names from tab completions.
type PreventTabComplete struct {
	feature.Base
	core Core
	cfg  config.PreventTabComplete
}

// NewPreventTabComplete returns the prevent_tab_complete feature.
func NewPreventTabComplete(core Core, cfg config.PreventTabComplete) *PreventTabComplete {
	return &PreventTabComplete{
		Base: feature.NewBase(config.FeaturePreventTabComplete, feature.Prevention),
		core: core,
		cfg:  cfg,
	}
}

// Priority runs the feature after other tab completion handlers.
func (f *PreventTabComplete) Priority() int { return -100 }

func (f *PreventTabComplete) Events() []any {
	return []any{(*vanish.TabCompleteEvent)(nil)}
}

func (f *PreventTabComplete) OnEvent(e event.Event) {
	tc, ok := e.(*vanish.TabCompleteEvent)
	if !ok || tc.Player == nil || len(tc.Suggestions) == 0 {
		return
	}
	hidden := f.hiddenNames(tc.Player)
	if len(hidden) == 0 {
		return
	}
	tc.Suggestions = slices.DeleteFunc(tc.Suggestions, func(s string) bool {
		return slices.Contains(hidden, strings.ToLower(s))
	})
}

// hiddenNames returns the lowercase names the observer must not complete.
func (f *PreventTabComplete) hiddenNames(observer vanish.Player) []string {
	vanishedUsers := f.core.VanishedUsers()
	level := visibility.UnknownLevel
	checkLevel := f.cfg.CheckVanishLevel && f.core.HasPermission(observer.ID())
	if checkLevel {
		if u, ok := f.core.User(observer.ID()); ok {
			level = visibility.Level(&u)
		}
	}
	names := make([]string, 0, len(vanishedUsers))
	for _, u := range vanishedUsers {
		if u.ID == observer.ID() {
			continue
		}
		if checkLevel && visibility.CanSeeLevel(level, u.Level) {
			continue
		}
		names = append(names, strings.ToLower(u.Username))
	}
	return names
}

// PreventInteract stops vanished players from triggering blocks.
type PreventInteract struct {
	feature.Base
	core Core
	cfg  config.PreventInteract
}

// NewPreventInteract returns the prevent_interact feature.
func NewPreventInteract(core Core, cfg config.PreventInteract) *PreventInteract {
	return &PreventInteract{
		Base: feature.NewBase(config.FeaturePreventInteract, feature.Prevention),
		core: core,
		cfg:  cfg,
	}
}

func (f *PreventInteract) Events() []any {
	return []any{(*vanish.InteractEvent)(nil)}
}

func (f *PreventInteract) OnEvent(e event.Event) {
	ie, ok := e.(*vanish.InteractEvent)
	if !ok || ie.Container {
		return
	}
	if _, ok := vanished(f.core, ie.Player.ID()); !ok {
		return
	}
	physical := ie.Action == vanish.Physical
	block := strings.ToUpper(ie.Block)
	plate := f.cfg.PressurePlateTrigger && physical && strings.Contains(block, "PLATE")
	dripLeaf := f.cfg.DripLeaf && physical && block == "BIG_DRIPLEAF"
	if f.cfg.Interact || plate || dripLeaf {
		ie.SetCancelled(true)
	}
}
