// Package features contains the built-in vanish features.
package features

import (
	"errors"

	"github.com/go-logr/logr"

	"go.minekube.com/vanish/pkg/feature"
	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish"
	"go.minekube.com/vanish/pkg/vanish/config"
	"go.minekube.com/vanish/pkg/vanish/user"
)

// Core is the part of vanish.Vanish the features use.
type Core interface {
	IsVisible(observerID, targetID uuid.UUID) bool
	HasPermission(id uuid.UUID) bool
	User(id uuid.UUID) (user.User, bool)
	VanishedUsers() []user.User
	Local(id uuid.UUID) bool
}

var _ Core = (*vanish.Vanish)(nil)

// Register creates every built-in feature, enables it as configured and
// registers it with r.
func Register(r *feature.Registry, core Core, host vanish.Host, cfg config.Features, log logr.Logger) error {
	all := []feature.Feature{
		NewLevel(core, host, cfg.Level),
		NewPreventTabComplete(core, cfg.PreventTabComplete),
		NewPreventInteract(core, cfg.PreventInteract),
		NewInventoryInspect(core, host, cfg.InventoryInspect),
		NewJoinQuitMessage(core, host, cfg.JoinQuitMessage, log.WithName(config.FeatureJoinQuitMessage)),
	}
	var errs []error
	for _, f := range all {
		f.SetEnabled(cfg.Enabled(f.Name()))
		errs = append(errs, r.Register(f))
	}
	return errors.Join(errs...)
}

// vanished reports whether the player is a vanished player hosted here.
func vanished(core Core, id uuid.UUID) (user.User, bool) {
	u, ok := core.User(id)
	if !ok || !u.Vanished || !core.Local(id) {
		return u, false
	}
	return u, true
}
