package features

import (
	"github.com/robinbraemer/event"

	"go.minekube.com/vanish/pkg/feature"
	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish"
	"go.minekube.com/vanish/pkg/vanish/config"
)

// Level hides vanished players from every observer that cannot see them
// and optionally shows them as spectators to those who can.
type Level struct {
	feature.Base
	core Core
	host vanish.Host
	cfg  config.Level
}

// NewLevel returns the level feature.
func NewLevel(core Core, host vanish.Host, cfg config.Level) *Level {
	return &Level{
		Base: feature.NewBase(config.FeatureLevel, feature.General),
		core: core,
		host: host,
		cfg:  cfg,
	}
}

func (l *Level) Events() []any {
	return []any{
		(*vanish.VanishEvent)(nil),
		(*vanish.UnVanishEvent)(nil),
		(*vanish.LevelChangeEvent)(nil),
		(*vanish.GameModeChangeEvent)(nil),
		(*vanish.JoinEvent)(nil),
	}
}

func (l *Level) OnEvent(e event.Event) {
	switch e := e.(type) {
	case *vanish.VanishEvent:
		l.refresh(e.User.ID)
	case *vanish.LevelChangeEvent:
		if e.User.Vanished {
			l.refresh(e.User.ID)
		}
	case *vanish.UnVanishEvent:
		l.reveal(e.User.ID)
	case *vanish.GameModeChangeEvent:
		l.onGameModeChange(e)
	case *vanish.JoinEvent:
		l.onJoin(e)
	}
}

// refresh applies the visibility of a vanished target to every other online player.
func (l *Level) refresh(targetID uuid.UUID) {
	target, ok := l.host.Player(targetID)
	if !ok {
		return
	}
	for _, observer := range l.host.Players() {
		if observer.ID() == targetID {
			continue
		}
		l.apply(observer, target)
	}
}

func (l *Level) apply(observer, target vanish.Player) {
	if !l.core.IsVisible(observer.ID(), target.ID()) {
		l.host.HidePlayer(observer, target)
		return
	}
	l.host.ShowPlayer(observer, target)
	if l.cfg.SeeAsSpectator {
		l.host.SendGameMode(observer, target, vanish.Spectator)
	}
}

func (l *Level) reveal(targetID uuid.UUID) {
	target, ok := l.host.Player(targetID)
	if !ok {
		return
	}
	for _, observer := range l.host.Players() {
		if observer.ID() == targetID {
			continue
		}
		l.host.ShowPlayer(observer, target)
		if l.cfg.SeeAsSpectator {
			l.host.SendGameMode(observer, target, target.GameMode())
		}
	}
}

// onGameModeChange keeps observers that can see a vanished player from
// receiving the real game mode while seeAsSpectator is on.
func (l *Level) onGameModeChange(e *vanish.GameModeChangeEvent) {
	if _, ok := vanished(l.core, e.Player.ID()); !ok {
		return
	}
	mode := e.NewMode
	if l.cfg.SeeAsSpectator {
		mode = vanish.Spectator
	}
	for _, observer := range l.host.Players() {
		if observer.ID() == e.Player.ID() || !l.core.IsVisible(observer.ID(), e.Player.ID()) {
			continue
		}
		l.host.SendGameMode(observer, e.Player, mode)
	}
}

// onJoin hides the vanished players the joining player cannot see, and
// hides the joining player if it is vanished itself.
func (l *Level) onJoin(e *vanish.JoinEvent) {
	joiner, ok := l.host.Player(e.User.ID)
	if !ok {
		return
	}
	for _, u := range l.core.VanishedUsers() {
		if u.ID == joiner.ID() {
			continue
		}
		target, ok := l.host.Player(u.ID)
		if !ok {
			continue
		}
		l.apply(joiner, target)
	}
	if _, ok := vanished(l.core, joiner.ID()); ok {
		l.refresh(joiner.ID())
	}
}
