package features

import (
	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"

	"go.minekube.com/vanish/pkg/feature"
	"go.minekube.com/vanish/pkg/util/componentutil"
	"go.minekube.com/vanish/pkg/util/console"
	"go.minekube.com/vanish/pkg/vanish"
	"go.minekube.com/vanish/pkg/vanish/config"
	"go.minekube.com/vanish/pkg/vanish/user"
)

// JoinQuitMessage suppresses the join and quit messages of vanished players
// and broadcasts fake ones when a player vanishes or reappears.
type JoinQuitMessage struct {
	feature.Base
	core Core
	host vanish.Host
	cfg  config.JoinQuitMessage
	log  logr.Logger
}

// NewJoinQuitMessage returns the join_quit_message feature.
func NewJoinQuitMessage(core Core, host vanish.Host, cfg config.JoinQuitMessage, log logr.Logger) *JoinQuitMessage {
	return &JoinQuitMessage{
		Base: feature.NewBase(config.FeatureJoinQuitMessage, feature.General),
		core: core,
		host: host,
		cfg:  cfg,
		log:  log,
	}
}

func (f *JoinQuitMessage) Events() []any {
	return []any{
		(*vanish.JoinMessageEvent)(nil),
		(*vanish.QuitMessageEvent)(nil),
		(*vanish.VanishEvent)(nil),
		(*vanish.UnVanishEvent)(nil),
	}
}

func (f *JoinQuitMessage) OnEvent(e event.Event) {
	switch e := e.(type) {
	case *vanish.JoinMessageEvent:
		if f.isVanished(e.Player) {
			e.Message = nil
		}
	case *vanish.QuitMessageEvent:
		if f.isVanished(e.Player) {
			e.Message = nil
		}
	case *vanish.VanishEvent:
		if !e.Remote {
			f.broadcast(f.cfg.QuitMessage, e.User)
		}
	case *vanish.UnVanishEvent:
		if !e.Remote {
			f.broadcast(f.cfg.JoinMessage, e.User)
		}
	}
}

func (f *JoinQuitMessage) isVanished(p vanish.Player) bool {
	if p == nil {
		return false
	}
	u, ok := f.core.User(p.ID())
	return ok && u.Vanished
}

func (f *JoinQuitMessage) broadcast(template string, u user.User) {
	if template == "" {
		return
	}
	text := componentutil.Format(template, map[string]string{"player": u.Username})
	msg, err := componentutil.ParseMessage(text)
	if err != nil {
		f.log.Error(err, "invalid message template", "template", template)
		return
	}
	f.host.Broadcast(msg)
	f.log.V(1).Info("broadcast fake message", "player", u.Username,
		"message", console.StripLegacy(text, '&'))
}
