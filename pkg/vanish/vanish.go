// Package vanish is the core of the vanish system on a backend server.
//
// Vanish owns the local state store and the backend end of the bridge.
// The host adapter translates game events into calls of OnJoin, OnLeave,
// SetVanished and IsVisible, and fires the host events declared in this
// package on the event manager. State change events are fired one tick
// after the change through the Scheduler.
package vanish

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/robinbraemer/event"
	"golang.org/x/sync/errgroup"

	"go.minekube.com/vanish/pkg/bridge"
	"go.minekube.com/vanish/pkg/tick"
	"go.minekube.com/vanish/pkg/util/permission"
	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish/config"
	"go.minekube.com/vanish/pkg/vanish/store"
	"go.minekube.com/vanish/pkg/vanish/user"
	"go.minekube.com/vanish/pkg/vanish/visibility"
)

// Options are the options of a Vanish.
type Options struct {
	// Config is the configuration. DefaultConfig is used if nil.
	Config *config.Config
	// Permission checks PermissionVanish. If nil nobody has the permission.
	Permission PermissionFunc
	// Scheduler runs deferred work on the game thread.
	// If nil, Vanish runs its own tick.Loop in Start.
	Scheduler Scheduler
	// Event is the event manager events are fired on.
	// If nil a new one is created.
	Event event.Manager
	// Dialer connects the backend to the proxy.
	// If nil the bridge is disabled.
	Dialer bridge.Dialer
	// Logger is the logger of Vanish. Defaults to logr.Discard.
	Logger logr.Logger
}

// Vanish is the vanish core of one backend server.
type Vanish struct {
	log      logr.Logger
	cfg      config.Config
	perm     PermissionFunc
	sched    Scheduler
	loop     *tick.Loop // nil if an external scheduler is used
	event    event.Manager
	store    *store.Store
	backend  *bridge.Backend
	serverID string
}

// New returns a new Vanish. It does not connect to the proxy until Start is called.
func New(opts Options) (*Vanish, error) {
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	cfg := config.DefaultConfig
	if opts.Config != nil {
		cfg = *opts.Config
	}
	cfg = cfg.WithDefaults()
	if _, errs := cfg.Validate(); len(errs) != 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	v := &Vanish{
		log:      opts.Logger,
		cfg:      cfg,
		perm:     opts.Permission,
		sched:    opts.Scheduler,
		event:    opts.Event,
		store:    store.New(),
		serverID: cfg.ServerID,
	}
	if v.event == nil {
		v.event = event.New()
	}
	if v.sched == nil {
		v.loop = tick.New(tick.DefaultInterval, v.log.WithName("tick"))
		v.sched = v.loop
	}

	var err error
	v.backend, err = bridge.NewBackend(bridge.BackendOptions{
		ServerID:        cfg.ServerID,
		Store:           v.store,
		Dialer:          opts.Dialer,
		FlushInterval:   cfg.CacheUpdatePeriod(),
		ResyncInterval:  cfg.ResyncPeriod(),
		SnapshotTimeout: cfg.SnapshotTimeout(),
		OnRemoteChange:  v.onRemoteChange,
		Logger:          v.log.WithName("bridge"),
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// DialerFromConfig returns the websocket dialer for cfg.Bridge,
// or nil if no bridge URL is configured.
func DialerFromConfig(cfg *config.Config) bridge.Dialer {
	if cfg == nil || cfg.Bridge.URL == "" {
		return nil
	}
	return &bridge.WebSocketDialer{URL: cfg.Bridge.URL, Secret: cfg.Bridge.Secret}
}

// Start runs the bridge and, without an external Scheduler, the tick loop
// until ctx is done.
func (v *Vanish) Start(ctx context.Context) error {
	if v.cfg.PurgeOnlineHistoryOnStartup {
		if n := v.store.PurgeAll(); n != 0 {
			v.log.Info("purged online history", "entries", n)
		}
	}
	v.log.Info("starting vanish", "serverId", v.serverID)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return v.backend.Start(ctx) })
	if v.loop != nil {
		eg.Go(func() error { return v.loop.Run(ctx) })
	}
	return eg.Wait()
}

// ServerID returns the id of this server on the bridge.
func (v *Vanish) ServerID() string { return v.serverID }

// Config returns the effective configuration.
func (v *Vanish) Config() config.Config { return v.cfg }

// Event returns the event manager.
func (v *Vanish) Event() event.Manager { return v.event }

// Scheduler returns the scheduler deferred work runs on.
func (v *Vanish) Scheduler() Scheduler { return v.sched }

// Backend returns the bridge backend.
func (v *Vanish) Backend() *bridge.Backend { return v.backend }

// OnJoin registers a player that joined this server and returns its record.
//
// A record a remote server announced for the player means the player
// switched servers. It is adopted with its state and re-announced from here.
func (v *Vanish) OnJoin(id uuid.UUID, username string) user.User {
	cur, ok := v.store.Get(id)
	switch {
	case !ok:
		cur = *user.New(id, username)
		cur.ServerID = v.serverID
		v.store.Put(cur)
	case cur.ServerID != v.serverID:
		v.log.V(1).Info("adopting player from another server", "player", cur.Username, "from", cur.ServerID)
		cur.ServerID = v.serverID
		v.store.Put(cur)
	}
	v.backend.Announce(id)
	u, _ := v.store.Get(id)

	v.sched.RunDeferred(func() {
		v.event.Fire(&JoinEvent{User: u})
	}, 1)
	return u
}

// OnLeave removes a player that left this server and announces the removal.
func (v *Vanish) OnLeave(id uuid.UUID) {
	removed := v.store.RemoveHosted(id, v.serverID)
	if removed == nil {
		return
	}
	v.backend.AnnounceRemoval(*removed)
	u := *removed
	v.sched.RunDeferred(func() {
		v.event.Fire(&QuitEvent{User: u})
	}, 1)
}

// SetVanished sets the vanish state of a player hosted on this server.
// Unknown and remote players are not changed. Negative levels are stored as 0.
//
// An applied change is announced to the network and the matching events
// are fired on the next tick.
func (v *Vanish) SetVanished(id uuid.UUID, vanished bool, level int) store.ChangeResult {
	if level < 0 {
		level = 0
	}
	res := v.store.Update(id, func(u *user.User) bool {
		return u.ServerID == v.serverID && u.Apply(user.State{Vanished: vanished, Level: level})
	})
	if !res.Applied {
		return res
	}
	v.backend.Announce(id)
	v.fireStateEvents(res.Previous, res.Current, false)
	return res
}

// IsVisible reports whether observer can see target.
// A permission check that panics counts as no permission.
func (v *Vanish) IsVisible(observerID, targetID uuid.UUID) bool {
	target := v.store.Lookup(targetID)
	if target == nil || !target.Vanished || observerID == targetID {
		return true
	}
	return visibility.ShouldSee(v.store.Lookup(observerID), target, v.HasPermission(observerID))
}

// HasPermission reports whether the player with the given id has PermissionVanish.
func (v *Vanish) HasPermission(id uuid.UUID) bool {
	if v.perm == nil {
		return false
	}
	allowed, err := permission.Check(func(string) permission.TriState {
		if v.perm(id) {
			return permission.True
		}
		return permission.False
	}, PermissionVanish)
	if err != nil {
		v.log.Error(err, "permission check failed, denying", "player", id)
	}
	return allowed
}

// User returns the record of a player on the network.
func (v *Vanish) User(id uuid.UUID) (user.User, bool) { return v.store.Get(id) }

// Users returns the records of all known players.
func (v *Vanish) Users() []user.User { return v.store.All() }

// VanishedUsers returns the records of all vanished players on the network.
func (v *Vanish) VanishedUsers() []user.User {
	return v.store.Filter(func(u *user.User) bool { return u.Vanished })
}

// Local reports whether the player is hosted on this server.
func (v *Vanish) Local(id uuid.UUID) bool {
	u, ok := v.store.Get(id)
	return ok && u.ServerID == v.serverID
}

func (v *Vanish) onRemoteChange(previous, current *user.User) {
	if current == nil {
		return
	}
	v.fireStateEvents(previous, *current, true)
}

// fireStateEvents schedules the events describing the transition from
// previous to current for the next tick.
func (v *Vanish) fireStateEvents(previous *user.User, current user.User, remote bool) {
	wasVanished := previous != nil && previous.Vanished
	var events []event.Event
	switch {
	case current.Vanished && !wasVanished:
		events = append(events, &VanishEvent{User: current, Remote: remote})
	case !current.Vanished && wasVanished:
		events = append(events, &UnVanishEvent{User: current, Remote: remote})
	}
	if previous != nil && previous.Level != current.Level {
		events = append(events, &LevelChangeEvent{User: current, Previous: previous.Level, Remote: remote})
	}
	if len(events) == 0 {
		return
	}
	v.sched.RunDeferred(func() {
		for _, e := range events {
			v.event.Fire(e)
		}
	}, 1)
}
