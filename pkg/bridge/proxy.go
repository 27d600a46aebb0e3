package bridge

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/zyedidia/generic/multimap"
	"golang.org/x/sync/errgroup"

	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish/user"
)

// DefaultSendQueueSize is the default number of messages buffered per backend session.
const DefaultSendQueueSize = 256

// ProxyOptions configure a Proxy.
type ProxyOptions struct {
	// PurgeOnBackendDisconnect drops the entries of a backend when its
	// last session ends and announces their removal to the others.
	PurgeOnBackendDisconnect bool
	// SendQueueSize bounds the outbound queue of each session.
	// Messages to a session with a full queue are dropped.
	SendQueueSize int
	// SequenceTTL is passed to NewSequencer.
	SequenceTTL time.Duration
	// Logger is the logger of the proxy. Defaults to logr.Discard.
	Logger logr.Logger
}

// Proxy is the central hub of the bridge.
type Proxy struct {
	opts  ProxyOptions
	log   logr.Logger
	clock Clock
	seq   *Sequencer

	mu       sync.RWMutex // protects following fields
	snapshot map[uuid.UUID]user.User
	byServer multimap.MultiMap[string, uuid.UUID]
	sessions map[string]*session
}

// NewProxy returns a Proxy with an empty snapshot.
func NewProxy(opts ProxyOptions) *Proxy {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = DefaultSendQueueSize
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	p := &Proxy{
		opts:     opts,
		log:      opts.Logger,
		seq:      NewSequencer(opts.SequenceTTL),
		snapshot: map[uuid.UUID]user.User{},
		byServer: multimap.NewMapSlice[string, uuid.UUID](),
		sessions: map[string]*session{},
	}
	if err := p.initMeter(); err != nil {
		p.log.Error(err, "error registering proxy metrics")
	}
	return p
}

// Run evicts expired sequence numbers until ctx is done.
func (p *Proxy) Run(ctx context.Context) error {
	p.seq.Run(ctx)
	return nil
}

// session is one connected backend.
type session struct {
	serverID string
	conn     Conn
	out      chan *Message
	log      logr.Logger
}

func (s *session) enqueue(m *Message) bool {
	select {
	case s.out <- m:
		return true
	default:
		s.log.Info("dropping bridge message, send queue full", "message", m)
		recordDropped(m)
		return false
	}
}

// ErrInvalidServerID is returned by Attach for an empty server id.
var ErrInvalidServerID = errors.New("invalid server id")

// Attach serves conn as the session of backend serverID until conn fails or
// ctx is done. A newer session for the same serverID replaces an older one.
// Attach closes conn before returning.
func (p *Proxy) Attach(ctx context.Context, serverID string, conn Conn) error {
	defer conn.Close()
	serverID = strings.TrimSpace(serverID)
	if serverID == "" {
		return ErrInvalidServerID
	}

	log := p.log.WithValues("server", serverID)
	s := &session{
		serverID: serverID,
		conn:     conn,
		out:      make(chan *Message, p.opts.SendQueueSize),
		log:      log,
	}

	p.mu.Lock()
	old := p.sessions[serverID]
	p.sessions[serverID] = s
	p.mu.Unlock()
	if old != nil {
		log.Info("backend reconnected, closing previous session")
		_ = old.conn.Close()
	}
	log.Info("backend connected")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case m := <-s.out:
				if err := conn.Send(ctx, m); err != nil {
					return fmt.Errorf("error sending %s: %w", m.Kind, err)
				}
			}
		}
	})
	eg.Go(func() error {
		defer conn.Close() // unblocks the writer
		for {
			m, err := conn.Receive(ctx)
			if err != nil {
				return err
			}
			if err = m.Validate(); err != nil {
				log.V(1).Info("ignoring bridge message", "error", err)
				continue
			}
			p.handle(s, m)
		}
	})
	err := eg.Wait()

	p.detach(s)
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("backend disconnected", "error", err)
	return err
}

func (p *Proxy) detach(s *session) {
	p.mu.Lock()
	if p.sessions[s.serverID] != s {
		// replaced by a newer session
		p.mu.Unlock()
		return
	}
	delete(p.sessions, s.serverID)
	p.mu.Unlock()

	if p.opts.PurgeOnBackendDisconnect {
		p.Purge(s.serverID)
	}
}

func (p *Proxy) handle(s *session, m *Message) {
	switch m.Kind {
	case KindStateChange:
		p.Apply(s.serverID, m.StateChange)
	case KindSnapshotRequest:
		entries := p.snapshotFor(s.serverID)
		s.log.V(1).Info("answering snapshot request", "entries", len(entries))
		s.enqueue(snapshotResponse(entries))
	default:
		s.log.V(1).Info("ignoring unexpected bridge message", "kind", m.Kind)
	}
}

// Apply applies a change received from backend from to the snapshot and
// forwards it to every other connected backend.
//
// The change is discarded if its sequence number is not higher than the
// last applied one for the player, or if it removes a player that is
// currently hosted by another backend. Every accepted change is forwarded,
// so a periodic re-announcement repairs backends that missed a message.
func (p *Proxy) Apply(from string, c *StateChange) (accepted bool) {
	change := *c
	change.Origin = from
	p.clock.Observe(change.Seq)

	p.mu.Lock()
	cur, exists := p.snapshot[change.ID]
	if change.Removed && exists && cur.ServerID != from {
		p.mu.Unlock()
		p.log.V(1).Info("ignoring removal from previous host",
			"player", change.Username, "from", from, "host", cur.ServerID)
		recordDiscarded(roleProxy)
		return false
	}
	if !p.seq.Accept(&change) {
		p.mu.Unlock()
		p.log.V(1).Info("discarding stale change",
			"player", change.Username, "from", from, "seq", change.Seq)
		recordDiscarded(roleProxy)
		return false
	}

	switch {
	case change.Removed:
		if exists {
			delete(p.snapshot, change.ID)
			p.byServer.Remove(from, change.ID)
		}
	default:
		if exists && cur.ServerID != from {
			p.byServer.Remove(cur.ServerID, change.ID)
		}
		if !exists || cur.ServerID != from {
			p.byServer.Put(from, change.ID)
		}
		p.snapshot[change.ID] = change.User()
	}
	targets := p.sessionsExcept(from)
	p.mu.Unlock()

	recordApplied(roleProxy, &change)
	m := change.Wrap()
	for _, s := range targets {
		s.enqueue(m)
	}
	return true
}

// Purge drops every entry hosted by serverID and announces the removals
// to all connected backends.
func (p *Proxy) Purge(serverID string) int {
	p.mu.Lock()
	ids := p.byServer.Get(serverID)
	p.byServer.RemoveAll(serverID)
	removals := make([]*Message, 0, len(ids))
	for _, id := range ids {
		u, ok := p.snapshot[id]
		if !ok || u.ServerID != serverID {
			continue
		}
		delete(p.snapshot, id)
		removal := RemovalOf(id, u.Username, serverID, p.clock.Next())
		p.seq.Accept(removal)
		removals = append(removals, removal.Wrap())
	}
	targets := p.sessionsExcept(serverID)
	p.mu.Unlock()

	if len(removals) != 0 {
		p.log.Info("purged entries of backend", "server", serverID, "entries", len(removals))
	}
	for _, s := range targets {
		for _, m := range removals {
			s.enqueue(m)
		}
	}
	return len(removals)
}

// sessionsExcept must be called with p.mu held.
func (p *Proxy) sessionsExcept(serverID string) []*session {
	targets := make([]*session, 0, len(p.sessions))
	for id, s := range p.sessions {
		if id != serverID {
			targets = append(targets, s)
		}
	}
	return targets
}

func (p *Proxy) snapshotFor(serverID string) []user.User {
	p.mu.RLock()
	entries := make([]user.User, 0, len(p.snapshot))
	for _, u := range p.snapshot {
		if u.ServerID != serverID {
			entries = append(entries, u)
		}
	}
	p.mu.RUnlock()
	sortUsers(entries)
	return entries
}

// Snapshot returns every entry the proxy knows, ordered by username.
func (p *Proxy) Snapshot() []user.User {
	return p.snapshotFor("")
}

// Entry returns the snapshot entry of id.
func (p *Proxy) Entry(id uuid.UUID) (user.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	u, ok := p.snapshot[id]
	return u, ok
}

// Backends returns the ids of the connected backends in sorted order.
func (p *Proxy) Backends() []string {
	p.mu.RLock()
	ids := make([]string, 0, len(p.sessions))
	for id := range p.sessions {
		ids = append(ids, id)
	}
	p.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Connected reports whether backend serverID has a session.
func (p *Proxy) Connected(serverID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.sessions[serverID]
	return ok
}

func sortUsers(users []user.User) {
	slices.SortFunc(users, func(a, b user.User) int {
		if c := strings.Compare(a.Username, b.Username); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
