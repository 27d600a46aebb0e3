package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"go.minekube.com/vanish/pkg/internal/future"
	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish/store"
	"go.minekube.com/vanish/pkg/vanish/user"
)

// DefaultSnapshotTimeout is how long a backend waits for a snapshot response.
const DefaultSnapshotTimeout = 5 * time.Second

// RemoteChangeFunc is called after a change from another server was applied
// to the local store. current is nil if the player was removed.
type RemoteChangeFunc func(previous, current *user.User)

// BackendOptions configure a Backend.
type BackendOptions struct {
	// ServerID identifies this backend on the network. Required.
	ServerID string
	// Store is the local state store. Required.
	Store *store.Store
	// Dialer connects to the proxy.
	// A nil Dialer runs the backend standalone without a bridge.
	Dialer Dialer
	// FlushInterval batches outgoing changes. Zero sends them immediately.
	FlushInterval time.Duration
	// ResyncInterval re-announces all local players periodically.
	// Zero disables periodic resync.
	ResyncInterval time.Duration
	// SnapshotTimeout bounds the wait for a snapshot response.
	SnapshotTimeout time.Duration
	// SequenceTTL is passed to NewSequencer.
	SequenceTTL time.Duration
	// OnRemoteChange is called from the connection goroutine.
	OnRemoteChange RemoteChangeFunc
	// Logger is the logger of the backend. Defaults to logr.Discard.
	Logger logr.Logger
}

// Backend is the bridge role of a game server.
type Backend struct {
	opts  BackendOptions
	log   logr.Logger
	clock Clock
	seq   *Sequencer

	connected atomic.Bool
	synced    atomic.Bool
	kick      chan struct{}
	snapshots singleflight.Group

	mu      sync.Mutex // protects following fields
	conn    Conn
	pending *future.Chan[*SnapshotResponse]
	outbox  map[uuid.UUID]*StateChange
	order   []uuid.UUID
	// changes of local players announced by another server,
	// applied when the player leaves here
	deferred map[uuid.UUID]*StateChange
}

// Errors returned by Backend.
var (
	ErrNotConnected    = errors.New("not connected to proxy")
	ErrSnapshotTimeout = errors.New("timed out waiting for snapshot response")
)

// NewBackend returns a Backend. It does not connect until Start is called.
func NewBackend(opts BackendOptions) (*Backend, error) {
	if opts.ServerID == "" {
		return nil, ErrInvalidServerID
	}
	if opts.Store == nil {
		return nil, errors.New("backend requires a store")
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = DefaultSnapshotTimeout
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}
	return &Backend{
		opts:     opts,
		log:      opts.Logger.WithValues("server", opts.ServerID),
		seq:      NewSequencer(opts.SequenceTTL),
		kick:     make(chan struct{}, 1),
		outbox:   map[uuid.UUID]*StateChange{},
		deferred: map[uuid.UUID]*StateChange{},
	}, nil
}

// ServerID returns the id of this backend.
func (b *Backend) ServerID() string { return b.opts.ServerID }

// Connected reports whether a proxy session is established.
func (b *Backend) Connected() bool { return b.connected.Load() }

// Synced reports whether the snapshot of the current session was applied.
func (b *Backend) Synced() bool { return b.synced.Load() }

// Clock returns the sequence clock of this backend.
func (b *Backend) Clock() *Clock { return &b.clock }

// Announce draws a new sequence number for the locally hosted player id,
// stores it on the record and queues the record for the proxy.
// It reports false if id is not hosted here.
func (b *Backend) Announce(id uuid.UUID) bool {
	var change *StateChange
	res := b.opts.Store.Update(id, func(u *user.User) bool {
		if u.ServerID != b.opts.ServerID {
			return false
		}
		u.Seq = b.clock.Next()
		change = ChangeOf(*u, b.opts.ServerID, u.Seq)
		return true
	})
	if !res.Applied {
		return false
	}
	b.Publish(change)
	return true
}

// Publish queues a change for the proxy without blocking.
// The origin is set to this server and a zero Seq is replaced by a new one.
// Send failures are logged and the change stays queued until the next flush.
func (b *Backend) Publish(c *StateChange) {
	c.Origin = b.opts.ServerID
	if c.Seq == 0 {
		c.Seq = b.clock.Next()
	}
	b.seq.Accept(c)
	b.enqueue(c)
}

// AnnounceRemoval queues the removal of player u that left this server.
// The record must already be removed from the store.
//
// If another server announced the player while it was still hosted here,
// that change is applied now.
func (b *Backend) AnnounceRemoval(u user.User) {
	b.Publish(RemovalOf(u.ID, u.Username, b.opts.ServerID, 0))

	b.mu.Lock()
	c := b.deferred[u.ID]
	delete(b.deferred, u.ID)
	b.mu.Unlock()
	if c == nil {
		return
	}
	if res, ok := b.opts.Store.PutRemote(b.opts.ServerID, c.User()); ok && res.Applied {
		b.log.V(1).Info("player moved to another server", "player", c.Username, "server", c.Origin)
		b.notify(res.Previous, &res.Current)
	}
}

// enqueue keeps only the newest pending change per player.
func (b *Backend) enqueue(c *StateChange) {
	if b.opts.Dialer == nil {
		return
	}
	b.mu.Lock()
	cur, ok := b.outbox[c.ID]
	switch {
	case !ok:
		b.outbox[c.ID] = c
		b.order = append(b.order, c.ID)
	case c.Seq > cur.Seq:
		b.outbox[c.ID] = c
	}
	b.mu.Unlock()
	if b.opts.FlushInterval <= 0 {
		b.kickFlush()
	}
}

func (b *Backend) kickFlush() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued changes.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}

// flush sends all queued changes if connected.
// Changes that could not be sent stay queued.
func (b *Backend) flush(ctx context.Context) error {
	b.mu.Lock()
	conn := b.conn
	if conn == nil || len(b.order) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := make([]*StateChange, 0, len(b.order))
	for _, id := range b.order {
		batch = append(batch, b.outbox[id])
	}
	b.outbox = map[uuid.UUID]*StateChange{}
	b.order = nil
	b.mu.Unlock()

	for i, c := range batch {
		if err := conn.Send(ctx, c.Wrap()); err != nil {
			for _, rest := range batch[i:] {
				b.requeue(rest)
			}
			return fmt.Errorf("error sending state change: %w", err)
		}
	}
	return nil
}

func (b *Backend) requeue(c *StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.outbox[c.ID]; ok {
		if cur.Seq < c.Seq {
			b.outbox[c.ID] = c
		}
		return
	}
	b.outbox[c.ID] = c
	b.order = append(b.order, c.ID)
}

// Start runs the backend until ctx is done. It keeps a session to the
// proxy open, reconnecting with exponential backoff.
func (b *Backend) Start(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		b.seq.Run(ctx)
		return nil
	})
	if b.opts.Dialer == nil {
		b.log.Info("no bridge configured, running standalone")
		return eg.Wait()
	}
	eg.Go(func() error { return b.flushLoop(ctx) })
	if b.opts.ResyncInterval > 0 {
		eg.Go(func() error { return b.resyncLoop(ctx) })
	}
	eg.Go(func() error { return b.connectLoop(ctx) })
	return eg.Wait()
}

func (b *Backend) flushLoop(ctx context.Context) error {
	var tick <-chan time.Time
	if b.opts.FlushInterval > 0 {
		t := time.NewTicker(b.opts.FlushInterval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		case <-b.kick:
		}
		if err := b.flush(ctx); err != nil {
			b.log.V(1).Info("error flushing state changes", "error", err)
		}
	}
}

func (b *Backend) resyncLoop(ctx context.Context) error {
	t := time.NewTicker(b.opts.ResyncInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if b.Connected() {
				b.announceAll()
			}
		}
	}
}

func (b *Backend) connectLoop(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0
	for {
		start := time.Now()
		err := b.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(start) > bo.MaxInterval {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		b.log.Info("lost connection to proxy, reconnecting", "error", err, "retryIn", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (b *Backend) session(ctx context.Context) error {
	conn, err := b.opts.Dialer.Dial(ctx, b.opts.ServerID)
	if err != nil {
		return fmt.Errorf("error dialing proxy: %w", err)
	}
	defer conn.Close()

	b.setConn(conn)
	defer b.setConn(nil)
	b.log.Info("connected to proxy")

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer conn.Close()
		return b.readLoop(ctx, conn)
	})
	eg.Go(func() error {
		b.announceAll()
		if err := b.flush(ctx); err != nil {
			return err
		}
		return b.syncSnapshot(ctx, conn)
	})
	return eg.Wait()
}

func (b *Backend) setConn(conn Conn) {
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.connected.Store(conn != nil)
	if conn == nil {
		b.synced.Store(false)
	}
}

// announceAll queues every locally hosted player with a fresh sequence number.
func (b *Backend) announceAll() {
	for _, u := range b.opts.Store.Filter(b.isLocal) {
		b.Announce(u.ID)
	}
}

func (b *Backend) isLocal(u *user.User) bool { return u.ServerID == b.opts.ServerID }

func (b *Backend) readLoop(ctx context.Context, conn Conn) error {
	for {
		m, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		if err = m.Validate(); err != nil {
			b.log.V(1).Info("ignoring bridge message", "error", err)
			continue
		}
		switch m.Kind {
		case KindStateChange:
			b.ApplyRemote(m.StateChange)
		case KindSnapshotResponse:
			b.mu.Lock()
			f := b.pending
			b.mu.Unlock()
			if f == nil {
				b.log.V(1).Info("ignoring unsolicited snapshot response")
				continue
			}
			f.Complete(m.SnapshotResponse)
		default:
			b.log.V(1).Info("ignoring unexpected bridge message", "kind", m.Kind)
		}
	}
}

// ApplyRemote applies a change forwarded by the proxy.
//
// Changes for players hosted here, stale changes and removals from a
// server that no longer hosts the player are discarded.
func (b *Backend) ApplyRemote(c *StateChange) bool {
	b.clock.Observe(c.Seq)
	if c.Origin == b.opts.ServerID {
		return false
	}
	if !b.seq.Accept(c) {
		b.log.V(1).Info("discarding stale change", "player", c.Username, "origin", c.Origin, "seq", c.Seq)
		recordDiscarded(roleBackend)
		return false
	}
	if c.Removed {
		prev := b.opts.Store.RemoveHosted(c.ID, c.Origin)
		if prev == nil {
			recordDiscarded(roleBackend)
			return false
		}
		recordApplied(roleBackend, c)
		b.notify(prev, nil)
		return true
	}
	res, ok := b.opts.Store.PutRemote(b.opts.ServerID, c.User())
	if !ok {
		b.log.V(1).Info("deferring change for local player", "player", c.Username, "origin", c.Origin)
		b.mu.Lock()
		if cur := b.deferred[c.ID]; cur == nil || cur.Seq < c.Seq {
			b.deferred[c.ID] = c
		}
		b.mu.Unlock()
		return false
	}
	recordApplied(roleBackend, c)
	if res.Applied {
		b.notify(res.Previous, &res.Current)
	}
	return true
}

func (b *Backend) notify(previous, current *user.User) {
	if b.opts.OnRemoteChange != nil {
		b.opts.OnRemoteChange(previous, current)
	}
}

// syncSnapshot requests and applies the proxy snapshot, retrying until it
// succeeds or ctx is done.
func (b *Backend) syncSnapshot(ctx context.Context, conn Conn) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0
	return backoff.Retry(func() error {
		resp, err := b.requestSnapshot(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			b.log.Info("snapshot request failed, retrying", "error", err)
			return err
		}
		b.applySnapshot(resp)
		return nil
	}, backoff.WithContext(bo, ctx))
}

func (b *Backend) requestSnapshot(ctx context.Context, conn Conn) (*SnapshotResponse, error) {
	v, err, _ := b.snapshots.Do("snapshot", func() (any, error) {
		ctx, span := tracer.Start(ctx, "bridge.SnapshotRequest")
		defer span.End()

		f := future.NewChan[*SnapshotResponse]()
		b.mu.Lock()
		b.pending = f
		b.mu.Unlock()
		defer func() {
			b.mu.Lock()
			if b.pending == f {
				b.pending = nil
			}
			b.mu.Unlock()
		}()

		if err := conn.Send(ctx, snapshotRequest(b.opts.ServerID)); err != nil {
			return nil, fmt.Errorf("error sending snapshot request: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, b.opts.SnapshotTimeout)
		defer cancel()
		resp, err := f.Await(ctx)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSnapshotTimeout
		}
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*SnapshotResponse), nil
}

func (b *Backend) applySnapshot(resp *SnapshotResponse) {
	for _, e := range resp.Entries {
		b.clock.Observe(e.Seq)
		b.seq.Accept(ChangeOf(e, e.ServerID, e.Seq))
	}
	removed, changed := b.opts.Store.ReplaceRemote(b.opts.ServerID, resp.Entries)
	b.synced.Store(true)
	b.log.Info("applied proxy snapshot",
		"entries", len(resp.Entries), "removed", len(removed), "changed", len(changed))
	for i := range removed {
		b.notify(&removed[i], nil)
	}
	for _, res := range changed {
		b.notify(res.Previous, &res.Current)
	}
}

// Resync re-announces every local player and replaces all remote entries
// with a fresh proxy snapshot.
func (b *Backend) Resync(ctx context.Context) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	b.announceAll()
	if err := b.flush(ctx); err != nil {
		return err
	}
	resp, err := b.requestSnapshot(ctx, conn)
	if err != nil {
		return err
	}
	b.applySnapshot(resp)
	return nil
}
