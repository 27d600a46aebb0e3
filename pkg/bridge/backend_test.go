package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish/store"
	"go.minekube.com/vanish/pkg/vanish/user"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes [][2]*user.User
}

func (r *changeRecorder) record(prev, cur *user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, [2]*user.User{prev, cur})
}

func (r *changeRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type testBackend struct {
	*Backend
	store    *store.Store
	recorder *changeRecorder
}

func startBackend(t *testing.T, ctx context.Context, serverID string, dialer Dialer) *testBackend {
	t.Helper()
	return startBackendWith(t, ctx, BackendOptions{ServerID: serverID, Dialer: dialer})
}

// startBackendWith starts a backend with opts, filling in a fresh store and
// a change recorder, and waits for the first snapshot.
func startBackendWith(t *testing.T, ctx context.Context, opts BackendOptions) *testBackend {
	t.Helper()
	s := store.New()
	rec := &changeRecorder{}
	opts.Store = s
	opts.OnRemoteChange = rec.record
	b, err := NewBackend(opts)
	require.NoError(t, err)
	go func() { _ = b.Start(ctx) }()
	require.Eventually(t, b.Synced, 5*time.Second, time.Millisecond)
	return &testBackend{Backend: b, store: s, recorder: rec}
}

// lossyConn silently drops messages matching dropSend or dropReceive.
type lossyConn struct {
	Conn
	dropSend    func(*Message) bool
	dropReceive func(*Message) bool
}

func (c *lossyConn) Send(ctx context.Context, m *Message) error {
	if c.dropSend != nil && c.dropSend(m) {
		return nil
	}
	return c.Conn.Send(ctx, m)
}

func (c *lossyConn) Receive(ctx context.Context) (*Message, error) {
	for {
		m, err := c.Conn.Receive(ctx)
		if err != nil || c.dropReceive == nil || !c.dropReceive(m) {
			return m, err
		}
	}
}

// dropFirst matches the first message of kind and nothing after it.
type dropFirst struct {
	kind    Kind
	mu      sync.Mutex
	dropped bool
}

func (d *dropFirst) match(m *Message) bool {
	if m.Kind != d.kind {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dropped {
		return false
	}
	d.dropped = true
	return true
}

func (d *dropFirst) fired() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// lossyDialer attaches sessions to p through a lossyConn on the backend side.
func lossyDialer(ctx context.Context, p *Proxy, dropSend, dropReceive func(*Message) bool) Dialer {
	return DialerFunc(func(_ context.Context, serverID string) (Conn, error) {
		backend, proxy := Pipe()
		go func() { _ = p.Attach(ctx, serverID, proxy) }()
		return &lossyConn{Conn: backend, dropSend: dropSend, dropReceive: dropReceive}, nil
	})
}

// join hosts a player on b the way the vanish core does.
func (b *testBackend) join(id uuid.UUID, name string, state user.State) {
	b.store.Put(user.User{ID: id, Username: name, State: state, ServerID: b.ServerID()})
	b.Announce(id)
}

func TestBackend_ChangePropagatesToOtherBackends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{})
	dialer := PipeDialer(ctx, p)
	s1 := startBackend(t, ctx, "s1", dialer)
	s2 := startBackend(t, ctx, "s2", dialer)
	s3 := startBackend(t, ctx, "s3", dialer)

	s1.join(alice, "alice", user.State{Vanished: true, Level: 2})

	for _, b := range []*testBackend{s2, s3} {
		require.Eventually(t, func() bool {
			u, ok := b.store.Get(alice)
			return ok && u.Vanished && u.Level == 2 && u.ServerID == "s1"
		}, 2*time.Second, time.Millisecond)
		assert.Equal(t, 1, b.recorder.len())
	}
	assert.Zero(t, s1.recorder.len(), "origin does not receive its own change")
}

func TestBackend_SnapshotOnConnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{})
	p.Apply("s2", &StateChange{ID: bob, Username: "bob", Vanished: true, Level: 3, Seq: 1})
	// stale entry the proxy remembers for s1 itself
	p.Apply("s1", &StateChange{ID: alice, Username: "alice", Vanished: true, Seq: 1})

	b := startBackend(t, ctx, "s1", PipeDialer(ctx, p))

	u, ok := b.store.Get(bob)
	require.True(t, ok)
	assert.Equal(t, 3, u.Level)
	assert.Equal(t, "s2", u.ServerID)

	_, ok = b.store.Get(alice)
	assert.False(t, ok, "own entries are not part of the snapshot")
}

func TestBackend_SnapshotReplacesRemoteEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{})
	b := startBackend(t, ctx, "s1", PipeDialer(ctx, p))

	// an entry the proxy no longer knows
	b.store.Put(user.User{ID: bob, Username: "bob", State: user.State{Vanished: true}, ServerID: "s9", Seq: 1})
	p.Apply("s2", &StateChange{ID: alice, Username: "alice", Vanished: true, Seq: 10})

	require.NoError(t, b.Resync(ctx))
	_, ok := b.store.Get(bob)
	assert.False(t, ok)
	a, ok := b.store.Get(alice)
	require.True(t, ok)
	assert.Equal(t, "s2", a.ServerID)
}

func TestBackend_DiscardsStaleRemoteChange(t *testing.T) {
	s := store.New()
	b, err := NewBackend(BackendOptions{ServerID: "s2", Store: s})
	require.NoError(t, err)

	assert.True(t, b.ApplyRemote(&StateChange{ID: alice, Username: "alice", Vanished: true, Origin: "s1", Seq: 5}))
	assert.False(t, b.ApplyRemote(&StateChange{ID: alice, Username: "alice", Vanished: false, Origin: "s1", Seq: 3}))

	u, _ := s.Get(alice)
	assert.True(t, u.Vanished)
	assert.EqualValues(t, 5, u.Seq)
}

func TestBackend_LocalPlayerIsAuthoritative(t *testing.T) {
	s := store.New()
	b, err := NewBackend(BackendOptions{ServerID: "s1", Store: s})
	require.NoError(t, err)
	s.Put(user.User{ID: alice, Username: "alice", State: user.State{Vanished: true}, ServerID: "s1"})

	assert.False(t, b.ApplyRemote(&StateChange{ID: alice, Username: "alice", Origin: "s2", Seq: 1 << 60}))
	u, _ := s.Get(alice)
	assert.True(t, u.Vanished)
	assert.Equal(t, "s1", u.ServerID)

	// alice leaves s1 and the deferred change from s2 takes over
	removed := s.Remove(alice)
	b.AnnounceRemoval(*removed)
	u, ok := s.Get(alice)
	require.True(t, ok)
	assert.Equal(t, "s2", u.ServerID)
	assert.False(t, u.Vanished)
}

func TestBackend_RemovalOnlyFromHost(t *testing.T) {
	s := store.New()
	b, err := NewBackend(BackendOptions{ServerID: "s3", Store: s})
	require.NoError(t, err)
	require.True(t, b.ApplyRemote(&StateChange{ID: alice, Username: "alice", Origin: "s2", Seq: 2}))

	assert.False(t, b.ApplyRemote(RemovalOf(alice, "alice", "s1", 3)))
	_, ok := s.Get(alice)
	assert.True(t, ok)

	assert.True(t, b.ApplyRemote(RemovalOf(alice, "alice", "s2", 4)))
	_, ok = s.Get(alice)
	assert.False(t, ok)
}

func TestBackend_OutboxCoalesces(t *testing.T) {
	s := store.New()
	b, err := NewBackend(BackendOptions{
		ServerID:      "s1",
		Store:         s,
		Dialer:        PipeDialer(context.Background(), NewProxy(ProxyOptions{})),
		FlushInterval: time.Hour,
	})
	require.NoError(t, err)
	s.Put(user.User{ID: alice, Username: "alice", ServerID: "s1"})

	for i := 0; i < 5; i++ {
		s.Update(alice, func(u *user.User) bool { return u.Apply(user.State{Vanished: i%2 == 0, Level: i}) })
		require.True(t, b.Announce(alice))
	}
	assert.Equal(t, 1, b.Pending())
	assert.False(t, b.Announce(bob), "unknown players are not announced")
}

func TestBackend_ReconnectReannouncesLocalPlayers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{PurgeOnBackendDisconnect: true})

	var mu sync.Mutex
	var conns []Conn
	dialer := DialerFunc(func(_ context.Context, serverID string) (Conn, error) {
		backend, proxy := Pipe()
		mu.Lock()
		conns = append(conns, backend)
		mu.Unlock()
		go func() { _ = p.Attach(ctx, serverID, proxy) }()
		return backend, nil
	})
	s1 := startBackend(t, ctx, "s1", dialer)
	s1.join(alice, "alice", user.State{Vanished: true})
	require.Eventually(t, func() bool { _, ok := p.Entry(alice); return ok }, 2*time.Second, time.Millisecond)

	mu.Lock()
	_ = conns[0].Close()
	mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		n := len(conns)
		mu.Unlock()
		e, ok := p.Entry(alice)
		return n == 2 && ok && e.Vanished && e.ServerID == "s1"
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNewBackend_Validation(t *testing.T) {
	_, err := NewBackend(BackendOptions{Store: store.New()})
	assert.ErrorIs(t, err, ErrInvalidServerID)
	_, err = NewBackend(BackendOptions{ServerID: "s1"})
	assert.Error(t, err)
}

func TestBackend_ResyncRepairsDroppedChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{})
	lost := &dropFirst{kind: KindStateChange}
	s2 := startBackendWith(t, ctx, BackendOptions{
		ServerID: "s2",
		Dialer:   lossyDialer(ctx, p, nil, lost.match),
	})
	s1 := startBackendWith(t, ctx, BackendOptions{
		ServerID:       "s1",
		Dialer:         PipeDialer(ctx, p),
		ResyncInterval: 20 * time.Millisecond,
	})

	s1.join(alice, "alice", user.State{Vanished: true, Level: 2})
	require.Eventually(t, func() bool { _, ok := p.Entry(alice); return ok }, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		u, ok := s2.store.Get(alice)
		return ok && u.Vanished && u.Level == 2 && u.ServerID == "s1"
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, lost.fired())
}

func TestBackend_PeriodicResyncReannounces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{})
	s1 := startBackendWith(t, ctx, BackendOptions{
		ServerID:       "s1",
		Dialer:         PipeDialer(ctx, p),
		ResyncInterval: 20 * time.Millisecond,
	})
	s1.join(alice, "alice", user.State{Vanished: true})
	require.Eventually(t, func() bool { _, ok := p.Entry(alice); return ok }, 2*time.Second, time.Millisecond)
	first, _ := p.Entry(alice)

	require.Eventually(t, func() bool {
		e, _ := p.Entry(alice)
		return e.Seq > first.Seq
	}, 2*time.Second, 5*time.Millisecond)
	u, _ := s1.store.Get(alice)
	assert.True(t, u.Vanished)
}

func TestBackend_SnapshotRequestRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProxy(ProxyOptions{})
	p.Apply("s2", &StateChange{ID: bob, Username: "bob", Vanished: true, Level: 1, Seq: 1})
	lost := &dropFirst{kind: KindSnapshotRequest}

	b := startBackendWith(t, ctx, BackendOptions{
		ServerID:        "s1",
		Dialer:          lossyDialer(ctx, p, lost.match, nil),
		SnapshotTimeout: 50 * time.Millisecond,
	})

	assert.True(t, lost.fired())
	u, ok := b.store.Get(bob)
	require.True(t, ok)
	assert.Equal(t, "s2", u.ServerID)
}

func TestBackend_RequestSnapshotTimeout(t *testing.T) {
	b, err := NewBackend(BackendOptions{ServerID: "s1", Store: store.New(), SnapshotTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	// nobody answers on the other end
	backend, _ := Pipe()
	_, err = b.requestSnapshot(context.Background(), backend)
	assert.ErrorIs(t, err, ErrSnapshotTimeout)
}
