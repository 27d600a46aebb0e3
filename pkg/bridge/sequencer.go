package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.minekube.com/vanish/pkg/util/uuid"
)

// DefaultSequenceTTL is how long the ordering state of a player is
// remembered after its last change.
const DefaultSequenceTTL = 30 * time.Minute

// sequence is the ordering state of one player.
type sequence struct {
	last uint64 // seq of the last applied change
	// set while the player is removed
	removedBy  string
	removedSeq uint64
}

// Sequencer decides whether a change is newer than what was applied for
// its player. Entries outlive the player's record so that a late change
// arriving after a removal is still recognized as stale.
//
// A removal only says the player left its origin. It blocks older changes
// from that origin but not the change of a server the player moved to,
// even if that change drew a lower sequence number than the removal.
type Sequencer struct {
	mu    sync.Mutex // serializes compare-and-set
	state *ttlcache.Cache[uuid.UUID, sequence]
}

// NewSequencer returns a Sequencer forgetting players ttl after their last change.
// A non-positive ttl uses DefaultSequenceTTL.
func NewSequencer(ttl time.Duration) *Sequencer {
	if ttl <= 0 {
		ttl = DefaultSequenceTTL
	}
	return &Sequencer{
		state: ttlcache.New[uuid.UUID, sequence](
			ttlcache.WithTTL[uuid.UUID, sequence](ttl),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, sequence](),
		),
	}
}

// Accept records c and returns true if c is newer than the changes applied
// before for the same player. Otherwise it returns false and changes nothing.
func (s *Sequencer) Accept(c *StateChange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur sequence
	if item := s.state.Get(c.ID); item != nil {
		cur = item.Value()
	}
	if c.Seq <= cur.last {
		return false
	}
	if cur.removedBy != "" && cur.removedBy == c.Origin && c.Seq <= cur.removedSeq {
		return false
	}
	if c.Removed {
		cur.removedBy, cur.removedSeq = c.Origin, c.Seq
	} else {
		cur = sequence{last: c.Seq}
	}
	s.state.Set(c.ID, cur, ttlcache.DefaultTTL)
	return true
}

// Last returns the sequence number of the last applied non-removal change of id.
func (s *Sequencer) Last(id uuid.UUID) (uint64, bool) {
	item := s.state.Get(id)
	if item == nil {
		return 0, false
	}
	return item.Value().last, true
}

// Run evicts expired entries until ctx is done.
func (s *Sequencer) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.state.Stop()
	}()
	s.state.Start()
}
