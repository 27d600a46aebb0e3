// Package store is the per-process map of player identity to vanish record.
//
// A Store is safe for concurrent use: event handlers read from many
// goroutines while the bridge writes from its own. Readers always receive
// copies, never pointers into the map.
package store

import (
	"sync"

	"go.minekube.com/vanish/pkg/util/uuid"
	"go.minekube.com/vanish/pkg/vanish/user"
)

// ChangeResult is returned by write operations.
type ChangeResult struct {
	// Applied is false if the write matched the current record exactly.
	Applied bool
	// Previous is the record before the write, nil if there was none.
	Previous *user.User
	// Current is the record after the write.
	Current user.User
}

// Created reports whether the write created a new record.
func (r ChangeResult) Created() bool { return r.Applied && r.Previous == nil }

// Store maps player ids to their vanish record.
type Store struct {
	mu    sync.RWMutex // Protects following field
	users map[uuid.UUID]*user.User
}

// New returns an empty Store.
func New() *Store {
	return &Store{users: map[uuid.UUID]*user.User{}}
}

// Upsert sets the state of a player, creating the record if needed.
// Writing the exact current state returns Applied=false.
func (s *Store) Upsert(id uuid.UUID, username string, state user.State) ChangeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		u = user.New(id, username)
		u.State = state
		s.users[id] = u
		return ChangeResult{Applied: true, Current: *u}
	}
	prev := u.Clone()
	if !u.Apply(state) {
		return ChangeResult{Previous: prev, Current: *u}
	}
	return ChangeResult{Applied: true, Previous: prev, Current: *u}
}

// Put writes a full record, including host server and sequence.
// Identical records return Applied=false.
func (s *Store) Put(u user.User) ChangeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(u)
}

func (s *Store) put(u user.User) ChangeResult {
	cur, ok := s.users[u.ID]
	if !ok {
		s.users[u.ID] = u.Clone()
		return ChangeResult{Applied: true, Current: u}
	}
	if *cur == u {
		return ChangeResult{Previous: cur.Clone(), Current: u}
	}
	prev := cur.Clone()
	*cur = u
	return ChangeResult{Applied: true, Previous: prev, Current: u}
}

// PutRemote writes u unless the current record of u.ID is hosted by
// localServerID. ok is false if the write was refused.
func (s *Store) PutRemote(localServerID string, u user.User) (res ChangeResult, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, exists := s.users[u.ID]; exists && cur.ServerID == localServerID {
		return ChangeResult{Previous: cur.Clone(), Current: *cur}, false
	}
	return s.put(u), true
}

// Update runs fn on a copy of the record with the given id and stores the
// result unless fn returns false. Unknown ids are a no-op.
func (s *Store) Update(id uuid.UUID, fn func(u *user.User) bool) ChangeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[id]
	if !ok {
		return ChangeResult{}
	}
	next := cur.Clone()
	if !fn(next) {
		return ChangeResult{Previous: cur.Clone(), Current: *cur}
	}
	return s.put(*next)
}

// Remove deletes the record of id and returns it.
// Unknown ids are a no-op returning nil.
func (s *Store) Remove(id uuid.UUID) *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil
	}
	delete(s.users, id)
	return u
}

// RemoveHosted deletes the record of id only if it is hosted by serverID.
// It returns the deleted record or nil.
func (s *Store) RemoveHosted(id uuid.UUID, serverID string) *user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.ServerID != serverID {
		return nil
	}
	delete(s.users, id)
	return u
}

// Get returns a copy of the record of id.
func (s *Store) Get(id uuid.UUID) (user.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// Lookup is Get returning nil for unknown ids.
func (s *Store) Lookup(id uuid.UUID) *user.User {
	u, ok := s.Get(id)
	if !ok {
		return nil
	}
	return &u
}

// All returns a copy of every record.
func (s *Store) All() []user.User {
	return s.Filter(nil)
}

// Filter returns copies of the records for which keep returns true.
// A nil keep returns all records.
func (s *Store) Filter(keep func(u *user.User) bool) []user.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		if keep == nil || keep(u) {
			all = append(all, *u)
		}
	}
	return all
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// PurgeAll drops every record and returns how many were dropped.
func (s *Store) PurgeAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.users)
	s.users = map[uuid.UUID]*user.User{}
	return n
}

// ReplaceRemote replaces every record not hosted by localServerID with
// entries. Records hosted locally are never touched, and entries for
// players that are local are skipped.
//
// It returns the remote records that were dropped and the writes that
// changed a record.
func (s *Store) ReplaceRemote(localServerID string, entries []user.User) (removed []user.User, changed []ChangeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := make(map[uuid.UUID]struct{}, len(entries))
	for _, e := range entries {
		if cur, ok := s.users[e.ID]; ok && cur.ServerID == localServerID {
			continue
		}
		if e.ServerID == localServerID {
			// The proxy still remembers a player that is no longer here.
			continue
		}
		incoming[e.ID] = struct{}{}
		if res := s.put(e); res.Applied {
			changed = append(changed, res)
		}
	}
	for id, u := range s.users {
		if u.ServerID == localServerID {
			continue
		}
		if _, ok := incoming[id]; ok {
			continue
		}
		delete(s.users, id)
		removed = append(removed, *u)
	}
	return removed, changed
}
