// Package store holds the Resource Stores: per-resource client caches that track
// the lifecycle of the last request and absorb live updates.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the request lifecycle of a store.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entity is a cached record. Key is its identity; Version is the server-assigned
// modification time, zero when unknown.
type Entity interface {
	Key() string
	Version() time.Time
}

// Placement decides where an entity that is not cached yet is inserted.
type Placement int

const (
	Append Placement = iota
	Prepend
)

// ErrReset is returned by an action whose store was reset while its request was
// in flight. The response is discarded.
var ErrReset = errors.New("store reset during request")

// Snapshot is a consistent copy of a store's state.
type Snapshot[T Entity] struct {
	Items  []T
	Status Status
	Err    error
}

// Store is the generic resource cache. All mutation goes through its methods;
// callers only ever see copies.
type Store[T Entity] struct {
	name string
	live Placement
	log  logrus.FieldLogger

	mu       sync.RWMutex
	items    []T
	status   Status
	err      error
	selected string
	epoch    uint64

	wmu      sync.Mutex
	watchers []func()
}

// New creates an empty store. live is where live events place entities that are
// not cached yet.
func New[T Entity](name string, live Placement, log logrus.FieldLogger) *Store[T] {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store[T]{
		name:   name,
		live:   live,
		log:    log.WithField("store", name),
		status: StatusIdle,
	}
}

// Name returns the resource name of the store.
func (s *Store[T]) Name() string { return s.name }

// OnChange registers fn to run after every state change.
func (s *Store[T]) OnChange(fn func()) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *Store[T]) changed() {
	s.wmu.Lock()
	watchers := append([]func(){}, s.watchers...)
	s.wmu.Unlock()
	for _, fn := range watchers {
		fn()
	}
}

// Snapshot returns a copy of the whole state.
func (s *Store[T]) Snapshot() Snapshot[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot[T]{Items: s.copyLocked(), Status: s.status, Err: s.err}
}

// Items returns a copy of the collection.
func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyLocked()
}

func (s *Store[T]) copyLocked() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Status returns the lifecycle status of the last request.
func (s *Store[T]) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the error of the last failed request, or nil.
func (s *Store[T]) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Len returns the size of the collection.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get returns the cached entity with key id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

// Selected returns the entity last opened for detail, if it is still cached.
func (s *Store[T]) Selected() (T, bool) {
	s.mu.RLock()
	id := s.selected
	s.mu.RUnlock()
	if id == "" {
		var zero T
		return zero, false
	}
	return s.Get(id)
}

// Reset empties the store and returns it to idle. Actions still in flight are
// discarded when they finish.
func (s *Store[T]) Reset() {
	s.mu.Lock()
	s.epoch++
	s.items = nil
	s.status = StatusIdle
	s.err = nil
	s.selected = ""
	s.mu.Unlock()
	s.changed()
}

// Apply merges an entity pushed by the live channel: it replaces a cached entry
// with the same key unless that entry is newer, and otherwise inserts it at the
// store's live placement. The request status is left untouched.
func (s *Store[T]) Apply(item T) {
	s.mu.Lock()
	kept := s.upsertLocked(item, s.live)
	s.mu.Unlock()
	if !kept {
		s.log.WithField("id", item.Key()).Debug("Ignoring stale live update")
		return
	}
	s.changed()
}

// track runs call as one store action. The store is loading while call runs;
// on success apply runs under the store lock and the store succeeds, on failure
// the error is recorded and the collection is left unchanged. If the store is
// reset before call returns, the outcome is dropped and ErrReset is returned in
// place of a nil error.
func (s *Store[T]) track(action string, call func() error, apply func()) error {
	s.mu.Lock()
	s.status = StatusLoading
	s.err = nil
	epoch := s.epoch
	s.mu.Unlock()
	s.changed()

	err := call()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.log.WithField("action", action).Debug("Dropping response for reset store")
		if err == nil {
			err = ErrReset
		}
		return err
	}
	if err != nil {
		s.status = StatusFailed
		s.err = err
	} else {
		if apply != nil {
			apply()
		}
		s.status = StatusSucceeded
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).WithField("action", action).Warn("Store action failed")
	}
	s.changed()
	return err
}

func (s *Store[T]) indexLocked(id string) int {
	for i, item := range s.items {
		if item.Key() == id {
			return i
		}
	}
	return -1
}

// fresher reports whether incoming may replace current. Unknown versions fall
// back to last write wins.
func fresher(incoming, current Entity) bool {
	in, cur := incoming.Version(), current.Version()
	if in.IsZero() || cur.IsZero() {
		return true
	}
	return !in.Before(cur)
}

// upsertLocked replaces the entry with the same key in place, or inserts item
// at p. It reports false when a newer entry was kept instead.
func (s *Store[T]) upsertLocked(item T, p Placement) bool {
	if i := s.indexLocked(item.Key()); i >= 0 {
		if !fresher(item, s.items[i]) {
			return false
		}
		s.items[i] = item
		return true
	}
	if p == Prepend {
		s.items = append([]T{item}, s.items...)
	} else {
		s.items = append(s.items, item)
	}
	return true
}

// replaceAllLocked installs a fetched collection. Entries the fetch returns
// stale keep their cached newer version; duplicate keys collapse to the first.
func (s *Store[T]) replaceAllLocked(items []T) {
	next := make([]T, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		key := item.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		if i := s.indexLocked(key); i >= 0 && !fresher(item, s.items[i]) {
			item = s.items[i]
		}
		next = append(next, item)
	}
	s.items = next
	if s.selected != "" && !seen[s.selected] {
		s.selected = ""
	}
}

func (s *Store[T]) removeLocked(id string) bool {
	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	if s.selected == id {
		s.selected = ""
	}
	return true
}
