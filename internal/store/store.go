// Package store implements the typed, expiring keyspace shared by every
// connection: a mapping from key bytes to (type, payload, optional deadline)
// with a single atomic read-modify-write primitive, Mutate.
package store

import (
	"sync"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/wiredb/nanoredis/internal/expiry"
)

// noDeadline marks a persistent entry (no TTL).
const noDeadline int64 = -1

// TTLKind distinguishes the three replies TTL can give.
type TTLKind int

const (
	TTLMissing TTLKind = iota
	TTLNoExpiry
	TTLExpiresInSeconds
)

// TTLResult is the sum-type result of a TTL query.
type TTLResult struct {
	Kind    TTLKind
	Seconds int64 // only meaningful when Kind == TTLExpiresInSeconds
}

type entry struct {
	mu       sync.Mutex
	value    Value
	deadline int64 // unix ms, or noDeadline
}

func (e *entry) reapIfExpired(data *haxmap.Map[string, *entry], key string, now int64) bool {
	if e.deadline != noDeadline && e.deadline <= now {
		data.Del(key)
		e.value = nil
		e.deadline = noDeadline
		return true
	}
	return false
}

// Store is the shared, typed keyspace. The zero value is not usable;
// construct with New.
type Store struct {
	data     *haxmap.Map[string, *entry]
	batch    sync.RWMutex // held shared by ordinary commands, exclusive by EXEC batches
	createMu sync.Mutex
	exp      *expiry.Manager
}

// New constructs an empty Store. expiryTick configures the background expiry
// manager's wake-up interval (see internal/expiry).
func New(expiryTick time.Duration) *Store {
	s := &Store{data: haxmap.New[string, *entry]()}
	s.exp = expiry.New(expiryTick, s.expireIfStillDue)
	s.exp.Start()
	return s
}

// Close stops the store's background expiry worker.
func (s *Store) Close() { s.exp.Shutdown() }

// BeginBatch acquires the store's batch lock in exclusive mode for the
// duration of a transaction's EXEC, so that no command from any other
// connection can interleave with the batch (spec.md §4.5/§5's atomicity
// contract). The returned function releases the lock and must be deferred.
func (s *Store) BeginBatch() (end func()) {
	s.batch.Lock()
	return s.batch.Unlock
}

func nowMs() int64 { return time.Now().UnixMilli() }

// lookup returns key's entry without creating one.
func (s *Store) lookup(key string) (*entry, bool) {
	return s.data.Get(key)
}

// entryFor returns key's entry, creating an empty, deadline-less one if
// absent. Creation is serialized by createMu so two concurrent first-writers
// of the same key can't race into two different entry objects; every other
// operation only ever touches an already-published entry and needs no such
// coordination.
func (s *Store) entryFor(key string) *entry {
	if e, ok := s.data.Get(key); ok {
		return e
	}
	s.createMu.Lock()
	defer s.createMu.Unlock()
	if e, ok := s.data.Get(key); ok {
		return e
	}
	e := &entry{deadline: noDeadline}
	s.data.Set(key, e)
	return e
}

// Get returns key's value, lazily reaping it first if its deadline has passed.
func (s *Store) Get(key string) (Value, bool) {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reapIfExpired(s.data, key, nowMs()) {
		return nil, false
	}
	return e.value, true
}

// TypeOf reports key's Kind, or (KindNone, false) if absent or expired.
func (s *Store) TypeOf(key string) (Kind, bool) {
	v, ok := s.Get(key)
	if !ok {
		return KindNone, false
	}
	return v.Kind(), true
}

// Put replaces key's value unconditionally. If ttl is nil the key becomes (or
// stays) persistent; otherwise it expires ttl from now.
func (s *Store) Put(key string, v Value, ttl *time.Duration) {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e := s.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.value = v
	if ttl != nil {
		deadline := nowMs() + ttl.Milliseconds()
		e.deadline = deadline
		s.exp.Schedule(key, deadline)
	} else {
		e.deadline = noDeadline
		s.exp.Cancel(key)
	}
}

// Delete removes key if present (and not already expired), reporting whether
// it existed.
func (s *Store) Delete(key string) bool {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reapIfExpired(s.data, key, nowMs()) {
		return false
	}
	s.data.Del(key)
	e.value = nil
	e.deadline = noDeadline
	s.exp.Cancel(key)
	return true
}

// DeleteMany deletes each of keys, returning how many existed.
func (s *Store) DeleteMany(keys []string) int {
	var n int
	for _, k := range keys {
		if s.Delete(k) {
			n++
		}
	}
	return n
}

// Expire sets key's deadline to deadline, returning false if key is absent or
// already expired.
func (s *Store) Expire(key string, deadline time.Time) bool {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reapIfExpired(s.data, key, nowMs()) {
		return false
	}
	ms := deadline.UnixMilli()
	e.deadline = ms
	s.exp.Schedule(key, ms)
	return true
}

// Persist clears key's deadline, reporting whether it had one. Returns false
// if key is absent, already expired, or already persistent.
func (s *Store) Persist(key string) bool {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reapIfExpired(s.data, key, nowMs()) {
		return false
	}
	if e.deadline == noDeadline {
		return false
	}
	e.deadline = noDeadline
	s.exp.Cancel(key)
	return true
}

// TTL reports key's remaining time to live.
func (s *Store) TTL(key string) TTLResult {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return TTLResult{Kind: TTLMissing}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := nowMs()
	if e.reapIfExpired(s.data, key, now) {
		return TTLResult{Kind: TTLMissing}
	}
	if e.deadline == noDeadline {
		return TTLResult{Kind: TTLNoExpiry}
	}
	remainingMs := e.deadline - now
	secs := remainingMs / 1000
	if remainingMs%1000 != 0 {
		secs++ // round up, matching Redis's "don't report less TTL than is left"
	}
	return TTLResult{Kind: TTLExpiresInSeconds, Seconds: secs}
}

// MutateFunc is the single mutating primitive's callback: given the current
// value (nil, false if absent or expired), it returns the new value to store,
// or ok=false to delete the key.
type MutateFunc func(current Value, exists bool) (next Value, ok bool)

// Mutate atomically applies f to key's current state under exclusive access
// to that key's slot. If prior state existed and was not expired, its
// deadline is preserved; otherwise the new entry is persistent.
func (s *Store) Mutate(key string, f MutateFunc) (Value, bool) {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e := s.entryFor(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	// entryFor already ensures e is published in s.data, whether freshly
	// created or pre-existing (possibly expired); no need to touch the map
	// here, only e's own fields.
	now := nowMs()
	existed := e.value != nil && !(e.deadline != noDeadline && e.deadline <= now)
	var current Value
	if existed {
		current = e.value
	}

	next, ok := f(current, existed)
	if !ok {
		s.data.Del(key)
		e.value = nil
		e.deadline = noDeadline
		s.exp.Cancel(key)
		return nil, false
	}

	e.value = next
	if !existed {
		e.deadline = noDeadline
		s.exp.Cancel(key)
	}
	return next, true
}

// expireIfStillDue is the expiry manager's DeleteFunc. It re-verifies, under
// the key's own lock, that expectedDeadlineMs is still current before
// deleting -- closing the race where a concurrent Put rewrote the key between
// the manager popping this task and the delete actually happening.
func (s *Store) expireIfStillDue(key string, expectedDeadlineMs int64) {
	s.batch.RLock()
	defer s.batch.RUnlock()

	e, ok := s.lookup(key)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deadline == expectedDeadlineMs {
		s.data.Del(key)
		e.value = nil
		e.deadline = noDeadline
	}
}
