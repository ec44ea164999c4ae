// Package stream implements the append-only, strictly-increasing-id log
// backing Redis stream values. Entries are indexed for ordered range scans by
// github.com/armon/go-radix, keyed on a fixed-width big-endian encoding of the
// entry id so that byte-lexicographic tree order matches numeric id order.
package stream

import (
	"encoding/binary"
	"errors"
	"sync"

	radix "github.com/armon/go-radix"

	"github.com/wiredb/nanoredis/internal/store/streamid"
)

// ErrNotIncreasing is returned by Append when id is not strictly greater than
// the stream's current last id.
var ErrNotIncreasing = errors.New("stream: id must be greater than the stream's last id")

// Field is one member of an entry's field->value mapping. A slice of Fields,
// rather than a map, preserves XADD's input order the way Redis replies.
type Field struct {
	Key   []byte
	Value []byte
}

// Entry is one record appended to a Stream.
type Entry struct {
	ID     streamid.ID
	Fields []Field
}

// Stream is an ordered, append-only log of Entry values keyed by streamid.ID.
type Stream struct {
	mu     sync.RWMutex
	tree   *radix.Tree
	lastID streamid.ID
	length int
}

// New returns an empty Stream.
func New() *Stream {
	return &Stream{tree: radix.New()}
}

// Append inserts entry under id, which must be strictly greater than both
// streamid.Min and the stream's current last id.
func (s *Stream) Append(id streamid.ID, fields []Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !id.GreaterThan(s.lastID) {
		return ErrNotIncreasing
	}

	s.tree.Insert(encodeID(id), Entry{ID: id, Fields: fields})
	s.lastID = id
	s.length++
	return nil
}

// LastID returns the id of the most recently appended entry, or the zero
// value if the stream is empty.
func (s *Stream) LastID() streamid.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID
}

// Len returns the number of entries currently in the stream.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length
}

// Range returns entries with id in [from, to], ascending by id. If limit is
// positive, at most limit entries are returned.
func (s *Stream) Range(from, to streamid.ID, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromKey := encodeID(from)
	toKey := encodeID(to)

	var out []Entry
	s.tree.Walk(func(key string, v interface{}) bool {
		if key < fromKey {
			return false
		}
		if key > toKey {
			return true
		}
		out = append(out, v.(Entry))
		return limit > 0 && len(out) >= limit
	})
	return out
}

// After returns entries with id strictly greater than after, ascending by
// id. If limit is positive, at most limit entries are returned. This is the
// primitive XREAD builds on: "give me everything newer than the id I last saw".
func (s *Stream) After(after streamid.ID, limit int) []Entry {
	next, overflow := after.Next()
	if overflow {
		return nil
	}
	return s.Range(next, streamid.Max, limit)
}

// encodeID renders id as a 16-byte big-endian string: 8 bytes of MS followed
// by 8 bytes of Seq. Byte-wise comparison of these strings matches numeric
// comparison of the underlying (MS, Seq) pairs, which is what lets the radix
// tree's sorted Walk double as a range index.
func encodeID(id streamid.ID) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], id.MS)
	binary.BigEndian.PutUint64(buf[8:16], id.Seq)
	return string(buf[:])
}
