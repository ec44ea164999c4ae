package store

import (
	"container/list"

	"github.com/wiredb/nanoredis/internal/stream"
)

// Kind tags which variant a Value holds. TYPE reports it directly.
type Kind int

const (
	KindNone Kind = iota
	KindString
	KindList
	KindStream
	KindSet
	KindHash
	KindSortedSet
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindStream:
		return "stream"
	case KindSet:
		return "set"
	case KindHash:
		return "hash"
	case KindSortedSet:
		return "zset"
	default:
		return "none"
	}
}

// Value is the sealed variant over the types a key can hold. Only concrete
// types defined in this package implement it, so a type switch on Value is
// exhaustive by construction -- there is no side-channel type tag to forget
// to check.
type Value interface {
	Kind() Kind
	sealed()
}

// StringValue is an opaque, binary-safe byte string.
type StringValue []byte

func (StringValue) Kind() Kind { return KindString }
func (StringValue) sealed()    {}

// ListValue is an ordered sequence of byte strings supporting O(1) amortized
// push/pop at either end. container/list is the stdlib's doubly linked list;
// no third-party deque/list implementation appeared anywhere in the corpus,
// so there is nothing to prefer it over here.
type ListValue struct {
	l *list.List
}

// NewListValue returns an empty ListValue.
func NewListValue() *ListValue {
	return &ListValue{l: list.New()}
}

func (*ListValue) Kind() Kind { return KindList }
func (*ListValue) sealed()    {}

// Len returns the number of elements.
func (v *ListValue) Len() int { return v.l.Len() }

// PushFront prepends elem.
func (v *ListValue) PushFront(elem []byte) { v.l.PushFront(elem) }

// PushBack appends elem.
func (v *ListValue) PushBack(elem []byte) { v.l.PushBack(elem) }

// PopFront removes and returns the first element.
func (v *ListValue) PopFront() ([]byte, bool) {
	front := v.l.Front()
	if front == nil {
		return nil, false
	}
	v.l.Remove(front)
	return front.Value.([]byte), true
}

// PopBack removes and returns the last element.
func (v *ListValue) PopBack() ([]byte, bool) {
	back := v.l.Back()
	if back == nil {
		return nil, false
	}
	v.l.Remove(back)
	return back.Value.([]byte), true
}

// Slice returns a snapshot of elements from index start to stop inclusive,
// both already clamped and normalized by the caller (see doLRANGE in
// internal/command/handlers_list.go for the clamping rules). Returns a copy; callers may not alias the list's
// internal nodes (see spec.md's "defensive copies" design note).
func (v *ListValue) Slice(start, stop int) []([]byte) {
	if start > stop || v.l.Len() == 0 {
		return nil
	}
	out := make([][]byte, 0, stop-start+1)
	i := 0
	for e := v.l.Front(); e != nil; e = e.Next() {
		if i > stop {
			break
		}
		if i >= start {
			out = append(out, e.Value.([]byte))
		}
		i++
	}
	return out
}

// StreamValue wraps a stream.Stream, the append-only log of entries keyed by
// streamid.ID.
type StreamValue struct {
	S *stream.Stream
}

// NewStreamValue returns an empty StreamValue.
func NewStreamValue() *StreamValue {
	return &StreamValue{S: stream.New()}
}

func (*StreamValue) Kind() Kind { return KindStream }
func (*StreamValue) sealed()    {}
