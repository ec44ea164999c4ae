// Package streamid implements stream entry identifiers: a (ms, seq) pair with
// lexicographic ordering, parsed from the handful of textual forms XADD/XRANGE/
// XREAD accept.
package streamid

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned for any id text that isn't one of the accepted forms.
var ErrMalformed = errors.New("streamid: malformed id")

// MaxUint64 names the sentinel used by Max and by overflow checks below.
const MaxUint64 = ^uint64(0)

// ID is a stream entry identifier. The zero value is the minimum id, 0-0,
// which XADD never accepts as an explicit entry id.
type ID struct {
	MS  uint64
	Seq uint64
}

// Min is the lowest possible id, matching the "-" sentinel.
var Min = ID{0, 0}

// Max is the highest possible id, matching the "+" sentinel.
var Max = ID{MaxUint64, MaxUint64}

func (id ID) String() string {
	return strconv.FormatUint(id.MS, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater than other.
func (id ID) Compare(other ID) int {
	switch {
	case id.MS < other.MS:
		return -1
	case id.MS > other.MS:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// GreaterThan reports whether id is strictly greater than other.
func (id ID) GreaterThan(other ID) bool { return id.Compare(other) > 0 }

// Next returns the smallest id strictly greater than id. overflow reports
// whether id was already Max, in which case Next wraps back to Min.
func (id ID) Next() (next ID, overflow bool) {
	if id.Seq < MaxUint64 {
		return ID{id.MS, id.Seq + 1}, false
	}
	if id.MS < MaxUint64 {
		return ID{id.MS + 1, 0}, false
	}
	return Min, true
}

// Parse parses the textual forms accepted on the wire:
//
//   - "ms-seq", an explicit fully qualified id.
//   - "ms", equivalent to "ms-0" when parsing a new entry's id, or "ms" with
//     seq defaulted by the caller's context (XRANGE treats a bare ms specially;
//     see ParseRangeBound).
//   - "-" / "+", the minimum / maximum id (valid as range bounds only).
//   - "$", "the stream's current last id" -- resolved by the caller, who knows
//     the stream, see ParseWithLast; Parse resolves it against 0-0.
//   - "*" / "ms-*", server-assigned; resolved by the caller against lastUsed,
//     see ParseWithLast.
func Parse(s string) (ID, error) {
	return ParseWithLast(s, ID{})
}

// ParseWithLast is Parse, but resolves "*" and "ms-*" (and the "$" sentinel,
// understood here as "the last id used so far") against lastUsed.
func ParseWithLast(s string, lastUsed ID) (ID, error) {
	switch s {
	case "-":
		return Min, nil
	case "+":
		return Max, nil
	case "$":
		return lastUsed, nil
	case "*":
		return autoGenerate(lastUsed), nil
	}

	ms, rest, hasSep := strings.Cut(s, "-")
	msVal, err := parseUint(ms)
	if err != nil {
		return ID{}, err
	}
	if !hasSep {
		return ID{MS: msVal, Seq: 0}, nil
	}
	if rest == "*" {
		seq := uint64(0)
		if msVal == lastUsed.MS {
			seq = lastUsed.Seq + 1
		}
		return ID{MS: msVal, Seq: seq}, nil
	}
	seqVal, err := parseUint(rest)
	if err != nil {
		return ID{}, err
	}
	return ID{MS: msVal, Seq: seqVal}, nil
}

// ParseRangeBound parses an id given as an XRANGE/XREVRANGE bound. Unlike
// Parse, a bare "ms" (no explicit sequence) is completed according to which
// end of the range it bounds: seq 0 as a start bound, seq MaxUint64 as an end
// bound, so "XRANGE k 5 5" covers the whole millisecond 5 rather than just 5-0.
func ParseRangeBound(s string, isEnd bool) (ID, error) {
	switch s {
	case "-":
		return Min, nil
	case "+":
		return Max, nil
	}

	ms, rest, hasSep := strings.Cut(s, "-")
	msVal, err := parseUint(ms)
	if err != nil {
		return ID{}, err
	}
	if !hasSep {
		if isEnd {
			return ID{MS: msVal, Seq: MaxUint64}, nil
		}
		return ID{MS: msVal, Seq: 0}, nil
	}
	seqVal, err := parseUint(rest)
	if err != nil {
		return ID{}, err
	}
	return ID{MS: msVal, Seq: seqVal}, nil
}

// autoGenerate implements the "*" id: the current wall-clock millisecond,
// with the sequence bumped if another entry already claimed that millisecond.
func autoGenerate(lastUsed ID) ID {
	ms := uint64(time.Now().UnixMilli())
	var seq uint64
	if ms <= lastUsed.MS {
		ms = lastUsed.MS
		seq = lastUsed.Seq + 1
	}
	return ID{MS: ms, Seq: seq}
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, ErrMalformed
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return n, nil
}
