package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/wiredb/nanoredis/internal/conn"
	"github.com/wiredb/nanoredis/internal/resp"
	"github.com/wiredb/nanoredis/internal/store"
	"github.com/wiredb/nanoredis/internal/store/streamid"
	"github.com/wiredb/nanoredis/internal/stream"
)

func doXADD(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) < 5 || len(args)%2 != 1 {
		return conn.Reply(errWrongArgs("XADD"))
	}
	key := string(args[1])
	idText := string(args[2])

	fieldArgs := args[3:]
	fields := make([]stream.Field, 0, len(fieldArgs)/2)
	for i := 0; i < len(fieldArgs); i += 2 {
		fields = append(fields, stream.Field{
			Key:   append([]byte(nil), fieldArgs[i]...),
			Value: append([]byte(nil), fieldArgs[i+1]...),
		})
	}

	var typeErr, parseErr, notIncreasing, rejectZero bool
	var assignedID streamid.ID

	c.Store.Mutate(key, func(current store.Value, exists bool) (store.Value, bool) {
		var sv *store.StreamValue
		if exists {
			v, ok := current.(*store.StreamValue)
			if !ok {
				typeErr = true
				return current, true
			}
			sv = v
		} else {
			sv = store.NewStreamValue()
		}

		id, err := streamid.ParseWithLast(idText, sv.S.LastID())
		if err != nil {
			parseErr = true
			return current, exists
		}
		if id == streamid.Min {
			rejectZero = true
			return current, exists
		}
		if err := sv.S.Append(id, fields); err != nil {
			notIncreasing = true
			return current, exists
		}
		assignedID = id
		return sv, true
	})

	switch {
	case typeErr:
		return conn.Reply(errWrongType())
	case parseErr:
		return conn.Reply(errNotInteger())
	case rejectZero:
		return conn.Reply(resp.Error("ERR The ID specified in XADD must be greater than 0-0"))
	case notIncreasing:
		return conn.Reply(resp.Error("ERR The ID specified in XADD is equal or smaller than the target stream top item"))
	}
	return conn.Reply(resp.BulkString([]byte(assignedID.String())))
}

func doXLEN(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("XLEN"))
	}
	v, ok := c.Store.Get(string(args[1]))
	if !ok {
		return conn.Reply(resp.Integer(0))
	}
	sv, ok := v.(*store.StreamValue)
	if !ok {
		return conn.Reply(errWrongType())
	}
	return conn.Reply(resp.Integer(int64(sv.S.Len())))
}

func doXRANGE(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 4 {
		return conn.Reply(errWrongArgs("XRANGE"))
	}
	v, ok := c.Store.Get(string(args[1]))
	if !ok {
		return conn.Reply(resp.EmptyArray())
	}
	sv, ok := v.(*store.StreamValue)
	if !ok {
		return conn.Reply(errWrongType())
	}

	from, err := streamid.ParseRangeBound(string(args[2]), false)
	if err != nil {
		return conn.Reply(resp.Error("ERR Invalid stream ID specified as stream command argument"))
	}
	to, err := streamid.ParseRangeBound(string(args[3]), true)
	if err != nil {
		return conn.Reply(resp.Error("ERR Invalid stream ID specified as stream command argument"))
	}

	entries := sv.S.Range(from, to, 0)
	return conn.Reply(encodeStreamEntries(entries))
}

// doXREAD implements XREAD [BLOCK ms] STREAMS key [key ...] id [id ...].
// Non-blocking reads resolve each id immediately; a BLOCK clause polls the
// same way BLPOP/BRPOP do, snapshotting the "after" id at registration time
// so entries appended during the wait are still picked up on the next poll.
func doXREAD(args [][]byte, c *conn.State) conn.Outcome {
	i := 1
	var blockMs int64 = -1
	for i < len(args) {
		switch strings.ToUpper(string(args[i])) {
		case "BLOCK":
			if i+1 >= len(args) {
				return conn.Reply(errSyntax())
			}
			ms, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil || ms < 0 {
				return conn.Reply(errNotInteger())
			}
			blockMs = ms
			i += 2
		case "STREAMS":
			i++
			goto streamsParsed
		default:
			return conn.Reply(errSyntax())
		}
	}
streamsParsed:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return conn.Reply(errSyntax())
	}
	n := len(rest) / 2
	keys := make([]string, n)
	for j := 0; j < n; j++ {
		keys[j] = string(rest[j])
	}

	after := make([]streamid.ID, n)
	for j := 0; j < n; j++ {
		idText := string(rest[n+j])
		var last streamid.ID
		if v, ok := c.Store.Get(keys[j]); ok {
			if sv, ok := v.(*store.StreamValue); ok {
				last = sv.S.LastID()
			}
		}
		id, err := streamid.ParseWithLast(idText, last)
		if err != nil {
			return conn.Reply(errNotInteger())
		}
		after[j] = id
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultBlockPollInterval
	}

	var deadline time.Time
	hasDeadline := blockMs > 0
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(blockMs) * time.Millisecond)
	}

	for {
		reply, any := collectXReadResults(c, keys, after)
		if any {
			return conn.Reply(reply)
		}
		if blockMs < 0 {
			return conn.Reply(resp.NullArray())
		}
		if hasDeadline && !time.Now().Before(deadline) {
			return conn.Reply(resp.NullArray())
		}
		if c.Closed.Load() {
			return conn.Deferred()
		}
		time.Sleep(interval)
	}
}

func collectXReadResults(c *conn.State, keys []string, after []streamid.ID) ([]byte, bool) {
	type streamResult struct {
		key     string
		entries []stream.Entry
	}
	var results []streamResult
	for i, key := range keys {
		v, ok := c.Store.Get(key)
		if !ok {
			continue
		}
		sv, ok := v.(*store.StreamValue)
		if !ok {
			continue
		}
		entries := sv.S.After(after[i], 0)
		if len(entries) > 0 {
			results = append(results, streamResult{key: key, entries: entries})
		}
	}
	if len(results) == 0 {
		return nil, false
	}

	var e resp.Encoder
	e.ArrayHeader(len(results))
	for _, r := range results {
		e.ArrayHeader(2)
		e.BulkString([]byte(r.key))
		e.Buf = append(e.Buf, encodeStreamEntries(r.entries)...)
	}
	return e.Bytes(), true
}

func encodeStreamEntries(entries []stream.Entry) []byte {
	var e resp.Encoder
	e.ArrayHeader(len(entries))
	for _, entry := range entries {
		e.ArrayHeader(2)
		e.BulkString([]byte(entry.ID.String()))
		e.ArrayHeader(len(entry.Fields) * 2)
		for _, f := range entry.Fields {
			e.BulkString(f.Key)
			e.BulkString(f.Value)
		}
	}
	return e.Bytes()
}
