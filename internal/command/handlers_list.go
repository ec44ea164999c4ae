package command

import (
	"strconv"
	"time"

	"github.com/wiredb/nanoredis/internal/conn"
	"github.com/wiredb/nanoredis/internal/resp"
	"github.com/wiredb/nanoredis/internal/store"
)

// defaultBlockPollInterval is used when a connection's configured
// PollInterval is zero (e.g. in tests that construct conn.State directly).
const defaultBlockPollInterval = 50 * time.Millisecond

func doLPUSH(args [][]byte, c *conn.State) conn.Outcome {
	return pushMany(args, c, "LPUSH", func(lv *store.ListValue, elem []byte) { lv.PushFront(elem) })
}

func doRPUSH(args [][]byte, c *conn.State) conn.Outcome {
	return pushMany(args, c, "RPUSH", func(lv *store.ListValue, elem []byte) { lv.PushBack(elem) })
}

func pushMany(args [][]byte, c *conn.State, name string, push func(*store.ListValue, []byte)) conn.Outcome {
	if len(args) < 3 {
		return conn.Reply(errWrongArgs(name))
	}
	key := string(args[1])
	elems := args[2:]

	var typeErr bool
	var length int
	c.Store.Mutate(key, func(current store.Value, exists bool) (store.Value, bool) {
		var lv *store.ListValue
		if exists {
			v, ok := current.(*store.ListValue)
			if !ok {
				typeErr = true
				return current, true
			}
			lv = v
		} else {
			lv = store.NewListValue()
		}
		for _, e := range elems {
			push(lv, append([]byte(nil), e...))
		}
		length = lv.Len()
		return lv, true
	})

	if typeErr {
		return conn.Reply(errWrongType())
	}
	return conn.Reply(resp.Integer(int64(length)))
}

func doLPOP(args [][]byte, c *conn.State) conn.Outcome {
	return popOne(args, c, "LPOP", func(lv *store.ListValue) ([]byte, bool) { return lv.PopFront() })
}

func doRPOP(args [][]byte, c *conn.State) conn.Outcome {
	return popOne(args, c, "RPOP", func(lv *store.ListValue) ([]byte, bool) { return lv.PopBack() })
}

// popOne implements LPOP/RPOP key [count]. With no count, the reply is a
// bulk string (or nil if the key is absent/empty); with count, the reply is
// an array of up to count elements (or nil if the key is absent).
func popOne(args [][]byte, c *conn.State, name string, pop func(*store.ListValue) ([]byte, bool)) conn.Outcome {
	if len(args) != 2 && len(args) != 3 {
		return conn.Reply(errWrongArgs(name))
	}
	key := string(args[1])

	withCount := len(args) == 3
	count := 1
	if withCount {
		n, err := strconv.Atoi(string(args[2]))
		if err != nil || n < 0 {
			return conn.Reply(errNotInteger())
		}
		count = n
	}

	var typeErr, keyMissing bool
	popped := make([][]byte, 0, count)
	c.Store.Mutate(key, func(current store.Value, exists bool) (store.Value, bool) {
		if !exists {
			keyMissing = true
			return current, false
		}
		lv, ok := current.(*store.ListValue)
		if !ok {
			typeErr = true
			return current, true
		}
		for i := 0; i < count; i++ {
			elem, ok := pop(lv)
			if !ok {
				break
			}
			popped = append(popped, elem)
		}
		return lv, lv.Len() > 0
	})

	if typeErr {
		return conn.Reply(errWrongType())
	}
	if withCount {
		if keyMissing {
			return conn.Reply(resp.NullArray())
		}
		return conn.Reply(resp.BulkStringArray(popped...))
	}
	if keyMissing || len(popped) == 0 {
		return conn.Reply(resp.NullBulkString())
	}
	return conn.Reply(resp.BulkString(popped[0]))
}

func doLLEN(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("LLEN"))
	}
	v, ok := c.Store.Get(string(args[1]))
	if !ok {
		return conn.Reply(resp.Integer(0))
	}
	lv, ok := v.(*store.ListValue)
	if !ok {
		return conn.Reply(errWrongType())
	}
	return conn.Reply(resp.Integer(int64(lv.Len())))
}

func doLRANGE(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 4 {
		return conn.Reply(errWrongArgs("LRANGE"))
	}
	start, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return conn.Reply(errNotInteger())
	}
	stop, err := strconv.Atoi(string(args[3]))
	if err != nil {
		return conn.Reply(errNotInteger())
	}

	v, ok := c.Store.Get(string(args[1]))
	if !ok {
		return conn.Reply(resp.EmptyArray())
	}
	lv, ok := v.(*store.ListValue)
	if !ok {
		return conn.Reply(errWrongType())
	}

	n := lv.Len()
	start = clampIndex(start, n)
	stop = clampIndex(stop, n)
	if stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}

	elems := lv.Slice(start, stop)
	return conn.Reply(resp.BulkStringArray(elems...))
}

// clampIndex turns a (possibly negative, Redis-style) index into a
// non-negative offset from the start; negative values count from the end.
func clampIndex(i, n int) int {
	if i < 0 {
		i = n + i
		if i < 0 {
			i = 0
		}
	}
	return i
}

func doBLPOP(args [][]byte, c *conn.State) conn.Outcome {
	return blockingPop(args, c, "BLPOP", func(lv *store.ListValue) ([]byte, bool) { return lv.PopFront() })
}

func doBRPOP(args [][]byte, c *conn.State) conn.Outcome {
	return blockingPop(args, c, "BRPOP", func(lv *store.ListValue) ([]byte, bool) { return lv.PopBack() })
}

// blockingPop implements BLPOP/BRPOP key [key ...] timeout by polling each
// candidate key at c.PollInterval until one yields an element or the timeout
// elapses. Keys holding the wrong type are silently skipped during a probe so
// the next key can be tried, matching the source's "type errors are data, not
// control flow" design note. A timeout of exactly 0 is a single non-blocking
// probe (the documented divergence from upstream Redis's "block forever"),
// not an infinite wait. Each connection runs this loop on its own goroutine
// (the spec permits a multi-threaded server provided per-key atomicity is
// preserved), so sleeping between probes needs no separate async wakeup
// machinery.
func blockingPop(args [][]byte, c *conn.State, name string, pop func(*store.ListValue) ([]byte, bool)) conn.Outcome {
	if len(args) < 3 {
		return conn.Reply(errWrongArgs(name))
	}
	keys := make([]string, len(args)-2)
	for i, a := range args[1 : len(args)-1] {
		keys[i] = string(a)
	}
	timeoutSecs, err := strconv.ParseFloat(string(args[len(args)-1]), 64)
	if err != nil || timeoutSecs < 0 || timeoutSecs > 86400 {
		return conn.Reply(errTimeout())
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultBlockPollInterval
	}

	checkOnce := timeoutSecs == 0
	deadline := time.Now().Add(time.Duration(timeoutSecs * float64(time.Second)))

	for {
		for _, key := range keys {
			var popped []byte
			var found bool
			c.Store.Mutate(key, func(current store.Value, exists bool) (store.Value, bool) {
				if !exists {
					return current, false
				}
				lv, ok := current.(*store.ListValue)
				if !ok {
					// Wrong type: leave untouched, keep probing other keys.
					return current, true
				}
				popped, found = pop(lv)
				if !found || lv.Len() == 0 {
					return lv, lv.Len() > 0
				}
				return lv, true
			})
			if found {
				return conn.Reply(resp.BulkStringArray([]byte(key), popped))
			}
		}

		if checkOnce || !time.Now().Before(deadline) {
			return conn.Reply(resp.NullArray())
		}
		if c.Closed.Load() {
			return conn.Deferred()
		}
		time.Sleep(interval)
	}
}
