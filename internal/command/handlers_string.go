package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/wiredb/nanoredis/internal/conn"
	"github.com/wiredb/nanoredis/internal/resp"
	"github.com/wiredb/nanoredis/internal/store"
)

func doPING(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) > 2 {
		return conn.Reply(errWrongArgs("PING"))
	}
	if len(args) == 2 {
		return conn.Reply(resp.BulkString(args[1]))
	}
	return conn.Reply(resp.Pong())
}

func doECHO(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("ECHO"))
	}
	return conn.Reply(resp.BulkString(args[1]))
}

// doSET implements SET key value [EX seconds | PX milliseconds] [NX | XX].
func doSET(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) < 3 {
		return conn.Reply(errWrongArgs("SET"))
	}
	key, value := string(args[1]), args[2]

	var ttl *time.Duration
	var nx, xx bool

	for i := 3; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "EX", "PX":
			i++
			if i >= len(args) {
				return conn.Reply(errSyntax())
			}
			n, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil || n <= 0 {
				return conn.Reply(errNotInteger())
			}
			var d time.Duration
			if opt == "EX" {
				d = time.Duration(n) * time.Second
			} else {
				d = time.Duration(n) * time.Millisecond
			}
			ttl = &d
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return conn.Reply(errSyntax())
		}
	}
	if nx && xx {
		return conn.Reply(errSyntax())
	}

	// The existence check and the write must happen under the same key lock,
	// or two concurrent "SET k v NX" calls can both observe absence and both
	// write. Mutate preserves a pre-existing deadline, which SET must not do,
	// so the TTL is applied separately once the conditional write succeeds.
	var skipped bool
	c.Store.Mutate(key, func(current store.Value, exists bool) (store.Value, bool) {
		if nx && exists {
			skipped = true
			return current, exists
		}
		if xx && !exists {
			skipped = true
			return current, exists
		}
		return store.StringValue(append([]byte(nil), value...)), true
	})
	if skipped {
		return conn.Reply(resp.NullBulkString())
	}

	if ttl != nil {
		c.Store.Expire(key, time.Now().Add(*ttl))
	} else {
		c.Store.Persist(key)
	}
	return conn.Reply(resp.OK())
}

func doGET(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("GET"))
	}
	v, ok := c.Store.Get(string(args[1]))
	if !ok {
		return conn.Reply(resp.NullBulkString())
	}
	sv, ok := v.(store.StringValue)
	if !ok {
		return conn.Reply(errWrongType())
	}
	return conn.Reply(resp.BulkString(sv))
}

func doDEL(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) < 2 {
		return conn.Reply(errWrongArgs("DEL"))
	}
	keys := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		keys = append(keys, string(a))
	}
	n := c.Store.DeleteMany(keys)
	return conn.Reply(resp.Integer(int64(n)))
}

func doEXISTS(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) < 2 {
		return conn.Reply(errWrongArgs("EXISTS"))
	}
	var n int64
	for _, a := range args[1:] {
		if _, ok := c.Store.Get(string(a)); ok {
			n++
		}
	}
	return conn.Reply(resp.Integer(n))
}

func doEXPIRE(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 3 {
		return conn.Reply(errWrongArgs("EXPIRE"))
	}
	secs, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return conn.Reply(errNotInteger())
	}
	deadline := time.Now().Add(time.Duration(secs) * time.Second)
	if c.Store.Expire(string(args[1]), deadline) {
		return conn.Reply(resp.Integer(1))
	}
	return conn.Reply(resp.Integer(0))
}

func doPERSIST(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("PERSIST"))
	}
	if c.Store.Persist(string(args[1])) {
		return conn.Reply(resp.Integer(1))
	}
	return conn.Reply(resp.Integer(0))
}

func doTTL(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("TTL"))
	}
	result := c.Store.TTL(string(args[1]))
	switch result.Kind {
	case store.TTLMissing:
		return conn.Reply(resp.Integer(-2))
	case store.TTLNoExpiry:
		return conn.Reply(resp.Integer(-1))
	default:
		return conn.Reply(resp.Integer(result.Seconds))
	}
}

func doTYPE(args [][]byte, c *conn.State) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs("TYPE"))
	}
	kind, _ := c.Store.TypeOf(string(args[1]))
	return conn.Reply(resp.SimpleString(kind.String()))
}

func doINCR(args [][]byte, c *conn.State) conn.Outcome {
	return incrBy(args, c, "INCR", 1)
}

func doDECR(args [][]byte, c *conn.State) conn.Outcome {
	return incrBy(args, c, "DECR", -1)
}

func incrBy(args [][]byte, c *conn.State, name string, delta int64) conn.Outcome {
	if len(args) != 2 {
		return conn.Reply(errWrongArgs(name))
	}
	key := string(args[1])

	var result int64
	var typeErr, parseErr, overflow bool
	c.Store.Mutate(key, func(current store.Value, exists bool) (store.Value, bool) {
		var n int64
		if exists {
			sv, ok := current.(store.StringValue)
			if !ok {
				typeErr = true
				return current, true
			}
			parsed, err := strconv.ParseInt(string(sv), 10, 64)
			if err != nil {
				parseErr = true
				return current, true
			}
			n = parsed
		}
		result = n + delta
		if (delta > 0 && result < n) || (delta < 0 && result > n) {
			overflow = true
			return current, exists
		}
		return store.StringValue(strconv.FormatInt(result, 10)), true
	})

	if typeErr {
		return conn.Reply(errWrongType())
	}
	if parseErr {
		return conn.Reply(errNotInteger())
	}
	if overflow {
		return conn.Reply(errOverflow())
	}
	return conn.Reply(resp.Integer(result))
}
