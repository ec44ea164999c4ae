// Package command implements the command registry and the individual
// command handlers: pure functions from (args, connection state) to a RESP
// reply, dispatched by name through a case-insensitive registry built once at
// startup.
package command

import (
	"strings"

	"github.com/wiredb/nanoredis/internal/conn"
)

// TransactionCommands names never queue while a transaction is in progress;
// they always run immediately against the connection's state machine.
var TransactionCommands = map[string]bool{
	"MULTI":   true,
	"EXEC":    true,
	"DISCARD": true,
}

// Registry is a case-insensitive, read-only-after-build command table.
type Registry struct {
	byName map[string]conn.HandlerFunc
}

// NewRegistry builds the registry with every command this server supports.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]conn.HandlerFunc, 32)}

	r.register("PING", doPING)
	r.register("ECHO", doECHO)

	r.register("SET", doSET)
	r.register("GET", doGET)
	r.register("DEL", doDEL)
	r.register("EXISTS", doEXISTS)
	r.register("EXPIRE", doEXPIRE)
	r.register("PERSIST", doPERSIST)
	r.register("TTL", doTTL)
	r.register("TYPE", doTYPE)
	r.register("INCR", doINCR)
	r.register("DECR", doDECR)

	r.register("LPUSH", doLPUSH)
	r.register("RPUSH", doRPUSH)
	r.register("LPOP", doLPOP)
	r.register("RPOP", doRPOP)
	r.register("LLEN", doLLEN)
	r.register("LRANGE", doLRANGE)
	r.register("BLPOP", doBLPOP)
	r.register("BRPOP", doBRPOP)

	r.register("MULTI", doMULTI)
	r.register("EXEC", doEXEC)
	r.register("DISCARD", doDISCARD)

	r.register("XADD", doXADD)
	r.register("XRANGE", doXRANGE)
	r.register("XLEN", doXLEN)
	r.register("XREAD", doXREAD)

	return r
}

func (r *Registry) register(name string, h conn.HandlerFunc) {
	r.byName[name] = h
}

// Lookup resolves name (any case) to its handler.
func (r *Registry) Lookup(name string) (conn.HandlerFunc, bool) {
	h, ok := r.byName[strings.ToUpper(name)]
	return h, ok
}
