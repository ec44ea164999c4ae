// Package conn defines the per-connection state the command registry
// dispatches against: the transaction state machine, the outbound writer,
// and the handle to the shared store. It never imports the command package,
// so handlers (which do import conn) can't create an import cycle.
package conn

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/wiredb/nanoredis/internal/store"
)

// OutcomeKind is the HandlerOutcome discriminant from the core spec.
type OutcomeKind int

const (
	// OutcomeReply means the caller should write Reply and nothing more.
	OutcomeReply OutcomeKind = iota
	// OutcomeDeferred means the handler already wrote its own reply (or will
	// never reply, e.g. a cancelled blocking wait); the caller writes nothing.
	OutcomeDeferred
	// OutcomeClose means the caller should write Reply (if any) and then
	// close the connection -- used for protocol-fatal conditions.
	OutcomeClose
)

// Outcome is a handler's result.
type Outcome struct {
	Kind  OutcomeKind
	Reply []byte
}

// Reply builds an OutcomeReply.
func Reply(b []byte) Outcome { return Outcome{Kind: OutcomeReply, Reply: b} }

// Deferred builds an OutcomeDeferred; the handler has already written (or
// deliberately withheld) its own reply.
func Deferred() Outcome { return Outcome{Kind: OutcomeDeferred} }

// Close builds an OutcomeClose, optionally with a final reply to flush first.
func Close(b []byte) Outcome { return Outcome{Kind: OutcomeClose, Reply: b} }

// HandlerFunc is a command handler: a pure-ish function from (args, conn
// state) to an Outcome. It may read and mutate State.Store, and for deferred
// outcomes may write directly to State.Writer.
type HandlerFunc func(args [][]byte, c *State) Outcome

// QueuedCommand is one command recorded while a transaction is queuing.
type QueuedCommand struct {
	Name    string
	Handler HandlerFunc
	Args    [][]byte
}

// TxnState is the transaction context's finite state machine (spec.md §4.5).
type TxnState int

const (
	Idle TxnState = iota
	Queuing
	QueuingWithError
)

// State is the per-connection state handlers execute against. It is owned
// exclusively by the connection's own goroutine except for the Closed flag,
// which the connection's separate read goroutine sets once the socket closes.
type State struct {
	Store        *store.Store
	Writer       io.Writer
	Log          zerolog.Logger
	PollInterval time.Duration

	Closed *atomic.Bool

	txnState TxnState
	queue    []QueuedCommand
}

// NewState constructs connection state bound to s, writing replies to w.
func NewState(s *store.Store, w io.Writer, log zerolog.Logger, pollInterval time.Duration) *State {
	return &State{
		Store:        s,
		Writer:       w,
		Log:          log,
		PollInterval: pollInterval,
		Closed:       &atomic.Bool{},
	}
}

// TxnState reports the connection's current transaction state.
func (c *State) TxnState() TxnState { return c.txnState }

// QueueLen reports how many commands are currently queued.
func (c *State) QueueLen() int { return len(c.queue) }

// BeginMulti transitions Idle -> Queuing. It is an error to call this from
// any other state; the MULTI handler itself is responsible for replying
// appropriately and must check TxnState first.
func (c *State) BeginMulti() {
	c.txnState = Queuing
}

// Enqueue records a command while queuing. handler and args should already
// be resolved/copied by the caller (spec.md's "defensive copies" design note).
func (c *State) Enqueue(name string, handler HandlerFunc, args [][]byte) {
	c.queue = append(c.queue, QueuedCommand{Name: name, Handler: handler, Args: args})
}

// MarkPoisoned transitions Queuing -> QueuingWithError, e.g. after an unknown
// command was seen while queuing.
func (c *State) MarkPoisoned() {
	c.txnState = QueuingWithError
}

// Discard clears the queue and returns to Idle. The underlying slice backing
// array is retained (sliced to length 0) so repeated transactions on the same
// connection don't keep reallocating it.
func (c *State) Discard() {
	c.txnState = Idle
	c.queue = c.queue[:0]
}

// Exec runs every queued command in insertion order under the store's batch
// lock -- so the whole batch is linearizable with respect to every other
// connection -- and returns one Outcome per queued command. The queue is
// cleared (buffer retained) and the state returns to Idle.
func (c *State) Exec() []Outcome {
	queue := c.queue
	c.queue = c.queue[:0]
	c.txnState = Idle

	end := c.Store.BeginBatch()
	defer end()

	results := make([]Outcome, len(queue))
	for i, qc := range queue {
		results[i] = qc.Handler(qc.Args, c)
	}
	return results
}
