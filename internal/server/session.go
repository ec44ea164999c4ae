package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wiredb/nanoredis/internal/command"
	"github.com/wiredb/nanoredis/internal/conn"
	"github.com/wiredb/nanoredis/internal/resp"
	"github.com/wiredb/nanoredis/internal/store"
)

const readBufSize = 4096

var queuedReply = resp.SimpleString("QUEUED")

// session is one client connection's read loop: accumulate bytes, repeatedly
// decode complete frames, resolve each against the registry (queuing it
// instead of running it if a transaction is in progress), and write back
// whatever outcome the handler produced.
type session struct {
	nc       net.Conn
	registry *command.Registry
	state    *conn.State
	log      zerolog.Logger
}

func newSession(nc net.Conn, s *store.Store, registry *command.Registry, log zerolog.Logger, pollInterval time.Duration) *session {
	sessLog := log.With().Str("conn", nc.RemoteAddr().String()).Logger()
	return &session{
		nc:       nc,
		registry: registry,
		state:    conn.NewState(s, nc, sessLog, pollInterval),
		log:      sessLog,
	}
}

// frame is one decoded request, or a protocol-fatal decode error, handed from
// readLoop to run over a channel.
type frame struct {
	args [][]byte
	err  error
}

// run drives the connection until it closes or hits a protocol error. A
// single recover per connection keeps an internal invariant violation in one
// handler from bringing down the whole server (app/main.go's own TODO: "use
// recover() to catch all panics that happen inside a connection").
//
// Reading is done on a dedicated goroutine so that a blocking handler
// (BLPOP/BRPOP/XREAD BLOCK), which runs on this goroutine and may poll for
// tens of seconds, doesn't prevent the connection's closure from being
// noticed: readLoop flips state.Closed the instant it observes EOF/an error,
// independently of whatever this goroutine is doing at the time, which is
// what lets the poll loops in internal/command actually cancel on disconnect
// instead of spinning until their own timeout.
func (sess *session) run() {
	defer sess.nc.Close()
	defer sess.state.Closed.Store(true)
	defer func() {
		if r := recover(); r != nil {
			sess.log.Error().Interface("panic", r).Msg("recovered from panic, closing connection")
		}
	}()

	frames := make(chan frame, 16)
	go sess.readLoop(frames)

	for f := range frames {
		if f.err != nil {
			sess.nc.Write(resp.Error("ERR Protocol error"))
			return
		}
		if len(f.args) == 0 {
			continue
		}
		sess.dispatch(f.args)
	}
}

// readLoop owns the socket's read side for the life of the connection. It
// decodes complete frames out of the accumulated buffer and hands them to
// run over frames, closing the channel when the connection can no longer
// yield more input. It marks state.Closed as soon as that happens, not when
// run eventually notices -- run may be stuck inside a blocking handler.
func (sess *session) readLoop(frames chan<- frame) {
	defer close(frames)

	buf := make([]byte, 0, readBufSize)
	chunk := make([]byte, readBufSize)

	for {
		n, err := sess.nc.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				consumed, args, derr := resp.Decode(buf)
				if derr != nil {
					sess.state.Closed.Store(true)
					frames <- frame{err: derr}
					return
				}
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				frames <- frame{args: args}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				sess.log.Debug().Err(err).Msg("read error")
			}
			sess.state.Closed.Store(true)
			return
		}
	}
}

func (sess *session) dispatch(args [][]byte) {
	name := string(args[0])
	handler, ok := sess.registry.Lookup(name)

	if !ok {
		if sess.state.TxnState() != conn.Idle {
			sess.state.MarkPoisoned()
		}
		sess.nc.Write(command.UnknownCommandReply(name))
		return
	}

	if sess.state.TxnState() != conn.Idle && !command.TransactionCommands[strings.ToUpper(name)] {
		argsCopy := make([][]byte, len(args))
		copy(argsCopy, args)
		sess.state.Enqueue(name, handler, argsCopy)
		sess.nc.Write(queuedReply)
		return
	}

	outcome := handler(args, sess.state)
	switch outcome.Kind {
	case conn.OutcomeDeferred:
		return
	case conn.OutcomeClose:
		sess.nc.Write(outcome.Reply)
		sess.nc.Close()
	default:
		sess.nc.Write(outcome.Reply)
	}
}

