// Package server implements the TCP accept loop and per-connection session
// that together realize the connection handler (spec §4.6): a
// goroutine-per-connection model built on the store, command registry, and
// per-connection transaction state defined in the internal/store,
// internal/command, and internal/conn packages.
package server

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wiredb/nanoredis/internal/command"
	"github.com/wiredb/nanoredis/internal/store"
)

// Config configures a Server.
type Config struct {
	Addr         string
	PollInterval time.Duration
	ExpiryTick   time.Duration
}

// Server owns the shared store and registry and accepts connections until
// shut down.
type Server struct {
	cfg      Config
	log      zerolog.Logger
	listener net.Listener
	store    *store.Store
	registry *command.Registry
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// New constructs a Server bound to cfg.Addr. The returned Server has not yet
// started listening; call Start.
func New(cfg Config, log zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		log:      log,
		store:    store.New(cfg.ExpiryTick),
		registry: command.NewRegistry(),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start binds the listen address and begins accepting connections in the
// background. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info().Str("addr", ln.Addr().String()).Msg("listening")

	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			// Accept only errors this way once the listener has been closed
			// during shutdown; nothing further to log.
			return
		}
		s.trackConn(nc)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrackConn(nc)
			newSession(nc, s.store, s.registry, s.log, s.cfg.PollInterval).run()
		}()
	}
}

func (s *Server) trackConn(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[nc] = struct{}{}
}

func (s *Server) untrackConn(nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, nc)
}

// Shutdown stops accepting new connections, closes every in-flight
// connection (unblocking any connection currently parked in a blocking
// command's poll loop, per its session's own cancel-on-close handling),
// waits for all of their goroutines to exit, and stops the store's
// background expiry worker.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for nc := range s.conns {
		nc.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.store.Close()
}
