// Package gameserver runs the single event loop that owns every connected
// client, the latency simulator and the match manager. Transports hand it
// connections and raw messages; everything that touches session state runs
// on the loop goroutine, one closure at a time.
package gameserver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/latency"
	"github.com/cory-johannsen/duel/internal/session"
)

// ErrStopped is returned by queries made after Stop.
var ErrStopped = errors.New("game server stopped")

// Server is the game event loop.
type Server struct {
	manager            *session.Manager
	sim                *latency.Simulator[*session.Client]
	allowClientLatency bool
	logger             *zap.Logger

	loop chan func()
	quit chan struct{}

	// clients is owned by the loop goroutine.
	clients map[string]*session.Client

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithScheduler replaces the wall-clock scheduler used for held input.
// Callbacks from sched must already run on the loop goroutine.
func WithScheduler(sched latency.Scheduler) Option {
	return func(s *Server) {
		s.sim = latency.New(s.dispatch, sched, s.logger.Named("latency"))
	}
}

// New creates a stopped Server.
//
// Precondition: manager and logger must be non-nil; sessionCfg.EventBuffer > 0.
// Postcondition: Returns a Server ready to Start() with the configured
// initial latency applied.
func New(sessionCfg config.SessionConfig, latencyCfg config.LatencyConfig, manager *session.Manager, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		manager:            manager,
		allowClientLatency: latencyCfg.AllowClientControl,
		logger:             logger,
		loop:               make(chan func(), sessionCfg.EventBuffer),
		quit:               make(chan struct{}),
		clients:            make(map[string]*session.Client),
	}
	s.sim = latency.New(s.dispatch, latency.NewTimerScheduler(func(fn func()) { s.post(fn) }), logger.Named("latency"))
	for _, opt := range opts {
		opt(s)
	}
	s.sim.Configure(latencyCfg.Initial())
	return s
}

// Start launches the event loop.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("game server already started")
	}
	s.started = true
	delay := s.sim.Delay()
	s.wg.Add(1)
	go s.run()
	s.logger.Info("game server started",
		zap.Duration("latency", delay),
		zap.Bool("client_latency_control", s.allowClientLatency),
	)
	return nil
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case fn := <-s.loop:
			fn()
		case <-s.quit:
			return
		}
	}
}

// post queues fn for the loop. It reports false once the server has stopped.
func (s *Server) post(fn func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.loop <- fn:
		return true
	case <-s.quit:
		return false
	}
}

// call runs fn on the loop and waits for it to finish.
func (s *Server) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.post(func() {
		fn()
		close(done)
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrStopped
	}
}

// Stop discards held input, ends every match and halts the loop. It is
// idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()

		if started {
			_ = s.call(context.Background(), s.shutdown)
		} else {
			s.shutdown()
		}
		close(s.quit)
		s.wg.Wait()
		s.logger.Info("game server stopped")
	})
}

func (s *Server) shutdown() {
	s.sim.Stop()
	n := s.manager.Shutdown()
	s.logger.Info("ended matches on shutdown",
		zap.Int("matches", n),
		zap.Int("clients", len(s.clients)),
	)
	s.clients = make(map[string]*session.Client)
}

// Connect registers a new client and puts it through matchmaking.
//
// Precondition: sender must not block.
// Postcondition: Returns the client immediately; matchmaking runs on the
// loop before any message later passed to Receive for it.
func (s *Server) Connect(sender session.Sender, transport string) *session.Client {
	c := session.NewClient(uuid.NewString(), transport, sender)
	if !s.post(func() {
		s.clients[c.UserID] = c
		s.logger.Info("client connected",
			zap.String("user_id", c.UserID),
			zap.String("transport", transport),
			zap.Int("clients", len(s.clients)),
		)
		s.manager.FindMatch(c)
	}) {
		s.logger.Warn("connect after stop", zap.String("user_id", c.UserID))
	}
	return c
}

// Receive admits one raw message from c.
func (s *Server) Receive(c *session.Client, raw string) {
	s.post(func() {
		if _, ok := s.clients[c.UserID]; !ok {
			return
		}
		s.sim.Admit(c, raw)
	})
}

// Disconnect removes c and ends its match.
func (s *Server) Disconnect(c *session.Client) {
	s.post(func() {
		if _, ok := s.clients[c.UserID]; !ok {
			return
		}
		delete(s.clients, c.UserID)
		connected := time.Since(c.ConnectedAt)
		s.manager.Leave(c)
		s.logger.Info("client disconnected",
			zap.String("user_id", c.UserID),
			zap.Duration("connected", connected),
			zap.Int("clients", len(s.clients)),
		)
	})
}
