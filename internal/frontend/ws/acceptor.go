// Package ws carries the game protocol over WebSocket text frames: one
// protocol message per frame in each direction.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/session"
)

// Game is the part of the game server a transport talks to.
type Game interface {
	Connect(sender session.Sender, transport string) *session.Client
	Receive(c *session.Client, raw string)
	Disconnect(c *session.Client)
}

// Acceptor upgrades HTTP requests on the configured path to WebSocket
// connections and pumps them into the game.
type Acceptor struct {
	cfg      config.WebSocketConfig
	game     Game
	logger   *zap.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	conns    map[*websocket.Conn]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewAcceptor creates an Acceptor for cfg.
//
// Precondition: game and logger must be non-nil; cfg.Path must start with "/".
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, game Game, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:    cfg,
		game:   game,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browser clients are served from other origins during development
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
	a.router = mux.NewRouter()
	a.router.HandleFunc(cfg.Path, a.serveWS).Methods(http.MethodGet)
	return a
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (a *Acceptor) Handler() http.Handler {
	return a.router
}

// ListenAndServe serves until Stop is called.
//
// Postcondition: Returns nil after Stop, or the listen error.
func (a *Acceptor) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		listener.Close()
		return nil
	}
	a.srv = srv
	a.listener = listener
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
	)
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

// Addr returns the listening address, or "" before ListenAndServe.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts the HTTP server down, closes every upgraded connection and
// waits for their pumps to exit. It is idempotent.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	a.closing = true
	srv := a.srv
	conns := make([]*websocket.Conn, 0, len(a.conns))
	for c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Warn("websocket server shutdown", zap.Error(err))
		}
	}
	// hijacked connections are not closed by Shutdown
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.Close()
	}
	a.wg.Wait()
	a.logger.Info("websocket acceptor stopped")
}

func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		a.logger.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		conn.Close()
		return
	}
	a.conns[conn] = struct{}{}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		a.handle(conn)
		a.mu.Lock()
		delete(a.conns, conn)
		a.mu.Unlock()
	}()
}
