// Package admin exposes operator endpoints for the game server: health,
// counters, the match list and simulated latency control over HTTP, plus
// the standard gRPC health service.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/session"
)

// Game is the part of the game server the admin API drives.
type Game interface {
	Snapshot(ctx context.Context) (gameserver.Snapshot, error)
	SetLatency(ctx context.Context, d time.Duration) error
	EndMatch(ctx context.Context, matchID string) (bool, error)
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Server    string        `json:"server" yaml:"server"`
	Uptime    string        `json:"uptime" yaml:"uptime"`
	Clients   int           `json:"clients" yaml:"clients"`
	LatencyMs float64       `json:"latency_ms" yaml:"latency_ms"`
	Held      int           `json:"held" yaml:"held"`
	Matches   session.Stats `json:"matches" yaml:"matches"`
}

// LatencyResponse is the body of PUT /latency/{ms}.
type LatencyResponse struct {
	LatencyMs float64 `json:"latency_ms" yaml:"latency_ms"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error" yaml:"error"`
}

// maxLatency caps operator-set latency.
const maxLatency = time.Minute

// requestTimeout bounds one round trip through the game loop.
const requestTimeout = 2 * time.Second

// API serves the admin HTTP endpoints.
type API struct {
	cfg     config.AdminConfig
	name    string
	game    Game
	health  *HealthAggregator
	logger  *zap.Logger
	router  *mux.Router
	started time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	closing  bool
}

// NewAPI creates the admin API for the server called name.
//
// Precondition: game, health and logger must be non-nil.
func NewAPI(cfg config.AdminConfig, name string, game Game, health *HealthAggregator, logger *zap.Logger) *API {
	a := &API{
		cfg:     cfg,
		name:    name,
		game:    game,
		health:  health,
		logger:  logger,
		started: time.Now(),
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", health.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/stats", a.getStats).Methods(http.MethodGet)
	r.HandleFunc("/matches", a.listMatches).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}", a.getMatch).Methods(http.MethodGet)
	r.HandleFunc("/matches/{id}", a.endMatch).Methods(http.MethodDelete)
	r.HandleFunc("/latency/{ms}", a.setLatency).Methods(http.MethodPut)
	a.router = r
	return a
}

// Handler returns the router.
func (a *API) Handler() http.Handler {
	return a.router
}

// ListenAndServe serves until Stop is called.
func (a *API) ListenAndServe() error {
	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
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

	a.logger.Info("admin api listening", zap.String("addr", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving admin api: %w", err)
	}
	return nil
}

// Addr returns the listening address, or "" before ListenAndServe.
func (a *API) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Stop shuts the HTTP server down. It is idempotent.
func (a *API) Stop() {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	a.closing = true
	srv := a.srv
	a.mu.Unlock()

	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("admin api shutdown", zap.Error(err))
	}
}

func (a *API) snapshot(w http.ResponseWriter, r *http.Request) (gameserver.Snapshot, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	snap, err := a.game.Snapshot(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return snap, false
	}
	return snap, true
}

func (a *API) getStats(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Server:    a.name,
		Uptime:    time.Since(a.started).Round(time.Second).String(),
		Clients:   snap.Clients,
		LatencyMs: snap.LatencyMs,
		Held:      snap.Held,
		Matches:   snap.Stats,
	})
}

func (a *API) listMatches(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.snapshot(w, r)
	if !ok {
		return
	}
	matches := snap.Matches
	if matches == nil {
		matches = []session.MatchInfo{}
	}
	if state := r.URL.Query().Get("state"); state != "" {
		filtered := matches[:0:0]
		for _, m := range matches {
			if m.State == state {
				filtered = append(filtered, m)
			}
		}
		matches = filtered
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *API) getMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := a.snapshot(w, r)
	if !ok {
		return
	}
	for _, m := range snap.Matches {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Errorf("match %q not found", id))
}

func (a *API) endMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	found, err := a.game.EndMatch(ctx, id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, fmt.Errorf("match %q not found", id))
		return
	}
	a.logger.Info("match ended by operator", zap.String("match_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setLatency(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["ms"]
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ms) || ms < 0 || ms > float64(maxLatency/time.Millisecond) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("latency must be a number of milliseconds in [0, %d], got %q", maxLatency/time.Millisecond, raw))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	d := time.Duration(ms * float64(time.Millisecond))
	if err := a.game.SetLatency(ctx, d); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	a.logger.Info("latency set by operator", zap.Float64("ms", ms))
	writeJSON(w, http.StatusOK, LatencyResponse{LatencyMs: ms})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
