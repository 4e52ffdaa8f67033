package gameserver

import (
	"context"
	"time"

	"github.com/cory-johannsen/duel/internal/session"
)

// Snapshot is a point-in-time view of the server for the admin surface.
type Snapshot struct {
	Clients   int                 `json:"clients" yaml:"clients"`
	LatencyMs float64             `json:"latency_ms" yaml:"latency_ms"`
	Held      int                 `json:"held" yaml:"held"`
	Stats     session.Stats       `json:"stats" yaml:"stats"`
	Matches   []session.MatchInfo `json:"matches" yaml:"matches"`
}

// Snapshot collects counters and the match list on the loop.
func (s *Server) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.call(ctx, func() {
		snap = Snapshot{
			Clients:   len(s.clients),
			LatencyMs: float64(s.sim.Delay()) / float64(time.Millisecond),
			Held:      s.sim.Pending(),
			Stats:     s.manager.Stats(),
			Matches:   s.manager.Snapshot(),
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// SetLatency changes the simulated input delay for every client.
func (s *Server) SetLatency(ctx context.Context, d time.Duration) error {
	return s.call(ctx, func() { s.sim.Configure(d) })
}

// EndMatch terminates a match as if an outside party left it: every
// occupant is notified and re-queued. It reports whether the match existed.
func (s *Server) EndMatch(ctx context.Context, matchID string) (bool, error) {
	var found bool
	if err := s.call(ctx, func() { found = s.manager.End(matchID, "") }); err != nil {
		return false, err
	}
	return found, nil
}
