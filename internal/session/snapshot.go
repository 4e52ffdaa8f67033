package session

import "time"

// MatchInfo is a point-in-time view of one match.
type MatchInfo struct {
	ID          string    `json:"id" yaml:"id"`
	State       string    `json:"state" yaml:"state"`
	Host        string    `json:"host,omitempty" yaml:"host,omitempty"`
	Guest       string    `json:"guest,omitempty" yaml:"guest,omitempty"`
	PlayerCount int       `json:"player_count" yaml:"player_count"`
	Active      bool      `json:"active" yaml:"active"`
	Clock       float64   `json:"clock" yaml:"clock"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
}

// Stats summarises the registry.
type Stats struct {
	Matches      int    `json:"matches" yaml:"matches"`
	Waiting      int    `json:"waiting" yaml:"waiting"`
	Active       int    `json:"active" yaml:"active"`
	TotalCreated uint64 `json:"total_created" yaml:"total_created"`
	TotalEnded   uint64 `json:"total_ended" yaml:"total_ended"`
}

// Snapshot returns every live match in insertion order.
func (m *Manager) Snapshot() []MatchInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.registry.All()
	out := make([]MatchInfo, 0, len(all))
	for _, match := range all {
		info := MatchInfo{
			ID:          match.ID,
			State:       match.State.String(),
			PlayerCount: match.PlayerCount,
			Active:      match.Active,
			Clock:       match.Core.LocalTime(),
			CreatedAt:   match.CreatedAt,
			StartedAt:   match.StartedAt,
		}
		if match.Host != nil {
			info.Host = match.Host.UserID
		}
		if match.Guest != nil {
			info.Guest = match.Guest.UserID
		}
		out = append(out, info)
	}
	return out
}

// Stats returns registry counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Matches:      m.registry.Count(),
		TotalCreated: m.created,
		TotalEnded:   m.ended,
	}
	for _, match := range m.registry.All() {
		switch match.State {
		case StateWaiting:
			s.Waiting++
		case StateActive:
			s.Active++
		}
	}
	return s
}
