package session

import "time"

// Core is the authoritative simulation bound 1:1 to a match.
type Core interface {
	// Start begins periodic updates.
	Start()
	// Stop halts updates. It must be idempotent and must guarantee no update
	// runs after it returns.
	Stop()
	// LocalTime returns the simulated clock in seconds.
	LocalTime() float64
	AssignPlayer(slot int, userID string) error
	HandleInput(userID string, cmds []string, at float64, seq uint64) bool
}

// CoreFactory builds the core for a new match.
type CoreFactory func(matchID string) Core

// State is a match's position in its lifecycle.
type State int

const (
	StateWaiting State = iota + 1
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "empty"
	}
}

// Match is one two-player session. The Registry owns every Match.
type Match struct {
	ID          string
	Host        *Client
	Guest       *Client
	PlayerCount int
	// Active is set once the start handshake has been sent to both players.
	Active bool
	State  State
	Core   Core

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
}

// Open reports whether the match is waiting for a second player.
func (m *Match) Open() bool {
	return m.State == StateWaiting && m.PlayerCount < 2
}

// Other returns the opponent of userID: the guest when userID is the host,
// otherwise the host. The result is nil when that slot is empty.
func (m *Match) Other(userID string) *Client {
	if m.Host != nil && m.Host.UserID == userID {
		return m.Guest
	}
	return m.Host
}

// Occupants returns the non-empty slots, host first.
func (m *Match) Occupants() []*Client {
	out := make([]*Client, 0, 2)
	if m.Host != nil {
		out = append(out, m.Host)
	}
	if m.Guest != nil {
		out = append(out, m.Guest)
	}
	return out
}
