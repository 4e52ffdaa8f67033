package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/events"
	"github.com/cory-johannsen/duel/internal/physics"
	"github.com/cory-johannsen/duel/internal/protocol"
)

// Manager pairs clients into matches and drives each match through
// waiting, active and terminated. It owns the Registry.
//
// All methods are safe for concurrent use: the scan, assign and create steps
// of matchmaking and the stop and remove steps of teardown each run under
// one lock.
type Manager struct {
	mu       sync.Mutex
	registry *Registry
	newCore  CoreFactory
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time

	created uint64
	ended   uint64
}

// NewManager creates a Manager with an empty registry.
//
// Precondition: newCore, pub and logger must be non-nil.
func NewManager(newCore CoreFactory, pub events.Publisher, logger *zap.Logger) *Manager {
	return &Manager{
		registry: NewRegistry(),
		newCore:  newCore,
		pub:      pub,
		logger:   logger,
		now:      time.Now,
	}
}

// FindMatch seats c in the oldest open match, starting it, or creates a new
// match with c as host.
//
// Precondition: c is not in a match. A client that already holds a match is
// left where it is.
// Postcondition: c.Match is non-nil and c occupies exactly one of its slots.
func (m *Manager) FindMatch(c *Client) *Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findMatchLocked(c)
}

func (m *Manager) findMatchLocked(c *Client) *Match {
	if c.Match != nil {
		m.logger.Warn("client already in a match",
			zap.String("user_id", c.UserID),
			zap.String("match_id", c.Match.ID),
		)
		return c.Match
	}

	if open := m.registry.FirstOpen(); open != nil {
		m.joinLocked(open, c)
		return open
	}
	return m.createLocked(c)
}

func (m *Manager) joinLocked(match *Match, c *Client) {
	match.Guest = c
	match.PlayerCount++
	c.Match = match
	if err := match.Core.AssignPlayer(physics.SlotGuest, c.UserID); err != nil {
		m.logger.Error("assigning guest slot", zap.String("match_id", match.ID), zap.Error(err))
	}
	m.logger.Info("client joined match",
		zap.String("match_id", match.ID),
		zap.String("user_id", c.UserID),
		zap.String("host", match.Host.UserID),
	)
	if err := m.startLocked(match); err != nil {
		m.logger.Error("starting match", zap.String("match_id", match.ID), zap.Error(err))
	}
}

func (m *Manager) createLocked(host *Client) *Match {
	id := uuid.NewString()
	core := m.newCore(id)
	if err := core.AssignPlayer(physics.SlotHost, host.UserID); err != nil {
		m.logger.Error("assigning host slot", zap.String("match_id", id), zap.Error(err))
	}
	core.Start()

	match := &Match{
		ID:          id,
		Host:        host,
		PlayerCount: 1,
		State:       StateWaiting,
		Core:        core,
		CreatedAt:   m.now(),
	}
	if err := m.registry.Add(match); err != nil {
		// uuid collision; the match never became visible
		core.Stop()
		m.logger.Error("registering match", zap.Error(err))
		return nil
	}
	m.created++

	host.Match = match
	host.Hosting = true
	m.send(host, protocol.Hosting(core.LocalTime()))

	m.logger.Info("match created",
		zap.String("match_id", id),
		zap.String("host", host.UserID),
		zap.Int("match_count", m.registry.Count()),
	)
	m.pub.Publish(events.Event{
		Kind:    events.KindMatchCreated,
		MatchID: id,
		Host:    host.UserID,
		At:      match.CreatedAt,
	})
	return match
}

// send is fire-and-forget; a slow or gone peer never blocks the caller.
func (m *Manager) send(c *Client, text string) {
	if err := c.Send(text); err != nil {
		m.logger.Debug("dropping outbound message",
			zap.String("user_id", c.UserID),
			zap.String("message", text),
			zap.Error(err),
		)
	}
}

// Count returns the number of live matches.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Count()
}

// Get returns the live match with the given id.
func (m *Manager) Get(id string) (*Match, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.Get(id)
}
