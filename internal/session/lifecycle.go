package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/events"
	"github.com/cory-johannsen/duel/internal/protocol"
)

// Start sends the join and ready handshake and marks match active.
//
// Precondition: both slots are filled and the match has not started.
// Postcondition: Returns an error, changing nothing, when the precondition
// does not hold.
func (m *Manager) Start(match *Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(match)
}

func (m *Manager) startLocked(match *Match) error {
	if match.Host == nil || match.Guest == nil {
		return fmt.Errorf("match %s has %d players, need 2", match.ID, match.PlayerCount)
	}
	if match.Active || match.State != StateWaiting {
		return fmt.Errorf("match %s already %s", match.ID, match.State)
	}

	host, guest := match.Host, match.Guest
	m.send(guest, protocol.Joining(host.UserID))
	guest.Match = match

	ready := protocol.Ready(match.Core.LocalTime())
	m.send(host, ready)
	m.send(guest, ready)

	match.Active = true
	match.State = StateActive
	match.StartedAt = m.now()

	m.logger.Info("match started",
		zap.String("match_id", match.ID),
		zap.String("host", host.UserID),
		zap.String("guest", guest.UserID),
	)
	m.pub.Publish(events.Event{
		Kind:    events.KindMatchStarted,
		MatchID: match.ID,
		Host:    host.UserID,
		Guest:   guest.UserID,
		At:      match.StartedAt,
	})
	return nil
}

// End tears down the match after userID leaves it. The core is stopped
// before the match leaves the registry. Every other occupant is told the
// match ended and goes back through matchmaking.
//
// Postcondition: Returns false, changing nothing, when matchID is unknown.
func (m *Manager) End(matchID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.registry.Get(matchID)
	if !ok {
		m.logger.Warn("end requested for unknown match",
			zap.String("match_id", matchID),
			zap.String("user_id", userID),
		)
		return false
	}

	survivors := m.terminateLocked(match, "departure", userID)
	for _, c := range match.Occupants() {
		c.detach()
	}
	for _, c := range survivors {
		m.send(c, protocol.Ended())
		m.findMatchLocked(c)
	}
	return true
}

// Leave ends the match c occupies, if any. It is called when c disconnects.
func (m *Manager) Leave(c *Client) bool {
	m.mu.Lock()
	match := c.Match
	m.mu.Unlock()
	if match == nil {
		return false
	}
	return m.End(match.ID, c.UserID)
}

// Shutdown ends every live match without re-queueing anyone.
//
// Postcondition: The registry is empty and every core is stopped. Returns
// the number of matches ended.
func (m *Manager) Shutdown() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.registry.All()
	for _, match := range all {
		m.terminateLocked(match, "shutdown", "")
		for _, c := range match.Occupants() {
			m.send(c, protocol.Ended())
			c.detach()
		}
	}
	return len(all)
}

// terminateLocked stops the core, removes match and returns the occupants
// other than departing.
func (m *Manager) terminateLocked(match *Match, reason, departing string) []*Client {
	match.Core.Stop()
	m.registry.Remove(match.ID)
	m.ended++

	match.Active = false
	match.State = StateTerminated
	match.EndedAt = m.now()

	var survivors []*Client
	for _, c := range match.Occupants() {
		if c.UserID != departing {
			survivors = append(survivors, c)
		}
	}

	m.logger.Info("match ended",
		zap.String("match_id", match.ID),
		zap.String("reason", reason),
		zap.String("user_id", departing),
		zap.Int("players", match.PlayerCount),
		zap.Int("match_count", m.registry.Count()),
	)
	ev := events.Event{
		Kind:    events.KindMatchEnded,
		MatchID: match.ID,
		UserID:  departing,
		Reason:  reason,
		At:      match.EndedAt,
	}
	if match.Host != nil {
		ev.Host = match.Host.UserID
	}
	if match.Guest != nil {
		ev.Guest = match.Guest.UserID
	}
	m.pub.Publish(ev)
	return survivors
}
