package gameserver

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
	"github.com/cory-johannsen/duel/internal/session"
)

// dispatch routes one admitted message. It runs on the loop goroutine,
// either straight from Admit or from a latency release.
func (s *Server) dispatch(c *session.Client, raw string) {
	if _, ok := s.clients[c.UserID]; !ok {
		s.logger.Debug("dropping message from disconnected client", zap.String("user_id", c.UserID))
		return
	}

	switch cmd := protocol.Parse(raw).(type) {
	case protocol.Input:
		s.onInput(c, cmd)
	case protocol.Ping:
		s.send(c, protocol.PingEcho(cmd.Token))
	case protocol.Color:
		s.onColor(c, cmd)
	case protocol.Lag:
		s.onLag(c, cmd)
	case protocol.Malformed:
		s.logger.Warn("dropping malformed message",
			zap.String("user_id", c.UserID),
			zap.String("tag", cmd.Kind),
			zap.String("reason", cmd.Reason),
		)
	case protocol.Unknown:
		s.logger.Debug("dropping unknown message",
			zap.String("user_id", c.UserID),
			zap.String("tag", cmd.Kind),
		)
	}
}

func (s *Server) onInput(c *session.Client, in protocol.Input) {
	if c.Match == nil || c.Match.Core == nil {
		s.logger.Debug("dropping input outside a match", zap.String("user_id", c.UserID))
		return
	}
	if !c.Match.Core.HandleInput(c.UserID, in.Commands, in.Time, in.Seq) {
		s.logger.Debug("input rejected by core",
			zap.String("user_id", c.UserID),
			zap.String("match_id", c.Match.ID),
			zap.Uint64("seq", in.Seq),
		)
	}
}

func (s *Server) onColor(c *session.Client, col protocol.Color) {
	if c.Match == nil {
		return
	}
	if other := c.Match.Other(c.UserID); other != nil {
		s.send(other, protocol.ColorChange(col.Value))
	}
}

func (s *Server) onLag(c *session.Client, l protocol.Lag) {
	if !s.allowClientLatency {
		s.logger.Warn("ignoring client latency change",
			zap.String("user_id", c.UserID),
			zap.Float64("ms", l.Millis),
		)
		return
	}
	s.sim.Configure(l.Delay())
}

func (s *Server) send(c *session.Client, text string) {
	if err := c.Send(text); err != nil {
		s.logger.Debug("dropping outbound message",
			zap.String("user_id", c.UserID),
			zap.String("message", text),
			zap.Error(err),
		)
	}
}
