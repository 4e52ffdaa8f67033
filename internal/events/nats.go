package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
)

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher encodes events as JSON and publishes them on
// "<prefix>.<kind>".
type NATSPublisher struct {
	nc     conn
	prefix string
	server string
	logger *zap.Logger
	now    func() time.Time
}

// Connect dials the NATS server named in cfg.
//
// Precondition: cfg.NatsURL must be non-empty.
// Postcondition: Returns a connected publisher or a wrapped dial error.
func Connect(cfg config.EventsConfig, server string, logger *zap.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.NatsURL,
		nats.Name(server),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", cfg.NatsURL, err)
	}
	logger.Info("nats connected", zap.String("url", cfg.NatsURL), zap.String("prefix", cfg.SubjectPrefix))
	return newNATSPublisher(nc, cfg.SubjectPrefix, server, logger), nil
}

func newNATSPublisher(nc conn, prefix, server string, logger *zap.Logger) *NATSPublisher {
	return &NATSPublisher{
		nc:     nc,
		prefix: prefix,
		server: server,
		logger: logger,
		now:    time.Now,
	}
}

// Subject returns the subject an event of kind k is published on.
func (p *NATSPublisher) Subject(k Kind) string {
	return p.prefix + "." + string(k)
}

// Publish stamps e with the server name and time when unset and sends it.
func (p *NATSPublisher) Publish(e Event) {
	if e.Server == "" {
		e.Server = p.server
	}
	if e.At.IsZero() {
		e.At = p.now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding event", zap.String("kind", string(e.Kind)), zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.Subject(e.Kind), data); err != nil {
		p.logger.Warn("publishing event",
			zap.String("kind", string(e.Kind)),
			zap.String("match_id", e.MatchID),
			zap.Error(err),
		)
	}
}

// Start satisfies server.Service; the connection is already open.
func (p *NATSPublisher) Start() error {
	return nil
}

// Stop flushes buffered messages and closes the connection.
func (p *NATSPublisher) Stop() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("draining nats connection", zap.Error(err))
	}
}
