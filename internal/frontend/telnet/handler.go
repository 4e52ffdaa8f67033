package telnet

import (
	"context"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/session"
)

// Game is the part of the game server a transport talks to.
type Game interface {
	Connect(sender session.Sender, transport string) *session.Client
	Receive(c *session.Client, raw string)
	Disconnect(c *session.Client)
}

// Handler bridges a line connection to the game: every non-empty line is one
// inbound message and every outbound message is written as one line.
type Handler struct {
	game       Game
	sendBuffer int
	logger     *zap.Logger
}

// NewHandler creates a Handler.
//
// Precondition: game and logger must be non-nil.
func NewHandler(game Game, sendBuffer int, logger *zap.Logger) *Handler {
	return &Handler{game: game, sendBuffer: sendBuffer, logger: logger}
}

// HandleSession registers the connection with the game and pumps messages
// until the peer goes away or ctx is cancelled.
//
// Postcondition: The client has been disconnected from the game and the
// writer has exited.
func (h *Handler) HandleSession(ctx context.Context, conn *Conn) error {
	outbox := session.NewOutbox(conn.RemoteAddr().String(), h.sendBuffer)
	client := h.game.Connect(outbox, "telnet")
	logger := h.logger.With(
		zap.String("user_id", client.UserID),
		zap.String("remote_addr", conn.RemoteAddr().String()),
	)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbox.Messages() {
			if err := conn.WriteLine(msg); err != nil {
				logger.Debug("write failed", zap.Error(err))
				conn.Close()
				// keep draining so Close on the outbox never races a blocked send
				for range outbox.Messages() {
				}
				return
			}
		}
	}()

	err := h.readLoop(ctx, conn, client)

	h.game.Disconnect(client)
	_ = outbox.Close()
	<-writerDone
	if dropped := outbox.Dropped(); dropped > 0 {
		logger.Info("outbound messages dropped", zap.Uint64("count", dropped))
	}

	if isClosed(err) {
		return nil
	}
	return err
}

func (h *Handler) readLoop(ctx context.Context, conn *Conn, client *session.Client) error {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}
		h.game.Receive(client, line)
	}
}

func isClosed(err error) bool {
	return err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
