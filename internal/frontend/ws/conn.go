package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/session"
)

const (
	// maxMessageSize bounds one inbound frame.
	maxMessageSize = 1024
)

// handle runs the pumps for one connection and returns when both have exited.
func (a *Acceptor) handle(conn *websocket.Conn) {
	remote := conn.RemoteAddr().String()
	outbox := session.NewOutbox(remote, a.cfg.SendBuffer)
	client := a.game.Connect(outbox, "websocket")
	logger := a.logger.With(zap.String("user_id", client.UserID), zap.String("remote_addr", remote))
	logger.Debug("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		a.writePump(conn, outbox, logger)
	}()

	a.readPump(conn, client, logger)

	a.game.Disconnect(client)
	_ = outbox.Close()
	<-writerDone
	conn.Close()
	logger.Debug("websocket disconnected", zap.Uint64("dropped", outbox.Dropped()))
}

func (a *Acceptor) readPump(conn *websocket.Conn, client *session.Client, logger *zap.Logger) {
	pongWait := a.cfg.ReadTimeout
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage || len(data) == 0 {
			continue
		}
		a.game.Receive(client, string(data))
	}
}

// writePump drains outbox into text frames and pings the peer at 9/10 of
// the read timeout.
func (a *Acceptor) writePump(conn *websocket.Conn, outbox *session.Outbox, logger *zap.Logger) {
	ticker := time.NewTicker(a.cfg.ReadTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-outbox.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				logger.Debug("websocket write failed", zap.Error(err))
				// unblock the read pump
				conn.Close()
				for range outbox.Messages() {
				}
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				for range outbox.Messages() {
				}
				return
			}
		}
	}
}
