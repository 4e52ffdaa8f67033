// Package loadbot drives synthetic players against a game server over
// websocket: it waits to be paired, then streams input batches, pings and
// colour changes until its context ends.
package loadbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
)

// Config controls one bot.
type Config struct {
	// URL is the websocket endpoint, e.g. ws://localhost:4004/ws.
	URL string
	// InputInterval is the period between input batches once paired.
	InputInterval time.Duration
	// PingEvery sends a ping after this many input batches. Zero disables pings.
	PingEvery int
	// Colors are cycled through, one change per ping.
	Colors []string
}

// Result is what one bot observed.
type Result struct {
	Hosted     bool
	Joined     bool
	Ready      bool
	Matches    int
	Ended      int
	InputsSent int
	Pings      int
	RTTs       []time.Duration
	ColorsSeen int
}

// Bot is one synthetic player.
type Bot struct {
	id     int
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

// New creates bot number id.
//
// Precondition: cfg.InputInterval > 0.
func New(id int, cfg Config, logger *zap.Logger) *Bot {
	return &Bot{
		id:  id,
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 5 * time.Second,
		},
		logger: logger.With(zap.Int("bot", id)),
	}
}

// Run plays until ctx is done or the server closes the connection.
//
// Postcondition: Returns a nil error when ctx ended the run.
func (b *Bot) Run(ctx context.Context) (Result, error) {
	var res Result

	conn, resp, err := b.dialer.DialContext(ctx, b.cfg.URL, nil)
	if err != nil {
		return res, fmt.Errorf("dialing %s: %w", b.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	msgs := make(chan string, 64)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(msgs)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			select {
			case msgs <- string(data):
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(b.cfg.InputInterval)
	defer ticker.Stop()

	var (
		readyClock float64
		readyAt    time.Time
		seq        uint64
		batches    int
		pingSent   = make(map[string]time.Time)
	)
	send := func(text string) error {
		return conn.WriteMessage(websocket.TextMessage, []byte(text))
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return res, nil

		case raw, ok := <-msgs:
			if !ok {
				err := <-readErr
				if ctx.Err() != nil {
					return res, nil
				}
				return res, fmt.Errorf("reading: %w", err)
			}
			tag, arg := ParseServer(raw)
			switch tag {
			case "h":
				res.Hosted = true
			case "j":
				res.Joined = true
			case "r":
				clock, err := protocol.ParseClock(arg)
				if err != nil {
					b.logger.Warn("bad ready clock", zap.String("raw", raw))
					continue
				}
				res.Ready = true
				res.Matches++
				readyClock, readyAt = clock, time.Now()
			case "e":
				res.Ended++
				res.Ready = false
			case "c":
				res.ColorsSeen++
			case "p":
				if sent, ok := pingSent[arg]; ok {
					res.RTTs = append(res.RTTs, time.Since(sent))
					delete(pingSent, arg)
				}
			default:
				b.logger.Debug("unexpected message", zap.String("raw", raw))
			}

		case <-ticker.C:
			if !res.Ready {
				continue
			}
			seq++
			clock := readyClock + time.Since(readyAt).Seconds()
			if err := send(protocol.EncodeInput(commandsFor(seq), clock, seq)); err != nil {
				return res, fmt.Errorf("sending input: %w", err)
			}
			res.InputsSent++
			batches++

			if b.cfg.PingEvery > 0 && batches%b.cfg.PingEvery == 0 {
				token := strconv.Itoa(res.Pings)
				pingSent[token] = time.Now()
				if err := send(protocol.TagPing + protocol.Separator + token); err != nil {
					return res, fmt.Errorf("sending ping: %w", err)
				}
				if len(b.cfg.Colors) > 0 {
					color := b.cfg.Colors[res.Pings%len(b.cfg.Colors)]
					if err := send(protocol.TagColor + protocol.Separator + color); err != nil {
						return res, fmt.Errorf("sending color: %w", err)
					}
				}
				res.Pings++
			}
		}
	}
}

var moves = []string{"up", "down", "left", "right"}

// commandsFor picks a deterministic input batch for seq.
func commandsFor(seq uint64) []string {
	first := moves[seq%uint64(len(moves))]
	if seq%3 == 0 {
		return []string{first, "fire"}
	}
	return []string{first}
}

// ParseServer splits a server message into its tag and argument.
// "s.j.abc" yields ("j", "abc"); "s.e" yields ("e", "").
func ParseServer(raw string) (tag, arg string) {
	rest, ok := strings.CutPrefix(raw, "s.")
	if !ok {
		return "", ""
	}
	tag, arg, _ = strings.Cut(rest, protocol.Separator)
	return tag, arg
}

// ErrNoBots is returned by Swarm.Run when asked to run zero bots.
var ErrNoBots = errors.New("loadbot: no bots")
