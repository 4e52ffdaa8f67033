// Package physics provides the authoritative per-match core. It keeps the
// match clock, owns the two player slots and accepts ordered input batches.
// Positions and collision are resolved client-side and are not modelled here.
package physics

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Slots per match.
const (
	SlotHost  = 0
	SlotGuest = 1
	numSlots  = 2
)

// maxPending bounds unprocessed input batches per player.
const maxPending = 64

// InputBatch is one client input message.
type InputBatch struct {
	Commands []string
	Time     float64
	Seq      uint64
}

type player struct {
	userID    string
	lastSeq   uint64
	hasSeq    bool
	pending   []InputBatch
	processed uint64
}

// PlayerStats is a read-only view of one slot.
type PlayerStats struct {
	UserID    string `json:"user_id" yaml:"user_id"`
	LastSeq   uint64 `json:"last_seq" yaml:"last_seq"`
	Pending   int    `json:"pending" yaml:"pending"`
	Processed uint64 `json:"processed" yaml:"processed"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is the match core. All methods are safe for concurrent use.
type Engine struct {
	matchID  string
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	localTime float64
	ticks     uint64
	players   [numSlots]*player

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates a stopped engine for matchID.
//
// Precondition: interval > 0.
// Postcondition: Returns an Engine ready to Start().
func NewEngine(matchID string, interval time.Duration, opts ...Option) *Engine {
	if interval <= 0 {
		panic("physics.NewEngine: interval must be > 0")
	}
	e := &Engine{
		matchID:  matchID,
		interval: interval,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MatchID returns the owning match id.
func (e *Engine) MatchID() string {
	return e.matchID
}

// Start runs one update immediately and then ticks every interval on a
// background goroutine until Stop is called. Calling Start twice, or after
// Stop, does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.startedAt = e.now()
	e.advance(e.startedAt)
	e.mu.Unlock()

	e.wg.Add(1)
	go e.run()
}

func (e *Engine) run() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			if !e.stopped {
				e.advance(e.now())
			}
			e.mu.Unlock()
		}
	}
}

// Update advances the clock to now and consumes pending input.
//
// Precondition: Stop has not been called. Updating a stopped engine means a
// torn-down match is still being driven, and panics.
// Postcondition: Returns the new local time in seconds.
func (e *Engine) Update(now time.Time) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		panic(fmt.Sprintf("physics: update on stopped engine for match %s", e.matchID))
	}
	if e.startedAt.IsZero() {
		e.startedAt = now
	}
	e.advance(now)
	return e.localTime
}

// advance requires e.mu.
func (e *Engine) advance(now time.Time) {
	elapsed := now.Sub(e.startedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	e.localTime = math.Round(elapsed*1000) / 1000
	e.ticks++
	for _, p := range e.players {
		if p == nil {
			continue
		}
		for _, b := range p.pending {
			p.processed += uint64(len(b.Commands))
		}
		p.pending = p.pending[:0]
	}
}

// LocalTime returns the match clock in seconds, rounded to milliseconds.
func (e *Engine) LocalTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.localTime
}

// Ticks returns the number of updates applied.
func (e *Engine) Ticks() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ticks
}

// AssignPlayer binds userID to slot, replacing any previous occupant.
func (e *Engine) AssignPlayer(slot int, userID string) error {
	if slot < 0 || slot >= numSlots {
		return fmt.Errorf("physics: slot %d out of range", slot)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.players[slot] = &player{userID: userID}
	return nil
}

// HandleInput queues an input batch for the player bound to userID.
//
// Postcondition: Returns false, without queueing, when userID holds no slot,
// when seq is not newer than the last accepted sequence, or when the engine
// has stopped.
func (e *Engine) HandleInput(userID string, cmds []string, at float64, seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return false
	}
	p := e.playerLocked(userID)
	if p == nil {
		return false
	}
	if p.hasSeq && seq <= p.lastSeq {
		return false
	}
	p.lastSeq = seq
	p.hasSeq = true
	if len(p.pending) >= maxPending {
		p.pending = append(p.pending[:0], p.pending[1:]...)
	}
	p.pending = append(p.pending, InputBatch{
		Commands: append([]string(nil), cmds...),
		Time:     at,
		Seq:      seq,
	})
	return true
}

func (e *Engine) playerLocked(userID string) *player {
	for _, p := range e.players {
		if p != nil && p.userID == userID {
			return p
		}
	}
	return nil
}

// Players returns the occupied slots in slot order.
func (e *Engine) Players() []PlayerStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PlayerStats, 0, numSlots)
	for _, p := range e.players {
		if p == nil {
			continue
		}
		out = append(out, PlayerStats{
			UserID:    p.userID,
			LastSeq:   p.lastSeq,
			Pending:   len(p.pending),
			Processed: p.processed,
		})
	}
	return out
}

// Stop halts ticking and waits for the tick goroutine to exit. It is
// idempotent and must not be called from within a tick.
//
// Postcondition: No further update runs after Stop returns.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		e.mu.Unlock()
		close(e.done)
	})
	e.wg.Wait()
}

// Stopped reports whether Stop has been called.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}
