// Package latency holds inbound input messages for a configurable delay
// before they reach the dispatcher, so the game can be exercised under
// adverse network conditions.
package latency

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/protocol"
)

// Scheduler runs fn once after d has elapsed and reports the current time.
// The returned cancel func must be safe to call more than once.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) (cancel func())
}

type held[T any] struct {
	client    T
	raw       string
	releaseAt time.Time
}

// Simulator delays input-class messages and passes everything else through.
//
// A Simulator is not safe for concurrent use. Admit, Configure and Stop must
// be called from the same goroutine that runs the Scheduler's callbacks.
type Simulator[T any] struct {
	deliver func(client T, raw string)
	sched   Scheduler
	logger  *zap.Logger

	delay   time.Duration
	queue   []held[T]
	cancel  func()
	gen     uint64
	stopped bool
}

// New creates a Simulator with zero delay.
//
// Precondition: deliver, sched and logger must be non-nil.
// Postcondition: Returns a Simulator that delivers synchronously until
// Configure is called with a positive delay.
func New[T any](deliver func(client T, raw string), sched Scheduler, logger *zap.Logger) *Simulator[T] {
	return &Simulator[T]{
		deliver: deliver,
		sched:   sched,
		logger:  logger,
	}
}

// Configure sets the simulated one-way delay. Zero or negative disables it.
// Messages already held keep their original release time.
func (s *Simulator[T]) Configure(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if d != s.delay {
		s.logger.Info("simulated latency changed",
			zap.Duration("from", s.delay),
			zap.Duration("to", d),
		)
	}
	s.delay = d
}

// Delay returns the configured delay.
func (s *Simulator[T]) Delay() time.Duration {
	return s.delay
}

// Pending returns the number of held messages.
func (s *Simulator[T]) Pending() int {
	return len(s.queue)
}

// Admit accepts one inbound message.
//
// Postcondition: non-input messages are delivered before Admit returns.
// Input messages are delivered before Admit returns only when no delay is
// configured and nothing is held; otherwise they are appended to the queue
// and released in arrival order, each no earlier than the delay after it
// was admitted.
func (s *Simulator[T]) Admit(client T, raw string) {
	if s.stopped {
		s.logger.Debug("dropping message after stop", zap.String("raw", raw))
		return
	}
	if !protocol.IsInputClass(raw) || (s.delay == 0 && len(s.queue) == 0) {
		s.deliver(client, raw)
		return
	}

	s.queue = append(s.queue, held[T]{
		client:    client,
		raw:       raw,
		releaseAt: s.sched.Now().Add(s.delay),
	})
	if s.cancel == nil {
		s.schedule()
	}
}

// Stop cancels the pending release and discards every held message.
// Subsequent Admit calls are dropped. Stop is idempotent.
func (s *Simulator[T]) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if n := len(s.queue); n > 0 {
		s.logger.Debug("discarding held messages", zap.Int("count", n))
	}
	s.queue = nil
}

func (s *Simulator[T]) schedule() {
	wait := s.queue[0].releaseAt.Sub(s.sched.Now())
	if wait < 0 {
		wait = 0
	}
	s.gen++
	gen := s.gen
	s.cancel = s.sched.After(wait, func() { s.release(gen) })
}

// release delivers exactly the queue head, whichever message scheduled it.
func (s *Simulator[T]) release(gen uint64) {
	if s.stopped || gen != s.gen || len(s.queue) == 0 {
		return
	}
	s.cancel = nil

	head := s.queue[0]
	s.queue[0] = held[T]{}
	s.queue = s.queue[1:]
	s.deliver(head.client, head.raw)

	if len(s.queue) > 0 && s.cancel == nil && !s.stopped {
		s.schedule()
	}
}
