// Package testutil provides test doubles for match cores, outbound senders
// and event publishers, plus a line-protocol test client.
package testutil

import (
	"fmt"
	"sync"

	"github.com/cory-johannsen/duel/internal/events"
)

// Input is one batch recorded by FakeCore.
type Input struct {
	UserID   string
	Commands []string
	Time     float64
	Seq      uint64
}

// FakeCore records calls and reports a clock the test controls.
type FakeCore struct {
	mu      sync.Mutex
	ID      string
	clock   float64
	started int
	stopped int
	slots   [2]string
	inputs  []Input
}

// NewFakeCore returns a FakeCore for matchID with the clock at zero.
func NewFakeCore(matchID string) *FakeCore {
	return &FakeCore{ID: matchID}
}

func (f *FakeCore) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *FakeCore) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *FakeCore) LocalTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

// SetClock sets the value returned by LocalTime.
func (f *FakeCore) SetClock(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = v
}

func (f *FakeCore) AssignPlayer(slot int, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slot < 0 || slot >= len(f.slots) {
		return fmt.Errorf("slot %d out of range", slot)
	}
	f.slots[slot] = userID
	return nil
}

func (f *FakeCore) HandleInput(userID string, cmds []string, at float64, seq uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped > 0 {
		return false
	}
	f.inputs = append(f.inputs, Input{UserID: userID, Commands: cmds, Time: at, Seq: seq})
	return true
}

// Started returns how many times Start was called.
func (f *FakeCore) Started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Stopped returns how many times Stop was called.
func (f *FakeCore) Stopped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// Slot returns the user assigned to slot.
func (f *FakeCore) Slot(slot int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slots[slot]
}

// Inputs returns a copy of the recorded input batches.
func (f *FakeCore) Inputs() []Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Input(nil), f.inputs...)
}

// CoreSet creates FakeCores on demand and remembers them by match id.
type CoreSet struct {
	mu    sync.Mutex
	cores map[string]*FakeCore
	order []*FakeCore
}

// NewCoreSet creates an empty CoreSet.
func NewCoreSet() *CoreSet {
	return &CoreSet{cores: make(map[string]*FakeCore)}
}

// New creates and records a FakeCore. Its signature matches a core factory
// once wrapped by the caller.
func (s *CoreSet) New(matchID string) *FakeCore {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := NewFakeCore(matchID)
	s.cores[matchID] = c
	s.order = append(s.order, c)
	return c
}

// Get returns the core created for matchID.
func (s *CoreSet) Get(matchID string) *FakeCore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cores[matchID]
}

// All returns every core in creation order.
func (s *CoreSet) All() []*FakeCore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeCore(nil), s.order...)
}

// Recorder is a Sender that keeps every message.
type Recorder struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

// Send records text, or returns the configured error.
func (r *Recorder) Send(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, text)
	return nil
}

// FailWith makes subsequent Send calls return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

// Last returns the most recent message, or "" if none.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

// Reset forgets recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []events.Event
}

// Publish records e.
func (p *Publisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// Kinds returns the kinds of recorded events in order.
func (p *Publisher) Kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}
