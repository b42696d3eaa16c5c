// Package status drives the visible lifecycle indicator of a node.
//
// A Reporter walks Idle → Requesting → {Success, Error}. Success (and an
// aborted attempt) returns to Idle after a fixed delay; Error stays until the
// next request. Each Reporter owns a single clear timer that every
// transition resets, so a stale clear can never overwrite a newer status.
package status

import (
	"sync"
	"time"
)

// DefaultClearDelay is how long Success stays visible before clearing.
const DefaultClearDelay = 2000 * time.Millisecond

type State string

const (
	Idle       State = "idle"
	Requesting State = "requesting"
	Success    State = "success"
	Error      State = "error"
)

// Status is the visible indicator. Idle carries no fill, shape or text.
type Status struct {
	Fill      string    `json:"fill,omitempty"`
	Shape     string    `json:"shape,omitempty"`
	Text      string    `json:"text,omitempty"`
	State     State     `json:"state"`
	ChangedAt time.Time `json:"changedAt"`
}

func render(state State, at time.Time) Status {
	s := Status{State: state, ChangedAt: at}
	switch state {
	case Requesting:
		s.Fill, s.Shape, s.Text = "blue", "dot", "Requesting"
	case Success:
		s.Fill, s.Shape, s.Text = "green", "dot", "Success"
	case Error:
		s.Fill, s.Shape, s.Text = "red", "dot", "Error. Refer to node output"
	}
	return s
}

// Publisher receives every status change of a node.
type Publisher interface {
	Publish(nodeID string, s Status)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(nodeID string, s Status)

func (f PublisherFunc) Publish(nodeID string, s Status) { f(nodeID, s) }

// Timer is the part of *time.Timer the Reporter needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via
// RealAfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

// RealAfterFunc wraps time.AfterFunc.
func RealAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Options struct {
	ClearDelay time.Duration
	Publisher  Publisher
	AfterFunc  AfterFunc
	Now        func() time.Time
}

type Reporter struct {
	nodeID    string
	delay     time.Duration
	publisher Publisher
	afterFunc AfterFunc
	now       func() time.Time

	// pubMu is held from computing a status until its publish returns, so
	// publishers observe transitions in order. Taken before mu.
	pubMu   sync.Mutex
	mu      sync.Mutex
	current Status
	gen     uint64
	timer   Timer
	stopped bool
}

func NewReporter(nodeID string, opts Options) *Reporter {
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = DefaultClearDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = RealAfterFunc
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Reporter{
		nodeID:    nodeID,
		delay:     opts.ClearDelay,
		publisher: opts.Publisher,
		afterFunc: opts.AfterFunc,
		now:       opts.Now,
		current:   render(Idle, opts.Now()),
	}
}

// Current returns the status on display.
func (r *Reporter) Current() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Begin marks a new request and cancels any pending clear.
func (r *Reporter) Begin() { r.transition(Requesting, false) }

// Succeed marks completion and schedules the clear.
func (r *Reporter) Succeed() { r.transition(Success, true) }

// Fail marks a failed remote call. The status stays until the next Begin.
func (r *Reporter) Fail() { r.transition(Error, false) }

// Abort schedules the clear without changing the displayed state. Used when
// a request stops before any remote call.
func (r *Reporter) Abort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.resetLocked()
	r.scheduleLocked()
}

// Stop cancels the pending clear and ignores later transitions.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
	r.stopped = true
}

func (r *Reporter) transition(state State, clear bool) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.resetLocked()
	r.current = render(state, r.now())
	s := r.current
	if clear {
		r.scheduleLocked()
	}
	r.mu.Unlock()
	r.publish(s)
}

func (r *Reporter) resetLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reporter) scheduleLocked() {
	gen := r.gen
	r.timer = r.afterFunc(r.delay, func() { r.clear(gen) })
}

func (r *Reporter) clear(gen uint64) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.mu.Lock()
	if r.stopped || r.gen != gen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.current = render(Idle, r.now())
	s := r.current
	r.mu.Unlock()
	r.publish(s)
}

func (r *Reporter) publish(s Status) {
	if r.publisher != nil {
		r.publisher.Publish(r.nodeID, s)
	}
}
