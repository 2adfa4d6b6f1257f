// Package core tracks the lifecycle of a move run.
// This package must NOT import adapter code (cobra, bubbletea, zerolog sinks).
// It should be fully testable without a terminal.
package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState is a stage of a move run.
type RunState string

const (
	RunPending     RunState = "pending"
	RunEnumerating RunState = "enumerating"
	RunScheduling  RunState = "scheduling"
	RunAwaiting    RunState = "awaiting"
	RunCleanup     RunState = "cleanup"
	RunReporting   RunState = "reporting"
	RunDone        RunState = "done"
	RunFailed      RunState = "failed"
)

// transitions lists the legal next states for each state.
var transitions = map[RunState][]RunState{
	RunPending:     {RunEnumerating, RunFailed},
	RunEnumerating: {RunScheduling, RunFailed},
	RunScheduling:  {RunAwaiting, RunReporting},
	RunAwaiting:    {RunCleanup, RunReporting},
	RunCleanup:     {RunDone, RunFailed},
	RunReporting:   {RunFailed},
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == RunDone || s == RunFailed
}

// RunStats are the counters carried on every event.
type RunStats struct {
	Queued  int   `json:"queued"`
	Moved   int   `json:"moved"`
	Failed  int   `json:"failed"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// RunEvent is emitted whenever the run changes state.
type RunEvent struct {
	RunID   string    `json:"runId"`
	Seq     int64     `json:"seq"` // Monotonically increasing sequence number
	From    RunState  `json:"from"`
	State   RunState  `json:"state"`
	Message string    `json:"message,omitempty"`
	Stats   RunStats  `json:"stats"`
	At      time.Time `json:"at"`
}

// RunEmitter receives run events. Adapters (logger, journal, UI) implement it.
type RunEmitter interface {
	EmitRunUpdate(event RunEvent)
}

// Tracker is the single source of truth for a run's state.
type Tracker struct {
	mu      sync.Mutex
	id      string
	state   RunState
	seq     int64
	stats   RunStats
	emitter RunEmitter
	started time.Time
}

// NewTracker creates a Tracker in the pending state. emitter may be nil.
func NewTracker(emitter RunEmitter) *Tracker {
	return &Tracker{
		id:      uuid.NewString(),
		state:   RunPending,
		emitter: emitter,
		started: time.Now(),
	}
}

// ID returns the run id.
func (t *Tracker) ID() string {
	return t.id
}

// State returns the current state.
func (t *Tracker) State() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed returns the time since the tracker was created.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.started)
}

// Transition moves the run to the next state and emits an event. Illegal
// transitions are rejected and leave the state unchanged.
func (t *Tracker) Transition(to RunState, message string) error {
	t.mu.Lock()
	from := t.state
	if !allowed(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("illegal run transition %s -> %s", from, to)
	}
	t.state = to
	t.seq++
	event := RunEvent{
		RunID:   t.id,
		Seq:     t.seq,
		From:    from,
		State:   to,
		Message: message,
		Stats:   t.stats,
		At:      time.Now(),
	}
	emitter := t.emitter
	t.mu.Unlock()

	if emitter != nil {
		emitter.EmitRunUpdate(event)
	}
	return nil
}

// Update applies fn to the run counters.
func (t *Tracker) Update(fn func(*RunStats)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.stats)
}

// Stats returns a copy of the counters.
func (t *Tracker) Stats() RunStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

func allowed(from, to RunState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// MultiEmitter broadcasts events to multiple emitters
type MultiEmitter struct {
	mu       sync.Mutex
	emitters []RunEmitter
}

// NewMultiEmitter creates a MultiEmitter, skipping nil emitters.
func NewMultiEmitter(emitters ...RunEmitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		m.Add(e)
	}
	return m
}

// Add adds an emitter to the multi-emitter
func (m *MultiEmitter) Add(emitter RunEmitter) {
	if emitter == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitters = append(m.emitters, emitter)
}

// EmitRunUpdate broadcasts the event to all registered emitters
func (m *MultiEmitter) EmitRunUpdate(event RunEvent) {
	m.mu.Lock()
	emitters := make([]RunEmitter, len(m.emitters))
	copy(emitters, m.emitters)
	m.mu.Unlock()

	for _, e := range emitters {
		e.EmitRunUpdate(event)
	}
}

// EmitterFunc adapts a function to RunEmitter.
type EmitterFunc func(RunEvent)

func (f EmitterFunc) EmitRunUpdate(event RunEvent) {
	f(event)
}
