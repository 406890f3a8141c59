// Package engine provides the tick-based simulation loop and the Simulation
// that wires the ecosystem components to it.
package engine

import (
	"log/slog"
	"sync"
	"time"
)

// Engine drives the simulation forward. It keeps its own simulated clock that
// advances one Interval per tick, so Speed scales every component that reads
// Now at once.
type Engine struct {
	Interval time.Duration // simulated time per tick (default 1 second)

	// OnTick runs every tick, before any periodic job.
	OnTick func(tick uint64, now time.Time)

	mu      sync.Mutex
	tick    uint64
	speed   float64 // 1.0 = real-time, 0 = paused
	clock   time.Time
	jobs    []*job
	running bool
	stop    chan struct{}
}

// job is a named callback that runs whenever the simulated clock passes its
// next due time.
type job struct {
	name   string
	period time.Duration
	next   time.Time
	fn     func(now time.Time)
}

// NewEngine creates a paused-until-Run engine whose clock starts at start.
func NewEngine(start time.Time) *Engine {
	return &Engine{
		Interval: time.Second,
		speed:    1.0,
		clock:    start,
		stop:     make(chan struct{}),
	}
}

// Every registers fn to run once per period of simulated time.
func (e *Engine) Every(name string, period time.Duration, fn func(now time.Time)) {
	if period <= 0 {
		slog.Warn("periodic job disabled", "job", name)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, &job{name: name, period: period, next: e.clock.Add(period), fn: fn})
}

// Now returns the simulated time.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

// Tick returns the number of ticks run so far.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// SetTick sets the tick counter, so a restarted world continues numbering
// from where the previous run stopped. The next Step runs tick+1.
func (e *Engine) SetTick(tick uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tick = tick
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero or less pauses the loop.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = max(speed, 0)
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the simulation loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for {
		speed := e.Speed()
		wait := 100 * time.Millisecond // paused: check again shortly
		if speed > 0 {
			start := time.Now()
			e.Step()
			wait = time.Duration(float64(e.Interval)/speed) - time.Since(start)
		}

		select {
		case <-e.stop:
			e.mu.Lock()
			e.running = false
			e.mu.Unlock()
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return
		case <-time.After(max(wait, 0)):
		}
	}
}

// Stop halts the simulation loop. It is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
}

// Step advances the simulation by one tick and runs every job that came due.
func (e *Engine) Step() {
	e.mu.Lock()
	e.tick++
	e.clock = e.clock.Add(e.Interval)
	tick, now := e.tick, e.clock

	var due []*job
	for _, j := range e.jobs {
		if now.Before(j.next) {
			continue
		}
		due = append(due, j)
		j.next = j.next.Add(j.period)
		if !now.Before(j.next) {
			// Fell behind, e.g. after a long pause in the host.
			j.next = now.Add(j.period)
		}
	}
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(tick, now)
	}
	for _, j := range due {
		j.fn(now)
	}
}
