// Package engine provides the tick-based evacuation loop.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Engine drives the simulation forward one tick at a time.
type Engine struct {
	Tick        uint64        // Last tick run (monotonic, starts at 0)
	MaxTicks    uint64        // Stop after this many ticks; 0 = until Done or Stop
	Interval    time.Duration // Wall-clock time per tick; 0 = as fast as possible
	ReportEvery uint64        // Ticks between OnReport calls; 0 = never

	// Callbacks, populated during setup.
	OnTick   func(tick uint64)
	OnReport func(tick uint64)
	Done     func() bool // checked after every tick

	running atomic.Bool
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		ReportEvery: 60,
	}
}

// Run starts the simulation loop. Blocks until MaxTicks is reached, Done
// reports true, or Stop is called.
func (e *Engine) Run() {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "tick", e.Tick, "max_ticks", e.MaxTicks)

	for e.running.Load() {
		if e.MaxTicks > 0 && e.Tick >= e.MaxTicks {
			break
		}

		start := time.Now()

		e.step()

		if e.Done != nil && e.Done() {
			slog.Info("simulation complete", "tick", e.Tick)
			break
		}

		// Sleep for the remainder of the tick interval.
		if elapsed := time.Since(start); elapsed < e.Interval {
			time.Sleep(e.Interval - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop after the current tick. Safe to call from
// another goroutine.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Running reports whether Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// step advances the simulation by one tick.
func (e *Engine) step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

// SimTime returns the elapsed simulated time after tick ticks of length d,
// as "T+hh:mm:ss".
func SimTime(tick uint64, d time.Duration) string {
	total := time.Duration(tick) * d
	h := int(total / time.Hour)
	m := int(total/time.Minute) % 60
	s := int(total/time.Second) % 60
	return fmt.Sprintf("T+%02d:%02d:%02d", h, m, s)
}
