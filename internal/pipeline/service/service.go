// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package service implements the lifecycle state machine and cooperative
// pause/resume gate shared by every pipeline service.
package service

import (
	"context"
	"fmt"
	"sync"
)

// State is one of the four lifecycle states a service can be in.
type State int

const (
	Stopped State = iota
	Running
	Paused
	Error
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logic is the contract a concrete service implements. Run is called once
// per start and must honor ctx cancellation and lc's pause gate at every
// cooperative suspension point (channel read/write, batch boundary).
type Logic interface {
	Run(ctx context.Context, lc *Lifecycle) error
}

// Lifecycle owns a service's state machine and its pause/resume gate. A
// binding calls WaitIfPaused before every channel operation so pause takes
// effect at exactly the read/write suspension points, without the
// service's own loop needing to poll a flag.
type Lifecycle struct {
	name string

	mu    sync.Mutex
	state State

	// resumeCh is closed (and replaced) to wake goroutines parked in
	// WaitIfPaused when resume() is called. A fresh channel is installed
	// each time the service re-enters PAUSED.
	resumeCh chan struct{}
}

// NewLifecycle creates a Lifecycle for the named service, initial state
// STOPPED.
func NewLifecycle(name string) *Lifecycle {
	return &Lifecycle{
		name:     name,
		state:    Stopped,
		resumeCh: closedChan(),
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Name returns the owning service's name.
func (lc *Lifecycle) Name() string { return lc.name }

// State returns the current lifecycle state.
func (lc *Lifecycle) State() State {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// markRunning sets the state to RUNNING from any state. Called internally
// by Runner at Serve entry.
func (lc *Lifecycle) markRunning() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.state = Running
}

// markStopped transitions any state -> STOPPED.
func (lc *Lifecycle) markStopped() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.state = Stopped
}

// MarkError transitions any state -> ERROR, for unrecoverable failures
// (EXHAUSTED, CONTRACT_VIOLATION).
func (lc *Lifecycle) MarkError() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.state = Error
}

// Pause transitions RUNNING -> PAUSED. A no-op outside RUNNING.
func (lc *Lifecycle) Pause() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state != Running {
		return
	}
	lc.state = Paused
	lc.resumeCh = make(chan struct{})
}

// Resume transitions PAUSED -> RUNNING and wakes everything parked on the
// pause gate. A no-op outside PAUSED.
func (lc *Lifecycle) Resume() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.state != Paused {
		return
	}
	lc.state = Running
	close(lc.resumeCh)
}

// WaitIfPaused parks the caller while the service is PAUSED, waking on
// Resume or ctx cancellation. Bindings call this at every channel
// read/write so pause takes effect exactly at the suspension points spec
// §4.4 requires, and throughput during the parked interval is genuinely
// zero rather than merely uncounted.
func (lc *Lifecycle) WaitIfPaused(ctx context.Context) error {
	for {
		lc.mu.Lock()
		if lc.state != Paused {
			lc.mu.Unlock()
			return ctx.Err()
		}
		wake := lc.resumeCh
		lc.mu.Unlock()

		select {
		case <-wake:
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Runner adapts a Logic implementation into suture.Service: it owns the
// Lifecycle, drives the RUNNING transition on entry, and guarantees a
// STOPPED (or ERROR) exit state regardless of how Run returns.
type Runner struct {
	logic Logic
	lc    *Lifecycle
}

// NewRunner pairs logic with a fresh Lifecycle named name.
func NewRunner(name string, logic Logic) *Runner {
	return &Runner{logic: logic, lc: NewLifecycle(name)}
}

// NewRunnerWithLifecycle pairs logic with an already-created lifecycle. The
// orchestrator uses this when a service's bindings must park on the exact
// Lifecycle instance this Runner drives, so a binding's pause gate observes
// the same RUNNING/PAUSED transitions GetPipelineStatus reports.
func NewRunnerWithLifecycle(lc *Lifecycle, logic Logic) *Runner {
	return &Runner{logic: logic, lc: lc}
}

// Lifecycle exposes the Runner's lifecycle handle, e.g. for the
// orchestrator's pause/resume/status calls.
func (r *Runner) Lifecycle() *Lifecycle { return r.lc }

// Serve implements suture.Service.
func (r *Runner) Serve(ctx context.Context) error {
	r.lc.markRunning()

	err := r.logic.Run(ctx, r.lc)

	if err != nil && ctx.Err() == nil {
		// Run returned its own error, not a cancellation: an unrecoverable
		// failure that transitions the lifecycle to ERROR.
		r.lc.MarkError()
		return fmt.Errorf("service %s: %w", r.lc.name, err)
	}

	r.lc.markStopped()
	return ctx.Err()
}

// String implements fmt.Stringer so suture can name the service in logs.
func (r *Runner) String() string { return r.lc.name }
