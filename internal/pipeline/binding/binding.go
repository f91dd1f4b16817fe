// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package binding implements the decorator that sits between a service and
// a channel. A service never touches a channel directly — only through a
// Binding — so binding is also the only place activity is counted and
// pause is enforced.
package binding

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/evochora/streamline/internal/pipeline/channel"
)

// Direction is exactly one of Input or Output.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "INPUT"
	}
	return "OUTPUT"
}

// State is the binding's logical activity state.
type State int

const (
	Active State = iota
	Waiting
)

func (s State) String() string {
	if s == Active {
		return "ACTIVE"
	}
	return "WAITING"
}

// Binding is the non-generic handle the orchestrator, status reporting, and
// the metrics collector use. None of them need to know the message type
// flowing through a binding — only its wiring and its counters.
type Binding interface {
	ServiceName() string
	Port() string
	Attached() string
	Direction() Direction
	State() State
	// ReadAndResetCount atomically reads and zeroes the activity counter.
	// Called exactly once per metrics window.
	ReadAndResetCount() int64
}

// pauseGate is satisfied by a service's lifecycle handle. Declared locally
// (rather than importing the service package) so pause-gating composes by
// structural typing and binding never depends on service.
type pauseGate interface {
	WaitIfPaused(ctx context.Context) error
}

// Attachment is the generic, typed binding a concrete service uses to move
// messages. It implements Binding for bookkeeping and adds the typed
// Read/Write/TryReadWithDeadline operations.
type Attachment[T any] struct {
	serviceName string
	port        string
	attached    string
	direction   Direction
	ch          *channel.Channel[T]
	gate        pauseGate
	counter     atomic.Int64
}

// NewAttachment builds a binding pairing serviceName's port to ch.
func NewAttachment[T any](serviceName, port, attached string, direction Direction, ch *channel.Channel[T], gate pauseGate) *Attachment[T] {
	return &Attachment[T]{
		serviceName: serviceName,
		port:        port,
		attached:    attached,
		direction:   direction,
		ch:          ch,
		gate:        gate,
	}
}

func (a *Attachment[T]) ServiceName() string    { return a.serviceName }
func (a *Attachment[T]) Port() string           { return a.port }
func (a *Attachment[T]) Attached() string       { return a.attached }
func (a *Attachment[T]) Direction() Direction   { return a.direction }
func (a *Attachment[T]) ReadAndResetCount() int64 { return a.counter.Swap(0) }

// State reports WAITING/ACTIVE, the rule differing by direction: an input
// is WAITING when empty, an output is WAITING when full.
func (a *Attachment[T]) State() State {
	depth, capacity := a.ch.Depth(), a.ch.Capacity()
	switch a.direction {
	case Input:
		if depth == 0 {
			return Waiting
		}
		return Active
	case Output:
		if capacity >= 0 && depth >= capacity {
			return Waiting
		}
		return Active
	default:
		return Active
	}
}

// Read blocks (honoring pause) until a message is available.
func (a *Attachment[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if err := a.gate.WaitIfPaused(ctx); err != nil {
		return zero, err
	}
	msg, err := a.ch.Read(ctx)
	if err != nil {
		return zero, err
	}
	a.counter.Add(1)
	return msg, nil
}

// TryReadWithDeadline honors pause, then waits up to timeout for a message.
func (a *Attachment[T]) TryReadWithDeadline(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	if err := a.gate.WaitIfPaused(ctx); err != nil {
		return zero, false, err
	}
	msg, ok, err := a.ch.TryReadWithDeadline(ctx, timeout)
	if err != nil || !ok {
		return zero, ok, err
	}
	a.counter.Add(1)
	return msg, true, nil
}

// Write blocks (honoring pause) until the message is enqueued.
func (a *Attachment[T]) Write(ctx context.Context, msg T) error {
	if err := a.gate.WaitIfPaused(ctx); err != nil {
		return err
	}
	if err := a.ch.Write(ctx, msg); err != nil {
		return err
	}
	a.counter.Add(1)
	return nil
}

// Channel exposes the underlying channel for introspection (Depth/Capacity).
func (a *Attachment[T]) Channel() *channel.Channel[T] { return a.ch }
