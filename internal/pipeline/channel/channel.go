// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package channel implements the pipeline's bounded, typed, in-process FIFO
// transport between services.
package channel

import (
	"context"
	"time"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

// Channel is a bounded FIFO queue of messages of a single element type T.
// It is backed by a native Go channel, which already gives FIFO ordering,
// blocking writes while full, and blocking reads while empty.
type Channel[T any] struct {
	name     string
	capacity int
	buf      chan T
}

// New creates a channel with the given logical name and capacity. Capacity
// must be a positive integer; -1 ("unbounded") is rejected since nothing in
// this implementation supports an unbounded channel.
func New[T any](name string, capacity int) (*Channel[T], error) {
	if capacity <= 0 {
		return nil, perr.New(perr.InvalidConfig, "channel "+name+": capacity must be a positive integer")
	}
	return &Channel[T]{
		name:     name,
		capacity: capacity,
		buf:      make(chan T, capacity),
	}, nil
}

// Name returns the channel's logical name.
func (c *Channel[T]) Name() string { return c.name }

// Write blocks while the channel is full, then enqueues msg. Returns
// CANCELLED if ctx is done before space becomes available.
func (c *Channel[T]) Write(ctx context.Context, msg T) error {
	select {
	case c.buf <- msg:
		return nil
	case <-ctx.Done():
		return perr.Wrap(perr.Cancelled, "channel "+c.name+": write cancelled", ctx.Err())
	}
}

// Read blocks while the channel is empty, then dequeues the next message in
// FIFO order. Returns CANCELLED if ctx is done before a message arrives.
func (c *Channel[T]) Read(ctx context.Context) (T, error) {
	var zero T
	select {
	case msg := <-c.buf:
		return msg, nil
	case <-ctx.Done():
		return zero, perr.Wrap(perr.Cancelled, "channel "+c.name+": read cancelled", ctx.Err())
	}
}

// TryReadWithDeadline waits up to timeout for a message. ok is false (with a
// nil error) on timeout — this is the normal, expected outcome a batching
// service uses to notice its flush deadline, not a failure.
func (c *Channel[T]) TryReadWithDeadline(ctx context.Context, timeout time.Duration) (msg T, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg = <-c.buf:
		return msg, true, nil
	case <-timer.C:
		var zero T
		return zero, false, nil
	case <-ctx.Done():
		var zero T
		return zero, false, perr.Wrap(perr.Cancelled, "channel "+c.name+": read cancelled", ctx.Err())
	}
}

// Depth returns the number of messages currently queued. Non-blocking.
func (c *Channel[T]) Depth() int { return len(c.buf) }

// Capacity returns the channel's declared capacity.
func (c *Channel[T]) Capacity() int { return c.capacity }
