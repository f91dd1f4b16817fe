// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package binding

import (
	"context"
	"time"
)

// Source is the read-side subset of Attachment's API. A consumer that only
// ever reads from an input port depends on Source rather than a concrete
// *Attachment[T], so it works the same whether that port has one channel
// wired to it or several.
type Source[T any] interface {
	Read(ctx context.Context) (T, error)
	TryReadWithDeadline(ctx context.Context, timeout time.Duration) (T, bool, error)
}

// pollSlice bounds how long FanIn waits on any single attachment before
// rotating to the next, so no one channel can starve the others of a
// chance to be polled within the caller's overall timeout.
const pollSlice = 10 * time.Millisecond

// FanIn round-robins reads across every attachment wired to one input
// port, in the insertion order the pipeline file declared them, so a
// config that fans multiple channels into a single port drains all of
// them instead of silently reading only the first.
type FanIn[T any] struct {
	atts []*Attachment[T]
	next int
}

// NewFanIn builds a FanIn over atts, read starting at index 0.
func NewFanIn[T any](atts []*Attachment[T]) *FanIn[T] {
	return &FanIn[T]{atts: atts}
}

// TryReadWithDeadline polls each attachment in rotation, starting from the
// one after whichever yielded last time, until one returns a message or
// timeout elapses. Honors pause and cancellation through the underlying
// attachments' own TryReadWithDeadline.
func (f *FanIn[T]) TryReadWithDeadline(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T
	n := len(f.atts)
	if n == 0 {
		return zero, false, nil
	}
	if n == 1 {
		return f.atts[0].TryReadWithDeadline(ctx, timeout)
	}

	deadline := time.Now().Add(timeout)
	for {
		for i := 0; i < n; i++ {
			idx := (f.next + i) % n
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return zero, false, nil
			}
			slice := pollSlice
			if remaining < slice {
				slice = remaining
			}
			msg, ok, err := f.atts[idx].TryReadWithDeadline(ctx, slice)
			if err != nil {
				return zero, false, err
			}
			if ok {
				f.next = (idx + 1) % n
				return msg, true, nil
			}
		}
		if time.Now().After(deadline) {
			return zero, false, nil
		}
	}
}

// Read blocks (honoring pause and round-robin fairness) until one of the
// attachments yields a message.
func (f *FanIn[T]) Read(ctx context.Context) (T, error) {
	if len(f.atts) == 1 {
		return f.atts[0].Read(ctx)
	}
	const blockSlice = 100 * time.Millisecond
	for {
		msg, ok, err := f.TryReadWithDeadline(ctx, blockSlice)
		if err != nil {
			var zero T
			return zero, err
		}
		if ok {
			return msg, nil
		}
	}
}
