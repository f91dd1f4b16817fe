// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/channel"
	"github.com/evochora/streamline/internal/pipeline/service"
)

// ChannelHandle is the non-generic handle the registry returns for a built
// channel. The orchestrator never needs to know a channel's element type
// directly; only the service factory that declared a port's expected
// message type does, via a type assertion on NewAttachment's result.
type ChannelHandle interface {
	Name() string
	Capacity() int
	Depth() int
	// NewAttachment builds a binding for serviceName's port, attached to
	// this channel in the given direction. The concrete return type is
	// *binding.Attachment[T] for this handle's element type T; it also
	// satisfies binding.Binding directly, so callers that only need
	// bookkeeping (e.g. registering with the metrics collector) don't need
	// to know T either.
	NewAttachment(serviceName, port string, direction binding.Direction, lc *service.Lifecycle) any
}

// typedChannelHandle adapts a *channel.Channel[T] to ChannelHandle.
type typedChannelHandle[T any] struct {
	ch *channel.Channel[T]
}

// NewChannelHandle wraps an already-constructed channel. Exported so a
// channel factory that needs custom construction logic (rather than the
// bare NewChannelFactory below) can still produce a conforming handle.
func NewChannelHandle[T any](ch *channel.Channel[T]) ChannelHandle {
	return &typedChannelHandle[T]{ch: ch}
}

func (h *typedChannelHandle[T]) Name() string  { return h.ch.Name() }
func (h *typedChannelHandle[T]) Capacity() int { return h.ch.Capacity() }
func (h *typedChannelHandle[T]) Depth() int    { return h.ch.Depth() }

func (h *typedChannelHandle[T]) NewAttachment(serviceName, port string, direction binding.Direction, lc *service.Lifecycle) any {
	return binding.NewAttachment[T](serviceName, port, h.ch.Name(), direction, h.ch, lc)
}

// NewChannelFactory returns a ChannelFactory for element type T, reading a
// capacity option the way every built-in channel class does. Registering
// one of these per message type (tick, context, or a test's own element
// type) is the whole of what the registry-of-constructors design note asks
// for: no reflective instantiation, one factory closure per className.
func NewChannelFactory[T any]() ChannelFactory {
	return func(name string, opts *OptionsView) (ChannelHandle, error) {
		capacity := opts.GetInt("capacity", 0)
		ch, err := channel.New[T](name, capacity)
		if err != nil {
			return nil, err
		}
		return &typedChannelHandle[T]{ch: ch}, nil
	}
}
