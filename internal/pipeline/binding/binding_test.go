// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package binding

import (
	"context"
	"testing"

	"github.com/evochora/streamline/internal/pipeline/channel"
)

// alwaysRunning is a no-op pause gate for bindings in tests that don't
// exercise pause/resume.
type alwaysRunning struct{}

func (alwaysRunning) WaitIfPaused(ctx context.Context) error { return ctx.Err() }

func TestInputBindingState(t *testing.T) {
	ch, err := channel.New[int]("c", 2)
	if err != nil {
		t.Fatal(err)
	}
	b := NewAttachment("svc", "in", "c", Input, ch, alwaysRunning{})

	if got := b.State(); got != Waiting {
		t.Fatalf("empty input channel: want WAITING, got %v", got)
	}
	if err := b.Write(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	// Write bypasses the binding's own direction semantics here only to
	// populate the channel for the read-side assertion below.
	if got := b.State(); got != Active {
		t.Fatalf("non-empty input channel: want ACTIVE, got %v", got)
	}
}

func TestOutputBindingState(t *testing.T) {
	ch, err := channel.New[int]("c", 1)
	if err != nil {
		t.Fatal(err)
	}
	b := NewAttachment("svc", "out", "c", Output, ch, alwaysRunning{})

	if got := b.State(); got != Active {
		t.Fatalf("empty output channel: want ACTIVE, got %v", got)
	}
	if err := b.Write(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if got := b.State(); got != Waiting {
		t.Fatalf("full output channel: want WAITING, got %v", got)
	}
}

func TestCounterResetsAtomically(t *testing.T) {
	ch, err := channel.New[int]("c", 10)
	if err != nil {
		t.Fatal(err)
	}
	b := NewAttachment("svc", "out", "c", Output, ch, alwaysRunning{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := b.Write(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	if got := b.ReadAndResetCount(); got != 5 {
		t.Fatalf("want counter=5, got %d", got)
	}
	if got := b.ReadAndResetCount(); got != 0 {
		t.Fatalf("want counter reset to 0, got %d", got)
	}
}

func TestIdentity(t *testing.T) {
	ch, err := channel.New[int]("my-channel", 1)
	if err != nil {
		t.Fatal(err)
	}
	b := NewAttachment("my-service", "my-port", "my-channel", Input, ch, alwaysRunning{})

	if b.ServiceName() != "my-service" || b.Port() != "my-port" || b.Attached() != "my-channel" || b.Direction() != Input {
		t.Fatalf("unexpected identity: %+v", b)
	}
}
