// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	if _, err := New[int]("c", 0); !perr.Is(err, perr.InvalidConfig) {
		t.Fatalf("capacity 0: expected INVALID_CONFIG, got %v", err)
	}
	if _, err := New[int]("c", -1); !perr.Is(err, perr.InvalidConfig) {
		t.Fatalf("capacity -1: expected INVALID_CONFIG, got %v", err)
	}
}

func TestDepthCapacityInvariant(t *testing.T) {
	ch, err := New[int]("c", 4)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := ch.Write(ctx, i); err != nil {
			t.Fatal(err)
		}
		if ch.Depth() < 0 || ch.Depth() > ch.Capacity() {
			t.Fatalf("depth %d out of [0,%d]", ch.Depth(), ch.Capacity())
		}
	}
	if ch.Depth() != 4 {
		t.Fatalf("want depth 4, got %d", ch.Depth())
	}
}

func TestCapacityOneSerializesStrictly(t *testing.T) {
	ch, err := New[int]("c", 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := ch.Write(ctx, 1); err != nil {
		t.Fatal(err)
	}

	wrote := make(chan struct{})
	go func() {
		_ = ch.Write(ctx, 2)
		close(wrote)
	}()

	select {
	case <-wrote:
		t.Fatal("second write completed before the first was drained")
	case <-time.After(20 * time.Millisecond):
	}

	msg, err := ch.Read(ctx)
	if err != nil || msg != 1 {
		t.Fatalf("want (1, nil), got (%d, %v)", msg, err)
	}

	select {
	case <-wrote:
	case <-time.After(time.Second):
		t.Fatal("second write never completed after drain")
	}
}

func TestReadWriteFIFOOrder(t *testing.T) {
	ch, err := New[int]("c", 10)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := ch.Write(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 10; i++ {
		msg, err := ch.Read(ctx)
		if err != nil || msg != i {
			t.Fatalf("want (%d, nil), got (%d, %v)", i, msg, err)
		}
	}
}

func TestWriteCancelledOnContextDone(t *testing.T) {
	ch, err := New[int]("c", 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	if err := ch.Write(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- ch.Write(ctx, 2) }()
	cancel()

	select {
	case err := <-done:
		if !perr.Is(err, perr.Cancelled) {
			t.Fatalf("want CANCELLED, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("write did not unblock on cancellation")
	}
}

func TestReadCancelledOnContextDone(t *testing.T) {
	ch, err := New[int]("c", 1)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := ch.Read(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !perr.Is(err, perr.Cancelled) {
			t.Fatalf("want CANCELLED, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not unblock on cancellation")
	}
}

func TestTryReadWithDeadline_TimesOutCleanly(t *testing.T) {
	ch, err := New[int]("c", 1)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	_, ok, err := ch.TryReadWithDeadline(context.Background(), 30*time.Millisecond)
	if err != nil {
		t.Fatalf("timeout must not be an error, got %v", err)
	}
	if ok {
		t.Fatal("want ok=false on timeout")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("returned before the deadline elapsed")
	}
}

func TestTryReadWithDeadline_ReturnsAvailableMessage(t *testing.T) {
	ch, err := New[int]("c", 1)
	if err != nil {
		t.Fatal(err)
	}
	_ = ch.Write(context.Background(), 42)

	msg, ok, err := ch.TryReadWithDeadline(context.Background(), time.Second)
	if err != nil || !ok || msg != 42 {
		t.Fatalf("want (42, true, nil), got (%d, %v, %v)", msg, ok, err)
	}
}

// TestProducerConsumerHappyPath is the end-to-end happy path: a capacity-10
// channel, a producer writing 0..99, a consumer reading until cancelled.
func TestProducerConsumerHappyPath(t *testing.T) {
	ch, err := New[int]("test-stream", 10)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if err := ch.Write(ctx, i); err != nil {
				return
			}
		}
	}()

	consumerDone := make(chan struct{})
	go func() {
		defer wg.Done()
		for {
			_, err := ch.Read(ctx)
			if err != nil {
				close(consumerDone)
				return
			}
			received++
			if received == 100 {
				close(consumerDone)
				return
			}
		}
	}()

	select {
	case <-consumerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never reached 100 messages")
	}
	cancel()
	wg.Wait()

	if received != 100 {
		t.Fatalf("want received=100, got %d", received)
	}
	if ch.Depth() != 0 {
		t.Fatalf("want final depth=0, got %d", ch.Depth())
	}
}
