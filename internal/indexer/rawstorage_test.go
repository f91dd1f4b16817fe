// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/channel"
	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/service"
)

// mockRawStorageProvider records calls so tests can assert the
// context-first ordering invariant.
type mockRawStorageProvider struct {
	mu            sync.Mutex
	initialized   string
	contextWrites []message.Context
	tickWrites    [][]message.Tick
	dlqWrites     [][]message.Tick
}

func (m *mockRawStorageProvider) Initialize(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = runID
	return nil
}

func (m *mockRawStorageProvider) WriteContext(ctx message.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contextWrites = append(m.contextWrites, ctx)
	return nil
}

func (m *mockRawStorageProvider) WriteTicks(batch []message.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickWrites = append(m.tickWrites, append([]message.Tick(nil), batch...))
	return nil
}

func (m *mockRawStorageProvider) WriteTicksToDLQ(batch []message.Tick) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlqWrites = append(m.dlqWrites, append([]message.Tick(nil), batch...))
	return nil
}

func (m *mockRawStorageProvider) Close() error { return nil }

func newCtxAttachment(t *testing.T, capacity int) *binding.Attachment[message.Context] {
	t.Helper()
	ch, err := channel.New[message.Context]("test-context", capacity)
	if err != nil {
		t.Fatalf("channel.New: %v", err)
	}
	lc := service.NewLifecycle("test")
	return binding.NewAttachment[message.Context]("raw-storage-indexer", "context", "test-context", binding.Input, ch, lc)
}

// TestRawStorageIndexer_ContextFirst asserts ticks queued ahead of the
// context message still wait for WriteContext to complete first.
func TestRawStorageIndexer_ContextFirst(t *testing.T) {
	ctxInput := newCtxAttachment(t, 4)
	tickInput := newTickAttachment(t, 128)
	provider := &mockRawStorageProvider{}

	idx := NewRawStorageIndexer("run-x", ctxInput, tickInput, provider, Config{
		BatchSize: 5, BatchTimeoutMs: 50, MaxRetries: 3, RetryBackoffBaseMs: 10, RetryBackoffCapMs: 100,
	})

	background := context.Background()
	for i := uint64(0); i < 5; i++ {
		_ = tickInput.Write(background, tick(i))
	}

	ctx, cancel := context.WithCancel(background)
	done := make(chan error, 1)
	go func() { done <- idx.Run(ctx, nil) }()

	time.Sleep(50 * time.Millisecond)
	provider.mu.Lock()
	ticksBeforeContext := len(provider.tickWrites)
	provider.mu.Unlock()
	if ticksBeforeContext != 0 {
		t.Fatalf("want no tick writes before the context message arrives, got %d", ticksBeforeContext)
	}

	if err := ctxInput.Write(background, message.Context{RunID: "run-x", Payload: []byte("ctx")}); err != nil {
		t.Fatalf("write context: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		provider.mu.Lock()
		n := len(provider.tickWrites)
		provider.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the tick batch to flush")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if provider.initialized != "run-x" {
		t.Errorf("want Initialize(run-x), got %q", provider.initialized)
	}
	if len(provider.contextWrites) != 1 {
		t.Fatalf("want exactly 1 WriteContext call, got %d", len(provider.contextWrites))
	}
	if len(provider.tickWrites) != 1 || len(provider.tickWrites[0]) != 5 {
		t.Fatalf("want exactly 1 WriteTicks call of 5, got %d calls", len(provider.tickWrites))
	}
}
