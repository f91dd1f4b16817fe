// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTreeConstruction(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
}

func TestTreeConstruction_AppliesDefaultsForZeroConfig(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{})
	if tree.config.FailureThreshold != 5.0 {
		t.Errorf("want default FailureThreshold 5.0, got %f", tree.config.FailureThreshold)
	}
	if tree.config.FailureDecay != 30.0 {
		t.Errorf("want default FailureDecay 30.0, got %f", tree.config.FailureDecay)
	}
	if tree.config.FailureBackoff != 15*time.Second {
		t.Errorf("want default FailureBackoff 15s, got %v", tree.config.FailureBackoff)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("want default ShutdownTimeout 10s, got %v", tree.config.ShutdownTimeout)
	}
}

func TestTree_StartsAndStopsGracefully(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   100 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	tree.AddService(NewMockService("mock-service-a"))
	tree.AddMetricsService(NewMockService("mock-collector"))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- tree.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("tree did not shut down in time")
	}
}

func TestTree_ServeBackgroundReturnsChannel(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := tree.ServeBackground(ctx)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("did not receive from error channel")
	}
}

func TestTree_ServicesLayerIsStarted(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	svc := NewMockService("indexer-1")
	tree.AddService(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go tree.Serve(ctx)
	time.Sleep(100 * time.Millisecond)

	if svc.StartCount() < 1 {
		t.Error("service was not started")
	}
}

func TestTree_MetricsLayerIsStarted(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	collector := NewMockService("collector")
	tree.AddMetricsService(collector)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go tree.Serve(ctx)
	time.Sleep(100 * time.Millisecond)

	if collector.StartCount() < 1 {
		t.Error("metrics collector was not started")
	}
}

func TestTree_FailingServiceDoesNotStarveMetricsLayer(t *testing.T) {
	tree := NewTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failingSvc := NewMockService("failing-indexer")
	failingSvc.SetFailCount(2)

	collector := NewMockService("collector")

	tree.AddService(failingSvc)
	tree.AddMetricsService(collector)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go tree.Serve(ctx)
	time.Sleep(200 * time.Millisecond)

	if failingSvc.StartCount() < 3 {
		t.Errorf("want at least 3 starts for the failing service, got %d", failingSvc.StartCount())
	}
	if collector.StartCount() < 1 {
		t.Error("metrics collector was not started while the services layer was restarting")
	}
}

func TestDefaultTreeConfig(t *testing.T) {
	config := DefaultTreeConfig()

	if config.FailureThreshold != 5.0 {
		t.Errorf("want FailureThreshold 5.0, got %f", config.FailureThreshold)
	}
	if config.FailureDecay != 30.0 {
		t.Errorf("want FailureDecay 30.0, got %f", config.FailureDecay)
	}
	if config.FailureBackoff != 15*time.Second {
		t.Errorf("want FailureBackoff 15s, got %v", config.FailureBackoff)
	}
	if config.ShutdownTimeout != 10*time.Second {
		t.Errorf("want ShutdownTimeout 10s, got %v", config.ShutdownTimeout)
	}
}
