// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/evochora/streamline/internal/pipeline/binding"
)

// fakeBinding is a minimal binding.Binding test double.
type fakeBinding struct {
	service, port, attached string
	direction                binding.Direction
	counter                  atomic.Int64
}

func (f *fakeBinding) ServiceName() string           { return f.service }
func (f *fakeBinding) Port() string                  { return f.port }
func (f *fakeBinding) Attached() string              { return f.attached }
func (f *fakeBinding) Direction() binding.Direction  { return f.direction }
func (f *fakeBinding) State() binding.State          { return binding.Active }
func (f *fakeBinding) ReadAndResetCount() int64      { return f.counter.Swap(0) }

type fakeSource struct {
	name    string
	metrics map[string]float64
}

func (s *fakeSource) Name() string                  { return s.name }
func (s *fakeSource) Metrics() map[string]float64   { return s.metrics }
func (s *fakeSource) ErrorCount() int64              { return 0 }

func TestCollector_RateComputation(t *testing.T) {
	c := NewCollector(100 * time.Millisecond)
	fb := &fakeBinding{service: "producer", port: "out", attached: "test-stream", direction: binding.Output}
	fb.counter.Store(10)
	c.Register(fb)

	c.collectOnce()

	rate, ok := c.RateFor("producer", "out", "test-stream", binding.Output)
	if !ok {
		t.Fatal("want a recorded rate")
	}
	if rate.MessagesPerSecond != 100 {
		t.Fatalf("want rate=100 (10 msgs / 0.1s), got %v", rate.MessagesPerSecond)
	}

	// The counter must have been reset.
	if fb.counter.Load() != 0 {
		t.Fatalf("want counter reset to 0, got %d", fb.counter.Load())
	}
}

func TestCollector_SourceIsolationFromPanickingBinding(t *testing.T) {
	c := NewCollector(time.Second)
	c.Register(&panickingBinding{})
	good := &fakeBinding{service: "good", port: "out", attached: "c", direction: binding.Output}
	good.counter.Store(5)
	c.Register(good)

	c.collectOnce() // must not panic despite the first binding failing

	if _, ok := c.RateFor("good", "out", "c", binding.Output); !ok {
		t.Fatal("want the second binding's rate recorded despite the first panicking")
	}
}

type panickingBinding struct{}

func (panickingBinding) ServiceName() string          { panic("boom") }
func (panickingBinding) Port() string                 { return "" }
func (panickingBinding) Attached() string             { return "" }
func (panickingBinding) Direction() binding.Direction { return binding.Output }
func (panickingBinding) State() binding.State         { return binding.Active }
func (panickingBinding) ReadAndResetCount() int64     { return 0 }

func TestCollector_ExportsRegisteredSources(t *testing.T) {
	c := NewCollector(time.Second)
	c.RegisterSource(&fakeSource{name: "duckdb-metadata", metrics: map[string]float64{"error_count": 0, "connection_cached": 1}})

	c.collectOnce() // must not panic while scraping the source
}

func TestCollector_PausedServiceContributesZero(t *testing.T) {
	c := NewCollector(100 * time.Millisecond)
	fb := &fakeBinding{service: "paused-svc", port: "out", attached: "c", direction: binding.Output}
	c.Register(fb) // never incremented, as if paused for the whole window

	c.collectOnce()

	rate, ok := c.RateFor("paused-svc", "out", "c", binding.Output)
	if !ok {
		t.Fatal("want a recorded rate")
	}
	if rate.MessagesPerSecond != 0 {
		t.Fatalf("want rate=0 for a paused service, got %v", rate.MessagesPerSecond)
	}
}
