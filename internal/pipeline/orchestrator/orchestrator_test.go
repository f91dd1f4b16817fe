// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evochora/streamline/internal/config"
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/service"
	"github.com/evochora/streamline/internal/supervisor"
)

type producerLogic struct {
	att *binding.Attachment[int]
}

func (p *producerLogic) Run(ctx context.Context, lc *service.Lifecycle) error {
	for i := 0; i < 100; i++ {
		if err := p.att.Write(ctx, i); err != nil {
			return nil
		}
	}
	return nil
}

type consumerLogic struct {
	att      *binding.Attachment[int]
	received *atomic.Int64
}

func (c *consumerLogic) Run(ctx context.Context, lc *service.Lifecycle) error {
	for {
		_, err := c.att.Read(ctx)
		if err != nil {
			return nil
		}
		c.received.Add(1)
	}
}

func producerConsumerConfig() *config.PipelineConfig {
	return &config.PipelineConfig{
		Channels: map[string]config.ChannelConfig{
			"test-stream": {ClassName: "int-channel", Options: map[string]any{"capacity": 10}},
		},
		Services: map[string]config.ServiceConfig{
			"test-producer": {
				ClassName: "dummy-producer",
				Outputs:   map[string]config.PortAttachment{"out": {"test-stream"}},
			},
			"test-consumer": {
				ClassName: "dummy-consumer",
				Inputs:    map[string]config.PortAttachment{"in": {"test-stream"}},
			},
		},
		StartupSequence: []string{"test-producer", "test-consumer"},
		Metrics:         config.DefaultMetricsConfig(),
	}
}

func newProducerConsumerRegistry(received *atomic.Int64) *Registry {
	r := NewRegistry()
	r.RegisterChannel("int-channel", NewChannelFactory[int]())
	r.RegisterService("dummy-producer", func(name string, opts *OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error) {
		att, ok := outputs["out"][0].(*binding.Attachment[int])
		if !ok {
			return nil, fmt.Errorf("dummy-producer: expected *binding.Attachment[int] on port out")
		}
		return &producerLogic{att: att}, nil
	})
	r.RegisterService("dummy-consumer", func(name string, opts *OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error) {
		att, ok := inputs["in"][0].(*binding.Attachment[int])
		if !ok {
			return nil, fmt.Errorf("dummy-consumer: expected *binding.Attachment[int] on port in")
		}
		return &consumerLogic{att: att, received: received}, nil
	})
	return r
}

// TestOrchestrator_ProducerConsumerHappyPath builds a full topology end to
// end and confirms every message a producer writes reaches the consumer.
func TestOrchestrator_ProducerConsumerHappyPath(t *testing.T) {
	var received atomic.Int64
	o := New(newProducerConsumerRegistry(&received), supervisor.DefaultTreeConfig())

	if err := o.Build(producerConsumerConfig()); err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.StartAll(ctx)

	deadline := time.After(2 * time.Second)
	for received.Load() < 100 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for all 100 messages, got %d", received.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := o.StopAll(time.Second); err != nil {
		t.Fatalf("stopAll: %v", err)
	}
	if got := received.Load(); got != 100 {
		t.Errorf("want 100 received, got %d", got)
	}
}

// TestOrchestrator_PauseResumeGating confirms a paused producer delivers
// nothing downstream while it stays PAUSED.
func TestOrchestrator_PauseResumeGating(t *testing.T) {
	var received atomic.Int64
	o := New(newProducerConsumerRegistry(&received), supervisor.DefaultTreeConfig())

	if err := o.Build(producerConsumerConfig()); err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	o.StartAll(ctx)

	if err := o.Pause("test-producer"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	if got := received.Load(); got != 0 {
		t.Errorf("want 0 received while paused, got %d", got)
	}
	state, err := o.ServiceState("test-producer")
	if err != nil {
		t.Fatalf("serviceState: %v", err)
	}
	if state != service.Paused {
		t.Errorf("want PAUSED, got %s", state)
	}

	if err := o.Resume("test-producer"); err != nil {
		t.Fatalf("resume: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for received.Load() < 100 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for all 100 messages after resume, got %d", received.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := o.StopAll(time.Second); err != nil {
		t.Fatalf("stopAll: %v", err)
	}
}

func TestOrchestrator_Build_UnregisteredChannelClassFails(t *testing.T) {
	o := New(NewRegistry(), supervisor.DefaultTreeConfig())
	cfg := &config.PipelineConfig{
		Channels: map[string]config.ChannelConfig{"x": {ClassName: "no-such-class"}},
		Services: map[string]config.ServiceConfig{},
		Metrics:  config.DefaultMetricsConfig(),
	}
	if err := o.Build(cfg); err == nil {
		t.Fatal("want an error for an unregistered channel class")
	}
}

func TestOrchestrator_Build_UnregisteredServiceClassFails(t *testing.T) {
	o := New(NewRegistry(), supervisor.DefaultTreeConfig())
	cfg := &config.PipelineConfig{
		Services: map[string]config.ServiceConfig{"x": {ClassName: "no-such-class"}},
		Metrics:  config.DefaultMetricsConfig(),
	}
	if err := o.Build(cfg); err == nil {
		t.Fatal("want an error for an unregistered service class")
	}
}

func TestOrchestrator_Build_MissingChannelReferenceFails(t *testing.T) {
	r := NewRegistry()
	r.RegisterService("dummy-consumer", func(name string, opts *OptionsView, inputs, outputs map[string][]any, resources map[string][]any) (service.Logic, error) {
		return &consumerLogic{}, nil
	})
	o := New(r, supervisor.DefaultTreeConfig())
	cfg := &config.PipelineConfig{
		Services: map[string]config.ServiceConfig{
			"test-consumer": {ClassName: "dummy-consumer", Inputs: map[string]config.PortAttachment{"in": {"never-built"}}},
		},
		Metrics: config.DefaultMetricsConfig(),
	}
	if err := o.Build(cfg); err == nil {
		t.Fatal("want an error when a service references a channel that was never built")
	}
}
