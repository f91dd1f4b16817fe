// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics implements the periodic metrics collector: a single
// scheduled task that reads-and-resets every binding's activity
// counter, turns it into a rate, and stores the result in a concurrent map
// replaced atomically each tick. A failure collecting one binding is
// logged and never affects the others.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/binding"
)

var (
	bindingRateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamline_binding_messages_per_second",
			Help: "Messages per second observed on a service binding in the last collection window.",
		},
		[]string{"service", "port", "channel", "direction"},
	)

	wrapperMetricGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamline_resource_wrapper_metric",
			Help: "Capability wrapper metrics map, exported by metric name.",
		},
		[]string{"resource", "metric"},
	)
)

// BindingRate is one binding's state as of the latest collection window.
type BindingRate struct {
	ServiceName       string
	Port              string
	Channel           string
	Direction         binding.Direction
	MessagesPerSecond float64
	Timestamp         time.Time
}

// key identifies a binding for the concurrent rate map.
type key struct {
	service, port, channel string
	direction              binding.Direction
}

// Source is a resource wrapper (or anything else) exposing a metrics map
// to be scraped every collection window: numeric values keyed by string
// names.
type Source interface {
	Name() string
	Metrics() map[string]float64
	ErrorCount() int64
}

// Collector is the orchestrator's single scheduled metrics task. It
// implements suture.Service so it supervises like any other long-running
// component, isolated from the services whose bindings it reads.
type Collector struct {
	interval time.Duration

	mu       sync.RWMutex
	bindings []binding.Binding
	sources  []Source
	rates    map[key]BindingRate
}

// NewCollector creates a collector with the given window interval.
func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		interval: interval,
		rates:    make(map[key]BindingRate),
	}
}

// Register adds a binding to be sampled every window. Called once per
// binding at orchestrator build time, before the collector starts.
func (c *Collector) Register(b binding.Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, b)
}

// RegisterSource adds a metrics Source (typically a capability wrapper)
// to be scraped every window.
func (c *Collector) RegisterSource(s Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, s)
}

// Serve implements suture.Service: runs the collection loop until ctx is
// cancelled. The collector's absence (it is never started) only zeroes the
// rate column — it never affects service correctness.
func (c *Collector) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collectOnce()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Collector) String() string { return "metrics-collector" }

// collectOnce reads-and-resets every binding's counter and every source's
// metrics map, replacing the stored snapshots atomically. A single
// binding or source failing (panicking) is isolated from the rest.
func (c *Collector) collectOnce() {
	c.mu.RLock()
	bindings := append([]binding.Binding(nil), c.bindings...)
	sources := append([]Source(nil), c.sources...)
	c.mu.RUnlock()

	windowSeconds := c.interval.Seconds()
	now := time.Now()
	next := make(map[key]BindingRate, len(bindings))

	for _, b := range bindings {
		collectBindingSafely(b, windowSeconds, now, next)
	}

	c.mu.Lock()
	c.rates = next
	c.mu.Unlock()

	for _, s := range sources {
		exportSourceSafely(s)
	}
}

// collectBindingSafely isolates a panic in one binding's accessors so it
// never prevents the rest of the window's collection from completing.
func collectBindingSafely(b binding.Binding, windowSeconds float64, now time.Time, next map[key]BindingRate) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Interface("panic", r).Msg("metrics collector: binding read failed")
		}
	}()

	count := b.ReadAndResetCount()
	rate := float64(count) / windowSeconds

	k := key{service: b.ServiceName(), port: b.Port(), channel: b.Attached(), direction: b.Direction()}
	next[k] = BindingRate{
		ServiceName:       b.ServiceName(),
		Port:              b.Port(),
		Channel:           b.Attached(),
		Direction:         b.Direction(),
		MessagesPerSecond: rate,
		Timestamp:         now,
	}
	bindingRateGauge.WithLabelValues(b.ServiceName(), b.Port(), b.Attached(), b.Direction().String()).Set(rate)
}

func exportSourceSafely(s Source) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Str("resource", s.Name()).Interface("panic", r).Msg("metrics collector: source export failed")
		}
	}()
	for metricName, value := range s.Metrics() {
		wrapperMetricGauge.WithLabelValues(s.Name(), metricName).Set(value)
	}
}

// Snapshot returns the collector's most recent rate for every binding, in
// no particular order.
func (c *Collector) Snapshot() []BindingRate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]BindingRate, 0, len(c.rates))
	for _, r := range c.rates {
		out = append(out, r)
	}
	return out
}

// RateFor looks up the latest rate for one binding, used by
// getPipelineStatus to populate messagesPerSecond.
func (c *Collector) RateFor(serviceName, port, channelName string, direction binding.Direction) (BindingRate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[key{service: serviceName, port: port, channel: channelName, direction: direction}]
	return r, ok
}
