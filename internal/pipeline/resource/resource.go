// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package resource defines the capability contracts and the wrapper base
// every concrete resource (internal/db, internal/rawstorage) embeds:
// connection-lifecycle bookkeeping, a bounded error log, and a metrics map
// — composition over a narrow interface set rather than an inheritance-heavy
// base-wrapper hierarchy.
package resource

import (
	"container/list"
	"sync"
	"time"

	"github.com/evochora/streamline/internal/pipeline/message"
)

// MaxErrors bounds the wrapper error log.
const MaxErrors = 100

// Metadata is the simulation metadata record.
type Metadata struct {
	RunID            string
	StartTimeMs      int64
	InitialSeed      int64
	SamplingInterval int
	Environment      EnvironmentShape
}

// EnvironmentShape describes an environment's dimensionality.
type EnvironmentShape struct {
	Dimensions int
	Shape      []int
	Toroidal   []bool
}

// ResourceContext identifies who is asking for a capability wrapper and
// through which port, passed to GetWrappedResource at orchestrator build
// time.
type ResourceContext struct {
	ServiceName string
	PortName    string
	Capability  string
}

// Resource is a shared, stateful collaborator offering one or more
// capabilities. A concrete resource is built once by a registry
// constructor; individual services receive wrappers of it, never the
// resource itself.
type Resource interface {
	// GetWrappedResource returns a capability wrapper scoped to ctx. The
	// returned value must be type-asserted by the orchestrator against the
	// capability interface the requesting service declares.
	GetWrappedResource(ctx ResourceContext) (any, error)
	// Close releases anything the resource itself owns (e.g. a shared
	// connection pool). Idempotent.
	Close() error
}

// MetadataReader reads the simulation metadata record.
type MetadataReader interface {
	GetMetadata(runID string) (Metadata, error)
	HasMetadata(runID string) (bool, error)
	GetRunIDInCurrentSchema() (string, error)
}

// MetadataWriter writes the simulation metadata record exactly once per run.
type MetadataWriter interface {
	InsertMetadata(record Metadata) error
}

// EnvironmentDataWriter persists environment-cell batches, idempotent by
// tick number.
type EnvironmentDataWriter interface {
	WriteEnvironmentCells(batch []message.Tick, envProps EnvironmentShape) error
}

// OrganismDataWriter persists organism-state batches, idempotent by
// (tickNumber, organismId).
type OrganismDataWriter interface {
	WriteOrganismStates(batch []message.Tick, envProps EnvironmentShape) error
}

// RawStorageProvider persists raw, length-delimited byte payloads.
type RawStorageProvider interface {
	Initialize(runID string) error
	WriteContext(ctx message.Context) error
	WriteTicks(batch []message.Tick) error
	WriteTicksToDLQ(batch []message.Tick) error
	Close() error
}

// SimulationRunSetter is implemented by every capability wrapper: no data
// method may be called before setSimulationRun.
type SimulationRunSetter interface {
	SetSimulationRun(runID string) error
}

// WrapperError is one structured entry in a wrapper's bounded error log.
type WrapperError struct {
	Timestamp time.Time
	Code      string
	Message   string
	Details   string
}

// Base is embedded by every concrete capability wrapper. It provides the
// bounded error log, the base metrics map entries (error_count,
// connection_cached), and the closed/runId bookkeeping every wrapper needs
// regardless of which capability it implements.
type Base struct {
	mu sync.Mutex

	closed bool
	runID  string

	errOrder *list.List // oldest-first list of *WrapperError
	errCount int

	connectionCached bool
}

// NewBase creates an unopened, unclosed wrapper base.
func NewBase() *Base {
	return &Base{errOrder: list.New()}
}

// RunID returns the currently bound run, or "" if none is set yet.
func (b *Base) RunID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.runID
}

// SetRunID records runID as the active run. Returns true if this call
// changed the run (the caller should then (re)create the schema).
func (b *Base) SetRunID(runID string) (changed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runID == runID {
		return false
	}
	b.runID = runID
	return true
}

// MarkConnectionCached records whether a connection is currently cached,
// for the connection_cached base metric.
func (b *Base) MarkConnectionCached(cached bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectionCached = cached
}

// Close marks the wrapper closed. Idempotent: returns true only the first
// time it transitions from open to closed, so callers release the cached
// connection exactly once.
func (b *Base) Close() (firstClose bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.closed = true
	return true
}

// Closed reports whether Close has already been called.
func (b *Base) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// RecordError appends a structured error to the bounded log, evicting the
// oldest entry first once MaxErrors is reached.
func (b *Base) RecordError(code, msg, details string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errOrder.PushBack(&WrapperError{
		Timestamp: time.Now(),
		Code:      code,
		Message:   msg,
		Details:   details,
	})
	b.errCount++
	if b.errOrder.Len() > MaxErrors {
		b.errOrder.Remove(b.errOrder.Front())
	}
}

// Errors snapshots the current error log, oldest first.
func (b *Base) Errors() []WrapperError {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]WrapperError, 0, b.errOrder.Len())
	for e := b.errOrder.Front(); e != nil; e = e.Next() {
		out = append(out, *e.Value.(*WrapperError))
	}
	return out
}

// ClearErrors empties the error log. The error_count metric reports the
// log's current length, so it drops to 0 as well.
func (b *Base) ClearErrors() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errOrder.Init()
}

// BaseMetrics returns the base metrics map every wrapper contributes:
// error_count and connection_cached (0/1).
func (b *Base) BaseMetrics() map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	cached := 0.0
	if b.connectionCached {
		cached = 1.0
	}
	return map[string]float64{
		"error_count":       float64(b.errOrder.Len()),
		"connection_cached": cached,
	}
}
