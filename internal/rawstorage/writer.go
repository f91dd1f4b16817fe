// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package rawstorage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
)

const (
	contextFileName = "context.bin"
	rawDataDir      = "raw_data"
	rawDataDLQDir   = "raw_data_dlq"
)

// Writer is the per-service RawStorageProvider wrapper. It is stateless
// between calls other than the run directories it caches on Initialize, so
// Close has nothing to release beyond marking the Base closed.
type Writer struct {
	*resource.Base

	rootDir string

	mu      sync.Mutex
	dataDir string
	dlqDir  string
}

// Initialize binds the wrapper to runID and creates its directory tree,
// satisfying resource.SimulationRunSetter by delegating to SetRunID.
func (w *Writer) Initialize(runID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Base.RunID() == runID && w.dataDir != "" {
		return nil
	}
	w.Base.SetRunID(runID)

	runRoot := filepath.Join(w.rootDir, "runs", runID)
	w.dataDir = filepath.Join(runRoot, rawDataDir)
	w.dlqDir = filepath.Join(runRoot, rawDataDLQDir)

	for _, dir := range []string{w.dataDir, w.dlqDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			w.RecordError("RAW_STORAGE_INIT_FAILED", "create run directory", err.Error())
			return perr.Wrap(perr.TransientIO, "rawstorage: create run directory", err)
		}
	}
	return nil
}

// SetSimulationRun satisfies resource.SimulationRunSetter for uniformity
// with the other capability wrappers; it is equivalent to Initialize.
func (w *Writer) SetSimulationRun(runID string) error {
	return w.Initialize(runID)
}

// WriteContext persists the single per-run context message to context.bin.
func (w *Writer) WriteContext(ctx message.Context) error {
	w.mu.Lock()
	dataDir := w.dataDir
	w.mu.Unlock()
	if dataDir == "" {
		return perr.New(perr.ContractViolation, "rawstorage: WriteContext before Initialize")
	}
	return w.writeFile(filepath.Join(dataDir, contextFileName), [][]byte{ctx.Payload})
}

// WriteTicks persists a tick batch to raw_data/ticks_{minTick:09d}-{maxTick:09d}.bin.
func (w *Writer) WriteTicks(batch []message.Tick) error {
	w.mu.Lock()
	dataDir := w.dataDir
	w.mu.Unlock()
	if dataDir == "" {
		return perr.New(perr.ContractViolation, "rawstorage: WriteTicks before Initialize")
	}
	return w.writeBatch(dataDir, batch)
}

// WriteTicksToDLQ persists a batch that exhausted retries under
// raw_data_dlq/, using the same filename convention as WriteTicks.
func (w *Writer) WriteTicksToDLQ(batch []message.Tick) error {
	w.mu.Lock()
	dlqDir := w.dlqDir
	w.mu.Unlock()
	if dlqDir == "" {
		return perr.New(perr.ContractViolation, "rawstorage: WriteTicksToDLQ before Initialize")
	}
	return w.writeBatch(dlqDir, batch)
}

func (w *Writer) writeBatch(dir string, batch []message.Tick) error {
	if len(batch) == 0 {
		return perr.New(perr.ContractViolation, "rawstorage: empty batch")
	}
	minTick, maxTick := batch[0].TickNumber, batch[0].TickNumber
	records := make([][]byte, 0, len(batch))
	for _, t := range batch {
		if t.TickNumber < minTick {
			minTick = t.TickNumber
		}
		if t.TickNumber > maxTick {
			maxTick = t.TickNumber
		}
		records = append(records, t.Payload)
	}
	name := fmt.Sprintf("ticks_%09d-%09d.bin", minTick, maxTick)
	return w.writeFile(filepath.Join(dir, name), records)
}

// writeFile writes records to a temp file in the same directory and renames
// it into place, so a reader never observes a partially written batch file.
func (w *Writer) writeFile(path string, records [][]byte) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		w.RecordError("RAW_STORAGE_WRITE_FAILED", "create temp file", err.Error())
		return perr.Wrap(perr.TransientIO, "rawstorage: create temp file", err)
	}

	if err := writeEnvelope(f, records); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		w.RecordError("RAW_STORAGE_WRITE_FAILED", "write envelope", err.Error())
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		w.RecordError("RAW_STORAGE_WRITE_FAILED", "fsync", err.Error())
		return perr.Wrap(perr.TransientIO, "rawstorage: fsync", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		w.RecordError("RAW_STORAGE_WRITE_FAILED", "close temp file", err.Error())
		return perr.Wrap(perr.TransientIO, "rawstorage: close temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		w.RecordError("RAW_STORAGE_WRITE_FAILED", "rename into place", err.Error())
		return perr.Wrap(perr.TransientIO, "rawstorage: rename into place", err)
	}
	return nil
}

// Close marks the wrapper closed. Idempotent via resource.Base.
func (w *Writer) Close() error {
	w.Base.Close()
	return nil
}

// Name identifies this wrapper in metrics.Source registrations.
func (w *Writer) Name() string {
	return "rawstorage:" + w.Base.RunID()
}

// ErrorCount satisfies metrics.Source.
func (w *Writer) ErrorCount() int64 {
	return int64(len(w.Base.Errors()))
}

// Metrics satisfies metrics.Source with the base metrics only; the
// filesystem writer has no connection or breaker state of its own.
func (w *Writer) Metrics() map[string]float64 {
	return w.Base.BaseMetrics()
}
