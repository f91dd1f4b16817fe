// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/evochora/streamline/internal/pipeline/coord"
	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/metrics"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
)

// Wrapper is a per-service capability wrapper around the shared DuckDB
// pool. It owns a lazily acquired, schema-scoped *sql.Conn (cached until
// releaseConnection or close) and wraps every data method in a circuit
// breaker so a resource failing hard fails fast instead of holding up a
// batch loop for the full retry ladder.
type Wrapper struct {
	*resource.Base

	pool    *sql.DB
	ledger  *ledger
	breaker *gobreaker.CircuitBreaker[any]

	connMu sync.Mutex
	conn   *sql.Conn

	opCount, notFoundCount, failureCount int64
	metricsMu                            sync.Mutex
	latency                              *metrics.LatencyWindow
}

func schemaName(runID string) string {
	var b strings.Builder
	b.WriteString("run_")
	for _, r := range runID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SetSimulationRun binds the wrapper to runID. Idempotent: a second call
// with the same runID is a no-op; a different runID releases the cached
// connection so the next operation re-acquires under the new schema.
func (w *Wrapper) SetSimulationRun(runID string) error {
	if w.Closed() {
		return perr.New(perr.ContractViolation, "wrapper closed")
	}
	if w.Base.SetRunID(runID) {
		w.ReleaseConnection()
	}
	return nil
}

// ensureConnection lazily acquires and schema-pins a connection.
func (w *Wrapper) ensureConnection(ctx context.Context) (*sql.Conn, error) {
	runID := w.Base.RunID()
	if runID == "" {
		return nil, perr.New(perr.ContractViolation, "setSimulationRun must be called before any data method")
	}

	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.conn != nil {
		return w.conn, nil
	}

	conn, err := w.pool.Conn(ctx)
	if err != nil {
		return nil, perr.Wrap(perr.TransientIO, "db: acquire connection", err)
	}

	schema := schemaName(runID)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		_ = conn.Close()
		return nil, perr.Wrap(perr.TransientIO, "db: create schema", err)
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET search_path = %s, main", schema)); err != nil {
		_ = conn.Close()
		return nil, perr.Wrap(perr.TransientIO, "db: set search_path", err)
	}
	if _, err := conn.ExecContext(ctx, ddlStatements); err != nil {
		_ = conn.Close()
		return nil, perr.Wrap(perr.TransientIO, "db: ensure tables", err)
	}

	w.conn = conn
	w.Base.MarkConnectionCached(true)
	return conn, nil
}

// ddlStatements creates the per-schema tables on first use of a run.
// CREATE TABLE IF NOT EXISTS is itself idempotent, so re-running this on
// every (re)acquisition is safe.
const ddlStatements = `
CREATE TABLE IF NOT EXISTS metadata (
	run_id TEXT PRIMARY KEY,
	start_time_ms BIGINT,
	initial_seed BIGINT,
	sampling_interval INTEGER,
	dimensions INTEGER,
	shape TEXT,
	toroidal TEXT
);
CREATE TABLE IF NOT EXISTS environment_cells (
	tick_number UBIGINT PRIMARY KEY,
	grid_key UBIGINT,
	coords TEXT,
	payload BLOB
);
CREATE TABLE IF NOT EXISTS organism_states (
	tick_number UBIGINT,
	organism_id TEXT,
	grid_key UBIGINT,
	coords TEXT,
	payload BLOB,
	PRIMARY KEY (tick_number, organism_id)
);
`

// ReleaseConnection returns the cached connection to the pool. The
// indexer's metadata poll loop calls this between attempts to keep the
// pool small under hundreds of indexers.
func (w *Wrapper) ReleaseConnection() {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
		w.Base.MarkConnectionCached(false)
	}
}

// Close releases the cached connection. Idempotent.
func (w *Wrapper) Close() error {
	if !w.Base.Close() {
		return nil
	}
	w.ReleaseConnection()
	return nil
}

// execBreaker runs fn through the wrapper's circuit breaker, classifying
// and recording any failure, and records fn's wall-clock duration in the
// wrapper's latency window regardless of outcome.
func (w *Wrapper) execBreaker(op string, fn func() (any, error)) (any, error) {
	start := time.Now()
	result, err := w.breaker.Execute(fn)
	w.latency.Record(time.Since(start))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			w.incFailure()
			w.RecordError("TRANSIENT_IO", "circuit breaker open", op)
			return nil, perr.Wrap(perr.TransientIO, "db: "+op+": circuit open", err)
		}
		w.incFailure()
		w.RecordError("TRANSIENT_IO", err.Error(), op)
		return nil, perr.Wrap(perr.TransientIO, "db: "+op, err)
	}
	w.incOp()
	return result, nil
}

func (w *Wrapper) incOp() {
	w.metricsMu.Lock()
	w.opCount++
	w.metricsMu.Unlock()
}

func (w *Wrapper) incNotFound() {
	w.metricsMu.Lock()
	w.notFoundCount++
	w.metricsMu.Unlock()
}

func (w *Wrapper) incFailure() {
	w.metricsMu.Lock()
	w.failureCount++
	w.metricsMu.Unlock()
}

// Name identifies this wrapper instance for metrics export (metrics.Source).
func (w *Wrapper) Name() string { return "duckdb:" + w.Base.RunID() }

// ErrorCount implements metrics.Source.
func (w *Wrapper) ErrorCount() int64 { return int64(len(w.Base.Errors())) }

// Metrics implements metrics.Source, combining the base metrics with
// capability-specific counters.
func (w *Wrapper) Metrics() map[string]float64 {
	m := w.Base.BaseMetrics()
	w.metricsMu.Lock()
	m["operation_count"] = float64(w.opCount)
	m["not_found_count"] = float64(w.notFoundCount)
	m["failure_count"] = float64(w.failureCount)
	w.metricsMu.Unlock()

	p := w.latency.Snapshot()
	m["latency_p50_ms"] = p.P50
	m["latency_p95_ms"] = p.P95
	m["latency_p99_ms"] = p.P99
	m["latency_avg_ms"] = p.Average
	m["latency_sample_count"] = float64(p.SampleCount)
	return m
}

// metadataLookup is the breaker's success-path result: NOT_FOUND is an
// expected outcome, not a circuit-breaker failure, so it is carried as
// data rather than as an error returned from the breaker-wrapped function.
type metadataLookup struct {
	found    bool
	metadata resource.Metadata
}

// GetMetadata implements resource.MetadataReader.
func (w *Wrapper) GetMetadata(runID string) (resource.Metadata, error) {
	ctx := context.Background()
	conn, err := w.ensureConnection(ctx)
	if err != nil {
		return resource.Metadata{}, err
	}

	result, err := w.breaker.Execute(func() (any, error) {
		var m resource.Metadata
		var shape, toroidal string
		row := conn.QueryRowContext(ctx, "SELECT run_id, start_time_ms, initial_seed, sampling_interval, dimensions, shape, toroidal FROM metadata WHERE run_id = ?", runID)
		if scanErr := row.Scan(&m.RunID, &m.StartTimeMs, &m.InitialSeed, &m.SamplingInterval, &m.Environment.Dimensions, &shape, &toroidal); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return metadataLookup{found: false}, nil
			}
			return nil, scanErr
		}
		return metadataLookup{found: true, metadata: m}, nil
	})
	if err != nil {
		w.incFailure()
		w.RecordError("TRANSIENT_IO", err.Error(), "getMetadata")
		return resource.Metadata{}, perr.Wrap(perr.TransientIO, "db: getMetadata", err)
	}

	w.incOp()
	lookup := result.(metadataLookup)
	if !lookup.found {
		w.incNotFound()
		return resource.Metadata{}, perr.New(perr.NotFound, "metadata not yet written for run "+runID)
	}
	return lookup.metadata, nil
}

// HasMetadata implements resource.MetadataReader.
func (w *Wrapper) HasMetadata(runID string) (bool, error) {
	_, err := w.GetMetadata(runID)
	if err == nil {
		return true, nil
	}
	if perr.Is(err, perr.NotFound) {
		return false, nil
	}
	return false, err
}

// GetRunIDInCurrentSchema implements resource.MetadataReader.
func (w *Wrapper) GetRunIDInCurrentSchema() (string, error) {
	runID := w.Base.RunID()
	if runID == "" {
		return "", perr.New(perr.ContractViolation, "setSimulationRun must be called first")
	}
	return runID, nil
}

// InsertMetadata implements resource.MetadataWriter, idempotent per run.
func (w *Wrapper) InsertMetadata(record resource.Metadata) error {
	ctx := context.Background()
	conn, err := w.ensureConnection(ctx)
	if err != nil {
		return err
	}

	_, err = w.execBreaker("insertMetadata", func() (any, error) {
		_, execErr := conn.ExecContext(ctx,
			`INSERT INTO metadata (run_id, start_time_ms, initial_seed, sampling_interval, dimensions, shape, toroidal)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (run_id) DO NOTHING`,
			record.RunID, record.StartTimeMs, record.InitialSeed, record.SamplingInterval,
			record.Environment.Dimensions, fmt.Sprint(record.Environment.Shape), fmt.Sprint(record.Environment.Toroidal))
		return nil, execErr
	})
	return err
}

// WriteEnvironmentCells implements resource.EnvironmentDataWriter,
// idempotent by tick number via the badger ledger fast-path plus a SQL
// upsert as the durable record.
func (w *Wrapper) WriteEnvironmentCells(batch []message.Tick, envProps resource.EnvironmentShape) error {
	if len(batch) == 0 {
		return nil
	}
	identity := batchIdentity(batch)
	seen, err := w.ledger.seen(identity)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	ctx := context.Background()
	conn, err := w.ensureConnection(ctx)
	if err != nil {
		return err
	}

	_, err = w.execBreaker("writeEnvironmentCells", func() (any, error) {
		tx, txErr := conn.BeginTx(ctx, nil)
		if txErr != nil {
			return nil, txErr
		}
		for _, t := range batch {
			gridKey, coords := gridCoordinate(envProps, t.TickNumber)
			if _, execErr := tx.ExecContext(ctx,
				`INSERT INTO environment_cells (tick_number, grid_key, coords, payload) VALUES (?, ?, ?, ?)
				 ON CONFLICT (tick_number) DO UPDATE SET grid_key = excluded.grid_key, coords = excluded.coords, payload = excluded.payload`,
				t.TickNumber, gridKey, coords, t.Payload); execErr != nil {
				_ = tx.Rollback()
				return nil, execErr
			}
		}
		return nil, tx.Commit()
	})
	if err != nil {
		return err
	}
	return w.ledger.mark(identity)
}

// WriteOrganismStates implements resource.OrganismDataWriter, idempotent
// by (tickNumber, organismId).
func (w *Wrapper) WriteOrganismStates(batch []message.Tick, envProps resource.EnvironmentShape) error {
	if len(batch) == 0 {
		return nil
	}
	identity := batchIdentity(batch)
	seen, err := w.ledger.seen(identity)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	ctx := context.Background()
	conn, err := w.ensureConnection(ctx)
	if err != nil {
		return err
	}

	_, err = w.execBreaker("writeOrganismStates", func() (any, error) {
		tx, txErr := conn.BeginTx(ctx, nil)
		if txErr != nil {
			return nil, txErr
		}
		for _, t := range batch {
			gridKey, coords := gridCoordinate(envProps, t.TickNumber)
			if _, execErr := tx.ExecContext(ctx,
				`INSERT INTO organism_states (tick_number, organism_id, grid_key, coords, payload) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (tick_number, organism_id) DO UPDATE SET grid_key = excluded.grid_key, coords = excluded.coords, payload = excluded.payload`,
				t.TickNumber, t.OrganismID, gridKey, coords, t.Payload); execErr != nil {
				_ = tx.Rollback()
				return nil, execErr
			}
		}
		return nil, tx.Commit()
	})
	if err != nil {
		return err
	}
	return w.ledger.mark(identity)
}

// gridCoordinate wraps tickNumber onto envProps's grid (tickNumber modulo
// the grid's cell count) and decomposes that position into per-axis
// coordinates. It returns the wrapped key, which the round trip through
// coord.Linearize leaves unchanged, and the coordinates formatted as a
// string. Environments with no declared shape, or with a non-positive
// extent, carry no grid position; tickNumber is returned unchanged and
// coords is empty.
func gridCoordinate(envProps resource.EnvironmentShape, tickNumber uint64) (uint64, string) {
	if len(envProps.Shape) == 0 {
		return tickNumber, ""
	}
	var totalCells uint64 = 1
	for _, extent := range envProps.Shape {
		if extent <= 0 {
			return tickNumber, ""
		}
		totalCells *= uint64(extent)
	}

	shape := coord.Shape(envProps.Shape)
	coords, err := coord.Delinearize(shape, tickNumber%totalCells)
	if err != nil {
		return tickNumber, ""
	}
	key, err := coord.Linearize(shape, coords)
	if err != nil {
		return tickNumber, ""
	}
	return key, fmt.Sprint(coords)
}

// batchIdentity computes the "{runId}:{minTick}-{maxTick}" string used as
// both the retry tracker key and the ledger key.
func batchIdentity(batch []message.Tick) string {
	minTick, maxTick := batch[0].TickNumber, batch[0].TickNumber
	for _, t := range batch[1:] {
		if t.TickNumber < minTick {
			minTick = t.TickNumber
		}
		if t.TickNumber > maxTick {
			maxTick = t.TickNumber
		}
	}
	return message.BatchIdentity(batch[0].RunID, minTick, maxTick)
}

// RunSummary is a read-only snapshot over a run's schema-isolated data,
// supplementing the indexer's own bookkeeping with an operator-facing view:
// row counts of environment_cells and organism_states, and the tick range
// of environment_cells. It carries no DLQ batch count.
type RunSummary struct {
	RunID            string
	EnvironmentCells int64
	OrganismStates   int64
	MinTick, MaxTick uint64
}

// GetRunSummary reads aggregate counts for the wrapper's current run.
func (w *Wrapper) GetRunSummary(ctx context.Context) (RunSummary, error) {
	conn, err := w.ensureConnection(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	result, err := w.execBreaker("getRunSummary", func() (any, error) {
		summary := RunSummary{RunID: w.Base.RunID()}
		row := conn.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(MIN(tick_number), 0), COALESCE(MAX(tick_number), 0) FROM environment_cells")
		if err := row.Scan(&summary.EnvironmentCells, &summary.MinTick, &summary.MaxTick); err != nil {
			return nil, err
		}
		row2 := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM organism_states")
		if err := row2.Scan(&summary.OrganismStates); err != nil {
			return nil, err
		}
		return summary, nil
	})
	if err != nil {
		return RunSummary{}, err
	}
	return result.(RunSummary), nil
}
