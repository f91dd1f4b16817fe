// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package db implements the schema-aware DuckDB-backed resource: the
// MetadataReader/MetadataWriter/EnvironmentDataWriter/OrganismDataWriter
// capabilities, with per-run schema isolation, a badger-backed idempotence
// ledger, and a gobreaker circuit breaker per wrapper.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/metrics"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
)

// Resource is the shared DuckDB collaborator. It is obtained once by the
// orchestrator from a registry constructor; individual services receive
// per-service Wrapper instances via GetWrappedResource.
type Resource struct {
	conn    *sql.DB
	cfg     Config
	ledger  *ledger
	breaker gobreaker.Settings
}

// New opens (or creates) the DuckDB file at cfg.Path and the idempotence
// ledger at cfg.LedgerPath, tuning the connection pool for an embedded
// analytical engine.
func New(cfg Config) (*Resource, error) {
	if cfg.Path != "" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, perr.Wrap(perr.InvalidConfig, "db: create data directory", err)
			}
		}
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "4GB"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false", path, maxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, perr.Wrap(perr.TransientIO, "db: open failed", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if cfg.LedgerPath == "" {
		cfg.LedgerPath = DefaultConfig().LedgerPath
	}
	ldg, err := openLedger(cfg.LedgerPath)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Resource{
		conn:   conn,
		cfg:    cfg,
		ledger: ldg,
		breaker: gobreaker.Settings{
			Name:        "duckdb-wrapper",
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		},
	}, nil
}

// GetWrappedResource returns a fresh Wrapper scoped to ctx. Each service
// gets its own wrapper with its own cached connection and its own circuit
// breaker instance — wrappers are never shared across services, even
// though the underlying *sql.DB pool is.
func (r *Resource) GetWrappedResource(ctx resource.ResourceContext) (any, error) {
	breakerName := fmt.Sprintf("duckdb:%s:%s", ctx.ServiceName, ctx.PortName)
	settings := r.breaker
	settings.Name = breakerName
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	}

	return &Wrapper{
		Base:    resource.NewBase(),
		pool:    r.conn,
		ledger:  r.ledger,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		latency: metrics.NewLatencyWindow(30*time.Second, 10),
	}, nil
}

// Close releases the shared connection pool and the idempotence ledger.
func (r *Resource) Close() error {
	if err := r.ledger.close(); err != nil {
		return err
	}
	return r.conn.Close()
}
