// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import "time"

// Config configures the DuckDB-backed resource.
type Config struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string
	// MaxMemory is DuckDB's max_memory setting, e.g. "4GB".
	MaxMemory string
	// LedgerPath is the directory for the badger idempotence ledger.
	LedgerPath string
	// BreakerFailureThreshold opens the circuit after this many
	// consecutive TRANSIENT_IO failures on one wrapper.
	BreakerFailureThreshold uint32
	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration
}

// DefaultConfig returns sensible defaults for interactive runs.
func DefaultConfig() Config {
	return Config{
		MaxMemory:               "4GB",
		LedgerPath:              "./run-data/idempotence-ledger",
		BreakerFailureThreshold: 5,
		BreakerTimeout:          30 * time.Second,
	}
}
