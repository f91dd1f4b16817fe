// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package db

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/evochora/streamline/internal/pipeline/perr"
)

// ledger is a small embedded existence index keyed by batch identity
// string, repurposing the WAL's durable-claim mechanics as a fast
// idempotence check: a batch identity seen before is a no-op, checked
// before DuckDB is touched at all.
type ledger struct {
	db *badger.DB
}

func openLedger(path string) (*ledger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, perr.Wrap(perr.TransientIO, "idempotence ledger: open failed", err)
	}
	return &ledger{db: bdb}, nil
}

// seen reports whether identity has already been marked written.
func (l *ledger) seen(identity string) (bool, error) {
	var found bool
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(identity))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, perr.Wrap(perr.TransientIO, "idempotence ledger: lookup failed", err)
	}
	return found, nil
}

// mark records identity as written.
func (l *ledger) mark(identity string) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(identity), []byte{1})
	})
	if err != nil {
		return perr.Wrap(perr.TransientIO, "idempotence ledger: mark failed", err)
	}
	return nil
}

func (l *ledger) close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("idempotence ledger: close: %w", err)
	}
	return nil
}
