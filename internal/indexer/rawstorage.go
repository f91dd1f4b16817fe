// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"context"

	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
	"github.com/evochora/streamline/internal/pipeline/retry"
	"github.com/evochora/streamline/internal/pipeline/service"
)

// RawStorageIndexer is the one persistence service that handles both
// context and tick streams, so it alone implements the context-first
// rule: block-read the single context message, initialize storage with
// it, then enter the batch loop. Tick messages arriving before context
// queue normally on the channel; they are simply not read until the
// context-read completes.
type RawStorageIndexer struct {
	runID     string
	ctxInput  binding.Source[message.Context]
	tickInput binding.Source[message.Tick]
	provider  resource.RawStorageProvider
	cfg       Config
	tracker   *retry.Tracker
}

// NewRawStorageIndexer builds a RawStorageIndexer for runID.
func NewRawStorageIndexer(runID string, ctxInput binding.Source[message.Context], tickInput binding.Source[message.Tick], provider resource.RawStorageProvider, cfg Config) *RawStorageIndexer {
	return &RawStorageIndexer{
		runID: runID, ctxInput: ctxInput, tickInput: tickInput, provider: provider, cfg: cfg,
		tracker: retry.New(retryTrackerMaxKeys),
	}
}

// Run implements service.Logic.
func (r *RawStorageIndexer) Run(ctx context.Context, lc *service.Lifecycle) error {
	if err := r.provider.Initialize(r.runID); err != nil {
		logging.Err(err).Str("run_id", r.runID).Msg("raw storage indexer: initialize failed")
		return err
	}

	ctxMsg, err := r.ctxInput.Read(ctx)
	if err != nil {
		// Cancelled before the run ever produced a context message: a
		// clean shutdown, not a failure of this service.
		return nil
	}

	if err := r.provider.WriteContext(ctxMsg); err != nil {
		logging.Err(err).Str("run_id", r.runID).Msg("raw storage indexer: write context failed")
		return perr.Wrap(perr.Exhausted, "raw storage indexer: write context failed", err)
	}

	runner := &batchRunner{
		name:       "raw-storage-indexer",
		runID:      r.runID,
		cfg:        r.cfg,
		input:      r.tickInput,
		tracker:    r.tracker,
		writeBatch: r.provider.WriteTicks,
		writeDLQ:   r.provider.WriteTicksToDLQ,
	}
	return runner.run(ctx)
}
