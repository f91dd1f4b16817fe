// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"context"

	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/resource"
	"github.com/evochora/streamline/internal/pipeline/retry"
	"github.com/evochora/streamline/internal/pipeline/service"
)

// EnvironmentIndexer persists environment-cell tick batches. It gates on
// the simulation metadata record (for the environment shape every batch
// write needs) before entering the batch loop.
type EnvironmentIndexer struct {
	runID   string
	input   binding.Source[message.Tick]
	writer  resource.EnvironmentDataWriter
	reader  resource.MetadataReader
	dlq     DLQSink
	cfg     Config
	tracker *retry.Tracker
}

// NewEnvironmentIndexer builds an EnvironmentIndexer for runID.
func NewEnvironmentIndexer(runID string, input binding.Source[message.Tick], writer resource.EnvironmentDataWriter, reader resource.MetadataReader, dlq DLQSink, cfg Config) *EnvironmentIndexer {
	return &EnvironmentIndexer{
		runID: runID, input: input, writer: writer, reader: reader, dlq: dlq, cfg: cfg,
		tracker: retry.New(retryTrackerMaxKeys),
	}
}

// Run implements service.Logic.
func (e *EnvironmentIndexer) Run(ctx context.Context, lc *service.Lifecycle) error {
	md, err := pollMetadata(ctx, e.reader, e.runID, e.cfg)
	if err != nil {
		logging.Err(err).Str("run_id", e.runID).Msg("environment indexer: metadata gate failed")
		return err
	}

	runner := &batchRunner{
		name:             "environment-indexer",
		runID:            e.runID,
		cfg:              e.cfg,
		input:            e.input,
		tracker:          e.tracker,
		samplingInterval: md.SamplingInterval,
		writeBatch: func(batch []message.Tick) error {
			return e.writer.WriteEnvironmentCells(batch, md.Environment)
		},
		writeDLQ: e.dlq.WriteTicksToDLQ,
	}
	return runner.run(ctx)
}
