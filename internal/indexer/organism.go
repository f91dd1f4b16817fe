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

// OrganismIndexer persists organism-state tick batches, idempotent by
// (tickNumber, organismId). It gates on the simulation metadata record
// before entering the batch loop, the same way EnvironmentIndexer does;
// the write call uses the record's environment shape (md.Environment).
type OrganismIndexer struct {
	runID   string
	input   binding.Source[message.Tick]
	writer  resource.OrganismDataWriter
	reader  resource.MetadataReader
	dlq     DLQSink
	cfg     Config
	tracker *retry.Tracker
}

// NewOrganismIndexer builds an OrganismIndexer for runID.
func NewOrganismIndexer(runID string, input binding.Source[message.Tick], writer resource.OrganismDataWriter, reader resource.MetadataReader, dlq DLQSink, cfg Config) *OrganismIndexer {
	return &OrganismIndexer{
		runID: runID, input: input, writer: writer, reader: reader, dlq: dlq, cfg: cfg,
		tracker: retry.New(retryTrackerMaxKeys),
	}
}

// Run implements service.Logic.
func (o *OrganismIndexer) Run(ctx context.Context, lc *service.Lifecycle) error {
	md, err := pollMetadata(ctx, o.reader, o.runID, o.cfg)
	if err != nil {
		logging.Err(err).Str("run_id", o.runID).Msg("organism indexer: metadata gate failed")
		return err
	}

	runner := &batchRunner{
		name:             "organism-indexer",
		runID:            o.runID,
		cfg:              o.cfg,
		input:            o.input,
		tracker:          o.tracker,
		samplingInterval: md.SamplingInterval,
		writeBatch: func(batch []message.Tick) error {
			return o.writer.WriteOrganismStates(batch, md.Environment)
		},
		writeDLQ: o.dlq.WriteTicksToDLQ,
	}
	return runner.run(ctx)
}
