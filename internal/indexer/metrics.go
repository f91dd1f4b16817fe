// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dlqBatchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamline_indexer_dlq_batches_total",
		Help: "Batches handed to the dead-letter sink after exhausting the retry budget.",
	},
	[]string{"indexer", "run_id"},
)

// gapTicksTotal counts tick numbers skipped over by more than
// samplingInterval between two consecutive batches, per the metadata
// record's gap-detection hint in the glossary. A non-zero rate flags
// upstream loss; it never gates or blocks persistence.
var gapTicksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "streamline_indexer_gap_ticks_total",
		Help: "Tick numbers skipped over by more than samplingInterval between consecutive batches.",
	},
	[]string{"indexer", "run_id"},
)
