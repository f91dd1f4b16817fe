// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/resource"
)

// connectionReleaser is satisfied by a capability wrapper that caches a
// pooled connection. Declared locally, structurally, the same way
// binding's pauseGate is: the metadata gate releases the connection
// between poll attempts when the reader offers one, without indexer
// depending on the concrete wrapper package.
type connectionReleaser interface {
	ReleaseConnection()
}

// pollMetadata blocks until reader.GetMetadata(runID) succeeds, pacing
// attempts with a rate.Limiter rather than a bare sleep so a misconfigured
// pollIntervalMs cannot be used to hammer the resource faster than the
// operator intended. NOT_FOUND is expected and polled past silently;
// exceeding maxPollDuration surfaces EXHAUSTED.
func pollMetadata(ctx context.Context, reader resource.MetadataReader, runID string, cfg Config) (resource.Metadata, error) {
	limiter := rate.NewLimiter(rate.Every(cfg.pollInterval()), 1)
	deadline := time.Now().Add(cfg.maxPollDuration())

	for {
		if err := limiter.Wait(ctx); err != nil {
			return resource.Metadata{}, perr.Wrap(perr.Cancelled, "indexer: metadata poll", err)
		}

		md, err := reader.GetMetadata(runID)
		if err == nil {
			return md, nil
		}
		if !perr.Is(err, perr.NotFound) {
			return resource.Metadata{}, err
		}

		if releaser, ok := reader.(connectionReleaser); ok {
			releaser.ReleaseConnection()
		}

		if time.Now().After(deadline) {
			msg := fmt.Sprintf("metadata not available for run %s after %s", runID, cfg.maxPollDuration())
			logging.Error().Str("run_id", runID).Msg("indexer: metadata gate exhausted")
			return resource.Metadata{}, perr.New(perr.Exhausted, msg)
		}
	}
}
