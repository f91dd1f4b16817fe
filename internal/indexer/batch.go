// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package indexer

import (
	"context"
	"time"

	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/binding"
	"github.com/evochora/streamline/internal/pipeline/message"
	"github.com/evochora/streamline/internal/pipeline/perr"
	"github.com/evochora/streamline/internal/pipeline/retry"
)

// retryTrackerMaxKeys bounds every indexer's retry tracker. One entry is
// held per in-flight batch identity, so this only needs to exceed the
// number of batches that can be concurrently retrying, not the number of
// ticks ever processed.
const retryTrackerMaxKeys = 1024

// DLQSink is the narrow capability an indexer writes exhausted batches
// through. resource.RawStorageProvider already satisfies it; an
// environment or organism indexer — whose own capability has no DLQ
// method — is wired to a raw-storage resource for this alone, so a batch
// that exhausts retries is never silently dropped.
type DLQSink interface {
	WriteTicksToDLQ(batch []message.Tick) error
}

// batchRunner implements the accumulate-then-flush loop generically over
// which capability wrapper a concrete indexer writes through: accumulate ticks
// read off input, flush on whichever of size or time triggers first, and
// on a write failure retry with exponential backoff before handing the
// batch to DLQSink.
type batchRunner struct {
	name    string
	runID   string
	cfg     Config
	input   binding.Source[message.Tick]
	tracker *retry.Tracker

	// samplingInterval enables gap detection (spec glossary) when > 0.
	// Left zero by indexers with no metadata record to source it from.
	samplingInterval int
	gapTracked       bool
	gapLastMaxTick   uint64

	writeBatch func(batch []message.Tick) error
	writeDLQ   func(batch []message.Tick) error
}

// run drives the batch loop until input reports cancellation, performing a
// final flush of any remainder before returning.
func (b *batchRunner) run(ctx context.Context) error {
	const readTimeout = 100 * time.Millisecond

	var batch []message.Tick
	lastFlush := time.Now()

	for {
		tick, ok, err := b.input.TryReadWithDeadline(ctx, readTimeout)
		if err != nil {
			return b.flush(ctx, batch)
		}
		if ok {
			batch = append(batch, tick)
		}

		full := len(batch) >= b.cfg.BatchSize
		timedOut := len(batch) > 0 && time.Since(lastFlush) >= b.cfg.batchTimeout()
		if full || timedOut {
			if err := b.flush(ctx, batch); err != nil {
				return err
			}
			batch = nil
			lastFlush = time.Now()
		}
	}
}

// flush writes one batch, retrying with backoff on failure and handing off
// to the DLQ sink once the retry budget is exhausted.
func (b *batchRunner) flush(ctx context.Context, batch []message.Tick) error {
	if len(batch) == 0 {
		return nil
	}

	minTick, maxTick := tickRange(batch)
	identity := message.BatchIdentity(b.runID, minTick, maxTick)
	b.checkGap(minTick, maxTick)

	for {
		err := b.writeBatch(batch)
		if err == nil {
			b.tracker.Reset(identity)
			return nil
		}

		count := b.tracker.IncrementAndGet(identity)
		if count <= b.cfg.MaxRetries {
			backoff := computeBackoff(count, b.cfg.RetryBackoffBaseMs, b.cfg.RetryBackoffCapMs)
			logging.Warn().Str("run_id", b.runID).Uint64("min_tick", minTick).Uint64("max_tick", maxTick).
				Err(err).Dur("backoff", backoff).Msg(b.name + ": write failed, retrying")
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				// Shutting down mid-backoff: this batch has not exhausted
				// its retries and is not handed to the DLQ sink either.
				logging.Warn().Str("run_id", b.runID).Uint64("min_tick", minTick).Uint64("max_tick", maxTick).
					Msg(b.name + ": shutdown during retry backoff, batch dropped")
				return nil
			}
		}

		if dlqErr := b.writeDLQ(batch); dlqErr != nil {
			logging.Error().Str("run_id", b.runID).Uint64("min_tick", minTick).Uint64("max_tick", maxTick).
				Err(dlqErr).Msg(b.name + ": DLQ write failed")
			return perr.Wrap(perr.Exhausted, b.name+": DLQ write failed", dlqErr)
		}
		b.tracker.MarkMovedToDlq(identity)
		dlqBatchesTotal.WithLabelValues(b.name, b.runID).Inc()
		logging.Warn().Str("run_id", b.runID).Uint64("min_tick", minTick).Uint64("max_tick", maxTick).
			Msg(b.name + ": batch moved to DLQ")
		return nil
	}
}

// checkGap records a gap metric when this batch's minimum tick leaves more
// than samplingInterval unaccounted for since the previous batch's maximum,
// then advances the high-water mark. Disabled entirely when
// samplingInterval is 0 (the rawstorage indexer, which has no metadata
// record to source it from).
func (b *batchRunner) checkGap(minTick, maxTick uint64) {
	if b.samplingInterval <= 0 {
		return
	}
	if b.gapTracked {
		allowed := b.gapLastMaxTick + uint64(b.samplingInterval)
		if minTick > allowed {
			gapTicksTotal.WithLabelValues(b.name, b.runID).Add(float64(minTick - allowed))
		}
	}
	b.gapTracked = true
	if maxTick > b.gapLastMaxTick {
		b.gapLastMaxTick = maxTick
	}
}

func tickRange(batch []message.Tick) (min, max uint64) {
	min, max = batch[0].TickNumber, batch[0].TickNumber
	for _, t := range batch[1:] {
		if t.TickNumber < min {
			min = t.TickNumber
		}
		if t.TickNumber > max {
			max = t.TickNumber
		}
	}
	return min, max
}

// computeBackoff is base*2^(attempt-1), capped. attempt is 1-based (the
// value IncrementAndGet just returned), expressed over integer milliseconds
// rather than a pre-built time.Duration config field.
func computeBackoff(attempt, baseMs, capMs int) time.Duration {
	capped := time.Duration(capMs) * time.Millisecond
	if attempt > 30 {
		return capped
	}
	backoff := time.Duration(baseMs) * time.Millisecond << uint(attempt-1)
	if backoff <= 0 || backoff > capped {
		return capped
	}
	return backoff
}
