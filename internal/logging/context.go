// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const runIDKey contextKey = "run_id"

// ContextWithRunID attaches a run identifier to ctx for log correlation.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run identifier from ctx, or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger enriched with the run identifier carried by ctx, if
// any — every per-batch and per-failure log line is keyed by runId, so
// this is the accessor those call sites use.
func Ctx(ctx context.Context) *zerolog.Logger {
	l := Logger()
	if runID := RunIDFromContext(ctx); runID != "" {
		l = l.With().Str("run_id", runID).Logger()
	}
	return &l
}
