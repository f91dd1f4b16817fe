// streamline - in-process data pipeline runtime for simulation telemetry
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evochora/streamline/internal/config"
	"github.com/evochora/streamline/internal/logging"
	"github.com/evochora/streamline/internal/pipeline/orchestrator"
	"github.com/evochora/streamline/internal/pipeline/service"
	"github.com/evochora/streamline/internal/supervisor"
)

func main() {
	logging.Init(logging.Config{
		Level:     os.Getenv("STREAMLINE_LOG_LEVEL"),
		Format:    os.Getenv("STREAMLINE_LOG_FORMAT"),
		Timestamp: true,
	})

	if len(os.Args) != 2 {
		logging.Fatal().Msg("usage: streamlined <pipeline-config.yaml>")
	}
	configPath := os.Args[1]

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load pipeline configuration")
	}
	logging.Info().Str("path", configPath).Int("services", len(cfg.Services)).Msg("pipeline configuration loaded")

	orch := orchestrator.New(buildRegistry(), supervisor.DefaultTreeConfig())
	if err := orch.Build(cfg); err != nil {
		logging.Fatal().Err(err).Msg("failed to build pipeline topology")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go handleSignals(sigCh, cancel, orch)

	logging.Info().Msg("starting pipeline")
	errCh := orch.StartAll(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutdown signal received, stopping pipeline")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Err(err).Msg("supervisor tree terminated with an error")
		}
	}

	stopTimeout := supervisor.DefaultTreeConfig().ShutdownTimeout
	if err := orch.StopAll(stopTimeout); err != nil {
		logging.Err(err).Msg("one or more services failed to stop within the shutdown timeout")
	}

	if unstopped, _ := orch.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	os.Exit(exitCode(orch, cfg))
}

// handleSignals cancels the run context on SIGINT/SIGTERM and, on SIGUSR1,
// dumps GetPipelineStatus() as JSON without touching the running topology.
func handleSignals(sigCh chan os.Signal, cancel context.CancelFunc, orch *orchestrator.Orchestrator) {
	for sig := range sigCh {
		switch sig {
		case syscall.SIGUSR1:
			dumpStatus(orch)
		default:
			logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
			cancel()
			return
		}
	}
}

func dumpStatus(orch *orchestrator.Orchestrator) {
	status := orch.GetPipelineStatus()
	out, err := json.Marshal(status)
	if err != nil {
		logging.Err(err).Msg("failed to marshal pipeline status")
		return
	}
	fmt.Fprintln(os.Stderr, string(out))
}

// exitCode reports non-zero if any configured service ended in the ERROR
// state.
func exitCode(orch *orchestrator.Orchestrator, cfg *config.PipelineConfig) int {
	for name := range cfg.Services {
		state, err := orch.ServiceState(name)
		if err != nil {
			continue
		}
		if state == service.Error {
			logging.Error().Str("service", name).Msg("service ended in ERROR state")
			return 1
		}
	}
	return 0
}
