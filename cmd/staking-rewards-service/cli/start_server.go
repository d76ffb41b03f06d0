package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mvgalabs/staking-rewards-service/internal/observability/metrics"
	"github.com/mvgalabs/staking-rewards-service/internal/observability/tracing"
)

func StartServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start-server",
		Short: "Starts the staking rewards jobs: auto-compound, treasury distribution and vault reconciliation",
		Args:  cobra.ExactArgs(0),
		RunE:  startServer,
	}

	return cmd
}

func startServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = tracing.InjectTraceID(ctx)
	log := log.Ctx(ctx)

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	// initialize metrics with the metrics port from config
	metricsPort := rt.cfg.Metrics.GetMetricsPort()
	metrics.Init(metricsPort)

	rt.service.StartJobs(ctx)
	log.Info().Msg("staking rewards service started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	return nil
}
