package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mvgalabs/staking-rewards-service/internal/observability/tracing"
)

// TriggerDistributionCmd runs the treasury distribution now instead of
// waiting for the weekly schedule.
// Usage: ./staking-rewards-service trigger-distribution --config config.yml
func TriggerDistributionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger-distribution",
		Short: "Distribute the collected treasury fees now",
		Args:  cobra.ExactArgs(0),
		RunE:  triggerDistribution,
	}
}

func triggerDistribution(cmd *cobra.Command, _ []string) error {
	ctx := tracing.InjectTraceID(cmd.Context())

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close(context.WithoutCancel(ctx))

	d, serr := rt.service.TriggerDistribution(ctx)
	if serr != nil {
		return fmt.Errorf("distribution failed: %w", serr)
	}
	if d == nil {
		log.Ctx(ctx).Info().Msg("nothing to distribute")
		return nil
	}

	event := log.Ctx(ctx).Info().
		Str("distribution_id", d.ID).
		Stringer("status", d.Status).
		Stringer("total", d.TotalAmount)
	for _, step := range d.Steps {
		event = event.Str(step.Name.String(), step.Status.String())
	}
	event.Msg("distribution finished")
	return nil
}

// ReconcileVaultCmd compares the vault balance with the ledger once.
func ReconcileVaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-vault",
		Short: "Compare the vault's on-chain balance with the ledger and record the result",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := tracing.InjectTraceID(cmd.Context())

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			return rt.service.TriggerReconciliation(ctx)
		},
	}
}
