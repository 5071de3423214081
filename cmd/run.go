package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/internal/observability"
	"github.com/xkilldash9x/listing-refresher/internal/scheduler"
)

const continuePrompt = "Do you want to run continuously? (y/n): "

// cycleRunner is the part of the scheduler the run command drives.
type cycleRunner interface {
	RunCycle(ctx context.Context) (scheduler.CycleResult, error)
	RunContinuous(ctx context.Context) error
}

func newRunCmd() *cobra.Command {
	var continuous bool

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one test cycle, then optionally keep running on the refresh interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			components, err := componentFactory.Create(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize bot: %w", err)
			}
			defer components.Shutdown()

			return runBot(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), components.Scheduler, continuous, logger)
		},
	}

	runCmd.Flags().BoolVar(&continuous, "continuous", false, "keep running after the test cycle without prompting")
	return runCmd
}

// runBot executes the test cycle and, if it succeeds and the operator agrees
// (or continuous is set), hands over to the continuous loop.
func runBot(ctx context.Context, in io.Reader, out io.Writer, sched cycleRunner, continuous bool, logger *zap.Logger) error {
	logger.Info("Running test cycle.")
	res, err := sched.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("test cycle failed: %w", err)
	}

	fmt.Fprintf(out, "Test cycle complete: %d listings found, %d of %d refreshed.\n", res.Listings, res.Refreshed, res.Attempted)
	if res.Skipped != "" {
		fmt.Fprintf(out, "Refresh pass skipped: %s.\n", res.Skipped)
	}

	if !continuous {
		fmt.Fprint(out, continuePrompt)
		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read answer: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			continuous = true
		default:
			fmt.Fprintln(out, "Exiting after test cycle.")
			return nil
		}
	}

	logger.Info("Entering continuous mode.")
	return sched.RunContinuous(ctx)
}
