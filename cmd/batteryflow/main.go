package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"batteryflow/app"
	"batteryflow/domain/stage"
	"batteryflow/internal"
	"batteryflow/internal/api"
	"batteryflow/internal/config"
	"batteryflow/internal/container"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "batteryflow",
		Short:         "Battery anomaly detection pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newDAGCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads .env and the environment, then wires the container
func bootstrap(ctx context.Context) (*container.Container, error) {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level), cfg.Log.Format)
	return container.New(ctx, cfg, logger)
}

func newRunCmd() *cobra.Command {
	var params app.RunParams
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline run and wait for it",
		Long: `Execute the battery anomaly detection DAG once.

The run manifest and an HTML report are written under OUTPUT_DIR/runs.
The command exits non-zero when any task failed.

Example: batteryflow run --data data/case_study.csv --sample-size 50000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Shutdown(cmd.Context())
			defer c.Logger.Sync()

			manifest, runErr := c.Runs.Run(cmd.Context(), params)
			if manifest != nil {
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(manifest); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s\n", manifest.RunID, manifest.State)
					for _, id := range manifest.Order {
						t := manifest.Tasks[id]
						fmt.Fprintf(cmd.OutOrStdout(), "  %-32s %-16s attempts=%d %dms %s\n", id, t.State, t.Attempts, t.DurationMs, t.Error)
					}
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&params.InputPath, "data", "", "Input table (defaults to DATA_PATH)")
	cmd.Flags().IntVar(&params.SampleSize, "sample-size", 0, "Stratified sample size (defaults to SAMPLE_SIZE)")
	cmd.Flags().Int64Var(&params.Seed, "seed", 0, "Sampling seed (defaults to SEED)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full manifest as JSON")
	return cmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)
			defer c.Logger.Sync()

			srv := api.NewServer(ctx, c.Runs, c.Registry, c.Logger)
			err = srv.Start(ctx, api.Config{Port: c.Config.Server.Port})
			c.Runs.Wait()
			return err
		},
	}
	return cmd
}

func newDAGCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dag",
		Short: "Print the tasks and edges of the pipeline DAG",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := stage.BatteryPipelinePlan()
			if err := plan.Validate(); err != nil {
				return err
			}
			order, err := plan.TopologicalOrder()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n\ntasks:\n", plan.DAGID, plan.Description)
			for _, id := range order {
				s, _ := plan.Get(id)
				fmt.Fprintf(out, "  %-32s %-9s %s\n", s.ID, s.Kind, s.Description)
			}
			fmt.Fprintln(out, "\nedges:")
			for _, e := range plan.Edges() {
				fmt.Fprintf(out, "  %s >> %s\n", e[0], e[1])
			}
			return nil
		},
	}
}
