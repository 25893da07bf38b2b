package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tigerroll/suicsync/internal/app"
	"github.com/tigerroll/suicsync/pkg/batch/adapter/database/migration"
	"github.com/tigerroll/suicsync/pkg/batch/core/domain/model"
	"github.com/tigerroll/suicsync/pkg/batch/engine/execution"
	"github.com/tigerroll/suicsync/pkg/batch/infrastructure/api"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/exception"
	"github.com/tigerroll/suicsync/pkg/batch/support/util/logger"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema migrations of the destination and workflow stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				targets := map[migration.Schema]string{
					migration.SchemaDestination: c.Config.App.Transfer.DestinationDBRef,
					migration.SchemaWorkflow:    c.Config.App.Transfer.WorkflowDBRef,
				}
				for _, s := range []migration.Schema{migration.SchemaDestination, migration.SchemaWorkflow} {
					if schema != "all" && schema != string(s) {
						continue
					}
					conn, err := c.DBResolver.ResolveDBConnection(ctx, targets[s])
					if err != nil {
						return err
					}
					if err := migration.NewMigrator(conn).UpSchema(ctx, s); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "all", "schema to migrate (destination|workflow|all)")
	return cmd
}

func newRunCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create <run-id>",
		Short: "Create a run with an initial flow state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				if err := c.Repository.CreateRun(ctx, &model.Run{ID: args[0]}); err != nil {
					return err
				}
				if _, err := c.Flow.Ensure(ctx, args[0], nil); err != nil {
					return err
				}
				view, err := c.Flow.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	})
	return cmd
}

func newFlowCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow <run-id>",
		Short: "Show the flow state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				view, err := c.Flow.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}

	var message string
	mark := &cobra.Command{
		Use:   "mark <run-id> <step> <status>",
		Short: "Set the status of one step (e.g. mark run-1 step1 completed)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				if _, err := c.Flow.MarkStep(ctx, args[0], args[1], model.StepStatus(args[2]), message); err != nil {
					return err
				}
				view, err := c.Flow.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}
	mark.Flags().StringVar(&message, "message", "", "message stored with the step")
	cmd.AddCommand(mark)
	return cmd
}

func logProgress(runID string) model.ProgressFunc {
	return func(batch, total int) {
		logger.Infof("Run %s: batch %d/%d written.", runID, batch, total)
	}
}

func newTransferCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <run-id>",
		Short: "Migrate every source row of a run in one destination transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				summary, err := c.Orchestrator.Migrate(ctx, args[0], logProgress(args[0]))
				if summary != nil {
					if perr := printJSON(cmd, summary); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func newSaveCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <run-id> <partition-key>",
		Short: "Replace the destination rows of one partition from the source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				summary, err := c.Orchestrator.SaveFromSource(ctx, args[0], args[1], logProgress(args[0]))
				if summary != nil {
					if perr := printJSON(cmd, summary); perr != nil {
						return perr
					}
					if err == nil && !summary.Success {
						return fmt.Errorf("%d of %d batches failed: %s", summary.FailedBatches(), summary.TotalBatches, summary.Message)
					}
				}
				return err
			})
		},
	}
}

func newPoller(c app.Components, runID string) *execution.Poller {
	execCfg := c.Config.App.Execution
	return execution.NewPoller(c.Tracker, runID,
		execCfg.PollingIntervalDuration(), execCfg.MaxPollingDurationValue(),
		execution.WithRegistry(c.Registry),
		execution.WithMetrics(c.Observability.Recorder, c.Observability.Tracer),
	)
}

func pollUntilDone(ctx context.Context, cmd *cobra.Command, c app.Components, runID string) error {
	poller := newPoller(c, runID)
	poller.Start(ctx)
	outcome, err := poller.Wait(ctx)
	if err != nil {
		poller.Stop()
		return err
	}
	if perr := printJSON(cmd, outcome.Record); perr != nil {
		return perr
	}
	switch outcome.Reason {
	case execution.ReasonCompleted:
		return nil
	case execution.ReasonTimedOut:
		return outcome.Err
	case execution.ReasonStopped:
		return ctx.Err()
	default:
		return exception.NewBatchErrorf("cli", exception.ErrDispatch, "execution of run %s ended with %s", runID, outcome.Reason)
	}
}

func newLaunchCommand(root *rootOptions) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "launch <run-id> <suic_load|report_generation>",
		Short: "Launch an external process for a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				id, err := c.Tracker.Launch(ctx, args[0], model.ExecutionType(args[1]))
				if err != nil {
					return err
				}
				logger.Infof("Execution '%s' launched for run %s.", id, args[0])
				if !wait {
					record, err := c.Tracker.GetStatus(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd, record)
				}
				return pollUntilDone(ctx, cmd, c, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until the execution is completed, failed or timed out")
	return cmd
}

func newPollCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <run-id>",
		Short: "Poll the execution of a run until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				return pollUntilDone(ctx, cmd, c, args[0])
			})
		},
	}
}

func newReportCommand(root *rootOptions) *cobra.Command {
	var (
		keys   []string
		export bool
	)
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Show or export the aggregated report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				if export {
					result, err := c.Exporter.Export(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSON(cmd, result)
				}
				result, err := c.Querier.Query(ctx, args[0], model.ReportFilter{Keys: keys})
				if err != nil {
					return err
				}
				return printJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringSliceVar(&keys, "key", nil, "first-dimension values to include (repeatable)")
	cmd.Flags().BoolVar(&export, "export", false, "write the report as Parquet to the report storage")
	return cmd
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the notification endpoint, the status API and the metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.run(cmd, func(ctx context.Context, c app.Components) error {
				if addr == "" {
					addr = c.Config.App.Server.ListenAddress
				}
				handlers := &api.Handlers{
					Executions: c.Tracker,
					Flows:      c.Flow,
					Reports:    c.Querier,
					Metrics:    c.Observability.Handler,
					Token:      c.Config.App.Execution.NotificationToken,
				}
				if handlers.Token == "" {
					logger.Warnf("No notification token is configured; notifications are accepted without authentication.")
				}
				return api.NewServer(addr, handlers).Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from server.listen_address)")
	return cmd
}
