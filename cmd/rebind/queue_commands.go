package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rebind/internal/queue"
)

func newQueueCommand(cctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the conversion queue",
	}
	queueCmd.AddCommand(newQueueListCommand(cctx))
	queueCmd.AddCommand(newQueueShowCommand(cctx))
	queueCmd.AddCommand(newQueueClearCommand(cctx))
	queueCmd.AddCommand(newQueueHealthCommand(cctx))
	return queueCmd
}

func withStore(cctx *commandContext, fn func(*cobra.Command, []string, *queue.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := cctx.ensureConfig()
		if err != nil {
			return err
		}
		store, err := queue.Open(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, args, store)
	}
}

func newQueueListCommand(cctx *commandContext) *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversion jobs",
		RunE: withStore(cctx, func(cmd *cobra.Command, args []string, store *queue.Store) error {
			ctx := cmd.Context()
			var jobs []*queue.Job
			var err error
			if strings.TrimSpace(statusFilter) != "" {
				status, ok := queue.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				jobs, err = store.ListByStatus(ctx, status)
			} else {
				jobs, err = store.List(ctx)
			}
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					filepath.Base(job.SourcePath),
					string(job.Status),
					fmt.Sprintf("%.0f%%", job.ProgressPercent),
					job.DeviceProfile,
					job.UpdatedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Source", "Status", "Progress", "Profile", "Updated"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		}),
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	return cmd
}

func newQueueShowCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job including its error records",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(cctx, func(cmd *cobra.Command, args []string, store *queue.Store) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			ctx := cmd.Context()
			job, err := store.GetByID(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job %d\n", job.ID)
			fmt.Fprintf(out, "  source:   %s\n", job.SourcePath)
			fmt.Fprintf(out, "  output:   %s\n", valueOr(job.OutputPath, job.OutputDir))
			fmt.Fprintf(out, "  profile:  %s\n", job.DeviceProfile)
			fmt.Fprintf(out, "  status:   %s (%.0f%%)\n", job.Status, job.ProgressPercent)
			if job.PageCount > 0 {
				fmt.Fprintf(out, "  pages:    %d\n", job.PageCount)
			}
			if job.DiagnosticLog != "" {
				fmt.Fprintf(out, "  log:      %s\n", job.DiagnosticLog)
			}
			if job.ErrorMessage != "" {
				fmt.Fprintf(out, "  error:    %s\n", job.ErrorMessage)
			}

			records, err := store.ErrorRecords(ctx, job.ID)
			if err != nil {
				return err
			}
			if len(records) > 0 {
				fmt.Fprintln(out, "  error records:")
				for _, rec := range records {
					fmt.Fprintf(out, "    [%s] %s (%s): %s\n",
						rec.CreatedAt.Local().Format(time.DateTime), rec.Kind, rec.Stage, rec.Message)
				}
			}
			return nil
		}),
	}
}

func newQueueClearCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove completed and failed jobs",
		RunE: withStore(cctx, func(cmd *cobra.Command, args []string, store *queue.Store) error {
			removed, err := store.ClearFinished(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d finished job(s).\n", removed)
			return nil
		}),
	}
}

func newQueueHealthCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Summarize queue state",
		RunE: withStore(cctx, func(cmd *cobra.Command, args []string, store *queue.Store) error {
			health, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Total", "Pending", "Processing", "Completed", "Failed"},
				[][]string{{
					strconv.Itoa(health.Total),
					strconv.Itoa(health.Pending),
					strconv.Itoa(health.Processing),
					strconv.Itoa(health.Completed),
					strconv.Itoa(health.Failed),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		}),
	}
}

func valueOr(primary, fallback string) string {
	if strings.TrimSpace(primary) != "" {
		return primary
	}
	return fallback
}
