package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rebind/internal/config"
	"rebind/internal/deps"
	"rebind/internal/diag"
	"rebind/internal/enhance"
	"rebind/internal/notifications"
	"rebind/internal/profiles"
	"rebind/internal/queue"
	"rebind/internal/workflow"
)

func newConvertCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input-path> <output-directory> [device-profile]",
		Short: "Convert one e-book into a CBZ archive",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cctx.ensureConfig()
			if err != nil {
				return err
			}

			profileName := ""
			if len(args) == 3 {
				profileName = args[2]
			}
			return runConvert(cmd, cfg, cctx, args[0], args[1], profileName)
		},
	}
}

func runConvert(cmd *cobra.Command, cfg *config.Config, cctx *commandContext, sourcePath, outputDir, profileName string) error {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		for _, status := range missing {
			fmt.Fprintf(cmd.ErrOrStderr(), "missing dependency: %s (%s)\n", status.Name, status.Detail)
		}
		return fmt.Errorf("required external binaries unavailable")
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := profiles.Load(cfg.Paths.ProfileDir)
	if err != nil {
		return err
	}

	enhancer, err := enhance.New(
		cfg.EnhancementBinary(),
		cfg.Enhancement.TimeoutSeconds,
		cfg.Enhancement.BundledToolDir,
		cfg.Enhancement.ExtraArgs,
	)
	if err != nil {
		return err
	}

	orch := workflow.New(cfg, store, catalog, enhancer,
		notifications.NewService(cfg), diag.New(), cctx.logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := orch.Submit(ctx, sourcePath, outputDir, profileName)
	if err != nil {
		return err
	}

	// Cooperative cancellation: the first interrupt cancels the job, the
	// worker still cleans up and records the failure.
	go func() {
		<-ctx.Done()
		handle.Cancel()
	}()

	renderer := newProgressRenderer(cmd.OutOrStdout())
	var terminal *workflow.Event
	for ev := range handle.Events() {
		switch ev.Type {
		case workflow.EventStatusChange:
			renderer.stage(string(ev.Status), ev.Percent)
		case workflow.EventProgress:
			renderer.progress(ev.Percent)
		case workflow.EventCompleted, workflow.EventFailed:
			terminal = &ev
		}
	}
	<-handle.Done()
	renderer.finish()

	if terminal == nil {
		return fmt.Errorf("conversion ended without a terminal event")
	}
	if terminal.Type == workflow.EventFailed {
		job, jobErr := store.GetByID(context.Background(), handle.ID)
		if jobErr == nil && job.DiagnosticLog != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Conversion failed: %s\nDiagnostic log: %s\n",
				terminal.Record.Message, job.DiagnosticLog)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Conversion failed: %s\n", terminal.Record.Message)
		}
		return fmt.Errorf("conversion failed (%s)", terminal.Record.Kind)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Conversion complete: %s\n", terminal.OutputPath)
	return nil
}
