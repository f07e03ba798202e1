package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/domain/model"
	"github.com/crewsync/crewsync/internal/infrastructure/di"
	"github.com/crewsync/crewsync/internal/infrastructure/ingest"
)

func newRunCmd() *cobra.Command {
	var (
		taskFile string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit a task file and run workers until the plan drains",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := ingest.LoadTaskFile(taskFile)
			if err != nil {
				return err
			}

			container, err := di.NewContainer(di.Config{
				BaseDir:     baseDir,
				Workers:     workers,
				DrainOnIdle: true,
			})
			if err != nil {
				return err
			}
			defer container.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := container.Start(ctx); err != nil {
				return err
			}

			coordinator := container.Coordinator()
			for _, input := range inputs {
				snapshot, err := coordinator.Submit(input)
				if err != nil {
					return fmt.Errorf("submit %s: %w", input.ID, err)
				}
				fmt.Printf("submitted %-26s %s\n", snapshot.ID, snapshot.Status)
			}

			if err := container.Runner().Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("run workers: %w", err)
			}

			return printSummary(container)
		},
	}

	cmd.Flags().StringVarP(&taskFile, "file", "f", "tasks.yaml", "Task file to submit")
	cmd.Flags().IntVar(&workers, "workers", 0, "Override the configured worker count")
	return cmd
}

func printSummary(container *di.Container) error {
	all, err := container.Coordinator().ListAll()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Final state:")
	failed := 0
	for _, t := range all {
		line := fmt.Sprintf("  %-26s %-12s %3d%%", t.ID, t.Status, t.Progress)
		if t.Flagged {
			line += "  [flagged]"
		}
		if t.BlockReason != "" {
			line += "  (" + t.BlockReason + ")"
		}
		fmt.Println(line)
		if t.Status == model.StatusFailed {
			failed++
		}
	}

	if locks := container.LockManager().List(); len(locks) > 0 {
		fmt.Println("Outstanding locks:")
		for _, l := range locks {
			fmt.Printf("  %-30s %-12s held by %v\n", l.Resource, l.Type, l.Holders)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d task(s) failed", failed)
	}
	return nil
}
