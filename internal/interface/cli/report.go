package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/domain/repository"
	"github.com/crewsync/crewsync/internal/infrastructure/config"
	"github.com/crewsync/crewsync/internal/infrastructure/persistence/sqlite"
)

type reportLine struct {
	Seq    int64  `json:"seq"`
	At     string `json:"at"`
	Kind   string `json:"kind"`
	TaskID string `json:"task_id,omitempty"`
	Worker string `json:"worker,omitempty"`
	Detail string `json:"detail"`
}

func newReportCmd() *cobra.Command {
	var (
		taskID     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the audit journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				entries []repository.JournalEntry
				err     error
			)
			if taskID != "" {
				entries, err = loadJournalByTask(cmd, taskID)
			} else {
				entries, err = loadJournal(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				lines := make([]reportLine, 0, len(entries))
				for _, e := range entries {
					lines = append(lines, reportLine{
						Seq:    e.Seq,
						At:     e.RecordedAt.Format(time.RFC3339Nano),
						Kind:   string(e.Kind),
						TaskID: e.TaskID,
						Worker: e.WorkerID,
						Detail: e.Detail,
					})
				}
				b, err := json.MarshalIndent(lines, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(b))
				return nil
			}

			if len(entries) == 0 {
				fmt.Println("Journal is empty.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("%6d  %s  %-12s %-26s %-12s %s\n",
					e.Seq,
					e.RecordedAt.Format(time.RFC3339),
					e.Kind,
					e.TaskID,
					e.WorkerID,
					e.Detail,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&taskID, "task", "", "Show entries for one task only")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the journal in JSON format")
	return cmd
}

func loadJournalByTask(cmd *cobra.Command, taskID string) ([]repository.JournalEntry, error) {
	settings, err := config.LoadSettings(baseDir)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	db, err := sqlite.OpenDB(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	defer db.Close()

	return sqlite.NewJournalRepository(db).ListByTask(cmd.Context(), taskID)
}
