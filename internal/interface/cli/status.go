package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/domain/repository"
	"github.com/crewsync/crewsync/internal/infrastructure/config"
	"github.com/crewsync/crewsync/internal/infrastructure/persistence/sqlite"
)

type taskStatusLine struct {
	TaskID    string `json:"task_id"`
	Worker    string `json:"worker,omitempty"`
	LastEvent string `json:"last_event"`
	At        string `json:"at"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last journaled event per task",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadJournal(cmd.Context(), 0)
			if err != nil {
				return err
			}

			latest := make(map[string]repository.JournalEntry)
			for _, e := range entries {
				if e.TaskID == "" {
					continue
				}
				latest[e.TaskID] = e
			}

			lines := make([]taskStatusLine, 0, len(latest))
			for _, e := range latest {
				lines = append(lines, taskStatusLine{
					TaskID:    e.TaskID,
					Worker:    e.WorkerID,
					LastEvent: e.Detail,
					At:        e.RecordedAt.Format(time.RFC3339),
				})
			}
			sort.Slice(lines, func(i, j int) bool { return lines[i].TaskID < lines[j].TaskID })

			if jsonOutput {
				b, err := json.MarshalIndent(lines, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(b))
				return nil
			}

			if len(lines) == 0 {
				fmt.Println("No journaled tasks.")
				return nil
			}
			for _, l := range lines {
				fmt.Printf("%-26s %-40s %s\n", l.TaskID, l.LastEvent, l.At)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status in JSON format")
	return cmd
}

// loadJournal opens the journal database read side. limit <= 0 loads
// everything.
func loadJournal(ctx context.Context, limit int) ([]repository.JournalEntry, error) {
	settings, err := config.LoadSettings(baseDir)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	db, err := sqlite.OpenDB(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	defer db.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	return sqlite.NewJournalRepository(db).List(ctx, limit)
}
