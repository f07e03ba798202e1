package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/interface/cli/version"
)

// baseDir is resolved once by the root command and shared by all
// subcommands
var baseDir = ".crewsync"

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crewsync",
		Short: "Multi-worker task coordination engine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Priority: --dir flag > ENV > default
			if cmd.Flags().Changed("dir") {
				return
			}
			if home := os.Getenv("CREWSYNC_HOME"); home != "" {
				baseDir = home
			}
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.PersistentFlags().StringVar(&baseDir, "dir", baseDir, "Base directory for settings and the journal database")
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(version.NewCommand())
	return cmd
}
