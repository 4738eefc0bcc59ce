package cli

import (
	"fmt"
	"time"

	"hlsgrab/config"
	"hlsgrab/util"

	"github.com/spf13/cobra"
)

func NewCleanCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean [dir]",
		Short: "Remove stale partial downloads",
		Long: `Remove temporary and checkpoint files left behind by downloads that were
never resumed. Removed downloads start from scratch when run again.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := config.Env.DownloadsDirectory
			if len(args) > 0 {
				dir = args[0]
			}
			removed, err := util.CleanupStalePartials(dir, olderThan)
			if err != nil {
				return fmt.Errorf("failed to clean %s: %w", dir, err)
			}
			for _, path := range removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", path)
			}
			if len(removed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to clean")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 7*24*time.Hour, "only remove files not modified for this long")

	return cmd
}
