package cli

import (
	"fmt"
	"io"
	"time"

	"hlsgrab/database"
	"hlsgrab/models"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func NewHistoryCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history [output]",
		Short: "Show recent downloads, or the last one written to a file (needs a database)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !database.Enabled() {
				return fmt.Errorf("no database configured, set DB_HOST to keep a download history")
			}
			if len(args) == 1 {
				record, err := database.GetRecordByOutputPath(args[0])
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("no download recorded for %s", args[0])
				}
				if err != nil {
					return fmt.Errorf("failed to load history: %w", err)
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), record)
				}
				printRecord(cmd.OutOrStdout(), record)
				return nil
			}
			records, err := database.GetRecentRecords(limit)
			if err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), records)
			}

			w := cmd.OutOrStdout()
			for _, record := range records {
				fmt.Fprintf(
					w, "%-10s %-9s %9s  %s\n",
					humanize.Time(record.CreatedAt), record.Status,
					humanize.Bytes(uint64(max(record.BytesWritten, 0))), record.OutputPath,
				)
			}
			total, err := database.GetDownloadsCount()
			if err != nil {
				return err
			}
			failed, err := database.GetFailedDownloadsCount()
			if err != nil {
				return err
			}
			today, err := database.GetDailyDownloadsCount()
			if err != nil {
				return err
			}
			written, err := database.GetTotalBytesWritten()
			if err != nil {
				return err
			}
			fmt.Fprintf(
				w, "\n%d download(s), %d failed, %d today, %s written\n",
				total, failed, today, humanize.Bytes(uint64(max(written, 0))),
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of downloads to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the records as JSON")

	return cmd
}

func printRecord(w io.Writer, record *models.DownloadRecord) {
	fmt.Fprintf(w, "%s\n  id:       %s\n  playlist: %s\n  status:   %s", record.OutputPath, record.DownloadID, record.ManifestURL, record.Status)
	if record.FailedIn.Valid {
		fmt.Fprintf(w, " after %s: %s", record.FailedIn.String, record.Reason.String)
	}
	fmt.Fprintf(
		w, "\n  written:  %s, %d of %d segments missing, took %s\n",
		humanize.Bytes(uint64(max(record.BytesWritten, 0))), record.FailedSegments, record.TotalSegments,
		time.Duration(record.ElapsedMS)*time.Millisecond,
	)
	if record.Resumed {
		fmt.Fprintln(w, "  resumed from a checkpoint")
	}
}
