package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func NewDownloadCmd() *cobra.Command {
	var (
		job        Job
		options    JobOptions
		headerArgs []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a single stream",
		Long: `Download a single HLS stream into one file.

The url is a media or master playlist, or a web page embedding one when
--page is set. Running the same command again after an interruption
resumes from the last checkpoint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			headers, err := parseHeaderFlags(headerArgs)
			if err != nil {
				return err
			}
			job.URL = args[0]
			job.Headers = headers

			outcome, err := runJob(cmd.Context(), &job, options)
			if errors.Is(err, errSkipped) {
				fmt.Fprintln(cmd.OutOrStdout(), "skipped: output already exists")
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), outcome); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), outcome)
			}
			if !outcome.Completed() {
				return fmt.Errorf("download failed: %w", outcome.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&job.Output, "output", "o", "", "output file, relative paths go to the downloads directory")
	cmd.Flags().BoolVar(&job.Page, "page", false, "treat the url as a web page and look for the playlist in it")
	cmd.Flags().StringVar(&job.KeyURL, "key-url", "", "fetch the decryption key from this url instead of the playlist's")
	cmd.Flags().StringVar(&job.Referer, "referer", "", "Referer header for every request")
	cmd.Flags().StringArrayVarP(&headerArgs, "header", "H", nil, `extra request header as "Name: value", repeatable`)
	cmd.Flags().StringVar(&options.CookiesFile, "cookies", "", "Netscape cookies file")
	cmd.Flags().IntVarP(&options.Concurrency, "concurrency", "c", 0, "parallel segment fetches (default: CONCURRENCY)")
	cmd.Flags().BoolVar(&options.SkipExisting, "skip-existing", false, "do nothing when the output file already exists")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the outcome as JSON")

	return cmd
}
