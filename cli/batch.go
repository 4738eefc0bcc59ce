package cli

import (
	"errors"
	"fmt"
	"os"

	"hlsgrab/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// JobFile is the batch file format.
type JobFile struct {
	Jobs []*Job `yaml:"jobs"`
}

type batchResult struct {
	Job     *Job                    `json:"job"`
	Outcome *models.DownloadOutcome `json:"outcome,omitempty"`
	Skipped bool                    `json:"skipped,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

func NewBatchCmd() *cobra.Command {
	var (
		options    JobOptions
		failFast   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "batch <jobs.yaml>",
		Short: "Download every stream listed in a YAML file, one after another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := loadJobs(args[0])
			if err != nil {
				return err
			}

			var results []*batchResult
			failed := 0
			for i, job := range jobs {
				if err := cmd.Context().Err(); err != nil {
					zap.S().Warnf("batch interrupted, %d job(s) not started", len(jobs)-i)
					break
				}
				zap.S().Infof("[%s] job %d of %d: %s", job.ID, i+1, len(jobs), job.URL)

				result := &batchResult{Job: job}
				results = append(results, result)
				outcome, err := runJob(cmd.Context(), job, options)
				switch {
				case errors.Is(err, errSkipped):
					result.Skipped = true
				case err != nil:
					result.Error = err.Error()
				case !outcome.Completed():
					result.Outcome = outcome
					result.Error = outcome.ReasonText
				default:
					result.Outcome = outcome
				}
				if result.Error != "" {
					failed++
					zap.S().Errorf("[%s] %s", job.ID, result.Error)
					if failFast {
						break
					}
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printBatchSummary(cmd, results)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d job(s) failed", failed, len(jobs))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&options.CookiesFile, "cookies", "", "Netscape cookies file for every job")
	cmd.Flags().IntVarP(&options.Concurrency, "concurrency", "c", 0, "parallel segment fetches per job (default: CONCURRENCY)")
	cmd.Flags().BoolVar(&options.SkipExisting, "skip-existing", false, "skip jobs whose output file already exists")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failed job")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the results as JSON")

	return cmd
}

func loadJobs(path string) ([]*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	var file JobFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	jobs := make([]*Job, 0, len(file.Jobs))
	for i, job := range file.Jobs {
		if job == nil || job.URL == "" {
			return nil, fmt.Errorf("job %d has no url", i+1)
		}
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		jobs = append(jobs, job)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%s lists no jobs", path)
	}
	return jobs, nil
}

func printBatchSummary(cmd *cobra.Command, results []*batchResult) {
	w := cmd.OutOrStdout()
	for _, result := range results {
		fmt.Fprintf(w, "%s: ", result.Job.URL)
		switch {
		case result.Skipped:
			fmt.Fprintln(w, "skipped: output already exists")
		case result.Outcome != nil:
			printOutcome(w, result.Outcome)
		default:
			fmt.Fprintf(w, "failed: %s\n", result.Error)
		}
	}
}
