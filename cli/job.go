package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"hlsgrab/config"
	"hlsgrab/core"
	"hlsgrab/database"
	"hlsgrab/models"
	"hlsgrab/source"
	"hlsgrab/util"
	"hlsgrab/util/networking"

	"github.com/bytedance/sonic"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Job is one stream to download, from the command line or a batch file.
type Job struct {
	ID      string            `yaml:"id" json:"id"`
	URL     string            `yaml:"url" json:"url"`
	Page    bool              `yaml:"page" json:"page"` // URL is a web page embedding the stream
	Output  string            `yaml:"output" json:"output"`
	KeyURL  string            `yaml:"key_url" json:"key_url"`
	Referer string            `yaml:"referer" json:"referer"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// JobOptions are the command line settings shared by every job of a run.
type JobOptions struct {
	Concurrency  int
	CookiesFile  string
	SkipExisting bool
}

var errSkipped = errors.New("output already exists")

// runJob resolves, downloads and records a single job. A nil outcome
// with errSkipped means the output was already there.
func runJob(ctx context.Context, job *Job, options JobOptions) (*models.DownloadOutcome, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	env := *config.Env
	if options.CookiesFile != "" {
		env.CookiesFile = options.CookiesFile
	}
	provider, err := source.NewHeaderProvider(&env, config.HeaderProfiles())
	if err != nil {
		return nil, err
	}

	manifestURL := job.URL
	keyURL := job.KeyURL
	output := job.Output
	if job.Page {
		client := networking.NewCookieClient(&env)
		defer client.CloseIdleConnections()
		pageConfig := config.GetDownloadConfig(&env)
		pageConfig.Client = client
		resolved, err := source.NewPageResolver(pageConfig, provider).Resolve(ctx, job.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve page %s: %w", job.URL, err)
		}
		manifestURL = resolved.ManifestURL
		if keyURL == "" {
			keyURL = resolved.KeyURL
		}
		if output == "" {
			output = source.SafeFileName(resolved.Title)
		}
		provider = provider.WithReferer(job.URL)
	}
	if job.Referer != "" {
		provider = provider.WithReferer(job.Referer)
	}
	if output == "" {
		output = defaultOutputName(manifestURL, job.ID)
	}

	cfg := config.GetDownloadConfig(&env)
	if options.Concurrency > 0 {
		cfg.Concurrency = options.Concurrency
		cfg.ReorderWindow = 0
		cfg.Ensure()
	}
	output = util.EnsureFileInDownloadsDir(cfg.DownloadDir, output)
	paths := util.NewArtifactPaths(output, cfg.Extension)
	if options.SkipExisting {
		if _, err := os.Stat(paths.Final); err == nil {
			zap.S().Infof("[%s] %s already exists, skipping", job.ID, paths.Final)
			return nil, errSkipped
		}
	}

	client := networking.NewClientFromConfig(&env)
	defer client.CloseIdleConnections()
	cfg.Client = client
	cfg.ProgressUpdater = progressLogger(job.ID)

	headers := provider.Headers(manifestURL)
	for key, value := range job.Headers {
		headers[key] = value
	}

	downloader := core.New(source.NewHTTPManifestSource(cfg), cfg)
	outcome := downloader.Download(ctx, core.Request{
		ManifestURL: manifestURL,
		OutputPath:  output,
		Headers:     headers,
		KeyURL:      keyURL,
	})
	// a cancelled run still gets recorded
	recordCtx := context.WithoutCancel(ctx)
	if err := database.StoreOutcome(outcome); err != nil {
		zap.S().Warnf("[%s] failed to store download record: %v", outcome.ID, err)
	}
	if notifier != nil {
		if err := notifier.Notify(recordCtx, outcome); err != nil {
			zap.S().Warnf("[%s] %v", outcome.ID, err)
		}
	}
	return outcome, nil
}

// progressLogger logs every tenth of the work at info level.
func progressLogger(id string) func(float64) {
	var lastStep atomic.Int64
	return func(progress float64) {
		step := int64(math.Floor(progress * 10))
		if step > lastStep.Load() {
			lastStep.Store(step)
			zap.S().Infof("[%s] %d%% of segments resolved", id, step*10)
		}
	}
}

// defaultOutputName names the output after the playlist, or after the
// playlist's directory when the file is a generic index.m3u8.
func defaultOutputName(manifestURL string, fallback string) string {
	parsed, err := url.Parse(manifestURL)
	if err != nil {
		return fallback
	}
	name := strings.TrimSuffix(path.Base(parsed.Path), path.Ext(parsed.Path))
	switch name {
	case "index", "playlist", "master", "prog_index", "chunklist", "":
		dir := path.Base(path.Dir(parsed.Path))
		if dir == "/" || dir == "." {
			return fallback
		}
		name = dir
	}
	name = source.SafeFileName(name)
	if name == "" {
		return fallback
	}
	return name
}

// parseHeaderFlags turns repeated "Name: value" flags into a map.
func parseHeaderFlags(values []string) (map[string]string, error) {
	headers := make(map[string]string, len(values))
	for _, value := range values {
		name, content, ok := strings.Cut(value, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", value)
		}
		headers[name] = strings.TrimSpace(content)
	}
	return headers, nil
}

func printOutcome(w io.Writer, outcome *models.DownloadOutcome) {
	if !outcome.Completed() {
		fmt.Fprintf(w, "failed: %s (after %s)\n", outcome.ReasonText, outcome.FailedIn)
		return
	}
	fmt.Fprintf(
		w, "saved %s (%s, %d segments",
		outcome.OutputPath, humanize.Bytes(uint64(max(outcome.BytesWritten, 0))), outcome.TotalSegments,
	)
	if outcome.FailedSegments > 0 {
		fmt.Fprintf(w, ", %d missing", outcome.FailedSegments)
	}
	fmt.Fprintf(w, ") in %s\n", outcome.Elapsed.Round(time.Millisecond))
	switch {
	case outcome.Severe:
		fmt.Fprintf(w, "warning: %.1f%% of segments are missing, the file is likely unusable\n", outcome.FailureRate*100)
	case outcome.Warning:
		fmt.Fprintf(w, "warning: %.1f%% of segments are missing, the file may be corrupted\n", outcome.FailureRate*100)
	}
}

func writeJSON(w io.Writer, value any) error {
	data, err := sonic.ConfigStd.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode output")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
