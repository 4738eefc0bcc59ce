package core

import (
	"context"

	"hlsgrab/config"
	"hlsgrab/models"
	"hlsgrab/source"
)

// Download fetches the stream behind manifestURI into outputPath using
// the process-wide configuration. A relative outputPath is taken from the
// working directory, and the configured extension is added when it has none.
func Download(
	ctx context.Context,
	manifestURI string,
	outputPath string,
	headers map[string]string,
) *models.DownloadOutcome {
	cfg := config.GetDownloadConfig(config.Env)
	downloader := New(source.NewHTTPManifestSource(cfg), cfg)
	return downloader.Download(ctx, Request{
		ManifestURL: manifestURI,
		OutputPath:  outputPath,
		Headers:     headers,
	})
}
