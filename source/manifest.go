package source

import (
	"bytes"
	"context"
	"fmt"

	"hlsgrab/models"
	"hlsgrab/util"
)

var playlistTag = []byte("#EXTM3U")

// HTTPManifestSource fetches playlists over HTTP with the same retry
// policy as segments.
type HTTPManifestSource struct {
	fetcher util.SegmentFetcher
}

func NewHTTPManifestSource(config *models.DownloadConfig) *HTTPManifestSource {
	return &HTTPManifestSource{
		fetcher: util.NewFetcher(config, nil),
	}
}

func (s *HTTPManifestSource) FetchManifest(
	ctx context.Context,
	uri string,
	headers map[string]string,
) ([]byte, error) {
	content, err := s.fetcher.Fetch(ctx, uri, headers)
	if err != nil {
		return nil, err
	}
	// some servers prepend a BOM or blank lines
	trimmed := bytes.TrimLeft(content, "\ufeff \t\r\n")
	if !bytes.HasPrefix(trimmed, playlistTag) {
		return nil, fmt.Errorf("%s did not return a playlist", uri)
	}
	return trimmed, nil
}
