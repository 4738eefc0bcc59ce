package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"hlsgrab/models"
	"hlsgrab/util"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const maxPageSize = 8 * 1024 * 1024

var (
	manifestPattern = regexp.MustCompile(`https://[^\s"'<>]+\.m3u8(?:\?[^\s"'<>]*)?`)
	keyPattern      = regexp.MustCompile(`https://[^\s"'<>]+\.key(?:\?[^\s"'<>]*)?`)
	unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

	ErrNoManifest = errors.New("no m3u8 link found on the page")
)

// Resolved is what a video page points at.
type Resolved struct {
	PageURL     string
	ManifestURL string
	KeyURL      string
	Title       string
}

// PageResolver finds the playlist behind a video page. Pages are fetched
// with the same retry policy as segments, through config.Client.
type PageResolver struct {
	fetcher *util.Fetcher
	headers *HeaderProvider
}

func NewPageResolver(config *models.DownloadConfig, headers *HeaderProvider) *PageResolver {
	if headers == nil {
		headers, _ = NewHeaderProvider(nil, nil)
	}
	pageConfig := *models.GetDownloadConfig(config)
	pageConfig.MaxSegmentSize = maxPageSize
	return &PageResolver{
		fetcher: util.NewFetcher(&pageConfig, nil),
		headers: headers,
	}
}

func (r *PageResolver) Resolve(ctx context.Context, pageURL string) (*Resolved, error) {
	body, err := r.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse page")
	}

	resolved := &Resolved{
		PageURL: pageURL,
		Title:   pageTitle(doc),
	}
	resolved.ManifestURL = findManifestInDocument(doc, pageURL)
	if resolved.ManifestURL == "" {
		// players often build the source in inline scripts
		match := manifestPattern.Find(body)
		if match == nil {
			return nil, ErrNoManifest
		}
		resolved.ManifestURL = util.FixURL(strings.Trim(string(match), `"'`))
	}
	if match := keyPattern.Find(body); match != nil {
		resolved.KeyURL = util.FixURL(string(match))
	}

	zap.S().Debugf("resolved %s to %s", pageURL, resolved.ManifestURL)
	return resolved, nil
}

func (r *PageResolver) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	headers := r.headers.Headers(pageURL)
	headers["Accept"] = "text/html,application/xhtml+xml"

	body, err := r.fetcher.Fetch(ctx, pageURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	return body, nil
}

func findManifestInDocument(doc *goquery.Document, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	selectors := []struct {
		selector string
		attr     string
	}{
		{"video source[src]", "src"},
		{"video[src]", "src"},
		{`source[type="application/x-mpegURL"]`, "src"},
		{`source[type="application/vnd.apple.mpegurl"]`, "src"},
		{`meta[property="og:video"]`, "content"},
		{`meta[property="og:video:url"]`, "content"},
		{"[data-src]", "data-src"},
		{"[data-hls]", "data-hls"},
	}
	for _, s := range selectors {
		var found string
		doc.Find(s.selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			value, ok := sel.Attr(s.attr)
			if !ok || !strings.Contains(value, ".m3u8") {
				return true
			}
			ref, err := url.Parse(util.FixURL(strings.TrimSpace(value)))
			if err != nil {
				return true
			}
			found = base.ResolveReference(ref).String()
			return false
		})
		if found != "" {
			return found
		}
	}
	return ""
}

func pageTitle(doc *goquery.Document) string {
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// SafeFileName turns a page title into something usable as a file name.
func SafeFileName(title string) string {
	name := unsafeNameChars.ReplaceAllString(title, "_")
	name = strings.Trim(strings.Join(strings.Fields(name), " "), " ._")
	if runes := []rune(name); len(runes) > 150 {
		name = string(runes[:150])
	}
	return name
}
