package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"hlsgrab/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPManifestSourceTrimsPreamble(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://page.example.com/", r.Header.Get("Referer"))
		w.Write([]byte("\ufeff\n#EXTM3U\n#EXT-X-TARGETDURATION:1\n"))
	}))
	defer server.Close()

	source := NewHTTPManifestSource(&models.DownloadConfig{RetryAttempts: 1})
	content, err := source.FetchManifest(context.Background(), server.URL, map[string]string{
		"Referer": "https://page.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n#EXT-X-TARGETDURATION:1\n", string(content))
}

func TestHTTPManifestSourceRejectsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login required</html>"))
	}))
	defer server.Close()

	source := NewHTTPManifestSource(&models.DownloadConfig{RetryAttempts: 1})
	_, err := source.FetchManifest(context.Background(), server.URL, nil)
	assert.Error(t, err)
}

func TestHeaderProviderDefaults(t *testing.T) {
	provider, err := NewHeaderProvider(&models.EnvConfig{
		UserAgent: "agent/1.0",
		Referer:   "https://www.example.com/",
	}, nil)
	require.NoError(t, err)

	headers := provider.Headers("https://cdn.example.com/a.m3u8")
	assert.Equal(t, "agent/1.0", headers["User-Agent"])
	assert.Equal(t, "https://www.example.com/", headers["Referer"])
	assert.NotContains(t, headers, "Cookie")
}

func TestHeaderProviderProfiles(t *testing.T) {
	profiles := map[string]*models.HeaderProfile{
		"cdn.example.com": {
			Referer: "https://player.example.com/",
			Headers: map[string]string{"x-token": "abc"},
		},
		"example.org": {
			UserAgent: "org-agent",
			Origin:    "https://www.example.org",
		},
	}
	provider, err := NewHeaderProvider(nil, profiles)
	require.NoError(t, err)
	provider = provider.WithReferer("https://page.example.com/watch/1")

	headers := provider.Headers("https://cdn.example.com/video/index.m3u8")
	assert.Equal(t, "https://player.example.com/", headers["Referer"])
	assert.Equal(t, "abc", headers["X-Token"])

	// matched through the registrable domain
	headers = provider.Headers("https://media.cdn.example.org/index.m3u8")
	assert.Equal(t, "org-agent", headers["User-Agent"])
	assert.Equal(t, "https://www.example.org", headers["Origin"])
	assert.Equal(t, "https://page.example.com/watch/1", headers["Referer"])

	headers = provider.Headers("https://unrelated.net/index.m3u8")
	assert.Equal(t, "https://page.example.com/watch/1", headers["Referer"])
	assert.NotContains(t, headers, "X-Token")
}

func pageConfig() *models.DownloadConfig {
	return &models.DownloadConfig{
		Client:        &http.Client{Timeout: 5 * time.Second},
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		MaxRetryDelay: 2 * time.Millisecond,
	}
}

func TestPageResolverFindsSourceElement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head>
<title>ignored</title>
<meta property="og:title" content="Episode 12: The Return">
</head><body>
<video controls><source src="/hls/ep12/index.m3u8?sig=1&amp;exp=2" type="application/x-mpegURL"></video>
</body></html>`))
	}))
	defer server.Close()

	resolver := NewPageResolver(pageConfig(), nil)
	resolved, err := resolver.Resolve(context.Background(), server.URL+"/watch/12")
	require.NoError(t, err)

	assert.Equal(t, server.URL+"/hls/ep12/index.m3u8?sig=1&exp=2", resolved.ManifestURL)
	assert.Equal(t, "Episode 12: The Return", resolved.Title)
	assert.Empty(t, resolved.KeyURL)
}

func TestPageResolverFallsBackToScripts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title> Clip </title></head><body>
<script>
var player = new Player({
  source: "https://cdn.example.com/v/abc/index.m3u8?token=xyz",
  key: "https://keys.example.com/abc.key"
});
</script></body></html>`))
	}))
	defer server.Close()

	resolver := NewPageResolver(pageConfig(), nil)
	resolved, err := resolver.Resolve(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/v/abc/index.m3u8?token=xyz", resolved.ManifestURL)
	assert.Equal(t, "https://keys.example.com/abc.key", resolved.KeyURL)
	assert.Equal(t, "Clip", resolved.Title)
}

func TestPageResolverErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.Write([]byte(`<html><body>nothing here</body></html>`))
	}))
	defer server.Close()

	resolver := NewPageResolver(pageConfig(), nil)

	_, err := resolver.Resolve(context.Background(), server.URL+"/empty")
	assert.ErrorIs(t, err, ErrNoManifest)

	_, err = resolver.Resolve(context.Background(), server.URL+"/gone")
	assert.Error(t, err)
}

func TestPageResolverRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "text/html,application/xhtml+xml", r.Header.Get("Accept"))
		w.Write([]byte(`<video src="/live/index.m3u8"></video>`))
	}))
	defer server.Close()

	resolved, err := NewPageResolver(pageConfig(), nil).Resolve(context.Background(), server.URL+"/watch")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/live/index.m3u8", resolved.ManifestURL)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "Episode 12_ The Return", SafeFileName("Episode 12: The Return"))
	assert.Equal(t, "a_b", SafeFileName("  a/b.  "))
}
