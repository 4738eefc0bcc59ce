package networking

import (
	"net/http"
	"testing"

	"hlsgrab/models"

	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientFromConfig(t *testing.T) {
	client := NewClientFromConfig(nil)
	assert.IsType(t, &http.Transport{}, client.Transport)

	client = NewClientFromConfig(&models.EnvConfig{HTTP3: true})
	assert.IsType(t, &http3.Transport{}, client.Transport)
}

func TestProxyTransport(t *testing.T) {
	client := NewClientFromConfig(&models.EnvConfig{
		HTTPProxy:  "http://proxy.internal:3128",
		HTTPSProxy: "http://secure-proxy.internal:3128",
		NoProxy:    "localhost, .example.org",
	})
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)

	tests := []struct {
		url      string
		expected string
	}{
		{"http://cdn.example.com/a.ts", "http://proxy.internal:3128"},
		{"https://cdn.example.com/a.ts", "http://secure-proxy.internal:3128"},
		{"https://media.example.org/a.ts", ""},
		{"http://localhost:8080/a.ts", ""},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodGet, tt.url, nil)
		require.NoError(t, err)
		proxyURL, err := transport.Proxy(req)
		require.NoError(t, err)
		if tt.expected == "" {
			assert.Nil(t, proxyURL, tt.url)
		} else {
			require.NotNil(t, proxyURL, tt.url)
			assert.Equal(t, tt.expected, proxyURL.String())
		}
	}
}

func TestNewCookieClientHasJar(t *testing.T) {
	assert.NotNil(t, NewCookieClient(nil).Jar)
}
