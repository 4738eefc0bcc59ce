package networking

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"hlsgrab/models"

	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

var (
	defaultClient     *http.Client
	defaultClientOnce sync.Once
)

func GetDefaultHTTPClient() *http.Client {
	defaultClientOnce.Do(func() {
		defaultClient = &http.Client{
			Transport: GetBaseTransport(),
			Timeout:   60 * time.Second,
		}
	})
	return defaultClient
}

func GetBaseTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		ResponseHeaderTimeout: 10 * time.Second,
		DisableCompression:    false,
	}
}

// NewClientFromConfig builds a client honouring the proxy and HTTP/3 settings.
// The caller owns the returned client and should call CloseIdleConnections
// once it is done with it.
func NewClientFromConfig(cfg *models.EnvConfig) *http.Client {
	client := &http.Client{
		Timeout: 60 * time.Second,
	}
	if cfg == nil {
		client.Transport = GetBaseTransport()
		return client
	}
	if cfg.HTTP3 {
		if cfg.HTTPProxy != "" || cfg.HTTPSProxy != "" {
			zap.S().Warnf("proxies are ignored when HTTP/3 is enabled")
		}
		client.Transport = &http3.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS13},
		}
		return client
	}
	transport := GetBaseTransport()
	if cfg.HTTPProxy != "" || cfg.HTTPSProxy != "" {
		configureProxyTransport(transport, cfg)
	}
	client.Transport = transport
	return client
}

// NewCookieClient is like NewClientFromConfig but keeps cookies set by the
// server across requests, which pages and manifests behind a CDN often need.
func NewCookieClient(cfg *models.EnvConfig) *http.Client {
	client := NewClientFromConfig(cfg)
	jar, err := cookiejar.New(&cookiejar.Options{
		PublicSuffixList: publicsuffix.List,
	})
	if err != nil {
		zap.S().Warnf("failed to create cookie jar: %v", err)
		return client
	}
	client.Jar = jar
	return client
}
