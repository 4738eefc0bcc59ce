package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/aki237/nscjar"
	"golang.org/x/net/publicsuffix"
)

const ChromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

var (
	cookiesCache      = make(map[string][]*http.Cookie)
	cookiesCacheMutex sync.Mutex
)

// ParseCookieFile reads a Netscape cookies.txt export. Results are cached
// per path for the life of the process.
func ParseCookieFile(path string) ([]*http.Cookie, error) {
	cookiesCacheMutex.Lock()
	defer cookiesCacheMutex.Unlock()

	cachedCookies, ok := cookiesCache[path]
	if ok {
		return cachedCookies, nil
	}
	cookieFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer cookieFile.Close()

	var parser nscjar.Parser
	cookies, err := parser.Unmarshal(cookieFile)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cookie file: %w", err)
	}
	cookiesCache[path] = cookies
	return cookies, nil
}

// CookiesForURL keeps the cookies whose domain and path cover rawURL.
func CookiesForURL(cookies []*http.Cookie, rawURL string) []*http.Cookie {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(parsedURL.Hostname())
	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}

	matched := make([]*http.Cookie, 0, len(cookies))
	for _, cookie := range cookies {
		domain := strings.ToLower(strings.TrimPrefix(cookie.Domain, "."))
		if domain != "" && host != domain && !strings.HasSuffix(host, "."+domain) {
			continue
		}
		if cookie.Path != "" && !strings.HasPrefix(path, cookie.Path) {
			continue
		}
		if cookie.Secure && parsedURL.Scheme != "https" {
			continue
		}
		matched = append(matched, cookie)
	}
	return matched
}

// CookieHeader renders cookies as a single Cookie header value.
func CookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		parts = append(parts, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(parts, "; ")
}

func FixURL(url string) string {
	return strings.ReplaceAll(url, "&amp;", "&")
}

// ExtractBaseHost returns the registrable domain of rawURL,
// e.g. cdn.video.example.co.uk -> example.co.uk.
func ExtractBaseHost(rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		return "", errors.New("url has no host")
	}
	etld, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("failed to get eTLD+1: %w", err)
	}
	return etld, nil
}
