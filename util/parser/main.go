package parser

import (
	"net/url"
	"strings"
)

func resolveURL(base *url.URL, uri string) string {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}

// SamePath reports whether two segment URIs point at the same resource,
// ignoring query strings, which CDNs use for expiring tokens.
func SamePath(a, b string) bool {
	aURL, errA := url.Parse(a)
	bURL, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return aURL.Host == bURL.Host && aURL.Path == bURL.Path
}
