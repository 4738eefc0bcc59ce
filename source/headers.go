package source

import (
	"net/http"
	"net/url"
	"strings"

	"hlsgrab/models"
	"hlsgrab/util"

	"go.uber.org/zap"
)

// HeaderProvider builds the header set sent with every manifest, key and
// segment request of a download.
type HeaderProvider struct {
	userAgent string
	referer   string
	cookies   []*http.Cookie
	profiles  map[string]*models.HeaderProfile
}

func NewHeaderProvider(
	env *models.EnvConfig,
	profiles map[string]*models.HeaderProfile,
) (*HeaderProvider, error) {
	provider := &HeaderProvider{
		userAgent: util.ChromeUA,
		profiles:  profiles,
	}
	if env == nil {
		return provider, nil
	}
	if env.UserAgent != "" {
		provider.userAgent = env.UserAgent
	}
	provider.referer = env.Referer
	if env.CookiesFile != "" {
		cookies, err := util.ParseCookieFile(env.CookiesFile)
		if err != nil {
			return nil, err
		}
		provider.cookies = cookies
	}
	return provider, nil
}

// WithReferer returns a copy that uses referer unless a host profile says
// otherwise. The page a stream was found on is the usual choice.
func (p *HeaderProvider) WithReferer(referer string) *HeaderProvider {
	clone := *p
	clone.referer = referer
	return &clone
}

// Headers returns the headers for requests made on behalf of targetURL.
// Precedence, lowest first: defaults, host profile, explicit profile headers.
func (p *HeaderProvider) Headers(targetURL string) map[string]string {
	headers := map[string]string{
		"User-Agent": p.userAgent,
	}
	if p.referer != "" {
		headers["Referer"] = p.referer
	}
	cookies := util.CookiesForURL(p.cookies, targetURL)

	profile := p.profileFor(targetURL)
	if profile != nil {
		if profile.UserAgent != "" {
			headers["User-Agent"] = profile.UserAgent
		}
		if profile.Referer != "" {
			headers["Referer"] = profile.Referer
		}
		if profile.Origin != "" {
			headers["Origin"] = profile.Origin
		}
		if profile.CookiesFile != "" {
			profileCookies, err := util.ParseCookieFile(profile.CookiesFile)
			if err != nil {
				zap.S().Warnf("ignoring cookies file %s: %v", profile.CookiesFile, err)
			} else {
				cookies = append(cookies, util.CookiesForURL(profileCookies, targetURL)...)
			}
		}
		for key, value := range profile.Headers {
			headers[http.CanonicalHeaderKey(key)] = value
		}
	}
	if len(cookies) > 0 {
		headers["Cookie"] = util.CookieHeader(cookies)
	}
	return headers
}

// profileFor matches the exact host first, then the registrable domain.
func (p *HeaderProvider) profileFor(targetURL string) *models.HeaderProfile {
	if len(p.profiles) == 0 {
		return nil
	}
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(parsedURL.Hostname())
	if profile, ok := p.profiles[host]; ok {
		return profile
	}
	baseHost, err := util.ExtractBaseHost(targetURL)
	if err != nil {
		return nil
	}
	return p.profiles[baseHost]
}
