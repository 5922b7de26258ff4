package analyzer

import (
	"net/url"
	"strings"
)

// UnknownDomain is the base domain of URLs that cannot be parsed or carry
// no host.
const UnknownDomain = "unknown"

// BaseDomain returns the last two dot-separated labels of the URL's host,
// after dropping a leading "www.". Hosts with a single label are returned
// whole. Multi-part public suffixes are not special-cased:
// "https://www.news.example.co.uk" yields "co.uk".
func BaseDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return UnknownDomain
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	// Hostless URLs such as about:blank share the parse-failure sentinel.
	if host == "" {
		return UnknownDomain
	}
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}
