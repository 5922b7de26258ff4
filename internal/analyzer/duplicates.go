package analyzer

import (
	"net/url"
	"sort"
	"strings"

	"github.com/lotas/tabregel/internal/types"
)

// NormalizeURL drops the fragment, sorts query parameters and trims a
// trailing slash so near-identical URLs compare equal.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	params := u.Query()
	for k := range params {
		sort.Strings(params[k])
	}
	u.RawQuery = params.Encode()
	result := u.String()
	if strings.HasSuffix(result, "/") && result != u.Scheme+"://"+u.Host+"/" {
		result = strings.TrimRight(result, "/")
	}
	return result
}

// Duplicates returns the tabs whose URL was already seen earlier in tabs.
// The first occurrence of every URL is kept. With normalize set, URLs are
// compared after NormalizeURL; otherwise they must be identical.
func Duplicates(tabs []*types.Tab, normalize bool) []*types.Tab {
	seen := make(map[string]bool, len(tabs))
	var dups []*types.Tab
	for _, tab := range tabs {
		key := tab.URL
		if normalize {
			key = NormalizeURL(key)
		}
		if seen[key] {
			dups = append(dups, tab)
			continue
		}
		seen[key] = true
	}
	return dups
}
