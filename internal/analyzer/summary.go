package analyzer

import "github.com/lotas/tabregel/internal/types"

// ComputeStats counts windows, tabs, groups, pinned tabs and distinct base
// domains. Tabs whose URL has no usable host do not count as a domain.
func ComputeStats(snap *types.Snapshot) types.Stats {
	stats := types.Stats{Windows: len(snap.Windows)}
	domains := make(map[string]bool)
	for _, w := range snap.Windows {
		stats.Groups += len(w.Groups)
		for _, tab := range w.Tabs {
			stats.Tabs++
			if tab.Pinned {
				stats.Pinned++
			}
			if d := BaseDomain(tab.URL); d != UnknownDomain {
				domains[d] = true
			}
		}
	}
	stats.Domains = len(domains)
	return stats
}
