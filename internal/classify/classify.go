// Package classify partitions a window's tabs by ordered URL rules.
package classify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lotas/tabregel/internal/pattern"
	"github.com/lotas/tabregel/internal/types"
)

var countSuffix = regexp.MustCompile(`_\d+$`)

// StripCount removes a trailing "_<digits>" suffix from a group title.
func StripCount(title string) string {
	return countSuffix.ReplaceAllString(title, "")
}

// TitleWithCount returns the group title for n tabs, e.g. "Google_2".
// name is used as is, so a rule named "v_1" titles its group "v_1_2".
func TitleWithCount(name string, n int) string {
	return name + "_" + strconv.Itoa(n)
}

// Bucket holds the tabs claimed by one rule, in their original order.
type Bucket struct {
	Rule types.Rule
	Tabs []*types.Tab
}

// Partition is the result of classifying one window's tabs.
type Partition struct {
	// Buckets follow rule order; rules without matches are omitted.
	Buckets []Bucket
	// Ungrouped holds tabs no rule claimed.
	Ungrouped []*types.Tab
	// Manual holds tabs in groups that no rule owns. They are never moved.
	Manual []*types.Tab
	// Pinned holds pinned tabs. They are never moved.
	Pinned []*types.Tab
}

// Lookup returns the bucket for a rule name.
func (p *Partition) Lookup(name string) (Bucket, bool) {
	for _, b := range p.Buckets {
		if b.Rule.Name == name {
			return b, true
		}
	}
	return Bucket{}, false
}

// Claimed returns the number of tabs in rule buckets.
func (p *Partition) Claimed() int {
	n := 0
	for _, b := range p.Buckets {
		n += len(b.Tabs)
	}
	return n
}

// IsRuleGroup reports whether a group title belongs to one of the rules,
// ignoring any count suffix.
func IsRuleGroup(title string, rules []types.Rule) bool {
	base := StripCount(title)
	for _, r := range rules {
		if r.Name == base {
			return true
		}
	}
	return false
}

// RuleGroups returns the groups owned by rules.
func RuleGroups(groups []*types.Group, rules []types.Rule) []*types.Group {
	var out []*types.Group
	for _, g := range groups {
		if IsRuleGroup(g.Title, rules) {
			out = append(out, g)
		}
	}
	return out
}

// ManualGroups returns the IDs of groups not owned by any rule.
func ManualGroups(groups []*types.Group, rules []types.Rule) map[int]bool {
	manual := make(map[int]bool)
	for _, g := range groups {
		if !IsRuleGroup(g.Title, rules) {
			manual[g.ID] = true
		}
	}
	return manual
}

// Classify assigns each tab to the first rule with a matching pattern.
// tabs must be in strip order. Pinned tabs and tabs in manual groups are
// set aside and never claimed.
func Classify(tabs []*types.Tab, groups []*types.Group, rules []types.Rule) *Partition {
	p := &Partition{}
	manual := ManualGroups(groups, rules)

	var candidates []*types.Tab
	for _, tab := range tabs {
		switch {
		case tab.Pinned:
			p.Pinned = append(p.Pinned, tab)
		case tab.Grouped() && manual[tab.GroupID]:
			p.Manual = append(p.Manual, tab)
		default:
			candidates = append(candidates, tab)
		}
	}

	claimed := make(map[int]bool, len(candidates))
	for _, rule := range rules {
		set := pattern.CompileAll(rule.Patterns)
		var matched []*types.Tab
		for _, tab := range candidates {
			if claimed[tab.ID] {
				continue
			}
			if set.Match(tab.URL) {
				claimed[tab.ID] = true
				matched = append(matched, tab)
			}
		}
		if len(matched) > 0 {
			p.Buckets = append(p.Buckets, Bucket{Rule: rule, Tabs: matched})
		}
	}

	for _, tab := range candidates {
		if !claimed[tab.ID] {
			p.Ungrouped = append(p.Ungrouped, tab)
		}
	}
	return p
}

// FormatPlan returns a human-readable summary of a partition for dry runs.
func FormatPlan(p *Partition) string {
	var b strings.Builder

	for _, bucket := range p.Buckets {
		b.WriteString(fmt.Sprintf("\n%s (%d):\n", TitleWithCount(bucket.Rule.Name, len(bucket.Tabs)), len(bucket.Tabs)))
		for _, tab := range bucket.Tabs {
			b.WriteString(fmt.Sprintf("  - %s\n", tabLabel(tab)))
		}
	}

	if len(p.Ungrouped) > 0 {
		b.WriteString(fmt.Sprintf("\nUngrouped (%d):\n", len(p.Ungrouped)))
		for _, tab := range p.Ungrouped {
			b.WriteString(fmt.Sprintf("  - %s\n", tabLabel(tab)))
		}
	}

	if len(p.Pinned) > 0 || len(p.Manual) > 0 {
		b.WriteString(fmt.Sprintf("\nUntouched: %d pinned, %d in manual groups\n", len(p.Pinned), len(p.Manual)))
	}

	return b.String()
}

func tabLabel(tab *types.Tab) string {
	if tab.Title == "" {
		return tab.URL
	}
	return tab.Title
}
