package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabregel/internal/types"
)

// Markdown formats a snapshot as a markdown document.
func Markdown(snap *types.Snapshot, now time.Time) string {
	var b strings.Builder

	title := "Browser Tabs"
	if snap.Profile.Name != "" {
		title += " - " + snap.Profile.Name
	}
	fmt.Fprintf(&b, "# %s\n", title)
	fmt.Fprintf(&b, "> Exported %s\n", now.Format("2006-01-02 15:04"))

	for _, w := range snap.Windows {
		if len(snap.Windows) > 1 {
			fmt.Fprintf(&b, "\n## Window %d\n", w.ID)
		}
		for _, s := range Sections(w.Tabs, w.Groups) {
			n := len(s.Tabs)
			noun := "tabs"
			if n == 1 {
				noun = "tab"
			}
			fmt.Fprintf(&b, "\n### %s (%d %s)\n\n", s.Title, n, noun)

			for _, tab := range s.Tabs {
				title := tab.Title
				if title == "" {
					title = tab.URL
				}
				fmt.Fprintf(&b, "- [%s](%s)", title, tab.URL)
				if !tab.LastAccessed.IsZero() {
					fmt.Fprintf(&b, " (%s)", relativeTime(tab.LastAccessed, now))
				}
				b.WriteString("\n")
			}
		}
	}

	return b.String()
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
