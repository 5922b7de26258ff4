package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/classify"
	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/server"
	"github.com/lotas/tabregel/internal/storage"
	"github.com/lotas/tabregel/internal/tabops"
	"github.com/lotas/tabregel/internal/types"
)

// opFlags are shared by every command that changes tabs.
type opFlags struct {
	sourceFlags
	dryRun    bool
	tab       int
	normalize bool
}

func (o *opFlags) register(cmd *cobra.Command) {
	o.sourceFlags.register(cmd)
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "preview the result on a copy of the tabs")
}

func (o *opFlags) registerTab(cmd *cobra.Command) {
	o.register(cmd)
	cmd.Flags().IntVar(&o.tab, "tab", 0, "reference tab ID (default: the active tab)")
}

// run performs one menu item on the target window and prints its status.
// Dry runs also print the resulting tab strip.
func (a *app) run(cmd *cobra.Command, o *opFlags, item string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	t, err := a.target(ctx, o.sourceFlags, o.dryRun, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer t.close()

	store, _, err := a.ruleStore()
	if err != nil {
		return err
	}

	policy := a.cfg.Engine.Policy()
	if o.dryRun {
		policy.SettleDelay = 0
	}
	d := &server.Dispatcher{
		Engine:              engine.New(t.store, engine.WithPolicy(policy)),
		Tabs:                tabops.New(t.store),
		Rules:               store,
		NormalizeDuplicates: o.normalize,
	}
	if !o.dryRun {
		d.OnRun = a.recordRun
	}

	if o.dryRun && item == server.ItemGroupByRules {
		rs, err := store.Rules(ctx)
		if err != nil {
			return fmt.Errorf("load rules: %w", err)
		}
		if len(rs) > 0 {
			tabs, err := t.mem.ListTabs(ctx, t.window)
			if err != nil {
				return err
			}
			groups, err := t.mem.ListGroups(ctx, t.window)
			if err != nil {
				return err
			}
			fmt.Fprint(out, "Plan:", classify.FormatPlan(classify.Classify(tabs, groups, rs)), "\n")
		}
	}

	status, err := d.Handle(ctx, server.IncomingMsg{
		Type:     "menu",
		Item:     item,
		TabID:    o.tab,
		WindowID: t.window,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, status)

	if o.dryRun {
		tabs, err := t.mem.ListTabs(ctx, t.window)
		if err != nil {
			return err
		}
		groups, err := t.mem.ListGroups(ctx, t.window)
		if err != nil {
			return err
		}
		printWindow(out, t.window, tabs, groups)
	}
	return nil
}

// recordRun adds an engine run to the history.
func (a *app) recordRun(rep *engine.Report, started time.Time, err error) {
	db, dbErr := a.openDB()
	if dbErr != nil {
		applog.Error("runs.record", dbErr)
		return
	}
	run := storage.Run{
		Op:           rep.Op,
		WindowID:     rep.Window,
		State:        rep.State().String(),
		Moved:        rep.Moved,
		Groups:       len(rep.Groups),
		SettleRounds: rep.SettleRounds,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	if err != nil {
		run.Error = err.Error()
	}
	if _, err := storage.RecordRun(db, run); err != nil {
		applog.Error("runs.record", err, "op", rep.Op)
	}
}

func printWindow(w io.Writer, window int, tabs []*types.Tab, groups []*types.Group) {
	byID := make(map[int]*types.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	fmt.Fprintf(w, "\nWindow %d (%d tabs):\n", window, len(tabs))
	for _, t := range tabs {
		mark := " "
		if t.Pinned {
			mark = "*"
		}
		label := ""
		if g, ok := byID[t.GroupID]; ok {
			label = fmt.Sprintf("[%s %s] ", g.Title, g.Color)
		}
		fmt.Fprintf(w, "  %3d %s %s%s\n", t.Index, mark, label, tabLabel(t))
	}
}

func tabLabel(t *types.Tab) string {
	if t.Title == "" || t.Title == t.URL {
		return t.URL
	}
	return t.Title + " <" + t.URL + ">"
}

func newGroupCmd(a *app) *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "group rules|domain",
		Short: "Group tabs by the grouping rules or by domain",
		Long: `Group the tabs of a window.

"rules" moves tabs matching each rule next to each other, in rule order, and
puts them in a group named after the rule. Groups created by hand are left
alone. "domain" groups tabs that share a base domain.`,
		Example: `  tabregel group rules
  tabregel group rules --dry-run --offline
  tabregel group domain --window 3`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"rules", "domain"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "rules":
				return a.run(cmd, &o, server.ItemGroupByRules)
			case "domain":
				return a.run(cmd, &o, server.ItemGroupByDomain)
			}
			return fmt.Errorf("unknown grouping %q: use rules or domain", args[0])
		},
	}
	o.register(cmd)
	return cmd
}

func newUngroupCmd(a *app) *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "ungroup",
		Short: "Dissolve the groups created from rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, &o, server.ItemUngroupAll)
		},
	}
	o.register(cmd)
	return cmd
}

func newSortCmd(a *app) *cobra.Command {
	var o opFlags
	items := map[string]string{
		"domain":  server.ItemSortByDomain,
		"title":   server.ItemSortByTitle,
		"reverse": server.ItemReverseSort,
	}
	cmd := &cobra.Command{
		Use:       "sort domain|title|reverse",
		Short:     "Sort the unpinned tabs of a window",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"domain", "title", "reverse"},
		RunE: func(cmd *cobra.Command, args []string) error {
			item, ok := items[args[0]]
			if !ok {
				return fmt.Errorf("unknown sort %q: use domain, title or reverse", args[0])
			}
			return a.run(cmd, &o, item)
		},
	}
	o.register(cmd)
	return cmd
}

func newRenumberCmd(a *app) *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "renumber",
		Short: "Update the tab count suffix of every group title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, &o, server.ItemUpdateGroupNames)
		},
	}
	o.register(cmd)
	return cmd
}

func newCloseCmd(a *app) *cobra.Command {
	var o opFlags
	modes := make([]string, len(tabops.Closes))
	for i, m := range tabops.Closes {
		modes[i] = string(m)
	}
	cmd := &cobra.Command{
		Use:   "close " + strings.Join(modes, "|"),
		Short: "Close tabs relative to the active tab",
		Long: `Close tabs relative to a reference tab, the active one unless --tab is set.

  left, right      tabs before or after it
  others, current  every other tab, or just it
  domain           tabs on its base domain
  except-domain    tabs on any other base domain
  window           every tab in the window`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: modes,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := tabops.ParseClose(args[0])
			if err != nil {
				return err
			}
			item, _ := server.CloseItem(mode)
			return a.run(cmd, &o, item)
		},
	}
	o.registerTab(cmd)
	return cmd
}

func newDedupeCmd(a *app) *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Close tabs whose URL is already open earlier in the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, &o, server.ItemRemoveDuplicates)
		},
	}
	o.register(cmd)
	cmd.Flags().BoolVar(&o.normalize, "normalize", false, "ignore fragments, query order and trailing slashes")
	return cmd
}

func newCloneCmd(a *app) *cobra.Command {
	var o opFlags
	cmd := &cobra.Command{
		Use:   "clone",
		Short: "Open a copy of the active tab next to it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, &o, server.ItemCloneActive)
		},
	}
	o.registerTab(cmd)
	return cmd
}
