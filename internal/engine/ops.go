package engine

import (
	"context"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/classify"
	"github.com/lotas/tabregel/internal/materialize"
	"github.com/lotas/tabregel/internal/reorder"
	"github.com/lotas/tabregel/internal/types"
)

// Operation names, used in reports, logs and metrics.
const (
	OpGroupByRules  = "group-by-rules"
	OpGroupByDomain = "group-by-domain"
	OpUngroupRules  = "ungroup-rules"
	OpSortByDomain  = "sort-by-domain"
	OpSortByTitle   = "sort-by-title"
	OpReverse       = "reverse"
	OpRenumber      = "renumber-groups"
)

func (x *run) listTabs(ctx context.Context) ([]*types.Tab, error) {
	tabs, err := x.r.store.ListTabs(ctx, x.report.Window)
	if err != nil {
		return nil, x.fail(err)
	}
	return tabs, nil
}

func (x *run) listGroups(ctx context.Context) ([]*types.Group, error) {
	groups, err := x.r.store.ListGroups(ctx, x.report.Window)
	if err != nil {
		return nil, x.fail(err)
	}
	return groups, nil
}

func (x *run) ungroup(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.r.store.UngroupTabs(ctx, ids); err != nil {
		return x.fail(err)
	}
	return nil
}

// materialize creates or re-asserts each group and then sets its title,
// color and collapsed state.
func (x *run) materialize(ctx context.Context, specs []materialize.GroupSpec) error {
	x.enter(Grouping)
	for _, s := range specs {
		if len(s.TabIDs) == 0 {
			continue
		}
		gid, err := x.r.store.GroupTabs(ctx, s.TabIDs, s.Into)
		if err != nil {
			return x.fail(err)
		}
		if err := x.r.store.UpdateGroup(ctx, gid, browser.Full(s.Title, s.Color, s.Collapsed)); err != nil {
			return x.fail(err)
		}
		x.report.Groups = append(x.report.Groups, gid)
	}
	return nil
}

func groupedIDs(tabs []*types.Tab, in func(gid int) bool) []int {
	var ids []int
	for _, t := range tabs {
		if !t.Pinned && t.Grouped() && in(t.GroupID) {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// GroupByRules dissolves existing rule groups, classifies the window's
// tabs, moves each rule bucket into a contiguous run after the pinned tabs
// and groups every bucket as "<rule>_<count>".
func (r *Runner) GroupByRules(ctx context.Context, window int, rules []types.Rule) (*Report, error) {
	return r.execute(ctx, OpGroupByRules, window, func(ctx context.Context, x *run) error {
		if len(rules) == 0 {
			return ErrNoRules
		}
		x.enter(Classifying)
		groups, err := x.listGroups(ctx)
		if err != nil {
			return err
		}
		tabs, err := x.listTabs(ctx)
		if err != nil {
			return err
		}
		ruleGroups := classify.RuleGroups(groups, rules)
		owned := make(map[int]bool, len(ruleGroups))
		for _, g := range ruleGroups {
			owned[g.ID] = true
		}
		if ids := groupedIDs(tabs, func(gid int) bool { return owned[gid] }); len(ids) > 0 {
			if err := x.ungroup(ctx, ids); err != nil {
				return err
			}
			if err := r.wait(ctx, r.policy.SettleDelay); err != nil {
				return x.fail(err)
			}
			if tabs, err = x.listTabs(ctx); err != nil {
				return err
			}
		}

		p := classify.Classify(tabs, groups, rules)
		x.report.Partition = p
		applog.Info("engine.classified", "op", x.report.Op, "buckets", len(p.Buckets), "claimed", p.Claimed(), "ungrouped", len(p.Ungrouped), "manual", len(p.Manual))

		plan := reorder.RulePlan(p)
		if err := x.move(ctx, plan); err != nil {
			return err
		}
		if err := x.settle(ctx, plan); err != nil {
			return err
		}
		return x.materialize(ctx, materialize.ForRules(p, ruleGroups, r.policy.CollapseNewGroups))
	})
}

// GroupByDomain groups every base domain with at least DomainMinTabs
// unpinned tabs, placing the groups first in encounter order.
func (r *Runner) GroupByDomain(ctx context.Context, window int) (*Report, error) {
	return r.execute(ctx, OpGroupByDomain, window, func(ctx context.Context, x *run) error {
		x.enter(Classifying)
		tabs, err := x.listTabs(ctx)
		if err != nil {
			return err
		}
		plan := reorder.DomainPlan(tabs, r.policy.DomainMinTabs)

		var ids []int
		for _, s := range plan.Sections {
			if s.Key == "" {
				continue
			}
			ids = append(ids, groupedIDs(s.Tabs, func(int) bool { return true })...)
		}
		if err := x.ungroup(ctx, ids); err != nil {
			return err
		}

		if err := x.move(ctx, plan); err != nil {
			return err
		}
		if err := x.settle(ctx, plan); err != nil {
			return err
		}
		return x.materialize(ctx, materialize.ForDomains(plan, r.policy.CollapseNewGroups))
	})
}

// UngroupRuleGroups removes the tabs of every rule-owned group from their
// groups. Manual groups are left alone.
func (r *Runner) UngroupRuleGroups(ctx context.Context, window int, rules []types.Rule) (*Report, error) {
	return r.execute(ctx, OpUngroupRules, window, func(ctx context.Context, x *run) error {
		if len(rules) == 0 {
			return ErrNoRules
		}
		x.enter(Classifying)
		groups, err := x.listGroups(ctx)
		if err != nil {
			return err
		}
		tabs, err := x.listTabs(ctx)
		if err != nil {
			return err
		}
		owned := make(map[int]bool)
		for _, g := range classify.RuleGroups(groups, rules) {
			owned[g.ID] = true
			x.report.Groups = append(x.report.Groups, g.ID)
		}
		x.enter(Grouping)
		return x.ungroup(ctx, groupedIDs(tabs, func(gid int) bool { return owned[gid] }))
	})
}

// SortByDomain sorts tabs by base domain within each group and among the
// ungrouped tabs.
func (r *Runner) SortByDomain(ctx context.Context, window int) (*Report, error) {
	return r.sort(ctx, OpSortByDomain, window, reorder.ByDomain)
}

// SortByTitle sorts tabs by title within each group and among the
// ungrouped tabs.
func (r *Runner) SortByTitle(ctx context.Context, window int) (*Report, error) {
	return r.sort(ctx, OpSortByTitle, window, reorder.ByTitle)
}

// Sort dispatches on key.
func (r *Runner) Sort(ctx context.Context, window int, key reorder.SortKey) (*Report, error) {
	if key == reorder.ByTitle {
		return r.SortByTitle(ctx, window)
	}
	return r.SortByDomain(ctx, window)
}

func (r *Runner) sort(ctx context.Context, op string, window int, key reorder.SortKey) (*Report, error) {
	return r.execute(ctx, op, window, func(ctx context.Context, x *run) error {
		x.enter(Classifying)
		groups, err := x.listGroups(ctx)
		if err != nil {
			return err
		}
		tabs, err := x.listTabs(ctx)
		if err != nil {
			return err
		}
		captured := materialize.Capture(groups)
		plan := reorder.SortPlan(tabs, key)

		if err := x.move(ctx, plan); err != nil {
			return err
		}
		if err := x.settle(ctx, plan); err != nil {
			return err
		}
		return x.materialize(ctx, materialize.Regroup(plan, captured, false))
	})
}

// Reverse reverses the tab order within each group and among the
// ungrouped tabs. Groups are dissolved before the moves and recreated with
// their old title, color and collapsed state; Report.Regrouped maps each
// old group ID to its new one.
func (r *Runner) Reverse(ctx context.Context, window int) (*Report, error) {
	return r.execute(ctx, OpReverse, window, func(ctx context.Context, x *run) error {
		x.enter(Classifying)
		groups, err := x.listGroups(ctx)
		if err != nil {
			return err
		}
		tabs, err := x.listTabs(ctx)
		if err != nil {
			return err
		}
		captured := materialize.Capture(groups)
		plan := reorder.ReversePlan(tabs)

		if err := x.ungroup(ctx, groupedIDs(tabs, func(int) bool { return true })); err != nil {
			return err
		}
		if err := x.move(ctx, plan); err != nil {
			return err
		}
		if err := x.settle(ctx, plan); err != nil {
			return err
		}

		specs := materialize.Regroup(plan, captured, true)
		if err := x.materialize(ctx, specs); err != nil {
			return err
		}
		x.report.Regrouped = make(map[int]int, len(specs))
		i := 0
		for _, s := range plan.Sections {
			if s.GroupID == types.NoGroup || len(s.Tabs) == 0 {
				continue
			}
			x.report.Regrouped[s.GroupID] = x.report.Groups[i]
			i++
		}
		return nil
	})
}

// RenumberGroups retitles every group in the window with its current tab
// count, keeping collapsed state.
func (r *Runner) RenumberGroups(ctx context.Context, window int) (*Report, error) {
	return r.execute(ctx, OpRenumber, window, func(ctx context.Context, x *run) error {
		x.enter(Classifying)
		groups, err := x.listGroups(ctx)
		if err != nil {
			return err
		}
		tabs, err := x.listTabs(ctx)
		if err != nil {
			return err
		}
		x.enter(Grouping)
		for _, u := range materialize.Renumber(tabs, groups) {
			update := browser.GroupUpdate{Title: browser.Title(u.Title), Collapsed: browser.Collapsed(u.Collapsed)}
			if err := r.store.UpdateGroup(ctx, u.GroupID, update); err != nil {
				return x.fail(err)
			}
			x.report.Groups = append(x.report.Groups, u.GroupID)
		}
		return nil
	})
}
