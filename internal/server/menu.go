package server

import (
	"context"
	"fmt"
	"time"

	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/rules"
	"github.com/lotas/tabregel/internal/tabops"
	"github.com/lotas/tabregel/internal/types"
)

// Context menu item IDs sent by the extension.
const (
	ItemCloseLeft          = "closeLeftTabs"
	ItemCloseRight         = "closeRightTabs"
	ItemCloseOthers        = "closeOtherTabs"
	ItemCloseCurrent       = "closeCurrentTab"
	ItemCloseDomain        = "closeCurrentDomain"
	ItemCloseExceptDomain  = "closeExceptCurrentDomain"
	ItemCloseWindow        = "closeWindow"
	ItemRemoveDuplicates   = "removeDuplicates"
	ItemCloneActive        = "cloneActiveTab"
	ItemUpdateGroupNames   = "updateGroupNames"
	ItemGroupByDomain      = "groupByDomain"
	ItemGroupByRules       = "groupByRules"
	ItemUngroupAll         = "ungroupAll"
	ItemSortByDomain       = "sortByDomain"
	ItemSortByTitle        = "sortByTitle"
	ItemReverseSort        = "reverseSort"
	menuEventType          = "menu"
	statusAction           = "status"
	defaultDispatchTimeout = 30 * time.Second
)

var closeItems = map[string]tabops.Close{
	ItemCloseLeft:         tabops.CloseLeft,
	ItemCloseRight:        tabops.CloseRight,
	ItemCloseOthers:       tabops.CloseOthers,
	ItemCloseCurrent:      tabops.CloseCurrent,
	ItemCloseDomain:       tabops.CloseDomain,
	ItemCloseExceptDomain: tabops.CloseExceptDomain,
	ItemCloseWindow:       tabops.CloseWindow,
}

// CloseItem returns the menu item that closes tabs with mode.
func CloseItem(mode tabops.Close) (string, bool) {
	for item, m := range closeItems {
		if m == mode {
			return item, true
		}
	}
	return "", false
}

// RunFunc receives the outcome of every engine operation the dispatcher
// starts. It is used to keep a run history.
type RunFunc func(rep *engine.Report, started time.Time, err error)

// Dispatcher turns context menu clicks into tab and engine operations.
type Dispatcher struct {
	Engine *engine.Runner
	Tabs   *tabops.Ops
	Rules  rules.Store
	// Notify, when set, receives a one-line status after each item.
	Notify func(status string) error
	// OnRun, when set, is called after each engine operation.
	OnRun RunFunc
	// NormalizeDuplicates strips fragments and trailing slashes before
	// comparing URLs for duplicate removal.
	NormalizeDuplicates bool
	Timeout             time.Duration
}

// Serve handles events from msgs until ctx is done or msgs is closed.
// Items are handled one at a time, in arrival order.
func (d *Dispatcher) Serve(ctx context.Context, msgs <-chan IncomingMsg) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if msg.Type != menuEventType {
				applog.Debug("menu.ignored", "type", msg.Type)
				continue
			}
			status, err := d.Handle(ctx, msg)
			if err != nil {
				applog.Error("menu.failed", err, "item", msg.Item, "window", msg.WindowID)
				status = fmt.Sprintf("%s failed: %v", msg.Item, err)
			}
			if d.Notify != nil {
				if err := d.Notify(status); err != nil {
					applog.Error("menu.notify", err)
				}
			}
		}
	}
}

// Handle runs a single menu item and returns a short status text.
func (d *Dispatcher) Handle(ctx context.Context, msg IncomingMsg) (string, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	window := msg.WindowID
	if window == 0 {
		window = types.CurrentWindow
	}
	applog.Info("menu.item", "item", msg.Item, "window", window, "tab", msg.TabID)

	if mode, ok := closeItems[msg.Item]; ok {
		closed, err := d.Tabs.Close(ctx, window, msg.TabID, mode)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Closed %d tabs", len(closed)), nil
	}

	switch msg.Item {
	case ItemRemoveDuplicates:
		closed, err := d.Tabs.Dedupe(ctx, window, d.NormalizeDuplicates)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed %d duplicate tabs", len(closed)), nil
	case ItemCloneActive:
		tab, err := d.Tabs.Clone(ctx, window, msg.TabID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Cloned tab %d", tab.ID), nil
	case ItemGroupByRules, ItemUngroupAll:
		rs, err := d.Rules.Rules(ctx)
		if err != nil {
			return "", fmt.Errorf("load rules: %w", err)
		}
		if msg.Item == ItemGroupByRules {
			return d.engine(func(ctx context.Context) (*engine.Report, error) {
				return d.Engine.GroupByRules(ctx, window, rs)
			})(ctx)
		}
		return d.engine(func(ctx context.Context) (*engine.Report, error) {
			return d.Engine.UngroupRuleGroups(ctx, window, rs)
		})(ctx)
	case ItemGroupByDomain:
		return d.engine(func(ctx context.Context) (*engine.Report, error) {
			return d.Engine.GroupByDomain(ctx, window)
		})(ctx)
	case ItemSortByDomain:
		return d.engine(func(ctx context.Context) (*engine.Report, error) {
			return d.Engine.SortByDomain(ctx, window)
		})(ctx)
	case ItemSortByTitle:
		return d.engine(func(ctx context.Context) (*engine.Report, error) {
			return d.Engine.SortByTitle(ctx, window)
		})(ctx)
	case ItemReverseSort:
		return d.engine(func(ctx context.Context) (*engine.Report, error) {
			return d.Engine.Reverse(ctx, window)
		})(ctx)
	case ItemUpdateGroupNames:
		return d.engine(func(ctx context.Context) (*engine.Report, error) {
			return d.Engine.RenumberGroups(ctx, window)
		})(ctx)
	}
	return "", fmt.Errorf("unknown menu item %q", msg.Item)
}

func (d *Dispatcher) engine(op func(ctx context.Context) (*engine.Report, error)) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		started := time.Now()
		rep, err := op(ctx)
		if d.OnRun != nil && rep != nil {
			d.OnRun(rep, started, err)
		}
		if err != nil {
			return "", err
		}
		return Summary(rep), nil
	}
}

// Summary describes a finished engine run in one line.
func Summary(rep *engine.Report) string {
	s := fmt.Sprintf("%s: moved %d tabs, %d groups", rep.Op, rep.Moved, len(rep.Groups))
	if rep.Unsettled {
		s += " (tab order did not settle)"
	}
	return s
}

// StatusNotifier returns a Notify func that sends status messages through s.
func StatusNotifier(s *Server) func(string) error {
	return func(status string) error {
		return s.Send(OutgoingMsg{Action: statusAction, Status: status})
	}
}
