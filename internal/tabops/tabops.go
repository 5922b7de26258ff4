// Package tabops implements the one-shot tab operations offered next to
// grouping: closing tabs by position or domain, dedupe and clone.
package tabops

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/tabregel/internal/analyzer"
	"github.com/lotas/tabregel/internal/applog"
	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/types"
)

// ErrNoActiveTab is returned when an operation needs an anchor tab and the
// window has none.
var ErrNoActiveTab = errors.New("no active tab")

// Close selects which tabs a close operation removes, relative to the
// anchor tab.
type Close string

const (
	CloseLeft         Close = "left"
	CloseRight        Close = "right"
	CloseOthers       Close = "others"
	CloseCurrent      Close = "current"
	CloseDomain       Close = "domain"
	CloseExceptDomain Close = "except-domain"
	CloseWindow       Close = "window"
)

// Closes lists every close mode, for help text and validation.
var Closes = []Close{CloseLeft, CloseRight, CloseOthers, CloseCurrent, CloseDomain, CloseExceptDomain, CloseWindow}

// ParseClose validates a close mode name.
func ParseClose(s string) (Close, error) {
	for _, c := range Closes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown close mode %q", s)
}

// Ops runs tab operations against a store.
type Ops struct {
	store browser.TabStore
}

// New returns Ops over store.
func New(store browser.TabStore) *Ops {
	return &Ops{store: store}
}

// anchor returns the tab with ID tabID, or the active tab when tabID is 0.
func anchor(tabs []*types.Tab, tabID int) (*types.Tab, error) {
	for _, t := range tabs {
		if (tabID == 0 && t.Active) || (tabID != 0 && t.ID == tabID) {
			return t, nil
		}
	}
	if tabID != 0 {
		return nil, fmt.Errorf("tab %d: %w", tabID, browser.ErrTabNotFound)
	}
	return nil, ErrNoActiveTab
}

// Select returns the tabs mode would close, without closing them.
func Select(tabs []*types.Tab, cur *types.Tab, mode Close) []*types.Tab {
	var closes func(t *types.Tab) bool
	switch mode {
	case CloseLeft:
		closes = func(t *types.Tab) bool { return t.Index < cur.Index }
	case CloseRight:
		closes = func(t *types.Tab) bool { return t.Index > cur.Index }
	case CloseOthers:
		closes = func(t *types.Tab) bool { return t.ID != cur.ID }
	case CloseCurrent:
		closes = func(t *types.Tab) bool { return t.ID == cur.ID }
	case CloseDomain:
		d := analyzer.BaseDomain(cur.URL)
		closes = func(t *types.Tab) bool { return analyzer.BaseDomain(t.URL) == d }
	case CloseExceptDomain:
		d := analyzer.BaseDomain(cur.URL)
		closes = func(t *types.Tab) bool { return analyzer.BaseDomain(t.URL) != d }
	case CloseWindow:
		closes = func(*types.Tab) bool { return true }
	default:
		return nil
	}
	var out []*types.Tab
	for _, t := range tabs {
		if closes(t) {
			out = append(out, t)
		}
	}
	return out
}

func ids(tabs []*types.Tab) []int {
	out := make([]int, len(tabs))
	for i, t := range tabs {
		out[i] = t.ID
	}
	return out
}

// Close removes the tabs selected by mode relative to tabID, or to the
// active tab when tabID is 0. It returns the closed tab IDs. Closing the
// window removes all of its tabs.
func (o *Ops) Close(ctx context.Context, window, tabID int, mode Close) ([]int, error) {
	tabs, err := o.store.ListTabs(ctx, window)
	if err != nil {
		return nil, err
	}
	cur, err := anchor(tabs, tabID)
	if err != nil {
		return nil, err
	}
	closing := ids(Select(tabs, cur, mode))
	if len(closing) == 0 {
		return nil, nil
	}
	if err := o.store.RemoveTabs(ctx, closing); err != nil {
		return nil, fmt.Errorf("close %s: %w", mode, err)
	}
	applog.Info("tabs.closed", "mode", string(mode), "window", window, "count", len(closing))
	return closing, nil
}

// Dedupe closes every tab whose URL already appeared earlier in the
// window, keeping the first. With normalize, fragments, query order and
// trailing slashes are ignored.
func (o *Ops) Dedupe(ctx context.Context, window int, normalize bool) ([]int, error) {
	tabs, err := o.store.ListTabs(ctx, window)
	if err != nil {
		return nil, err
	}
	closing := ids(analyzer.Duplicates(tabs, normalize))
	if len(closing) == 0 {
		return nil, nil
	}
	if err := o.store.RemoveTabs(ctx, closing); err != nil {
		return nil, fmt.Errorf("dedupe: %w", err)
	}
	applog.Info("tabs.deduped", "window", window, "count", len(closing), "normalize", normalize)
	return closing, nil
}

// Clone opens a copy of the tab right after it, in the background.
func (o *Ops) Clone(ctx context.Context, window, tabID int) (*types.Tab, error) {
	tabs, err := o.store.ListTabs(ctx, window)
	if err != nil {
		return nil, err
	}
	cur, err := anchor(tabs, tabID)
	if err != nil {
		return nil, err
	}
	tab, err := o.store.CreateTab(ctx, cur.WindowID, cur.URL, cur.Index+1, false)
	if err != nil {
		return nil, fmt.Errorf("clone: %w", err)
	}
	applog.Info("tabs.cloned", "source", cur.ID, "tab", tab.ID)
	return tab, nil
}
