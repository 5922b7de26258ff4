// Package browser defines the tab and group stores the engine drives, and
// an in-memory implementation used by offline runs and tests.
package browser

import (
	"context"
	"errors"

	"github.com/lotas/tabregel/internal/types"
)

var (
	ErrTabNotFound    = errors.New("tab not found")
	ErrGroupNotFound  = errors.New("group not found")
	ErrWindowNotFound = errors.New("window not found")
)

// TabStore reads and mutates the tabs of a browser window.
type TabStore interface {
	ListTabs(ctx context.Context, windowID int) ([]*types.Tab, error)
	MoveTab(ctx context.Context, tabID, index int) error
	// GroupTabs adds tabs to group into, or to a new group when into is
	// types.NoGroup, and returns the group ID.
	GroupTabs(ctx context.Context, tabIDs []int, into int) (int, error)
	UngroupTabs(ctx context.Context, tabIDs []int) error
	RemoveTabs(ctx context.Context, tabIDs []int) error
	CreateTab(ctx context.Context, windowID int, url string, index int, active bool) (*types.Tab, error)
}

// GroupUpdate changes the non-nil fields of a group.
type GroupUpdate struct {
	Title     *string
	Color     *types.Color
	Collapsed *bool
}

// GroupStore reads and updates a window's tab groups.
type GroupStore interface {
	ListGroups(ctx context.Context, windowID int) ([]*types.Group, error)
	UpdateGroup(ctx context.Context, groupID int, u GroupUpdate) error
}

// Store is a browser that exposes both tabs and groups.
type Store interface {
	TabStore
	GroupStore
}

// Title, Color and Collapsed build GroupUpdate fields.
func Title(s string) *string { return &s }

func Color(c types.Color) *types.Color { return &c }

func Collapsed(b bool) *bool { return &b }

// Full returns an update that sets every field.
func Full(title string, color types.Color, collapsed bool) GroupUpdate {
	return GroupUpdate{Title: Title(title), Color: Color(color), Collapsed: Collapsed(collapsed)}
}
