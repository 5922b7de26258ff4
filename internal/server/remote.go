package server

import (
	"context"
	"time"

	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/types"
)

// Requester sends a request to the extension and waits for its reply.
type Requester interface {
	Request(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error)
}

// Remote is a browser.Store that drives the live browser through the
// extension. Every call is bounded by the request timeout.
type Remote struct {
	req     Requester
	timeout time.Duration
}

// NewRemote returns a store over req. A zero timeout means 10s.
func NewRemote(req Requester, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{req: req, timeout: timeout}
}

var _ browser.Store = (*Remote)(nil)

func (r *Remote) do(ctx context.Context, msg OutgoingMsg) (IncomingMsg, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.req.Request(ctx, msg)
}

func window(id int) int {
	if id == types.CurrentWindow {
		return 0
	}
	return id
}

// Snapshot lists the tabs and groups of every window.
func (r *Remote) Snapshot(ctx context.Context) (*types.Snapshot, error) {
	in, err := r.do(ctx, OutgoingMsg{Action: "snapshot"})
	if err != nil {
		return nil, err
	}
	return ParseSnapshot(in)
}

func (r *Remote) ListTabs(ctx context.Context, windowID int) ([]*types.Tab, error) {
	in, err := r.do(ctx, OutgoingMsg{Action: "listTabs", WindowID: window(windowID)})
	if err != nil {
		return nil, err
	}
	return ParseTabs(in.Tabs)
}

func (r *Remote) ListGroups(ctx context.Context, windowID int) ([]*types.Group, error) {
	in, err := r.do(ctx, OutgoingMsg{Action: "listGroups", WindowID: window(windowID)})
	if err != nil {
		return nil, err
	}
	return ParseGroups(in.Groups)
}

func (r *Remote) MoveTab(ctx context.Context, tabID, index int) error {
	_, err := r.do(ctx, OutgoingMsg{Action: "moveTab", TabID: tabID, Index: &index})
	return err
}

func (r *Remote) GroupTabs(ctx context.Context, tabIDs []int, into int) (int, error) {
	msg := OutgoingMsg{Action: "groupTabs", TabIDs: tabIDs}
	if into != types.NoGroup {
		msg.GroupID = into
	}
	in, err := r.do(ctx, msg)
	if err != nil {
		return 0, err
	}
	return in.GroupID, nil
}

func (r *Remote) UngroupTabs(ctx context.Context, tabIDs []int) error {
	_, err := r.do(ctx, OutgoingMsg{Action: "ungroupTabs", TabIDs: tabIDs})
	return err
}

func (r *Remote) RemoveTabs(ctx context.Context, tabIDs []int) error {
	_, err := r.do(ctx, OutgoingMsg{Action: "removeTabs", TabIDs: tabIDs})
	return err
}

func (r *Remote) CreateTab(ctx context.Context, windowID int, url string, index int, active bool) (*types.Tab, error) {
	msg := OutgoingMsg{Action: "createTab", WindowID: window(windowID), URL: url, Active: &active}
	if index >= 0 {
		msg.Index = &index
	}
	in, err := r.do(ctx, msg)
	if err != nil {
		return nil, err
	}
	return ParseTab(in.Tab)
}

func (r *Remote) UpdateGroup(ctx context.Context, groupID int, u browser.GroupUpdate) error {
	msg := OutgoingMsg{Action: "updateGroup", GroupID: groupID, Title: u.Title, Collapsed: u.Collapsed}
	if u.Color != nil {
		msg.Color = string(*u.Color)
	}
	_, err := r.do(ctx, msg)
	return err
}
