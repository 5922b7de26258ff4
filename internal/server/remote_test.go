package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/types"
)

func connectedRemote(t *testing.T, m *browser.Memory) (*Remote, context.Context) {
	t.Helper()
	srv := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn := dial(t, ctx, srv)
	go extension(ctx, conn, m)
	return NewRemote(srv, time.Second), ctx
}

func seed() *browser.Memory {
	m := browser.NewMemory()
	m.Load(1, []*types.Tab{
		{ID: 4, URL: "https://github.com/lotas", Title: "Repo", Pinned: true},
		{ID: 1, URL: "https://mail.google.com/u/0", Title: "Inbox"},
		{ID: 2, URL: "https://news.ycombinator.com", Title: "HN"},
		{ID: 3, URL: "https://docs.google.com/d/1", Title: "Doc"},
	}, nil)
	return m
}

func TestRemoteListAndMove(t *testing.T) {
	m := seed()
	r, ctx := connectedRemote(t, m)

	tabs, err := r.ListTabs(ctx, types.CurrentWindow)
	require.NoError(t, err)
	require.Len(t, tabs, 4)
	assert.True(t, tabs[0].Pinned)
	assert.Equal(t, "Inbox", tabs[1].Title)
	assert.Equal(t, types.NoGroup, tabs[1].GroupID)

	require.NoError(t, r.MoveTab(ctx, 1, 3))
	tabs, err = r.ListTabs(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tabs[3].ID)
}

func TestRemoteGroupAndUpdate(t *testing.T) {
	m := seed()
	r, ctx := connectedRemote(t, m)

	gid, err := r.GroupTabs(ctx, []int{1, 3}, types.NoGroup)
	require.NoError(t, err)
	require.NoError(t, r.UpdateGroup(ctx, gid, browser.Full("Google_2", types.ColorBlue, true)))

	groups, err := r.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, gid, groups[0].ID)
	assert.Equal(t, "Google_2", groups[0].Title)
	assert.Equal(t, types.ColorBlue, groups[0].Color)
	assert.True(t, groups[0].Collapsed)

	require.NoError(t, r.UngroupTabs(ctx, []int{1, 3}))
	groups, err = r.ListGroups(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestRemoteCreateAndRemove(t *testing.T) {
	m := seed()
	r, ctx := connectedRemote(t, m)

	tab, err := r.CreateTab(ctx, 1, "https://example.com", 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, tab.Index)
	assert.Equal(t, "https://example.com", tab.URL)

	require.NoError(t, r.RemoveTabs(ctx, []int{tab.ID, 2}))
	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.AllTabs(), 3)
}

func TestRemoteReportsBrowserErrors(t *testing.T) {
	m := seed()
	r, ctx := connectedRemote(t, m)

	err := r.MoveTab(ctx, 99, 0)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "moveTab", remote.Action)
}

func TestRemoteDrivesEngine(t *testing.T) {
	m := seed()
	r, ctx := connectedRemote(t, m)

	policy := engine.DefaultPolicy()
	policy.SettleDelay = time.Millisecond
	runner := engine.New(r, engine.WithPolicy(policy))

	rules := []types.Rule{{Name: "Google", Patterns: []string{"*google.com*"}, Color: types.ColorRed}}
	rep, err := runner.GroupByRules(ctx, 1, rules)
	require.NoError(t, err)
	assert.Equal(t, engine.Done, rep.State())

	tabs, err := m.ListTabs(ctx, 1)
	require.NoError(t, err)
	var order []int
	for _, tab := range tabs {
		order = append(order, tab.ID)
	}
	assert.Equal(t, []int{4, 1, 3, 2}, order)

	groups, err := m.ListGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Google_2", groups[0].Title)
	assert.Equal(t, types.ColorRed, groups[0].Color)
}
