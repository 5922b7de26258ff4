package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/engine"
	"github.com/lotas/tabregel/internal/tabops"
	"github.com/lotas/tabregel/internal/types"
)

type staticRules []types.Rule

func (s staticRules) Rules(context.Context) ([]types.Rule, error) { return s, nil }

func (s staticRules) SetRules(context.Context, []types.Rule) error { return nil }

func dispatcher(m *browser.Memory, rs []types.Rule) *Dispatcher {
	policy := engine.DefaultPolicy()
	policy.SettleDelay = time.Millisecond
	return &Dispatcher{
		Engine: engine.New(m, engine.WithPolicy(policy)),
		Tabs:   tabops.New(m),
		Rules:  staticRules(rs),
	}
}

func ids(t *testing.T, m *browser.Memory) []int {
	t.Helper()
	tabs, err := m.ListTabs(context.Background(), 1)
	require.NoError(t, err)
	var out []int
	for _, tab := range tabs {
		out = append(out, tab.ID)
	}
	return out
}

func TestHandleCloseItems(t *testing.T) {
	tests := []struct {
		item string
		tab  int
		want []int
	}{
		{ItemCloseLeft, 3, []int{3}},
		{ItemCloseRight, 1, []int{4, 1}},
		{ItemCloseOthers, 2, []int{2}},
		{ItemCloseCurrent, 2, []int{4, 1, 3}},
		{ItemCloseDomain, 1, []int{4, 2}},
		{ItemCloseExceptDomain, 1, []int{1, 3}},
		{ItemCloseWindow, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.item, func(t *testing.T) {
			m := seed()
			d := dispatcher(m, nil)
			status, err := d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: tt.item, TabID: tt.tab, WindowID: 1})
			require.NoError(t, err)
			assert.Contains(t, status, "Closed")
			assert.Equal(t, tt.want, ids(t, m))
		})
	}
}

func TestHandleGroupByRulesRecordsRun(t *testing.T) {
	m := seed()
	d := dispatcher(m, []types.Rule{{Name: "Google", Patterns: []string{"*google.com*"}, Color: types.ColorBlue}})
	var got *engine.Report
	d.OnRun = func(rep *engine.Report, started time.Time, err error) {
		assert.NoError(t, err)
		assert.False(t, started.IsZero())
		got = rep
	}

	status, err := d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemGroupByRules, WindowID: 1})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, engine.OpGroupByRules, got.Op)
	assert.Equal(t, "group-by-rules: moved 3 tabs, 1 groups", status)
	assert.Equal(t, []int{4, 1, 3, 2}, ids(t, m))

	_, err = d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemUngroupAll, WindowID: 1})
	require.NoError(t, err)
	groups, err := m.ListGroups(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestHandleGroupByRulesWithoutRules(t *testing.T) {
	d := dispatcher(seed(), nil)
	_, err := d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemGroupByRules, WindowID: 1})
	assert.ErrorIs(t, err, engine.ErrNoRules)
}

func TestHandleSortAndReverse(t *testing.T) {
	m := seed()
	d := dispatcher(m, nil)

	_, err := d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemSortByTitle, WindowID: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 1}, ids(t, m))

	_, err = d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemReverseSort, WindowID: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 1, 2, 3}, ids(t, m))
}

func TestHandleDuplicatesAndClone(t *testing.T) {
	m := seed()
	d := dispatcher(m, nil)

	status, err := d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemCloneActive, TabID: 2, WindowID: 1})
	require.NoError(t, err)
	assert.Contains(t, status, "Cloned")
	assert.Len(t, ids(t, m), 5)

	status, err = d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: ItemRemoveDuplicates, WindowID: 1})
	require.NoError(t, err)
	assert.Equal(t, "Removed 1 duplicate tabs", status)
	assert.Equal(t, []int{4, 1, 2, 3}, ids(t, m))
}

func TestHandleUnknownItem(t *testing.T) {
	d := dispatcher(seed(), nil)
	_, err := d.Handle(context.Background(), IncomingMsg{Type: "menu", Item: "bogus"})
	assert.Error(t, err)
}

func TestServeNotifiesStatus(t *testing.T) {
	m := seed()
	d := dispatcher(m, nil)
	statuses := make(chan string, 4)
	d.Notify = func(s string) error {
		statuses <- s
		return nil
	}

	msgs := make(chan IncomingMsg, 3)
	msgs <- IncomingMsg{Type: "other"}
	msgs <- IncomingMsg{Type: "menu", Item: "bogus", WindowID: 1}
	msgs <- IncomingMsg{Type: "menu", Item: ItemCloseCurrent, TabID: 2, WindowID: 1}
	close(msgs)

	require.NoError(t, d.Serve(context.Background(), msgs))
	require.Len(t, statuses, 2)
	assert.Contains(t, <-statuses, "bogus failed")
	assert.Equal(t, "Closed 1 tabs", <-statuses)
}

func TestCloseItem(t *testing.T) {
	for _, mode := range tabops.Closes {
		item, ok := CloseItem(mode)
		require.True(t, ok, "mode %s", mode)
		assert.Equal(t, mode, closeItems[item])
	}
	_, ok := CloseItem("sideways")
	assert.False(t, ok)
}
