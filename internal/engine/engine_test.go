package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

type stoppedClock struct{}

func (stoppedClock) After(time.Duration) <-chan time.Time { return nil }

// laggyStore returns a frozen tab order for the next stale ListTabs calls.
type laggyStore struct {
	*browser.Memory
	mu     sync.Mutex
	stale  int
	frozen []*types.Tab
}

func (l *laggyStore) ListTabs(ctx context.Context, window int) ([]*types.Tab, error) {
	l.mu.Lock()
	if l.stale > 0 {
		l.stale--
		frozen := l.frozen
		l.mu.Unlock()
		return frozen, nil
	}
	l.mu.Unlock()
	return l.Memory.ListTabs(ctx, window)
}

const win = 1

func newStore(tabs []*types.Tab, groups []*types.Group) *browser.Memory {
	m := browser.NewMemory()
	for i, t := range tabs {
		t.ID = i + 1
		if t.GroupID == 0 {
			t.GroupID = types.NoGroup
		}
	}
	m.Load(win, tabs, groups)
	return m
}

func ids(tabs []*types.Tab) []int {
	out := make([]int, len(tabs))
	for i, t := range tabs {
		out[i] = t.ID
	}
	return out
}

func snapshot(t *testing.T, s browser.Store) ([]*types.Tab, []*types.Group) {
	t.Helper()
	tabs, err := s.ListTabs(context.Background(), win)
	require.NoError(t, err)
	groups, err := s.ListGroups(context.Background(), win)
	require.NoError(t, err)
	return tabs, groups
}

func groupByTitle(groups []*types.Group) map[string]*types.Group {
	out := make(map[string]*types.Group)
	for _, g := range groups {
		out[g.Title] = g
	}
	return out
}

var rules = []types.Rule{
	{Name: "Google", Patterns: []string{"*google.com*"}, Color: types.ColorBlue},
	{Name: "Code", Patterns: []string{"*github.com/*"}, Color: types.ColorGreen},
}

func mixedTabs() []*types.Tab {
	return []*types.Tab{
		{URL: "https://calendar.example", Pinned: true},
		{URL: "https://x.com"},
		{URL: "https://github.com/a"},
		{URL: "https://mail.google.com"},
		{URL: "https://y.com"},
		{URL: "https://docs.google.com"},
		{URL: "https://github.com/b"},
	}
}

func TestGroupByRules(t *testing.T) {
	store := newStore(mixedTabs(), nil)
	clock := &fakeClock{}
	r := New(store, WithClock(clock))

	report, err := r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	assert.Equal(t, []State{Idle, Classifying, Moving, Settling, Grouping, Done}, report.States)
	assert.Equal(t, 6, report.Moved)
	assert.Equal(t, 1, report.SettleRounds)
	assert.Equal(t, []time.Duration{150 * time.Millisecond}, clock.waits)

	tabs, groups := snapshot(t, store)
	assert.Equal(t, []int{1, 4, 6, 3, 7, 2, 5}, ids(tabs))
	require.Len(t, groups, 2)

	byTitle := groupByTitle(groups)
	require.Contains(t, byTitle, "Google_2")
	require.Contains(t, byTitle, "Code_2")
	assert.Equal(t, types.ColorBlue, byTitle["Google_2"].Color)
	assert.Equal(t, types.ColorGreen, byTitle["Code_2"].Color)
	assert.True(t, byTitle["Google_2"].Collapsed)

	assert.Equal(t, byTitle["Google_2"].ID, tabs[1].GroupID)
	assert.Equal(t, byTitle["Code_2"].ID, tabs[4].GroupID)
	assert.False(t, tabs[0].Grouped(), "pinned tab stays out of groups")
	assert.False(t, tabs[5].Grouped())
}

func TestGroupByRulesIsIdempotent(t *testing.T) {
	store := newStore(mixedTabs(), nil)
	r := New(store, WithClock(&fakeClock{}))

	_, err := r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	firstTabs, firstGroups := snapshot(t, store)

	_, err = r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	secondTabs, secondGroups := snapshot(t, store)

	assert.Equal(t, ids(firstTabs), ids(secondTabs))
	assert.Len(t, secondGroups, len(firstGroups))
	for title := range groupByTitle(firstGroups) {
		assert.Contains(t, groupByTitle(secondGroups), title)
	}
}

func TestGroupByRulesRuleNameEndingInDigits(t *testing.T) {
	store := newStore([]*types.Tab{
		{URL: "https://y.com/a"},
		{URL: "https://x.com"},
		{URL: "https://y.com/b"},
	}, nil)
	r := New(store, WithClock(&fakeClock{}))
	vRules := []types.Rule{{Name: "v_1", Patterns: []string{"*y.com*"}, Color: types.ColorRed}}
	ctx := context.Background()

	_, err := r.GroupByRules(ctx, win, vRules)
	require.NoError(t, err)
	_, groups := snapshot(t, store)
	require.Len(t, groups, 1)
	assert.Equal(t, "v_1_2", groups[0].Title)

	_, err = store.CreateTab(ctx, win, "https://y.com/c", -1, false)
	require.NoError(t, err)

	report, err := r.GroupByRules(ctx, win, vRules)
	require.NoError(t, err)
	assert.Empty(t, report.Partition.Manual, "the rule still owns its group")

	tabs, groups := snapshot(t, store)
	require.Len(t, groups, 1)
	assert.Equal(t, "v_1_3", groups[0].Title)
	var grouped int
	for _, tb := range tabs {
		if tb.GroupID == groups[0].ID {
			grouped++
		}
	}
	assert.Equal(t, 3, grouped)

	_, err = r.UngroupRuleGroups(ctx, win, vRules)
	require.NoError(t, err)
	_, groups = snapshot(t, store)
	assert.Empty(t, groups)
}

func TestGroupByRulesKeepsManualGroupsAndCollapsedState(t *testing.T) {
	tabs := []*types.Tab{
		{URL: "https://mail.google.com", GroupID: 50},
		{URL: "https://news.example", GroupID: 60},
		{URL: "https://docs.google.com"},
		{URL: "https://blog.example", GroupID: 60},
	}
	groups := []*types.Group{
		{ID: 50, Title: "Google_9", Color: types.ColorBlue, Collapsed: false},
		{ID: 60, Title: "Reading", Color: types.ColorPink, Collapsed: true},
	}
	store := newStore(tabs, groups)
	r := New(store, WithClock(&fakeClock{}))

	report, err := r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	assert.Len(t, report.Partition.Manual, 2)

	after, gs := snapshot(t, store)
	assert.Equal(t, []int{1, 3, 2, 4}, ids(after))
	byTitle := groupByTitle(gs)
	require.Contains(t, byTitle, "Reading")
	assert.Equal(t, 60, byTitle["Reading"].ID, "manual group is never recreated")
	assert.True(t, byTitle["Reading"].Collapsed)
	require.Contains(t, byTitle, "Google_2")
	assert.False(t, byTitle["Google_2"].Collapsed, "rule group keeps its previous collapsed state")
}

func TestGroupByRulesWithoutRules(t *testing.T) {
	store := newStore(mixedTabs(), nil)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := New(store, WithClock(&fakeClock{}), WithMetrics(m))

	report, err := r.GroupByRules(context.Background(), win, nil)
	assert.True(t, errors.Is(err, ErrNoRules))
	assert.Equal(t, Idle, report.State())
	assert.Empty(t, store.Calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues(OpGroupByRules, "no_rules")))
}

func TestGroupByRulesMoveFailure(t *testing.T) {
	store := newStore(mixedTabs(), nil)
	boom := errors.New("tab is being dragged")
	store.FailOn["moveTab"] = boom
	m := NewMetrics(prometheus.NewRegistry())
	r := New(store, WithClock(&fakeClock{}), WithMetrics(m))

	report, err := r.GroupByRules(context.Background(), win, rules)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, Moving, opErr.Phase)
	assert.Equal(t, OpGroupByRules, opErr.Op)
	assert.Equal(t, "group-by-rules failed while moving: tab is being dragged", err.Error())
	assert.Equal(t, Failed, report.State())
	assert.NotContains(t, store.Calls, "groupTabs", "no grouping after a failed move")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues(OpGroupByRules, "failed")))
}

func TestConcurrentRunOnSameWindowIsBusy(t *testing.T) {
	store := newStore(mixedTabs(), nil)
	var r *Runner
	var nested error
	hook := func(op string, window int, s State) {
		if s == Moving && nested == nil {
			_, nested = r.SortByTitle(context.Background(), window)
		}
	}
	r = New(store, WithClock(&fakeClock{}), WithStateHook(hook))

	_, err := r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	assert.True(t, errors.Is(nested, ErrBusy))

	_, err = r.SortByTitle(context.Background(), win)
	assert.NoError(t, err, "lock is released after the run")
}

func TestSettleBacksOffUntilOrderHolds(t *testing.T) {
	mem := newStore(mixedTabs(), nil)
	store := &laggyStore{Memory: mem}
	clock := &fakeClock{}
	hook := func(op string, window int, s State) {
		switch s {
		case Classifying:
			store.frozen, _ = mem.ListTabs(context.Background(), window)
		case Settling:
			store.mu.Lock()
			store.stale = 2
			store.mu.Unlock()
		}
	}
	r := New(store, WithClock(clock), WithStateHook(hook))

	report, err := r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	assert.Equal(t, 3, report.SettleRounds)
	assert.False(t, report.Unsettled)
	assert.Equal(t, []time.Duration{150 * time.Millisecond, 300 * time.Millisecond, 600 * time.Millisecond}, clock.waits)
	assert.Equal(t, 6, report.Moved, "moves are not re-issued while settling")
}

func TestSettleGivesUpAfterMaxRounds(t *testing.T) {
	mem := newStore(mixedTabs(), nil)
	store := &laggyStore{Memory: mem}
	hook := func(op string, window int, s State) {
		switch s {
		case Classifying:
			store.frozen, _ = mem.ListTabs(context.Background(), window)
		case Settling:
			store.mu.Lock()
			store.stale = 10
			store.mu.Unlock()
		}
	}
	policy := DefaultPolicy()
	policy.MaxSettleRounds = 2
	r := New(store, WithClock(&fakeClock{}), WithPolicy(policy), WithStateHook(hook))

	report, err := r.GroupByRules(context.Background(), win, rules)
	require.NoError(t, err)
	assert.True(t, report.Unsettled)
	assert.Equal(t, 2, report.SettleRounds)
	assert.Equal(t, Done, report.State())
}

func TestSettleHonorsContext(t *testing.T) {
	store := newStore(mixedTabs(), nil)
	r := New(store, WithClock(stoppedClock{}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.SortByTitle(ctx, win)
	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, Settling, opErr.Phase)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGroupByDomain(t *testing.T) {
	store := newStore([]*types.Tab{
		{URL: "https://pinned.example", Pinned: true},
		{URL: "https://a.com/1"},
		{URL: "https://solo.org"},
		{URL: "https://b.com/1"},
		{URL: "https://www.a.com/2"},
		{URL: "https://b.com/2", GroupID: 30},
	}, []*types.Group{{ID: 30, Title: "Old"}})
	r := New(store, WithClock(&fakeClock{}))

	_, err := r.GroupByDomain(context.Background(), win)
	require.NoError(t, err)

	tabs, groups := snapshot(t, store)
	assert.Equal(t, []int{1, 2, 5, 4, 6, 3}, ids(tabs))
	byTitle := groupByTitle(groups)
	require.Len(t, groups, 2, "the emptied group disappears")
	assert.Equal(t, types.ColorBlue, byTitle["a.com_2"].Color)
	assert.Equal(t, types.ColorRed, byTitle["b.com_2"].Color)
	assert.True(t, byTitle["b.com_2"].Collapsed)
	assert.False(t, tabs[5].Grouped(), "singleton domains stay ungrouped")
}

func TestGroupByDomainSingletons(t *testing.T) {
	store := newStore([]*types.Tab{{URL: "https://a.com"}, {URL: "https://b.com"}}, nil)
	policy := DefaultPolicy()
	policy.DomainMinTabs = 1
	r := New(store, WithClock(&fakeClock{}), WithPolicy(policy))

	report, err := r.GroupByDomain(context.Background(), win)
	require.NoError(t, err)
	assert.Len(t, report.Groups, 2)
}

func TestUngroupRuleGroups(t *testing.T) {
	store := newStore([]*types.Tab{
		{URL: "https://mail.google.com", GroupID: 5},
		{URL: "https://news.example", GroupID: 6},
	}, []*types.Group{{ID: 5, Title: "Google_1"}, {ID: 6, Title: "Reading_1"}})
	r := New(store, WithClock(&fakeClock{}))

	report, err := r.UngroupRuleGroups(context.Background(), win, rules)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, report.Groups)

	tabs, groups := snapshot(t, store)
	assert.False(t, tabs[0].Grouped())
	assert.Equal(t, 6, tabs[1].GroupID)
	require.Len(t, groups, 1)

	_, err = r.UngroupRuleGroups(context.Background(), win, nil)
	assert.True(t, errors.Is(err, ErrNoRules))
}

func TestSortByTitleKeepsGroups(t *testing.T) {
	store := newStore([]*types.Tab{
		{Title: "pinned", Pinned: true},
		{Title: "delta", GroupID: 9},
		{Title: "Bravo", GroupID: 9},
		{Title: "zulu"},
		{Title: "alpha"},
	}, []*types.Group{{ID: 9, Title: "Work_2", Color: types.ColorOrange, Collapsed: true}})
	r := New(store, WithClock(&fakeClock{}))

	_, err := r.SortByTitle(context.Background(), win)
	require.NoError(t, err)

	tabs, groups := snapshot(t, store)
	assert.Equal(t, []int{1, 3, 2, 5, 4}, ids(tabs))
	require.Len(t, groups, 1)
	assert.Equal(t, 9, groups[0].ID)
	assert.True(t, groups[0].Collapsed)
	assert.Equal(t, types.ColorOrange, groups[0].Color)
}

func TestSortByDomain(t *testing.T) {
	store := newStore([]*types.Tab{
		{URL: "https://zeta.com", Title: "z"},
		{URL: "https://alpha.com/b", Title: "b"},
		{URL: "https://www.alpha.com/a", Title: "A"},
	}, nil)
	r := New(store, WithClock(&fakeClock{}))

	_, err := r.Sort(context.Background(), win, "domain")
	require.NoError(t, err)
	tabs, _ := snapshot(t, store)
	assert.Equal(t, []int{3, 2, 1}, ids(tabs))
}

func TestReverseTwiceRestoresOrder(t *testing.T) {
	store := newStore([]*types.Tab{
		{URL: "https://p.example", Pinned: true},
		{URL: "https://a.example", GroupID: 5},
		{URL: "https://b.example", GroupID: 5},
		{URL: "https://c.example"},
		{URL: "https://d.example", GroupID: 6},
		{URL: "https://e.example", GroupID: 6},
		{URL: "https://f.example", GroupID: 6},
		{URL: "https://g.example"},
	}, []*types.Group{
		{ID: 5, Title: "First_2", Color: types.ColorRed, Collapsed: true},
		{ID: 6, Title: "Second_3", Color: types.ColorCyan, Collapsed: false},
	})
	r := New(store, WithClock(&fakeClock{}))
	ctx := context.Background()

	report, err := r.Reverse(ctx, win)
	require.NoError(t, err)
	tabs, groups := snapshot(t, store)
	assert.Equal(t, []int{1, 3, 2, 7, 6, 5, 8, 4}, ids(tabs))
	require.Len(t, report.Regrouped, 2)

	byTitle := groupByTitle(groups)
	require.Len(t, groups, 2)
	first := byTitle["First_2"]
	second := byTitle["Second_3"]
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, report.Regrouped[5], first.ID)
	assert.Equal(t, report.Regrouped[6], second.ID)
	assert.True(t, first.Collapsed)
	assert.False(t, second.Collapsed)
	assert.Equal(t, types.ColorRed, first.Color)
	assert.Equal(t, first.ID, tabs[1].GroupID)

	_, err = r.Reverse(ctx, win)
	require.NoError(t, err)
	tabs, groups = snapshot(t, store)
	assert.Equal(t, []int{1, 2, 3, 5, 6, 7, 4, 8}, ids(tabs))

	byTitle = groupByTitle(groups)
	assert.True(t, byTitle["First_2"].Collapsed)
	assert.Equal(t, types.ColorCyan, byTitle["Second_3"].Color)
	assert.Equal(t, byTitle["First_2"].ID, tabs[1].GroupID)
	assert.Equal(t, byTitle["Second_3"].ID, tabs[3].GroupID)
}

func TestRenumberGroups(t *testing.T) {
	store := newStore([]*types.Tab{
		{URL: "https://a", GroupID: 5},
		{URL: "https://b", GroupID: 5},
		{URL: "https://c", GroupID: 6},
	}, []*types.Group{
		{ID: 5, Title: "Google_7", Collapsed: true},
		{ID: 6, Title: ""},
	})
	r := New(store, WithClock(&fakeClock{}))

	_, err := r.RenumberGroups(context.Background(), win)
	require.NoError(t, err)

	_, groups := snapshot(t, store)
	byTitle := groupByTitle(groups)
	require.Contains(t, byTitle, "Google_2")
	assert.True(t, byTitle["Google_2"].Collapsed)
	assert.Contains(t, byTitle, "Unnamed group_1")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "settling", Settling.String())
	assert.Equal(t, "state(42)", State(42).String())
}
