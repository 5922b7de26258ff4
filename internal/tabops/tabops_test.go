package tabops

import (
	"context"
	"errors"
	"testing"

	"github.com/lotas/tabregel/internal/browser"
	"github.com/lotas/tabregel/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func store(t *testing.T, urls ...string) *browser.Memory {
	t.Helper()
	tabs := make([]*types.Tab, len(urls))
	for i, u := range urls {
		tabs[i] = &types.Tab{ID: i + 1, URL: u, Active: i == 2}
	}
	m := browser.NewMemory()
	m.Load(1, tabs, nil)
	return m
}

func remaining(t *testing.T, m *browser.Memory) []int {
	t.Helper()
	tabs, err := m.ListTabs(context.Background(), 1)
	require.NoError(t, err)
	return ids(tabs)
}

var urls = []string{
	"https://a.com/1",
	"https://b.com/1",
	"https://www.a.com/2",
	"https://c.com",
	"https://sub.a.com/3",
}

func TestClose(t *testing.T) {
	tests := []struct {
		mode Close
		left []int
	}{
		{CloseLeft, []int{3, 4, 5}},
		{CloseRight, []int{1, 2, 3}},
		{CloseOthers, []int{3}},
		{CloseCurrent, []int{1, 2, 4, 5}},
		{CloseDomain, []int{2, 4}},
		{CloseExceptDomain, []int{1, 3, 5}},
		{CloseWindow, []int{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			m := store(t, urls...)
			_, err := New(m).Close(context.Background(), 1, 0, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.left, remaining(t, m))
		})
	}
}

func TestCloseWithExplicitAnchor(t *testing.T) {
	m := store(t, urls...)
	closed, err := New(m).Close(context.Background(), 1, 4, CloseRight)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, closed)
}

func TestCloseWithoutAnchor(t *testing.T) {
	m := browser.NewMemory()
	m.Load(1, []*types.Tab{{ID: 1, URL: "https://a.com"}}, nil)

	_, err := New(m).Close(context.Background(), 1, 0, CloseLeft)
	assert.True(t, errors.Is(err, ErrNoActiveTab))

	_, err = New(m).Close(context.Background(), 1, 42, CloseLeft)
	assert.True(t, errors.Is(err, browser.ErrTabNotFound))
}

func TestCloseNothingToDo(t *testing.T) {
	m := store(t, urls...)
	closed, err := New(m).Close(context.Background(), 1, 1, CloseLeft)
	require.NoError(t, err)
	assert.Empty(t, closed)
	assert.NotContains(t, m.Calls, "removeTabs")
}

func TestDedupe(t *testing.T) {
	m := store(t, "https://a.com", "https://b.com", "https://a.com", "https://a.com#top", "https://a.com")

	closed, err := New(m).Dedupe(context.Background(), 1, false)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, closed)
	assert.Equal(t, []int{1, 2, 4}, remaining(t, m))

	closed, err = New(m).Dedupe(context.Background(), 1, true)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, closed)
}

func TestClone(t *testing.T) {
	m := store(t, urls...)

	tab, err := New(m).Clone(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "https://www.a.com/2", tab.URL)
	assert.False(t, tab.Active)
	assert.Equal(t, []int{1, 2, 3, 6, 4, 5}, remaining(t, m))
}

func TestParseClose(t *testing.T) {
	c, err := ParseClose("except-domain")
	require.NoError(t, err)
	assert.Equal(t, CloseExceptDomain, c)

	_, err = ParseClose("everything")
	assert.Error(t, err)
}
