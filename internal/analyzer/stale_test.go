package analyzer

import (
	"testing"
	"time"

	"github.com/lotas/tabregel/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestByRecency(t *testing.T) {
	now := time.Now()
	tabs := []*types.Tab{
		{ID: 1},
		{ID: 2, LastAccessed: now.Add(-48 * time.Hour)},
		{ID: 3, LastAccessed: now.Add(-1 * time.Hour)},
		{ID: 4},
	}

	got := ByRecency(tabs)
	assert.Equal(t, []int{3, 2, 1, 4}, tabIDs(got))
	assert.Equal(t, 1, tabs[0].ID, "input slice must not be reordered")
}

func TestStaleDays(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 10, StaleDays(&types.Tab{LastAccessed: now.Add(-10*24*time.Hour - time.Hour)}, now))
	assert.Equal(t, 0, StaleDays(&types.Tab{LastAccessed: now.Add(-2 * time.Hour)}, now))
	assert.Equal(t, -1, StaleDays(&types.Tab{}, now))
}
