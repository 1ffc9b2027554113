package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsConsensusRequiresDistinctLeaders(t *testing.T) {
	a := New(DefaultWindow, 2)
	a.Observe("mint1", "leaderA")
	assert.False(t, a.IsConsensus("mint1"))

	a.Observe("mint1", "leaderA") // same leader again, still only 1 distinct
	assert.False(t, a.IsConsensus("mint1"))

	a.Observe("mint1", "leaderB")
	assert.True(t, a.IsConsensus("mint1"))
}

func TestObservationsExpireOutsideWindow(t *testing.T) {
	a := New(20*time.Millisecond, 2)
	a.Observe("mint1", "leaderA")
	a.Observe("mint1", "leaderB")
	require := assert.New(t)
	require.True(a.IsConsensus("mint1"))

	time.Sleep(30 * time.Millisecond)
	require.False(a.IsConsensus("mint1"))
}

func TestDistinctLeaderCount(t *testing.T) {
	a := New(DefaultWindow, 2)
	a.Observe("mint1", "leaderA")
	a.Observe("mint1", "leaderA")
	a.Observe("mint1", "leaderB")
	a.Observe("mint1", "leaderC")

	assert.Equal(t, 3, a.DistinctLeaderCount("mint1"))
}

func TestSeparateMintsDoNotInterfere(t *testing.T) {
	a := New(DefaultWindow, 2)
	a.Observe("mint1", "leaderA")
	a.Observe("mint2", "leaderB")

	assert.Equal(t, 1, a.DistinctLeaderCount("mint1"))
	assert.False(t, a.IsConsensus("mint1"))
}
