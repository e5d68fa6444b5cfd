package difficulty

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTimestamps(n int, interval uint64) []uint64 {
	ts := make([]uint64, n)
	var t uint64 = 1_700_000_000
	for i := range ts {
		ts[i] = t
		t += interval
	}
	return ts
}

func TestNextUsesBootstrapBeforeFullWindow(t *testing.T) {
	ts := buildTimestamps(Window, TargetBlockTimeSeconds) // only Window entries, need Window+1
	got := Next(ts, 12345)
	require.Equal(t, BootstrapDifficulty, got)
}

func TestNextHoldsSteadyWhenAllIntervalsEqualTarget(t *testing.T) {
	ts := buildTimestamps(Window+1, TargetBlockTimeSeconds)
	prev := uint64(1_000_000)
	got := Next(ts, prev)
	require.Equal(t, prev, got, "uniform solve times at exactly T should leave difficulty unchanged")
}

func TestNextIncreasesWhenBlocksComeFasterThanTarget(t *testing.T) {
	ts := buildTimestamps(Window+1, TargetBlockTimeSeconds/2)
	prev := uint64(1_000_000)
	got := Next(ts, prev)
	require.Greater(t, got, prev)
}

func TestNextDecreasesWhenBlocksComeSlowerThanTarget(t *testing.T) {
	ts := buildTimestamps(Window+1, TargetBlockTimeSeconds*2)
	prev := uint64(1_000_000)
	got := Next(ts, prev)
	require.Less(t, got, prev)
}

func TestNextClampsToDoubleOnExtremeSpeedup(t *testing.T) {
	ts := buildTimestamps(Window+1, 1) // far faster than target, would imply a huge jump
	prev := uint64(1_000_000)
	got := Next(ts, prev)
	require.Equal(t, prev*2, got)
}

func TestNextClampsToHalfOnExtremeSlowdown(t *testing.T) {
	ts := buildTimestamps(Window+1, TargetBlockTimeSeconds*6)
	prev := uint64(1_000_000)
	got := Next(ts, prev)
	require.Equal(t, prev/2, got)
}

func TestNextNeverGoesBelowOne(t *testing.T) {
	ts := buildTimestamps(Window+1, TargetBlockTimeSeconds*100)
	got := Next(ts, 1)
	require.GreaterOrEqual(t, got, uint64(1))
}
