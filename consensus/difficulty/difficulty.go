// Package difficulty implements the LWMA (Linearly-Weighted Moving Average)
// retarget algorithm the validator uses to compute the expected difficulty
// for the next block (spec.md §4.3).
package difficulty

// Tunable only at genesis — these are chain parameters, not runtime knobs.
const (
	// Window is the number of trailing blocks the retarget averages over.
	Window = 90

	// TargetBlockTimeSeconds is the desired average time between blocks.
	TargetBlockTimeSeconds = 15

	// maxSolveTimeMultiple clamps any single block's solve time to
	// [1, maxSolveTimeMultiple*T] so a handful of stale timestamps can't
	// distort the weighted sum.
	maxSolveTimeMultiple = 6

	// BootstrapDifficulty applies for blocks 1..Window, before there is a
	// full window of solve times to average over.
	BootstrapDifficulty uint64 = 1 << 16
)

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Next computes the difficulty for the block that extends a chain whose
// trailing `timestamps` (oldest first, length <= Window+1, including the
// parent) are known, given prevDifficulty of the immediately preceding
// block. len(timestamps) < Window+1 means fewer than Window solved blocks
// exist yet, so BootstrapDifficulty applies (spec.md §4.3 "Before block
// N+1, a fixed bootstrap difficulty applies").
func Next(timestamps []uint64, prevDifficulty uint64) uint64 {
	if len(timestamps) < Window+1 {
		return BootstrapDifficulty
	}
	if prevDifficulty == 0 {
		prevDifficulty = BootstrapDifficulty
	}

	// timestamps holds Window+1 entries: ts_0 (parent of the window) through
	// ts_Window. solve_time_i = clamp(ts_i - ts_{i-1}, 1, 6T) for i=1..Window.
	start := len(timestamps) - (Window + 1)
	window := timestamps[start:]

	const T = TargetBlockTimeSeconds
	var weightedSum int64
	for i := 1; i <= Window; i++ {
		solve := int64(window[i]) - int64(window[i-1])
		solve = clamp(solve, 1, maxSolveTimeMultiple*T)
		weightedSum += int64(i) * solve
	}
	if weightedSum <= 0 {
		weightedSum = 1
	}

	// new = prev * (N*(N+1)/2) * T / S
	const nSum = int64(Window) * (Window + 1) / 2
	numerator := int64(prevDifficulty) * nSum * T
	next := numerator / weightedSum

	lo := int64(prevDifficulty) / 2
	hi := int64(prevDifficulty) * 2
	if lo < 1 {
		lo = 1
	}
	next = clamp(next, lo, hi)
	return uint64(next)
}
