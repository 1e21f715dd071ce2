package consensus

import (
	"fmt"
	"sort"

	"github.com/tari-project/tari-sub025/core"
)

// HeaderWindow is the minimal per-header data the difficulty retarget and
// median-timestamp computations need, avoiding a dependency from
// consensus/ on the store package (which itself depends on consensus/).
type HeaderWindow struct {
	Height     uint64
	Timestamp  uint64
	Difficulty uint64
}

// MedianTimestamp returns the median of the last count timestamps in
// window (ordered oldest-to-newest), the value a new header's timestamp
// must exceed. Returns an error if window has fewer than count
// entries.
func MedianTimestamp(window []HeaderWindow, count uint64) (uint64, error) {
	if uint64(len(window)) < count {
		return 0, fmt.Errorf("consensus: window too short for median timestamp")
	}
	tail := window[uint64(len(window))-count:]
	ts := make([]uint64, len(tail))
	for i, h := range tail {
		ts[i] = h.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return ts[len(ts)/2], nil
}

// NextDifficulty implements the Linear Weighted Moving Average retarget
// over the trailing DifficultyBlockWindow headers, with each solve-time
// sample clamped at DifficultyMaxBlockInterval so one outlier timestamp
// cannot swing the next target.
func NextDifficulty(c Constants, window []HeaderWindow) (uint64, error) {
	n := c.DifficultyBlockWindow
	if uint64(len(window)) < n+1 {
		// Not enough history yet: hold steady rather than retarget
		// from a partial window.
		if len(window) == 0 {
			return c.MinPowDifficulty[0], nil
		}
		return window[len(window)-1].Difficulty, nil
	}

	// The last n+1 headers give n solve-time samples.
	recent := window[uint64(len(window))-(n+1):]

	var weightedSum uint64
	var difficultySum float64
	k := n * (n + 1) / 2
	for i := uint64(1); i <= n; i++ {
		solveTime := int64(recent[i].Timestamp) - int64(recent[i-1].Timestamp)
		if solveTime < 1 {
			solveTime = 1
		}
		maxInterval := int64(c.DifficultyMaxBlockInterval)
		if solveTime > maxInterval {
			solveTime = maxInterval
		}
		weightedSum += uint64(solveTime) * i
		difficultySum += float64(recent[i].Difficulty)
	}
	if weightedSum == 0 {
		weightedSum = 1
	}

	avgDifficulty := difficultySum / float64(n)
	nextTarget := avgDifficulty * float64(k) * float64(c.TargetBlockIntervalSeconds) / float64(weightedSum)
	if nextTarget < 1 {
		nextTarget = 1
	}
	return uint64(nextTarget), nil
}

// AccumulateDifficulty folds a newly achieved per-block difficulty into
// the running per-algorithm accumulator. Overflow is a fatal consensus
// error (effectively unreachable with real difficulties).
func AccumulateDifficulty(algo core.PowAlgo, prior core.ProofOfWork, achieved uint64) (core.ProofOfWork, error) {
	next := prior
	switch algo {
	case core.PowAlgoSha3:
		sum, err := prior.AccumulatedSha3Difficulty.AddU64(achieved)
		if err != nil {
			return core.ProofOfWork{}, fmt.Errorf("consensus: accumulated sha3 difficulty overflow: %w", err)
		}
		next.AccumulatedSha3Difficulty = sum
	case core.PowAlgoMonero:
		sum, err := prior.AccumulatedMoneroDifficulty.AddU64(achieved)
		if err != nil {
			return core.ProofOfWork{}, fmt.Errorf("consensus: accumulated monero difficulty overflow: %w", err)
		}
		next.AccumulatedMoneroDifficulty = sum
	default:
		return core.ProofOfWork{}, fmt.Errorf("consensus: unknown pow algo %d", algo)
	}
	return next, nil
}

// TotalAccumulatedDifficulty sums both per-algo accumulators into the
// single total used to compare chains across algorithms.
func TotalAccumulatedDifficulty(pow core.ProofOfWork) (core.U128, error) {
	return pow.AccumulatedSha3Difficulty.Add(pow.AccumulatedMoneroDifficulty)
}

// IsStrongerChain reports whether candidate has strictly greater
// accumulated difficulty than current, the chain-selection criterion
// the store's reorg logic and the sync trigger both rely on.
func IsStrongerChain(candidate, current core.ProofOfWork) (bool, error) {
	a, err := TotalAccumulatedDifficulty(candidate)
	if err != nil {
		return false, err
	}
	b, err := TotalAccumulatedDifficulty(current)
	if err != nil {
		return false, err
	}
	return a.Cmp(b) > 0, nil
}
