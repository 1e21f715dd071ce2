package mmr

import (
	"errors"

	"github.com/tari-project/tari-sub025/core"
)

// ErrBeyondPruningHorizon is returned when a checkpoint lookup falls
// outside the retained checkpoint window.
var ErrBeyondPruningHorizon = errors.New("mmr: height is beyond the pruning horizon")

// MerkleCheckPoint records one block's worth of MMR mutations: the
// leaves it added (in push order) and the leaf indices it deleted, plus
// a running total of nodes added so far. One checkpoint is produced per
// accepted block.
type MerkleCheckPoint struct {
	NodesAdded                 []core.Hash
	NodesDeleted               []uint64
	AccumulatedNodesAddedCount uint32
}

func (cp *MerkleCheckPoint) accumulatedNodesAddedCount() uint32 { return cp.AccumulatedNodesAddedCount }

// append folds cp2's additions and deletions into cp, used when merging
// checkpoints into a horizon checkpoint.
func (cp *MerkleCheckPoint) append(cp2 MerkleCheckPoint) {
	cp.NodesAdded = append(cp.NodesAdded, cp2.NodesAdded...)
	cp.NodesDeleted = append(cp.NodesDeleted, cp2.NodesDeleted...)
	cp.AccumulatedNodesAddedCount = cp2.AccumulatedNodesAddedCount
}

// CheckpointLog is the append-only sequence of per-block checkpoints
// for one MutableMmr, providing fetch/rewind/merge over that sequence.
// The in-memory log is authoritative at run time; the durable copy
// lives behind store.Backend and is replayed into a fresh log at
// startup.
type CheckpointLog struct {
	checkpoints []MerkleCheckPoint
	prunedMode  bool
}

func NewCheckpointLog(prunedMode bool) *CheckpointLog {
	return &CheckpointLog{prunedMode: prunedMode}
}

func (l *CheckpointLog) Len() int { return len(l.checkpoints) }

func (l *CheckpointLog) Push(cp MerkleCheckPoint) {
	l.checkpoints = append(l.checkpoints, cp)
}

// FetchCheckpoint retrieves the checkpoint for height, given the
// current tip height; the newest checkpoint in the log is the tip's.
func (l *CheckpointLog) FetchCheckpoint(tipHeight, height uint64) (MerkleCheckPoint, error) {
	if len(l.checkpoints) == 0 {
		return MerkleCheckPoint{}, ErrBeyondPruningHorizon
	}
	heightOffset := int64(tipHeight) - int64(height)
	if heightOffset < 0 {
		return MerkleCheckPoint{}, errors.New("mmr: height out of range")
	}

	lastCpIndex := int64(len(l.checkpoints) - 1)
	index := lastCpIndex - heightOffset
	if index < 0 {
		return MerkleCheckPoint{}, ErrBeyondPruningHorizon
	}
	if l.prunedMode && index == 0 {
		return MerkleCheckPoint{}, ErrBeyondPruningHorizon
	}
	return l.checkpoints[index], nil
}

// FetchIndex returns the checkpoint at raw log index i, used by the
// durable store to mirror the in-memory log back into its bucket after
// a merge reshuffles indices.
func (l *CheckpointLog) FetchIndex(i int) (MerkleCheckPoint, error) {
	if i < 0 || i >= len(l.checkpoints) {
		return MerkleCheckPoint{}, errors.New("mmr: checkpoint index out of range")
	}
	return l.checkpoints[i], nil
}

// Rewind truncates the log to max(1, len-stepsBack) entries and
// returns the new last checkpoint. A log is never truncated to zero:
// the genesis/horizon checkpoint must always remain.
func (l *CheckpointLog) Rewind(stepsBack int) (MerkleCheckPoint, error) {
	if len(l.checkpoints) == 0 {
		return MerkleCheckPoint{}, errors.New("mmr: rewind_checkpoints: checkpoints is empty")
	}
	rewindLen := len(l.checkpoints) - stepsBack
	if rewindLen < 1 {
		rewindLen = 1
	}
	l.checkpoints = l.checkpoints[:rewindLen]
	return l.checkpoints[rewindLen-1], nil
}

// MergeCheckpoints merges the oldest checkpoints into a single horizon
// checkpoint when the log exceeds maxCount entries, returning the
// number of checkpoints merged and the leaf indices they had marked
// deleted (so the caller can reclaim the corresponding STXOs).
func (l *CheckpointLog) MergeCheckpoints(maxCount int) (int, []uint64, error) {
	cpCount := len(l.checkpoints)
	numToMerge := cpCount + 1 - maxCount
	if numToMerge <= 0 {
		return 0, nil, nil
	}
	if cpCount == 0 {
		return 0, nil, nil
	}

	merged := l.checkpoints[0]
	var deletedLeaves []uint64
	for i := 1; i < numToMerge; i++ {
		cp := l.checkpoints[i]
		deletedLeaves = append(deletedLeaves, cp.NodesDeleted...)
		merged.append(cp)
	}

	l.checkpoints = append([]MerkleCheckPoint{merged}, l.checkpoints[numToMerge:]...)
	return numToMerge, deletedLeaves, nil
}
