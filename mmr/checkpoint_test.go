package mmr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFetchCheckpointWalksBackFromTip(t *testing.T) {
	log := NewCheckpointLog(false)
	for h := uint32(1); h <= 5; h++ {
		log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: h})
	}

	cp, err := log.FetchCheckpoint(5, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(5), cp.AccumulatedNodesAddedCount)

	cp, err = log.FetchCheckpoint(5, 1)
	require.NoError(t, err)
	require.Equal(t, uint32(1), cp.AccumulatedNodesAddedCount)
}

func TestFetchCheckpointBeyondPruningHorizon(t *testing.T) {
	log := NewCheckpointLog(true)
	log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: 1})
	log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: 2})

	// index 0 in pruned mode is the horizon accumulation checkpoint.
	_, err := log.FetchCheckpoint(2, 1)
	require.ErrorIs(t, err, ErrBeyondPruningHorizon)

	_, err = log.FetchCheckpoint(2, 2)
	require.NoError(t, err)
}

func TestRewindNeverTruncatesToZero(t *testing.T) {
	log := NewCheckpointLog(false)
	for h := uint32(1); h <= 3; h++ {
		log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: h})
	}

	last, err := log.Rewind(10)
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())
	require.Equal(t, uint32(1), last.AccumulatedNodesAddedCount)
}

func TestMergeCheckpointsReclaimsDeletedPositions(t *testing.T) {
	log := NewCheckpointLog(false)
	log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: 1, NodesDeleted: []uint64{1}})
	log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: 2, NodesDeleted: []uint64{2}})
	log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: 3, NodesDeleted: []uint64{3}})
	log.Push(MerkleCheckPoint{AccumulatedNodesAddedCount: 4, NodesDeleted: []uint64{4}})

	merged, reclaimed, err := log.MergeCheckpoints(2)
	require.NoError(t, err)
	require.Equal(t, 3, merged)
	require.ElementsMatch(t, []uint64{2, 3}, reclaimed)
	require.Equal(t, 2, log.Len())
	require.Equal(t, uint32(3), log.checkpoints[0].AccumulatedNodesAddedCount)
}
