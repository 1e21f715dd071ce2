package mmr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestPosHeightMatchesKnownShape checks posHeight/indexHeight against the
// well-known 11-node MMR shape (zero-based indices):
//
//	2        6
//	       /   \
//	1     2     5      9
//	     / \   / \    / \
//	0   0   1 3   4  7   8 10
func TestPosHeightMatchesKnownShape(t *testing.T) {
	// one-based positions 1..10: the first perfect subtree (positions
	// 1-7) has its peak at 7, height 2.
	cases := map[uint64]uint64{
		1: 0, 2: 0, 3: 1, 4: 0, 5: 0, 6: 1, 7: 2, 8: 0, 9: 0, 10: 1,
	}
	for pos, wantHeight := range cases {
		require.Equal(t, wantHeight, posHeight(pos), "pos %d", pos)
	}
}

func TestIndexHeightMatchesKnownShape(t *testing.T) {
	// zero-based indices for the same shape: node at pos p has index p-1.
	cases := map[uint64]uint64{
		0: 0, 1: 0, 2: 1, 3: 0, 4: 0, 5: 1, 6: 2, 7: 0, 8: 0, 9: 1,
	}
	for idx, wantHeight := range cases {
		require.Equal(t, wantHeight, indexHeight(idx), "index %d", idx)
	}
}

func TestPeaksForKnownSizes(t *testing.T) {
	// An 11-node MMR (one-based positions 1..11) has peaks at positions
	// 7, 10 and 11 — zero-based indices 6, 9, 10 — in the diagram above
	// TestPosHeightMatchesKnownShape.
	require.Equal(t, []uint64{7, 10, 11}, peaks(11))
}
