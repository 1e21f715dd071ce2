package mmr

import (
	"errors"

	"github.com/tari-project/tari-sub025/core"
)

// ErrIndexOutOfRange is returned when a proof is requested for a node
// index that does not yet exist in the MMR.
var ErrIndexOutOfRange = errors.New("mmr: index out of range")

// Proof is an inclusion proof for the node at Index: Path is the local
// co-path up to (and including) the accumulator peak that commits Index;
// Peaks is the full peak hash list of the MMR the proof was generated
// against, needed to re-derive Root from the recomputed local peak.
type Proof struct {
	Index uint64
	Path  []core.Hash
	Peaks []core.Hash
}

// ProofFor builds an inclusion proof for the node at index i in an MMR of
// the given size.
func ProofFor(store NodeStore, size uint64, i uint64) (Proof, error) {
	if size == 0 || i >= size {
		return Proof{}, ErrIndexOutOfRange
	}
	path, err := inclusionProofPath(store, size-1, i)
	if err != nil {
		return Proof{}, err
	}
	peakHashes, err := PeakHashes(store, size)
	if err != nil {
		return Proof{}, err
	}
	return Proof{Index: i, Path: path, Peaks: peakHashes}, nil
}

// inclusionProofPath collects the co-path sibling hashes from i up to
// the accumulator peak that commits it, stopping once the computed
// sibling index exceeds mmrLastIndex.
func inclusionProofPath(store NodeStore, mmrLastIndex uint64, i uint64) ([]core.Hash, error) {
	if i > mmrLastIndex {
		return nil, ErrIndexOutOfRange
	}

	var path []core.Hash
	g := indexHeight(i)

	for {
		siblingOffset := uint64(2) << g
		var iSibling uint64

		if indexHeight(i+1) > g {
			iSibling = i - siblingOffset + 1
			i++
		} else {
			iSibling = i + siblingOffset - 1
			i += siblingOffset
		}

		if iSibling > mmrLastIndex {
			return path, nil
		}

		value, err := store.Get(iSibling)
		if err != nil {
			return nil, err
		}
		path = append(path, value)
		g++
	}
}

// includedRoot recomputes the accumulator peak that commits leaf at
// index i, given its co-path.
func includedRoot(i uint64, leaf core.Hash, path []core.Hash) core.Hash {
	root := leaf
	g := indexHeight(i)

	for _, sibling := range path {
		if indexHeight(i+1) > g {
			i++
			root = hashPosPair(i+1, sibling, root)
		} else {
			i += 2 << g
			root = hashPosPair(i+1, root, sibling)
		}
		g++
	}
	return root
}

// Verify reports whether leaf is included at proof.Index in the MMR
// whose current accumulator hash is root. It recomputes the local peak
// from leaf and proof.Path, confirms that peak appears in proof.Peaks,
// then bags proof.Peaks the same way Root does and compares against
// root.
func Verify(root core.Hash, leaf core.Hash, proof Proof) bool {
	localPeak := includedRoot(proof.Index, leaf, proof.Path)

	matched := false
	for _, p := range proof.Peaks {
		if p == localPeak {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	return bagPeaksPlain(proof.Peaks) == root
}
