package mmr

import (
	"encoding/binary"

	"github.com/tari-project/tari-sub025/core"
)

// hashPosPair returns H(pos || a || b), the position-committing interior
// node hash that binds a node to its unique slot (so a proof cannot be
// replayed at a different position).
func hashPosPair(pos uint64, a, b core.Hash) core.Hash {
	var buf [8 + 32 + 32]byte
	binary.BigEndian.PutUint64(buf[:8], pos)
	copy(buf[8:40], a[:])
	copy(buf[40:], b[:])
	return core.HashBytes(buf[:])
}

// MerkleMountainRange is an append-only accumulator over a NodeStore.
// Push adds a leaf and backfills any interior nodes the addition
// completes; Root bags the current peaks into one accumulator hash.
type MerkleMountainRange struct {
	store NodeStore
}

func New(store NodeStore) *MerkleMountainRange {
	return &MerkleMountainRange{store: store}
}

func (r *MerkleMountainRange) Store() NodeStore { return r.store }

// Size returns the current node count (leaves plus interior nodes).
func (r *MerkleMountainRange) Size() uint64 { return r.store.Size() }

// Push appends a leaf hash (already hashed by the caller) and returns its
// zero-based node index.
func (r *MerkleMountainRange) Push(leaf core.Hash) (uint64, error) {
	return addHashedLeaf(r.store, leaf)
}

func addHashedLeaf(store NodeStore, leaf core.Hash) (uint64, error) {
	leafIndex, err := store.Append(leaf)
	if err != nil {
		return 0, err
	}

	// i is the index the next appended node takes; while that slot sits
	// above the height just completed, it is the parent of the two nodes
	// immediately before it.
	i := leafIndex + 1
	height := uint64(0)
	for indexHeight(i) > height {
		iLeft := i - (2 << height)
		iRight := i - 1

		left, err := store.Get(iLeft)
		if err != nil {
			return 0, err
		}
		right, err := store.Get(iRight)
		if err != nil {
			return 0, err
		}

		parent := hashPosPair(i+1, left, right)
		if _, err = store.Append(parent); err != nil {
			return 0, err
		}
		i++
		height++
	}
	return leafIndex, nil
}

// PeakHashes returns the accumulator's peak hashes for an MMR of the given
// size, in ascending position order (the highest, left-most peak first).
func PeakHashes(store NodeStore, size uint64) ([]core.Hash, error) {
	positions := peaks(size)
	out := make([]core.Hash, 0, len(positions))
	for _, p := range positions {
		h, err := store.Get(p - 1)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Root bags all current peaks into a single accumulator hash: peaks are
// folded right-to-left with a plain H(right||left) concatenation (no
// position tag — only interior node hashes are position-committed).
func (r *MerkleMountainRange) Root() (core.Hash, error) {
	return Root(r.store, r.store.Size())
}

func Root(store NodeStore, size uint64) (core.Hash, error) {
	if size == 0 {
		// An empty range has no peaks to bag; its root is the hash of
		// the empty string so that downstream bitmap-wrapped roots stay
		// well-defined.
		return core.HashBytes(nil), nil
	}
	ph, err := PeakHashes(store, size)
	if err != nil {
		return core.Hash{}, err
	}
	return bagPeaksPlain(ph), nil
}

// bagPeaksPlain folds peak hashes (highest peak first, as returned by
// PeakHashes) into one root by repeatedly combining the last two
// entries.
func bagPeaksPlain(peakHashes []core.Hash) core.Hash {
	if len(peakHashes) == 0 {
		return core.Hash{}
	}
	work := append([]core.Hash(nil), peakHashes...)
	for len(work) > 1 {
		right := work[len(work)-1]
		left := work[len(work)-2]
		work = work[:len(work)-2]
		work = append(work, plainPairHash(right, left))
	}
	return work[0]
}

func plainPairHash(right, left core.Hash) core.Hash {
	var buf [64]byte
	copy(buf[:32], right[:])
	copy(buf[32:], left[:])
	return core.HashBytes(buf[:])
}
