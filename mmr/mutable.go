package mmr

import (
	"encoding/binary"
	"sort"

	"github.com/tari-project/tari-sub025/core"
)

// DeletionBitmap tracks which leaf indices have been deleted from a
// MutableMmr. Deletion never removes a node from the underlying
// NodeStore: the leaf's hash stays in place and its position is instead
// recorded here, so a deleted leaf's hash is still needed to recompute
// ancestor hashes but no longer counts toward the mutable root. A plain
// sorted set over stdlib types serves as the bitmap; see DESIGN.md for
// why no compressed-bitmap library backs it.
type DeletionBitmap struct {
	deleted map[uint64]struct{}
}

func NewDeletionBitmap() *DeletionBitmap {
	return &DeletionBitmap{deleted: make(map[uint64]struct{})}
}

func (d *DeletionBitmap) Mark(leafIndex uint64) {
	d.deleted[leafIndex] = struct{}{}
}

func (d *DeletionBitmap) IsDeleted(leafIndex uint64) bool {
	_, ok := d.deleted[leafIndex]
	return ok
}

func (d *DeletionBitmap) Len() int { return len(d.deleted) }

// Merge folds other's marks into d, used when checkpoints are merged.
func (d *DeletionBitmap) Merge(other *DeletionBitmap) {
	for i := range other.deleted {
		d.deleted[i] = struct{}{}
	}
}

// Positions returns the marked leaf indices in ascending order.
func (d *DeletionBitmap) Positions() []uint64 {
	out := make([]uint64, 0, len(d.deleted))
	for i := range d.deleted {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Serialize returns a canonical byte encoding of the bitmap: the
// ascending list of marked leaf indices as big-endian uint64s.
func (d *DeletionBitmap) Serialize() []byte {
	positions := d.Positions()
	buf := make([]byte, 8*len(positions))
	for i, p := range positions {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], p)
	}
	return buf
}

// MutableMmr wraps a MerkleMountainRange with leaf deletion. Its root
// commits to both the append-only peak bagging and the deletion set, so a
// leaf that was pushed and then deleted produces a different root than a
// leaf that was never pushed at all.
type MutableMmr struct {
	mmr     *MerkleMountainRange
	deleted *DeletionBitmap
	// leafPositions maps a zero-based leaf index (the i-th leaf pushed) to
	// its zero-based node index in the underlying store.
	leafPositions []uint64
}

func NewMutableMmr(store NodeStore) *MutableMmr {
	return &MutableMmr{
		mmr:     New(store),
		deleted: NewDeletionBitmap(),
	}
}

func (m *MutableMmr) LeafCount() uint64 { return uint64(len(m.leafPositions)) }

// Push appends a new leaf, returning its leaf index (distinct from its
// underlying node index, which Delete/leaf lookups use internally).
func (m *MutableMmr) Push(leaf core.Hash) (uint64, error) {
	nodeIndex, err := m.mmr.Push(leaf)
	if err != nil {
		return 0, err
	}
	m.leafPositions = append(m.leafPositions, nodeIndex)
	return uint64(len(m.leafPositions) - 1), nil
}

// Delete marks the leaf at leafIndex as deleted, reporting true exactly
// once per leaf: a repeat delete or an out-of-range index returns false
// and changes nothing.
func (m *MutableMmr) Delete(leafIndex uint64) bool {
	if leafIndex >= uint64(len(m.leafPositions)) {
		return false
	}
	if m.deleted.IsDeleted(leafIndex) {
		return false
	}
	m.deleted.Mark(leafIndex)
	return true
}

func (m *MutableMmr) IsDeleted(leafIndex uint64) bool {
	return m.deleted.IsDeleted(leafIndex)
}

// Root returns H(bag(peaks) || serialize(bitmap)).
func (m *MutableMmr) Root() (core.Hash, error) {
	peakRoot, err := m.mmr.Root()
	if err != nil {
		return core.Hash{}, err
	}
	buf := append(append([]byte(nil), peakRoot[:]...), m.deleted.Serialize()...)
	return core.HashBytes(buf), nil
}

func (m *MutableMmr) Bitmap() *DeletionBitmap { return m.deleted }

func (m *MutableMmr) Store() NodeStore { return m.mmr.Store() }

func (m *MutableMmr) Size() uint64 { return m.mmr.Size() }

// RehydrateMutableMmr reconstructs a MutableMmr over a NodeStore that
// already holds a prior run's nodes, re-deriving the leaf-index ->
// node-index mapping from the store's size (LeafNodeIndices) and
// re-marking deletedLeaves (zero-based leaf indices recovered from the
// persisted checkpoint log) as deleted, so the rehydrated instance's
// Root() matches what it was immediately before shutdown.
func RehydrateMutableMmr(store NodeStore, deletedLeaves []uint64) *MutableMmr {
	m := &MutableMmr{
		mmr:           New(store),
		deleted:       NewDeletionBitmap(),
		leafPositions: LeafNodeIndices(store.Size()),
	}
	for _, l := range deletedLeaves {
		m.deleted.Mark(l)
	}
	return m
}
