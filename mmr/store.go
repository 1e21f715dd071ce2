package mmr

import (
	"fmt"

	"github.com/tari-project/tari-sub025/core"
)

// NodeStore is the storage abstraction a MerkleMountainRange accumulates
// nodes into, zero-based index throughout. The durable, bbolt-backed
// implementation lives in store/; MemStore below is the in-memory
// implementation used for tests and for ephemeral MMRs.
type NodeStore interface {
	Get(i uint64) (core.Hash, error)
	Append(h core.Hash) (uint64, error)
	Size() uint64
}

// MemStore is a NodeStore backed by a plain slice.
type MemStore struct {
	nodes []core.Hash
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Get(i uint64) (core.Hash, error) {
	if i >= uint64(len(m.nodes)) {
		return core.Hash{}, fmt.Errorf("mmr: index %d out of range (size %d)", i, len(m.nodes))
	}
	return m.nodes[i], nil
}

func (m *MemStore) Append(h core.Hash) (uint64, error) {
	m.nodes = append(m.nodes, h)
	return uint64(len(m.nodes) - 1), nil
}

func (m *MemStore) Size() uint64 {
	return uint64(len(m.nodes))
}
