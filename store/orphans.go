package store

import (
	"sort"
	"time"

	"github.com/tari-project/tari-sub025/core"
)

// orphans holds blocks whose parent hasn't been seen yet, as a flat
// map keyed by hash plus a child-index map keyed by parent hash —
// never a tree of pointers, so orphan forests cannot form reference
// cycles; everything is looked up by hash. The durable copy lives in
// bucketOrphans; this in-memory index just speeds up "does this orphan
// have a child I can now connect" lookups.
type orphanIndex struct {
	byParent map[core.Hash][]core.Hash
	// arrival records when each orphan entered the pool, the basis for
	// the ttl/size-cap expiry policy in PruneOrphans. Orphans reloaded
	// from the durable bucket at startup get the load time; their true
	// arrival time did not survive the restart, which only ever makes
	// them live longer, never expire early.
	arrival map[core.Hash]time.Time
}

func newOrphanIndex() *orphanIndex {
	return &orphanIndex{
		byParent: make(map[core.Hash][]core.Hash),
		arrival:  make(map[core.Hash]time.Time),
	}
}

func (o *orphanIndex) add(block *core.Block) {
	parent := block.Header.PrevHash
	hash := core.HeaderHash(&block.Header)
	if _, known := o.arrival[hash]; known {
		return
	}
	o.arrival[hash] = time.Now()
	o.byParent[parent] = append(o.byParent[parent], hash)
}

func (o *orphanIndex) remove(parent, hash core.Hash) {
	children := o.byParent[parent]
	for i, h := range children {
		if h == hash {
			o.byParent[parent] = append(children[:i], children[i+1:]...)
			break
		}
	}
	if len(o.byParent[parent]) == 0 {
		delete(o.byParent, parent)
	}
	delete(o.arrival, hash)
}

func (o *orphanIndex) count() int { return len(o.arrival) }

// expired returns the orphans whose age exceeds ttl at now.
func (o *orphanIndex) expired(now time.Time, ttl time.Duration) []core.Hash {
	var out []core.Hash
	for hash, at := range o.arrival {
		if now.Sub(at) > ttl {
			out = append(out, hash)
		}
	}
	return out
}

// oldestExcluding returns up to n of the oldest orphans not already in
// excluded, used to enforce the pool-size cap after ttl expiry.
func (o *orphanIndex) oldestExcluding(excluded []core.Hash, n int) []core.Hash {
	skip := make(map[core.Hash]struct{}, len(excluded))
	for _, h := range excluded {
		skip[h] = struct{}{}
	}
	var candidates []core.Hash
	for hash := range o.arrival {
		if _, ok := skip[hash]; !ok {
			candidates = append(candidates, hash)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		ai, aj := o.arrival[candidates[i]], o.arrival[candidates[j]]
		if !ai.Equal(aj) {
			return ai.Before(aj)
		}
		return candidates[i].Less(candidates[j])
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

func (o *orphanIndex) childrenOf(parent core.Hash) []core.Hash {
	return append([]core.Hash(nil), o.byParent[parent]...)
}

func (s *Store) storeOrphan(block *core.Block) error {
	hash := core.HeaderHash(&block.Header)
	if err := s.engine.Update(func(tx kvTx) error {
		return tx.Put(bucketOrphans, hash[:], core.EncodeBlock(block))
	}); err != nil {
		return err
	}
	s.orphans.add(block)
	return nil
}

func (s *Store) takeOrphan(hash core.Hash) (*core.Block, bool, error) {
	var blockBytes []byte
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketOrphans, hash[:])
		blockBytes, found = v, ok
		return err
	})
	if err != nil || !found {
		return nil, false, err
	}
	block, err := core.DecodeBlock(blockBytes)
	if err != nil {
		return nil, false, err
	}
	if err := s.engine.Update(func(tx kvTx) error {
		return tx.Delete(bucketOrphans, hash[:])
	}); err != nil {
		return nil, false, err
	}
	s.orphans.remove(block.Header.PrevHash, hash)
	return block, true, nil
}
