package store

import (
	"time"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/mmr"
)

var metadataPrunedHeightKey = []byte("pruned_height")

// pruneToHorizonLocked runs the pruned-mode maintenance: once the tip
// is more than pruningHorizon blocks past the
// pruned height, the oldest MMR checkpoints are merged into the horizon
// accumulator, the STXOs whose deletions those checkpoints recorded are
// reclaimed, and historical block bodies below tip-horizon are
// discarded. Headers, the chain index, and the merged horizon
// checkpoint remain, so kernel and output MMR roots stay verifiable.
func (s *Store) pruneToHorizonLocked() error {
	if !s.prunedMode || !s.hasTip || s.tip.Height <= s.pruningHorizon {
		return nil
	}

	maxCheckpoints := int(s.pruningHorizon) + 1
	for _, th := range []*treeHandle{s.output, s.kernel, s.rangeproof} {
		merged, deletedLeaves, err := th.log.MergeCheckpoints(maxCheckpoints)
		if err != nil {
			return err
		}
		if merged == 0 {
			continue
		}
		if err := s.rewriteCheckpointBucket(th); err != nil {
			return err
		}
		if th == s.output && len(deletedLeaves) > 0 {
			if err := s.reclaimStxos(deletedLeaves); err != nil {
				return err
			}
		}
	}

	return s.discardBodiesBelowHorizon()
}

// rewriteCheckpointBucket rewrites th's checkpoint bucket so that its
// sequence numbers again equal the (post-merge) log indices. Merging
// shrinks the log from the front, so every surviving checkpoint shifts
// down; the bucket is small (at most horizon+1 entries) and rewritten
// wholesale rather than shifted key-by-key.
func (s *Store) rewriteCheckpointBucket(th *treeHandle) error {
	oldLen := th.nextSeq
	newLen := uint64(th.log.Len())
	err := s.engine.Update(func(tx kvTx) error {
		for seq := uint64(0); seq < oldLen; seq++ {
			if err := tx.Delete(th.checkpointBucket, nodeKey(seq)); err != nil {
				return err
			}
		}
		for seq := uint64(0); seq < newLen; seq++ {
			cp, err := th.log.FetchIndex(int(seq))
			if err != nil {
				return err
			}
			if err := tx.Put(th.checkpointBucket, nodeKey(seq), encodeCheckpoint(cp)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	th.nextSeq = newLen
	return nil
}

// reclaimStxos deletes the STXO records whose output-MMR leaf
// positions fell behind the horizon; merged checkpoints report exactly
// those leaves so the underlying STXO storage can be reclaimed.
func (s *Store) reclaimStxos(deletedLeaves []uint64) error {
	reclaim := make(map[uint64]struct{}, len(deletedLeaves))
	for _, l := range deletedLeaves {
		reclaim[l] = struct{}{}
	}
	var staleKeys [][]byte
	err := s.engine.View(func(tx kvTx) error {
		return tx.ForEach(bucketStxos, func(k, v []byte) error {
			e, err := decodeUtxoEntry(v)
			if err != nil {
				return err
			}
			if _, old := reclaim[e.MMRLeafPosition]; old {
				staleKeys = append(staleKeys, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	return s.engine.Update(func(tx kvTx) error {
		for _, k := range staleKeys {
			if err := tx.Delete(bucketStxos, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// discardBodiesBelowHorizon drops block bodies for heights below
// tip-horizon and advances the persisted pruned height. Headers stay.
func (s *Store) discardBodiesBelowHorizon() error {
	horizonFloor := s.tip.Height - s.pruningHorizon
	pruned := s.prunedHeightLocked()
	if pruned >= horizonFloor {
		return nil
	}
	err := s.engine.Update(func(tx kvTx) error {
		for h := pruned; h < horizonFloor; h++ {
			hashBytes, ok, err := tx.Get(bucketHeightIndex, heightKey(h))
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := tx.Delete(bucketBodies, hashBytes); err != nil {
				return err
			}
		}
		return tx.Put(bucketMetadata, metadataPrunedHeightKey, heightKey(horizonFloor))
	})
	return err
}

func (s *Store) prunedHeightLocked() uint64 {
	var pruned uint64
	_ = s.engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketMetadata, metadataPrunedHeightKey)
		if err != nil || !ok {
			return err
		}
		pruned = decodeHeightKey(v)
		return nil
	})
	return pruned
}

func decodeHeightKey(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// FetchCheckpoint returns the checkpoint recorded for height in tree's
// checkpoint list. Heights behind the pruning horizon report
// mmr.ErrBeyondPruningHorizon, and in pruned mode the merged horizon
// checkpoint itself is never returned as a historical checkpoint.
func (s *Store) FetchCheckpoint(tree MMRTree, height uint64) (mmr.MerkleCheckPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.treeFor(tree)
	if th == nil {
		return mmr.MerkleCheckPoint{}, mmr.ErrBeyondPruningHorizon
	}
	return th.log.FetchCheckpoint(s.tip.Height, height)
}

// ChainMetadata assembles the fixed chain-metadata record describing
// this node's own chain, the payload it advertises to peers.
func (s *Store) ChainMetadata() (core.ChainMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	md := core.ChainMetadata{PruningHorizon: s.pruningHorizon}
	if !s.hasTip {
		return md, nil
	}
	total, err := totalDifficulty(s.tip.Data)
	if err != nil {
		return core.ChainMetadata{}, err
	}
	md.BestBlockHash = s.tip.Hash
	md.HeightOfLongestChain = s.tip.Height
	md.AccumulatedDifficulty = total
	md.PrunedHeight = s.prunedHeightLocked()
	return md, nil
}

// UtxoLeafPosition reports the output-MMR leaf index the unspent
// commitment was inserted at, which callers need to express the
// deletion set of a candidate block when pre-computing MMR roots via
// CalculateMMRRoot.
func (s *Store) UtxoLeafPosition(commitment core.Hash) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok, err := s.getUtxoLocked(commitment)
	if err != nil || !ok {
		return 0, false, err
	}
	return e.MMRLeafPosition, true, nil
}

// PruneOrphans expires orphans by age and pool size: orphans older
// than ttl are always dropped, and if the pool still exceeds sizeCap
// the oldest are dropped first. Returns how many were removed.
func (s *Store) PruneOrphans(sizeCap int, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	victims := s.orphans.expired(now, ttl)
	if over := s.orphans.count() - len(victims) - sizeCap; over > 0 {
		victims = append(victims, s.orphans.oldestExcluding(victims, over)...)
	}

	removed := 0
	for _, hash := range victims {
		blockBytes, found, err := s.orphanBytesLocked(hash)
		if err != nil {
			return removed, err
		}
		if !found {
			continue
		}
		block, err := core.DecodeBlock(blockBytes)
		if err != nil {
			return removed, err
		}
		if err := s.engine.Update(func(tx kvTx) error {
			return tx.Delete(bucketOrphans, hash[:])
		}); err != nil {
			return removed, err
		}
		s.orphans.remove(block.Header.PrevHash, hash)
		removed++
	}
	return removed, nil
}

func (s *Store) orphanBytesLocked(hash core.Hash) ([]byte, bool, error) {
	var blockBytes []byte
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketOrphans, hash[:])
		blockBytes, found = v, ok
		return err
	})
	return blockBytes, found, err
}
