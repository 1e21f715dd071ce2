package store

import (
	"fmt"

	"github.com/tari-project/tari-sub025/core"
)

// totalDifficulty is the single scalar used to compare two chains'
// cumulative proof-of-work, summing the two independent Monero/SHA3
// accumulators the same way consensus.TotalAccumulatedDifficulty does
// for a core.ProofOfWork, just applied to the per-block
// core.AccumulatedData the store indexes blocks by. Overflow here is
// the same fatal consensus error core.U128.Add already reports.
func totalDifficulty(d core.AccumulatedData) (core.U128, error) {
	return d.AccumulatedSha3.Add(d.AccumulatedMonero)
}

func (s *Store) indexEntryExists(hash core.Hash) (bool, error) {
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		_, ok, err := tx.Get(bucketChainIndex, hash[:])
		found = ok
		return err
	})
	return found, err
}

func (s *Store) getIndexEntry(hash core.Hash) (indexEntry, error) {
	var e indexEntry
	err := s.engine.View(func(tx kvTx) error {
		var err error
		e, err = getIndexEntryTx(tx, hash)
		return err
	})
	return e, err
}

func getIndexEntryTx(tx kvTx, hash core.Hash) (indexEntry, error) {
	v, ok, err := tx.Get(bucketChainIndex, hash[:])
	if err != nil {
		return indexEntry{}, err
	}
	if !ok {
		return indexEntry{}, fmt.Errorf("store: chain index entry %x not found", hash)
	}
	return decodeIndexEntry(v)
}

func persistHeaderAndBodyTx(tx kvTx, block *core.Block) error {
	hash := core.HeaderHash(&block.Header)
	if err := tx.Put(bucketHeaders, hash[:], core.EncodeHeader(&block.Header)); err != nil {
		return err
	}
	return tx.Put(bucketBodies, hash[:], core.EncodeBody(&block.Body))
}

func storeUnappliedSideBlockTx(tx kvTx, block *core.Block, height uint64, data core.AccumulatedData) error {
	hash := core.HeaderHash(&block.Header)
	entry := indexEntry{Height: height, Hash: hash, Data: data}
	return tx.Put(bucketChainIndex, hash[:], encodeIndexEntry(entry))
}

// restoreAfterAbort puts the in-memory state back the way it was before
// a failed block transaction: the engine rolled its buckets back on
// error, so the cached tip and the in-memory MMR overlays (which
// advanced optimistically inside the transaction) are rebuilt from the
// committed state.
func (s *Store) restoreAfterAbort(prevTip TipState, prevHasTip bool) error {
	s.tip, s.hasTip = prevTip, prevHasTip
	return s.reloadTreesLocked()
}

// AddBlock implements Backend.AddBlock: reject duplicates and bad
// blocks, stash blocks with an unknown parent as orphans, extend the
// active chain directly when the parent is the current tip, and
// otherwise record the block as a side-branch candidate and run a
// reorg if its accumulated difficulty overtakes the active chain's.
// Every accept path — direct extension, side-branch record, and a full
// reorg — runs as a single engine transaction, so a failure anywhere
// leaves no half-applied block behind.
func (s *Store) AddBlock(block *core.Block, data core.AccumulatedData) (BlockAddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addBlockLocked(block, data)
}

func (s *Store) addBlockLocked(block *core.Block, data core.AccumulatedData) (BlockAddResult, error) {
	hash := core.HeaderHash(&block.Header)

	exists, err := s.indexEntryExists(hash)
	if err != nil {
		return BlockAddResult{}, err
	}
	if exists {
		return BlockAddResult{Kind: AddExists}, nil
	}

	prevHash := block.Header.PrevHash
	isGenesis := !s.hasTip && prevHash.IsZero()

	var prevKnown bool
	if !isGenesis {
		prevKnown, err = s.indexEntryExists(prevHash)
		if err != nil {
			return BlockAddResult{}, err
		}
	}
	if !isGenesis && !prevKnown {
		if err := s.storeOrphan(block); err != nil {
			return BlockAddResult{}, err
		}
		return BlockAddResult{Kind: AddOrphan}, nil
	}

	if isGenesis || prevHash == s.tip.Hash {
		height := uint64(0)
		if s.hasTip {
			height = s.tip.Height + 1
		}
		prevTip, prevHasTip := s.tip, s.hasTip
		var undo undoRecord
		err := s.engine.Update(func(tx kvTx) error {
			s.bindTrees(tx)
			defer s.unbindTrees()
			if err := persistHeaderAndBodyTx(tx, block); err != nil {
				return err
			}
			var err error
			undo, err = s.connectBlock(tx, block, height, data)
			return err
		})
		if err != nil {
			if restoreErr := s.restoreAfterAbort(prevTip, prevHasTip); restoreErr != nil {
				return BlockAddResult{}, restoreErr
			}
			return BlockAddResult{}, err
		}
		s.undoByHash[hash] = undo
		if err := s.pruneToHorizonLocked(); err != nil {
			return BlockAddResult{}, err
		}
		return BlockAddResult{Kind: AddOk, Added: []core.Hash{hash}}, nil
	}

	parentEntry, err := s.getIndexEntry(prevHash)
	if err != nil {
		return BlockAddResult{}, err
	}
	candidateHeight := parentEntry.Height + 1

	overtakes := true
	if s.hasTip {
		candidateTotal, err := totalDifficulty(data)
		if err != nil {
			return BlockAddResult{}, err
		}
		currentTotal, err := totalDifficulty(s.tip.Data)
		if err != nil {
			return BlockAddResult{}, err
		}
		overtakes = candidateTotal.Cmp(currentTotal) > 0
	}

	prevTip, prevHasTip := s.tip, s.hasTip
	var added, removed []core.Hash
	newUndos := make(map[core.Hash]undoRecord)
	err = s.engine.Update(func(tx kvTx) error {
		if err := persistHeaderAndBodyTx(tx, block); err != nil {
			return err
		}
		if err := storeUnappliedSideBlockTx(tx, block, candidateHeight, data); err != nil {
			return err
		}
		if !overtakes {
			return nil
		}
		s.bindTrees(tx)
		defer s.unbindTrees()
		var err error
		added, removed, err = s.reorgToTip(tx, hash, newUndos)
		return err
	})
	if err != nil {
		if restoreErr := s.restoreAfterAbort(prevTip, prevHasTip); restoreErr != nil {
			return BlockAddResult{}, restoreErr
		}
		return BlockAddResult{}, err
	}
	if !overtakes {
		return BlockAddResult{Kind: AddOk, Added: []core.Hash{hash}}, nil
	}
	for _, h := range removed {
		delete(s.undoByHash, h)
	}
	for h, u := range newUndos {
		s.undoByHash[h] = u
	}
	return BlockAddResult{Kind: AddReorg, Added: added, Removed: removed}, nil
}

// OrphansWaitingOn returns the orphans directly parented on hash,
// without removing them from the pool. Computing a promoted orphan's
// core.AccumulatedData requires running the consensus difficulty
// accumulation the sync driver already owns, so promotion itself is
// the caller's job: call this after a successful AddBlock, validate
// and accumulate each returned block, and resubmit it through AddBlock.
func (s *Store) OrphansWaitingOn(hash core.Hash) []core.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orphans.childrenOf(hash)
}

// TakeOrphan removes and returns the orphan stored under hash, for the
// caller to resubmit via AddBlock after computing its accumulated data.
func (s *Store) TakeOrphan(hash core.Hash) (*core.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.takeOrphan(hash)
}

// findForkPoint walks both oldTip and newTip back to their common
// ancestor, first equalizing height and then stepping both back
// together, ported directly from node/store/reorg.go's findForkPoint.
func findForkPoint(tx kvTx, oldTip, newTip core.Hash) (core.Hash, error) {
	a, b := oldTip, newTip
	ah, ok, err := fetchHeaderTx(tx, a)
	if err != nil {
		return core.Hash{}, err
	}
	if !ok {
		return core.Hash{}, fmt.Errorf("store: missing header for %x", a)
	}
	bh, ok, err := fetchHeaderTx(tx, b)
	if err != nil {
		return core.Hash{}, err
	}
	if !ok {
		return core.Hash{}, fmt.Errorf("store: missing header for %x", b)
	}

	for ah.Height > bh.Height {
		a = ah.PrevHash
		ah, ok, err = fetchHeaderTx(tx, a)
		if err != nil || !ok {
			return core.Hash{}, fmt.Errorf("store: broken ancestry walking to fork point: %v", err)
		}
	}
	for bh.Height > ah.Height {
		b = bh.PrevHash
		bh, ok, err = fetchHeaderTx(tx, b)
		if err != nil || !ok {
			return core.Hash{}, fmt.Errorf("store: broken ancestry walking to fork point: %v", err)
		}
	}
	for a != b {
		a = ah.PrevHash
		ah, ok, err = fetchHeaderTx(tx, a)
		if err != nil || !ok {
			return core.Hash{}, fmt.Errorf("store: broken ancestry walking to fork point: %v", err)
		}
		b = bh.PrevHash
		bh, ok, err = fetchHeaderTx(tx, b)
		if err != nil || !ok {
			return core.Hash{}, fmt.Errorf("store: broken ancestry walking to fork point: %v", err)
		}
	}
	return a, nil
}

// pathFromAncestor walks back from tip to ancestor and returns the
// hashes in ascending (ancestor-first) order, excluding ancestor
// itself, ported directly from node/store/reorg.go's pathFromAncestor.
func pathFromAncestor(tx kvTx, ancestor, tip core.Hash) ([]core.Hash, error) {
	var path []core.Hash
	cur := tip
	for cur != ancestor {
		path = append(path, cur)
		h, ok, err := fetchHeaderTx(tx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("store: missing header walking to ancestor %x", ancestor)
		}
		cur = h.PrevHash
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// reorgToTip disconnects the active chain down to its fork point with
// newTipHash's branch, then reconnects forward along that branch,
// ported directly from node/store/reorg.go's ReorgToTip. Removed is in
// disconnect order (highest block first); Added is in connect order
// (fork+1 first). All writes go through tx, the one transaction the
// caller opened for the whole reorg; undo records for the reconnected
// blocks accumulate in newUndos for the caller to apply to the undo map
// only once the transaction commits.
func (s *Store) reorgToTip(tx kvTx, newTipHash core.Hash, newUndos map[core.Hash]undoRecord) (added, removed []core.Hash, err error) {
	oldTip := s.tip.Hash
	fork, err := findForkPoint(tx, oldTip, newTipHash)
	if err != nil {
		return nil, nil, err
	}

	oldPath, err := pathFromAncestor(tx, fork, oldTip)
	if err != nil {
		return nil, nil, err
	}
	for i := len(oldPath) - 1; i >= 0; i-- {
		h := oldPath[i]
		undo, ok := s.undoByHash[h]
		if !ok {
			return nil, nil, fmt.Errorf("store: no undo record for block %x, cannot reorg away from it", h)
		}
		header, ok, err := fetchHeaderTx(tx, h)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("store: missing header for %x", h)
		}
		if err := s.disconnectBlock(tx, header, undo); err != nil {
			return nil, nil, err
		}
		removed = append(removed, h)
	}

	forkEntry, err := getIndexEntryTx(tx, fork)
	if err != nil {
		return nil, nil, err
	}
	s.tip = TipState{Height: forkEntry.Height, Hash: forkEntry.Hash, Data: forkEntry.Data}
	s.hasTip = true
	if err := tx.Put(bucketMetadata, metadataTipKey, encodeIndexEntry(forkEntry)); err != nil {
		return nil, nil, err
	}

	newPath, err := pathFromAncestor(tx, fork, newTipHash)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range newPath {
		block, ok, err := fetchBlockTx(tx, h)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return nil, nil, fmt.Errorf("store: missing body for reconnect candidate %x", h)
		}
		entry, err := getIndexEntryTx(tx, h)
		if err != nil {
			return nil, nil, err
		}
		undo, err := s.connectBlock(tx, block, entry.Height, entry.Data)
		if err != nil {
			return nil, nil, err
		}
		newUndos[h] = undo
		added = append(added, h)
	}
	return added, removed, nil
}

// RewindToHeight disconnects blocks from the active tip down to and
// including height+1, returning the removed blocks in disconnect order
// (tip first). The whole rewind is one engine transaction: either every
// block above height is disconnected or none is.
func (s *Store) RewindToHeight(height uint64) ([]core.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevTip, prevHasTip := s.tip, s.hasTip
	var removed []core.Block
	var removedHashes []core.Hash
	err := s.engine.Update(func(tx kvTx) error {
		s.bindTrees(tx)
		defer s.unbindTrees()
		for s.hasTip && s.tip.Height > height {
			h := s.tip.Hash
			undo, ok := s.undoByHash[h]
			if !ok {
				return fmt.Errorf("store: no undo record for block %x, cannot rewind past it", h)
			}
			header, ok, err := fetchHeaderTx(tx, h)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("store: missing header for %x", h)
			}
			block, _, err := fetchBlockTx(tx, h)
			if err != nil {
				return err
			}
			if err := s.disconnectBlock(tx, header, undo); err != nil {
				return err
			}
			removedHashes = append(removedHashes, h)
			if block != nil {
				removed = append(removed, *block)
			}

			if header.PrevHash.IsZero() {
				s.tip = TipState{}
				s.hasTip = false
				return tx.Delete(bucketMetadata, metadataTipKey)
			}

			parentEntry, err := getIndexEntryTx(tx, header.PrevHash)
			if err != nil {
				return err
			}
			s.tip = TipState{Height: parentEntry.Height, Hash: parentEntry.Hash, Data: parentEntry.Data}
			if err := tx.Put(bucketMetadata, metadataTipKey, encodeIndexEntry(parentEntry)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if restoreErr := s.restoreAfterAbort(prevTip, prevHasTip); restoreErr != nil {
			return nil, restoreErr
		}
		return nil, err
	}
	for _, h := range removedHashes {
		delete(s.undoByHash, h)
	}
	return removed, nil
}
