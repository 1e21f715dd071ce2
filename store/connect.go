package store

import (
	"fmt"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/mmr"
)

// treeUndo is the undo information for a single MMR that one block's
// connectBlock call produced: the tree's size before the block (so
// disconnectBlock can truncate the node store back to it) and the leaf
// indices the block newly marked deleted (so the deletion bitmap can be
// rebuilt without them).
type treeUndo struct {
	PreSize       uint64
	DeletedLeaves []uint64
}

// undoRecord captures everything connectBlock did, so disconnectBlock
// can exactly reverse it across both the UTXO set and the three MMR
// checkpoints the block contributed — a reorg must behave as one
// logical transaction over all of them. Kept in memory only: a crash
// loses the ability to disconnect blocks connected
// in the prior process, which a production node would not accept but
// is a reasonable simplification here.
type undoRecord struct {
	SpentCommitments   []core.Hash
	SpentEntries       []utxoEntry
	CreatedCommitments []core.Hash
	Kernels            []core.TransactionKernel

	Output     treeUndo
	Kernel     treeUndo
	RangeProof treeUndo
}

// connectBlock applies block's effects (spend inputs, create outputs,
// append kernels, grow all three MMRs) at height, writes the resulting
// chain-index/height-index/tip records, and returns the undo record
// needed to reverse it later. Every write goes through tx — the single
// block transaction the caller opened and bound to the tree handles —
// so the engine commits the whole block or none of it.
func (s *Store) connectBlock(tx kvTx, block *core.Block, height uint64, data core.AccumulatedData) (undoRecord, error) {
	hash := core.HeaderHash(&block.Header)
	var undo undoRecord

	for _, in := range block.Body.Inputs {
		entry, ok, err := getUtxoTx(tx, in.Commitment)
		if err != nil {
			return undoRecord{}, err
		}
		if !ok {
			return undoRecord{}, fmt.Errorf("store: block %x spends unknown commitment %x", hash, in.Commitment)
		}
		if !s.output.mutable.Delete(entry.MMRLeafPosition) {
			return undoRecord{}, fmt.Errorf("store: output mmr leaf %d already deleted or out of range", entry.MMRLeafPosition)
		}
		if err := tx.Delete(bucketUtxos, in.Commitment[:]); err != nil {
			return undoRecord{}, err
		}
		if err := tx.Put(bucketStxos, in.Commitment[:], encodeUtxoEntry(entry)); err != nil {
			return undoRecord{}, err
		}
		undo.SpentCommitments = append(undo.SpentCommitments, in.Commitment)
		undo.SpentEntries = append(undo.SpentEntries, entry)
		undo.Output.DeletedLeaves = append(undo.Output.DeletedLeaves, entry.MMRLeafPosition)
	}

	undo.Output.PreSize = s.output.nodes.Size()
	undo.Kernel.PreSize = s.kernel.nodes.Size()
	undo.RangeProof.PreSize = s.rangeproof.nodes.Size()

	for _, out := range block.Body.Outputs {
		leafIdx, err := s.output.mutable.Push(out.Commitment)
		if err != nil {
			return undoRecord{}, err
		}
		if _, err := s.rangeproof.mutable.Push(core.HashBytes(out.RangeProof)); err != nil {
			return undoRecord{}, err
		}
		entry := utxoEntry{Output: out, MMRLeafPosition: leafIdx, MinedHeight: height}
		if err := tx.Put(bucketUtxos, out.Commitment[:], encodeUtxoEntry(entry)); err != nil {
			return undoRecord{}, err
		}
		undo.CreatedCommitments = append(undo.CreatedCommitments, out.Commitment)
	}

	for _, k := range block.Body.Kernels {
		if _, err := s.kernel.mutable.Push(k.Excess); err != nil {
			return undoRecord{}, err
		}
		entry := kernelEntry{Kernel: k, BlockHash: hash}
		if err := tx.Put(bucketKernels, k.Excess[:], encodeKernelEntry(entry)); err != nil {
			return undoRecord{}, err
		}
		undo.Kernels = append(undo.Kernels, k)
	}

	if err := s.pushCheckpoint(tx, s.output, undo.Output); err != nil {
		return undoRecord{}, err
	}
	if err := s.pushCheckpoint(tx, s.kernel, undo.Kernel); err != nil {
		return undoRecord{}, err
	}
	if err := s.pushCheckpoint(tx, s.rangeproof, undo.RangeProof); err != nil {
		return undoRecord{}, err
	}

	entry := indexEntry{Height: height, Hash: hash, Data: data}
	if err := tx.Put(bucketChainIndex, hash[:], encodeIndexEntry(entry)); err != nil {
		return undoRecord{}, err
	}
	if err := tx.Put(bucketHeightIndex, heightKey(height), hash[:]); err != nil {
		return undoRecord{}, err
	}
	if err := tx.Put(bucketMetadata, metadataTipKey, encodeIndexEntry(entry)); err != nil {
		return undoRecord{}, err
	}

	s.tip = TipState{Height: height, Hash: hash, Data: data}
	s.hasTip = true
	return undo, nil
}

// pushCheckpoint records the nodes th grew by since pre.PreSize and the
// leaves pre.DeletedLeaves marked deleted as one persisted
// mmr.MerkleCheckPoint, keeping th.log and the checkpoint bucket in
// lockstep so a log index always equals its bucket sequence number.
func (s *Store) pushCheckpoint(tx kvTx, th *treeHandle, pre treeUndo) error {
	cp := mmr.MerkleCheckPoint{NodesDeleted: pre.DeletedLeaves}
	newSize := th.nodes.Size()
	for i := pre.PreSize; i < newSize; i++ {
		h, err := th.nodes.Get(i)
		if err != nil {
			return err
		}
		cp.NodesAdded = append(cp.NodesAdded, h)
	}
	cp.AccumulatedNodesAddedCount = uint32(newSize)

	seq := uint64(th.log.Len())
	th.log.Push(cp)
	th.nextSeq = uint64(th.log.Len())
	return tx.Put(th.checkpointBucket, nodeKey(seq), encodeCheckpoint(cp))
}

// disconnectBlock reverses connectBlock using its undo record: restores
// spent outputs, deletes created outputs and kernels, truncates each MMR
// node store back to its pre-block size, and rebuilds the mutable
// overlay over the truncated store without the block's deletions. Like
// connectBlock it writes only through tx, so a reorg spanning many
// blocks still commits as one transaction.
func (s *Store) disconnectBlock(tx kvTx, header *core.BlockHeader, undo undoRecord) error {
	for i, commit := range undo.SpentCommitments {
		entry := undo.SpentEntries[i]
		if err := tx.Delete(bucketStxos, commit[:]); err != nil {
			return err
		}
		if err := tx.Put(bucketUtxos, commit[:], encodeUtxoEntry(entry)); err != nil {
			return err
		}
	}

	for _, commit := range undo.CreatedCommitments {
		if err := tx.Delete(bucketUtxos, commit[:]); err != nil {
			return err
		}
	}

	for _, k := range undo.Kernels {
		if err := tx.Delete(bucketKernels, k.Excess[:]); err != nil {
			return err
		}
	}

	if err := s.rewindTree(tx, s.output, undo.Output); err != nil {
		return err
	}
	if err := s.rewindTree(tx, s.kernel, undo.Kernel); err != nil {
		return err
	}
	if err := s.rewindTree(tx, s.rangeproof, undo.RangeProof); err != nil {
		return err
	}

	hash := core.HeaderHash(header)
	if err := tx.Delete(bucketChainIndex, hash[:]); err != nil {
		return err
	}
	return tx.Delete(bucketHeightIndex, heightKey(header.Height))
}

// rewindTree truncates th's node store back to undo.PreSize, drops the
// checkpoint that covered the removed nodes, and rebuilds th.mutable so
// its deletion bitmap no longer includes undo.DeletedLeaves.
func (s *Store) rewindTree(tx kvTx, th *treeHandle, undo treeUndo) error {
	seq := uint64(th.log.Len()) - 1
	if _, err := th.log.Rewind(1); err != nil {
		return err
	}
	th.nextSeq = uint64(th.log.Len())
	if err := th.nodes.Truncate(undo.PreSize); err != nil {
		return err
	}
	if err := tx.Delete(th.checkpointBucket, nodeKey(seq)); err != nil {
		return err
	}

	remainingDeleted := make([]uint64, 0, th.mutable.Bitmap().Len())
	removed := make(map[uint64]struct{}, len(undo.DeletedLeaves))
	for _, l := range undo.DeletedLeaves {
		removed[l] = struct{}{}
	}
	for _, l := range th.mutable.Bitmap().Positions() {
		if _, skip := removed[l]; !skip {
			remainingDeleted = append(remainingDeleted, l)
		}
	}
	th.mutable = mmr.RehydrateMutableMmr(th.nodes, remainingDeleted)
	return nil
}
