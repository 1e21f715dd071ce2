package store

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/mmr"
)

// MMRTree names one of the three Merkle Mountain Ranges the store
// maintains — output, range-proof, and kernel — each with its own node
// store and checkpoint list.
type MMRTree int

const (
	TreeOutput MMRTree = iota
	TreeKernel
	TreeRangeProof
)

func (t MMRTree) String() string {
	switch t {
	case TreeOutput:
		return "output"
	case TreeKernel:
		return "kernel"
	case TreeRangeProof:
		return "rangeproof"
	default:
		return "unknown"
	}
}

// BlockAddResultKind is the outcome of AddBlock: accepted, already
// known, parked as an orphan, or accepted via reorg.
type BlockAddResultKind int

const (
	AddOk BlockAddResultKind = iota
	AddExists
	AddOrphan
	AddReorg
)

// BlockAddResult reports what AddBlock did with a candidate block.
// Added/Removed are populated only for AddReorg, highest-first for
// Removed (the order blocks were disconnected) and the new canonical
// path for Added.
type BlockAddResult struct {
	Kind    BlockAddResultKind
	Added   []core.Hash
	Removed []core.Hash
}

// Backend is the blockchain store's public contract. Both the
// bbolt-backed implementation (NewBoltBackend) and the in-memory
// implementation (NewMemoryBackend) satisfy it, as do the narrower
// validation.BadBlockSet and validation.UtxoResolver interfaces the
// validator pipeline depends on.
type Backend interface {
	AddBlock(block *core.Block, data core.AccumulatedData) (BlockAddResult, error)
	FetchHeaderByHeight(height uint64) (*core.BlockHeader, bool, error)
	FetchBlockByHash(hash core.Hash) (*core.Block, bool, error)
	FetchUTXO(commitment core.Hash) (*core.TransactionOutput, bool, error)
	HasUnspentOutput(commitment core.Hash) (bool, error)
	IsBadBlock(hash core.Hash) (bool, error)
	MarkBadBlock(hash core.Hash) error
	FetchMMRRoot(tree MMRTree) (core.Hash, error)
	CalculateMMRRoot(tree MMRTree, additions []core.Hash, deletions []uint64) (core.Hash, error)
	FetchCheckpoint(tree MMRTree, height uint64) (mmr.MerkleCheckPoint, error)
	UtxoLeafPosition(commitment core.Hash) (uint64, bool, error)
	RewindToHeight(height uint64) ([]core.Block, error)
	ForEachOrphan(fn func(core.Block) error) error
	OrphansWaitingOn(hash core.Hash) []core.Hash
	TakeOrphan(hash core.Hash) (*core.Block, bool, error)
	PruneOrphans(sizeCap int, ttl time.Duration) (int, error)
	SeedFirstSeenHeight(seed []byte) (uint64, bool, error)
	RecordSeedFirstSeen(seed []byte, height uint64) error
	ChainMetadata() (core.ChainMetadata, error)
	Tip() (TipState, bool)
	Close() error
}

// TipState is the active chain's current head, the minimal fact the
// sync state machine and ChainContextValidator need about "where the
// chain currently is."
type TipState struct {
	Height uint64
	Hash   core.Hash
	Data   core.AccumulatedData
}

// treeHandle bundles one MMR's durable node store, in-memory mutable
// overlay, and persisted checkpoint log.
type treeHandle struct {
	nodes            *kvNodeStore
	mutable          *mmr.MutableMmr
	log              *mmr.CheckpointLog
	checkpointBucket bucket
	nextSeq          uint64
}

// Store is the concrete Backend implementation built on a kvEngine; it
// is used both by NewBoltBackend (durable) and NewMemoryBackend
// (in-memory), which differ only in which kvEngine they construct.
type Store struct {
	mu             sync.Mutex
	engine         kvEngine
	prunedMode     bool
	pruningHorizon uint64

	output     *treeHandle
	kernel     *treeHandle
	rangeproof *treeHandle

	tip    TipState
	hasTip bool

	orphans    *orphanIndex
	undoByHash map[core.Hash]undoRecord
}

var metadataTipKey = []byte("tip")

func newStore(engine kvEngine, pruningHorizon uint64) (*Store, error) {
	s := &Store{
		engine:         engine,
		pruningHorizon: pruningHorizon,
		prunedMode:     pruningHorizon > 0,
		orphans:        newOrphanIndex(),
		undoByHash:     make(map[core.Hash]undoRecord),
	}

	if err := s.reloadTreesLocked(); err != nil {
		return nil, err
	}

	err := engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketMetadata, metadataTipKey)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		e, err := decodeIndexEntry(v)
		if err != nil {
			return err
		}
		s.tip = TipState{Height: e.Height, Hash: e.Hash, Data: e.Data}
		s.hasTip = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = engine.View(func(tx kvTx) error {
		return tx.ForEach(bucketOrphans, func(_, v []byte) error {
			b, err := core.DecodeBlock(v)
			if err != nil {
				return err
			}
			s.orphans.add(b)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// reloadTreesLocked (re)opens all three tree handles from durable
// state. It runs at construction and again after an aborted block
// transaction, where the in-memory MMR overlays, size caches and
// checkpoint logs have advanced past the rolled-back buckets and must
// be rebuilt from what actually committed.
func (s *Store) reloadTreesLocked() error {
	var err error
	if s.output, err = openTreeHandle(s.engine, bucketMMROutputNodes, bucketMMROutputCheckpoints, []byte("mmr_size_output"), s.prunedMode); err != nil {
		return err
	}
	if s.kernel, err = openTreeHandle(s.engine, bucketMMRKernelNodes, bucketMMRKernelCheckpoints, []byte("mmr_size_kernel"), s.prunedMode); err != nil {
		return err
	}
	if s.rangeproof, err = openTreeHandle(s.engine, bucketMMRRangeProofNodes, bucketMMRRangeProofCheckpoints, []byte("mmr_size_rangeproof"), s.prunedMode); err != nil {
		return err
	}
	return nil
}

// bindTrees routes every MMR node read/write at the three tree handles
// through tx for the duration of one block transaction; unbindTrees
// must run before the transaction closes.
func (s *Store) bindTrees(tx kvTx) {
	s.output.nodes.bind(tx)
	s.kernel.nodes.bind(tx)
	s.rangeproof.nodes.bind(tx)
}

func (s *Store) unbindTrees() {
	s.output.nodes.unbind()
	s.kernel.nodes.unbind()
	s.rangeproof.nodes.unbind()
}

func openTreeHandle(engine kvEngine, nodes, checkpoints bucket, sizeKey []byte, pruned bool) (*treeHandle, error) {
	ns, err := newKvNodeStore(engine, nodes, sizeKey)
	if err != nil {
		return nil, err
	}

	log := mmr.NewCheckpointLog(pruned)
	var deletedLeaves []uint64
	var seqs []uint64
	err = engine.View(func(tx kvTx) error {
		return tx.ForEach(checkpoints, func(k, _ []byte) error {
			if len(k) != 8 {
				return fmt.Errorf("store: malformed checkpoint key")
			}
			seqs = append(seqs, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortUint64s(seqs)
	for _, seq := range seqs {
		var cpBytes []byte
		var found bool
		err = engine.View(func(tx kvTx) error {
			v, ok, err := tx.Get(checkpoints, nodeKey(seq))
			if err != nil {
				return err
			}
			cpBytes, found = v, ok
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		cp, err := decodeCheckpoint(cpBytes)
		if err != nil {
			return nil, err
		}
		log.Push(cp)
		deletedLeaves = append(deletedLeaves, cp.NodesDeleted...)
	}

	return &treeHandle{
		nodes:            ns,
		mutable:          mmr.RehydrateMutableMmr(ns, deletedLeaves),
		log:              log,
		checkpointBucket: checkpoints,
		nextSeq:          uint64(len(seqs)),
	}, nil
}

func sortUint64s(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (s *Store) treeFor(tree MMRTree) *treeHandle {
	switch tree {
	case TreeOutput:
		return s.output
	case TreeKernel:
		return s.kernel
	case TreeRangeProof:
		return s.rangeproof
	default:
		return nil
	}
}

func (s *Store) Close() error {
	return s.engine.Close()
}

func (s *Store) Tip() (TipState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip, s.hasTip
}

func (s *Store) FetchHeaderByHeight(height uint64) (*core.BlockHeader, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var hash core.Hash
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketHeightIndex, heightKey(height))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		copy(hash[:], v)
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return s.fetchHeaderLocked(hash)
}

func (s *Store) fetchHeaderLocked(hash core.Hash) (*core.BlockHeader, bool, error) {
	var header *core.BlockHeader
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		var err error
		header, found, err = fetchHeaderTx(tx, hash)
		return err
	})
	return header, found, err
}

func fetchHeaderTx(tx kvTx, hash core.Hash) (*core.BlockHeader, bool, error) {
	v, ok, err := tx.Get(bucketHeaders, hash[:])
	if err != nil || !ok {
		return nil, false, err
	}
	h, err := core.DecodeHeader(v)
	if err != nil {
		return nil, false, err
	}
	return h, true, nil
}

func (s *Store) FetchBlockByHash(hash core.Hash) (*core.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchBlockLocked(hash)
}

func (s *Store) fetchBlockLocked(hash core.Hash) (*core.Block, bool, error) {
	var block *core.Block
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		var err error
		block, found, err = fetchBlockTx(tx, hash)
		return err
	})
	return block, found, err
}

func fetchBlockTx(tx kvTx, hash core.Hash) (*core.Block, bool, error) {
	headerBytes, ok, err := tx.Get(bucketHeaders, hash[:])
	if err != nil || !ok {
		return nil, false, err
	}
	bodyBytes, hasBody, err := tx.Get(bucketBodies, hash[:])
	if err != nil {
		return nil, false, err
	}
	header, err := core.DecodeHeader(headerBytes)
	if err != nil {
		return nil, false, err
	}
	if !hasBody {
		// Pruned mode may have discarded the historical body.
		return &core.Block{Header: *header}, true, nil
	}
	body, err := core.DecodeBody(bodyBytes)
	if err != nil {
		return nil, false, err
	}
	return &core.Block{Header: *header, Body: *body}, true, nil
}

func (s *Store) FetchUTXO(commitment core.Hash) (*core.TransactionOutput, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok, err := s.getUtxoLocked(commitment)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &e.Output, true, nil
}

func (s *Store) getUtxoLocked(commitment core.Hash) (utxoEntry, bool, error) {
	var e utxoEntry
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		var err error
		e, found, err = getUtxoTx(tx, commitment)
		return err
	})
	return e, found, err
}

func getUtxoTx(tx kvTx, commitment core.Hash) (utxoEntry, bool, error) {
	v, ok, err := tx.Get(bucketUtxos, commitment[:])
	if err != nil || !ok {
		return utxoEntry{}, false, err
	}
	decoded, err := decodeUtxoEntry(v)
	if err != nil {
		return utxoEntry{}, false, err
	}
	return decoded, true, nil
}

func (s *Store) HasUnspentOutput(commitment core.Hash) (bool, error) {
	_, ok, err := s.FetchUTXO(commitment)
	return ok, err
}

func (s *Store) IsBadBlock(hash core.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bad bool
	err := s.engine.View(func(tx kvTx) error {
		_, ok, err := tx.Get(bucketBadBlocks, hash[:])
		bad = ok
		return err
	})
	return bad, err
}

func (s *Store) MarkBadBlock(hash core.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Update(func(tx kvTx) error {
		return tx.Put(bucketBadBlocks, hash[:], []byte{1})
	})
}

func (s *Store) FetchMMRRoot(tree MMRTree) (core.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.treeFor(tree)
	if th == nil {
		return core.Hash{}, fmt.Errorf("store: unknown mmr tree %v", tree)
	}
	return th.mutable.Root()
}

// CalculateMMRRoot computes the root tree would have if additions were
// pushed and deletions (leaf indices) were marked, without mutating the
// stored tree. The sync pipeline uses it to check a candidate block's
// claimed output/kernel/range-proof MMR roots before the block is
// actually appended.
func (s *Store) CalculateMMRRoot(tree MMRTree, additions []core.Hash, deletions []uint64) (core.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th := s.treeFor(tree)
	if th == nil {
		return core.Hash{}, fmt.Errorf("store: unknown mmr tree %v", tree)
	}

	scratch := mmr.NewMemStore()
	for i := uint64(0); i < th.nodes.Size(); i++ {
		h, err := th.nodes.Get(i)
		if err != nil {
			return core.Hash{}, err
		}
		if _, err := scratch.Append(h); err != nil {
			return core.Hash{}, err
		}
	}
	trial := mmr.RehydrateMutableMmr(scratch, th.mutable.Bitmap().Positions())
	for _, d := range deletions {
		if !trial.Delete(d) {
			return core.Hash{}, fmt.Errorf("store: deletion of leaf %d invalid for %s mmr", d, tree)
		}
	}
	for _, a := range additions {
		if _, err := trial.Push(a); err != nil {
			return core.Hash{}, err
		}
	}
	return trial.Root()
}

func (s *Store) ForEachOrphan(fn func(core.Block) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blocks []core.Block
	err := s.engine.View(func(tx kvTx) error {
		return tx.ForEach(bucketOrphans, func(_, v []byte) error {
			b, err := core.DecodeBlock(v)
			if err != nil {
				return err
			}
			blocks = append(blocks, *b)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SeedFirstSeenHeight(seed []byte) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var height uint64
	var found bool
	err := s.engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketMoneroSeed, seed)
		if err != nil || !ok {
			return err
		}
		height = binary.BigEndian.Uint64(v)
		found = true
		return nil
	})
	return height, found, err
}

func (s *Store) RecordSeedFirstSeen(seed []byte, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Update(func(tx kvTx) error {
		_, exists, err := tx.Get(bucketMoneroSeed, seed)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return tx.Put(bucketMoneroSeed, seed, heightKey(height))
	})
}
