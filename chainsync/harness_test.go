package chainsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/p2p"
	"github.com/tari-project/tari-sub025/store"
	"github.com/tari-project/tari-sub025/validation"
)

// testNode bundles a store with the pieces needed to extend its chain
// with deterministic, fully valid blocks.
type testNode struct {
	store     *store.Store
	constants consensus.Constants
	validator *validation.ChainContextValidator
}

func newTestNode(t *testing.T, pruningHorizon uint64) *testNode {
	t.Helper()
	st, err := store.NewMemoryBackend(pruningHorizon)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	constants := consensus.For(consensus.NetworkDevnet, 0)
	n := &testNode{
		store:     st,
		constants: constants,
		validator: &validation.ChainContextValidator{Constants: constants},
	}

	genesis := consensus.GetGenesisBlock(consensus.NetworkDevnet)
	data := core.AccumulatedData{
		AchievedDifficulty: genesis.Header.PoW.TargetDifficulty,
		AccumulatedSha3:    core.U128{Lo: genesis.Header.PoW.TargetDifficulty},
		TargetDifficulty:   genesis.Header.PoW.TargetDifficulty,
	}
	if _, err := st.AddBlock(&genesis, data); err != nil {
		t.Fatalf("seeding genesis: %v", err)
	}
	return n
}

// windowFor mirrors the machine's windowEndingAt for block construction.
func (n *testNode) windowFor(t *testing.T, height uint64) []consensus.HeaderWindow {
	t.Helper()
	span := n.constants.DifficultyBlockWindow + 1
	if n.constants.MedianTimestampCount > span {
		span = n.constants.MedianTimestampCount
	}
	start := uint64(0)
	if height+1 > span {
		start = height + 1 - span
	}
	var window []consensus.HeaderWindow
	for h := start; h <= height; h++ {
		header, ok, err := n.store.FetchHeaderByHeight(h)
		if err != nil {
			t.Fatalf("window header at %d: %v", h, err)
		}
		if !ok {
			continue
		}
		window = append(window, consensus.HeaderWindow{Height: header.Height, Timestamp: header.Timestamp, Difficulty: header.PoW.TargetDifficulty})
	}
	return window
}

// nextBlock builds the next valid block on n's tip: one coinbase output
// and one coinbase kernel, MMR roots computed against the store's
// pre-commit calculation, target difficulty from the retarget
// algorithm. seed disambiguates chains built across different nodes.
func (n *testNode) nextBlock(t *testing.T, seed byte) (core.Block, core.AccumulatedData) {
	t.Helper()
	tip, ok := n.store.Tip()
	if !ok {
		t.Fatalf("nextBlock on a store with no tip")
	}
	prevHeader, ok, err := n.store.FetchHeaderByHeight(tip.Height)
	if err != nil || !ok {
		t.Fatalf("fetching tip header: %v", err)
	}

	window := n.windowFor(t, tip.Height)
	target, err := consensus.NextDifficulty(n.constants, window)
	if err != nil {
		t.Fatalf("retarget: %v", err)
	}

	height := tip.Height + 1
	out := core.TransactionOutput{
		Features:   core.OutputFeatureCoinbase,
		Commitment: core.HashBytes([]byte{'o', seed, byte(height), byte(height >> 8)}),
		RangeProof: []byte{'r', seed, byte(height)},
	}
	kernel := core.TransactionKernel{
		Features:   core.KernelFeatureCoinbase,
		LockHeight: height + n.constants.CoinbaseLockHeight,
		Excess:     core.HashBytes([]byte{'k', seed, byte(height), byte(height >> 8)}),
	}

	header := core.BlockHeader{
		Version:   n.constants.ValidBlockchainVersionRange[0],
		Height:    height,
		PrevHash:  tip.Hash,
		Timestamp: prevHeader.Timestamp + n.constants.TargetBlockIntervalSeconds,
		Nonce:     uint64(height),
		PoW: core.ProofOfWork{
			Algo:                        core.PowAlgoSha3,
			AccumulatedMoneroDifficulty: tip.Data.AccumulatedMonero,
			AccumulatedSha3Difficulty:   tip.Data.AccumulatedSha3,
			TargetDifficulty:            target,
		},
	}

	outputRoot, err := n.store.CalculateMMRRoot(store.TreeOutput, []core.Hash{out.Commitment}, nil)
	if err != nil {
		t.Fatalf("output root: %v", err)
	}
	rangeProofRoot, err := n.store.CalculateMMRRoot(store.TreeRangeProof, []core.Hash{core.HashBytes(out.RangeProof)}, nil)
	if err != nil {
		t.Fatalf("range-proof root: %v", err)
	}
	kernelRoot, err := n.store.CalculateMMRRoot(store.TreeKernel, []core.Hash{kernel.Excess}, nil)
	if err != nil {
		t.Fatalf("kernel root: %v", err)
	}
	header.OutputMMRRoot = outputRoot
	header.RangeProofMMRRoot = rangeProofRoot
	header.KernelMMRRoot = kernelRoot

	block := core.Block{
		Header: header,
		Body:   core.AggregateBody{Outputs: []core.TransactionOutput{out}, Kernels: []core.TransactionKernel{kernel}},
	}

	data, err := n.validator.Validate(&block, validation.TipInfo{
		Height:            tip.Height,
		Hash:              tip.Hash,
		Window:            window,
		TotalKernelOffset: tip.Data.TotalKernelOffset,
	})
	if err != nil {
		t.Fatalf("constructed block fails contextual validation: %v", err)
	}
	return block, data
}

// extendChain appends count blocks to n, returning them in order.
func (n *testNode) extendChain(t *testing.T, count int, seed byte) ([]core.Block, []core.AccumulatedData) {
	t.Helper()
	blocks := make([]core.Block, 0, count)
	datas := make([]core.AccumulatedData, 0, count)
	for i := 0; i < count; i++ {
		block, data := n.nextBlock(t, seed)
		if _, err := n.store.AddBlock(&block, data); err != nil {
			t.Fatalf("extending chain at height %d: %v", block.Header.Height, err)
		}
		blocks = append(blocks, block)
		datas = append(datas, data)
	}
	return blocks, datas
}

// applyBlocks replays pre-built blocks (a shared chain prefix) into n.
func (n *testNode) applyBlocks(t *testing.T, blocks []core.Block, datas []core.AccumulatedData) {
	t.Helper()
	for i := range blocks {
		if _, err := n.store.AddBlock(&blocks[i], datas[i]); err != nil {
			t.Fatalf("applying block %d: %v", blocks[i].Header.Height, err)
		}
	}
}

// newTestMachine wires a state machine for node against transport with
// latency checks disabled unless maxLatency is nonzero.
func newTestMachine(n *testNode, tr p2p.Transport, pruningHorizon uint64, maxLatency time.Duration) *StateMachine {
	cfg := DefaultConfig(consensus.NetworkDevnet)
	cfg.PruningHorizon = pruningHorizon
	cfg.MaxLatency = maxLatency
	cfg.IdleTick = 10 * time.Millisecond
	validators := Validators{
		Header:       &validation.HeaderValidator{Constants: n.constants, BadBlocks: n.store},
		Block:        &validation.InternalBlockValidator{Constants: n.constants, EmissionSchedule: consensus.DefaultEmissionSchedule()},
		ChainContext: &validation.ChainContextValidator{Constants: n.constants, Utxos: n.store},
	}
	return New(cfg, n.store, tr, validators)
}

// sliceHeaderStream / sliceBlockStream / sliceOutputStream /
// sliceKernelStream yield a fixed slice then ErrStreamClosed.
type sliceHeaderStream struct {
	items []*core.BlockHeader
	delay time.Duration
}

func (s *sliceHeaderStream) Next(ctx context.Context) (*core.BlockHeader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if len(s.items) == 0 {
		return nil, p2p.ErrStreamClosed
	}
	h := s.items[0]
	s.items = s.items[1:]
	return h, nil
}

type sliceBlockStream struct{ items []*core.Block }

func (s *sliceBlockStream) Next(ctx context.Context) (*core.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.items) == 0 {
		return nil, p2p.ErrStreamClosed
	}
	b := s.items[0]
	s.items = s.items[1:]
	return b, nil
}

type sliceOutputStream struct{ items []*core.TransactionOutput }

func (s *sliceOutputStream) Next(ctx context.Context) (*core.TransactionOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.items) == 0 {
		return nil, p2p.ErrStreamClosed
	}
	o := s.items[0]
	s.items = s.items[1:]
	return o, nil
}

type sliceKernelStream struct{ items []*core.TransactionKernel }

func (s *sliceKernelStream) Next(ctx context.Context) (*core.TransactionKernel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.items) == 0 {
		return nil, p2p.ErrStreamClosed
	}
	k := s.items[0]
	s.items = s.items[1:]
	return k, nil
}

// banRecord is one BanPeer call the test transport observed.
type banRecord struct {
	peer     string
	reason   string
	duration time.Duration
}

// testTransport serves the chains of registered backends as a
// p2p.Transport, with optional fault injection for the ban-policy
// tests.
type testTransport struct {
	mu    sync.Mutex
	nodes map[string]store.Backend
	bans  []banRecord

	// overdeliverHeaders makes StreamHeaders yield one junk header
	// beyond the requested count — a protocol violation.
	overdeliverHeaders bool
	// headerDelay is a per-item stall, for the latency-ban test.
	headerDelay time.Duration
}

func newTestTransport() *testTransport {
	return &testTransport{nodes: make(map[string]store.Backend)}
}

func (tt *testTransport) add(peerID string, st store.Backend) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.nodes[peerID] = st
}

func (tt *testTransport) banned() []banRecord {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return append([]banRecord(nil), tt.bans...)
}

func (tt *testTransport) node(peerID string) (store.Backend, error) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	st, ok := tt.nodes[peerID]
	if !ok {
		return nil, p2p.ErrUnavailable
	}
	return st, nil
}

func (tt *testTransport) GetChainMetadata(_ context.Context, peerID string) (core.ChainMetadata, error) {
	st, err := tt.node(peerID)
	if err != nil {
		return core.ChainMetadata{}, err
	}
	return st.ChainMetadata()
}

func (tt *testTransport) StreamHeaders(_ context.Context, peerID string, locator []core.Hash, count uint64) (p2p.HeaderStream, error) {
	st, err := tt.node(peerID)
	if err != nil {
		return nil, err
	}

	var ancestorHeight uint64
	found := false
	for _, hash := range locator {
		b, ok, err := st.FetchBlockByHash(hash)
		if err != nil {
			return nil, err
		}
		if ok {
			ancestorHeight = b.Header.Height
			found = true
			break
		}
	}
	if !found {
		return &sliceHeaderStream{}, nil
	}

	var headers []*core.BlockHeader
	for h := ancestorHeight + 1; uint64(len(headers)) < count; h++ {
		header, ok, err := st.FetchHeaderByHeight(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		headers = append(headers, header)
	}
	if tt.overdeliverHeaders {
		headers = append(headers, &core.BlockHeader{Height: ancestorHeight + count + 1})
	}
	return &sliceHeaderStream{items: headers, delay: tt.headerDelay}, nil
}

func (tt *testTransport) StreamBlocks(_ context.Context, peerID string, startHash, endHash core.Hash) (p2p.BlockStream, error) {
	st, err := tt.node(peerID)
	if err != nil {
		return nil, err
	}
	start, ok, err := st.FetchBlockByHash(startHash)
	if err != nil || !ok {
		return nil, p2p.ErrUnavailable
	}
	end, ok, err := st.FetchBlockByHash(endHash)
	if err != nil || !ok {
		return nil, p2p.ErrUnavailable
	}
	var blocks []*core.Block
	for h := start.Header.Height + 1; h <= end.Header.Height; h++ {
		header, ok, err := st.FetchHeaderByHeight(h)
		if err != nil || !ok {
			return nil, p2p.ErrUnavailable
		}
		block, ok, err := st.FetchBlockByHash(core.HeaderHash(header))
		if err != nil || !ok {
			return nil, p2p.ErrUnavailable
		}
		blocks = append(blocks, block)
	}
	return &sliceBlockStream{items: blocks}, nil
}

func (tt *testTransport) StreamUtxos(_ context.Context, peerID string, horizonHeaderHash core.Hash) (p2p.OutputStream, error) {
	st, err := tt.node(peerID)
	if err != nil {
		return nil, err
	}
	horizon, ok, err := st.FetchBlockByHash(horizonHeaderHash)
	if err != nil || !ok {
		return nil, p2p.ErrUnavailable
	}
	var outputs []*core.TransactionOutput
	for h := uint64(0); h <= horizon.Header.Height; h++ {
		header, ok, err := st.FetchHeaderByHeight(h)
		if err != nil || !ok {
			return nil, p2p.ErrUnavailable
		}
		block, ok, err := st.FetchBlockByHash(core.HeaderHash(header))
		if err != nil || !ok {
			return nil, p2p.ErrUnavailable
		}
		for i := range block.Body.Outputs {
			outputs = append(outputs, &block.Body.Outputs[i])
		}
	}
	return &sliceOutputStream{items: outputs}, nil
}

func (tt *testTransport) StreamKernels(_ context.Context, peerID string, horizonHeaderHash core.Hash) (p2p.KernelStream, error) {
	st, err := tt.node(peerID)
	if err != nil {
		return nil, err
	}
	horizon, ok, err := st.FetchBlockByHash(horizonHeaderHash)
	if err != nil || !ok {
		return nil, p2p.ErrUnavailable
	}
	var kernels []*core.TransactionKernel
	for h := uint64(0); h <= horizon.Header.Height; h++ {
		header, ok, err := st.FetchHeaderByHeight(h)
		if err != nil || !ok {
			return nil, p2p.ErrUnavailable
		}
		block, ok, err := st.FetchBlockByHash(core.HeaderHash(header))
		if err != nil || !ok {
			return nil, p2p.ErrUnavailable
		}
		for i := range block.Body.Kernels {
			kernels = append(kernels, &block.Body.Kernels[i])
		}
	}
	return &sliceKernelStream{items: kernels}, nil
}

func (tt *testTransport) BanPeer(peerID string, reason string, duration time.Duration) error {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.bans = append(tt.bans, banRecord{peer: peerID, reason: reason, duration: duration})
	return nil
}

func (tt *testTransport) ConnectivityWatch() <-chan p2p.ConnectivityStatus {
	return make(chan p2p.ConnectivityStatus)
}
