package chainsync

import (
	"context"
	"errors"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/mmr"
	"github.com/tari-project/tari-sub025/p2p"
)

// horizonSync runs the pruned-node horizon state verification: fetch
// the peer's kernel and UTXO sets at horizon height
// last_header.height - pruning_horizon, check that they reproduce the
// kernel-MMR and output-MMR roots the corresponding header declares,
// then run the chain-balance validator over the fetched state. Success
// moves on to block sync; any mismatch is a long-ban content
// failure.
func (m *StateMachine) horizonSync(ctx context.Context) State {
	res := m.pending
	if res == nil || len(res.headers) == 0 {
		m.pending = nil
		return StateListening
	}
	if err := m.runHorizonSync(ctx, res); err != nil {
		if errors.Is(err, context.Canceled) {
			return StateShutdown
		}
		m.pending = nil
		m.handleSyncError(res.peer, err)
		return StateListening
	}
	return StateBlockSync
}

func (m *StateMachine) runHorizonSync(ctx context.Context, res *headerSyncResult) error {
	last := res.headers[len(res.headers)-1]
	horizonHeight := last.Height - m.cfg.PruningHorizon

	horizonHeader, err := m.headerAt(res, horizonHeight)
	if err != nil {
		return err
	}
	horizonHash := core.HeaderHash(horizonHeader)

	excesses, err := m.collectKernels(ctx, res.peer, horizonHash)
	if err != nil {
		return err
	}
	kernelRoot, err := mutableRootOf(excesses)
	if err != nil {
		return err
	}
	if kernelRoot != horizonHeader.KernelMMRRoot {
		return contentErr("horizon kernel set does not reproduce the kernel MMR root at height %d", horizonHeight)
	}

	commitments, err := m.collectUtxos(ctx, res.peer, horizonHash)
	if err != nil {
		return err
	}
	outputRoot, err := mutableRootOf(commitments)
	if err != nil {
		return err
	}
	if outputRoot != horizonHeader.OutputMMRRoot {
		return contentErr("horizon UTXO set does not reproduce the output MMR root at height %d", horizonHeight)
	}

	if m.validators.ChainBalance != nil {
		if err := m.validators.ChainBalance.Validate(horizonHeight, commitments, nil, excesses, horizonHeader.TotalKernelOffset); err != nil {
			return err
		}
	}
	return nil
}

// headerAt resolves the header at height from either our own chain (at
// or below the common ancestor) or the freshly synced header run above
// it.
func (m *StateMachine) headerAt(res *headerSyncResult, height uint64) (*core.BlockHeader, error) {
	if height <= res.ancestorHeight {
		header, ok, err := m.store.FetchHeaderByHeight(height)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, contentErr("no header at horizon height %d", height)
		}
		return header, nil
	}
	idx := height - res.ancestorHeight - 1
	if idx >= uint64(len(res.headers)) {
		return nil, contentErr("horizon height %d beyond synced headers", height)
	}
	return res.headers[idx], nil
}

func (m *StateMachine) collectKernels(ctx context.Context, peer string, horizonHash core.Hash) ([]core.Hash, error) {
	stream, err := m.transport.StreamKernels(ctx, peer, horizonHash)
	if err != nil {
		return nil, err
	}
	var excesses []core.Hash
	for {
		k, err := stream.Next(ctx)
		if errors.Is(err, p2p.ErrStreamClosed) {
			return excesses, nil
		}
		if err != nil {
			return nil, err
		}
		excesses = append(excesses, k.Excess)
	}
}

func (m *StateMachine) collectUtxos(ctx context.Context, peer string, horizonHash core.Hash) ([]core.Hash, error) {
	stream, err := m.transport.StreamUtxos(ctx, peer, horizonHash)
	if err != nil {
		return nil, err
	}
	var commitments []core.Hash
	for {
		o, err := stream.Next(ctx)
		if errors.Is(err, p2p.ErrStreamClosed) {
			return commitments, nil
		}
		if err != nil {
			return nil, err
		}
		commitments = append(commitments, o.Commitment)
	}
}

// mutableRootOf builds a fresh mutable MMR over leaves (in stream
// order, no deletions) and returns its root — the reconstruction a
// horizon set must satisfy to match the declared header root.
func mutableRootOf(leaves []core.Hash) (core.Hash, error) {
	mm := mmr.NewMutableMmr(mmr.NewMemStore())
	for _, leaf := range leaves {
		if _, err := mm.Push(leaf); err != nil {
			return core.Hash{}, err
		}
	}
	return mm.Root()
}
