package chainsync

import (
	"context"
	"errors"
	"time"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/p2p"
	"github.com/tari-project/tari-sub025/store"
	"github.com/tari-project/tari-sub025/validation"
)

// blockSync streams blocks from the header-sync peer starting past the
// best common ancestor, runs internal plus chain-contextual validation
// on each, checks the declared MMR roots against the store's
// pre-commit root calculation, and appends through the store's atomic
// AddBlock. Success lands in Synced; any failure applies the ban
// policy and falls back to Listening.
func (m *StateMachine) blockSync(ctx context.Context) State {
	res := m.pending
	m.pending = nil
	if res == nil || len(res.headers) == 0 {
		return StateListening
	}
	if err := m.runBlockSync(ctx, res); err != nil {
		if errors.Is(err, context.Canceled) {
			return StateShutdown
		}
		m.handleSyncError(res.peer, err)
		return StateListening
	}
	return StateSynced
}

func (m *StateMachine) runBlockSync(ctx context.Context, res *headerSyncResult) error {
	last := res.headers[len(res.headers)-1]
	endHash := core.HeaderHash(last)

	branch := validation.TipInfo{
		Height: res.ancestorHeight,
		Hash:   res.ancestorHash,
	}
	var err error
	branch.Window, err = m.windowEndingAt(res.ancestorHeight)
	if err != nil {
		return err
	}
	tip, _ := m.store.Tip()
	extendingTip := res.ancestorHash == tip.Hash
	if extendingTip {
		branch.TotalKernelOffset = tip.Data.TotalKernelOffset
	}

	stream, err := m.transport.StreamBlocks(ctx, res.peer, res.ancestorHash, endHash)
	if err != nil {
		return err
	}

	received := 0
	for {
		itemStart := time.Now()
		block, err := stream.Next(ctx)
		if errors.Is(err, p2p.ErrStreamClosed) {
			break
		}
		if err != nil {
			return err
		}
		if m.cfg.MaxLatency > 0 && time.Since(itemStart) > m.cfg.MaxLatency {
			return errLatencyExceeded
		}
		received++
		if received > len(res.headers) {
			return violation("peer streamed more blocks than the %d headers synced", len(res.headers))
		}

		want := res.headers[received-1]
		if core.HeaderHash(&block.Header) != core.HeaderHash(want) {
			return violation("block %d does not match the synced header chain", block.Header.Height)
		}

		if err := m.validators.Block.Validate(block); err != nil {
			return err
		}
		data, err := m.validators.ChainContext.Validate(block, branch)
		if err != nil {
			return err
		}
		if extendingTip {
			if err := m.verifyMMRRoots(block); err != nil {
				return err
			}
		}

		result, err := m.store.AddBlock(block, data)
		if err != nil {
			return err
		}
		if result.Kind == store.AddOrphan {
			// Only possible if the ancestor walk raced a concurrent
			// rewind; treat as a transient local condition.
			return errors.New("chainsync: block landed as orphan during sync")
		}

		hash := core.HeaderHash(&block.Header)
		branch = validation.TipInfo{
			Height:            block.Header.Height,
			Hash:              hash,
			Window:            appendWindow(branch.Window, &block.Header, m.constants),
			TotalKernelOffset: data.TotalKernelOffset,
		}
		m.retryOrphans(hash)
	}

	if received < len(res.headers) {
		return errNoProgress
	}
	return nil
}

// verifyMMRRoots recomputes the output, range-proof and kernel MMR
// roots the block would produce and compares them with the header's
// declared roots, rejecting the block before it is committed. Runs
// only while extending the live tip, since the pre-commit calculation
// is relative to the stored MMR state.
func (m *StateMachine) verifyMMRRoots(block *core.Block) error {
	var outputAdds, rangeProofAdds, kernelAdds []core.Hash
	var outputDels []uint64
	for _, in := range block.Body.Inputs {
		pos, ok, err := m.store.UtxoLeafPosition(in.Commitment)
		if err != nil {
			return err
		}
		if !ok {
			return contentErr("block %d input spends unknown commitment", block.Header.Height)
		}
		outputDels = append(outputDels, pos)
	}
	for _, out := range block.Body.Outputs {
		outputAdds = append(outputAdds, out.Commitment)
		rangeProofAdds = append(rangeProofAdds, core.HashBytes(out.RangeProof))
	}
	for _, k := range block.Body.Kernels {
		kernelAdds = append(kernelAdds, k.Excess)
	}

	checks := []struct {
		tree      store.MMRTree
		additions []core.Hash
		deletions []uint64
		declared  core.Hash
	}{
		{store.TreeOutput, outputAdds, outputDels, block.Header.OutputMMRRoot},
		{store.TreeRangeProof, rangeProofAdds, nil, block.Header.RangeProofMMRRoot},
		{store.TreeKernel, kernelAdds, nil, block.Header.KernelMMRRoot},
	}
	for _, c := range checks {
		root, err := m.store.CalculateMMRRoot(c.tree, c.additions, c.deletions)
		if err != nil {
			return err
		}
		if root != c.declared {
			return contentErr("block %d declared %s MMR root does not match computed state", block.Header.Height, c.tree)
		}
	}
	return nil
}

// retryOrphans re-tries orphans whose missing parent just landed. Each
// promoted orphan is validated like any other block and may in turn
// unlock further orphans.
func (m *StateMachine) retryOrphans(parent core.Hash) {
	pending := []core.Hash{parent}
	for len(pending) > 0 {
		next := pending[0]
		pending = pending[1:]
		for _, hash := range m.store.OrphansWaitingOn(next) {
			block, ok, err := m.store.TakeOrphan(hash)
			if err != nil || !ok {
				continue
			}
			if err := m.validators.Block.Validate(block); err != nil {
				continue
			}
			tip, hasTip := m.store.Tip()
			if !hasTip || block.Header.PrevHash != tip.Hash {
				continue
			}
			window, err := m.windowEndingAt(tip.Height)
			if err != nil {
				continue
			}
			data, err := m.validators.ChainContext.Validate(block, validation.TipInfo{
				Height:            tip.Height,
				Hash:              tip.Hash,
				Window:            window,
				TotalKernelOffset: tip.Data.TotalKernelOffset,
			})
			if err != nil {
				continue
			}
			if _, err := m.store.AddBlock(block, data); err != nil {
				continue
			}
			pending = append(pending, hash)
		}
	}
}
