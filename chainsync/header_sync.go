package chainsync

import (
	"context"
	"errors"
	"time"

	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/p2p"
)

// headerSync tries candidate peers (the peer table orders peers with a
// stronger claim lowest-latency first) until one yields a validated header chain,
// banning per the error bucket on each failure. On success the machine
// proceeds to horizon sync when this node is pruned and the target is
// past its horizon, otherwise straight to block sync.
func (m *StateMachine) headerSync(ctx context.Context) State {
	md, err := m.store.ChainMetadata()
	if err != nil {
		return StateListening
	}
	candidates := m.peers.candidates(md.AccumulatedDifficulty, time.Now())
	attempts := m.cfg.SyncPeerAttempts
	if attempts > len(candidates) {
		attempts = len(candidates)
	}
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return StateShutdown
		}
		peer := candidates[i]
		res, err := m.attemptHeaderSync(ctx, peer)
		if err != nil {
			m.handleSyncError(peer.id, err)
			continue
		}
		m.pending = res
		last := res.headers[len(res.headers)-1]
		if m.horizonBehindTarget(last.Height) {
			return StateHorizonSync
		}
		return StateBlockSync
	}
	return StateListening
}

// horizonBehindTarget reports whether this pruned node's horizon lags
// the sync target far enough that horizon state sync must run before
// block sync.
func (m *StateMachine) horizonBehindTarget(targetHeight uint64) bool {
	if m.cfg.PruningHorizon == 0 || targetHeight <= m.cfg.PruningHorizon {
		return false
	}
	tip, ok := m.store.Tip()
	if !ok {
		return true
	}
	return targetHeight-m.cfg.PruningHorizon > tip.Height
}

// attemptHeaderSync pulls headers from one peer in batches of
// HeaderBatchSize, starting at the best common ancestor located by a
// block locator, and validates each header as it arrives: linkage,
// strict height ordering, the header-validator profile, and
// target-difficulty agreement with the retarget algorithm. Batches
// slower than MaxLatency fail with the short-ban latency error; any
// over-delivery or ordering violation fails with a protocol violation.
func (m *StateMachine) attemptHeaderSync(ctx context.Context, peer *peerInfo) (*headerSyncResult, error) {
	tip, hasTip := m.store.Tip()
	if !hasTip {
		return nil, errors.New("chainsync: local store has no tip; seed genesis first")
	}

	locator, err := m.buildLocator(tip.Height)
	if err != nil {
		return nil, err
	}

	res := &headerSyncResult{peer: peer.id}
	target := peer.claimed.HeightOfLongestChain
	prevHash := core.Hash{}
	prevHeight := uint64(0)
	started := false

	for {
		remaining := uint64(0)
		if !started {
			if target > tip.Height {
				remaining = target - tip.Height
			}
		} else if target > prevHeight {
			remaining = target - prevHeight
		}
		if remaining == 0 {
			break
		}
		batch := min(m.cfg.HeaderBatchSize, remaining)

		requestStart := time.Now()
		stream, err := m.transport.StreamHeaders(ctx, peer.id, locator, batch)
		if err != nil {
			return nil, err
		}

		received := uint64(0)
		for {
			h, err := stream.Next(ctx)
			if errors.Is(err, p2p.ErrStreamClosed) {
				break
			}
			if err != nil {
				return nil, err
			}
			received++
			if received > batch {
				return nil, violation("peer sent more headers than the %d requested", batch)
			}

			if !started {
				ancestor, ok, err := m.store.FetchBlockByHash(h.PrevHash)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, violation("first header does not link to any block we hold")
				}
				res.ancestorHash = h.PrevHash
				res.ancestorHeight = ancestor.Header.Height
				res.window, err = m.windowEndingAt(ancestor.Header.Height)
				if err != nil {
					return nil, err
				}
				prevHash = res.ancestorHash
				prevHeight = res.ancestorHeight
				started = true
			}

			if h.Height != prevHeight+1 || h.PrevHash != prevHash {
				return nil, violation("out-of-order header at height %d", h.Height)
			}
			if err := m.validators.Header.Validate(h, res.window, prevHash, true); err != nil {
				return nil, err
			}
			if expected, derr := consensus.NextDifficulty(m.constants, res.window); derr == nil && len(res.window) > 0 {
				if h.PoW.TargetDifficulty != expected {
					return nil, contentErr("header %d target difficulty %d does not match retarget %d", h.Height, h.PoW.TargetDifficulty, expected)
				}
			}
			if m.cfg.VerifyProofOfWork != nil {
				if err := m.cfg.VerifyProofOfWork(h); err != nil {
					return nil, contentErr("header %d proof of work: %v", h.Height, err)
				}
			}

			res.headers = append(res.headers, h)
			res.window = appendWindow(res.window, h, m.constants)
			prevHash = core.HeaderHash(h)
			prevHeight = h.Height
		}

		if m.cfg.MaxLatency > 0 && time.Since(requestStart) > m.cfg.MaxLatency {
			return nil, errLatencyExceeded
		}
		if received == 0 {
			break
		}
		// Continue directly from the last accepted header.
		locator = []core.Hash{prevHash}
		if received < batch {
			break
		}
	}

	if len(res.headers) == 0 {
		return nil, errNoProgress
	}
	return res, nil
}

// buildLocator turns the sampled locator heights into header hashes
// from our chain.
func (m *StateMachine) buildLocator(tipHeight uint64) ([]core.Hash, error) {
	heights := p2p.BuildLocatorHeights(tipHeight)
	locator := make([]core.Hash, 0, len(heights))
	for _, h := range heights {
		header, ok, err := m.store.FetchHeaderByHeight(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		locator = append(locator, core.HeaderHash(header))
	}
	if len(locator) == 0 {
		return nil, errors.New("chainsync: no headers available for locator")
	}
	return locator, nil
}

// windowEndingAt assembles the trailing HeaderWindow the difficulty and
// median-timestamp checks need, ending at height, from our own chain.
func (m *StateMachine) windowEndingAt(height uint64) ([]consensus.HeaderWindow, error) {
	span := m.constants.DifficultyBlockWindow + 1
	if m.constants.MedianTimestampCount > span {
		span = m.constants.MedianTimestampCount
	}
	start := uint64(0)
	if height+1 > span {
		start = height + 1 - span
	}
	var window []consensus.HeaderWindow
	for h := start; h <= height; h++ {
		header, ok, err := m.store.FetchHeaderByHeight(h)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		window = append(window, consensus.HeaderWindow{
			Height:     header.Height,
			Timestamp:  header.Timestamp,
			Difficulty: header.PoW.TargetDifficulty,
		})
	}
	return window, nil
}

// appendWindow grows the rolling window with h and trims it to the span
// the consensus checks actually read, so memory stays bounded over long
// header syncs.
func appendWindow(window []consensus.HeaderWindow, h *core.BlockHeader, c consensus.Constants) []consensus.HeaderWindow {
	window = append(window, consensus.HeaderWindow{
		Height:     h.Height,
		Timestamp:  h.Timestamp,
		Difficulty: h.PoW.TargetDifficulty,
	})
	span := int(c.DifficultyBlockWindow + 1)
	if int(c.MedianTimestampCount) > span {
		span = int(c.MedianTimestampCount)
	}
	if len(window) > span {
		window = window[len(window)-span:]
	}
	return window
}
