package validation

import (
	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
)

// UtxoResolver answers "is this commitment an unspent output at the
// current tip". store.Backend satisfies this without validation/
// importing store/ (which in turn depends on core/ and mmr/, not
// validation/), keeping the store a collaborator the validators read
// through rather than a dependency.
type UtxoResolver interface {
	HasUnspentOutput(commitment core.Hash) (bool, error)
}

// ChainContextValidator is the chain-contextual validation layer,
// applied on append: height = tip+1, prev_hash = tip.hash,
// target-difficulty match against the windowed retarget, cumulative
// accumulated difficulty, input-resolves-to-unspent-UTXO, no duplicate
// output commitments within the block, and total_kernel_offset
// accumulation.
type ChainContextValidator struct {
	Constants consensus.Constants
	Utxos     UtxoResolver
}

func (v *ChainContextValidator) Name() string { return "chain-context" }

// TipInfo is the chain-tip state a candidate block is validated against.
type TipInfo struct {
	Height            uint64
	Hash              core.Hash
	Window            []consensus.HeaderWindow
	TotalKernelOffset [32]byte
}

// Validate checks block against tip, returning the block's prospective
// AccumulatedData on success (the caller commits it via store/ once the
// block is actually appended).
func (v *ChainContextValidator) Validate(block *core.Block, tip TipInfo) (core.AccumulatedData, error) {
	header := &block.Header
	hash := core.HeaderHash(header)

	if header.Height != tip.Height+1 {
		return core.AccumulatedData{}, newErr(ErrHeightNotTipPlusOne, header.Height, hash, "height is not tip+1")
	}
	if header.PrevHash != tip.Hash {
		return core.AccumulatedData{}, newErr(ErrPrevHashMismatch, header.Height, hash, "prev_hash does not match tip hash")
	}

	expectedTarget, err := consensus.NextDifficulty(v.Constants, tip.Window)
	if err != nil {
		return core.AccumulatedData{}, err
	}
	if header.PoW.TargetDifficulty != expectedTarget {
		return core.AccumulatedData{}, newErr(ErrTargetDifficultyWrong, header.Height, hash, "target difficulty does not match retarget algorithm")
	}

	if v.Utxos != nil {
		for _, in := range block.Body.Inputs {
			ok, err := v.Utxos.HasUnspentOutput(in.Commitment)
			if err != nil {
				return core.AccumulatedData{}, err
			}
			if !ok {
				return core.AccumulatedData{}, newErr(ErrUtxoNotFound, header.Height, hash, "input does not resolve to an unspent UTXO")
			}
		}
	}

	seen := make(map[core.Hash]struct{}, len(block.Body.Outputs))
	for _, out := range block.Body.Outputs {
		if _, dup := seen[out.Commitment]; dup {
			return core.AccumulatedData{}, newErr(ErrDuplicateCommitment, header.Height, hash, "duplicate output commitment within block")
		}
		seen[out.Commitment] = struct{}{}
	}

	nextOffset, err := accumulateOffset(tip.TotalKernelOffset, header.TotalKernelOffset)
	if err != nil {
		return core.AccumulatedData{}, newErr(ErrKernelOffsetMismatch, header.Height, hash, err.Error())
	}

	nextPow, err := consensus.AccumulateDifficulty(header.PoW.Algo, header.PoW, header.PoW.TargetDifficulty)
	if err != nil {
		return core.AccumulatedData{}, err
	}

	return core.AccumulatedData{
		AchievedDifficulty: header.PoW.TargetDifficulty,
		AccumulatedMonero:  nextPow.AccumulatedMoneroDifficulty,
		AccumulatedSha3:    nextPow.AccumulatedSha3Difficulty,
		TotalKernelOffset:  nextOffset,
		TargetDifficulty:   expectedTarget,
	}, nil
}

// accumulateOffset folds a block's kernel offset scalar into the
// running total via byte-wise addition-with-carry over the fixed
// 32-byte scalar encoding, so the running total always equals the
// previous total plus the block's kernel offset.
func accumulateOffset(prior, delta [32]byte) ([32]byte, error) {
	var out [32]byte
	var carry uint16
	for i := 31; i >= 0; i-- {
		sum := uint16(prior[i]) + uint16(delta[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out, nil
}
