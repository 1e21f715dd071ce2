package validation

import (
	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/covenants"
	"github.com/tari-project/tari-sub025/crypto"
)

// InternalBlockValidator checks a block body in isolation: body
// sort+dedup invariants, coinbase rules, non-coinbase coinbase-extra
// prohibition, block weight, and aggregate-body internal consistency
// (range proofs, metadata signatures, script signatures, kernel
// signatures) — an ordered sequence of independent checks, each with
// its own error kind, rejecting on the first failure.
type InternalBlockValidator struct {
	Constants        consensus.Constants
	EmissionSchedule consensus.EmissionSchedule
	Crypto           crypto.Provider
	// BypassRangeProofVerification disables range-proof checks
	// entirely. Test only.
	BypassRangeProofVerification bool
}

func (v *InternalBlockValidator) Name() string { return "internal-block" }

// Validate checks block's body in isolation (no chain-tip context); the
// fees added to the coinbase allowance are summed from the block's own
// non-coinbase kernels.
func (v *InternalBlockValidator) Validate(block *core.Block) error {
	header := &block.Header
	body := &block.Body
	hash := core.HeaderHash(header)

	if !core.IsSortedInputs(body.Inputs) {
		return newErr(ErrUnsortedOrDuplicateInputs, header.Height, hash, "inputs not strictly sorted or contain duplicates")
	}
	if !core.IsSortedOutputs(body.Outputs) {
		return newErr(ErrUnsortedOrDuplicateOutputs, header.Height, hash, "outputs not strictly sorted or contain duplicates")
	}
	if !core.IsSortedKernels(body.Kernels) {
		return newErr(ErrUnsortedOrDuplicateKernels, header.Height, hash, "kernels not strictly sorted or contain duplicates")
	}

	if err := v.validateCoinbase(header, body, hash); err != nil {
		return err
	}

	if err := v.validateWeight(header, body, hash); err != nil {
		return err
	}

	if err := v.validateSignaturesAndProofs(header, body, hash); err != nil {
		return err
	}

	return v.validateCovenants(header, body, hash)
}

func (v *InternalBlockValidator) validateCoinbase(header *core.BlockHeader, body *core.AggregateBody, hash core.Hash) error {
	var coinbaseCount int
	var coinbaseValue uint64
	for _, out := range body.Outputs {
		if out.Features&core.OutputFeatureCoinbase != 0 {
			coinbaseCount++
			coinbaseValue += out.MinimumValuePromise
		}
	}
	if coinbaseCount != 1 {
		return newErr(ErrCoinbaseCountInvalid, header.Height, hash, "block must have exactly one coinbase output")
	}

	var fees []uint64
	for _, k := range body.Kernels {
		if k.Features&core.KernelFeatureCoinbase == 0 {
			fees = append(fees, k.Fee)
			continue
		}
		if k.LockHeight != header.Height+v.Constants.CoinbaseLockHeight {
			return newErr(ErrCoinbaseLockHeightInvalid, header.Height, hash, "coinbase kernel lock height must be block height plus the coinbase lock period")
		}
	}
	maxAllowed := consensus.CalculateCoinbaseAndFees(v.EmissionSchedule, header.Height, fees)
	if coinbaseValue > maxAllowed {
		return newErr(ErrCoinbaseValueExceeded, header.Height, hash, "coinbase value exceeds block reward plus fees")
	}

	for _, out := range body.Outputs {
		if out.Features&core.OutputFeatureCoinbase != 0 {
			if uint64(len(out.CoinbaseExtra)) > v.Constants.CoinbaseExtraMaxSize {
				return newErr(ErrCoinbaseExtraTooLarge, header.Height, hash, "coinbase extra exceeds maximum size")
			}
			continue
		}
		if len(out.CoinbaseExtra) != 0 {
			return newErr(ErrNonCoinbaseHasExtra, header.Height, hash, "non-coinbase output must have empty coinbase extra")
		}
	}
	return nil
}

func (v *InternalBlockValidator) validateWeight(header *core.BlockHeader, body *core.AggregateBody, hash core.Hash) error {
	w := v.Constants.Weights
	weight := uint64(len(body.Inputs))*w.Input + uint64(len(body.Outputs))*w.Output + uint64(len(body.Kernels))*w.Kernel
	if weight > v.Constants.MaxBlockTransactionWeight {
		return newErr(ErrWeightExceeded, header.Height, hash, "block transaction weight exceeds maximum")
	}
	return nil
}

func (v *InternalBlockValidator) validateSignaturesAndProofs(header *core.BlockHeader, body *core.AggregateBody, hash core.Hash) error {
	if v.Crypto == nil {
		return nil
	}
	for _, out := range body.Outputs {
		challenge := core.EncodeOutput(&out)
		if !v.Crypto.VerifyRangeProof(out.Commitment, out.RangeProof, out.MinimumValuePromise, v.BypassRangeProofVerification) {
			return newErr(ErrRangeProofInvalid, header.Height, hash, "output range proof failed verification")
		}
		if !v.Crypto.VerifyMetadataSignature(out.Commitment, out.MetadataSignature, challenge) {
			return newErr(ErrMetadataSignatureInvalid, header.Height, hash, "output metadata signature failed verification")
		}
	}
	for _, in := range body.Inputs {
		challenge := append(append([]byte(nil), in.Commitment[:]...), in.InputData...)
		if !v.Crypto.VerifyScriptSignature(in.Commitment, in.ScriptSignature, challenge) {
			return newErr(ErrScriptSignatureInvalid, header.Height, hash, "input script signature failed verification")
		}
	}
	for _, k := range body.Kernels {
		challenge := make([]byte, 0, 16)
		challenge = append(challenge, byte(k.Features))
		if !v.Crypto.VerifyKernelSignature(k.Excess, k.ExcessSig, challenge) {
			return newErr(ErrKernelSignatureInvalid, header.Height, hash, "kernel excess signature failed verification")
		}
	}
	return nil
}

// validateCovenants runs each input's covenant program against the set
// of outputs the spending transaction creates, rejecting the block if
// any covenant clears its output set to empty (meaning the proposed
// spend violates the predicate attached at output creation).
func (v *InternalBlockValidator) validateCovenants(header *core.BlockHeader, body *core.AggregateBody, hash core.Hash) error {
	for _, in := range body.Inputs {
		if len(in.Covenant) == 0 {
			continue
		}
		spentOutput := core.TransactionOutput{Commitment: in.Commitment, Script: in.Script, Covenant: in.Covenant, EncryptedData: in.EncryptedData, MinimumValuePromise: in.MinimumValuePromise}
		ctx := covenants.Context{BlockHeight: header.Height, SpentOutput: spentOutput}
		allowed, err := covenants.Evaluate(in.Covenant, ctx, body.Outputs)
		if err != nil {
			return newErr(ErrCovenantRejected, header.Height, hash, err.Error())
		}
		if len(allowed) == 0 && len(body.Outputs) > 0 {
			return newErr(ErrCovenantRejected, header.Height, hash, "covenant rejected all candidate outputs")
		}
	}
	return nil
}
