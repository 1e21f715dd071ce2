package validation

import (
	"testing"

	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/crypto"
)

func commit(b byte) core.Hash {
	var h core.Hash
	h[31] = b
	return h
}

func singleCoinbaseBlock(height uint64, reward uint64) *core.Block {
	return &core.Block{
		Header: core.BlockHeader{Height: height},
		Body: core.AggregateBody{
			Outputs: []core.TransactionOutput{
				{Features: core.OutputFeatureCoinbase, Commitment: commit(1), MinimumValuePromise: reward},
			},
		},
	}
}

func TestInternalBlockValidatorRejectsUnsortedOutputs(t *testing.T) {
	v := &InternalBlockValidator{Constants: consensus.For(consensus.NetworkMainnet, 1), EmissionSchedule: consensus.DefaultEmissionSchedule()}
	b := singleCoinbaseBlock(1, 0)
	b.Body.Outputs = append(b.Body.Outputs, core.TransactionOutput{Commitment: commit(0)})
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrUnsortedOrDuplicateOutputs {
		t.Fatalf("expected ErrUnsortedOrDuplicateOutputs, got %v", err)
	}
}

func TestInternalBlockValidatorRejectsMissingCoinbase(t *testing.T) {
	v := &InternalBlockValidator{Constants: consensus.For(consensus.NetworkMainnet, 1), EmissionSchedule: consensus.DefaultEmissionSchedule()}
	b := &core.Block{Header: core.BlockHeader{Height: 1}}
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrCoinbaseCountInvalid {
		t.Fatalf("expected ErrCoinbaseCountInvalid, got %v", err)
	}
}

func TestInternalBlockValidatorRejectsCoinbaseValueExceeded(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	sched := consensus.DefaultEmissionSchedule()
	maxAllowed := consensus.CalculateCoinbaseAndFees(sched, 1, nil)
	v := &InternalBlockValidator{Constants: c, EmissionSchedule: sched}
	b := singleCoinbaseBlock(1, maxAllowed+1)
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrCoinbaseValueExceeded {
		t.Fatalf("expected ErrCoinbaseValueExceeded, got %v", err)
	}
}

func TestInternalBlockValidatorRejectsNonCoinbaseExtra(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	sched := consensus.DefaultEmissionSchedule()
	v := &InternalBlockValidator{Constants: c, EmissionSchedule: sched}
	b := singleCoinbaseBlock(1, 0)
	b.Body.Outputs = append(b.Body.Outputs, core.TransactionOutput{
		Commitment:    commit(2),
		CoinbaseExtra: []byte{1},
	})
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrNonCoinbaseHasExtra {
		t.Fatalf("expected ErrNonCoinbaseHasExtra, got %v", err)
	}
}

func TestInternalBlockValidatorRejectsOversizedCoinbaseExtra(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	sched := consensus.DefaultEmissionSchedule()
	v := &InternalBlockValidator{Constants: c, EmissionSchedule: sched}
	b := singleCoinbaseBlock(1, 0)
	b.Body.Outputs[0].CoinbaseExtra = make([]byte, c.CoinbaseExtraMaxSize+1)
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrCoinbaseExtraTooLarge {
		t.Fatalf("expected ErrCoinbaseExtraTooLarge, got %v", err)
	}

	b.Body.Outputs[0].CoinbaseExtra = make([]byte, c.CoinbaseExtraMaxSize)
	if err := v.Validate(b); err != nil {
		t.Fatalf("coinbase extra at the size cap rejected: %v", err)
	}
}

func TestInternalBlockValidatorRejectsWrongCoinbaseLockHeight(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	sched := consensus.DefaultEmissionSchedule()
	v := &InternalBlockValidator{Constants: c, EmissionSchedule: sched}
	b := singleCoinbaseBlock(1, 0)
	b.Body.Kernels = []core.TransactionKernel{
		{Features: core.KernelFeatureCoinbase, LockHeight: 1, Excess: commit(2)},
	}
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrCoinbaseLockHeightInvalid {
		t.Fatalf("expected ErrCoinbaseLockHeightInvalid, got %v", err)
	}

	b.Body.Kernels[0].LockHeight = 1 + c.CoinbaseLockHeight
	if err := v.Validate(b); err != nil {
		t.Fatalf("correct coinbase lock height rejected: %v", err)
	}
}

func TestInternalBlockValidatorRejectsWeightExceeded(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	c.MaxBlockTransactionWeight = 1
	sched := consensus.DefaultEmissionSchedule()
	maxAllowed := consensus.CalculateCoinbaseAndFees(sched, 1, nil)
	v := &InternalBlockValidator{Constants: c, EmissionSchedule: sched}
	b := singleCoinbaseBlock(1, maxAllowed)
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrWeightExceeded {
		t.Fatalf("expected ErrWeightExceeded, got %v", err)
	}
}

func TestInternalBlockValidatorRejectsBadRangeProof(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	sched := consensus.DefaultEmissionSchedule()
	maxAllowed := consensus.CalculateCoinbaseAndFees(sched, 1, nil)
	v := &InternalBlockValidator{
		Constants:                    c,
		EmissionSchedule:             sched,
		Crypto:                       crypto.BypassProvider{},
		BypassRangeProofVerification: false,
	}
	b := singleCoinbaseBlock(1, maxAllowed)
	err := v.Validate(b)
	if code, ok := CodeOf(err); !ok || code != ErrRangeProofInvalid {
		t.Fatalf("expected ErrRangeProofInvalid, got %v", err)
	}
}

func TestInternalBlockValidatorAcceptsWithBypass(t *testing.T) {
	c := consensus.For(consensus.NetworkMainnet, 1)
	sched := consensus.DefaultEmissionSchedule()
	maxAllowed := consensus.CalculateCoinbaseAndFees(sched, 1, nil)
	v := &InternalBlockValidator{
		Constants:                    c,
		EmissionSchedule:             sched,
		Crypto:                       nil,
		BypassRangeProofVerification: true,
	}
	b := singleCoinbaseBlock(1, maxAllowed)
	if err := v.Validate(b); err != nil {
		t.Fatalf("unexpected error with nil Crypto provider: %v", err)
	}
}
