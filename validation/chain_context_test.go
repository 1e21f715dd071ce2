package validation

import (
	"testing"

	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
)

type fixedUtxoSet map[core.Hash]bool

func (f fixedUtxoSet) HasUnspentOutput(c core.Hash) (bool, error) { return f[c], nil }

func baseTip() TipInfo {
	return TipInfo{
		Height: 10,
		Hash:   core.Hash{9},
		Window: nil,
	}
}

func candidateBlock(height uint64, prevHash core.Hash, target uint64) *core.Block {
	return &core.Block{
		Header: core.BlockHeader{
			Height:   height,
			PrevHash: prevHash,
			PoW:      core.ProofOfWork{Algo: core.PowAlgoSha3, TargetDifficulty: target},
		},
	}
}

func TestChainContextValidatorRejectsWrongHeight(t *testing.T) {
	v := &ChainContextValidator{Constants: consensus.For(consensus.NetworkMainnet, 11)}
	tip := baseTip()
	expected, _ := consensus.NextDifficulty(v.Constants, tip.Window)
	b := candidateBlock(20, tip.Hash, expected)
	_, err := v.Validate(b, tip)
	if code, ok := CodeOf(err); !ok || code != ErrHeightNotTipPlusOne {
		t.Fatalf("expected ErrHeightNotTipPlusOne, got %v", err)
	}
}

func TestChainContextValidatorRejectsPrevHashMismatch(t *testing.T) {
	v := &ChainContextValidator{Constants: consensus.For(consensus.NetworkMainnet, 11)}
	tip := baseTip()
	expected, _ := consensus.NextDifficulty(v.Constants, tip.Window)
	b := candidateBlock(11, core.Hash{1}, expected)
	_, err := v.Validate(b, tip)
	if code, ok := CodeOf(err); !ok || code != ErrPrevHashMismatch {
		t.Fatalf("expected ErrPrevHashMismatch, got %v", err)
	}
}

func TestChainContextValidatorRejectsTargetDifficultyMismatch(t *testing.T) {
	v := &ChainContextValidator{Constants: consensus.For(consensus.NetworkMainnet, 11)}
	tip := baseTip()
	b := candidateBlock(11, tip.Hash, 1)
	_, err := v.Validate(b, tip)
	if code, ok := CodeOf(err); !ok || code != ErrTargetDifficultyWrong {
		t.Fatalf("expected ErrTargetDifficultyWrong, got %v", err)
	}
}

func TestChainContextValidatorRejectsUnresolvedUtxo(t *testing.T) {
	v := &ChainContextValidator{Constants: consensus.For(consensus.NetworkMainnet, 11), Utxos: fixedUtxoSet{}}
	tip := baseTip()
	expected, _ := consensus.NextDifficulty(v.Constants, tip.Window)
	b := candidateBlock(11, tip.Hash, expected)
	b.Body.Inputs = []core.TransactionInput{{Commitment: commit(5)}}
	_, err := v.Validate(b, tip)
	if code, ok := CodeOf(err); !ok || code != ErrUtxoNotFound {
		t.Fatalf("expected ErrUtxoNotFound, got %v", err)
	}
}

func TestChainContextValidatorRejectsDuplicateCommitment(t *testing.T) {
	v := &ChainContextValidator{Constants: consensus.For(consensus.NetworkMainnet, 11)}
	tip := baseTip()
	expected, _ := consensus.NextDifficulty(v.Constants, tip.Window)
	b := candidateBlock(11, tip.Hash, expected)
	b.Body.Outputs = []core.TransactionOutput{{Commitment: commit(1)}, {Commitment: commit(1)}}
	_, err := v.Validate(b, tip)
	if code, ok := CodeOf(err); !ok || code != ErrDuplicateCommitment {
		t.Fatalf("expected ErrDuplicateCommitment, got %v", err)
	}
}

func TestChainContextValidatorAccumulatesKernelOffsetAndDifficulty(t *testing.T) {
	v := &ChainContextValidator{Constants: consensus.For(consensus.NetworkMainnet, 11)}
	tip := baseTip()
	tip.TotalKernelOffset[31] = 5
	expected, _ := consensus.NextDifficulty(v.Constants, tip.Window)
	b := candidateBlock(11, tip.Hash, expected)
	b.Header.TotalKernelOffset[31] = 3
	data, err := v.Validate(b, tip)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.TotalKernelOffset[31] != 8 {
		t.Fatalf("expected accumulated offset byte 8, got %d", data.TotalKernelOffset[31])
	}
	if data.AccumulatedSha3.IsZero() {
		t.Fatalf("expected nonzero accumulated sha3 difficulty")
	}
}
