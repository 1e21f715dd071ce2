package validation

import (
	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/crypto"
)

// ChainBalanceValidator is invoked at the end of horizon/full sync: it
// checks that sum(UTXO_commitments) == emission_commitment(h) +
// sum(genesis_unspent_commitments) + sum(kernel_excesses) +
// sum(total_kernel_offsets).
type ChainBalanceValidator struct {
	EmissionSchedule consensus.EmissionSchedule
	Crypto           crypto.Provider
}

func (v *ChainBalanceValidator) Name() string { return "chain-balance" }

// Validate recomputes both sides of the balance equation from values the
// caller (chainsync/'s horizon-sync driver) has already read out of the
// store, and reports ChainBalanceValidationFailed(height) on mismatch.
func (v *ChainBalanceValidator) Validate(height uint64, utxoCommitments, genesisUnspentCommitments, kernelExcesses []core.Hash, totalKernelOffset [32]byte) error {
	lhs := v.Crypto.SumCommitments(utxoCommitments...)

	emissionScalar := scalarFromUint64(v.EmissionSchedule.SupplyAtBlockUint64(height))
	emissionCommitment := v.Crypto.CommitmentFromScalar(emissionScalar)

	rhs := v.Crypto.SumCommitments(genesisUnspentCommitments...)
	rhs = v.Crypto.SumCommitments(rhs, v.Crypto.SumCommitments(kernelExcesses...))
	rhs = v.Crypto.SumCommitments(rhs, emissionCommitment)
	rhs = v.Crypto.SumCommitments(rhs, v.Crypto.CommitmentFromScalar(totalKernelOffset))

	if lhs != rhs {
		return newErr(ErrChainBalanceFailed, height, core.Hash{}, "sum of UTXO commitments does not equal emission + genesis + excess + offset")
	}
	return nil
}

func scalarFromUint64(v uint64) [32]byte {
	var out [32]byte
	for i := 0; i < 8; i++ {
		out[31-i] = byte(v >> (8 * i))
	}
	return out
}
