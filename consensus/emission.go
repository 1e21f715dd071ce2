package consensus

import (
	"math"
	"math/big"
)

// EmissionSchedule computes the three-parameter supply decay:
// supply(h) = sum_{i<=h} floor(initial * decay^i) plus a tail emission
// once the decaying term drops below it. The decay ratio is kept as an
// exact rational rather than a float so the iterative summation never
// drifts from the exact integer sequence a re-implementation in another
// language would produce.
type EmissionSchedule struct {
	// InitialReward is supply(0), the reward paid for the genesis/first
	// mined block before any decay is applied.
	InitialReward uint64
	// DecayNumerator/DecayDenominator express the per-block decay ratio
	// (e.g. 1 - 1/2^k as a reduced fraction) as an exact rational.
	DecayNumerator   uint64
	DecayDenominator uint64
	// TailEmission is the minimum per-block reward once the decaying
	// term falls below it.
	TailEmission uint64
}

// DefaultEmissionSchedule returns the schedule used by consensus.For's
// constants, decaying by (1 - 1/2^21) per block with a small perpetual
// tail.
func DefaultEmissionSchedule() EmissionSchedule {
	return EmissionSchedule{
		InitialReward:    10_000_000_000,
		DecayNumerator:   (1 << 21) - 1,
		DecayDenominator: 1 << 21,
		TailEmission:     100,
	}
}

// rewardAt returns floor(initial * decay^i), the per-block reward at
// height i before the tail floor is applied.
func (s EmissionSchedule) rewardAt(i uint64) *big.Int {
	num := new(big.Int).SetUint64(s.DecayNumerator)
	den := new(big.Int).SetUint64(s.DecayDenominator)
	numPow := new(big.Int).Exp(num, new(big.Int).SetUint64(i), nil)
	denPow := new(big.Int).Exp(den, new(big.Int).SetUint64(i), nil)
	reward := new(big.Int).Mul(new(big.Int).SetUint64(s.InitialReward), numPow)
	reward.Quo(reward, denPow)
	return reward
}

// BlockReward returns the per-block reward at height h: the decaying term
// rewardAt(h), floored at TailEmission once the decay drops below it.
func (s EmissionSchedule) BlockReward(h uint64) uint64 {
	// Far past the crossover the exact power is astronomically large;
	// a float bound with a factor-two margin proves the decaying term is
	// below the tail there without computing it.
	if s.DecayNumerator < s.DecayDenominator {
		ratio := float64(s.DecayDenominator-s.DecayNumerator) / float64(s.DecayDenominator)
		logReward := math.Log(float64(s.InitialReward)) + float64(h)*math.Log1p(-ratio)
		if logReward < math.Log(float64(s.TailEmission))-math.Ln2 {
			return s.TailEmission
		}
	}
	reward := s.rewardAt(h)
	tail := new(big.Int).SetUint64(s.TailEmission)
	if reward.Cmp(tail) < 0 {
		return s.TailEmission
	}
	if !reward.IsUint64() {
		// A reward this large never legitimately occurs with sane
		// schedule parameters; treat it as a hard cap rather than
		// silently wrapping.
		return ^uint64(0)
	}
	return reward.Uint64()
}

// SupplyAtBlock returns sum_{i=0}^{h} BlockReward(i), the total coin
// supply emitted through and including height h.
func (s EmissionSchedule) SupplyAtBlock(h uint64) *big.Int {
	total := new(big.Int)
	for i := uint64(0); i <= h; i++ {
		total.Add(total, new(big.Int).SetUint64(s.BlockReward(i)))
	}
	return total
}

// SupplyAtBlockUint64 is SupplyAtBlock truncated to a uint64, the
// representation the chain-balance validator's scalar arithmetic uses.
// Real total supply fits comfortably in 64 bits for any sane schedule;
// this saturates at max-uint64 rather than silently wrapping if it ever
// doesn't.
func (s EmissionSchedule) SupplyAtBlockUint64(h uint64) uint64 {
	supply := s.SupplyAtBlock(h)
	if !supply.IsUint64() {
		return ^uint64(0)
	}
	return supply.Uint64()
}

// CalculateCoinbaseAndFees returns the maximum value a block's coinbase
// output(s) may sum to at height: the block reward plus the sum of the
// block's kernel fees.
func CalculateCoinbaseAndFees(s EmissionSchedule, height uint64, kernelFees []uint64) uint64 {
	total := s.BlockReward(height)
	for _, f := range kernelFees {
		total += f
	}
	return total
}
