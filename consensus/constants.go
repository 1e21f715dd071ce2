// Package consensus is the pure functional module of network parameters:
// emission schedule, difficulty windows, target adjustment, the future
// time limit, and the genesis block. It has no storage or I/O
// dependency — every function is a deterministic function of its
// arguments.
package consensus

// NetworkID names the network whose parameters For resolves.
type NetworkID uint8

const (
	NetworkMainnet NetworkID = iota
	NetworkTestnet
	NetworkDevnet
)

// WeightParams assigns the per-component weight used when computing a
// block's transaction weight against MaxBlockTransactionWeight.
type WeightParams struct {
	Input  uint64
	Output uint64
	Kernel uint64
}

// Constants is the per-height, per-network parameter bundle: future time
// limit, block interval and difficulty-window tuning, weight limits,
// proof-of-work floors, and coinbase maturity.
type Constants struct {
	// FutureTimeLimitSeconds (the FTL) is the maximum clock skew a
	// block's timestamp may carry ahead of "now" before header
	// validation rejects it.
	FutureTimeLimitSeconds uint64
	// TargetBlockIntervalSeconds is the desired average seconds between
	// blocks the difficulty retarget algorithm aims for.
	TargetBlockIntervalSeconds uint64
	// DifficultyBlockWindow is the number of trailing headers the LWMA
	// retarget algorithm (difficulty.go) averages over.
	DifficultyBlockWindow uint64
	// DifficultyMaxBlockInterval clamps any single inter-block interval
	// fed into the LWMA average, preventing one outlier timestamp from
	// swinging the next target too far.
	DifficultyMaxBlockInterval uint64
	// MaxBlockTransactionWeight bounds a block body's weighted size
	// (inputs*Weights.Input + outputs*Weights.Output + kernels*Weights.Kernel).
	MaxBlockTransactionWeight uint64
	// PowAlgoCount is the number of proof-of-work algorithms this network
	// accepts (Sha3 and Monero/RandomX).
	PowAlgoCount uint8
	// MedianTimestampCount is the number of trailing headers used to
	// compute the median-past-timestamp a new header's timestamp must
	// exceed.
	MedianTimestampCount uint64
	// MinPowDifficulty is the network floor difficulty per algorithm,
	// indexed by core.PowAlgo.
	MinPowDifficulty map[uint8]uint64
	// MaxRandomxSeedHeight bounds how many heights behind the current
	// tip a Monero RandomX seed may have first appeared and still be
	// accepted by header validation.
	MaxRandomxSeedHeight uint64
	// ValidBlockchainVersionRange is the inclusive [min, max] header
	// version range this network accepts.
	ValidBlockchainVersionRange [2]uint16
	// CoinbaseLockHeight is the number of blocks a coinbase output stays
	// immature (spendable only once height >= mined_height + this).
	CoinbaseLockHeight uint64
	// CoinbaseExtraMaxSize bounds the coinbase-extra payload size. The
	// exact allowed payload is deliberately a configurable default, not
	// a fixed consensus rule baked into the network parameters; see
	// DESIGN.md.
	CoinbaseExtraMaxSize uint64
	Weights              WeightParams
}

// For returns the network's constants at the given height. Every field
// here is currently height-invariant per network; the height parameter
// is kept so future scheduled constants changes (as real networks
// occasionally make) have somewhere to branch from without changing
// every call site.
func For(network NetworkID, _ uint64) Constants {
	switch network {
	case NetworkTestnet:
		c := mainnetConstants()
		c.FutureTimeLimitSeconds = 600
		c.TargetBlockIntervalSeconds = 60
		return c
	case NetworkDevnet:
		c := mainnetConstants()
		c.FutureTimeLimitSeconds = 3600
		c.TargetBlockIntervalSeconds = 10
		c.DifficultyBlockWindow = 10
		c.MinPowDifficulty = map[uint8]uint64{0: 1, 1: 1}
		return c
	default:
		return mainnetConstants()
	}
}

func mainnetConstants() Constants {
	return Constants{
		FutureTimeLimitSeconds:     540,
		TargetBlockIntervalSeconds: 120,
		DifficultyBlockWindow:      90,
		DifficultyMaxBlockInterval: 120 * 6,
		MaxBlockTransactionWeight:  19500,
		PowAlgoCount:               2,
		MedianTimestampCount:       11,
		MinPowDifficulty: map[uint8]uint64{
			0: 1 << 20, // Sha3
			1: 1 << 16, // Monero
		},
		MaxRandomxSeedHeight:        2160,
		ValidBlockchainVersionRange: [2]uint16{0, 1},
		CoinbaseLockHeight:          1440,
		CoinbaseExtraMaxSize:        64,
		Weights: WeightParams{
			Input:  1,
			Output: 21,
			Kernel: 4,
		},
	}
}
