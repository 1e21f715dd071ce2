package consensus

import "github.com/tari-project/tari-sub025/core"

// GetGenesisBlock returns the fixed, hardcoded genesis block for
// network. Its body is empty and its declared MMR roots are the roots
// of empty trees, so the root invariant holds at height 0 like any
// other height; a real network's genesis coinbase value and
// commitments are a deployment-time constant, out of scope for this
// module the same way transaction construction is.
func GetGenesisBlock(network NetworkID) core.Block {
	c := For(network, 0)
	empty := core.HashBytes(nil)
	emptyMutableRoot := core.HashBytes(empty[:])
	header := core.BlockHeader{
		Version:           c.ValidBlockchainVersionRange[0],
		Height:            0,
		PrevHash:          core.Hash{},
		Timestamp:         genesisTimestamp(network),
		OutputMMRRoot:     emptyMutableRoot,
		RangeProofMMRRoot: emptyMutableRoot,
		KernelMMRRoot:     emptyMutableRoot,
		PoW: core.ProofOfWork{
			Algo:             core.PowAlgoSha3,
			TargetDifficulty: c.MinPowDifficulty[0],
		},
	}
	body := core.AggregateBody{}
	return core.Block{Header: header, Body: body}
}

func genesisTimestamp(network NetworkID) uint64 {
	switch network {
	case NetworkTestnet:
		return 1700000000
	case NetworkDevnet:
		return 1
	default:
		return 1650000000
	}
}
