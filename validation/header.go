package validation

import (
	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
)

// BadBlockSet reports whether a hash has been administratively
// blacklisted; the set is manual/admin-populated and immutable per run.
// store.Backend satisfies this.
type BadBlockSet interface {
	IsBadBlock(hash core.Hash) (bool, error)
}

// HeaderValidator is the stateless-w.r.t.-chain-tip validation layer:
// version range, timestamp vs. FTL and median-past-timestamp,
// PoW-algo-specific checks (Monero seed reuse limit, Sha3 pow_data must
// be empty), and bad-block-set membership — bad-block set and version
// first, then linkage, then timestamp checks, then PoW.
type HeaderValidator struct {
	Constants  consensus.Constants
	BadBlocks  BadBlockSet
	Now        func() uint64
	SeedHeight func(seed []byte) (uint64, bool)
}

func (v *HeaderValidator) Name() string { return "header" }

// Validate checks header in isolation plus against its trailing window
// (for the median-timestamp check); expectedPrevHash is the hash it must
// link to, and hasPrev is false for genesis, which skips the linkage
// check.
func (v *HeaderValidator) Validate(header *core.BlockHeader, window []consensus.HeaderWindow, expectedPrevHash core.Hash, hasPrev bool) error {
	hash := core.HeaderHash(header)

	if v.BadBlocks != nil {
		bad, err := v.BadBlocks.IsBadBlock(hash)
		if err != nil {
			return err
		}
		if bad {
			return newErr(ErrBadBlockListed, header.Height, hash, "header hash is on the bad-block list")
		}
	}

	if header.Version < v.Constants.ValidBlockchainVersionRange[0] || header.Version > v.Constants.ValidBlockchainVersionRange[1] {
		return newErr(ErrVersionOutOfRange, header.Height, hash, "header version outside accepted range")
	}

	if hasPrev && header.PrevHash != expectedPrevHash {
		return newErr(ErrLinkageInvalid, header.Height, hash, "prev_hash does not match expected ancestor")
	}

	now := uint64(0)
	if v.Now != nil {
		now = v.Now()
	}
	if now > 0 && header.Timestamp > now+v.Constants.FutureTimeLimitSeconds {
		return newErr(ErrTimestampTooFuture, header.Height, hash, "timestamp exceeds future time limit")
	}
	if len(window) > 0 {
		median, err := consensus.MedianTimestamp(window, v.Constants.MedianTimestampCount)
		if err == nil && header.Timestamp <= median {
			return newErr(ErrTimestampNotNewer, header.Height, hash, "timestamp not newer than median of trailing window")
		}
	}

	switch header.PoW.Algo {
	case core.PowAlgoSha3:
		if len(header.PoW.PowData) != 0 {
			return newErr(ErrPowDataNotEmpty, header.Height, hash, "sha3 pow_data must be empty")
		}
	case core.PowAlgoMonero:
		if len(header.PoW.PowData) == 0 {
			return newErr(ErrPowDataEmpty, header.Height, hash, "monero pow_data must be nonempty")
		}
		if v.SeedHeight != nil {
			if firstSeen, ok := v.SeedHeight(header.PoW.PowData); ok {
				if header.Height > firstSeen+v.Constants.MaxRandomxSeedHeight {
					return newErr(ErrMoneroSeedReused, header.Height, hash, "randomx seed reused beyond max_randomx_seed_height")
				}
			}
		}
	}

	if header.PoW.TargetDifficulty < v.Constants.MinPowDifficulty[uint8(header.PoW.Algo)] {
		return newErr(ErrPowBelowTarget, header.Height, hash, "target difficulty below network floor")
	}

	return nil
}
