package p2p

import (
	"fmt"

	"github.com/tari-project/tari-sub025/core"
)

// chainMetadataLen is the length of the fixed chain-metadata record:
// best_block_hash (32) | height (u64) | pruning_horizon (u64) |
// accumulated_difficulty (u128) | pruned_height (u64).
const chainMetadataLen = 32 + 8 + 8 + 16 + 8

// EncodeChainMetadata writes md as the fixed chain-metadata exchange
// record, big-endian integers throughout.
func EncodeChainMetadata(md core.ChainMetadata) []byte {
	out := make([]byte, 0, chainMetadataLen)
	out = append(out, md.BestBlockHash[:]...)
	out = appendU64(out, md.HeightOfLongestChain)
	out = appendU64(out, md.PruningHorizon)
	acc := md.AccumulatedDifficulty.Bytes()
	out = append(out, acc[:]...)
	out = appendU64(out, md.PrunedHeight)
	return out
}

// DecodeChainMetadata is the inverse of EncodeChainMetadata; any length
// other than the fixed record size is a framing error.
func DecodeChainMetadata(b []byte) (core.ChainMetadata, error) {
	if len(b) != chainMetadataLen {
		return core.ChainMetadata{}, fmt.Errorf("p2p: chain metadata: length mismatch")
	}
	var md core.ChainMetadata
	off := 0
	copy(md.BestBlockHash[:], b[off:off+32])
	off += 32
	md.HeightOfLongestChain = readU64(b[off:])
	off += 8
	md.PruningHorizon = readU64(b[off:])
	off += 8
	var acc [16]byte
	copy(acc[:], b[off:off+16])
	md.AccumulatedDifficulty = core.U128FromBytes(acc)
	off += 16
	md.PrunedHeight = readU64(b[off:])
	return md, nil
}

// GetHeadersRequest asks a peer for up to Count headers following the
// best common ancestor its chain shares with Locator.
type GetHeadersRequest struct {
	Locator []core.Hash
	Count   uint64
}

// EncodeGetHeadersRequest frames req as
// locator_len (CompactSize) | locator hashes | count (u64), the same
// length-prefixed layout the block body codec uses.
func EncodeGetHeadersRequest(req GetHeadersRequest) ([]byte, error) {
	if len(req.Locator) == 0 || len(req.Locator) > MaxLocatorHashes {
		return nil, fmt.Errorf("p2p: getheaders: invalid locator length")
	}
	if req.Count == 0 || req.Count > MaxHeadersPerMsg {
		return nil, fmt.Errorf("p2p: getheaders: invalid count")
	}
	out := core.EncodeCompactSize(uint64(len(req.Locator)))
	for _, h := range req.Locator {
		out = append(out, h[:]...)
	}
	out = appendU64(out, req.Count)
	return out, nil
}

// DecodeGetHeadersRequest is the inverse of EncodeGetHeadersRequest,
// rejecting trailing bytes and out-of-bound lengths.
func DecodeGetHeadersRequest(b []byte) (*GetHeadersRequest, error) {
	n, used, err := core.DecodeCompactSize(b)
	if err != nil {
		return nil, fmt.Errorf("p2p: getheaders: %w", err)
	}
	if n == 0 || n > MaxLocatorHashes {
		return nil, fmt.Errorf("p2p: getheaders: invalid locator length")
	}
	need := used + int(n)*32 + 8
	if len(b) != need {
		return nil, fmt.Errorf("p2p: getheaders: length mismatch")
	}
	req := &GetHeadersRequest{Locator: make([]core.Hash, n)}
	off := used
	for i := range req.Locator {
		copy(req.Locator[i][:], b[off:off+32])
		off += 32
	}
	req.Count = readU64(b[off:])
	if req.Count == 0 || req.Count > MaxHeadersPerMsg {
		return nil, fmt.Errorf("p2p: getheaders: invalid count")
	}
	return req, nil
}

func appendU64(dst []byte, v uint64) []byte {
	return append(dst,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func readU64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}
