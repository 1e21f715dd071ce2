// Package crypto defines the pluggable hash/signature verification
// boundary that validation/ calls through, following the narrow
// provider-interface pattern the node's consensus layer always used to
// keep a swappable crypto backend out of its call sites.
package crypto

import "github.com/tari-project/tari-sub025/core"

// Provider is the narrow crypto interface validation/ calls through. It
// never constructs signatures or proofs — only verifies ones already
// attached to a block; transaction construction and key management are
// opaque to this module.
type Provider interface {
	Hash(input []byte) core.Hash

	VerifyKernelSignature(excess core.Hash, sig [64]byte, challenge []byte) bool
	VerifyScriptSignature(commitment core.Hash, sig [64]byte, challenge []byte) bool
	VerifyMetadataSignature(commitment core.Hash, sig [64]byte, challenge []byte) bool

	// VerifyRangeProof checks that proof attests commitment commits to a
	// value in [0, 2^64) without revealing the value. bypass, when true,
	// always returns true — the test-only bypass_range_proof_verification
	// escape hatch.
	VerifyRangeProof(commitment core.Hash, proof []byte, minValue uint64, bypass bool) bool

	// SumCommitments combines a set of Pedersen commitments into one,
	// the group operation the chain-balance validator needs to add UTXO
	// commitments, kernel excesses, and the emission commitment
	// together. A real implementation would do this in an elliptic-curve
	// group; none is wired here (see DESIGN.md), so this stands in with
	// a commutative, associative combination over the commitment's 32
	// bytes, preserving the equation's algebraic shape without claiming
	// curve-level unforgeability.
	SumCommitments(commitments ...core.Hash) core.Hash

	// CommitmentFromScalar turns a 32-byte scalar (e.g. a total kernel
	// offset) into the commitment domain so it can be combined with
	// SumCommitments, standing in for "scalar * G" the same way
	// SumCommitments stands in for curve point addition.
	CommitmentFromScalar(scalar [32]byte) core.Hash
}
