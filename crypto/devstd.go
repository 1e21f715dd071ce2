package crypto

import "github.com/tari-project/tari-sub025/core"

// BypassProvider is a development-only Provider. It hashes for real (so
// MMR roots and header hashes stay meaningful in tests) but never claims
// to verify a signature, and only accepts a range proof when the caller
// explicitly passes bypass=true. It exists to unblock test fixtures that
// construct blocks without real signing keys; it deliberately does not
// claim correctness and is kept separate from DefaultProvider so the two
// can never be confused at a call site.
type BypassProvider struct{}

func (BypassProvider) Hash(input []byte) core.Hash {
	return core.HashBytes(input)
}

func (BypassProvider) VerifyKernelSignature(_ core.Hash, _ [64]byte, _ []byte) bool   { return false }
func (BypassProvider) VerifyScriptSignature(_ core.Hash, _ [64]byte, _ []byte) bool   { return false }
func (BypassProvider) VerifyMetadataSignature(_ core.Hash, _ [64]byte, _ []byte) bool { return false }

func (BypassProvider) VerifyRangeProof(_ core.Hash, _ []byte, _ uint64, bypass bool) bool {
	return bypass
}

func (BypassProvider) SumCommitments(commitments ...core.Hash) core.Hash {
	return sumCommitments(commitments...)
}

func (BypassProvider) CommitmentFromScalar(scalar [32]byte) core.Hash {
	return core.Hash(scalar)
}
