package crypto

import (
	"crypto/ed25519"

	"github.com/tari-project/tari-sub025/core"
)

// DefaultProvider is the production Provider backend. Hashing uses
// Blake2b-256, matching core.HashBytes. Signature verification treats a
// commitment as an ed25519 public key and a kernel/script/metadata
// signature as an ed25519 signature over the supplied challenge bytes.
//
// This is a deliberate stand-in: the production scheme (a Schnorr
// signature over a Pedersen commitment on a Ristretto group) has no
// implementation wired here. crypto/ed25519 is the nearest real,
// verifiable signature primitive with the same
// (pubkey, signature, message) -> bool shape, so DefaultProvider is
// structurally correct and independently testable even though it is not
// literally the production scheme. See DESIGN.md.
type DefaultProvider struct{}

func (DefaultProvider) Hash(input []byte) core.Hash {
	return core.HashBytes(input)
}

func (DefaultProvider) VerifyKernelSignature(excess core.Hash, sig [64]byte, challenge []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(excess[:]), challenge, sig[:])
}

func (DefaultProvider) VerifyScriptSignature(commitment core.Hash, sig [64]byte, challenge []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(commitment[:]), challenge, sig[:])
}

func (DefaultProvider) VerifyMetadataSignature(commitment core.Hash, sig [64]byte, challenge []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(commitment[:]), challenge, sig[:])
}

// VerifyRangeProof has no real Bulletproofs implementation behind it
// either; it always reports false unless bypass is set, so a node wired
// to DefaultProvider fails closed rather than silently accepting
// unverified value commitments.
func (DefaultProvider) VerifyRangeProof(_ core.Hash, _ []byte, _ uint64, bypass bool) bool {
	return bypass
}

func (DefaultProvider) SumCommitments(commitments ...core.Hash) core.Hash {
	return sumCommitments(commitments...)
}

func (DefaultProvider) CommitmentFromScalar(scalar [32]byte) core.Hash {
	return core.Hash(scalar)
}
