package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/tari-project/tari-sub025/core"
)

func TestDefaultProviderVerifiesRealSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var commitment core.Hash
	copy(commitment[:], pub)

	challenge := []byte("block header commitment")
	sig := ed25519.Sign(priv, challenge)
	var sigArr [64]byte
	copy(sigArr[:], sig)

	p := DefaultProvider{}
	if !p.VerifyKernelSignature(commitment, sigArr, challenge) {
		t.Fatalf("expected signature to verify")
	}
	if p.VerifyKernelSignature(commitment, sigArr, []byte("tampered")) {
		t.Fatalf("signature verified against the wrong challenge")
	}
}

func TestDefaultProviderRangeProofFailsClosed(t *testing.T) {
	p := DefaultProvider{}
	var h core.Hash
	if p.VerifyRangeProof(h, []byte{1, 2, 3}, 0, false) {
		t.Fatalf("expected VerifyRangeProof to fail closed without bypass")
	}
}
