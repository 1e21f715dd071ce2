package crypto

import "github.com/tari-project/tari-sub025/core"

// addMod256 combines two 32-byte values as big-endian integers mod 2^256,
// the commutative-associative group operation SumCommitments/
// CommitmentFromScalar use in place of real elliptic-curve arithmetic
// (see DESIGN.md: no Pedersen-commitment or Ristretto arithmetic is wired
// in this module).
func addMod256(a, b core.Hash) core.Hash {
	var out core.Hash
	var carry uint16
	for i := 31; i >= 0; i-- {
		sum := uint16(a[i]) + uint16(b[i]) + carry
		out[i] = byte(sum)
		carry = sum >> 8
	}
	return out
}

func sumCommitments(commitments ...core.Hash) core.Hash {
	var total core.Hash
	for _, c := range commitments {
		total = addMod256(total, c)
	}
	return total
}
