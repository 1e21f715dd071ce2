package core

import "golang.org/x/crypto/blake2b"

// blake2b256 hashes b with Blake2b-256, the network's canonical hash
// function. It is used here, in mmr/, and in covenants/ so that block
// hashes, MMR leaves, and covenant field hashes all derive from the same
// primitive.
func blake2b256(b []byte) Hash {
	return blake2b.Sum256(b)
}

// HashBytes exposes blake2b256 to other packages (mmr/, covenants/) that
// need to hash caller-assembled byte strings with the same primitive used
// for header and merkle hashing.
func HashBytes(b []byte) Hash {
	return blake2b256(b)
}

// HeaderHash returns a block's canonical hash, H(header_bytes). Header
// hashing excludes the nonce only when computing the proof-of-work input
// hash (see PowInputHash); HeaderHash always includes every field and is
// the hash used for storage keys, locators, and prev_hash linkage.
func HeaderHash(h *BlockHeader) Hash {
	return blake2b256(EncodeHeader(h))
}

// PowInputHash returns the hash miners iterate the nonce against: the
// header encoded with the nonce field held at the all-zero sentinel, so a
// changing nonce does not shift any other field's byte position.
func PowInputHash(h *BlockHeader) Hash {
	clone := *h
	clone.Nonce = 0
	return blake2b256(EncodeHeader(&clone))
}

const (
	merkleLeafTag byte = 0x00
	merkleNodeTag byte = 0x01
)

// MerkleRoot computes a domain-separated binary Merkle root over leaf
// hashes, promoting an unpaired final node unchanged at each level, for
// any leaf-hash sequence (kernels, outputs) a caller wants committed
// outside of the MMR proper.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	var leafPreimage [1 + 32]byte
	leafPreimage[0] = merkleLeafTag
	for i, leaf := range leaves {
		copy(leafPreimage[1:], leaf[:])
		level[i] = blake2b256(leafPreimage[:])
	}
	var nodePreimage [1 + 32 + 32]byte
	nodePreimage[0] = merkleNodeTag
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); {
			if i == len(level)-1 {
				next = append(next, level[i])
				i++
				continue
			}
			copy(nodePreimage[1:33], level[i][:])
			copy(nodePreimage[33:], level[i+1][:])
			next = append(next, blake2b256(nodePreimage[:]))
			i += 2
		}
		level = next
	}
	return level[0]
}
