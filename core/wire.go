package core

import (
	"encoding/binary"
	"fmt"
)

// cursor is a read cursor over a wire-format byte slice. All multi-byte
// integers on the wire are canonical big-endian.
type cursor struct {
	b   []byte
	pos int
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b}
}

func (c *cursor) remaining() int {
	if c.pos >= len(c.b) {
		return 0
	}
	return len(c.b) - c.pos
}

func (c *cursor) readExact(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, fmt.Errorf("wire: truncated")
	}
	start := c.pos
	c.pos += n
	return c.b[start:c.pos], nil
}

func (c *cursor) readU8() (uint8, error) {
	b, err := c.readExact(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *cursor) readU16() (uint16, error) {
	b, err := c.readExact(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *cursor) readU64() (uint64, error) {
	b, err := c.readExact(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (c *cursor) readHash() (Hash, error) {
	b, err := c.readExact(32)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func (c *cursor) readFixed32() ([32]byte, error) {
	b, err := c.readExact(32)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], b)
	return out, nil
}

func (c *cursor) readFixed64() ([64]byte, error) {
	b, err := c.readExact(64)
	if err != nil {
		return [64]byte{}, err
	}
	var out [64]byte
	copy(out[:], b)
	return out, nil
}

// readCompactSize reads a Bitcoin-style varint length prefix, rejecting
// non-minimal encodings so every value has exactly one valid encoding.
func (c *cursor) readCompactSize() (uint64, error) {
	tag, err := c.readU8()
	if err != nil {
		return 0, err
	}
	switch {
	case tag < 0xfd:
		return uint64(tag), nil
	case tag == 0xfd:
		v, err := c.readU16()
		if err != nil {
			return 0, err
		}
		if v < 0xfd {
			return 0, fmt.Errorf("wire: non-minimal compact size (0xfd)")
		}
		return uint64(v), nil
	case tag == 0xfe:
		b, err := c.readExact(4)
		if err != nil {
			return 0, err
		}
		v := binary.BigEndian.Uint32(b)
		if v <= 0xffff {
			return 0, fmt.Errorf("wire: non-minimal compact size (0xfe)")
		}
		return uint64(v), nil
	default:
		v, err := c.readU64()
		if err != nil {
			return 0, err
		}
		if v <= 0xffffffff {
			return 0, fmt.Errorf("wire: non-minimal compact size (0xff)")
		}
		return v, nil
	}
}

func (c *cursor) readBytes() ([]byte, error) {
	n, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	// #nosec G115 -- bounded by available remaining bytes below.
	if n > uint64(c.remaining()) {
		return nil, fmt.Errorf("wire: length prefix exceeds buffer")
	}
	return c.readExact(int(n))
}

// appendU16 appends v as a 2-byte big-endian value to dst.
func appendU16(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

// appendU64 appends v as an 8-byte big-endian value to dst.
func appendU64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// appendCompactSize appends n using the same varint scheme readCompactSize
// decodes.
func appendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		dst = append(dst, 0xfd)
		return appendU16(dst, uint16(n))
	case n <= 0xffffffff:
		dst = append(dst, 0xfe)
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], uint32(n))
		return append(dst, buf[:]...)
	default:
		dst = append(dst, 0xff)
		return appendU64(dst, n)
	}
}

// EncodeCompactSize returns n in the CompactSize encoding used for every
// variable-length prefix in the wire format, for packages (p2p) that
// frame their own messages with the same scheme.
func EncodeCompactSize(n uint64) []byte {
	return appendCompactSize(nil, n)
}

// DecodeCompactSize reads a CompactSize from the front of b, returning
// the value and the number of bytes consumed.
func DecodeCompactSize(b []byte) (uint64, int, error) {
	c := newCursor(b)
	v, err := c.readCompactSize()
	if err != nil {
		return 0, 0, err
	}
	return v, c.pos, nil
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = appendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}

// EncodeHeader writes h in the canonical fixed field order: all integers
// big-endian, hashes and scalars as fixed 32-byte arrays, pow_data
// length-prefixed.
func EncodeHeader(h *BlockHeader) []byte {
	buf := make([]byte, 0, 256)
	buf = appendU16(buf, h.Version)
	buf = appendU64(buf, h.Height)
	buf = append(buf, h.PrevHash[:]...)
	buf = appendU64(buf, h.Timestamp)
	buf = append(buf, h.OutputMMRRoot[:]...)
	buf = append(buf, h.RangeProofMMRRoot[:]...)
	buf = append(buf, h.KernelMMRRoot[:]...)
	buf = append(buf, h.TotalKernelOffset[:]...)
	buf = append(buf, h.TotalScriptOffset[:]...)
	buf = appendU64(buf, h.Nonce)
	buf = append(buf, byte(h.PoW.Algo))
	moneroBytes := h.PoW.AccumulatedMoneroDifficulty.Bytes()
	buf = append(buf, moneroBytes[:]...)
	sha3Bytes := h.PoW.AccumulatedSha3Difficulty.Bytes()
	buf = append(buf, sha3Bytes[:]...)
	buf = appendU64(buf, h.PoW.TargetDifficulty)
	buf = appendBytes(buf, h.PoW.PowData)
	return buf
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(b []byte) (*BlockHeader, error) {
	c := newCursor(b)
	return decodeHeader(c)
}

func decodeHeader(c *cursor) (*BlockHeader, error) {
	h := &BlockHeader{}
	var err error
	if h.Version, err = c.readU16(); err != nil {
		return nil, err
	}
	if h.Height, err = c.readU64(); err != nil {
		return nil, err
	}
	if h.PrevHash, err = c.readHash(); err != nil {
		return nil, err
	}
	if h.Timestamp, err = c.readU64(); err != nil {
		return nil, err
	}
	if h.OutputMMRRoot, err = c.readHash(); err != nil {
		return nil, err
	}
	if h.RangeProofMMRRoot, err = c.readHash(); err != nil {
		return nil, err
	}
	if h.KernelMMRRoot, err = c.readHash(); err != nil {
		return nil, err
	}
	if h.TotalKernelOffset, err = c.readFixed32(); err != nil {
		return nil, err
	}
	if h.TotalScriptOffset, err = c.readFixed32(); err != nil {
		return nil, err
	}
	if h.Nonce, err = c.readU64(); err != nil {
		return nil, err
	}
	algo, err := c.readU8()
	if err != nil {
		return nil, err
	}
	h.PoW.Algo = PowAlgo(algo)
	moneroBytes, err := c.readFixed16()
	if err != nil {
		return nil, err
	}
	h.PoW.AccumulatedMoneroDifficulty = U128FromBytes(moneroBytes)
	sha3Bytes, err := c.readFixed16()
	if err != nil {
		return nil, err
	}
	h.PoW.AccumulatedSha3Difficulty = U128FromBytes(sha3Bytes)
	if h.PoW.TargetDifficulty, err = c.readU64(); err != nil {
		return nil, err
	}
	if h.PoW.PowData, err = c.readBytes(); err != nil {
		return nil, err
	}
	return h, nil
}

func (c *cursor) readFixed16() ([16]byte, error) {
	b, err := c.readExact(16)
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	copy(out[:], b)
	return out, nil
}

// EncodeBody writes the body as (inputs_len | inputs | outputs_len |
// outputs | kernels_len | kernels).
func EncodeBody(body *AggregateBody) []byte {
	buf := make([]byte, 0, 512)
	buf = appendCompactSize(buf, uint64(len(body.Inputs)))
	for _, in := range body.Inputs {
		buf = encodeInput(buf, &in)
	}
	buf = appendCompactSize(buf, uint64(len(body.Outputs)))
	for _, out := range body.Outputs {
		buf = encodeOutput(buf, &out)
	}
	buf = appendCompactSize(buf, uint64(len(body.Kernels)))
	for _, k := range body.Kernels {
		buf = encodeKernel(buf, &k)
	}
	return buf
}

func encodeInput(buf []byte, in *TransactionInput) []byte {
	buf = append(buf, in.Commitment[:]...)
	buf = append(buf, in.OutputHash[:]...)
	buf = appendBytes(buf, in.Script)
	buf = appendBytes(buf, in.InputData)
	buf = append(buf, in.ScriptSignature[:]...)
	buf = append(buf, in.SenderOffsetPublicKey[:]...)
	buf = appendBytes(buf, in.Covenant)
	buf = appendBytes(buf, in.EncryptedData)
	buf = appendU64(buf, in.MinimumValuePromise)
	return buf
}

// EncodeOutput returns the canonical wire encoding of a single output,
// used by covenants/ to compute output_hash_eq comparisons against the
// same byte layout the block body itself serializes.
func EncodeOutput(out *TransactionOutput) []byte {
	return encodeOutput(nil, out)
}

func encodeOutput(buf []byte, out *TransactionOutput) []byte {
	buf = appendU16(buf, uint16(out.Features))
	buf = appendBytes(buf, out.CoinbaseExtra)
	buf = append(buf, out.Commitment[:]...)
	buf = appendBytes(buf, out.RangeProof)
	buf = appendBytes(buf, out.Script)
	buf = append(buf, out.SenderOffsetPublicKey[:]...)
	buf = append(buf, out.MetadataSignature[:]...)
	buf = appendBytes(buf, out.Covenant)
	buf = appendBytes(buf, out.EncryptedData)
	buf = appendU64(buf, out.MinimumValuePromise)
	buf = append(buf, out.Version)
	return buf
}

func encodeKernel(buf []byte, k *TransactionKernel) []byte {
	buf = append(buf, byte(k.Features))
	buf = appendU64(buf, k.Fee)
	buf = appendU64(buf, k.LockHeight)
	buf = append(buf, k.Excess[:]...)
	buf = append(buf, k.ExcessSig[:]...)
	return buf
}

// DecodeBody is the inverse of EncodeBody.
func DecodeBody(b []byte) (*AggregateBody, error) {
	c := newCursor(b)
	body := &AggregateBody{}

	nIn, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	body.Inputs = make([]TransactionInput, nIn)
	for i := range body.Inputs {
		if err := decodeInput(c, &body.Inputs[i]); err != nil {
			return nil, err
		}
	}

	nOut, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	body.Outputs = make([]TransactionOutput, nOut)
	for i := range body.Outputs {
		if err := decodeOutput(c, &body.Outputs[i]); err != nil {
			return nil, err
		}
	}

	nKer, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	body.Kernels = make([]TransactionKernel, nKer)
	for i := range body.Kernels {
		if err := decodeKernel(c, &body.Kernels[i]); err != nil {
			return nil, err
		}
	}
	return body, nil
}

func decodeInput(c *cursor, in *TransactionInput) error {
	var err error
	if in.Commitment, err = c.readHash(); err != nil {
		return err
	}
	if in.OutputHash, err = c.readHash(); err != nil {
		return err
	}
	if in.Script, err = c.readBytes(); err != nil {
		return err
	}
	if in.InputData, err = c.readBytes(); err != nil {
		return err
	}
	if in.ScriptSignature, err = c.readFixed64(); err != nil {
		return err
	}
	if in.SenderOffsetPublicKey, err = c.readHash(); err != nil {
		return err
	}
	if in.Covenant, err = c.readBytes(); err != nil {
		return err
	}
	if in.EncryptedData, err = c.readBytes(); err != nil {
		return err
	}
	if in.MinimumValuePromise, err = c.readU64(); err != nil {
		return err
	}
	return nil
}

func decodeOutput(c *cursor, out *TransactionOutput) error {
	features, err := c.readU16()
	if err != nil {
		return err
	}
	out.Features = OutputFeatures(features)
	if out.CoinbaseExtra, err = c.readBytes(); err != nil {
		return err
	}
	if out.Commitment, err = c.readHash(); err != nil {
		return err
	}
	if out.RangeProof, err = c.readBytes(); err != nil {
		return err
	}
	if out.Script, err = c.readBytes(); err != nil {
		return err
	}
	if out.SenderOffsetPublicKey, err = c.readHash(); err != nil {
		return err
	}
	if out.MetadataSignature, err = c.readFixed64(); err != nil {
		return err
	}
	if out.Covenant, err = c.readBytes(); err != nil {
		return err
	}
	if out.EncryptedData, err = c.readBytes(); err != nil {
		return err
	}
	if out.MinimumValuePromise, err = c.readU64(); err != nil {
		return err
	}
	version, err := c.readU8()
	if err != nil {
		return err
	}
	out.Version = version
	return nil
}

func decodeKernel(c *cursor, k *TransactionKernel) error {
	features, err := c.readU8()
	if err != nil {
		return err
	}
	k.Features = KernelFeatures(features)
	if k.Fee, err = c.readU64(); err != nil {
		return err
	}
	if k.LockHeight, err = c.readU64(); err != nil {
		return err
	}
	if k.Excess, err = c.readHash(); err != nil {
		return err
	}
	if k.ExcessSig, err = c.readFixed64(); err != nil {
		return err
	}
	return nil
}

// EncodeBlock writes header_bytes followed by the body, the canonical
// block wire format.
func EncodeBlock(b *Block) []byte {
	buf := EncodeHeader(&b.Header)
	return append(buf, EncodeBody(&b.Body)...)
}

// DecodeBlock is the inverse of EncodeBlock.
func DecodeBlock(b []byte) (*Block, error) {
	c := newCursor(b)
	h, err := decodeHeader(c)
	if err != nil {
		return nil, err
	}
	body := &AggregateBody{}
	nIn, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	body.Inputs = make([]TransactionInput, nIn)
	for i := range body.Inputs {
		if err := decodeInput(c, &body.Inputs[i]); err != nil {
			return nil, err
		}
	}
	nOut, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	body.Outputs = make([]TransactionOutput, nOut)
	for i := range body.Outputs {
		if err := decodeOutput(c, &body.Outputs[i]); err != nil {
			return nil, err
		}
	}
	nKer, err := c.readCompactSize()
	if err != nil {
		return nil, err
	}
	body.Kernels = make([]TransactionKernel, nKer)
	for i := range body.Kernels {
		if err := decodeKernel(c, &body.Kernels[i]); err != nil {
			return nil, err
		}
	}
	return &Block{Header: *h, Body: *body}, nil
}
