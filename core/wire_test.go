package core

import (
	"bytes"
	"testing"
)

func sampleHeader() *BlockHeader {
	h := &BlockHeader{
		Version:   1,
		Height:    424242,
		Timestamp: 1_650_000_999,
		Nonce:     0xdeadbeefcafe,
		PoW: ProofOfWork{
			Algo:                        PowAlgoMonero,
			AccumulatedMoneroDifficulty: U128{Hi: 1, Lo: 2},
			AccumulatedSha3Difficulty:   U128{Hi: 3, Lo: 4},
			TargetDifficulty:            1 << 40,
			PowData:                     []byte{0xaa, 0xbb, 0xcc},
		},
	}
	for i := 0; i < 32; i++ {
		h.PrevHash[i] = byte(i)
		h.OutputMMRRoot[i] = byte(i + 1)
		h.RangeProofMMRRoot[i] = byte(i + 2)
		h.KernelMMRRoot[i] = byte(i + 3)
		h.TotalKernelOffset[i] = byte(i + 4)
		h.TotalScriptOffset[i] = byte(i + 5)
	}
	return h
}

func sampleBlock() *Block {
	header := sampleHeader()
	in := TransactionInput{
		Commitment:          HashBytes([]byte("in-commit")),
		OutputHash:          HashBytes([]byte("in-outhash")),
		Script:              []byte{1, 2, 3},
		InputData:           []byte{4},
		Covenant:            []byte{9, 9},
		EncryptedData:       []byte{7, 7, 7},
		MinimumValuePromise: 12345,
	}
	out := TransactionOutput{
		Features:            OutputFeatureCoinbase,
		CoinbaseExtra:       []byte("miner/v1"),
		Commitment:          HashBytes([]byte("out-commit")),
		RangeProof:          []byte{0x10, 0x20},
		Script:              []byte{5},
		EncryptedData:       []byte{6, 6},
		MinimumValuePromise: 999,
		Version:             1,
	}
	k := TransactionKernel{
		Features:   KernelFeatureCoinbase,
		Fee:        42,
		LockHeight: 1440,
		Excess:     HashBytes([]byte("excess")),
	}
	return &Block{
		Header: *header,
		Body:   AggregateBody{Inputs: []TransactionInput{in}, Outputs: []TransactionOutput{out}, Kernels: []TransactionKernel{k}},
	}
}

// TestBlockRoundTrip: serialize -> deserialize -> serialize is
// byte-for-byte stable.
func TestBlockRoundTrip(t *testing.T) {
	b := sampleBlock()
	enc := EncodeBlock(b)
	decoded, err := DecodeBlock(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	reenc := EncodeBlock(decoded)
	if !bytes.Equal(enc, reenc) {
		t.Fatalf("re-encoded block differs from original bytes")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()
	enc := EncodeHeader(h)
	decoded, err := DecodeHeader(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(EncodeHeader(decoded), enc) {
		t.Fatalf("re-encoded header differs from original bytes")
	}
	if decoded.PoW.AccumulatedMoneroDifficulty != (U128{Hi: 1, Lo: 2}) {
		t.Fatalf("u128 field lost in round trip")
	}
}

func TestDecodeHeaderRejectsTruncation(t *testing.T) {
	enc := EncodeHeader(sampleHeader())
	for _, cut := range []int{1, 10, len(enc) / 2, len(enc) - 1} {
		if _, err := DecodeHeader(enc[:cut]); err == nil {
			t.Fatalf("expected error decoding %d of %d bytes", cut, len(enc))
		}
	}
}

func TestHeaderHashExcludesNonceOnlyForPowInput(t *testing.T) {
	a := sampleHeader()
	b := sampleHeader()
	b.Nonce = a.Nonce + 1

	if HeaderHash(a) == HeaderHash(b) {
		t.Fatalf("canonical hash must include the nonce")
	}
	if PowInputHash(a) != PowInputHash(b) {
		t.Fatalf("pow-input hash must not depend on the nonce")
	}
}

// TestSortInvariant: a sorted body validates; swapping any two elements
// breaks the strict ordering.
func TestSortInvariant(t *testing.T) {
	var body AggregateBody
	for i := byte(0); i < 4; i++ {
		body.Inputs = append(body.Inputs, TransactionInput{OutputHash: HashBytes([]byte{'i', i})})
		body.Outputs = append(body.Outputs, TransactionOutput{Commitment: HashBytes([]byte{'o', i})})
		body.Kernels = append(body.Kernels, TransactionKernel{Fee: uint64(i), Excess: HashBytes([]byte{'k', i})})
	}
	SortBody(&body)
	if !IsSortedBody(&body) {
		t.Fatalf("sorted body must satisfy the ordering invariant")
	}

	swapped := body
	swapped.Inputs = append([]TransactionInput(nil), body.Inputs...)
	swapped.Inputs[0], swapped.Inputs[1] = swapped.Inputs[1], swapped.Inputs[0]
	if IsSortedInputs(swapped.Inputs) {
		t.Fatalf("permuted inputs must fail the ordering invariant")
	}

	swapped = body
	swapped.Outputs = append([]TransactionOutput(nil), body.Outputs...)
	swapped.Outputs[2], swapped.Outputs[3] = swapped.Outputs[3], swapped.Outputs[2]
	if IsSortedOutputs(swapped.Outputs) {
		t.Fatalf("permuted outputs must fail the ordering invariant")
	}

	swapped = body
	swapped.Kernels = append([]TransactionKernel(nil), body.Kernels...)
	swapped.Kernels[0], swapped.Kernels[1] = swapped.Kernels[1], swapped.Kernels[0]
	if IsSortedKernels(swapped.Kernels) {
		t.Fatalf("permuted kernels must fail the ordering invariant")
	}
}

func TestSortRejectsDuplicates(t *testing.T) {
	h := HashBytes([]byte("dup"))
	inputs := []TransactionInput{{OutputHash: h}, {OutputHash: h}}
	if IsSortedInputs(inputs) {
		t.Fatalf("duplicate inputs must fail the strict ordering")
	}
	outputs := []TransactionOutput{{Commitment: h}, {Commitment: h}}
	if IsSortedOutputs(outputs) {
		t.Fatalf("duplicate outputs must fail the strict ordering")
	}
	kernels := []TransactionKernel{{Excess: h}, {Excess: h}}
	if IsSortedKernels(kernels) {
		t.Fatalf("duplicate kernels must fail the strict ordering")
	}
}

func TestCompactSizeRejectsNonMinimal(t *testing.T) {
	cases := [][]byte{
		{0xfd, 0x00, 0x01},                   // 1 fits in a single byte
		{0xfe, 0x00, 0x00, 0x00, 0x05},       // 5 fits in a single byte
		{0xff, 0, 0, 0, 0, 0, 0, 0x01, 0x00}, // 256 fits in 0xfd form
	}
	for _, b := range cases {
		if _, _, err := DecodeCompactSize(b); err == nil {
			t.Fatalf("expected non-minimal rejection for % x", b)
		}
	}
	v, used, err := DecodeCompactSize([]byte{0x05})
	if err != nil || v != 5 || used != 1 {
		t.Fatalf("minimal single-byte decode failed: %d %d %v", v, used, err)
	}
}

func TestU128AddAndOverflow(t *testing.T) {
	a := U128{Lo: ^uint64(0)}
	sum, err := a.AddU64(1)
	if err != nil {
		t.Fatalf("carry into hi: %v", err)
	}
	if sum.Hi != 1 || sum.Lo != 0 {
		t.Fatalf("carry wrong: %+v", sum)
	}

	maxed := U128{Hi: ^uint64(0), Lo: ^uint64(0)}
	if _, err := maxed.AddU64(1); err == nil {
		t.Fatalf("overflow must be fatal")
	}

	bytes16 := sum.Bytes()
	if got := U128FromBytes(bytes16); got != sum {
		t.Fatalf("u128 byte round trip: %+v != %+v", got, sum)
	}
}
