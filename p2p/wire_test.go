package p2p

import (
	"bytes"
	"testing"

	"github.com/tari-project/tari-sub025/core"
)

func TestChainMetadataRoundTrip(t *testing.T) {
	md := core.ChainMetadata{
		HeightOfLongestChain:  123456,
		PruningHorizon:        720,
		AccumulatedDifficulty: core.U128{Hi: 7, Lo: 0xdeadbeef},
		PrunedHeight:          122736,
	}
	for i := range md.BestBlockHash {
		md.BestBlockHash[i] = byte(i)
	}

	enc := EncodeChainMetadata(md)
	if len(enc) != chainMetadataLen {
		t.Fatalf("encoded length %d, want %d", len(enc), chainMetadataLen)
	}
	got, err := DecodeChainMetadata(enc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != md {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, md)
	}
	if !bytes.Equal(EncodeChainMetadata(got), enc) {
		t.Fatalf("re-encode differs from original bytes")
	}
}

func TestChainMetadataRejectsWrongLength(t *testing.T) {
	enc := EncodeChainMetadata(core.ChainMetadata{})
	for _, b := range [][]byte{enc[:len(enc)-1], append(append([]byte(nil), enc...), 0)} {
		if _, err := DecodeChainMetadata(b); err == nil {
			t.Fatalf("expected error for %d-byte record", len(b))
		}
	}
}

func TestGetHeadersRequestRoundTrip(t *testing.T) {
	req := GetHeadersRequest{Count: 500}
	for i := 0; i < 5; i++ {
		var h core.Hash
		h[0] = byte(i + 1)
		req.Locator = append(req.Locator, h)
	}
	enc, err := EncodeGetHeadersRequest(req)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := DecodeGetHeadersRequest(enc)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.Count != req.Count || len(got.Locator) != len(req.Locator) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	for i := range req.Locator {
		if got.Locator[i] != req.Locator[i] {
			t.Fatalf("locator[%d] mismatch", i)
		}
	}
}

func TestGetHeadersRequestRejectsBadInputs(t *testing.T) {
	var h core.Hash
	cases := []struct {
		name string
		req  GetHeadersRequest
	}{
		{"empty locator", GetHeadersRequest{Count: 1}},
		{"oversized locator", GetHeadersRequest{Locator: make([]core.Hash, MaxLocatorHashes+1), Count: 1}},
		{"zero count", GetHeadersRequest{Locator: []core.Hash{h}, Count: 0}},
		{"count over cap", GetHeadersRequest{Locator: []core.Hash{h}, Count: MaxHeadersPerMsg + 1}},
	}
	for _, tc := range cases {
		if _, err := EncodeGetHeadersRequest(tc.req); err == nil {
			t.Fatalf("%s: expected encode error", tc.name)
		}
	}

	enc, err := EncodeGetHeadersRequest(GetHeadersRequest{Locator: []core.Hash{h}, Count: 10})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := DecodeGetHeadersRequest(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected decode error for truncated payload")
	}
	if _, err := DecodeGetHeadersRequest(append(append([]byte(nil), enc...), 0)); err == nil {
		t.Fatalf("expected decode error for trailing bytes")
	}
}

func TestBuildLocatorHeights(t *testing.T) {
	cases := []struct {
		tip  uint64
		want []uint64
	}{
		{0, []uint64{0}},
		{1, []uint64{1, 0}},
		{6, []uint64{6, 5, 4, 2, 0}},
		{100, []uint64{100, 99, 98, 96, 92, 84, 68, 36, 0}},
	}
	for _, tc := range cases {
		got := BuildLocatorHeights(tc.tip)
		if len(got) != len(tc.want) {
			t.Fatalf("tip %d: got %v want %v", tc.tip, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("tip %d: got %v want %v", tc.tip, got, tc.want)
			}
		}
	}
}

func TestBuildLocatorHeightsCapped(t *testing.T) {
	got := BuildLocatorHeights(1 << 50)
	if len(got) > MaxLocatorHashes {
		t.Fatalf("locator exceeds cap: %d entries", len(got))
	}
	if got[0] != 1<<50 {
		t.Fatalf("locator must start at tip")
	}
	if got[len(got)-1] != 0 {
		t.Fatalf("locator must end at genesis")
	}
}
