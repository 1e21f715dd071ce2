package consensus

import "testing"

func TestForIsHeightInvariantPerNetwork(t *testing.T) {
	a := For(NetworkMainnet, 10)
	b := For(NetworkMainnet, 1_000_000)
	if a.TargetBlockIntervalSeconds != b.TargetBlockIntervalSeconds || a.DifficultyBlockWindow != b.DifficultyBlockWindow {
		t.Fatalf("mainnet constants unexpectedly vary by height")
	}
}

func TestNetworksHaveDistinctFutureTimeLimits(t *testing.T) {
	if For(NetworkMainnet, 0).FutureTimeLimitSeconds == For(NetworkDevnet, 0).FutureTimeLimitSeconds {
		t.Fatalf("expected devnet FTL to differ from mainnet")
	}
}

func TestCoinbaseExtraMaxSizeDefault(t *testing.T) {
	// The coinbase-extra bound is a configurable default, not a fixed
	// consensus rule.
	if For(NetworkMainnet, 0).CoinbaseExtraMaxSize != 64 {
		t.Fatalf("expected default coinbase extra max size of 64 bytes")
	}
}
