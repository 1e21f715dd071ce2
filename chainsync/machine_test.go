package chainsync

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/p2p"
	"github.com/tari-project/tari-sub025/store"
)

// runMachine starts m and returns a stop function that shuts it down
// and waits for Run to return.
func runMachine(t *testing.T, m *StateMachine) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Run(ctx); err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitForHeight(t *testing.T, st store.Backend, want uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if tip, ok := st.Tip(); ok && tip.Height >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	tip, _ := st.Tip()
	t.Fatalf("timed out waiting for height %d (at %d)", want, tip.Height)
}

// requireSameChain asserts byte-for-byte block equality between the two
// stores over heights [0, maxHeight].
func requireSameChain(t *testing.T, a, b store.Backend, maxHeight uint64) {
	t.Helper()
	for h := uint64(0); h <= maxHeight; h++ {
		ah, okA, err := a.FetchHeaderByHeight(h)
		if err != nil || !okA {
			t.Fatalf("node A missing header at height %d: %v", h, err)
		}
		bh, okB, err := b.FetchHeaderByHeight(h)
		if err != nil || !okB {
			t.Fatalf("node B missing header at height %d: %v", h, err)
		}
		if core.HeaderHash(ah) != core.HeaderHash(bh) {
			t.Fatalf("header mismatch at height %d", h)
		}
		ab, okA, err := a.FetchBlockByHash(core.HeaderHash(ah))
		if err != nil || !okA {
			t.Fatalf("node A missing block at height %d: %v", h, err)
		}
		bb, okB, err := b.FetchBlockByHash(core.HeaderHash(bh))
		if err != nil || !okB {
			t.Fatalf("node B missing block at height %d: %v", h, err)
		}
		if !bytes.Equal(core.EncodeBlock(ab), core.EncodeBlock(bb)) {
			t.Fatalf("block bytes differ at height %d", h)
		}
	}
}

// TestSyncFromGenesis: node A starts at genesis, node B is seeded five
// blocks ahead; after the state machine runs, every block of both nodes
// is identical.
func TestSyncFromGenesis(t *testing.T) {
	a := newTestNode(t, 0)
	b := newTestNode(t, 0)
	b.extendChain(t, 5, 1)

	tt := newTestTransport()
	tt.add("b", b.store)
	m := newTestMachine(a, tt, 0, 0)
	stop := runMachine(t, m)
	defer stop()

	md, err := b.store.ChainMetadata()
	if err != nil {
		t.Fatalf("reading B metadata: %v", err)
	}
	m.NotifyChainMetadata("b", md, 5*time.Millisecond)

	waitForHeight(t, a.store, 5, 5*time.Second)
	requireSameChain(t, a.store, b.store, 5)
	if len(tt.banned()) != 0 {
		t.Fatalf("unexpected bans: %+v", tt.banned())
	}
}

// TestSyncFromBehind: node A holds genesis+4, node B genesis+6, sharing
// the first four blocks; A syncs the remaining two.
func TestSyncFromBehind(t *testing.T) {
	a := newTestNode(t, 0)
	b := newTestNode(t, 0)
	blocks, datas := b.extendChain(t, 6, 1)
	a.applyBlocks(t, blocks[:4], datas[:4])

	tt := newTestTransport()
	tt.add("b", b.store)
	m := newTestMachine(a, tt, 0, 0)
	stop := runMachine(t, m)
	defer stop()

	md, err := b.store.ChainMetadata()
	if err != nil {
		t.Fatalf("reading B metadata: %v", err)
	}
	m.NotifyChainMetadata("b", md, 5*time.Millisecond)

	waitForHeight(t, a.store, 6, 5*time.Second)
	requireSameChain(t, a.store, b.store, 6)
}

// TestHeaderOverdeliveryGetsLongBan: a peer streaming more headers than
// requested is a protocol violation and earns the long ban duration;
// the local chain stays untouched.
func TestHeaderOverdeliveryGetsLongBan(t *testing.T) {
	a := newTestNode(t, 0)
	b := newTestNode(t, 0)
	b.extendChain(t, 3, 1)

	tt := newTestTransport()
	tt.add("b", b.store)
	tt.overdeliverHeaders = true
	m := newTestMachine(a, tt, 0, 0)
	stop := runMachine(t, m)
	defer stop()

	md, err := b.store.ChainMetadata()
	if err != nil {
		t.Fatalf("reading B metadata: %v", err)
	}
	m.NotifyChainMetadata("b", md, 5*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(tt.banned()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	bans := tt.banned()
	if len(bans) == 0 {
		t.Fatalf("expected a ban for header over-delivery")
	}
	if bans[0].peer != "b" || bans[0].duration != p2p.LongBanDuration {
		t.Fatalf("expected long ban of peer b, got %+v", bans[0])
	}
	if tip, _ := a.store.Tip(); tip.Height != 0 {
		t.Fatalf("local chain advanced despite protocol violation (height %d)", tip.Height)
	}
}

// TestSlowPeerGetsShortBan: batches slower than MaxLatency earn the
// short-ban duration.
func TestSlowPeerGetsShortBan(t *testing.T) {
	a := newTestNode(t, 0)
	b := newTestNode(t, 0)
	b.extendChain(t, 2, 1)

	tt := newTestTransport()
	tt.add("b", b.store)
	tt.headerDelay = 20 * time.Millisecond
	m := newTestMachine(a, tt, 0, time.Millisecond)
	stop := runMachine(t, m)
	defer stop()

	md, err := b.store.ChainMetadata()
	if err != nil {
		t.Fatalf("reading B metadata: %v", err)
	}
	m.NotifyChainMetadata("b", md, 5*time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(tt.banned()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	bans := tt.banned()
	if len(bans) == 0 {
		t.Fatalf("expected a latency ban")
	}
	if bans[0].duration != p2p.ShortBanDuration {
		t.Fatalf("expected short ban, got %+v", bans[0])
	}
}

// TestPrunedNodeRunsHorizonSync: a pruned node syncing far past its
// horizon verifies the streamed horizon kernel/UTXO sets against the
// horizon header's MMR roots before block sync, and ends up on the
// remote tip with old bodies discarded.
func TestPrunedNodeRunsHorizonSync(t *testing.T) {
	const horizon = 2
	a := newTestNode(t, horizon)
	b := newTestNode(t, 0)
	b.extendChain(t, 8, 1)

	tt := newTestTransport()
	tt.add("b", b.store)
	m := newTestMachine(a, tt, horizon, 0)
	stop := runMachine(t, m)
	defer stop()

	md, err := b.store.ChainMetadata()
	if err != nil {
		t.Fatalf("reading B metadata: %v", err)
	}
	m.NotifyChainMetadata("b", md, 5*time.Millisecond)

	waitForHeight(t, a.store, 8, 5*time.Second)

	// Headers match everywhere; full bodies only above the pruned
	// height, since A discards historical bodies below tip-horizon.
	for h := uint64(0); h <= 8; h++ {
		ah, okA, err := a.store.FetchHeaderByHeight(h)
		if err != nil || !okA {
			t.Fatalf("node A missing header at height %d: %v", h, err)
		}
		bh, okB, err := b.store.FetchHeaderByHeight(h)
		if err != nil || !okB {
			t.Fatalf("node B missing header at height %d: %v", h, err)
		}
		if core.HeaderHash(ah) != core.HeaderHash(bh) {
			t.Fatalf("header mismatch at height %d", h)
		}
	}
	for h := uint64(8 - horizon); h <= 8; h++ {
		header, _, err := a.store.FetchHeaderByHeight(h)
		if err != nil {
			t.Fatalf("header at %d: %v", h, err)
		}
		ab, okA, err := a.store.FetchBlockByHash(core.HeaderHash(header))
		if err != nil || !okA {
			t.Fatalf("node A missing block at height %d: %v", h, err)
		}
		bb, okB, err := b.store.FetchBlockByHash(core.HeaderHash(header))
		if err != nil || !okB {
			t.Fatalf("node B missing block at height %d: %v", h, err)
		}
		if !bytes.Equal(core.EncodeBlock(ab), core.EncodeBlock(bb)) {
			t.Fatalf("block bytes differ at height %d", h)
		}
	}

	ourMd, err := a.store.ChainMetadata()
	if err != nil {
		t.Fatalf("reading A metadata: %v", err)
	}
	if ourMd.PrunedHeight == 0 {
		t.Fatalf("pruned node never advanced its pruned height")
	}
	if len(tt.banned()) != 0 {
		t.Fatalf("unexpected bans during horizon sync: %+v", tt.banned())
	}
}
