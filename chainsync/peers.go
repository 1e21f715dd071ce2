package chainsync

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/validation"
)

// Ban-score bookkeeping, kept alongside the hard short/long ban policy
// so that a peer repeatedly earning short bans eventually crosses the
// threshold and is treated as hostile. The score primitive (add, decay
// per minute, clamp at zero) is a deterministic policy helper, not
// consensus.
const (
	banThreshold           = 100
	shortBanScore          = 25
	longBanScore           = 100
	banScoreDecayPerMinute = 1
)

type banScore struct {
	score       int
	lastUpdated time.Time
}

func (b *banScore) add(now time.Time, delta int) int {
	b.decayTo(now)
	b.score += delta
	if b.score < 0 {
		b.score = 0
	}
	return b.score
}

func (b *banScore) decayTo(now time.Time) {
	if b.lastUpdated.IsZero() || now.Before(b.lastUpdated) {
		// Unset or backwards clock: re-anchor, never inflate.
		b.lastUpdated = now
		return
	}
	minutes := int(now.Sub(b.lastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	b.score -= minutes * banScoreDecayPerMinute
	if b.score < 0 {
		b.score = 0
	}
	b.lastUpdated = now
}

// peerInfo is one row of the shared peer-stats table: claimed chain
// metadata from the last ChainMetadataReceived event, measured request
// latency, and ban state. Updates are single-writer per peer (the
// state machine); reads take the table lock.
type peerInfo struct {
	id          string
	claimed     core.ChainMetadata
	latency     time.Duration
	score       banScore
	bannedUntil time.Time
}

func (p *peerInfo) banned(now time.Time) bool {
	return now.Before(p.bannedUntil)
}

// snapshot reports one peer's row for operators.
func (p *peerInfo) snapshot(now time.Time) core.SyncPeer {
	sp := core.SyncPeer{
		PeerID:                p.id,
		ClaimedChainMetadata:  p.claimed,
		MeasuredLatencyMillis: uint64(p.latency / time.Millisecond),
	}
	if p.banned(now) {
		sp.Ban = core.BanState{Banned: true, Until: uint64(p.bannedUntil.Unix())}
	}
	return sp
}

type peerTable struct {
	mu    sync.Mutex
	peers map[string]*peerInfo
}

func newPeerTable() *peerTable {
	return &peerTable{peers: make(map[string]*peerInfo)}
}

func (t *peerTable) record(peerID string, md core.ChainMetadata, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		p = &peerInfo{id: peerID}
		t.peers[peerID] = p
	}
	p.claimed = md
	if latency > 0 {
		p.latency = latency
	}
}

func (t *peerTable) remove(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, peerID)
}

// penalize applies one sync failure's ban bucket to the peer, returning
// the ban duration to report to the transport (zero for no ban). A
// short-ban failure also feeds the score so that chronic slowness
// escalates to a long ban at the threshold.
func (t *peerTable) penalize(peerID string, bucket validation.BanBucket, now time.Time, short, long time.Duration) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[peerID]
	if !ok {
		p = &peerInfo{id: peerID}
		t.peers[peerID] = p
	}
	switch bucket {
	case validation.ShortBan:
		if p.score.add(now, shortBanScore) >= banThreshold {
			p.bannedUntil = now.Add(long)
			return long
		}
		p.bannedUntil = now.Add(short)
		return short
	case validation.LongBan:
		p.score.add(now, longBanScore)
		p.bannedUntil = now.Add(long)
		return long
	default:
		return 0
	}
}

// candidates returns the unbanned peers whose claimed accumulated
// difficulty strictly exceeds ours, shuffled and then ordered so that
// lower-latency peers come first: selection is random among peers in
// the same latency bucket, with faster buckets preferred.
func (t *peerTable) candidates(ours core.U128, now time.Time) []*peerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*peerInfo
	for _, p := range t.peers {
		if p.banned(now) {
			continue
		}
		if p.claimed.AccumulatedDifficulty.Cmp(ours) > 0 {
			out = append(out, p)
		}
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	sort.SliceStable(out, func(i, j int) bool {
		return latencyBucket(out[i].latency) < latencyBucket(out[j].latency)
	})
	return out
}

// latencyBucket coarsens latency to 100ms buckets so the random shuffle
// decides between peers that are practically equally fast.
func latencyBucket(d time.Duration) int64 {
	return int64(d / (100 * time.Millisecond))
}

func (t *peerTable) snapshots(now time.Time) []core.SyncPeer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]core.SyncPeer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}
