// Package chainsync implements the chain-sync state machine that
// drives the node: it observes peer chain metadata through the
// peer-transport collaborator, decides whether to sync or idle, drives
// header, horizon and block sync against a chosen peer, invokes the
// validator pipeline on everything received, and persists results
// through the blockchain store. Only one sync state is ever active at
// a time; every state observes the shutdown signal.
package chainsync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/p2p"
	"github.com/tari-project/tari-sub025/store"
	"github.com/tari-project/tari-sub025/validation"
)

// State is one node of the sync state graph.
type State int

const (
	StateStarting State = iota
	StateListening
	StateWaiting
	StateHeaderSync
	StateHorizonSync
	StateBlockSync
	StateSynced
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateListening:
		return "Listening"
	case StateWaiting:
		return "Waiting"
	case StateHeaderSync:
		return "HeaderSync"
	case StateHorizonSync:
		return "HorizonSync"
	case StateBlockSync:
		return "BlockSync"
	case StateSynced:
		return "Synced"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// Config carries the sync-machine options plus the orphan-pool policy
// the idle state enforces.
type Config struct {
	Network          consensus.NetworkID
	PruningHorizon   uint64
	HeaderBatchSize  uint64
	BlockBatchSize   uint64
	MaxLatency       time.Duration
	SyncPeerAttempts int

	OrphanPoolSizeCap int
	OrphanTTL         time.Duration

	// IdleTick is how often the Waiting state re-checks for candidate
	// peers and runs orphan expiry when no metadata events arrive.
	IdleTick time.Duration

	// VerifyProofOfWork, when set, fully verifies a header's proof of
	// work (RandomX for Monero, Sha3 otherwise). When nil only the
	// structural PoW checks in the header validator run; actual
	// hash-meets-target verification needs the PoW backends that live
	// outside this module.
	VerifyProofOfWork func(*core.BlockHeader) error
}

// DefaultConfig returns the sync defaults for network.
func DefaultConfig(network consensus.NetworkID) Config {
	return Config{
		Network:           network,
		HeaderBatchSize:   500,
		BlockBatchSize:    100,
		MaxLatency:        20 * time.Second,
		SyncPeerAttempts:  3,
		OrphanPoolSizeCap: 500,
		OrphanTTL:         2 * time.Hour,
		IdleTick:          5 * time.Second,
	}
}

// Validators bundles the validator variants the machine dispatches
// to; composition is explicit at each call site rather than hidden in
// an interface hierarchy.
type Validators struct {
	Header       *validation.HeaderValidator
	Block        *validation.InternalBlockValidator
	ChainContext *validation.ChainContextValidator
	ChainBalance *validation.ChainBalanceValidator
}

// headerSyncResult is what a successful header sync hands to the
// horizon/block sync states: the validated header chain past the best
// common ancestor, plus the difficulty/timestamp window ending at its
// last header.
type headerSyncResult struct {
	peer           string
	ancestorHash   core.Hash
	ancestorHeight uint64
	headers        []*core.BlockHeader
	window         []consensus.HeaderWindow
}

// StateMachine drives the node. External events arrive through
// NotifyChainMetadata/NotifyPeerDisconnected; Run owns all state
// transitions, so they are serialised by construction.
type StateMachine struct {
	cfg        Config
	constants  consensus.Constants
	store      store.Backend
	transport  p2p.Transport
	validators Validators

	peers *peerTable

	mu      sync.Mutex
	state   State
	pending *headerSyncResult

	metadataCh   chan struct{}
	connectivity <-chan p2p.ConnectivityStatus
}

// New builds a state machine in the Starting state. The store must
// already contain at least the genesis block.
func New(cfg Config, st store.Backend, tr p2p.Transport, v Validators) *StateMachine {
	if cfg.HeaderBatchSize == 0 {
		cfg.HeaderBatchSize = 500
	}
	if cfg.BlockBatchSize == 0 {
		cfg.BlockBatchSize = 100
	}
	if cfg.SyncPeerAttempts == 0 {
		cfg.SyncPeerAttempts = 3
	}
	if cfg.IdleTick == 0 {
		cfg.IdleTick = 5 * time.Second
	}
	return &StateMachine{
		cfg:          cfg,
		constants:    consensus.For(cfg.Network, 0),
		store:        st,
		transport:    tr,
		validators:   v,
		peers:        newPeerTable(),
		state:        StateStarting,
		metadataCh:   make(chan struct{}, 1),
		connectivity: tr.ConnectivityWatch(),
	}
}

// State reports the currently active sync state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *StateMachine) setState(s State) {
	m.mu.Lock()
	if m.state != s {
		log.Printf("chainsync: %s -> %s", m.state, s)
	}
	m.state = s
	m.mu.Unlock()
}

// Peers snapshots the peer-stats table.
func (m *StateMachine) Peers() []core.SyncPeer {
	return m.peers.snapshots(time.Now())
}

// NotifyChainMetadata feeds a ChainMetadataReceived event from the
// collaborator: the peer's claimed chain metadata plus the measured
// round-trip latency of the exchange.
func (m *StateMachine) NotifyChainMetadata(peerID string, md core.ChainMetadata, latency time.Duration) {
	m.peers.record(peerID, md, latency)
	select {
	case m.metadataCh <- struct{}{}:
	default:
	}
}

// NotifyPeerDisconnected feeds a PeerDisconnected event.
func (m *StateMachine) NotifyPeerDisconnected(peerID string) {
	m.peers.remove(peerID)
}

// Run executes the state machine until ctx is cancelled. Returns nil
// on a clean shutdown; any other return is a storage-fatal condition
// the caller should treat as a process-level abort.
func (m *StateMachine) Run(ctx context.Context) error {
	m.setState(StateListening)
	for {
		if ctx.Err() != nil {
			m.setState(StateShutdown)
			return nil
		}
		switch m.State() {
		case StateListening:
			m.setState(m.listen())
		case StateWaiting:
			m.setState(m.waitIdle(ctx))
		case StateHeaderSync:
			m.setState(m.headerSync(ctx))
		case StateHorizonSync:
			m.setState(m.horizonSync(ctx))
		case StateBlockSync:
			m.setState(m.blockSync(ctx))
		case StateSynced:
			m.setState(StateListening)
		default:
			m.setState(StateListening)
		}
	}
}

// listen checks for a peer with a stronger claimed chain; with none the
// machine idles in Waiting.
func (m *StateMachine) listen() State {
	md, err := m.store.ChainMetadata()
	if err != nil {
		log.Printf("chainsync: reading own chain metadata: %v", err)
		return StateWaiting
	}
	if len(m.peers.candidates(md.AccumulatedDifficulty, time.Now())) == 0 {
		return StateWaiting
	}
	return StateHeaderSync
}

// waitIdle blocks until a metadata event, a connectivity change, the
// idle tick, or shutdown; the tick also runs orphan-pool expiry.
func (m *StateMachine) waitIdle(ctx context.Context) State {
	timer := time.NewTimer(m.cfg.IdleTick)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return StateShutdown
	case <-m.metadataCh:
	case <-m.connectivity:
	case <-timer.C:
		if m.cfg.OrphanPoolSizeCap > 0 && m.cfg.OrphanTTL > 0 {
			if _, err := m.store.PruneOrphans(m.cfg.OrphanPoolSizeCap, m.cfg.OrphanTTL); err != nil {
				log.Printf("chainsync: orphan expiry: %v", err)
			}
		}
	}
	return StateListening
}

// handleSyncError applies the ban policy to a failed attempt against
// peerID and reports the failure.
func (m *StateMachine) handleSyncError(peerID string, err error) {
	bucket := classify(err)
	if bucket == validation.NoBan {
		log.Printf("chainsync: peer %s: %v (no ban)", peerID, err)
		return
	}
	duration := m.peers.penalize(peerID, bucket, time.Now(), p2p.ShortBanDuration, p2p.LongBanDuration)
	log.Printf("chainsync: banning peer %s for %v: %v", peerID, duration, err)
	if banErr := m.transport.BanPeer(peerID, err.Error(), duration); banErr != nil {
		log.Printf("chainsync: ban sink rejected ban of %s: %v", peerID, banErr)
	}
}
