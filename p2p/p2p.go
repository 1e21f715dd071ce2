// Package p2p defines the peer-transport collaborator boundary. The
// core consumes this interface but never implements
// it: transport security, encryption, peer identity, and connection
// management all live on the far side. What this package owns is the
// contract — unary chain-metadata exchange, bounded server-streaming of
// headers, blocks, UTXOs and kernels, a peer-ban sink, and a
// connectivity watch — plus the wire-level request/response framing the
// collaborator and the core must agree on.
package p2p

import (
	"context"
	"errors"
	"time"

	"github.com/tari-project/tari-sub025/core"
)

const (
	// MaxHeadersPerMsg bounds one header-stream response batch; a peer
	// sending more than requested is a protocol violation (long ban).
	MaxHeadersPerMsg = 2_000
	// MaxLocatorHashes caps the block locator.
	MaxLocatorHashes = 64
	// MaxMessageBytes is the per-message size limit the core imposes on
	// every stream item; the transport enforces it at the framing
	// layer.
	MaxMessageBytes = 4 << 20
)

// Ban durations for the two ban buckets applied to peer misbehavior;
// the no-ban bucket never reaches BanPeer.
const (
	ShortBanDuration = 30 * time.Minute
	LongBanDuration  = 24 * time.Hour
)

// ErrStreamClosed is returned by a stream's Next once the remote side
// has sent its final item and closed cleanly.
var ErrStreamClosed = errors.New("p2p: stream closed")

// ErrUnavailable is returned by a transport that has no route to the
// requested peer (or, for UnimplementedTransport, to any peer).
var ErrUnavailable = errors.New("p2p: transport unavailable")

// ConnectivityStatus is the coarse connectivity signal the collaborator
// publishes through ConnectivityWatch.
type ConnectivityStatus int

const (
	ConnectivityOffline ConnectivityStatus = iota
	ConnectivityDegraded
	ConnectivityOnline
)

func (s ConnectivityStatus) String() string {
	switch s {
	case ConnectivityOffline:
		return "offline"
	case ConnectivityDegraded:
		return "degraded"
	case ConnectivityOnline:
		return "online"
	default:
		return "unknown"
	}
}

// HeaderStream yields headers one at a time; Next returns ErrStreamClosed
// after the final header. The caller is expected to count items and treat
// anything past its requested count as a protocol violation.
type HeaderStream interface {
	Next(ctx context.Context) (*core.BlockHeader, error)
}

// BlockStream yields full blocks in ascending height order.
type BlockStream interface {
	Next(ctx context.Context) (*core.Block, error)
}

// OutputStream yields the horizon UTXO set during horizon sync.
type OutputStream interface {
	Next(ctx context.Context) (*core.TransactionOutput, error)
}

// KernelStream yields the horizon kernel set during horizon sync.
type KernelStream interface {
	Next(ctx context.Context) (*core.TransactionKernel, error)
}

// Transport is the single surface the core uses to talk to peers:
// authenticated unary and streaming RPC, a ban sink, and a
// connectivity watch. Every method taking a context must observe its
// cancellation — dropped streams clean up remotely.
type Transport interface {
	GetChainMetadata(ctx context.Context, peerID string) (core.ChainMetadata, error)
	StreamHeaders(ctx context.Context, peerID string, locator []core.Hash, count uint64) (HeaderStream, error)
	StreamBlocks(ctx context.Context, peerID string, startHash, endHash core.Hash) (BlockStream, error)
	StreamUtxos(ctx context.Context, peerID string, horizonHeaderHash core.Hash) (OutputStream, error)
	StreamKernels(ctx context.Context, peerID string, horizonHeaderHash core.Hash) (KernelStream, error)
	BanPeer(peerID string, reason string, duration time.Duration) error
	ConnectivityWatch() <-chan ConnectivityStatus
}

// UnimplementedTransport satisfies Transport while a real collaborator
// is not wired in: every RPC reports ErrUnavailable, BanPeer is a no-op,
// and the connectivity watch reports a permanently offline network. The
// node entrypoint uses it so the sync state machine can run (and idle,
// cycling between Listening and Waiting) before a transport
// implementation exists.
type UnimplementedTransport struct{}

func (UnimplementedTransport) GetChainMetadata(context.Context, string) (core.ChainMetadata, error) {
	return core.ChainMetadata{}, ErrUnavailable
}

func (UnimplementedTransport) StreamHeaders(context.Context, string, []core.Hash, uint64) (HeaderStream, error) {
	return nil, ErrUnavailable
}

func (UnimplementedTransport) StreamBlocks(context.Context, string, core.Hash, core.Hash) (BlockStream, error) {
	return nil, ErrUnavailable
}

func (UnimplementedTransport) StreamUtxos(context.Context, string, core.Hash) (OutputStream, error) {
	return nil, ErrUnavailable
}

func (UnimplementedTransport) StreamKernels(context.Context, string, core.Hash) (KernelStream, error) {
	return nil, ErrUnavailable
}

func (UnimplementedTransport) BanPeer(string, string, time.Duration) error { return nil }

func (UnimplementedTransport) ConnectivityWatch() <-chan ConnectivityStatus {
	ch := make(chan ConnectivityStatus, 1)
	ch <- ConnectivityOffline
	return ch
}
