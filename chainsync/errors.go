package chainsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/tari-project/tari-sub025/p2p"
	"github.com/tari-project/tari-sub025/validation"
)

// errLatencyExceeded marks a peer that answered correctly but slower
// than Config.MaxLatency — the short-ban bucket.
var errLatencyExceeded = errors.New("chainsync: peer exceeded max latency")

// errNoProgress marks a sync attempt that yielded nothing to apply
// (peer had no headers past our tip). Flow-bucket: logged, never
// banned.
var errNoProgress = errors.New("chainsync: peer had nothing past our tip")

// protocolViolationError marks behavior only a non-conforming peer can
// produce: more items than requested, out-of-order headers, a first
// header that links nowhere. Long-ban bucket.
type protocolViolationError struct {
	reason string
}

func (e *protocolViolationError) Error() string {
	return fmt.Sprintf("chainsync: protocol violation: %s", e.reason)
}

func violation(format string, args ...interface{}) error {
	return &protocolViolationError{reason: fmt.Sprintf(format, args...)}
}

// contentError marks received chain data that fails a consensus check
// the validation package does not itself express (MMR root mismatch
// against a streamed horizon set, target-difficulty mismatch during
// header sync). Long-ban bucket, same as validation failures.
type contentError struct {
	reason string
}

func (e *contentError) Error() string {
	return fmt.Sprintf("chainsync: invalid content: %s", e.reason)
}

func contentErr(format string, args ...interface{}) error {
	return &contentError{reason: fmt.Sprintf(format, args...)}
}

// classify maps an error from a sync attempt onto the three-way ban
// policy: transport errors and cancellations are no-ban, latency is
// short-ban, and protocol violations or content failures (including
// every validation.Error) are long-ban.
func classify(err error) validation.BanBucket {
	switch {
	case err == nil:
		return validation.NoBan
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return validation.NoBan
	case errors.Is(err, p2p.ErrUnavailable), errors.Is(err, p2p.ErrStreamClosed):
		return validation.NoBan
	case errors.Is(err, errNoProgress):
		return validation.NoBan
	case errors.Is(err, errLatencyExceeded):
		return validation.ShortBan
	}
	var pv *protocolViolationError
	if errors.As(err, &pv) {
		return validation.LongBan
	}
	var ce *contentError
	if errors.As(err, &ce) {
		return validation.LongBan
	}
	if _, ok := validation.CodeOf(err); ok {
		return validation.LongBan
	}
	// Anything else is treated as transport-shaped: the data never
	// arrived or the local store failed, neither of which is the peer's
	// provable fault.
	return validation.NoBan
}
