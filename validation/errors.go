// Package validation implements the three-layer validator pipeline:
// header validation, internal block validation, and chain-contextual/
// chain-balance validation, composed explicitly by the sync state
// machine rather than through an inheritance hierarchy.
package validation

import (
	"fmt"

	"github.com/tari-project/tari-sub025/core"
)

// ErrorCode names a validation failure kind. The structured-error
// shape (Code plus contextual fields) exists because the sync state
// machine's ban policy dispatches on the Code of every validator
// failure.
type ErrorCode string

const (
	// Header-layer errors.
	ErrBadBlockListed     ErrorCode = "BAD_BLOCK_LISTED"
	ErrVersionOutOfRange  ErrorCode = "VERSION_OUT_OF_RANGE"
	ErrTimestampTooFuture ErrorCode = "TIMESTAMP_TOO_FUTURE"
	ErrTimestampNotNewer  ErrorCode = "TIMESTAMP_NOT_NEWER_THAN_MEDIAN"
	ErrPowDataNotEmpty    ErrorCode = "SHA3_POW_DATA_NOT_EMPTY"
	ErrPowDataEmpty       ErrorCode = "MONERO_POW_DATA_EMPTY"
	ErrMoneroSeedReused   ErrorCode = "MONERO_SEED_REUSE_BEYOND_LIMIT"
	ErrPowBelowTarget     ErrorCode = "POW_BELOW_TARGET"
	ErrLinkageInvalid     ErrorCode = "HEADER_LINKAGE_INVALID"

	// Internal-block-layer errors.
	ErrUnsortedOrDuplicateInputs  ErrorCode = "UNSORTED_OR_DUPLICATE_INPUTS"
	ErrUnsortedOrDuplicateOutputs ErrorCode = "UNSORTED_OR_DUPLICATE_OUTPUTS"
	ErrUnsortedOrDuplicateKernels ErrorCode = "UNSORTED_OR_DUPLICATE_KERNELS"
	ErrCoinbaseCountInvalid       ErrorCode = "COINBASE_COUNT_INVALID"
	ErrCoinbaseValueExceeded      ErrorCode = "COINBASE_VALUE_EXCEEDED"
	ErrCoinbaseExtraTooLarge      ErrorCode = "COINBASE_EXTRA_TOO_LARGE"
	ErrCoinbaseLockHeightInvalid  ErrorCode = "COINBASE_LOCK_HEIGHT_INVALID"
	ErrNonCoinbaseHasExtra        ErrorCode = "NON_COINBASE_HAS_COINBASE_EXTRA"
	ErrWeightExceeded             ErrorCode = "BLOCK_WEIGHT_EXCEEDED"
	ErrRangeProofInvalid          ErrorCode = "RANGE_PROOF_INVALID"
	ErrMetadataSignatureInvalid   ErrorCode = "METADATA_SIGNATURE_INVALID"
	ErrScriptSignatureInvalid     ErrorCode = "SCRIPT_SIGNATURE_INVALID"
	ErrKernelSignatureInvalid     ErrorCode = "KERNEL_SIGNATURE_INVALID"
	ErrCovenantRejected           ErrorCode = "COVENANT_REJECTED"

	// Chain-contextual-layer errors.
	ErrHeightNotTipPlusOne   ErrorCode = "HEIGHT_NOT_TIP_PLUS_ONE"
	ErrPrevHashMismatch      ErrorCode = "PREV_HASH_MISMATCH"
	ErrTargetDifficultyWrong ErrorCode = "TARGET_DIFFICULTY_MISMATCH"
	ErrUtxoNotFound          ErrorCode = "INPUT_UTXO_NOT_FOUND"
	ErrDuplicateCommitment   ErrorCode = "DUPLICATE_OUTPUT_COMMITMENT"
	ErrKernelOffsetMismatch  ErrorCode = "TOTAL_KERNEL_OFFSET_MISMATCH"

	// Chain-balance-layer error.
	ErrChainBalanceFailed ErrorCode = "CHAIN_BALANCE_VALIDATION_FAILED"
)

// BanBucket is the three-way ban-policy classification assigned to
// every error kind.
type BanBucket uint8

const (
	NoBan BanBucket = iota
	ShortBan
	LongBan
)

// Bucket maps a Code to its ban bucket. Content-invalid and protocol
// errors are long-ban; everything in this package is content validation,
// so only header/body/chain-balance failures appear here — transport and
// latency errors are classified in chainsync/, which owns the peer connection.
func (c ErrorCode) Bucket() BanBucket {
	switch c {
	case ErrLinkageInvalid:
		return LongBan
	default:
		return LongBan
	}
}

// Error is a structured validation failure carrying enough detail
// (height, hash, kind) for operators to diagnose.
type Error struct {
	Code   ErrorCode
	Height uint64
	Hash   core.Hash
	Msg    string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return fmt.Sprintf("%s (height=%d hash=%x)", e.Code, e.Height, e.Hash)
	}
	return fmt.Sprintf("%s: %s (height=%d hash=%x)", e.Code, e.Msg, e.Height, e.Hash)
}

func newErr(code ErrorCode, height uint64, hash core.Hash, msg string) error {
	return &Error{Code: code, Height: height, Hash: hash, Msg: msg}
}

// CodeOf extracts the ErrorCode from err if it is (or wraps) a *Error,
// reporting ok=false otherwise — the lookup the sync state machine's ban
// policy performs on every validator failure.
func CodeOf(err error) (ErrorCode, bool) {
	var ve *Error
	if ok := asError(err, &ve); ok {
		return ve.Code, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if ve, ok := err.(*Error); ok {
			*target = ve
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
