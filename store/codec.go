package store

import (
	"encoding/binary"
	"fmt"

	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/mmr"
)

// blockStatus records how far a stored block has progressed through
// validation and whether it sits in the orphan pool.
type blockStatus byte

const (
	statusUnknown blockStatus = 0
	statusValid   blockStatus = 1
	statusInvalid blockStatus = 2
	statusOrphan  blockStatus = 3
)

// indexEntry is the per-hash chain-index record: the fields needed to
// walk ancestry (Height plus the stored header's PrevHash) and to
// compare chains (AccumulatedData).
type indexEntry struct {
	Height uint64
	Hash   core.Hash
	Data   core.AccumulatedData
}

func heightKey(h uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h)
	return b[:]
}

func encodeIndexEntry(e indexEntry) []byte {
	buf := make([]byte, 0, 8+32+8+16+16+32+8)
	buf = appendU64(buf, e.Height)
	buf = append(buf, e.Hash[:]...)
	buf = appendU64(buf, e.Data.AchievedDifficulty)
	monero := e.Data.AccumulatedMonero.Bytes()
	buf = append(buf, monero[:]...)
	sha3 := e.Data.AccumulatedSha3.Bytes()
	buf = append(buf, sha3[:]...)
	buf = append(buf, e.Data.TotalKernelOffset[:]...)
	buf = appendU64(buf, e.Data.TargetDifficulty)
	return buf
}

func decodeIndexEntry(b []byte) (indexEntry, error) {
	const want = 8 + 32 + 8 + 16 + 16 + 32 + 8
	if len(b) != want {
		return indexEntry{}, fmt.Errorf("store: index entry truncated")
	}
	var e indexEntry
	off := 0
	e.Height = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	copy(e.Hash[:], b[off:off+32])
	off += 32
	e.Data.AchievedDifficulty = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	var monero, sha3 [16]byte
	copy(monero[:], b[off:off+16])
	e.Data.AccumulatedMonero = core.U128FromBytes(monero)
	off += 16
	copy(sha3[:], b[off:off+16])
	e.Data.AccumulatedSha3 = core.U128FromBytes(sha3)
	off += 16
	copy(e.Data.TotalKernelOffset[:], b[off:off+32])
	off += 32
	e.Data.TargetDifficulty = binary.BigEndian.Uint64(b[off : off+8])
	return e, nil
}

func appendU64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// utxoEntry is what the UTXO bucket stores per unspent commitment:
// output bytes plus its output-MMR leaf position and mined height.
type utxoEntry struct {
	Output          core.TransactionOutput
	MMRLeafPosition uint64
	MinedHeight     uint64
}

func encodeUtxoEntry(e utxoEntry) []byte {
	buf := appendU64(nil, e.MMRLeafPosition)
	buf = appendU64(buf, e.MinedHeight)
	buf = append(buf, encodeOutputBytes(e.Output)...)
	return buf
}

func decodeUtxoEntry(b []byte) (utxoEntry, error) {
	if len(b) < 16 {
		return utxoEntry{}, fmt.Errorf("store: utxo entry truncated")
	}
	pos := binary.BigEndian.Uint64(b[0:8])
	height := binary.BigEndian.Uint64(b[8:16])
	out, err := decodeOutputBytes(b[16:])
	if err != nil {
		return utxoEntry{}, err
	}
	return utxoEntry{Output: out, MMRLeafPosition: pos, MinedHeight: height}, nil
}

// encodeOutputBytes/decodeOutputBytes decode a lone TransactionOutput by
// wrapping it in an otherwise-empty body, reusing core's body codec
// instead of duplicating its field-by-field output layout here.
func encodeOutputBytes(out core.TransactionOutput) []byte {
	body := core.AggregateBody{Outputs: []core.TransactionOutput{out}}
	return core.EncodeBody(&body)
}

func decodeOutputBytes(b []byte) (core.TransactionOutput, error) {
	body, err := core.DecodeBody(b)
	if err != nil {
		return core.TransactionOutput{}, err
	}
	if len(body.Outputs) != 1 {
		return core.TransactionOutput{}, fmt.Errorf("store: expected exactly one decoded output")
	}
	return body.Outputs[0], nil
}

// kernelEntry is what the kernel bucket stores per excess: kernel
// bytes plus the block hash that mined it.
type kernelEntry struct {
	Kernel    core.TransactionKernel
	BlockHash core.Hash
}

func encodeKernelEntry(e kernelEntry) []byte {
	buf := encodeKernelBytes(e.Kernel)
	buf = append(buf, e.BlockHash[:]...)
	return buf
}

func decodeKernelEntry(b []byte) (kernelEntry, error) {
	if len(b) < 32 {
		return kernelEntry{}, fmt.Errorf("store: kernel entry truncated")
	}
	kernelBytes := b[:len(b)-32]
	k, err := decodeKernelBytes(kernelBytes)
	if err != nil {
		return kernelEntry{}, err
	}
	var hash core.Hash
	copy(hash[:], b[len(b)-32:])
	return kernelEntry{Kernel: k, BlockHash: hash}, nil
}

// encodeKernelBytes/decodeKernelBytes reuse core.EncodeBody's kernel
// layout the same way decodeOutputBytes reuses its output layout, by
// wrapping the single kernel in an otherwise-empty body.
func encodeKernelBytes(k core.TransactionKernel) []byte {
	body := core.AggregateBody{Kernels: []core.TransactionKernel{k}}
	return core.EncodeBody(&body)
}

func decodeKernelBytes(b []byte) (core.TransactionKernel, error) {
	body, err := core.DecodeBody(b)
	if err != nil {
		return core.TransactionKernel{}, err
	}
	if len(body.Kernels) != 1 {
		return core.TransactionKernel{}, fmt.Errorf("store: expected exactly one decoded kernel")
	}
	return body.Kernels[0], nil
}

// checkpointEntry is the persisted form of one mmr.MerkleCheckPoint.
func encodeCheckpoint(cp mmr.MerkleCheckPoint) []byte {
	buf := appendU64(nil, uint64(len(cp.NodesAdded)))
	for _, h := range cp.NodesAdded {
		buf = append(buf, h[:]...)
	}
	buf = appendU64(buf, uint64(len(cp.NodesDeleted)))
	for _, idx := range cp.NodesDeleted {
		buf = appendU64(buf, idx)
	}
	buf = appendU64(buf, uint64(cp.AccumulatedNodesAddedCount))
	return buf
}

func decodeCheckpoint(b []byte) (mmr.MerkleCheckPoint, error) {
	off := 0
	readU64 := func() (uint64, error) {
		if off+8 > len(b) {
			return 0, fmt.Errorf("store: checkpoint truncated")
		}
		v := binary.BigEndian.Uint64(b[off : off+8])
		off += 8
		return v, nil
	}
	nAdded, err := readU64()
	if err != nil {
		return mmr.MerkleCheckPoint{}, err
	}
	added := make([]core.Hash, nAdded)
	for i := range added {
		if off+32 > len(b) {
			return mmr.MerkleCheckPoint{}, fmt.Errorf("store: checkpoint truncated")
		}
		copy(added[i][:], b[off:off+32])
		off += 32
	}
	nDeleted, err := readU64()
	if err != nil {
		return mmr.MerkleCheckPoint{}, err
	}
	deleted := make([]uint64, nDeleted)
	for i := range deleted {
		v, err := readU64()
		if err != nil {
			return mmr.MerkleCheckPoint{}, err
		}
		deleted[i] = v
	}
	count, err := readU64()
	if err != nil {
		return mmr.MerkleCheckPoint{}, err
	}
	return mmr.MerkleCheckPoint{NodesAdded: added, NodesDeleted: deleted, AccumulatedNodesAddedCount: uint32(count)}, nil
}
