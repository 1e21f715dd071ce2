package store

import (
	"encoding/binary"
	"fmt"

	"github.com/tari-project/tari-sub025/core"
)

// kvNodeStore implements mmr.NodeStore over a kvEngine bucket, one
// hash per 8-byte big-endian node index, with the running size cached
// in memory and mirrored into bucketMetadata so it survives a restart
// without a bucket-wide scan.
//
// While the store has a block transaction open it binds that
// transaction here, so the MMR appends and reads a block performs land
// in the same atomic transaction as every other bucket write the block
// produces (the mmr package calls Append/Get without transaction
// plumbing of its own). The Store's mutex serialises all access, so at
// most one transaction is ever bound.
type kvNodeStore struct {
	engine  kvEngine
	nodes   bucket
	sizeKey []byte
	size    uint64
	tx      kvTx
}

func nodeKey(i uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], i)
	return b[:]
}

func newKvNodeStore(engine kvEngine, nodes bucket, sizeKey []byte) (*kvNodeStore, error) {
	ns := &kvNodeStore{engine: engine, nodes: nodes, sizeKey: sizeKey}
	err := engine.View(func(tx kvTx) error {
		v, ok, err := tx.Get(bucketMetadata, sizeKey)
		if err != nil {
			return err
		}
		if ok {
			ns.size = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func (s *kvNodeStore) bind(tx kvTx) { s.tx = tx }

func (s *kvNodeStore) unbind() { s.tx = nil }

func (s *kvNodeStore) Size() uint64 { return s.size }

func (s *kvNodeStore) Get(i uint64) (core.Hash, error) {
	var out core.Hash
	read := func(tx kvTx) error {
		v, ok, err := tx.Get(s.nodes, nodeKey(i))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("store: mmr node %d not found in %s", i, s.nodes)
		}
		copy(out[:], v)
		return nil
	}
	if s.tx != nil {
		return out, read(s.tx)
	}
	return out, s.engine.View(read)
}

// Truncate resets the store's reported size to newSize. Bytes already
// written at indices >= newSize are left in place rather than deleted:
// they become unreachable through Get/Size and are simply overwritten
// the next time Append grows the store past them again.
func (s *kvNodeStore) Truncate(newSize uint64) error {
	if newSize > s.size {
		return fmt.Errorf("store: cannot truncate mmr node store to a larger size")
	}
	write := func(tx kvTx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], newSize)
		return tx.Put(bucketMetadata, s.sizeKey, buf[:])
	}
	var err error
	if s.tx != nil {
		err = write(s.tx)
	} else {
		err = s.engine.Update(write)
	}
	if err != nil {
		return err
	}
	s.size = newSize
	return nil
}

func (s *kvNodeStore) Append(h core.Hash) (uint64, error) {
	idx := s.size
	write := func(tx kvTx) error {
		if err := tx.Put(s.nodes, nodeKey(idx), h[:]); err != nil {
			return err
		}
		var sizeBuf [8]byte
		binary.BigEndian.PutUint64(sizeBuf[:], idx+1)
		return tx.Put(bucketMetadata, s.sizeKey, sizeBuf[:])
	}
	var err error
	if s.tx != nil {
		err = write(s.tx)
	} else {
		err = s.engine.Update(write)
	}
	if err != nil {
		return 0, err
	}
	s.size = idx + 1
	return idx, nil
}
