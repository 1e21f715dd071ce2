package store

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltEngine is the durable kvEngine, one bbolt bucket per column
// family, one bbolt bucket per column family, all created up front at
// open time.
type boltEngine struct {
	db *bolt.DB
}

func openBoltEngine(path string) (*boltEngine, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(b)); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", b, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltEngine{db: db}, nil
}

type boltTx struct{ tx *bolt.Tx }

func (t boltTx) Get(b bucket, key []byte) ([]byte, bool, error) {
	v := t.tx.Bucket([]byte(b)).Get(key)
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t boltTx) Put(b bucket, key, val []byte) error {
	return t.tx.Bucket([]byte(b)).Put(key, val)
}

func (t boltTx) Delete(b bucket, key []byte) error {
	return t.tx.Bucket([]byte(b)).Delete(key)
}

func (t boltTx) ForEach(b bucket, fn func(k, v []byte) error) error {
	return t.tx.Bucket([]byte(b)).ForEach(fn)
}

func (e *boltEngine) View(fn func(tx kvTx) error) error {
	return e.db.View(func(tx *bolt.Tx) error { return fn(boltTx{tx}) })
}

func (e *boltEngine) Update(fn func(tx kvTx) error) error {
	return e.db.Update(func(tx *bolt.Tx) error { return fn(boltTx{tx}) })
}

func (e *boltEngine) Close() error { return e.db.Close() }
