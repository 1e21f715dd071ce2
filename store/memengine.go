package store

import "sync"

// memEngine is a kvEngine backed by plain maps guarded by a
// sync.RWMutex — the in-memory counterpart to the bbolt engine, used
// by tests and by nodes that do not need durability. Update buffers
// every write and applies the whole set only if the closure succeeds,
// so a failed block transaction leaves the maps untouched, the same
// all-or-nothing contract bbolt gives the durable engine.
type memEngine struct {
	mu      sync.RWMutex
	buckets map[bucket]map[string][]byte
}

func newMemEngine() *memEngine {
	e := &memEngine{buckets: make(map[bucket]map[string][]byte, len(allBuckets))}
	for _, b := range allBuckets {
		e.buckets[b] = make(map[string][]byte)
	}
	return e
}

// memReadTx is the read-only transaction handed to View.
type memReadTx struct {
	e *memEngine
}

func (tx memReadTx) Get(b bucket, key []byte) ([]byte, bool, error) {
	v, ok := tx.e.buckets[b][string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (tx memReadTx) Put(bucket, []byte, []byte) error {
	return errReadOnlyTx
}

func (tx memReadTx) Delete(bucket, []byte) error {
	return errReadOnlyTx
}

func (tx memReadTx) ForEach(b bucket, fn func(k, v []byte) error) error {
	for k, v := range tx.e.buckets[b] {
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

// memWriteTx overlays a pending write set on the engine's maps: Get and
// ForEach see the transaction's own writes and deletes, but nothing
// reaches the shared maps until commit.
type memWriteTx struct {
	e      *memEngine
	writes map[bucket]map[string][]byte
	dels   map[bucket]map[string]struct{}
}

func newMemWriteTx(e *memEngine) *memWriteTx {
	return &memWriteTx{
		e:      e,
		writes: make(map[bucket]map[string][]byte),
		dels:   make(map[bucket]map[string]struct{}),
	}
}

func (tx *memWriteTx) Get(b bucket, key []byte) ([]byte, bool, error) {
	k := string(key)
	if _, gone := tx.dels[b][k]; gone {
		return nil, false, nil
	}
	v, ok := tx.writes[b][k]
	if !ok {
		v, ok = tx.e.buckets[b][k]
	}
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (tx *memWriteTx) Put(b bucket, key, val []byte) error {
	k := string(key)
	if tx.writes[b] == nil {
		tx.writes[b] = make(map[string][]byte)
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	tx.writes[b][k] = cp
	if d, ok := tx.dels[b]; ok {
		delete(d, k)
	}
	return nil
}

func (tx *memWriteTx) Delete(b bucket, key []byte) error {
	k := string(key)
	if tx.dels[b] == nil {
		tx.dels[b] = make(map[string]struct{})
	}
	tx.dels[b][k] = struct{}{}
	if w, ok := tx.writes[b]; ok {
		delete(w, k)
	}
	return nil
}

func (tx *memWriteTx) ForEach(b bucket, fn func(k, v []byte) error) error {
	for k, v := range tx.e.buckets[b] {
		if _, gone := tx.dels[b][k]; gone {
			continue
		}
		if nv, ok := tx.writes[b][k]; ok {
			v = nv
		}
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	for k, v := range tx.writes[b] {
		if _, inBase := tx.e.buckets[b][k]; inBase {
			continue
		}
		if err := fn([]byte(k), v); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memWriteTx) commit() {
	for b, dels := range tx.dels {
		for k := range dels {
			delete(tx.e.buckets[b], k)
		}
	}
	for b, writes := range tx.writes {
		for k, v := range writes {
			tx.e.buckets[b][k] = v
		}
	}
}

func (e *memEngine) View(fn func(tx kvTx) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn(memReadTx{e})
}

func (e *memEngine) Update(fn func(tx kvTx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := newMemWriteTx(e)
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (e *memEngine) Close() error { return nil }
