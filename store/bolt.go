package store

// NewBoltBackend opens (creating if necessary) a bbolt-backed Backend
// rooted at path. pruningHorizon of 0 means an archival (un-pruned)
// store.
func NewBoltBackend(path string, pruningHorizon uint64) (*Store, error) {
	engine, err := openBoltEngine(path)
	if err != nil {
		return nil, err
	}
	s, err := newStore(engine, pruningHorizon)
	if err != nil {
		engine.Close()
		return nil, err
	}
	return s, nil
}
