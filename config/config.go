// Package config defines the strongly-typed configuration struct the
// node accepts at construction. Loading it from files or the
// environment is the embedding application's job.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tari-project/tari-sub025/consensus"
)

// BlockSyncConfig tunes the sync state machine.
type BlockSyncConfig struct {
	HeaderBatchSize  uint64        `json:"header_batch_size"`
	BlockBatchSize   uint64        `json:"block_batch_size"`
	MaxLatency       time.Duration `json:"max_latency"`
	SyncPeerAttempts int           `json:"sync_peer_attempts"`
}

// OrphanDBConfig bounds the orphan pool.
type OrphanDBConfig struct {
	SizeCap int           `json:"size_cap"`
	TTL     time.Duration `json:"ttl"`
}

// Config is the node's full option set.
type Config struct {
	Network        string          `json:"network"`
	DataDir        string          `json:"data_dir"`
	PruningHorizon uint64          `json:"pruning_horizon"`
	BlockSync      BlockSyncConfig `json:"block_sync"`
	MaxRandomxVMs  int             `json:"max_randomx_vms"`
	// BypassRangeProofVerification disables range-proof checks. Test
	// only; ValidateConfig rejects it on mainnet.
	BypassRangeProofVerification bool           `json:"bypass_range_proof_verification"`
	OrphanDB                     OrphanDBConfig `json:"orphan_db"`
}

var knownNetworks = map[string]consensus.NetworkID{
	"mainnet": consensus.NetworkMainnet,
	"testnet": consensus.NetworkTestnet,
	"devnet":  consensus.NetworkDevnet,
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".basenode"
	}
	return filepath.Join(home, ".basenode")
}

func DefaultConfig() Config {
	return Config{
		Network:        "devnet",
		DataDir:        DefaultDataDir(),
		PruningHorizon: 0,
		BlockSync: BlockSyncConfig{
			HeaderBatchSize:  500,
			BlockBatchSize:   100,
			MaxLatency:       20 * time.Second,
			SyncPeerAttempts: 3,
		},
		MaxRandomxVMs: 2,
		OrphanDB: OrphanDBConfig{
			SizeCap: 500,
			TTL:     2 * time.Hour,
		},
	}
}

// NetworkID resolves cfg.Network to its consensus network id.
func (c Config) NetworkID() (consensus.NetworkID, error) {
	id, ok := knownNetworks[strings.ToLower(strings.TrimSpace(c.Network))]
	if !ok {
		return 0, fmt.Errorf("unknown network %q", c.Network)
	}
	return id, nil
}

func ValidateConfig(cfg Config) error {
	if _, err := cfg.NetworkID(); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if cfg.BlockSync.HeaderBatchSize == 0 {
		return errors.New("header_batch_size must be > 0")
	}
	if cfg.BlockSync.HeaderBatchSize > 2000 {
		return errors.New("header_batch_size must be <= 2000")
	}
	if cfg.BlockSync.BlockBatchSize == 0 {
		return errors.New("block_batch_size must be > 0")
	}
	if cfg.BlockSync.MaxLatency <= 0 {
		return errors.New("max_latency must be > 0")
	}
	if cfg.BlockSync.SyncPeerAttempts <= 0 {
		return errors.New("sync_peer_attempts must be > 0")
	}
	if cfg.OrphanDB.SizeCap <= 0 {
		return errors.New("orphan size_cap must be > 0")
	}
	if cfg.OrphanDB.TTL <= 0 {
		return errors.New("orphan ttl must be > 0")
	}
	if cfg.MaxRandomxVMs <= 0 {
		return errors.New("max_randomx_vms must be > 0")
	}
	if cfg.BypassRangeProofVerification && strings.EqualFold(cfg.Network, "mainnet") {
		return errors.New("bypass_range_proof_verification is test-only and cannot be enabled on mainnet")
	}
	return nil
}
