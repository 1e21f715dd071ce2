// Command basenoded wires the base-node engine together: config ->
// store -> consensus -> validators -> sync state machine, with the
// peer-transport collaborator left as a pluggable boundary (an
// unimplemented transport is installed until one is provided, so the
// node runs and idles, cycling between Listening and Waiting).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tari-project/tari-sub025/chainsync"
	"github.com/tari-project/tari-sub025/config"
	"github.com/tari-project/tari-sub025/consensus"
	"github.com/tari-project/tari-sub025/core"
	"github.com/tari-project/tari-sub025/crypto"
	"github.com/tari-project/tari-sub025/p2p"
	"github.com/tari-project/tari-sub025/store"
	"github.com/tari-project/tari-sub025/validation"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := config.DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("basenoded", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.Uint64Var(&cfg.PruningHorizon, "pruning-horizon", defaults.PruningHorizon, "blocks of history to keep (0 = archival)")
	fs.Uint64Var(&cfg.BlockSync.HeaderBatchSize, "header-batch", defaults.BlockSync.HeaderBatchSize, "headers per sync request")
	fs.Uint64Var(&cfg.BlockSync.BlockBatchSize, "block-batch", defaults.BlockSync.BlockBatchSize, "blocks per sync request")
	fs.DurationVar(&cfg.BlockSync.MaxLatency, "max-latency", defaults.BlockSync.MaxLatency, "per-request latency bound before a short ban")
	fs.IntVar(&cfg.BlockSync.SyncPeerAttempts, "sync-peer-attempts", defaults.BlockSync.SyncPeerAttempts, "distinct peers to try per sync round")
	fs.IntVar(&cfg.MaxRandomxVMs, "max-randomx-vms", defaults.MaxRandomxVMs, "randomx VM pool size")
	fs.BoolVar(&cfg.BypassRangeProofVerification, "bypass-range-proofs", false, "skip range-proof verification (test only)")
	memStore := fs.Bool("mem-store", false, "use the in-memory store instead of the durable one")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.Network = strings.ToLower(strings.TrimSpace(cfg.Network))
	if err := config.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}
	network, err := cfg.NetworkID()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	var backend store.Backend
	if *memStore {
		backend, err = store.NewMemoryBackend(cfg.PruningHorizon)
	} else {
		if mkErr := os.MkdirAll(cfg.DataDir, 0o750); mkErr != nil {
			_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", mkErr)
			return 2
		}
		backend, err = store.NewBoltBackend(filepath.Join(cfg.DataDir, "chain.db"), cfg.PruningHorizon)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "store open failed: %v\n", err)
		return 2
	}
	defer backend.Close()

	if err := seedGenesis(backend, network); err != nil {
		_, _ = fmt.Fprintf(stderr, "genesis init failed: %v\n", err)
		return 2
	}

	constants := consensus.For(network, 0)
	emission := consensus.DefaultEmissionSchedule()
	provider := crypto.DefaultProvider{}
	validators := chainsync.Validators{
		Header: &validation.HeaderValidator{
			Constants: constants,
			BadBlocks: backend,
			Now:       func() uint64 { return uint64(time.Now().Unix()) },
			SeedHeight: func(seed []byte) (uint64, bool) {
				h, ok, err := backend.SeedFirstSeenHeight(seed)
				return h, ok && err == nil
			},
		},
		Block: &validation.InternalBlockValidator{
			Constants:                    constants,
			EmissionSchedule:             emission,
			Crypto:                       provider,
			BypassRangeProofVerification: cfg.BypassRangeProofVerification,
		},
		ChainContext: &validation.ChainContextValidator{Constants: constants, Utxos: backend},
		ChainBalance: &validation.ChainBalanceValidator{EmissionSchedule: emission, Crypto: provider},
	}

	syncCfg := chainsync.DefaultConfig(network)
	syncCfg.PruningHorizon = cfg.PruningHorizon
	syncCfg.HeaderBatchSize = cfg.BlockSync.HeaderBatchSize
	syncCfg.BlockBatchSize = cfg.BlockSync.BlockBatchSize
	syncCfg.MaxLatency = cfg.BlockSync.MaxLatency
	syncCfg.SyncPeerAttempts = cfg.BlockSync.SyncPeerAttempts
	syncCfg.OrphanPoolSizeCap = cfg.OrphanDB.SizeCap
	syncCfg.OrphanTTL = cfg.OrphanDB.TTL

	machine := chainsync.New(syncCfg, backend, p2p.UnimplementedTransport{}, validators)

	md, err := backend.ChainMetadata()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "chain metadata read failed: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintf(stdout, "chain: height=%d best=%x pruned_height=%d\n",
		md.HeightOfLongestChain, md.BestBlockHash, md.PrunedHeight)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, _ = fmt.Fprintln(stdout, "basenoded running")
	err = machine.Run(ctx)
	_, _ = fmt.Fprintln(stdout, "basenoded stopped")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "sync machine failed: %v\n", err)
		return 1
	}
	return 0
}

// seedGenesis installs the network's genesis block into an empty store.
func seedGenesis(backend store.Backend, network consensus.NetworkID) error {
	if _, ok := backend.Tip(); ok {
		return nil
	}
	genesis := consensus.GetGenesisBlock(network)
	data := core.AccumulatedData{
		AchievedDifficulty: genesis.Header.PoW.TargetDifficulty,
		AccumulatedSha3:    core.U128{Lo: genesis.Header.PoW.TargetDifficulty},
		TargetDifficulty:   genesis.Header.PoW.TargetDifficulty,
	}
	_, err := backend.AddBlock(&genesis, data)
	return err
}

func printConfig(w io.Writer, cfg config.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
