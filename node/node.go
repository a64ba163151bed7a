// Package node assembles a single-sequencer ledger from its parts: storage,
// runtime, programs, sequencer, indexer, metrics and the RPC server.
package node

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tolelom/gamescrow/config"
	"github.com/tolelom/gamescrow/consensus"
	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/indexer"
	"github.com/tolelom/gamescrow/logging"
	"github.com/tolelom/gamescrow/metrics"
	"github.com/tolelom/gamescrow/program/escrow"
	"github.com/tolelom/gamescrow/program/system"
	"github.com/tolelom/gamescrow/rpc"
	"github.com/tolelom/gamescrow/sequencer"
	"github.com/tolelom/gamescrow/storage"
	"github.com/tolelom/gamescrow/vm"
)

// Node owns every long-lived component. Only the sequencer writes through
// State; RPC reads go through a separate committed-only view.
type Node struct {
	Config    *config.Config
	Authority *consensus.Authority
	DB        storage.DB
	State     *storage.StateDB
	Ledger    *core.Ledger
	Mempool   *core.Mempool
	Emitter   *events.Emitter
	Indexer   *indexer.Indexer
	Escrow    *escrow.Program
	Executor  *vm.Executor
	Sequencer *sequencer.Sequencer
	Metrics   *metrics.Metrics
	Handler   *rpc.Handler

	log zerolog.Logger
}

// Option customises a Node.
type Option func(*options)

type options struct {
	sequencerKey crypto.PrivateKey
}

// WithSequencerKey sets the identity that seals slots. Without it the node
// generates a key for this run only.
func WithSequencerKey(key crypto.PrivateKey) Option {
	return func(o *options) { o.sequencerKey = key }
}

// New wires a node over db. On a fresh ledger it writes the genesis slot;
// on an existing one it checks the seal, linkage and state root of the tip.
// faucet may be nil; otherwise it signs requestAirdrop transfers when the
// config enables the faucet.
func New(cfg *config.Config, db storage.DB, faucet crypto.PrivateKey, opts ...Option) (*Node, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	n := &Node{
		Config:  cfg,
		DB:      db,
		State:   storage.NewStateDB(db),
		Mempool: core.NewMempool(cfg.MempoolSize),
		Emitter: events.NewEmitter(),
		Metrics: metrics.New(),
		log:     logging.Component("node"),
	}
	if o.sequencerKey == nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, errors.Wrap(err, "sequencer key")
		}
		o.sequencerKey = key
		n.log.Warn().Msg("no sequencer key given, slots are sealed with an ephemeral key")
	}
	n.Authority = consensus.New(o.sequencerKey)

	n.Ledger = core.NewLedger(storage.NewSlotStore(db))
	n.Mempool.WithSettledCheck(n.Ledger.HasReceipt)
	if err := n.Ledger.Init(); err != nil {
		return nil, errors.Wrap(err, "ledger init")
	}
	if n.Ledger.Tip() == nil {
		genesis, err := config.CreateGenesisSlot(cfg, n.State)
		if err != nil {
			return nil, errors.Wrap(err, "genesis")
		}
		n.Authority.Seal(genesis)
		if err := n.Ledger.AddSlot(genesis, nil, n.State); err != nil {
			return nil, errors.Wrap(err, "add genesis")
		}
		n.log.Info().Str("chain_id", cfg.Genesis.ChainID).Str("state_root", genesis.StateRoot).
			Int("accounts", len(cfg.Genesis.Alloc)).Msg("genesis slot committed")
	} else if err := n.checkTip(); err != nil {
		return nil, err
	}

	n.Indexer = indexer.New(db, n.Emitter)

	n.Escrow = escrow.New(cfg.DuplicatePolicy())
	registry := vm.NewRegistry()
	registry.Register(system.Program{})
	registry.Register(n.Escrow)
	n.Executor = vm.NewExecutor(n.State, n.Emitter, cfg.VMConfig()).
		WithRegistry(registry).
		WithObserver(n.Metrics)

	n.Sequencer = sequencer.New(sequencer.Config{
		Interval:   cfg.SlotInterval(),
		MaxSlotTxs: cfg.MaxSlotTxs,
	}, n.Ledger, n.State, n.Mempool, n.Executor, n.Emitter).
		WithObserver(n.Metrics).
		WithSealer(n.Authority)

	n.Handler = rpc.NewHandler(n.Ledger, n.Mempool, storage.NewStateDB(db), n.Indexer, n.Executor.Rent())
	if cfg.Faucet.Enabled && faucet != nil {
		f := rpc.NewFaucet(faucet, cfg.Faucet.Limit)
		n.Handler.WithFaucet(f)
		n.log.Info().Str("address", f.Address().String()).Uint64("limit", cfg.Faucet.Limit).Msg("faucet enabled")
	}
	return n, nil
}

// checkTip validates the stored tip against its predecessor and against the
// persisted accounts. Slots sealed by an earlier sequencer key are accepted.
func (n *Node) checkTip() error {
	tip := n.Ledger.Tip()
	var prev *core.Slot
	if tip.Number > 0 {
		var err error
		if prev, err = n.Ledger.GetSlot(tip.Number - 1); err != nil {
			return errors.Wrapf(err, "load slot %d", tip.Number-1)
		}
	}
	if err := consensus.ValidateSlot(tip, prev, core.Pubkey{}); err != nil {
		return errors.Wrap(err, "stored tip")
	}
	if tip.Leader != n.Authority.Leader() {
		n.log.Warn().Str("tip_leader", tip.Leader.String()).Str("leader", n.Authority.Leader().String()).
			Msg("sequencer key changed since the last slot")
	}
	if root := n.State.ComputeRoot(); root != tip.StateRoot {
		return errors.Errorf("stored state root %s does not match slot %d root %s", root, tip.Number, tip.StateRoot)
	}
	owned, err := n.State.Accounts(escrow.ProgramID)
	if err != nil {
		return errors.Wrap(err, "scan program accounts")
	}
	n.log.Info().Uint64("slot", tip.Number).Str("state_root", tip.StateRoot).
		Int("program_accounts", len(owned)).Msg("resumed from stored tip")
	return nil
}

// Run drives the sequencer and serves RPC until ctx is cancelled or either
// stops with an error.
func (n *Node) Run(ctx context.Context) error {
	tlsCfg, err := config.LoadTLSConfig(n.Config.RPCTLS)
	if err != nil {
		return err
	}
	server := rpc.NewServer(fmt.Sprintf(":%d", n.Config.RPCPort), n.Handler,
		rpc.WithAuthToken(n.Config.RPCAuthToken),
		rpc.WithTLS(tlsCfg),
		rpc.WithMetrics(n.Metrics.Handler()),
		rpc.WithObserver(n.Metrics),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Sequencer.Run(ctx) })
	g.Go(func() error { return server.ListenAndServe(ctx) })
	return g.Wait()
}
