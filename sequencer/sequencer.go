// Package sequencer is the single writer of ledger state. Each tick it
// drains pending transactions in submission order, executes them one at a
// time, and commits the resulting slot together with its receipts.
package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/logging"
	"github.com/tolelom/gamescrow/vm"
)

// DefaultMaxSlotTxs is used when Config.MaxSlotTxs is not positive.
const DefaultMaxSlotTxs = 500

// Config controls the slot loop.
type Config struct {
	Interval   time.Duration
	MaxSlotTxs int
}

// Observer receives one callback per committed slot.
type Observer interface {
	ObserveSlot(number uint64, confirmed, failed, pending int, elapsed time.Duration)
}

// Sealer signs a slot once its state root is final.
type Sealer interface {
	Seal(slot *core.Slot)
}

// Sequencer produces slots. Only ProduceSlot mutates state, and calls to it
// are serialised.
type Sequencer struct {
	cfg      Config
	ledger   *core.Ledger
	state    core.State
	mempool  *core.Mempool
	exec     *vm.Executor
	emitter  *events.Emitter
	observer Observer
	sealer   Sealer
	now      func() time.Time
	log      zerolog.Logger

	mu sync.Mutex
}

// New creates a Sequencer. The ledger must already hold the genesis slot.
func New(cfg Config, ledger *core.Ledger, state core.State, mempool *core.Mempool, exec *vm.Executor, emitter *events.Emitter) *Sequencer {
	if cfg.MaxSlotTxs <= 0 {
		cfg.MaxSlotTxs = DefaultMaxSlotTxs
	}
	return &Sequencer{
		cfg:     cfg,
		ledger:  ledger,
		state:   state,
		mempool: mempool,
		exec:    exec,
		emitter: emitter,
		now:     time.Now,
		log:     logging.Component("sequencer"),
	}
}

// WithObserver installs a slot observer such as a metrics sink.
func (s *Sequencer) WithObserver(o Observer) *Sequencer {
	s.observer = o
	return s
}

// WithSealer signs every produced slot. Without one, slots are unsealed.
func (s *Sequencer) WithSealer(sealer Sealer) *Sequencer {
	s.sealer = sealer
	return s
}

// WithClock replaces the wall clock programs see.
func (s *Sequencer) WithClock(now func() time.Time) *Sequencer {
	s.now = now
	return s
}

// ProduceSlot executes up to MaxSlotTxs pending transactions and commits
// them as the next slot. It returns (nil, nil, nil) when nothing is pending.
// A failing transaction gets a failed receipt; it never aborts the slot.
func (s *Sequencer) ProduceSlot() (*core.Slot, []*core.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txs := s.mempool.Pending(s.cfg.MaxSlotTxs)
	if len(txs) == 0 {
		return nil, nil, nil
	}
	start := time.Now()

	tip := s.ledger.Tip()
	var number uint64
	var prevRoot string
	if tip != nil {
		number = tip.Number + 1
		prevRoot = tip.StateRoot
	}
	clock := vm.Clock{Slot: number, UnixTimestamp: s.now().Unix()}
	snap, err := s.state.Snapshot()
	if err != nil {
		return nil, nil, errors.Wrap(err, "snapshot")
	}

	receipts := make([]*core.Receipt, 0, len(txs))
	var failed int
	for _, tx := range txs {
		res, err := s.exec.ExecuteTx(clock, tx)
		r := &core.Receipt{TxID: tx.ID, Slot: number, Status: core.TxConfirmed, Fee: res.Fee, Logs: res.Logs}
		if err != nil {
			failed++
			r.Status = core.TxFailed
			r.Error = err.Error()
			r.ErrorCode = vm.ErrorCode(err)
		}
		receipts = append(receipts, r)
	}

	slot := core.NewSlot(number, prevRoot, txs)
	slot.Timestamp = clock.UnixTimestamp
	// Root is computed before flushing so a failed AddSlot leaves nothing
	// persisted.
	slot.StateRoot = s.state.ComputeRoot()
	if s.sealer != nil {
		s.sealer.Seal(slot)
	}

	// Accounts, receipts and the slot land in one batch.
	if err := s.ledger.AddSlot(slot, receipts, s.state); err != nil {
		if revertErr := s.state.RevertToSnapshot(snap); revertErr != nil {
			s.log.Error().Err(revertErr).Msg("discard unstored slot")
		}
		return nil, nil, errors.Wrap(err, "add slot")
	}

	s.mempool.Remove(slot.TxIDs)

	s.emitter.Emit(events.Event{
		Type: events.EventSlotCommit,
		Slot: number,
		Data: map[string]any{"state_root": slot.StateRoot, "txs": len(txs), "failed": failed},
	})
	elapsed := time.Since(start)
	if s.observer != nil {
		s.observer.ObserveSlot(number, len(txs)-failed, failed, s.mempool.Size(), elapsed)
	}
	s.log.Debug().Uint64("slot", number).Int("txs", len(txs)).Int("failed", failed).
		Dur("elapsed", elapsed).Msg("slot committed")
	return slot, receipts, nil
}

// Run ticks until ctx is cancelled.
func (s *Sequencer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("sequencer started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sequencer stopped")
			return nil
		case <-ticker.C:
			if _, _, err := s.ProduceSlot(); err != nil {
				s.log.Error().Err(err).Msg("produce slot")
			}
		}
	}
}
