package vm

import (
	"bytes"
	"math/bits"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/events"
)

// Runtime errors. These abort the transaction like program errors do but
// carry no program error code.
var (
	ErrUnknownProgram      = errors.New("unknown program")
	ErrFeePayer            = errors.New("fee payer cannot pay fee")
	ErrReadonlyModified    = errors.New("read-only account modified")
	ErrExternalDataChange  = errors.New("data of an account not owned by the program changed")
	ErrExternalLamportDebt = errors.New("lamports debited from an account not owned by the program")
	ErrOwnerChange         = errors.New("illegal owner change")
	ErrDataLengthChange    = errors.New("account data length changed")
	ErrUnbalanced          = errors.New("instruction changed the total lamport supply")
)

// ErrorCode extracts a program error code from err, or 0 when err carries
// none.
func ErrorCode(err error) uint32 {
	var coded interface{ ErrorCode() uint32 }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return 0
}

// Observer receives one callback per processed instruction.
type Observer interface {
	ObserveInstruction(program, instruction string, err error, elapsed time.Duration)
}

// Config holds the economic parameters of the runtime.
type Config struct {
	FeePerSignature uint64
	Rent            Rent
}

// TxResult describes an executed transaction, successful or not.
type TxResult struct {
	Fee  uint64
	Logs []string
}

// Executor applies transactions to the state one at a time. Every
// transaction runs under a state snapshot: either all of its instructions
// take effect or none do, including the fee.
type Executor struct {
	state    core.State
	emitter  *events.Emitter
	registry *Registry
	observer Observer
	cfg      Config
}

// NewExecutor creates an Executor over state using the global program
// registry.
func NewExecutor(state core.State, emitter *events.Emitter, cfg Config) *Executor {
	return &Executor{state: state, emitter: emitter, registry: globalRegistry, cfg: cfg}
}

// WithRegistry replaces the program registry.
func (e *Executor) WithRegistry(r *Registry) *Executor {
	e.registry = r
	return e
}

// WithObserver installs an instruction observer such as a metrics sink.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

// Rent returns the rent parameters programs see.
func (e *Executor) Rent() Rent { return e.cfg.Rent }

// Fee returns the fee tx pays.
func (e *Executor) Fee(tx *core.Transaction) uint64 {
	return e.cfg.FeePerSignature * uint64(len(tx.Signatures))
}

// ExecuteTx verifies and executes tx with snapshot/rollback. Buffered
// program events are published only on success.
func (e *Executor) ExecuteTx(clock Clock, tx *core.Transaction) (*TxResult, error) {
	res := &TxResult{}
	if err := tx.Verify(); err != nil {
		return res, errors.Wrap(err, "signature")
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return res, errors.Wrap(err, "snapshot")
	}

	var evs []events.Event
	if err := e.applyTx(clock, tx, res, &evs); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return res, errors.Wrapf(err, "revert snapshot after tx failure (revert: %v)", revertErr)
		}
		res.Fee = 0
		log.Debug().Str("component", "vm").Str("tx", tx.ID).Err(err).Msg("transaction failed")
		e.emitter.Emit(events.Event{
			Type: events.EventTxFailed,
			TxID: tx.ID,
			Slot: clock.Slot,
			Data: map[string]any{"error": err.Error(), "code": ErrorCode(err)},
		})
		return res, err
	}

	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
	e.emitter.Emit(events.Event{
		Type: events.EventTxExecuted,
		TxID: tx.ID,
		Slot: clock.Slot,
		Data: map[string]any{"fee_payer": tx.FeePayer.String(), "fee": res.Fee, "instructions": len(tx.Instructions)},
	})
	return res, nil
}

// applyTx charges the fee, then runs every instruction in order.
func (e *Executor) applyTx(clock Clock, tx *core.Transaction, res *TxResult, evs *[]events.Event) error {
	fee := e.Fee(tx)
	payer, err := e.state.GetAccount(tx.FeePayer)
	if err != nil {
		return errors.Wrap(err, "load fee payer")
	}
	if payer.Owner != core.SystemProgramID {
		return errors.Wrapf(ErrFeePayer, "%s is owned by %s", tx.FeePayer, payer.Owner)
	}
	if payer.Lamports < fee {
		return errors.Wrapf(ErrFeePayer, "have %d need %d", payer.Lamports, fee)
	}
	payer.Lamports -= fee
	if err := e.state.SetAccount(payer); err != nil {
		return err
	}
	res.Fee = fee

	signers := tx.Signers()
	for i, ix := range tx.Instructions {
		if err := e.runInstruction(clock, tx.ID, ix, signers, res, evs); err != nil {
			return errors.Wrapf(err, "instruction %d", i)
		}
	}
	return nil
}

func (e *Executor) runInstruction(clock Clock, txID string, ix core.Instruction, signers map[core.Pubkey]bool, res *TxResult, evs *[]events.Event) error {
	prog, ok := e.registry.Lookup(ix.ProgramID)
	if !ok {
		return errors.Wrapf(ErrUnknownProgram, "%s", ix.ProgramID)
	}

	// Repeated keys share one AccountInfo so a program sees its own writes.
	infos := make([]*AccountInfo, len(ix.Accounts))
	byKey := make(map[core.Pubkey]*AccountInfo, len(ix.Accounts))
	before := make(map[core.Pubkey]*core.Account, len(ix.Accounts))
	var order []core.Pubkey
	for i, meta := range ix.Accounts {
		if info, ok := byKey[meta.Pubkey]; ok {
			info.IsWritable = info.IsWritable || meta.IsWritable
			infos[i] = info
			continue
		}
		acc, err := e.state.GetAccount(meta.Pubkey)
		if err != nil {
			return errors.Wrapf(err, "load account %s", meta.Pubkey)
		}
		before[meta.Pubkey] = acc.Clone()
		info := &AccountInfo{
			Key:        meta.Pubkey,
			Lamports:   acc.Lamports,
			Owner:      acc.Owner,
			Data:       append([]byte(nil), acc.Data...),
			IsSigner:   signers[meta.Pubkey],
			IsWritable: meta.IsWritable,
		}
		byKey[meta.Pubkey] = info
		infos[i] = info
		order = append(order, meta.Pubkey)
	}

	var ixLogs []string
	var ixEvents []events.Event
	ctx := &InvokeContext{
		ProgramID: prog.ID(),
		TxID:      txID,
		Clock:     clock,
		Rent:      e.cfg.Rent,
		logs:      &ixLogs,
		events:    &ixEvents,
	}
	start := time.Now()
	err := prog.Process(ctx, infos, ix.Data)
	if err == nil {
		err = checkInvariants(prog.ID(), order, before, byKey)
	}
	if e.observer != nil {
		e.observer.ObserveInstruction(prog.Name(), instructionName(prog, ix.Data), err, time.Since(start))
	}
	res.Logs = append(res.Logs, ixLogs...)
	if err != nil {
		return errors.Wrap(err, prog.Name())
	}

	for _, key := range order {
		info := byKey[key]
		if !accountChanged(before[key], info) {
			continue
		}
		acc := &core.Account{Key: key, Lamports: info.Lamports, Owner: info.Owner, Data: info.Data}
		if err := e.state.SetAccount(acc); err != nil {
			return errors.Wrapf(err, "store account %s", key)
		}
	}
	*evs = append(*evs, ixEvents...)
	return nil
}

func accountChanged(pre *core.Account, post *AccountInfo) bool {
	return pre.Lamports != post.Lamports || pre.Owner != post.Owner || !bytes.Equal(pre.Data, post.Data)
}

// checkInvariants enforces the account ownership rules for one instruction
// run by programID.
func checkInvariants(programID core.Pubkey, order []core.Pubkey, before map[core.Pubkey]*core.Account, after map[core.Pubkey]*AccountInfo) error {
	var preHi, preLo, postHi, postLo uint64
	for _, key := range order {
		pre, post := before[key], after[key]
		var c uint64
		preLo, c = bits.Add64(preLo, pre.Lamports, 0)
		preHi += c
		postLo, c = bits.Add64(postLo, post.Lamports, 0)
		postHi += c

		if !accountChanged(pre, post) {
			continue
		}
		if !post.IsWritable {
			return errors.Wrapf(ErrReadonlyModified, "%s", key)
		}
		if pre.Owner != post.Owner {
			if pre.Owner != programID || !allZero(post.Data) {
				return errors.Wrapf(ErrOwnerChange, "%s", key)
			}
		}
		if len(pre.Data) != len(post.Data) && programID != core.SystemProgramID {
			return errors.Wrapf(ErrDataLengthChange, "%s", key)
		}
		if !bytes.Equal(pre.Data, post.Data) && pre.Owner != programID {
			return errors.Wrapf(ErrExternalDataChange, "%s", key)
		}
		if post.Lamports < pre.Lamports && pre.Owner != programID {
			return errors.Wrapf(ErrExternalLamportDebt, "%s", key)
		}
	}
	if preHi != postHi || preLo != postLo {
		return ErrUnbalanced
	}
	return nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
