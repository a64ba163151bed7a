package core

import (
	"fmt"
	"sync"
)

// SlotStore is the persistence interface used by Ledger.
// Implementations live in the storage package.
type SlotStore interface {
	GetSlot(number uint64) (*Slot, error)
	GetReceipt(txID string) (*Receipt, error)
	// GetTip returns the latest committed slot number; ok is false on a
	// fresh ledger.
	GetTip() (number uint64, ok bool, err error)
	// CommitSlot atomically writes the slot, its receipts, the new tip and
	// whatever stage adds to the same batch. stage may be nil.
	CommitSlot(slot *Slot, receipts []*Receipt, stage func(Writer)) error
}

// Ledger tracks the sequence of committed slots and their receipts.
type Ledger struct {
	mu    sync.RWMutex
	store SlotStore
	tip   *Slot
}

// NewLedger returns a Ledger backed by store.
// Call Init() to load an existing tip from storage.
func NewLedger(store SlotStore) *Ledger {
	return &Ledger{store: store}
}

// Init loads the persisted tip from the slot store.
func (l *Ledger) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok, err := l.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if !ok {
		return nil
	}
	tip, err := l.store.GetSlot(n)
	if err != nil {
		return fmt.Errorf("load tip slot %d: %w", n, err)
	}
	l.tip = tip
	return nil
}

// AddSlot validates numbering and root linkage, then persists the slot with
// its receipts and advances the tip. When state is non-nil its write buffer
// lands in the same batch, so a slot is never stored without its accounts.
func (l *Ledger) AddSlot(slot *Slot, receipts []*Receipt, state State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.tip != nil {
		if slot.Number != l.tip.Number+1 {
			return fmt.Errorf("slot %d does not follow tip %d", slot.Number, l.tip.Number)
		}
		if slot.PrevRoot != l.tip.StateRoot {
			return fmt.Errorf("prev_root mismatch: got %s want %s", slot.PrevRoot, l.tip.StateRoot)
		}
	}
	var stage func(Writer)
	if state != nil {
		stage = state.Stage
	}
	if err := l.store.CommitSlot(slot, receipts, stage); err != nil {
		return fmt.Errorf("commit slot: %w", err)
	}
	if state != nil {
		state.ClearBuffer()
	}
	l.tip = slot
	return nil
}

// GetSlot returns a committed slot by number.
func (l *Ledger) GetSlot(n uint64) (*Slot, error) {
	return l.store.GetSlot(n)
}

// GetReceipt returns the receipt of a settled transaction.
func (l *Ledger) GetReceipt(txID string) (*Receipt, error) {
	return l.store.GetReceipt(txID)
}

// HasReceipt reports whether txID has been settled. Storage errors count as
// not settled.
func (l *Ledger) HasReceipt(txID string) bool {
	_, err := l.store.GetReceipt(txID)
	return err == nil
}

// Tip returns the latest slot, or nil for a fresh ledger.
func (l *Ledger) Tip() *Slot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tip
}

// Height returns the number of the latest slot (0 for a fresh ledger).
func (l *Ledger) Height() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.tip == nil {
		return 0
	}
	return l.tip.Number
}
