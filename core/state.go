package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Account is a ledger record: a lamport balance, the program that owns it and
// an opaque data buffer that only the owner program may change.
type Account struct {
	Key      Pubkey `json:"key"`
	Lamports uint64 `json:"lamports"`
	Owner    Pubkey `json:"owner"`
	Data     []byte `json:"data"`
}

// Clone returns a deep copy of a.
func (a *Account) Clone() *Account {
	cp := *a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}
	return &cp
}

// IsClosed reports whether the account holds nothing and can be dropped.
func (a *Account) IsClosed() bool {
	return a.Lamports == 0
}

// AccountReader is the read-only view RPC and indexers need.
type AccountReader interface {
	// GetAccount returns the account stored under key, or a zero-value
	// system-owned account when none exists.
	GetAccount(key Pubkey) (*Account, error)
}

// Writer is the write side of a storage batch.
type Writer interface {
	Set(key, value []byte)
	Delete(key []byte)
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	AccountReader
	SetAccount(acc *Account) error
	DeleteAccount(key Pubkey) error

	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root of the current write
	// buffer merged with persisted state, without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
	// Stage adds the write buffer to w and leaves the buffer in place.
	Stage(w Writer)
	// ClearBuffer drops the write buffer and every snapshot once staged
	// writes have been persisted elsewhere.
	ClearBuffer()
}
