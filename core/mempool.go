package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultMempoolSize bounds the pool when no explicit limit is configured.
const DefaultMempoolSize = 10_000

// Accepted timestamp window, in nanoseconds relative to the pool's clock.
const (
	maxTxAge    = int64(time.Hour)
	maxTxFuture = int64(5 * time.Minute)
)

var (
	ErrMempoolFull    = errors.New("mempool full")
	ErrDuplicateTx    = errors.New("tx already in pool")
	ErrAlreadySettled = errors.New("tx already settled")
	ErrTxExpired      = errors.New("tx timestamp outside accepted window")
)

// Mempool holds signed transactions waiting for the sequencer, in
// submission order. Safe for concurrent use.
type Mempool struct {
	mu      sync.RWMutex
	maxSize int
	byID    map[string]*Transaction
	queue   []*Transaction
	settled func(id string) bool
	now     func() time.Time
}

// NewMempool creates an empty mempool holding at most maxSize transactions;
// maxSize <= 0 selects DefaultMempoolSize.
func NewMempool(maxSize int) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMempoolSize
	}
	return &Mempool{
		maxSize: maxSize,
		byID:    make(map[string]*Transaction),
		now:     time.Now,
	}
}

// WithSettledCheck rejects transactions whose ID already has a receipt, so a
// resubmitted signed transaction cannot execute twice.
func (m *Mempool) WithSettledCheck(settled func(id string) bool) *Mempool {
	m.settled = settled
	return m
}

// Add verifies tx and appends it to the queue.
func (m *Mempool) Add(tx *Transaction) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx: %w", err)
	}
	if id := tx.Hash(); tx.ID != id {
		return fmt.Errorf("tx id %q does not match message hash %q", tx.ID, id)
	}
	now := m.now().UnixNano()
	if now-tx.Timestamp > maxTxAge || tx.Timestamp-now > maxTxFuture {
		return fmt.Errorf("%w: %s", ErrTxExpired, time.Unix(0, tx.Timestamp).UTC().Format(time.RFC3339))
	}
	if m.settled != nil && m.settled(tx.ID) {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, tx.ID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[tx.ID]; exists {
		return ErrDuplicateTx
	}
	if len(m.queue) >= m.maxSize {
		return ErrMempoolFull
	}
	m.byID[tx.ID] = tx
	m.queue = append(m.queue, tx)
	return nil
}

// Get returns a pending transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.byID[id]
	return tx, ok
}

// Pending returns up to n transactions from the head of the queue. The
// sequencer applies them in exactly this order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.queue) {
		n = len(m.queue)
	}
	return append([]*Transaction(nil), m.queue[:n]...)
}

// Remove drops settled transactions.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.byID, id)
	}
	kept := m.queue[:0]
	for _, tx := range m.queue {
		if _, ok := m.byID[tx.ID]; ok {
			kept = append(kept, tx)
		}
	}
	for i := len(kept); i < len(m.queue); i++ {
		m.queue[i] = nil
	}
	m.queue = kept
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue)
}
