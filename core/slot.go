package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/gamescrow/crypto"
)

// Slot records one sequencer round: the transactions it settled, in order,
// and the state root after applying them. Timestamp is in unix seconds.
// Hash and Signature are set when the leader seals the slot.
type Slot struct {
	Number    uint64   `json:"number"`
	PrevRoot  string   `json:"prev_root"`
	StateRoot string   `json:"state_root"`
	TxRoot    string   `json:"tx_root"`
	Timestamp int64    `json:"timestamp"`
	TxIDs     []string `json:"tx_ids"`
	Leader    Pubkey   `json:"leader"`
	Hash      string   `json:"hash,omitempty"`
	Signature []byte   `json:"signature,omitempty"`
}

// slotHeader is the part of a slot covered by its hash.
type slotHeader struct {
	Number    uint64 `json:"number"`
	PrevRoot  string `json:"prev_root"`
	StateRoot string `json:"state_root"`
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"`
	Leader    Pubkey `json:"leader"`
}

// ComputeHash returns the hash of the slot header.
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (s *Slot) ComputeHash() string {
	data, err := json.Marshal(slotHeader{
		Number:    s.Number,
		PrevRoot:  s.PrevRoot,
		StateRoot: s.StateRoot,
		TxRoot:    s.TxRoot,
		Timestamp: s.Timestamp,
		Leader:    s.Leader,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Leader and Hash and signs the hash with priv.
func (s *Slot) Sign(priv crypto.PrivateKey) {
	s.Leader = PubkeyOf(priv)
	s.Hash = s.ComputeHash()
	s.Signature = crypto.Sign(priv, []byte(s.Hash))
}

// Verify checks that Hash matches the header and that Leader signed it.
func (s *Slot) Verify() error {
	if s.Hash == "" || s.Hash != s.ComputeHash() {
		return fmt.Errorf("slot %d hash does not match its header", s.Number)
	}
	return crypto.Verify(s.Leader, []byte(s.Hash), s.Signature)
}

// TxStatus is the settlement outcome of a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending" // in the mempool, not yet settled
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Receipt is what a submitter polls for after sending a transaction.
// ErrorCode carries the program's typed error code when one is available.
type Receipt struct {
	TxID      string   `json:"tx_id"`
	Slot      uint64   `json:"slot"`
	Status    TxStatus `json:"status"`
	Fee       uint64   `json:"fee"`
	Error     string   `json:"error,omitempty"`
	ErrorCode uint32   `json:"error_code,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

// ComputeTxRoot builds a deterministic root hash from transaction IDs.
func ComputeTxRoot(ids []string) string {
	if len(ids) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var buf []byte
	for _, id := range ids {
		buf = append(buf, id...)
	}
	return crypto.Hash(buf)
}

// NewSlot creates a slot record for the given transactions. StateRoot is
// filled in by the sequencer after execution.
func NewSlot(number uint64, prevRoot string, txs []*Transaction) *Slot {
	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return &Slot{
		Number:    number,
		PrevRoot:  prevRoot,
		TxRoot:    ComputeTxRoot(ids),
		Timestamp: time.Now().Unix(),
		TxIDs:     ids,
	}
}
