package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcutil/base58"

	"github.com/tolelom/gamescrow/crypto"
)

// AccountMeta names an account an instruction touches and the access it needs.
type AccountMeta struct {
	Pubkey     Pubkey `json:"pubkey"`
	IsSigner   bool   `json:"is_signer"`
	IsWritable bool   `json:"is_writable"`
}

// Instruction is one program invocation: the program, the ordered account
// list it expects and its opaque input bytes.
type Instruction struct {
	ProgramID Pubkey        `json:"program_id"`
	Accounts  []AccountMeta `json:"accounts"`
	Data      []byte        `json:"data"`
}

// TxSignature pairs a signer with its base58-encoded ed25519 signature.
type TxSignature struct {
	Signer    Pubkey `json:"signer"`
	Signature string `json:"signature"`
}

// Transaction is the atomic unit of work: every instruction applies or none
// does. FeePayer must be among the signers.
type Transaction struct {
	ID           string        `json:"id"`
	FeePayer     Pubkey        `json:"fee_payer"`
	Instructions []Instruction `json:"instructions"`
	Timestamp    int64         `json:"timestamp"`
	Signatures   []TxSignature `json:"signatures"`
}

// signingBody holds the fields covered by the signatures.
type signingBody struct {
	FeePayer     Pubkey        `json:"fee_payer"`
	Instructions []Instruction `json:"instructions"`
	Timestamp    int64         `json:"timestamp"`
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(feePayer Pubkey, ixs ...Instruction) *Transaction {
	return &Transaction{
		FeePayer:     feePayer,
		Instructions: ixs,
		Timestamp:    time.Now().UnixNano(),
	}
}

// Message returns the bytes every signer signs.
// Returns nil if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Message() []byte {
	data, err := json.Marshal(signingBody{
		FeePayer:     tx.FeePayer,
		Instructions: tx.Instructions,
		Timestamp:    tx.Timestamp,
	})
	if err != nil {
		return nil
	}
	return data
}

// Hash returns the deterministic hash of the signed message.
func (tx *Transaction) Hash() string {
	return crypto.Hash(tx.Message())
}

// Sign adds a signature for each key and sets ID. Signing the same key twice
// replaces the earlier signature.
func (tx *Transaction) Sign(keys ...crypto.PrivateKey) {
	msg := tx.Message()
	for _, k := range keys {
		sig := TxSignature{Signer: PubkeyOf(k), Signature: base58.Encode(crypto.Sign(k, msg))}
		replaced := false
		for i := range tx.Signatures {
			if tx.Signatures[i].Signer == sig.Signer {
				tx.Signatures[i] = sig
				replaced = true
			}
		}
		if !replaced {
			tx.Signatures = append(tx.Signatures, sig)
		}
	}
	tx.ID = crypto.Hash(msg)
}

// Signers returns the set of keys that carry a signature. It does not verify
// them; call Verify first.
func (tx *Transaction) Signers() map[Pubkey]bool {
	out := make(map[Pubkey]bool, len(tx.Signatures))
	for _, s := range tx.Signatures {
		out[s.Signer] = true
	}
	return out
}

// Verify checks every signature, that the fee payer signed, and that every
// account an instruction marks as signer is covered by a signature.
func (tx *Transaction) Verify() error {
	if len(tx.Instructions) == 0 {
		return errors.New("transaction has no instructions")
	}
	if len(tx.Signatures) == 0 {
		return errors.New("transaction is unsigned")
	}
	msg := tx.Message()
	for _, s := range tx.Signatures {
		sig := base58.Decode(s.Signature)
		if err := crypto.Verify(s.Signer, msg, sig); err != nil {
			return fmt.Errorf("signer %s: %w", s.Signer, err)
		}
	}
	signers := tx.Signers()
	if !signers[tx.FeePayer] {
		return fmt.Errorf("fee payer %s did not sign", tx.FeePayer)
	}
	for i, ix := range tx.Instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !signers[meta.Pubkey] {
				return fmt.Errorf("instruction %d: missing signature for %s", i, meta.Pubkey)
			}
		}
	}
	return nil
}
