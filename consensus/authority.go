// Package consensus seals slots with the sequencer's identity and checks
// that a run of slots was produced by the expected leader. There is a single
// leader; a slot is final once it is sealed and stored.
package consensus

import (
	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
)

var (
	ErrUnsealed    = errors.New("slot is not sealed")
	ErrWrongLeader = errors.New("slot sealed by unexpected leader")
	ErrBrokenChain = errors.New("slot does not extend its predecessor")
)

// Authority is the local sequencer identity.
type Authority struct {
	priv   crypto.PrivateKey
	leader core.Pubkey
}

// New creates an Authority signing with priv.
func New(priv crypto.PrivateKey) *Authority {
	return &Authority{priv: priv, leader: core.PubkeyOf(priv)}
}

// Leader is the key every slot this authority seals carries.
func (a *Authority) Leader() core.Pubkey { return a.leader }

// Seal signs slot. It must be called after StateRoot is final.
func (a *Authority) Seal(slot *core.Slot) {
	slot.Sign(a.priv)
}

// VerifySeal checks the slot's signature. A zero leader accepts whichever
// key sealed the slot.
func VerifySeal(slot *core.Slot, leader core.Pubkey) error {
	if len(slot.Signature) == 0 {
		return errors.Wrapf(ErrUnsealed, "slot %d", slot.Number)
	}
	if !leader.IsZero() && slot.Leader != leader {
		return errors.Wrapf(ErrWrongLeader, "slot %d: got %s want %s", slot.Number, slot.Leader, leader)
	}
	if err := slot.Verify(); err != nil {
		return errors.Wrapf(err, "slot %d", slot.Number)
	}
	return nil
}

// ValidateSlot checks the seal and that slot directly follows prev. prev is
// nil for the genesis slot.
func ValidateSlot(slot, prev *core.Slot, leader core.Pubkey) error {
	if err := VerifySeal(slot, leader); err != nil {
		return err
	}
	if prev == nil {
		if slot.Number != 0 || slot.PrevRoot != "" {
			return errors.Wrapf(ErrBrokenChain, "slot %d has no predecessor", slot.Number)
		}
		return nil
	}
	if slot.Number != prev.Number+1 {
		return errors.Wrapf(ErrBrokenChain, "number %d after %d", slot.Number, prev.Number)
	}
	if slot.PrevRoot != prev.StateRoot {
		return errors.Wrapf(ErrBrokenChain, "slot %d prev_root %s, predecessor root %s", slot.Number, slot.PrevRoot, prev.StateRoot)
	}
	return nil
}
