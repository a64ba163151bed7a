package escrow

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
)

// DuplicatePolicy decides whether AddAsset may store an id the account
// already holds.
type DuplicatePolicy int

const (
	DuplicatesAllowed DuplicatePolicy = iota
	DuplicatesRejected
)

func (p DuplicatePolicy) String() string {
	if p == DuplicatesRejected {
		return "reject"
	}
	return "allow"
}

// ParseDuplicatePolicy accepts "allow" or "reject"; empty means allow.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return DuplicatesAllowed, nil
	case "reject":
		return DuplicatesRejected, nil
	}
	return DuplicatesAllowed, fmt.Errorf("unknown duplicate asset policy %q", s)
}

// InitializeGameAccount claims an uninitialised buffer for owner. The
// buffer must be all zero in the tag byte; anything else has been claimed.
func InitializeGameAccount(buf []byte, owner core.Pubkey) (*GameAccount, error) {
	if len(buf) != GameAccountSpan {
		return nil, errors.Wrapf(ErrLayout, "game account buffer is %d bytes, want %d", len(buf), GameAccountSpan)
	}
	if tag := TagOf(buf); tag != AccountTypeUninitialized {
		return nil, errors.Wrapf(ErrAlreadyInitialized, "buffer holds a %s account", tag)
	}
	return &GameAccount{Owner: owner}, nil
}

// AddAsset stores id in the first empty owned slot.
func (g *GameAccount) AddAsset(id uint64, policy DuplicatePolicy) (int, error) {
	if id == 0 {
		return -1, errors.Wrap(ErrMalformedInstruction, "asset id 0 marks an empty slot")
	}
	if policy == DuplicatesRejected && (g.Owns(id) || g.Rents(id)) {
		return -1, errors.Wrapf(ErrDuplicateAsset, "asset %d", id)
	}
	slot := indexOf(&g.Owned, 0)
	if slot < 0 {
		return -1, errors.Wrapf(ErrCapacityExceeded, "owned slots full adding asset %d", id)
	}
	g.Owned[slot] = id
	return slot, nil
}

// MoveToRented moves id from owned into the first empty rented slot. The
// account is left untouched on error.
func (g *GameAccount) MoveToRented(id uint64) error {
	return move(&g.Owned, &g.Rented, id)
}

// MoveToOwned moves id from rented back into the first empty owned slot.
// No instruction calls it today: Take is terminal and Revert only cancels
// untaken escrows, so a rented asset never returns through this program.
func (g *GameAccount) MoveToOwned(id uint64) error {
	return move(&g.Rented, &g.Owned, id)
}

// ReceiveRented records id as borrowed into the first empty rented slot.
func (g *GameAccount) ReceiveRented(id uint64) error {
	if id == 0 {
		return errors.Wrap(ErrMalformedInstruction, "asset id 0 marks an empty slot")
	}
	slot := indexOf(&g.Rented, 0)
	if slot < 0 {
		return errors.Wrapf(ErrCapacityExceeded, "rented slots full receiving asset %d", id)
	}
	g.Rented[slot] = id
	return nil
}

func move(from, to *[AssetSlots]uint64, id uint64) error {
	if id == 0 {
		return errors.Wrap(ErrMalformedInstruction, "asset id 0 marks an empty slot")
	}
	src := indexOf(from, id)
	if src < 0 {
		return errors.Wrapf(ErrAssetNotFound, "asset %d", id)
	}
	dst := indexOf(to, 0)
	if dst < 0 {
		return errors.Wrapf(ErrCapacityExceeded, "no free slot for asset %d", id)
	}
	from[src] = 0
	to[dst] = id
	return nil
}

// Owns reports whether id sits in an owned slot.
func (g *GameAccount) Owns(id uint64) bool { return id != 0 && indexOf(&g.Owned, id) >= 0 }

// Rents reports whether id sits in a rented slot.
func (g *GameAccount) Rents(id uint64) bool { return id != 0 && indexOf(&g.Rented, id) >= 0 }

// OwnedAssets lists the non-empty owned slots in slot order.
func (g *GameAccount) OwnedAssets() []uint64 { return nonEmpty(&g.Owned) }

// RentedAssets lists the non-empty rented slots in slot order.
func (g *GameAccount) RentedAssets() []uint64 { return nonEmpty(&g.Rented) }

func indexOf(slots *[AssetSlots]uint64, id uint64) int {
	for i, v := range slots {
		if v == id {
			return i
		}
	}
	return -1
}

func nonEmpty(slots *[AssetSlots]uint64) []uint64 {
	out := make([]uint64, 0, AssetSlots)
	for _, v := range slots {
		if v != 0 {
			out = append(out, v)
		}
	}
	return out
}
