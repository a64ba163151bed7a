package storage

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
)

const (
	prefixSlot    = "slot:"
	prefixReceipt = "rcpt:"
	keyTip        = "ledger:tip"
)

// SlotStore implements core.SlotStore on any DB.
type SlotStore struct {
	db DB
}

// NewSlotStore wraps db as a core.SlotStore.
func NewSlotStore(db DB) *SlotStore {
	return &SlotStore{db: db}
}

func slotKey(n uint64) []byte {
	// Zero-padded so slots iterate in numeric order.
	return []byte(fmt.Sprintf("%s%020d", prefixSlot, n))
}

func (s *SlotStore) GetSlot(n uint64) (*core.Slot, error) {
	data, err := s.db.Get(slotKey(n))
	if err != nil {
		return nil, err
	}
	var slot core.Slot
	if err := json.Unmarshal(data, &slot); err != nil {
		return nil, errors.Wrapf(err, "decode slot %d", n)
	}
	return &slot, nil
}

func (s *SlotStore) GetReceipt(txID string) (*core.Receipt, error) {
	data, err := s.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(err, "decode receipt %s", txID)
	}
	return &r, nil
}

func (s *SlotStore) GetTip() (uint64, bool, error) {
	val, err := s.db.Get([]byte(keyTip))
	if errors.Is(err, core.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		return 0, false, errors.Wrap(err, "parse tip")
	}
	return n, true, nil
}

func (s *SlotStore) CommitSlot(slot *core.Slot, receipts []*core.Receipt, stage func(core.Writer)) error {
	batch := s.db.NewBatch()
	if stage != nil {
		stage(batch)
	}
	data, err := json.Marshal(slot)
	if err != nil {
		return err
	}
	batch.Set(slotKey(slot.Number), data)
	for _, r := range receipts {
		rd, err := json.Marshal(r)
		if err != nil {
			return err
		}
		batch.Set([]byte(prefixReceipt+r.TxID), rd)
	}
	batch.Set([]byte(keyTip), []byte(strconv.FormatUint(slot.Number, 10)))
	return batch.Write()
}
