package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/crypto"
)

// registerPrefix records a state-key prefix so that ComputeRoot covers it.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

var statePrefixes []string

var prefixAccount = registerPrefix("acct:")

// overlayEntry is a buffered write; a tombstone marks a delete.
type overlayEntry struct {
	value     []byte
	tombstone bool
}

// journalEntry remembers what a key held in the overlay before a write, so
// a snapshot can be undone without copying the buffer.
type journalEntry struct {
	key     string
	prev    overlayEntry
	existed bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// overlay, journal-based snapshots, and deterministic state-root
// computation. It is not safe for concurrent use; the sequencer is its only
// writer and readers use a separate StateDB whose overlay stays empty.
type StateDB struct {
	db        DB
	overlay   map[string]overlayEntry
	journal   []journalEntry
	snapshots []int // journal length at each snapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{db: db, overlay: make(map[string]overlayEntry)}
}

func (s *StateDB) get(key string) ([]byte, error) {
	if e, ok := s.overlay[key]; ok {
		if e.tombstone {
			return nil, core.ErrNotFound
		}
		return e.value, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) write(key string, e overlayEntry) {
	prev, existed := s.overlay[key]
	if len(s.snapshots) > 0 {
		s.journal = append(s.journal, journalEntry{key: key, prev: prev, existed: existed})
	}
	s.overlay[key] = e
}

// ---- Account ----

// GetAccount returns a copy of the stored account, or an empty
// system-owned account when key has never been funded.
func (s *StateDB) GetAccount(key core.Pubkey) (*core.Account, error) {
	data, err := s.get(prefixAccount + key.String())
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Key: key, Owner: core.SystemProgramID}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load account %s", key)
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, errors.Wrapf(err, "decode account %s", key)
	}
	return &acc, nil
}

// SetAccount stores acc. A closed account is deleted instead.
func (s *StateDB) SetAccount(acc *core.Account) error {
	if acc.IsClosed() {
		return s.DeleteAccount(acc.Key)
	}
	data, err := json.Marshal(acc)
	if err != nil {
		return err
	}
	s.write(prefixAccount+acc.Key.String(), overlayEntry{value: data})
	return nil
}

func (s *StateDB) DeleteAccount(key core.Pubkey) error {
	s.write(prefixAccount+key.String(), overlayEntry{tombstone: true})
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot marks the current overlay and returns an ID for
// RevertToSnapshot.
func (s *StateDB) Snapshot() (int, error) {
	s.snapshots = append(s.snapshots, len(s.journal))
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot undoes every write made since snapshot id and drops it
// together with every later snapshot.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return errors.Errorf("invalid snapshot id %d", id)
	}
	mark := s.snapshots[id]
	for i := len(s.journal) - 1; i >= mark; i-- {
		j := s.journal[i]
		if j.existed {
			s.overlay[j.key] = j.prev
		} else {
			delete(s.overlay, j.key)
		}
	}
	s.journal = s.journal[:mark]
	s.snapshots = s.snapshots[:id]
	return nil
}

// merged returns persisted state overlaid with the write buffer.
func (s *StateDB) merged() map[string][]byte {
	out := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			out[string(it.Key())] = append([]byte(nil), it.Value()...)
		}
		it.Release()
	}
	for k, e := range s.overlay {
		if e.tombstone {
			delete(out, k)
		} else {
			out[k] = e.value
		}
	}
	return out
}

// ComputeRoot returns the deterministic hash of every account: the sorted
// key-value pairs of merged state, each length-prefixed, hashed together.
// It does not flush or modify state.
func (s *StateDB) ComputeRoot() string {
	entries := s.merged()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	writeField := func(b []byte) {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	for _, k := range keys {
		writeField([]byte(k))
		writeField(entries[k])
	}
	return crypto.Hash(buf.Bytes())
}

// Commit flushes the overlay to the DB in one batch, then clears it along
// with the journal and every snapshot.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	s.Stage(batch)
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "write state batch")
	}
	s.ClearBuffer()
	return nil
}

// Stage copies the overlay into w. Keys are staged in sorted order.
func (s *StateDB) Stage(w core.Writer) {
	keys := make([]string, 0, len(s.overlay))
	for k := range s.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if e := s.overlay[k]; e.tombstone {
			w.Delete([]byte(k))
		} else {
			w.Set([]byte(k), e.value)
		}
	}
}

// ClearBuffer drops the overlay, the journal and every snapshot.
func (s *StateDB) ClearBuffer() {
	s.overlay = make(map[string]overlayEntry)
	s.journal = nil
	s.snapshots = nil
}

// Accounts returns every committed account whose owner is owner. It reads
// only persisted state.
func (s *StateDB) Accounts(owner core.Pubkey) ([]*core.Account, error) {
	it := s.db.NewIterator([]byte(prefixAccount))
	defer it.Release()
	var out []*core.Account
	for it.Next() {
		var acc core.Account
		if err := json.Unmarshal(it.Value(), &acc); err != nil {
			return nil, errors.Wrapf(err, "decode %s", it.Key())
		}
		if acc.Owner == owner {
			out = append(out, &acc)
		}
	}
	return out, it.Error()
}
