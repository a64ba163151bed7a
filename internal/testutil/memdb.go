// Package testutil holds in-memory stand-ins for the storage layer. It is
// imported only by tests.
package testutil

import (
	"bytes"
	"sort"
	"sync"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/storage"
)

// MemDB is a storage.DB kept in a map. Values are copied on the way in and
// out so callers cannot alias stored bytes.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.data[string(key)]; ok {
		return bytes.Clone(v), nil
	}
	return nil, core.ErrNotFound
}

func (m *MemDB) Set(key, value []byte) error {
	b := m.NewBatch()
	b.Set(key, value)
	return b.Write()
}

func (m *MemDB) Delete(key []byte) error {
	b := m.NewBatch()
	b.Delete(key)
	return b.Write()
}

// NewIterator walks a point-in-time copy of the keys under prefix in
// byte order.
func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	snap := m.Dump(prefix)
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &memIter{keys: keys, vals: snap, pos: -1}
}

func (m *MemDB) NewBatch() storage.Batch { return &memBatch{db: m} }

func (m *MemDB) Close() error { return nil }

// Dump copies every entry under prefix. Tests compare dumps to prove a
// failed operation left storage untouched.
func (m *MemDB) Dump(prefix []byte) map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte)
	for k, v := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			out[k] = bytes.Clone(v)
		}
	}
	return out
}

// Len returns the number of stored keys.
func (m *MemDB) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

type memBatch struct {
	db  *MemDB
	ops []memOp
}

type memOp struct {
	key    string
	value  []byte
	delete bool
}

func (b *memBatch) Set(key, value []byte) {
	b.ops = append(b.ops, memOp{key: string(key), value: bytes.Clone(value)})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, memOp{key: string(key), delete: true})
}

func (b *memBatch) Reset() { b.ops = b.ops[:0] }

// Write applies every queued op under one lock.
func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, op.key)
			continue
		}
		if op.value == nil {
			op.value = []byte{}
		}
		b.db.data[op.key] = op.value
	}
	return nil
}

type memIter struct {
	keys []string
	vals map[string][]byte
	pos  int
}

func (it *memIter) Next() bool    { it.pos++; return it.pos < len(it.keys) }
func (it *memIter) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIter) Value() []byte { return it.vals[it.keys[it.pos]] }
func (it *memIter) Release()      {}
func (it *memIter) Error() error  { return nil }
