package storage

import "github.com/pkg/errors"

// DB is the generic key-value store interface. Implementations must be safe
// for concurrent use: RPC readers query the DB while the sequencer commits.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks key-value pairs matching a prefix.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Batch buffers writes that Write applies atomically.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Reset()
	Write() error
}

// Open opens the backend named by kind ("leveldb" or "bolt") at path.
func Open(kind, path string) (DB, error) {
	switch kind {
	case "", "leveldb":
		return NewLevelDB(path)
	case "bolt", "bbolt":
		return NewBoltDB(path)
	default:
		return nil, errors.Errorf("unknown db backend %q", kind)
	}
}
