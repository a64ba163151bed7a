package storage

import (
	"bytes"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/tolelom/gamescrow/core"
)

var boltBucket = []byte("gamescrow")

// BoltDB implements DB on a single bbolt bucket. Every batch is one bolt
// read-write transaction.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (or creates) a bbolt file at path.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(key)
		if v == nil {
			return core.ErrNotFound
		}
		// bolt values are only valid inside the transaction.
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (b *BoltDB) Set(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (b *BoltDB) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

// NewIterator snapshots the matching pairs inside a read transaction.
func (b *BoltDB) NewIterator(prefix []byte) Iterator {
	it := &sliceIterator{idx: -1}
	it.err = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			it.keys = append(it.keys, append([]byte(nil), k...))
			it.vals = append(it.vals, append([]byte(nil), v...))
		}
		return nil
	})
	return it
}

func (b *BoltDB) NewBatch() Batch {
	return &boltBatch{db: b.db}
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

type boltOp struct {
	key   []byte
	value []byte // nil means delete
}

type boltBatch struct {
	db  *bolt.DB
	ops []boltOp
}

func (bb *boltBatch) Set(key, value []byte) {
	bb.ops = append(bb.ops, boltOp{key: append([]byte(nil), key...), value: append([]byte{}, value...)})
}

func (bb *boltBatch) Delete(key []byte) {
	bb.ops = append(bb.ops, boltOp{key: append([]byte(nil), key...)})
}

func (bb *boltBatch) Reset() { bb.ops = nil }

func (bb *boltBatch) Write() error {
	return bb.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)
		for _, op := range bb.ops {
			var err error
			if op.value == nil {
				err = bucket.Delete(op.key)
			} else {
				err = bucket.Put(op.key, op.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// sliceIterator walks pairs collected up front.
type sliceIterator struct {
	keys, vals [][]byte
	idx        int
	err        error
}

func (it *sliceIterator) Next() bool    { it.idx++; return it.err == nil && it.idx < len(it.keys) }
func (it *sliceIterator) Key() []byte   { return it.keys[it.idx] }
func (it *sliceIterator) Value() []byte { return it.vals[it.idx] }
func (it *sliceIterator) Release()      {}
func (it *sliceIterator) Error() error  { return it.err }
