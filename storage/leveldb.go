package storage

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/tolelom/gamescrow/core"
)

// Account reads are point lookups by key, so a bloom filter spares most
// table reads for accounts that do not exist yet.
var levelOptions = &opt.Options{Filter: filter.NewBloomFilter(10)}

// Slot commits are fsynced; single-key writes are not.
var syncWrite = &opt.WriteOptions{Sync: true}

// LevelDB is the default DB backend.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB directory at path. A corrupted
// manifest is recovered once before giving up.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, levelOptions)
	if lerrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, levelOptions)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb %q", path)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error { return l.db.Put(key, value, nil) }

func (l *LevelDB) Delete(key []byte) error { return l.db.Delete(key, nil) }

// NewIterator reads from an implicit snapshot, so a concurrent slot commit
// is either fully visible or not at all.
func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) NewBatch() Batch { return &levelBatch{db: l.db} }

func (l *LevelDB) Close() error { return l.db.Close() }

type levelBatch struct {
	db    *leveldb.DB
	batch leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Reset()                { b.batch.Reset() }
func (b *levelBatch) Write() error          { return b.db.Write(&b.batch, syncWrite) }
