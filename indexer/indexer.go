// Package indexer maintains secondary indexes over committed slots so
// clients can list escrows by depositor, or every open escrow, without
// scanning full state.
package indexer

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/events"
	"github.com/tolelom/gamescrow/logging"
	"github.com/tolelom/gamescrow/storage"
)

const (
	prefixInitialiserEscrows = "idx:initialiser:escrow:"
	prefixOpenEscrow         = "idx:open:"
	prefixOwnerGameAccounts  = "idx:owner:game:"
)

// Indexer subscribes to program events and updates lookup tables. Events
// are held back until their slot commits, so the indexes never run ahead
// of readable state.
type Indexer struct {
	db  storage.DB
	log zerolog.Logger

	mu      sync.Mutex
	pending []events.Event
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, log: logging.Component("indexer")}
	for _, typ := range []events.EventType{
		events.EventEscrowCreated,
		events.EventEscrowTaken,
		events.EventEscrowReverted,
		events.EventGameAccountInit,
	} {
		emitter.Subscribe(typ, idx.enqueue)
	}
	emitter.Subscribe(events.EventSlotCommit, idx.onSlotCommit)
	return idx
}

// EscrowsByInitialiser returns every escrow the depositor has opened,
// settled or not, in creation order.
func (idx *Indexer) EscrowsByInitialiser(initialiser core.Pubkey) ([]string, error) {
	return idx.getList(prefixInitialiserEscrows + initialiser.String())
}

// GameAccountsByOwner returns the game accounts initialised for owner.
func (idx *Indexer) GameAccountsByOwner(owner core.Pubkey) ([]string, error) {
	return idx.getList(prefixOwnerGameAccounts + owner.String())
}

// OpenEscrows returns every escrow that is neither taken nor reverted,
// sorted by address.
func (idx *Indexer) OpenEscrows() ([]string, error) {
	it := idx.db.NewIterator([]byte(prefixOpenEscrow))
	defer it.Release()
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()[len(prefixOpenEscrow):]))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (idx *Indexer) enqueue(ev events.Event) {
	idx.mu.Lock()
	idx.pending = append(idx.pending, ev)
	idx.mu.Unlock()
}

// onSlotCommit applies the held-back events of the slot in one batch.
func (idx *Indexer) onSlotCommit(ev events.Event) {
	idx.mu.Lock()
	pending := idx.pending
	idx.pending = nil
	idx.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	lists := make(map[string][]string)
	batch := idx.db.NewBatch()
	for _, p := range pending {
		if err := idx.apply(batch, lists, p); err != nil {
			idx.log.Error().Err(err).Str("event", string(p.Type)).Str("tx", p.TxID).Msg("index event")
		}
	}
	for key, ids := range lists {
		data, err := json.Marshal(ids)
		if err != nil {
			idx.log.Error().Err(err).Str("key", key).Msg("encode index list")
			continue
		}
		batch.Set([]byte(key), data)
	}
	if err := batch.Write(); err != nil {
		idx.log.Error().Err(err).Uint64("slot", ev.Slot).Msg("write index batch")
	}
}

func (idx *Indexer) apply(batch storage.Batch, lists map[string][]string, ev events.Event) error {
	str := func(k string) string { v, _ := ev.Data[k].(string); return v }
	switch ev.Type {
	case events.EventEscrowCreated:
		escrow, initialiser := str("escrow"), str("initialiser_main_account")
		if escrow == "" || initialiser == "" {
			return errors.New("escrow_created without escrow or initialiser")
		}
		batch.Set([]byte(prefixOpenEscrow+escrow), []byte(initialiser))
		return idx.appendList(lists, prefixInitialiserEscrows+initialiser, escrow)
	case events.EventEscrowTaken, events.EventEscrowReverted:
		escrow := str("escrow")
		if escrow == "" {
			return errors.Errorf("%s without escrow", ev.Type)
		}
		batch.Delete([]byte(prefixOpenEscrow + escrow))
	case events.EventGameAccountInit:
		game, owner := str("game_account"), str("owner")
		if game == "" || owner == "" {
			return errors.New("game_account_initialized without account or owner")
		}
		return idx.appendList(lists, prefixOwnerGameAccounts+owner, game)
	}
	return nil
}

// appendList adds value to the list under key, staging the result in lists
// so several events in one slot build on each other.
func (idx *Indexer) appendList(lists map[string][]string, key, value string) error {
	ids, ok := lists[key]
	if !ok {
		var err error
		if ids, err = idx.getList(key); err != nil {
			return err
		}
	}
	lists[key] = append(ids, value)
	return nil
}

func (idx *Indexer) getList(key string) ([]string, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, errors.Wrap(err, "indexer unmarshal")
	}
	return ids, nil
}
