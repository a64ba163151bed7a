// Package events is the in-process pub/sub bus between the runtime, the
// sequencer and read-side consumers such as the indexer.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType labels what happened.
type EventType string

const (
	EventSlotCommit      EventType = "slot_committed"
	EventTxExecuted      EventType = "tx_executed"
	EventTxFailed        EventType = "tx_failed"
	EventLamportsMoved   EventType = "lamports_transferred"
	EventAccountCreated  EventType = "account_created"
	EventGameAccountInit EventType = "game_account_initialized"
	EventAssetAdded      EventType = "asset_added"
	EventEscrowCreated   EventType = "escrow_created"
	EventEscrowTaken     EventType = "escrow_taken"
	EventEscrowReverted  EventType = "escrow_reverted"
)

// Event carries a typed payload emitted after a state change has been
// applied. Events raised inside a transaction are only delivered once the
// whole transaction succeeded.
type Event struct {
	Type EventType      `json:"type"`
	TxID string         `json:"tx_id,omitempty"`
	Slot uint64         `json:"slot"`
	Data map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a synchronous pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to its subscribers synchronously. A panicking handler is
// logged and skipped so it cannot halt the sequencer.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("component", "events").Str("event", string(ev.Type)).
						Interface("panic", r).Msg("handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
