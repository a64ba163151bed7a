package vm

import (
	"fmt"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/events"
)

// AccountInfo is the mutable view of an account a program receives.
// IsSigner is true only when the transaction carries a valid signature for
// Key; IsWritable comes from the instruction's account metas.
type AccountInfo struct {
	Key        core.Pubkey
	Lamports   uint64
	Owner      core.Pubkey
	Data       []byte
	IsSigner   bool
	IsWritable bool
}

// Clock is the time source given to programs.
type Clock struct {
	Slot          uint64 `json:"slot"`
	UnixTimestamp int64  `json:"unix_timestamp"`
}

// InvokeContext is passed to Program.Process. Events and log lines raised
// through it are buffered and only published when the whole transaction
// succeeds.
type InvokeContext struct {
	ProgramID core.Pubkey
	TxID      string
	Clock     Clock
	Rent      Rent

	logs   *[]string
	events *[]events.Event
}

// Log appends a program log line to the transaction's receipt.
func (c *InvokeContext) Log(format string, args ...any) {
	if c.logs == nil {
		return
	}
	*c.logs = append(*c.logs, fmt.Sprintf(format, args...))
}

// Emit buffers an event for delivery after the transaction commits.
func (c *InvokeContext) Emit(typ events.EventType, data map[string]any) {
	if c.events == nil {
		return
	}
	*c.events = append(*c.events, events.Event{
		Type: typ,
		TxID: c.TxID,
		Slot: c.Clock.Slot,
		Data: data,
	})
}

// NewTestContext returns a context that records logs and events into the
// given slices. It is meant for exercising a Program outside the executor.
func NewTestContext(programID core.Pubkey, clock Clock, rent Rent, logs *[]string, evs *[]events.Event) *InvokeContext {
	return &InvokeContext{ProgramID: programID, Clock: clock, Rent: rent, logs: logs, events: evs}
}
