// Package escrow implements the game-asset escrow program: fixed-layout
// game accounts holding owned and rented asset ids, and escrow records
// that lock lamports against an asset until a taker settles them or the
// depositor reverts.
package escrow

import (
	"sync/atomic"

	"github.com/tolelom/gamescrow/core"
	"github.com/tolelom/gamescrow/vm"
)

// ProgramID is the address the escrow program is deployed under.
var ProgramID = core.ProgramID("gamescrow")

// Default is the instance registered with the runtime.
var Default = &Program{}

func init() {
	vm.Register(Default)
}

// Program is the escrow program. Its only setting is the duplicate asset
// policy, which may be changed while the node runs.
type Program struct {
	policy atomic.Int32
}

// New returns a Program using policy for AddAsset.
func New(policy DuplicatePolicy) *Program {
	p := &Program{}
	p.SetDuplicatePolicy(policy)
	return p
}

func (p *Program) ID() core.Pubkey { return ProgramID }
func (p *Program) Name() string    { return "escrow" }

// InstructionName implements vm.InstructionNamer.
func (p *Program) InstructionName(data []byte) string {
	if len(data) == 0 {
		return "invalid"
	}
	return Opcode(data[0]).String()
}

// DuplicatePolicy returns the current AddAsset policy.
func (p *Program) DuplicatePolicy() DuplicatePolicy {
	return DuplicatePolicy(p.policy.Load())
}

// SetDuplicatePolicy changes the AddAsset policy.
func (p *Program) SetDuplicatePolicy(policy DuplicatePolicy) {
	p.policy.Store(int32(policy))
}
