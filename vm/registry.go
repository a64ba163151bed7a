package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/gamescrow/core"
)

// Program is an on-ledger program. Process receives the instruction's
// accounts in the order the caller listed them and mutates them in place;
// the executor writes them back only when every invariant still holds.
type Program interface {
	ID() core.Pubkey
	Name() string
	Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// InstructionNamer is implemented by programs that can label raw
// instruction data, for logs and metrics.
type InstructionNamer interface {
	InstructionName(data []byte) string
}

// Registry maps program ids to programs. Safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	programs map[core.Pubkey]Program
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{programs: make(map[core.Pubkey]Program)}
}

// Register adds p. Panics on a duplicate program id.
func (r *Registry) Register(p Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.programs[p.ID()]; exists {
		panic(fmt.Sprintf("vm: program already registered for id %s", p.ID()))
	}
	r.programs[p.ID()] = p
}

// Lookup returns the program registered under id.
func (r *Registry) Lookup(id core.Pubkey) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[id]
	return p, ok
}

// Programs lists every registered program sorted by name.
func (r *Registry) Programs() []Program {
	r.mu.RLock()
	out := make([]Program, 0, len(r.programs))
	for _, p := range r.programs {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

var globalRegistry = NewRegistry()

// Register adds a program to the global registry.
// Program packages call this from init() to self-register.
func Register(p Program) {
	globalRegistry.Register(p)
}

// DefaultRegistry returns the registry programs self-register into.
func DefaultRegistry() *Registry {
	return globalRegistry
}

// instructionName labels data for p, falling back to the program name.
func instructionName(p Program, data []byte) string {
	if n, ok := p.(InstructionNamer); ok {
		return n.InstructionName(data)
	}
	return p.Name()
}
