// Copyright 2025 Certen Protocol
//
// Command Registry - Central Registry for Finalize Opcode Executors
// Manages pluggable evaluation routines for the finalize command set

package finalize

import (
	"fmt"
	"sync"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// ExecContext is the per-command evaluation environment: the current
// transition's register file, the program it belongs to, and the
// overlay handle its Store/Remove/Get commands read and write through.
type ExecContext struct {
	Program  ledgertypes.ProgramID
	Registers *RegisterFile
	Handle   StateHandle
}

// Executor evaluates one command. It returns the label to jump to for
// Branch commands that are taken, or "" to fall through to the next
// command in sequence.
type Executor func(ctx *ExecContext, cmd ledgertypes.Command) (jump string, err error)

// CommandRegistry manages opcode-to-executor bindings. Opcode dispatch
// is kept pluggable, mirroring pkg/strategy.Registry's mutex-guarded map
// pattern, so new finalize commands can be added without touching the
// interpreter's run loop.
type CommandRegistry struct {
	mu        sync.RWMutex
	executors map[ledgertypes.Opcode]Executor
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{executors: make(map[ledgertypes.Opcode]Executor)}
}

// Register binds an opcode to its executor.
func (r *CommandRegistry) Register(op ledgertypes.Opcode, exec Executor) error {
	if exec == nil {
		return fmt.Errorf("finalize: nil executor for opcode %s", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[op]; exists {
		return fmt.Errorf("%w: %s", ErrOpcodeExists, op)
	}
	r.executors[op] = exec
	return nil
}

// Lookup returns the executor registered for op.
func (r *CommandRegistry) Lookup(op ledgertypes.Opcode) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, exists := r.executors[op]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	return exec, nil
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *CommandRegistry
)

// DefaultRegistry returns the package-wide CommandRegistry, populated
// with the standard finalize command set on first use.
func DefaultRegistry() *CommandRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewCommandRegistry()
		registerStandardCommands(defaultRegistry)
	})
	return defaultRegistry
}
