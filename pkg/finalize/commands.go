// Copyright 2025 Certen Protocol

package finalize

import (
	"fmt"

	"github.com/certen/speculator-chain/pkg/ledgertypes"
)

// registerStandardCommands binds the finalize command set spec.md §4.2
// requires (Store) and the arithmetic/control-flow commands
// SPEC_FULL.md §4.2 supplements from original_source/synthesizer.
func registerStandardCommands(r *CommandRegistry) {
	must := func(op ledgertypes.Opcode, exec Executor) {
		if err := r.Register(op, exec); err != nil {
			panic(err) // only reachable if the same opcode is registered twice
		}
	}

	must(ledgertypes.OpcodeStore, execStore)
	must(ledgertypes.OpcodeRemove, execRemove)
	must(ledgertypes.OpcodeGet, execGet)
	must(ledgertypes.OpcodeGetOrUse, execGetOrUse)
	must(ledgertypes.OpcodeContains, execContains)
	must(ledgertypes.OpcodeAdd, execAdd)
	must(ledgertypes.OpcodeSub, execSub)
	must(ledgertypes.OpcodeIsEq, execIsEq)
	must(ledgertypes.OpcodeIsNeq, execIsNeq)
	must(ledgertypes.OpcodePosition, execPosition)
	must(ledgertypes.OpcodeBranchEq, execBranchEq)
	must(ledgertypes.OpcodeBranchNeq, execBranchNeq)
}

func execStore(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	key, err := ctx.Registers.Resolve(cmd.KeyOperand)
	if err != nil {
		return "", err
	}
	val, err := ctx.Registers.Resolve(cmd.ValueOperand)
	if err != nil {
		return "", err
	}
	return "", ctx.Handle.SetValue(ctx.Program, cmd.Mapping, key, val)
}

func execRemove(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	key, err := ctx.Registers.Resolve(cmd.KeyOperand)
	if err != nil {
		return "", err
	}
	return "", ctx.Handle.RemoveValue(ctx.Program, cmd.Mapping, key)
}

func execGet(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	key, err := ctx.Registers.Resolve(cmd.KeyOperand)
	if err != nil {
		return "", err
	}
	val, found, err := ctx.Handle.GetValue(ctx.Program, cmd.Mapping, key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("finalize: get: no value for key in mapping %s", cmd.Mapping)
	}
	ctx.Registers.Set(cmd.Destination, val)
	return "", nil
}

func execGetOrUse(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	key, err := ctx.Registers.Resolve(cmd.KeyOperand)
	if err != nil {
		return "", err
	}
	val, found, err := ctx.Handle.GetValue(ctx.Program, cmd.Mapping, key)
	if err != nil {
		return "", err
	}
	if !found {
		val, err = ctx.Registers.Resolve(cmd.ValueOperand)
		if err != nil {
			return "", err
		}
	}
	ctx.Registers.Set(cmd.Destination, val)
	return "", nil
}

func execContains(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	key, err := ctx.Registers.Resolve(cmd.KeyOperand)
	if err != nil {
		return "", err
	}
	found, err := ctx.Handle.ContainsValue(ctx.Program, cmd.Mapping, key)
	if err != nil {
		return "", err
	}
	ctx.Registers.Set(cmd.Destination, ledgertypes.BoolValue(found))
	return "", nil
}

func resolveUints(regs *RegisterFile, ops [2]ledgertypes.Operand) (uint64, uint64, error) {
	a, err := regs.Resolve(ops[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := regs.Resolve(ops[1])
	if err != nil {
		return 0, 0, err
	}
	av, err := a.AsUint64()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNotIntegral, err)
	}
	bv, err := b.AsUint64()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrNotIntegral, err)
	}
	return av, bv, nil
}

func execAdd(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	a, b, err := resolveUints(ctx.Registers, cmd.Operands)
	if err != nil {
		return "", err
	}
	sum := a + b
	if sum < a {
		return "", fmt.Errorf("finalize: add overflow (%d + %d)", a, b)
	}
	ctx.Registers.Set(cmd.Destination, ledgertypes.UintValue(sum))
	return "", nil
}

func execSub(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	a, b, err := resolveUints(ctx.Registers, cmd.Operands)
	if err != nil {
		return "", err
	}
	if b > a {
		return "", fmt.Errorf("finalize: sub underflow (%d - %d)", a, b)
	}
	ctx.Registers.Set(cmd.Destination, ledgertypes.UintValue(a-b))
	return "", nil
}

func execIsEq(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	a, err := ctx.Registers.Resolve(cmd.Operands[0])
	if err != nil {
		return "", err
	}
	b, err := ctx.Registers.Resolve(cmd.Operands[1])
	if err != nil {
		return "", err
	}
	ctx.Registers.Set(cmd.Destination, ledgertypes.BoolValue(a.Equal(b)))
	return "", nil
}

func execIsNeq(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	a, err := ctx.Registers.Resolve(cmd.Operands[0])
	if err != nil {
		return "", err
	}
	b, err := ctx.Registers.Resolve(cmd.Operands[1])
	if err != nil {
		return "", err
	}
	ctx.Registers.Set(cmd.Destination, ledgertypes.BoolValue(!a.Equal(b)))
	return "", nil
}

func execPosition(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	return "", nil
}

func execBranchEq(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	a, b, err := branchOperands(ctx, cmd)
	if err != nil {
		return "", err
	}
	if a.Equal(b) {
		return cmd.Target, nil
	}
	return "", nil
}

func execBranchNeq(ctx *ExecContext, cmd ledgertypes.Command) (string, error) {
	a, b, err := branchOperands(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !a.Equal(b) {
		return cmd.Target, nil
	}
	return "", nil
}

func branchOperands(ctx *ExecContext, cmd ledgertypes.Command) (ledgertypes.Value, ledgertypes.Value, error) {
	a, err := ctx.Registers.Resolve(cmd.Operands[0])
	if err != nil {
		return ledgertypes.Value{}, ledgertypes.Value{}, err
	}
	b, err := ctx.Registers.Resolve(cmd.Operands[1])
	if err != nil {
		return ledgertypes.Value{}, ledgertypes.Value{}, err
	}
	return a, b, nil
}
