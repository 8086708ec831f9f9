package vm

import (
	"fmt"
	"slices"

	"minic/pkg/compiler"
	"minic/pkg/native"
	"minic/pkg/value"
)

// Reset loads bytecode into the VM for a fresh run, reusing the tables
// allocated by New.
func (vm *VM) Reset(bytecode *compiler.Bytecode) error {
	if err := vm.checkBytecode(bytecode); err != nil {
		return err
	}

	vm.instructions = bytecode.Instructions
	vm.funcs = bytecode.Funcs
	vm.strings = bytecode.Strings
	vm.main = bytecode.Main
	vm.args = native.NewArgs(vm.lim.Params, vm.strings)

	clear(vm.globals)
	clear(vm.stack)
	vm.sp = 0

	vm.framesIndex = 0
	if _, err := vm.pushFrame(-1, len(vm.instructions)); err != nil {
		return err
	}

	vm.ip = 0
	vm.op = 0
	vm.steps = 0
	vm.lastPopped = value.VoidValue()
	vm.returned = value.VoidValue()
	vm.mainReturned = false
	return nil
}

// checkBytecode rejects programs that do not fit this machine or were
// compiled against a different native table.
func (vm *VM) checkBytecode(bc *compiler.Bytecode) error {
	if bc == nil {
		return fmt.Errorf("vm: nil bytecode")
	}
	if names := vm.natives.Names(); !slices.Equal(names, bc.Natives) {
		return fmt.Errorf("vm: program expects %d natives %v, host provides %v", len(bc.Natives), bc.Natives, names)
	}
	if bc.Globals > vm.lim.Globals {
		return fmt.Errorf("vm: program needs %d globals, limit is %d", bc.Globals, vm.lim.Globals)
	}
	if bc.MainLocals > vm.lim.Locals {
		return fmt.Errorf("vm: program needs %d top-level locals, limit is %d", bc.MainLocals, vm.lim.Locals)
	}
	for _, fn := range bc.Funcs {
		if fn.Locals > vm.lim.Locals {
			return fmt.Errorf("vm: %s needs %d locals, limit is %d", fn.Name, fn.Locals, vm.lim.Locals)
		}
	}
	return nil
}
