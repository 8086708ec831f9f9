// Package vm executes compiled bytecode. Every table is allocated from the
// Limits when the machine is built; Run itself does not grow anything.
package vm

import (
	"errors"
	"fmt"
	"slices"

	"minic/pkg/compiler"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/opcode"
	"minic/pkg/value"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("minic.vm")

var (
	ErrStackUnderflow = errors.New("stack underflow")
	ErrOutOfBounds    = value.ErrOutOfRange
	ErrNotArray       = value.ErrNotArray
	ErrDivideByZero   = errors.New("division by zero")
	ErrBadPoolIndex   = errors.New("bad string pool index")
	ErrUnknownOpcode  = errors.New("unknown opcode")
	ErrBadOperand     = errors.New("operand out of range")
	ErrStepBudget     = errors.New("instruction budget exhausted")
)

// RuntimeError is a fatal execution error at instruction IP.
type RuntimeError struct {
	IP  int
	Op  opcode.Opcode
	Msg string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("[runtime] %s @ %d", e.Msg, e.IP)
}

func (e *RuntimeError) Unwrap() error { return e.Err }

// Frame is one activation record. Params occupy the first local slots.
type Frame struct {
	fn       int
	locals   []value.Value
	returnIP int
	base     int
}

type VM struct {
	lim     limits.Limits
	natives *native.Registry
	args    *native.Args

	instructions opcode.Instructions
	funcs        []compiler.Function
	strings      []string
	main         int

	globals []value.Value

	stack []value.Value
	sp    int // Always points to the next value. Top of stack is stack[sp-1]

	locals      []value.Value // Frames windows of Locals slots each
	frames      []Frame
	framesIndex int

	ip    int
	op    opcode.Opcode
	steps int

	lastPopped   value.Value
	returned     value.Value
	mainReturned bool

	trace    bool
	maxSteps int
}

type Option func(*VM)

// WithTrace logs every instruction at debug level.
func WithTrace() Option {
	return func(vm *VM) { vm.trace = true }
}

// WithMaxSteps stops a run after n instructions. Zero means no budget.
func WithMaxSteps(n int) Option {
	return func(vm *VM) { vm.maxSteps = n }
}

func New(bytecode *compiler.Bytecode, natives *native.Registry, lim limits.Limits, opts ...Option) (*VM, error) {
	if err := lim.Validate(); err != nil {
		return nil, err
	}

	vm := &VM{
		lim:     lim,
		natives: natives,
		globals: make([]value.Value, lim.Globals),
		stack:   make([]value.Value, lim.Stack),
		locals:  make([]value.Value, lim.Frames*lim.Locals),
		frames:  make([]Frame, lim.Frames),
	}
	for _, opt := range opts {
		opt(vm)
	}

	if err := vm.Reset(bytecode); err != nil {
		return nil, err
	}
	return vm, nil
}

func (vm *VM) currentFrame() *Frame {
	return &vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(fn int, returnIP int) (*Frame, error) {
	if vm.framesIndex >= len(vm.frames) {
		return nil, limits.Exceeded("frames", len(vm.frames))
	}
	window := vm.locals[vm.framesIndex*vm.lim.Locals : (vm.framesIndex+1)*vm.lim.Locals]
	clear(window)
	vm.frames[vm.framesIndex] = Frame{fn: fn, locals: window, returnIP: returnIP, base: vm.sp}
	vm.framesIndex++
	return &vm.frames[vm.framesIndex-1], nil
}

func (vm *VM) popFrame() Frame {
	vm.framesIndex--
	return vm.frames[vm.framesIndex]
}

func (vm *VM) push(v value.Value) error {
	if vm.sp >= len(vm.stack) {
		return limits.Exceeded("stack", len(vm.stack))
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if vm.sp <= 0 {
		return value.Value{}, ErrStackUnderflow
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

func (vm *VM) StackTop() value.Value {
	if vm.sp == 0 {
		return value.VoidValue()
	}
	return vm.stack[vm.sp-1]
}

func (vm *VM) StackDepth() int { return vm.sp }

// LastPoppedStackElem is the value most recently discarded by POP, which is
// the value of the last expression statement.
func (vm *VM) LastPoppedStackElem() value.Value { return vm.lastPopped }

// Return is main's return value, if main was called and returned.
func (vm *VM) Return() (value.Value, bool) { return vm.returned, vm.mainReturned }

func (vm *VM) Globals() []value.Value {
	return slices.Clone(vm.globals)
}

func (vm *VM) fail(err error) error {
	return &RuntimeError{IP: vm.ip, Op: vm.op, Msg: err.Error(), Err: err}
}

func (vm *VM) Run() error {
	ins := vm.instructions

	for vm.ip < len(ins) {
		if vm.maxSteps > 0 {
			if vm.steps >= vm.maxSteps {
				return vm.fail(ErrStepBudget)
			}
			vm.steps++
		}

		vm.op = opcode.Opcode(ins[vm.ip])
		def, err := opcode.Lookup(ins[vm.ip])
		if err != nil {
			return vm.fail(fmt.Errorf("%w %d", ErrUnknownOpcode, ins[vm.ip]))
		}
		if vm.ip+def.Operands >= len(ins) {
			return vm.fail(fmt.Errorf("%w: truncated %s", ErrBadOperand, def.Name))
		}
		if vm.trace {
			log.Debugf("%04d %-11s sp=%d fp=%d", vm.ip, def.Name, vm.sp, vm.framesIndex-1)
		}

		var operand uint32
		if def.Operands > 0 {
			operand = ins[vm.ip+1]
		}
		ip := vm.ip
		vm.ip += 1 + def.Operands

		if err := vm.execute(ins, ip, operand); err != nil {
			vm.ip = ip
			return vm.fail(err)
		}
	}

	return nil
}

func (vm *VM) execute(ins opcode.Instructions, ip int, operand uint32) error {
	switch vm.op {
	case opcode.OpNop:

	case opcode.OpPushConst:
		if operand&opcode.StringTag != 0 {
			idx := int(operand &^ opcode.StringTag)
			if idx >= len(vm.strings) {
				return fmt.Errorf("%w %d", ErrBadPoolIndex, idx)
			}
			return vm.push(value.Str(vm.strings[idx]))
		}
		return vm.push(value.Int32(int32(operand)))

	case opcode.OpPushVar:
		ref, err := vm.variable(opcode.Slot(operand))
		if err != nil {
			return err
		}
		return vm.push(*ref)

	case opcode.OpStoreVar:
		ref, err := vm.variable(opcode.Slot(operand))
		if err != nil {
			return err
		}
		v, err := vm.pop()
		if err != nil {
			return err
		}
		*ref = v

	case opcode.OpArrNew:
		arr, err := value.NewArray(int(operand))
		if err != nil {
			return err
		}
		return vm.push(arr)

	case opcode.OpArrLoad:
		idx, err := vm.pop()
		if err != nil {
			return err
		}
		arr, err := vm.pop()
		if err != nil {
			return err
		}
		elem, err := arr.Elem(idx.Int32())
		if err != nil {
			return err
		}
		return vm.push(value.Int32(elem))

	case opcode.OpArrStore:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		idx, err := vm.pop()
		if err != nil {
			return err
		}
		arr, err := vm.pop()
		if err != nil {
			return err
		}
		updated, err := arr.SetElem(idx.Int32(), v.Int32())
		if err != nil {
			return err
		}
		return vm.push(updated)

	case opcode.OpNativeCall:
		return vm.callNative(int(operand), int(ins[ip+2]))

	case opcode.OpCall:
		return vm.callFunction(int(operand))

	case opcode.OpRet:
		return vm.ret()

	case opcode.OpPop:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.lastPopped = v

	case opcode.OpCast:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		if t := value.Type(operand); t.Numeric() {
			v = value.Wrap(t, v.Int32())
		}
		return vm.push(v)

	case opcode.OpAdd, opcode.OpSub, opcode.OpMul, opcode.OpDiv, opcode.OpMod,
		opcode.OpXor, opcode.OpShl, opcode.OpShr, opcode.OpBitAnd, opcode.OpBitOr:
		return vm.executeBinaryOperation(vm.op)

	case opcode.OpEqual, opcode.OpNotEqual, opcode.OpLess, opcode.OpGreater,
		opcode.OpLessEqual, opcode.OpGreaterEqual, opcode.OpAnd, opcode.OpOr:
		return vm.executeComparison(vm.op)

	case opcode.OpNot:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		var n int32
		if !v.Truthy() {
			n = 1
		}
		return vm.push(value.Wrap(v.Type(), n))

	case opcode.OpNeg:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.push(value.Wrap(v.Type(), -v.Int32()))

	case opcode.OpJump:
		vm.ip = int(operand)

	case opcode.OpJumpFalse, opcode.OpJumpTrue:
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		if cond.Truthy() == (vm.op == opcode.OpJumpTrue) {
			vm.ip = int(operand)
		}

	default:
		return fmt.Errorf("%w %d", ErrUnknownOpcode, vm.op)
	}

	return nil
}

// variable resolves a PUSH_VAR/STORE_VAR operand to its storage.
func (vm *VM) variable(s opcode.Slot) (*value.Value, error) {
	idx := s.Index()
	if s.IsLocal() {
		locals := vm.currentFrame().locals
		if idx >= len(locals) {
			return nil, fmt.Errorf("%w: %s", ErrBadOperand, s)
		}
		return &locals[idx], nil
	}
	if idx >= len(vm.globals) {
		return nil, fmt.Errorf("%w: %s", ErrBadOperand, s)
	}
	return &vm.globals[idx], nil
}

func (vm *VM) executeBinaryOperation(op opcode.Opcode) error {
	right, err := vm.pop()
	if err != nil {
		return err
	}
	left, err := vm.pop()
	if err != nil {
		return err
	}

	l, r := left.Int32(), right.Int32()
	var result int32

	switch op {
	case opcode.OpAdd:
		result = l + r
	case opcode.OpSub:
		result = l - r
	case opcode.OpMul:
		result = l * r
	case opcode.OpDiv:
		if r == 0 {
			return ErrDivideByZero
		}
		result = l / r
	case opcode.OpMod:
		if r == 0 {
			return ErrDivideByZero
		}
		result = l % r
	case opcode.OpXor:
		result = l ^ r
	case opcode.OpShl:
		result = l << (uint32(r) & 31)
	case opcode.OpShr:
		result = l >> (uint32(r) & 31)
	case opcode.OpBitAnd:
		result = l & r
	case opcode.OpBitOr:
		result = l | r
	}

	// The result takes the left operand's type.
	return vm.push(value.Wrap(left.Type(), result))
}

func (vm *VM) executeComparison(op opcode.Opcode) error {
	right, err := vm.pop()
	if err != nil {
		return err
	}
	left, err := vm.pop()
	if err != nil {
		return err
	}

	l, r := left.Int32(), right.Int32()
	var result bool

	switch op {
	case opcode.OpEqual:
		result = l == r
	case opcode.OpNotEqual:
		result = l != r
	case opcode.OpLess:
		result = l < r
	case opcode.OpGreater:
		result = l > r
	case opcode.OpLessEqual:
		result = l <= r
	case opcode.OpGreaterEqual:
		result = l >= r
	case opcode.OpAnd:
		result = l != 0 && r != 0
	case opcode.OpOr:
		result = l != 0 || r != 0
	}

	return vm.push(value.Boolean(result))
}

func (vm *VM) callFunction(fi int) error {
	if fi >= len(vm.funcs) {
		return fmt.Errorf("%w: function %d", ErrBadOperand, fi)
	}
	fn := vm.funcs[fi]
	if vm.sp < fn.Params {
		return ErrStackUnderflow
	}
	if fn.Params > vm.lim.Locals {
		return limits.Exceeded("locals", vm.lim.Locals)
	}

	vm.sp -= fn.Params
	frame, err := vm.pushFrame(fi, vm.ip)
	if err != nil {
		vm.sp += fn.Params
		return err
	}
	copy(frame.locals, vm.stack[vm.sp:vm.sp+fn.Params])

	vm.ip = int(fn.Start)
	return nil
}

// ret unwinds the current frame. A frame that pushed nothing returns void.
func (vm *VM) ret() error {
	if vm.framesIndex <= 1 {
		vm.ip = len(vm.instructions)
		return nil
	}

	frame := vm.currentFrame()
	result := value.VoidValue()
	if vm.sp > frame.base {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		result = v
	}

	done := vm.popFrame()
	vm.sp = done.base
	vm.ip = done.returnIP

	// main called by the trailing CALL hands its value to the host instead
	// of leaving it on the top-level stack.
	if done.fn == vm.main && vm.framesIndex == 1 && vm.ip >= len(vm.instructions) {
		vm.returned = result
		vm.mainReturned = true
		return nil
	}
	return vm.push(result)
}

func (vm *VM) callNative(ni, argc int) error {
	entry, ok := vm.natives.At(ni)
	if !ok {
		return fmt.Errorf("%w: native %d", ErrBadOperand, ni)
	}
	if argc > vm.lim.Params {
		return limits.Exceeded("native arguments", vm.lim.Params)
	}

	vm.args.Reset(argc)
	for k := argc - 1; k >= 0; k-- {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		vm.args.Set(k, vm.nativeWord(v))
	}

	return vm.push(value.Int32(entry.Fn(vm.args)))
}

// nativeWord converts a value to a native argument. Strings are passed as
// the tagged index of a byte-identical pool entry, or -1 if there is none.
func (vm *VM) nativeWord(v value.Value) int32 {
	s, ok := v.Text()
	if !ok {
		return v.Int32()
	}
	for i, entry := range vm.strings {
		if entry == s {
			return int32(uint32(i) | opcode.StringTag)
		}
	}
	return -1
}
