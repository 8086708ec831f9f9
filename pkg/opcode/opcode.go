package opcode

import (
	"fmt"
	"strings"
)

type Opcode uint32

// Instructions is the flat bytecode buffer. Every opcode and every operand
// occupies one 32-bit word.
type Instructions []uint32

// Offset is a position in an Instructions buffer.
type Offset int

const (
	// OpNop does nothing
	OpNop Opcode = iota
	// OpPushConst pushes an int32 literal, or a pool string when StringTag is set
	OpPushConst
	// OpPushVar pushes a variable; see Slot for the operand encoding
	OpPushVar
	// OpStoreVar pops the top of the stack into a variable
	OpStoreVar
	// OpArrNew pushes a zeroed array of the operand's length
	OpArrNew
	// OpArrLoad pops index and array and pushes the element
	OpArrLoad
	// OpArrStore pops value, index and array and pushes the updated array
	OpArrStore
	// OpNativeCall calls a host function: native index, argument count
	OpNativeCall
	// OpCall calls a user function by function table index
	OpCall
	// OpRet returns from the current frame
	OpRet
	// OpPop discards the top of the stack
	OpPop
	// OpCast re-wraps the top of the stack to the operand's value type
	OpCast
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpXor
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpEqual
	OpNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	// OpNot is logical negation wrapped to the operand's type
	OpNot
	// OpNeg is arithmetic negation wrapped to the operand's type
	OpNeg
	// OpAnd and OpOr are the eager logical operators
	OpAnd
	OpOr
	// OpJump jumps to an absolute offset
	OpJump
	// OpJumpFalse pops the condition and jumps when it is false
	OpJumpFalse
	// OpJumpTrue pops the condition and jumps when it is true
	OpJumpTrue
)

const (
	// StringTag marks a PUSH_CONST operand as a string pool index. Integer
	// literals with this bit set collide with it.
	StringTag uint32 = 1 << 30
	// localFlag marks a variable operand as a slot of the current frame.
	localFlag uint32 = 1 << 31
)

// Slot is a PUSH_VAR/STORE_VAR operand: the high bit selects the current
// frame's locals, otherwise the operand indexes the globals.
type Slot uint32

func GlobalSlot(index int) Slot { return Slot(uint32(index)) }
func LocalSlot(index int) Slot { return Slot(uint32(index) | localFlag) }

func (s Slot) IsLocal() bool { return uint32(s)&localFlag != 0 }
func (s Slot) Index() int { return int(uint32(s) &^ localFlag) }

func (s Slot) String() string {
	if s.IsLocal() {
		return fmt.Sprintf("local[%d]", s.Index())
	}
	return fmt.Sprintf("global[%d]", s.Index())
}

type Definition struct {
	Name     string
	Operands int
}

var definitions = map[Opcode]*Definition{
	OpNop:          {"NOP", 0},
	OpPushConst:    {"PUSH_CONST", 1},
	OpPushVar:      {"PUSH_VAR", 1},
	OpStoreVar:     {"STORE_VAR", 1},
	OpArrNew:       {"ARR_NEW", 1},
	OpArrLoad:      {"ARR_LOAD", 0},
	OpArrStore:     {"ARR_STORE", 0},
	OpNativeCall:   {"NATIVE_CALL", 2},
	OpCall:         {"CALL", 1},
	OpRet:          {"RET", 0},
	OpPop:          {"POP", 0},
	OpCast:         {"CAST", 1},
	OpAdd:          {"ADD", 0},
	OpSub:          {"SUB", 0},
	OpMul:          {"MUL", 0},
	OpDiv:          {"DIV", 0},
	OpMod:          {"MOD", 0},
	OpXor:          {"XOR", 0},
	OpShl:          {"SHL", 0},
	OpShr:          {"SHR", 0},
	OpBitAnd:       {"BAND", 0},
	OpBitOr:        {"BOR", 0},
	OpEqual:        {"EQ", 0},
	OpNotEqual:     {"NE", 0},
	OpLess:         {"LT", 0},
	OpGreater:      {"GT", 0},
	OpLessEqual:    {"LE", 0},
	OpGreaterEqual: {"GE", 0},
	OpNot:          {"NOT", 0},
	OpNeg:          {"NEG", 0},
	OpAnd:          {"AND", 0},
	OpOr:           {"OR", 0},
	OpJump:         {"JMP", 1},
	OpJumpFalse:    {"JMP_FALSE", 1},
	OpJumpTrue:     {"JMP_TRUE", 1},
}

func Lookup(op uint32) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}
	return def, nil
}

func Make(op Opcode, operands ...uint32) []uint32 {
	def, ok := definitions[op]
	if !ok {
		return []uint32{}
	}

	instruction := make([]uint32, 1+def.Operands)
	instruction[0] = uint32(op)
	copy(instruction[1:], operands)

	return instruction
}

// ReadOperands returns the operands following an opcode and how many words
// they occupy. A truncated buffer yields the operands that are present.
func ReadOperands(def *Definition, ins []uint32) ([]uint32, int) {
	n := def.Operands
	if n > len(ins) {
		n = len(ins)
	}
	operands := make([]uint32, n)
	copy(operands, ins[:n])
	return operands, def.Operands
}

// IsJump reports whether op's single operand is a code offset.
func IsJump(op Opcode) bool {
	return op == OpJump || op == OpJumpFalse || op == OpJumpTrue
}

func (ins Instructions) String() string {
	var out strings.Builder

	i := 0
	for i < len(ins) {
		def, err := Lookup(ins[i])
		if err != nil {
			fmt.Fprintf(&out, "%04d ERROR: %s\n", i, err)
			i++
			continue
		}

		operands, read := ReadOperands(def, ins[i+1:])
		fmt.Fprintf(&out, "%04d %s\n", i, ins.fmtInstruction(Opcode(ins[i]), def, operands))

		i += 1 + read
	}

	return out.String()
}

func (ins Instructions) fmtInstruction(op Opcode, def *Definition, operands []uint32) string {
	if len(operands) != def.Operands {
		return fmt.Sprintf("%s <truncated>", def.Name)
	}

	switch op {
	case OpPushConst:
		if operands[0]&StringTag != 0 {
			return fmt.Sprintf("%s str#%d", def.Name, operands[0]&^StringTag)
		}
		return fmt.Sprintf("%s %d", def.Name, int32(operands[0]))
	case OpPushVar, OpStoreVar:
		return fmt.Sprintf("%s %s", def.Name, Slot(operands[0]))
	}

	var out strings.Builder
	out.WriteString(def.Name)
	for _, o := range operands {
		fmt.Fprintf(&out, " %d", o)
	}
	return out.String()
}

func (ins Opcode) String() string {
	def, ok := definitions[ins]
	if !ok {
		return fmt.Sprintf("Opcode(%d)", ins)
	}
	return def.Name
}
