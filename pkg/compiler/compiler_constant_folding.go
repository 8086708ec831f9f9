package compiler

import "minic/pkg/opcode"

type foldFunc func(a, b int64) (int64, bool)

var foldable = map[opcode.Opcode]foldFunc{
	opcode.OpAdd: func(a, b int64) (int64, bool) { return a + b, true },
	opcode.OpSub: func(a, b int64) (int64, bool) { return a - b, true },
	opcode.OpMul: func(a, b int64) (int64, bool) { return a * b, true },
	opcode.OpDiv: func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	},
	opcode.OpMod: func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a % b, true
	},
}

// foldConstants rewrites PUSH_CONST a; PUSH_CONST b; <op> into a single
// PUSH_CONST when op is about to be emitted. It reports whether it did.
// Both operands and the result must be plain integers below the string tag,
// and no jump target may fall between the two pushes.
func (c *Compiler) foldConstants(op opcode.Opcode) bool {
	fold, ok := foldable[op]
	if !ok || c.err != nil || len(c.recent) < 2 {
		return false
	}

	prev := c.recent[len(c.recent)-2]
	last := c.recent[len(c.recent)-1]
	if prev.Opcode != opcode.OpPushConst || last.Opcode != opcode.OpPushConst {
		return false
	}
	if prev.Position < c.barrier {
		return false
	}

	a := c.instructions[prev.Position+1]
	b := c.instructions[last.Position+1]
	if a >= opcode.StringTag || b >= opcode.StringTag {
		return false
	}

	result, ok := fold(int64(a), int64(b))
	if !ok || result < 0 || result >= int64(opcode.StringTag) {
		return false
	}

	c.instructions = c.instructions[:prev.Position]
	c.recent = c.recent[:len(c.recent)-2]
	c.emit(opcode.OpPushConst, uint32(result))
	return true
}
