package compiler

import (
	"testing"

	"minic/pkg/opcode"
)

func TestConditionals(t *testing.T) {
	tests := []compilerTestCase{
		{
			input: "if (true) { 10; } 3333;",
			expectedInstructions: []opcode.Instructions{
				// 0000
				opcode.Make(opcode.OpPushConst, 1),
				// 0002
				opcode.Make(opcode.OpCast, castBool),
				// 0004
				opcode.Make(opcode.OpJumpFalse, 9),
				// 0006
				opcode.Make(opcode.OpPushConst, 10),
				// 0008
				opcode.Make(opcode.OpPop),
				// 0009
				opcode.Make(opcode.OpPushConst, 3333),
				// 0011
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "if (1) { 10; } else { 20; } 3333;",
			expectedInstructions: []opcode.Instructions{
				// 0000
				opcode.Make(opcode.OpPushConst, 1),
				// 0002
				opcode.Make(opcode.OpJumpFalse, 9),
				// 0004
				opcode.Make(opcode.OpPushConst, 10),
				// 0006
				opcode.Make(opcode.OpPop),
				// 0007
				opcode.Make(opcode.OpJump, 12),
				// 0009
				opcode.Make(opcode.OpPushConst, 20),
				// 0011
				opcode.Make(opcode.OpPop),
				// 0012
				opcode.Make(opcode.OpPushConst, 3333),
				// 0014
				opcode.Make(opcode.OpPop),
			},
		},
		{
			// Bodies need no braces.
			input: "if (1) 10; else 20;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpJumpFalse, 9),
				opcode.Make(opcode.OpPushConst, 10),
				opcode.Make(opcode.OpPop),
				opcode.Make(opcode.OpJump, 12),
				opcode.Make(opcode.OpPushConst, 20),
				opcode.Make(opcode.OpPop),
			},
		},
	}

	runCompilerTests(t, tests)
}

func TestWhileLoops(t *testing.T) {
	tests := []compilerTestCase{
		{
			input: "while (1) { 2; }",
			expectedInstructions: []opcode.Instructions{
				// 0000
				opcode.Make(opcode.OpPushConst, 1),
				// 0002
				opcode.Make(opcode.OpJumpFalse, 9),
				// 0004
				opcode.Make(opcode.OpPushConst, 2),
				// 0006
				opcode.Make(opcode.OpPop),
				// 0007
				opcode.Make(opcode.OpJump, 0),
			},
		},
		{
			input: "while (1) { break; }",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpJumpFalse, 8),
				opcode.Make(opcode.OpJump, 8),
				opcode.Make(opcode.OpJump, 0),
			},
		},
		{
			input: "while (1) { continue; }",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpJumpFalse, 8),
				opcode.Make(opcode.OpJump, 0),
				opcode.Make(opcode.OpJump, 0),
			},
		},
	}

	runCompilerTests(t, tests)
}

func TestForLoops(t *testing.T) {
	tests := []compilerTestCase{
		{
			input: "for (;;) { break; }",
			expectedInstructions: []opcode.Instructions{
				// 0000 cond, jump to body
				opcode.Make(opcode.OpJump, 4),
				// 0002 post
				opcode.Make(opcode.OpJump, 0),
				// 0004 body
				opcode.Make(opcode.OpJump, 8),
				// 0006
				opcode.Make(opcode.OpJump, 2),
			},
		},
		{
			input: "for (int32 i = 0; i < 2; i += 1) { i; }",
			expectedInstructions: []opcode.Instructions{
				// 0000 init
				opcode.Make(opcode.OpPushConst, 0),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, l0),
				// 0006 cond
				opcode.Make(opcode.OpPushVar, l0),
				opcode.Make(opcode.OpPushConst, 2),
				opcode.Make(opcode.OpLess),
				opcode.Make(opcode.OpJumpFalse, 31),
				// 0013
				opcode.Make(opcode.OpJump, 26),
				// 0015 post
				opcode.Make(opcode.OpPushVar, l0),
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpAdd),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, l0),
				opcode.Make(opcode.OpJump, 6),
				// 0026 body
				opcode.Make(opcode.OpPushVar, l0),
				opcode.Make(opcode.OpPop),
				opcode.Make(opcode.OpJump, 15),
			},
		},
		{
			input: "for (;;) { continue; }",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpJump, 4),
				opcode.Make(opcode.OpJump, 0),
				opcode.Make(opcode.OpJump, 2),
				opcode.Make(opcode.OpJump, 2),
			},
		},
	}

	runCompilerTests(t, tests)
}

func TestLoopVariableIsScoped(t *testing.T) {
	_, err := compileDefault("for (int32 i = 0; i < 2; i += 1) { } i;")
	if err == nil {
		t.Fatal("loop variable leaked out of the for statement")
	}
}
