package compiler

import (
	"testing"

	"minic/pkg/opcode"
)

func TestConstantFolding(t *testing.T) {
	tests := []compilerTestCase{
		{
			input: "1 + 2;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 3),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "5 * 10;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 50),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "100 - 50;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 50),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "20 / 4;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 5),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "20 % 6;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 2),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "6 / 3 * 4 + 1;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 9),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			// Division by zero is left for the VM to report.
			input: "5 / 0;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 5),
				opcode.Make(opcode.OpPushConst, 0),
				opcode.Make(opcode.OpDiv),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			// A result that would carry the string tag stays unfolded.
			input: "1073741823 + 1;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 1073741823),
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpAdd),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input:           `"a"; "b" * 2;`,
			expectedStrings: []string{"a", "b"},
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, opcode.StringTag|0),
				opcode.Make(opcode.OpPop),
				opcode.Make(opcode.OpPushConst, opcode.StringTag|1),
				opcode.Make(opcode.OpPushConst, 2),
				opcode.Make(opcode.OpMul),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "int32 x = 2 * 3;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 6),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, g0),
			},
		},
	}

	runCompilerTests(t, tests)
}

func TestFoldingDoesNotCrossJumpTargets(t *testing.T) {
	tests := []compilerTestCase{
		{
			// JMP_FALSE targets the push of 3; folding it into 2 would
			// move the target past the end.
			input: "(1 && 2) + 3;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpJumpFalse, 6),
				opcode.Make(opcode.OpPushConst, 2),
				opcode.Make(opcode.OpPushConst, 3),
				opcode.Make(opcode.OpAdd),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "0 || 1 + 2;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 0),
				opcode.Make(opcode.OpJumpTrue, 6),
				opcode.Make(opcode.OpPushConst, 3),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			input: "while (1) { } 2 + 3;",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpJumpFalse, 6),
				opcode.Make(opcode.OpJump, 0),
				opcode.Make(opcode.OpPushConst, 5),
				opcode.Make(opcode.OpPop),
			},
		},
	}

	runCompilerTests(t, tests)
}
