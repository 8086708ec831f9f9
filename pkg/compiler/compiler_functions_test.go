package compiler

import (
	"testing"

	"minic/pkg/limits"
	"minic/pkg/opcode"
	"minic/pkg/value"
)

func compileDefault(input string) (*Bytecode, error) {
	return Compile(input, nil, limits.Default())
}

func TestFunctions(t *testing.T) {
	tests := []compilerTestCase{
		{
			input: "func int32 add(int32 a, int32 b){ return a+b; } func int32 main(){ return add(2,3); }",
			expectedInstructions: []opcode.Instructions{
				// 0000
				opcode.Make(opcode.OpJump, 11),
				// 0002 add
				opcode.Make(opcode.OpPushVar, l0),
				opcode.Make(opcode.OpPushVar, l1),
				opcode.Make(opcode.OpAdd),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpRet),
				// 0010
				opcode.Make(opcode.OpRet),
				// 0011
				opcode.Make(opcode.OpJump, 23),
				// 0013 main
				opcode.Make(opcode.OpPushConst, 2),
				opcode.Make(opcode.OpPushConst, 3),
				opcode.Make(opcode.OpCall, 0),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpRet),
				// 0022
				opcode.Make(opcode.OpRet),
				// 0023
				opcode.Make(opcode.OpCall, 1),
			},
		},
		{
			input: "func main() { }",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpJump, 3),
				opcode.Make(opcode.OpRet),
				opcode.Make(opcode.OpCall, 0),
			},
		},
		{
			input: "func f() { } call f();",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpJump, 3),
				opcode.Make(opcode.OpRet),
				opcode.Make(opcode.OpCall, 0),
				opcode.Make(opcode.OpPop),
			},
		},
		{
			// Locals follow the parameters in the frame.
			input: "func f(int32 a) { int32 b = a; }",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpJump, 9),
				opcode.Make(opcode.OpPushVar, l0),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, l1),
				opcode.Make(opcode.OpRet),
			},
		},
		{
			input: "int32 g = 0; func f() { g = 1; }",
			expectedInstructions: []opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 0),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, g0),
				opcode.Make(opcode.OpJump, 15),
				opcode.Make(opcode.OpPushConst, 1),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, g0),
				opcode.Make(opcode.OpRet),
			},
		},
	}

	runCompilerTests(t, tests)
}

func TestFunctionTable(t *testing.T) {
	bc, err := compileDefault("func int32 add(int32 a, int32 b){ int32 c = a + b; return c; } func int32 main(){ return add(2,3); }")
	if err != nil {
		t.Fatalf("compiler error: %s", err)
	}

	if len(bc.Funcs) != 2 {
		t.Fatalf("wrong number of functions. want=2, got=%d", len(bc.Funcs))
	}
	add := bc.Funcs[0]
	if add.Name != "add" || add.Start != 2 || add.Params != 2 || add.Locals != 3 || add.Return != value.I32 {
		t.Errorf("wrong add entry: %+v", add)
	}
	if bc.Main != 1 {
		t.Errorf("wrong main index. want=1, got=%d", bc.Main)
	}
}

func TestNoMain(t *testing.T) {
	bc, err := compileDefault("int32 x = 1;")
	if err != nil {
		t.Fatalf("compiler error: %s", err)
	}
	if bc.Main != -1 {
		t.Errorf("expected no main, got %d", bc.Main)
	}
	if bc.Globals != 1 {
		t.Errorf("wrong globals count. want=1, got=%d", bc.Globals)
	}
}

func TestRecursionResolvesOwnName(t *testing.T) {
	_, err := compileDefault("func int32 f(int32 n) { if (n < 1) return 0; return f(n - 1); }")
	if err != nil {
		t.Fatalf("compiler error: %s", err)
	}
}

func TestParamsAreNotVisibleAfterFunction(t *testing.T) {
	_, err := compileDefault("func f(int32 a) { } a;")
	if err == nil {
		t.Fatal("parameter leaked into the top level")
	}
}
