package opcode

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		op       Opcode
		operands []uint32
		expected []uint32
	}{
		{OpPushConst, []uint32{65534}, []uint32{uint32(OpPushConst), 65534}},
		{OpNativeCall, []uint32{3, 2}, []uint32{uint32(OpNativeCall), 3, 2}},
		{OpAdd, []uint32{}, []uint32{uint32(OpAdd)}},
	}

	for _, tt := range tests {
		instruction := Make(tt.op, tt.operands...)

		if len(instruction) != len(tt.expected) {
			t.Errorf("instruction has wrong length. want=%d, got=%d",
				len(tt.expected), len(instruction))
		}

		for i, w := range tt.expected {
			if instruction[i] != tt.expected[i] {
				t.Errorf("wrong word at pos %d. want=%d, got=%d",
					i, w, instruction[i])
			}
		}
	}
}

func TestSlot(t *testing.T) {
	g := GlobalSlot(5)
	if g.IsLocal() || g.Index() != 5 {
		t.Fatalf("global slot wrong: %s", g)
	}

	l := LocalSlot(7)
	if !l.IsLocal() || l.Index() != 7 {
		t.Fatalf("local slot wrong: %s", l)
	}
	if uint32(l) != 7|1<<31 {
		t.Fatalf("local slot must use the sign bit, got %#x", uint32(l))
	}
}

func TestInstructionsString(t *testing.T) {
	instructions := []Instructions{
		Make(OpPushConst, 7),
		Make(OpPushConst, 2|StringTag),
		Make(OpStoreVar, uint32(LocalSlot(1))),
		Make(OpNativeCall, 4, 2),
		Make(OpJumpFalse, 12),
		Make(OpRet),
	}

	expected := `0000 PUSH_CONST 7
0002 PUSH_CONST str#2
0004 STORE_VAR local[1]
0006 NATIVE_CALL 4 2
0009 JMP_FALSE 12
0011 RET
`

	concatted := Instructions{}
	for _, ins := range instructions {
		concatted = append(concatted, ins...)
	}

	if concatted.String() != expected {
		t.Errorf("instructions wrongly formatted.\nwant=%q\ngot=%q",
			expected, concatted.String())
	}
}

func TestInstructionsStringUnknownOpcode(t *testing.T) {
	ins := Instructions{999, uint32(OpPop)}
	want := "0000 ERROR: opcode 999 undefined\n0001 POP\n"
	if got := ins.String(); got != want {
		t.Errorf("want=%q got=%q", want, got)
	}
}

func TestReadOperands(t *testing.T) {
	tests := []struct {
		op        Opcode
		operands  []uint32
		wordsRead int
	}{
		{OpPushConst, []uint32{65535}, 1},
		{OpNativeCall, []uint32{1, 3}, 2},
	}

	for _, tt := range tests {
		instruction := Make(tt.op, tt.operands...)

		def, err := Lookup(uint32(tt.op))
		if err != nil {
			t.Fatalf("definition not found: %q\n", err)
		}

		operandsRead, n := ReadOperands(def, instruction[1:])
		if n != tt.wordsRead {
			t.Fatalf("n wrong. want=%d, got=%d", tt.wordsRead, n)
		}

		for i, want := range tt.operands {
			if operandsRead[i] != want {
				t.Errorf("operand wrong. want=%d, got=%d", want, operandsRead[i])
			}
		}
	}
}
