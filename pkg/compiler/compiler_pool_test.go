package compiler

import (
	"slices"
	"sync"
	"testing"

	"minic/pkg/limits"
	"minic/pkg/opcode"
)

func TestPooledCompilersDoNotShareState(t *testing.T) {
	first, err := Compile(`"one"; int32 x = 1;`, nil, limits.Default())
	if err != nil {
		t.Fatal(err)
	}
	snapshot := slices.Clone(first.Instructions)

	second, err := Compile(`"two"; "three";`, nil, limits.Default())
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(first.Instructions, snapshot) {
		t.Error("first bytecode was modified by a later compile")
	}
	if !slices.Equal(second.Strings, []string{"two", "three"}) {
		t.Errorf("string pool leaked between compiles: %v", second.Strings)
	}
	if second.Globals != 0 {
		t.Errorf("globals leaked between compiles: %d", second.Globals)
	}
}

func TestConcurrentCompile(t *testing.T) {
	var wg sync.WaitGroup
	errs := make(chan error, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bc, err := Compile("int32 x = 2 * 3; x;", nil, limits.Default())
			if err != nil {
				errs <- err
				return
			}
			want := concatInstructions([]opcode.Instructions{
				opcode.Make(opcode.OpPushConst, 6),
				opcode.Make(opcode.OpCast, castI32),
				opcode.Make(opcode.OpStoreVar, g0),
				opcode.Make(opcode.OpPushVar, g0),
				opcode.Make(opcode.OpPop),
			})
			if err := testInstructions([]opcode.Instructions{want}, bc.Instructions); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestCompilerReuse(t *testing.T) {
	c := New(nil, limits.Default())

	if _, err := c.Compile("break;"); err == nil {
		t.Fatal("expected error")
	}
	bc, err := c.Compile("1;")
	if err != nil {
		t.Fatalf("compiler not usable after an error: %s", err)
	}
	if len(bc.Instructions) != 3 {
		t.Errorf("stale instructions after reuse: %s", bc.Instructions)
	}
}
