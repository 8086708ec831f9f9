package benchmarks

import (
	"testing"

	"minic/pkg/compiler"
	"minic/pkg/device"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/value"
	"minic/pkg/vm"
)

var result value.Value

const additionInput = `
int32 a = 5;
a + a + a + a + a + a + a + a + a + a + a + a + a + a + a + a + a + a + a + a + a;
`

const loopInput = `
int32 fib(int32 n) {
	if (n < 2) { return n; }
	return fib(n - 1) + fib(n - 2);
}
int32 main() {
	int32 total = 0;
	for (int32 i = 0; i < 10; i++) { total += fib(i); }
	return total;
}
`

func compileBench(b *testing.B, input string) *compiler.Bytecode {
	b.Helper()
	bc, err := compiler.Compile(input, native.Board(device.NewSim()), bigLimits())
	if err != nil {
		b.Fatal(err)
	}
	return bc
}

// bigLimits gives the benchmarks room that the firmware defaults would not.
func bigLimits() limits.Limits {
	lim := limits.Default()
	lim.Code = 1024
	return lim
}

func BenchmarkVMAddition(b *testing.B) {
	bytecode := compileBench(b, additionInput)
	natives := native.Board(device.NewSim())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine, err := vm.New(bytecode, natives, bigLimits())
		if err != nil {
			b.Fatal(err)
		}
		if err := machine.Run(); err != nil {
			b.Fatal(err)
		}
		result = machine.LastPoppedStackElem()
	}
}

func BenchmarkVMComparison(b *testing.B) {
	bytecode := compileBench(b, "int32 a = 1; a < 2;")
	natives := native.Board(device.NewSim())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine, err := vm.New(bytecode, natives, bigLimits())
		if err != nil {
			b.Fatal(err)
		}
		if err := machine.Run(); err != nil {
			b.Fatal(err)
		}
		result = machine.LastPoppedStackElem()
	}
}

func BenchmarkVMRecursion(b *testing.B) {
	bytecode := compileBench(b, loopInput)
	natives := native.Board(device.NewSim())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine, err := vm.New(bytecode, natives, bigLimits())
		if err != nil {
			b.Fatal(err)
		}
		if err := machine.Run(); err != nil {
			b.Fatal(err)
		}
		result, _ = machine.Return()
	}
}

func BenchmarkCompile(b *testing.B) {
	natives := native.Board(device.NewSim())
	for i := 0; i < b.N; i++ {
		if _, err := compiler.Compile(loopInput, natives, bigLimits()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompilePooled(b *testing.B) {
	natives := native.Board(device.NewSim())
	for i := 0; i < b.N; i++ {
		c := compiler.GetCompiler(natives, bigLimits())
		if _, err := c.Compile(loopInput); err != nil {
			b.Fatal(err)
		}
		compiler.PutCompiler(c)
	}
}
