package engine

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"minic/pkg/compiler"
	"minic/pkg/device"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/value"
	"minic/pkg/vm"
)

func TestRunReturnsMainValue(t *testing.T) {
	res, err := Run(`func int32 add(int32 a, int32 b){ return a+b; } func int32 main(){ return add(2,3); }`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.MainCalled || res.Return != value.Int32(5) {
		t.Errorf("expected main to return 5, got %s (called=%v)", res.Return.Inspect(), res.MainCalled)
	}
}

func TestRunWithoutMain(t *testing.T) {
	res, err := Run("int32 x = 4; x * 2;", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.MainCalled {
		t.Error("MainCalled set for a program without main")
	}
	if res.LastPopped != value.Int32(8) {
		t.Errorf("wrong last value %s", res.LastPopped.Inspect())
	}
	if res.Globals[0] != value.Int32(4) {
		t.Errorf("wrong global %s", res.Globals[0].Inspect())
	}
}

func TestRunErrors(t *testing.T) {
	_, err := Run("break;", Options{})
	var cerr *compiler.Error
	if !errors.As(err, &cerr) {
		t.Errorf("expected compile error, got %v", err)
	}

	_, err = Run("1 / 0;", Options{})
	var rerr *vm.RuntimeError
	if !errors.As(err, &rerr) {
		t.Errorf("expected runtime error, got %v", err)
	}
}

func TestRunsAreIndependent(t *testing.T) {
	src := "int32 g; g += 1; g;"
	for i := 0; i < 3; i++ {
		res, err := Run(src, Options{})
		if err != nil {
			t.Fatal(err)
		}
		if res.LastPopped != value.Int32(1) {
			t.Fatalf("run %d saw state from an earlier run: %s", i, res.LastPopped.Inspect())
		}
	}
}

func TestDeviceBinding(t *testing.T) {
	var uart bytes.Buffer
	sim := device.NewSim(device.WithUART(&uart), device.WithVirtualClock())

	src := `
uart_begin(115200);
gpio_mode(25, 1);
gpio_write(25, 1);
uart_write(79); uart_write(75);
sleep(20);
int32 t = millis();
yield();
`
	res, err := Run(src, Options{Device: sim})
	if err != nil {
		t.Fatal(err)
	}

	if uart.String() != "OK" {
		t.Errorf("wrong UART output %q", uart.String())
	}
	if mode, level := sim.Pin(25); mode != device.Output || level != 1 {
		t.Errorf("pin 25 mode=%d level=%d", mode, level)
	}
	if res.Globals[0] != value.Int32(20) {
		t.Errorf("virtual clock not advanced: %s", res.Globals[0].Inspect())
	}
	if !sim.YieldRequested() {
		t.Error("yield flag not raised")
	}
}

func TestCustomLimits(t *testing.T) {
	lim := limits.Default()
	lim.Code = 1024
	lim.Stack = 64

	var src strings.Builder
	for i := 0; i < 100; i++ {
		src.WriteString("1;")
	}

	if _, err := Run(src.String(), Options{}); !errors.Is(err, limits.ErrCapacity) {
		t.Fatalf("expected default code limit to overflow, got %v", err)
	}
	if _, err := Run(src.String(), Options{Limits: lim}); err != nil {
		t.Fatalf("raised code limit still failed: %s", err)
	}
}

func TestMaxSteps(t *testing.T) {
	_, err := Run("while (true) { }", Options{MaxSteps: 500})
	if !errors.Is(err, vm.ErrStepBudget) {
		t.Fatalf("expected step budget error, got %v", err)
	}
}

func TestNativePanicIsReturned(t *testing.T) {
	natives, err := native.NewRegistry(native.Entry{Name: "boom", Fn: func(*native.Args) int32 {
		panic("wired wrong")
	}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Run("boom();", Options{Natives: natives}); err == nil {
		t.Fatal("expected a panicking native to surface as an error")
	}
}

func TestCompileThenExec(t *testing.T) {
	opts := Options{Device: device.NewSim(device.WithVirtualClock())}

	bc, err := Compile("func int32 main() { sleep(5); return millis(); }", opts)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Exec(bc, opts)
	if err != nil {
		t.Fatal(err)
	}
	if res.Return != value.Int32(5) {
		t.Errorf("expected 5, got %s", res.Return.Inspect())
	}
}
