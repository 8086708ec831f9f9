// Package engine is the one-call entry point used by the CLI and the
// console: compile a script, run it on a fresh machine and collect what the
// host can observe.
package engine

import (
	"fmt"

	"minic/pkg/compiler"
	"minic/pkg/device"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/value"
	"minic/pkg/vm"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("minic.engine")

type Options struct {
	// Limits defaults to limits.Default() when left zero.
	Limits limits.Limits
	// Natives takes precedence over Device.
	Natives *native.Registry
	// Device, when set and Natives is nil, is bound to the board table.
	Device   device.Device
	Trace    bool
	MaxSteps int
}

type Result struct {
	// Return is main's return value; it is only meaningful when MainCalled.
	Return     value.Value
	MainCalled bool
	Globals    []value.Value
	LastPopped value.Value
}

func (o Options) limits() limits.Limits {
	if o.Limits == (limits.Limits{}) {
		return limits.Default()
	}
	return o.Limits
}

func (o Options) natives() *native.Registry {
	if o.Natives == nil && o.Device != nil {
		return native.Board(o.Device)
	}
	return o.Natives
}

func (o Options) vmOptions() []vm.Option {
	var opts []vm.Option
	if o.Trace {
		opts = append(opts, vm.WithTrace())
	}
	if o.MaxSteps > 0 {
		opts = append(opts, vm.WithMaxSteps(o.MaxSteps))
	}
	return opts
}

// Compile compiles src against the options' native table.
func Compile(src string, opts Options) (*compiler.Bytecode, error) {
	return compiler.Compile(src, opts.natives(), opts.limits())
}

// Run compiles and executes src. Nothing is shared between calls.
func Run(src string, opts Options) (*Result, error) {
	natives := opts.natives()

	bc, err := compiler.Compile(src, natives, opts.limits())
	if err != nil {
		log.Debugf("compile failed: %s", err)
		return nil, err
	}
	log.Debugf("compiled %d words, %d functions, %d strings", len(bc.Instructions), len(bc.Funcs), len(bc.Strings))

	opts.Natives = natives
	return Exec(bc, opts)
}

// Exec runs already compiled bytecode on a fresh machine.
func Exec(bc *compiler.Bytecode, opts Options) (result *Result, err error) {
	machine, err := vm.New(bc, opts.natives(), opts.limits(), opts.vmOptions()...)
	if err != nil {
		return nil, err
	}

	// Host natives are arbitrary code.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("engine: native call panicked: %v", r)
			log.Errorf("%s", err)
		}
	}()

	if err := machine.Run(); err != nil {
		log.Debugf("run failed: %s", err)
		return nil, err
	}

	ret, called := machine.Return()
	return &Result{
		Return:     ret,
		MainCalled: called,
		Globals:    machine.Globals(),
		LastPopped: machine.LastPoppedStackElem(),
	}, nil
}
