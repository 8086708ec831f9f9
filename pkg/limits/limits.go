// Package limits holds the fixed capacities of the compiler and the virtual
// machine. Every table is sized from a Limits value before a run starts and
// never grows; running out of room is a fatal CapacityError.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxStringBytes is the value model's fixed string capacity, including
	// the terminator byte the firmware reserved.
	MaxStringBytes = 64
	// MaxArrayLen is the value model's fixed array capacity.
	MaxArrayLen = 16
)

// ErrCapacity matches every CapacityError through errors.Is.
var ErrCapacity = errors.New("capacity exceeded")

type Limits struct {
	Stack   int `toml:"stack"`
	Globals int `toml:"globals"`
	Locals  int `toml:"locals"`
	Code    int `toml:"code"`
	Funcs   int `toml:"funcs"`
	Symbols int `toml:"symbols"`
	String  int `toml:"string"`
	Array   int `toml:"array"`
	Params  int `toml:"params"`
	Pool    int `toml:"pool"`
	Frames  int `toml:"frames"`
}

// Default returns the capacities of the RP2040 firmware build.
func Default() Limits {
	return Limits{
		Stack:   32,
		Globals: 32,
		Locals:  32,
		Code:    128,
		Funcs:   64,
		Symbols: 128,
		String:  MaxStringBytes,
		Array:   MaxArrayLen,
		Params:  8,
		Pool:    16,
		Frames:  32,
	}
}

func (l Limits) Validate() error {
	fields := []struct {
		name string
		v    int
	}{
		{"stack", l.Stack}, {"globals", l.Globals}, {"locals", l.Locals},
		{"code", l.Code}, {"funcs", l.Funcs}, {"symbols", l.Symbols},
		{"string", l.String}, {"array", l.Array}, {"params", l.Params},
		{"pool", l.Pool}, {"frames", l.Frames},
	}
	for _, f := range fields {
		if f.v <= 0 {
			return fmt.Errorf("limits: %s must be positive, got %d", f.name, f.v)
		}
	}
	if l.String > MaxStringBytes {
		return fmt.Errorf("limits: string must be at most %d, got %d", MaxStringBytes, l.String)
	}
	if l.Array > MaxArrayLen {
		return fmt.Errorf("limits: array must be at most %d, got %d", MaxArrayLen, l.Array)
	}
	if l.Params > l.Locals {
		return fmt.Errorf("limits: params (%d) cannot exceed locals (%d)", l.Params, l.Locals)
	}
	return nil
}

// CapacityError reports that a fixed table ran out of room.
type CapacityError struct {
	Resource string
	Limit    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s overflow (limit %d)", e.Resource, e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacity
}

func Exceeded(resource string, limit int) error {
	return &CapacityError{Resource: resource, Limit: limit}
}
