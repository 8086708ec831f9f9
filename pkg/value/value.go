// Package value is the script value model: a closed tagged union over the
// integer widths, bool, short strings and short int arrays. Fields are
// unexported so no caller can read a payload inconsistent with the tag.
package value

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"minic/pkg/limits"
)

type Type uint8

const (
	Void Type = iota
	I8
	I16
	I32
	Bool
	String
	Array
)

var (
	ErrNotArray   = errors.New("not an array")
	ErrOutOfRange = errors.New("index out of bounds")
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case I8:
		return "int8"
	case I16:
		return "int16"
	case I32:
		return "int32"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Array:
		return "array"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Numeric reports whether values of t coerce to a meaningful int32.
func (t Type) Numeric() bool {
	switch t {
	case I8, I16, I32, Bool:
		return true
	}
	return false
}

// Value is comparable with ==; unused array elements are always zero.
type Value struct {
	typ Type
	num int32
	str string
	arr [limits.MaxArrayLen]int32
	n   uint8
}

func Int8(v int8) Value { return Value{typ: I8, num: int32(v)} }
func Int16(v int16) Value { return Value{typ: I16, num: int32(v)} }
func Int32(v int32) Value { return Value{typ: I32, num: v} }
func VoidValue() Value { return Value{} }

func Boolean(b bool) Value {
	if b {
		return Value{typ: Bool, num: 1}
	}
	return Value{typ: Bool}
}

// Str builds a string value, silently truncating to the fixed capacity.
func Str(s string) Value {
	if len(s) > limits.MaxStringBytes-1 {
		s = s[:limits.MaxStringBytes-1]
	}
	return Value{typ: String, str: s}
}

// NewArray returns a zeroed int array of length n.
func NewArray(n int) (Value, error) {
	if n < 0 || n > limits.MaxArrayLen {
		return Value{}, limits.Exceeded("array", limits.MaxArrayLen)
	}
	return Value{typ: Array, n: uint8(n)}, nil
}

// Wrap narrows n to the width of t. Non-numeric targets produce an int32.
func Wrap(t Type, n int32) Value {
	switch t {
	case I8:
		return Int8(int8(n))
	case I16:
		return Int16(int16(n))
	case I32:
		return Int32(n)
	case Bool:
		return Boolean(n != 0)
	case Void, String, Array:
		return Int32(n)
	}
	return Int32(n)
}

func (v Value) Type() Type { return v.typ }

// Int32 is the coerced 32-bit view used by arithmetic, comparisons, truth
// tests and native arguments. Strings, arrays and void yield 0.
func (v Value) Int32() int32 {
	switch v.typ {
	case I8, I16, I32, Bool:
		return v.num
	case Void, String, Array:
		return 0
	}
	return 0
}

func (v Value) Truthy() bool { return v.Int32() != 0 }

// Text returns the payload of a string value.
func (v Value) Text() (string, bool) {
	if v.typ != String {
		return "", false
	}
	return v.str, true
}

// Len returns the length of an array value.
func (v Value) Len() (int, bool) {
	if v.typ != Array {
		return 0, false
	}
	return int(v.n), true
}

func (v Value) Elem(i int32) (int32, error) {
	if v.typ != Array {
		return 0, ErrNotArray
	}
	if i < 0 || int(i) >= int(v.n) {
		return 0, ErrOutOfRange
	}
	return v.arr[i], nil
}

// SetElem returns a copy of the array with element i replaced.
func (v Value) SetElem(i int32, x int32) (Value, error) {
	if v.typ != Array {
		return Value{}, ErrNotArray
	}
	if i < 0 || int(i) >= int(v.n) {
		return Value{}, ErrOutOfRange
	}
	v.arr[i] = x
	return v, nil
}

// Elems returns a copy of the array's elements.
func (v Value) Elems() []int32 {
	if v.typ != Array {
		return nil
	}
	out := make([]int32, v.n)
	copy(out, v.arr[:v.n])
	return out
}

func (v Value) String() string {
	switch v.typ {
	case Void:
		return "void"
	case I8, I16, I32:
		return strconv.Itoa(int(v.num))
	case Bool:
		if v.num != 0 {
			return "true"
		}
		return "false"
	case String:
		return v.str
	case Array:
		parts := make([]string, v.n)
		for i := range parts {
			parts[i] = strconv.Itoa(int(v.arr[i]))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprintf("<%s>", v.typ)
}

// Inspect is String with the type attached, for diagnostics and the REPL-ish
// console output.
func (v Value) Inspect() string {
	if v.typ == String {
		return fmt.Sprintf("%s(%q)", v.typ, v.str)
	}
	return fmt.Sprintf("%s(%s)", v.typ, v.String())
}
