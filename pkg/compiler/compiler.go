// Package compiler turns source text directly into bytecode. Parsing and code
// generation happen in a single pass: every grammar rule emits its
// instructions as soon as it has recognised them, and forward jumps are
// backpatched once their targets are known.
package compiler

import (
	"fmt"
	"slices"

	"minic/pkg/lexer"
	"minic/pkg/limits"
	"minic/pkg/native"
	"minic/pkg/opcode"
	"minic/pkg/token"
	"minic/pkg/value"
)

// placeholder is the operand of a jump that has not been patched yet.
const placeholder uint32 = 0xFFFF

type EmittedInstruction struct {
	Opcode   opcode.Opcode
	Position opcode.Offset
}

type Function struct {
	Name   string
	Start  opcode.Offset
	Params int
	// Locals is the number of frame slots used, parameters included.
	Locals int
	Return value.Type
}

type Bytecode struct {
	Instructions opcode.Instructions
	Funcs        []Function
	Strings      []string
	// Natives are the names of the native table the program was compiled
	// against, in ordinal order.
	Natives    []string
	Globals    int
	MainLocals int
	// Main is the function table index of main, or -1.
	Main int
}

// Error is a compile-time diagnostic. Offset is the byte offset in the
// source where compilation stopped.
type Error struct {
	Offset int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[syntax] %s @ %d", e.Msg, e.Offset)
}

func (e *Error) Unwrap() error { return e.Err }

type loopContext struct {
	continueAt opcode.Offset
	breaks     []opcode.Offset
}

// frameContext is the compile-time view of an activation record: the top
// level program or one function body.
type frameContext struct {
	function  int
	nextLocal int
	loop      *loopContext
}

type Compiler struct {
	lim     limits.Limits
	natives *native.Registry

	lex *lexer.Lexer
	cur token.Token

	instructions opcode.Instructions
	recent       []EmittedInstruction
	// barrier is the lowest offset a jump may still target without an
	// instruction boundary moving under it.
	barrier opcode.Offset
	pending map[opcode.Offset]struct{}

	symbolTable *SymbolTable
	frames      []*frameContext
	funcs       []Function
	strings     []string
	globals     int
	main        int

	// err is the first emission failure; parsing stops at the end of the
	// current statement.
	err error
}

func New(natives *native.Registry, lim limits.Limits) *Compiler {
	c := &Compiler{
		lim:         lim,
		natives:     natives,
		pending:     make(map[opcode.Offset]struct{}),
		symbolTable: NewSymbolTable(lim.Symbols),
	}
	c.reset()
	return c
}

// Compile compiles src with a pooled compiler.
func Compile(src string, natives *native.Registry, lim limits.Limits) (*Bytecode, error) {
	c := GetCompiler(natives, lim)
	defer PutCompiler(c)
	return c.Compile(src)
}

func (c *Compiler) Compile(src string) (*Bytecode, error) {
	if err := c.lim.Validate(); err != nil {
		return nil, err
	}
	c.reset()
	c.lex = lexer.New(src)
	c.next()

	if err := c.defineNatives(); err != nil {
		return nil, err
	}

	for c.cur.Type != token.END {
		if err := c.statement(); err != nil {
			return nil, err
		}
	}

	if err := c.finish(); err != nil {
		return nil, err
	}
	return c.Bytecode(), nil
}

// Bytecode returns a copy of the compiled program; the compiler's buffers
// stay with the compiler.
func (c *Compiler) Bytecode() *Bytecode {
	return &Bytecode{
		Instructions: slices.Clone(c.instructions),
		Funcs:        slices.Clone(c.funcs),
		Strings:      slices.Clone(c.strings),
		Natives:      c.natives.Names(),
		Globals:      c.globals,
		MainLocals:   c.frames[0].nextLocal,
		Main:         c.main,
	}
}

func (c *Compiler) reset() {
	c.lex = nil
	c.cur = token.Token{}
	c.instructions = c.instructions[:0]
	c.recent = c.recent[:0]
	c.barrier = 0
	clear(c.pending)
	c.symbolTable.reset(c.lim.Symbols)
	c.frames = append(c.frames[:0], &frameContext{function: -1})
	c.funcs = c.funcs[:0]
	c.strings = c.strings[:0]
	c.globals = 0
	c.main = -1
	c.err = nil
}

func (c *Compiler) defineNatives() error {
	for i, name := range c.natives.Names() {
		sym := Symbol{Name: name, Type: value.I32, Kind: NativeSym, Index: i}
		if _, err := c.symbolTable.Define(sym); err != nil {
			return c.wrap(c.cur, err)
		}
	}
	return nil
}

// finish appends the call to main and checks that every jump was patched.
func (c *Compiler) finish() error {
	if sym, ok := c.symbolTable.Resolve("main"); ok && sym.Kind == FunctionSym {
		if n := c.funcs[sym.Index].Params; n != 0 {
			return c.errorf(c.cur, "main must not take parameters, has %d", n)
		}
		c.emit(opcode.OpCall, uint32(sym.Index))
		c.main = sym.Index
	}
	if c.err != nil {
		return c.err
	}
	if len(c.pending) > 0 {
		keys := make([]opcode.Offset, 0, len(c.pending))
		for k := range c.pending {
			keys = append(keys, k)
		}
		pos := slices.Min(keys)
		return c.errorf(c.cur, "internal: unpatched jump at %04d", pos)
	}
	return nil
}

func (c *Compiler) next() {
	c.cur = c.lex.NextToken()
}

func (c *Compiler) expect(t token.TokenType, what string) error {
	if c.cur.Type != t {
		return c.errorf(c.cur, "expected %s", what)
	}
	c.next()
	return nil
}

func (c *Compiler) skipSemicolon() {
	if c.cur.Type == token.SEMICOLON {
		c.next()
	}
}

func (c *Compiler) frame() *frameContext {
	return c.frames[len(c.frames)-1]
}

func (c *Compiler) errorf(at token.Token, format string, args ...interface{}) error {
	return &Error{Offset: at.Offset, Msg: fmt.Sprintf(format, args...)}
}

func (c *Compiler) wrap(at token.Token, err error) error {
	return &Error{Offset: at.Offset, Msg: err.Error(), Err: err}
}

func (c *Compiler) capacity(at token.Token, resource string, limit int) error {
	return c.wrap(at, limits.Exceeded(resource, limit))
}

func (c *Compiler) fail(err error) {
	if c.err == nil {
		c.err = c.wrap(c.cur, err)
	}
}

func (c *Compiler) emit(op opcode.Opcode, operands ...uint32) opcode.Offset {
	if c.foldConstants(op) {
		return c.recent[len(c.recent)-1].Position
	}
	ins := opcode.Make(op, operands...)
	pos := c.addInstruction(ins)
	c.setLastInstruction(op, pos)
	return pos
}

func (c *Compiler) addInstruction(ins []uint32) opcode.Offset {
	pos := opcode.Offset(len(c.instructions))
	if len(c.instructions)+len(ins) > c.lim.Code {
		c.fail(limits.Exceeded("bytecode", c.lim.Code))
		return pos
	}
	c.instructions = append(c.instructions, ins...)
	return pos
}

func (c *Compiler) setLastInstruction(op opcode.Opcode, pos opcode.Offset) {
	c.recent = append(c.recent, EmittedInstruction{Opcode: op, Position: pos})
	if len(c.recent) > 8 {
		c.recent = append(c.recent[:0], c.recent[len(c.recent)-4:]...)
	}
}

// emitJump emits a jump with a placeholder target and records it as
// pending until patchJump is called with its position.
func (c *Compiler) emitJump(op opcode.Opcode) opcode.Offset {
	pos := c.emit(op, placeholder)
	if c.err == nil {
		c.pending[pos] = struct{}{}
	}
	return pos
}

// patchJump points the jump at pos to the current end of the code.
func (c *Compiler) patchJump(pos opcode.Offset) {
	target := c.mark()
	c.changeOperand(pos, uint32(target))
	delete(c.pending, pos)
}

// mark returns the current end of the code as a jump target.
func (c *Compiler) mark() opcode.Offset {
	pos := opcode.Offset(len(c.instructions))
	c.barrier = pos
	return pos
}

func (c *Compiler) changeOperand(opPos opcode.Offset, operand uint32) {
	if c.err != nil || int(opPos)+1 >= len(c.instructions) {
		return
	}
	c.instructions[opPos+1] = operand
}

func slot(sym Symbol) uint32 {
	if sym.Kind == GlobalVar {
		return uint32(opcode.GlobalSlot(sym.Index))
	}
	return uint32(opcode.LocalSlot(sym.Index))
}

// castable reports whether stores to a variable of type t re-wrap the value.
func castable(t value.Type) bool {
	switch t {
	case value.I8, value.I16, value.I32, value.Bool:
		return true
	}
	return false
}
