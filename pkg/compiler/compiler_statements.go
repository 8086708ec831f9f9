package compiler

import (
	"minic/pkg/opcode"
	"minic/pkg/token"
	"minic/pkg/value"
)

func (c *Compiler) statement() error {
	var err error

	switch c.cur.Type {
	case token.SEMICOLON:
		c.next()
	case token.IF:
		err = c.ifStatement()
	case token.WHILE:
		err = c.whileStatement()
	case token.FOR:
		err = c.forStatement()
	case token.RETURN:
		err = c.returnStatement()
	case token.BREAK:
		err = c.breakStatement()
	case token.CONTINUE:
		err = c.continueStatement()
	case token.FUNC:
		err = c.funcDeclaration()
	case token.LBRACE:
		err = c.block()
	case token.CALL:
		err = c.callStatement()
	case token.INT8, token.INT16, token.INT32, token.BOOL, token.STRING_T,
		token.VAR, token.CONST:
		err = c.varDeclaration()
	case token.IDENT, token.INT, token.STRING, token.TRUE, token.FALSE,
		token.LPAREN, token.MINUS, token.BANG, token.PLUS_PLUS, token.MINUS_MINUS:
		if err = c.assignOrExpr(); err == nil {
			c.skipSemicolon()
		}
	default:
		err = c.errorf(c.cur, "unexpected %s", describe(c.cur))
	}

	if err != nil {
		return err
	}
	return c.err
}

func (c *Compiler) block() error {
	if c.cur.Type != token.LBRACE {
		return c.errorf(c.cur, "expected {")
	}
	c.next()

	c.symbolTable.Enter()
	for c.cur.Type != token.RBRACE && c.cur.Type != token.END {
		if err := c.statement(); err != nil {
			return err
		}
	}
	c.symbolTable.Leave()

	return c.expect(token.RBRACE, "}")
}

// body is the statement controlled by if, else, while or for: a block or a
// single statement in a scope of its own.
func (c *Compiler) body() error {
	if c.cur.Type == token.LBRACE {
		return c.block()
	}
	c.symbolTable.Enter()
	defer c.symbolTable.Leave()
	return c.statement()
}

func (c *Compiler) ifStatement() error {
	c.next()

	if err := c.expression(); err != nil {
		return err
	}
	jumpFalse := c.emitJump(opcode.OpJumpFalse)

	if err := c.body(); err != nil {
		return err
	}

	if c.cur.Type != token.ELSE {
		c.patchJump(jumpFalse)
		return nil
	}

	jumpEnd := c.emitJump(opcode.OpJump)
	c.patchJump(jumpFalse)
	c.next()

	if err := c.body(); err != nil {
		return err
	}
	c.patchJump(jumpEnd)
	return nil
}

// whileStatement compiles
//
//	start: <cond>
//	       JMP_FALSE end
//	       <body>
//	       JMP start
//	end:
func (c *Compiler) whileStatement() error {
	c.next()

	start := c.mark()
	if err := c.expression(); err != nil {
		return err
	}
	exit := c.emitJump(opcode.OpJumpFalse)

	f := c.frame()
	outer := f.loop
	loop := &loopContext{continueAt: start}
	f.loop = loop

	if err := c.body(); err != nil {
		return err
	}
	c.emit(opcode.OpJump, uint32(start))

	f.loop = outer
	c.patchLoopExits(exit, loop)
	return nil
}

// forStatement compiles
//
//	       <init>
//	cond:  <cond>
//	       JMP_FALSE end
//	       JMP body
//	post:  <post>
//	       JMP cond
//	body:  <body>
//	       JMP post
//	end:
func (c *Compiler) forStatement() error {
	c.next()
	if err := c.expect(token.LPAREN, "( after for"); err != nil {
		return err
	}

	c.symbolTable.Enter()
	defer c.symbolTable.Leave()

	switch {
	case c.cur.Type == token.SEMICOLON:
		c.next()
	case isDeclStart(c.cur.Type):
		if err := c.varDeclaration(); err != nil {
			return err
		}
	default:
		if err := c.assignOrExpr(); err != nil {
			return err
		}
		if err := c.expect(token.SEMICOLON, "; after for initializer"); err != nil {
			return err
		}
	}

	cond := c.mark()
	exit := opcode.Offset(-1)
	if c.cur.Type != token.SEMICOLON {
		if err := c.expression(); err != nil {
			return err
		}
		exit = c.emitJump(opcode.OpJumpFalse)
	}
	if err := c.expect(token.SEMICOLON, "; after for condition"); err != nil {
		return err
	}
	toBody := c.emitJump(opcode.OpJump)

	post := c.mark()
	if c.cur.Type != token.RPAREN {
		if err := c.assignOrExpr(); err != nil {
			return err
		}
	}
	c.emit(opcode.OpJump, uint32(cond))
	if err := c.expect(token.RPAREN, ") after for clauses"); err != nil {
		return err
	}
	c.patchJump(toBody)

	f := c.frame()
	outer := f.loop
	loop := &loopContext{continueAt: post}
	f.loop = loop

	if err := c.body(); err != nil {
		return err
	}
	c.emit(opcode.OpJump, uint32(post))

	f.loop = outer
	c.patchLoopExits(exit, loop)
	return nil
}

// patchLoopExits points the loop's exit jump and every break at the current
// end of the code. It runs after the back jump has been emitted.
func (c *Compiler) patchLoopExits(exit opcode.Offset, loop *loopContext) {
	if exit >= 0 {
		c.patchJump(exit)
	}
	for _, pos := range loop.breaks {
		c.patchJump(pos)
	}
}

func (c *Compiler) breakStatement() error {
	f := c.frame()
	if f.loop == nil {
		return c.errorf(c.cur, "break outside loop")
	}
	c.next()
	f.loop.breaks = append(f.loop.breaks, c.emitJump(opcode.OpJump))
	c.skipSemicolon()
	return nil
}

func (c *Compiler) continueStatement() error {
	f := c.frame()
	if f.loop == nil {
		return c.errorf(c.cur, "continue outside loop")
	}
	c.next()
	c.emit(opcode.OpJump, uint32(f.loop.continueAt))
	c.skipSemicolon()
	return nil
}

func (c *Compiler) returnStatement() error {
	f := c.frame()
	if f.function < 0 {
		return c.errorf(c.cur, "return outside function")
	}
	c.next()

	if c.cur.Type != token.SEMICOLON && c.cur.Type != token.RBRACE {
		if err := c.expression(); err != nil {
			return err
		}
		if ret := c.funcs[f.function].Return; castable(ret) {
			c.emit(opcode.OpCast, uint32(ret))
		}
	}
	c.emit(opcode.OpRet)
	c.skipSemicolon()
	return nil
}

func (c *Compiler) callStatement() error {
	c.next()

	name := c.cur
	if err := c.expect(token.IDENT, "function name after call"); err != nil {
		return err
	}
	if c.cur.Type != token.LPAREN {
		return c.errorf(c.cur, "expected ( after %s", name.Literal)
	}
	if err := c.call(name); err != nil {
		return err
	}
	c.emit(opcode.OpPop)
	c.skipSemicolon()
	return nil
}

// assignOrExpr compiles an assignment or an expression whose value is
// discarded. The leading identifier is consumed before deciding which.
func (c *Compiler) assignOrExpr() error {
	if c.cur.Type != token.IDENT {
		if err := c.expression(); err != nil {
			return err
		}
		c.emit(opcode.OpPop)
		return nil
	}

	name := c.cur
	c.next()

	switch {
	case token.IsAssign(c.cur.Type):
		return c.assign(name)

	case c.cur.Type == token.LBRACKET:
		sym, err := c.variable(name)
		if err != nil {
			return err
		}
		c.emit(opcode.OpPushVar, slot(sym))
		if err := c.index(); err != nil {
			return err
		}
		if c.cur.Type == token.ASSIGN {
			return c.storeElement(name, sym)
		}
		if token.IsAssign(c.cur.Type) {
			return c.errorf(c.cur, "compound assignment to an array element is not supported")
		}
		c.emit(opcode.OpArrLoad)

	default:
		if err := c.identifier(name); err != nil {
			return err
		}
	}

	if err := c.binaryTail(LOGICAL_OR); err != nil {
		return err
	}
	c.emit(opcode.OpPop)
	return nil
}

func (c *Compiler) assign(name token.Token) error {
	sym, err := c.variable(name)
	if err != nil {
		return err
	}
	if sym.Const {
		return c.errorf(name, "cannot assign to constant %s", name.Literal)
	}

	op := c.cur.Type
	c.next()

	if op != token.ASSIGN {
		c.emit(opcode.OpPushVar, slot(sym))
	}
	if err := c.expression(); err != nil {
		return err
	}
	if op != token.ASSIGN {
		c.emit(compoundOps[op])
	}
	c.store(sym)
	return nil
}

// storeElement finishes a[i] = v with the array and index already pushed.
func (c *Compiler) storeElement(name token.Token, sym Symbol) error {
	if sym.Const {
		return c.errorf(name, "cannot assign to constant %s", name.Literal)
	}
	c.next()
	if err := c.expression(); err != nil {
		return err
	}
	c.emit(opcode.OpArrStore)
	c.emit(opcode.OpStoreVar, slot(sym))
	return nil
}

func (c *Compiler) store(sym Symbol) {
	if castable(sym.Type) {
		c.emit(opcode.OpCast, uint32(sym.Type))
	}
	c.emit(opcode.OpStoreVar, slot(sym))
}

func isDeclStart(t token.TokenType) bool {
	return token.IsType(t) || t == token.VAR || t == token.CONST
}

func (c *Compiler) parseType() (value.Type, error) {
	var t value.Type
	switch c.cur.Type {
	case token.INT8:
		t = value.I8
	case token.INT16:
		t = value.I16
	case token.INT32:
		t = value.I32
	case token.BOOL:
		t = value.Bool
	case token.STRING_T:
		t = value.String
	case token.VAR:
		t = value.Void
	default:
		return value.Void, c.errorf(c.cur, "type expected")
	}
	c.next()
	return t, nil
}

// varDeclaration compiles
//
//	[const] type name [ '[' N ']' ] [ = expr ] ;
//
// Scalars without an initializer start at zero, arrays start zeroed.
func (c *Compiler) varDeclaration() error {
	isConst := c.cur.Type == token.CONST
	if isConst {
		c.next()
	}

	typ, err := c.parseType()
	if err != nil {
		return err
	}

	name := c.cur
	if err := c.expect(token.IDENT, "identifier"); err != nil {
		return err
	}

	length := -1
	if c.cur.Type == token.LBRACKET {
		c.next()
		size := c.cur
		if err := c.expect(token.INT, "array length"); err != nil {
			return err
		}
		if size.Value <= 0 || int(size.Value) > c.lim.Array {
			return c.capacity(size, "array", c.lim.Array)
		}
		if err := c.expect(token.RBRACKET, "]"); err != nil {
			return err
		}
		length = int(size.Value)
		typ = value.Array
	}

	sym, err := c.declare(name, typ, isConst)
	if err != nil {
		return err
	}

	switch {
	case length >= 0:
		if c.cur.Type == token.ASSIGN {
			return c.errorf(c.cur, "array %s cannot have an initializer", name.Literal)
		}
		c.emit(opcode.OpArrNew, uint32(length))
		c.emit(opcode.OpStoreVar, slot(sym))
	case c.cur.Type == token.ASSIGN:
		c.next()
		if err := c.expression(); err != nil {
			return err
		}
		c.store(sym)
	case isConst:
		return c.errorf(c.cur, "constant %s needs an initializer", name.Literal)
	case castable(typ):
		c.emit(opcode.OpPushConst, 0)
		c.store(sym)
	}

	return c.expect(token.SEMICOLON, "; after declaration")
}

// declare allocates storage for a variable: a global at level 0, otherwise
// the next slot of the current frame.
func (c *Compiler) declare(name token.Token, typ value.Type, isConst bool) (Symbol, error) {
	sym := Symbol{Name: name.Literal, Type: typ, Const: isConst}

	if c.symbolTable.Level() == 0 {
		if c.globals >= c.lim.Globals {
			return Symbol{}, c.capacity(name, "globals", c.lim.Globals)
		}
		sym.Kind = GlobalVar
		sym.Index = c.globals
		c.globals++
	} else {
		f := c.frame()
		if f.nextLocal >= c.lim.Locals {
			return Symbol{}, c.capacity(name, "locals", c.lim.Locals)
		}
		sym.Kind = LocalVar
		sym.Index = f.nextLocal
		f.nextLocal++
	}

	sym, err := c.symbolTable.Define(sym)
	if err != nil {
		return Symbol{}, c.wrap(name, err)
	}
	return sym, nil
}

// funcDeclaration compiles a function body inline, behind a jump that keeps
// top-level execution from falling into it.
func (c *Compiler) funcDeclaration() error {
	if c.symbolTable.Level() != 0 || len(c.frames) > 1 {
		return c.errorf(c.cur, "functions can only be declared at top level")
	}
	c.next()

	ret := value.Void
	if token.IsType(c.cur.Type) {
		t, err := c.parseType()
		if err != nil {
			return err
		}
		ret = t
	}

	name := c.cur
	if err := c.expect(token.IDENT, "function name"); err != nil {
		return err
	}
	if len(c.funcs) >= c.lim.Funcs {
		return c.capacity(name, "functions", c.lim.Funcs)
	}

	skip := c.emitJump(opcode.OpJump)

	fi := len(c.funcs)
	c.funcs = append(c.funcs, Function{Name: name.Literal, Start: c.mark(), Return: ret})
	sym := Symbol{Name: name.Literal, Type: ret, Kind: FunctionSym, Index: fi}
	if _, err := c.symbolTable.Define(sym); err != nil {
		return c.wrap(name, err)
	}

	f := &frameContext{function: fi}
	c.frames = append(c.frames, f)
	c.symbolTable.Enter()

	if err := c.parameters(f); err != nil {
		return err
	}
	c.funcs[fi].Params = f.nextLocal

	if err := c.block(); err != nil {
		return err
	}
	c.emit(opcode.OpRet)

	c.symbolTable.Leave()
	c.frames = c.frames[:len(c.frames)-1]
	c.funcs[fi].Locals = f.nextLocal

	c.patchJump(skip)
	return nil
}

// parameters parses the parameter list into the first slots of f.
func (c *Compiler) parameters(f *frameContext) error {
	if err := c.expect(token.LPAREN, "( after function name"); err != nil {
		return err
	}

	for c.cur.Type != token.RPAREN {
		typ, err := c.parseType()
		if err != nil {
			return err
		}
		name := c.cur
		if err := c.expect(token.IDENT, "parameter name"); err != nil {
			return err
		}
		if f.nextLocal >= c.lim.Params {
			return c.capacity(name, "params", c.lim.Params)
		}

		sym := Symbol{Name: name.Literal, Type: typ, Kind: Param, Index: f.nextLocal}
		if _, err := c.symbolTable.Define(sym); err != nil {
			return c.wrap(name, err)
		}
		f.nextLocal++

		if c.cur.Type != token.COMMA {
			break
		}
		c.next()
	}

	return c.expect(token.RPAREN, ") after parameters")
}
