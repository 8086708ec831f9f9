package compiler

import (
	"minic/pkg/opcode"
	"minic/pkg/token"
	"minic/pkg/value"
)

const (
	_ int = iota
	LOGICAL_OR
	LOGICAL_AND
	BIT_OR
	BIT_XOR
	BIT_AND
	EQUALS
	LESSGREATER
	SHIFT
	SUM
	PRODUCT
)

var precedences = map[token.TokenType]int{
	token.OR:       LOGICAL_OR,
	token.AND:      LOGICAL_AND,
	token.PIPE:     BIT_OR,
	token.CARET:    BIT_XOR,
	token.AMP:      BIT_AND,
	token.EQ:       EQUALS,
	token.NOT_EQ:   EQUALS,
	token.LT:       LESSGREATER,
	token.GT:       LESSGREATER,
	token.LTE:      LESSGREATER,
	token.GTE:      LESSGREATER,
	token.SHL:      SHIFT,
	token.SHR:      SHIFT,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.ASTERISK: PRODUCT,
	token.SLASH:    PRODUCT,
	token.PERCENT:  PRODUCT,
}

var binaryOps = map[token.TokenType]opcode.Opcode{
	token.PIPE:     opcode.OpBitOr,
	token.CARET:    opcode.OpXor,
	token.AMP:      opcode.OpBitAnd,
	token.EQ:       opcode.OpEqual,
	token.NOT_EQ:   opcode.OpNotEqual,
	token.LT:       opcode.OpLess,
	token.GT:       opcode.OpGreater,
	token.LTE:      opcode.OpLessEqual,
	token.GTE:      opcode.OpGreaterEqual,
	token.SHL:      opcode.OpShl,
	token.SHR:      opcode.OpShr,
	token.PLUS:     opcode.OpAdd,
	token.MINUS:    opcode.OpSub,
	token.ASTERISK: opcode.OpMul,
	token.SLASH:    opcode.OpDiv,
	token.PERCENT:  opcode.OpMod,
}

var compoundOps = map[token.TokenType]opcode.Opcode{
	token.PLUS_ASSIGN:     opcode.OpAdd,
	token.MINUS_ASSIGN:    opcode.OpSub,
	token.ASTERISK_ASSIGN: opcode.OpMul,
	token.SLASH_ASSIGN:    opcode.OpDiv,
	token.PERCENT_ASSIGN:  opcode.OpMod,
	token.AMP_ASSIGN:      opcode.OpBitAnd,
	token.PIPE_ASSIGN:     opcode.OpBitOr,
	token.CARET_ASSIGN:    opcode.OpXor,
}

func (c *Compiler) expression() error {
	return c.binary(LOGICAL_OR)
}

func (c *Compiler) binary(precedence int) error {
	if err := c.unary(); err != nil {
		return err
	}
	return c.binaryTail(precedence)
}

// binaryTail continues a binary expression whose left operand has already
// been emitted, for as long as operators bind at least as tightly as
// precedence.
func (c *Compiler) binaryTail(precedence int) error {
	for {
		prec, ok := precedences[c.cur.Type]
		if !ok || prec < precedence {
			return nil
		}
		op := c.cur.Type
		c.next()

		if op == token.AND || op == token.OR {
			if err := c.shortCircuit(op, prec); err != nil {
				return err
			}
			continue
		}

		if err := c.binary(prec + 1); err != nil {
			return err
		}
		c.emit(binaryOps[op])
	}
}

// shortCircuit compiles the right operand of && or || behind a conditional
// jump. The jump consumes the left operand; when it is taken nothing is
// pushed in its place.
func (c *Compiler) shortCircuit(op token.TokenType, prec int) error {
	jump := opcode.OpJumpFalse
	if op == token.OR {
		jump = opcode.OpJumpTrue
	}
	pos := c.emitJump(jump)
	if err := c.binary(prec + 1); err != nil {
		return err
	}
	c.patchJump(pos)
	return nil
}

func (c *Compiler) unary() error {
	switch c.cur.Type {
	case token.MINUS:
		c.next()
		if err := c.unary(); err != nil {
			return err
		}
		c.emit(opcode.OpNeg)
	case token.BANG:
		c.next()
		if err := c.unary(); err != nil {
			return err
		}
		c.emit(opcode.OpNot)
	case token.PLUS_PLUS, token.MINUS_MINUS:
		return c.increment()
	default:
		return c.primary()
	}
	return nil
}

// increment compiles ++x and --x; the updated value is left on the stack.
func (c *Compiler) increment() error {
	op := opcode.OpAdd
	if c.cur.Type == token.MINUS_MINUS {
		op = opcode.OpSub
	}
	c.next()

	name := c.cur
	if err := c.expect(token.IDENT, "variable after increment"); err != nil {
		return err
	}
	sym, err := c.variable(name)
	if err != nil {
		return err
	}
	if sym.Const {
		return c.errorf(name, "cannot assign to constant %s", name.Literal)
	}

	c.emit(opcode.OpPushVar, slot(sym))
	c.emit(opcode.OpPushConst, 1)
	c.emit(op)
	c.store(sym)
	c.emit(opcode.OpPushVar, slot(sym))
	return nil
}

func (c *Compiler) primary() error {
	tok := c.cur

	switch tok.Type {
	case token.INT:
		c.next()
		c.emit(opcode.OpPushConst, uint32(tok.Value))

	case token.STRING:
		c.next()
		idx, err := c.intern(tok)
		if err != nil {
			return err
		}
		c.emit(opcode.OpPushConst, idx|opcode.StringTag)

	case token.TRUE, token.FALSE:
		c.next()
		var n uint32
		if tok.Type == token.TRUE {
			n = 1
		}
		c.emit(opcode.OpPushConst, n)
		c.emit(opcode.OpCast, uint32(value.Bool))

	case token.LPAREN:
		c.next()
		if err := c.expression(); err != nil {
			return err
		}
		return c.expect(token.RPAREN, ")")

	case token.IDENT:
		c.next()
		return c.identifier(tok)

	default:
		return c.errorf(tok, "unexpected %s in expression", describe(tok))
	}
	return nil
}

// identifier compiles a variable reference, an element load or a call for
// a name that has already been consumed.
func (c *Compiler) identifier(name token.Token) error {
	if c.cur.Type == token.LPAREN {
		return c.call(name)
	}

	sym, err := c.variable(name)
	if err != nil {
		return err
	}
	c.emit(opcode.OpPushVar, slot(sym))

	if c.cur.Type == token.LBRACKET {
		if err := c.index(); err != nil {
			return err
		}
		c.emit(opcode.OpArrLoad)
	}
	return nil
}

func (c *Compiler) variable(name token.Token) (Symbol, error) {
	sym, ok := c.symbolTable.Resolve(name.Literal)
	if !ok {
		return Symbol{}, c.errorf(name, "unknown identifier %s", name.Literal)
	}
	if !sym.IsVariable() {
		return Symbol{}, c.errorf(name, "%s is a %s, not a variable", name.Literal, sym.Kind)
	}
	return sym, nil
}

func (c *Compiler) index() error {
	c.next()
	if err := c.expression(); err != nil {
		return err
	}
	return c.expect(token.RBRACKET, "]")
}

func (c *Compiler) call(name token.Token) error {
	sym, ok := c.symbolTable.Resolve(name.Literal)
	if !ok {
		return c.errorf(name, "unknown function %s", name.Literal)
	}
	if sym.Kind != FunctionSym && sym.Kind != NativeSym {
		return c.errorf(name, "%s is not a function", name.Literal)
	}

	argc, err := c.arguments()
	if err != nil {
		return err
	}

	if sym.Kind == NativeSym {
		if argc > c.lim.Params {
			return c.capacity(name, "native arguments", c.lim.Params)
		}
		c.emit(opcode.OpNativeCall, uint32(sym.Index), uint32(argc))
		return nil
	}

	if want := c.funcs[sym.Index].Params; argc != want {
		return c.errorf(name, "%s expects %d arguments, got %d", name.Literal, want, argc)
	}
	c.emit(opcode.OpCall, uint32(sym.Index))
	return nil
}

// arguments compiles a parenthesised argument list left to right.
func (c *Compiler) arguments() (int, error) {
	c.next()

	argc := 0
	for c.cur.Type != token.RPAREN {
		if err := c.expression(); err != nil {
			return 0, err
		}
		argc++
		if c.cur.Type != token.COMMA {
			break
		}
		c.next()
	}

	return argc, c.expect(token.RPAREN, ") after arguments")
}

// intern returns the pool index of a string literal, adding it on first use.
func (c *Compiler) intern(tok token.Token) (uint32, error) {
	s := tok.Literal
	if len(s) > c.lim.String-1 {
		s = s[:c.lim.String-1]
	}
	for i, existing := range c.strings {
		if existing == s {
			return uint32(i), nil
		}
	}
	if len(c.strings) >= c.lim.Pool {
		return 0, c.capacity(tok, "string pool", c.lim.Pool)
	}
	c.strings = append(c.strings, s)
	return uint32(len(c.strings) - 1), nil
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.END:
		return "end of input"
	case token.IDENT, token.INT:
		return tok.Literal
	case token.STRING:
		return "string literal"
	}
	if tok.Literal != "" {
		return tok.Literal
	}
	return string(tok.Type)
}
