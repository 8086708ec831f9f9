package compiler

import (
	"minic/pkg/limits"
	"minic/pkg/value"
)

type SymbolKind uint8

const (
	GlobalVar SymbolKind = iota
	LocalVar
	Param
	FunctionSym
	NativeSym
)

func (k SymbolKind) String() string {
	switch k {
	case GlobalVar:
		return "global"
	case LocalVar:
		return "local"
	case Param:
		return "param"
	case FunctionSym:
		return "func"
	case NativeSym:
		return "native"
	}
	return "unknown"
}

// Symbol is one declaration. Index is a global slot, a frame slot, a
// function table ordinal or a native table ordinal depending on Kind.
type Symbol struct {
	Name  string
	Type  value.Type
	Kind  SymbolKind
	Index int
	Level int
	Const bool
}

func (s Symbol) IsVariable() bool {
	return s.Kind == GlobalVar || s.Kind == LocalVar || s.Kind == Param
}

// SymbolTable is a flat list scanned from the back, so the most recent
// declaration wins. Leaving a scope truncates everything declared in it.
type SymbolTable struct {
	symbols []Symbol
	level   int
	limit   int
}

func NewSymbolTable(limit int) *SymbolTable {
	return &SymbolTable{
		symbols: make([]Symbol, 0, limit),
		limit:   limit,
	}
}

// Define records sym at the current scope level.
func (s *SymbolTable) Define(sym Symbol) (Symbol, error) {
	if len(s.symbols) >= s.limit {
		return Symbol{}, limits.Exceeded("symbol table", s.limit)
	}
	sym.Level = s.level
	s.symbols = append(s.symbols, sym)
	return sym, nil
}

func (s *SymbolTable) Resolve(name string) (Symbol, bool) {
	for i := len(s.symbols) - 1; i >= 0; i-- {
		sym := s.symbols[i]
		if sym.Name == name && sym.Level <= s.level {
			return sym, true
		}
	}
	return Symbol{}, false
}

func (s *SymbolTable) Enter() { s.level++ }

// Leave is a no-op at level 0; globals are never truncated.
func (s *SymbolTable) Leave() {
	if s.level == 0 {
		return
	}
	n := len(s.symbols)
	for n > 0 && s.symbols[n-1].Level >= s.level {
		n--
	}
	s.symbols = s.symbols[:n]
	s.level--
}

func (s *SymbolTable) Level() int { return s.level }

func (s *SymbolTable) Len() int { return len(s.symbols) }

func (s *SymbolTable) reset(limit int) {
	s.symbols = s.symbols[:0]
	s.level = 0
	s.limit = limit
}
