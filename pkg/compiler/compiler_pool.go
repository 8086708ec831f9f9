package compiler

import (
	"sync"

	"minic/pkg/limits"
	"minic/pkg/native"
)

// Compiler pool for reusing code buffers and symbol storage across runs
var compilerPool = sync.Pool{
	New: func() interface{} {
		return New(nil, limits.Default())
	},
}

// GetCompiler retrieves a compiler from the pool, configured for one
// compilation against natives and lim
func GetCompiler(natives *native.Registry, lim limits.Limits) *Compiler {
	c := compilerPool.Get().(*Compiler)
	c.natives = natives
	c.lim = lim
	c.reset()
	return c
}

// PutCompiler returns a compiler to the pool after use
func PutCompiler(c *Compiler) {
	c.natives = nil
	c.reset()
	compilerPool.Put(c)
}
