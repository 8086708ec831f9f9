// Package native is the bridge between scripts and the host: an ordered,
// read-only table of host functions addressed by ordinal.
package native

import (
	"fmt"

	"minic/pkg/opcode"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("minic.native")

// Fn is a host function. It receives already coerced 32-bit arguments and
// returns a single 32-bit result.
type Fn func(args *Args) int32

type Entry struct {
	Name string
	// Arity is informational; call sites are not checked against it.
	Arity int
	Fn    Fn
}

// Args is the fixed-shape argument block of a native call. The VM allocates
// one per run and refills it for every NATIVE_CALL.
type Args struct {
	words []int32
	argc  int
	pool  []string
}

func NewArgs(capacity int, pool []string) *Args {
	return &Args{words: make([]int32, capacity), pool: pool}
}

// Reset clears the block for a call with argc arguments.
func (a *Args) Reset(argc int) {
	clear(a.words)
	a.argc = argc
}

func (a *Args) Set(i int, w int32) {
	if i >= 0 && i < len(a.words) {
		a.words[i] = w
	}
}

// Len is the argument count of the call site.
func (a *Args) Len() int { return a.argc }

// Int returns argument i. Arguments beyond the call site's count read as 0.
func (a *Args) Int(i int) int32 {
	if i < 0 || i >= len(a.words) {
		return 0
	}
	return a.words[i]
}

// String decodes argument i as a tagged string pool index.
func (a *Args) String(i int) (string, bool) {
	w := a.Int(i)
	if w < 0 || uint32(w)&opcode.StringTag == 0 {
		return "", false
	}
	idx := int(uint32(w) &^ opcode.StringTag)
	if idx >= len(a.pool) {
		return "", false
	}
	return a.pool[idx], true
}

// Registry is built once and never modified afterwards, so a single instance
// may back any number of runs.
type Registry struct {
	entries []Entry
	index   map[string]int
}

func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("native: entry %d has no name", len(r.entries))
		}
		if e.Fn == nil {
			return nil, fmt.Errorf("native: %s has no function", e.Name)
		}
		if _, dup := r.index[e.Name]; dup {
			return nil, fmt.Errorf("native: duplicate entry %s", e.Name)
		}
		r.index[e.Name] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (int, Entry, bool) {
	if r == nil {
		return 0, Entry{}, false
	}
	i, ok := r.index[name]
	if !ok {
		return 0, Entry{}, false
	}
	return i, r.entries[i], true
}

func (r *Registry) At(i int) (Entry, bool) {
	if r == nil || i < 0 || i >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[i], true
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// Names returns the entry names in ordinal order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}
