// Package scope implements the Cb Scope Stack: a
// LIFO stack of name->Variable maps with a single global scope at the
// bottom, plus a secondary function-pointer table and synthesized
// temporary names.
//
// The operation set (Push/Pop/Find/Insert/InsertGlobal/Remove/Has/Clone) keys each frame
// on map[string]*value.Variable rather than a plain Value, since Cb
// bindings carry type metadata a bare value can't.
package scope

import (
	"fmt"

	"github.com/shadowlink0122/cb/pkg/value"
)

// FunctionPointer is the record stored in the scope's function-pointer
// table.
type FunctionPointer struct {
	Name     string
	TargetID int64
}

type frame struct {
	vars  map[string]*value.Variable
	funcs map[string]*FunctionPointer
}

func newFrame() *frame {
	return &frame{vars: make(map[string]*value.Variable), funcs: make(map[string]*FunctionPointer)}
}

// Stack is the nested lexical scope stack. Index 0 is the global scope;
// it is never popped.
type Stack struct {
	frames  []*frame
	tempSeq int
}

func New() *Stack {
	return &Stack{frames: []*frame{newFrame()}}
}

// Push installs a fresh scope, used at block/method/function entry.
func (s *Stack) Push() { s.frames = append(s.frames, newFrame()) }

// Pop discards the current scope. Popping the global scope is a no-op:
// the global frame is the permanent floor of the stack.
func (s *Stack) Pop() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

func (s *Stack) Depth() int { return len(s.frames) }

func (s *Stack) current() *frame { return s.frames[len(s.frames)-1] }
func (s *Stack) global() *frame  { return s.frames[0] }

// Find walks top-down then falls through to the global scope.
func (s *Stack) Find(name string) (*value.Variable, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Insert binds name in the current scope.
func (s *Stack) Insert(name string, v *value.Variable) {
	v.Name = name
	s.current().vars[name] = v
}

// InsertGlobal binds name directly in the global scope.
func (s *Stack) InsertGlobal(name string, v *value.Variable) {
	v.Name = name
	s.global().vars[name] = v
}

// Remove deletes name from whichever scope currently holds it.
func (s *Stack) Remove(name string) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].vars[name]; ok {
			delete(s.frames[i].vars, name)
			return
		}
	}
}

// Has reports whether name is visible from the current scope.
func (s *Stack) Has(name string) bool {
	_, ok := s.Find(name)
	return ok
}

// AddTemp inserts v under a guaranteed-unique synthesized name
// and returns that name.
func (s *Stack) AddTemp(prefix string, v *value.Variable) string {
	s.tempSeq++
	name := fmt.Sprintf("__%s_%d", prefix, s.tempSeq)
	s.Insert(name, v)
	return name
}

// FindFunctionPointer resolves a function-pointer binding by name,
// top-down then global.
func (s *Stack) FindFunctionPointer(name string) (*FunctionPointer, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if fp, ok := s.frames[i].funcs[name]; ok {
			return fp, true
		}
	}
	return nil, false
}

func (s *Stack) InsertFunctionPointer(name string, fp *FunctionPointer) {
	s.current().funcs[name] = fp
}

// WithShadowPrefix returns every binding in scope whose name begins with
// prefix, searching the current scope only — shadows are installed
// per-call in the call frame, so there is never a need to search outer
// frames for them.
func (s *Stack) WithShadowPrefix(prefix string) map[string]*value.Variable {
	out := make(map[string]*value.Variable)
	for name, v := range s.current().vars {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			out[name] = v
		}
	}
	return out
}

// Clone deep-copies the frame structure (not the Variables themselves);
// the copy shares every bound Variable with s.
func (s *Stack) Clone() *Stack {
	out := &Stack{frames: make([]*frame, len(s.frames)), tempSeq: s.tempSeq}
	for i, f := range s.frames {
		nf := newFrame()
		for k, v := range f.vars {
			nf.vars[k] = v
		}
		for k, v := range f.funcs {
			nf.funcs[k] = v
		}
		out.frames[i] = nf
	}
	return out
}
