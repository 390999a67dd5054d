package eval

import "github.com/planguard/planguard/internal/model"

// Env is the stack of name scopes for one script run. The script body is
// a single flat scope; a fresh scope is pushed for each comprehension
// generator and popped when the comprehension completes, so generator
// variables never leak.
type Env struct {
	scopes []map[string]*model.Value
}

// NewEnv returns an environment with the script scope in place.
func NewEnv() *Env {
	return &Env{scopes: []map[string]*model.Value{{}}}
}

// Push opens a new innermost scope.
func (e *Env) Push() {
	e.scopes = append(e.scopes, map[string]*model.Value{})
}

// Pop discards the innermost scope. The script scope is never popped.
func (e *Env) Pop() {
	if len(e.scopes) > 1 {
		e.scopes = e.scopes[:len(e.scopes)-1]
	}
}

// Get resolves a name, innermost scope first.
func (e *Env) Get(name string) (*model.Value, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if v, ok := e.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set binds a name in the innermost scope.
func (e *Env) Set(name string, v *model.Value) {
	e.scopes[len(e.scopes)-1][name] = v
}
