/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vars

import (
	"errors"
	"maps"
	"sort"
	"strconv"
)

var (
	// ErrNotInt is returned when +/- targets a missing or non-integer variable.
	ErrNotInt = errors.New("vars: not an integer")
	// ErrBadOperator is returned for assignment operators other than = + -.
	ErrBadOperator = errors.New("vars: unsupported operator")
)

// Scope is one name -> Value map. It is not safe for concurrent use; the
// executor owns it on its loop goroutine.
type Scope struct {
	m map[string]Value
}

func NewScope() *Scope { return &Scope{m: map[string]Value{}} }

func (s *Scope) Get(name string) (Value, bool) {
	v, ok := s.m[name]
	return v, ok
}

func (s *Scope) Set(name string, v Value) { s.m[name] = v }

func (s *Scope) Delete(name string) { delete(s.m, name) }

func (s *Scope) Len() int { return len(s.m) }

func (s *Scope) Reset() { clear(s.m) }

// Snapshot returns a copy of the scope contents.
func (s *Scope) Snapshot() map[string]Value { return maps.Clone(s.m) }

// Replace discards the current contents and copies m in.
func (s *Scope) Replace(m map[string]Value) {
	clear(s.m)
	maps.Copy(s.m, m)
}

// Names returns the variable names in sorted order.
func (s *Scope) Names() []string {
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Assign applies a setvar-style operation. "=" stores Literal(operand).
// "+" and "-" need an existing Int and an integer operand; otherwise the
// scope is left untouched and ErrNotInt is returned for the caller to log.
func (s *Scope) Assign(name, op, operand string) error {
	switch op {
	case "=":
		s.m[name] = Literal(operand)
		return nil
	case "+", "-":
		cur, ok := s.m[name]
		if !ok {
			return ErrNotInt
		}
		n, isInt := cur.Int64()
		if !isInt {
			return ErrNotInt
		}
		d, err := strconv.ParseInt(operand, 10, 64)
		if err != nil {
			return ErrNotInt
		}
		if op == "-" {
			d = -d
		}
		s.m[name] = Int(n + d)
		return nil
	}
	return ErrBadOperator
}

// Store pairs the per-script local scope with the session-wide global scope.
type Store struct {
	Local  *Scope
	Global *Scope
}

func NewStore() *Store { return &Store{Local: NewScope(), Global: NewScope()} }

// Lookup checks the local scope first, then the global scope.
func (st *Store) Lookup(name string) (Value, bool) {
	if v, ok := st.Local.Get(name); ok {
		return v, true
	}
	return st.Global.Get(name)
}
