/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package vars holds the interpreter's variable state: a tagged Int|String
// value, the local and global scopes, and {name} interpolation.
package vars

import (
	"strconv"
	"strings"
)

// Kind tags the payload of a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseKind maps the serialized type names back to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "int":
		return KindInt, true
	case "string":
		return KindString, true
	}
	return 0, false
}

// Value is a script variable. The zero Value is Int(0).
type Value struct {
	kind Kind
	i    int64
	s    string
}

func Int(v int64) Value  { return Value{kind: KindInt, i: v} }
func Str(v string) Value { return Value{kind: KindString, s: v} }

func (v Value) Kind() Kind { return v.kind }

// Int64 reports the integer payload; ok is false for strings.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Text renders the value the way interpolation shows it.
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	}
	return ""
}

func (v Value) String() string { return v.Text() }

func (v Value) Equal(o Value) bool { return v == o }

// Literal converts an assignment operand into a Value: integers become Int,
// everything else Str with one pair of surrounding double quotes removed.
func Literal(raw string) Value {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Int(n)
	}
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	return Str(raw)
}
