/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cond evaluates the comparison in an `if <var> <op> <value>` line.
package cond

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"govn/internal/vars"
)

var (
	// ErrUnsupportedComparison is returned for ordering operators on
	// non-numeric operands.
	ErrUnsupportedComparison = errors.New("cond: ordering comparison on non-numeric operands")
	ErrUnknownOperator       = errors.New("cond: unknown operator")
)

// Operators lists the accepted comparison operators.
var Operators = []string{"==", "!=", ">", "<", ">=", "<="}

// Valid reports whether op is a known operator.
func Valid(op string) bool {
	for _, o := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// Evaluate compares left against the literal right. Both sides numeric means
// an integer comparison; otherwise only == and != are defined.
func Evaluate(left vars.Value, op, right string) (bool, error) {
	if !Valid(op) {
		return false, fmt.Errorf("%w %q", ErrUnknownOperator, op)
	}
	right = strings.TrimSpace(right)
	if l, ok := numeric(left); ok {
		if r, err := strconv.ParseInt(right, 10, 64); err == nil {
			return compareInts(l, op, r), nil
		}
	}
	ls := left.Text()
	rs := vars.Literal(right).Text()
	switch op {
	case "==":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	}
	return false, fmt.Errorf("%w: %q %s %q", ErrUnsupportedComparison, ls, op, rs)
}

func numeric(v vars.Value) (int64, bool) {
	switch v.Kind() {
	case vars.KindInt:
		return v.Int64()
	case vars.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Text()), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func compareInts(l int64, op string, r int64) bool {
	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r
	case ">":
		return l > r
	case "<":
		return l < r
	case ">=":
		return l >= r
	case "<=":
		return l <= r
	}
	return false
}
