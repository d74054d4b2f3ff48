/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"fmt"
	"strconv"
	"strings"

	"govn/internal/cond"
)

// Lint checks a document without executing it: unknown opcodes, missing
// arguments, goto targets that are not declared, unbalanced if/fi and
// duplicate labels. Problems are reported with 1-based line numbers.
func Lint(doc *Document) []Error {
	var errs []Error
	add := func(i int, format string, args ...any) {
		errs = append(errs, Error{Line: i + 1, Column: 1, Message: fmt.Sprintf(format, args...)})
	}
	depth := 0
	var openIfs []int
	for i, l := range doc.Lines {
		in := Decode(l)
		if in.Op == OpNone {
			continue
		}
		if !IsKnown(in.Op) {
			add(i, "unknown opcode %q", in.Op)
			continue
		}
		switch in.Op {
		case OpLabel, OpGoto, OpBgload, OpMusic, OpSound, OpJump:
			if in.NArgs() < 1 {
				add(i, "%s needs an argument", in.Op)
			}
			if in.Op == OpGoto && in.NArgs() >= 1 {
				if _, ok := doc.Label(strings.TrimSpace(in.Rest)); !ok {
					add(i, "goto to undeclared label %q", strings.TrimSpace(in.Rest))
				}
			}
			if in.Op == OpJump && in.NArgs() >= 2 && (in.Arg(1) != ":" || in.NArgs() < 3) {
				add(i, "jump expects `jump <script> [: <label>]`")
			}
		case OpSetimg:
			if in.NArgs() < 3 {
				add(i, "setimg expects <path> <x> <y>")
			} else if !isNumber(in.Arg(1)) || !isNumber(in.Arg(2)) {
				add(i, "setimg coordinates must be numbers")
			}
		case OpSetvar, OpGsetvar:
			if in.NArgs() < 3 {
				add(i, "%s expects <name> <op> <value>", in.Op)
			} else if op := in.Arg(1); op != "=" && op != "+" && op != "-" {
				add(i, "%s: unsupported operator %q", in.Op, op)
			}
		case OpIf:
			if in.NArgs() < 3 {
				add(i, "if expects <var> <op> <value>")
			} else if !cond.Valid(in.Arg(1)) {
				add(i, "if: unknown operator %q", in.Arg(1))
			}
			depth++
			openIfs = append(openIfs, i)
		case OpFi:
			if depth == 0 {
				add(i, "fi without matching if")
			} else {
				depth--
				openIfs = openIfs[:len(openIfs)-1]
			}
		case OpDelay:
			if in.NArgs() < 1 || !isInt(in.Arg(0)) {
				add(i, "delay expects a frame count")
			}
		case OpRandom:
			if in.NArgs() < 4 || in.Arg(1) != "~" || !isInt(in.Arg(2)) || !isInt(in.Arg(3)) {
				add(i, "random expects <var> ~ <min> <max>")
			}
		case OpChoice:
			if in.Rest == "" {
				add(i, "choice without options")
			}
		}
	}
	for _, i := range openIfs {
		add(i, "if without matching fi")
	}
	for _, name := range doc.Duplicates {
		errs = append(errs, Error{Line: doc.Labels[name], Column: 1, Message: fmt.Sprintf("label %q declared more than once", name)})
	}
	return errs
}

func isInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
