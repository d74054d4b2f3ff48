/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strconv"
	"strings"
)

// Parse splits text into lines and builds the label table. It never fails:
// malformed lines are only discovered when they are executed (or by Lint).
func Parse(name, text string) *Document {
	raw := strings.Split(text, "\n")
	lines := make([]string, len(raw))
	doc := &Document{Name: name, Lines: lines, Labels: map[string]int{}}
	for i, l := range raw {
		l = strings.TrimSuffix(l, "\r")
		lines[i] = l
		trim := strings.TrimSpace(l)
		if !strings.HasPrefix(trim, "label ") && !strings.HasPrefix(trim, "label\t") {
			continue
		}
		// the whole remainder names the label, inner spaces included
		name := strings.TrimSpace(trim[len("label"):])
		if name == "" {
			continue
		}
		if _, dup := doc.Labels[name]; dup {
			doc.Duplicates = append(doc.Duplicates, name)
		}
		doc.Labels[name] = i + 1
	}
	return doc
}

// Decode turns one line into an Instruction. Blank lines and lines that are
// only whitespace decode to OpNone.
func Decode(line string) Instruction {
	trim := strings.TrimSpace(line)
	if trim == "" {
		return Instruction{Op: OpNone}
	}
	tokens := strings.Fields(trim)
	rest := strings.TrimLeft(trim[len(tokens[0]):], " \t")
	return Instruction{Op: Op(tokens[0]), Tokens: tokens, Rest: rest}
}

func itoa(n int) string { return strconv.Itoa(n) }
