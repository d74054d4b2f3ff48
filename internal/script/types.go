/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script loads novel scripts into an addressable line table and
// decodes individual lines into instructions.
package script

// Op is the first whitespace-separated token of a script line.
type Op string

const (
	OpNone      Op = ""
	OpLabel     Op = "label"
	OpBgload    Op = "bgload"
	OpSetimg    Op = "setimg"
	OpSound     Op = "sound"
	OpMusic     Op = "music"
	OpText      Op = "text"
	OpClearText Op = "cleartext"
	OpChoice    Op = "choice"
	OpSetvar    Op = "setvar"
	OpGsetvar   Op = "gsetvar"
	OpIf        Op = "if"
	OpFi        Op = "fi"
	OpJump      Op = "jump"
	OpGoto      Op = "goto"
	OpDelay     Op = "delay"
	OpRandom    Op = "random"
)

var known = map[Op]struct{}{
	OpLabel: {}, OpBgload: {}, OpSetimg: {}, OpSound: {}, OpMusic: {}, OpText: {},
	OpClearText: {}, OpChoice: {}, OpSetvar: {}, OpGsetvar: {}, OpIf: {}, OpFi: {},
	OpJump: {}, OpGoto: {}, OpDelay: {}, OpRandom: {},
}

// IsKnown reports whether op is one of the interpreter's opcodes.
func IsKnown(op Op) bool {
	_, ok := known[op]
	return ok
}

// Document is a loaded script: immutable lines plus the label table.
// Labels map a label name to the index of the line right after the
// `label` line, so a jump lands on the first instruction of the block.
type Document struct {
	Name   string
	Lines  []string
	Labels map[string]int
	// Duplicates lists label names declared more than once; the last
	// declaration wins.
	Duplicates []string
}

// Len is the number of lines; a cursor equal to Len is past the end.
func (d *Document) Len() int { return len(d.Lines) }

// Line returns the raw line at i, or "" when i is out of range.
func (d *Document) Line(i int) string {
	if i < 0 || i >= len(d.Lines) {
		return ""
	}
	return d.Lines[i]
}

// Label resolves a label name to its target line index. Names are the
// trimmed remainder of the `label` line, so they may contain spaces.
func (d *Document) Label(name string) (int, bool) {
	i, ok := d.Labels[name]
	return i, ok
}

// Instruction is a decoded line.
type Instruction struct {
	Op     Op
	Tokens []string // Tokens[0] is the opcode
	Rest   string   // raw text after the opcode, leading whitespace removed
}

// Arg returns the i-th argument (Tokens[i+1]) or "".
func (in Instruction) Arg(i int) string {
	if i+1 >= len(in.Tokens) || i < 0 {
		return ""
	}
	return in.Tokens[i+1]
}

// NArgs is the number of arguments after the opcode.
func (in Instruction) NArgs() int {
	if len(in.Tokens) == 0 {
		return 0
	}
	return len(in.Tokens) - 1
}

// Error represents a script problem with position context. Line is 1-based.

type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string {
	return itoa(e.Line) + ":" + itoa(e.Column) + ": " + e.Message
}
