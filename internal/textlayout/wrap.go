/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Kinsoku sets. A line may not begin with a rune from forbiddenStart nor end
// with a rune from forbiddenEnd.
const (
	forbiddenStart = "、。，．・：；？！ー…‥）」』】〕〉》］｝ぁぃぅぇぉっゃゅょゎァィゥェォッャュョヮヵヶ,.)]}!?:;"
	forbiddenEnd   = "（「『【〔〈《［｛([{"
)

// IsForbiddenStart reports whether r may not start a line.
func IsForbiddenStart(r rune) bool { return strings.ContainsRune(forbiddenStart, r) }

// IsForbiddenEnd reports whether r may not end a line.
func IsForbiddenEnd(r rune) bool { return strings.ContainsRune(forbiddenEnd, r) }

// IsCJK reports whether r belongs to a script that breaks between any two
// characters: CJK punctuation, kana, unified ideographs and full-width forms.
func IsCJK(r rune) bool {
	switch {
	case r >= 0x3000 && r <= 0x303f,
		r >= 0x3040 && r <= 0x309f,
		r >= 0x30a0 && r <= 0x30ff,
		r >= 0x4e00 && r <= 0x9faf,
		r >= 0xff00 && r <= 0xffef:
		return true
	}
	if r < 0x1100 {
		return false
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return true
	}
	return false
}

func isLatinLetter(r rune) bool {
	return r < unicode.MaxLatin1 && unicode.IsLetter(r)
}

// Wrap breaks text into lines no wider than maxWidth. Explicit newlines are
// kept. Latin text breaks at spaces; a word wider than the whole line is
// split with a trailing hyphen. CJK text breaks between any two characters,
// hanging forbidden-start punctuation on the previous line and pushing
// forbidden-end punctuation to the next one. A maxWidth <= 0 disables
// wrapping.
func Wrap(text string, maxWidth float32, m Measurer) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		out = append(out, wrapParagraph([]rune(para), maxWidth, m)...)
	}
	return out
}

// Wrapper binds a Measurer and width for repeated use.
type Wrapper struct {
	Measurer Measurer
	MaxWidth float32
}

func (w Wrapper) Wrap(text string) []string {
	m := w.Measurer
	if m == nil {
		m = MeasurerFor(nil, FontSpec{})
	}
	return Wrap(text, w.MaxWidth, m)
}

func wrapParagraph(rs []rune, maxWidth float32, m Measurer) []string {
	if len(rs) == 0 {
		return []string{""}
	}
	if maxWidth <= 0 {
		return []string{string(rs)}
	}
	var (
		lines []string
		cur   []rune
	)
	emit := func(r []rune) {
		lines = append(lines, strings.TrimRight(string(r), " "))
	}
	fits := func(r []rune) bool { return m.Advance(string(r)) <= maxWidth }

	for _, c := range rs {
		if len(cur) == 0 && len(lines) > 0 {
			if c == ' ' {
				continue
			}
			if IsForbiddenStart(c) {
				lines[len(lines)-1] += string(c)
				continue
			}
		}
		next := append(cur, c)
		if len(cur) == 0 || fits(next) {
			cur = next
			continue
		}
		last := cur[len(cur)-1]
		switch {
		case c == ' ':
			emit(cur)
			cur = nil
		case IsCJK(c) || IsCJK(last):
			if IsForbiddenStart(c) {
				emit(append(cur, c))
				cur = nil
				continue
			}
			k := len(cur)
			for k > 1 && IsForbiddenEnd(cur[k-1]) {
				k--
			}
			if k < len(cur) && !IsForbiddenEnd(cur[k-1]) {
				emit(cur[:k])
				cur = append(append([]rune(nil), cur[k:]...), c)
			} else {
				emit(cur)
				cur = []rune{c}
			}
		default:
			if sp := lastSpace(cur); sp >= 0 {
				emit(cur[:sp])
				cur = append(append([]rune(nil), cur[sp+1:]...), c)
				for len(cur) > 1 && !fits(cur) {
					cur = splitWord(cur, fits, emit)
				}
			} else {
				cur = splitWord(append(cur, c), fits, emit)
			}
		}
	}
	if len(cur) > 0 || len(lines) == 0 {
		emit(cur)
	}
	return lines
}

func lastSpace(r []rune) int {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == ' ' {
			return i
		}
	}
	return -1
}

// splitWord emits the longest prefix of word that fits, hyphenated when the
// cut falls between two Latin letters, and returns the remainder.
func splitWord(word []rune, fits func([]rune) bool, emit func([]rune)) []rune {
	n := len(word) - 1
	for n > 1 && !fits(word[:n]) {
		n--
	}
	head := word[:n]
	if isLatinLetter(word[n-1]) && isLatinLetter(word[n]) {
		// make room for the hyphen
		h := append(append([]rune(nil), head...), '-')
		for n > 1 && !fits(h) {
			n--
			h = append(append([]rune(nil), word[:n]...), '-')
		}
		if isLatinLetter(word[n-1]) && isLatinLetter(word[n]) {
			emit(h)
		} else {
			emit(word[:n])
		}
	} else {
		emit(head)
	}
	return append([]rune(nil), word[n:]...)
}
