/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vars

import "strings"

// Interpolate replaces every {name} placeholder in s with the value found by
// lookup. Placeholders that do not resolve stay verbatim and their names are
// returned in missing so the caller can log them. An unterminated brace is
// copied through as-is.
func Interpolate(s string, lookup func(string) (Value, bool)) (out string, missing []string) {
	if !strings.Contains(s, "{") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			break
		}
		end := strings.IndexByte(s[open+1:], '}')
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += open + 1
		b.WriteString(s[:open])
		name := s[open+1 : end]
		if v, ok := lookup(name); ok && name != "" {
			b.WriteString(v.Text())
		} else {
			b.WriteString(s[open : end+1])
			missing = append(missing, name)
		}
		s = s[end+1:]
	}
	return b.String(), missing
}
