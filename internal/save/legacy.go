/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package save

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"govn/internal/scene"
	"govn/internal/vars"
)

type xmlSave struct {
	XMLName    xml.Name    `xml:"save"`
	File       string      `xml:"script>file"`
	Position   string      `xml:"script>position"`
	Date       string      `xml:"date"`
	Vars       []xmlVar    `xml:"variables>var"`
	Globals    []xmlVar    `xml:"globalVariables>var"`
	Music      string      `xml:"state>music"`
	Background string      `xml:"state>background"`
	Sprites    []xmlSprite `xml:"state>sprites>sprite"`
}

type xmlVar struct {
	Name  string `xml:"name,attr"`
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type xmlSprite struct {
	Path string `xml:"path,attr"`
	X    string `xml:"x,attr"`
	Y    string `xml:"y,attr"`
}

// legacyDateLayout is the date format of XML saves ("HH:mm yyyy/MM/dd").
const legacyDateLayout = "15:04 2006/01/02"

// UnmarshalXML imports a legacy <save> document. Legacy positions count the
// line after the one waiting for input, so they are shifted down by one.
// Variables of unknown type are skipped.
func UnmarshalXML(data []byte) (State, error) {
	var doc xmlSave
	if err := xml.Unmarshal(data, &doc); err != nil {
		return State{}, malformed("xml: %v", err)
	}
	file := strings.TrimSpace(doc.File)
	if file == "" {
		return State{}, malformed("xml: missing script file")
	}
	pos, err := strconv.Atoi(strings.TrimSpace(doc.Position))
	if err != nil {
		return State{}, malformed("xml: position %q", doc.Position)
	}
	st := State{
		Script:   file,
		Position: max(pos-1, 0),
		Scene: scene.State{
			Background: strings.TrimSpace(doc.Background),
			Music:      strings.TrimSpace(doc.Music),
		},
	}
	if st.Locals, err = legacyVars(doc.Vars); err != nil {
		return State{}, err
	}
	if st.Globals, err = legacyVars(doc.Globals); err != nil {
		return State{}, err
	}
	if t, err := time.Parse(legacyDateLayout, strings.TrimSpace(doc.Date)); err == nil {
		st.Date = t
	}
	for _, sp := range doc.Sprites {
		if sp.Path == "" {
			return State{}, malformed("xml: sprite without path")
		}
		x, xerr := strconv.ParseFloat(strings.TrimSpace(sp.X), 64)
		y, yerr := strconv.ParseFloat(strings.TrimSpace(sp.Y), 64)
		if xerr != nil || yerr != nil {
			return State{}, malformed("xml: sprite %s at (%q, %q)", sp.Path, sp.X, sp.Y)
		}
		st.Scene.Sprites = append(st.Scene.Sprites, scene.Sprite{Path: sp.Path, X: x, Y: y})
	}
	return st, nil
}

func legacyVars(in []xmlVar) (map[string]vars.Value, error) {
	out := make(map[string]vars.Value, len(in))
	for _, v := range in {
		switch v.Type {
		case "int":
			n, err := strconv.ParseInt(strings.TrimSpace(v.Value), 10, 64)
			if err != nil {
				return nil, malformed("xml: int variable %s = %q", v.Name, v.Value)
			}
			out[v.Name] = vars.Int(n)
		case "string":
			out[v.Name] = vars.Str(v.Value)
		}
	}
	return out, nil
}
