/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package save converts interpreter state to and from the on-disk save
// document. Documents are JSON validated against an embedded schema; the
// XML layout of older saves can be imported.
package save

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"govn/internal/scene"
	"govn/internal/vars"
)

// FormatVersion is written into every document.
const FormatVersion = 1

//go:embed save.schema.json
var schemaJSON []byte

// ErrMalformed marks a save document that cannot be restored.
var ErrMalformed = errors.New("save: malformed document")

// MalformedError carries the individual validation problems.
type MalformedError struct {
	Problems []string
}

func (e *MalformedError) Error() string {
	return ErrMalformed.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *MalformedError) Unwrap() error { return ErrMalformed }

func malformed(format string, args ...any) error {
	return &MalformedError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// State is everything needed to resume a session: the script and cursor,
// both variable scopes and what is on stage.
type State struct {
	Script   string
	Position int
	Date     time.Time
	Locals   map[string]vars.Value
	Globals  map[string]vars.Value
	Scene    scene.State
}

type document struct {
	Version         int        `json:"version"`
	Script          scriptRef  `json:"script"`
	Date            string     `json:"date,omitempty"`
	Variables       []variable `json:"variables"`
	GlobalVariables []variable `json:"globalVariables"`
	State           stageDoc   `json:"state"`
}

type scriptRef struct {
	File     string `json:"file"`
	Position int    `json:"position"`
}

type variable struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type stageDoc struct {
	Background string      `json:"background,omitempty"`
	Sprites    []spriteDoc `json:"sprites"`
	Music      string      `json:"music,omitempty"`
}

type spriteDoc struct {
	Path string  `json:"path"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func encodeVars(m map[string]vars.Value) []variable {
	out := make([]variable, 0, len(m))
	for name, v := range m {
		out = append(out, variable{Name: name, Type: v.Kind().String(), Value: v.Text()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func decodeVars(in []variable) (map[string]vars.Value, error) {
	out := make(map[string]vars.Value, len(in))
	for _, v := range in {
		kind, ok := vars.ParseKind(v.Type)
		if !ok {
			return nil, malformed("variable %q: unknown type %q", v.Name, v.Type)
		}
		switch kind {
		case vars.KindInt:
			n, err := strconv.ParseInt(strings.TrimSpace(v.Value), 10, 64)
			if err != nil {
				return nil, malformed("variable %q: %q is not an integer", v.Name, v.Value)
			}
			out[v.Name] = vars.Int(n)
		case vars.KindString:
			out[v.Name] = vars.Str(v.Value)
		}
	}
	return out, nil
}

// Marshal encodes st as an indented JSON document.
func Marshal(st State) ([]byte, error) {
	if st.Script == "" {
		return nil, errors.New("save: state has no script")
	}
	if st.Date.IsZero() {
		st.Date = time.Now()
	}
	doc := document{
		Version:         FormatVersion,
		Script:          scriptRef{File: st.Script, Position: st.Position},
		Date:            st.Date.UTC().Format(time.RFC3339),
		Variables:       encodeVars(st.Locals),
		GlobalVariables: encodeVars(st.Globals),
		State: stageDoc{
			Background: st.Scene.Background,
			Sprites:    make([]spriteDoc, 0, len(st.Scene.Sprites)),
			Music:      st.Scene.Music,
		},
	}
	for _, sp := range st.Scene.Sprites {
		doc.State.Sprites = append(doc.State.Sprites, spriteDoc{Path: sp.Path, X: sp.X, Y: sp.Y})
	}
	return json.MarshalIndent(doc, "", "  ")
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Validate checks data against the save schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("save: compile schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &MalformedError{Problems: []string{err.Error()}}
	}
	if !res.Valid() {
		me := &MalformedError{}
		for _, e := range res.Errors() {
			me.Problems = append(me.Problems, e.String())
		}
		return me
	}
	return nil
}

// Unmarshal validates and decodes a JSON save document.
func Unmarshal(data []byte) (State, error) {
	if err := Validate(data); err != nil {
		return State{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return State{}, malformed("%v", err)
	}
	if doc.Version > FormatVersion {
		return State{}, malformed("unsupported version %d", doc.Version)
	}
	locals, err := decodeVars(doc.Variables)
	if err != nil {
		return State{}, err
	}
	globals, err := decodeVars(doc.GlobalVariables)
	if err != nil {
		return State{}, err
	}
	st := State{
		Script:   doc.Script.File,
		Position: doc.Script.Position,
		Locals:   locals,
		Globals:  globals,
		Scene:    scene.State{Background: doc.State.Background, Music: doc.State.Music},
	}
	if doc.Date != "" {
		if t, err := time.Parse(time.RFC3339, doc.Date); err == nil {
			st.Date = t
		}
	}
	for _, sp := range doc.State.Sprites {
		st.Scene.Sprites = append(st.Scene.Sprites, scene.Sprite{Path: sp.Path, X: sp.X, Y: sp.Y})
	}
	return st, nil
}
