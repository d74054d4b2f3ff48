/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout measures and line-breaks dialogue text. Measurement is
// isolated behind Measurer so the same wrapping rules drive pixel fonts,
// OpenType faces and terminal cells.
package textlayout

import (
	"github.com/mattn/go-runewidth"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name, "" for the default face
	SizePt float32
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// LineHeight is the baseline-to-baseline distance.
func (m Metrics) LineHeight() float32 { return m.Ascent + m.Descent + m.LineGap }

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// Measurer reports the rendered width of a string in the unit of the wrap
// width (pixels for faces, cells for terminals).
type Measurer interface {
	Advance(s string) float32
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// FaceMeasurer measures with a font.Face, kerning included.
type FaceMeasurer struct {
	d       *font.Drawer
	metrics Metrics
}

func NewFaceMeasurer(face font.Face) *FaceMeasurer {
	return &FaceMeasurer{d: &font.Drawer{Face: face}, metrics: metricsOf(face)}
}

// MeasurerFor resolves spec with provider (BasicProvider when nil).
func MeasurerFor(provider Provider, spec FontSpec) *FaceMeasurer {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	return &FaceMeasurer{d: &font.Drawer{Face: face}, metrics: met}
}

func (m *FaceMeasurer) Advance(s string) float32 { return advance(m.d, s) }

func (m *FaceMeasurer) Metrics() Metrics { return m.metrics }

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s) >> 6) // fixed.Int26_6 to px
}

// CellMeasurer counts terminal cells; East Asian wide runes take two.
type CellMeasurer struct{}

func (CellMeasurer) Advance(s string) float32 { return float32(runewidth.StringWidth(s)) }
