/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package choice turns a `choice` line into selectable regions and resolves
// the player's pick.
package choice

import (
	"errors"
	"fmt"
)

var (
	ErrNoActiveChoice = errors.New("choice: no active choice")
	ErrOutOfRange     = errors.New("choice: selection out of range")
)

// Point is a device-space position, origin top-left.
type Point struct{ X, Y float64 }

// Rect is a device-space rectangle, origin top-left.
type Rect struct{ X, Y, W, H float64 }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Region is one presented option. Index is 1-based.
type Region struct {
	Index int
	Label string
	Rect  Rect
}

// View draws and removes option regions.
type View interface {
	ShowChoices([]Region)
	ClearChoices()
}

// Layout places option boxes: fixed-size boxes stacked top to bottom,
// centred on the screen.
type Layout struct {
	ScreenW, ScreenH float64
	BoxW, BoxH, Gap  float64
}

func (l Layout) regions(options []string) []Region {
	n := float64(len(options))
	total := n*l.BoxH + (n-1)*l.Gap
	top := (l.ScreenH - total) / 2
	if top < 0 {
		top = 0
	}
	x := (l.ScreenW - l.BoxW) / 2
	out := make([]Region, len(options))
	for i, o := range options {
		out[i] = Region{
			Index: i + 1,
			Label: o,
			Rect:  Rect{X: x, Y: top + float64(i)*(l.BoxH+l.Gap), W: l.BoxW, H: l.BoxH},
		}
	}
	return out
}

// Coordinator owns the single active choice set.
type Coordinator struct {
	Layout Layout
	View   View

	regions  []Region
	onSelect func(int)
}

func NewCoordinator(layout Layout, view View) *Coordinator {
	return &Coordinator{Layout: layout, View: view}
}

// Present shows options and remembers onSelect, which Resolve calls with
// the 1-based index. A previous active set is replaced.
func (c *Coordinator) Present(options []string, onSelect func(int)) []Region {
	c.regions = c.Layout.regions(options)
	c.onSelect = onSelect
	if c.View != nil {
		c.View.ShowChoices(append([]Region(nil), c.regions...))
	}
	return c.regions
}

func (c *Coordinator) Active() bool { return c.onSelect != nil }

// Regions returns the active regions in presentation order.
func (c *Coordinator) Regions() []Region { return append([]Region(nil), c.regions...) }

// Options returns the active option labels.
func (c *Coordinator) Options() []string {
	out := make([]string, len(c.regions))
	for i, r := range c.regions {
		out[i] = r.Label
	}
	return out
}

// Resolve selects option i (1-based), clears the set and fires the
// callback exactly once.
func (c *Coordinator) Resolve(i int) error {
	if !c.Active() {
		return ErrNoActiveChoice
	}
	if i < 1 || i > len(c.regions) {
		return fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(c.regions))
	}
	cb := c.onSelect
	c.Clear()
	cb(i)
	return nil
}

// HitTest returns the index of the first region containing p.
func (c *Coordinator) HitTest(p Point) (int, bool) {
	if !c.Active() {
		return 0, false
	}
	for _, r := range c.regions {
		if r.Rect.Contains(p) {
			return r.Index, true
		}
	}
	return 0, false
}

// Clear drops the active set without selecting anything.
func (c *Coordinator) Clear() {
	c.regions = nil
	c.onSelect = nil
	if c.View != nil {
		c.View.ClearChoices()
	}
}
