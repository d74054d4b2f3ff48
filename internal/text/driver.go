/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package text drives the dialogue box: typewriter reveal, paragraph
// concatenation and wrapping of the visible prefix.
package text

import (
	"time"

	"govn/internal/runloop"
	"govn/internal/textlayout"
)

// DefaultCharDelay is the reveal pace used when Driver.CharDelay is zero.
const DefaultCharDelay = 50 * time.Millisecond

// ParagraphSeparator joins consecutive lines of one paragraph.
const ParagraphSeparator = "  "

// View renders the wrapped visible text.
type View interface {
	ShowText(lines []string)
	ClearText()
}

// Driver reveals text one character per CharDelay on Sched. All methods must
// be called from the interpreter's thread.
type Driver struct {
	View      View
	Sched     runloop.Scheduler
	Wrap      textlayout.Wrapper
	CharDelay time.Duration

	para      []rune
	shown     int
	animating bool
	cancel    func()
	onDone    func()
}

func NewDriver(view View, sched runloop.Scheduler, wrap textlayout.Wrapper, charDelay time.Duration) *Driver {
	return &Driver{View: view, Sched: sched, Wrap: wrap, CharDelay: charDelay}
}

func (d *Driver) delay() time.Duration {
	if d.CharDelay > 0 {
		return d.CharDelay
	}
	return DefaultCharDelay
}

// Animating reports whether a reveal is in progress.
func (d *Driver) Animating() bool { return d.animating }

// Paragraph returns the full paragraph text, revealed or not.
func (d *Driver) Paragraph() string { return string(d.para) }

// Visible returns the revealed prefix.
func (d *Driver) Visible() string { return string(d.para[:d.shown]) }

func (d *Driver) appendLine(line string) {
	if len(d.para) > 0 {
		d.para = append(d.para, []rune(ParagraphSeparator)...)
	}
	d.para = append(d.para, []rune(line)...)
}

// Show appends line to the paragraph and reveals the new characters over
// time, continuing from what is already visible. onDone runs once, when the
// reveal finishes or Complete is called; it never runs inside Show.
func (d *Driver) Show(line string, onDone func()) {
	d.stop()
	d.appendLine(line)
	d.onDone = onDone
	d.animating = true
	d.schedule()
}

// ShowInstant appends line and reveals the whole paragraph at once.
func (d *Driver) ShowInstant(line string) {
	d.stop()
	d.appendLine(line)
	d.shown = len(d.para)
	d.animating = false
	d.onDone = nil
	d.render()
}

// Complete reveals everything immediately and fires the pending completion.
// It reports whether a reveal was in progress.
func (d *Driver) Complete() bool {
	if !d.animating {
		return false
	}
	d.finish()
	return true
}

// Clear empties the paragraph and the view. A pending completion is dropped.
func (d *Driver) Clear() {
	d.stop()
	d.animating = false
	d.onDone = nil
	d.para = nil
	d.shown = 0
	if d.View != nil {
		d.View.ClearText()
	}
}

func (d *Driver) schedule() {
	d.cancel = d.Sched.After(d.delay(), d.tick)
}

func (d *Driver) tick() {
	d.cancel = nil
	if !d.animating {
		return
	}
	if d.shown < len(d.para) {
		d.shown++
		d.render()
	}
	if d.shown >= len(d.para) {
		d.finish()
		return
	}
	d.schedule()
}

func (d *Driver) finish() {
	d.stop()
	d.shown = len(d.para)
	d.animating = false
	d.render()
	if cb := d.onDone; cb != nil {
		d.onDone = nil
		cb()
	}
}

func (d *Driver) stop() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

func (d *Driver) render() {
	if d.View == nil {
		return
	}
	d.View.ShowText(d.Wrap.Wrap(string(d.para[:d.shown])))
}
