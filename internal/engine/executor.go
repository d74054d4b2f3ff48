/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine interprets novel scripts. An Executor walks the lines of one
// script at a time, dispatching each instruction and suspending whenever it
// has to wait for the reader, a timer or an asset. Every method must be
// called from the goroutine that drains the executor's runloop.Loop;
// asynchronous completions are posted back onto that loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path"
	"time"

	"govn/internal/archive"
	"govn/internal/choice"
	"govn/internal/history"
	applog "govn/internal/log"
	"govn/internal/runloop"
	"govn/internal/save"
	"govn/internal/scene"
	"govn/internal/script"
	"govn/internal/text"
	"govn/internal/vars"
)

const (
	DefaultFrameRate  = 60
	DefaultSkipPacing = 300 * time.Millisecond
	DefaultMaxSteps   = 100000
)

// ErrBusy is returned by signals that arrive while an instruction is being
// dispatched.
var ErrBusy = errors.New("engine: dispatch in progress")

// Deps wires an Executor to its collaborators. Assets, Loop, Sched, Text
// and Choices are required.
type Deps struct {
	Assets  archive.Provider
	Loop    *runloop.Loop
	Sched   runloop.Scheduler
	Text    *text.Driver
	Choices *choice.Coordinator
	Stage   Stage
	Audio   Audio
	History *history.Log
	Vars    *vars.Store
	Layout  scene.Layout

	FrameRate  int
	SkipPacing time.Duration
	// MaxSteps bounds the instructions one dispatch run may execute
	// without suspending.
	MaxSteps int
	Rand     *rand.Rand
	Now      func() time.Time
	// Spawn runs blocking asset reads; it defaults to a new goroutine.
	Spawn  func(func())
	Logger *slog.Logger
	Hooks  Hooks
}

type flow int

const (
	flowNext flow = iota
	flowJumped
	flowSuspend
)

type waitKind int

const (
	waitNone waitKind = iota
	waitDelay
	waitPacing
)

// Executor is the interpreter state machine.
type Executor struct {
	assets  archive.Provider
	loop    *runloop.Loop
	sched   runloop.Scheduler
	text    *text.Driver
	choices *choice.Coordinator
	stage   Stage
	audio   Audio
	history *history.Log
	vars    *vars.Store
	layout  scene.Layout
	hooks   Hooks

	frameRate  int
	skipPacing time.Duration
	maxSteps   int
	rand       *rand.Rand
	now        func() time.Time
	spawn      func(func())
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	doc         *script.Document
	cursor      int
	state       State
	skip        bool
	wait        waitKind
	dispatching bool
	gen         uint64
	cancelTimer func()
	scene       scene.State
	err         error

	// restoring is the callback of a Restore still waiting on assets.
	restoring func(error)
}

func New(d Deps) *Executor {
	e := &Executor{
		assets:     d.Assets,
		loop:       d.Loop,
		sched:      d.Sched,
		text:       d.Text,
		choices:    d.Choices,
		stage:      d.Stage,
		audio:      d.Audio,
		history:    d.History,
		vars:       d.Vars,
		layout:     d.Layout,
		hooks:      d.Hooks,
		frameRate:  d.FrameRate,
		skipPacing: d.SkipPacing,
		maxSteps:   d.MaxSteps,
		rand:       d.Rand,
		now:        d.Now,
		spawn:      d.Spawn,
		log:        d.Logger,
	}
	if e.stage == nil {
		e.stage = nopStage{}
	}
	if e.audio == nil {
		e.audio = nopAudio{}
	}
	if e.history == nil {
		e.history = history.New(0)
	}
	if e.vars == nil {
		e.vars = vars.NewStore()
	}
	if e.frameRate <= 0 {
		e.frameRate = DefaultFrameRate
	}
	if e.skipPacing <= 0 {
		e.skipPacing = DefaultSkipPacing
	}
	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.spawn == nil {
		e.spawn = func(fn func()) { go fn() }
	}
	if e.log == nil {
		e.log = applog.WithComponent("engine")
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// SetHooks replaces the notification hooks.
func (e *Executor) SetHooks(h Hooks) { e.hooks = h }

// State reports Skipping while skip mode is on, except when a choice is
// shown or execution has stopped.
func (e *Executor) State() State {
	if e.skip && e.state != AwaitingChoice && e.state != Terminal && e.state != Failed {
		return Skipping
	}
	return e.state
}

// Cursor is the 0-based index of the current line.
func (e *Executor) Cursor() int { return e.cursor }

// Script is the name of the loaded script, or "".
func (e *Executor) Script() string {
	if e.doc == nil {
		return ""
	}
	return e.doc.Name
}

func (e *Executor) Vars() *vars.Store     { return e.vars }
func (e *Executor) Scene() scene.State    { return e.scene.Clone() }
func (e *Executor) History() *history.Log { return e.history }
func (e *Executor) Skip() bool            { return e.skip }

// Err is the fatal error that put the executor into Failed.
func (e *Executor) Err() error { return e.err }

// Start loads name and dispatches from its first line. Global variables
// are kept; everything else starts fresh.
func (e *Executor) Start(name string) {
	e.reset()
	e.stage.ClearSprites()
	e.scene = scene.State{}
	e.loadScript(name, "", func(err error) {
		if err != nil {
			e.fail(&ScriptError{Script: name, Err: err})
			return
		}
		e.run()
	})
}

// Advance is the reader's "next" signal.
func (e *Executor) Advance() {
	if e.dispatching {
		e.log.Warn("advance ignored", slog.Any("err", ErrBusy))
		return
	}
	switch e.state {
	case Animating:
		e.text.Complete()
	case Idle, AwaitingInput:
		if e.doc == nil {
			return
		}
		e.resume()
	default:
		e.log.Debug("advance ignored", slog.String("state", e.state.String()))
	}
}

// SelectChoice picks option i (1-based) of the shown choice.
func (e *Executor) SelectChoice(i int) error {
	if e.dispatching {
		return ErrBusy
	}
	if e.state != AwaitingChoice {
		return ErrNotAwaitingChoice
	}
	return e.choices.Resolve(i)
}

// Tap selects the option under p while a choice is shown; a tap outside
// every option does nothing then. Otherwise it acts as Advance.
func (e *Executor) Tap(p choice.Point) {
	if e.state == AwaitingChoice {
		if i, ok := e.choices.HitTest(p); ok {
			if err := e.SelectChoice(i); err != nil {
				e.log.Warn("tap selection failed", slog.Any("err", err))
			}
		}
		return
	}
	e.Advance()
}

// SetSkip toggles skip mode. Turning it on releases a reader wait at once;
// turning it off stops at the next text line.
func (e *Executor) SetSkip(on bool) {
	if e.skip == on {
		return
	}
	if e.dispatching {
		e.log.Warn("skip toggle ignored", slog.Any("err", ErrBusy))
		return
	}
	e.skip = on
	if on {
		switch {
		case e.state == Animating:
			e.text.Complete()
		case e.state == AwaitingInput, e.state == Idle && e.doc != nil:
			e.pace()
		case e.state == Waiting && e.wait == waitDelay:
			e.stopTimer()
			e.wait = waitNone
			e.resume()
		}
		return
	}
	if e.state == Waiting && e.wait == waitPacing {
		e.stopTimer()
		e.wait = waitNone
		e.state = AwaitingInput
	}
}

// Close cancels outstanding asset reads and drops pending completions.
func (e *Executor) Close() {
	e.cancel()
	e.gen++
	e.stopTimer()
	e.supersede()
}

// Abort puts the executor into Failed from outside the dispatch loop, e.g.
// after a collaborator panicked mid-instruction. In-flight reads, timers
// and a pending Restore are dropped.
func (e *Executor) Abort(err error) {
	e.gen++
	e.supersede()
	e.dispatching = false
	e.wait = waitNone
	e.fail(err)
}

// Snapshot captures the interpreter state for saving.
func (e *Executor) Snapshot() save.State {
	return save.State{
		Script:   e.Script(),
		Position: e.cursor,
		Date:     e.now(),
		Locals:   e.vars.Local.Snapshot(),
		Globals:  e.vars.Global.Snapshot(),
		Scene:    e.scene.Clone(),
	}
}

// Restore replaces the interpreter state with st. The saved scene is
// replayed in order: background, each sprite, then music. When done the
// executor is Idle at the saved line, showing it again if it is a text
// line and presenting it again if it is a choice. done receives the error
// that put the executor into Failed, if any.
func (e *Executor) Restore(st save.State, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	e.reset()
	e.audio.StopSound()
	e.audio.StopMusic()
	e.stage.ClearSprites()
	e.scene = scene.State{}
	e.restoring = done
	finish := func(err error) {
		e.restoring = nil
		if err != nil {
			e.fail(err)
		}
		done(err)
	}
	e.loadScript(st.Script, "", func(err error) {
		if err != nil {
			finish(&ScriptError{Script: st.Script, Err: err})
			return
		}
		if st.Position < 0 || st.Position > e.doc.Len() {
			finish(&ScriptError{Script: st.Script, Err: fmt.Errorf("%w: position %d outside %d lines", save.ErrMalformed, st.Position, e.doc.Len())})
			return
		}
		e.vars.Local.Replace(st.Locals)
		e.vars.Global.Replace(st.Globals)
		e.replay(st.Scene, func(err error) {
			if err != nil {
				finish(&ScriptError{Script: st.Script, Err: err})
				return
			}
			e.cursor = st.Position
			e.settle()
			finish(nil)
		})
	})
}

func (e *Executor) replay(sc scene.State, done func(error)) {
	var steps []func(next func(error))
	if sc.Background != "" {
		steps = append(steps, func(next func(error)) { e.loadBackground(sc.Background, next) })
	}
	for _, sp := range sc.Sprites {
		steps = append(steps, func(next func(error)) { e.loadSprite(sp, next) })
	}
	if sc.Music != "" {
		steps = append(steps, func(next func(error)) { e.loadMusic(sc.Music, next) })
	}
	var step func(i int)
	step = func(i int) {
		if i == len(steps) {
			done(nil)
			return
		}
		steps[i](func(err error) {
			if err != nil {
				done(err)
				return
			}
			step(i + 1)
		})
	}
	step(0)
}

// settle puts a restored executor at rest on its cursor line.
func (e *Executor) settle() {
	e.state = Idle
	if e.cursor >= e.doc.Len() {
		e.end()
		return
	}
	in := script.Decode(e.doc.Line(e.cursor))
	switch in.Op {
	case script.OpChoice:
		if opts := e.choiceOptions(in); len(opts) > 0 {
			e.present(opts)
			return
		}
	case script.OpText:
		if in.Rest != "" && in.Rest != "!" && in.Rest != "~" {
			line := e.interpolate(in.Rest)
			if len(line) > 0 && line[0] == '@' {
				line = line[1:]
			}
			e.text.ShowInstant(line)
		}
	}
	if e.skip {
		e.pace()
	}
}

// reset invalidates everything in flight.
func (e *Executor) reset() {
	e.supersede()
	e.gen++
	e.stopTimer()
	e.wait = waitNone
	e.text.Clear()
	e.choices.Clear()
	e.err = nil
}

// supersede reports a pending Restore as cancelled.
func (e *Executor) supersede() {
	if done := e.restoring; done != nil {
		e.restoring = nil
		done(ErrSuperseded)
	}
}

func (e *Executor) stopTimer() {
	if e.cancelTimer != nil {
		e.cancelTimer()
		e.cancelTimer = nil
	}
}

// run is the dispatch loop. It executes instructions from the cursor until
// one suspends, the script ends or an instruction fails.
func (e *Executor) run() {
	if e.dispatching {
		e.log.Warn("dispatch ignored", slog.Any("err", ErrBusy))
		return
	}
	e.dispatching = true
	defer func() { e.dispatching = false }()
	e.state = Running
	for steps := 0; ; steps++ {
		if e.cursor >= e.doc.Len() {
			e.end()
			return
		}
		if steps >= e.maxSteps {
			e.fail(e.errAt("", ErrRunaway))
			return
		}
		in := script.Decode(e.doc.Line(e.cursor))
		if in.Op == script.OpNone {
			e.cursor++
			continue
		}
		f, err := e.exec(in)
		if err != nil {
			e.fail(e.errAt(string(in.Op), err))
			return
		}
		switch f {
		case flowNext:
			e.cursor++
		case flowJumped:
		case flowSuspend:
			return
		}
	}
}

// resume moves past the instruction that suspended and keeps dispatching.
func (e *Executor) resume() {
	e.cursor++
	e.run()
}

func (e *Executor) end() {
	e.cursor = e.doc.Len()
	e.state = Terminal
	e.log.Info("script ended", slog.String("script", e.doc.Name))
	if e.hooks.OnEnd != nil {
		e.hooks.OnEnd()
	}
}

func (e *Executor) fail(err error) {
	e.stopTimer()
	e.state = Failed
	e.err = err
	e.log.Error("script failed", slog.Any("err", err))
	if e.hooks.OnError != nil {
		e.hooks.OnError(err)
	}
}

// awaitInput parks on a fully shown text line. In skip mode the wait is
// only the pacing delay.
func (e *Executor) awaitInput() {
	e.state = AwaitingInput
	if e.hooks.OnAwaitInput != nil {
		e.hooks.OnAwaitInput()
	}
	if e.skip {
		e.pace()
	}
}

func (e *Executor) pace() {
	e.state = Waiting
	e.wait = waitPacing
	e.after(e.skipPacing, func() {
		e.wait = waitNone
		e.resume()
	})
}

// after schedules fn unless a reset happens first.
func (e *Executor) after(d time.Duration, fn func()) {
	gen := e.gen
	e.stopTimer()
	e.cancelTimer = e.sched.After(d, func() {
		if gen != e.gen {
			return
		}
		e.cancelTimer = nil
		fn()
	})
}

// fetch reads an asset off the loop goroutine and posts then back onto it.
// Completions that arrive after a reset are dropped.
func (e *Executor) fetch(name string, then func([]byte, error)) {
	gen := e.gen
	e.state = Loading
	ctx, assets, loop := e.ctx, e.assets, e.loop
	e.spawn(func() {
		data, err := assets.Extract(ctx, name)
		loop.Post(func() {
			if gen != e.gen {
				e.log.Debug("stale completion dropped", slog.String("asset", name))
				return
			}
			then(data, err)
		})
	})
}

// loadScript fetches and parses name, resets local variables and places the
// cursor on label (or line 0).
func (e *Executor) loadScript(name, label string, done func(error)) {
	e.gen++
	e.fetch(path.Join("script", name), func(data []byte, err error) {
		if err != nil {
			if errors.Is(err, archive.ErrNotFound) {
				err = fmt.Errorf("%w: %s", ErrScriptNotFound, name)
			}
			done(err)
			return
		}
		doc := script.Parse(name, string(data))
		for _, d := range doc.Duplicates {
			e.log.Warn("duplicate label, last one wins", slog.String("script", name), slog.String("label", d))
		}
		e.doc = doc
		e.vars.Local.Reset()
		e.cursor = 0
		if label != "" {
			if i, ok := doc.Label(label); ok {
				e.cursor = i
			} else {
				e.log.Error("jump label not found, starting at the top", slog.String("script", name), slog.String("label", label))
			}
		}
		e.log.Debug("script loaded", slog.String("script", name), slog.Int("lines", doc.Len()))
		done(nil)
	})
}

func assetErr(name string, err error) error {
	if errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, name)
	}
	return fmt.Errorf("load %s: %w", name, err)
}

func (e *Executor) loadBackground(p string, done func(error)) {
	name := path.Join("background", p)
	e.fetch(name, func(data []byte, err error) {
		if err != nil {
			done(assetErr(name, err))
			return
		}
		img := scene.Image{Path: p, Data: data}
		if sz, derr := scene.Dimensions(data); derr == nil {
			img.Size = sz
		} else {
			e.log.Warn("background size unknown, stretching", slog.String("asset", name), slog.Any("err", derr))
		}
		img.Rect = e.layout.FitBackground(img.Size)
		if err := e.stage.SetBackground(img); err != nil {
			done(fmt.Errorf("show %s: %w", name, err))
			return
		}
		e.scene.SetBackground(p)
		done(nil)
	})
}

func (e *Executor) loadSprite(sp scene.Sprite, done func(error)) {
	name := path.Join("foreground", sp.Path)
	e.fetch(name, func(data []byte, err error) {
		if err != nil {
			done(assetErr(name, err))
			return
		}
		img := scene.Image{Path: sp.Path, Data: data}
		if sz, derr := scene.Dimensions(data); derr == nil {
			img.Size = sz
		} else {
			e.log.Warn("sprite size unknown", slog.String("asset", name), slog.Any("err", derr))
		}
		img.Rect = e.layout.PlaceSprite(sp.X, sp.Y, img.Size)
		if err := e.stage.AddSprite(img); err != nil {
			done(fmt.Errorf("show %s: %w", name, err))
			return
		}
		e.scene.AddSprite(sp)
		done(nil)
	})
}

func (e *Executor) loadMusic(p string, done func(error)) {
	name := path.Join("sound", p)
	e.fetch(name, func(data []byte, err error) {
		if err != nil {
			done(assetErr(name, err))
			return
		}
		if err := e.audio.PlayMusic(p, data); err != nil {
			done(fmt.Errorf("play %s: %w", name, err))
			return
		}
		e.scene.SetMusic(p)
		done(nil)
	})
}

// errAt wraps err with the current position.
func (e *Executor) errAt(op string, err error) *ScriptError {
	se := &ScriptError{Line: e.cursor + 1, Op: op, Err: err}
	if e.doc != nil {
		se.Script = e.doc.Name
	}
	return se
}

// lineLog is the logger for messages about the current instruction.
func (e *Executor) lineLog(op script.Op) *slog.Logger {
	return applog.WithOperation(e.log, string(op)).With(
		slog.String("script", e.Script()),
		slog.Int("line", e.cursor+1),
	)
}

func (e *Executor) interpolate(s string) string {
	out, missing := vars.Interpolate(s, e.vars.Lookup)
	for _, m := range missing {
		e.lineLog(script.OpText).Warn("unresolved placeholder", slog.String("var", m))
	}
	return out
}
