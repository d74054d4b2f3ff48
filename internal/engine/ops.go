/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"govn/internal/cond"
	"govn/internal/scene"
	"govn/internal/script"
	"govn/internal/vars"
)

// exec dispatches one instruction. A returned error is fatal.
func (e *Executor) exec(in script.Instruction) (flow, error) {
	switch in.Op {
	case script.OpLabel, script.OpFi:
		return flowNext, nil
	case script.OpText:
		return e.opText(in), nil
	case script.OpClearText:
		e.text.Clear()
		return flowNext, nil
	case script.OpChoice:
		return e.opChoice(in), nil
	case script.OpSetvar:
		return e.opSetvar(in, e.vars.Local), nil
	case script.OpGsetvar:
		return e.opSetvar(in, e.vars.Global), nil
	case script.OpIf:
		return e.opIf(in)
	case script.OpGoto:
		return e.opGoto(in), nil
	case script.OpJump:
		return e.opJump(in), nil
	case script.OpDelay:
		return e.opDelay(in), nil
	case script.OpRandom:
		return e.opRandom(in), nil
	case script.OpBgload:
		return e.opBgload(in), nil
	case script.OpSetimg:
		return e.opSetimg(in), nil
	case script.OpSound:
		return e.opSound(in), nil
	case script.OpMusic:
		return e.opMusic(in), nil
	}
	e.lineLog(in.Op).Warn("unknown opcode, skipped")
	return flowNext, nil
}

// restAfter drops the first n whitespace-separated fields of s and returns
// the remainder with its inner spacing intact.
func restAfter(s string, n int) string {
	for i := 0; i < n; i++ {
		s = strings.TrimLeft(s, " \t")
		j := strings.IndexAny(s, " \t")
		if j < 0 {
			return ""
		}
		s = s[j:]
	}
	return strings.TrimSpace(s)
}

func (e *Executor) opText(in script.Instruction) flow {
	switch in.Rest {
	case "!":
		e.text.Clear()
		e.awaitInput()
		return flowSuspend
	case "~":
		e.text.Clear()
		return flowNext
	}
	line := e.interpolate(in.Rest)
	auto := strings.HasPrefix(line, "@")
	if auto {
		line = line[1:]
	}
	if e.skip {
		e.text.ShowInstant(line)
		e.history.Append(line)
		if auto {
			e.pace()
		} else {
			e.awaitInput()
		}
		return flowSuspend
	}
	e.state = Animating
	gen := e.gen
	e.text.Show(line, func() {
		if gen != e.gen {
			return
		}
		e.history.Append(line)
		if auto {
			e.resume()
			return
		}
		e.awaitInput()
	})
	return flowSuspend
}

// choiceOptions splits the option list. Empty options keep their slot so
// `selected` matches the position the author wrote; a list with nothing but
// empty options yields none.
func (e *Executor) choiceOptions(in script.Instruction) []string {
	raw := strings.Split(in.Rest, "|")
	opts := make([]string, 0, len(raw))
	empty := 0
	for _, o := range raw {
		o = strings.TrimSpace(e.interpolate(o))
		if o == "" {
			empty++
		}
		opts = append(opts, o)
	}
	if empty == len(opts) {
		return nil
	}
	if empty > 0 {
		e.lineLog(in.Op).Warn("choice has empty options", slog.Int("empty", empty))
	}
	return opts
}

func (e *Executor) opChoice(in script.Instruction) flow {
	opts := e.choiceOptions(in)
	if len(opts) == 0 {
		e.lineLog(in.Op).Warn("choice without options, skipped")
		return flowNext
	}
	e.present(opts)
	return flowSuspend
}

// present shows opts and resumes on the line after the choice once one is
// picked, with its 1-based index in the local "selected".
func (e *Executor) present(opts []string) {
	gen := e.gen
	e.state = AwaitingChoice
	e.choices.Present(opts, func(i int) {
		if gen != e.gen {
			return
		}
		e.vars.Local.Set("selected", vars.Int(int64(i)))
		e.resume()
	})
}

func (e *Executor) opSetvar(in script.Instruction, scope *vars.Scope) flow {
	l := e.lineLog(in.Op)
	name, op := in.Arg(0), in.Arg(1)
	if name == "~" && (op == "~" || op == "") {
		scope.Reset()
		l.Debug("scope cleared")
		return flowNext
	}
	if in.NArgs() < 3 {
		l.Warn("malformed assignment, skipped")
		return flowNext
	}
	if err := scope.Assign(name, op, restAfter(in.Rest, 2)); err != nil {
		if errors.Is(err, vars.ErrNotInt) {
			l.Debug("arithmetic on non-integer dropped", slog.String("var", name))
		} else {
			l.Warn("assignment skipped", slog.String("var", name), slog.Any("err", err))
		}
	}
	return flowNext
}

func (e *Executor) opIf(in script.Instruction) (flow, error) {
	if in.NArgs() < 3 {
		e.lineLog(in.Op).Warn("malformed condition, block entered")
		return flowNext, nil
	}
	left, ok := e.vars.Lookup(in.Arg(0))
	if !ok {
		left = vars.Int(0)
	}
	ok, err := cond.Evaluate(left, in.Arg(1), restAfter(in.Rest, 2))
	if err != nil {
		return flowNext, err
	}
	if ok {
		return flowNext, nil
	}
	fi, found := e.matchingFi(e.cursor)
	if !found {
		e.lineLog(in.Op).Warn("if without fi, script ends")
		e.cursor = e.doc.Len()
		return flowJumped, nil
	}
	e.cursor = fi + 1
	return flowJumped, nil
}

// matchingFi finds the fi closing the if on line from, counting nested ifs.
func (e *Executor) matchingFi(from int) (int, bool) {
	depth := 0
	for i := from + 1; i < e.doc.Len(); i++ {
		switch script.Decode(e.doc.Line(i)).Op {
		case script.OpIf:
			depth++
		case script.OpFi:
			if depth == 0 {
				return i, true
			}
			depth--
		}
	}
	return e.doc.Len(), false
}

func (e *Executor) opGoto(in script.Instruction) flow {
	label := strings.TrimSpace(in.Rest)
	i, ok := e.doc.Label(label)
	if !ok {
		e.lineLog(in.Op).Error("goto label not found", slog.String("label", label))
		return flowNext
	}
	e.cursor = i
	return flowJumped
}

func (e *Executor) opJump(in script.Instruction) flow {
	if in.NArgs() == 0 {
		e.lineLog(in.Op).Warn("jump without target, skipped")
		return flowNext
	}
	name := e.interpolate(in.Arg(0))
	label := ""
	if in.NArgs() >= 3 && in.Arg(1) == ":" {
		label = restAfter(in.Rest, 2)
	}
	at := e.errAt(string(in.Op), nil)
	e.loadScript(name, label, func(err error) {
		if err != nil {
			at.Err = err
			e.fail(at)
			return
		}
		e.run()
	})
	return flowSuspend
}

func (e *Executor) opDelay(in script.Instruction) flow {
	frames, err := strconv.Atoi(in.Arg(0))
	if err != nil || frames < 0 {
		e.lineLog(in.Op).Warn("malformed frame count, skipped", slog.String("frames", in.Arg(0)))
		return flowNext
	}
	if frames == 0 || e.skip {
		return flowNext
	}
	e.state = Waiting
	e.wait = waitDelay
	e.after(time.Duration(frames)*time.Second/time.Duration(e.frameRate), func() {
		e.wait = waitNone
		e.resume()
	})
	return flowSuspend
}

func (e *Executor) opRandom(in script.Instruction) flow {
	l := e.lineLog(in.Op)
	if in.NArgs() < 4 {
		l.Warn("malformed random, skipped")
		return flowNext
	}
	lo, err1 := strconv.ParseInt(in.Arg(2), 10, 64)
	hi, err2 := strconv.ParseInt(in.Arg(3), 10, 64)
	if err1 != nil || err2 != nil {
		l.Warn("non-integer random bounds, skipped", slog.String("min", in.Arg(2)), slog.String("max", in.Arg(3)))
		return flowNext
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	e.vars.Local.Set(in.Arg(0), vars.Int(lo+e.rand.Int64N(hi-lo+1)))
	return flowNext
}

func (e *Executor) opBgload(in script.Instruction) flow {
	p := in.Arg(0)
	if p == "" {
		e.lineLog(in.Op).Warn("bgload without path, skipped")
		return flowNext
	}
	e.text.Clear()
	e.stage.ClearSprites()
	e.scene.ClearSprites()
	e.suspendOn(in.Op, func(done func(error)) { e.loadBackground(p, done) })
	return flowSuspend
}

func (e *Executor) opSetimg(in script.Instruction) flow {
	x, err1 := strconv.ParseFloat(in.Arg(1), 64)
	y, err2 := strconv.ParseFloat(in.Arg(2), 64)
	if in.Arg(0) == "" || err1 != nil || err2 != nil {
		e.lineLog(in.Op).Warn("malformed setimg, skipped", slog.String("args", in.Rest))
		return flowNext
	}
	sp := scene.Sprite{Path: in.Arg(0), X: x, Y: y}
	e.suspendOn(in.Op, func(done func(error)) { e.loadSprite(sp, done) })
	return flowSuspend
}

func (e *Executor) opSound(in script.Instruction) flow {
	l := e.lineLog(in.Op)
	p := in.Arg(0)
	switch p {
	case "":
		l.Warn("sound without path, skipped")
		return flowNext
	case "~":
		e.audio.StopSound()
		return flowNext
	}
	loops := 1
	if in.NArgs() > 1 {
		n, err := strconv.Atoi(in.Arg(1))
		if err != nil || n == 0 || n < -1 {
			l.Warn("bad loop count, playing once", slog.String("loops", in.Arg(1)))
		} else {
			loops = n
		}
	}
	name := "sound/" + p
	e.fetch(name, func(data []byte, err error) {
		if err != nil {
			l.Warn("sound effect unavailable, skipped", slog.Any("err", assetErr(name, err)))
		} else if err := e.audio.PlaySound(p, data, loops); err != nil {
			l.Warn("sound effect failed", slog.Any("err", err))
		}
		e.resume()
	})
	return flowSuspend
}

func (e *Executor) opMusic(in script.Instruction) flow {
	p := in.Arg(0)
	switch p {
	case "":
		e.lineLog(in.Op).Warn("music without path, skipped")
		return flowNext
	case "~":
		e.audio.StopMusic()
		e.scene.SetMusic("")
		return flowNext
	}
	e.suspendOn(in.Op, func(done func(error)) { e.loadMusic(p, done) })
	return flowSuspend
}

// suspendOn starts an awaited load and resumes after it, failing the
// executor at the current line if it does not succeed.
func (e *Executor) suspendOn(op script.Op, load func(done func(error))) {
	at := e.errAt(string(op), nil)
	load(func(err error) {
		if err != nil {
			at.Err = err
			e.fail(at)
			return
		}
		e.resume()
	})
}
