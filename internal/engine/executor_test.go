/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govn/internal/archive"
	"govn/internal/choice"
	"govn/internal/cond"
	applog "govn/internal/log"
	"govn/internal/runloop"
	"govn/internal/scene"
	"govn/internal/text"
	"govn/internal/textlayout"
)

type memAssets map[string][]byte

func (m memAssets) Extract(_ context.Context, name string) ([]byte, error) {
	for k, v := range m {
		if archive.Key(k) == archive.Key(name) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, name)
}

// calls records collaborator calls in order across stage and audio.
type calls struct{ log []string }

func (c *calls) add(format string, args ...any) { c.log = append(c.log, fmt.Sprintf(format, args...)) }

type fakeStage struct {
	c       *calls
	sprites []scene.Image
}

func (s *fakeStage) SetBackground(img scene.Image) error { s.c.add("bg:%s", img.Path); return nil }
func (s *fakeStage) AddSprite(img scene.Image) error {
	s.c.add("sprite:%s", img.Path)
	s.sprites = append(s.sprites, img)
	return nil
}
func (s *fakeStage) ClearSprites() { s.c.add("clear-sprites"); s.sprites = nil }

type fakeAudio struct{ c *calls }

func (a fakeAudio) PlaySound(p string, _ []byte, loops int) error {
	a.c.add("sound:%s:%d", p, loops)
	return nil
}
func (a fakeAudio) StopSound()                         { a.c.add("stop-sound") }
func (a fakeAudio) PlayMusic(p string, _ []byte) error { a.c.add("music:%s", p); return nil }
func (a fakeAudio) StopMusic()                         { a.c.add("stop-music") }

type textView struct {
	lines   []string
	cleared int
	onClear func()
}

func (v *textView) ShowText(lines []string) { v.lines = lines }
func (v *textView) ClearText() {
	v.lines = nil
	v.cleared++
	if v.onClear != nil {
		v.onClear()
	}
}

type harness struct {
	t      *testing.T
	loop   *runloop.Loop
	clock  *runloop.ManualClock
	assets memAssets
	calls  *calls
	stage  *fakeStage
	view   *textView
	driver *text.Driver
	exec   *Executor
	errs   []error
	ended  int
	waits  []int
	// deferred holds asset reads when spawning is paused.
	deferred []func()
	pause    bool
}

func newHarness(t *testing.T, scripts map[string]string) *harness {
	t.Helper()
	h := &harness{t: t, assets: memAssets{}, calls: &calls{}}
	for name, body := range scripts {
		h.assets["script/"+name] = []byte(body)
	}
	h.loop = runloop.New()
	h.clock = runloop.NewManualClock(h.loop)
	h.stage = &fakeStage{c: h.calls}
	h.view = &textView{}
	h.driver = text.NewDriver(h.view, h.clock, textlayout.Wrapper{Measurer: textlayout.CellMeasurer{}, MaxWidth: 200}, 50*time.Millisecond)
	coord := choice.NewCoordinator(choice.Layout{ScreenW: 800, ScreenH: 600, BoxW: 200, BoxH: 50, Gap: 10}, nil)
	h.exec = New(Deps{
		Assets:  h.assets,
		Loop:    h.loop,
		Sched:   h.clock,
		Text:    h.driver,
		Choices: coord,
		Stage:   h.stage,
		Audio:   fakeAudio{c: h.calls},
		Layout:  scene.Layout{DesignW: 256, DesignH: 192, DeviceW: 512, DeviceH: 384},
		Rand:    rand.New(rand.NewPCG(1, 2)),
		Spawn: func(fn func()) {
			if h.pause {
				h.deferred = append(h.deferred, fn)
				return
			}
			fn()
		},
		Logger: applog.Discard(),
		Hooks: Hooks{
			OnError:      func(err error) { h.errs = append(h.errs, err) },
			OnEnd:        func() { h.ended++ },
			OnAwaitInput: func() { h.waits = append(h.waits, h.exec.Cursor()) },
		},
	})
	return h
}

func (h *harness) start() {
	h.exec.Start("main.scr")
	h.loop.Drain()
}

// reveal lets the typewriter finish.
func (h *harness) reveal() { h.clock.Advance(5 * time.Second) }

func (h *harness) advance() {
	h.exec.Advance()
	h.loop.Drain()
}

func (h *harness) history() []string { return h.exec.History().Lines() }

func pngOf(w, hgt int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, hgt)))
	return buf.Bytes()
}

func TestConcreteScenarioTwoLines(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setvar x = 1\nif x == 1\ntext hello\nfi\ntext world"})
	h.start()
	require.Equal(t, Animating, h.exec.State())

	h.reveal()
	require.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, []string{"hello"}, h.history())

	h.advance()
	require.Equal(t, Animating, h.exec.State())
	h.reveal()
	require.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, []string{"hello", "world"}, h.history())
	assert.Equal(t, "hello  world", h.driver.Paragraph())

	h.advance()
	assert.Equal(t, Terminal, h.exec.State())
	assert.Equal(t, 1, h.ended)
	assert.Equal(t, 5, h.exec.Cursor())
}

func TestAdvanceDuringAnimationCompletesReveal(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a long line of text\ntext next"})
	h.start()
	h.clock.Advance(100 * time.Millisecond)
	require.Equal(t, Animating, h.exec.State())

	h.advance()
	assert.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, "a long line of text", h.driver.Visible())
	assert.Equal(t, 0, h.exec.Cursor())

	h.advance()
	assert.Equal(t, Animating, h.exec.State())
	assert.Equal(t, 1, h.exec.Cursor())
}

func TestNestedFalseIfSkipsWholeBlock(t *testing.T) {
	for depth := 1; depth <= 4; depth++ {
		var b strings.Builder
		b.WriteString("setvar a = 0\n")
		for i := 0; i < depth; i++ {
			b.WriteString("if a == 1\ntext inner\n")
		}
		for i := 0; i < depth; i++ {
			b.WriteString("fi\n")
		}
		b.WriteString("text after")
		h := newHarness(t, map[string]string{"main.scr": b.String()})
		h.start()
		h.reveal()
		require.Equal(t, []string{"after"}, h.history(), "depth %d", depth)
		assert.Equal(t, 1+3*depth, h.exec.Cursor(), "depth %d", depth)
	}
}

func TestTrueIfEntersAndInnerFalseSkips(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setvar a = 2\nif a > 1\nif a == 5\ntext no\nfi\ntext yes\nfi\ntext end"})
	h.start()
	h.reveal()
	h.advance()
	h.reveal()
	assert.Equal(t, []string{"yes", "end"}, h.history())
}

func TestUndefinedVariableComparesAsZero(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "if nope == 0\ntext zero\nfi"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"zero"}, h.history())
}

func TestUnsupportedComparisonFails(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setvar s = abc\nif s > 3\ntext x\nfi"})
	h.start()
	require.Equal(t, Failed, h.exec.State())
	require.Len(t, h.errs, 1)
	var se *ScriptError
	require.ErrorAs(t, h.errs[0], &se)
	assert.Equal(t, 2, se.Line)
	assert.Equal(t, "if", se.Op)
	assert.Equal(t, "main.scr", se.Script)
	assert.ErrorIs(t, h.exec.Err(), cond.ErrUnsupportedComparison)
}

func TestIfWithoutFiEndsScript(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "if a == 1\ntext never"})
	h.start()
	assert.Equal(t, Terminal, h.exec.State())
	assert.Empty(t, h.history())
}

func TestGotoJumpsToLineAfterLabel(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "goto end\ntext skipped\nlabel end\ntext here\ngoto missing\ntext still"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"here"}, h.history())
	h.advance()
	h.reveal()
	assert.Equal(t, []string{"here", "still"}, h.history(), "unresolved goto is a no-op")
}

func TestChoiceKeepsEmptyOptionPositions(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "choice A||B\ntext {selected}"})
	h.start()
	require.Equal(t, AwaitingChoice, h.exec.State())
	assert.Equal(t, []string{"A", "", "B"}, h.exec.choices.Options())
	require.NoError(t, h.exec.SelectChoice(3))
	h.loop.Drain()
	h.reveal()
	assert.Equal(t, []string{"3"}, h.history())
}

func TestGotoMatchesSpacedLabel(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "goto a b\nlabel a\ntext wrong\nlabel a b\ntext right"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"right"}, h.history())
}

func TestJumpResetsLocalsAndKeepsGlobals(t *testing.T) {
	h := newHarness(t, map[string]string{
		"main.scr":  "setvar l = 1\ngsetvar g = 2\ngsetvar dest = other.scr\njump {dest} : start",
		"other.scr": "text no\nlabel start\ntext l={l} g={g}",
	})
	h.start()
	h.reveal()
	assert.Equal(t, "other.scr", h.exec.Script())
	assert.Equal(t, []string{"l={l} g=2"}, h.history())
	assert.Equal(t, 2, h.exec.Cursor())
}

func TestJumpUnknownLabelStartsAtTop(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "jump other.scr : nowhere", "other.scr": "text top"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"top"}, h.history())
}

func TestJumpToMissingScriptFails(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text hi\njump gone.scr"})
	h.start()
	h.reveal()
	h.advance()
	require.Equal(t, Failed, h.exec.State())
	assert.ErrorIs(t, h.exec.Err(), ErrScriptNotFound)
	var se *ScriptError
	require.ErrorAs(t, h.exec.Err(), &se)
	assert.Equal(t, "main.scr", se.Script)
	assert.Equal(t, 2, se.Line)
	assert.Equal(t, "jump", se.Op)
}

func TestStartMissingScriptFails(t *testing.T) {
	h := newHarness(t, nil)
	h.start()
	assert.Equal(t, Failed, h.exec.State())
	assert.ErrorIs(t, h.exec.Err(), ErrScriptNotFound)
}

func TestSetvarArithmeticIsLenient(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setvar x = abc\nsetvar x + 3\nsetvar n = 5\nsetvar n + 3\nsetvar n - 1\nsetvar m - 1\nsetvar q = \"two words\"\ntext {x} {n} {q}"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"abc 7 two words"}, h.history())
	_, ok := h.exec.Vars().Local.Get("m")
	assert.False(t, ok, "arithmetic on a missing variable must not create it")
}

func TestSetvarTildeClearsScope(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setvar a = 1\ngsetvar b = 2\nsetvar ~ ~\ntext {a}{b}"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"{a}2"}, h.history())
}

func TestRandomWithinInclusiveBounds(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": strings.Repeat("random r ~ 6 3\nif r < 3\ntext low\nfi\nif r > 6\ntext high\nfi\n", 50) + "text done"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"done"}, h.history())
	v, ok := h.exec.Vars().Local.Get("r")
	require.True(t, ok)
	n, _ := v.Int64()
	assert.True(t, n >= 3 && n <= 6)
}

func TestRandomBadBoundsSkipped(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "random r ~ a 3\ntext ok"})
	h.start()
	_, ok := h.exec.Vars().Local.Get("r")
	assert.False(t, ok)
	assert.Equal(t, Animating, h.exec.State())
}

func TestDelayWaitsFrameDuration(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "delay 30\ntext done"})
	h.start()
	require.Equal(t, Waiting, h.exec.State())
	h.advance()
	assert.Equal(t, Waiting, h.exec.State(), "advance is ignored while waiting")
	h.clock.Advance(499 * time.Millisecond)
	assert.Equal(t, Waiting, h.exec.State())
	h.clock.Advance(time.Millisecond)
	assert.Equal(t, Animating, h.exec.State())
}

func TestChoiceSetsSelectedAndResumes(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "gsetvar who = C\nchoice A|B|{who}\ntext picked {selected}"})
	h.start()
	require.Equal(t, AwaitingChoice, h.exec.State())
	assert.Equal(t, []string{"A", "B", "C"}, h.exec.choices.Options())

	h.advance()
	assert.Equal(t, AwaitingChoice, h.exec.State(), "advance is a no-op at a choice")
	assert.ErrorIs(t, h.exec.SelectChoice(4), choice.ErrOutOfRange)
	assert.Equal(t, AwaitingChoice, h.exec.State())

	require.NoError(t, h.exec.SelectChoice(2))
	h.loop.Drain()
	h.reveal()
	assert.Equal(t, []string{"picked 2"}, h.history())
	v, _ := h.exec.Vars().Local.Get("selected")
	n, _ := v.Int64()
	assert.EqualValues(t, 2, n)
	_, global := h.exec.Vars().Global.Get("selected")
	assert.False(t, global)
	assert.ErrorIs(t, h.exec.SelectChoice(1), ErrNotAwaitingChoice)
}

func TestTapSelectsRegion(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "choice yes|no\ntext {selected}"})
	h.start()
	regions := h.exec.choices.Regions()
	require.Len(t, regions, 2)

	h.exec.Tap(choice.Point{X: 1, Y: 1})
	assert.Equal(t, AwaitingChoice, h.exec.State(), "miss is a no-op")

	r := regions[1].Rect
	h.exec.Tap(choice.Point{X: r.X + r.W/2, Y: r.Y + r.H/2})
	h.reveal()
	assert.Equal(t, []string{"2"}, h.history())
}

func TestSkipModeStopsAtChoiceOnly(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a\ndelay 600\ntext b\nchoice x|y\ntext c"})
	h.exec.SetSkip(true)
	h.start()
	assert.Equal(t, Skipping, h.exec.State())
	assert.Equal(t, []string{"a"}, h.history())

	h.clock.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, h.history(), "delay is not waited on in skip mode")
	h.clock.Advance(300 * time.Millisecond)
	assert.Equal(t, AwaitingChoice, h.exec.State())
	h.clock.Advance(time.Hour)
	assert.Equal(t, AwaitingChoice, h.exec.State())

	require.NoError(t, h.exec.SelectChoice(1))
	h.loop.Drain()
	assert.Equal(t, []string{"a", "b", "c"}, h.history())
}

func TestSetSkipReleasesAndRestoresWaits(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text one\ntext two\ntext three"})
	h.start()
	h.reveal()
	require.Equal(t, AwaitingInput, h.exec.State())

	h.exec.SetSkip(true)
	assert.Equal(t, Skipping, h.exec.State())
	h.clock.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"one", "two"}, h.history())

	h.exec.SetSkip(false)
	assert.Equal(t, AwaitingInput, h.exec.State())
	h.clock.Advance(time.Hour)
	assert.Equal(t, []string{"one", "two"}, h.history())
}

func TestAutoLineContinuesAfterReveal(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text @auto\ntext manual"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"auto", "manual"}, h.history())
	assert.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, "auto  manual", h.driver.Paragraph())
}

func TestBangClearsAndWaits(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text one\ntext !\ntext two"})
	h.start()
	h.reveal()
	h.advance()
	assert.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, "", h.driver.Paragraph())
	assert.Equal(t, 1, h.exec.Cursor())
	h.advance()
	h.reveal()
	assert.Equal(t, "two", h.driver.Paragraph())
}

func TestTildeAndCleartextContinue(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text one\ntext ~\ntext two\ncleartext\ntext three"})
	h.start()
	h.reveal()
	h.advance()
	h.reveal()
	assert.Equal(t, "two", h.driver.Paragraph())
	h.advance()
	h.reveal()
	assert.Equal(t, "three", h.driver.Paragraph())
	assert.Equal(t, []string{"one", "two", "three"}, h.history())
}

func TestBgloadAwaitsAndClearsSprites(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setimg a.png 0 0\nbgload room.png\ntext hi"})
	h.assets["foreground/a.png"] = pngOf(10, 10)
	h.assets["background/Room.PNG"] = pngOf(256, 192)
	h.pause = true
	h.start()
	require.Len(t, h.deferred, 1)
	assert.Equal(t, Loading, h.exec.State())

	for len(h.deferred) > 0 {
		fn := h.deferred[0]
		h.deferred = h.deferred[1:]
		fn()
		h.loop.Drain()
	}
	assert.Equal(t, []string{"clear-sprites", "sprite:a.png", "clear-sprites", "bg:room.png"}, h.calls.log)
	sc := h.exec.Scene()
	assert.Equal(t, "room.png", sc.Background)
	assert.Empty(t, sc.Sprites)
	assert.Equal(t, Animating, h.exec.State())
}

func TestSpritePlacedInDeviceSpace(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setimg girl.png 16 32"})
	h.assets["foreground/girl.png"] = pngOf(10, 20)
	h.start()
	require.Len(t, h.stage.sprites, 1)
	img := h.stage.sprites[0]
	assert.Equal(t, scene.Size{W: 10, H: 20}, img.Size)
	assert.Equal(t, scene.Rect{X: 32, Y: (192-32)*2 - 40, W: 20, H: 40}, img.Rect)
	assert.Equal(t, []scene.Sprite{{Path: "girl.png", X: 16, Y: 32}}, h.exec.Scene().Sprites)
}

func TestMissingBackgroundIsFatal(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a\nbgload nope.png\ntext b"})
	h.start()
	h.reveal()
	h.advance()
	require.Equal(t, Failed, h.exec.State())
	require.Len(t, h.errs, 1)
	assert.ErrorIs(t, h.errs[0], ErrAssetNotFound)
	var se *ScriptError
	require.ErrorAs(t, h.errs[0], &se)
	assert.Equal(t, 2, se.Line)
	h.advance()
	assert.Equal(t, Failed, h.exec.State())
}

func TestMalformedSetimgSkipped(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setimg a.png left 3\ntext ok"})
	h.start()
	assert.Equal(t, Animating, h.exec.State())
	assert.Equal(t, []string{"clear-sprites"}, h.calls.log)
}

func TestSoundMissingIsSkippedAndLoopsHonoured(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "sound nope.wav\nsound hit.wav -1\nsound hit.wav\nsound hit.wav x\nsound ~\ntext ok"})
	h.assets["sound/hit.wav"] = []byte("RIFF")
	h.start()
	assert.Equal(t, Animating, h.exec.State())
	assert.Equal(t, []string{"clear-sprites", "sound:hit.wav:-1", "sound:hit.wav:1", "sound:hit.wav:1", "stop-sound"}, h.calls.log)
}

func TestMusicReplacesAndStops(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "music a.ogg\nmusic b.ogg\ntext x\nmusic ~\ntext y"})
	h.assets["sound/a.ogg"] = []byte("a")
	h.assets["sound/b.ogg"] = []byte("b")
	h.start()
	assert.Equal(t, "b.ogg", h.exec.Scene().Music)
	h.reveal()
	h.advance()
	assert.Equal(t, "", h.exec.Scene().Music)
	assert.Equal(t, []string{"clear-sprites", "music:a.ogg", "music:b.ogg", "stop-music"}, h.calls.log)
}

func TestMissingMusicIsFatal(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "music gone.ogg"})
	h.start()
	assert.ErrorIs(t, h.exec.Err(), ErrAssetNotFound)
}

func TestSnapshotRestoreReplaysInOrder(t *testing.T) {
	body := "bgload room.png\nsetimg a.png 1 2\nsetimg b.png 3 4\nmusic theme.ogg\nsetvar l = 7\ngsetvar g = hi\ntext wait here\ntext later"
	assets := func(h *harness) {
		h.assets["background/room.png"] = pngOf(4, 3)
		h.assets["foreground/a.png"] = pngOf(1, 1)
		h.assets["foreground/b.png"] = pngOf(1, 1)
		h.assets["sound/theme.ogg"] = []byte("ogg")
	}
	h := newHarness(t, map[string]string{"main.scr": body})
	assets(h)
	h.start()
	h.reveal()
	require.Equal(t, AwaitingInput, h.exec.State())
	st := h.exec.Snapshot()
	assert.Equal(t, 6, st.Position)

	r := newHarness(t, map[string]string{"main.scr": body})
	assets(r)
	var doneErr error
	called := false
	r.exec.Restore(st, func(err error) { called, doneErr = true, err })
	r.loop.Drain()
	require.True(t, called)
	require.NoError(t, doneErr)

	var replay []string
	for _, c := range r.calls.log {
		if strings.HasPrefix(c, "bg:") || strings.HasPrefix(c, "sprite:") || strings.HasPrefix(c, "music:") {
			replay = append(replay, c)
		}
	}
	assert.Equal(t, []string{"bg:room.png", "sprite:a.png", "sprite:b.png", "music:theme.ogg"}, replay)
	assert.Equal(t, st.Position, r.exec.Cursor())
	assert.Equal(t, st.Locals, r.exec.Vars().Local.Snapshot())
	assert.Equal(t, st.Globals, r.exec.Vars().Global.Snapshot())
	assert.Equal(t, st.Scene, r.exec.Scene())
	assert.Equal(t, Idle, r.exec.State())
	assert.Equal(t, "wait here", r.driver.Visible())
	assert.Empty(t, r.history(), "history is not replayed")

	r.advance()
	r.reveal()
	assert.Equal(t, []string{"later"}, r.history())
}

func TestRestoreRepresentsChoice(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "choice a|b\ntext {selected}"})
	h.start()
	st := h.exec.Snapshot()
	require.Equal(t, 0, st.Position)

	r := newHarness(t, map[string]string{"main.scr": "choice a|b\ntext {selected}"})
	r.exec.Restore(st, nil)
	r.loop.Drain()
	require.Equal(t, AwaitingChoice, r.exec.State())
	require.NoError(t, r.exec.SelectChoice(1))
	r.loop.Drain()
	r.reveal()
	assert.Equal(t, []string{"1"}, r.history())
}

func TestRestoreRejectsPositionOutsideScript(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a"})
	st := h.exec.Snapshot()
	st.Script, st.Position = "main.scr", 9
	var got error
	h.exec.Restore(st, func(err error) { got = err })
	h.loop.Drain()
	require.Error(t, got)
	assert.Equal(t, Failed, h.exec.State())
}

func TestRestoreSupersededByStart(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "bgload room.png\ntext a", "other.scr": "text other"})
	h.assets["background/room.png"] = pngOf(2, 2)
	st := h.exec.Snapshot()
	st.Script, st.Position = "main.scr", 1
	st.Scene.Background = "room.png"

	h.pause = true
	var got []error
	h.exec.Restore(st, func(err error) { got = append(got, err) })
	h.loop.Drain()
	require.Len(t, h.deferred, 1, "script read held")
	pending := h.deferred[0]
	h.deferred = nil
	h.pause = false
	require.Equal(t, Loading, h.exec.State())

	h.exec.Start("other.scr")
	h.loop.Drain()
	require.Len(t, got, 1)
	assert.ErrorIs(t, got[0], ErrSuperseded)

	pending()
	h.loop.Drain()
	h.reveal()
	assert.Len(t, got, 1, "callback runs once")
	assert.Equal(t, "other.scr", h.exec.Script())
	assert.Equal(t, []string{"other"}, h.history())
}

func TestAbortFailsAndAllowsRestart(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a\ntext b"})
	h.start()
	h.exec.dispatching = true // left set by an interrupted dispatch
	boom := errors.New("stage panicked")
	h.exec.Abort(boom)
	assert.Equal(t, Failed, h.exec.State())
	assert.ErrorIs(t, h.exec.Err(), boom)
	require.Len(t, h.errs, 1)

	h.reveal()
	assert.Empty(t, h.history(), "reveal of the aborted line is dropped")

	h.start()
	h.reveal()
	assert.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, []string{"a"}, h.history())
}

func TestCloseSupersedesRestore(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a"})
	st := h.exec.Snapshot()
	st.Script, st.Position = "main.scr", 0
	h.pause = true
	var got error
	h.exec.Restore(st, func(err error) { got = err })
	h.exec.Close()
	assert.ErrorIs(t, got, ErrSuperseded)
}

func TestStaleAssetCompletionDropped(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text a\nbgload room.png\ntext b", "other.scr": "text other"})
	h.assets["background/room.png"] = pngOf(2, 2)
	h.start()
	h.reveal()
	h.pause = true
	h.advance()
	require.Len(t, h.deferred, 1)
	stale := h.deferred[0]
	h.deferred = nil
	h.pause = false

	h.exec.Start("other.scr")
	h.loop.Drain()
	h.reveal()
	stale()
	h.loop.Drain()

	assert.NotContains(t, h.calls.log, "bg:room.png")
	assert.Equal(t, "other.scr", h.exec.Script())
	assert.Equal(t, []string{"a", "other"}, h.history())
}

func TestSignalsDuringDispatchAreIgnored(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text !\ntext next"})
	reentered := 0
	h.view.onClear = func() {
		if h.exec.dispatching {
			reentered++
			h.exec.Advance()
			assert.ErrorIs(t, h.exec.SelectChoice(1), ErrBusy)
		}
	}
	h.start()
	assert.Equal(t, 1, reentered)
	assert.Equal(t, AwaitingInput, h.exec.State())
	assert.Equal(t, 0, h.exec.Cursor())
	assert.Empty(t, h.history())
}

func TestRunawayLoopFails(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "label top\ngoto top"})
	h.exec.maxSteps = 50
	h.start()
	assert.ErrorIs(t, h.exec.Err(), ErrRunaway)
}

func TestCursorIncreasesOnLinearScript(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "text 1\n\nsetvar a = 1\ntext 2\nbogus op\ntext 3\nlabel x\ntext 4"})
	h.start()
	for h.exec.State() != Terminal {
		h.reveal()
		h.advance()
	}
	assert.Equal(t, []int{0, 3, 5, 7}, h.waits)
}

func TestUnresolvedPlaceholderKeptVerbatim(t *testing.T) {
	h := newHarness(t, map[string]string{"main.scr": "setvar x = 5\ntext {x} and {y}"})
	h.start()
	h.reveal()
	assert.Equal(t, []string{"5 and {y}"}, h.history())
}

func TestAdvanceBeforeStartIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.advance()
	assert.Equal(t, Idle, h.exec.State())
	assert.Equal(t, "", h.exec.Script())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "awaiting-choice", AwaitingChoice.String())
	assert.Equal(t, "unknown", State(99).String())
}
