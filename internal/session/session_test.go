/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govn/internal/archive"
	"govn/internal/choice"
	"govn/internal/config"
	"govn/internal/crash"
	"govn/internal/engine"
	"govn/internal/runloop"
	"govn/internal/save"
	"govn/internal/scene"
	"govn/internal/storage"
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

type textView struct{ lines []string }

func (v *textView) ShowText(lines []string) { v.lines = lines }
func (v *textView) ClearText()              { v.lines = nil }
func (v *textView) shown() string           { return strings.Join(v.lines, " ") }

type errorView struct{ errs []error }

func (v *errorView) ShowError(err error) { v.errs = append(v.errs, err) }

type fixture struct {
	s     *Session
	clock *runloop.ManualClock
	view  *textView
	errs  *errorView
	ended int
	dir   string
}

func newFixture(t *testing.T, main string) *fixture {
	t.Helper()
	return newFixtureWith(t, memAssets{"script/main.scr": []byte(main)}, nil)
}

func newFixtureWith(t *testing.T, assets memAssets, stage engine.Stage) *fixture {
	t.Helper()
	cfg := config.Defaults()
	cfg.Novel.BaseDir = t.TempDir()
	loop := runloop.New()
	f := &fixture{clock: runloop.NewManualClock(loop), view: &textView{}, errs: &errorView{}}
	s, err := Open(context.Background(), Options{
		Config:    cfg,
		Assets:    assets,
		Stage:     stage,
		TextView:  f.view,
		ErrorView: f.errs,
		Measurer:  textlayout.CellMeasurer{},
		WrapWidth: 200,
		Manual:    true,
		Loop:      loop,
		Sched:     f.clock,
		Spawn:     func(fn func()) { fn() },
		OnEnd:     func() { f.ended++ },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	f.s = s
	f.dir = cfg.SaveDir()
	return f
}

func (f *fixture) reveal() { f.clock.Advance(5 * time.Second) }

func (f *fixture) step(t *testing.T) {
	t.Helper()
	require.NoError(t, f.s.Advance())
	f.reveal()
}

func TestStartRunsEntryScript(t *testing.T) {
	f := newFixture(t, "text hello\ntext world")
	require.NoError(t, f.s.Start())
	assert.Equal(t, engine.Animating, f.s.State())

	f.reveal()
	assert.Equal(t, engine.AwaitingInput, f.s.State())
	assert.Equal(t, []string{"hello"}, f.s.History())
	assert.NotEmpty(t, f.s.ID)

	f.step(t)
	assert.Equal(t, []string{"hello", "world"}, f.s.History())
	require.NoError(t, f.s.Advance())
	assert.Equal(t, engine.Terminal, f.s.State())
	assert.Equal(t, 1, f.ended)
}

func TestChoiceThroughSession(t *testing.T) {
	f := newFixture(t, "choice red|blue\ntext picked {selected}")
	require.NoError(t, f.s.Start())
	require.Equal(t, engine.AwaitingChoice, f.s.State())
	assert.Equal(t, []string{"red", "blue"}, f.s.Options())

	assert.ErrorIs(t, f.s.Select(3), choice.ErrOutOfRange)
	require.NoError(t, f.s.Select(2))
	f.reveal()
	assert.Contains(t, f.s.History(), "picked 2")
	assert.Empty(t, f.s.Options())
}

func TestSaveAndLoadSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "gsetvar route = 1\ntext first\ntext second\ntext third")
	require.NoError(t, f.s.Start())
	f.reveal()
	require.NoError(t, f.s.Save(ctx, 3))

	f.step(t)
	f.step(t)
	assert.Contains(t, f.view.shown(), "third")

	require.NoError(t, f.s.Load(ctx, 3))
	assert.Equal(t, "first", f.view.shown())
	assert.Empty(t, f.s.History())

	f.step(t)
	assert.Equal(t, []string{"second"}, f.s.History())

	infos, err := f.s.Slots(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 3, infos[0].Slot)
	assert.Equal(t, "first", infos[0].Preview)
	assert.Equal(t, "main.scr", infos[0].Script)
}

func TestLoadEmptySlot(t *testing.T) {
	f := newFixture(t, "text a")
	require.NoError(t, f.s.Start())
	assert.ErrorIs(t, f.s.Load(context.Background(), 9), storage.ErrSlotEmpty)
}

func TestSaveBeforeStartFails(t *testing.T) {
	f := newFixture(t, "text a")
	assert.Error(t, f.s.Save(context.Background(), 1))
}

func TestBackAndForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "text one\ntext two\ntext three")
	require.NoError(t, f.s.Start())
	f.reveal()
	assert.ErrorIs(t, f.s.Back(ctx), ErrNoRollback)

	f.step(t)
	f.step(t)
	require.Contains(t, f.view.shown(), "three")

	require.NoError(t, f.s.Back(ctx))
	assert.Equal(t, "two", f.view.shown())
	require.NoError(t, f.s.Back(ctx))
	assert.Equal(t, "one", f.view.shown())
	assert.ErrorIs(t, f.s.Back(ctx), ErrNoRollback)

	require.NoError(t, f.s.Forward(ctx))
	assert.Equal(t, "two", f.view.shown())

	// moving on drops the forward history
	f.step(t)
	assert.ErrorIs(t, f.s.Forward(ctx), ErrNoRollback)
}

func TestAutosaveAndContinue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "text one\ntext two")
	require.NoError(t, f.s.Autosave(ctx), "nothing running is not an error")
	require.NoError(t, f.s.Start())
	f.reveal()
	f.step(t)
	require.NoError(t, f.s.Autosave(ctx))

	require.NoError(t, f.s.Start())
	f.reveal()
	require.NoError(t, f.s.Continue(ctx))
	assert.Equal(t, "two", f.view.shown())
}

func TestScriptErrorReachesErrorView(t *testing.T) {
	f := newFixture(t, "text a\njump nowhere.scr")
	require.NoError(t, f.s.Start())
	f.reveal()
	require.NoError(t, f.s.Advance())

	assert.Equal(t, engine.Failed, f.s.State())
	require.Len(t, f.errs.errs, 1)
	assert.ErrorIs(t, f.errs.errs[0], engine.ErrScriptNotFound)
	assert.ErrorIs(t, f.s.Err(), engine.ErrScriptNotFound)
}

func TestSkipThroughSession(t *testing.T) {
	f := newFixture(t, "text a\ntext b\ntext c")
	require.NoError(t, f.s.Start())
	require.NoError(t, f.s.SetSkip(true))
	assert.Equal(t, engine.Skipping, f.s.State())
	f.clock.RunAll(100)
	assert.Equal(t, []string{"a", "b", "c"}, f.s.History())
	assert.Equal(t, engine.Terminal, f.s.State())
}

func TestClosedSession(t *testing.T) {
	f := newFixture(t, "text a")
	require.NoError(t, f.s.Close())
	assert.True(t, errors.Is(f.s.Advance(), ErrClosed))
	assert.NoError(t, f.s.Close())
}

func TestGoroutineMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Novel.BaseDir = t.TempDir()
	cfg.Playback.CharDelayMs = 1
	view := &syncView{}
	s, err := Open(context.Background(), Options{
		Config:   cfg,
		Assets:   memAssets{"script/main.scr": []byte("text hi")},
		TextView: view,
		Measurer: textlayout.CellMeasurer{},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return s.State() == engine.AwaitingInput }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"hi"}, s.History())
}

// syncView is written from the loop goroutine only; the test reads state
// through the session.
type syncView struct{}

func (syncView) ShowText([]string) {}
func (syncView) ClearText()       {}

// gatedAssets holds reads of one entry until gate is closed.
type gatedAssets struct {
	memAssets
	gated string
	gate  chan struct{}
}

func (g gatedAssets) Extract(ctx context.Context, name string) ([]byte, error) {
	if archive.Key(name) == archive.Key(g.gated) {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.memAssets.Extract(ctx, name)
}

func TestStartInterruptsPendingRestore(t *testing.T) {
	cfg := config.Defaults()
	cfg.Novel.BaseDir = t.TempDir()
	cfg.Playback.CharDelayMs = 1
	assets := gatedAssets{
		memAssets: memAssets{"script/main.scr": []byte("text a\ntext b"), "background/room.png": []byte("png")},
		gated:     "background/room.png",
		gate:      make(chan struct{}),
	}
	defer close(assets.gate)
	s, err := Open(context.Background(), Options{Config: cfg, Assets: assets, TextView: syncView{}, Measurer: textlayout.CellMeasurer{}})
	require.NoError(t, err)
	defer s.Close()

	st := save.State{Script: "main.scr", Position: 1, Scene: scene.State{Background: "room.png"}}
	result := make(chan error, 1)
	go func() { result <- s.restore(context.Background(), st) }()
	require.Eventually(t, func() bool { return s.State() == engine.Loading }, 2*time.Second, time.Millisecond)

	require.NoError(t, s.Start())
	select {
	case err := <-result:
		assert.ErrorIs(t, err, engine.ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("restore still waiting after Start")
	}
	require.Eventually(t, func() bool { return s.State() == engine.AwaitingInput }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, s.History())
}

type panickingStage struct{ armed bool }

func (p *panickingStage) SetBackground(scene.Image) error {
	if p.armed {
		panic("renderer lost its surface")
	}
	return nil
}
func (p *panickingStage) AddSprite(scene.Image) error { return nil }
func (p *panickingStage) ClearSprites()               {}

func TestCollaboratorPanicFailsSessionAndAutosaves(t *testing.T) {
	ctx := context.Background()
	stage := &panickingStage{armed: true}
	f := newFixtureWith(t, memAssets{
		"script/main.scr":     []byte("text safe\nbgload room.png\ntext after"),
		"background/room.png": []byte("png"),
	}, stage)
	require.NoError(t, f.s.Start())
	f.reveal()
	require.Equal(t, engine.AwaitingInput, f.s.State())

	require.NoError(t, f.s.Advance())
	assert.Equal(t, engine.Failed, f.s.State())
	require.Len(t, f.errs.errs, 1)
	var pe *crash.PanicError
	require.ErrorAs(t, f.errs.errs[0], &pe)
	assert.Equal(t, "renderer lost its surface", pe.Value)
	assert.FileExists(t, pe.Report)
	assert.True(t, strings.HasPrefix(pe.Report, f.dir))

	// the loop survives and the autosave holds the last waited line
	stage.armed = false
	require.NoError(t, f.s.Continue(ctx))
	assert.Equal(t, "safe", f.view.shown())
	f.step(t)
	f.reveal()
	assert.Contains(t, f.s.History(), "after")
}
