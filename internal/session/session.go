/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session owns one playthrough: it builds the interpreter and its
// collaborators from configuration, runs the interpreter's loop and exposes
// thread-safe controls for a host UI.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"govn/internal/archive"
	"govn/internal/choice"
	"govn/internal/config"
	"govn/internal/crash"
	"govn/internal/engine"
	"govn/internal/history"
	applog "govn/internal/log"
	"govn/internal/rollback"
	"govn/internal/runloop"
	"govn/internal/save"
	"govn/internal/scene"
	"govn/internal/storage"
	"govn/internal/text"
	"govn/internal/textlayout"
	"govn/internal/vars"
)

var (
	ErrClosed     = errors.New("session: closed")
	ErrNoRollback = errors.New("session: nothing to roll back to")
	// ErrPending is returned in manual mode when a restore still waits for
	// asset reads after the loop was drained.
	ErrPending = errors.New("session: restore still pending")
)

// autosaveKeep is the number of rolling autosaves kept per novel.
const autosaveKeep = 10

// ErrorView shows fatal script errors to the reader.
type ErrorView interface {
	ShowError(err error)
}

// Options configures Open. Only Config is required.
type Options struct {
	Config config.AppConfig
	// Assets defaults to the novel package at Config.Novel.BaseDir.
	Assets     archive.Provider
	Stage      engine.Stage
	Audio      engine.Audio
	TextView   text.View
	ChoiceView choice.View
	ErrorView  ErrorView
	// Measurer defaults to the configured font, or the basic face.
	Measurer textlayout.Measurer
	// WrapWidth overrides Config.Display.TextWidth when positive.
	WrapWidth float32

	// Manual leaves the loop to the caller: every control drains the
	// loop synchronously on the calling goroutine. Used by headless runs
	// and tests together with a ManualClock.
	Manual bool
	Loop   *runloop.Loop
	Sched  runloop.Scheduler
	Spawn  func(func())
	// OnEnd runs on the loop goroutine when the script ends.
	OnEnd func()
}

// Session is the owner object of one playthrough.
type Session struct {
	ID string

	cfg      config.AppConfig
	ctx      context.Context
	stop     context.CancelFunc
	loop     *runloop.Loop
	manual   bool
	loopDone chan struct{}

	exec     *engine.Executor
	choices  *choice.Coordinator
	history  *history.Log
	slots    *storage.Slots
	rollback *rollback.Manager
	closers  []io.Closer
	errView  ErrorView
	onEnd    func()
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open builds a session. The script does not run until Start or Load.
func Open(ctx context.Context, opt Options) (*Session, error) {
	cfg := opt.Config
	id := uuid.NewString()
	ctx = applog.ContextWithSession(ctx, id)
	s := &Session{
		ID:      id,
		cfg:     cfg,
		manual:  opt.Manual,
		errView: opt.ErrorView,
		onEnd:   opt.OnEnd,
		history: history.New(cfg.Playback.HistoryLimit),
		log:     applog.WithComponent("session").With(slog.String("session", id)),
	}
	s.rollback = rollback.NewManager(rollback.Config{
		MaxBytes: cfg.Saves.RollbackMaxBytes,
		MaxDepth: cfg.Saves.RollbackDepth,
	})
	s.ctx, s.stop = context.WithCancel(ctx)

	assets := opt.Assets
	if assets == nil {
		m, err := archive.OpenNovel(cfg.Novel.BaseDir)
		if err != nil {
			s.stop()
			return nil, fmt.Errorf("open novel: %w", err)
		}
		assets = m
		s.closers = append(s.closers, m)
	}

	slots, err := storage.OpenSlots(ctx, cfg.SaveDir())
	if err != nil {
		s.closeAll()
		s.stop()
		return nil, fmt.Errorf("open saves: %w", err)
	}
	s.slots = slots
	s.closers = append(s.closers, slots)

	s.loop = opt.Loop
	if s.loop == nil {
		s.loop = runloop.New()
	}
	s.loop.OnPanic(s.panicked)
	sched := opt.Sched
	if sched == nil {
		sched = runloop.TimerScheduler{Loop: s.loop}
	}

	measurer := opt.Measurer
	if measurer == nil {
		measurer = s.measurerFor(cfg.Display)
	}
	width := opt.WrapWidth
	if width <= 0 {
		width = float32(cfg.Display.TextWidth())
	}
	driver := text.NewDriver(opt.TextView, sched, textlayout.Wrapper{Measurer: measurer, MaxWidth: width}, cfg.Playback.CharDelay())
	coord := choice.NewCoordinator(choice.Layout{
		ScreenW: float64(cfg.Display.Width),
		ScreenH: float64(cfg.Display.Height),
		BoxW:    float64(cfg.Display.ChoiceWidth),
		BoxH:    float64(cfg.Display.ChoiceHeight),
		Gap:     float64(cfg.Display.ChoiceGap),
	}, opt.ChoiceView)
	s.choices = coord

	s.exec = engine.New(engine.Deps{
		Assets:  assets,
		Loop:    s.loop,
		Sched:   sched,
		Text:    driver,
		Choices: coord,
		Stage:   opt.Stage,
		Audio:   opt.Audio,
		History: s.history,
		Vars:    vars.NewStore(),
		Layout: scene.Layout{
			DesignW: float64(cfg.Display.DesignWidth),
			DesignH: float64(cfg.Display.DesignHeight),
			DeviceW: float64(cfg.Display.Width),
			DeviceH: float64(cfg.Display.Height),
		},
		FrameRate:  cfg.Playback.EffectiveFrameRate(),
		SkipPacing: cfg.Playback.SkipPacing(),
		Spawn:      opt.Spawn,
		Logger:     applog.WithComponent("engine").With(slog.String("session", id)),
		Hooks: engine.Hooks{
			OnAwaitInput: s.checkpoint,
			OnError:      s.showError,
			OnEnd:        s.ended,
		},
	})

	if !s.manual {
		s.loopDone = make(chan struct{})
		go func() {
			defer close(s.loopDone)
			_ = s.loop.Run(s.ctx)
		}()
	}
	s.log.Info("session opened", slog.String("novel", cfg.Novel.BaseDir))
	return s, nil
}

func (s *Session) measurerFor(d config.DisplayConfig) textlayout.Measurer {
	spec := textlayout.FontSpec{Family: "novel", SizePt: float32(d.FontSize)}
	if d.FontPath == "" {
		return textlayout.MeasurerFor(textlayout.BasicProvider{}, spec)
	}
	lib := textlayout.NewFontLibrary()
	if err := lib.LoadFile(spec.Family, d.FontPath); err != nil {
		s.log.Warn("font unavailable, using basic face", slog.String("path", d.FontPath), slog.Any("err", err))
	}
	return textlayout.MeasurerFor(textlayout.OTProvider{Lib: lib}, spec)
}

// call runs fn on the loop goroutine and waits for it.
func (s *Session) call(fn func()) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if s.manual {
		s.loop.Post(fn)
		s.loop.Drain()
		return nil
	}
	done := make(chan struct{})
	s.loop.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-s.loopDone:
		return ErrClosed
	}
}

// Start begins the entry script from its first line.
func (s *Session) Start() error {
	return s.call(func() {
		s.history.Clear()
		s.rollback.Clear()
		s.exec.Start(s.cfg.Novel.EntryScript)
	})
}

func (s *Session) Advance() error { return s.call(s.exec.Advance) }

// Tap forwards a pointer press in device coordinates.
func (s *Session) Tap(p choice.Point) error {
	return s.call(func() { s.exec.Tap(p) })
}

// Select picks option i (1-based) of the shown choice.
func (s *Session) Select(i int) error {
	var err error
	if cerr := s.call(func() { err = s.exec.SelectChoice(i) }); cerr != nil {
		return cerr
	}
	return err
}

func (s *Session) SetSkip(on bool) error {
	return s.call(func() { s.exec.SetSkip(on) })
}

// State reports the interpreter state.
func (s *Session) State() engine.State {
	st := engine.Failed
	_ = s.call(func() { st = s.exec.State() })
	return st
}

// Err is the fatal script error, if any.
func (s *Session) Err() error {
	var err error
	_ = s.call(func() { err = s.exec.Err() })
	return err
}

// History returns the backlog, oldest first.
func (s *Session) History() []string { return s.history.Lines() }

// Options returns the labels of the shown choice, if any.
func (s *Session) Options() []string {
	var opts []string
	_ = s.call(func() {
		if s.exec.State() == engine.AwaitingChoice {
			opts = s.choices.Options()
		}
	})
	return opts
}

func (s *Session) snapshot() (save.State, error) {
	var st save.State
	err := s.call(func() { st = s.exec.Snapshot() })
	return st, err
}

// Save writes the current position to slot.
func (s *Session) Save(ctx context.Context, slot int) error {
	st, err := s.snapshot()
	if err != nil {
		return err
	}
	if st.Script == "" {
		return errors.New("session: nothing to save yet")
	}
	preview := ""
	if lines := s.history.Lines(); len(lines) > 0 {
		preview = lines[len(lines)-1]
	}
	return s.slots.Write(ctx, slot, st, preview)
}

// Load restores slot, replacing the current position.
func (s *Session) Load(ctx context.Context, slot int) error {
	st, err := s.slots.Read(ctx, slot)
	if err != nil {
		return err
	}
	if err := s.restore(ctx, st); err != nil {
		return err
	}
	s.rollback.Clear()
	s.history.Clear()
	return s.call(s.checkpoint)
}

// Autosave records the current position in the rolling autosaves.
func (s *Session) Autosave(ctx context.Context) error {
	st, err := s.snapshot()
	if err != nil {
		return err
	}
	if st.Script == "" {
		return nil
	}
	return s.slots.Autosave(ctx, st, autosaveKeep)
}

// Continue restores the newest autosave.
func (s *Session) Continue(ctx context.Context) error {
	st, err := s.slots.LatestAutosave(ctx)
	if err != nil {
		return err
	}
	return s.restore(ctx, st)
}

// Slots lists the save slots.
func (s *Session) Slots(ctx context.Context) ([]storage.SlotInfo, error) {
	return s.slots.List(ctx)
}

// Back rolls back to the previous text line the reader waited on.
func (s *Session) Back(ctx context.Context) error {
	cp, ok := s.rollback.Back()
	if !ok {
		return ErrNoRollback
	}
	return s.restoreBlob(ctx, cp.Blob)
}

// Forward undoes Back.
func (s *Session) Forward(ctx context.Context) error {
	cp, ok := s.rollback.Forward()
	if !ok {
		return ErrNoRollback
	}
	return s.restoreBlob(ctx, cp.Blob)
}

func (s *Session) restoreBlob(ctx context.Context, blob []byte) error {
	st, err := save.Unmarshal(blob)
	if err != nil {
		return err
	}
	return s.restore(ctx, st)
}

func (s *Session) restore(ctx context.Context, st save.State) error {
	result := make(chan error, 1)
	if err := s.call(func() {
		s.exec.Restore(st, func(err error) { result <- err })
	}); err != nil {
		return err
	}
	if s.manual {
		select {
		case err := <-result:
			return err
		default:
			return ErrPending
		}
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.loopDone:
		return ErrClosed
	}
}

// checkpoint runs on the loop whenever the reader is waited on.
func (s *Session) checkpoint() {
	st := s.exec.Snapshot()
	blob, err := save.Marshal(st)
	if err != nil {
		s.log.Warn("rollback checkpoint skipped", slog.Any("err", err))
		return
	}
	s.rollback.Push(rollback.Checkpoint{Script: st.Script, Position: st.Position, Blob: blob, TS: time.Now()})
}

func (s *Session) showError(err error) {
	s.log.Error("script error", slog.Any("err", err))
	if s.errView != nil {
		s.errView.ShowError(err)
	}
}

// panicked runs on the loop goroutine when a continuation panics: it writes
// the crash report, autosaves the last position the reader waited on and
// fails the playthrough. The loop itself keeps serving the session.
func (s *Session) panicked(v any, stack []byte) {
	pe := crash.Report(crash.Target{SaveDir: s.cfg.SaveDir(), Autosave: s.crashAutosave}, v, stack)
	s.exec.Abort(pe)
}

// crashAutosave must not post to the loop: it already runs on it. The last
// rollback checkpoint is preferred over the current state, which may sit on
// the instruction that panicked.
func (s *Session) crashAutosave() error {
	st := s.exec.Snapshot()
	if cp, ok := s.rollback.Current(); ok {
		if cst, err := save.Unmarshal(cp.Blob); err == nil {
			st = cst
		}
	}
	if st.Script == "" {
		return nil
	}
	return s.slots.Autosave(s.ctx, st, autosaveKeep)
}

func (s *Session) ended() {
	s.log.Info("novel finished")
	if s.onEnd != nil {
		s.onEnd()
	}
}

// Close stops the loop and releases the novel package and save index.
func (s *Session) Close() error {
	_ = s.call(s.exec.Close)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.stop()
	if s.loopDone != nil {
		<-s.loopDone
	}
	return s.closeAll()
}

func (s *Session) closeAll() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
