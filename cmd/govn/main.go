/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"govn/internal/archive"
	"govn/internal/choice"
	"govn/internal/config"
	"govn/internal/crash"
	"govn/internal/engine"
	"govn/internal/export"
	applog "govn/internal/log"
	"govn/internal/runloop"
	"govn/internal/script"
	"govn/internal/session"
	"govn/internal/textlayout"
	"govn/internal/version"
)

func usage() {
	fmt.Println("govn - visual novel script player")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  govn version|-v|--version           Show version")
	fmt.Println("  govn play <dir> [slot]              Play the novel at <dir> in the terminal, optionally from a save slot")
	fmt.Println("  govn check <dir>                    Lint every script of the novel at <dir>")
	fmt.Println("  govn saves <dir>                    List the save slots of the novel at <dir>")
	fmt.Println("  govn transcript <dir> <out.pdf>     Skip through the novel, always taking the first option, and export a PDF transcript")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Config:", err)
		cfg = config.Defaults()
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	l := applog.WithComponent("cli")
	defer crash.Recover(crash.Target{})

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("govn - visual novel script player")
			fmt.Println(version.String())
			return
		case "play":
			if len(args) < 3 {
				fmt.Println("play requires <dir>")
				usage()
				os.Exit(2)
			}
			cfg.Novel.BaseDir, _ = filepath.Abs(args[2])
			slot := -1
			if len(args) >= 4 {
				n, err := strconv.Atoi(args[3])
				if err != nil {
					fmt.Println("slot must be a number")
					os.Exit(2)
				}
				slot = n
			}
			if err := play(cfg, slot); err != nil {
				l.Error("play failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			return
		case "check":
			if len(args) < 3 {
				fmt.Println("check requires <dir>")
				usage()
				os.Exit(2)
			}
			problems, err := check(args[2])
			if err != nil {
				l.Error("check failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			if problems > 0 {
				os.Exit(1)
			}
			fmt.Println("No problems found.")
			return
		case "saves":
			if len(args) < 3 {
				fmt.Println("saves requires <dir>")
				usage()
				os.Exit(2)
			}
			cfg.Novel.BaseDir, _ = filepath.Abs(args[2])
			if err := listSaves(cfg); err != nil {
				l.Error("listing saves failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			return
		case "transcript":
			if len(args) < 4 {
				fmt.Println("transcript requires <dir> and <out.pdf>")
				usage()
				os.Exit(2)
			}
			cfg.Novel.BaseDir, _ = filepath.Abs(args[2])
			if err := transcript(cfg, args[3]); err != nil {
				l.Error("transcript failed", slog.Any("err", err))
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			fmt.Println("Wrote", args[3])
			return
		}
	}

	usage()
}

// termText prints only what the typewriter added since the last render.
type termText struct{ printed string }

func (v *termText) ShowText(lines []string) {
	s := strings.Join(lines, "\n")
	if strings.HasPrefix(s, v.printed) {
		fmt.Print(s[len(v.printed):])
	} else {
		fmt.Print("\n" + s)
	}
	v.printed = s
}

func (v *termText) ClearText() {
	if v.printed != "" {
		fmt.Println()
	}
	v.printed = ""
}

type termChoices struct{}

func (termChoices) ShowChoices(regions []choice.Region) {
	fmt.Println()
	for _, r := range regions {
		fmt.Printf("  [%d] %s\n", r.Index, r.Label)
	}
}

func (termChoices) ClearChoices() {}

type termErrors struct{}

func (termErrors) ShowError(err error) { fmt.Fprintln(os.Stderr, "\nScript error:", err) }

func play(cfg config.AppConfig, slot int) error {
	ctx := context.Background()
	done := make(chan struct{})
	s, err := session.Open(ctx, session.Options{
		Config:     cfg,
		TextView:   &termText{},
		ChoiceView: termChoices{},
		ErrorView:  termErrors{},
		Measurer:   textlayout.CellMeasurer{},
		WrapWidth:  1 << 20,
		OnEnd:      func() { close(done) },
	})
	if err != nil {
		return err
	}
	defer s.Close()
	defer crash.Recover(crash.Target{SaveDir: cfg.SaveDir(), Autosave: func() error { return s.Autosave(ctx) }})

	if slot >= 0 {
		err = s.Load(ctx, slot)
	} else {
		err = s.Start()
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "enter: next  <n>: choose  s: skip  save <n> / load <n>  b/f: back/forward  q: quit")

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()
	skip := false
	for {
		select {
		case <-done:
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return s.Autosave(ctx)
			}
			if quit := command(ctx, s, line, &skip); quit {
				return s.Autosave(ctx)
			}
			if s.State() == engine.Failed {
				return s.Err()
			}
		}
	}
}

func command(ctx context.Context, s *session.Session, line string, skip *bool) bool {
	fields := strings.Fields(line)
	var err error
	switch {
	case len(fields) == 0:
		err = s.Advance()
	case fields[0] == "q":
		return true
	case fields[0] == "s":
		*skip = !*skip
		err = s.SetSkip(*skip)
	case fields[0] == "b":
		err = s.Back(ctx)
	case fields[0] == "f":
		err = s.Forward(ctx)
	case (fields[0] == "save" || fields[0] == "load") && len(fields) == 2:
		n, perr := strconv.Atoi(fields[1])
		if perr != nil {
			err = perr
			break
		}
		if fields[0] == "save" {
			err = s.Save(ctx, n)
		} else {
			err = s.Load(ctx, n)
		}
	default:
		n, perr := strconv.Atoi(fields[0])
		if perr != nil {
			err = fmt.Errorf("unknown command %q", line)
			break
		}
		err = s.Select(n)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "!", err)
	}
	return false
}

// scriptNames lists the script files of a novel package, zipped or not.
func scriptNames(baseDir string) ([]string, error) {
	zp := filepath.Join(baseDir, "script.zip")
	if _, err := os.Stat(zp); err == nil {
		z, err := archive.OpenZip(zp)
		if err != nil {
			return nil, err
		}
		defer z.Close()
		names := z.Names()
		sort.Strings(names)
		return names, nil
	}
	var names []string
	root := filepath.Join(baseDir, "script")
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(baseDir, p)
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(names)
	return names, err
}

func check(dir string) (int, error) {
	base, _ := filepath.Abs(dir)
	m, err := archive.OpenNovel(base)
	if err != nil {
		return 0, err
	}
	defer m.Close()
	names, err := scriptNames(base)
	if err != nil {
		return 0, err
	}
	ctx := context.Background()
	problems := 0
	for _, name := range names {
		data, err := m.Extract(ctx, name)
		if err != nil {
			return problems, err
		}
		doc := script.Parse(strings.TrimPrefix(name, "script/"), string(data))
		for _, e := range script.Lint(doc) {
			fmt.Printf("%s:%s\n", name, e.Error())
			problems++
		}
	}
	return problems, nil
}

func listSaves(cfg config.AppConfig) error {
	ctx := context.Background()
	s, err := session.Open(ctx, session.Options{Config: cfg, Manual: true})
	if err != nil {
		return err
	}
	defer s.Close()
	infos, err := s.Slots(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No saves.")
		return nil
	}
	for _, in := range infos {
		fmt.Printf("%3d  %s  %-20s line %-5d %s\n", in.Slot, in.SavedAt.Format("2006-01-02 15:04"), in.Script, in.Position+1, in.Preview)
	}
	return nil
}

// transcriptLimit bounds headless runs through novels that loop forever.
const transcriptLimit = 100000

func transcript(cfg config.AppConfig, out string) error {
	ctx := context.Background()
	cfg.Playback.HistoryLimit = transcriptLimit
	loop := runloop.New()
	clock := runloop.NewManualClock(loop)
	s, err := session.Open(ctx, session.Options{
		Config:    cfg,
		Measurer:  textlayout.CellMeasurer{},
		WrapWidth: 1 << 20,
		Manual:    true,
		Loop:      loop,
		Sched:     clock,
		Spawn:     func(fn func()) { fn() },
	})
	if err != nil {
		return err
	}
	defer s.Close()

	tr := export.Transcript{Title: filepath.Base(cfg.Novel.BaseDir)}
	seen := 0
	flush := func() {
		h := s.History()
		for _, line := range h[min(seen, len(h)):] {
			tr.Entries = append(tr.Entries, export.Entry{Text: line})
		}
		seen = len(h)
	}
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.SetSkip(true); err != nil {
		return err
	}
	for steps := 0; steps < transcriptLimit; steps++ {
		clock.RunAll(transcriptLimit)
		flush()
		switch s.State() {
		case engine.Terminal:
			return export.TranscriptPDFFile(out, tr, export.PDFOptions{ChoiceColor: export.Color{R: 0x33, G: 0x66, B: 0xcc}, IncludeRule: true})
		case engine.Failed:
			return s.Err()
		case engine.AwaitingChoice:
			opts := s.Options()
			if len(opts) > 0 {
				tr.Entries = append(tr.Entries, export.Entry{Text: opts[0], Choice: true})
			}
			if err := s.Select(1); err != nil {
				return err
			}
		default:
			if err := s.Advance(); err != nil {
				return err
			}
		}
	}
	return errors.New("transcript: novel did not finish")
}
