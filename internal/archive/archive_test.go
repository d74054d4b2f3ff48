/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("file close: %v", err)
	}
}

func TestKey(t *testing.T) {
	cases := map[string]string{
		"Background/Room.JPG":     "background/room.jpg",
		"/script/main.scr":        "script/main.scr",
		`sound\BGM\theme.ogg`:     "sound/bgm/theme.ogg",
		"./foreground/a/../b.png": "foreground/b.png",
	}
	for in, want := range cases {
		if got := Key(in); got != want {
			t.Fatalf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestZipCaseInsensitive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "background.zip")
	writeZip(t, p, map[string]string{"background/Room.JPG": "room-bytes", "background/": ""})
	z, err := OpenZip(p)
	if err != nil {
		t.Fatalf("OpenZip: %v", err)
	}
	defer z.Close()
	got, err := z.Extract(context.Background(), "BACKGROUND/room.jpg")
	if err != nil || string(got) != "room-bytes" {
		t.Fatalf("Extract = %q, %v", got, err)
	}
	if _, err := z.Extract(context.Background(), "background/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(z.Names()) != 1 {
		t.Fatalf("directory entries should not be indexed: %v", z.Names())
	}
}

func TestZipConcurrentExtract(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sound.zip")
	writeZip(t, p, map[string]string{"sound/a.ogg": "aaa", "sound/b.ogg": "bbb"})
	z, err := OpenZip(p)
	if err != nil {
		t.Fatalf("OpenZip: %v", err)
	}
	defer z.Close()
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		name, want := "sound/a.ogg", "aaa"
		if i%2 == 1 {
			name, want = "sound/B.ogg", "bbb"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := z.Extract(context.Background(), name)
			if err != nil {
				errs <- err
				return
			}
			if string(got) != want {
				errs <- errors.New("wrong bytes for " + name)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestDirCaseInsensitive(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "Foreground"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "Foreground", "Girl.PNG"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := NewDir(root)
	got, err := d.Extract(context.Background(), "foreground/girl.png")
	if err != nil || string(got) != "png" {
		t.Fatalf("Extract = %q, %v", got, err)
	}
	if _, err := d.Extract(context.Background(), "foreground/none.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenNovelPrefersZip(t *testing.T) {
	base := t.TempDir()
	writeZip(t, filepath.Join(base, "script.zip"), map[string]string{"script/main.scr": "text from zip"})
	if err := os.MkdirAll(filepath.Join(base, "script"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "script", "main.scr"), []byte("text from dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(base, "background"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "background", "bg.png"), []byte("bg"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := OpenNovel(base)
	if err != nil {
		t.Fatalf("OpenNovel: %v", err)
	}
	defer m.Close()
	got, err := m.Extract(context.Background(), "Script/Main.scr")
	if err != nil || string(got) != "text from zip" {
		t.Fatalf("script = %q, %v", got, err)
	}
	res := <-Fetch(context.Background(), m, "background/BG.png")
	if res.Err != nil || string(res.Data) != "bg" {
		t.Fatalf("Fetch = %q, %v", res.Data, res.Err)
	}
	if _, err := m.Extract(context.Background(), "sound/x.ogg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unmounted folder should be ErrNotFound, got %v", err)
	}
}

func TestOpenNovelWithoutScripts(t *testing.T) {
	if _, err := OpenNovel(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
