/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	applog "govn/internal/log"
)

// Folders are the top-level virtual folders of a novel package. Each is
// backed by <folder>.zip or a <folder>/ directory under the base dir.
var Folders = []string{"script", "background", "foreground", "sound"}

// Mount routes a virtual path to the provider registered for its first
// segment. The full path (folder included) is passed on, matching how the
// zips are laid out.
type Mount struct {
	providers map[string]Provider
	closers   []io.Closer
}

func NewMount() *Mount { return &Mount{providers: map[string]Provider{}} }

// Add registers p for folder. A provider that is also an io.Closer is
// closed by Close.
func (m *Mount) Add(folder string, p Provider) {
	m.providers[strings.ToLower(folder)] = p
	if c, ok := p.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}
}

func (m *Mount) Extract(ctx context.Context, name string) ([]byte, error) {
	k := Key(name)
	folder, _, _ := strings.Cut(k, "/")
	p, ok := m.providers[folder]
	if !ok {
		return nil, fmt.Errorf("%w: no archive mounted for %q", ErrNotFound, name)
	}
	return p.Extract(ctx, k)
}

// Has reports whether folder has a provider.
func (m *Mount) Has(folder string) bool {
	_, ok := m.providers[strings.ToLower(folder)]
	return ok
}

func (m *Mount) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenNovel mounts every folder of a novel package found under baseDir,
// preferring <folder>.zip over an unpacked directory. Missing folders are
// logged; a missing script folder is an error.
func OpenNovel(baseDir string) (*Mount, error) {
	l := applog.WithOperation(applog.WithComponent("archive"), "open_novel")
	m := NewMount()
	for _, folder := range Folders {
		zp := filepath.Join(baseDir, folder+".zip")
		if st, err := os.Stat(zp); err == nil && !st.IsDir() {
			z, err := OpenZip(zp)
			if err != nil {
				_ = m.Close()
				return nil, err
			}
			m.Add(folder, z)
			continue
		}
		// directory layout: <base>/<folder>/... ; entries keep the folder prefix
		if st, err := os.Stat(filepath.Join(baseDir, folder)); err == nil && st.IsDir() {
			m.Add(folder, NewDir(baseDir))
			continue
		}
		l.Warn("asset folder missing", slog.String("folder", folder), slog.String("base", baseDir))
	}
	if !m.Has("script") {
		_ = m.Close()
		return nil, fmt.Errorf("no script.zip or script/ in %s: %w", baseDir, ErrNotFound)
	}
	return m, nil
}
