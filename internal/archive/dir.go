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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Dir serves files below a directory, matching names case-insensitively.
// The index is built lazily on the first miss so files added later are
// still found.
type Dir struct {
	root string

	mu    sync.Mutex
	index map[string]string
}

func NewDir(root string) *Dir { return &Dir{root: root} }

func (d *Dir) Extract(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := Key(name)
	if data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(k))); err == nil {
		return data, nil
	}
	p, ok, err := d.lookup(k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, d.root)
	}
	return os.ReadFile(p)
}

func (d *Dir) lookup(k string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.index[k]; ok {
		return p, true, nil
	}
	idx := map[string]string{}
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil || e.IsDir() {
			return err
		}
		rel, rerr := filepath.Rel(d.root, p)
		if rerr != nil {
			return rerr
		}
		idx[Key(filepath.ToSlash(rel))] = p
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("index %s: %w", d.root, err)
	}
	d.index = idx
	p, ok := idx[k]
	return p, ok, nil
}
