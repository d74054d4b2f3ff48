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
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	applog "govn/internal/log"
)

// Zip serves entries of one zip file. Extraction is serialized per archive
// and concurrent requests for the same entry share one read.
type Zip struct {
	path  string
	mu    sync.Mutex
	rc    *zip.ReadCloser
	index map[string]*zip.File
	group singleflight.Group
	log   *slog.Logger
}

// OpenZip opens a zip file and indexes its entries case-insensitively.
// Directory entries are skipped; on duplicate keys the first entry wins.
func OpenZip(path string) (*Zip, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	z := &Zip{
		path:  path,
		rc:    rc,
		index: make(map[string]*zip.File, len(rc.File)),
		log:   applog.WithOperation(applog.WithComponent("archive"), "zip"),
	}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		k := Key(f.Name)
		if _, dup := z.index[k]; dup {
			z.log.Warn("duplicate entry ignored", slog.String("archive", path), slog.String("entry", f.Name))
			continue
		}
		z.index[k] = f
	}
	z.log.Debug("archive opened", slog.String("archive", path), slog.Int("entries", len(z.index)))
	return z, nil
}

// Names lists the normalized entry keys.
func (z *Zip) Names() []string {
	out := make([]string, 0, len(z.index))
	for k := range z.index {
		out = append(out, k)
	}
	return out
}

func (z *Zip) Extract(ctx context.Context, name string) ([]byte, error) {
	k := Key(name)
	f, ok := z.index[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, name, z.path)
	}
	v, err, _ := z.group.Do(k, func() (any, error) {
		z.mu.Lock()
		defer z.mu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	// callers may keep and mutate their slice
	return append([]byte(nil), v.([]byte)...), nil
}

func (z *Zip) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.rc.Close()
}
