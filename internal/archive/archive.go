/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package archive resolves virtual asset paths ("background/room.jpg",
// "script/main.scr") to bytes. Lookups are case-insensitive because novel
// packages are routinely authored on case-insensitive filesystems.
package archive

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned when no entry matches a path.
var ErrNotFound = errors.New("archive: not found")

// Provider extracts the bytes for a virtual path. Implementations are safe
// for concurrent use.
type Provider interface {
	Extract(ctx context.Context, name string) ([]byte, error)
}

// Key normalizes a virtual path for lookup: forward slashes, no leading
// slash or "./", lower case.
func Key(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Clean("/" + name)
	return strings.ToLower(strings.TrimPrefix(name, "/"))
}

// Result is the outcome of an asynchronous extraction.
type Result struct {
	Name string
	Data []byte
	Err  error
}

// Fetch extracts name on a new goroutine and delivers the result on the
// returned channel, which is buffered and receives exactly one value.
func Fetch(ctx context.Context, p Provider, name string) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		data, err := p.Extract(ctx, name)
		ch <- Result{Name: name, Data: data, Err: err}
	}()
	return ch
}
