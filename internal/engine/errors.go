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
	"fmt"
)

var (
	// ErrScriptNotFound means a started or jumped-to script does not exist.
	ErrScriptNotFound = errors.New("engine: script not found")
	// ErrAssetNotFound means a required background, sprite or music asset
	// does not exist.
	ErrAssetNotFound = errors.New("engine: asset not found")
	// ErrRunaway is returned when one dispatch run executes more
	// instructions than the step budget allows without suspending.
	ErrRunaway = errors.New("engine: script does not yield")
	// ErrNotAwaitingChoice is returned by SelectChoice when no choice is shown.
	ErrNotAwaitingChoice = errors.New("engine: no choice is awaiting selection")
	// ErrSuperseded is passed to a pending Restore callback when Start,
	// another Restore or Close cancels it before it completes.
	ErrSuperseded = errors.New("engine: restore superseded")
)

// ScriptError is a fatal error tied to a script position. Line is 1-based;
// zero means the error is not tied to a line (e.g. loading the script).
type ScriptError struct {
	Script string
	Line   int
	Op     string
	Err    error
}

func (e *ScriptError) Error() string {
	if e.Line <= 0 {
		return fmt.Sprintf("%s: %v", e.Script, e.Err)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s:%d: %v", e.Script, e.Line, e.Err)
	}
	return fmt.Sprintf("%s:%d: %s: %v", e.Script, e.Line, e.Op, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }
