/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the player into a crash report plus a
// last-chance autosave of the reader's position.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "govn/internal/log"
	"govn/internal/storage"
	"govn/internal/version"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target says where a crash report goes and how to autosave. Both fields
// are optional.
type Target struct {
	// SaveDir receives the report under its backups directory.
	SaveDir string
	// Autosave persists the current playback position.
	Autosave func() error
}

// PanicError is a panic that was recovered and reported without ending the
// process.
type PanicError struct {
	Value any
	// Report is the path of the crash report, empty if it could not be written.
	Report string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Recover captures a panic, logs an error with stacktrace, writes an error
// report file, attempts an autosave, and exits with code 2.
//
// Usage: defer crash.Recover(target)
func Recover(target Target) {
	if r := recover(); r != nil {
		pe := Report(target, r, debug.Stack())
		l := applog.WithComponent("crash")
		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", pe.Report); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		exitFn(2)
	}
}

// Report logs an already recovered panic, writes the crash report and runs
// the autosave. Callers that keep running, such as an interpreter loop that
// recovered inside one continuation, use it directly.
func Report(target Target, panicVal any, stack []byte) *PanicError {
	l := applog.WithComponent("crash")
	l.Error("panic recovered", slog.Any("panic", panicVal), slog.String("stack", string(stack)))

	reportPath, err := writeReport(target.SaveDir, panicVal, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err), slog.String("path", reportPath))
		reportPath = ""
	}
	if target.Autosave != nil {
		if err := safeAutosave(target.Autosave); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err))
		} else {
			l.Info("crash autosave written")
		}
	}
	return &PanicError{Value: panicVal, Report: reportPath}
}

// safeAutosave runs fn and converts a second panic into an error.
func safeAutosave(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autosave panicked: %v", r)
		}
	}()
	return fn()
}

func writeReport(saveDir string, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if saveDir != "" {
		dir = filepath.Join(saveDir, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "govn Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if saveDir != "" {
		_, _ = fmt.Fprintf(&buf, "SaveDir: %s\n", saveDir)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
