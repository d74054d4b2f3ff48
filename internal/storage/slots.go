/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	applog "govn/internal/log"
	"govn/internal/save"
)

// ErrSlotEmpty is returned when a slot has no save file.
var ErrSlotEmpty = errors.New("storage: slot is empty")

// language=SQL
// dialect=SQLite
const upsertSlotSQL = `INSERT INTO saves(slot, file, script, position, saved_at, preview) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(slot) DO UPDATE SET file=excluded.file, script=excluded.script, position=excluded.position,
	saved_at=excluded.saved_at, preview=excluded.preview`

// language=SQL
// dialect=SQLite
const listSlotsSQL = `SELECT slot, file, script, position, saved_at, preview FROM saves ORDER BY slot`

// language=SQL
// dialect=SQLite
const deleteSlotSQL = `DELETE FROM saves WHERE slot = ?`

// SlotInfo is one row of the slot listing.
type SlotInfo struct {
	Slot     int
	File     string
	Script   string
	Position int
	SavedAt  time.Time
	Preview  string
}

// Slots manages the save files of one save directory.
type Slots struct {
	Dir string
	db  *sql.DB
	log *slog.Logger
}

// OpenSlots creates dir if needed, opens its index and, when the index has
// no rows yet, builds it from the slot files already present.
func OpenSlots(ctx context.Context, dir string) (*Slots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir: %w", err)
	}
	db, err := InitOrOpenIndex(dir)
	if err != nil {
		return nil, err
	}
	s := &Slots{Dir: dir, db: db, log: applog.WithComponent("storage").With(slog.String("dir", dir))}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM saves`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count saves: %w", err)
	}
	if n == 0 {
		if err := s.Reindex(ctx); err != nil {
			s.log.Warn("initial reindex failed", slog.Any("err", err))
		}
	}
	return s, nil
}

func (s *Slots) Close() error { return s.db.Close() }

func (s *Slots) path(slot int) string { return filepath.Join(s.Dir, SlotFileName(slot)) }

// Write stores st in slot. preview is a short text shown in slot lists,
// typically the last displayed line.
func (s *Slots) Write(ctx context.Context, slot int, st save.State, preview string) error {
	l := applog.WithOperation(s.log, "save_slot").With(slog.Int("slot", slot))
	if slot < 0 {
		return fmt.Errorf("invalid slot %d", slot)
	}
	if st.Date.IsZero() {
		st.Date = time.Now()
	}
	data, err := save.Marshal(st)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := writeAtomic(s.path(slot), data); err != nil {
		l.Error("write slot failed", slog.Any("err", err))
		return err
	}
	if err := s.upsert(ctx, slot, SlotFileName(slot), st, preview); err != nil {
		// the file is authoritative; the index can be rebuilt later
		l.Warn("index update failed", slog.Any("err", err))
	}
	l.Info("saved", slog.String("script", st.Script), slog.Int("position", st.Position))
	return nil
}

func (s *Slots) upsert(ctx context.Context, slot int, file string, st save.State, preview string) error {
	_, err := s.db.ExecContext(ctx, upsertSlotSQL, slot, file, st.Script, st.Position,
		st.Date.UTC().Format(time.RFC3339Nano), truncate(preview, 120))
	return err
}

// Read loads slot. A corrupt file falls back to its latest backup; a slot
// with only a legacy XML save is imported from it.
func (s *Slots) Read(ctx context.Context, slot int) (save.State, error) {
	l := applog.WithOperation(s.log, "load_slot").With(slog.Int("slot", slot))
	if err := ctx.Err(); err != nil {
		return save.State{}, err
	}
	p := s.path(slot)
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		st, perr := save.Unmarshal(data)
		if perr == nil {
			return st, nil
		}
		l.Warn("slot file unreadable, trying backup", slog.Any("err", perr))
		b, bpath, berr := readLatestBackup(p)
		if berr != nil {
			return save.State{}, perr
		}
		st, berr = save.Unmarshal(b)
		if berr != nil {
			return save.State{}, perr
		}
		l.Info("restored from backup", slog.String("backup", bpath))
		return st, nil
	case errors.Is(err, os.ErrNotExist):
		legacy, lerr := os.ReadFile(filepath.Join(s.Dir, LegacyFileName(slot)))
		if lerr != nil {
			return save.State{}, fmt.Errorf("%w: %d", ErrSlotEmpty, slot)
		}
		l.Info("importing legacy save")
		return save.UnmarshalXML(legacy)
	default:
		return save.State{}, fmt.Errorf("read slot %d: %w", slot, err)
	}
}

// Delete removes the slot file and its index row. Backups are kept.
func (s *Slots) Delete(ctx context.Context, slot int) error {
	if err := os.Remove(s.path(slot)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete slot %d: %w", slot, err)
	}
	_, err := s.db.ExecContext(ctx, deleteSlotSQL, slot)
	return err
}

// List returns indexed slots ordered by slot number.
func (s *Slots) List(ctx context.Context) ([]SlotInfo, error) {
	rows, err := s.db.QueryContext(ctx, listSlotsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SlotInfo
	for rows.Next() {
		var (
			si    SlotInfo
			saved string
		)
		if err := rows.Scan(&si.Slot, &si.File, &si.Script, &si.Position, &saved, &si.Preview); err != nil {
			return nil, err
		}
		si.SavedAt, _ = time.Parse(time.RFC3339Nano, saved)
		out = append(out, si)
	}
	return out, rows.Err()
}

var slotFileRe = regexp.MustCompile(`^save(\d{2,})\.(json|sav)$`)

// Reindex rebuilds the slot table from the files in Dir. JSON files win
// over legacy files for the same slot; unreadable files are skipped.
func (s *Slots) Reindex(ctx context.Context) error {
	ents, err := os.ReadDir(s.Dir)
	if err != nil {
		return fmt.Errorf("read save dir: %w", err)
	}
	type found struct {
		file string
		st   save.State
	}
	slots := map[int]found{}
	for _, e := range ents {
		m := slotFileRe.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		slot, _ := strconv.Atoi(m[1])
		if prev, ok := slots[slot]; ok && filepath.Ext(prev.file) == ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, e.Name()))
		if err != nil {
			continue
		}
		var st save.State
		if m[2] == "json" {
			st, err = save.Unmarshal(data)
		} else {
			st, err = save.UnmarshalXML(data)
		}
		if err != nil {
			s.log.Warn("skipping unreadable save", slog.String("file", e.Name()), slog.Any("err", err))
			continue
		}
		if st.Date.IsZero() {
			if info, ierr := e.Info(); ierr == nil {
				st.Date = info.ModTime()
			}
		}
		slots[slot] = found{file: e.Name(), st: st}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM saves`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear saves: %w", err)
	}
	for slot, f := range slots {
		if _, err := tx.ExecContext(ctx, upsertSlotSQL, slot, f.file, f.st.Script, f.st.Position,
			f.st.Date.UTC().Format(time.RFC3339Nano), ""); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert slot %d: %w", slot, err)
		}
	}
	return tx.Commit()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
