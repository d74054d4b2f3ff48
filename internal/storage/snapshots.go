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
	"time"

	"govn/internal/save"
)

// language=SQL
// dialect=SQLite
const insertAutosaveSQL = `INSERT INTO autosaves(ts, state_blob) VALUES (?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestAutosaveSQL = `SELECT ts, state_blob FROM autosaves ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const pruneAutosavesSQL = `DELETE FROM autosaves WHERE id NOT IN (
	SELECT id FROM autosaves ORDER BY ts DESC, id DESC LIMIT ?
)`

// ErrNoAutosave is returned when the index holds no autosave.
var ErrNoAutosave = errors.New("storage: no autosave")

// Autosave records st in the rolling autosave table, keeping the newest
// keep entries.
func (s *Slots) Autosave(ctx context.Context, st save.State, keep int) error {
	if st.Date.IsZero() {
		st.Date = time.Now()
	}
	blob, err := save.Marshal(st)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertAutosaveSQL, st.Date.UTC().Format(time.RFC3339Nano), blob); err != nil {
		return err
	}
	if keep <= 0 {
		keep = 10
	}
	_, err = s.db.ExecContext(ctx, pruneAutosavesSQL, keep)
	return err
}

// LatestAutosave returns the newest autosave.
func (s *Slots) LatestAutosave(ctx context.Context) (save.State, error) {
	var (
		ts   string
		blob []byte
	)
	err := s.db.QueryRowContext(ctx, selectLatestAutosaveSQL).Scan(&ts, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return save.State{}, ErrNoAutosave
	}
	if err != nil {
		return save.State{}, err
	}
	return save.Unmarshal(blob)
}

// AutosaveCount reports how many autosaves are stored.
func (s *Slots) AutosaveCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM autosaves`).Scan(&n)
	return n, err
}
