/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists save slots. Each slot is a JSON document written
// transactionally with timestamped backups of the previous version. A
// per-save-directory SQLite index at <dir>/.govn/index.sqlite lists slots
// and keeps rolling autosaves; the index is derived from the slot files and
// can be rebuilt from them at any time.
package storage
