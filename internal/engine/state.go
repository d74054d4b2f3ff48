/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

// State is the executor's position in its state machine.
type State int

const (
	Idle State = iota
	Running
	Animating
	AwaitingInput
	AwaitingChoice
	// Waiting covers delay timers and skip-mode pacing.
	Waiting
	// Loading means an asset or script fetch is outstanding.
	Loading
	// Skipping is only reported by Executor.State, never stored.
	Skipping
	Terminal
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Animating:
		return "animating"
	case AwaitingInput:
		return "awaiting-input"
	case AwaitingChoice:
		return "awaiting-choice"
	case Waiting:
		return "waiting"
	case Loading:
		return "loading"
	case Skipping:
		return "skipping"
	case Terminal:
		return "terminal"
	case Failed:
		return "failed"
	}
	return "unknown"
}
