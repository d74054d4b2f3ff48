/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import "govn/internal/scene"

// Stage shows images. Implementations draw; the executor only decides what
// is shown and where.
type Stage interface {
	SetBackground(img scene.Image) error
	AddSprite(img scene.Image) error
	ClearSprites()
}

// Audio plays sound effects and music from raw file bytes. loops is the
// number of plays for a sound effect, -1 meaning forever.
type Audio interface {
	PlaySound(path string, data []byte, loops int) error
	StopSound()
	PlayMusic(path string, data []byte) error
	StopMusic()
}

// Hooks are optional notifications. They run on the interpreter's thread.
type Hooks struct {
	// OnAwaitInput fires whenever a text line is fully shown and the
	// executor waits for the reader.
	OnAwaitInput func()
	// OnError fires once when the executor enters Failed.
	OnError func(err error)
	// OnEnd fires when the cursor runs past the last line.
	OnEnd func()
}

type nopStage struct{}

func (nopStage) SetBackground(scene.Image) error { return nil }
func (nopStage) AddSprite(scene.Image) error     { return nil }
func (nopStage) ClearSprites()                   {}

type nopAudio struct{}

func (nopAudio) PlaySound(string, []byte, int) error { return nil }
func (nopAudio) StopSound()                          {}
func (nopAudio) PlayMusic(string, []byte) error      { return nil }
func (nopAudio) StopMusic()                          {}
