/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene tracks what is on stage (background, sprites, music) and
// maps design-resolution coordinates onto the device.
package scene

// Sprite is a foreground image at design coordinates.
type Sprite struct {
	Path string
	X, Y float64
}

// State is the presentation state captured in saves. Sprites keep the order
// they were added in.
type State struct {
	Background string
	Sprites    []Sprite
	Music      string
}

// Clone returns a deep copy.
func (s State) Clone() State {
	s.Sprites = append([]Sprite(nil), s.Sprites...)
	return s
}

// SetBackground records a new background; loading one removes all sprites.
func (s *State) SetBackground(path string) {
	s.Background = path
	s.Sprites = nil
}

func (s *State) AddSprite(sp Sprite) { s.Sprites = append(s.Sprites, sp) }

func (s *State) ClearSprites() { s.Sprites = nil }

// SetMusic records the current track; "" means no music.
func (s *State) SetMusic(path string) { s.Music = path }
