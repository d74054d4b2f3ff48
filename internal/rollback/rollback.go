/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package rollback keeps an in-memory stack of playback checkpoints so a
// reader can step back to earlier lines and forward again.
package rollback

import (
	"sync"
	"time"
)

// Checkpoint is an encoded save state captured at a waiting point.
// Blob is opaque to the manager; its size is accounted as len(Blob).
type Checkpoint struct {
	Script   string
	Position int
	Blob     []byte
	TS       time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; oldest checkpoints are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits the number of checkpoints kept (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces checkpoints captured within the interval,
	// replacing the previous one. Zero disables coalescing.
	MinInterval time.Duration
}

// Manager is a back/forward stack of checkpoints. The top of the back
// stack is the current position. It is safe for concurrent use.
type Manager struct {
	cfg        Config
	mu         sync.Mutex
	back       []Checkpoint
	forward    []Checkpoint
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024 // 4 MiB
	}
	return &Manager{cfg: cfg}
}

// Push records c as the current position. A checkpoint within MinInterval
// of the previous one replaces it. Any forward history is discarded.
func (m *Manager) Push(c Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forward = nil
	if n := len(m.back); n > 0 {
		last := m.back[n-1]
		if last.Script == c.Script && last.Position == c.Position {
			m.totalBytes += len(c.Blob) - len(last.Blob)
			m.back[n-1] = c
			return
		}
		if m.cfg.MinInterval > 0 && c.TS.Sub(last.TS) < m.cfg.MinInterval {
			m.totalBytes += len(c.Blob) - len(last.Blob)
			m.back[n-1] = c
			m.enforceCapsLocked()
			return
		}
	}
	m.back = append(m.back, c)
	m.totalBytes += len(c.Blob)
	m.enforceCapsLocked()
}

// Back moves the current position one checkpoint earlier and returns it.
// It reports false when there is no earlier checkpoint.
func (m *Manager) Back() (Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.back) < 2 {
		return Checkpoint{}, false
	}
	cur := m.back[len(m.back)-1]
	m.back = m.back[:len(m.back)-1]
	m.totalBytes -= len(cur.Blob)
	m.forward = append(m.forward, cur)
	return m.back[len(m.back)-1], true
}

// Forward undoes a Back and returns the checkpoint moved to.
func (m *Manager) Forward() (Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.forward) == 0 {
		return Checkpoint{}, false
	}
	c := m.forward[len(m.forward)-1]
	m.forward = m.forward[:len(m.forward)-1]
	m.back = append(m.back, c)
	m.totalBytes += len(c.Blob)
	m.enforceCapsLocked()
	return c, true
}

// Current returns the top checkpoint.
func (m *Manager) Current() (Checkpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.back) == 0 {
		return Checkpoint{}, false
	}
	return m.back[len(m.back)-1], true
}

// Clear drops all checkpoints, e.g. after loading a save.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.back, m.forward, m.totalBytes = nil, nil, 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, depth int, forward int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes, len(m.back), len(m.forward)
}

func (m *Manager) enforceCapsLocked() {
	drop := 0
	if m.cfg.MaxDepth > 0 && len(m.back) > m.cfg.MaxDepth {
		drop = len(m.back) - m.cfg.MaxDepth
	}
	for i := 0; i < drop; i++ {
		m.totalBytes -= len(m.back[i].Blob)
	}
	// memory cap: keep at least the current checkpoint
	for m.totalBytes > m.cfg.MaxBytes && len(m.back)-drop > 1 {
		m.totalBytes -= len(m.back[drop].Blob)
		drop++
	}
	if drop > 0 {
		m.back = append([]Checkpoint(nil), m.back[drop:]...)
	}
}
