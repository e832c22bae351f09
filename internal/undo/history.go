/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sitebuilder/internal/domain"
)

// DefaultMaxDepth bounds History when Config.MaxDepth is not set.
const DefaultMaxDepth = 100

// Config controls depth caps.
type Config struct {
	// MaxDepth limits the number of snapshots kept. The oldest are dropped first.
	MaxDepth int
}

// History is a linear undo/redo stack of layout snapshots with a cursor.
// While non-empty, 0 <= cursor < Len(). Entries beyond the cursor form the redo tail.
//
// History is not safe for concurrent use; the editor serializes access.
type History struct {
	cfg     Config
	entries []domain.Layout
	cursor  int
}

// NewHistory returns an empty history.
func NewHistory(cfg Config) *History {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	return &History{cfg: cfg, cursor: -1}
}

// Reset drops all entries and records seed as the only (baseline) entry.
func (h *History) Reset(seed domain.Layout) {
	h.entries = []domain.Layout{seed.Clone()}
	h.cursor = 0
}

// Restore replaces the history wholesale, e.g. from a persisted journal.
// An out-of-range cursor is clamped to the newest entry.
func (h *History) Restore(entries []domain.Layout, cursor int) {
	h.entries = make([]domain.Layout, len(entries))
	for i, e := range entries {
		h.entries[i] = e.Clone()
	}
	switch {
	case len(h.entries) == 0:
		h.cursor = -1
	case cursor < 0 || cursor >= len(h.entries):
		h.cursor = len(h.entries) - 1
	default:
		h.cursor = cursor
	}
	h.enforceCap()
}

// Push discards any redo tail, appends a copy of l and moves the cursor onto it.
func (h *History) Push(l domain.Layout) {
	h.entries = append(h.entries[:h.cursor+1], l.Clone())
	h.cursor = len(h.entries) - 1
	h.enforceCap()
}

// Undo steps the cursor back and returns the snapshot now under it.
func (h *History) Undo() (domain.Layout, bool) {
	if !h.CanUndo() {
		return nil, false
	}
	h.cursor--
	return h.entries[h.cursor].Clone(), true
}

// Redo steps the cursor forward and returns the snapshot now under it.
func (h *History) Redo() (domain.Layout, bool) {
	if !h.CanRedo() {
		return nil, false
	}
	h.cursor++
	return h.entries[h.cursor].Clone(), true
}

// CanUndo reports whether an older snapshot exists.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether a newer snapshot exists.
func (h *History) CanRedo() bool { return h.cursor >= 0 && h.cursor < len(h.entries)-1 }

// Current returns a copy of the snapshot under the cursor.
func (h *History) Current() (domain.Layout, bool) {
	if h.cursor < 0 {
		return nil, false
	}
	return h.entries[h.cursor].Clone(), true
}

// Len returns the number of snapshots held.
func (h *History) Len() int { return len(h.entries) }

// Cursor returns the current index, -1 when empty.
func (h *History) Cursor() int { return h.cursor }

// Entries returns copies of all snapshots, oldest first.
func (h *History) Entries() []domain.Layout {
	out := make([]domain.Layout, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.Clone()
	}
	return out
}

// Stats returns current sizes for diagnostics.
func (h *History) Stats() (depth int, cursor int, elements int) {
	for _, e := range h.entries {
		elements += len(e)
	}
	return len(h.entries), h.cursor, elements
}

func (h *History) enforceCap() {
	if h.cfg.MaxDepth <= 0 || len(h.entries) <= h.cfg.MaxDepth {
		return
	}
	// drop the oldest extras, never the entry under the cursor; the redo tail goes next
	toDrop := len(h.entries) - h.cfg.MaxDepth
	if toDrop > h.cursor {
		toDrop = h.cursor
	}
	h.entries = append([]domain.Layout{}, h.entries[toDrop:]...)
	h.cursor -= toDrop
	if len(h.entries) > h.cfg.MaxDepth {
		h.entries = h.entries[:h.cfg.MaxDepth]
	}
}
