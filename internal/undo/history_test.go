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
	"testing"

	"sitebuilder/internal/domain"
)

func layoutOf(ids ...string) domain.Layout {
	l := domain.Layout{}
	for _, id := range ids {
		l = append(l, domain.Element{ID: id, Kind: domain.KindText})
	}
	return l
}

func TestUndoRedoBasic(t *testing.T) {
	h := NewHistory(Config{MaxDepth: 10})
	h.Reset(layoutOf("a"))
	h.Push(layoutOf("a", "b"))
	if depth, cursor, _ := h.Stats(); depth != 2 || cursor != 1 {
		t.Fatalf("expected depth 2 cursor 1, got depth=%d cursor=%d", depth, cursor)
	}
	l, ok := h.Undo()
	if !ok || !l.Equal(layoutOf("a")) {
		t.Fatalf("undo expected [a], got ok=%v layout=%v", ok, l.IDs())
	}
	l, ok = h.Redo()
	if !ok || !l.Equal(layoutOf("a", "b")) {
		t.Fatalf("redo expected [a b], got ok=%v layout=%v", ok, l.IDs())
	}
}

func TestEmptyHistoryIsInert(t *testing.T) {
	h := NewHistory(Config{})
	if h.CanUndo() || h.CanRedo() {
		t.Fatalf("empty history should not allow undo or redo")
	}
	if _, ok := h.Undo(); ok {
		t.Fatalf("undo on empty history succeeded")
	}
	if _, ok := h.Redo(); ok {
		t.Fatalf("redo on empty history succeeded")
	}
	if h.Cursor() != -1 {
		t.Fatalf("cursor = %d, want -1", h.Cursor())
	}
	h.Push(layoutOf("x"))
	if h.Len() != 1 || h.Cursor() != 0 || h.CanUndo() {
		t.Fatalf("first push: len=%d cursor=%d", h.Len(), h.Cursor())
	}
}

func TestPushTruncatesRedoTail(t *testing.T) {
	h := NewHistory(Config{})
	h.Reset(layoutOf())
	h.Push(layoutOf("a"))
	h.Push(layoutOf("a", "b"))
	h.Undo()
	h.Undo()
	h.Push(layoutOf("z"))
	if h.Len() != 2 || h.CanRedo() {
		t.Fatalf("expected redo tail dropped, len=%d canRedo=%v", h.Len(), h.CanRedo())
	}
	cur, _ := h.Current()
	if !cur.Equal(layoutOf("z")) {
		t.Fatalf("current = %v", cur.IDs())
	}
}

func TestCaps(t *testing.T) {
	h := NewHistory(Config{MaxDepth: 3})
	h.Reset(layoutOf())
	for i := 0; i < 10; i++ {
		h.Push(layoutOf(string(rune('a' + i))))
	}
	if h.Len() != 3 {
		t.Fatalf("expected MaxDepth cap to limit to 3, got %d", h.Len())
	}
	if h.Cursor() != 2 {
		t.Fatalf("cursor = %d, want 2", h.Cursor())
	}
	h.Undo()
	h.Undo()
	if h.CanUndo() {
		t.Fatalf("oldest retained entry should be the undo floor")
	}
	cur, _ := h.Current()
	if !cur.Equal(layoutOf("h")) {
		t.Fatalf("oldest retained = %v, want [h]", cur.IDs())
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	h := NewHistory(Config{})
	l := layoutOf("a")
	h.Reset(l)
	l[0].Content = "mutated"
	cur, _ := h.Current()
	if cur[0].Content != "" {
		t.Fatalf("history aliased caller slice")
	}
	cur[0].Content = "again"
	again, _ := h.Current()
	if again[0].Content != "" {
		t.Fatalf("Current returned an alias")
	}
}

func TestRestoreClampsCursor(t *testing.T) {
	h := NewHistory(Config{})
	h.Restore([]domain.Layout{layoutOf("a"), layoutOf("b")}, 7)
	if h.Cursor() != 1 {
		t.Fatalf("cursor = %d, want clamped to 1", h.Cursor())
	}
	h.Restore(nil, 0)
	if h.Cursor() != -1 || h.Len() != 0 {
		t.Fatalf("restore nil: cursor=%d len=%d", h.Cursor(), h.Len())
	}
}

func TestRestoreOverCapKeepsCursorEntry(t *testing.T) {
	entries := []domain.Layout{layoutOf(), layoutOf("a"), layoutOf("a", "b"), layoutOf("a", "b", "c"), layoutOf("a", "b", "c", "d")}

	h := NewHistory(Config{MaxDepth: 2})
	h.Restore(entries, 1)
	if h.Len() != 2 || h.Cursor() != 0 {
		t.Fatalf("len=%d cursor=%d, want 2 and 0", h.Len(), h.Cursor())
	}
	cur, _ := h.Current()
	if !cur.Equal(entries[1]) {
		t.Fatalf("current = %v, want %v", cur.IDs(), entries[1].IDs())
	}
	if h.CanUndo() || !h.CanRedo() {
		t.Fatalf("undo=%v redo=%v, want false/true", h.CanUndo(), h.CanRedo())
	}
	next, _ := h.Redo()
	if !next.Equal(entries[2]) {
		t.Fatalf("redo = %v, want %v", next.IDs(), entries[2].IDs())
	}

	h.Restore(entries, 3)
	cur, _ = h.Current()
	if h.Len() != 2 || h.Cursor() != 1 || !cur.Equal(entries[3]) {
		t.Fatalf("len=%d cursor=%d current=%v", h.Len(), h.Cursor(), cur.IDs())
	}
}
