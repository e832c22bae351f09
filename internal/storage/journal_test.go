/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"sitebuilder/internal/domain"
)

func historyOf(n int) []domain.Layout {
	out := make([]domain.Layout, 0, n)
	var l domain.Layout
	out = append(out, domain.Layout{})
	for i := 1; i < n; i++ {
		l = append(l.Clone(), domain.Element{ID: "element-" + string(rune('0'+i)), Kind: domain.KindText})
		out = append(out, l)
	}
	return out
}

func TestJournalRoundTrip(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	entries := historyOf(4)
	if err := SaveHistory(ctx, root, entries, 2); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	got, cursor, err := LoadHistory(ctx, root)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if cursor != 2 {
		t.Fatalf("cursor = %d, want 2", cursor)
	}
	if len(got) != len(entries) {
		t.Fatalf("entries = %d, want %d", len(got), len(entries))
	}
	for i := range entries {
		if !got[i].Equal(entries[i]) {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, got[i], entries[i])
		}
	}
	if _, err := os.Stat(JournalPath(root)); err != nil {
		t.Fatalf("journal file missing: %v", err)
	}
}

func TestJournalSaveReplacesPreviousHistory(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	if err := SaveHistory(ctx, root, historyOf(5), 4); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if err := SaveHistory(ctx, root, historyOf(2), 0); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	got, cursor, err := LoadHistory(ctx, root)
	if err != nil || len(got) != 2 || cursor != 0 {
		t.Fatalf("got %d entries cursor %d err %v", len(got), cursor, err)
	}
}

func TestJournalEmpty(t *testing.T) {
	got, cursor, err := LoadHistory(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if got != nil || cursor != -1 {
		t.Fatalf("expected empty journal, got %d entries cursor %d", len(got), cursor)
	}
}

func TestSaveHistoryRejectsBadCursor(t *testing.T) {
	if err := SaveHistory(context.Background(), t.TempDir(), historyOf(2), 2); err == nil {
		t.Fatalf("expected error for cursor past the end")
	}
}

func TestPruneHistoryShiftsCursor(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	entries := historyOf(6)
	if err := SaveHistory(ctx, root, entries, 4); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	n, err := PruneHistory(ctx, root, 3)
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted = %d, want 3", n)
	}
	got, cursor, err := LoadHistory(ctx, root)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 3 || cursor != 1 {
		t.Fatalf("got %d entries cursor %d, want 3 and 1", len(got), cursor)
	}
	if !got[0].Equal(entries[3]) {
		t.Fatalf("oldest kept entry should be entries[3]")
	}

	// the entry under the cursor survives; the redo tail goes instead
	if _, err := PruneHistory(ctx, root, 1); err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	got, cursor, _ = LoadHistory(ctx, root)
	if len(got) != 1 || cursor != 0 || !got[0].Equal(entries[4]) {
		t.Fatalf("got %d entries cursor %d, want only entries[4]", len(got), cursor)
	}

	if n, err := PruneHistory(ctx, root, 0); err != nil || n != 0 {
		t.Fatalf("keepLast 0 should be a no-op, got %d %v", n, err)
	}
}

func TestSessionIDIsStable(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	a, err := SessionID(ctx, root)
	if err != nil {
		t.Fatalf("SessionID: %v", err)
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("session id %q is not a uuid: %v", a, err)
	}
	b, _ := SessionID(ctx, root)
	if a != b {
		t.Fatalf("session id changed between opens: %s vs %s", a, b)
	}
}

func TestDetectAndResetJournal_OnCorruption(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	if err := SaveHistory(ctx, root, historyOf(2), 1); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	if reset, err := DetectAndResetJournal(ctx, root); err != nil || reset {
		t.Fatalf("healthy journal reset=%v err=%v", reset, err)
	}
	_ = os.Remove(JournalPath(root) + "-wal")
	_ = os.Remove(JournalPath(root) + "-shm")
	if err := os.WriteFile(JournalPath(root), []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	reset, err := DetectAndResetJournal(ctx, root)
	if err != nil {
		t.Fatalf("DetectAndResetJournal: %v", err)
	}
	if !reset {
		t.Fatalf("expected reset to occur")
	}
	entries, _ := os.ReadDir(filepath.Join(root, JournalDirName, "backups"))
	if len(entries) == 0 {
		t.Fatalf("expected backup of damaged journal")
	}
	got, cursor, err := LoadHistory(ctx, root)
	if err != nil || got != nil || cursor != -1 {
		t.Fatalf("expected empty history after reset, got %d %d %v", len(got), cursor, err)
	}
}

func TestDetectAndResetJournal_Missing(t *testing.T) {
	reset, err := DetectAndResetJournal(context.Background(), t.TempDir())
	if err != nil || reset {
		t.Fatalf("missing journal reset=%v err=%v", reset, err)
	}
}

func TestPruneHistoryKeepsCursorEntry(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	entries := historyOf(6)
	if err := SaveHistory(ctx, root, entries, 1); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	n, err := PruneHistory(ctx, root, 2)
	if err != nil {
		t.Fatalf("PruneHistory: %v", err)
	}
	if n != 4 {
		t.Fatalf("deleted = %d, want 4", n)
	}
	got, cursor, err := LoadHistory(ctx, root)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(got) != 2 || cursor != 0 {
		t.Fatalf("got %d entries cursor %d, want 2 and 0", len(got), cursor)
	}
	if !got[0].Equal(entries[1]) || !got[1].Equal(entries[2]) {
		t.Fatalf("kept entries should be entries[1] and entries[2]")
	}
}
