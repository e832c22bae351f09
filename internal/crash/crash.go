/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the CLI into a crash report and a best-effort autosave
// of the layout being edited.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"sitebuilder/internal/domain"
	applog "sitebuilder/internal/log"
	"sitebuilder/internal/storage"
	"sitebuilder/internal/telemetry"
	"sitebuilder/internal/version"
)

// exitFn is replaced in tests.
var exitFn = os.Exit

// uploadWait bounds how long Recover waits for an opted-in crash upload.
var uploadWait = 2 * time.Second

// Snapshotter yields the layout currently held in memory.
type Snapshotter interface {
	Snapshot() domain.Layout
}

// Recover must be deferred directly. On panic it logs the stack, writes crash-<stamp>.log
// (into the draft's backups/ when dh is set, else the temp dir), autosaves the in-memory
// layout from src next to it and exits with code 2.
//
//	defer crash.Recover(dh, ed)
func Recover(dh *storage.DraftHandle, src Snapshotter) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, report, err := writeReport(dh, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err), slog.String("path", reportPath))
	}
	if dh != nil {
		snap := *dh
		if src != nil {
			snap.Layout = snapshotOf(src, l)
		}
		if path, err := storage.AutosaveCrashDraft(&snap); err != nil {
			l.Error("autosave crash draft failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash draft written", slog.String("path", path))
		}
	}
	if report != nil {
		select {
		case <-telemetry.UploadCrash(report):
		case <-time.After(uploadWait):
		}
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

// snapshotOf guards against src panicking again.
func snapshotOf(src Snapshotter, l *slog.Logger) (out domain.Layout) {
	defer func() {
		if r := recover(); r != nil {
			l.Error("snapshot during crash failed", slog.Any("panic", r))
			out = nil
		}
	}()
	return src.Snapshot()
}

func writeReport(dh *storage.DraftHandle, panicVal any, stack []byte) (string, []byte, error) {
	dir := os.TempDir()
	if dh != nil && dh.Root != "" {
		dir = filepath.Join(dh.Root, storage.BackupsDirName)
		_ = os.MkdirAll(dir, 0o755)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Sitebuilder Crash Report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if dh != nil {
		fmt.Fprintf(&buf, "Draft: %s\n", dh.Root)
		fmt.Fprintf(&buf, "Elements: %d\n", len(dh.Layout))
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, buf.Bytes(), err
	}
	return path, buf.Bytes(), nil
}
