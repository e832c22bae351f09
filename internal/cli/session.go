/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"sitebuilder/internal/backend"
	"sitebuilder/internal/crash"
	"sitebuilder/internal/domain"
	"sitebuilder/internal/drag"
	"sitebuilder/internal/editor"
	"sitebuilder/internal/persist"
	"sitebuilder/internal/storage"
	"sitebuilder/internal/undo"
)

// session is one editor rebuilt from the draft directory and its journal.
type session struct {
	app   *App
	draft *storage.DraftHandle
	ed    *editor.Editor
	drag  *drag.Surface
}

func (app *App) newEditor(opts ...editor.Option) *editor.Editor {
	base := []editor.Option{
		editor.WithHistory(undo.Config{MaxDepth: app.cfg.Editor.MaxHistory}),
		editor.WithIDGenerator(editor.NewIDGenerator(app.cfg.Editor.IDScheme)),
		editor.WithCommitHook(func(depth int) { app.tel.LayoutCommit(depth) }),
	}
	return editor.New(append(base, opts...)...)
}

// openSession loads layout.json and resumes the journaled history when it still
// matches the draft. A journal that disagrees with the draft (edited by hand,
// restored from a backup) is ignored and history restarts at the draft.
func openSession(ctx context.Context, app *App) (*session, error) {
	dh, err := storage.OpenDraft(app.Dir)
	if err != nil {
		if errors.Is(err, storage.ErrNoDraft) {
			return nil, fmt.Errorf("%w; run `sitebuilder init` or `sitebuilder pull` first", err)
		}
		return nil, err
	}
	if reset, err := storage.DetectAndResetJournal(ctx, app.Dir); err != nil {
		return nil, err
	} else if reset {
		app.log.Warn("history journal was damaged and has been reset")
	}
	if sid, err := storage.SessionID(ctx, app.Dir); err == nil {
		app.installTelemetry(sid)
	}

	ed := app.newEditor(editor.WithElements(dh.Layout))
	entries, cursor, err := storage.LoadHistory(ctx, app.Dir)
	switch {
	case err != nil:
		app.log.Warn("history unavailable", slog.Any("err", err))
	case entries == nil:
	case !entries[cursor].Equal(dh.Layout):
		app.log.Warn("history does not match layout.json, starting fresh",
			slog.Int("entries", len(entries)), slog.Int("cursor", cursor))
	default:
		if err := ed.Restore(entries, cursor); err != nil {
			app.log.Warn("history restore failed", slog.Any("err", err))
		}
	}
	return &session{app: app, draft: dh, ed: ed, drag: drag.NewSurface(ed)}, nil
}

// persist writes the editor state back to layout.json and the journal.
func (s *session) persist(ctx context.Context) error {
	s.draft.Layout = s.ed.Elements()
	if err := storage.SaveDraft(s.draft); err != nil {
		return err
	}
	entries, cursor := s.ed.History()
	return storage.SaveHistory(ctx, s.app.Dir, entries, cursor)
}

// runEdit opens a session, applies fn and persists the result. A panic inside fn
// is turned into a crash report plus an autosave of the in-memory layout.
func runEdit(cmd *cobra.Command, app *App, fn func(s *session) (string, error)) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, app)
	if err != nil {
		return err
	}
	defer crash.Recover(s.draft, s.ed)

	msg, err := fn(s)
	if err != nil {
		return err
	}
	if err := s.persist(ctx); err != nil {
		return fmt.Errorf("persist draft: %w", err)
	}
	return writeOut(cmd, app, layoutView(s.ed), msg)
}

func (app *App) backend() *backend.Client {
	opts := []backend.Option{backend.WithTimeout(app.cfg.Backend.Timeout())}
	if app.cfg.Backend.TLSInsecure {
		opts = append(opts, backend.WithInsecureTLS())
	}
	return backend.NewClient(app.cfg.Backend.BaseURL, app.token, opts...)
}

// notifier prints saver and loader notifications as one line each.
func notifier(w io.Writer) persist.Notifier {
	return persist.NotifierFunc(func(n persist.Notification) {
		if n.Description != "" {
			fmt.Fprintf(w, "[%s] %s: %s\n", n.Level, n.Title, n.Description)
			return
		}
		fmt.Fprintf(w, "[%s] %s\n", n.Level, n.Title)
	})
}

// saveFailureReason classifies a save error for telemetry without leaking its text.
func saveFailureReason(err error) string {
	var se *backend.StatusError
	switch {
	case errors.As(err, &se):
		return fmt.Sprintf("status_%d", se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, backend.ErrInvalidLayout):
		return "invalid_layout"
	default:
		return "transport"
	}
}

type elementView struct {
	Index   int    `json:"index"`
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Left    *int   `json:"left,omitempty"`
	Top     *int   `json:"top,omitempty"`
}

type layoutSummary struct {
	Elements []elementView `json:"elements"`
	Depth    int           `json:"depth"`
	Cursor   int           `json:"cursor"`
	CanUndo  bool          `json:"canUndo"`
	CanRedo  bool          `json:"canRedo"`
}

func layoutView(ed *editor.Editor) layoutSummary {
	entries, cursor := ed.History()
	return layoutSummary{
		Elements: elementViews(ed.Elements()),
		Depth:    len(entries),
		Cursor:   cursor,
		CanUndo:  ed.CanUndo(),
		CanRedo:  ed.CanRedo(),
	}
}

func elementViews(l domain.Layout) []elementView {
	out := make([]elementView, 0, len(l))
	for i, e := range l {
		v := elementView{Index: i, ID: e.ID, Kind: string(e.Kind), Content: e.Content}
		if e.Position != nil {
			left, top := e.Left, e.Top
			v.Left, v.Top = &left, &top
		}
		out = append(out, v)
	}
	return out
}
