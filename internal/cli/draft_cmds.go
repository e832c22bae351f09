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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/persist"
	"sitebuilder/internal/storage"
	"sitebuilder/internal/version"
)

func newVersionCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the sitebuilder version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := version.String()
			return writeOut(cmd, app, map[string]any{"version": v}, v+"\n")
		},
	}
}

func newInitCmd(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty draft in --dir",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(filepath.Join(app.Dir, storage.LayoutFileName)); err == nil && !force {
				return fmt.Errorf("%s already holds a draft (use --force to start over)", app.Dir)
			}
			dh, err := storage.InitDraft(app.Dir, domain.Layout{})
			if err != nil {
				return err
			}
			ed := app.newEditor()
			entries, cursor := ed.History()
			if err := storage.SaveHistory(cmd.Context(), app.Dir, entries, cursor); err != nil {
				return err
			}
			return writeOut(cmd, app, map[string]any{"dir": dh.Root, "layout": dh.LayoutPath},
				fmt.Sprintf("Created draft at %s\n", dh.LayoutPath))
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing draft (the old layout.json is kept in backups/)")
	return cmd
}

func newPullCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Fetch the stored layout (GET /layout) into the draft, resetting history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ed := app.newEditor()
			if err := persist.LoadInto(ctx, app.backend(), ed, notifier(cmd.ErrOrStderr())); err != nil {
				return err
			}
			dh, err := storage.InitDraft(app.Dir, ed.Elements())
			if err != nil {
				return err
			}
			entries, cursor := ed.History()
			if err := storage.SaveHistory(ctx, app.Dir, entries, cursor); err != nil {
				return err
			}
			return writeOut(cmd, app, layoutView(ed),
				fmt.Sprintf("Pulled %d elements into %s\n", len(dh.Layout), dh.LayoutPath))
		},
	}
}

func newPushCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Save the draft to the backend (PUT /layout)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return err
			}
			saver := persist.NewSaver(app.backend(), notifier(cmd.ErrOrStderr()),
				persist.WithTimeout(app.cfg.Backend.Timeout()),
				persist.WithResultHook(func(r persist.Result) {
					if r.Err != nil {
						app.tel.LayoutSaveFailed(saveFailureReason(r.Err))
						return
					}
					app.tel.LayoutSaved(len(r.Layout), r.Took)
				}),
			)
			saver.Save(s.ed)
			saver.Close()
			res, _ := saver.Last()
			if res.Err != nil {
				return res.Err
			}
			return writeOut(cmd, app,
				map[string]any{"elements": len(res.Layout), "tookMs": res.Took.Milliseconds()},
				fmt.Sprintf("Pushed %d elements to %s\n", len(res.Layout), app.cfg.Backend.BaseURL))
		},
	}
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the elements in render order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), app)
			if err != nil {
				return err
			}
			v := layoutView(s.ed)
			return writeOut(cmd, app, v, renderLayout(v))
		},
	}
}

func renderLayout(v layoutSummary) string {
	var b strings.Builder
	if len(v.Elements) == 0 {
		b.WriteString("(empty layout)\n")
	} else {
		tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tID\tKIND\tPOSITION\tCONTENT")
		for _, e := range v.Elements {
			pos := "flow"
			if e.Left != nil {
				pos = fmt.Sprintf("%d,%d", *e.Left, *e.Top)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%q\n", e.Index, e.ID, e.Kind, pos, e.Content)
		}
		_ = tw.Flush()
	}
	fmt.Fprintf(&b, "history %d/%d  undo:%s  redo:%s\n", v.Cursor+1, v.Depth, yesNo(v.CanUndo), yesNo(v.CanRedo))
	return b.String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func newHistoryCmd(app *App) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the journaled history entries; --keep prunes it down to N",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := openSession(ctx, app); err != nil {
				return err
			}
			var pruned int64
			if keep > 0 {
				n, err := storage.PruneHistory(ctx, app.Dir, keep)
				if err != nil {
					return err
				}
				pruned = n
			}
			entries, cursor, err := storage.LoadHistory(ctx, app.Dir)
			if err != nil {
				return err
			}
			type entryView struct {
				Index    int  `json:"index"`
				Elements int  `json:"elements"`
				Current  bool `json:"current"`
			}
			views := make([]entryView, 0, len(entries))
			var b strings.Builder
			for i, l := range entries {
				views = append(views, entryView{Index: i, Elements: len(l), Current: i == cursor})
				mark := " "
				if i == cursor {
					mark = "*"
				}
				fmt.Fprintf(&b, "%s %3d  %d elements\n", mark, i, len(l))
			}
			if pruned > 0 {
				fmt.Fprintf(&b, "pruned %d entries\n", pruned)
			}
			return writeOut(cmd, app, map[string]any{"entries": views, "cursor": cursor, "pruned": pruned}, b.String())
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "Keep N entries, oldest first to go, never the current one")
	return cmd
}
