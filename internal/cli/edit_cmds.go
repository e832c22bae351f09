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
	"strconv"

	"github.com/spf13/cobra"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/drag"
)

func commitIfDirty(s *session) bool {
	if !s.ed.Dirty() {
		return false
	}
	s.ed.Commit()
	return true
}

func newAddCmd(app *App) *cobra.Command {
	var content string
	cmd := &cobra.Command{
		Use:       "add <kind>",
		Short:     "Append a new element",
		Long:      "Append a new element of the given kind (section, text, image, calendar, button, form).",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, func(s *session) (string, error) {
				el, err := s.ed.AddElement(domain.Kind(args[0]))
				if err != nil {
					return "", err
				}
				if content != "" {
					if err := s.ed.SetContent(el.ID, content); err != nil {
						return "", err
					}
				}
				s.ed.Commit()
				return fmt.Sprintf("Added %s (%s)\n", el.ID, el.Kind), nil
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "Initial content instead of \"New <kind>\"")
	return cmd
}

func kindNames() []string {
	out := make([]string, 0, len(domain.Kinds))
	for _, k := range domain.Kinds {
		out = append(out, string(k))
	}
	return out
}

func newRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete an element",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, func(s *session) (string, error) {
				if err := s.ed.Remove(args[0]); err != nil {
					return "", err
				}
				s.ed.Commit()
				return fmt.Sprintf("Removed %s\n", args[0]), nil
			})
		},
	}
}

func newEditCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <content>",
		Short: "Replace an element's content",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, func(s *session) (string, error) {
				if err := s.ed.SetContent(args[0], args[1]); err != nil {
					return "", err
				}
				if !commitIfDirty(s) {
					return "Nothing changed\n", nil
				}
				return fmt.Sprintf("Updated %s\n", args[0]), nil
			})
		},
	}
}

func newReorderCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <from> <to>",
		Short: "Move the element at index <from> to index <to>",
		Long:  "Move the element at index <from> to index <to>. <to> is clamped to the list bounds.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("from: %w", err)
			}
			to, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("to: %w", err)
			}
			return runEdit(cmd, app, func(s *session) (string, error) {
				committed, err := s.drag.Drop(drag.DropResult{Source: from, Destination: &to})
				if err != nil {
					return "", err
				}
				if !committed {
					return "Order unchanged\n", nil
				}
				return fmt.Sprintf("Moved index %d to %d\n", from, to), nil
			})
		},
	}
}

func newMoveCmd(app *App) *cobra.Command {
	var snap int
	cmd := &cobra.Command{
		Use:     "move <id> <left> <top>",
		Short:   "Pin an element at an absolute canvas position",
		Args:    cobra.ExactArgs(3),
		Example: "  sitebuilder move element-2 40 120\n  sitebuilder move element-2 -- -8 0\n  sitebuilder move --snap 6 element-2 43 118",
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("left: %w", err)
			}
			top, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("top: %w", err)
			}
			return runEdit(cmd, app, func(s *session) (string, error) {
				return dragEnd(s, drag.MoveIntent{ID: args[0], Left: left, Top: top}, snap)
			})
		},
	}
	cmd.Flags().IntVar(&snap, "snap", 0, "align with other pinned elements within this many pixels")
	return cmd
}

func newNudgeCmd(app *App) *cobra.Command {
	var snap int
	cmd := &cobra.Command{
		Use:     "nudge <id> <dx> <dy>",
		Short:   "Drag an element by a pointer offset, rounding the result",
		Args:    cobra.ExactArgs(3),
		Example: "  sitebuilder nudge element-2 12.5 0\n  sitebuilder nudge element-2 -- -10 4",
		RunE: func(cmd *cobra.Command, args []string) error {
			dx, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("dx: %w", err)
			}
			dy, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("dy: %w", err)
			}
			return runEdit(cmd, app, func(s *session) (string, error) {
				m := drag.MoveIntent{ID: args[0], DeltaX: dx, DeltaY: dy}
				l := s.ed.Elements()
				if i := l.Index(args[0]); i >= 0 && l[i].Position != nil {
					m.Left, m.Top = l[i].Left, l[i].Top
				}
				return dragEnd(s, m, snap)
			})
		},
	}
	cmd.Flags().IntVar(&snap, "snap", 0, "align with other pinned elements within this many pixels")
	return cmd
}

func dragEnd(s *session, m drag.MoveIntent, snap int) (string, error) {
	if snap < 0 {
		return "", fmt.Errorf("snap: must not be negative")
	}
	s.drag.SetSnap(drag.SnapOptions{Threshold: snap})
	if err := s.drag.Begin(m.ID); err != nil {
		return "", err
	}
	committed, err := s.drag.DragEnd(m)
	if err != nil {
		return "", err
	}
	if !committed {
		return "Position unchanged\n", nil
	}
	l := s.ed.Elements()
	e := l[l.Index(m.ID)]
	out := fmt.Sprintf("Pinned %s at %d,%d\n", m.ID, e.Left, e.Top)
	for _, g := range s.drag.Guides() {
		out += fmt.Sprintf("  snapped %s=%d to %s\n", g.Axis, g.Position, g.Anchor)
	}
	return out, nil
}

func newUnpinCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unpin <id>",
		Short: "Drop an element's absolute position so it flows in list order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, func(s *session) (string, error) {
				if err := s.ed.ClearPosition(args[0]); err != nil {
					return "", err
				}
				if !commitIfDirty(s) {
					return "Already flowing\n", nil
				}
				return fmt.Sprintf("Unpinned %s\n", args[0]), nil
			})
		},
	}
}

func newUndoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Step back one committed action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, func(s *session) (string, error) {
				if !s.ed.Undo() {
					return "Nothing to undo\n", nil
				}
				return "Undone\n", nil
			})
		},
	}
}

func newRedoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Re-apply the last undone action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd, app, func(s *session) (string, error) {
				if !s.ed.Redo() {
					return "Nothing to redo\n", nil
				}
				return "Redone\n", nil
			})
		},
	}
}
