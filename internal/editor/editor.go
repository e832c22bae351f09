/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor implements the layout editor state machine: an ordered list of
// canvas elements, in-place edits (add, remove, reorder, move), and a bounded
// linear undo/redo history fed by explicit commits.
//
// Structural edits never checkpoint on their own. A view calls Commit once per
// completed user action (a finished drop, a click on "add"), never per drag frame.
// The history is seeded with the initial layout as its baseline, so a fresh
// editor can neither undo nor redo.
//
// All operations are local and synchronous. Invalid input (an index outside the
// layout, an unknown id) is rejected with an error and leaves the state untouched.
package editor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"sitebuilder/internal/domain"
	applog "sitebuilder/internal/log"
	"sitebuilder/internal/undo"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnknownElement  = errors.New("unknown element")
	ErrUnknownKind     = errors.New("unknown element kind")
)

// Option configures an Editor.
type Option func(*Editor)

// WithHistory sets the history depth cap.
func WithHistory(cfg undo.Config) Option { return func(e *Editor) { e.histCfg = cfg } }

// WithIDGenerator replaces the default counter-based id generator.
func WithIDGenerator(g IDGenerator) Option { return func(e *Editor) { e.ids = g } }

// WithElements seeds the editor (and its baseline history entry) with l.
func WithElements(l domain.Layout) Option { return func(e *Editor) { e.elements = l.Clone() } }

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option { return func(e *Editor) { e.log = l } }

// WithCommitHook registers fn to be called after every Commit with the new history depth.
// fn runs without the editor lock held.
func WithCommitHook(fn func(depth int)) Option { return func(e *Editor) { e.onCommit = fn } }

// Editor owns one canvas session. It is safe to read snapshots from other
// goroutines (e.g. a background save) while the view keeps editing.
type Editor struct {
	mu       sync.Mutex
	elements domain.Layout
	history  *undo.History
	histCfg  undo.Config
	ids      IDGenerator
	selected string
	log      *slog.Logger
	onCommit func(depth int)
}

// New constructs an editor. Without WithElements the canvas starts empty.
func New(opts ...Option) *Editor {
	e := &Editor{elements: domain.Layout{}}
	for _, o := range opts {
		o(e)
	}
	if e.ids == nil {
		e.ids = &CounterIDs{}
	}
	if e.log == nil {
		e.log = applog.WithComponent("editor")
	}
	e.history = undo.NewHistory(e.histCfg)
	e.history.Reset(e.elements)
	e.ids.Observe(e.elements.IDs())
	return e
}

// Load replaces the canvas with l and resets history to a single baseline entry.
func (e *Editor) Load(l domain.Layout) error {
	if err := l.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.elements = l.Clone()
	e.history.Reset(e.elements)
	e.ids.Observe(e.elements.IDs())
	e.selected = ""
	applog.WithOperation(e.log, "load").Debug("layout loaded", slog.Int("elements", len(l)))
	return nil
}

// Restore reinstates a previously persisted history; the canvas shows the entry under cursor.
func (e *Editor) Restore(entries []domain.Layout, cursor int) error {
	if len(entries) == 0 {
		return fmt.Errorf("restore: %w: empty history", ErrIndexOutOfRange)
	}
	for i, l := range entries {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("restore entry %d: %w", i, err)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Restore(entries, cursor)
	cur, _ := e.history.Current()
	e.elements = cur
	for _, l := range entries {
		e.ids.Observe(l.IDs())
	}
	e.selected = ""
	return nil
}

// AddElement appends a new element of kind with default content "New <kind>".
// It does not checkpoint; call Commit afterwards.
func (e *Editor) AddElement(kind domain.Kind) (domain.Element, error) {
	k, ok := domain.ParseKind(string(kind))
	if !ok {
		return domain.Element{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	el := domain.Element{ID: e.ids.Next(k), Kind: k, Content: "New " + string(k)}
	// guard against generators that hand out an id already on the canvas
	for e.elements.Index(el.ID) >= 0 {
		el.ID = e.ids.Next(k)
	}
	e.elements = append(e.elements, el)
	return el.Clone(), nil
}

// Remove deletes the element with id.
func (e *Editor) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.elements.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownElement, id)
	}
	e.elements = append(e.elements[:i:i], e.elements[i+1:]...)
	if e.selected == id {
		e.selected = ""
	}
	return nil
}

// Reorder moves the element at source to destination, keeping every other element's
// relative order. A nil destination is a cancelled drag and does nothing. A destination
// past either end is clamped onto the nearest valid slot.
func (e *Editor) Reorder(source int, destination *int) error {
	if destination == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.elements)
	if source < 0 || source >= n {
		return fmt.Errorf("reorder source %d of %d: %w", source, n, ErrIndexOutOfRange)
	}
	dst := min(max(*destination, 0), n-1)
	if dst == source {
		return nil
	}
	moved := e.elements[source]
	rest := make(domain.Layout, 0, n)
	rest = append(rest, e.elements[:source]...)
	rest = append(rest, e.elements[source+1:]...)
	out := make(domain.Layout, 0, n)
	out = append(out, rest[:dst]...)
	out = append(out, moved)
	out = append(out, rest[dst:]...)
	e.elements = out
	return nil
}

// Move pins the element with id at absolute coordinates (free-drag mode).
func (e *Editor) Move(id string, left, top int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.elements.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownElement, id)
	}
	e.elements[i].Position = &domain.Position{Left: left, Top: top}
	return nil
}

// ClearPosition drops the absolute override so the element flows in list order again.
func (e *Editor) ClearPosition(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.elements.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownElement, id)
	}
	e.elements[i].Position = nil
	return nil
}

// SetContent replaces the content of the element with id.
func (e *Editor) SetContent(id, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.elements.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownElement, id)
	}
	e.elements[i].Content = content
	return nil
}

// Commit records the current canvas as the newest history entry, discarding any redo tail.
func (e *Editor) Commit() {
	e.mu.Lock()
	e.history.Push(e.elements)
	depth, cursor, _ := e.history.Stats()
	hook := e.onCommit
	e.mu.Unlock()
	applog.WithOperation(e.log, "commit").Debug("checkpoint", slog.Int("depth", depth), slog.Int("cursor", cursor))
	if hook != nil {
		hook(depth)
	}
}

// Undo restores the previous snapshot. It reports false when there is nothing to undo.
func (e *Editor) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.history.Undo()
	if ok {
		e.setElementsLocked(l)
	}
	return ok
}

// Redo restores the next snapshot. It reports false when there is nothing to redo.
func (e *Editor) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.history.Redo()
	if ok {
		e.setElementsLocked(l)
	}
	return ok
}

func (e *Editor) setElementsLocked(l domain.Layout) {
	e.elements = l
	if e.selected != "" && l.Index(e.selected) < 0 {
		e.selected = ""
	}
}

// CanUndo reports whether Undo would change anything.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo reports whether Redo would change anything.
func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// Elements returns a copy of the current canvas.
func (e *Editor) Elements() domain.Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.elements.Clone()
}

// Snapshot is an alias of Elements used by persistence callers.
func (e *Editor) Snapshot() domain.Layout { return e.Elements() }

// Dirty reports whether the canvas holds edits not yet committed.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.history.Current()
	return !ok || !cur.Equal(e.elements)
}

// History returns copies of all history entries and the cursor, for persisting a session.
func (e *Editor) History() ([]domain.Layout, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries(), e.history.Cursor()
}

// Select marks id as the selected element; an empty id clears the selection.
func (e *Editor) Select(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id != "" && e.elements.Index(id) < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownElement, id)
	}
	e.selected = id
	return nil
}

// Selected returns the selected element, if any.
func (e *Editor) Selected() (domain.Element, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.elements.Index(e.selected); i >= 0 {
		return e.elements[i].Clone(), true
	}
	return domain.Element{}, false
}
