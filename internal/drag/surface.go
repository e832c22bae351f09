/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package drag turns pointer gestures on the builder canvas into editor edits.
// Hover frames only update transient view state; a completed drop performs a
// single edit followed by exactly one commit, and only if the layout changed.
package drag

import (
	"fmt"
	"math"
	"sync"

	"sitebuilder/internal/domain"
)

// Editor is the subset of the layout editor the surface drives.
type Editor interface {
	Reorder(source int, destination *int) error
	Move(id string, left, top int) error
	Elements() domain.Layout
	Dirty() bool
	Commit()
}

// Viewport is the canvas preview width class.
type Viewport string

const (
	Desktop Viewport = "desktop"
	Tablet  Viewport = "tablet"
	Mobile  Viewport = "mobile"
)

// ParseViewport accepts desktop, tablet or mobile.
func ParseViewport(s string) (Viewport, error) {
	switch v := Viewport(s); v {
	case Desktop, Tablet, Mobile:
		return v, nil
	}
	return "", fmt.Errorf("unknown viewport %q", s)
}

// DropResult reports the end of a list drag. Destination is nil when the drag was
// cancelled or released outside the list.
type DropResult struct {
	Source      int
	Destination *int
}

// MoveIntent reports the end of a free drag: the element's position when the drag
// started and the pointer offset since then.
type MoveIntent struct {
	ID     string
	Left   int
	Top    int
	DeltaX float64
	DeltaY float64
}

// Target returns the rounded drop coordinates.
func (m MoveIntent) Target() (left, top int) {
	return int(math.Round(float64(m.Left) + m.DeltaX)), int(math.Round(float64(m.Top) + m.DeltaY))
}

// Surface tracks an in-progress drag and forwards completed gestures to the editor.
type Surface struct {
	ed Editor

	mu       sync.Mutex
	dragging string
	hover    *domain.Position
	viewport Viewport
	snap     SnapOptions
	guides   []Guide
}

// NewSurface binds a surface to ed.
func NewSurface(ed Editor) *Surface {
	return &Surface{ed: ed, viewport: Desktop}
}

// Begin marks the element with id as being dragged.
func (s *Surface) Begin(id string) error {
	if s.ed.Elements().Index(id) < 0 {
		return fmt.Errorf("begin drag: unknown element %q", id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging = id
	s.hover = nil
	return nil
}

// Hover records an intermediate pointer position. It never edits the layout.
func (s *Surface) Hover(m MoveIntent) {
	left, top, guides := s.snapTarget(m)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hover = &domain.Position{Left: left, Top: top}
	s.guides = guides
}

// Dragging returns the id under drag and its latest hover position.
func (s *Surface) Dragging() (string, *domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hover == nil {
		return s.dragging, nil
	}
	p := *s.hover
	return s.dragging, &p
}

// Cancel abandons the current drag without touching the layout.
func (s *Surface) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragging, s.hover, s.guides = "", nil, nil
}

// Drop completes a list reorder. It reports whether a history entry was committed.
func (s *Surface) Drop(r DropResult) (bool, error) {
	s.Cancel()
	if r.Destination == nil {
		return false, nil
	}
	if err := s.ed.Reorder(r.Source, r.Destination); err != nil {
		return false, err
	}
	return s.commitIfChanged(), nil
}

// DragEnd completes a free drag, pinning the element at the rounded drop point.
// It reports whether a history entry was committed.
func (s *Surface) DragEnd(m MoveIntent) (bool, error) {
	s.Cancel()
	left, top, guides := s.snapTarget(m)
	if err := s.ed.Move(m.ID, left, top); err != nil {
		return false, err
	}
	s.mu.Lock()
	s.guides = guides
	s.mu.Unlock()
	return s.commitIfChanged(), nil
}

func (s *Surface) snapTarget(m MoveIntent) (int, int, []Guide) {
	left, top := m.Target()
	s.mu.Lock()
	opts := s.snap
	s.mu.Unlock()
	if opts.Threshold <= 0 {
		return left, top, nil
	}
	return Snap(s.ed.Elements(), m.ID, left, top, opts)
}

// SetSnap enables snapping free drags onto other pinned elements.
func (s *Surface) SetSnap(opts SnapOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = opts
}

// Guides returns the alignments used by the latest hover or drop.
func (s *Surface) Guides() []Guide {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Guide(nil), s.guides...)
}

func (s *Surface) commitIfChanged() bool {
	if !s.ed.Dirty() {
		return false
	}
	s.ed.Commit()
	return true
}

// SetViewport switches the preview width class. View state only.
func (s *Surface) SetViewport(v Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = v
}

// Viewport returns the preview width class.
func (s *Surface) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}
