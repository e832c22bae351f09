/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the builder canvas model: elements and the ordered layout
// that holds them. A Layout encodes to exactly the JSON array the persistence
// backend accepts on GET/PUT /layout.

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the type of placeable unit on the canvas.
type Kind string

const (
	KindSection  Kind = "section"
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindCalendar Kind = "calendar"
	KindButton   Kind = "button"
	KindForm     Kind = "form"
)

// Kinds lists the palette in the order the builder offers it.
var Kinds = []Kind{KindSection, KindText, KindImage, KindCalendar, KindButton, KindForm}

// ParseKind normalizes s and reports whether it names a known kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Position is an absolute placement override in canvas pixels.
type Position struct {
	Left int `json:"left"`
	Top  int `json:"top"`
}

// Element is a single placeable unit. A nil Position means the element flows
// in list order; a non-nil one pins it at absolute coordinates.
type Element struct {
	ID      string `json:"id"`
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
	*Position
}

// Pinned reports whether the element carries an absolute position.
func (e Element) Pinned() bool { return e.Position != nil }

// Clone returns a copy that shares no memory with e.
func (e Element) Clone() Element {
	c := e
	if e.Position != nil {
		p := *e.Position
		c.Position = &p
	}
	return c
}

// Equal compares all fields including the position override.
func (e Element) Equal(o Element) bool {
	if e.ID != o.ID || e.Kind != o.Kind || e.Content != o.Content {
		return false
	}
	if (e.Position == nil) != (o.Position == nil) {
		return false
	}
	return e.Position == nil || *e.Position == *o.Position
}

// Layout is the ordered collection of elements; slice order is render order.
type Layout []Element

// Clone deep-copies the layout. A nil layout clones to an empty, non-nil one so
// that it encodes as [] rather than null.
func (l Layout) Clone() Layout {
	out := make(Layout, len(l))
	for i, e := range l {
		out[i] = e.Clone()
	}
	return out
}

// Index returns the position of the element with id, or -1.
func (l Layout) Index(id string) int {
	for i, e := range l {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// IDs returns element ids in render order.
func (l Layout) IDs() []string {
	ids := make([]string, len(l))
	for i, e := range l {
		ids[i] = e.ID
	}
	return ids
}

// Equal reports snapshot equality: same elements in the same order.
func (l Layout) Equal(o Layout) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if !l[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// ErrInvalidLayout is returned by Validate.
var ErrInvalidLayout = errors.New("invalid layout")

// Validate checks that every element has a non-empty, unique id.
func (l Layout) Validate() error {
	seen := make(map[string]struct{}, len(l))
	for i, e := range l {
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("%w: element %d has no id", ErrInvalidLayout, i)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidLayout, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
