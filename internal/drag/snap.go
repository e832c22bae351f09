/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package drag

import "sitebuilder/internal/domain"

// SnapOptions controls alignment of free drags with other pinned elements.
type SnapOptions struct {
	// Threshold is the largest distance in pixels that still snaps. Zero disables snapping.
	Threshold int
}

// Guide is an alignment found while snapping. Axis "x" is a vertical line at
// Position, axis "y" a horizontal one. Anchor is the element aligned with.
type Guide struct {
	Axis     string
	Position int
	Anchor   string
}

type snapCandidate struct {
	dist   int
	pos    int
	anchor string
}

// Snap moves (left, top) of element id onto the nearest pinned element's left or top
// edge, independently per axis. Ties go to the element earlier in render order.
func Snap(l domain.Layout, id string, left, top int, opts SnapOptions) (int, int, []Guide) {
	if opts.Threshold <= 0 {
		return left, top, nil
	}
	bx := snapCandidate{dist: opts.Threshold + 1}
	by := bx
	for _, e := range l {
		if e.ID == id || e.Position == nil {
			continue
		}
		consider(&bx, left, e.Left, e.ID)
		consider(&by, top, e.Top, e.ID)
	}
	var guides []Guide
	if bx.dist <= opts.Threshold {
		left = bx.pos
		guides = append(guides, Guide{Axis: "x", Position: bx.pos, Anchor: bx.anchor})
	}
	if by.dist <= opts.Threshold {
		top = by.pos
		guides = append(guides, Guide{Axis: "y", Position: by.pos, Anchor: by.anchor})
	}
	return left, top, guides
}

func consider(best *snapCandidate, v, anchorPos int, anchor string) {
	d := v - anchorPos
	if d < 0 {
		d = -d
	}
	if d < best.dist {
		*best = snapCandidate{dist: d, pos: anchorPos, anchor: anchor}
	}
}
