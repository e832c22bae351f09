/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sitebuilder/internal/domain"
)

// ElementPrefix prefixes every generated element id.
const ElementPrefix = "element-"

// IDGenerator hands out element ids that are unique within an editor session.
type IDGenerator interface {
	// Next returns a fresh id for an element of kind.
	Next(kind domain.Kind) string
	// Observe informs the generator of ids already present, e.g. after a load.
	Observe(ids []string)
}

// CounterIDs yields element-1, element-2, ... and never reuses a number, even
// after the element carrying it has been removed.
type CounterIDs struct {
	mu   sync.Mutex
	last int
}

func (c *CounterIDs) Next(domain.Kind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return ElementPrefix + strconv.Itoa(c.last)
}

// Observe advances the counter past any element-<n> id in ids.
func (c *CounterIDs) Observe(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		n, err := strconv.Atoi(strings.TrimPrefix(id, ElementPrefix))
		if err != nil || !strings.HasPrefix(id, ElementPrefix) {
			continue
		}
		if n > c.last {
			c.last = n
		}
	}
}

// UUIDIDs yields element-<uuid> ids. Useful when several sessions feed one layout.
type UUIDIDs struct{}

func (UUIDIDs) Next(domain.Kind) string { return ElementPrefix + uuid.NewString() }

func (UUIDIDs) Observe([]string) {}

// NewIDGenerator maps a configured scheme name to a generator; unknown names fall back to the counter.
func NewIDGenerator(scheme string) IDGenerator {
	if strings.EqualFold(strings.TrimSpace(scheme), "uuid") {
		return UUIDIDs{}
	}
	return &CounterIDs{}
}
