/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package storage implements the local draft workspace.
// A draft directory holds layout.json, the same JSON array the backend accepts, written with
// temp+rename and a timestamped backup of the previous file under backups/.
// The per-draft SQLite journal at <draft>/.sb/journal.sqlite keeps the committed history and
// cursor so that undo/redo survive between CLI invocations. The journal is disposable; deleting
// it only loses history, never the draft.
package storage
