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
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"sitebuilder/internal/backend"
	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
	"sitebuilder/internal/storage"
)

// fakeLayoutAPI is an in-memory GET/PUT /layout endpoint.
type fakeLayoutAPI struct {
	mu     sync.Mutex
	stored []byte
	fail   bool
}

func (f *fakeLayoutAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Path != backend.LayoutPath {
		http.NotFound(w, r)
		return
	}
	if f.fail {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(f.stored)
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.stored = b
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeLayoutAPI) set(stored string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored, f.fail = []byte(stored), fail
}

func (f *fakeLayoutAPI) layout(t *testing.T) domain.Layout {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var l domain.Layout
	require.NoError(t, json.Unmarshal(f.stored, &l))
	return l
}

// isolate points config, keychain and backend at test doubles and returns the draft dir.
func isolate(t *testing.T) (string, *fakeLayoutAPI) {
	t.Helper()
	keyring.MockInit()
	api := &fakeLayoutAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	t.Setenv("SB_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("SB_BACKEND_URL", srv.URL)
	t.Setenv("SB_BACKEND_TOKEN", "")
	t.Setenv("SB_LOG_LEVEL", "error")
	t.Setenv("SB_LOG_FILE", "")
	t.Setenv("SB_ID_SCHEME", "")
	t.Setenv("SB_MAX_HISTORY", "")
	t.Setenv("SB_TELEMETRY_OPT_IN", "")
	t.Setenv("SB_TELEMETRY_URL", "")
	t.Setenv("SB_DIR", "")
	return t.TempDir(), api
}

func runCLI(t *testing.T, args ...string) (stdout []byte, stderr []byte, err error) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	e := Execute(args, &outBuf, &errBuf)
	return outBuf.Bytes(), errBuf.Bytes(), e
}

func mustRun(t *testing.T, args ...string) []byte {
	t.Helper()
	out, errOut, err := runCLI(t, args...)
	require.NoError(t, err, "sitebuilder %v\nstderr:\n%s", args, errOut)
	return out
}

func showJSON(t *testing.T, dir string) layoutSummary {
	t.Helper()
	out := mustRun(t, "--dir", dir, "--json", "show")
	var env struct {
		Data layoutSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &env), string(out))
	return env.Data
}

func ids(v layoutSummary) []string {
	out := make([]string, 0, len(v.Elements))
	for _, e := range v.Elements {
		out = append(out, e.ID)
	}
	return out
}

func TestEditSessionAcrossInvocations(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	mustRun(t, "--dir", dir, "add", "text", "--content", "Welcome")
	mustRun(t, "--dir", dir, "add", "image")

	v := showJSON(t, dir)
	require.Equal(t, []string{"element-1", "element-2", "element-3"}, ids(v))
	assert.Equal(t, "New section", v.Elements[0].Content)
	assert.Equal(t, "Welcome", v.Elements[1].Content)
	assert.Equal(t, 4, v.Depth)
	assert.True(t, v.CanUndo)
	assert.False(t, v.CanRedo)

	mustRun(t, "--dir", dir, "reorder", "2", "0")
	assert.Equal(t, []string{"element-3", "element-1", "element-2"}, ids(showJSON(t, dir)))

	mustRun(t, "--dir", dir, "undo")
	v = showJSON(t, dir)
	assert.Equal(t, []string{"element-1", "element-2", "element-3"}, ids(v))
	assert.True(t, v.CanRedo)

	mustRun(t, "--dir", dir, "redo")
	assert.Equal(t, []string{"element-3", "element-1", "element-2"}, ids(showJSON(t, dir)))

	// layout.json on disk follows the editor
	dh, err := storage.OpenDraft(dir)
	require.NoError(t, err)
	assert.Equal(t, "element-3", dh.Layout[0].ID)
}

func TestUndoOnFreshDraftIsNoOp(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	out := mustRun(t, "--dir", dir, "undo")
	assert.Contains(t, string(out), "Nothing to undo")
	out = mustRun(t, "--dir", dir, "redo")
	assert.Contains(t, string(out), "Nothing to redo")
	v := showJSON(t, dir)
	assert.Empty(t, v.Elements)
	assert.Equal(t, 1, v.Depth)
}

func TestNewEditAfterUndoDropsRedo(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	mustRun(t, "--dir", dir, "add", "text")
	mustRun(t, "--dir", dir, "undo")
	mustRun(t, "--dir", dir, "add", "calendar")
	v := showJSON(t, dir)
	assert.False(t, v.CanRedo)
	// element-2 was removed by undo; its number is not handed out again
	assert.Equal(t, []string{"element-1", "element-3"}, ids(v))
}

func TestReorderOutOfRange(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	_, _, err := runCLI(t, "--dir", dir, "reorder", "5", "0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, editor.ErrIndexOutOfRange), "got %v", err)

	out := mustRun(t, "--dir", dir, "reorder", "0", "9")
	assert.Contains(t, string(out), "Order unchanged")
	assert.Equal(t, 2, showJSON(t, dir).Depth)
}

func TestMoveNudgeAndUnpin(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "button")
	mustRun(t, "--dir", dir, "move", "element-1", "10", "20")
	mustRun(t, "--dir", dir, "nudge", "element-1", "--", "-0.4", "2.5")

	v := showJSON(t, dir)
	require.NotNil(t, v.Elements[0].Left)
	assert.Equal(t, 10, *v.Elements[0].Left)
	assert.Equal(t, 23, *v.Elements[0].Top)
	assert.Equal(t, 4, v.Depth)

	out := mustRun(t, "--dir", dir, "move", "element-1", "10", "23")
	assert.Contains(t, string(out), "Position unchanged")

	mustRun(t, "--dir", dir, "unpin", "element-1")
	assert.Nil(t, showJSON(t, dir).Elements[0].Left)

	_, _, err := runCLI(t, "--dir", dir, "move", "element-9", "1", "1")
	assert.Error(t, err)
}

func TestMoveSnapsToPinnedNeighbour(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "image")
	mustRun(t, "--dir", dir, "add", "button")
	mustRun(t, "--dir", dir, "move", "element-1", "40", "200")

	out := mustRun(t, "--dir", dir, "move", "--snap", "6", "element-2", "44", "120")
	assert.Contains(t, string(out), "Pinned element-2 at 40,120")
	assert.Contains(t, string(out), "snapped x=40 to element-1")

	v := showJSON(t, dir)
	assert.Equal(t, 40, *v.Elements[1].Left)
	assert.Equal(t, 120, *v.Elements[1].Top)

	_, _, err := runCLI(t, "--dir", dir, "move", "--snap", "-1", "element-2", "1", "1")
	assert.Error(t, err)
}

func TestUnknownKindAndElement(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	_, _, err := runCLI(t, "--dir", dir, "add", "carousel")
	assert.True(t, errors.Is(err, editor.ErrUnknownKind), "got %v", err)
	_, _, err = runCLI(t, "--dir", dir, "remove", "element-1")
	assert.True(t, errors.Is(err, editor.ErrUnknownElement), "got %v", err)
	assert.Equal(t, 1, showJSON(t, dir).Depth)
}

func TestPushSavesLayout(t *testing.T) {
	dir, api := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	mustRun(t, "--dir", dir, "add", "calendar")

	_, errOut, err := runCLI(t, "--dir", dir, "push")
	require.NoError(t, err)
	assert.Contains(t, string(errOut), "Website saved successfully")
	got := api.layout(t)
	assert.Equal(t, []string{"element-1", "element-2"}, got.IDs())
}

func TestPushFailureLeavesDraftAlone(t *testing.T) {
	dir, api := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	before := showJSON(t, dir)

	api.set("", true)
	_, errOut, err := runCLI(t, "--dir", dir, "push")
	require.Error(t, err)
	var se *backend.StatusError
	assert.True(t, errors.As(err, &se))
	assert.Contains(t, string(errOut), "Error saving website")
	assert.Equal(t, before, showJSON(t, dir))
}

func TestFailedPushDeliversTelemetryBeforeExit(t *testing.T) {
	dir, api := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")

	var (
		mu     sync.Mutex
		events []map[string]any
	)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		mu.Lock()
		events = append(events, m)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(sink.Close)
	t.Setenv("SB_TELEMETRY_OPT_IN", "1")
	t.Setenv("SB_TELEMETRY_URL", sink.URL+"/events")

	api.set("", true)
	_, _, err := runCLI(t, "--dir", dir, "push")
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	assert.Equal(t, "layout_save_failed", events[0]["name"])
	assert.Equal(t, "status_500", events[0]["reason"])
}

func TestPullSeedsDraftAndIDs(t *testing.T) {
	dir, api := isolate(t)
	api.set(`[{"id":"element-7","kind":"text","content":"Hello"},{"id":"element-2","kind":"image","content":"","left":5,"top":6}]`, false)

	mustRun(t, "--dir", dir, "pull")
	v := showJSON(t, dir)
	assert.Equal(t, []string{"element-7", "element-2"}, ids(v))
	assert.False(t, v.CanUndo)

	mustRun(t, "--dir", dir, "add", "form")
	assert.Equal(t, "element-8", showJSON(t, dir).Elements[2].ID)
}

func TestPullFailureKeepsDraft(t *testing.T) {
	dir, api := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	api.set(`[{"kind":"text"}]`, false)

	_, errOut, err := runCLI(t, "--dir", dir, "pull")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrInvalidLayout), "got %v", err)
	assert.Contains(t, string(errOut), "Error loading website")
	assert.Equal(t, []string{"element-1"}, ids(showJSON(t, dir)))
}

func TestShowWithoutDraft(t *testing.T) {
	dir, _ := isolate(t)
	_, _, err := runCLI(t, "--dir", dir, "show")
	assert.True(t, errors.Is(err, storage.ErrNoDraft), "got %v", err)
}

func TestInitRefusesExistingDraft(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	_, _, err := runCLI(t, "--dir", dir, "init")
	require.Error(t, err)
	mustRun(t, "--dir", dir, "init", "--force")
	assert.Empty(t, showJSON(t, dir).Elements)
}

func TestHandEditedDraftRestartsHistory(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	mustRun(t, "--dir", dir, "add", "section")
	edited := `[{"id":"element-1","kind":"section","content":"Edited by hand"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, storage.LayoutFileName), []byte(edited), 0o644))

	v := showJSON(t, dir)
	assert.Equal(t, "Edited by hand", v.Elements[0].Content)
	assert.False(t, v.CanUndo)
	assert.Equal(t, 1, v.Depth)
}

func TestHistoryKeepPrunes(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	for i := 0; i < 4; i++ {
		mustRun(t, "--dir", dir, "add", "text")
	}
	out := mustRun(t, "--dir", dir, "--json", "history", "--keep", "2")
	var env struct {
		Data struct {
			Cursor int   `json:"cursor"`
			Pruned int64 `json:"pruned"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, int64(3), env.Data.Pruned)
	assert.Equal(t, 1, env.Data.Cursor)

	v := showJSON(t, dir)
	assert.Len(t, v.Elements, 4)
	assert.Equal(t, 2, v.Depth)
}

func TestLoweredMaxHistoryKeepsUndoneState(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	for i := 0; i < 5; i++ {
		mustRun(t, "--dir", dir, "add", "text")
	}
	for i := 0; i < 4; i++ {
		mustRun(t, "--dir", dir, "undo")
	}
	assert.Equal(t, []string{"element-1"}, ids(showJSON(t, dir)))

	t.Setenv("SB_MAX_HISTORY", "2")
	mustRun(t, "--dir", dir, "add", "image")
	v := showJSON(t, dir)
	assert.Equal(t, []string{"element-1", "element-6"}, ids(v))
	assert.Equal(t, 2, v.Depth)
	assert.True(t, v.CanUndo)
	assert.False(t, v.CanRedo)
}

func TestHistoryKeepAfterUndoKeepsCurrentEntry(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	for i := 0; i < 5; i++ {
		mustRun(t, "--dir", dir, "add", "text")
	}
	for i := 0; i < 4; i++ {
		mustRun(t, "--dir", dir, "undo")
	}
	out := mustRun(t, "--dir", dir, "--json", "history", "--keep", "2")
	var env struct {
		Data struct {
			Cursor int   `json:"cursor"`
			Pruned int64 `json:"pruned"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, int64(4), env.Data.Pruned)
	assert.Equal(t, 0, env.Data.Cursor)

	// the journal still matches layout.json, so history survives into the next run
	v := showJSON(t, dir)
	assert.Equal(t, []string{"element-1"}, ids(v))
	assert.Equal(t, 2, v.Depth)
	assert.True(t, v.CanRedo)
}

func TestMaxHistoryFromEnv(t *testing.T) {
	dir, _ := isolate(t)
	t.Setenv("SB_MAX_HISTORY", "3")
	mustRun(t, "--dir", dir, "init")
	for i := 0; i < 5; i++ {
		mustRun(t, "--dir", dir, "add", "text")
	}
	v := showJSON(t, dir)
	assert.Equal(t, 3, v.Depth)
	assert.Equal(t, 2, v.Cursor)
}

func TestConfigTokenAndShow(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "config", "set-token", "s3cret")
	out := mustRun(t, "--dir", dir, "config", "show")
	assert.Contains(t, string(out), "backend token: set (keychain)")
	assert.Contains(t, string(out), "backend.base_url overridden by SB_BACKEND_URL")
	assert.NotContains(t, string(out), "s3cret")

	mustRun(t, "--dir", dir, "config", "set-token", "--delete")
	out = mustRun(t, "--dir", dir, "config", "show")
	assert.Contains(t, string(out), "backend token: not set")

	mustRun(t, "--dir", dir, "config", "init")
	_, _, err := runCLI(t, "--dir", dir, "config", "init")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	dir, _ := isolate(t)
	out := mustRun(t, "--dir", dir, "version")
	assert.NotEmpty(t, bytes.TrimSpace(out))
}

func TestTextShowRendersTable(t *testing.T) {
	dir, _ := isolate(t)
	mustRun(t, "--dir", dir, "init")
	out := mustRun(t, "--dir", dir, "show")
	assert.Contains(t, string(out), "(empty layout)")
	mustRun(t, "--dir", dir, "add", "section", "--content", "Hero")
	out = mustRun(t, "--dir", dir, "show")
	assert.Contains(t, string(out), "element-1")
	assert.Contains(t, string(out), `"Hero"`)
	assert.Contains(t, string(out), "history 2/2")
}
