/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sitebuilder/internal/domain"
	applog "sitebuilder/internal/log"
)

const (
	LayoutFileName = "layout.json"
	BackupsDirName = "backups"

	backupStamp = "20060102-150405"
)

// ErrNoDraft is returned by OpenDraft when the directory holds neither a layout nor a backup.
var ErrNoDraft = errors.New("no draft found")

// DraftHandle is a draft directory and the layout last read from or written to it.
type DraftHandle struct {
	Root       string
	LayoutPath string
	Layout     domain.Layout
}

// InitDraft creates root (and backups/) if needed and writes layout as the initial draft.
func InitDraft(root string, layout domain.Layout) (*DraftHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("draft root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create draft dirs: %w", err)
	}
	dh := &DraftHandle{
		Root:       root,
		LayoutPath: filepath.Join(root, LayoutFileName),
		Layout:     layout.Clone(),
	}
	if err := SaveDraft(dh); err != nil {
		return nil, err
	}
	return dh, nil
}

// OpenDraft loads layout.json from root. When the file is missing, unreadable or
// not a valid layout, the newest backup is used instead.
func OpenDraft(root string) (*DraftHandle, error) {
	path := filepath.Join(root, LayoutFileName)
	l, err := readLayout(path)
	if err != nil {
		bl, berr := openFromLatestBackup(root)
		if berr != nil {
			if errors.Is(err, os.ErrNotExist) && errors.Is(berr, os.ErrNotExist) {
				return nil, fmt.Errorf("%w in %s", ErrNoDraft, root)
			}
			return nil, fmt.Errorf("open draft: %w; backup attempt: %v", err, berr)
		}
		applog.WithComponent("storage").Warn("draft unreadable, using latest backup",
			slog.String("path", path), slog.Any("err", err))
		return &DraftHandle{Root: root, LayoutPath: path, Layout: bl}, nil
	}
	return &DraftHandle{Root: root, LayoutPath: path, Layout: l}, nil
}

// SaveDraft writes dh.Layout to layout.json. The previous file, if any, is copied to
// backups/layout.json.<stamp>.bak first.
func SaveDraft(dh *DraftHandle) error {
	if dh == nil {
		return errors.New("nil DraftHandle")
	}
	if dh.Root == "" || dh.LayoutPath == "" {
		return errors.New("invalid DraftHandle: missing paths")
	}
	layout := dh.Layout
	if layout == nil {
		layout = domain.Layout{}
	}
	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal layout: %w", err)
	}
	data = append(data, '\n')

	bdir := filepath.Join(dh.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(dh.LayoutPath); statErr == nil {
		bname := fmt.Sprintf("%s.%s.bak", LayoutFileName, time.Now().Format(backupStamp))
		if cerr := copyFile(dh.LayoutPath, filepath.Join(bdir, bname)); cerr != nil {
			return fmt.Errorf("backup current layout: %w", cerr)
		}
	}

	dir := filepath.Dir(dh.LayoutPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", LayoutFileName, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp layout: %w", werr)
	}
	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(dh.LayoutPath); err == nil {
		_ = os.Remove(dh.LayoutPath)
	}
	if rerr := os.Rename(temp, dh.LayoutPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace layout: %w", rerr)
	}
	applog.WithComponent("storage").Debug("draft saved",
		slog.String("path", dh.LayoutPath), slog.Int("elements", len(layout)))
	return nil
}

// AutosaveCrashDraft writes the in-memory layout to backups/layout.crash-<stamp>.json
// without touching layout.json. It returns the written path.
func AutosaveCrashDraft(dh *DraftHandle) (string, error) {
	if dh == nil || dh.Root == "" {
		return "", errors.New("nil or rootless DraftHandle")
	}
	bdir := filepath.Join(dh.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	layout := dh.Layout
	if layout == nil {
		layout = domain.Layout{}
	}
	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal layout: %w", err)
	}
	path := filepath.Join(bdir, fmt.Sprintf("layout.crash-%s.json", time.Now().Format(backupStamp)))
	if err := writeFileSync(path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("write crash draft: %w", err)
	}
	return path, nil
}

func readLayout(path string) (domain.Layout, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l domain.Layout
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if l == nil {
		l = domain.Layout{}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// Backups returns the backup files of layout.json, oldest first.
func Backups(root string) ([]string, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, LayoutFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // stamp sorts lexicographically
	return out, nil
}

func openFromLatestBackup(root string) (domain.Layout, error) {
	candidates, err := Backups(root)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no backups: %w", os.ErrNotExist)
	}
	return readLayout(candidates[len(candidates)-1])
}
