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
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitebuilder/internal/domain"
	applog "sitebuilder/internal/log"
	"sitebuilder/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	JournalDirName  = ".sb"
	JournalFileName = "journal.sqlite"

	// schemaVersion tracks the journal schema. Bump it together with a new migration step.
	schemaVersion = 2

	metaCursor  = "cursor"
	metaSession = "session_id"
)

// JournalPath returns the path of the draft's history journal.
func JournalPath(root string) string {
	return filepath.Join(root, JournalDirName, JournalFileName)
}

// InitOrOpenJournal creates <root>/.sb/journal.sqlite when missing, enables WAL and brings
// the schema up to date. Callers close the returned handle.
func InitOrOpenJournal(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "journal_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("draft root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, JournalDirName), 0o755); err != nil {
		l.Error("create .sb dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .sb dir: %w", err)
	}

	path := JournalPath(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureJournalSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure journal schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("journal ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep schema as is, migrations move it forward
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	// One session id per journal, used to tag log lines and telemetry.
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO meta(key, value) VALUES(?, ?)`, metaSession, uuid.NewString()); err != nil {
		return fmt.Errorf("seed session id: %w", err)
	}
	return nil
}

func ensureJournalSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			ts          TEXT    NOT NULL,
			layout_json TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		return nil // never downgrade
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// v1 had no stored cursor and always resumed at the newest entry.
			stmts = []string{
				`INSERT OR IGNORE INTO meta(key, value)
					SELECT 'cursor', CAST(COUNT(*) - 1 AS TEXT) FROM history HAVING COUNT(*) > 0`,
				`CREATE INDEX IF NOT EXISTS idx_history_ts ON history(ts);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// language=SQL
// dialect=SQLite
const insertHistorySQL = `INSERT INTO history(ts, layout_json) VALUES (?, ?)`

// language=SQL
// dialect=SQLite
const listHistorySQL = `SELECT layout_json FROM history ORDER BY id ASC`

// language=SQL
// dialect=SQLite
const listHistoryIDsSQL = `SELECT id FROM history ORDER BY id ASC`

// language=SQL
// dialect=SQLite
const deleteHistoryOutsideSQL = `DELETE FROM history WHERE id < ? OR id > ?`

// language=SQL
// dialect=SQLite
const upsertMetaSQL = `INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`

// SaveHistory replaces the journal content with entries and cursor in one transaction.
func SaveHistory(ctx context.Context, root string, entries []domain.Layout, cursor int) error {
	if len(entries) > 0 && (cursor < 0 || cursor >= len(entries)) {
		return fmt.Errorf("cursor %d outside history of %d entries", cursor, len(entries))
	}
	db, err := InitOrOpenJournal(root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	for i, l := range entries {
		if l == nil {
			l = domain.Layout{}
		}
		b, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, insertHistorySQL, ts, string(b)); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx, upsertMetaSQL, metaCursor, strconv.Itoa(cursor)); err != nil {
		return fmt.Errorf("store cursor: %w", err)
	}
	return tx.Commit()
}

// LoadHistory returns the journaled entries, oldest first, and the cursor.
// An empty journal yields (nil, -1, nil).
func LoadHistory(ctx context.Context, root string) ([]domain.Layout, int, error) {
	db, err := InitOrOpenJournal(root)
	if err != nil {
		return nil, -1, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, listHistorySQL)
	if err != nil {
		return nil, -1, err
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Layout
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, -1, err
		}
		var l domain.Layout
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, -1, fmt.Errorf("decode history entry %d: %w", len(out), err)
		}
		if l == nil {
			l = domain.Layout{}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, -1, err
	}
	if len(out) == 0 {
		return nil, -1, nil
	}
	cursor, err := readCursor(ctx, db)
	if err != nil {
		return nil, -1, err
	}
	if cursor < 0 || cursor >= len(out) {
		cursor = len(out) - 1
	}
	return out, cursor, nil
}

// PruneHistory shrinks the journal to keepLast entries. The oldest entries go first,
// but never the one under the cursor; after that the newest redo entries are dropped.
// The cursor is shifted to keep pointing at the same snapshot. keepLast <= 0 is a no-op.
func PruneHistory(ctx context.Context, root string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenJournal(root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, listHistoryIDsSQL)
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()
	if len(ids) <= keepLast {
		return 0, nil
	}

	cur := len(ids) - 1
	var raw string
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, metaCursor).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read cursor: %w", err)
	}
	if v, convErr := strconv.Atoi(raw); err == nil && convErr == nil && v >= 0 && v < len(ids) {
		cur = v
	}

	head := len(ids) - keepLast
	if head > cur {
		head = cur
	}
	first, last := ids[head], ids[head+keepLast-1]
	res, err := tx.ExecContext(ctx, deleteHistoryOutsideSQL, first, last)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, upsertMetaSQL, metaCursor, strconv.Itoa(cur-head)); err != nil {
		return 0, fmt.Errorf("store cursor: %w", err)
	}
	return n, tx.Commit()
}

// SessionID returns the random id assigned to the journal when it was created.
func SessionID(ctx context.Context, root string) (string, error) {
	db, err := InitOrOpenJournal(root)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()
	var id string
	if err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, metaSession).Scan(&id); err != nil {
		return "", fmt.Errorf("read session id: %w", err)
	}
	return id, nil
}

func readCursor(ctx context.Context, db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, metaCursor).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("read cursor: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1, nil
	}
	return n, nil
}

// DetectAndResetJournal checks the journal for corruption. A damaged file is copied to
// .sb/backups and removed so the next open starts an empty history. It reports whether a
// reset happened.
func DetectAndResetJournal(ctx context.Context, root string) (bool, error) {
	path := JournalPath(root)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	reset := func() (bool, error) {
		backupJournalFile(path)
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				return false, fmt.Errorf("remove journal: %w", err)
			}
		}
		applog.WithComponent("storage").Warn("journal reset", slog.String("path", path))
		return true, nil
	}
	db, err := InitOrOpenJournal(root)
	if err != nil {
		return reset()
	}
	var chk string
	qerr := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk)
	_ = db.Close()
	if qerr != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		return reset()
	}
	return false, nil
}

func backupJournalFile(path string) {
	bdir := filepath.Join(filepath.Dir(path), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(path), time.Now().Format(backupStamp)))
	if data, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}
