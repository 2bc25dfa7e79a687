/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "tweegee/internal/log"
	"tweegee/internal/story"
	"tweegee/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexFileName is the default index file, relative to the working directory.
	IndexFileName = "tweegee.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// OpenIndex ensures that the SQLite index at path exists, opens the database, enables WAL mode,
// and ensures the meta/version tables and the story schema exist.
// The returned *sql.DB is ready for use. Callers close it when no longer needed.
func OpenIndex(path string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_open").With(
		slog.String("path", path),
	)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("index path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	// Convert to forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.ToSlash(path))
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
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Debug("index ready")
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
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
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
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = lookupIndexes
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

// lookupIndexes serve where-used and per-passage error listings. Schema 1
// databases lack them.
var lookupIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_links_target ON links(target);`,
	`CREATE INDEX IF NOT EXISTS idx_errors_passage ON errors(passage);`,
}

// ensureIndexSchema creates the story tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// One row per passage in source order, duplicates included.
		`CREATE TABLE IF NOT EXISTS passages (
			passage_id INTEGER PRIMARY KEY,
			name       TEXT    NOT NULL,
			tags       TEXT    NOT NULL DEFAULT '',
			file       TEXT,
			file_line  INTEGER NOT NULL,
			duplicate  INTEGER NOT NULL DEFAULT 0,
			text       TEXT    NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_passages_name ON passages(name);`,

		// FTS5 index over passage name and body, fed from passages via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_passages USING fts5(
			name,
			text,
			content='passages',
			content_rowid='passage_id',
			tokenize = 'unicode61'
		);`,

		// Link graph: links, includes and rewinds out of each passage.
		`CREATE TABLE IF NOT EXISTS links (
			from_id   INTEGER NOT NULL,
			target    TEXT    NOT NULL,
			kind      TEXT    NOT NULL,
			dynamic   INTEGER NOT NULL DEFAULT 0,
			file_line INTEGER NOT NULL,
			FOREIGN KEY(from_id) REFERENCES passages(passage_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_links_from ON links(from_id);`,

		// Problems found while parsing. Location columns are NULL for story-wide errors.
		`CREATE TABLE IF NOT EXISTS errors (
			id           INTEGER PRIMARY KEY,
			kind         TEXT    NOT NULL,
			message      TEXT    NOT NULL,
			passage      TEXT,
			file_line    INTEGER,
			passage_line INTEGER
		);`,
	}
	for _, q := range append(ddl, lookupIndexes...) {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS passages_ai AFTER INSERT ON passages BEGIN
			INSERT INTO fts_passages(rowid, name, text) VALUES (new.passage_id, new.name, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS passages_ad AFTER DELETE ON passages BEGIN
			INSERT INTO fts_passages(fts_passages, rowid, name, text) VALUES ('delete', old.passage_id, old.name, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS passages_au AFTER UPDATE OF name, text ON passages BEGIN
			INSERT INTO fts_passages(fts_passages, rowid, name, text) VALUES ('delete', old.passage_id, old.name, old.text);
			INSERT INTO fts_passages(rowid, name, text) VALUES (new.passage_id, new.name, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// IndexStory replaces the index content with the passages, links and errors of st.
// Story-level values (title, author, start passage, word count) go to the meta table.
func IndexStory(ctx context.Context, db *sql.DB, st *story.Story) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_story")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := writeStory(ctx, tx, st); err != nil {
		_ = tx.Rollback()
		l.ErrorContext(ctx, "index story failed", slog.Any("err", err))
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	// Best-effort FTS optimize (outside the tx)
	if _, err := db.ExecContext(ctx, `INSERT INTO fts_passages(fts_passages) VALUES('optimize')`); err != nil {
		l.DebugContext(ctx, "fts optimize skipped", slog.Any("err", err))
	}
	l.InfoContext(ctx, "story indexed",
		slog.Int("passages", st.PassageCount()),
		slog.Int("errors", len(st.Errors)),
		slog.Int("words", st.WordCount),
	)
	return nil
}

type reference struct {
	kind   string
	target story.Target
	line   int
}

func writeStory(ctx context.Context, tx *sql.Tx, st *story.Story) error {
	for _, q := range []string{"DELETE FROM links;", "DELETE FROM errors;", "DELETE FROM passages;"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear index: %w", err)
		}
	}
	insPassage, err := tx.PrepareContext(ctx, "INSERT INTO passages(name, tags, file, file_line, duplicate, text) VALUES(?,?,?,?,?,?);")
	if err != nil {
		return fmt.Errorf("prepare passage insert: %w", err)
	}
	defer insPassage.Close()
	insLink, err := tx.PrepareContext(ctx, "INSERT INTO links(from_id, target, kind, dynamic, file_line) VALUES(?,?,?,?,?);")
	if err != nil {
		return fmt.Errorf("prepare link insert: %w", err)
	}
	defer insLink.Close()

	seen := map[string]bool{}
	for _, p := range st.Passages {
		dup := seen[p.Name]
		seen[p.Name] = true
		res, err := insPassage.ExecContext(ctx, p.Name, joinTags(p.Tags), nullString(p.Location.File), p.Location.FileLine, dup, passageText(p))
		if err != nil {
			return fmt.Errorf("insert passage %q: %w", p.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("passage id: %w", err)
		}
		for _, r := range references(p) {
			if _, err := insLink.ExecContext(ctx, id, r.target.String(), r.kind, r.target.IsDynamic(), r.line); err != nil {
				return fmt.Errorf("insert link: %w", err)
			}
		}
	}

	insErr, err := tx.PrepareContext(ctx, "INSERT INTO errors(kind, message, passage, file_line, passage_line) VALUES(?,?,?,?,?);")
	if err != nil {
		return fmt.Errorf("prepare error insert: %w", err)
	}
	defer insErr.Close()
	for _, e := range st.Errors {
		var passage sql.NullString
		var fileLine, passageLine sql.NullInt64
		if e.Location != nil {
			passage = nullString(e.Location.Passage)
			fileLine = sql.NullInt64{Int64: int64(e.Location.FileLine), Valid: true}
			passageLine = sql.NullInt64{Int64: int64(e.Location.PassageLine), Valid: true}
		}
		if _, err := insErr.ExecContext(ctx, e.Kind.String(), e.Message, passage, fileLine, passageLine); err != nil {
			return fmt.Errorf("insert error: %w", err)
		}
	}

	meta := map[string]string{
		"title":      st.Title,
		"author":     st.Author,
		"start":      st.StartPassageName,
		"word_count": strconv.Itoa(st.WordCount),
		"indexed_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, k, v); err != nil {
			return fmt.Errorf("write meta %s: %w", k, err)
		}
	}
	return nil
}

func references(p *story.Passage) []reference {
	var refs []reference
	story.Walk(&p.Block, func(s story.Statement) {
		switch s := s.(type) {
		case *story.Link:
			refs = append(refs, reference{kind: "link", target: s.Target, line: s.Location.FileLine})
		case *story.Include:
			refs = append(refs, reference{kind: "include", target: s.Target, line: s.Location.FileLine})
		case *story.Rewind:
			refs = append(refs, reference{kind: "rewind", target: s.Target, line: s.Location.FileLine})
		}
	})
	return refs
}

// passageText is the passage body without its header line.
func passageText(p *story.Passage) string {
	if len(p.Raw) < 2 {
		return ""
	}
	return strings.Join(p.Raw[1:], "\n")
}

// joinTags stores tags space-padded so a single tag matches with LIKE '% tag %'.
func joinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StoryMeta is the story-level information recorded by the last IndexStory.
type StoryMeta struct {
	Title     string
	Author    string
	Start     string
	WordCount int
	IndexedAt time.Time
}

// Meta reads the story-level values from the meta table.
func Meta(ctx context.Context, db *sql.DB) (StoryMeta, error) {
	var m StoryMeta
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return m, fmt.Errorf("meta query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return m, fmt.Errorf("scan meta: %w", err)
		}
		switch k {
		case "title":
			m.Title = v
		case "author":
			m.Author = v
		case "start":
			m.Start = v
		case "word_count":
			m.WordCount, _ = strconv.Atoi(v)
		case "indexed_at":
			m.IndexedAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	return m, rows.Err()
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds the index from st if needed.
// It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, path string, st *story.Story) (bool, error) {
	db, err := OpenIndex(path)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if rbErr := RebuildIndex(ctx, path, st); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM passages LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	_ = os.Remove(path)
	if err := RebuildIndex(ctx, path, st); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup next to it.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// RebuildIndex drops and recreates the story tables and indexes st into them.
// It preserves meta/version tables.
func RebuildIndex(ctx context.Context, path string, st *story.Story) error {
	db, err := OpenIndex(path)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TABLE IF EXISTS links;",
		"DROP TABLE IF EXISTS errors;",
		"DROP TRIGGER IF EXISTS passages_ai;",
		"DROP TRIGGER IF EXISTS passages_ad;",
		"DROP TRIGGER IF EXISTS passages_au;",
		"DROP TABLE IF EXISTS fts_passages;",
		"DROP TABLE IF EXISTS passages;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	return IndexStory(ctx, db, st)
}
