/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SearchQuery describes a passage search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT) over passage name and body.
// Tags should be provided without spaces; a passage must carry all of them.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text   string
	Tags   []string
	Limit  int
	Offset int
}

// SearchResult represents a single matching passage.
// Snippet is a highlighted excerpt using [ ] markers when FTS text is used.
type SearchResult struct {
	PassageID int64
	Name      string
	Tags      []string
	File      string
	FileLine  int
	Duplicate bool
	Snippet   string
}

// Search performs full-text search with optional tag filters over the index.
// When q.Text is empty, it falls back to a non-FTS scan over passages with filters applied.
func Search(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT p.passage_id, p.name, p.tags, COALESCE(p.file,''), p.file_line, p.duplicate, snippet(fts_passages, 1, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_passages JOIN passages p ON fts_passages.rowid = p.passage_id\n")
		sb.WriteString("WHERE fts_passages MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT p.passage_id, p.name, p.tags, COALESCE(p.file,''), p.file_line, p.duplicate, ''\n")
		sb.WriteString("FROM passages p\nWHERE 1=1\n")
	}
	for _, t := range q.Tags {
		tt := strings.TrimSpace(t)
		if tt == "" {
			continue
		}
		sb.WriteString(" AND p.tags LIKE ?\n")
		args = append(args, likeContains(" "+tt+" "))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if useFTS {
		sb.WriteString("ORDER BY fts_passages.rank, p.passage_id\n")
	} else {
		sb.WriteString("ORDER BY p.passage_id\n")
	}
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var tags string
		var sn sql.NullString
		if err := rows.Scan(&r.PassageID, &r.Name, &tags, &r.File, &r.FileLine, &r.Duplicate, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Tags = strings.Fields(tags)
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reference is one place a passage is linked to, included from or rewound to.
type Reference struct {
	From     string
	Kind     string
	FileLine int
}

// WhereUsed returns the literal references to the named passage, in source order.
// Dynamic targets are skipped since their passage is only known at run time.
func WhereUsed(ctx context.Context, db *sql.DB, passage string) ([]Reference, error) {
	if strings.TrimSpace(passage) == "" {
		return nil, errors.New("passage name is required")
	}
	q := `SELECT p.name, l.kind, l.file_line
		FROM links l
		JOIN passages p ON p.passage_id = l.from_id
		WHERE l.target = ? AND l.dynamic = 0
		ORDER BY l.file_line, l.rowid`
	rows, err := db.QueryContext(ctx, q, passage)
	if err != nil {
		return nil, fmt.Errorf("where-used query: %w", err)
	}
	defer rows.Close()
	out := []Reference{}
	for rows.Next() {
		var r Reference
		if err := rows.Scan(&r.From, &r.Kind, &r.FileLine); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IndexedError is a parse problem as stored in the index.
// Passage and lines are empty for story-wide errors such as a missing start passage.
type IndexedError struct {
	Kind        string
	Message     string
	Passage     string
	FileLine    int
	PassageLine int
}

// ListErrors returns the stored errors in the order the parser reported them.
func ListErrors(ctx context.Context, db *sql.DB) ([]IndexedError, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, message, COALESCE(passage,''), COALESCE(file_line,0), COALESCE(passage_line,0)
		FROM errors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("errors query: %w", err)
	}
	defer rows.Close()
	var out []IndexedError
	for rows.Next() {
		var e IndexedError
		if err := rows.Scan(&e.Kind, &e.Message, &e.Passage, &e.FileLine, &e.PassageLine); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func likeContains(s string) string { return "%" + s + "%" }
