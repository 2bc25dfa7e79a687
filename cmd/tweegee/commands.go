/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tweegee/internal/export"
	"tweegee/internal/storage"
)

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func (c *cli) check(ctx context.Context, args []string) error {
	fs := c.flags("check")
	start := fs.String("start", "", "start passage (default from config)")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	st, err := c.loadStory(ctx, rest[0], *start)
	if err != nil {
		return err
	}
	c.reportErrors(st)
	fmt.Fprintf(c.stdout, "%s: %d passages, %d words, %d errors\n", rest[0], st.PassageCount(), st.WordCount, len(st.Errors))
	if len(st.Errors) > 0 {
		return errStory
	}
	return nil
}

func (c *cli) json(ctx context.Context, args []string) error {
	fs := c.flags("json")
	noPassages := fs.Bool("no-passages", false, "only statistics and errors")
	compact := fs.Bool("compact", false, "single-line output")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	st, err := c.loadStory(ctx, rest[0], "")
	if err != nil {
		return err
	}
	var opts []export.JSONOption
	if *noPassages {
		opts = append(opts, export.OmitPassages())
	}
	if *compact {
		opts = append(opts, export.WithIndent(""))
	}
	if err := export.WriteJSON(c.stdout, st, opts...); err != nil {
		return err
	}
	if len(st.Errors) > 0 {
		return errStory
	}
	return nil
}

func (c *cli) pdf(ctx context.Context, args []string) error {
	fs := c.flags("pdf")
	out := fs.String("o", "", "output file (default <story>.pdf)")
	withErrors := fs.Bool("errors", false, "print parse errors under each passage")
	page := fs.String("page", "A4", "page size: A4 or Letter")
	lang := fs.String("lang", "", "language tag for number formatting on the cover (default en)")
	var only stringList
	fs.Var(&only, "passage", "only this passage (repeatable)")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	st, err := c.loadStory(ctx, rest[0], "")
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = strings.TrimSuffix(rest[0], filepath.Ext(rest[0])) + ".pdf"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := export.WritePDF(f, st, export.PDFOptions{PageSize: *page, IncludeErrors: *withErrors, Passages: only, Language: *lang}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close pdf: %w", err)
	}
	fmt.Fprintln(c.stdout, "Wrote", path)
	return nil
}

func (c *cli) storyMap(ctx context.Context, args []string) error {
	fs := c.flags("map")
	out := fs.String("o", "", "output file (default <story>.png)")
	scale := fs.Float64("scale", 1, "editor position scale")
	cols := fs.Int("columns", 4, "grid columns for passages without a position")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	st, err := c.loadStory(ctx, rest[0], "")
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = strings.TrimSuffix(rest[0], filepath.Ext(rest[0])) + ".png"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create map: %w", err)
	}
	if err := export.WriteMapPNG(f, st, export.MapOptions{Scale: *scale, Columns: *cols}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close map: %w", err)
	}
	fmt.Fprintln(c.stdout, "Wrote", path)
	return nil
}

// openDB opens the index at the -db flag value or the configured path.
func (c *cli) openDB(flagValue string) (*sql.DB, error) {
	path := flagValue
	if path == "" {
		path = c.cfg.Index.Path
	}
	return storage.OpenIndex(path)
}

func (c *cli) index(ctx context.Context, args []string) error {
	fs := c.flags("index")
	dbPath := fs.String("db", "", "index file (default from config)")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	st, err := c.loadStory(ctx, rest[0], "")
	if err != nil {
		return err
	}
	path := *dbPath
	if path == "" {
		path = c.cfg.Index.Path
	}
	rebuilt, err := storage.DetectAndRebuildIndex(ctx, path, st)
	if err != nil {
		return err
	}
	db, err := storage.OpenIndex(path)
	if err != nil {
		return err
	}
	defer db.Close()
	if !rebuilt {
		if err := storage.IndexStory(ctx, db, st); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(c.stderr, "Index was damaged and has been rebuilt; a backup was kept.")
	}
	m, err := storage.Meta(ctx, db)
	if err != nil {
		return err
	}
	title := m.Title
	if title == "" {
		title = rest[0]
	}
	fmt.Fprintf(c.stdout, "Indexed %q into %s: %d passages, %d words, %d errors\n", title, path, st.PassageCount(), m.WordCount, len(st.Errors))
	return nil
}

func (c *cli) search(ctx context.Context, args []string) error {
	fs := c.flags("search")
	dbPath := fs.String("db", "", "index file (default from config)")
	limit := fs.Int("limit", 20, "maximum results")
	var tags stringList
	fs.Var(&tags, "tag", "require this tag (repeatable)")
	rest, err := c.parse(fs, args, -1)
	if err != nil {
		return err
	}
	db, err := c.openDB(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	res, err := storage.Search(ctx, db, storage.SearchQuery{Text: strings.Join(rest, " "), Tags: tags, Limit: *limit})
	if err != nil {
		return err
	}
	for _, r := range res {
		loc := fmt.Sprintf("line %d", r.FileLine)
		if r.File != "" {
			loc = fmt.Sprintf("%s:%d", r.File, r.FileLine)
		}
		fmt.Fprintf(c.stdout, "%s\t%s", r.Name, loc)
		if len(r.Tags) > 0 {
			fmt.Fprintf(c.stdout, "\t[%s]", strings.Join(r.Tags, " "))
		}
		if r.Snippet != "" {
			fmt.Fprintf(c.stdout, "\t%s", strings.ReplaceAll(r.Snippet, "\n", " / "))
		}
		fmt.Fprintln(c.stdout)
	}
	fmt.Fprintf(c.stdout, "%d result(s)\n", len(res))
	return nil
}

func (c *cli) uses(ctx context.Context, args []string) error {
	fs := c.flags("uses")
	dbPath := fs.String("db", "", "index file (default from config)")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	db, err := c.openDB(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	refs, err := storage.WhereUsed(ctx, db, rest[0])
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Fprintf(c.stdout, "%s\t%s\tline %d\n", r.From, r.Kind, r.FileLine)
	}
	fmt.Fprintf(c.stdout, "%d reference(s) to %q\n", len(refs), rest[0])
	return nil
}

func (c *cli) errors(ctx context.Context, args []string) error {
	fs := c.flags("errors")
	dbPath := fs.String("db", "", "index file (default from config)")
	if _, err := c.parse(fs, args, 0); err != nil {
		return err
	}
	db, err := c.openDB(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	errs, err := storage.ListErrors(ctx, db)
	if err != nil {
		return err
	}
	for _, e := range errs {
		if e.Passage == "" {
			fmt.Fprintf(c.stdout, "%s\t%s\n", e.Kind, e.Message)
			continue
		}
		fmt.Fprintf(c.stdout, "%s\t%s\tline %d (passage %q, line %d)\n", e.Kind, e.Message, e.FileLine, e.Passage, e.PassageLine)
	}
	if len(errs) > 0 {
		return errStory
	}
	return nil
}
