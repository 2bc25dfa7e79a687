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
	"strings"
	"testing"
	"time"

	"tweegee/internal/parser"
)

func TestSearchFTSAndTags(t *testing.T) {
	path := openIndexed(t, castle(t))
	db, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := Search(ctx, db, SearchQuery{Text: "dragon"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Name != "Cellar" {
		t.Fatalf("expected Cellar for 'dragon', got %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[dragon]") {
		t.Fatalf("snippet lacks highlight: %q", res[0].Snippet)
	}
	if res[0].File != "castle.tw" || res[0].FileLine != 9 {
		t.Fatalf("location = %s:%d", res[0].File, res[0].FileLine)
	}
	if len(res[0].Tags) != 2 || res[0].Tags[0] != "dark" {
		t.Fatalf("tags = %v", res[0].Tags)
	}

	// passage names are searchable too
	res, err = Search(ctx, db, SearchQuery{Text: "lamp"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	names := map[string]bool{}
	for _, r := range res {
		names[r.Name] = true
	}
	if !names["Lamp"] || !names["Start"] {
		t.Fatalf("expected Lamp and Start for 'lamp', got %+v", res)
	}

	// tag filter without text
	res, err = Search(ctx, db, SearchQuery{Tags: []string{"dark"}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Name != "Cellar" {
		t.Fatalf("tag filter: %+v", res)
	}
	// "dar" must not match the "dark" tag
	res, _ = Search(ctx, db, SearchQuery{Tags: []string{"dar"}})
	if len(res) != 0 {
		t.Fatalf("partial tag matched: %+v", res)
	}
}

func TestSearchPagination(t *testing.T) {
	path := openIndexed(t, castle(t))
	db, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	all, err := Search(ctx, db, SearchQuery{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	page, err := Search(ctx, db, SearchQuery{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page) != 1 || page[0].PassageID != all[1].PassageID {
		t.Fatalf("page = %+v, all = %+v", page, all)
	}
}

func TestWhereUsed(t *testing.T) {
	path := openIndexed(t, castle(t))
	db, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	refs, err := WhereUsed(ctx, db, "Lamp")
	if err != nil {
		t.Fatalf("WhereUsed: %v", err)
	}
	if len(refs) != 1 || refs[0].From != "Start" || refs[0].Kind != "include" || refs[0].FileLine != 6 {
		t.Fatalf("refs to Lamp = %+v", refs)
	}
	refs, err = WhereUsed(ctx, db, "Start")
	if err != nil {
		t.Fatalf("WhereUsed: %v", err)
	}
	if len(refs) != 1 || refs[0].From != "Cellar" || refs[0].Kind != "link" {
		t.Fatalf("refs to Start = %+v", refs)
	}
	refs, err = WhereUsed(ctx, db, "Attic")
	if err != nil || len(refs) != 0 {
		t.Fatalf("refs to Attic = %+v, %v", refs, err)
	}
	if _, err := WhereUsed(ctx, db, ""); err == nil {
		t.Fatalf("expected error for empty passage name")
	}
}

func TestListErrors(t *testing.T) {
	path := openIndexed(t, castle(t))
	db, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	errs, err := ListErrors(context.Background(), db)
	if err != nil {
		t.Fatalf("ListErrors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("errors = %+v", errs)
	}
	e := errs[0]
	if e.Kind != "MissingPassage" || e.Passage != "Cellar" || e.FileLine != 12 || e.PassageLine != 3 {
		t.Fatalf("error = %+v", e)
	}
	if !strings.Contains(e.Message, `"Nowhere"`) {
		t.Fatalf("message = %q", e.Message)
	}
}

func TestListErrorsWithoutLocation(t *testing.T) {
	path := openIndexed(t, parser.Parse(":: Intro\nHello\n"))
	db, err := OpenIndex(path)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	errs, err := ListErrors(context.Background(), db)
	if err != nil {
		t.Fatalf("ListErrors: %v", err)
	}
	var found bool
	for _, e := range errs {
		if e.Kind == "MissingPassage" && e.Passage == "" && e.FileLine == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("story-wide MissingPassage not stored: %+v", errs)
	}
}

func BenchmarkSearchFTS(b *testing.B) {
	path := openIndexed(b, castle(b))
	db, err := OpenIndex(path)
	if err != nil {
		b.Fatalf("OpenIndex: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Search(ctx, db, SearchQuery{Text: "dragon"}); err != nil {
			b.Fatalf("Search: %v", err)
		}
	}
}
