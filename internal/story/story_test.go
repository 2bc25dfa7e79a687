/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import (
	"testing"

	"tweegee/internal/source"
)

func TestParseDuration(t *testing.T) {
	ok := map[string]int{"10s": 10, "3m": 180, "2h": 7200, "0s": 0}
	for in, want := range ok {
		d, err := ParseDuration(in)
		if err != nil {
			t.Fatalf("ParseDuration(%q) error: %v", in, err)
		}
		if d.Seconds != want || d.Text != in {
			t.Errorf("ParseDuration(%q) = %+v, want %d seconds", in, d, want)
		}
	}
	for _, in := range []string{"junk", "10", "s", "10ss", " 10s ", "10 s", "-1s", "", "9999999999999999h", "99999999999999999999s"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q) should fail", in)
		}
	}
}

func TestAddPassageFirstDefinitionWins(t *testing.T) {
	s := New()
	first := &Passage{Name: "A", Location: source.Location{FileLine: 1}}
	dup := &Passage{Name: "A", Location: source.Location{FileLine: 5}}
	if existing := s.AddPassage(first); existing != nil {
		t.Fatalf("unexpected existing passage")
	}
	if existing := s.AddPassage(dup); existing != first {
		t.Fatalf("duplicate should report the earlier definition")
	}
	if got, _ := s.Passage("A"); got != first {
		t.Fatalf("lookup should keep the first definition")
	}
	if s.PassageCount() != 2 {
		t.Fatalf("duplicates stay in source order, got %d passages", s.PassageCount())
	}
	if removed := s.RemovePassage("A"); removed != first {
		t.Fatalf("RemovePassage returned %+v", removed)
	}
	if s.PassageCount() != 0 {
		t.Fatalf("RemovePassage should drop every copy, %d left", s.PassageCount())
	}
}

func TestWalkVisitsNestedBlocks(t *testing.T) {
	ifs := NewIf(source.Location{}, nil)
	ifs.Clauses[0].Block.Append(&Text{Text: "a"})
	ifs.AddClause(source.Location{}, nil).Append(&Text{Text: "b"})
	choice := &Choice{}
	choice.Block.Append(&Link{Target: Target{Passage: "X"}})
	delay := &Delay{}
	delay.Block.Append(&Text{Text: "c"})

	var b Block
	b.Append(ifs)
	b.Append(choice)
	b.Append(delay)

	var texts []string
	count := 0
	Walk(&b, func(st Statement) {
		count++
		if tx, ok := st.(*Text); ok {
			texts = append(texts, tx.Text)
		}
	})
	if count != 7 {
		t.Fatalf("visited %d statements, want 7", count)
	}
	if len(texts) != 3 || texts[0] != "a" || texts[1] != "b" || texts[2] != "c" {
		t.Fatalf("texts visited out of order: %v", texts)
	}
	if !ifs.HasElse() {
		t.Fatalf("HasElse should be true after a nil-condition clause")
	}
	if ifs.Body() != &ifs.Clauses[1].Block {
		t.Fatalf("If body should be the last clause's block")
	}
}

func TestErrorSourceLine(t *testing.T) {
	s := New()
	s.AddPassage(&Passage{Name: "Start", Raw: []string{"::Start", "Hello", "<<if true>>"}})
	err := source.Errorf(source.UnmatchedIf, source.Location{Passage: "Start", FileLine: 3, PassageLine: 2}, "Missing <<endif>>")
	line, ok := err.SourceLine(s)
	if !ok || line != "<<if true>>" {
		t.Fatalf("SourceLine = %q, %v", line, ok)
	}
	if _, ok := (&source.Error{Kind: source.MissingPassage}).SourceLine(s); ok {
		t.Fatalf("an error without location has no source line")
	}
	if got := err.Error(); got != `UnmatchedIf at line 3 (passage "Start", line 2): Missing <<endif>>` {
		t.Fatalf("Error() = %q", got)
	}
}
