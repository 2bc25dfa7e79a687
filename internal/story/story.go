/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package story defines the parsed document: a Story made of named
// Passages, each holding a block of Statements. The parser builds it and
// the engine only reads it.
package story

import (
	"sort"

	"tweegee/internal/source"
)

// DefaultStartPassage is the passage the engine enters unless the story's
// settings name another one.
const DefaultStartPassage = "Start"

// NoRefErrorTag on a passage suppresses the "never referenced" check.
const NoRefErrorTag = "noreferror"

// Position is a passage's location on an editor grid.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Passage is a named, addressable unit of story content.
// Raw holds the passage's source lines, header included at index 0.
type Passage struct {
	Name     string
	Tags     []string
	Position *Position
	Block    Block
	Raw      []string
	Location source.Location
}

// HasTag reports whether the passage carries tag.
func (p *Passage) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SingleText returns the passage's first statement when it is text.
func (p *Passage) SingleText() (*Text, bool) {
	if len(p.Block.Statements) == 0 {
		return nil, false
	}
	t, ok := p.Block.Statements[0].(*Text)
	return t, ok
}

// Story is a whole parsed document.
type Story struct {
	// Passages are kept in source order, duplicates included.
	Passages []*Passage
	byName   map[string]*Passage
	// removed keeps passages taken out by RemovePassage so errors reported
	// inside them can still show their source line.
	removed []*Passage

	Title            string
	Author           string
	StartPassageName string

	// Variables holds every variable assigned anywhere in the story. It is
	// filled once parsing has finished.
	Variables map[string]bool
	WordCount int
	Errors    []*source.Error
}

// New returns an empty story that starts at DefaultStartPassage.
func New() *Story {
	return &Story{
		byName:           map[string]*Passage{},
		StartPassageName: DefaultStartPassage,
		Variables:        map[string]bool{},
	}
}

// AddPassage appends p. The first passage with a given name wins the name
// lookup; a later duplicate is still appended and the earlier definition is
// returned so the caller can report it.
func (s *Story) AddPassage(p *Passage) *Passage {
	s.Passages = append(s.Passages, p)
	if existing, ok := s.byName[p.Name]; ok {
		return existing
	}
	s.byName[p.Name] = p
	return nil
}

// RemovePassage drops every passage called name.
func (s *Story) RemovePassage(name string) *Passage {
	p, ok := s.byName[name]
	if !ok {
		return nil
	}
	delete(s.byName, name)
	kept := s.Passages[:0]
	for _, q := range s.Passages {
		if q.Name != name {
			kept = append(kept, q)
		} else {
			s.removed = append(s.removed, q)
		}
	}
	s.Passages = kept
	return p
}

// Passage looks a passage up by name.
func (s *Story) Passage(name string) (*Passage, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// StartPassage returns the passage play begins at, or nil.
func (s *Story) StartPassage() *Passage { return s.byName[s.StartPassageName] }

// PassageCount counts passages in source order, duplicates included.
func (s *Story) PassageCount() int { return len(s.Passages) }

// AddError records a problem found in the story.
func (s *Story) AddError(err *source.Error) { s.Errors = append(s.Errors, err) }

// VariableNames returns the assigned variables, sorted.
func (s *Story) VariableNames() []string {
	out := make([]string, 0, len(s.Variables))
	for v := range s.Variables {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// RawLine implements source.LineSource. The owning passage is the one whose
// header sits PassageLine lines above loc, so duplicates and removed
// special passages resolve to their own text. Locations that match no
// header fall back to the name lookup.
func (s *Story) RawLine(loc source.Location) (string, bool) {
	p := s.owner(loc)
	if p == nil || loc.PassageLine < 0 || loc.PassageLine >= len(p.Raw) {
		return "", false
	}
	return p.Raw[loc.PassageLine], true
}

func (s *Story) owner(loc source.Location) *Passage {
	header := loc.FileLine - loc.PassageLine
	for _, list := range [][]*Passage{s.Passages, s.removed} {
		for _, p := range list {
			if p.Name == loc.Passage && p.Location.File == loc.File && p.Location.FileLine == header {
				return p
			}
		}
	}
	if p, ok := s.byName[loc.Passage]; ok {
		return p
	}
	for _, p := range s.removed {
		if p.Name == loc.Passage {
			return p
		}
	}
	return nil
}

// Walk visits every statement of every passage in source order.
func (s *Story) Walk(fn func(*Passage, Statement)) {
	for _, p := range s.Passages {
		Walk(&p.Block, func(st Statement) { fn(p, st) })
	}
}
