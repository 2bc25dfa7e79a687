/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"tweegee/internal/source"
	"tweegee/internal/story"
)

const (
	storyTitlePassage    = "StoryTitle"
	storyAuthorPassage   = "StoryAuthor"
	twee2SettingsPassage = "Twee2Settings"
)

var startNameRe = regexp.MustCompile(`^\s*@story_start_name\s*=\s*['"](.+?)['"]\s*$`)

// finish runs the whole-story passes once every token has been consumed.
func (p *Parser) finish() {
	p.extractSpecialPassages()
	p.countWords()
	p.collectVariables()
	p.checkExpressions()
	p.checkReferences()
}

func (p *Parser) extractSpecialPassages() {
	s := p.story
	if ps := s.RemovePassage(storyTitlePassage); ps != nil {
		if t, ok := ps.SingleText(); ok {
			s.Title = strings.TrimSpace(t.Text)
		}
	}
	if ps := s.RemovePassage(storyAuthorPassage); ps != nil {
		if t, ok := ps.SingleText(); ok {
			s.Author = strings.TrimSpace(t.Text)
		}
	}
	if ps := s.RemovePassage(twee2SettingsPassage); ps != nil {
		found, reported := false, false
		story.Walk(&ps.Block, func(st story.Statement) {
			t, ok := st.(*story.Text)
			if !ok {
				return
			}
			if m := startNameRe.FindStringSubmatch(t.Text); m != nil {
				s.StartPassageName = m[1]
				found = true
				return
			}
			reported = true
			s.AddError(source.Errorf(source.InvalidTwee2Settings, t.Location,
				fmt.Sprintf("Unrecognized Twee2Settings line: %s", t.Text)))
		})
		if !found && !reported {
			s.AddError(source.Errorf(source.InvalidTwee2Settings, ps.Location,
				"Twee2Settings has no @story_start_name assignment"))
		}
	}
}

func (p *Parser) countWords() {
	words := 0
	p.story.Walk(func(_ *story.Passage, st story.Statement) {
		if t, ok := st.(*story.Text); ok {
			words += len(strings.Fields(t.Text))
		}
	})
	p.story.WordCount = words
}

func (p *Parser) collectVariables() {
	vars := map[string]bool{}
	p.story.Walk(func(_ *story.Passage, st story.Statement) {
		if set, ok := st.(*story.Set); ok {
			vars[set.Variable] = true
		}
	})
	p.story.Variables = vars
}

// checkExpressions reports expressions that failed to parse and variables
// that are read but never set anywhere.
func (p *Parser) checkExpressions() {
	s := p.story
	s.Walk(func(_ *story.Passage, st story.Statement) {
		for _, e := range story.Expressions(st) {
			if err := e.Err(); err != nil {
				var serr *source.Error
				if errors.As(err, &serr) {
					s.AddError(serr)
				} else {
					s.AddError(source.Errorf(source.InvalidExpression, e.Location(), err.Error()))
				}
				continue
			}
			for _, v := range e.Variables() {
				if !s.Variables[v] {
					s.AddError(source.Errorf(source.UndefinedVariable, st.Loc(),
						fmt.Sprintf("Variable %s is used but never set", v)))
				}
			}
		}
	})
}

func (p *Parser) checkReferences() {
	s := p.story
	referenced := map[string]bool{}
	s.Walk(func(_ *story.Passage, st story.Statement) {
		var (
			t    story.Target
			verb string
		)
		switch n := st.(type) {
		case *story.Link:
			t, verb = n.Target, "Link"
		case *story.Include:
			t, verb = n.Target, "Include"
		case *story.Rewind:
			t, verb = n.Target, "Rewind"
		default:
			return
		}
		if t.IsDynamic() {
			return
		}
		referenced[t.Passage] = true
		if _, ok := s.Passage(t.Passage); !ok {
			s.AddError(source.Errorf(source.MissingPassage, st.Loc(),
				fmt.Sprintf("%s refers to passage named %q but no passage exists with that name", verb, t.Passage)))
		}
	})

	if s.StartPassage() == nil {
		s.AddError(&source.Error{
			Kind:    source.MissingPassage,
			Message: fmt.Sprintf("Start passage %q is missing", s.StartPassageName),
		})
	}

	seen := map[string]bool{}
	for _, ps := range s.Passages {
		if seen[ps.Name] {
			continue
		}
		seen[ps.Name] = true
		if ps.Name == s.StartPassageName || referenced[ps.Name] || ps.HasTag(story.NoRefErrorTag) {
			continue
		}
		s.AddError(source.Errorf(source.UnreferencedPassage, ps.Location,
			fmt.Sprintf("Passage %q is never referenced", ps.Name)))
	}
}
