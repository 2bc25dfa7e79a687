/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders a parsed story for consumers outside the engine:
// a JSON document for tooling and a PDF proof for review.
package export

import (
	"encoding/json"
	"fmt"
	"io"

	"tweegee/internal/source"
	"tweegee/internal/story"
)

// Document is the JSON form of a story.
// Title and Author are null when the story has no StoryTitle/StoryAuthor passage.
type Document struct {
	Title        *string   `json:"title"`
	Author       *string   `json:"author"`
	Start        string    `json:"start"`
	PassageCount int       `json:"passageCount"`
	WordCount    int       `json:"wordCount"`
	Variables    []string  `json:"variables"`
	Passages     []Passage `json:"passages,omitempty"`
	Errors       []Error   `json:"errors"`
}

type Passage struct {
	Name       string          `json:"name"`
	Tags       []string        `json:"tags"`
	Position   *story.Position `json:"position,omitempty"`
	Statements []Statement     `json:"statements"`
	Code       []string        `json:"code"`
}

// Statement is a tagged union keyed by Type.
type Statement struct {
	Type       string      `json:"_type"`
	Line       int         `json:"line"`
	Text       string      `json:"text,omitempty"`
	Passage    string      `json:"passage,omitempty"`
	Expression string      `json:"expression,omitempty"`
	Variable   string      `json:"variable,omitempty"`
	Delay      string      `json:"delay,omitempty"`
	Seconds    *int        `json:"seconds,omitempty"`
	Implicit   bool        `json:"implicit,omitempty"`
	Clauses    []Clause    `json:"clauses,omitempty"`
	Statements []Statement `json:"statements,omitempty"`
}

// Clause is one if/elseif/else branch; Condition is null for else.
type Clause struct {
	Line       int         `json:"line"`
	Condition  *string     `json:"condition"`
	Statements []Statement `json:"statements"`
}

type Error struct {
	Type     string           `json:"type"`
	Message  string           `json:"message"`
	Location *source.Location `json:"location"`
	Source   string           `json:"source,omitempty"`
}

type jsonConfig struct {
	passages bool
	indent   string
}

// JSONOption tunes WriteJSON.
type JSONOption func(*jsonConfig)

// OmitPassages leaves passage contents out, keeping statistics and errors.
func OmitPassages() JSONOption { return func(c *jsonConfig) { c.passages = false } }

// WithIndent sets the indentation; the empty string writes compact JSON.
func WithIndent(indent string) JSONOption { return func(c *jsonConfig) { c.indent = indent } }

// WriteJSON encodes st as a Document.
func WriteJSON(w io.Writer, st *story.Story, opts ...JSONOption) error {
	if st == nil {
		return fmt.Errorf("story is nil")
	}
	cfg := jsonConfig{passages: true, indent: "  "}
	for _, o := range opts {
		o(&cfg)
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if cfg.indent != "" {
		enc.SetIndent("", cfg.indent)
	}
	if err := enc.Encode(ToDocument(st, cfg.passages)); err != nil {
		return fmt.Errorf("encode story: %w", err)
	}
	return nil
}

// ToDocument builds the JSON form of st.
func ToDocument(st *story.Story, includePassages bool) Document {
	doc := Document{
		Start:        st.StartPassageName,
		PassageCount: st.PassageCount(),
		WordCount:    st.WordCount,
		Variables:    st.VariableNames(),
		Errors:       make([]Error, 0, len(st.Errors)),
	}
	if st.Title != "" {
		doc.Title = &st.Title
	}
	if st.Author != "" {
		doc.Author = &st.Author
	}
	if includePassages {
		doc.Passages = make([]Passage, 0, len(st.Passages))
		for _, p := range st.Passages {
			tags := p.Tags
			if tags == nil {
				tags = []string{}
			}
			code := p.Raw
			if code == nil {
				code = []string{}
			}
			doc.Passages = append(doc.Passages, Passage{
				Name:       p.Name,
				Tags:       tags,
				Position:   p.Position,
				Statements: statements(&p.Block),
				Code:       code,
			})
		}
	}
	for _, e := range st.Errors {
		je := Error{Type: e.Kind.String(), Message: e.Message, Location: e.Location}
		if line, ok := e.SourceLine(st); ok {
			je.Source = line
		}
		doc.Errors = append(doc.Errors, je)
	}
	return doc
}

func statements(b *story.Block) []Statement {
	out := make([]Statement, 0, len(b.Statements))
	for _, s := range b.Statements {
		out = append(out, statement(s))
	}
	return out
}

func statement(s story.Statement) Statement {
	j := Statement{Line: s.Loc().PassageLine}
	switch s := s.(type) {
	case *story.Text:
		j.Type = "text"
		j.Text = s.Text
	case *story.LineBreak:
		j.Type = "newline"
	case *story.Set:
		j.Type = "set"
		j.Variable = s.Variable
		j.Expression = s.Expr.String()
	case *story.Print:
		j.Type = "expression"
		j.Expression = s.Expr.String()
	case *story.Link:
		j.Type = "link"
		j.Text = s.Text
		target(&j, s.Target)
	case *story.Include:
		j.Type = "include"
		target(&j, s.Target)
	case *story.Rewind:
		j.Type = "rewind"
		target(&j, s.Target)
	case *story.Choice:
		j.Type = "choice"
		j.Implicit = s.Implicit
		j.Statements = statements(&s.Block)
	case *story.Prompt:
		j.Type = "prompt"
		j.Statements = statements(&s.Block)
	case *story.Delay:
		j.Type = "delay"
		j.Delay = s.Duration.String()
		secs := s.Duration.Seconds
		j.Seconds = &secs
		j.Statements = statements(&s.Block)
	case *story.If:
		j.Type = "if"
		for _, c := range s.Clauses {
			jc := Clause{Line: c.Location.PassageLine, Statements: statements(&c.Block)}
			if c.Condition != nil {
				cond := c.Condition.String()
				jc.Condition = &cond
			}
			j.Clauses = append(j.Clauses, jc)
		}
	default:
		panic(fmt.Sprintf("export: unknown statement %T", s))
	}
	return j
}

func target(j *Statement, t story.Target) {
	if t.IsDynamic() {
		j.Expression = t.Expr.String()
		return
	}
	j.Passage = t.Passage
}
