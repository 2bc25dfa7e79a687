/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package story

import (
	"tweegee/internal/expression"
	"tweegee/internal/source"
)

// Statement is one of the closed set of statement variants below. The
// unexported marker keeps the set closed; consumers switch on the concrete
// type and treat anything else as a programming error.
type Statement interface {
	Loc() source.Location
	statement()
}

// Nester is implemented by statements that own a nested block. For If the
// nested block is the one belonging to its last clause.
type Nester interface {
	Statement
	Body() *Block
}

// Block is an ordered statement sequence.
type Block struct {
	Statements []Statement
}

func (b *Block) Append(s Statement) { b.Statements = append(b.Statements, s) }

func (b *Block) Len() int { return len(b.Statements) }

// Last returns the final statement, or nil for an empty block.
func (b *Block) Last() Statement {
	if len(b.Statements) == 0 {
		return nil
	}
	return b.Statements[len(b.Statements)-1]
}

// Pop removes and returns the final statement.
func (b *Block) Pop() Statement {
	last := b.Last()
	if last != nil {
		b.Statements = b.Statements[:len(b.Statements)-1]
	}
	return last
}

// Text is literal story text.
type Text struct {
	Location source.Location
	Text     string
}

// LineBreak marks the end of a source line that produced output.
type LineBreak struct {
	Location source.Location
}

// Set assigns the value of Expr to Variable (including its '$').
type Set struct {
	Location source.Location
	Variable string
	Expr     *expression.Expression
}

// Print evaluates Expr and appends the result to the current line.
type Print struct {
	Location source.Location
	Expr     *expression.Expression
}

// Target names a passage either literally or through an expression
// evaluated at run time.
type Target struct {
	Passage string
	Expr    *expression.Expression
}

// IsDynamic reports whether the target is computed at run time.
func (t Target) IsDynamic() bool { return t.Expr != nil }

func (t Target) String() string {
	if t.Expr != nil {
		return t.Expr.String()
	}
	return t.Passage
}

// Link navigates to Target, or offers it as a candidate inside a Choice.
// Text is the display text; empty when the link has none.
type Link struct {
	Location source.Location
	Target   Target
	Text     string
}

// Include runs the target passage inline and then continues here.
type Include struct {
	Location source.Location
	Target   Target
}

// Rewind signals that the host should rewind to Target. It does not
// transfer control by itself.
type Rewind struct {
	Location source.Location
	Target   Target
}

// Choice collects the links in its block as alternatives for the player.
// Implicit choices are created from link adjacency rather than a macro.
type Choice struct {
	Location source.Location
	Block    Block
	Implicit bool
}

// Clause is one branch of an If. A nil Condition marks the else branch.
type Clause struct {
	Location  source.Location
	Condition *expression.Expression
	Block     Block
}

// If runs the block of the first clause whose condition holds.
type If struct {
	Location source.Location
	Clauses  []*Clause
}

// NewIf starts an If with its leading conditional clause.
func NewIf(loc source.Location, cond *expression.Expression) *If {
	return &If{Location: loc, Clauses: []*Clause{{Location: loc, Condition: cond}}}
}

// AddClause appends an elseif (cond != nil) or else (cond == nil) clause.
func (s *If) AddClause(loc source.Location, cond *expression.Expression) *Block {
	c := &Clause{Location: loc, Condition: cond}
	s.Clauses = append(s.Clauses, c)
	return &c.Block
}

// HasElse reports whether the terminal else clause is present.
func (s *If) HasElse() bool {
	return len(s.Clauses) > 0 && s.Clauses[len(s.Clauses)-1].Condition == nil
}

// Delay holds back the output of its block for Duration.
type Delay struct {
	Location source.Location
	Duration Duration
	Block    Block
}

// Prompt turns the text produced by its block into a prompt for the player.
type Prompt struct {
	Location source.Location
	Block    Block
}

func (s *Text) Loc() source.Location      { return s.Location }
func (s *LineBreak) Loc() source.Location { return s.Location }
func (s *Set) Loc() source.Location       { return s.Location }
func (s *Print) Loc() source.Location     { return s.Location }
func (s *Link) Loc() source.Location      { return s.Location }
func (s *Include) Loc() source.Location   { return s.Location }
func (s *Rewind) Loc() source.Location    { return s.Location }
func (s *Choice) Loc() source.Location    { return s.Location }
func (s *If) Loc() source.Location        { return s.Location }
func (s *Delay) Loc() source.Location     { return s.Location }
func (s *Prompt) Loc() source.Location    { return s.Location }

func (*Text) statement()      {}
func (*LineBreak) statement() {}
func (*Set) statement()       {}
func (*Print) statement()     {}
func (*Link) statement()      {}
func (*Include) statement()   {}
func (*Rewind) statement()    {}
func (*Choice) statement()    {}
func (*If) statement()        {}
func (*Delay) statement()     {}
func (*Prompt) statement()    {}

func (s *Choice) Body() *Block { return &s.Block }
func (s *Delay) Body() *Block  { return &s.Block }
func (s *Prompt) Body() *Block { return &s.Block }
func (s *If) Body() *Block     { return &s.Clauses[len(s.Clauses)-1].Block }

// Walk calls fn for every statement in b, depth first, including the
// statements of every If clause.
func Walk(b *Block, fn func(Statement)) {
	for _, st := range b.Statements {
		fn(st)
		switch n := st.(type) {
		case *If:
			for _, c := range n.Clauses {
				Walk(&c.Block, fn)
			}
		case Nester:
			Walk(n.Body(), fn)
		}
	}
}

// Expressions returns every expression carried directly by st.
func Expressions(st Statement) []*expression.Expression {
	var out []*expression.Expression
	switch n := st.(type) {
	case *Set:
		out = append(out, n.Expr)
	case *Print:
		out = append(out, n.Expr)
	case *Link:
		out = append(out, n.Target.Expr)
	case *Include:
		out = append(out, n.Target.Expr)
	case *Rewind:
		out = append(out, n.Target.Expr)
	case *If:
		for _, c := range n.Clauses {
			out = append(out, c.Condition)
		}
	}
	filtered := out[:0]
	for _, e := range out {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
