/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package parser builds a story.Story from markup in a single pass over the
// lexer's token stream. Open constructs (if, delay, choice, prompt) live on
// an explicit stack whose top owns the block new statements go into. Any
// error discards the open constructs of the current passage and skips to
// the next passage header, so one mistake damages at most one passage.
package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"tweegee/internal/expression"
	"tweegee/internal/lexer"
	applog "tweegee/internal/log"
	"tweegee/internal/source"
	"tweegee/internal/story"
)

// State is the parser's coarse position within the current line and scope.
type State int

const (
	Normal State = iota
	JustSawLink
	InsideDelay
	InsideExplicitChoice
	InsideImplicitChoice
	SkippingAfterError
)

func (s State) String() string {
	switch s {
	case Normal:
		return "Normal"
	case JustSawLink:
		return "JustSawLink"
	case InsideDelay:
		return "InsideDelay"
	case InsideExplicitChoice:
		return "InsideExplicitChoice"
	case InsideImplicitChoice:
		return "InsideImplicitChoice"
	case SkippingAfterError:
		return "SkippingAfterError"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type frameKind int

const (
	passageFrame frameKind = iota
	ifFrame
	delayFrame
	choiceFrame
	promptFrame
)

var frameNames = [...]string{"passage", "if", "delay", "choice", "prompt"}

// frame is one open construct. The passage frame has no statement and
// writes into the passage block.
type frame struct {
	kind    frameKind
	stmt    story.Nester
	passage *story.Passage
}

func (f *frame) body() *story.Block {
	if f.kind == passageFrame {
		return &f.passage.Block
	}
	return f.stmt.Body()
}

func (f *frame) implicitChoice() bool {
	c, ok := f.stmt.(*story.Choice)
	return ok && c.Implicit
}

// Option configures a Parser.
type Option func(*Parser)

// WithStartPassage sets the start passage name used unless a Twee2Settings
// passage overrides it.
func WithStartPassage(name string) Option {
	return func(p *Parser) {
		if name != "" {
			p.startName = name
		}
	}
}

// WithFilename records file in every location.
func WithFilename(file string) Option { return func(p *Parser) { p.file = file } }

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.log = l
		}
	}
}

// Parser holds the transient state of one parse. A Parser may be reused
// for several sources, one at a time.
type Parser struct {
	file      string
	startName string
	log       *slog.Logger

	story   *story.Story
	passage *story.Passage
	stack   []*frame
	state   State

	silently           bool
	silentlyLoc        source.Location
	pendingLineHasText bool
}

// New returns a parser configured by opts.
func New(opts ...Option) *Parser {
	p := &Parser{startName: story.DefaultStartPassage}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = applog.WithComponent("parser")
	}
	return p
}

// Parse is shorthand for New(opts...).Parse(src).
func Parse(src string, opts ...Option) *story.Story {
	return New(opts...).Parse(src)
}

// Parse builds a story from src. Problems in the markup never abort the
// parse; they are collected in the returned story's Errors.
func (p *Parser) Parse(src string) *story.Story {
	p.story = story.New()
	p.story.StartPassageName = p.startName
	p.passage = nil
	p.stack = nil
	p.state = Normal
	p.resetFlags()

	lexer.Lex(src, p.file, p.handle)
	p.closePassage()
	p.finish()

	p.log.Debug("parsed story",
		slog.String("file", p.file),
		slog.Int("passages", p.story.PassageCount()),
		slog.Int("words", p.story.WordCount),
		slog.Int("errors", len(p.story.Errors)))
	return p.story
}

func (p *Parser) handle(tok lexer.Token) {
	switch tok.Kind {
	case lexer.Passage:
		p.openPassage(tok)
		return
	case lexer.Newline:
		if p.passage != nil {
			p.passage.Raw = append(p.passage.Raw, tok.Text)
		}
	}
	if p.state == SkippingAfterError {
		return
	}
	if err := p.dispatch(tok); err != nil {
		p.fail(err)
	}
}

func (p *Parser) dispatch(tok lexer.Token) *source.Error {
	switch tok.Kind {
	case lexer.Comment:
		return nil
	case lexer.Newline:
		p.lineBreak(tok.Location)
		return nil
	case lexer.Error:
		return tok.Err()
	}
	if p.passage == nil {
		return source.Errorf(source.TextOutsidePassage, tok.Location, "Found content before the first passage header")
	}
	switch tok.Kind {
	case lexer.Text:
		return p.text(tok)
	case lexer.Link:
		return p.link(tok)
	case lexer.Macro:
		return p.macro(tok)
	}
	panic(fmt.Sprintf("parser: unexpected token %v", tok))
}

// fail records err and skips the rest of the passage.
func (p *Parser) fail(err *source.Error) {
	p.story.AddError(err)
	if len(p.stack) > 1 {
		p.stack = p.stack[:1]
	}
	p.resetFlags()
	p.state = SkippingAfterError
}

func (p *Parser) resetFlags() {
	p.silently = false
	p.silentlyLoc = source.Location{}
	p.pendingLineHasText = false
}

func (p *Parser) openPassage(tok lexer.Token) {
	p.closePassage()
	ps := &story.Passage{
		Name:     tok.Name,
		Tags:     tok.Tags,
		Position: tok.Position,
		Location: tok.Location,
	}
	if prev := p.story.AddPassage(ps); prev != nil {
		p.story.AddError(source.Errorf(source.DuplicatePassageName, tok.Location,
			fmt.Sprintf("Passage %q is already defined at line %d", tok.Name, prev.Location.FileLine)))
	}
	p.passage = ps
	p.stack = []*frame{{kind: passageFrame, passage: ps}}
	p.state = Normal
	p.resetFlags()
}

// closePassage reports constructs left open and trims trailing blank lines
// from the passage source.
func (p *Parser) closePassage() {
	if p.passage == nil {
		return
	}
	raw := p.passage.Raw
	for len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}
	p.passage.Raw = raw

	if p.state != SkippingAfterError {
		for _, f := range p.stack[1:] {
			if f.implicitChoice() {
				continue
			}
			p.story.AddError(unmatched(f))
		}
		if p.silently {
			p.story.AddError(source.Errorf(source.UnmatchedSilently, p.silentlyLoc, "Missing <<endsilently>>"))
		}
	}
	p.stack = nil
	p.passage = nil
	p.resetFlags()
}

func unmatched(f *frame) *source.Error {
	loc := f.stmt.Loc()
	switch f.kind {
	case ifFrame:
		return source.Errorf(source.UnmatchedIf, loc, "Missing <<endif>>")
	case delayFrame:
		return source.Errorf(source.UnmatchedDelay, loc, "Missing <<enddelay>>")
	case choiceFrame:
		return source.Errorf(source.UnmatchedChoice, loc, "Missing <<endchoice>>")
	case promptFrame:
		return source.Errorf(source.UnmatchedPrompt, loc, "Missing <<endprompt>>")
	}
	panic(fmt.Sprintf("parser: no closer for %s frame", frameNames[f.kind]))
}

func (p *Parser) top() *frame { return p.stack[len(p.stack)-1] }

func (p *Parser) current() *story.Block { return p.top().body() }

func (p *Parser) push(kind frameKind, st story.Nester) {
	p.current().Append(st)
	p.stack = append(p.stack, &frame{kind: kind, stmt: st})
	p.settle()
}

func (p *Parser) pop() *frame {
	f := p.top()
	if f.kind == passageFrame {
		panic("parser: popped the passage frame")
	}
	p.stack = p.stack[:len(p.stack)-1]
	p.settle()
	return f
}

// settle derives the state from the innermost open construct.
func (p *Parser) settle() {
	f := p.top()
	switch {
	case f.kind == delayFrame:
		p.state = InsideDelay
	case f.kind == choiceFrame && f.implicitChoice():
		p.state = InsideImplicitChoice
	case f.kind == choiceFrame:
		p.state = InsideExplicitChoice
	default:
		p.state = Normal
	}
}

func (p *Parser) inside(kind frameKind) bool {
	for _, f := range p.stack {
		if f.kind == kind {
			return true
		}
	}
	return false
}

func (p *Parser) inExplicitChoice() bool {
	for _, f := range p.stack {
		if f.kind == choiceFrame && !f.implicitChoice() {
			return true
		}
	}
	return false
}

// closeImplicitChoice pops an implicit choice left open on this line.
func (p *Parser) closeImplicitChoice() {
	for p.top().implicitChoice() {
		p.pop()
	}
}

// lineBreak ends a source line: a lone link stays a link, an implicit
// choice closes, and a line that produced output gets a LineBreak.
func (p *Parser) lineBreak(loc source.Location) {
	if p.passage == nil {
		return
	}
	if p.state == JustSawLink {
		p.settle()
	}
	p.closeImplicitChoice()
	if p.pendingLineHasText {
		p.current().Append(&story.LineBreak{Location: loc})
		p.pendingLineHasText = false
	}
}

func (p *Parser) text(tok lexer.Token) *source.Error {
	if p.silently {
		return nil
	}
	if p.state == JustSawLink {
		p.promote()
	}
	if p.inside(choiceFrame) {
		return nil
	}
	p.current().Append(&story.Text{Location: tok.Location, Text: tok.Text})
	p.pendingLineHasText = true
	return nil
}

// promote wraps the lone link just appended in a new implicit choice.
func (p *Parser) promote() {
	blk := p.current()
	l, ok := blk.Last().(*story.Link)
	if !ok {
		p.settle()
		return
	}
	blk.Pop()
	c := &story.Choice{Location: l.Location, Implicit: true}
	c.Block.Append(l)
	p.push(choiceFrame, c)
}

// target parses a link-style target: "$..." is evaluated at run time,
// anything else names a passage.
func (p *Parser) target(name string, loc source.Location) story.Target {
	if strings.HasPrefix(name, "$") {
		return story.Target{Expr: expression.New(name, loc)}
	}
	return story.Target{Passage: name}
}

func (p *Parser) link(tok lexer.Token) *source.Error {
	l := &story.Link{Location: tok.Location, Target: p.target(tok.Target, tok.Location), Text: tok.Text}
	if p.inside(delayFrame) {
		return source.Errorf(source.InvalidNesting, tok.Location, "Links are not allowed inside <<delay>>")
	}
	if m := delayLinkRe.FindStringSubmatch(tok.Text); m != nil {
		if p.inside(choiceFrame) {
			return source.Errorf(source.InvalidNesting, tok.Location, "Delayed links are not allowed inside a choice")
		}
		d, err := story.ParseDuration(m[1])
		if err != nil {
			return source.Errorf(source.InvalidDelaySyntax, tok.Location, err.Error())
		}
		if p.state == JustSawLink {
			p.settle()
		}
		l.Text = ""
		p.current().Append(&story.Delay{Location: tok.Location, Duration: d})
		p.current().Append(l)
		return nil
	}
	switch {
	case p.inside(choiceFrame):
		p.current().Append(l)
	case p.state == JustSawLink:
		p.promote()
		p.current().Append(l)
	default:
		p.current().Append(l)
		p.state = JustSawLink
	}
	return nil
}
