/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package parser

import (
	"fmt"
	"regexp"
	"strings"

	"tweegee/internal/expression"
	"tweegee/internal/lexer"
	"tweegee/internal/source"
	"tweegee/internal/story"
)

var (
	setRe       = regexp.MustCompile(`^(\$[A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)
	quotedRe    = regexp.MustCompile(`^(?:"([^"]*)"|'([^']*)')$`)
	delayLinkRe = regexp.MustCompile(`^delay\s+(.+)$`)
)

func (p *Parser) macro(tok lexer.Token) *source.Error {
	name := tok.Name
	switch name {
	case "", "=", "print":
		return p.print(tok)
	case "choice":
		if tok.Args != "" {
			return p.choiceArgs(tok)
		}
	}
	if p.state == JustSawLink {
		p.settle()
	}
	switch name {
	case "if":
		return p.ifMacro(tok)
	case "elseif", "else":
		return p.elseMacro(tok)
	case "endif", "/if":
		return p.end(tok, ifFrame)
	case "delay":
		return p.delayMacro(tok)
	case "enddelay", "/delay":
		return p.end(tok, delayFrame)
	case "choice":
		return p.choiceMacro(tok)
	case "endchoice", "/choice":
		return p.end(tok, choiceFrame)
	case "prompt":
		return p.promptMacro(tok)
	case "endprompt", "/prompt":
		return p.end(tok, promptFrame)
	case "set":
		return p.set(tok)
	case "include", "display":
		t, err := p.quotedTarget(tok)
		if err != nil {
			return err
		}
		p.current().Append(&story.Include{Location: tok.Location, Target: t})
		return nil
	case "rewind":
		t, err := p.quotedTarget(tok)
		if err != nil {
			return err
		}
		p.current().Append(&story.Rewind{Location: tok.Location, Target: t})
		return nil
	case "silently":
		if err := noArgs(tok); err != nil {
			return err
		}
		if p.silently {
			return source.Errorf(source.InvalidNesting, tok.Location, "<<silently>> is already active")
		}
		p.silently = true
		p.silentlyLoc = tok.Location
		return nil
	case "endsilently", "/silently":
		if err := noArgs(tok); err != nil {
			return err
		}
		if !p.silently {
			return source.Errorf(source.UnmatchedSilently, tok.Location, "Found <<"+name+">> without <<silently>>")
		}
		p.silently = false
		return nil
	case "textinput", "d", "endd", "/d":
		return nil
	}
	return source.Errorf(source.UnrecognizedMacro, tok.Location, fmt.Sprintf("Unrecognized macro: <<%s>>", name))
}

func noArgs(tok lexer.Token) *source.Error {
	if tok.Args != "" {
		return source.Errorf(source.UnexpectedExpression, tok.Location,
			fmt.Sprintf("Unexpected expression in <<%s>>: %s", tok.Name, tok.Args))
	}
	return nil
}

func needArgs(tok lexer.Token, what string) *source.Error {
	if tok.Args == "" {
		name := tok.Name
		if name == "" {
			name = "expression"
		}
		return source.Errorf(source.MissingExpression, tok.Location,
			fmt.Sprintf("<<%s>> requires %s", name, what))
	}
	return nil
}

func (p *Parser) print(tok lexer.Token) *source.Error {
	if err := needArgs(tok, "an expression"); err != nil {
		return err
	}
	if p.silently {
		return nil
	}
	if p.state == JustSawLink {
		p.promote()
	}
	if p.inside(choiceFrame) {
		return nil
	}
	p.current().Append(&story.Print{Location: tok.Location, Expr: expression.New(tok.Args, tok.Location)})
	p.pendingLineHasText = true
	return nil
}

func (p *Parser) ifMacro(tok lexer.Token) *source.Error {
	if err := needArgs(tok, "a condition"); err != nil {
		return err
	}
	p.push(ifFrame, story.NewIf(tok.Location, expression.New(tok.Args, tok.Location)))
	return nil
}

func (p *Parser) elseMacro(tok lexer.Token) *source.Error {
	var cond *expression.Expression
	if tok.Name == "elseif" {
		if err := needArgs(tok, "a condition"); err != nil {
			return err
		}
		cond = expression.New(tok.Args, tok.Location)
	} else if err := noArgs(tok); err != nil {
		return err
	}
	f, err := p.innermost(tok, ifFrame)
	if err != nil {
		return err
	}
	ifs := f.stmt.(*story.If)
	if ifs.HasElse() {
		return source.Errorf(source.DuplicateElse, tok.Location,
			fmt.Sprintf("Found <<%s>> after <<else>>", tok.Name))
	}
	ifs.AddClause(tok.Location, cond)
	return nil
}

func (p *Parser) delayMacro(tok lexer.Token) *source.Error {
	if err := needArgs(tok, "a duration"); err != nil {
		return err
	}
	d, err := story.ParseDuration(tok.Args)
	if err != nil {
		return source.Errorf(source.InvalidDelaySyntax, tok.Location, err.Error())
	}
	p.push(delayFrame, &story.Delay{Location: tok.Location, Duration: d})
	return nil
}

func (p *Parser) choiceMacro(tok lexer.Token) *source.Error {
	if p.inside(choiceFrame) || p.inside(delayFrame) || p.inside(promptFrame) {
		return source.Errorf(source.InvalidNesting, tok.Location, "<<choice>> cannot be nested inside <<choice>>, <<delay>> or <<prompt>>")
	}
	p.push(choiceFrame, &story.Choice{Location: tok.Location})
	return nil
}

// choiceArgs handles <<choice [[link]]>>. The argument is lexed again on
// its own and may only contain links, with nothing between them.
func (p *Parser) choiceArgs(tok lexer.Token) *source.Error {
	if p.inside(delayFrame) || p.inside(promptFrame) {
		return source.Errorf(source.InvalidNesting, tok.Location, "<<choice>> cannot be nested inside <<delay>> or <<prompt>>")
	}
	if !p.inside(choiceFrame) {
		if p.state == JustSawLink {
			p.promote()
		} else {
			p.push(choiceFrame, &story.Choice{Location: tok.Location, Implicit: true})
		}
	}
	var failure *source.Error
	lexer.LexFragment(tok.Args, tok.Location, false, func(t lexer.Token) {
		if failure != nil {
			return
		}
		switch {
		case t.Kind == lexer.Link:
			failure = p.link(t)
		default:
			failure = source.Errorf(source.InvalidChoiceSyntax, tok.Location,
				fmt.Sprintf("<<choice>> only accepts links, found: %s", strings.TrimSpace(t.Text)))
		}
	})
	return failure
}

func (p *Parser) promptMacro(tok lexer.Token) *source.Error {
	if err := noArgs(tok); err != nil {
		return err
	}
	if p.inside(delayFrame) || p.inExplicitChoice() {
		return source.Errorf(source.InvalidNesting, tok.Location, "<<prompt>> cannot be nested inside <<delay>> or <<choice>>")
	}
	p.push(promptFrame, &story.Prompt{Location: tok.Location})
	return nil
}

func (p *Parser) set(tok lexer.Token) *source.Error {
	m := setRe.FindStringSubmatch(tok.Args)
	if m == nil {
		return source.Errorf(source.MissingExpression, tok.Location, "Expected <<set $name = expression>>")
	}
	p.current().Append(&story.Set{Location: tok.Location, Variable: m[1], Expr: expression.New(m[2], tok.Location)})
	return nil
}

// quotedTarget parses the argument of include or rewind.
func (p *Parser) quotedTarget(tok lexer.Token) (story.Target, *source.Error) {
	if err := needArgs(tok, "a passage name"); err != nil {
		return story.Target{}, err
	}
	if strings.HasPrefix(tok.Args, "$") {
		return p.target(tok.Args, tok.Location), nil
	}
	m := quotedRe.FindStringSubmatch(tok.Args)
	if m == nil {
		return story.Target{}, source.Errorf(source.InvalidMacroSyntax, tok.Location,
			fmt.Sprintf("<<%s>> expects a quoted passage name or a $variable, found: %s", tok.Name, tok.Args))
	}
	return story.Target{Passage: m[1] + m[2]}, nil
}

// end closes the innermost construct of kind.
func (p *Parser) end(tok lexer.Token, kind frameKind) *source.Error {
	if err := noArgs(tok); err != nil {
		return err
	}
	f, err := p.innermost(tok, kind)
	if err != nil {
		return err
	}
	if kind == choiceFrame && f.implicitChoice() {
		return source.Errorf(source.UnmatchedChoice, tok.Location, "Found <<"+tok.Name+">> without <<choice>>")
	}
	p.pop()
	return nil
}

// innermost returns the top frame after closing any implicit choice, and
// checks that it is of kind.
func (p *Parser) innermost(tok lexer.Token, kind frameKind) (*frame, *source.Error) {
	if kind != choiceFrame {
		p.closeImplicitChoice()
	}
	f := p.top()
	if f.kind == kind {
		return f, nil
	}
	if p.inside(kind) {
		return nil, source.Errorf(source.InvalidNesting, tok.Location,
			fmt.Sprintf("Found <<%s>> while <<%s>> is still open", tok.Name, frameNames[f.kind]))
	}
	var k source.ErrorKind
	switch kind {
	case ifFrame:
		k = source.UnmatchedIf
	case delayFrame:
		k = source.UnmatchedDelay
	case choiceFrame:
		k = source.UnmatchedChoice
	case promptFrame:
		k = source.UnmatchedPrompt
	}
	return nil, source.Errorf(k, tok.Location,
		fmt.Sprintf("Found <<%s>> without <<%s>>", tok.Name, frameNames[kind]))
}
