/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package lexer turns story markup into a flat token stream. Each line is
// either a passage header or is scanned left to right for text, links,
// macros and comments. Every line ends with exactly one Newline token
// carrying the original line.
package lexer

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"tweegee/internal/source"
	"tweegee/internal/story"
)

// headerRe matches ":: Name [tag1 tag2] <x,y>" after leading whitespace.
var headerRe = regexp.MustCompile(`^\s*::([^\[<]+)\s*(?:\[\s*(.*)\s*\])?\s*(?:<\s*(\d+)\s*,\s*(\d+)\s*>)?`)

type scanState int

const (
	inText scanState = iota
	inLink
	inMacro
	inComment
)

// Lex lexes src line by line and calls emit for each token in order.
// file is recorded in every token location and may be empty.
func Lex(src, file string, emit func(Token)) {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	loc := source.Location{File: file, FileLine: 1}
	for _, line := range strings.Split(src, "\n") {
		lexLine(line, &loc, emit)
		emit(Token{Kind: Newline, Location: loc, Text: line})
		loc.FileLine++
		loc.PassageLine++
	}
}

// LexFragment lexes s as if it were a standalone line found at loc. The
// trailing Newline token is only emitted when emitNewline is set.
func LexFragment(s string, loc source.Location, emitNewline bool, emit func(Token)) {
	lexLine(s, &loc, emit)
	if emitNewline {
		emit(Token{Kind: Newline, Location: loc, Text: s})
	}
}

// Tokens collects every token of src. Convenient for tools and tests.
func Tokens(src, file string) []Token {
	var out []Token
	Lex(src, file, func(t Token) { out = append(out, t) })
	return out
}

func lexLine(line string, loc *source.Location, emit func(Token)) {
	if m := headerRe.FindStringSubmatch(line); m != nil {
		name := strings.TrimSpace(m[1])
		tok := Token{Kind: Passage, Name: name, Tags: strings.Fields(m[2])}
		if m[3] != "" && m[4] != "" {
			x, errX := strconv.Atoi(m[3])
			y, errY := strconv.Atoi(m[4])
			if errX == nil && errY == nil {
				tok.Position = &story.Position{X: x, Y: y}
			}
		}
		loc.Passage = name
		loc.PassageLine = 0
		tok.Location = *loc
		emit(tok)
		return
	}
	text := strings.TrimSpace(line)
	if text != "" {
		scan(text, *loc, emit)
	}
}

// scan runs the per-line state machine over a trimmed, non-empty line.
// It stops at the first error token; the rest of the line is dropped.
func scan(text string, loc source.Location, emit func(Token)) {
	rs := []rune(text)
	var acc strings.Builder
	state := inText

	flush := func() {
		if acc.Len() > 0 {
			emit(Token{Kind: Text, Location: loc, Text: acc.String()})
		}
		acc.Reset()
	}

	for i := 0; i < len(rs); i++ {
		c := rs[i]
		if i+1 < len(rs) {
			n := rs[i+1]
			switch {
			case state == inText && c == '[' && n == '[':
				flush()
				state = inLink
				i++
				continue
			case state == inLink && c == ']' && n == ']':
				tok := linkToken(acc.String(), loc)
				emit(tok)
				if tok.Kind == Error {
					return
				}
				acc.Reset()
				state = inText
				i++
				continue
			case state == inText && c == '<' && n == '<':
				flush()
				state = inMacro
				i++
				continue
			case state == inMacro && c == '>' && n == '>':
				tok := macroToken(acc.String(), loc)
				emit(tok)
				if tok.Kind == Error {
					return
				}
				acc.Reset()
				state = inText
				i++
				continue
			case state == inText && c == '/' && n == '/':
				trimmed := strings.TrimRightFunc(acc.String(), unicode.IsSpace)
				acc.Reset()
				acc.WriteString(trimmed)
				flush()
				state = inComment
				i++
				continue
			}
		}
		acc.WriteRune(c)
	}

	switch state {
	case inText:
		flush()
	case inComment:
		emit(Token{Kind: Comment, Location: loc, Text: strings.TrimSpace(acc.String())})
	case inLink:
		emit(errorToken(source.InvalidLinkSyntax, loc, "Invalid link syntax. Missing ]]"))
	case inMacro:
		emit(errorToken(source.InvalidMacroSyntax, loc, "Invalid macro syntax. Missing >>"))
	}
}

// linkToken splits "text|target" or "target".
func linkToken(content string, loc source.Location) Token {
	parts := strings.Split(content, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	switch len(parts) {
	case 1:
		return Token{Kind: Link, Location: loc, Target: parts[0]}
	case 2:
		return Token{Kind: Link, Location: loc, Target: parts[1], Text: parts[0]}
	default:
		return errorToken(source.InvalidLinkSyntax, loc, "Invalid link syntax. Too many | symbols")
	}
}

// macroToken classifies macro content. A name is a leading run that starts
// with a letter or '/'; "=expr" is the print shorthand; anything else is a
// bare expression.
func macroToken(content string, loc source.Location) Token {
	m := strings.TrimSpace(content)
	if m == "" {
		return errorToken(source.InvalidMacroSyntax, loc, "Found empty macro")
	}
	first := []rune(m)[0]
	switch {
	case unicode.IsLetter(first) || first == '/':
		name, args := m, ""
		if i := strings.IndexFunc(m, unicode.IsSpace); i >= 0 {
			name, args = m[:i], strings.TrimSpace(m[i:])
		}
		return Token{Kind: Macro, Location: loc, Name: name, Args: args}
	case first == '=':
		return Token{Kind: Macro, Location: loc, Name: "=", Args: strings.TrimSpace(m[1:])}
	default:
		return Token{Kind: Macro, Location: loc, Args: m}
	}
}

func errorToken(kind source.ErrorKind, loc source.Location, msg string) Token {
	return Token{Kind: Error, Location: loc, ErrKind: kind, Text: msg}
}
