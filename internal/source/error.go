/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package source

import "strings"

// ErrorKind classifies a story error.
type ErrorKind int

const (
	UnknownError ErrorKind = iota

	// lexical
	InvalidLinkSyntax
	InvalidMacroSyntax
	InvalidChoiceSyntax
	InvalidDelaySyntax

	// structural
	DuplicatePassageName
	TextOutsidePassage
	UnmatchedIf
	UnmatchedDelay
	UnmatchedChoice
	UnmatchedPrompt
	UnmatchedSilently
	DuplicateElse
	InvalidNesting
	MissingExpression
	UnexpectedExpression
	UnrecognizedMacro

	// semantic
	InvalidExpression
	UndefinedVariable
	MissingPassage
	UnreferencedPassage
	InvalidTwee2Settings

	// runtime
	RuntimeError
)

var kindNames = map[ErrorKind]string{
	UnknownError:         "UnknownError",
	InvalidLinkSyntax:    "InvalidLinkSyntax",
	InvalidMacroSyntax:   "InvalidMacroSyntax",
	InvalidChoiceSyntax:  "InvalidChoiceSyntax",
	InvalidDelaySyntax:   "InvalidDelaySyntax",
	DuplicatePassageName: "DuplicatePassageName",
	TextOutsidePassage:   "TextOutsidePassage",
	UnmatchedIf:          "UnmatchedIf",
	UnmatchedDelay:       "UnmatchedDelay",
	UnmatchedChoice:      "UnmatchedChoice",
	UnmatchedPrompt:      "UnmatchedPrompt",
	UnmatchedSilently:    "UnmatchedSilently",
	DuplicateElse:        "DuplicateElse",
	InvalidNesting:       "InvalidNesting",
	MissingExpression:    "MissingExpression",
	UnexpectedExpression: "UnexpectedExpression",
	UnrecognizedMacro:    "UnrecognizedMacro",
	InvalidExpression:    "InvalidExpression",
	UndefinedVariable:    "UndefinedVariable",
	MissingPassage:       "MissingPassage",
	UnreferencedPassage:  "UnreferencedPassage",
	InvalidTwee2Settings: "InvalidTwee2Settings",
	RuntimeError:         "RuntimeError",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UnknownError"
}

// MarshalText renders the kind by name in JSON and YAML output.
func (k ErrorKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// LineSource resolves raw markup lines for error context display.
type LineSource interface {
	RawLine(loc Location) (string, bool)
}

// Error is a problem found in story markup, or raised while playing it.
// Location is nil for errors that are not tied to a line, such as a
// missing start passage.
type Error struct {
	Kind     ErrorKind
	Location *Location
	Message  string
	Err      error
}

// Errorf builds an Error anchored at loc.
func Errorf(kind ErrorKind, loc Location, message string) *Error {
	l := loc
	return &Error{Kind: kind, Location: &l, Message: message}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Location != nil {
		b.WriteString(" at ")
		b.WriteString(e.Location.String())
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// SourceLine returns the raw markup line the error points at, if any.
func (e *Error) SourceLine(src LineSource) (string, bool) {
	if e == nil || e.Location == nil || src == nil {
		return "", false
	}
	return src.RawLine(*e.Location)
}
