/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lexer

import (
	"fmt"

	"tweegee/internal/source"
	"tweegee/internal/story"
)

// Kind identifies a token type.
type Kind int

const (
	Passage Kind = iota
	Text
	Link
	Macro
	Comment
	Newline
	Error
)

var kindNames = [...]string{"Passage", "Text", "Link", "Macro", "Comment", "Newline", "Error"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is one lexical element of story markup. Which fields are set
// depends on Kind:
//
//	Passage  Name, Tags, Position
//	Text     Text
//	Link     Target, Text (display text, empty when absent)
//	Macro    Name (empty for a bare expression), Args
//	Comment  Text
//	Newline  Text (the whole original line)
//	Error    ErrKind, Text (message)
type Token struct {
	Kind     Kind
	Location source.Location

	Name     string
	Text     string
	Target   string
	Args     string
	Tags     []string
	Position *story.Position
	ErrKind  source.ErrorKind
}

func (t Token) String() string {
	switch t.Kind {
	case Passage:
		return fmt.Sprintf("Passage(%s %v)", t.Name, t.Tags)
	case Link:
		if t.Text != "" {
			return fmt.Sprintf("Link(%s|%s)", t.Text, t.Target)
		}
		return fmt.Sprintf("Link(%s)", t.Target)
	case Macro:
		return fmt.Sprintf("Macro(%s %s)", t.Name, t.Args)
	case Error:
		return fmt.Sprintf("Error(%s: %s)", t.ErrKind, t.Text)
	default:
		return fmt.Sprintf("%s(%q)", t.Kind, t.Text)
	}
}

// Err converts an Error token into a story error at the token's location.
func (t Token) Err() *source.Error {
	return source.Errorf(t.ErrKind, t.Location, t.Text)
}
