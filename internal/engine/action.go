/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"fmt"
	"strings"
)

// Kind identifies an action variant.
type Kind int

const (
	Passage Kind = iota
	Message
	Delay
	Choice
	Prompt
	Rewind
	End
)

var kindNames = [...]string{"Passage", "Message", "Delay", "Choice", "Prompt", "Rewind", "End"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Candidate is one alternative offered by a Choice action.
type Candidate struct {
	Target string `json:"target"`
	Text   string `json:"text,omitempty"`
}

// Label is the text to show the player for this candidate.
func (c Candidate) Label() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Target
}

// Action is one narrative step produced by the engine. Text is the passage
// name for Passage, the target for Rewind, and the display text for
// Message, Delay and Prompt.
type Action struct {
	Kind    Kind        `json:"kind"`
	Text    string      `json:"text,omitempty"`
	Seconds int         `json:"seconds,omitempty"`
	Choices []Candidate `json:"choices,omitempty"`
}

func PassageAction(name string) Action { return Action{Kind: Passage, Text: name} }

func MessageAction(text string) Action { return Action{Kind: Message, Text: text} }

func DelayAction(text string, seconds int) Action {
	return Action{Kind: Delay, Text: text, Seconds: seconds}
}

func ChoiceAction(choices ...Candidate) Action { return Action{Kind: Choice, Choices: choices} }

func PromptAction(text string) Action { return Action{Kind: Prompt, Text: text} }

func RewindAction(target string) Action { return Action{Kind: Rewind, Text: target} }

func EndAction() Action { return Action{Kind: End} }

func (a Action) String() string {
	switch a.Kind {
	case Delay:
		return fmt.Sprintf("Delay(%q, %ds)", a.Text, a.Seconds)
	case Choice:
		parts := make([]string, len(a.Choices))
		for i, c := range a.Choices {
			if c.Text != "" {
				parts[i] = c.Text + "|" + c.Target
			} else {
				parts[i] = c.Target
			}
		}
		return "Choice(" + strings.Join(parts, ", ") + ")"
	case End:
		return "End"
	default:
		return fmt.Sprintf("%s(%q)", a.Kind, a.Text)
	}
}

// Equal reports whether two actions carry the same content.
func (a Action) Equal(b Action) bool {
	if a.Kind != b.Kind || a.Text != b.Text || a.Seconds != b.Seconds || len(a.Choices) != len(b.Choices) {
		return false
	}
	for i := range a.Choices {
		if a.Choices[i] != b.Choices[i] {
			return false
		}
	}
	return true
}
