/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package lexer

import (
	"reflect"
	"strings"
	"testing"

	"tweegee/internal/source"
	"tweegee/internal/story"
)

// simplified token shape for comparisons
type tk struct {
	Kind   Kind
	Name   string
	Text   string
	Target string
	Args   string
}

func strip(toks []Token) []tk {
	out := make([]tk, 0, len(toks))
	for _, t := range toks {
		out = append(out, tk{Kind: t.Kind, Name: t.Name, Text: t.Text, Target: t.Target, Args: t.Args})
	}
	return out
}

func text(s string) tk { return tk{Kind: Text, Text: s} }
func nl(s string) tk { return tk{Kind: Newline, Text: s} }
func link(target, display string) tk { return tk{Kind: Link, Target: target, Text: display} }
func macro(name, args string) tk { return tk{Kind: Macro, Name: name, Args: args} }
func comment(s string) tk { return tk{Kind: Comment, Text: s} }
func passage(name string) tk { return tk{Kind: Passage, Name: name} }

func checkTokens(t *testing.T, src string, want []tk) {
	t.Helper()
	got := strip(Tokens(src, ""))
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d:\n%v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBasicLexer(t *testing.T) {
	src := strings.Join([]string{
		`:: Start [tag tag2] <5,25>`,
		`Some normal text`,
		`Brackets, like I <3 U, and/or [this] thing`,
		`Text [[link]] text`,
		`<<set $i = 5>>`,
		`<<if $i > 0 >>I have <<$i>> items and costs <<3 * $i>> dollars<<else>>No items<<endif>>`,
		`[[Choice 1|choice_1]] | [[ Choice 2 | choice_2 ]]`,
		`// Comment is ignored`,
	}, "\n")
	checkTokens(t, src, []tk{
		passage("Start"),
		nl(`:: Start [tag tag2] <5,25>`),
		text("Some normal text"),
		nl("Some normal text"),
		text("Brackets, like I <3 U, and/or [this] thing"),
		nl("Brackets, like I <3 U, and/or [this] thing"),
		text("Text "),
		link("link", ""),
		text(" text"),
		nl("Text [[link]] text"),
		macro("set", "$i = 5"),
		nl("<<set $i = 5>>"),
		macro("if", "$i > 0"),
		text("I have "),
		macro("", "$i"),
		text(" items and costs "),
		macro("", "3 * $i"),
		text(" dollars"),
		macro("else", ""),
		text("No items"),
		macro("endif", ""),
		nl(`<<if $i > 0 >>I have <<$i>> items and costs <<3 * $i>> dollars<<else>>No items<<endif>>`),
		link("choice_1", "Choice 1"),
		text(" | "),
		link("choice_2", "Choice 2"),
		nl(`[[Choice 1|choice_1]] | [[ Choice 2 | choice_2 ]]`),
		comment("Comment is ignored"),
		nl("// Comment is ignored"),
	})
}

func TestWhitespaceAndNesting(t *testing.T) {
	src := strings.Join([]string{
		`Text <<if true>>  two spaces  <<else>>trailing space  <<endif>>`,
		`    Say "<<$text>>" and wave.`,
		`<<else>>   // whitespace before comment ignored`,
		`Text // then a comment`,
		`[[Allow << and >> in link|link]]`,
		`<<macro "Allow [[ and ]] in macro">>`,
		`<<=$x + 1>>`,
		``,
	}, "\n")
	checkTokens(t, src, []tk{
		text("Text "),
		macro("if", "true"),
		text("  two spaces  "),
		macro("else", ""),
		text("trailing space  "),
		macro("endif", ""),
		nl(`Text <<if true>>  two spaces  <<else>>trailing space  <<endif>>`),
		text(`Say "`),
		macro("", "$text"),
		text(`" and wave.`),
		nl(`    Say "<<$text>>" and wave.`),
		macro("else", ""),
		comment("whitespace before comment ignored"),
		nl(`<<else>>   // whitespace before comment ignored`),
		text("Text"),
		comment("then a comment"),
		nl("Text // then a comment"),
		link("link", "Allow << and >> in link"),
		nl("[[Allow << and >> in link|link]]"),
		macro("macro", `"Allow [[ and ]] in macro"`),
		nl(`<<macro "Allow [[ and ]] in macro">>`),
		macro("=", "$x + 1"),
		nl("<<=$x + 1>>"),
		nl(""),
	})
}

func TestPassageHeader(t *testing.T) {
	toks := Tokens("  ::Start [a  b] <3, 4>\nline\n::Next", "story.tw")
	h := toks[0]
	if h.Kind != Passage || h.Name != "Start" {
		t.Fatalf("unexpected header token %v", h)
	}
	if !reflect.DeepEqual(h.Tags, []string{"a", "b"}) {
		t.Fatalf("tags = %v", h.Tags)
	}
	if h.Position == nil || *h.Position != (story.Position{X: 3, Y: 4}) {
		t.Fatalf("position = %v", h.Position)
	}
	want := source.Location{File: "story.tw", Passage: "Start", FileLine: 1, PassageLine: 0}
	if h.Location != want {
		t.Fatalf("location = %+v", h.Location)
	}
	line := toks[2]
	if line.Location.FileLine != 2 || line.Location.PassageLine != 1 || line.Location.Passage != "Start" {
		t.Fatalf("body location = %+v", line.Location)
	}
	next := toks[len(toks)-2]
	if next.Kind != Passage || next.Name != "Next" || next.Location.FileLine != 3 || next.Location.PassageLine != 0 {
		t.Fatalf("second header = %+v", next)
	}
	if next.Position != nil || len(next.Tags) != 0 {
		t.Fatalf("second header should have no tags or position")
	}
}

func TestLexErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		kind source.ErrorKind
		line int
	}{
		{"missing link close", "Missing [[Choice", source.InvalidLinkSyntax, 1},
		{"too many bars", "[[OK]]\n[[OK|Also]]\n[[Too|many|words]]", source.InvalidLinkSyntax, 3},
		{"missing macro close", "<<if $ok>>\nMissing <<if", source.InvalidMacroSyntax, 2},
		{"empty macro", "<< >>", source.InvalidMacroSyntax, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var errs []Token
			for _, tok := range Tokens(c.src, "") {
				if tok.Kind == Error {
					errs = append(errs, tok)
				}
			}
			if len(errs) != 1 {
				t.Fatalf("got %d error tokens, want 1", len(errs))
			}
			if errs[0].ErrKind != c.kind || errs[0].Location.FileLine != c.line {
				t.Fatalf("got %s at line %d, want %s at line %d", errs[0].ErrKind, errs[0].Location.FileLine, c.kind, c.line)
			}
		})
	}
}

func TestErrorDropsRestOfLineButKeepsNewline(t *testing.T) {
	checkTokens(t, "a [[x|y|z]] b <<c>>", []tk{
		text("a "),
		{Kind: Error, Text: "Invalid link syntax. Too many | symbols"},
		nl("a [[x|y|z]] b <<c>>"),
	})
}

func TestLexFragment(t *testing.T) {
	loc := source.Location{Passage: "P", FileLine: 7, PassageLine: 2}
	var got []Token
	LexFragment("[[a]] | [[B|b]]", loc, false, func(tok Token) { got = append(got, tok) })
	want := []tk{link("a", ""), text(" | "), link("b", "B")}
	if !reflect.DeepEqual(strip(got), want) {
		t.Fatalf("fragment tokens = %v", strip(got))
	}
	for _, tok := range got {
		if tok.Location != loc {
			t.Fatalf("fragment token location = %+v", tok.Location)
		}
	}

	got = nil
	LexFragment("[[a]]", loc, true, func(tok Token) { got = append(got, tok) })
	if len(got) != 2 || got[1].Kind != Newline {
		t.Fatalf("expected a trailing newline token, got %v", got)
	}
}
