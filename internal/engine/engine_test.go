/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"errors"
	"strings"
	"testing"

	"tweegee/internal/parser"
	"tweegee/internal/source"
	"tweegee/internal/story"
)

func parse(t *testing.T, ls ...string) *story.Story {
	t.Helper()
	s := parser.Parse(strings.Join(ls, "\n"))
	if len(s.Errors) != 0 {
		t.Fatalf("errors while parsing: %v", s.Errors)
	}
	return s
}

// play pulls actions until End, failing on errors and on choices.
func play(t *testing.T, e *Engine) []Action {
	t.Helper()
	var out []Action
	for i := 0; i < 100; i++ {
		a, err := e.Next()
		if err != nil {
			t.Fatalf("Next after %v: %v", out, err)
		}
		out = append(out, a)
		if a.Kind == End || a.Kind == Choice {
			return out
		}
	}
	t.Fatalf("story did not finish: %v", out)
	return nil
}

func withoutPassages(in []Action) []Action {
	var out []Action
	for _, a := range in {
		if a.Kind != Passage {
			out = append(out, a)
		}
	}
	return out
}

func checkActions(t *testing.T, got []Action, want ...Action) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d actions %v, want %v", len(got), got, want)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("action %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoopOnOneLine(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<set $x=1>>",
		"[[Loop]]",
		"",
		"::Loop",
		"X = <<$x>>",
		"That's <<if $x > 2>>big<<else>>small<<endif>>",
		"<<if $x<4>><<set $x=$x+1>>[[Loop]]<<else>>Done<<endif>>",
	)
	checkActions(t, withoutPassages(play(t, New(s))),
		MessageAction("X = 1"),
		MessageAction("That's small"),
		MessageAction("X = 2"),
		MessageAction("That's small"),
		MessageAction("X = 3"),
		MessageAction("That's big"),
		MessageAction("X = 4"),
		MessageAction("That's big"),
		MessageAction("Done"),
		EndAction(),
	)
}

func TestLoopAcrossLines(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<set $x = 1>>",
		"[[Loop]]",
		"",
		"::Loop",
		"X = <<$x>>",
		"That's <<if $x > 2>>big<<else>>small<<endif>>",
		"<<if $x < 4>>",
		"    <<set $x = $x + 1>>",
		"    [[Loop]]",
		"<<else>>",
		"    Done",
		"<<endif>>",
	)
	got := play(t, New(s))
	if got[0].Kind != Passage || got[0].Text != "Start" || got[1].Text != "Loop" {
		t.Fatalf("expected passage announcements first, got %v", got[:2])
	}
	checkActions(t, withoutPassages(got),
		MessageAction("X = 1"),
		MessageAction("That's small"),
		MessageAction("X = 2"),
		MessageAction("That's small"),
		MessageAction("X = 3"),
		MessageAction("That's big"),
		MessageAction("X = 4"),
		MessageAction("That's big"),
		MessageAction("Done"),
		EndAction(),
	)
}

func TestInclude(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<set $x = 1>>",
		`<<include "showX">>`,
		"<<set $x = 2>>",
		`<<include "showX">>`,
		"Done",
		"",
		"::showX",
		"X = <<$x>>",
	)
	checkActions(t, play(t, New(s)),
		PassageAction("Start"),
		MessageAction("X = 1"),
		MessageAction("X = 2"),
		MessageAction("Done"),
		EndAction(),
	)
}

func TestChoice(t *testing.T) {
	s := parse(t,
		"::Start",
		"Intro line",
		"[[a]] | [[Go b|b]]",
		"::a",
		"Alpha",
		"::b",
		"Beta",
	)
	e := New(s)
	checkActions(t, play(t, e),
		PassageAction("Start"),
		MessageAction("Intro line"),
		ChoiceAction(Candidate{Target: "a"}, Candidate{Target: "b", Text: "Go b"}),
	)
	if e.State() != AwaitingChoice {
		t.Fatalf("state = %s", e.State())
	}
	if _, err := e.Next(); !errors.Is(err, ErrAwaitingChoice) {
		t.Fatalf("Next while awaiting a choice: %v", err)
	}
	err := e.MakeChoice("c")
	if !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("MakeChoice(c) = %v", err)
	}
	if !strings.Contains(err.Error(), "a, b") {
		t.Fatalf("error should list the valid choices: %v", err)
	}
	if err := e.MakeChoice("b"); err != nil {
		t.Fatalf("MakeChoice(b): %v", err)
	}
	if err := e.MakeChoice("b"); !errors.Is(err, ErrNotAwaitingChoice) {
		t.Fatalf("second MakeChoice = %v", err)
	}
	checkActions(t, play(t, e), PassageAction("b"), MessageAction("Beta"), EndAction())
	if a, err := e.Next(); err != nil || a.Kind != End {
		t.Fatalf("End should be absorbing, got %v, %v", a, err)
	}
}

func TestActionsIterator(t *testing.T) {
	s := parse(t,
		"::Start",
		"Pick",
		"<<choice>>",
		"[[Left]]",
		"[[Right]]",
		"<<endchoice>>",
		"::Left",
		"Went left",
		"::Right",
		"Went right",
	)
	e := New(s)
	var got []Action
	for a, err := range e.Actions() {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, a)
		if a.Kind == Choice {
			if a.Choices[1].Label() != "Right" {
				t.Fatalf("label = %q", a.Choices[1].Label())
			}
			if err := e.MakeChoice(a.Choices[1].Target); err != nil {
				t.Fatalf("MakeChoice: %v", err)
			}
		}
	}
	checkActions(t, got,
		PassageAction("Start"),
		MessageAction("Pick"),
		ChoiceAction(Candidate{Target: "Left"}, Candidate{Target: "Right"}),
		PassageAction("Right"),
		MessageAction("Went right"),
		EndAction(),
	)

	e.Reset()
	got = nil
	for a := range e.Actions() {
		got = append(got, a)
	}
	if len(got) != 3 || got[2].Kind != Choice {
		t.Fatalf("iteration should stop at an unanswered choice: %v", got)
	}
}

func TestDelay(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<delay 10s>>Wait<<enddelay>>",
		"<<delay 2s>><<enddelay>>",
		"[[delay 3m|Next]]",
		"::Next",
		"Arrived",
	)
	checkActions(t, play(t, New(s, WithDefaultDelayText("(pause)"))),
		PassageAction("Start"),
		DelayAction("Wait", 10),
		DelayAction("(pause)", 2),
		DelayAction("(pause)", 180),
		PassageAction("Next"),
		MessageAction("Arrived"),
		EndAction(),
	)
	got := play(t, New(s))
	if got[2].Text != DefaultDelayText {
		t.Fatalf("default delay text = %q", got[2].Text)
	}
}

func TestPromptAndRewind(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<set $n = 'Ann'>>",
		"<<prompt>>Your name, <<$n>>?<<endprompt>>",
		"Before",
		"<<rewind 'Start'>>",
		"After",
	)
	checkActions(t, play(t, New(s)),
		PassageAction("Start"),
		PromptAction("Your name, Ann?"),
		MessageAction("Before"),
		RewindAction("Start"),
		MessageAction("After"),
		EndAction(),
	)
}

func TestDynamicLinkAndSilently(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<silently>>",
		"<<set $dest = 'B'>>Not shown",
		"<<endsilently>>",
		"[[$dest]]",
		"::B [noreferror]",
		"Here",
	)
	checkActions(t, play(t, New(s)),
		PassageAction("Start"),
		PassageAction("B"),
		MessageAction("Here"),
		EndAction(),
	)
}

func TestEither(t *testing.T) {
	s := parse(t, "::Start", "<<set $c = either('A', 'B')>>", "<<$c>>")
	for i := 0; i < 10; i++ {
		got := withoutPassages(play(t, New(s)))
		if len(got) != 2 || (got[0].Text != "A" && got[0].Text != "B") {
			t.Fatalf("either picked %v", got)
		}
	}
}

func TestStatementBudget(t *testing.T) {
	s := parse(t, "::Start", `<<include "Start">>`)
	e := New(s, WithMaxStatements(10))
	if a, err := e.Next(); err != nil || a.Kind != Passage {
		t.Fatalf("first action = %v, %v", a, err)
	}
	_, err := e.Next()
	if !errors.Is(err, ErrStatementBudget) {
		t.Fatalf("expected budget error, got %v", err)
	}
	if _, again := e.Next(); again != err {
		t.Fatalf("runtime errors should stick until Reset")
	}
	e.Reset()
	if a, err := e.Next(); err != nil || a.Kind != Passage {
		t.Fatalf("Reset should restart the story: %v, %v", a, err)
	}
}

func TestEmptyChoice(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<choice>>",
		"<<if false>>[[A]]<<endif>>",
		"<<endchoice>>",
		"::A",
	)
	e := New(s)
	e.Next()
	if _, err := e.Next(); !errors.Is(err, ErrEmptyChoice) {
		t.Fatalf("expected empty choice error, got %v", err)
	}
}

func TestNoStartPassage(t *testing.T) {
	s := parser.Parse("::Other\nText")
	e := New(s)
	if _, err := e.Next(); !errors.Is(err, ErrNoStartPassage) {
		t.Fatalf("expected missing start error, got %v", err)
	}
	if err := e.MakeChoice("x"); !errors.Is(err, ErrNotAwaitingChoice) {
		t.Fatalf("MakeChoice = %v", err)
	}
}

func TestEvaluationErrorCarriesLocation(t *testing.T) {
	s := parse(t,
		"::Start",
		"<<set $a = 1>>",
		"<<set $b = 'x'>>",
		"Value: <<$a - $b>>",
	)
	e := New(s)
	e.Next()
	_, err := e.Next()
	var serr *source.Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected a story error, got %v", err)
	}
	if serr.Kind != source.RuntimeError || serr.Location == nil || serr.Location.FileLine != 4 {
		t.Fatalf("error = %v", serr)
	}
}

func TestResetClearsVariables(t *testing.T) {
	s := parse(t, "::Start", "<<set $x = 5>>", "x is <<$x>>")
	e := New(s)
	first := play(t, e)
	if e.Variables()["$x"] != 5 {
		t.Fatalf("variables = %v", e.Variables())
	}
	e.Reset()
	if len(e.Variables()) != 0 || e.State() != Running {
		t.Fatalf("Reset should clear state")
	}
	checkActions(t, play(t, e), first...)
}
