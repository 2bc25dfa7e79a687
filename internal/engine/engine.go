/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine plays a parsed story one action at a time. The caller
// pulls actions with Next and answers Choice actions with MakeChoice.
// Nested blocks (if clauses, delays, choices, prompts and included
// passages) are entered by pushing a frame that remembers where to resume
// and what to emit once the nested block runs out.
package engine

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	applog "tweegee/internal/log"
	"tweegee/internal/source"
	"tweegee/internal/story"
)

const (
	// DefaultDelayText stands in for an empty delay block.
	DefaultDelayText = "..."
	// DefaultMaxStatements bounds the statements run for a single action.
	DefaultMaxStatements = 100
)

var (
	ErrAwaitingChoice    = errors.New("engine is awaiting a choice")
	ErrNotAwaitingChoice = errors.New("engine is not awaiting a choice")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrStatementBudget   = errors.New("statement budget exhausted without an action")
	ErrEmptyChoice       = errors.New("choice offers no alternatives")
	ErrNoStartPassage    = errors.New("story has no start passage")
)

// State is the engine's run state.
type State int

const (
	Running State = iota
	AwaitingChoice
	Terminal
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case AwaitingChoice:
		return "AwaitingChoice"
	case Terminal:
		return "Terminal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// finish is what happens when a frame's block is exhausted.
type finish int

const (
	finishNone finish = iota
	finishDelay
	finishInclude
	finishChoice
	finishPrompt
)

// frame is a suspended scope: the parent position to resume at and the
// pending post-action for the nested block.
type frame struct {
	block    *story.Block
	index    int
	finish   finish
	delay    story.Duration
	returnTo *story.Passage
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultDelayText sets the text emitted for a delay with no output.
func WithDefaultDelayText(s string) Option { return func(e *Engine) { e.delayText = s } }

// WithMaxStatements sets the statement budget per action.
func WithMaxStatements(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxStatements = n
		}
	}
}

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine interprets a story. It is not safe for concurrent use.
type Engine struct {
	story         *story.Story
	delayText     string
	maxStatements int
	log           *slog.Logger

	state      State
	passage    *story.Passage
	block      *story.Block
	index      int
	line       strings.Builder
	candidates []Candidate
	choices    int
	frames     []frame
	vars       map[string]any

	enter  *story.Passage
	failed error
}

// New returns an engine positioned before the story's start passage.
func New(s *story.Story, opts ...Option) *Engine {
	e := &Engine{story: s, delayText: DefaultDelayText, maxStatements: DefaultMaxStatements}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = applog.WithComponent("engine")
	}
	e.Reset()
	return e
}

// Reset discards all play state and returns to the start passage.
func (e *Engine) Reset() {
	e.state = Running
	e.passage = nil
	e.block = nil
	e.index = 0
	e.line.Reset()
	e.candidates = nil
	e.choices = 0
	e.frames = nil
	e.vars = map[string]any{}
	e.enter = nil
	e.failed = nil

	start := e.story.StartPassage()
	if start == nil {
		e.failed = runtimeErr(nil, ErrNoStartPassage, fmt.Sprintf("Start passage %q does not exist", e.story.StartPassageName))
		return
	}
	e.enter = start
}

// State reports the current run state.
func (e *Engine) State() State { return e.state }

// Variables returns the live variable environment.
func (e *Engine) Variables() map[string]any { return e.vars }

// Candidates returns the alternatives of the pending choice.
func (e *Engine) Candidates() []Candidate { return append([]Candidate(nil), e.candidates...) }

// Next runs statements until one produces an action. Once the story has
// ended every call returns End. After a runtime error the engine keeps
// returning that error until Reset.
func (e *Engine) Next() (Action, error) {
	switch {
	case e.state == AwaitingChoice:
		return Action{}, runtimeErr(nil, ErrAwaitingChoice, "Make a choice before asking for the next action")
	case e.failed != nil:
		return Action{}, e.failed
	case e.state == Terminal:
		return EndAction(), nil
	}
	if p := e.enter; p != nil {
		e.enter = nil
		return e.goTo(p), nil
	}
	for n := 0; n < e.maxStatements; n++ {
		act, ok, err := e.step()
		if err != nil {
			return Action{}, e.fail(err)
		}
		if ok {
			return act, nil
		}
	}
	return Action{}, e.fail(runtimeErr(nil, ErrStatementBudget,
		fmt.Sprintf("Interpreter ran %d statements without an action", e.maxStatements)))
}

// MakeChoice answers a pending Choice action by target passage name.
func (e *Engine) MakeChoice(target string) error {
	if e.state != AwaitingChoice {
		return runtimeErr(nil, ErrNotAwaitingChoice, "There is no choice to make")
	}
	valid := make([]string, 0, len(e.candidates))
	for _, c := range e.candidates {
		if c.Target == target {
			p, ok := e.story.Passage(target)
			if !ok {
				return e.fail(missingPassage(nil, "Choice", target))
			}
			e.candidates = nil
			e.state = Running
			e.enter = p
			return nil
		}
		valid = append(valid, c.Target)
	}
	return runtimeErr(nil, ErrInvalidChoice,
		fmt.Sprintf("%q is not a valid choice; valid choices are: %s", target, strings.Join(valid, ", ")))
}

// Actions yields actions until the story ends or fails. It also stops
// after a Choice unless the consumer answers it with MakeChoice before
// resuming the loop.
func (e *Engine) Actions() iter.Seq2[Action, error] {
	return func(yield func(Action, error) bool) {
		for {
			act, err := e.Next()
			if !yield(act, err) || err != nil || act.Kind == End {
				return
			}
			if e.state == AwaitingChoice {
				return
			}
		}
	}
}

func (e *Engine) fail(err error) error {
	e.failed = err
	e.log.Warn("runtime error", slog.Any("err", err))
	return err
}

// goTo transfers control to p, abandoning every suspended scope.
func (e *Engine) goTo(p *story.Passage) Action {
	e.log.Debug("enter passage", slog.String("passage", p.Name))
	e.passage = p
	e.block = &p.Block
	e.index = 0
	e.frames = e.frames[:0]
	e.choices = 0
	e.line.Reset()
	return PassageAction(p.Name)
}

func (e *Engine) push(b *story.Block, f frame) {
	f.block = e.block
	f.index = e.index
	e.frames = append(e.frames, f)
	e.block = b
	e.index = 0
}

// step runs one statement, or resumes a suspended scope when the current
// block is exhausted.
func (e *Engine) step() (Action, bool, error) {
	if e.index < e.block.Len() {
		st := e.block.Statements[e.index]
		e.index++
		return e.exec(st)
	}
	if len(e.frames) > 0 {
		return e.resume()
	}
	e.state = Terminal
	return EndAction(), true, nil
}

func (e *Engine) exec(st story.Statement) (Action, bool, error) {
	switch n := st.(type) {
	case *story.Text:
		e.line.WriteString(n.Text)

	case *story.LineBreak:
		text := strings.TrimSpace(e.line.String())
		e.line.Reset()
		if text != "" {
			return MessageAction(text), true, nil
		}

	case *story.Set:
		v, err := n.Expr.Eval(e.vars)
		if err != nil {
			return Action{}, false, err
		}
		e.vars[n.Variable] = v

	case *story.Print:
		s, err := n.Expr.EvalString(e.vars)
		if err != nil {
			return Action{}, false, err
		}
		e.line.WriteString(s)

	case *story.Link:
		name, err := e.resolve(n.Target)
		if err != nil {
			return Action{}, false, err
		}
		if e.choices > 0 {
			e.candidates = append(e.candidates, Candidate{Target: name, Text: n.Text})
			return Action{}, false, nil
		}
		p, ok := e.story.Passage(name)
		if !ok {
			return Action{}, false, missingPassage(&n.Location, "Link", name)
		}
		return e.goTo(p), true, nil

	case *story.Include:
		name, err := e.resolve(n.Target)
		if err != nil {
			return Action{}, false, err
		}
		p, ok := e.story.Passage(name)
		if !ok {
			return Action{}, false, missingPassage(&n.Location, "Include", name)
		}
		e.push(&p.Block, frame{finish: finishInclude, returnTo: e.passage})
		e.passage = p

	case *story.Rewind:
		name, err := e.resolve(n.Target)
		if err != nil {
			return Action{}, false, err
		}
		return RewindAction(name), true, nil

	case *story.Choice:
		e.choices++
		e.push(&n.Block, frame{finish: finishChoice})

	case *story.If:
		for _, c := range n.Clauses {
			ok := true
			if c.Condition != nil {
				var err error
				if ok, err = c.Condition.EvalBool(e.vars); err != nil {
					return Action{}, false, err
				}
			}
			if ok {
				e.push(&c.Block, frame{})
				break
			}
		}

	case *story.Delay:
		e.push(&n.Block, frame{finish: finishDelay, delay: n.Duration})

	case *story.Prompt:
		e.push(&n.Block, frame{finish: finishPrompt})

	default:
		panic(fmt.Sprintf("engine: unknown statement %T", st))
	}
	return Action{}, false, nil
}

// resume pops the innermost frame and runs its post-action.
func (e *Engine) resume() (Action, bool, error) {
	f := e.frames[len(e.frames)-1]
	e.frames = e.frames[:len(e.frames)-1]
	e.block = f.block
	e.index = f.index

	switch f.finish {
	case finishInclude:
		e.passage = f.returnTo
	case finishDelay:
		text := strings.TrimSpace(e.line.String())
		if text == "" {
			text = e.delayText
		}
		e.line.Reset()
		return DelayAction(text, f.delay.Seconds), true, nil
	case finishChoice:
		e.choices--
		if len(e.candidates) == 0 {
			return Action{}, false, runtimeErr(nil, ErrEmptyChoice, "Choice has no links to choose from")
		}
		e.line.Reset()
		e.state = AwaitingChoice
		return ChoiceAction(append([]Candidate(nil), e.candidates...)...), true, nil
	case finishPrompt:
		text := strings.TrimSpace(e.line.String())
		e.line.Reset()
		return PromptAction(text), true, nil
	}
	return Action{}, false, nil
}

// resolve returns the passage name a target refers to.
func (e *Engine) resolve(t story.Target) (string, error) {
	if !t.IsDynamic() {
		return t.Passage, nil
	}
	v, err := t.Expr.Eval(e.vars)
	if err != nil {
		return "", err
	}
	name, ok := v.(string)
	if !ok {
		loc := t.Expr.Location()
		return "", runtimeErr(&loc, nil, fmt.Sprintf("Target %s evaluated to %v, not a passage name", t.Expr, v))
	}
	return name, nil
}

func runtimeErr(loc *source.Location, sentinel error, msg string) *source.Error {
	return &source.Error{Kind: source.RuntimeError, Location: loc, Message: msg, Err: sentinel}
}

func missingPassage(loc *source.Location, what, name string) *source.Error {
	return &source.Error{
		Kind:     source.MissingPassage,
		Location: loc,
		Message:  fmt.Sprintf("%s refers to passage named %q but no passage exists with that name", what, name),
	}
}
