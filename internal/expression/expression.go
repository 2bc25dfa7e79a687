/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package expression wraps the expr-lang evaluator for the small
// arithmetic/boolean language used inside story macros.
//
// Expressions are normalized (word operators such as "and", "gt" or "isnt"
// become their symbolic forms), parsed and validated once at construction.
// A syntax or symbol error is stored on the Expression instead of being
// deferred to evaluation. Variables are the only free names and always start
// with '$'. Two functions are available: either(v1, ..., vn) picks one of its
// arguments at random, and visited([name]) always reports false because
// passage history is not tracked.
package expression

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"tweegee/internal/source"
)

type synonym struct {
	re *regexp.Regexp
	op string
}

var synonyms = []synonym{
	{regexp.MustCompile(`\bnot\b`), "!"},
	{regexp.MustCompile(`\band\b`), "&&"},
	{regexp.MustCompile(`\bor\b`), "||"},
	{regexp.MustCompile(`\b(is|eq)\b`), "=="},
	{regexp.MustCompile(`\b(isnt|ne|neq)\b`), "!="},
	{regexp.MustCompile(`\blt\b`), "<"},
	{regexp.MustCompile(`\b(le|lte)\b`), "<="},
	{regexp.MustCompile(`\bgt\b`), ">"},
	{regexp.MustCompile(`\b(ge|gte)\b`), ">="},
}

// Normalize replaces whole-word operator synonyms with symbolic operators.
func Normalize(s string) string {
	for _, syn := range synonyms {
		s = syn.re.ReplaceAllString(s, syn.op)
	}
	return strings.TrimSpace(s)
}

// nullName is accepted as a literal and bound to nil at evaluation time.
const nullName = "null"

// Expression is an immutable, pre-parsed expression.
type Expression struct {
	text      string
	loc       source.Location
	program   *vm.Program
	err       *source.Error
	variables []string
}

// New normalizes and parses text. Problems are reported by Err, never by panicking.
func New(text string, loc source.Location) *Expression {
	e := &Expression{text: Normalize(text), loc: loc}
	if e.text == "" {
		e.err = source.Errorf(source.MissingExpression, loc, "Expected an expression")
		return e
	}
	tree, err := parser.Parse(e.text)
	if err != nil {
		e.err = source.Errorf(source.InvalidExpression, loc, firstLine(err.Error()))
		e.err.Err = err
		return e
	}
	vars, msg := validate(&tree.Node)
	e.variables = vars
	if msg != "" {
		e.err = source.Errorf(source.InvalidExpression, loc, msg)
		return e
	}
	program, err := expr.Compile(e.text,
		expr.Function("either", either),
		expr.Function("visited", visited),
	)
	if err != nil {
		e.err = source.Errorf(source.InvalidExpression, loc, firstLine(err.Error()))
		e.err.Err = err
		return e
	}
	e.program = program
	return e
}

// String returns the normalized source text.
func (e *Expression) String() string { return e.text }

// Location is where the expression appeared in the markup.
func (e *Expression) Location() source.Location { return e.loc }

// Err is the stored parse or validation error, or nil.
func (e *Expression) Err() error {
	if e.err == nil {
		return nil
	}
	return e.err
}

// Variables lists the distinct $-variables referenced, sorted.
func (e *Expression) Variables() []string { return append([]string(nil), e.variables...) }

// Eval evaluates the expression with vars supplying every referenced variable.
func (e *Expression) Eval(vars map[string]any) (any, error) {
	if e.err != nil {
		return nil, e.err
	}
	env := make(map[string]any, len(e.variables)+1)
	env[nullName] = nil
	for _, name := range e.variables {
		v, ok := vars[name]
		if !ok {
			return nil, source.Errorf(source.UndefinedVariable, e.loc,
				fmt.Sprintf("Variable %s has not been set", name))
		}
		env[name] = v
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		fail := source.Errorf(source.RuntimeError, e.loc,
			fmt.Sprintf("Failed to evaluate %q: %s", e.text, firstLine(err.Error())))
		fail.Err = err
		return nil, fail
	}
	return out, nil
}

// EvalBool evaluates and converts the result to a boolean. Numbers are true
// when non-zero; strings are rejected.
func (e *Expression) EvalBool(vars map[string]any) (bool, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return false, err
	}
	b, ok := Truthy(v)
	if !ok {
		return false, source.Errorf(source.RuntimeError, e.loc,
			fmt.Sprintf("Result type %T is not compatible with expected type bool", v))
	}
	return b, nil
}

// EvalString evaluates and formats the result for display.
func (e *Expression) EvalString(vars map[string]any) (string, error) {
	v, err := e.Eval(vars)
	if err != nil {
		return "", err
	}
	return Format(v), nil
}

// Truthy converts an evaluation result to a boolean.
func Truthy(v any) (bool, bool) {
	switch t := v.(type) {
	case nil:
		return false, true
	case bool:
		return t, true
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	case uint:
		return t != 0, true
	case float64:
		return t != 0, true
	default:
		return false, false
	}
}

// Format renders an evaluation result as story text.
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// validate checks every symbol in the tree and collects $-variables.
// It returns a non-empty message for the first offending symbol.
func validate(root *ast.Node) ([]string, string) {
	c := &symbolCheck{callees: map[ast.Node]bool{}, vars: map[string]bool{}}
	ast.Walk(root, calleeCollector(c.callees))
	ast.Walk(root, c)
	vars := make([]string, 0, len(c.vars))
	for v := range c.vars {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars, c.msg
}

type calleeCollector map[ast.Node]bool

func (cc calleeCollector) Visit(node *ast.Node) {
	if call, ok := (*node).(*ast.CallNode); ok {
		cc[call.Callee] = true
	}
}

type symbolCheck struct {
	callees map[ast.Node]bool
	vars    map[string]bool
	msg     string
}

func (c *symbolCheck) fail(format string, args ...any) {
	if c.msg == "" {
		c.msg = fmt.Sprintf(format, args...)
	}
}

func (c *symbolCheck) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if c.callees[n] {
			return
		}
		switch {
		case strings.HasPrefix(n.Value, "$") && len(n.Value) > 1:
			c.vars[n.Value] = true
		case n.Value == nullName:
		default:
			c.fail("Invalid symbol: %s", n.Value)
		}
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			c.fail("Invalid function call")
			return
		}
		switch id.Value {
		case "visited":
			if len(n.Arguments) > 1 {
				c.fail("visited() function takes 0 or 1 arguments")
			}
		case "either":
			if len(n.Arguments) < 1 {
				c.fail("either() function requires at least 1 argument")
			}
		default:
			c.fail("Invalid function: %s", id.Value)
		}
	case *ast.BuiltinNode:
		c.fail("Invalid function: %s", n.Name)
	}
}

func either(params ...any) (any, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("either() function requires at least 1 argument")
	}
	return params[rand.IntN(len(params))], nil
}

// visited is a placeholder until passage history is tracked by the engine.
func visited(params ...any) (any, error) {
	_ = params
	return false, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
