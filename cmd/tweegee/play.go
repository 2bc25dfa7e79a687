/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"tweegee/internal/engine"
	applog "tweegee/internal/log"
)

func (c *cli) play(ctx context.Context, args []string) error {
	fs := c.flags("play")
	start := fs.String("start", "", "start passage (default from config)")
	maxStatements := fs.Int("max-statements", c.cfg.Engine.MaxStatements, "statement budget per action")
	delayText := fs.String("delay-text", c.cfg.Engine.DefaultDelayText, "text shown for a delay with no text of its own")
	showPassages := fs.Bool("show-passages", false, "announce each passage entered")
	rest, err := c.parse(fs, args, 1)
	if err != nil {
		return err
	}
	st, err := c.loadStory(ctx, rest[0], *start)
	if err != nil {
		return err
	}
	if len(st.Errors) > 0 {
		c.reportErrors(st)
		return errStory
	}

	eng := engine.New(st,
		engine.WithMaxStatements(*maxStatements),
		engine.WithDefaultDelayText(*delayText),
		engine.WithLogger(applog.WithComponent("engine")),
	)
	in := bufio.NewScanner(c.stdin)
	for {
		for act, err := range eng.Actions() {
			if err != nil {
				fmt.Fprintln(c.stderr, "Error:", err)
				return errStory
			}
			c.render(act, *showPassages)
			if act.Kind == engine.End {
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if eng.State() != engine.AwaitingChoice {
			return nil
		}
		target, ok := c.choose(in, eng.Candidates())
		if !ok {
			c.log.InfoContext(ctx, "input closed before the story ended")
			return nil
		}
		if err := eng.MakeChoice(target); err != nil {
			fmt.Fprintln(c.stderr, "Error:", err)
			return errStory
		}
		c.log.DebugContext(ctx, "choice made", slog.String("target", target))
	}
}

func (c *cli) render(act engine.Action, showPassages bool) {
	switch act.Kind {
	case engine.Passage:
		if showPassages {
			fmt.Fprintf(c.stdout, "\n== %s ==\n", act.Text)
		}
	case engine.Message:
		fmt.Fprintln(c.stdout, act.Text)
	case engine.Delay:
		fmt.Fprintf(c.stdout, "%s (%s)\n", act.Text, seconds(act.Seconds))
	case engine.Choice:
		for i, cand := range act.Choices {
			fmt.Fprintf(c.stdout, "  %d) %s\n", i+1, cand.Label())
		}
	case engine.Prompt:
		fmt.Fprintf(c.stdout, "? %s\n", act.Text)
	case engine.Rewind:
		fmt.Fprintf(c.stdout, "<< rewind to %s >>\n", act.Text)
	case engine.End:
		fmt.Fprintln(c.stdout, "THE END")
	}
}

// choose reads until the player names a candidate by number or target.
// It reports false when input runs out.
func (c *cli) choose(in *bufio.Scanner, cands []engine.Candidate) (string, bool) {
	for {
		fmt.Fprintf(c.stdout, "> ")
		if !in.Scan() {
			fmt.Fprintln(c.stdout)
			return "", false
		}
		answer := strings.TrimSpace(in.Text())
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(cands) {
			return cands[n-1].Target, true
		}
		for _, cand := range cands {
			if strings.EqualFold(answer, cand.Target) || strings.EqualFold(answer, cand.Label()) {
				return cand.Target, true
			}
		}
		fmt.Fprintf(c.stdout, "Choose 1-%d.\n", len(cands))
	}
}

func seconds(n int) string {
	switch {
	case n >= 3600 && n%3600 == 0:
		return fmt.Sprintf("%dh", n/3600)
	case n >= 60 && n%60 == 0:
		return fmt.Sprintf("%dm", n/60)
	default:
		return fmt.Sprintf("%ds", n)
	}
}
