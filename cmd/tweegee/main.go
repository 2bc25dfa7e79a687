/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"tweegee/internal/config"
	"tweegee/internal/crash"
	applog "tweegee/internal/log"
	"tweegee/internal/parser"
	"tweegee/internal/story"
	"tweegee/internal/telemetry"
	"tweegee/internal/version"
)

// Exit codes.
const (
	exitOK         = 0
	exitStoryError = 1
	exitUsage      = 2
)

// errUsage marks command-line mistakes; usage has already been printed.
var errUsage = errors.New("usage")

// errStory marks a story that parsed or ran with errors already reported.
var errStory = errors.New("story has errors")

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	cfg    config.AppConfig
	log    *slog.Logger
}

type command struct {
	name    string
	args    string
	summary string
	run     func(c *cli, ctx context.Context, args []string) error
}

// commands is filled in init: the handlers reach back into it for usage text.
var commands []command

func init() {
	commands = []command{
		{"check", "[-start name] <file>", "Parse a story and report its errors", (*cli).check},
		{"json", "[-no-passages] [-compact] <file>", "Print the parsed story as JSON", (*cli).json},
		{"play", "[-start name] [-max-statements n] [-delay-text s] [-show-passages] <file>", "Play a story in the terminal", (*cli).play},
		{"index", "[-db path] <file>", "Index a story into the SQLite search index", (*cli).index},
		{"search", "[-db path] [-tag t]... [-limit n] [query]", "Full-text search over indexed passages", (*cli).search},
		{"uses", "[-db path] <passage>", "List where an indexed passage is referenced", (*cli).uses},
		{"errors", "[-db path]", "List the errors stored in the index", (*cli).errors},
		{"pdf", "[-o file] [-errors] [-page A4|Letter] [-lang tag] [-passage name]... <file>", "Write a PDF proof of the passages", (*cli).pdf},
		{"map", "[-o file] [-scale n] [-columns n] <file>", "Draw the passage graph as a PNG", (*cli).storyMap},
		{"version", "", "Show version", (*cli).version},
	}
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, "tweegee: Twee story tooling")
	fmt.Fprintf(c.stderr, "Version: %s\n\n", version.String())
	fmt.Fprintln(c.stderr, "Usage:")
	for _, cmd := range commands {
		fmt.Fprintf(c.stderr, "  tweegee %s %s\n      %s\n", cmd.name, cmd.args, cmd.summary)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := func() int {
		defer stop()
		defer crash.Recover(crashDir(), os.Args[1:])
		return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	}()
	os.Exit(code)
}

// crashDir keeps crash reports next to the user config.
func crashDir() string {
	p, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(p), "crash")
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "Warning: config not loaded:", err)
		cfg = config.Defaults()
	}
	applog.Init(cfg.Logging.Options())
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr, cfg: cfg, log: applog.WithComponent("cli")}

	if len(args) == 0 {
		c.usage()
		return exitUsage
	}
	name := args[0]
	switch name {
	case "--version", "-v":
		name = "version"
	case "help", "-h", "--help":
		c.usage()
		return exitOK
	}
	for _, cmd := range commands {
		if cmd.name != name {
			continue
		}
		ctx = applog.ContextWith(ctx, slog.String("cmd", name))
		c.log.DebugContext(ctx, "start", slog.Int("args", len(args)-1))
		code := exitOK
		switch err := cmd.run(c, ctx, args[1:]); {
		case err == nil:
		case errors.Is(err, errUsage):
			code = exitUsage
		case errors.Is(err, errStory):
			code = exitStoryError
		default:
			c.log.ErrorContext(ctx, "command failed", slog.Any("err", err))
			fmt.Fprintln(stderr, "Error:", err)
			code = exitStoryError
		}
		// only the command name and outcome are reported, never story content
		t := telemetry.Default()
		t.Event("command", map[string]any{"cmd": name, "exit": code})
		t.Flush(ctx)
		return code
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n", name)
	c.usage()
	return exitUsage
}

// flags returns a FlagSet that reports to stderr and prints the command's usage line.
func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		for _, cmd := range commands {
			if cmd.name == name {
				fmt.Fprintf(c.stderr, "Usage: tweegee %s %s\n", cmd.name, cmd.args)
			}
		}
		fs.PrintDefaults()
	}
	return fs
}

// parse parses args and requires exactly want positional arguments (-1 for any).
func (c *cli) parse(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		// the FlagSet has already printed the problem and usage
		return nil, errUsage
	}
	rest := fs.Args()
	if want >= 0 && len(rest) != want {
		fs.Usage()
		return nil, errUsage
	}
	return rest, nil
}

// loadStory reads and parses a story file. start overrides the configured start passage.
func (c *cli) loadStory(ctx context.Context, path, start string) (*story.Story, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}
	if start == "" {
		start = c.cfg.Parser.StartPassage
	}
	st := parser.Parse(string(data),
		parser.WithFilename(path),
		parser.WithStartPassage(start),
		parser.WithLogger(applog.WithComponent("parser")),
	)
	c.log.InfoContext(ctx, "story loaded",
		slog.String("file", path),
		slog.Int("passages", st.PassageCount()),
		slog.Int("errors", len(st.Errors)),
	)
	return st, nil
}

// reportErrors prints each error with the source line it refers to.
func (c *cli) reportErrors(st *story.Story) {
	for _, e := range st.Errors {
		fmt.Fprintln(c.stderr, e.Error())
		if line, ok := e.SourceLine(st); ok && strings.TrimSpace(line) != "" {
			fmt.Fprintf(c.stderr, "    | %s\n", line)
		}
	}
}

func (c *cli) version(_ context.Context, args []string) error {
	if _, err := c.parse(c.flags("version"), args, 0); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "tweegee", version.String())
	return nil
}
