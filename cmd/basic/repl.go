package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/antibyte/retrobasic/pkg/console"
	"github.com/antibyte/retrobasic/pkg/shared"

	"github.com/goforj/godump"
	"github.com/peterh/liner"
)

const (
	commandPrompt = "] "
	inputPrompt   = "? "
)

// repl drives a console from a line source and prints its messages.
type repl struct {
	console *console.Console
	out     io.Writer
	mode    string
}

func newRepl(c *console.Console, out io.Writer) *repl {
	return &repl{console: c, out: out, mode: "basic"}
}

// handle runs one line and prints everything it produced. It returns
// true when the session is over.
func (r *repl) handle(line string) bool {
	if strings.TrimSpace(line) == "DUMP" {
		if _, waiting := r.console.Program().WaitingFor(); !waiting {
			godump.Dump(r.console.Program().Snapshot())
			return false
		}
	}
	quit := r.console.Execute(line)
	r.drain()
	return quit
}

// prompt is "? " while an INPUT waits, "] " otherwise.
func (r *repl) prompt() string {
	if _, waiting := r.console.Program().WaitingFor(); waiting {
		return inputPrompt
	}
	return commandPrompt
}

// drain prints messages until the session is idle: no run, or a run that
// waits for the user.
func (r *repl) drain() {
	output := r.console.Output()
	for {
		select {
		case msg := <-output:
			r.print(msg)
		case <-r.console.Idle():
			for {
				select {
				case msg := <-output:
					r.print(msg)
				default:
					return
				}
			}
		}
	}
}

func (r *repl) print(msg shared.Message) {
	switch msg.Type {
	case shared.MessageTypeText, shared.MessageTypeError:
		fmt.Fprintln(r.out, msg.Content)
	case shared.MessageTypeBreakpoint:
		fmt.Fprintf(r.out, "BREAK IN LINE %d\n", msg.Line)
		if vars := strings.TrimRight(msg.Content, "\n"); vars != "" {
			fmt.Fprintln(r.out, vars)
		}
	case shared.MessageTypeMode:
		if msg.Mode == "run" || msg.Mode == r.mode {
			break
		}
		r.mode = msg.Mode
		if msg.Mode == "debug" {
			fmt.Fprintln(r.out, "DEBUG MODE")
		}
	case shared.MessageTypeQuit:
		fmt.Fprintln(r.out, msg.Content)
	}
	// Listings and run results are shown through the text messages.
}

// runLines feeds lines from in until EOF or QUIT.
func (r *repl) runLines(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if r.handle(scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// runInteractive reads lines with editing and history. INPUT answers are
// kept out of the history.
func (r *repl) runInteractive(ln *liner.State) error {
	for {
		prompt := r.prompt()
		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				// Ctrl-C stops a run, otherwise it is ignored.
				r.console.Stop()
				r.drain()
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}
		if prompt == commandPrompt && strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if r.handle(line) {
			return nil
		}
	}
}
