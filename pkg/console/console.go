// Package console turns a BASIC program into a line oriented session that
// publishes its output as shared.Message values.
package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/shared"
	"github.com/antibyte/retrobasic/pkg/store"
)

// Library stores programs by owner and name. *store.Store implements it.
type Library interface {
	SaveProgram(ctx context.Context, owner, name, source string) (store.ProgramRecord, error)
	LoadProgram(ctx context.Context, owner, name string) (store.ProgramRecord, error)
	ListPrograms(ctx context.Context, owner string) ([]store.ProgramRecord, error)
	DeleteProgram(ctx context.Context, owner, name string) error
}

// Options configure a session.
type Options struct {
	MaxLines     int
	MaxSteps     int
	OutputBuffer int
	InputPrompt  string
	SessionID    string

	// MaxRunTime bounds the wall time of one RUN, waits included. Zero
	// means no limit.
	MaxRunTime time.Duration
}

// OptionsFromConfig reads the [Interpreter] section.
func OptionsFromConfig() Options {
	return Options{
		MaxLines:     configuration.GetInt("Interpreter", "max_lines", 1000),
		MaxSteps:     configuration.GetInt("Interpreter", "max_steps", 1000000),
		OutputBuffer: configuration.GetInt("Interpreter", "output_buffer", 256),
		InputPrompt:  configuration.GetString("Interpreter", "input_prompt", "?"),
		MaxRunTime:   configuration.GetDuration("Interpreter", "max_run_time", 0),
	}
}

var errNoLibrary = basic.NewBASICError(basic.ErrCategoryCommand, errors.New("no program library"), "NO PROGRAM LIBRARY")

// Console is one interactive session. Execute is meant to be called from
// a single goroutine; the running program reports from its own.
type Console struct {
	mu      sync.Mutex
	program *basic.Program
	library Library
	owner   string
	opts    Options

	output chan shared.Message
	closed chan struct{}
	done   chan struct{} // non-nil while a run is active
	cancel context.CancelFunc
	idle   chan struct{} // closed while the session waits for the user
}

// New creates a session for owner. library may be nil, in which case
// LOAD, SAVE, FILES and ERASE report an error.
func New(library Library, owner string, opts Options) *Console {
	if opts.OutputBuffer <= 0 {
		opts.OutputBuffer = 256
	}
	if opts.InputPrompt == "" {
		opts.InputPrompt = "?"
	}
	c := &Console{
		library: library,
		owner:   owner,
		opts:    opts,
		output:  make(chan shared.Message, opts.OutputBuffer),
		closed:  make(chan struct{}),
		idle:    make(chan struct{}),
	}
	close(c.idle)
	c.program = basic.NewProgram(c, basic.Options{MaxLines: opts.MaxLines, MaxSteps: opts.MaxSteps})
	return c
}

// Output delivers the messages of this session. It is never closed; stop
// reading when Done is closed.
func (c *Console) Output() <-chan shared.Message {
	return c.output
}

// Done is closed by Close.
func (c *Console) Done() <-chan struct{} {
	return c.closed
}

// Program returns the session's program.
func (c *Console) Program() *basic.Program {
	return c.program
}

// Owner returns the name programs are saved under.
func (c *Console) Owner() string {
	return c.owner
}

// Running reports whether a RUN is in progress.
func (c *Console) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Idle returns a channel that is closed once the session needs the user:
// no run is active, or the run waits for input or at a breakpoint. Every
// message sent before that point is already in Output. Call it again after
// each Execute.
func (c *Console) Idle() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// wake marks a run as busy again before it is continued. It does nothing
// when no run is active.
func (c *Console) wake() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return
	}
	select {
	case <-c.idle:
		c.idle = make(chan struct{})
	default:
	}
}

func (c *Console) settle() {
	c.mu.Lock()
	c.settleLocked()
	c.mu.Unlock()
}

func (c *Console) settleLocked() {
	select {
	case <-c.idle:
	default:
		close(c.idle)
	}
}

func (c *Console) send(msg shared.Message) {
	if msg.SessionID == "" {
		msg.SessionID = c.opts.SessionID
	}
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.output <- msg:
	case <-c.closed:
	}
}

func (c *Console) text(s string) {
	c.send(shared.Message{Type: shared.MessageTypeText, Content: s})
}

// lines sends multi-line text one message per line.
func (c *Console) lines(s string) {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if line != "" {
			c.text(line)
		}
	}
}

func (c *Console) fail(err error) {
	msg := shared.Message{Type: shared.MessageTypeError, Content: err.Error()}
	var be *basic.BASICError
	if errors.As(err, &be) {
		msg.Line = be.LineNumber
	} else {
		msg.Content = basic.ErrCategoryCommand + ": " + err.Error()
	}
	c.send(msg)
}

func (c *Console) mode(m string) {
	c.send(shared.Message{Type: shared.MessageTypeMode, Content: m, Mode: m})
}

// EmitOutput implements basic.Host.
func (c *Console) EmitOutput(text string) {
	c.text(text)
}

// RequestInput implements basic.Host.
func (c *Console) RequestInput(name string) {
	c.send(shared.Message{
		Type:         shared.MessageTypeInput,
		Content:      name,
		Variable:     name,
		PromptSymbol: c.opts.InputPrompt,
		InputEnabled: shared.Bool(true),
	})
	c.settle()
}

// NotifyBreakpointHit implements basic.Host.
func (c *Console) NotifyBreakpointHit(line int, variables string) {
	c.send(shared.Message{Type: shared.MessageTypeBreakpoint, Line: line, Content: variables})
	c.settle()
}

// NotifyListingChanged implements basic.Host.
func (c *Console) NotifyListingChanged(listing, trees string) {
	c.send(shared.Message{Type: shared.MessageTypeListing, Content: listing, Trees: trees})
}

// NotifyBreakpointsChanged implements basic.Host.
func (c *Console) NotifyBreakpointsChanged(breakpoints string) {
	c.send(shared.Message{Type: shared.MessageTypeBreakpoints, Content: breakpoints})
}

// Execute handles one line of user input. It returns true after QUIT.
func (c *Console) Execute(input string) bool {
	if c.isClosed() {
		return true
	}
	if _, waiting := c.program.WaitingFor(); waiting {
		if verb := strings.TrimSpace(input); verb != "EXIT" && verb != "QUIT" {
			c.answerInput(input)
			return false
		}
	}

	cmd, err := basic.ParseCommand(input)
	if err != nil {
		logger.Debug(logger.AreaConsole, "Rejected command %q: %v", input, err)
		c.fail(err)
		return false
	}
	return c.dispatch(cmd)
}

func (c *Console) answerInput(input string) {
	v, err := basic.ParseInputValue(input)
	if err != nil {
		c.text(basic.RedoFromStart)
		if name, waiting := c.program.WaitingFor(); waiting {
			c.RequestInput(name)
		}
		return
	}
	c.wake()
	if err := c.program.ProvideInput(v); err != nil {
		c.fail(err)
		c.settle()
	}
}

func (c *Console) dispatch(cmd basic.Command) bool {
	switch cmd.Kind {
	case basic.CmdNone:
	case basic.CmdEdit:
		if err := c.program.UpdateStatement(cmd.Line, cmd.Text); err != nil {
			c.fail(err)
		}
	case basic.CmdRun:
		c.run()
	case basic.CmdList:
		c.lines(c.program.RenderProgramListing())
	case basic.CmdClear:
		if c.reject(cmd) {
			return false
		}
		if err := c.program.Clear(); err != nil {
			c.fail(err)
			return false
		}
		c.text("OK")
	case basic.CmdVars:
		c.lines(c.program.RenderVariables())
	case basic.CmdTree:
		c.lines(c.program.RenderSyntaxTrees())
	case basic.CmdDebug:
		c.wake()
		c.program.SetDebugMode(cmd.On)
		if cmd.On {
			c.mode("debug")
		} else {
			c.mode("basic")
		}
	case basic.CmdBreak:
		if err := c.program.SetBreakpoint(cmd.Line); err != nil {
			c.fail(err)
		}
	case basic.CmdUnbreak:
		c.program.RemoveBreakpoint(cmd.Line)
	case basic.CmdBreaks:
		c.lines(c.program.RenderBreakpoints())
	case basic.CmdNoBreak:
		c.program.ClearBreakpoints()
	case basic.CmdResume:
		c.wake()
		if err := c.program.Resume(); err != nil {
			c.fail(err)
			c.settle()
		}
	case basic.CmdExit:
		c.wake()
		c.program.ExitDebug()
		c.mode("basic")
	case basic.CmdQuit:
		c.Stop()
		c.send(shared.Message{Type: shared.MessageTypeQuit, Content: "BYE"})
		return true
	case basic.CmdSave:
		c.save(cmd.Arg)
	case basic.CmdLoad:
		if !c.reject(cmd) {
			c.load(cmd.Arg)
		}
	case basic.CmdFiles:
		c.files()
	case basic.CmdErase:
		c.erase(cmd.Arg)
	}
	return false
}

// reject refuses commands that replace the program during a run.
func (c *Console) reject(cmd basic.Command) bool {
	if !c.Running() {
		return false
	}
	c.fail(basic.NewBASICError(basic.ErrCategoryCommand, basic.ErrProgramAlreadyRunning, "%s not allowed while running", cmd.Verb))
	return true
}

// run starts the program on its own goroutine.
func (c *Console) run() {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		c.fail(basic.NewBASICError(basic.ErrCategoryCommand, basic.ErrProgramAlreadyRunning, "program already running"))
		return
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.MaxRunTime > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.opts.MaxRunTime)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})
	c.done, c.cancel = done, cancel
	c.idle = make(chan struct{})
	c.mu.Unlock()

	c.mode("run")
	go func() {
		defer close(done)
		defer cancel()
		res := c.program.Execute(ctx)
		// The run counts as active until its closing messages are queued.
		defer func() {
			c.mu.Lock()
			c.done, c.cancel = nil, nil
			c.settleLocked()
			c.mu.Unlock()
		}()

		c.send(shared.Message{
			Type:    shared.MessageTypeResult,
			Content: res.Message,
			Line:    res.Line,
			Success: shared.Bool(res.Success),
		})
		if !res.Success {
			c.fail(res.Err)
		}
		if c.program.Debugging() {
			c.mode("debug")
		} else {
			c.mode("basic")
		}
		c.text("READY.")
	}()
}

// Stop aborts the current run, if any.
func (c *Console) Stop() {
	c.wake()
	c.program.Stop()
}

// Wait blocks until the current run, if any, has finished.
func (c *Console) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Console) save(name string) {
	if c.library == nil {
		c.fail(errNoLibrary)
		return
	}
	listing := c.program.RenderProgramListing()
	if listing == "" {
		c.fail(basic.NewBASICError(basic.ErrCategoryCommand, basic.ErrNoProgram, "nothing to save"))
		return
	}
	if _, err := c.library.SaveProgram(context.Background(), c.owner, name, listing); err != nil {
		c.fail(err)
		return
	}
	c.text(fmt.Sprintf("SAVED %s", name))
}

func (c *Console) load(name string) {
	if c.library == nil {
		c.fail(errNoLibrary)
		return
	}
	rec, err := c.library.LoadProgram(context.Background(), c.owner, name)
	if err != nil {
		c.fail(err)
		return
	}
	n, err := basic.LoadProgram(c.program, strings.NewReader(rec.Source))
	if err != nil {
		c.fail(err)
		return
	}
	logger.Info(logger.AreaConsole, "%s loaded %s (%d lines)", c.owner, name, n)
	c.text(fmt.Sprintf("LOADED %s (%d LINES)", name, n))
}

func (c *Console) files() {
	if c.library == nil {
		c.fail(errNoLibrary)
		return
	}
	records, err := c.library.ListPrograms(context.Background(), c.owner)
	if err != nil {
		c.fail(err)
		return
	}
	if len(records) == 0 {
		c.text("NO PROGRAMS")
		return
	}
	for _, rec := range records {
		c.text(fmt.Sprintf("%-32s %s", rec.Name, rec.UpdatedAt.Format("2006-01-02 15:04")))
	}
}

func (c *Console) erase(name string) {
	if c.library == nil {
		c.fail(errNoLibrary)
		return
	}
	if err := c.library.DeleteProgram(context.Background(), c.owner, name); err != nil {
		c.fail(err)
		return
	}
	c.text(fmt.Sprintf("ERASED %s", name))
}

func (c *Console) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close aborts any run and stops all output. It is safe to call twice.
func (c *Console) Close() {
	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return
	}
	close(c.closed)
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.program.Stop()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	logger.Debug(logger.AreaConsole, "Session of %s closed", c.owner)
}
