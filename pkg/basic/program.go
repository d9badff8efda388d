package basic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/google/btree"
)

// State is the run state of a Program.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateSuspendedBreakpoint
	StateSuspendedInput
	StateHalted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateSuspendedBreakpoint:
		return "BREAK"
	case StateSuspendedInput:
		return "INPUT"
	case StateHalted:
		return "HALTED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// active reports whether a run is in progress.
func (s State) active() bool {
	return s == StateRunning || s == StateSuspendedBreakpoint || s == StateSuspendedInput
}

// Host is the display sink and input source of a Program. Callbacks are
// invoked without internal locks held, so a host may call back into the
// Program (for example Resume or ProvideInput) from inside them.
type Host interface {
	EmitOutput(text string)
	// RequestInput announces that INPUT waits for a value for name. The
	// host answers with ProvideInput.
	RequestInput(name string)
	NotifyBreakpointHit(line int, variables string)
	NotifyListingChanged(listing, trees string)
	NotifyBreakpointsChanged(breakpoints string)
}

type nopHost struct{}

func (nopHost) EmitOutput(string)                  {}
func (nopHost) RequestInput(string)                {}
func (nopHost) NotifyBreakpointHit(int, string)    {}
func (nopHost) NotifyListingChanged(string, string) {}
func (nopHost) NotifyBreakpointsChanged(string)    {}

// Options bound a Program. Zero values mean unlimited.
type Options struct {
	MaxLines int // stored statements
	MaxSteps int // executed statements per run
}

const haltPC = -1

// Program holds the statements, the variables and the debugger state of one
// BASIC program.
type Program struct {
	mu   sync.Mutex
	host Host
	opts Options

	lines *btree.BTreeG[*Statement]
	vars  Variables
	pc    int
	state State

	debug       bool
	breakpoints map[int]bool
	waitingFor  string

	// Per run. resumeCh and inputCh carry at most one pending signal and
	// are only written while the matching suspended state is set.
	ended    bool
	rewind   bool // finish leaves pc on the lowest line
	abort    chan struct{}
	resumeCh chan struct{}
	inputCh  chan int
}

// NewProgram creates an empty program. A nil host discards all output.
func NewProgram(host Host, opts Options) *Program {
	if host == nil {
		host = nopHost{}
	}
	return &Program{
		host:        host,
		opts:        opts,
		lines:       btree.NewG(16, func(a, b *Statement) bool { return a.Line < b.Line }),
		vars:        make(Variables),
		pc:          haltPC,
		breakpoints: make(map[int]bool),
	}
}

// UpdateStatement stores, replaces or, for empty text, deletes the statement
// at line. A statement that does not parse leaves the previous one in place.
func (p *Program) UpdateStatement(line int, text string) error {
	if line <= 0 {
		return NewBASICError(ErrCategoryCommand, ErrInvalidLineNumber, "invalid line number %d", line)
	}
	text = strings.TrimSpace(text)

	p.mu.Lock()
	if p.state.active() {
		p.mu.Unlock()
		return NewBASICError(ErrCategoryCommand, ErrProgramAlreadyRunning, "cannot edit while running")
	}
	if text == "" {
		if _, ok := p.lines.Delete(&Statement{Line: line}); !ok {
			p.mu.Unlock()
			return nil
		}
	} else {
		_, exists := p.lines.Get(&Statement{Line: line})
		if !exists && p.opts.MaxLines > 0 && p.lines.Len() >= p.opts.MaxLines {
			p.mu.Unlock()
			return NewBASICError(ErrCategoryCommand, ErrTooManyLines, "program exceeds %d lines", p.opts.MaxLines)
		}
		st, err := ParseStatement(line, text)
		if err != nil {
			p.mu.Unlock()
			logger.Debug(logger.AreaInterpreter, "Rejected line %d: %v", line, err)
			return err
		}
		p.lines.ReplaceOrInsert(st)
	}
	listing, trees := p.listingLocked(), p.treesLocked()
	p.mu.Unlock()

	p.host.NotifyListingChanged(listing, trees)
	return nil
}

// Clear removes all statements, variables and breakpoints.
func (p *Program) Clear() error {
	p.mu.Lock()
	if p.state.active() {
		p.mu.Unlock()
		return NewBASICError(ErrCategoryCommand, ErrProgramAlreadyRunning, "cannot clear while running")
	}
	p.lines.Clear(false)
	p.vars = make(Variables)
	p.breakpoints = make(map[int]bool)
	p.pc = haltPC
	p.state = StateIdle
	p.mu.Unlock()

	p.host.NotifyListingChanged("", "")
	p.host.NotifyBreakpointsChanged("")
	return nil
}

// Execute runs the program from its lowest line until END, the last line,
// an error or an abort. It blocks while the run is suspended at a
// breakpoint or waiting for input. Stop and ExitDebug end the run
// successfully; cancelling ctx ends it with ctx's error.
func (p *Program) Execute(ctx context.Context) RunResult {
	p.mu.Lock()
	if p.state.active() {
		p.mu.Unlock()
		return failed(0, NewBASICError(ErrCategoryCommand, ErrProgramAlreadyRunning, "program already running"))
	}
	if p.lines.Len() == 0 {
		p.mu.Unlock()
		return failed(0, NewBASICError(ErrCategoryCommand, ErrNoProgram, "no program"))
	}

	p.vars = make(Variables)
	p.ended, p.rewind = false, false
	p.waitingFor = ""
	p.abort = make(chan struct{})
	p.resumeCh = make(chan struct{}, 1)
	p.inputCh = make(chan int, 1)

	// Parse everything before the first statement runs.
	var parsed []*Statement
	var parseErr error
	parseLine := 0
	p.lines.Ascend(func(old *Statement) bool {
		st, err := ParseStatement(old.Line, old.Text)
		if err != nil {
			parseErr, parseLine = err, old.Line
			return false
		}
		parsed = append(parsed, st)
		return true
	})
	if parseErr != nil {
		p.state = StateFailed
		p.pc = haltPC
		p.mu.Unlock()
		logger.Warn(logger.AreaInterpreter, "Program does not parse: %v", parseErr)
		return failed(parseLine, parseErr)
	}
	for _, st := range parsed {
		p.lines.ReplaceOrInsert(st)
	}

	first, _ := p.lines.Min()
	p.pc = first.Line
	p.state = StateRunning
	run := &runContext{p: p, ctx: ctx, abort: p.abort, resume: p.resumeCh, input: p.inputCh}
	p.mu.Unlock()

	logger.Info(logger.AreaInterpreter, "Run started at line %d (%d lines, debug=%v)", first.Line, len(parsed), p.Debugging())
	return p.loop(run)
}

func (p *Program) loop(run *runContext) RunResult {
	steps := 0
	for {
		select {
		case <-run.abort:
			return p.finish(StateHalted, succeeded())
		case <-run.ctx.Done():
			return p.finish(StateFailed, failed(p.Line(), run.ctx.Err()))
		default:
		}

		p.mu.Lock()
		pc := p.pc
		st, ok := p.lines.Get(&Statement{Line: pc})
		stop := p.debug && p.breakpoints[pc]
		p.mu.Unlock()
		if !ok {
			return p.finish(StateFailed, failed(pc, NewBASICError(ErrCategoryRuntime, ErrInvalidJump, "line %d vanished", pc)))
		}

		if stop {
			if err := run.waitAtBreakpoint(pc); err != nil {
				return p.stopped(pc, err)
			}
		}

		steps++
		if p.opts.MaxSteps > 0 && steps > p.opts.MaxSteps {
			return p.finish(StateFailed, failed(pc, NewBASICError(ErrCategoryRuntime, ErrStepLimit, "STEP LIMIT EXCEEDED")))
		}

		d, err := st.Execute(run)
		if err != nil {
			return p.stopped(pc, err)
		}

		switch d {
		case Terminate:
			return p.finish(StateHalted, succeeded())
		case Continue:
			next, ok := p.nextLine(pc)
			if !ok {
				return p.finish(StateHalted, succeeded())
			}
			p.setPC(next)
		default:
			target := int(d)
			if !p.hasLine(target) {
				return p.finish(StateFailed, failed(pc, invalidJumpError(pc, target)))
			}
			p.setPC(target)
		}
	}
}

// stopped turns an error out of a statement or a wait into a run result.
func (p *Program) stopped(line int, err error) RunResult {
	if errors.Is(err, errHalted) {
		return p.finish(StateHalted, succeeded())
	}
	return p.finish(StateFailed, failed(line, err))
}

func (p *Program) finish(state State, res RunResult) RunResult {
	p.mu.Lock()
	p.state = state
	p.pc = haltPC
	if p.rewind {
		p.pc, p.rewind = p.firstLineLocked(), false
	}
	p.ended = true
	p.waitingFor = ""
	p.mu.Unlock()

	if res.Success {
		logger.Info(logger.AreaInterpreter, "Run finished")
	} else {
		logger.Warn(logger.AreaInterpreter, "Run failed: %s", res.Message)
	}
	return res
}

// firstLineLocked returns the lowest stored line, or haltPC.
func (p *Program) firstLineLocked() int {
	if first, ok := p.lines.Min(); ok {
		return first.Line
	}
	return haltPC
}

func (p *Program) setPC(line int) {
	p.mu.Lock()
	p.pc = line
	p.mu.Unlock()
}

func (p *Program) nextLine(after int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := haltPC
	p.lines.AscendGreaterOrEqual(&Statement{Line: after + 1}, func(st *Statement) bool {
		next = st.Line
		return false
	})
	return next, next != haltPC
}

func (p *Program) hasLine(line int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines.Has(&Statement{Line: line})
}

// runContext is the Machine a run executes statements against.
type runContext struct {
	p      *Program
	ctx    context.Context
	abort  <-chan struct{}
	resume <-chan struct{}
	input  <-chan int
}

func (r *runContext) Lookup(name string) (int, bool) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return r.p.vars.Lookup(name)
}

func (r *runContext) Assign(name string, value int) {
	r.p.mu.Lock()
	r.p.vars[name] = value
	r.p.mu.Unlock()
}

func (r *runContext) Emit(text string) {
	r.p.host.EmitOutput(text)
}

func (r *runContext) Input(name string) (int, error) {
	p := r.p
	p.mu.Lock()
	p.state = StateSuspendedInput
	p.waitingFor = name
	p.mu.Unlock()

	logger.Debug(logger.AreaInterpreter, "Waiting for input of %s", name)
	p.host.RequestInput(name)

	select {
	case v := <-r.input:
		logger.Debug(logger.AreaInterpreter, "Input %s = %d", name, v)
		return v, nil
	case <-r.abort:
		return 0, errHalted
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}

func (r *runContext) waitAtBreakpoint(line int) error {
	p := r.p
	p.mu.Lock()
	p.state = StateSuspendedBreakpoint
	vars := p.vars.Render()
	p.mu.Unlock()

	logger.Info(logger.AreaDebugger, "Breakpoint hit at line %d", line)
	p.host.NotifyBreakpointHit(line, vars)

	select {
	case <-r.resume:
		logger.Debug(logger.AreaDebugger, "Resumed at line %d", line)
		return nil
	case <-r.abort:
		return errHalted
	case <-r.ctx.Done():
		return r.ctx.Err()
	}
}

// ProvideInput delivers the value for a pending INPUT.
func (p *Program) ProvideInput(value int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateSuspendedInput {
		return NewBASICError(ErrCategoryCommand, ErrInputNotExpected, "no input expected")
	}
	p.state = StateRunning
	p.waitingFor = ""
	p.inputCh <- value
	return nil
}

// Resume continues a run suspended at a breakpoint. The breakpointed line
// runs next.
func (p *Program) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateSuspendedBreakpoint {
		return NewBASICError(ErrCategoryCommand, ErrNotSuspended, "not stopped at a breakpoint")
	}
	p.state = StateRunning
	p.resumeCh <- struct{}{}
	return nil
}

// Stop aborts the current run, if any. The run ends successfully.
func (p *Program) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abortLocked()
}

func (p *Program) abortLocked() bool {
	if !p.state.active() || p.ended {
		return false
	}
	p.ended = true
	close(p.abort)
	logger.Info(logger.AreaInterpreter, "Run aborted at line %d", p.pc)
	return true
}

// ExitDebug aborts any run, leaves debug mode and removes all breakpoints.
func (p *Program) ExitDebug() {
	p.mu.Lock()
	p.abortLocked()
	p.debug = false
	p.breakpoints = make(map[int]bool)
	p.mu.Unlock()

	logger.Info(logger.AreaDebugger, "Debug mode left")
	p.host.NotifyBreakpointsChanged("")
}

// SetDebugMode switches debug mode. Any run in progress is aborted and the
// program counter is set back to the lowest line.
func (p *Program) SetDebugMode(on bool) {
	p.mu.Lock()
	p.debug = on
	if p.state.active() {
		p.abortLocked()
		p.rewind = true
	} else {
		p.pc = p.firstLineLocked()
		p.state = StateIdle
	}
	p.mu.Unlock()
	logger.Info(logger.AreaDebugger, "Debug mode %v", on)
}

// Debugging reports whether debug mode is on.
func (p *Program) Debugging() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.debug
}

// SetBreakpoint marks line as a breakpoint.
func (p *Program) SetBreakpoint(line int) error {
	if line <= 0 {
		return NewBASICError(ErrCategoryCommand, ErrInvalidLineNumber, "invalid line number %d", line)
	}
	p.mu.Lock()
	p.breakpoints[line] = true
	listing := p.breakpointsLocked()
	p.mu.Unlock()
	p.host.NotifyBreakpointsChanged(listing)
	return nil
}

// RemoveBreakpoint unmarks line.
func (p *Program) RemoveBreakpoint(line int) {
	p.mu.Lock()
	delete(p.breakpoints, line)
	listing := p.breakpointsLocked()
	p.mu.Unlock()
	p.host.NotifyBreakpointsChanged(listing)
}

// ClearBreakpoints removes all breakpoints.
func (p *Program) ClearBreakpoints() {
	p.mu.Lock()
	p.breakpoints = make(map[int]bool)
	p.mu.Unlock()
	p.host.NotifyBreakpointsChanged("")
}

// IsBreakpoint reports whether line is a breakpoint.
func (p *Program) IsBreakpoint(line int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.breakpoints[line]
}

// State returns the run state.
func (p *Program) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Line returns the line about to run. Outside a run it is -1, or the
// lowest line after SetDebugMode.
func (p *Program) Line() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

// WaitingFor returns the variable a pending INPUT waits for.
func (p *Program) WaitingFor() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waitingFor, p.state == StateSuspendedInput
}

// Len returns the number of stored statements.
func (p *Program) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines.Len()
}

// RenderVariables lists the variables as "name = value" lines.
func (p *Program) RenderVariables() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vars.Render()
}

// RenderBreakpoints lists the breakpoint lines in ascending order.
func (p *Program) RenderBreakpoints() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.breakpointsLocked()
}

// RenderProgramListing lists the program as "line text" lines.
func (p *Program) RenderProgramListing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listingLocked()
}

// RenderSyntaxTrees dumps the parsed tree of every statement.
func (p *Program) RenderSyntaxTrees() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.treesLocked()
}

func (p *Program) breakpointsLocked() string {
	lines := make([]int, 0, len(p.breakpoints))
	for l := range p.breakpoints {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	var sb strings.Builder
	for _, l := range lines {
		fmt.Fprintf(&sb, "%d\n", l)
	}
	return sb.String()
}

func (p *Program) listingLocked() string {
	var sb strings.Builder
	p.lines.Ascend(func(st *Statement) bool {
		fmt.Fprintf(&sb, "%d %s\n", st.Line, st.Text)
		return true
	})
	return sb.String()
}

func (p *Program) treesLocked() string {
	var sb strings.Builder
	p.lines.Ascend(func(st *Statement) bool {
		sb.WriteString(st.Render())
		return true
	})
	return sb.String()
}

// StatementInfo describes one stored statement.
type StatementInfo struct {
	Line       int
	Kind       string
	Text       string
	Name       string `json:",omitempty"`
	Comparator string `json:",omitempty"`
	Target     int    `json:",omitempty"`
}

// Snapshot describes the stored statements in line order.
func (p *Program) Snapshot() []StatementInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	infos := make([]StatementInfo, 0, p.lines.Len())
	p.lines.Ascend(func(st *Statement) bool {
		info := StatementInfo{Line: st.Line, Kind: st.Kind.String(), Text: st.Text, Name: st.Name, Target: st.Target}
		if st.Comparator != 0 {
			info.Comparator = string(st.Comparator)
		}
		infos = append(infos, info)
		return true
	})
	return infos
}
