// Package basic implements a minimal line-numbered BASIC interpreter with a
// single-stepping debugger.
package basic

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the interpreter wraps exactly one of
// these, so callers can test with errors.Is.
var (
	ErrLex                   = errors.New("unrecognized character")
	ErrSyntax                = errors.New("syntax error")
	ErrName                  = errors.New("invalid variable name")
	ErrUndefinedVariable     = errors.New("undefined variable")
	ErrDivisionByZero        = errors.New("division by zero")
	ErrInvalidJump           = errors.New("jump to missing line")
	ErrInvalidLineNumber     = errors.New("invalid line number")
	ErrNoProgram             = errors.New("no program loaded")
	ErrProgramAlreadyRunning = errors.New("program already running")
	ErrInputNotExpected      = errors.New("no input expected")
	ErrNotSuspended          = errors.New("program not suspended at a breakpoint")
	ErrInvalidInput          = errors.New("input is not an integer")
	ErrStepLimit             = errors.New("step limit exceeded")
	ErrTooManyLines          = errors.New("too many program lines")
	ErrUnknownCommand        = errors.New("unknown command")
)

// errHalted is returned from a blocking wait when the run was stopped from
// outside. The run loop turns it into a successful result.
var errHalted = errors.New("execution halted")

// Error categories, as shown to the user.
const (
	ErrCategorySyntax     = "SYNTAX ERROR"
	ErrCategoryRuntime    = "RUNTIME ERROR"
	ErrCategoryEvaluation = "EVALUATION ERROR"
	ErrCategoryCommand    = "COMMAND ERROR"
)

// BASICError is a structured interpreter error.
type BASICError struct {
	Category   string // e.g. SYNTAX ERROR
	Kind       error  // one of the Err* sentinels
	Message    string // detail, without category or line
	LineNumber int    // program line, 0 if unknown
}

// Error implements the error interface.
func (be *BASICError) Error() string {
	if be.LineNumber > 0 {
		return fmt.Sprintf("%s IN LINE %d: %s", be.Category, be.LineNumber, be.Message)
	}
	return be.Category + ": " + be.Message
}

// Unwrap exposes the error kind.
func (be *BASICError) Unwrap() error {
	return be.Kind
}

// NewBASICError creates a new error of the given category and kind.
func NewBASICError(category string, kind error, format string, args ...interface{}) *BASICError {
	return &BASICError{
		Category: category,
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
	}
}

// AtLine returns a copy of the error bound to a program line.
func (be *BASICError) AtLine(line int) *BASICError {
	c := *be
	c.LineNumber = line
	return &c
}

func commandError(kind error, format string, args ...interface{}) *BASICError {
	return NewBASICError(ErrCategoryCommand, kind, format, args...)
}

func syntaxError(format string, args ...interface{}) *BASICError {
	return NewBASICError(ErrCategorySyntax, ErrSyntax, format, args...)
}

// lexError reports an unrecognized character at a byte offset.
func lexError(ch rune, pos int) *BASICError {
	return NewBASICError(ErrCategorySyntax, ErrLex, "unrecognized character %q at position %d", ch, pos)
}

func nameError(name string) *BASICError {
	return NewBASICError(ErrCategoryEvaluation, ErrName, "invalid variable name %q", name)
}

func undefinedVariableError(name string) *BASICError {
	return NewBASICError(ErrCategoryEvaluation, ErrUndefinedVariable, "variable %s not defined", name)
}

func divisionByZeroError(op string) *BASICError {
	return NewBASICError(ErrCategoryEvaluation, ErrDivisionByZero, "division by zero in %s", op)
}

func invalidJumpError(from, to int) *BASICError {
	return NewBASICError(ErrCategoryRuntime, ErrInvalidJump, "line %d jumps to missing line %d", from, to).AtLine(from)
}

// withLine attaches a line number to err when it is a *BASICError without
// one, and wraps foreign errors into a runtime error.
func withLine(err error, line int) error {
	var be *BASICError
	if errors.As(err, &be) {
		if be.LineNumber == 0 {
			return be.AtLine(line)
		}
		return be
	}
	return &BASICError{Category: ErrCategoryRuntime, Kind: err, Message: err.Error(), LineNumber: line}
}

// RunResult is the outcome of one Program.Execute call.
type RunResult struct {
	Success bool
	Line    int    // failing line, 0 on success
	Message string // failure message, empty on success
	Err     error  // underlying error, nil on success
}

func succeeded() RunResult {
	return RunResult{Success: true}
}

func failed(line int, err error) RunResult {
	err = withLine(err, line)
	return RunResult{Line: line, Message: err.Error(), Err: err}
}
