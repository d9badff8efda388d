package basic

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CommandKind classifies a console line.
type CommandKind int

const (
	CmdNone CommandKind = iota
	CmdEdit
	CmdLoad
	CmdSave
	CmdFiles
	CmdErase
	CmdRun
	CmdClear
	CmdList
	CmdQuit
	CmdVars
	CmdTree
	CmdDebug
	CmdBreak
	CmdUnbreak
	CmdBreaks
	CmdNoBreak
	CmdResume
	CmdExit
)

var commandVerbs = map[string]CommandKind{
	"LOAD":    CmdLoad,
	"SAVE":    CmdSave,
	"FILES":   CmdFiles,
	"ERASE":   CmdErase,
	"RUN":     CmdRun,
	"CLEAR":   CmdClear,
	"LIST":    CmdList,
	"QUIT":    CmdQuit,
	"VARS":    CmdVars,
	"TREE":    CmdTree,
	"DEBUG":   CmdDebug,
	"BREAK":   CmdBreak,
	"UNBREAK": CmdUnbreak,
	"BREAKS":  CmdBreaks,
	"NOBREAK": CmdNoBreak,
	"RESUME":  CmdResume,
	"EXIT":    CmdExit,
}

// Command is one parsed console line.
type Command struct {
	Kind CommandKind
	Verb string
	Arg  string // LOAD, SAVE and ERASE file name
	Line int    // edit, BREAK and UNBREAK line number
	Text string // edit statement text, empty to delete
	On   bool   // DEBUG
}

// RedoFromStart is shown when an INPUT answer is not an integer.
const RedoFromStart = "?REDO FROM START"

// ParseCommand classifies a console line. Verbs are case-sensitive. A line
// starting with a number is a program edit.
func ParseCommand(input string) (Command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Command{Kind: CmdNone}, nil
	}
	verb, arg := splitKeyword(input)

	if n, err := strconv.Atoi(verb); err == nil {
		return Command{Kind: CmdEdit, Verb: verb, Line: n, Text: arg}, nil
	}

	kind, ok := commandVerbs[verb]
	if !ok {
		return Command{}, commandError(ErrUnknownCommand, "unknown command %s", verb)
	}
	cmd := Command{Kind: kind, Verb: verb}

	switch kind {
	case CmdLoad, CmdSave, CmdErase:
		if arg == "" {
			return Command{}, commandError(ErrSyntax, "%s needs a program name", verb)
		}
		cmd.Arg = arg
	case CmdBreak, CmdUnbreak:
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return Command{}, commandError(ErrInvalidLineNumber, "%s needs a line number", verb)
		}
		cmd.Line = n
	case CmdDebug:
		switch arg {
		case "", "ON":
			cmd.On = true
		case "OFF":
		default:
			return Command{}, commandError(ErrSyntax, "DEBUG ON or DEBUG OFF expected")
		}
	}
	return cmd, nil
}

// LoadProgram replaces the program with a script read from r. Every
// non-blank line must be a numbered statement. On the first bad line the
// program is cleared and the error names that script line. It returns the
// number of statements loaded.
func LoadProgram(p *Program, r io.Reader) (int, error) {
	if err := p.Clear(); err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(r)
	loaded, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := loadLine(p, text); err != nil {
			p.Clear()
			return 0, fmt.Errorf("script line %d: %w", lineNo, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		p.Clear()
		return 0, fmt.Errorf("reading script: %w", err)
	}
	return loaded, nil
}

func loadLine(p *Program, text string) error {
	cmd, err := ParseCommand(text)
	if err != nil {
		return err
	}
	if cmd.Kind != CmdEdit {
		return commandError(ErrSyntax, "numbered statement expected, found %s", cmd.Verb)
	}
	if strings.TrimSpace(cmd.Text) == "" {
		return commandError(ErrSyntax, "line %d has no statement", cmd.Line)
	}
	return p.UpdateStatement(cmd.Line, cmd.Text)
}

// ParseInputValue parses an answer to INPUT. A leading "?" echoed from the
// prompt is ignored.
func ParseInputValue(text string) (int, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimSpace(strings.TrimPrefix(s, "?"))
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, commandError(ErrInvalidInput, "%q is not an integer", s)
	}
	return v, nil
}
