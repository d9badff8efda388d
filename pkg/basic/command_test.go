package basic

import (
	"errors"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"", Command{Kind: CmdNone}},
		{"   ", Command{Kind: CmdNone}},
		{"RUN", Command{Kind: CmdRun, Verb: "RUN"}},
		{"  LIST  ", Command{Kind: CmdList, Verb: "LIST"}},
		{"LOAD demo", Command{Kind: CmdLoad, Verb: "LOAD", Arg: "demo"}},
		{"SAVE my prog", Command{Kind: CmdSave, Verb: "SAVE", Arg: "my prog"}},
		{"ERASE demo", Command{Kind: CmdErase, Verb: "ERASE", Arg: "demo"}},
		{"DEBUG", Command{Kind: CmdDebug, Verb: "DEBUG", On: true}},
		{"DEBUG ON", Command{Kind: CmdDebug, Verb: "DEBUG", On: true}},
		{"DEBUG OFF", Command{Kind: CmdDebug, Verb: "DEBUG"}},
		{"BREAK 20", Command{Kind: CmdBreak, Verb: "BREAK", Line: 20}},
		{"UNBREAK 20", Command{Kind: CmdUnbreak, Verb: "UNBREAK", Line: 20}},
		{"10 PRINT 1", Command{Kind: CmdEdit, Verb: "10", Line: 10, Text: "PRINT 1"}},
		{"10", Command{Kind: CmdEdit, Verb: "10", Line: 10}},
		{"0 PRINT 1", Command{Kind: CmdEdit, Verb: "0", Line: 0, Text: "PRINT 1"}},
		{"RESUME", Command{Kind: CmdResume, Verb: "RESUME"}},
		{"EXIT", Command{Kind: CmdExit, Verb: "EXIT"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCommand(tt.input)
			if err != nil {
				t.Fatalf("ParseCommand(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		input string
		kind  error
	}{
		{"run", ErrUnknownCommand},
		{"PRINT 1", ErrUnknownCommand},
		{"LOAD", ErrSyntax},
		{"BREAK", ErrInvalidLineNumber},
		{"BREAK x", ErrInvalidLineNumber},
		{"UNBREAK -1", ErrInvalidLineNumber},
		{"DEBUG MAYBE", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseCommand(tt.input)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("ParseCommand(%q) error = %v, want %v", tt.input, err, tt.kind)
			}
			var be *BASICError
			if errors.As(err, &be) && be.Category != ErrCategoryCommand {
				t.Errorf("category = %q, want %q", be.Category, ErrCategoryCommand)
			}
		})
	}
}

func TestLoadProgram(t *testing.T) {
	script := "10 LET X = 2\n\n   \n20 PRINT X * 21\r\n30 END\n"
	p := NewProgram(nil, Options{})
	p.UpdateStatement(99, "PRINT 0")

	n, err := LoadProgram(p, strings.NewReader(script))
	if err != nil {
		t.Fatalf("LoadProgram error: %v", err)
	}
	if n != 3 {
		t.Errorf("loaded %d statements, want 3", n)
	}
	want := "10 LET X = 2\n20 PRINT X * 21\n30 END\n"
	if got := p.RenderProgramListing(); got != want {
		t.Errorf("listing = %q, want %q", got, want)
	}
}

func TestLoadProgramFailureClears(t *testing.T) {
	tests := []struct {
		name   string
		script string
		line   string
		kind   error
	}{
		{"bad statement", "10 PRINT 1\n20 PRINT (\n30 END", "script line 2", ErrSyntax},
		{"command in script", "10 PRINT 1\nRUN", "script line 2", ErrSyntax},
		{"garbage", "10 PRINT 1\n\nhello world", "script line 3", ErrUnknownCommand},
		{"bare line number", "10", "script line 1", ErrSyntax},
		{"line zero", "0 PRINT 1", "script line 1", ErrInvalidLineNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgram(nil, Options{})
			_, err := LoadProgram(p, strings.NewReader(tt.script))
			if !errors.Is(err, tt.kind) {
				t.Fatalf("error = %v, want %v", err, tt.kind)
			}
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("error %q does not name %q", err, tt.line)
			}
			if p.Len() != 0 {
				t.Errorf("partially loaded program left %d lines", p.Len())
			}
		})
	}
}

func TestParseInputValue(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{"42", 42, true},
		{"  -7 ", -7, true},
		{"? 12", 12, true},
		{"?5", 5, true},
		{"", 0, false},
		{"abc", 0, false},
		{"1.5", 0, false},
		{"12 13", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseInputValue(tt.input)
			if tt.ok {
				if err != nil || got != tt.want {
					t.Errorf("ParseInputValue(%q) = %d, %v, want %d", tt.input, got, err, tt.want)
				}
				return
			}
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ParseInputValue(%q) error = %v, want ErrInvalidInput", tt.input, err)
			}
		})
	}
}
