package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antibyte/retrobasic/pkg/console"
	"github.com/antibyte/retrobasic/pkg/store"
)

func newTestRepl(t *testing.T, library console.Library) (*repl, *bytes.Buffer) {
	t.Helper()
	c := console.New(library, "tester", console.Options{MaxSteps: 10000})
	t.Cleanup(c.Close)
	var out bytes.Buffer
	return newRepl(c, &out), &out
}

func TestRunLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "loop",
			input: "10 LET I = 1\n20 PRINT I\n30 LET I = I + 1\n40 IF I < 4 THEN 20\nRUN\n",
			want:  []string{"1", "2", "3", "READY."},
		},
		{
			name:  "input",
			input: "10 INPUT N\n20 PRINT N * 2\nRUN\nabc\n21\n",
			want:  []string{"?REDO FROM START", "42", "READY."},
		},
		{
			name:  "runtime error",
			input: "10 PRINT 1 / 0\nRUN\n",
			want:  []string{"IN LINE 10: division by zero"},
		},
		{
			name:  "unknown command",
			input: "HELLO\n",
			want:  []string{"COMMAND ERROR"},
		},
		{
			name:  "list",
			input: "20 END\n10 PRINT 5\nLIST\n",
			want:  []string{"10 PRINT 5\n20 END"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out := newTestRepl(t, nil)
			if err := r.runLines(strings.NewReader(tt.input)); err != nil {
				t.Fatalf("runLines error: %v", err)
			}
			r.console.Wait()
			r.drain()
			got := out.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("output missing %q:\n%s", w, got)
				}
			}
		})
	}
}

func TestPromptFollowsInputWait(t *testing.T) {
	r, _ := newTestRepl(t, nil)
	if r.prompt() != commandPrompt {
		t.Fatalf("prompt = %q", r.prompt())
	}
	r.handle("10 INPUT A")
	r.handle("RUN")
	if r.prompt() != inputPrompt {
		t.Errorf("prompt during INPUT = %q", r.prompt())
	}
	r.handle("5")
	r.console.Wait()
	if r.prompt() != commandPrompt {
		t.Errorf("prompt after run = %q", r.prompt())
	}
}

func TestDebugSession(t *testing.T) {
	r, out := newTestRepl(t, nil)
	for _, line := range []string{"10 LET X = 3", "20 PRINT X", "DEBUG ON", "BREAK 20", "RUN"} {
		r.handle(line)
	}
	if !strings.Contains(out.String(), "BREAK IN LINE 20") {
		t.Fatalf("no breakpoint report:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "X = 3") {
		t.Errorf("variables missing:\n%s", out.String())
	}
	r.handle("RESUME")
	r.console.Wait()
	r.drain()
	if !strings.Contains(out.String(), "DEBUG MODE\n") || !strings.Contains(out.String(), "3\nREADY.") {
		t.Errorf("run did not finish after RESUME:\n%s", out.String())
	}
}

func TestQuitEndsSession(t *testing.T) {
	r, out := newTestRepl(t, nil)
	if err := r.runLines(strings.NewReader("QUIT\n10 PRINT 1\n")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "BYE") {
		t.Errorf("output = %q", out.String())
	}
	if r.console.Program().Len() != 0 {
		t.Error("lines after QUIT were executed")
	}
}

func TestLibraryRoundTrip(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "repl.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	r, out := newTestRepl(t, s)
	input := "10 PRINT 99\nSAVE ninety\nCLEAR\nFILES\nLOAD ninety\nRUN\n"
	if err := r.runLines(strings.NewReader(input)); err != nil {
		t.Fatal(err)
	}
	r.console.Wait()
	r.drain()
	for _, w := range []string{"SAVED ninety", "ninety", "LOADED ninety", "99"} {
		if !strings.Contains(out.String(), w) {
			t.Errorf("output missing %q:\n%s", w, out.String())
		}
	}
}
