package console

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antibyte/retrobasic/pkg/shared"
	"github.com/antibyte/retrobasic/pkg/store"
)

// memLibrary is an in-memory Library.
type memLibrary struct {
	mu       sync.Mutex
	programs map[string]string
}

func newMemLibrary() *memLibrary {
	return &memLibrary{programs: make(map[string]string)}
}

func (m *memLibrary) key(owner, name string) string { return owner + "/" + name }

func (m *memLibrary) SaveProgram(_ context.Context, owner, name, source string) (store.ProgramRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[m.key(owner, name)] = source
	return store.ProgramRecord{Owner: owner, Name: name, Source: source}, nil
}

func (m *memLibrary) LoadProgram(_ context.Context, owner, name string) (store.ProgramRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.programs[m.key(owner, name)]
	if !ok {
		return store.ProgramRecord{}, fmt.Errorf("%w: %s", store.ErrProgramNotFound, name)
	}
	return store.ProgramRecord{Owner: owner, Name: name, Source: src}, nil
}

func (m *memLibrary) ListPrograms(_ context.Context, owner string) ([]store.ProgramRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var recs []store.ProgramRecord
	for k := range m.programs {
		if strings.HasPrefix(k, owner+"/") {
			recs = append(recs, store.ProgramRecord{Owner: owner, Name: strings.TrimPrefix(k, owner+"/"), UpdatedAt: time.Now()})
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })
	return recs, nil
}

func (m *memLibrary) DeleteProgram(_ context.Context, owner, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.programs[m.key(owner, name)]; !ok {
		return fmt.Errorf("%w: %s", store.ErrProgramNotFound, name)
	}
	delete(m.programs, m.key(owner, name))
	return nil
}

func newTestConsole(t *testing.T, lib Library) *Console {
	t.Helper()
	c := New(lib, "tester", Options{MaxSteps: 10000, SessionID: "s1"})
	t.Cleanup(c.Close)
	return c
}

// expect reads messages until one of type typ whose content contains want.
func expect(t *testing.T, c *Console, typ shared.MessageType, want string) shared.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.Output():
			if msg.Type == typ && strings.Contains(msg.Content, want) {
				return msg
			}
		case <-timeout:
			t.Fatalf("no message of type %d containing %q", typ, want)
			return shared.Message{}
		}
	}
}

func execAll(c *Console, lines ...string) {
	for _, line := range lines {
		c.Execute(line)
	}
}

func TestRunPrintsOutput(t *testing.T) {
	c := newTestConsole(t, nil)
	execAll(c, "10 LET X=0", "20 LET X=X+1", "30 IF X<3 THEN 20", "40 PRINT X", "50 END")

	listing := expect(t, c, shared.MessageTypeListing, "50 END")
	if !strings.Contains(listing.Trees, "30 IF THEN 20") {
		t.Errorf("trees = %q", listing.Trees)
	}

	c.Execute("RUN")
	msg := expect(t, c, shared.MessageTypeText, "3")
	if msg.SessionID != "s1" {
		t.Errorf("session id = %q, want s1", msg.SessionID)
	}
	res := expect(t, c, shared.MessageTypeResult, "")
	if res.Success == nil || !*res.Success {
		t.Errorf("result = %+v, want success", res)
	}
	expect(t, c, shared.MessageTypeText, "READY.")
}

func TestRunFailureReportsLine(t *testing.T) {
	c := newTestConsole(t, nil)
	execAll(c, "10 PRINT 1", "20 GOTO 77")
	c.Execute("RUN")

	res := expect(t, c, shared.MessageTypeResult, "")
	if res.Success == nil || *res.Success || res.Line != 20 {
		t.Errorf("result = %+v, want failure in line 20", res)
	}
	errMsg := expect(t, c, shared.MessageTypeError, "RUNTIME ERROR IN LINE 20")
	if errMsg.Line != 20 {
		t.Errorf("error line = %d", errMsg.Line)
	}
}

func TestInputRoundTrip(t *testing.T) {
	c := newTestConsole(t, nil)
	execAll(c, "10 INPUT A", "20 PRINT A*A")
	c.Execute("RUN")

	req := expect(t, c, shared.MessageTypeInput, "A")
	if req.Variable != "A" || req.PromptSymbol != "?" {
		t.Errorf("input request = %+v", req)
	}
	c.Execute("seven")
	expect(t, c, shared.MessageTypeText, "?REDO FROM START")
	expect(t, c, shared.MessageTypeInput, "A")

	c.Execute("? 7")
	expect(t, c, shared.MessageTypeText, "49")
	expect(t, c, shared.MessageTypeText, "READY.")
}

func TestDebugSession(t *testing.T) {
	c := newTestConsole(t, nil)
	execAll(c, "10 LET X=1", "20 LET X=X+1", "30 PRINT X", "DEBUG ON", "BREAK 20")
	expect(t, c, shared.MessageTypeMode, "debug")
	expect(t, c, shared.MessageTypeBreakpoints, "20")

	c.Execute("RUN")
	hit := expect(t, c, shared.MessageTypeBreakpoint, "X = 1")
	if hit.Line != 20 {
		t.Errorf("breakpoint line = %d, want 20", hit.Line)
	}

	c.Execute("10 PRINT 99")
	expect(t, c, shared.MessageTypeError, "cannot edit while running")
	c.Execute("LOAD other")
	expect(t, c, shared.MessageTypeError, "LOAD not allowed while running")

	c.Execute("VARS")
	expect(t, c, shared.MessageTypeText, "X = 1")

	c.Execute("RESUME")
	expect(t, c, shared.MessageTypeText, "2")
	expect(t, c, shared.MessageTypeText, "READY.")

	c.Execute("RESUME")
	expect(t, c, shared.MessageTypeError, "not stopped at a breakpoint")
}

func TestExitDuringInput(t *testing.T) {
	c := newTestConsole(t, nil)
	execAll(c, "10 INPUT A", "20 PRINT A")
	c.Execute("RUN")
	expect(t, c, shared.MessageTypeInput, "A")

	c.Execute("EXIT")
	res := expect(t, c, shared.MessageTypeResult, "")
	if res.Success == nil || !*res.Success {
		t.Errorf("EXIT must end the run successfully, got %+v", res)
	}
	c.Wait()
	if c.Running() {
		t.Error("still running after EXIT")
	}
}

func TestLibraryCommands(t *testing.T) {
	c := newTestConsole(t, newMemLibrary())
	execAll(c, "10 PRINT 1", "20 END", "SAVE demo")
	expect(t, c, shared.MessageTypeText, "SAVED demo")

	c.Execute("CLEAR")
	expect(t, c, shared.MessageTypeText, "OK")
	if c.Program().Len() != 0 {
		t.Fatal("CLEAR left lines")
	}

	c.Execute("LOAD demo")
	expect(t, c, shared.MessageTypeText, "LOADED demo (2 LINES)")
	c.Execute("LIST")
	expect(t, c, shared.MessageTypeText, "20 END")

	c.Execute("FILES")
	expect(t, c, shared.MessageTypeText, "demo")

	c.Execute("ERASE demo")
	expect(t, c, shared.MessageTypeText, "ERASED demo")
	c.Execute("LOAD demo")
	expect(t, c, shared.MessageTypeError, "program not found")
	c.Execute("FILES")
	expect(t, c, shared.MessageTypeText, "NO PROGRAMS")
}

func TestLibraryWithSQLite(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "basic.db"))
	if err != nil {
		t.Fatalf("store.Open error: %v", err)
	}
	defer s.Close()

	writer := newTestConsole(t, s)
	execAll(writer, "10 PRINT 6*7", "SAVE answer")
	expect(t, writer, shared.MessageTypeText, "SAVED answer")

	reader := New(s, "tester", Options{})
	defer reader.Close()
	execAll(reader, "LOAD answer", "RUN")
	expect(t, reader, shared.MessageTypeText, "42")
}

func TestCommandErrors(t *testing.T) {
	c := newTestConsole(t, nil)

	c.Execute("HELLO")
	expect(t, c, shared.MessageTypeError, "COMMAND ERROR: unknown command HELLO")
	c.Execute("SAVE demo")
	expect(t, c, shared.MessageTypeError, "NO PROGRAM LIBRARY")
	c.Execute("10 PRINT (")
	expect(t, c, shared.MessageTypeError, "SYNTAX ERROR IN LINE 10")
	c.Execute("RUN")
	expect(t, c, shared.MessageTypeResult, "no program")
}

func TestQuit(t *testing.T) {
	c := newTestConsole(t, nil)
	if c.Execute("LIST") {
		t.Error("LIST must not quit")
	}
	if !c.Execute("QUIT") {
		t.Error("QUIT must return true")
	}
	expect(t, c, shared.MessageTypeQuit, "BYE")
}

func TestCloseAbortsRun(t *testing.T) {
	c := New(nil, "tester", Options{})
	execAll(c, "10 INPUT A")
	c.Execute("RUN")
	expect(t, c, shared.MessageTypeInput, "A")

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}
	if !c.Execute("LIST") {
		t.Error("closed console must report quit")
	}
	c.Close()
}

func TestRunTimeLimit(t *testing.T) {
	c := New(nil, "tester", Options{MaxRunTime: 50 * time.Millisecond})
	t.Cleanup(c.Close)
	execAll(c, "10 INPUT A")
	c.Execute("RUN")
	expect(t, c, shared.MessageTypeInput, "A")

	res := expect(t, c, shared.MessageTypeResult, "")
	if res.Success == nil || *res.Success {
		t.Fatalf("run past its time limit succeeded: %+v", res)
	}
	expect(t, c, shared.MessageTypeError, "deadline exceeded")
}

// settled waits for Idle and returns the queued messages.
func settled(t *testing.T, c *Console) []shared.Message {
	t.Helper()
	select {
	case <-c.Idle():
	case <-time.After(2 * time.Second):
		t.Fatal("session never became idle")
	}
	var msgs []shared.Message
	for {
		select {
		case msg := <-c.Output():
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func hasMessage(msgs []shared.Message, typ shared.MessageType, content string) bool {
	for _, m := range msgs {
		if m.Type == typ && strings.Contains(m.Content, content) {
			return true
		}
	}
	return false
}

func TestIdleMarksWaitsAndRunEnd(t *testing.T) {
	c := newTestConsole(t, nil)
	select {
	case <-c.Idle():
	default:
		t.Fatal("fresh session is not idle")
	}

	execAll(c, "10 INPUT A", "20 PRINT A * 2", "DEBUG ON", "BREAK 20", "RUN")
	if msgs := settled(t, c); !hasMessage(msgs, shared.MessageTypeInput, "A") {
		t.Fatalf("idle before the input request: %+v", msgs)
	}

	c.Execute("4")
	msgs := settled(t, c)
	if !hasMessage(msgs, shared.MessageTypeBreakpoint, "A = 4") {
		t.Fatalf("idle before the breakpoint: %+v", msgs)
	}

	c.Execute("RESUME")
	msgs = settled(t, c)
	if !hasMessage(msgs, shared.MessageTypeText, "8") || !hasMessage(msgs, shared.MessageTypeText, "READY.") {
		t.Errorf("idle before the run ended: %+v", msgs)
	}
	if c.Running() {
		t.Error("still running after the closing messages")
	}

	c.Execute("RESUME")
	if msgs := settled(t, c); !hasMessage(msgs, shared.MessageTypeError, "not stopped at a breakpoint") {
		t.Errorf("RESUME without a run: %+v", msgs)
	}
}

func TestIdleAfterStop(t *testing.T) {
	c := newTestConsole(t, nil)
	execAll(c, "10 INPUT A", "RUN")
	settled(t, c)

	c.Stop()
	if msgs := settled(t, c); !hasMessage(msgs, shared.MessageTypeText, "READY.") {
		t.Errorf("stopped run did not finish before idle: %+v", msgs)
	}
}
