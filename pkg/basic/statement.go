package basic

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Kind is the statement type, decided once at parse time.
type Kind int

const (
	KindUnknown Kind = iota
	KindPrint
	KindLet
	KindInput
	KindGoto
	KindIf
	KindEnd
	KindRem
)

var kindKeywords = map[string]Kind{
	"PRINT": KindPrint,
	"LET":   KindLet,
	"INPUT": KindInput,
	"GOTO":  KindGoto,
	"IF":    KindIf,
	"END":   KindEnd,
	"REM":   KindRem,
}

func (k Kind) String() string {
	for kw, kind := range kindKeywords {
		if kind == k {
			return kw
		}
	}
	return "UNKNOWN"
}

// Directive tells the run loop where to go after a statement. Positive
// values are jump targets.
type Directive int

const (
	Continue  Directive = 0
	Terminate Directive = -2
)

// Machine is the program state a statement executes against.
type Machine interface {
	Scope
	Assign(name string, value int)
	Emit(text string)
	// Input blocks until a value for name is delivered or the run stops.
	Input(name string) (int, error)
}

// Statement is one parsed program line.
type Statement struct {
	Line int
	Text string
	Kind Kind

	Name       string // LET and INPUT target
	Comparator byte   // IF: '=', '<' or '>'
	Target     int    // GOTO and IF jump line

	// PRINT and LET hold one tree, IF holds the left and right side.
	args []Node
}

var thenPattern = regexp.MustCompile(`\bTHEN\b`)

// ParseStatement parses the text of a program line. Errors carry the line
// number.
func ParseStatement(line int, text string) (*Statement, error) {
	st, err := parseStatement(line, strings.TrimSpace(text))
	if err != nil {
		return nil, withLine(err, line)
	}
	return st, nil
}

func parseStatement(line int, text string) (*Statement, error) {
	keyword, rest := splitKeyword(text)
	st := &Statement{Line: line, Text: text, Kind: kindKeywords[keyword]}

	switch st.Kind {
	case KindPrint:
		root, err := ParseExpression(rest)
		if err != nil {
			return nil, err
		}
		st.args = []Node{root}

	case KindLet:
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return nil, syntaxError("LET without '='")
		}
		name := strings.TrimSpace(rest[:eq])
		if !IsValidVarName(name) {
			return nil, nameError(name)
		}
		root, err := ParseExpression(rest[eq+1:])
		if err != nil {
			return nil, err
		}
		st.Name = name
		st.args = []Node{root}

	case KindInput:
		if rest == "" {
			return nil, syntaxError("INPUT without variable")
		}
		if !IsValidVarName(rest) {
			return nil, nameError(rest)
		}
		st.Name = rest

	case KindGoto:
		target, err := parseTarget(rest)
		if err != nil {
			return nil, err
		}
		st.Target = target

	case KindIf:
		loc := thenPattern.FindStringIndex(rest)
		if loc == nil {
			return nil, syntaxError("IF without THEN")
		}
		cond := rest[:loc[0]]
		opIdx := strings.IndexAny(cond, "=<>")
		if opIdx < 0 {
			return nil, syntaxError("IF without comparison operator")
		}
		left, err := ParseExpression(cond[:opIdx])
		if err != nil {
			return nil, err
		}
		right, err := ParseExpression(cond[opIdx+1:])
		if err != nil {
			return nil, err
		}
		target, err := parseTarget(rest[loc[1]:])
		if err != nil {
			return nil, err
		}
		st.Comparator = cond[opIdx]
		st.args = []Node{left, right}
		st.Target = target
	}
	// END, REM and unknown keywords take no arguments that need parsing.
	return st, nil
}

// splitKeyword splits at the first whitespace.
func splitKeyword(text string) (string, string) {
	i := strings.IndexFunc(text, unicode.IsSpace)
	if i < 0 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

func parseTarget(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, syntaxError("invalid line number %q", s)
	}
	return n, nil
}

// Execute runs the statement. Every execution evaluates fresh expressions,
// so no value is carried over between runs or loop iterations.
func (s *Statement) Execute(m Machine) (Directive, error) {
	switch s.Kind {
	case KindPrint:
		v, err := Bind(s.args[0], m).Evaluate()
		if err != nil {
			return Continue, err
		}
		m.Emit(strconv.Itoa(v))

	case KindLet:
		v, err := Bind(s.args[0], m).Evaluate()
		if err != nil {
			return Continue, err
		}
		m.Assign(s.Name, v)

	case KindInput:
		v, err := m.Input(s.Name)
		if err != nil {
			return Continue, err
		}
		m.Assign(s.Name, v)

	case KindGoto:
		return Directive(s.Target), nil

	case KindIf:
		ok, err := s.condition(m)
		if err != nil {
			return Continue, err
		}
		if ok {
			return Directive(s.Target), nil
		}

	case KindEnd:
		return Terminate, nil
	}
	return Continue, nil
}

func (s *Statement) condition(m Machine) (bool, error) {
	left, err := Bind(s.args[0], m).Evaluate()
	if err != nil {
		return false, err
	}
	right, err := Bind(s.args[1], m).Evaluate()
	if err != nil {
		return false, err
	}
	switch s.Comparator {
	case '=':
		return left == right, nil
	case '<':
		return left < right, nil
	case '>':
		return left > right, nil
	}
	return false, syntaxError("unknown comparison operator %q", s.Comparator)
}

// Render returns the statement header followed by its expression trees.
func (s *Statement) Render() string {
	var sb strings.Builder
	switch s.Kind {
	case KindPrint:
		fmt.Fprintf(&sb, "%d PRINT\n", s.Line)
		sb.WriteString(RenderTree(s.args[0], 1))
	case KindLet:
		fmt.Fprintf(&sb, "%d LET %s\n", s.Line, s.Name)
		sb.WriteString(RenderTree(s.args[0], 1))
	case KindInput:
		fmt.Fprintf(&sb, "%d INPUT %s\n", s.Line, s.Name)
	case KindGoto:
		fmt.Fprintf(&sb, "%d GOTO %d\n", s.Line, s.Target)
	case KindIf:
		fmt.Fprintf(&sb, "%d IF THEN %d\n", s.Line, s.Target)
		fmt.Fprintf(&sb, "    %c\n", s.Comparator)
		sb.WriteString(RenderTree(s.args[0], 2))
		sb.WriteString(RenderTree(s.args[1], 2))
	case KindEnd, KindRem:
		fmt.Fprintf(&sb, "%d %s\n", s.Line, s.Kind)
	default:
		keyword, _ := splitKeyword(s.Text)
		fmt.Fprintf(&sb, "%d %s (ignored)\n", s.Line, keyword)
	}
	return sb.String()
}
