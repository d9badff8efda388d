package basic

import (
	"errors"
	"testing"
)

// countingScope counts variable lookups.
type countingScope struct {
	vars    Variables
	lookups int
}

func (s *countingScope) Lookup(name string) (int, bool) {
	s.lookups++
	return s.vars.Lookup(name)
}

func TestEvaluate(t *testing.T) {
	scope := Variables{"X": 5, "Y_2": -3}

	tests := []struct {
		name string
		expr string
		want int
	}{
		{"precedence", "2+3*4", 14},
		{"brackets", "(2+3)*4", 20},
		{"right associative power", "2**3**2", 512},
		{"left associative minus", "10-3-2", 5},
		{"left associative division", "100/10/5", 2},
		{"truncating division", "7/2", 3},
		{"truncating negative division", "-7/2", -3},
		{"floored mod", "-7 MOD 3", 2},
		{"mod takes divisor sign", "7 MOD -3", -2},
		{"plain mod", "7 MOD 3", 1},
		{"subtract negative literal", "10 - -3", 13},
		{"variable", "X", 5},
		{"variable arithmetic", "X*2+Y_2", 7},
		{"nested brackets", "((1+2)*(3+4))", 21},
		{"zero exponent", "5**0", 1},
		{"negative exponent truncates", "2**-1", 0},
		{"one to negative power", "1**-5", 1},
		{"minus one to odd negative power", "(-1)**-3", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExpression(tt.expr, scope)
			if err != nil {
				t.Fatalf("NewExpression(%q) error: %v", tt.expr, err)
			}
			got, err := e.Evaluate()
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %d, want %d", tt.expr, got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"dangling operator", "1 +"},
		{"missing closing bracket", "(1+2"},
		{"wrong closing token", "(1+2 3"},
		{"stray closing bracket", "1+2)"},
		{"operator first", "* 2"},
		{"unary minus on bracket", "-(1)"},
		{"adjacent operands", "1 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpression(tt.expr)
			if !errors.Is(err, ErrSyntax) {
				t.Errorf("ParseExpression(%q) error = %v, want ErrSyntax", tt.expr, err)
			}
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
		kind error
	}{
		{"division by zero", "1/0", ErrDivisionByZero},
		{"mod by zero", "5 MOD (2-2)", ErrDivisionByZero},
		{"zero to negative power", "0**-1", ErrDivisionByZero},
		{"undefined variable", "Z+1", ErrUndefinedVariable},
		{"reserved word", "PRINT+1", ErrName},
		{"reserved THEN", "THEN", ErrName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewExpression(tt.expr, Variables{})
			if err != nil {
				t.Fatalf("NewExpression(%q) error: %v", tt.expr, err)
			}
			_, err = e.Evaluate()
			if !errors.Is(err, tt.kind) {
				t.Errorf("Evaluate(%q) error = %v, want %v", tt.expr, err, tt.kind)
			}
			if e.Calculated() {
				t.Errorf("failed evaluation must not be cached")
			}
		})
	}
}

func TestEvaluateIsMemoized(t *testing.T) {
	scope := &countingScope{vars: Variables{"X": 4}}
	e, err := NewExpression("X*X+X", scope)
	if err != nil {
		t.Fatalf("NewExpression error: %v", err)
	}

	first, err := e.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	lookups := scope.lookups

	scope.vars["X"] = 100
	second, err := e.Evaluate()
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if first != 20 || second != first {
		t.Errorf("Evaluate = %d then %d, want 20 twice", first, second)
	}
	if scope.lookups != lookups {
		t.Errorf("second Evaluate walked the tree again (%d lookups, want %d)", scope.lookups, lookups)
	}

	fresh := Bind(e.Root(), scope)
	if v, _ := fresh.Evaluate(); v != 10100 {
		t.Errorf("fresh expression over same tree = %d, want 10100", v)
	}
}

func TestRenderTree(t *testing.T) {
	e, err := NewExpression("2+3*4", nil)
	if err != nil {
		t.Fatalf("NewExpression error: %v", err)
	}
	want := "+\n" +
		"    2\n" +
		"    *\n" +
		"        3\n" +
		"        4\n"
	if got := e.Render(); got != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderTreeBreadthFirst(t *testing.T) {
	root, err := ParseExpression("(1+2)*(3-4)")
	if err != nil {
		t.Fatalf("ParseExpression error: %v", err)
	}
	want := "*\n" +
		"    +\n" +
		"    -\n" +
		"        1\n" +
		"        2\n" +
		"        3\n" +
		"        4\n"
	if got := RenderTree(root, 0); got != want {
		t.Errorf("RenderTree() =\n%s\nwant\n%s", got, want)
	}
}
