package basic

import (
	"errors"
	"testing"
)

func TestTokenizeNumbers(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"0", 0},
		{"42", 42},
		{"-42", -42},
		{"  7  ", 7},
		{"9223372036854775807", 9223372036854775807},
		{"-9223372036854775808", -9223372036854775808},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tokens, err := Tokenize(tt.text)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.text, err)
			}
			if len(tokens) != 1 {
				t.Fatalf("Tokenize(%q) = %d tokens, want 1", tt.text, len(tokens))
			}
			if tokens[0].Kind != TokenNumber || tokens[0].Num != tt.want {
				t.Errorf("Tokenize(%q) = %+v, want number %d", tt.text, tokens[0], tt.want)
			}
		})
	}
}

func TestTokenizeSequence(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		kinds []TokenKind
		texts []string
	}{
		{
			name:  "binary minus after number",
			text:  "3-2",
			kinds: []TokenKind{TokenNumber, TokenOperator, TokenNumber},
			texts: []string{"3", "-", "2"},
		},
		{
			name:  "binary minus after variable",
			text:  "X-1",
			kinds: []TokenKind{TokenVariable, TokenOperator, TokenNumber},
			texts: []string{"X", "-", "1"},
		},
		{
			name:  "negative literal after operator",
			text:  "5*-2",
			kinds: []TokenKind{TokenNumber, TokenOperator, TokenNumber},
			texts: []string{"5", "*", "-2"},
		},
		{
			name:  "MOD is an operator",
			text:  "A_1 MOD 2",
			kinds: []TokenKind{TokenVariable, TokenOperator, TokenNumber},
			texts: []string{"A_1", "MOD", "2"},
		},
		{
			name:  "power",
			text:  "2**3*4",
			kinds: []TokenKind{TokenNumber, TokenOperator, TokenNumber, TokenOperator, TokenNumber},
			texts: []string{"2", "**", "3", "*", "4"},
		},
		{
			name:  "brackets",
			text:  "(a+b)/c",
			kinds: []TokenKind{TokenBracket, TokenVariable, TokenOperator, TokenVariable, TokenBracket, TokenOperator, TokenVariable},
			texts: []string{"(", "a", "+", "b", ")", "/", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, err := Tokenize(tt.text)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.text, err)
			}
			if len(tokens) != len(tt.kinds) {
				t.Fatalf("Tokenize(%q) = %d tokens, want %d", tt.text, len(tokens), len(tt.kinds))
			}
			for i, tok := range tokens {
				if tok.Kind != tt.kinds[i] || tok.Text != tt.texts[i] {
					t.Errorf("token %d = %s %q, want %s %q", i, tok.Kind, tok.Text, tt.kinds[i], tt.texts[i])
				}
			}
		})
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		text string
		kind error
	}{
		{"1 $ 2", ErrLex},
		{"A = 1", ErrLex},
		{"\"text\"", ErrLex},
		{"99999999999999999999", ErrSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Tokenize(tt.text)
			if !errors.Is(err, tt.kind) {
				t.Errorf("Tokenize(%q) error = %v, want %v", tt.text, err, tt.kind)
			}
		})
	}
}

func TestLexErrorPosition(t *testing.T) {
	_, err := Tokenize("12 + #")
	var be *BASICError
	if !errors.As(err, &be) {
		t.Fatalf("expected *BASICError, got %T", err)
	}
	if be.Category != ErrCategorySyntax {
		t.Errorf("category = %q, want %q", be.Category, ErrCategorySyntax)
	}
	if want := `unrecognized character '#' at position 5`; be.Message != want {
		t.Errorf("message = %q, want %q", be.Message, want)
	}
}
