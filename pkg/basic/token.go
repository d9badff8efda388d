package basic

// TokenKind classifies an expression token.
type TokenKind int

const (
	TokenNumber TokenKind = iota
	TokenVariable
	TokenOperator
	TokenBracket
)

func (k TokenKind) String() string {
	switch k {
	case TokenNumber:
		return "number"
	case TokenVariable:
		return "variable"
	case TokenOperator:
		return "operator"
	case TokenBracket:
		return "bracket"
	}
	return "unknown"
}

// Operator is a binary arithmetic operator.
type Operator int

const (
	OpAdd Operator = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
)

// String returns the operator as written in source.
func (o Operator) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpMod:
		return "MOD"
	case OpPow:
		return "**"
	}
	return "?"
}

// Token is one lexical unit of an expression.
type Token struct {
	Text string
	Kind TokenKind
	Op   Operator // valid for TokenOperator
	Num  int64    // valid for TokenNumber
	Pos  int      // byte offset in the source text
}

func (t Token) isNumber() bool {
	return t.Kind == TokenNumber
}

func (t Token) isOpenBracket() bool {
	return t.Kind == TokenBracket && t.Text == "("
}

func (t Token) isCloseBracket() bool {
	return t.Kind == TokenBracket && t.Text == ")"
}
