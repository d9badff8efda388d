package basic

import (
	"strconv"
	"strings"
)

// Node is an expression tree node: *NumberNode, *VariableNode or
// *OperationNode. Trees are built completely before evaluation and never
// share nodes.
type Node interface {
	// Text returns the token text the node was built from.
	Text() string
	children() []Node
}

// NumberNode is an integer literal.
type NumberNode struct {
	Value int64
}

func (n *NumberNode) Text() string     { return strconv.FormatInt(n.Value, 10) }
func (n *NumberNode) children() []Node { return nil }

// VariableNode references a variable by name.
type VariableNode struct {
	Name string
}

func (n *VariableNode) Text() string     { return n.Name }
func (n *VariableNode) children() []Node { return nil }

// OperationNode applies a binary operator.
type OperationNode struct {
	Op          Operator
	Left, Right Node
}

func (n *OperationNode) Text() string     { return n.Op.String() }
func (n *OperationNode) children() []Node { return []Node{n.Left, n.Right} }

// Scope resolves variables during evaluation.
type Scope interface {
	Lookup(name string) (int, bool)
}

// Expression owns a parsed tree and caches its value after the first
// successful evaluation.
type Expression struct {
	root       Node
	scope      Scope
	value      int
	calculated bool
}

// NewExpression tokenizes and parses text. Variables are resolved against
// scope when the expression is evaluated.
func NewExpression(text string, scope Scope) (*Expression, error) {
	root, err := ParseExpression(text)
	if err != nil {
		return nil, err
	}
	return &Expression{root: root, scope: scope}, nil
}

// Bind creates a fresh, unevaluated expression over an existing tree.
func Bind(root Node, scope Scope) *Expression {
	return &Expression{root: root, scope: scope}
}

// Root returns the tree.
func (e *Expression) Root() Node {
	return e.root
}

// Calculated reports whether the value has been cached.
func (e *Expression) Calculated() bool {
	return e.calculated
}

// Evaluate computes the value of the tree. The result is cached, so later
// calls return it without walking the tree again. Failed evaluations are
// not cached.
func (e *Expression) Evaluate() (int, error) {
	if e.calculated {
		return e.value, nil
	}
	v, err := evalNode(e.root, e.scope)
	if err != nil {
		return 0, err
	}
	e.value = v
	e.calculated = true
	return v, nil
}

// Render dumps the tree, see RenderTree.
func (e *Expression) Render() string {
	return RenderTree(e.root, 0)
}

// ParseExpression tokenizes and parses text into a tree.
func ParseExpression(text string) (Node, error) {
	tokens, err := Tokenize(text)
	if err != nil {
		return nil, err
	}
	return ParseTokens(tokens)
}

// ParseTokens parses a complete token sequence:
//
//	Exp    := Term (('+'|'-') Term)*
//	Term   := Power (('*'|'/'|'MOD') Power)*
//	Power  := Factor ('**' Power)?
//	Factor := Number | Variable | '(' Exp ')'
func ParseTokens(tokens []Token) (Node, error) {
	p := &exprParser{tokens: tokens}
	root, err := p.parseExp()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		return nil, syntaxError("unexpected %q at position %d", t.Text, t.Pos)
	}
	return root, nil
}

type exprParser struct {
	tokens []Token
	pos    int
}

func (p *exprParser) peekOperator(ops ...Operator) (Operator, bool) {
	if p.pos >= len(p.tokens) {
		return 0, false
	}
	t := p.tokens[p.pos]
	if t.Kind != TokenOperator {
		return 0, false
	}
	for _, op := range ops {
		if t.Op == op {
			return op, true
		}
	}
	return 0, false
}

// parseExp handles + and - (left-associative).
func (p *exprParser) parseExp() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOperator(OpAdd, OpSub)
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &OperationNode{Op: op, Left: left, Right: right}
	}
}

// parseTerm handles *, / and MOD (left-associative).
func (p *exprParser) parseTerm() (Node, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.peekOperator(OpMul, OpDiv, OpMod)
		if !ok {
			return left, nil
		}
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &OperationNode{Op: op, Left: left, Right: right}
	}
}

// parsePower handles ** (right-associative).
func (p *exprParser) parsePower() (Node, error) {
	base, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	if _, ok := p.peekOperator(OpPow); !ok {
		return base, nil
	}
	p.pos++
	exp, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &OperationNode{Op: OpPow, Left: base, Right: exp}, nil
}

func (p *exprParser) parseFactor() (Node, error) {
	if p.pos >= len(p.tokens) {
		return nil, syntaxError("expression expected")
	}
	t := p.tokens[p.pos]
	switch {
	case t.Kind == TokenNumber:
		p.pos++
		return &NumberNode{Value: t.Num}, nil
	case t.Kind == TokenVariable:
		p.pos++
		return &VariableNode{Name: t.Text}, nil
	case t.isOpenBracket():
		p.pos++
		inner, err := p.parseExp()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.tokens) {
			return nil, syntaxError("missing closing parenthesis")
		}
		if closing := p.tokens[p.pos]; !closing.isCloseBracket() {
			return nil, syntaxError("expected ')' but found %q at position %d", closing.Text, closing.Pos)
		}
		p.pos++
		return inner, nil
	}
	return nil, syntaxError("unexpected %q at position %d", t.Text, t.Pos)
}

func evalNode(n Node, scope Scope) (int, error) {
	switch node := n.(type) {
	case *NumberNode:
		return int(node.Value), nil
	case *VariableNode:
		if !IsValidVarName(node.Name) {
			return 0, nameError(node.Name)
		}
		if scope == nil {
			return 0, undefinedVariableError(node.Name)
		}
		v, ok := scope.Lookup(node.Name)
		if !ok {
			return 0, undefinedVariableError(node.Name)
		}
		return v, nil
	case *OperationNode:
		left, err := evalNode(node.Left, scope)
		if err != nil {
			return 0, err
		}
		right, err := evalNode(node.Right, scope)
		if err != nil {
			return 0, err
		}
		return apply(node.Op, left, right)
	}
	return 0, syntaxError("malformed expression tree")
}

func apply(op Operator, a, b int) (int, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return 0, divisionByZeroError("/")
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return 0, divisionByZeroError("MOD")
		}
		return flooredMod(a, b), nil
	case OpPow:
		return power(a, b)
	}
	return 0, syntaxError("unknown operator %v", op)
}

// flooredMod returns a mod b with the sign of the divisor.
func flooredMod(a, b int) int {
	r := a % b
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

// power computes base**exp by repeated squaring. Negative exponents
// truncate toward zero like integer division.
func power(base, exp int) (int, error) {
	if exp < 0 {
		switch base {
		case 0:
			return 0, divisionByZeroError("**")
		case 1:
			return 1, nil
		case -1:
			if exp%2 == 0 {
				return 1, nil
			}
			return -1, nil
		}
		return 0, nil
	}
	result := 1
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result, nil
}

// RenderTree dumps a tree breadth first, one node per line, indented four
// spaces per level below the given base depth.
func RenderTree(root Node, depth int) string {
	if root == nil {
		return ""
	}
	type item struct {
		node  Node
		depth int
	}
	var sb strings.Builder
	queue := []item{{root, depth}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		sb.WriteString(strings.Repeat("    ", it.depth))
		sb.WriteString(it.node.Text())
		sb.WriteByte('\n')
		for _, child := range it.node.children() {
			queue = append(queue, item{child, it.depth + 1})
		}
	}
	return sb.String()
}
