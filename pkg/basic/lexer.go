package basic

import (
	"errors"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Tokenize splits an expression into tokens in a single left-to-right scan.
//
// A '-' directly followed by a digit starts a negative literal unless the
// previous token closes an operand (a number, a variable or ')'), in which
// case it is the subtraction operator.
func Tokenize(text string) ([]Token, error) {
	tokens := make([]Token, 0, len(text)/2+1)
	pos := 0
	for pos < len(text) {
		ch := text[pos]
		if isSpace(ch) {
			pos++
			continue
		}

		switch {
		case isDigit(ch) || (ch == '-' && isDigit(peekByte(text, pos+1)) && !endsOperand(tokens)):
			end := pos + 1
			for end < len(text) && isDigit(text[end]) {
				end++
			}
			lit := text[pos:end]
			num, err := strconv.ParseInt(lit, 10, 64)
			if err != nil {
				if errors.Is(err, strconv.ErrRange) {
					return nil, syntaxError("number %s out of range", lit)
				}
				return nil, syntaxError("invalid number %s", lit)
			}
			tokens = append(tokens, Token{Text: lit, Kind: TokenNumber, Num: num, Pos: pos})
			pos = end

		case isIdStart(ch):
			end := pos + 1
			for end < len(text) && isIdChar(text[end]) {
				end++
			}
			word := text[pos:end]
			if word == "MOD" {
				tokens = append(tokens, Token{Text: word, Kind: TokenOperator, Op: OpMod, Pos: pos})
			} else {
				tokens = append(tokens, Token{Text: word, Kind: TokenVariable, Pos: pos})
			}
			pos = end

		case ch == '*':
			if peekByte(text, pos+1) == '*' {
				tokens = append(tokens, Token{Text: "**", Kind: TokenOperator, Op: OpPow, Pos: pos})
				pos += 2
			} else {
				tokens = append(tokens, Token{Text: "*", Kind: TokenOperator, Op: OpMul, Pos: pos})
				pos++
			}

		case ch == '+':
			tokens = append(tokens, Token{Text: "+", Kind: TokenOperator, Op: OpAdd, Pos: pos})
			pos++
		case ch == '-':
			tokens = append(tokens, Token{Text: "-", Kind: TokenOperator, Op: OpSub, Pos: pos})
			pos++
		case ch == '/':
			tokens = append(tokens, Token{Text: "/", Kind: TokenOperator, Op: OpDiv, Pos: pos})
			pos++

		case ch == '(' || ch == ')':
			tokens = append(tokens, Token{Text: string(ch), Kind: TokenBracket, Pos: pos})
			pos++

		default:
			r, _ := utf8.DecodeRuneInString(text[pos:])
			if unicode.IsSpace(r) {
				pos += utf8.RuneLen(r)
				continue
			}
			return nil, lexError(r, pos)
		}
	}
	return tokens, nil
}

// endsOperand reports whether the last token completes an operand, so that a
// following '-' must be binary.
func endsOperand(tokens []Token) bool {
	if len(tokens) == 0 {
		return false
	}
	last := tokens[len(tokens)-1]
	return last.isNumber() || last.Kind == TokenVariable || last.isCloseBracket()
}

func peekByte(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// isIdStart returns true if the character can start an identifier.
func isIdStart(ch byte) bool {
	return isLetter(ch) || ch == '_'
}

// isIdChar returns true if the character can continue an identifier.
func isIdChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_'
}
