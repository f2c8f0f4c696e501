package parser

import (
	"fmt"
	"unicode"

	"github.com/wbrown/janus-ecs/ecs"
)

// Lexer tokenizes a query expression
type Lexer struct {
	input   string
	pos     int
	line    int
	col     int
	tokens  []Token
	current int
}

// NewLexer creates a new lexer for the given input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input: input,
		line:  1,
		col:   1,
	}
}

// Lex tokenizes the entire input
func (l *Lexer) Lex() error {
	for {
		l.skipWhitespace()
		if l.pos >= len(l.input) {
			break
		}

		startLine, startCol := l.line, l.col
		emit := func(tt TokenType, value string) {
			l.tokens = append(l.tokens, Token{Type: tt, Value: value, Line: startLine, Col: startCol})
		}

		ch := l.peek()
		switch {
		case ch == ',':
			l.advance()
			emit(TokenComma, "")
		case ch == '(':
			l.advance()
			emit(TokenLeftParen, "")
		case ch == ')':
			l.advance()
			emit(TokenRightParen, "")
		case ch == '[':
			l.advance()
			emit(TokenLeftBracket, "")
		case ch == ']':
			l.advance()
			emit(TokenRightBracket, "")
		case ch == '!':
			l.advance()
			emit(TokenBang, "")
		case ch == '?':
			l.advance()
			emit(TokenQuestion, "")
		case ch == '|':
			l.advance()
			if l.peek() == '|' {
				l.advance()
				emit(TokenOrOr, "")
			} else {
				emit(TokenPipe, "")
			}
		case ch == '$':
			l.advance()
			name := l.readIdent()
			if name == "" {
				emit(TokenDollar, "")
			} else {
				emit(TokenVariable, name)
			}
		case isIdentChar(ch):
			emit(TokenIdent, l.readIdent())
		default:
			return fmt.Errorf("unexpected character '%c' at %d:%d: %w", ch, l.line, l.col, ecs.ErrParse)
		}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Line: l.line, Col: l.col})
	return nil
}

// Tokens returns all tokens produced by Lex
func (l *Lexer) Tokens() []Token {
	return l.tokens
}

// NextToken returns the next token
func (l *Lexer) NextToken() Token {
	if l.current >= len(l.tokens) {
		return Token{Type: TokenEOF, Line: l.line, Col: l.col}
	}
	token := l.tokens[l.current]
	l.current++
	return token
}

// PeekToken returns the next token without advancing
func (l *Lexer) PeekToken() Token {
	return l.PeekN(0)
}

// PeekN returns the token n positions ahead without advancing
func (l *Lexer) PeekN(n int) Token {
	if l.current+n >= len(l.tokens) {
		return Token{Type: TokenEOF, Line: l.line, Col: l.col}
	}
	return l.tokens[l.current+n]
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) advance() {
	if l.pos < len(l.input) {
		if l.input[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.peek())) {
		l.advance()
	}
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for l.pos < len(l.input) && isIdentChar(l.peek()) {
		l.advance()
	}
	return l.input[start:l.pos]
}

func isIdentChar(ch byte) bool {
	return ch == '_' || ch == '*' || ch == '.' || ch == ':' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}
