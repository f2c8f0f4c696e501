package parser

import "fmt"

// TokenType is the type of a query expression token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenVariable
	TokenDollar
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenLeftBracket
	TokenRightBracket
	TokenPipe
	TokenOrOr
	TokenBang
	TokenQuestion
)

// Token is a lexical token of a query expression
type Token struct {
	Type  TokenType
	Value string
	Line  int
	Col   int
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return fmt.Sprintf("EOF[%d:%d]", t.Line, t.Col)
	case TokenIdent:
		return fmt.Sprintf("Ident[%d:%d]:%s", t.Line, t.Col, t.Value)
	case TokenVariable:
		return fmt.Sprintf("Variable[%d:%d]:$%s", t.Line, t.Col, t.Value)
	case TokenDollar:
		return fmt.Sprintf("Dollar[%d:%d]", t.Line, t.Col)
	case TokenComma:
		return fmt.Sprintf("Comma[%d:%d]", t.Line, t.Col)
	case TokenLeftParen:
		return fmt.Sprintf("LeftParen[%d:%d]", t.Line, t.Col)
	case TokenRightParen:
		return fmt.Sprintf("RightParen[%d:%d]", t.Line, t.Col)
	case TokenLeftBracket:
		return fmt.Sprintf("LeftBracket[%d:%d]", t.Line, t.Col)
	case TokenRightBracket:
		return fmt.Sprintf("RightBracket[%d:%d]", t.Line, t.Col)
	case TokenPipe:
		return fmt.Sprintf("Pipe[%d:%d]", t.Line, t.Col)
	case TokenOrOr:
		return fmt.Sprintf("OrOr[%d:%d]", t.Line, t.Col)
	case TokenBang:
		return fmt.Sprintf("Bang[%d:%d]", t.Line, t.Col)
	case TokenQuestion:
		return fmt.Sprintf("Question[%d:%d]", t.Line, t.Col)
	default:
		return fmt.Sprintf("Unknown[%d:%d]:%s", t.Line, t.Col, t.Value)
	}
}
