// Package parser parses query expressions into terms.
//
// Grammar:
//
//	expr    := term ((',' | '||') term)*
//	term    := ('[' inout ']')? oper? body
//	oper    := '!' | '?' | ('and' | 'or' | 'not') '|'
//	body    := '(' ref ',' ref ')' | ref ('(' src (',' ref)? ')')?
//	src     := item ('|' item)*
//	item    := 'self' | ('up' | 'cascade') trav? | 'desc' | '$' | ref
//	ref     := identifier | '$' identifier | '*' | '_'
package parser

import (
	"fmt"

	"github.com/wbrown/janus-ecs/ecs"
	"github.com/wbrown/janus-ecs/ecs/query"
)

// Resolver resolves entity names
type Resolver interface {
	Lookup(name string) (ecs.Entity, bool)
}

// Parser parses query expressions
type Parser struct {
	lexer    *Lexer
	resolver Resolver
}

// Parse parses expr into terms, resolving names with r. All errors wrap
// ecs.ErrParse.
func Parse(expr string, r Resolver) ([]query.Term, error) {
	lexer := NewLexer(expr)
	if err := lexer.Lex(); err != nil {
		return nil, err
	}
	p := &Parser{lexer: lexer, resolver: r}
	return p.parseExpr()
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return fmt.Errorf("%s at %d:%d: %w", fmt.Sprintf(format, args...), tok.Line, tok.Col, ecs.ErrParse)
}

func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.lexer.NextToken()
	if tok.Type != tt {
		return tok, p.errorf(tok, "expected %s, got %s", what, tok)
	}
	return tok, nil
}

func (p *Parser) parseExpr() ([]query.Term, error) {
	var terms []query.Term
	if p.lexer.PeekToken().Type == TokenEOF {
		return nil, p.errorf(p.lexer.PeekToken(), "empty expression")
	}
	for {
		t, err := p.parseTerm()
		if err != nil {
			return nil, err
		}

		sep := p.lexer.NextToken()
		switch sep.Type {
		case TokenEOF:
			return append(terms, t), nil
		case TokenComma:
		case TokenOrOr:
			if t.Oper != query.And {
				return nil, p.errorf(sep, "cannot combine %s with or", t.Oper)
			}
			t.Oper = query.Or
		default:
			return nil, p.errorf(sep, "expected ',' or '||', got %s", sep)
		}
		terms = append(terms, t)
	}
}

func (p *Parser) parseTerm() (query.Term, error) {
	t := query.Term{Field: -1}

	if p.lexer.PeekToken().Type == TokenLeftBracket {
		p.lexer.NextToken()
		tok, err := p.expect(TokenIdent, "inout kind")
		if err != nil {
			return t, err
		}
		switch tok.Value {
		case "in":
			t.InOut = query.In
		case "out":
			t.InOut = query.Out
		case "inout":
			t.InOut = query.InOutBoth
		case "none":
			t.InOut = query.InOutNone
		case "filter":
			t.InOut = query.Filter
		default:
			return t, p.errorf(tok, "unknown inout kind %q", tok.Value)
		}
		if _, err := p.expect(TokenRightBracket, "']'"); err != nil {
			return t, err
		}
	}

	switch tok := p.lexer.PeekToken(); {
	case tok.Type == TokenBang:
		p.lexer.NextToken()
		t.Oper = query.Not
	case tok.Type == TokenQuestion:
		p.lexer.NextToken()
		t.Oper = query.Optional
	case tok.Type == TokenIdent && p.lexer.PeekN(1).Type == TokenPipe:
		switch tok.Value {
		case "and":
			t.Oper = query.AndFrom
		case "or":
			t.Oper = query.OrFrom
		case "not":
			t.Oper = query.NotFrom
		default:
			return t, p.errorf(tok, "unknown operator %q", tok.Value)
		}
		p.lexer.NextToken()
		p.lexer.NextToken()
	}

	if p.lexer.PeekToken().Type == TokenLeftParen {
		p.lexer.NextToken()
		first, err := p.parseRef()
		if err != nil {
			return t, err
		}
		if _, err := p.expect(TokenComma, "','"); err != nil {
			return t, err
		}
		second, err := p.parseRef()
		if err != nil {
			return t, err
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return t, err
		}
		t.First, t.Second = first, second
		t.ID = t.PatternID()
		return t, nil
	}

	first, err := p.parseRef()
	if err != nil {
		return t, err
	}
	t.First = first
	if p.lexer.PeekToken().Type == TokenLeftParen {
		p.lexer.NextToken()
		if err := p.parseSrc(&t); err != nil {
			return t, err
		}
		if p.lexer.PeekToken().Type == TokenComma {
			p.lexer.NextToken()
			second, err := p.parseRef()
			if err != nil {
				return t, err
			}
			t.Second = second
		}
		if _, err := p.expect(TokenRightParen, "')'"); err != nil {
			return t, err
		}
	}
	t.ID = t.PatternID()
	return t, nil
}

func (p *Parser) parseSrc(t *query.Term) error {
	for {
		tok := p.lexer.PeekToken()
		switch {
		case tok.Type == TokenIdent && (tok.Value == "up" || tok.Value == "cascade"):
			p.lexer.NextToken()
			if tok.Value == "up" {
				t.Src.Flags |= query.RefUp
			} else {
				t.Src.Flags |= query.RefCascade
			}
			t.Trav = ecs.ChildOf
			if next := p.lexer.PeekToken(); next.Type == TokenIdent && !isSrcKeyword(next.Value) {
				p.lexer.NextToken()
				rel, err := p.resolve(next)
				if err != nil {
					return err
				}
				t.Trav = rel
			}
		case tok.Type == TokenIdent && tok.Value == "self":
			p.lexer.NextToken()
			t.Src.Flags |= query.RefSelf
		case tok.Type == TokenIdent && tok.Value == "desc":
			p.lexer.NextToken()
			t.Src.Flags |= query.RefDesc
		case tok.Type == TokenDollar:
			p.lexer.NextToken()
			if t.First.IsVar() || t.First.ID == 0 {
				return p.errorf(tok, "singleton source requires a fixed component")
			}
			t.Src = query.TermRef{ID: t.First.ID, Flags: t.Src.Flags | query.RefEntity}
		default:
			ref, err := p.parseRef()
			if err != nil {
				return err
			}
			ref.Flags |= t.Src.Flags
			t.Src = ref
		}

		if p.lexer.PeekToken().Type != TokenPipe {
			return nil
		}
		p.lexer.NextToken()
	}
}

func (p *Parser) parseRef() (query.TermRef, error) {
	tok := p.lexer.NextToken()
	switch tok.Type {
	case TokenVariable:
		if tok.Value == "this" {
			return query.TermRef{ID: ecs.This, Name: "this", Flags: query.RefVariable}, nil
		}
		return query.TermRef{Name: tok.Value, Flags: query.RefVariable}, nil
	case TokenIdent:
		e, err := p.resolve(tok)
		if err != nil {
			return query.TermRef{}, err
		}
		ref := query.TermRef{ID: e, Flags: query.RefEntity}
		if _, builtin := ecs.BuiltinByName(tok.Value); !builtin {
			ref.Name = tok.Value
		}
		return ref, nil
	}
	return query.TermRef{}, p.errorf(tok, "expected identifier or variable, got %s", tok)
}

func (p *Parser) resolve(tok Token) (ecs.Entity, error) {
	if e, ok := ecs.BuiltinByName(tok.Value); ok {
		return e, nil
	}
	if p.resolver != nil {
		if e, ok := p.resolver.Lookup(tok.Value); ok {
			return e, nil
		}
	}
	return 0, p.errorf(tok, "unresolved identifier %q", tok.Value)
}

func isSrcKeyword(s string) bool {
	switch s {
	case "self", "up", "cascade", "desc":
		return true
	}
	return false
}
