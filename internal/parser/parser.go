// Package parser is a recursive-descent parser over internal/lexer's
// token stream, grounded on sentra/internal/parser/parser.go's shape
// (current-token cursor, match/check/consume/advance helpers, one parse
// method per grammar production) and retargeted at the pattern-language
// surface grammar instead of sentra's expression-scripting grammar.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"patternvm/internal/ast"
	"patternvm/internal/bytecode"
	"patternvm/internal/lexer"
)

var builtinTypes = map[string]bytecode.TypeId{
	"u8": bytecode.U8, "u16": bytecode.U16, "u24": bytecode.U24, "u32": bytecode.U32,
	"u48": bytecode.U48, "u64": bytecode.U64, "u128": bytecode.U128,
	"s8": bytecode.S8, "s16": bytecode.S16, "s24": bytecode.S24, "s32": bytecode.S32,
	"s48": bytecode.S48, "s64": bytecode.S64, "s128": bytecode.S128,
	"bool": bytecode.Bool, "float": bytecode.Float, "double": bytecode.Double,
	"char": bytecode.Char, "char16": bytecode.Char16, "string": bytecode.String,
	"padding": bytecode.Padding, "auto": bytecode.Auto,
}

// ParseError is a plain parse failure with the offending token's position;
// internal/runtime wraps it into a patternvm/internal/errors.StageError
// tagged StageParser.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Column, e.Message)
}

type Parser struct {
	tokens  []lexer.Token
	current int
}

func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

func (p *Parser) Parse() (prog *ast.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*ParseError); ok {
				err = pe
				return
			}
			panic(r)
		}
	}()
	var decls []ast.Node
	for !p.check(lexer.TokenEOF) {
		decls = append(decls, p.declaration())
	}
	return &ast.Program{Decls: decls}, nil
}

func (p *Parser) loc() ast.Location {
	t := p.peek()
	return ast.Location{Line: t.Line, Column: t.Column}
}

func (p *Parser) peek() lexer.Token  { return p.tokens[p.current] }
func (p *Parser) previous() lexer.Token {
	return p.tokens[p.current-1]
}
func (p *Parser) check(t lexer.TokenType) bool {
	return p.peek().Type == t
}
func (p *Parser) advance() lexer.Token {
	if !p.check(lexer.TokenEOF) {
		p.current++
	}
	return p.previous()
}
func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}
func (p *Parser) consume(t lexer.TokenType, msg string) lexer.Token {
	if p.check(t) {
		return p.advance()
	}
	loc := p.loc()
	panic(&ParseError{Message: msg, Line: loc.Line, Column: loc.Column})
}

func (p *Parser) declaration() ast.Node {
	switch {
	case p.check(lexer.TokenStruct):
		return p.structDecl()
	case p.check(lexer.TokenUnion):
		return p.unionDecl()
	case p.check(lexer.TokenEnum):
		return p.enumDecl()
	case p.check(lexer.TokenBitfield):
		return p.bitfieldDecl()
	default:
		return p.statement()
	}
}

func (p *Parser) structDecl() ast.Node {
	p.advance()
	name := p.consume(lexer.TokenIdent, "expected a struct name").Lexeme
	var bases []string
	if p.match(lexer.TokenColon) {
		bases = append(bases, p.consume(lexer.TokenIdent, "expected a base type name").Lexeme)
		for p.match(lexer.TokenComma) {
			bases = append(bases, p.consume(lexer.TokenIdent, "expected a base type name").Lexeme)
		}
	}
	p.consume(lexer.TokenLBrace, "expected '{'")
	var body []ast.Node
	for !p.check(lexer.TokenRBrace) {
		body = append(body, p.statement())
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return &ast.StructDecl{Name: name, Bases: bases, Body: body}
}

func (p *Parser) unionDecl() ast.Node {
	p.advance()
	name := p.consume(lexer.TokenIdent, "expected a union name").Lexeme
	p.consume(lexer.TokenLBrace, "expected '{'")
	var body []ast.Node
	for !p.check(lexer.TokenRBrace) {
		body = append(body, p.statement())
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return &ast.UnionDecl{Name: name, Body: body}
}

func (p *Parser) enumDecl() ast.Node {
	p.advance()
	name := p.consume(lexer.TokenIdent, "expected an enum name").Lexeme
	underlying := ast.TypeRef{Name: "u32", BuiltinId: bytecode.U32}
	if p.match(lexer.TokenColon) {
		underlying = p.typeRef()
	}
	p.consume(lexer.TokenLBrace, "expected '{'")
	var entries []ast.EnumEntry
	for !p.check(lexer.TokenRBrace) {
		entryName := p.consume(lexer.TokenIdent, "expected an enum entry name").Lexeme
		var value ast.Node
		if p.match(lexer.TokenEqual) {
			value = p.expression()
		}
		entries = append(entries, ast.EnumEntry{Name: entryName, Value: value})
		if !p.match(lexer.TokenComma) {
			break
		}
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return &ast.EnumDecl{Name: name, Underlying: underlying, Entries: entries}
}

func (p *Parser) bitfieldDecl() ast.Node {
	p.advance()
	name := p.consume(lexer.TokenIdent, "expected a bitfield name").Lexeme
	p.consume(lexer.TokenLBrace, "expected '{'")
	var entries []ast.BitfieldEntry
	for !p.check(lexer.TokenRBrace) {
		entryName := p.consume(lexer.TokenIdent, "expected a bitfield entry name").Lexeme
		p.consume(lexer.TokenColon, "expected ':'")
		bits, _ := strconv.Atoi(p.consume(lexer.TokenNumber, "expected a bit width").Lexeme)
		entries = append(entries, ast.BitfieldEntry{Name: entryName, Bits: bits})
		p.consume(lexer.TokenSemi, "expected ';'")
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return &ast.BitfieldDecl{Name: name, Entries: entries}
}

func (p *Parser) typeRef() ast.TypeRef {
	name := p.consume(lexer.TokenIdent, "expected a type name").Lexeme
	if id, ok := builtinTypes[name]; ok {
		return ast.TypeRef{Name: name, BuiltinId: id}
	}
	return ast.TypeRef{Name: name, BuiltinId: bytecode.CustomType}
}

func (p *Parser) statement() ast.Node {
	switch {
	case p.check(lexer.TokenIf):
		return p.ifElse()
	case p.check(lexer.TokenMatch):
		return p.match_()
	case p.check(lexer.TokenWhile):
		return p.whileLoop()
	default:
		return p.simpleStatement()
	}
}

// simpleStatement disambiguates a VarDecl ("Type name ...;"), an
// Assignment ("name = expr;") and a bare FuncCall statement by looking one
// identifier ahead: a VarDecl's second token is always another identifier,
// an Assignment's is '=', a FuncCall's is '(' or '::'.
func (p *Parser) simpleStatement() ast.Node {
	if p.check(lexer.TokenIdent) {
		save := p.current
		first := p.advance().Lexeme
		switch {
		case p.check(lexer.TokenIdent):
			p.current = save
			return p.varDecl()
		case p.check(lexer.TokenEqual):
			p.advance()
			value := p.expression()
			p.consume(lexer.TokenSemi, "expected ';'")
			return &ast.Assignment{Target: first, Value: value}
		case p.check(lexer.TokenLParen), p.check(lexer.TokenDColon):
			p.current = save
			call := p.funcCall()
			p.consume(lexer.TokenSemi, "expected ';'")
			return call
		default:
			p.current = save
		}
	}
	loc := p.loc()
	panic(&ParseError{Message: "expected a declaration or statement", Line: loc.Line, Column: loc.Column})
}

func (p *Parser) varDecl() ast.Node {
	typ := p.typeRef()
	name := p.consume(lexer.TokenIdent, "expected a field name").Lexeme

	var placement, arrayCount, arrayWhile ast.Node
	if p.match(lexer.TokenLBracket) {
		if p.check(lexer.TokenWhile) {
			p.advance()
			p.consume(lexer.TokenLParen, "expected '('")
			arrayWhile = p.expression()
			p.consume(lexer.TokenRParen, "expected ')'")
		} else if !p.check(lexer.TokenRBracket) {
			arrayCount = p.expression()
		}
		p.consume(lexer.TokenRBracket, "expected ']'")
	}
	if p.match(lexer.TokenAt) {
		placement = p.expression()
	}
	p.consume(lexer.TokenSemi, "expected ';'")
	return &ast.VarDecl{
		Type:       typ,
		Name:       name,
		Placement:  placement,
		ArrayCount: arrayCount,
		ArrayWhile: arrayWhile,
	}
}

func (p *Parser) ifElse() ast.Node {
	p.advance()
	p.consume(lexer.TokenLParen, "expected '('")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expected ')'")
	p.consume(lexer.TokenLBrace, "expected '{'")
	var then []ast.Node
	for !p.check(lexer.TokenRBrace) {
		then = append(then, p.statement())
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	var elseBody []ast.Node
	if p.match(lexer.TokenElse) {
		if p.check(lexer.TokenIf) {
			elseBody = []ast.Node{p.ifElse()}
		} else {
			p.consume(lexer.TokenLBrace, "expected '{'")
			for !p.check(lexer.TokenRBrace) {
				elseBody = append(elseBody, p.statement())
			}
			p.consume(lexer.TokenRBrace, "expected '}'")
		}
	}
	return &ast.IfElse{Cond: cond, Then: then, Else: elseBody}
}

func (p *Parser) match_() ast.Node {
	p.advance()
	p.consume(lexer.TokenLBrace, "expected '{'")
	var cases []ast.MatchCase
	for !p.check(lexer.TokenRBrace) {
		var cond ast.Node
		if p.check(lexer.TokenIdent) && p.peek().Lexeme == "_" {
			p.advance()
		} else {
			cond = p.expression()
		}
		p.consume(lexer.TokenArrow, "expected '=>'")
		p.consume(lexer.TokenLBrace, "expected '{'")
		var body []ast.Node
		for !p.check(lexer.TokenRBrace) {
			body = append(body, p.statement())
		}
		p.consume(lexer.TokenRBrace, "expected '}'")
		cases = append(cases, ast.MatchCase{Cond: cond, Body: body})
		p.match(lexer.TokenComma)
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return &ast.Match{Cases: cases}
}

func (p *Parser) whileLoop() ast.Node {
	p.advance()
	p.consume(lexer.TokenLParen, "expected '('")
	cond := p.expression()
	p.consume(lexer.TokenRParen, "expected ')'")
	p.consume(lexer.TokenLBrace, "expected '{'")
	var body []ast.Node
	for !p.check(lexer.TokenRBrace) {
		body = append(body, p.statement())
	}
	p.consume(lexer.TokenRBrace, "expected '}'")
	return &ast.WhileLoop{Cond: cond, Body: body}
}

func (p *Parser) funcCall() ast.Node {
	var parts []string
	parts = append(parts, p.consume(lexer.TokenIdent, "expected a function name").Lexeme)
	for p.match(lexer.TokenDColon) {
		parts = append(parts, p.consume(lexer.TokenIdent, "expected a function name").Lexeme)
	}
	name := parts[len(parts)-1]
	namespace := parts[:len(parts)-1]
	p.consume(lexer.TokenLParen, "expected '('")
	var args []ast.Node
	if !p.check(lexer.TokenRParen) {
		args = append(args, p.expression())
		for p.match(lexer.TokenComma) {
			args = append(args, p.expression())
		}
	}
	p.consume(lexer.TokenRParen, "expected ')'")
	return &ast.FuncCall{Namespace: namespace, Name: name, Args: args}
}

// --- expressions, lowest to highest precedence ---

func (p *Parser) expression() ast.Node { return p.or() }

func (p *Parser) or() ast.Node {
	left := p.and()
	for p.check(lexer.TokenOr) {
		p.advance()
		right := p.and()
		left = &ast.BinaryOp{Op: "||", Left: left, Right: right}
	}
	return left
}

func (p *Parser) and() ast.Node {
	left := p.equality()
	for p.check(lexer.TokenAnd) {
		p.advance()
		right := p.equality()
		left = &ast.BinaryOp{Op: "&&", Left: left, Right: right}
	}
	return left
}

func (p *Parser) equality() ast.Node {
	left := p.comparison()
	for p.check(lexer.TokenEqEq) || p.check(lexer.TokenNotEq) {
		op := p.advance().Type
		right := p.comparison()
		left = &ast.BinaryOp{Op: string(op), Left: left, Right: right}
	}
	return left
}

func (p *Parser) comparison() ast.Node {
	left := p.unary()
	for p.check(lexer.TokenLT) || p.check(lexer.TokenLE) || p.check(lexer.TokenGT) || p.check(lexer.TokenGE) {
		op := p.advance().Type
		right := p.unary()
		left = &ast.BinaryOp{Op: string(op), Left: left, Right: right}
	}
	return left
}

func (p *Parser) unary() ast.Node {
	if p.check(lexer.TokenNot) {
		p.advance()
		return &ast.UnaryNot{Operand: p.unary()}
	}
	return p.postfix()
}

func (p *Parser) postfix() ast.Node {
	expr := p.primary()
	for {
		switch {
		case p.match(lexer.TokenDot):
			name := p.consume(lexer.TokenIdent, "expected a field name").Lexeme
			expr = &ast.MemberAccess{Target: expr, Name: name}
		case p.match(lexer.TokenLBracket):
			idx := p.expression()
			p.consume(lexer.TokenRBracket, "expected ']'")
			expr = &ast.IndexAccess{Target: expr, Index: idx}
		default:
			return expr
		}
	}
}

func (p *Parser) primary() ast.Node {
	loc := p.loc()
	switch {
	case p.match(lexer.TokenTrue):
		return &ast.BoolLiteral{Value: true}
	case p.match(lexer.TokenFalse):
		return &ast.BoolLiteral{Value: false}
	case p.match(lexer.TokenNumber):
		return parseNumber(p.previous().Lexeme, loc)
	case p.match(lexer.TokenString):
		return &ast.StringLiteral{Value: p.previous().Lexeme}
	case p.match(lexer.TokenLParen):
		e := p.expression()
		p.consume(lexer.TokenRParen, "expected ')'")
		return e
	case p.check(lexer.TokenIdent):
		save := p.current
		name := p.advance().Lexeme
		if p.check(lexer.TokenLParen) || p.check(lexer.TokenDColon) {
			p.current = save
			return p.funcCall()
		}
		return &ast.Identifier{Name: name}
	}
	panic(&ParseError{Message: "unexpected token " + string(p.peek().Type), Line: loc.Line, Column: loc.Column})
}

func parseNumber(lexeme string, loc ast.Location) ast.Node {
	if strings.Contains(lexeme, ".") {
		// Floating literals become unsigned IntLiterals holding only the
		// integer part; the fraction is dropped. This surface keeps only
		// integer and hex literals, matching what internal/compiler lowers.
		v, _ := strconv.ParseInt(strings.SplitN(lexeme, ".", 2)[0], 10, 64)
		return &ast.IntLiteral{Value: v, Signed: false}
	}
	base := 10
	text := lexeme
	if strings.HasPrefix(lexeme, "0x") || strings.HasPrefix(lexeme, "0X") {
		base = 16
		text = lexeme[2:]
	}
	v, _ := strconv.ParseUint(text, base, 64)
	return &ast.IntLiteral{Value: int64(v), Signed: false}
}
