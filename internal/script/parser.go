package script

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a syntax error with its source position.
type ParseError struct {
	Msg  string
	Line int
	Col  int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Col, e.Msg)
}

// Parser builds an AST from a token stream. The grammar is a fixed subset:
// assignments, expression statements, if/elif/else, for, bounded while,
// and class schema declarations.
type Parser struct {
	lex  *Lexer
	cur  Token
	peek Token
	err  *ParseError
}

// Parse parses a complete script.
func Parse(src string) (*Program, error) {
	p := newParser(NewLexer(src))
	prog := &Program{}
	p.skipNewlines()
	for p.cur.Type != TokenEOF && p.err == nil {
		stmt := p.parseStmt()
		if p.err != nil {
			return nil, p.err
		}
		prog.Stmts = append(prog.Stmts, stmt)
		p.skipNewlines()
	}
	if p.err != nil {
		return nil, p.err
	}
	return prog, nil
}

// ParseExpr parses a single bare expression, used for f-string
// interpolations.
func ParseExpr(src string, line int) (Expr, error) {
	p := newParser(newExprLexer(src, line))
	expr := p.parseExpr()
	if p.err != nil {
		return nil, p.err
	}
	if p.cur.Type != TokenEOF {
		p.errorf(p.cur, "unexpected %s after expression", p.cur.Type)
		return nil, p.err
	}
	return expr, nil
}

func newParser(lex *Lexer) *Parser {
	p := &Parser{lex: lex}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.Next()
	if p.cur.Type == TokenIllegal && p.err == nil {
		p.err = &ParseError{Msg: p.cur.Literal, Line: p.cur.Line, Col: p.cur.Column}
	}
}

func (p *Parser) errorf(tok Token, format string, args ...any) {
	if p.err == nil {
		p.err = &ParseError{Msg: fmt.Sprintf(format, args...), Line: tok.Line, Col: tok.Column}
	}
}

func (p *Parser) expect(typ TokenType) Token {
	tok := p.cur
	if tok.Type != typ {
		p.errorf(tok, "expected %s, got %s", typ, tok.Type)
		return tok
	}
	p.next()
	return tok
}

func (p *Parser) pos(tok Token) Position {
	return Position{Line: tok.Line, Column: tok.Column}
}

func (p *Parser) skipNewlines() {
	for p.cur.Type == TokenNewline {
		p.next()
	}
}

// endOfLine consumes the statement terminator. EOF and DEDENT also close
// a logical line since the final line of a block may omit the newline.
func (p *Parser) endOfLine() {
	switch p.cur.Type {
	case TokenNewline:
		p.next()
	case TokenEOF, TokenDedent:
	default:
		p.errorf(p.cur, "expected end of line, got %s", p.cur.Type)
	}
}

// --- Statements ---

func (p *Parser) parseStmt() Stmt {
	switch p.cur.Type {
	case TokenIf:
		return p.parseIf()
	case TokenFor:
		return p.parseFor()
	case TokenWhile:
		return p.parseWhile()
	case TokenClass:
		return p.parseSchemaDecl()
	default:
		return p.parseSimpleStmt()
	}
}

// parseSimpleStmt handles assignments and expression statements. The left
// side is parsed as an expression list first; an '=' converts it to an
// assignment target.
func (p *Parser) parseSimpleStmt() Stmt {
	start := p.cur
	first := p.parseExpr()
	if p.err != nil {
		return nil
	}

	exprs := []Expr{first}
	for p.cur.Type == TokenComma {
		p.next()
		exprs = append(exprs, p.parseExpr())
		if p.err != nil {
			return nil
		}
	}

	if p.cur.Type == TokenAssign {
		p.next()
		target := p.exprsToTarget(exprs, start)
		if p.err != nil {
			return nil
		}
		value := p.parseExpr()
		if p.err != nil {
			return nil
		}
		p.endOfLine()
		return &Assign{Target: target, Value: value, P: p.pos(start)}
	}

	if len(exprs) != 1 {
		p.errorf(start, "tuple expressions are only allowed as assignment targets")
		return nil
	}
	p.endOfLine()
	return &ExprStmt{X: first, P: p.pos(start)}
}

// exprsToTarget reinterprets an expression list as an assignment target.
// Only plain names and tuples of names can be bound.
func (p *Parser) exprsToTarget(exprs []Expr, at Token) Target {
	if len(exprs) == 1 {
		return p.exprToTarget(exprs[0], at)
	}
	tt := &TupleTarget{P: p.pos(at)}
	for _, e := range exprs {
		tt.Elems = append(tt.Elems, p.exprToTarget(e, at))
	}
	return tt
}

func (p *Parser) exprToTarget(e Expr, at Token) Target {
	switch v := e.(type) {
	case *Ident:
		return &NameTarget{Name: v.Name, P: v.P}
	default:
		p.errorf(at, "cannot assign to this expression")
		return nil
	}
}

func (p *Parser) parseIf() Stmt {
	start := p.expect(TokenIf)
	cond := p.parseExpr()
	p.expect(TokenColon)
	body := p.parseBlock()
	stmt := &If{Cond: cond, Then: body, P: p.pos(start)}

	for p.cur.Type == TokenElif && p.err == nil {
		p.next()
		elifCond := p.parseExpr()
		p.expect(TokenColon)
		elifBody := p.parseBlock()
		stmt.Elifs = append(stmt.Elifs, ElifClause{Cond: elifCond, Body: elifBody})
	}
	if p.cur.Type == TokenElse {
		p.next()
		p.expect(TokenColon)
		stmt.Else = p.parseBlock()
	}
	return stmt
}

func (p *Parser) parseFor() Stmt {
	start := p.expect(TokenFor)
	target := p.parseTargetList()
	p.expect(TokenIn)
	iter := p.parseExpr()
	p.expect(TokenColon)
	body := p.parseBlock()
	return &For{Target: target, Iter: iter, Body: body, P: p.pos(start)}
}

func (p *Parser) parseWhile() Stmt {
	start := p.expect(TokenWhile)
	cond := p.parseExpr()
	p.expect(TokenColon)
	body := p.parseBlock()
	return &While{Cond: cond, Body: body, P: p.pos(start)}
}

// parseSchemaDecl parses a class block declaring record fields. Bodies
// contain only "name: type" lines; methods and defaults are rejected.
func (p *Parser) parseSchemaDecl() Stmt {
	start := p.expect(TokenClass)
	name := p.expect(TokenIdent)
	p.expect(TokenColon)
	p.expect(TokenNewline)
	p.expect(TokenIndent)

	decl := &SchemaDecl{Name: name.Literal, P: p.pos(start)}
	p.skipNewlines()
	for p.cur.Type != TokenDedent && p.cur.Type != TokenEOF && p.err == nil {
		field := p.expect(TokenIdent)
		p.expect(TokenColon)
		typ := p.parseFieldType()
		decl.Fields = append(decl.Fields, SchemaFieldDecl{Name: field.Literal, Type: typ})
		p.endOfLine()
		p.skipNewlines()
	}
	if p.cur.Type == TokenDedent {
		p.next()
	}
	if len(decl.Fields) == 0 && p.err == nil {
		p.errorf(start, "schema %q declares no fields", decl.Name)
	}
	return decl
}

func (p *Parser) parseFieldType() string {
	tok := p.expect(TokenIdent)
	if p.err != nil {
		return ""
	}
	// list[str] style element annotations collapse to the container type.
	if p.cur.Type == TokenLBracket {
		p.next()
		p.expect(TokenIdent)
		p.expect(TokenRBracket)
	}
	return tok.Literal
}

func (p *Parser) parseBlock() []Stmt {
	p.expect(TokenNewline)
	p.expect(TokenIndent)
	var stmts []Stmt
	p.skipNewlines()
	for p.cur.Type != TokenDedent && p.cur.Type != TokenEOF && p.err == nil {
		stmts = append(stmts, p.parseStmt())
		p.skipNewlines()
	}
	if p.cur.Type == TokenDedent {
		p.next()
	}
	if len(stmts) == 0 && p.err == nil {
		p.errorf(p.cur, "empty block")
	}
	return stmts
}

// parseTargetList parses a loop target: a name, a parenthesized tuple of
// names, or a bare comma-separated tuple.
func (p *Parser) parseTargetList() Target {
	first := p.parseTarget()
	if p.cur.Type != TokenComma {
		return first
	}
	tt := &TupleTarget{Elems: []Target{first}}
	if nt, ok := first.(*NameTarget); ok {
		tt.P = nt.P
	}
	for p.cur.Type == TokenComma {
		p.next()
		tt.Elems = append(tt.Elems, p.parseTarget())
	}
	return tt
}

func (p *Parser) parseTarget() Target {
	switch p.cur.Type {
	case TokenIdent:
		tok := p.cur
		p.next()
		return &NameTarget{Name: tok.Literal, P: p.pos(tok)}
	case TokenLParen:
		start := p.cur
		p.next()
		tt := &TupleTarget{P: p.pos(start)}
		for {
			tt.Elems = append(tt.Elems, p.parseTarget())
			if p.cur.Type != TokenComma {
				break
			}
			p.next()
		}
		p.expect(TokenRParen)
		return tt
	default:
		p.errorf(p.cur, "expected name in loop target, got %s", p.cur.Type)
		return nil
	}
}

// --- Expressions ---

func (p *Parser) parseExpr() Expr {
	return p.parseTernary()
}

func (p *Parser) parseTernary() Expr {
	x := p.parseOr()
	if p.cur.Type != TokenIf {
		return x
	}
	start := p.cur
	p.next()
	cond := p.parseOr()
	p.expect(TokenElse)
	els := p.parseTernary()
	return &Ternary{Cond: cond, Then: x, Else: els, P: p.pos(start)}
}

func (p *Parser) parseOr() Expr {
	x := p.parseAnd()
	for p.cur.Type == TokenOr {
		op := p.cur
		p.next()
		y := p.parseAnd()
		x = &Binary{Op: "or", X: x, Y: y, P: p.pos(op)}
	}
	return x
}

func (p *Parser) parseAnd() Expr {
	x := p.parseNot()
	for p.cur.Type == TokenAnd {
		op := p.cur
		p.next()
		y := p.parseNot()
		x = &Binary{Op: "and", X: x, Y: y, P: p.pos(op)}
	}
	return x
}

func (p *Parser) parseNot() Expr {
	if p.cur.Type == TokenNot {
		op := p.cur
		p.next()
		x := p.parseNot()
		return &Unary{Op: "not", X: x, P: p.pos(op)}
	}
	return p.parseComparison()
}

// parseComparison accepts at most one comparison operator. Chained
// comparisons like a < b < c are a deliberate omission: planners never
// emit them and silently misreading one would be worse than an error.
func (p *Parser) parseComparison() Expr {
	x := p.parseAdditive()
	var op string
	tok := p.cur
	switch p.cur.Type {
	case TokenEq:
		op = "=="
	case TokenNotEq:
		op = "!="
	case TokenLt:
		op = "<"
	case TokenLtE:
		op = "<="
	case TokenGt:
		op = ">"
	case TokenGtE:
		op = ">="
	case TokenIn:
		op = "in"
	case TokenNot:
		if p.peek.Type != TokenIn {
			return x
		}
		p.next()
		op = "not-in"
	default:
		return x
	}
	p.next()
	y := p.parseAdditive()
	return &Binary{Op: op, X: x, Y: y, P: p.pos(tok)}
}

func (p *Parser) parseAdditive() Expr {
	x := p.parseMultiplicative()
	for p.cur.Type == TokenPlus || p.cur.Type == TokenMinus {
		op := p.cur
		p.next()
		y := p.parseMultiplicative()
		x = &Binary{Op: op.Literal, X: x, Y: y, P: p.pos(op)}
	}
	return x
}

func (p *Parser) parseMultiplicative() Expr {
	x := p.parseUnary()
	for p.cur.Type == TokenStar || p.cur.Type == TokenSlash || p.cur.Type == TokenPercent {
		op := p.cur
		p.next()
		y := p.parseUnary()
		x = &Binary{Op: op.Literal, X: x, Y: y, P: p.pos(op)}
	}
	return x
}

func (p *Parser) parseUnary() Expr {
	if p.cur.Type == TokenMinus {
		op := p.cur
		p.next()
		x := p.parseUnary()
		return &Unary{Op: "-", X: x, P: p.pos(op)}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() Expr {
	x := p.parsePrimary()
	for p.err == nil {
		switch p.cur.Type {
		case TokenLParen:
			x = p.parseCall(x)
		case TokenDot:
			dot := p.cur
			p.next()
			name := p.expect(TokenIdent)
			x = &Attr{X: x, Name: name.Literal, P: p.pos(dot)}
		case TokenLBracket:
			br := p.cur
			p.next()
			key := p.parseExpr()
			p.expect(TokenRBracket)
			x = &Index{X: x, Key: key, P: p.pos(br)}
		default:
			return x
		}
	}
	return x
}

func (p *Parser) parseCall(fn Expr) Expr {
	start := p.expect(TokenLParen)
	call := &Call{Fn: fn, P: p.pos(start)}
	for p.cur.Type != TokenRParen && p.err == nil {
		if p.cur.Type == TokenIdent && p.peek.Type == TokenAssign {
			name := p.cur
			p.next()
			p.next()
			value := p.parseExpr()
			call.Kwargs = append(call.Kwargs, Kwarg{Name: name.Literal, Value: value})
		} else {
			if len(call.Kwargs) > 0 {
				p.errorf(p.cur, "positional argument after keyword argument")
				return call
			}
			call.Args = append(call.Args, p.parseExpr())
		}
		if p.cur.Type != TokenComma {
			break
		}
		p.next()
	}
	p.expect(TokenRParen)
	return call
}

func (p *Parser) parsePrimary() Expr {
	tok := p.cur
	switch tok.Type {
	case TokenInt:
		p.next()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.errorf(tok, "invalid integer literal %q", tok.Literal)
			return nil
		}
		return &IntLit{Value: v, P: p.pos(tok)}
	case TokenFloat:
		p.next()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf(tok, "invalid float literal %q", tok.Literal)
			return nil
		}
		return &FloatLit{Value: v, P: p.pos(tok)}
	case TokenString:
		p.next()
		return &StringLit{Value: tok.Literal, P: p.pos(tok)}
	case TokenFString:
		p.next()
		return p.parseFString(tok)
	case TokenTrue:
		p.next()
		return &BoolLit{Value: true, P: p.pos(tok)}
	case TokenFalse:
		p.next()
		return &BoolLit{Value: false, P: p.pos(tok)}
	case TokenNone:
		p.next()
		return &NullLit{P: p.pos(tok)}
	case TokenIdent:
		p.next()
		return &Ident{Name: tok.Literal, P: p.pos(tok)}
	case TokenLParen:
		p.next()
		x := p.parseExpr()
		p.expect(TokenRParen)
		return x
	case TokenLBracket:
		return p.parseListOrComp()
	case TokenLBrace:
		return p.parseBraceDisplay()
	default:
		p.errorf(tok, "unexpected %s", tok.Type)
		return nil
	}
}

func (p *Parser) parseListOrComp() Expr {
	start := p.expect(TokenLBracket)
	if p.cur.Type == TokenRBracket {
		p.next()
		return &ListLit{P: p.pos(start)}
	}
	first := p.parseExpr()
	if p.err != nil {
		return nil
	}
	if p.cur.Type == TokenFor {
		gens := p.parseCompGens()
		p.expect(TokenRBracket)
		return &Comp{Kind: CompList, Elt: first, Gens: gens, P: p.pos(start)}
	}
	lit := &ListLit{Elems: []Expr{first}, P: p.pos(start)}
	for p.cur.Type == TokenComma {
		p.next()
		if p.cur.Type == TokenRBracket {
			break
		}
		lit.Elems = append(lit.Elems, p.parseExpr())
	}
	p.expect(TokenRBracket)
	return lit
}

// parseBraceDisplay parses map and set displays and their comprehension
// forms. An empty {} is an empty map.
func (p *Parser) parseBraceDisplay() Expr {
	start := p.expect(TokenLBrace)
	if p.cur.Type == TokenRBrace {
		p.next()
		return &MapLit{P: p.pos(start)}
	}
	first := p.parseExpr()
	if p.err != nil {
		return nil
	}

	if p.cur.Type == TokenColon {
		p.next()
		firstVal := p.parseExpr()
		if p.cur.Type == TokenFor {
			gens := p.parseCompGens()
			p.expect(TokenRBrace)
			return &Comp{Kind: CompMap, Key: first, Elt: firstVal, Gens: gens, P: p.pos(start)}
		}
		lit := &MapLit{Keys: []Expr{first}, Values: []Expr{firstVal}, P: p.pos(start)}
		for p.cur.Type == TokenComma {
			p.next()
			if p.cur.Type == TokenRBrace {
				break
			}
			k := p.parseExpr()
			p.expect(TokenColon)
			v := p.parseExpr()
			lit.Keys = append(lit.Keys, k)
			lit.Values = append(lit.Values, v)
		}
		p.expect(TokenRBrace)
		return lit
	}

	if p.cur.Type == TokenFor {
		gens := p.parseCompGens()
		p.expect(TokenRBrace)
		return &Comp{Kind: CompSet, Elt: first, Gens: gens, P: p.pos(start)}
	}
	lit := &SetLit{Elems: []Expr{first}, P: p.pos(start)}
	for p.cur.Type == TokenComma {
		p.next()
		if p.cur.Type == TokenRBrace {
			break
		}
		lit.Elems = append(lit.Elems, p.parseExpr())
	}
	p.expect(TokenRBrace)
	return lit
}

func (p *Parser) parseCompGens() []CompGen {
	var gens []CompGen
	for p.cur.Type == TokenFor && p.err == nil {
		p.next()
		gen := CompGen{Target: p.parseTargetList()}
		p.expect(TokenIn)
		gen.Iter = p.parseOr()
		for p.cur.Type == TokenIf {
			p.next()
			gen.Filters = append(gen.Filters, p.parseOr())
		}
		gens = append(gens, gen)
	}
	return gens
}

// parseFString splits a formatted string literal into text and
// interpolation parts. Doubled braces escape literal braces.
func (p *Parser) parseFString(tok Token) Expr {
	fs := &FString{P: p.pos(tok)}
	src := tok.Literal
	var text strings.Builder
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == '{' && i+1 < len(src) && src[i+1] == '{':
			text.WriteByte('{')
			i += 2
		case ch == '}' && i+1 < len(src) && src[i+1] == '}':
			text.WriteByte('}')
			i += 2
		case ch == '{':
			end := strings.IndexByte(src[i+1:], '}')
			if end < 0 {
				p.errorf(tok, "unclosed interpolation in formatted string")
				return fs
			}
			inner := src[i+1 : i+1+end]
			if strings.TrimSpace(inner) == "" {
				p.errorf(tok, "empty interpolation in formatted string")
				return fs
			}
			if text.Len() > 0 {
				fs.Parts = append(fs.Parts, FStringPart{Text: text.String()})
				text.Reset()
			}
			expr, err := ParseExpr(inner, tok.Line)
			if err != nil {
				if pe, ok := err.(*ParseError); ok {
					p.errorf(tok, "in formatted string: %s", pe.Msg)
				} else {
					p.errorf(tok, "in formatted string: %v", err)
				}
				return fs
			}
			fs.Parts = append(fs.Parts, FStringPart{Expr: expr})
			i += end + 2
		case ch == '}':
			p.errorf(tok, "single '}' in formatted string")
			return fs
		default:
			text.WriteByte(ch)
			i++
		}
	}
	if text.Len() > 0 {
		fs.Parts = append(fs.Parts, FStringPart{Text: text.String()})
	}
	return fs
}
