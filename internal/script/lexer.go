package script

import (
	"fmt"
	"strings"
)

// Lexer tokenizes script source. It tracks indentation at line starts and
// emits synthetic INDENT/DEDENT tokens; inside brackets, newlines and
// indentation are insignificant, matching the Python layout rules the
// planner emits.
type Lexer struct {
	src  string
	pos  int
	line int
	col  int

	indents      []int
	pending      []Token
	bracketDepth int
	atLineStart  bool
	exprMode     bool
}

// NewLexer returns a lexer over the given source.
func NewLexer(src string) *Lexer {
	return &Lexer{
		src:         src,
		line:        1,
		col:         1,
		indents:     []int{0},
		atLineStart: true,
	}
}

// newExprLexer returns a lexer for a bare expression (f-string
// interpolations): no indentation handling, newlines insignificant.
func newExprLexer(src string, line int) *Lexer {
	return &Lexer{
		src:      src,
		line:     line,
		col:      1,
		indents:  []int{0},
		exprMode: true,
	}
}

// Next returns the next token.
func (l *Lexer) Next() Token {
	if len(l.pending) > 0 {
		tok := l.pending[0]
		l.pending = l.pending[1:]
		return tok
	}

	if l.atLineStart && l.bracketDepth == 0 && !l.exprMode {
		if tok, ok := l.handleIndentation(); ok {
			return tok
		}
	}

	l.skipSpaces()

	if l.pos >= len(l.src) {
		return l.finishEOF()
	}

	ch := l.src[l.pos]

	// Comments run to end of line.
	if ch == '#' {
		for l.pos < len(l.src) && l.src[l.pos] != '\n' {
			l.advance()
		}
		return l.Next()
	}

	if ch == '\n' {
		tok := l.token(TokenNewline, "\n")
		l.advance()
		if l.bracketDepth == 0 && !l.exprMode {
			l.atLineStart = true
			return tok
		}
		// Newlines inside brackets and expressions are insignificant.
		return l.Next()
	}

	switch {
	case isDigit(ch):
		return l.lexNumber()
	case ch == '"' || ch == '\'':
		return l.lexString(false)
	case (ch == 'f' || ch == 'F') && l.pos+1 < len(l.src) && (l.src[l.pos+1] == '"' || l.src[l.pos+1] == '\''):
		l.advance()
		return l.lexString(true)
	case isIdentStart(ch):
		return l.lexIdent()
	}

	return l.lexOperator()
}

// handleIndentation measures leading whitespace on a fresh line and emits
// INDENT/DEDENT tokens against the indent stack. Blank and comment-only
// lines are skipped without affecting indentation.
func (l *Lexer) handleIndentation() (Token, bool) {
	for {
		width := 0
		for l.pos < len(l.src) {
			switch l.src[l.pos] {
			case ' ':
				width++
			case '\t':
				width += 4
			default:
				goto measured
			}
			l.advance()
		}
	measured:
		if l.pos >= len(l.src) {
			l.atLineStart = false
			return Token{}, false
		}
		if l.src[l.pos] == '\n' {
			l.advance()
			continue
		}
		if l.src[l.pos] == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance()
			}
			continue
		}

		l.atLineStart = false
		current := l.indents[len(l.indents)-1]
		switch {
		case width > current:
			l.indents = append(l.indents, width)
			return Token{Type: TokenIndent, Line: l.line, Column: 1}, true
		case width < current:
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				l.pending = append(l.pending, Token{Type: TokenDedent, Line: l.line, Column: 1})
			}
			if l.indents[len(l.indents)-1] != width {
				return Token{Type: TokenIllegal, Literal: "inconsistent indentation", Line: l.line, Column: 1}, true
			}
			tok := l.pending[0]
			l.pending = l.pending[1:]
			return tok, true
		default:
			return Token{}, false
		}
	}
}

func (l *Lexer) finishEOF() Token {
	// Close any open blocks at end of input.
	if len(l.indents) > 1 && !l.exprMode {
		l.indents = l.indents[:len(l.indents)-1]
		return Token{Type: TokenDedent, Line: l.line, Column: l.col}
	}
	return Token{Type: TokenEOF, Line: l.line, Column: l.col}
}

func (l *Lexer) lexNumber() Token {
	start := l.pos
	startCol := l.col
	for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
		l.advance()
	}
	isFloat := false
	if l.pos < len(l.src) && l.src[l.pos] == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]) {
		isFloat = true
		l.advance()
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance()
		}
	}
	lit := l.src[start:l.pos]
	if isFloat {
		return Token{Type: TokenFloat, Literal: lit, Line: l.line, Column: startCol}
	}
	return Token{Type: TokenInt, Literal: lit, Line: l.line, Column: startCol}
}

// lexString consumes a quoted string. For plain strings the literal is
// the unescaped content; for f-strings the literal is the raw content
// with escapes resolved but brace structure intact for the parser.
func (l *Lexer) lexString(formatted bool) Token {
	quote := l.src[l.pos]
	startLine, startCol := l.line, l.col
	l.advance()

	var b strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			return Token{Type: TokenIllegal, Literal: "unterminated string", Line: startLine, Column: startCol}
		}
		ch := l.src[l.pos]
		if ch == quote {
			l.advance()
			break
		}
		if ch == '\\' && l.pos+1 < len(l.src) {
			l.advance()
			esc := l.src[l.pos]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\':
				b.WriteByte('\\')
			case '\'':
				b.WriteByte('\'')
			case '"':
				b.WriteByte('"')
			default:
				b.WriteByte('\\')
				b.WriteByte(esc)
			}
			l.advance()
			continue
		}
		b.WriteByte(ch)
		l.advance()
	}

	typ := TokenString
	if formatted {
		typ = TokenFString
	}
	return Token{Type: typ, Literal: b.String(), Line: startLine, Column: startCol}
}

func (l *Lexer) lexIdent() Token {
	start := l.pos
	startCol := l.col
	for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		l.advance()
	}
	lit := l.src[start:l.pos]
	return Token{Type: LookupIdent(lit), Literal: lit, Line: l.line, Column: startCol}
}

func (l *Lexer) lexOperator() Token {
	startCol := l.col
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==":
		l.advance()
		l.advance()
		return Token{Type: TokenEq, Literal: "==", Line: l.line, Column: startCol}
	case "!=":
		l.advance()
		l.advance()
		return Token{Type: TokenNotEq, Literal: "!=", Line: l.line, Column: startCol}
	case "<=":
		l.advance()
		l.advance()
		return Token{Type: TokenLtE, Literal: "<=", Line: l.line, Column: startCol}
	case ">=":
		l.advance()
		l.advance()
		return Token{Type: TokenGtE, Literal: ">=", Line: l.line, Column: startCol}
	}

	ch := l.src[l.pos]
	l.advance()
	single := map[byte]TokenType{
		'=': TokenAssign,
		'<': TokenLt,
		'>': TokenGt,
		'+': TokenPlus,
		'-': TokenMinus,
		'*': TokenStar,
		'/': TokenSlash,
		'%': TokenPercent,
		'(': TokenLParen,
		')': TokenRParen,
		'[': TokenLBracket,
		']': TokenRBracket,
		'{': TokenLBrace,
		'}': TokenRBrace,
		',': TokenComma,
		':': TokenColon,
		'.': TokenDot,
	}
	typ, ok := single[ch]
	if !ok {
		return Token{Type: TokenIllegal, Literal: fmt.Sprintf("unexpected character %q", ch), Line: l.line, Column: startCol}
	}
	switch typ {
	case TokenLParen, TokenLBracket, TokenLBrace:
		l.bracketDepth++
	case TokenRParen, TokenRBracket, TokenRBrace:
		if l.bracketDepth > 0 {
			l.bracketDepth--
		}
	}
	return Token{Type: typ, Literal: string(ch), Line: l.line, Column: startCol}
}

func (l *Lexer) token(typ TokenType, lit string) Token {
	return Token{Type: typ, Literal: lit, Line: l.line, Column: l.col}
}

func (l *Lexer) skipSpaces() {
	for l.pos < len(l.src) {
		ch := l.src[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' {
			l.advance()
			continue
		}
		break
	}
}

func (l *Lexer) advance() {
	if l.pos < len(l.src) {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func isDigit(ch byte) bool { return ch >= '0' && ch <= '9' }

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool { return isIdentStart(ch) || isDigit(ch) }
