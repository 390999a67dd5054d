package script

import "testing"

func collect(t *testing.T, src string) []Token {
	t.Helper()
	lex := NewLexer(src)
	var toks []Token
	for {
		tok := lex.Next()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenIllegal {
			return toks
		}
	}
}

func types(toks []Token) []TokenType {
	out := make([]TokenType, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func expectTypes(t *testing.T, got []Token, want []TokenType) {
	t.Helper()
	gt := types(got)
	if len(gt) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(gt), len(want), gt)
	}
	for i := range want {
		if gt[i] != want[i] {
			t.Errorf("token %d = %s, want %s", i, gt[i], want[i])
		}
	}
}

func TestLexAssignment(t *testing.T) {
	toks := collect(t, "x = 42\n")
	expectTypes(t, toks, []TokenType{TokenIdent, TokenAssign, TokenInt, TokenNewline, TokenEOF})
	if toks[0].Literal != "x" {
		t.Errorf("ident literal = %q, want x", toks[0].Literal)
	}
	if toks[2].Literal != "42" {
		t.Errorf("int literal = %q, want 42", toks[2].Literal)
	}
}

func TestLexIndentDedent(t *testing.T) {
	src := "if x:\n    y = 1\nz = 2\n"
	toks := collect(t, src)
	expectTypes(t, toks, []TokenType{
		TokenIf, TokenIdent, TokenColon, TokenNewline,
		TokenIndent, TokenIdent, TokenAssign, TokenInt, TokenNewline,
		TokenDedent, TokenIdent, TokenAssign, TokenInt, TokenNewline,
		TokenEOF,
	})
}

func TestLexNestedDedents(t *testing.T) {
	src := "if a:\n    if b:\n        x = 1\ny = 2\n"
	toks := collect(t, src)
	dedents := 0
	for _, tok := range toks {
		if tok.Type == TokenDedent {
			dedents++
		}
	}
	if dedents != 2 {
		t.Errorf("dedent count = %d, want 2", dedents)
	}
}

func TestLexDedentsClosedAtEOF(t *testing.T) {
	src := "if a:\n    x = 1"
	toks := collect(t, src)
	dedents := 0
	for _, tok := range toks {
		if tok.Type == TokenDedent {
			dedents++
		}
	}
	if dedents != 1 {
		t.Errorf("dedent count = %d, want 1", dedents)
	}
	if toks[len(toks)-1].Type != TokenEOF {
		t.Errorf("last token = %s, want EOF", toks[len(toks)-1].Type)
	}
}

func TestLexInconsistentIndentation(t *testing.T) {
	src := "if a:\n        x = 1\n    y = 2\n"
	toks := collect(t, src)
	last := toks[len(toks)-1]
	if last.Type != TokenIllegal {
		t.Fatalf("expected ILLEGAL token, got %s", last.Type)
	}
	if last.Literal != "inconsistent indentation" {
		t.Errorf("illegal literal = %q", last.Literal)
	}
}

func TestLexBracketsSuppressNewlines(t *testing.T) {
	src := "x = [1,\n     2,\n     3]\n"
	toks := collect(t, src)
	for i, tok := range toks[:len(toks)-2] {
		if tok.Type == TokenNewline {
			t.Errorf("unexpected NEWLINE at token %d inside brackets", i)
		}
	}
}

func TestLexBlankAndCommentLines(t *testing.T) {
	src := "x = 1\n\n# a comment\ny = 2\n"
	toks := collect(t, src)
	for _, tok := range toks {
		if tok.Type == TokenIndent || tok.Type == TokenDedent {
			t.Errorf("blank/comment lines changed indentation: %s", tok.Type)
		}
	}
}

func TestLexKeywordsAndOperators(t *testing.T) {
	src := "a == b != c <= d >= e and not f or g in h\n"
	toks := collect(t, src)
	want := []TokenType{
		TokenIdent, TokenEq, TokenIdent, TokenNotEq, TokenIdent,
		TokenLtE, TokenIdent, TokenGtE, TokenIdent,
		TokenAnd, TokenNot, TokenIdent, TokenOr, TokenIdent,
		TokenIn, TokenIdent, TokenNewline, TokenEOF,
	}
	expectTypes(t, toks, want)
}

func TestLexStringEscapes(t *testing.T) {
	toks := collect(t, `s = "a\nb\tc\"d"` + "\n")
	if toks[2].Type != TokenString {
		t.Fatalf("token type = %s, want STRING", toks[2].Type)
	}
	if toks[2].Literal != "a\nb\tc\"d" {
		t.Errorf("string literal = %q", toks[2].Literal)
	}
}

func TestLexFString(t *testing.T) {
	toks := collect(t, `m = f"hello {name}!"` + "\n")
	if toks[2].Type != TokenFString {
		t.Fatalf("token type = %s, want FSTRING", toks[2].Type)
	}
	if toks[2].Literal != "hello {name}!" {
		t.Errorf("fstring literal = %q", toks[2].Literal)
	}
}

func TestLexFPrefixedIdent(t *testing.T) {
	// f not followed by a quote is an ordinary identifier.
	toks := collect(t, "files = 1\n")
	if toks[0].Type != TokenIdent || toks[0].Literal != "files" {
		t.Errorf("token = %s %q, want IDENT files", toks[0].Type, toks[0].Literal)
	}
}

func TestLexFloat(t *testing.T) {
	toks := collect(t, "pi = 3.14\n")
	if toks[2].Type != TokenFloat || toks[2].Literal != "3.14" {
		t.Errorf("token = %s %q, want FLOAT 3.14", toks[2].Type, toks[2].Literal)
	}
}

func TestLexUnterminatedString(t *testing.T) {
	toks := collect(t, `s = "oops` + "\n")
	last := toks[len(toks)-1]
	if last.Type != TokenIllegal {
		t.Fatalf("expected ILLEGAL, got %s", last.Type)
	}
}

func TestLexPositions(t *testing.T) {
	toks := collect(t, "x = 1\ny = 2\n")
	if toks[0].Line != 1 || toks[0].Column != 1 {
		t.Errorf("first token at %d:%d, want 1:1", toks[0].Line, toks[0].Column)
	}
	var yTok Token
	for _, tok := range toks {
		if tok.Type == TokenIdent && tok.Literal == "y" {
			yTok = tok
		}
	}
	if yTok.Line != 2 {
		t.Errorf("y at line %d, want 2", yTok.Line)
	}
}
