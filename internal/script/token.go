// Package script provides the lexer, parser, and AST for the restricted
// planner script language. The surface syntax is a small Python subset,
// since that is the shape planning models emit, but the accepted grammar
// is a closed set: anything outside it is a parse error, never a
// best-effort execution.
package script

// TokenType identifies a lexical token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal
	TokenNewline
	TokenIndent
	TokenDedent

	// Literals
	TokenIdent
	TokenInt
	TokenFloat
	TokenString
	TokenFString

	// Keywords
	TokenIf
	TokenElif
	TokenElse
	TokenFor
	TokenWhile
	TokenIn
	TokenAnd
	TokenOr
	TokenNot
	TokenClass
	TokenTrue
	TokenFalse
	TokenNone

	// Operators and punctuation
	TokenAssign   // =
	TokenEq       // ==
	TokenNotEq    // !=
	TokenLt       // <
	TokenLtE      // <=
	TokenGt       // >
	TokenGtE      // >=
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenPercent  // %
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenComma    // ,
	TokenColon    // :
	TokenDot      // .
)

// String returns the token type name for error messages.
func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenIllegal:
		return "ILLEGAL"
	case TokenNewline:
		return "NEWLINE"
	case TokenIndent:
		return "INDENT"
	case TokenDedent:
		return "DEDENT"
	case TokenIdent:
		return "IDENT"
	case TokenInt:
		return "INT"
	case TokenFloat:
		return "FLOAT"
	case TokenString:
		return "STRING"
	case TokenFString:
		return "FSTRING"
	case TokenIf:
		return "if"
	case TokenElif:
		return "elif"
	case TokenElse:
		return "else"
	case TokenFor:
		return "for"
	case TokenWhile:
		return "while"
	case TokenIn:
		return "in"
	case TokenAnd:
		return "and"
	case TokenOr:
		return "or"
	case TokenNot:
		return "not"
	case TokenClass:
		return "class"
	case TokenTrue:
		return "True"
	case TokenFalse:
		return "False"
	case TokenNone:
		return "None"
	case TokenAssign:
		return "="
	case TokenEq:
		return "=="
	case TokenNotEq:
		return "!="
	case TokenLt:
		return "<"
	case TokenLtE:
		return "<="
	case TokenGt:
		return ">"
	case TokenGtE:
		return ">="
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenStar:
		return "*"
	case TokenSlash:
		return "/"
	case TokenPercent:
		return "%"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenLBracket:
		return "["
	case TokenRBracket:
		return "]"
	case TokenLBrace:
		return "{"
	case TokenRBrace:
		return "}"
	case TokenComma:
		return ","
	case TokenColon:
		return ":"
	case TokenDot:
		return "."
	default:
		return "UNKNOWN"
	}
}

// Token is a single lexical token with its source position (1-based).
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// keywords maps keyword spellings to token types.
var keywords = map[string]TokenType{
	"if":    TokenIf,
	"elif":  TokenElif,
	"else":  TokenElse,
	"for":   TokenFor,
	"while": TokenWhile,
	"in":    TokenIn,
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"class": TokenClass,
	"True":  TokenTrue,
	"False": TokenFalse,
	"None":  TokenNone,
}

// LookupIdent resolves an identifier to a keyword token type if it is one.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
