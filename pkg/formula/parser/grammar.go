package parser

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var formulaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*|/\*([^*]|\*+[^*/])*\*+/`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Number", Pattern: `\d+(\.\d+)?|\.\d+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"|'(\\.|[^'\\])*'`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operator", Pattern: `\|\||&&|!=|<>|<=|>=|[-+*/&=<>(),]`},
})

var formulaParser = participle.MustBuild[formulaAST](
	participle.Lexer(formulaLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Precedence, loosest first: || && equality comparison additive multiplicative unary.

type formulaAST struct {
	Expr *orExpr `parser:"@@"`
}

type orExpr struct {
	Left *andExpr  `parser:"@@"`
	Rest []*orTail `parser:"@@*"`
}

type orTail struct {
	Pos   lexer.Position
	Op    string   `parser:"@'||'"`
	Right *andExpr `parser:"@@"`
}

type andExpr struct {
	Left *eqExpr    `parser:"@@"`
	Rest []*andTail `parser:"@@*"`
}

type andTail struct {
	Pos   lexer.Position
	Op    string  `parser:"@'&&'"`
	Right *eqExpr `parser:"@@"`
}

type eqExpr struct {
	Left *relExpr  `parser:"@@"`
	Rest []*eqTail `parser:"@@*"`
}

type eqTail struct {
	Pos   lexer.Position
	Op    string   `parser:"@('=' | '!=' | '<>')"`
	Right *relExpr `parser:"@@"`
}

type relExpr struct {
	Left *addExpr   `parser:"@@"`
	Rest []*relTail `parser:"@@*"`
}

type relTail struct {
	Pos   lexer.Position
	Op    string   `parser:"@('<=' | '>=' | '<' | '>')"`
	Right *addExpr `parser:"@@"`
}

type addExpr struct {
	Left *mulExpr   `parser:"@@"`
	Rest []*addTail `parser:"@@*"`
}

type addTail struct {
	Pos   lexer.Position
	Op    string   `parser:"@('+' | '-' | '&')"`
	Right *mulExpr `parser:"@@"`
}

type mulExpr struct {
	Left *unaryExpr `parser:"@@"`
	Rest []*mulTail `parser:"@@*"`
}

type mulTail struct {
	Pos   lexer.Position
	Op    string     `parser:"@('*' | '/')"`
	Right *unaryExpr `parser:"@@"`
}

type unaryExpr struct {
	Pos     lexer.Position
	Negs    []string `parser:"@'-'*"`
	Primary *primary `parser:"@@"`
}

type primary struct {
	Pos    lexer.Position
	Number *string   `parser:"  @Number"`
	String *string   `parser:"| @String"`
	Call   *callExpr `parser:"| @@"`
	Sub    *orExpr   `parser:"| '(' @@ ')'"`
}

type callExpr struct {
	Pos  lexer.Position
	Name string   `parser:"@Ident"`
	Args *argList `parser:"@@?"`
}

type argList struct {
	Open bool      `parser:"@'('"`
	Args []*orExpr `parser:"( @@ ( ',' @@ )* )? ')'"`
}
