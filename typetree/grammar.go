package typetree

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// typeLexer tokenizes nested type descriptors such as
// "struct<a:array<int>,b:decimal(10,2)>". Parenthesized payloads are kept as
// a single opaque token so "decimal(10,2)" never splits on its comma.
var typeLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "QuotedIdent", Pattern: "`[^`]+`"},
	{Name: "Params", Pattern: `\([^()]*\)`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.$]*`},
	{Name: "Number", Pattern: `[0-9][A-Za-z0-9_.$]*`}, // struct fields may start with a digit
	{Name: "Punct", Pattern: `[<>,:]`},
})

var typeParser = participle.MustBuild[typeExpr](
	participle.Lexer(typeLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Ident"), // ARRAY<INT> and array<int> are the same type
	participle.UseLookahead(2),
)

// typeExpr is one node of a parsed descriptor.
type typeExpr struct {
	Tokens []lexer.Token

	Array  *arrayExpr  `  @@`
	Map    *mapExpr    `| @@`
	Struct *structExpr `| @@`
	Union  *unionExpr  `| @@`
	Scalar *scalarExpr `| @@`
}

type arrayExpr struct {
	Elem *typeExpr `"array" "<" @@ ">"`
}

type mapExpr struct {
	Key   *typeExpr `"map" "<" @@ ","`
	Value *typeExpr `@@ ">"`
}

type structExpr struct {
	Fields []*fieldExpr `"struct" "<" @@ ( "," @@ )* ">"`
}

type fieldExpr struct {
	Name string    `@( Ident | Number | QuotedIdent )`
	Type *typeExpr `":" @@`
}

// unionExpr is accepted so that tagged unions degrade to scalars instead of
// failing the parse.
type unionExpr struct {
	Members []*typeExpr `"uniontype" "<" @@ ( "," @@ )* ">"`
}

type scalarExpr struct {
	Words  []string `@Ident+`
	Params string   `@Params?`
}
