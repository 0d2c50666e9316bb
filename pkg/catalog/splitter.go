package catalog

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// sqlLexer tokenizes just enough SQL to find statement boundaries safely:
// comments, string literals, and quoted identifiers are single tokens, so a
// semicolon inside any of them never terminates a statement.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "BlockComment", Pattern: `/\*[^*]*\*+(?:[^/*][^*]*\*+)*/`},
	{Name: "LineComment", Pattern: `--[^\n]*`},
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "QuotedIdent", Pattern: `"(?:""|[^"])*"`},
	{Name: "BacktickIdent", Pattern: "`(?:``|[^`])*`"},
	{Name: "Terminator", Pattern: `;`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Chunk", Pattern: "[^;'\"`\\s]+"},
})

// SplitStatements splits a migration body into individual SQL statements on
// semicolons outside comments, string literals, and quoted identifiers.
// Statements are returned trimmed and without their terminator; fragments
// containing only comments or whitespace are dropped. A missing terminator
// on the final statement is tolerated.
func SplitStatements(sql string) ([]string, error) {
	lx, err := sqlLexer.Lex("", strings.NewReader(sql))
	if err != nil {
		return nil, errors.Wrap(err, "failed to lex sql")
	}

	symbols := sqlLexer.Symbols()
	terminator := symbols["Terminator"]
	lineComment := symbols["LineComment"]
	blockComment := symbols["BlockComment"]
	whitespace := symbols["Whitespace"]

	var (
		stmts      []string
		buf        strings.Builder
		hasContent bool
	)

	flush := func() {
		if hasContent {
			stmts = append(stmts, strings.TrimSpace(buf.String()))
		}
		buf.Reset()
		hasContent = false
	}

	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, errors.Wrap(err, "failed to lex sql")
		}
		if tok.EOF() {
			break
		}

		if tok.Type == terminator {
			flush()
			continue
		}

		buf.WriteString(tok.Value)
		if tok.Type != lineComment && tok.Type != blockComment && tok.Type != whitespace {
			hasContent = true
		}
	}
	flush()

	return stmts, nil
}
