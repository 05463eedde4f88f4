// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package registry

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

// filterLexer defines the token types for the module filter DSL.
// It handles multi-character operators (==, !=, &&) that the default
// text/scanner lexer would split into individual characters.
var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "OpEq", Pattern: `==`},
	{Name: "OpNe", Pattern: `!=`},
	{Name: "OpAnd", Pattern: `&&`},
	{Name: "Ident", Pattern: `[a-zA-Z_]\w*`},
	{Name: "Punct", Pattern: `[\[\],]`},
	{Name: "whitespace", Pattern: `\s+`},
})

// FilterExpr is a conjunction of clauses over module metadata.
//
// Grammar: clause ( "&&" clause )*
type FilterExpr struct {
	Pos     lexer.Position `parser:""`
	Clauses []*Clause      `parser:"@@ ('&&' @@)*"`
}

// Clause is a single comparison: field == "lit", field != "lit", or
// field in ["a", "b"].
type Clause struct {
	Pos        lexer.Position `parser:""`
	Field      string         `parser:"@Ident"`
	Comparator string         `parser:"@('==' | '!=' | 'in')"`
	Literal    *string        `parser:"( @String"`
	List       []string       `parser:"| '[' @String (',' @String)* ']' )"`
}

var filterParser = participle.MustBuild[FilterExpr](
	participle.Lexer(filterLexer),
	participle.Unquote("String"),
)

// ParseFilter parses a filter expression.
func ParseFilter(expr string) (*FilterExpr, error) {
	ast, err := filterParser.ParseString("", expr)
	if err != nil {
		return nil, oops.In("registry").With("expr", expr).
			Wrapf(err, "invalid filter expression")
	}
	return ast, nil
}

// Query returns the modules matching a filter DSL expression, e.g.
// `category == "widgets" && tags in ["chart", "gauge"]`.
func (r *Registry) Query(expr string) ([]*LoadedModule, error) {
	ast, err := ParseFilter(expr)
	if err != nil {
		return nil, err
	}

	var out []*LoadedModule
	for _, m := range r.Modules() {
		if ast.matches(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *FilterExpr) matches(m *LoadedModule) bool {
	for _, c := range f.Clauses {
		if !c.matches(m) {
			return false
		}
	}
	return true
}

func (c *Clause) matches(m *LoadedModule) bool {
	switch c.Comparator {
	case "==":
		return c.Literal != nil && moduleField(m, c.Field) == *c.Literal
	case "!=":
		return c.Literal != nil && moduleField(m, c.Field) != *c.Literal
	case "in":
		if c.Field == "tags" {
			return tagsOverlap(m.Tags, c.List)
		}
		v := moduleField(m, c.Field)
		for _, want := range c.List {
			if v == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// moduleField returns the string value of a filterable metadata field.
// Unknown fields read as empty, so clauses over them never match.
func moduleField(m *LoadedModule, field string) string {
	switch field {
	case "id":
		return m.ID
	case "name":
		return m.Name
	case "displayName":
		return m.DisplayName
	case "category":
		return m.Category
	case "icon":
		return m.Icon
	case "strategy":
		return m.Strategy
	default:
		return ""
	}
}
