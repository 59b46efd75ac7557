package predicate

import "strings"

// StatementScan is the lexical read of one statement: the base tables it
// references, the alias map for resolving qualified columns, and any
// select-star shape found in a select list.
type StatementScan struct {
	// Tables holds dotted base-table identifiers in first-seen order,
	// deduplicated case-insensitively. CTE names are excluded.
	Tables []string

	// Aliases maps a lowercased alias (or bare table name) to the dotted
	// identifier it stands for.
	Aliases map[string]string

	// HasStar is true when some select list contains * or alias.*.
	HasStar bool

	// StarQualifiers holds the lowercased qualifiers of qualified stars
	// (the "o" of o.*). Empty while HasStar is true means an unqualified
	// star, which applies to every referenced table.
	StarQualifiers []string
}

// Scan performs one pass over the statement's tokens. It is best-effort:
// malformed SQL produces a partial scan, never an error.
func Scan(sql string) StatementScan {
	toks, depths := tokenizeWithDepth(sql)
	scan := StatementScan{Aliases: make(map[string]string)}

	ctes := cteNames(toks, depths)
	seen := make(map[string]bool)

	addTable := func(name, alias string) {
		lower := strings.ToLower(name)
		if ctes[lower] {
			if alias != "" {
				scan.Aliases[strings.ToLower(alias)] = ""
			}
			return
		}
		if !seen[lower] {
			seen[lower] = true
			scan.Tables = append(scan.Tables, name)
		}
		// The bare identifier and its last path segment both resolve to the
		// table, so "orders.region" works whether orders is aliased or not.
		scan.Aliases[lower] = name
		if idx := strings.LastIndex(lower, "."); idx >= 0 {
			scan.Aliases[lower[idx+1:]] = name
		}
		if alias != "" {
			scan.Aliases[strings.ToLower(alias)] = name
		}
	}

	// Every FROM, JOIN, and SELECT token starts its own scan, so clauses
	// nested in derived tables and subqueries are picked up too.
	for i := 0; i < len(toks); i++ {
		switch toks[i].Type {
		case TokenFrom, TokenJoin:
			scanTableRefs(toks, depths, i+1, toks[i].Type == TokenFrom, addTable)
		case TokenSelect:
			scanStarItems(toks, depths, i, &scan)
		}
	}
	return scan
}

// scanTableRefs reads the table reference list after FROM (comma-separated)
// or the single reference after JOIN. Returns the index of the last token
// consumed. Subqueries are skipped here; their own FROM clauses are picked
// up by the outer loop.
func scanTableRefs(toks []Token, depths []int, i int, allowList bool, add func(name, alias string)) int {
	for {
		if i >= len(toks) || toks[i].Type == TokenEOF {
			return i - 1
		}
		if toks[i].Type == TokenLParen {
			// Derived table: skip to its closing paren and consume the
			// alias so it is not mistaken for a base table.
			open := depths[i]
			i++
			for i < len(toks) && !(toks[i].Type == TokenRParen && depths[i] == open) {
				i++
			}
			i++
			if i < len(toks) && toks[i].Type == TokenAs {
				i++
			}
			if i < len(toks) && toks[i].Type == TokenIdent && !joinWords[strings.ToLower(toks[i].Literal)] {
				i++
			}
		} else if toks[i].Type == TokenIdent {
			name, next := readDottedName(toks, i)
			i = next
			alias := ""
			if i < len(toks) && toks[i].Type == TokenAs {
				i++
			}
			if i < len(toks) && toks[i].Type == TokenIdent && !joinWords[strings.ToLower(toks[i].Literal)] {
				alias = toks[i].Literal
				i++
			}
			add(name, alias)
		} else {
			return i - 1
		}
		if !allowList || i >= len(toks) || toks[i].Type != TokenComma {
			return i - 1
		}
		i++
	}
}

// scanStarItems inspects the select list starting at the SELECT token for
// star items. A star counts only when it is a whole select item: preceded
// by SELECT, a comma, or a qualifying dot, and followed by a comma or FROM.
// That keeps multiplications like price * qty out.
func scanStarItems(toks []Token, depths []int, sel int, scan *StatementScan) {
	depth := depths[sel]
	for i := sel + 1; i < len(toks) && toks[i].Type != TokenEOF; i++ {
		if depths[i] < depth || (depths[i] == depth && toks[i].Type == TokenFrom) {
			return
		}
		if toks[i].Type != TokenStar || depths[i] != depth {
			continue
		}
		prevOK := toks[i-1].Type == TokenSelect || toks[i-1].Type == TokenComma
		qualified := i >= 2 && toks[i-1].Type == TokenDot && toks[i-2].Type == TokenIdent
		nextOK := i+1 >= len(toks) ||
			toks[i+1].Type == TokenComma || toks[i+1].Type == TokenFrom || toks[i+1].Type == TokenEOF
		if !nextOK || (!prevOK && !qualified) {
			continue
		}
		scan.HasStar = true
		if qualified {
			scan.StarQualifiers = append(scan.StarQualifiers, strings.ToLower(toks[i-2].Literal))
		}
	}
}

// joinWords are identifiers that introduce a join or join condition and can
// therefore never be a table alias.
var joinWords = map[string]bool{
	"left": true, "right": true, "inner": true, "outer": true,
	"full": true, "cross": true, "natural": true, "using": true,
	"lateral": true,
}

// cteNames collects the names defined by a leading WITH clause so they are
// not mistaken for base tables.
func cteNames(toks []Token, depths []int) map[string]bool {
	names := make(map[string]bool)
	if len(toks) == 0 || toks[0].Type != TokenWith {
		return names
	}
	for i := 1; i < len(toks) && toks[i].Type != TokenEOF; i++ {
		if depths[i] != 0 {
			continue
		}
		if toks[i].Type == TokenSelect {
			return names
		}
		// name [ (columns) ] AS ( ... )
		if toks[i].Type == TokenIdent {
			j := i + 1
			if j < len(toks) && toks[j].Type == TokenLParen {
				open := depths[j]
				j++
				for j < len(toks) && !(toks[j].Type == TokenRParen && depths[j] == open) {
					j++
				}
				j++
			}
			if j < len(toks) && toks[j].Type == TokenAs {
				names[strings.ToLower(toks[i].Literal)] = true
			}
		}
	}
	return names
}

// readDottedName reads ident(.ident)* starting at i, returning the dotted
// name and the index after it.
func readDottedName(toks []Token, i int) (string, int) {
	parts := []string{toks[i].Literal}
	i++
	for i+1 < len(toks) && toks[i].Type == TokenDot && toks[i+1].Type == TokenIdent {
		parts = append(parts, toks[i+1].Literal)
		i += 2
	}
	return strings.Join(parts, "."), i
}
