package predicate

import (
	"strings"

	"github.com/querypulse/querypulse/pkg/types"
)

// Hit is one recognized column-operator occurrence, before table attribution.
// Qualifier is the dotted prefix of a qualified reference ("o" in o.region),
// empty for bare columns.
type Hit struct {
	Qualifier string
	Column    string
	Operator  types.OperatorKind
}

// Strategy extracts filter predicates from raw SQL text. The lexical
// implementation below is the default; a grammar-based parser can be
// substituted without changing the aggregator/ranker contract.
type Strategy interface {
	ExtractPredicates(sql string) []Hit
}

// Lexical is the default Strategy: WHERE-clause scanning over the token
// stream. It never fails; unrecognized shapes simply yield no hit.
type Lexical struct{}

// NewLexical returns the lexical extraction strategy.
func NewLexical() *Lexical {
	return &Lexical{}
}

// clauseTerminators end a WHERE clause when seen at the clause's own depth.
var clauseTerminators = map[TokenType]bool{
	TokenGroup:     true,
	TokenOrder:     true,
	TokenHaving:    true,
	TokenLimit:     true,
	TokenUnion:     true,
	TokenSemicolon: true,
	TokenWhere:     true,
}

// ExtractPredicates scans every WHERE clause in the statement, including
// those inside subqueries, and matches each top-level conjunct against the
// recognized predicate shapes.
func (l *Lexical) ExtractPredicates(sql string) []Hit {
	toks, depths := tokenizeWithDepth(sql)

	var hits []Hit
	for i := 0; i < len(toks); i++ {
		if toks[i].Type != TokenWhere {
			continue
		}
		base := depths[i]
		end := i + 1
		for end < len(toks) && toks[end].Type != TokenEOF {
			if depths[end] < base {
				break
			}
			if depths[end] == base && clauseTerminators[toks[end].Type] {
				break
			}
			end++
		}
		// Do not skip past end: a WHERE nested inside this clause's span
		// (an IN subquery, say) gets its own clause scan. matchConjunct
		// only reads the leading shape of a conjunct, so the outer pass
		// never double-counts the inner clause's predicates.
		hits = append(hits, extractFromCondition(toks[i+1:end], depths[i+1:end], base)...)
	}
	return hits
}

// extractFromCondition splits a condition token span on AND/OR at the given
// depth and matches each conjunct. The AND inside a BETWEEN expression is
// not a connective and is skipped.
func extractFromCondition(toks []Token, depths []int, base int) []Hit {
	var hits []Hit
	start := 0
	betweenPending := false
	flush := func(end int) {
		if end > start {
			hits = append(hits, matchConjunct(toks[start:end], depths[start:end], base)...)
		}
		start = end + 1
	}
	for i := range toks {
		if depths[i] != base {
			continue
		}
		switch toks[i].Type {
		case TokenBetween:
			betweenPending = true
		case TokenAnd:
			if betweenPending {
				betweenPending = false
				continue
			}
			flush(i)
		case TokenOr:
			betweenPending = false
			flush(i)
		}
	}
	flush(len(toks))
	return hits
}

// matchConjunct matches one conjunct against the recognized shapes:
// col = v, col <>/!=/</>/<=/>= v, col IN (...), col BETWEEN a AND b,
// col LIKE p, and fn(col) op v (date-function wrappers unwrap to the
// inner column). A parenthesized group recurses instead.
func matchConjunct(toks []Token, depths []int, base int) []Hit {
	// Strip a leading NOT.
	if len(toks) > 0 && toks[0].Type == TokenNot {
		toks, depths = toks[1:], depths[1:]
	}
	if len(toks) == 0 {
		return nil
	}

	// A fully parenthesized group: recurse one level down.
	if toks[0].Type == TokenLParen && toks[len(toks)-1].Type == TokenRParen &&
		depths[0] == base && depths[len(toks)-1] == base && innerSpan(depths, base) {
		return extractFromCondition(toks[1:len(toks)-1], depths[1:len(toks)-1], base+1)
	}

	qualifier, column, next := readColumnRef(toks, depths, base)
	if column == "" || next >= len(toks) {
		return nil
	}

	op := types.OpUnknown
	rest := toks[next:]
	switch rest[0].Type {
	case TokenEq, TokenNe:
		op = types.OpEquality
	case TokenLt, TokenGt, TokenLe, TokenGe:
		op = types.OpRange
	case TokenBetween:
		op = types.OpRange
	case TokenLike:
		op = types.OpLike
	case TokenIn:
		op = types.OpIn
	case TokenNot:
		// col NOT IN (...), col NOT LIKE p, col NOT BETWEEN a AND b
		if len(rest) > 1 {
			switch rest[1].Type {
			case TokenIn:
				op = types.OpIn
			case TokenLike:
				op = types.OpLike
			case TokenBetween:
				op = types.OpRange
			}
		}
		rest = rest[1:]
	}
	if op == types.OpUnknown {
		return nil
	}
	// The operator needs an operand; a dangling "col =" is not a predicate.
	if len(rest) < 2 {
		return nil
	}
	return []Hit{{Qualifier: qualifier, Column: column, Operator: op}}
}

// innerSpan reports whether the parens at both ends of the slice match each
// other, i.e. the depth never returns to base strictly inside the span.
func innerSpan(depths []int, base int) bool {
	for _, d := range depths[1 : len(depths)-1] {
		if d <= base {
			return false
		}
	}
	return true
}

// readColumnRef reads a (possibly qualified) column reference, or unwraps a
// function applied to a column, returning the qualifier, column name, and
// the index of the first token after the reference. Empty column means no
// recognizable reference.
func readColumnRef(toks []Token, depths []int, base int) (qualifier, column string, next int) {
	if len(toks) == 0 || toks[0].Type != TokenIdent {
		return "", "", 0
	}

	// Function wrapper: fn(...). Extract the first column inside.
	if len(toks) > 1 && toks[1].Type == TokenLParen {
		end := 2
		for end < len(toks) && depths[end] > base {
			end++
		}
		if end >= len(toks) || toks[end].Type != TokenRParen {
			return "", "", 0
		}
		q, c := firstColumnIn(toks[2:end])
		return q, c, end + 1
	}

	// Plain chain: ident (. ident)*. Last part is the column, the rest the
	// qualifier.
	parts := []string{toks[0].Literal}
	i := 1
	for i+1 < len(toks) && toks[i].Type == TokenDot && toks[i+1].Type == TokenIdent {
		parts = append(parts, toks[i+1].Literal)
		i += 2
	}
	column = parts[len(parts)-1]
	qualifier = strings.Join(parts[:len(parts)-1], ".")
	return qualifier, column, i
}

// firstColumnIn finds the first plain column reference among a function's
// argument tokens, skipping nested function names and literals.
func firstColumnIn(toks []Token) (qualifier, column string) {
	for i := 0; i < len(toks); i++ {
		if toks[i].Type != TokenIdent {
			continue
		}
		// A name directly followed by ( is a nested function, not a column.
		if i+1 < len(toks) && toks[i+1].Type == TokenLParen {
			continue
		}
		parts := []string{toks[i].Literal}
		j := i + 1
		for j+1 < len(toks) && toks[j].Type == TokenDot && toks[j+1].Type == TokenIdent {
			parts = append(parts, toks[j+1].Literal)
			j += 2
		}
		return strings.Join(parts[:len(parts)-1], "."), parts[len(parts)-1]
	}
	return "", ""
}

// tokenizeWithDepth tokenizes the input and annotates every token with its
// parenthesis nesting depth. Parens themselves carry the depth of the level
// they open or close.
func tokenizeWithDepth(sql string) ([]Token, []int) {
	toks := Tokenize(sql)
	depths := make([]int, len(toks))
	depth := 0
	for i, t := range toks {
		switch t.Type {
		case TokenLParen:
			depths[i] = depth
			depth++
		case TokenRParen:
			if depth > 0 {
				depth--
			}
			depths[i] = depth
		default:
			depths[i] = depth
		}
	}
	return toks, depths
}
