package predicate

import (
	"strings"
	"time"

	qperrors "github.com/querypulse/querypulse/internal/errors"
	"github.com/querypulse/querypulse/pkg/types"
)

// Resolve attributes raw hits to the statement's referenced tables and
// validates the columns against the known schema. Hits that cannot be
// attributed unambiguously, or whose column does not exist on the resolved
// table, are dropped and counted rather than guessed at; false positives on
// partition candidates are worse than missed ones. Schema-mismatch drops
// additionally come back as errors for diagnostic logging.
func Resolve(hits []Hit, scan StatementScan, refs []types.TableRef, catalog types.ColumnCatalog, ts time.Time) (resolved []types.PredicateHit, dropped int, mismatches []error) {
	if len(refs) == 0 {
		return nil, len(hits), nil
	}

	// Dotted identifier (lowercased) to normalized ref.
	byName := make(map[string]types.TableRef, len(refs))
	for _, ref := range refs {
		byName[ref.Key()] = ref
		byName[strings.ToLower(ref.Table)] = ref
		byName[strings.ToLower(ref.String())] = ref
	}

	for _, h := range hits {
		ref, ok := attribute(h, scan, refs, byName, catalog)
		if !ok {
			dropped++
			continue
		}
		if catalog.Knows(ref) && !catalog.Has(ref, h.Column) {
			dropped++
			mismatches = append(mismatches, qperrors.NewSchemaMismatchError(ref.String(), h.Column))
			continue
		}
		resolved = append(resolved, types.PredicateHit{
			Ref:       ref,
			Column:    h.Column,
			Operator:  h.Operator,
			Timestamp: ts,
		})
	}
	return resolved, dropped, mismatches
}

// attribute decides which referenced table a hit belongs to. A single-table
// statement owns every hit. In multi-table statements a qualifier resolves
// through the alias map; an unqualified column resolves only when the
// schema catalog places it on exactly one of the referenced tables.
func attribute(h Hit, scan StatementScan, refs []types.TableRef, byName map[string]types.TableRef, catalog types.ColumnCatalog) (types.TableRef, bool) {
	if len(refs) == 1 {
		return refs[0], true
	}

	if h.Qualifier != "" {
		q := strings.ToLower(h.Qualifier)
		if target, ok := scan.Aliases[q]; ok && target != "" {
			if ref, ok := lookupRef(strings.ToLower(target), byName, refs); ok {
				return ref, true
			}
		}
		if ref, ok := lookupRef(q, byName, refs); ok {
			return ref, true
		}
		return types.TableRef{}, false
	}

	owners := catalog.TablesWith(refs, h.Column)
	if len(owners) == 1 {
		return owners[0], true
	}
	return types.TableRef{}, false
}

// lookupRef matches a dotted identifier from the SQL text against the
// statement's refs. The warehouse may qualify a ref more fully than the
// text does (project.dataset.table where the text wrote dataset.table), so
// an exact miss falls back to a dotted-suffix match. A suffix matching more
// than one ref matches nothing.
func lookupRef(name string, byName map[string]types.TableRef, refs []types.TableRef) (types.TableRef, bool) {
	if ref, ok := byName[name]; ok {
		return ref, true
	}
	var match types.TableRef
	found := false
	for _, ref := range refs {
		if strings.HasSuffix(strings.ToLower(ref.String()), "."+name) {
			if found {
				return types.TableRef{}, false
			}
			match, found = ref, true
		}
	}
	return match, found
}
