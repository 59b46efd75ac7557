package types

import "time"

// OperatorKind classifies the shape of a recognized filter predicate.
type OperatorKind int

const (
	OpUnknown OperatorKind = iota
	OpEquality
	OpRange
	OpIn
	OpLike
)

// String returns the serialized operator-kind name.
func (k OperatorKind) String() string {
	switch k {
	case OpEquality:
		return "equality"
	case OpRange:
		return "range"
	case OpIn:
		return "in"
	case OpLike:
		return "like"
	default:
		return "unknown"
	}
}

// PredicateHit is one recognized column-operator occurrence within a query's
// WHERE clause. Hits are ephemeral: they exist only within one analysis pass.
type PredicateHit struct {
	Ref       TableRef
	Column    string
	Operator  OperatorKind
	Timestamp time.Time
}
