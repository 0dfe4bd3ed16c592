package version

import (
	"strings"

	"github.com/arthur-debert/ipak/pkg/errors"
)

// Operator is a single comparison operator inside a constraint clause.
type Operator string

// Supported clause operators.
const (
	OpEqual          Operator = "="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
)

// Clause is one (operator, version) pair of a constraint.
type Clause struct {
	Op      Operator
	Version Version
}

// Constraint is an ordered AND of clauses. The zero value (no clauses)
// matches every version, which is also what the textual wildcard "*"
// parses to.
type Constraint struct {
	clauses []Clause
	raw     string
}

// ParseConstraint parses a constraint expression: comma-separated
// clauses, each an operator followed by a version. A bare version means
// exact equality and "*" matches everything. The legacy ">>" and "<<"
// spellings are accepted as strict comparisons.
func ParseConstraint(expr string) (Constraint, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" || trimmed == "*" {
		return Constraint{raw: "*"}, nil
	}

	c := Constraint{raw: trimmed}
	for _, part := range strings.Split(trimmed, ",") {
		clause, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return Constraint{}, err
		}
		c.clauses = append(c.clauses, clause)
	}
	return c, nil
}

// MustParseConstraint is a test helper that panics on a malformed expression.
func MustParseConstraint(expr string) Constraint {
	c, err := ParseConstraint(expr)
	if err != nil {
		panic(err)
	}
	return c
}

func parseClause(token string) (Clause, error) {
	if token == "" {
		return Clause{}, errors.New(errors.ErrConstraintSyntax, "empty constraint clause")
	}

	fields := strings.Fields(token)
	var opText, verText string
	switch len(fields) {
	case 1:
		// Either "1.2.3" (bare exact) or ">=1.2.3" without a space.
		opText, verText = splitOperator(fields[0])
	case 2:
		opText, verText = fields[0], fields[1]
	default:
		return Clause{}, errors.Newf(errors.ErrConstraintSyntax, "invalid constraint clause %q", token).
			WithDetail("clause", token)
	}

	op, ok := normalizeOperator(opText)
	if !ok {
		return Clause{}, errors.Newf(errors.ErrConstraintSyntax, "invalid comparator %q in clause %q", opText, token).
			WithDetail("clause", token)
	}

	v, err := Parse(verText)
	if err != nil {
		return Clause{}, errors.Wrapf(err, errors.ErrConstraintSyntax, "invalid version in clause %q", token).
			WithDetail("clause", token)
	}
	return Clause{Op: op, Version: v}, nil
}

// splitOperator peels a leading operator off a token like ">=1.2.3".
func splitOperator(token string) (string, string) {
	i := 0
	for i < len(token) && strings.ContainsRune("=!<>", rune(token[i])) {
		i++
	}
	if i == 0 {
		return "=", token
	}
	return token[:i], token[i:]
}

func normalizeOperator(s string) (Operator, bool) {
	switch s {
	case "=", "==":
		return OpEqual, true
	case "!=":
		return OpNotEqual, true
	case ">", ">>":
		return OpGreater, true
	case ">=":
		return OpGreaterOrEqual, true
	case "<", "<<":
		return OpLess, true
	case "<=":
		return OpLessOrEqual, true
	default:
		return "", false
	}
}

// Clauses returns the parsed clauses in declaration order.
func (c Constraint) Clauses() []Clause {
	return c.clauses
}

// IsWildcard reports whether the constraint matches every version.
func (c Constraint) IsWildcard() bool {
	return len(c.clauses) == 0
}

// String renders the constraint in its canonical text form.
func (c Constraint) String() string {
	if len(c.clauses) == 0 {
		return "*"
	}
	parts := make([]string, len(c.clauses))
	for i, cl := range c.clauses {
		parts[i] = string(cl.Op) + " " + cl.Version.String()
	}
	return strings.Join(parts, ", ")
}

// Satisfies reports whether v meets every clause of the constraint.
func (c Constraint) Satisfies(v Version) bool {
	for _, cl := range c.clauses {
		if !cl.holds(v) {
			return false
		}
	}
	return true
}

func (cl Clause) holds(v Version) bool {
	cmp := Compare(v, cl.Version)
	switch cl.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreater:
		return cmp > 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	default:
		return false
	}
}
