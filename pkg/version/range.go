package version

// Range accumulates constraint clauses into a single interval with
// optional exact pins and point exclusions. It exists so the resolver
// can prove that a set of constraints from different requirers admits
// no version at all.
type Range struct {
	lower    *bound
	upper    *bound
	exact    *Version
	excluded []Version
	empty    bool
}

type bound struct {
	v         Version
	inclusive bool
}

// Add tightens the range with one clause. Once the range is provably
// empty it stays empty.
func (r *Range) Add(cl Clause) {
	if r.empty {
		return
	}
	switch cl.Op {
	case OpEqual:
		if r.exact != nil && Compare(*r.exact, cl.Version) != 0 {
			r.empty = true
			return
		}
		v := cl.Version
		r.exact = &v
	case OpNotEqual:
		r.excluded = append(r.excluded, cl.Version)
	case OpGreater:
		r.tightenLower(bound{v: cl.Version, inclusive: false})
	case OpGreaterOrEqual:
		r.tightenLower(bound{v: cl.Version, inclusive: true})
	case OpLess:
		r.tightenUpper(bound{v: cl.Version, inclusive: false})
	case OpLessOrEqual:
		r.tightenUpper(bound{v: cl.Version, inclusive: true})
	}
	r.check()
}

// AddConstraint folds every clause of c into the range.
func (r *Range) AddConstraint(c Constraint) {
	for _, cl := range c.Clauses() {
		r.Add(cl)
	}
}

func (r *Range) tightenLower(b bound) {
	if r.lower == nil || Compare(b.v, r.lower.v) > 0 ||
		(Compare(b.v, r.lower.v) == 0 && !b.inclusive) {
		r.lower = &b
	}
}

func (r *Range) tightenUpper(b bound) {
	if r.upper == nil || Compare(b.v, r.upper.v) < 0 ||
		(Compare(b.v, r.upper.v) == 0 && !b.inclusive) {
		r.upper = &b
	}
}

func (r *Range) check() {
	if r.exact != nil {
		if r.lower != nil && !boundAdmits(*r.lower, *r.exact, true) {
			r.empty = true
		}
		if r.upper != nil && !boundAdmits(*r.upper, *r.exact, false) {
			r.empty = true
		}
		for _, ex := range r.excluded {
			if Compare(ex, *r.exact) == 0 {
				r.empty = true
			}
		}
		return
	}
	if r.lower != nil && r.upper != nil {
		c := Compare(r.lower.v, r.upper.v)
		if c > 0 || (c == 0 && !(r.lower.inclusive && r.upper.inclusive)) {
			r.empty = true
		}
	}
}

func boundAdmits(b bound, v Version, isLower bool) bool {
	c := Compare(v, b.v)
	if isLower {
		if b.inclusive {
			return c >= 0
		}
		return c > 0
	}
	if b.inclusive {
		return c <= 0
	}
	return c < 0
}

// Empty reports whether the accumulated clauses are provably
// unsatisfiable under the total order. Point exclusions against an
// open interval never prove emptiness.
func (r *Range) Empty() bool {
	return r.empty
}

// PrereleaseAmbiguous reports whether the range is a non-empty open
// interval whose bounds share the same major.minor.patch core with a
// prerelease on at least one side. Such an interval may contain no
// published release even though it is not provably empty; callers are
// expected to flag it instead of guessing.
func (r *Range) PrereleaseAmbiguous() bool {
	if r.empty || r.exact != nil || r.lower == nil || r.upper == nil {
		return false
	}
	l, u := r.lower.v, r.upper.v
	if l.Major != u.Major || l.Minor != u.Minor || l.Patch != u.Patch {
		return false
	}
	return l.IsPrerelease() || u.IsPrerelease()
}
