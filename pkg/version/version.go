// Package version implements semantic version parsing, total-order
// comparison and version-range constraints. Everything here is pure;
// it is safe to call from concurrent resolutions.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arthur-debert/ipak/pkg/errors"
)

// Version is a parsed semantic version: major.minor.patch with an
// optional dash-separated prerelease (e.g. "2.0.0-alpha.1").
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease []string
}

// Parse parses a semantic version string. It fails with a
// VERSION_FORMAT error on anything that is not
// `major.minor.patch[-prerelease]`.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, errors.New(errors.ErrVersionFormat, "empty version string").
			WithDetail("value", s)
	}

	core := raw
	var pre string
	if idx := strings.IndexByte(raw, '-'); idx >= 0 {
		core = raw[:idx]
		pre = raw[idx+1:]
		if pre == "" {
			return Version{}, errors.Newf(errors.ErrVersionFormat, "empty prerelease in %q", s).
				WithDetail("value", s)
		}
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, errors.Newf(errors.ErrVersionFormat, "version %q must have major.minor.patch", s).
			WithDetail("value", s)
	}

	var nums [3]uint64
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Version{}, errors.Newf(errors.ErrVersionFormat, "invalid numeric component %q in %q", part, s).
				WithDetail("value", s)
		}
		nums[i] = n
	}

	v := Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}
	if pre != "" {
		for _, id := range strings.Split(pre, ".") {
			if id == "" {
				return Version{}, errors.Newf(errors.ErrVersionFormat, "empty prerelease identifier in %q", s).
					WithDetail("value", s)
			}
			v.Prerelease = append(v.Prerelease, id)
		}
	}
	return v, nil
}

// MustParse is a test helper that panics on a malformed version.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version back to its canonical text form.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		s += "-" + strings.Join(v.Prerelease, ".")
	}
	return s
}

// IsPrerelease reports whether the version carries prerelease identifiers.
func (v Version) IsPrerelease() bool {
	return len(v.Prerelease) > 0
}

// Compare returns -1, 0 or 1 ordering a against b under semantic
// version precedence: major, minor, patch numerically; a release ranks
// above any prerelease of the same core; prerelease identifiers are
// compared left to right, numeric identifiers numerically, others
// lexically, numeric below alphanumeric, and a shorter identifier list
// is less when a common prefix matches.
func Compare(a, b Version) int {
	if c := compareUint(a.Major, b.Major); c != 0 {
		return c
	}
	if c := compareUint(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := compareUint(a.Patch, b.Patch); c != 0 {
		return c
	}

	switch {
	case len(a.Prerelease) == 0 && len(b.Prerelease) == 0:
		return 0
	case len(a.Prerelease) == 0:
		return 1
	case len(b.Prerelease) == 0:
		return -1
	}

	for i := 0; i < len(a.Prerelease) && i < len(b.Prerelease); i++ {
		if c := compareIdentifier(a.Prerelease[i], b.Prerelease[i]); c != 0 {
			return c
		}
	}
	return compareUint(uint64(len(a.Prerelease)), uint64(len(b.Prerelease)))
}

func compareUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareIdentifier(a, b string) int {
	na, aNum := parseNumericIdentifier(a)
	nb, bNum := parseNumericIdentifier(b)
	switch {
	case aNum && bNum:
		return compareUint(na, nb)
	case aNum:
		// Numeric identifiers always have lower precedence.
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func parseNumericIdentifier(s string) (uint64, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}
