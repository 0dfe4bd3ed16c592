// Package resolver computes install plans over a dependency graph. It
// performs no I/O of its own: package metadata and installed state come
// in through collaborator interfaces, which keeps resolution a pure,
// deterministic graph algorithm.
package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arthur-debert/ipak/pkg/errors"
	"github.com/arthur-debert/ipak/pkg/logging"
	"github.com/arthur-debert/ipak/pkg/metadata"
	"github.com/arthur-debert/ipak/pkg/version"
)

// MetadataSource supplies candidate metadata for packages that are not
// installed yet. Lookup mechanics (filesystem, cache, whatever) belong
// to the caller.
type MetadataSource interface {
	Metadata(name string) (*metadata.PackageMetadata, error)
}

// InstalledSource reports what is currently installed in the target
// scope. The install state store satisfies this through a small
// adapter.
type InstalledSource interface {
	InstalledVersion(name string) (version.Version, bool, error)
}

// Step is one entry of the linear install plan.
type Step struct {
	Name     string
	Metadata *metadata.PackageMetadata
}

// Plan is the ordered, conflict-free install sequence: dependencies
// always precede their dependents.
type Plan struct {
	Target string
	Steps  []Step
}

// Names returns the plan's package names in install order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// Resolver builds install plans. It is stateless between calls and safe
// for concurrent use.
type Resolver struct {
	metadata  MetadataSource
	installed InstalledSource
}

// New creates a Resolver over the given collaborators.
func New(meta MetadataSource, installed InstalledSource) *Resolver {
	return &Resolver{metadata: meta, installed: installed}
}

// requirement is one constraint placed on a package by a requirer.
type requirement struct {
	requirer   string
	constraint version.Constraint
}

// traversal colors for cycle detection.
type color int

const (
	white color = iota // unvisited
	gray               // in progress
	black              // done
)

// Resolve computes the install plan for target. It fails with CYCLE on
// circular dependencies (naming the full cycle path), with CONFLICT
// when constraints on a shared dependency are provably unsatisfiable
// (naming every conflicting requirer, batched), and otherwise returns
// a deterministic topologically ordered plan.
func (r *Resolver) Resolve(target string) (*Plan, error) {
	logger := logging.GetLogger("resolver")

	colors := make(map[string]color)
	metas := make(map[string]*metadata.PackageMetadata)
	requirements := make(map[string][]requirement)
	var stack []string
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch colors[name] {
		case gray:
			return cycleError(append(stack[cycleStart(stack, name):], name))
		case black:
			return nil
		}
		colors[name] = gray
		stack = append(stack, name)

		meta, err := r.metadata.Metadata(name)
		if err != nil {
			return errors.Wrapf(err, errors.ErrNotFound, "no metadata available for %q", name)
		}
		metas[name] = meta

		deps := append([]metadata.Dependency(nil), meta.Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })

		for _, dep := range deps {
			installed, ok, err := r.installed.InstalledVersion(dep.Name)
			if err != nil {
				return err
			}
			if ok && dep.Constraint.Satisfies(installed) {
				// Edge satisfied by the current scope state.
				continue
			}
			if ok {
				logger.Debug().
					Str("package", dep.Name).
					Str("installed", installed.String()).
					Str("constraint", dep.Constraint.String()).
					Str("requirer", name).
					Msg("Installed version violates constraint, scheduling install")
			}
			requirements[dep.Name] = append(requirements[dep.Name], requirement{
				requirer:   name,
				constraint: dep.Constraint,
			})
			if err := visit(dep.Name); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = black
		order = append(order, name)
		return nil
	}

	if err := visit(target); err != nil {
		return nil, err
	}

	if err := detectConflicts(order, metas, requirements); err != nil {
		return nil, err
	}

	plan := &Plan{Target: target}
	for _, name := range order {
		plan.Steps = append(plan.Steps, Step{Name: name, Metadata: metas[name]})
	}

	logger.Debug().
		Str("target", target).
		Strs("plan", plan.Names()).
		Msg("Install plan resolved")
	return plan, nil
}

func cycleStart(stack []string, name string) int {
	for i, n := range stack {
		if n == name {
			return i
		}
	}
	return 0
}

func cycleError(path []string) error {
	return errors.Newf(errors.ErrCycle, "dependency cycle detected: %s", strings.Join(path, " -> ")).
		WithDetail("path", path)
}

// conflict is one batched finding about a single package.
type conflict struct {
	pkg       string
	requirers []string
	exprs     []string
	reason    string
}

// detectConflicts intersects every constraint placed on each planned
// package. A provably empty intersection, or a candidate version that
// violates a requirer's constraint, is a conflict; all findings are
// reported together in one error.
func detectConflicts(order []string, metas map[string]*metadata.PackageMetadata, requirements map[string][]requirement) error {
	logger := logging.GetLogger("resolver")
	var conflicts []conflict

	for _, name := range order {
		reqs := requirements[name]
		if len(reqs) == 0 {
			continue
		}

		var rng version.Range
		var requirers, exprs []string
		for _, req := range reqs {
			rng.AddConstraint(req.constraint)
			requirers = append(requirers, req.requirer)
			exprs = append(exprs, req.constraint.String())
		}

		if rng.Empty() {
			conflicts = append(conflicts, conflict{
				pkg:       name,
				requirers: requirers,
				exprs:     exprs,
				reason:    "constraints admit no version",
			})
			continue
		}
		if rng.PrereleaseAmbiguous() {
			// Not provably disjoint; flag it instead of guessing.
			logger.Warn().
				Str("package", name).
				Strs("requirers", requirers).
				Strs("constraints", exprs).
				Msg("Constraint intersection is ambiguous around prerelease bounds")
		}

		if meta, ok := metas[name]; ok {
			var violated []string
			for i, req := range reqs {
				if !req.constraint.Satisfies(meta.Version) {
					violated = append(violated, requirers[i])
				}
			}
			if len(violated) > 0 {
				conflicts = append(conflicts, conflict{
					pkg:       name,
					requirers: violated,
					exprs:     exprs,
					reason:    fmt.Sprintf("available version %s violates requirements", meta.Version),
				})
			}
		}
	}

	if len(conflicts) == 0 {
		return nil
	}

	var parts []string
	detail := make(map[string]interface{})
	for _, c := range conflicts {
		parts = append(parts, fmt.Sprintf("%s (%s; required by %s as %s)",
			c.pkg, c.reason, strings.Join(c.requirers, ", "), strings.Join(c.exprs, " & ")))
		detail[c.pkg] = map[string]interface{}{
			"requirers":   c.requirers,
			"constraints": c.exprs,
			"reason":      c.reason,
		}
	}
	return errors.Newf(errors.ErrConflict, "unsatisfiable dependency constraints: %s", strings.Join(parts, "; ")).
		WithDetail("conflicts", detail)
}
