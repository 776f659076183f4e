// Package graph builds the step dependency graph from a parsed
// configuration document and produces a deterministic topological
// order (spec.md §4.2's "config-to-graph expansion", C3). Construction
// proceeds in four phases — instantiate, wire dependencies, sort,
// finalize — using dag.AcyclicGraph for cycle detection.
package graph

import (
	"github.com/pyr-sh/dag"

	"github.com/towpath-run/towpath/internal/config"
	"github.com/towpath-run/towpath/internal/natsort"
	"github.com/towpath-run/towpath/internal/perr"
	"github.com/towpath-run/towpath/internal/step"
)

// Graph is the built, validated step dependency graph: every step
// knows its module, its options, and the names of the steps it
// consumes from.
type Graph struct {
	Steps []*step.Step
	byName map[string]*step.Step
	children map[string][]string // name -> names that depend on it
}

// ByName looks up a step by name.
func (g *Graph) ByName(name string) (*step.Step, bool) {
	s, ok := g.byName[name]
	return s, ok
}

// Dependents returns the steps that declared name in their _depends.
func (g *Graph) Dependents(name string) []string { return g.children[name] }

// Build instantiates every step in doc, wires its _depends edges, and
// returns them in a deterministic topological order. It fails with a
// *perr.ConfigError on an unknown dependency, a step without a
// _depends key, or a cycle.
func Build(doc *config.Document) (*Graph, error) {
	byName := make(map[string]*step.Step, len(doc.Steps))
	dependsRaw := make(map[string]interface{}, len(doc.Steps))

	for _, spec := range doc.Steps {
		if _, exists := byName[spec.Name]; exists {
			return nil, perr.NewConfigError("duplicate step name: %s", spec.Name)
		}
		byName[spec.Name] = &step.Step{
			Name:    spec.Name,
			Module:  spec.Module,
			Options: spec.Options,
		}
		dependsRaw[spec.Name] = spec.DependsRaw
	}

	g := &dag.AcyclicGraph{}
	for name := range byName {
		g.Add(name)
	}

	children := make(map[string][]string, len(byName))
	for _, s := range byName {
		raw := dependsRaw[s.Name]
		declared := config.HasDepends(raw)
		deps, err := config.DependsList(raw)
		if err != nil {
			return nil, perr.NewConfigError("step %s: %v", s.Name, err)
		}

		switch {
		case len(deps) == 0 && !declared:
			return nil, perr.NewConfigError(
				"step %s must declare _depends (null for a source step, or a list of parent steps)", s.Name)
		case len(deps) == 0 && declared:
			// _depends: null -- a source step with no parents.
		default:
			for _, dep := range deps {
				if _, ok := byName[dep]; !ok {
					return nil, perr.NewConfigError("step %s depends on unknown step %s", s.Name, dep)
				}
				if dep == s.Name {
					return nil, perr.NewConfigError("step %s cannot depend on itself", s.Name)
				}
				s.DependsOn = append(s.DependsOn, dep)
				children[dep] = append(children[dep], s.Name)
				g.Connect(dag.BasicEdge(dep, s.Name))
			}
		}
	}

	if err := g.Validate(); err != nil {
		return nil, perr.NewConfigError("dependency cycle: %v", err)
	}

	order, err := topoSort(byName, children)
	if err != nil {
		return nil, err
	}
	resolveDependencyPaths(order, byName)

	return &Graph{Steps: order, byName: byName, children: children}, nil
}

// resolveDependencyPaths fills in each step's OptionsHash and
// DependencyPath, in topological order so a step's primary parent
// always has its own DependencyPath already set. A step's segment is
// <module>-<options hash>; the path is its primary parent's path with
// that segment appended, or just the segment for a source step. The
// primary parent is the natural-order-least name among DependsOn: the
// output-directory lineage abstract_step.py derives this from is a
// single-parent chain even when a step's DependsOn lists several
// steps to merge tagged inputs from.
func resolveDependencyPaths(order []*step.Step, byName map[string]*step.Step) {
	for _, s := range order {
		s.OptionsHash = step.OptionsHash(s.Options)
		segment := s.Module + "-" + s.OptionsHash

		if len(s.DependsOn) == 0 {
			s.DependencyPath = []string{segment}
			continue
		}
		parents := append([]string(nil), s.DependsOn...)
		natsort.Strings(parents)
		parent := byName[parents[0]]

		path := make([]string, 0, len(parent.DependencyPath)+1)
		path = append(path, parent.DependencyPath...)
		path = append(path, segment)
		s.DependencyPath = path
	}
}

// topoSort repeatedly extracts the natural-order-least step whose
// dependencies have all been placed, so graph order is stable across
// runs (a natsort tie-break instead of arbitrary map iteration order).
func topoSort(byName map[string]*step.Step, children map[string][]string) ([]*step.Step, error) {
	remaining := make(map[string]int, len(byName)) // unresolved dependency count
	for name, s := range byName {
		remaining[name] = len(s.DependsOn)
	}

	var order []*step.Step
	for len(order) < len(byName) {
		var ready []string
		for name, count := range remaining {
			if count == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, perr.NewConfigError("dependency cycle among steps")
		}
		natsort.Strings(ready)
		next := ready[0]
		order = append(order, byName[next])
		delete(remaining, next)
		for _, child := range children[next] {
			remaining[child]--
		}
	}
	return order, nil
}
