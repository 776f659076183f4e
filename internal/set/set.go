// Package set provides the string-set type internal/cluster uses for
// running-job-id membership. It is a thin wrapper around golang-set so callers get
// value semantics (sorted, deterministic string output) without each
// package re-implementing set difference/union.
package set

import (
	"sort"

	mapset "github.com/deckarep/golang-set"
)

// Set is a set of strings (step names, task ids, output paths, ...).
type Set = mapset.Set

// New returns a new empty Set.
func New(items ...string) Set {
	s := mapset.NewThreadUnsafeSet()
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Strings returns the deterministically sorted contents of s.
func Strings(s Set) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, s.Cardinality())
	for _, v := range s.ToSlice() {
		out = append(out, v.(string))
	}
	sort.Strings(out)
	return out
}
