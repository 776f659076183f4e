// Package scm captures the repository provenance of a run (spec.md
// §4.6/§4.7): the current revision, whether the working tree is dirty,
// and (if dirty and the user opted in) a summary of what's uncommitted,
// using github.com/go-git/go-git/v5 instead of shelling out to git. A
// run's annotation records the revision and the dirty flag; the
// uncommitted-paths summary is not written to it.
package scm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Status is a snapshot of the pipeline's source tree at invocation
// time.
type Status struct {
	Revision string
	Dirty    bool
	Changes  string // populated only when captured, see Describe's evenIfDirty
}

// Describe opens the git repository at dir (or an ancestor of it) and
// reports its revision and dirty state. When the tree is dirty and
// evenIfDirty is true, it also captures a short summary of the
// uncommitted paths, per spec.md's --even-if-dirty flag; otherwise a
// dirty tree is reported via Status.Dirty so the caller can refuse to
// proceed: the default behavior is to refuse to run against a dirty
// tree.
func Describe(dir string, evenIfDirty bool) (Status, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return Status{}, nil
		}
		return Status{}, fmt.Errorf("opening git repository: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return Status{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return Status{}, fmt.Errorf("opening worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return Status{}, fmt.Errorf("computing worktree status: %w", err)
	}

	status := Status{Revision: head.Hash().String(), Dirty: !st.IsClean()}
	if status.Dirty && evenIfDirty {
		status.Changes = summarizeStatus(st)
	}
	return status, nil
}

// summarizeStatus renders a `git status --short`-style summary, sorted
// for deterministic annotation output.
func summarizeStatus(st git.Status) string {
	paths := make([]string, 0, len(st))
	for path := range st {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		fileStatus := st[path]
		fmt.Fprintf(&b, "%c%c %s\n", fileStatus.Staging, fileStatus.Worktree, path)
	}
	return b.String()
}
