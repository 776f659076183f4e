package tool

import (
	"crypto/sha256"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Env is a snapshot of environment variables, keyed by name. It backs
// module_load/unload's before/after diff and a tool's env_passthrough
// filter.
type Env map[string]string

// Capture reads the current process environment.
func Capture() Env {
	e := make(Env, len(os.Environ()))
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			e[kv[:i]] = kv[i+1:]
		}
	}
	return e
}

// Diff reports the keys added or changed in after relative to before,
// and the keys removed.
func Diff(before, after Env) (changed map[string]string, removed []string) {
	changed = map[string]string{}
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			changed[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			removed = append(removed, k)
		}
	}
	return changed, removed
}

// Apply mutates the process environment to match changed/removed, the
// way `module load` mutates a shell's environment in place.
func Apply(changed map[string]string, removed []string) {
	for k, v := range changed {
		os.Setenv(k, v)
	}
	for _, k := range removed {
		os.Unsetenv(k)
	}
}

// FilterMatching returns the subset of all whose keys match at least
// one of patterns (each a regexp), the way a tool's env_passthrough
// list names which host variables (PATH, LD_LIBRARY_PATH, SLURM_*) are
// allowed to reach its subprocess. Adapted from env.go's fromMatching,
// minus the cache-hashing exclude-prefix logic that doesn't apply here.
func FilterMatching(all Env, patterns []string) (Env, error) {
	out := Env{}
	var badPatterns []string
	for _, pattern := range patterns {
		rex, err := regexp.Compile(pattern)
		if err != nil {
			badPatterns = append(badPatterns, pattern)
			continue
		}
		for k, v := range all {
			if rex.MatchString(k) {
				out[k] = v
			}
		}
	}
	if len(badPatterns) > 0 {
		return nil, fmt.Errorf("invalid env_passthrough patterns: %s", strings.Join(badPatterns, ", "))
	}
	return out, nil
}

// HashedSummary renders a deterministically ordered "KEY=sha256(value)"
// list, suitable for recording which variables a tool saw in an
// annotation without leaking secret values into it. Adapted from
// env.go's ToSecretHashable.
func HashedSummary(e Env) []string {
	pairs := make([]string, 0, len(e))
	for k, v := range e {
		sum := sha256.Sum256([]byte(v))
		pairs = append(pairs, fmt.Sprintf("%s=%x", k, sum))
	}
	sort.Strings(pairs)
	return pairs
}
