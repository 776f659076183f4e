package cluster

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/towpath-run/towpath/internal/set"
)

// RunningJobIDs queries the scheduler for jobs currently known to it
// (queued or running), used by fix-problems to decide whether a
// queued ping's job is still alive (spec.md §4.9's check_ping_files).
func RunningJobIDs(ctx context.Context, kind Kind) (set.Set, error) {
	var cmd *exec.Cmd
	switch kind {
	case Slurm:
		cmd = exec.CommandContext(ctx, "squeue", "-h", "-o", "%i")
	case SGE, UGE:
		cmd = exec.CommandContext(ctx, "qstat", "-f")
	default:
		return set.New(), nil
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// A scheduler that can't be reached right now is treated as "no
		// information", not as "nothing is running" -- fix-problems
		// callers should not delete pings on a query failure.
		return nil, err
	}
	ids := set.New()
	for _, line := range strings.Split(out.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ids.Add(strings.Fields(line)[0])
	}
	return ids, nil
}
