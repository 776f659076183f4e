// Package cluster implements submission to an HPC scheduler (spec.md
// §4.8/§5, C7): each backend renders a submit script from a template,
// invokes the scheduler's submit command, parses the assigned job id
// back out of its output, and expresses "don't start until these jobs
// finish" as a scheduler-specific dependency flag. Template rendering
// uses text/template + Masterminds/sprig/v3 for variable substitution
// and helper functions in the submit-script templates.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/towpath-run/towpath/internal/perr"
)

// Kind names one of the three supported schedulers.
type Kind string

const (
	Slurm Kind = "slurm"
	SGE   Kind = "sge"
	UGE   Kind = "uge"
)

// SubmitSpec describes one task's submission request: the rendered
// command line, how many cores it needs, where to send completion
// email, and which job ids (if any) it must wait on.
type SubmitSpec struct {
	TaskID     string
	Command    string
	Cores      int
	Email      string
	DependsOn  []string // task ids on input to Submitter.Submit, which replaces them with job ids
	StdoutPath string
	StderrPath string
}

// Backend is one scheduler's submit/stat/dependency vocabulary.
type Backend interface {
	Kind() Kind
	// Render produces the submit command's argv and, if the scheduler
	// takes its script on stdin rather than as a --wrap argument, the
	// script to pipe in (empty otherwise). Substitutes the task's cores,
	// email, and command into the scheduler's submit-script template.
	Render(spec SubmitSpec) (argv []string, stdin string, err error)
	// ParseJobID extracts the scheduler-assigned job id from a
	// successful submit command's stdout.
	ParseJobID(submitOutput string) (string, error)
}

// Probe reports whether a scheduler's CLI is present on PATH, used by
// Autodetect.
type probe struct {
	kind Kind
	bin  string
	args []string
}

var probes = []probe{
	{Slurm, "sbatch", []string{"--version"}},
	{SGE, "qstat", []string{"-help"}},
	{UGE, "qstat", []string{"-help"}},
}

// Autodetect probes for a scheduler binary on PATH, in the order
// slurm, sge, uge.
func Autodetect(ctx context.Context) (Kind, error) {
	for _, p := range probes {
		if _, err := exec.LookPath(p.bin); err == nil {
			return p.kind, nil
		}
	}
	return "", perr.NewConfigError("no cluster scheduler found on PATH (looked for sbatch, qstat)")
}

// New returns the Backend for kind.
func New(kind Kind) (Backend, error) {
	switch kind {
	case Slurm:
		return slurmBackend{}, nil
	case SGE:
		return sgeBackend{kind: SGE, template: sgeTemplate}, nil
	case UGE:
		return sgeBackend{kind: UGE, template: sgeTemplate}, nil
	default:
		return nil, perr.NewConfigError("unknown cluster kind: %s", kind)
	}
}

func renderTemplate(text string, spec SubmitSpec) (string, error) {
	tmpl, err := template.New("submit").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing submit template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", fmt.Errorf("rendering submit template: %w", err)
	}
	return buf.String(), nil
}

// --- slurm ---

type slurmBackend struct{}

func (slurmBackend) Kind() Kind { return Slurm }

const slurmTemplate = `#!/bin/sh
#SBATCH --job-name={{ .TaskID | trunc 63 }}
#SBATCH --cpus-per-task={{ .Cores }}
#SBATCH --output={{ .StdoutPath }}
#SBATCH --error={{ .StderrPath }}
{{- if .Email }}
#SBATCH --mail-user={{ .Email }}
#SBATCH --mail-type=END,FAIL
{{- end }}
{{ .Command }}
`

func (slurmBackend) Render(spec SubmitSpec) ([]string, string, error) {
	script, err := renderTemplate(slurmTemplate, spec)
	if err != nil {
		return nil, "", err
	}
	argv := []string{"sbatch"}
	if len(spec.DependsOn) > 0 {
		// afterany, not afterok: a failed upstream job must still let this
		// one start so run-this surfaces the failure as a TaskError,
		// instead of leaving the job permanently DependencyNeverSatisfied.
		argv = append(argv, "--dependency=afterany:"+strings.Join(spec.DependsOn, ":"))
	}
	argv = append(argv, "--parsable", "--wrap", script)
	return argv, "", nil
}

var slurmJobIDRe = regexp.MustCompile(`^(\d+)`)

func (slurmBackend) ParseJobID(out string) (string, error) {
	m := slurmJobIDRe.FindStringSubmatch(strings.TrimSpace(out))
	if m == nil {
		return "", perr.NewToolError("could not parse slurm job id from: %q", out)
	}
	return m[1], nil
}

// --- sge / uge (share a vocabulary; uge is SGE's successor fork) ---

type sgeBackend struct {
	kind     Kind
	template string
}

func (b sgeBackend) Kind() Kind { return b.kind }

const sgeTemplate = `#!/bin/sh
#$ -N {{ .TaskID | trunc 63 }}
#$ -pe smp {{ .Cores }}
#$ -o {{ .StdoutPath }}
#$ -e {{ .StderrPath }}
{{- if .Email }}
#$ -M {{ .Email }}
#$ -m ea
{{- end }}
{{ .Command }}
`

func (b sgeBackend) Render(spec SubmitSpec) ([]string, string, error) {
	script, err := renderTemplate(b.template, spec)
	if err != nil {
		return nil, "", err
	}
	argv := []string{"qsub"}
	if len(spec.DependsOn) > 0 {
		argv = append(argv, "-hold_jid", strings.Join(spec.DependsOn, ","))
	}
	argv = append(argv, "-terse")
	return argv, script, nil
}

var sgeJobIDRe = regexp.MustCompile(`^(\d+)`)

func (sgeBackend) ParseJobID(out string) (string, error) {
	m := sgeJobIDRe.FindStringSubmatch(strings.TrimSpace(out))
	if m == nil {
		return "", perr.NewToolError("could not parse job id from: %q", out)
	}
	return m[1], nil
}
