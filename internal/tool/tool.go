// Package tool implements the tool availability check and the
// module_load/unload + pre/post_command hooks from spec.md §4.2's tools
// table and §9's lifecycle hooks (C9). See env.go for the environment
// capture/diff/filter helpers these hooks build on.
package tool

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/towpath-run/towpath/internal/config"
	"github.com/towpath-run/towpath/internal/perr"
)

// commandEnv builds the os/exec-style KEY=VALUE slice a hook subprocess
// should see: the full process environment, unless passthrough is
// non-empty, in which case only variables matching one of its regexps
// are let through (a tool's env_passthrough list).
func commandEnv(passthrough []string) ([]string, error) {
	if len(passthrough) == 0 {
		return nil, nil
	}
	filtered, err := FilterMatching(Capture(), passthrough)
	if err != nil {
		return nil, err
	}
	env := make([]string, 0, len(filtered))
	for k, v := range filtered {
		env = append(env, k+"="+v)
	}
	return env, nil
}

// Run runs a shell snippet and returns its exit code plus captured
// output; CheckVersion uses it for a tool's get_version command. A
// non-empty passthrough restricts the subprocess's environment to host
// variables matching one of its regexps.
func Run(shellCommand string, passthrough ...string) (exitCode int, stdout string, stderr string, err error) {
	cmd := exec.Command("sh", "-c", shellCommand)
	if env, envErr := commandEnv(passthrough); envErr != nil {
		return 0, "", "", envErr
	} else if env != nil {
		cmd.Env = env
	}
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	exitCode = cmd.ProcessState.ExitCode()
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if runErr != nil {
		err = runErr
	}
	return exitCode, outBuf.String(), errBuf.String(), err
}

// Load runs a module_load shell snippet and folds the environment
// mutation it performed back into the current process, returning the
// set of variables it changed (for logging, per spec.md's `--details`
// tool table). A non-empty passthrough restricts what the snippet
// itself sees of the host environment before it mutates it.
func Load(shellCommand string, passthrough ...string) (map[string]string, []string, error) {
	before := Capture()
	cmd := exec.Command("sh", "-c", shellCommand+" && env -0")
	if env, envErr := commandEnv(passthrough); envErr != nil {
		return nil, nil, envErr
	} else if env != nil {
		cmd.Env = env
	}
	out, err := cmd.Output()
	if err != nil {
		return nil, nil, perr.NewToolError("module_load failed: %v", err)
	}
	after := parseNullEnv(out)
	changed, removed := Diff(before, after)
	Apply(changed, removed)
	return changed, removed, nil
}

// Unload is the inverse of Load, for a module_unload snippet.
func Unload(shellCommand string, passthrough ...string) (map[string]string, []string, error) {
	return Load(shellCommand, passthrough...)
}

func parseNullEnv(data []byte) Env {
	e := Env{}
	for _, kv := range bytes.Split(data, []byte{0}) {
		if len(kv) == 0 {
			continue
		}
		if i := bytes.IndexByte(kv, '='); i >= 0 {
			e[string(kv[:i])] = string(kv[i+1:])
		}
	}
	return e
}

// CheckVersion runs cfg's get_version command, confirms its exit code
// matches cfg's expected exit_code (0 unless overridden), and returns
// the command's trimmed stdout as the tool's reported version string
// (spec.md's tool-check table; the version itself is recorded in a
// run's annotation rather than discarded).
func CheckVersion(name string, cfg config.ToolConfig) (string, error) {
	if cfg.GetVersion == "" {
		return "", nil
	}
	exitCode, stdout, stderr, err := Run(cfg.GetVersion, cfg.EnvPassthrough...)
	if err != nil {
		return "", perr.NewToolError("tool %s: %v", name, err)
	}
	if exitCode != cfg.ExpectedExitCode() {
		return "", perr.NewToolError("tool %s: get_version exited %d, expected %d: %s",
			name, exitCode, cfg.ExpectedExitCode(), strings.TrimSpace(stderr))
	}
	return strings.TrimSpace(stdout), nil
}

// CheckAll validates every configured tool, returning the first
// failure (tool checks are fatal at start-up, per spec.md §7), along
// with the reported version string of every tool that declared a
// get_version command. It runs only get_version: a tool's module_load,
// module_unload, pre_command and post_command are not run.
func CheckAll(tools map[string]config.ToolConfig) (map[string]string, error) {
	versions := make(map[string]string, len(tools))
	for name, cfg := range tools {
		version, err := CheckVersion(name, cfg)
		if err != nil {
			return nil, err
		}
		if version != "" {
			versions[name] = version
		}
	}
	return versions, nil
}
