// Package config loads the pipeline configuration document (spec.md
// §4.2, C2): read a document, apply defaults, fail loud on missing keys.
package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/towpath-run/towpath/internal/perr"
)

const reservedStepName = "temp"

// DefaultPingTimeoutSeconds is used when the document omits
// ping_timeout_seconds (spec.md's "implementations choose a default").
const DefaultPingTimeoutSeconds = 20 * 60

// ToolConfig describes one entry under the document's `tools` key.
type ToolConfig struct {
	Path         interface{} `yaml:"path"`
	GetVersion   string      `yaml:"get_version"`
	ExitCode     *int        `yaml:"exit_code"`
	ModuleLoad   interface{} `yaml:"module_load"`
	ModuleUnload interface{} `yaml:"module_unload"`
	PreCommand   interface{} `yaml:"pre_command"`
	PostCommand  interface{} `yaml:"post_command"`
	// EnvPassthrough restricts the host environment variables visible
	// to this tool's get_version/module_load/pre_command/post_command
	// invocations to those matching one of these regexps. Empty means
	// inherit the full process environment.
	EnvPassthrough []string `yaml:"env_passthrough"`
}

// ExpectedExitCode returns the configured exit code, defaulting to 0.
func (t ToolConfig) ExpectedExitCode() int {
	if t.ExitCode == nil {
		return 0
	}
	return *t.ExitCode
}

// StepSpec is one entry under the document's `steps` key, after the
// `NAME` / `NAME (MODULE)` key form has been parsed apart (spec.md §4.2).
type StepSpec struct {
	Name       string
	Module     string
	Options    map[string]interface{}
	DependsRaw interface{}
}

// Document is the parsed top-level configuration (spec.md §4.2 table).
type Document struct {
	ID                 string                `yaml:"id"`
	DestinationPath    string                `yaml:"destination_path"`
	Steps              []StepSpec            `yaml:"-"`
	Tools              map[string]ToolConfig `yaml:"tools"`
	Notify             string                `yaml:"notify"`
	Cluster            string                `yaml:"cluster"`
	PingTimeoutSeconds int                   `yaml:"ping_timeout_seconds"`
	VolatileIgnore     []string              `yaml:"volatile_ignore"`
}

// rawDocument mirrors Document but keeps `steps` generic so step keys can
// be parsed by hand before being placed into Document.Steps.
type rawDocument struct {
	ID                 string                 `yaml:"id"`
	DestinationPath    string                 `yaml:"destination_path"`
	Steps              map[string]interface{} `yaml:"steps"`
	Tools              map[string]ToolConfig  `yaml:"tools"`
	Notify             string                 `yaml:"notify"`
	Cluster            string                 `yaml:"cluster"`
	PingTimeoutSeconds int                    `yaml:"ping_timeout_seconds"`
	VolatileIgnore     []string               `yaml:"volatile_ignore"`
}

var (
	reSimpleKey  = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	reComplexKey = regexp.MustCompile(`^([a-zA-Z0-9_]+)\s+\(([a-zA-Z0-9_]+)\)$`)
)

// Load reads and validates the configuration document at path.
func Load(path string) (*Document, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		expanded = path
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, perr.NewConfigError("parsing %s: %v", path, err)
	}

	if raw.ID == "" {
		raw.ID = path
	}
	if raw.DestinationPath == "" {
		return nil, perr.NewConfigError("missing key: destination_path")
	}
	dest, err := homedir.Expand(raw.DestinationPath)
	if err != nil {
		dest = raw.DestinationPath
	}
	if _, err := os.Stat(dest); err != nil {
		return nil, perr.NewConfigError("destination path does not exist: %s", raw.DestinationPath)
	}
	if raw.Steps == nil {
		return nil, perr.NewConfigError("missing key: steps")
	}
	if raw.PingTimeoutSeconds <= 0 {
		raw.PingTimeoutSeconds = DefaultPingTimeoutSeconds
	}

	doc := &Document{
		ID:                 raw.ID,
		DestinationPath:    dest,
		Tools:              raw.Tools,
		Notify:             raw.Notify,
		Cluster:            raw.Cluster,
		PingTimeoutSeconds: raw.PingTimeoutSeconds,
		VolatileIgnore:     raw.VolatileIgnore,
	}

	for key, body := range raw.Steps {
		spec, err := parseStepKey(key)
		if err != nil {
			return nil, err
		}
		options, dependsRaw, err := splitOptions(body)
		if err != nil {
			return nil, perr.NewConfigError("step %q: %v", key, err)
		}
		spec.Options = options
		spec.DependsRaw = dependsRaw
		doc.Steps = append(doc.Steps, spec)
	}

	return doc, nil
}

func parseStepKey(key string) (StepSpec, error) {
	if reSimpleKey.MatchString(key) {
		if key == reservedStepName {
			return StepSpec{}, perr.NewConfigError("a step name cannot be %q", reservedStepName)
		}
		return StepSpec{Name: key, Module: key}, nil
	}
	if m := reComplexKey.FindStringSubmatch(key); m != nil {
		if m[1] == reservedStepName {
			return StepSpec{}, perr.NewConfigError("a step name cannot be %q", reservedStepName)
		}
		return StepSpec{Name: m[1], Module: m[2]}, nil
	}
	return StepSpec{}, perr.NewConfigError("illegal step key: %q", key)
}

// splitOptions separates the reserved _depends key from the rest of a
// step's option mapping.
func splitOptions(body interface{}) (map[string]interface{}, interface{}, error) {
	if body == nil {
		return map[string]interface{}{}, nil, nil
	}
	m, ok := body.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("step options must be a mapping")
	}
	options := make(map[string]interface{}, len(m))
	var dependsRaw interface{}
	hasDepends := false
	for k, v := range m {
		if k == "_depends" {
			dependsRaw = v
			hasDepends = true
			continue
		}
		options[k] = v
	}
	if !hasDepends {
		return options, notPresent{}, nil
	}
	return options, dependsRaw, nil
}

// notPresent distinguishes "no _depends key at all" from "_depends: null"
// (the latter is a source step declaring zero parents explicitly; the
// former means the step never declared the key, which internal/graph
// rejects for every step).
type notPresent struct{}

// DependsRawNotPresent returns the sentinel DependsRaw value meaning a
// step's config omitted `_depends` entirely, for tests that build a
// config.StepSpec by hand without going through Load.
func DependsRawNotPresent() interface{} { return notPresent{} }

// HasDepends reports whether v came from an explicit `_depends` key
// (including `_depends: null`).
func HasDepends(v interface{}) bool {
	_, absent := v.(notPresent)
	return !absent
}

// DependsList normalizes a parsed `_depends` value (nil, a scalar string,
// or a list) into a slice of step names.
func DependsList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil, notPresent:
		return nil, nil
	case string:
		return []string{t}, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("_depends entries must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("_depends must be null, a string, or a list of strings")
	}
}
