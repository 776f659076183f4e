// Package step defines the static step description (spec.md §4.2/§4.3)
// and the Run declaration API a step module uses to describe its work
// for a given option set (spec.md §4.3/§4.4, C4): plain structs, no
// interfaces wider than needed, json/yaml tags only where a value
// crosses a process boundary.
package step

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// Direction is the side of a Connection: a step either consumes ("in")
// or produces ("out") a tagged stream of files.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Connection identifies one in/<tag> or out/<tag> port on a step, per
// spec.md's connection model.
type Connection struct {
	Direction Direction
	Tag       string
}

func (c Connection) String() string { return fmt.Sprintf("%s/%s", c.Direction, c.Tag) }

// Step is the static description of one `steps:` entry: its name, the
// adapter module backing it, its declared options, and the cores/tools
// it asks for. Dependency edges are resolved by internal/graph, which
// is why DependsOn holds raw names rather than Step pointers here.
type Step struct {
	Name          string
	Module        string
	Options       map[string]interface{}
	DependsOn     []string
	Cores         int
	RequiredTools []string

	// OptionsHash is OptionsHash(Options), filled in by internal/graph
	// once the step is built.
	OptionsHash string
	// DependencyPath is this step's <module>-<hash> segment appended to
	// its primary parent's own DependencyPath (empty parent for a
	// source step), mirroring the ancestor-chain output path a step
	// with a single lineage of parents derives. internal/graph computes
	// it once, in topological order, so a parent's path is always ready
	// before a child needs it. A step with more than one entry in
	// DependsOn still follows one primary parent here — the
	// natural-order-least name — since output-directory lineage is a
	// tree even where a run's inputs fan in across several tags.
	DependencyPath []string
}

// OptionsHash returns the 8 hex character tag spec.md §4.3 uses in an
// output directory name (`<module_name>-<hash>`), computed over the
// step's options so that two runs of the same module with different
// options never collide and the same options always reuse a directory.
func OptionsHash(options map[string]interface{}) string {
	canon, err := canonicalJSON(options)
	if err != nil {
		// Options were validated by the adapter's schema before this is
		// ever called; a marshal failure here means a non-JSON-able
		// value slipped through, which is a programmer error, not a
		// runtime condition to recover from.
		panic(fmt.Sprintf("step: options not JSON-serializable: %v", err))
	}
	sum := sha1.Sum(canon)
	return hex.EncodeToString(sum[:])[:8]
}

// canonicalJSON serializes v with map keys sorted, so the hash is
// stable across Go map iteration order.
func canonicalJSON(v interface{}) ([]byte, error) {
	ordered, err := order(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ordered)
}

func order(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]orderedPair, 0, len(keys))
		for _, k := range keys {
			child, err := order(t[k])
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, orderedPair{Key: k, Value: child})
		}
		return pairs, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			child, err := order(item)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	default:
		return t, nil
	}
}

// orderedPair marshals as a two-element JSON array so key order is
// preserved in the byte stream that feeds the hash.
type orderedPair struct {
	Key   string
	Value interface{}
}

func (p orderedPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{p.Key, p.Value})
}

var validate = validator.New()

// DecodeOptions decodes raw config options into a typed struct (tagged
// with `mapstructure`) and validates it (tagged with `validate`), the
// same two-pass approach Streamy's config loader uses for its step
// options. Adapters call this from their Declare method.
func DecodeOptions(raw map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decoding step options: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid step options: %w", err)
	}
	return nil
}
