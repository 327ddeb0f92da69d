package standardise

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Spec is the declarative on-disk shape of the standardisation pipeline.
// Step order is fixed by compile(), not by YAML key order.
type Spec struct {
	ToSnakeCase bool                         `koanf:"to_snake_case"`
	Rename      map[string]string            `koanf:"rename"`
	Cast        map[string]string            `koanf:"cast"`
	ValueMap    map[string]map[string]string `koanf:"value_map"`
	Require     []string                     `koanf:"require"`
}

// compile lowers config keys and emits steps in the canonical order:
// snake_case → rename → cast → value_map (one step per column) → require.
func (s Spec) compile() []Step {
	var steps []Step

	if s.ToSnakeCase {
		steps = append(steps, Step{Kind: KindSnakeCase})
	}

	if len(s.Rename) > 0 {
		lowered := make(map[string]string, len(s.Rename))
		for k, v := range s.Rename {
			lowered[strings.ToLower(k)] = v
		}
		steps = append(steps, Step{Kind: KindRename, Rename: lowered})
	}

	if len(s.Cast) > 0 {
		lowered := make(map[string]string, len(s.Cast))
		for k, v := range s.Cast {
			lowered[strings.ToLower(k)] = v
		}
		steps = append(steps, Step{Kind: KindCast, Cast: lowered})
	}

	// Deterministic step order across runs: sort value_map columns.
	cols := make([]string, 0, len(s.ValueMap))
	for col := range s.ValueMap {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		mapping := s.ValueMap[col]
		if len(mapping) == 0 {
			continue
		}
		steps = append(steps, Step{
			Kind:     KindValueMap,
			Column:   strings.ToLower(col),
			ValueMap: mapping,
		})
	}

	if len(s.Require) > 0 {
		lowered := make([]string, len(s.Require))
		for i, c := range s.Require {
			lowered[i] = strings.ToLower(c)
		}
		steps = append(steps, Step{Kind: KindRequire, Require: lowered})
	}

	return steps
}

// LoadSpec reads the base pipeline spec and deep-merges the per-customer
// override on top of it, both from dir. The customer file is optional —
// customers without overrides run the base spec unchanged.
//
// Layout: <dir>/base.yaml, <dir>/<customer>.yaml, each with a top-level
// "standardiser" key.
func LoadSpec(dir, customer string) (Spec, error) {
	k := koanf.New(".")

	basePath := filepath.Join(dir, "base.yaml")
	if err := k.Load(file.Provider(basePath), yaml.Parser()); err != nil {
		return Spec{}, fmt.Errorf("load base pipeline spec: %w", err)
	}

	if customer != "" {
		custPath := filepath.Join(dir, customer+".yaml")
		if _, err := os.Stat(custPath); err == nil {
			// koanf merges maps recursively — the customer file overrides
			// base keys and adds its own.
			if err := k.Load(file.Provider(custPath), yaml.Parser()); err != nil {
				return Spec{}, fmt.Errorf("load customer pipeline spec %q: %w", customer, err)
			}
		} else if !os.IsNotExist(err) {
			return Spec{}, fmt.Errorf("stat customer pipeline spec %q: %w", custPath, err)
		}
	}

	var spec Spec
	if err := k.Unmarshal("standardiser", &spec); err != nil {
		return Spec{}, fmt.Errorf("unmarshal pipeline spec: %w", err)
	}
	return spec, nil
}
