package config

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"
)

// YAML is a kong.ConfigurationLoader. Keys are flag names; flags of a
// subcommand may also be nested under the command name:
//
//	log-level: debug
//	serve:
//	  addr: ":8080"
//
// Nested keys win over top-level ones.
func YAML(r io.Reader) (kong.Resolver, error) {
	values := map[string]any{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}

	var resolve kong.ResolverFunc = func(kctx *kong.Context, parent *kong.Path, flag *kong.Flag) (any, error) {
		keys := []string{flag.Name, strings.ReplaceAll(flag.Name, "-", "_")}
		if cmds := commandPath(parent); len(cmds) > 0 {
			if section, ok := lookup(values, cmds); ok {
				for _, k := range keys {
					if v, ok := section[k]; ok {
						return scalar(v)
					}
				}
			}
		}
		for _, k := range keys {
			if v, ok := values[k]; ok {
				return scalar(v)
			}
		}
		return nil, nil
	}
	return resolve, nil
}

func commandPath(p *kong.Path) []string {
	if p == nil {
		return nil
	}
	var names []string
	for n := p.Node(); n != nil && n.Type != kong.ApplicationNode; n = n.Parent {
		names = append(names, n.Name)
	}
	slices.Reverse(names)
	return names
}

func lookup(values map[string]any, path []string) (map[string]any, bool) {
	cur := values
	for _, key := range path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// scalar renders YAML values the way they would be typed on the command
// line, so kong's own mappers do the parsing.
func scalar(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return nil, fmt.Errorf("config value is a mapping, want a scalar or list")
	default:
		return fmt.Sprint(v), nil
	}
}
