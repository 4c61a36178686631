// Package state reads the initial data components are rendered with.
//
// State comes from YAML or JSON documents and from key=value assignments
// given on the command line or in a query string. Values are decoded as
// YAML scalars, so "3" is an int, "true" a bool and "[a, b]" a list.
package state

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/fibre/internal/errors"
)

// Load reads a YAML or JSON document whose top level is a mapping.
func Load(path string) (map[string]any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, fmt.Sprintf("reading state %s", path), err)
	}
	data, ferr := decode(content)
	if ferr != nil {
		return nil, ferr.WithFile(path)
	}
	return data, nil
}

// Decode parses a YAML or JSON mapping. An empty document is an empty map.
func Decode(content []byte) (map[string]any, error) {
	data, ferr := decode(content)
	if ferr != nil {
		return nil, ferr
	}
	return data, nil
}

func decode(content []byte) (map[string]any, *errors.FibreError) {
	data := make(map[string]any)
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "state must be a mapping").WithCause(err)
	}
	return data, nil
}

// ParseValue decodes a single YAML scalar or flow collection. Anything that
// does not parse is kept as the raw string.
func ParseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		if strings.TrimSpace(raw) == "null" || strings.TrimSpace(raw) == "~" {
			return nil
		}
		return raw
	}
	return v
}

// ParseAssignments turns key=value pairs into a state map. Dotted keys
// build nested maps: "user.name=Ann" yields {"user": {"name": "Ann"}}.
func ParseAssignments(pairs []string) (map[string]any, error) {
	data := make(map[string]any)
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("assignment %q must have the form key=value", pair))
		}
		if err := Set(data, key, ParseValue(raw)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Set stores v under a dotted key, creating intermediate maps.
func Set(data map[string]any, key string, v any) error {
	segments := strings.Split(key, ".")
	cur := data
	for i, seg := range segments {
		if seg == "" {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("key %q has an empty segment", key))
		}
		if i == len(segments)-1 {
			cur[seg] = v
			return nil
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			if _, exists := cur[seg]; exists {
				return errors.NewConfigError(errors.ErrCodeConfigInvalid,
					fmt.Sprintf("key %q overwrites the value at %q", key, strings.Join(segments[:i+1], ".")))
			}
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	return nil
}

// Merge copies src over dst, descending into maps present in both.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for _, k := range keys(src) {
		sv := src[k]
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = Merge(dm, sm)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
