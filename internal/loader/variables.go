package loader

import (
	"fmt"
	"regexp"
	"sort"
)

var variableRef = regexp.MustCompile(`%\{([a-zA-Z][a-zA-Z0-9_-]*)\}`)

// resolveVariables repeatedly substitutes %{name} references in vars'
// values against vars itself until a fixed point is reached, then applies
// the resolved variables to environment, config, public, and sandbox,
// substituting every %{name} reference found in their string leaves.
//
// Returns a "loader: %s: unresolved variable %q" error, matching the
// element YAML schema's declared unresolved-variable load failure, when a
// reference never resolves (undeclared name or a substitution cycle).
func resolveVariables(file string, elem *Element) error {
	resolved, err := fixpointResolve(elem.Variables)
	if err != nil {
		return fmt.Errorf("loader: %s: %w", file, err)
	}
	elem.Variables = resolved

	for _, field := range []*map[string]string{&elem.Environment} {
		substituted, unmatched := substituteStringMap(*field, resolved)
		if len(unmatched) > 0 {
			return fmt.Errorf("loader: %s: unresolved variable %q", file, unmatched[0])
		}
		*field = substituted
	}

	for _, field := range []*map[string]any{&elem.Config, &elem.Public, &elem.Sandbox} {
		if *field == nil {
			continue
		}
		substituted, unmatched := substituteTree(*field, resolved)
		if len(unmatched) > 0 {
			return fmt.Errorf("loader: %s: unresolved variable %q", file, unmatched[0])
		}
		*field = substituted.(map[string]any)
	}

	return nil
}

// fixpointResolve substitutes vars' values against themselves until no
// value changes further, returning the remaining unresolved names as a
// "loader: unresolved variable" error.
func fixpointResolve(vars map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(vars))
	for k, v := range vars {
		resolved[k] = v
	}

	for pass := 0; ; pass++ {
		next := make(map[string]string, len(resolved))
		var unmatched []string
		changed := false
		for k, v := range resolved {
			substituted, _ := substitute(v, resolved)
			next[k] = substituted
			if substituted != v {
				changed = true
			}
			for _, m := range variableRef.FindAllStringSubmatch(substituted, -1) {
				unmatched = append(unmatched, m[1])
			}
		}
		resolved = next
		if len(unmatched) == 0 {
			return resolved, nil
		}
		if !changed || pass >= len(vars) {
			sort.Strings(unmatched)
			return nil, fmt.Errorf("unresolved variable %q", unmatched[0])
		}
	}
}

// substitute replaces every %{name} in s with vars[name], returning the
// names with no entry in vars alongside the (possibly partially)
// substituted string.
func substitute(s string, vars map[string]string) (string, []string) {
	var unmatched []string
	out := variableRef.ReplaceAllStringFunc(s, func(token string) string {
		name := token[2 : len(token)-1]
		value, ok := vars[name]
		if !ok {
			unmatched = append(unmatched, name)
			return token
		}
		return value
	})
	return out, unmatched
}

func substituteStringMap(m map[string]string, vars map[string]string) (map[string]string, []string) {
	if m == nil {
		return nil, nil
	}
	out := make(map[string]string, len(m))
	var unmatched []string
	for k, v := range m {
		sub, u := substitute(v, vars)
		out[k] = sub
		unmatched = append(unmatched, u...)
	}
	return out, unmatched
}

// substituteTree applies substitute to every string leaf of an arbitrarily
// nested map[string]any/[]any value decoded from element YAML (config,
// public, sandbox).
func substituteTree(node any, vars map[string]string) (any, []string) {
	switch v := node.(type) {
	case string:
		return substitute(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		var unmatched []string
		for k, val := range v {
			sub, u := substituteTree(val, vars)
			out[k] = sub
			unmatched = append(unmatched, u...)
		}
		return out, unmatched
	case []any:
		out := make([]any, len(v))
		var unmatched []string
		for i, val := range v {
			sub, u := substituteTree(val, vars)
			out[i] = sub
			unmatched = append(unmatched, u...)
		}
		return out, unmatched
	default:
		return v, nil
	}
}
