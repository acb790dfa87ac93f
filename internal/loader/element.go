package loader

import (
	"fmt"
	"slices"

	"github.com/buildstream-go/buildstream/internal/plugin"
)

var recognizedElementKeys = map[string]bool{
	"kind":                true,
	"sources":             true,
	"depends":             true,
	"build-depends":       true,
	"runtime-depends":     true,
	"variables":           true,
	"environment":         true,
	"environment-nocache": true,
	"config":              true,
	"public":              true,
	"sandbox":             true,
	"description":         true,
}

// Element is the fully resolved, composed form of one element file. Name/Junction together form the dag vertex key (ElementID).
type Element struct {
	Name     string
	Junction string
	File     string

	Kind        string
	Sources     []plugin.Node
	Depends     []Dependency
	Variables   map[string]string
	Environment map[string]string
	EnvNoCache  []string
	Config      map[string]any
	Public      map[string]any
	Sandbox     map[string]any
	Description string
}

// ID returns this element's dag vertex key.
func (e *Element) ID() string { return ElementID(e.Junction, e.Name) }

// IsJunction reports whether this element is a `kind: junction` element.
func (e *Element) IsJunction() bool { return e.Kind == "junction" }

// buildElement validates a fully-composed node against the recognized
// element schema and converts it into
// an Element, splitting `depends`/`build-depends`/`runtime-depends` into a
// single Dependency list.
func buildElement(name, junction, file string, node map[string]any) (*Element, error) {
	for key := range node {
		if !recognizedElementKeys[key] {
			return nil, fmt.Errorf("loader: %s: unrecognized key %q", file, key)
		}
	}

	kind, _ := node["kind"].(string)
	if kind == "" {
		return nil, fmt.Errorf("loader: %s: missing required 'kind' key", file)
	}

	elem := &Element{
		Name:        name,
		Junction:    junction,
		File:        file,
		Kind:        kind,
		Variables:   stringMap(node["variables"]),
		Environment: stringMap(node["environment"]),
		Config:      asMapOrEmpty(node["config"]),
		Public:      asMapOrEmpty(node["public"]),
		Sandbox:     asMapOrEmpty(node["sandbox"]),
	}
	elem.Description, _ = node["description"].(string)

	if raw, ok := node["environment-nocache"]; ok {
		list, err := asStringList(raw)
		if err != nil {
			return nil, fmt.Errorf("loader: %s: environment-nocache: %w", file, err)
		}
		elem.EnvNoCache = list
	}

	sources, err := parseSources(node["sources"])
	if err != nil {
		return nil, fmt.Errorf("loader: %s: %w", file, err)
	}
	elem.Sources = sources

	deps, err := parseAllDependencies(node, file)
	if err != nil {
		return nil, err
	}
	elem.Depends = deps

	return elem, nil
}

func parseAllDependencies(node map[string]any, file string) ([]Dependency, error) {
	var deps []Dependency
	groups := []struct {
		key         string
		defaultType DependencyType
	}{
		{"depends", DependAll},
		{"build-depends", DependBuild},
		{"runtime-depends", DependRuntime},
	}
	for _, group := range groups {
		raw, ok := node[group.key]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("loader: %s: %s must be a list", file, group.key)
		}
		for _, item := range list {
			dep, err := parseDependency(item, group.defaultType)
			if err != nil {
				return nil, fmt.Errorf("loader: %s: %w", file, err)
			}
			deps = append(deps, dep)
		}
	}
	return deps, nil
}

func parseSources(raw any) ([]plugin.Node, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("sources must be a list")
	}
	out := make([]plugin.Node, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("each source must be a mapping")
		}
		kind, _ := m["kind"].(string)
		if kind == "" {
			return nil, fmt.Errorf("source is missing required 'kind' key")
		}
		out = append(out, plugin.Node{Kind: kind, Data: m})
	}
	return out, nil
}

func stringMap(raw any) map[string]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func asMapOrEmpty(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		return m
	}
	return nil
}

// SortDependencies orders an element's direct dependencies by
// topological precedence first (derived from topoIndex, a global
// dependency-ordered index so that if A transitively depends on B, B's
// index is smaller), then build-before-runtime, then name, then junction
// name with local elements first.
func SortDependencies(deps []Dependency, topoIndex map[string]int) {
	slices.SortFunc(deps, func(a, b Dependency) int {
		if ai, bi := topoIndex[a.ID()], topoIndex[b.ID()]; ai != bi {
			if ai < bi {
				return -1
			}
			return 1
		}
		if a.Type.IsBuild() != b.Type.IsBuild() {
			if a.Type.IsBuild() {
				return -1
			}
			return 1
		}
		if a.Name != b.Name {
			if a.Name < b.Name {
				return -1
			}
			return 1
		}
		if a.Junction == b.Junction {
			return 0
		}
		if a.Junction == "" {
			return -1
		}
		if b.Junction == "" {
			return 1
		}
		if a.Junction < b.Junction {
			return -1
		}
		return 1
	})
}
