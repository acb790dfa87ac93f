// Package loader transforms a project's element YAML files into a resolved
// dag.Graph[string] of Elements.
//
// Resolves a name to a node, discovers its children, and dedupes revisits
// through the Loader's resolved-element map, generalized from component
// identities to BuildStream element names; junction subprojects load
// sequentially, each through a cached child Loader with the same dedupe
// guarantee.
package loader

import (
	"fmt"
	"strings"
)

// DependencyType discriminates a dependency's `type` field.
type DependencyType int

const (
	// DependAll (the zero value) means the dependency is required at both
	// build and runtime.
	DependAll DependencyType = iota
	DependBuild
	DependRuntime
)

func (t DependencyType) String() string {
	switch t {
	case DependBuild:
		return "build"
	case DependRuntime:
		return "runtime"
	default:
		return "all"
	}
}

// IsBuild reports whether this dependency is needed at build time.
func (t DependencyType) IsBuild() bool { return t == DependAll || t == DependBuild }

// IsRuntime reports whether this dependency is needed at runtime.
func (t DependencyType) IsRuntime() bool { return t == DependAll || t == DependRuntime }

// Dependency is one parsed `depends`/`build-depends`/`runtime-depends`
// entry.
type Dependency struct {
	Name     string
	Junction string
	Type     DependencyType
	Strict   bool
}

// ID returns the dag vertex key this dependency resolves to: the junction-
// qualified element name.
func (d Dependency) ID() string {
	return ElementID(d.Junction, d.Name)
}

// ElementID builds the dag vertex key for an element name within an
// (possibly empty) junction scope.
func ElementID(junction, name string) string {
	if junction == "" {
		return name
	}
	return junction + ":" + name
}

// parseDependency converts one raw `depends`-list entry (a bare string or a
// mapping with filename/type/junction/strict) into a Dependency.
func parseDependency(raw any, defaultType DependencyType) (Dependency, error) {
	switch v := raw.(type) {
	case string:
		return splitJunction(Dependency{Name: v, Type: defaultType})
	case map[string]any:
		dep := Dependency{Type: defaultType}
		name, _ := v["filename"].(string)
		if name == "" {
			return Dependency{}, fmt.Errorf("loader: dependency is missing required 'filename' key")
		}
		dep.Name = name
		if junction, ok := v["junction"].(string); ok {
			dep.Junction = junction
		}
		if strict, ok := v["strict"].(bool); ok {
			if !strict {
				return Dependency{}, fmt.Errorf("loader: dependency %s: setting 'strict' to false is unsupported", name)
			}
			dep.Strict = strict
		}
		if typeName, ok := v["type"].(string); ok {
			switch typeName {
			case "build":
				dep.Type = DependBuild
			case "runtime":
				dep.Type = DependRuntime
			case "all":
				dep.Type = DependAll
			default:
				return Dependency{}, fmt.Errorf("loader: dependency %s: type %q is not 'build', 'runtime' or 'all'", name, typeName)
			}
		}
		if dep.Strict && dep.Type == DependRuntime {
			return Dependency{}, fmt.Errorf("loader: runtime dependency %s specified as strict", name)
		}
		return splitJunction(dep)
	default:
		return Dependency{}, fmt.Errorf("loader: dependency is not specified as a string or a mapping")
	}
}

// splitJunction implements the `name:junction-name` shorthand and validates
// the `:` cardinality rules from types.py's Dependency constructor.
func splitJunction(dep Dependency) (Dependency, error) {
	if dep.Junction != "" && strings.Contains(dep.Name, ":") {
		return Dependency{}, fmt.Errorf("loader: dependency %s contains ':' in its name while junction is explicitly specified", dep.Name)
	}
	if strings.Count(dep.Name, ":") > 1 {
		return Dependency{}, fmt.Errorf("loader: dependency %s contains multiple ':' separators", dep.Name)
	}
	if dep.Junction == "" && strings.Count(dep.Name, ":") == 1 {
		parts := strings.SplitN(dep.Name, ":", 2)
		dep.Junction, dep.Name = parts[0], parts[1]
	}
	return dep, nil
}
