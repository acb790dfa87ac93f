// Package config loads and merges BuildStream's two configuration
// surfaces: the per-project file (`project.yaml`) and the
// per-user file, then resolves declared options against project defaults,
// user overrides, and command-line `-o` pairs.
//
// Typed Go structs decoded from YAML/JSON-compatible documents via
// sigs.k8s.io/yaml, with later sources overriding earlier ones key-by-key
// rather than wholesale replacement.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// PluginOrigin describes one source of plugin kinds: the
// bundled core, a project-local directory, or a pip-installed package.
type PluginOrigin struct {
	Origin      string            `json:"origin"` // "core" | "local" | "pip"
	Sources     map[string]string `json:"sources,omitempty"`
	Elements    map[string]string `json:"elements,omitempty"`
	Path        string            `json:"path,omitempty"`
	PackageName string            `json:"package-name,omitempty"`
}

// ArtifactRemote describes one configured artifact cache server.
type ArtifactRemote struct {
	URL          string `json:"url"`
	Push         bool   `json:"push,omitempty"`
	ServerCert   string `json:"server-cert,omitempty"`
	ClientKey    string `json:"client-key,omitempty"`
	ClientCert   string `json:"client-cert,omitempty"`
	InstanceName string `json:"instance-name,omitempty"`
}

// OptionKind is the type discipline enforced for declared project
// options: bool, enum, or string.
type OptionKind string

const (
	OptionBool   OptionKind = "bool"
	OptionEnum   OptionKind = "enum"
	OptionString OptionKind = "string"
)

// OptionDeclaration is one project-declared option: its type, its allowed
// enum values (if OptionKind is OptionEnum), and its default value.
type OptionDeclaration struct {
	Kind        OptionKind `json:"type"`
	Description string     `json:"description,omitempty"`
	Values      []string   `json:"values,omitempty"` // enum only
	Default     string     `json:"default"`
}

// Validate reports whether value is a legal setting for this declaration.
func (d OptionDeclaration) Validate(value string) error {
	switch d.Kind {
	case OptionBool:
		if value != "true" && value != "false" {
			return fmt.Errorf("config: option value %q is not a bool", value)
		}
	case OptionEnum:
		for _, allowed := range d.Values {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("config: option value %q is not one of %v", value, d.Values)
	case OptionString:
		// any value is legal
	default:
		return fmt.Errorf("config: unknown option type %q", d.Kind)
	}
	return nil
}

// Project is the decoded form of a project's `project.yaml`").
type Project struct {
	Name          string                       `json:"name"`
	ElementPath   string                       `json:"element-path"`
	FormatVersion int                          `json:"format-version"`
	Aliases       map[string]string            `json:"aliases,omitempty"`
	Plugins       []PluginOrigin               `json:"plugins,omitempty"`
	Options       map[string]OptionDeclaration `json:"options,omitempty"`
	Artifacts     []ArtifactRemote             `json:"artifacts,omitempty"`
	FailOnOverlap bool                         `json:"fail-on-overlap,omitempty"`
	Shell         ShellConfig                  `json:"shell,omitempty"`

	// Root is the directory project.yaml was loaded from. It is not decoded
	// from the file, and LoadProject leaves it empty; the caller sets it.
	Root string `json:"-"`
}

// ShellConfig configures `bst shell`'s default interactive command.
type ShellConfig struct {
	Command []string `json:"command,omitempty"`
}

// LoadProject reads and decodes a project.yaml file from path.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read project config %s: %w", path, err)
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: decode project config %s: %w", path, err)
	}
	if p.FormatVersion == 0 {
		return nil, fmt.Errorf("config: project config %s: missing format-version", path)
	}
	return &p, nil
}

// User is the decoded form of the per-user config file: scheduler tuning,
// cache/log directory overrides, and option overrides that apply to every
// project this user builds.
type User struct {
	CacheDir  string            `json:"cachedir,omitempty"`
	LogDir    string            `json:"logdir,omitempty"`
	MirrorDir string            `json:"sourcedir,omitempty"`
	Scheduler SchedulerSettings `json:"scheduler,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	Artifacts []ArtifactRemote  `json:"artifacts,omitempty"`
}

// SchedulerSettings is the user-configurable subset of 
// scheduler parameters ("sched.fetchers/builders/pushers/network-retries").
type SchedulerSettings struct {
	Fetchers       int    `json:"fetchers,omitempty"`
	Builders       int    `json:"builders,omitempty"`
	Pushers        int    `json:"pushers,omitempty"`
	NetworkRetries int    `json:"network-retries,omitempty"`
	OnError        string `json:"on-error,omitempty"` // continue|quit|terminate
}

// LoadUser reads and decodes a user config file from path. A missing file
// is not an error: BuildStream runs with defaults when the user has never
// created one.
func LoadUser(path string) (*User, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &User{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read user config %s: %w", path, err)
	}
	var u User
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("config: decode user config %s: %w", path, err)
	}
	return &u, nil
}

// ResolveOptions merges project option defaults, the user config's option
// overrides, and the command-line `-o` pairs in that precedence order
//, validating every resulting value against its
// declared OptionKind.
func ResolveOptions(project *Project, user *User, cliOverrides map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(project.Options))
	for name, decl := range project.Options {
		resolved[name] = decl.Default
	}
	for name, value := range user.Options {
		if _, declared := project.Options[name]; !declared {
			return nil, fmt.Errorf("config: user config sets undeclared option %q", name)
		}
		resolved[name] = value
	}
	for name, value := range cliOverrides {
		if _, declared := project.Options[name]; !declared {
			return nil, fmt.Errorf("config: -o sets undeclared option %q", name)
		}
		resolved[name] = value
	}
	for name, value := range resolved {
		if err := project.Options[name].Validate(value); err != nil {
			return nil, fmt.Errorf("config: option %q: %w", name, err)
		}
	}
	return resolved, nil
}
