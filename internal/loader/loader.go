package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/buildstream-go/buildstream/internal/config"
	"github.com/buildstream-go/buildstream/internal/dag"
)

// ProjectConfigName is the conventional project configuration file name
// LocateProjectRoot searches for.
const ProjectConfigName = "project.conf"

// supportedFormatVersions is the range of project.conf `format-version`
// values this loader understands. format-version is a plain integer, so
// it's projected onto a `<major>.0.0` semver string purely to reuse a real
// constraint-range checker rather than hand-rolling one.
var supportedFormatVersions = mustConstraint(">=1.0.0, <=2.0.0")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

// CheckFormatVersion reports whether project declares a format-version
// this loader can parse.
func CheckFormatVersion(project *config.Project) error {
	v, err := semver.NewVersion(fmt.Sprintf("%d.0.0", project.FormatVersion))
	if err != nil {
		return fmt.Errorf("loader: invalid format-version %d: %w", project.FormatVersion, err)
	}
	if !supportedFormatVersions.Check(v) {
		return fmt.Errorf("loader: project format-version %d is not supported by this build of BuildStream", project.FormatVersion)
	}
	return nil
}

// LocateProjectRoot walks upward from start looking for a project
// configuration file. It accepts either "project.conf" or "project.yaml"
// at each level, since BuildStream's own convention names the file
// project.conf despite it being YAML.
func LocateProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("loader: resolve %s: %w", start, err)
	}
	for {
		for _, name := range []string{ProjectConfigName, "project.yaml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("loader: no project configuration found above %s", start)
		}
		dir = parent
	}
}

// JunctionResolver stages a junction element's sources and returns the root
// directory of the checked-out subproject. Supplying one is
// optional; a Loader with none set fails to load any element that has a
// junction dependency.
type JunctionResolver func(ctx context.Context, junction *Element) (projectRoot string, err error)

// Loader resolves a project's element files into a dag.Graph[string] of
// Elements. It caches already-resolved nodes (the Elements map and the
// dag.Graph's vertex set together) so a name is only ever loaded and
// validated once, however many elements depend on it.
type Loader struct {
	ProjectRoot string
	Project     *config.Project
	Options     map[string]string
	Resolver    JunctionResolver

	junction string // non-empty for a subordinate Loader over a junction's project
	elements map[string]*Element
	graph    *dag.Graph[string]
	children map[string]*Loader // cached child Loaders, keyed by junction element ID
}

// New constructs a root Loader for a project.
func New(projectRoot string, project *config.Project, options map[string]string, resolver JunctionResolver) *Loader {
	return &Loader{
		ProjectRoot: projectRoot,
		Project:     project,
		Options:     options,
		Resolver:    resolver,
		elements:    map[string]*Element{},
		graph:       dag.New[string](),
		children:    map[string]*Loader{},
	}
}

// Load resolves targets (names relative to the project's element path) and
// every element they transitively depend on, returning the populated
// dag.Graph and the resolved Element set.
func (l *Loader) Load(ctx context.Context, targets []string) (*dag.Graph[string], map[string]*Element, error) {
	if err := CheckFormatVersion(l.Project); err != nil {
		return nil, nil, err
	}
	for _, target := range targets {
		if _, err := l.load(ctx, target); err != nil {
			return nil, nil, err
		}
	}

	order, err := l.graph.TopologicalSort()
	if err != nil {
		return nil, nil, fmt.Errorf("loader: %w", err)
	}
	topoIndex := make(map[string]int, len(order))
	for i, id := range order {
		topoIndex[id] = i
	}
	for _, elem := range l.elements {
		SortDependencies(elem.Depends, topoIndex)
	}

	return l.graph, l.elements, nil
}

// load resolves a single element name.
func (l *Loader) load(ctx context.Context, name string) (*Element, error) {
	id := ElementID(l.junction, name)
	if elem, ok := l.elements[id]; ok {
		return elem, nil
	}

	elemPath := l.Project.ElementPath
	if elemPath == "" {
		elemPath = "elements"
	}
	file := filepath.Join(l.ProjectRoot, elemPath, name)

	raw, err := decodeYAMLNode(file)
	if err != nil {
		return nil, err
	}
	composed, err := resolveIncludes(raw, filepath.Dir(file), map[string]bool{file: true})
	if err != nil {
		return nil, err
	}
	composed, err = resolveConditionals(composed, l.Options)
	if err != nil {
		return nil, err
	}

	elem, err := buildElement(name, l.junction, file, composed)
	if err != nil {
		return nil, err
	}
	if err := resolveVariables(file, elem); err != nil {
		return nil, err
	}

	if err := l.graph.AddVertex(id); err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	l.elements[id] = elem

	for _, dep := range elem.Depends {
		childLoader := l
		if dep.Junction != "" {
			jl, err := l.loaderForJunction(ctx, dep.Junction)
			if err != nil {
				return nil, err
			}
			childLoader = jl
		}
		childElem, err := childLoader.load(ctx, dep.Name)
		if err != nil {
			return nil, err
		}
		if err := l.mergeChildGraph(childLoader); err != nil {
			return nil, err
		}
		if err := l.graph.AddEdge(childElem.ID(), id); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}
	}

	return elem, nil
}

// mergeChildGraph folds a subordinate junction Loader's resolved elements
// and vertices into the parent's graph, so the parent's single
// TopologicalSort/SortDependencies pass covers cross-junction dependencies
// too. Safe to call repeatedly; already-merged vertices are skipped.
func (l *Loader) mergeChildGraph(child *Loader) error {
	if child == l {
		return nil
	}
	for id, elem := range child.elements {
		if _, exists := l.elements[id]; exists {
			continue
		}
		if err := l.graph.AddVertex(id); err != nil {
			return fmt.Errorf("loader: %w", err)
		}
		l.elements[id] = elem
	}
	for id, vertex := range child.graph.Vertices {
		for to := range vertex.Edges {
			if err := l.graph.AddEdge(id, to); err != nil {
				return fmt.Errorf("loader: %w", err)
			}
		}
	}
	return nil
}

// loaderForJunction resolves (and caches) the subordinate Loader for a
// junction element.
func (l *Loader) loaderForJunction(ctx context.Context, junctionName string) (*Loader, error) {
	if cached, ok := l.children[junctionName]; ok {
		return cached, nil
	}
	if l.Resolver == nil {
		return nil, fmt.Errorf("loader: element depends across junction %q but no JunctionResolver is configured", junctionName)
	}
	junctionElem, err := l.load(ctx, junctionName)
	if err != nil {
		return nil, fmt.Errorf("loader: resolving junction %q: %w", junctionName, err)
	}
	if !junctionElem.IsJunction() {
		return nil, fmt.Errorf("loader: element %q is referenced as a junction but its kind is %q", junctionName, junctionElem.Kind)
	}
	childRoot, err := l.Resolver(ctx, junctionElem)
	if err != nil {
		return nil, fmt.Errorf("loader: staging junction %q: %w", junctionName, err)
	}
	childProject, err := config.LoadProject(filepath.Join(childRoot, ProjectConfigName))
	if err != nil {
		childProject, err = config.LoadProject(filepath.Join(childRoot, "project.yaml"))
		if err != nil {
			return nil, fmt.Errorf("loader: loading junction %q project config: %w", junctionName, err)
		}
	}
	if err := CheckFormatVersion(childProject); err != nil {
		return nil, fmt.Errorf("loader: junction %q: %w", junctionName, err)
	}
	child := &Loader{
		ProjectRoot: childRoot,
		Project:     childProject,
		Options:     l.Options,
		Resolver:    l.Resolver,
		junction:    junctionName,
		elements:    map[string]*Element{},
		graph:       dag.New[string](),
		children:    map[string]*Loader{},
	}
	l.children[junctionName] = child
	return child, nil
}
