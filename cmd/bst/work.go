package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/cachekey"
	"github.com/buildstream-go/buildstream/internal/cas"
	"github.com/buildstream-go/buildstream/internal/casremote"
	"github.com/buildstream-go/buildstream/internal/digest"
	"github.com/buildstream-go/buildstream/internal/loader"
	"github.com/buildstream-go/buildstream/internal/plugin"
	"github.com/buildstream-go/buildstream/internal/sandbox"
)

// artifactRecord is the small JSON record bst stores as the CAS object a
// "artifact/<element-id>" ref points at: the strong key the artifact was
// built with, and the tree digest of its assembled output.
type artifactRecord struct {
	StrongKey string        `json:"strong_key"`
	Tree      digest.Digest `json:"tree"`
}

func artifactRefKey(id string) string { return "artifact/" + id }

// buildRuntime is the shared, read-mostly state every ElementWork callback
// closes over: the resolved element set, the plugin registry, and the
// process Context. results accumulates each element's cache key and
// artifact tree as the build queue completes them, in dependency order, so
// a dependent element can read its dependencies' strong keys for its own
// cache-key computation.
type buildRuntime struct {
	elements map[string]*loader.Element
	registry *plugin.Registry
	bsCtx    *bstcontext.Context
	overlap  plugin.OverlapPolicy

	mu      sync.Mutex
	results map[string]artifactRecord
}

func newBuildRuntime(elements map[string]*loader.Element, registry *plugin.Registry, bsCtx *bstcontext.Context, failOnOverlap bool) *buildRuntime {
	overlap := plugin.OverlapWarn
	if failOnOverlap {
		overlap = plugin.OverlapError
	}
	return &buildRuntime{
		elements: elements,
		registry: registry,
		bsCtx:    bsCtx,
		overlap:  overlap,
		results:  make(map[string]artifactRecord),
	}
}

func (rt *buildRuntime) constructElement(elem *loader.Element) (plugin.Element, error) {
	e, err := rt.registry.NewElement(elem.Kind)
	if err != nil {
		return nil, &bstcontext.PluginError{Element: elem.ID(), Action: "configure", Reason: "unknown element kind", Err: err}
	}
	if err := e.Configure(plugin.Node{Kind: elem.Kind, Data: elem.Config, File: elem.File}); err != nil {
		return nil, &bstcontext.PluginError{Element: elem.ID(), Action: "configure", Reason: "invalid configuration", Err: err}
	}
	return e, nil
}

func (rt *buildRuntime) constructSources(elem *loader.Element) ([]plugin.Source, error) {
	sources := make([]plugin.Source, 0, len(elem.Sources))
	for _, node := range elem.Sources {
		node.File = elem.File
		src, err := rt.registry.NewSource(node.Kind)
		if err != nil {
			return nil, &bstcontext.PluginError{Element: elem.ID(), Action: "configure", Reason: "unknown source kind", Err: err}
		}
		if err := src.Configure(node); err != nil {
			return nil, &bstcontext.PluginError{Element: elem.ID(), Action: "configure", Reason: "invalid source configuration", Err: err}
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// fetchWork implements one element's fetch-queue work: track each source
// that is not yet consistent, then fetch it into the local mirror.
func (rt *buildRuntime) fetchWork(ctx context.Context, id string) error {
	elem, ok := rt.elements[id]
	if !ok {
		return fmt.Errorf("bst: unknown element %s", id)
	}
	sources, err := rt.constructSources(elem)
	if err != nil {
		return err
	}
	for i, src := range sources {
		if err := src.Preflight(ctx); err != nil {
			return &bstcontext.SourceError{Element: id, Action: "fetch", Reason: "preflight check failed", Err: err}
		}
		if src.Consistency() == plugin.Inconsistent {
			ref, err := src.Track(ctx)
			if err != nil {
				return &bstcontext.SourceError{Element: id, Action: "track", Reason: "failed to resolve ref", Temp: true, Err: err}
			}
			if ref != "" {
				if err := src.SetRef(ref, elem.Sources[i]); err != nil {
					return &bstcontext.SourceError{Element: id, Action: "track", Reason: "failed to record ref", Err: err}
				}
			}
		}
		if err := src.Fetch(ctx); err != nil {
			return &bstcontext.SourceError{Element: id, Action: "fetch", Reason: "failed to fetch source content", Temp: true, Err: err}
		}
	}
	return nil
}

// buildWork implements one element's build-queue work: it
// computes the element's strong cache key from its already-completed build
// dependencies' keys, skips assembly entirely on a cache hit, and
// otherwise stages, assembles, and collects a fresh artifact tree.
func (rt *buildRuntime) buildWork(ctx context.Context, id string) error {
	elem, ok := rt.elements[id]
	if !ok {
		return fmt.Errorf("bst: unknown element %s", id)
	}
	if elem.IsJunction() {
		return nil
	}

	store := rt.bsCtx.CAS()

	sources, err := rt.constructSources(elem)
	if err != nil {
		return err
	}
	elementPlugin, err := rt.constructElement(elem)
	if err != nil {
		return err
	}

	fingerprints := make([]cachekey.SourceFingerprint, 0, len(sources))
	for i, src := range sources {
		key, err := src.UniqueKey()
		if err != nil {
			return &bstcontext.SourceError{Element: id, Action: "build", Reason: "failed to compute source key", Err: err}
		}
		fingerprints = append(fingerprints, cachekey.SourceFingerprint{Kind: elem.Sources[i].Kind, UniqueKey: key})
	}

	var buildDeps []cachekey.DependencyKey
	for _, dep := range elem.Depends {
		if !dep.Type.IsBuild() {
			continue
		}
		rt.mu.Lock()
		rec, ok := rt.results[dep.ID()]
		rt.mu.Unlock()
		if !ok {
			return &bstcontext.SchedulerError{Element: id, Action: "build", Reason: fmt.Sprintf("build dependency %s has no recorded result", dep.ID())}
		}
		buildDeps = append(buildDeps, cachekey.DependencyKey{Name: dep.ID(), Key: rec.StrongKey})
	}

	elementKey, err := elementPlugin.UniqueKey()
	if err != nil {
		return &bstcontext.ElementError{Element: id, Action: "build", Reason: "failed to compute element key", Err: err}
	}
	config := elem.Config
	if elementKey != nil {
		config = map[string]any{"plugin": elementKey}
		for k, v := range elem.Config {
			config[k] = v
		}
	}

	state := cachekey.ElementState{
		Kind:               elem.Kind,
		Variables:          elem.Variables,
		Environment:        cachekey.EnvironmentMinusNoCache(elem.Environment, elem.EnvNoCache),
		Config:             config,
		Public:             elem.Public,
		SandboxConfig:      elem.Sandbox,
		SourceFingerprints: fingerprints,
		BuildDependencies:  buildDeps,
	}
	strongKey, err := cachekey.Strong(state)
	if err != nil {
		return &bstcontext.ElementError{Element: id, Action: "build", Reason: "failed to compute cache key", Err: err}
	}

	if rec, found, err := lookupArtifact(store, id); err != nil {
		return &bstcontext.CASError{Element: id, Action: "build", Reason: "failed to resolve cached artifact", Err: err}
	} else if found && rec.StrongKey == strongKey {
		rt.mu.Lock()
		rt.results[id] = rec
		rt.mu.Unlock()
		return nil
	}

	tree, err := rt.assemble(ctx, id, elem, elementPlugin, sources, buildDeps)
	if err != nil {
		return err
	}

	rec := artifactRecord{StrongKey: strongKey, Tree: tree}
	if err := storeArtifact(store, id, rec); err != nil {
		return &bstcontext.CASError{Element: id, Action: "build", Reason: "failed to record artifact", Err: err}
	}
	rt.mu.Lock()
	rt.results[id] = rec
	rt.mu.Unlock()
	return nil
}

// assemble drives one element through the staging/assembly/collection
// sequence inside a fresh sandbox.
func (rt *buildRuntime) assemble(ctx context.Context, id string, elem *loader.Element, elementPlugin plugin.Element, sources []plugin.Source, buildDeps []cachekey.DependencyKey) (digest.Digest, error) {
	store := rt.bsCtx.CAS()

	sandboxParent := filepath.Join(rt.bsCtx.CacheDir(), "sandboxes")
	if err := os.MkdirAll(sandboxParent, 0o755); err != nil {
		return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "failed to create sandbox parent directory", Err: err}
	}
	root, err := os.MkdirTemp(sandboxParent, sandboxDirPattern(id))
	if err != nil {
		return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "failed to create sandbox root", Err: err}
	}
	defer os.RemoveAll(root)

	sbx, err := sandbox.New(root, store, os.Stdout, os.Stderr)
	if err != nil {
		return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "failed to create sandbox", Err: err}
	}

	if err := elementPlugin.ConfigureSandbox(sbx); err != nil {
		return digest.Digest{}, &bstcontext.ElementError{Element: id, Action: "build", Reason: "failed to configure sandbox", Err: err}
	}

	for _, dep := range buildDeps {
		rt.mu.Lock()
		rec := rt.results[dep.Name]
		rt.mu.Unlock()
		if err := sbx.StageDependency(ctx, "/", rec.Tree, rt.overlap, func(path string) {
			rt.bsCtx.Logger().Warn("overlapping path while staging dependency", "element", id, "dependency", dep.Name, "path", path)
		}); err != nil {
			return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "failed to stage build dependency", Err: err}
		}
	}

	for i, src := range sources {
		destPath := elem.Sources[i].Data["directory"]
		dest, _ := destPath.(string)
		if dest == "" {
			dest = "buildstream/build"
		}
		if err := os.MkdirAll(filepath.Join(root, dest), 0o755); err != nil {
			return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "failed to create source directory", Err: err}
		}
		if err := src.Stage(ctx, filepath.Join(root, dest)); err != nil {
			return digest.Digest{}, &bstcontext.SourceError{Element: id, Action: "build", Reason: "failed to stage source", Err: err}
		}
	}

	if err := elementPlugin.Stage(ctx, sbx); err != nil {
		return digest.Digest{}, &bstcontext.ElementError{Element: id, Action: "build", Reason: "failed element-specific staging", Err: err}
	}

	activity := rt.bsCtx.Bus().StartActivity(id, "build", nil)
	outputPath, err := elementPlugin.Assemble(ctx, sbx)
	if err != nil {
		activity.End(false, "build failed", err.Error(), "")
		return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "assembly failed", Err: err}
	}
	activity.End(true, "build succeeded", "", "")

	_, entries, err := sbx.Collect(outputPath)
	if err != nil {
		return digest.Digest{}, &bstcontext.SandboxError{Element: id, Action: "build", Reason: "failed to collect artifact", Err: err}
	}
	tree, err := store.AddTree(entries)
	if err != nil {
		return digest.Digest{}, &bstcontext.CASError{Element: id, Action: "build", Reason: "failed to store artifact tree", Err: err}
	}
	return tree, nil
}

// stageForShell stages id's build dependencies and sources into a fresh
// sandbox root the same way assemble does, but stops short of calling
// Assemble: this is "the assembly staging point" `bst shell` opens an
// interactive command at. Unlike assemble, build dependencies
// come from the local artifact cache rather than an in-flight build queue's
// results map, since a standalone `bst shell` invocation never populates one.
func (rt *buildRuntime) stageForShell(ctx context.Context, id string) (root string, cleanup func(), err error) {
	elem, ok := rt.elements[id]
	if !ok {
		return "", nil, fmt.Errorf("bst: unknown element %s", id)
	}
	store := rt.bsCtx.CAS()

	sources, err := rt.constructSources(elem)
	if err != nil {
		return "", nil, err
	}
	elementPlugin, err := rt.constructElement(elem)
	if err != nil {
		return "", nil, err
	}

	sandboxParent := filepath.Join(rt.bsCtx.CacheDir(), "sandboxes")
	if err := os.MkdirAll(sandboxParent, 0o755); err != nil {
		return "", nil, &bstcontext.SandboxError{Element: id, Action: "shell", Reason: "failed to create sandbox parent directory", Err: err}
	}
	root, err = os.MkdirTemp(sandboxParent, sandboxDirPattern(id))
	if err != nil {
		return "", nil, &bstcontext.SandboxError{Element: id, Action: "shell", Reason: "failed to create sandbox root", Err: err}
	}
	cleanup = func() { os.RemoveAll(root) }

	sbx, err := sandbox.New(root, store, os.Stdout, os.Stderr)
	if err != nil {
		cleanup()
		return "", nil, &bstcontext.SandboxError{Element: id, Action: "shell", Reason: "failed to create sandbox", Err: err}
	}
	if err := elementPlugin.ConfigureSandbox(sbx); err != nil {
		cleanup()
		return "", nil, &bstcontext.ElementError{Element: id, Action: "shell", Reason: "failed to configure sandbox", Err: err}
	}

	for _, dep := range elem.Depends {
		if !dep.Type.IsBuild() {
			continue
		}
		rec, found, lookupErr := lookupArtifact(store, dep.ID())
		if lookupErr != nil {
			cleanup()
			return "", nil, &bstcontext.CASError{Element: id, Action: "shell", Reason: "failed to resolve cached build dependency", Err: lookupErr}
		}
		if !found {
			cleanup()
			return "", nil, fmt.Errorf("bst shell: build dependency %s has not been built", dep.ID())
		}
		if err := sbx.StageDependency(ctx, "/", rec.Tree, rt.overlap, func(path string) {
			rt.bsCtx.Logger().Warn("overlapping path while staging dependency", "element", id, "dependency", dep.ID(), "path", path)
		}); err != nil {
			cleanup()
			return "", nil, &bstcontext.SandboxError{Element: id, Action: "shell", Reason: "failed to stage build dependency", Err: err}
		}
	}

	for i, src := range sources {
		destPath := elem.Sources[i].Data["directory"]
		dest, _ := destPath.(string)
		if dest == "" {
			dest = "buildstream/build"
		}
		if err := os.MkdirAll(filepath.Join(root, dest), 0o755); err != nil {
			cleanup()
			return "", nil, &bstcontext.SandboxError{Element: id, Action: "shell", Reason: "failed to create source directory", Err: err}
		}
		if err := src.Stage(ctx, filepath.Join(root, dest)); err != nil {
			cleanup()
			return "", nil, &bstcontext.SourceError{Element: id, Action: "shell", Reason: "failed to stage source", Err: err}
		}
	}

	if err := elementPlugin.Stage(ctx, sbx); err != nil {
		cleanup()
		return "", nil, &bstcontext.ElementError{Element: id, Action: "shell", Reason: "failed element-specific staging", Err: err}
	}

	return root, cleanup, nil
}

func newReader(data []byte) *bytes.Reader { return bytes.NewReader(data) }

func sandboxDirPattern(id string) string {
	clean := ""
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			clean += string(r)
		default:
			clean += "-"
		}
	}
	return clean + "-*"
}

func lookupArtifact(store *cas.Store, id string) (artifactRecord, bool, error) {
	d, err := store.ResolveRef(artifactRefKey(id))
	if errors.Is(err, cas.ErrNotFound) {
		return artifactRecord{}, false, nil // ref absence is not an error; any other store fault is returned
	}
	if err != nil {
		return artifactRecord{}, false, err
	}
	data, err := store.ReadAndVerify(d)
	if err != nil {
		return artifactRecord{}, false, err
	}
	var rec artifactRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return artifactRecord{}, false, err
	}
	return rec, true, nil
}

func storeArtifact(store *cas.Store, id string, rec artifactRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	d, err := store.AddBlob(newReader(data))
	if err != nil {
		return err
	}
	return store.SetRef(artifactRefKey(id), d)
}

// pushWork uploads one element's recorded artifact tree, plus every object
// it transitively references, to the configured remote.
func (rt *buildRuntime) pushWork(client *casremote.Client) func(ctx context.Context, id string) error {
	return func(ctx context.Context, id string) error {
		rt.mu.Lock()
		rec, ok := rt.results[id]
		rt.mu.Unlock()
		if !ok {
			return nil
		}
		store := rt.bsCtx.CAS()
		blobs, err := collectTreeBlobs(store, rec.Tree)
		if err != nil {
			return &bstcontext.CASError{Element: id, Action: "push", Reason: "failed to read local artifact", Err: err}
		}
		if err := client.Push(blobs); err != nil {
			return &bstcontext.CASError{Element: id, Action: "push", Reason: "failed to upload artifact", Temp: true, Err: err}
		}
		return nil
	}
}

// pullWork downloads one element's artifact tree from the configured
// remote into the local store, recording it the same way a local build
// would.
func (rt *buildRuntime) pullWork(client *casremote.Client) func(ctx context.Context, id string) error {
	return func(ctx context.Context, id string) error {
		store := rt.bsCtx.CAS()
		d, found, err := client.RefGet(artifactRefKey(id))
		if err != nil {
			return &bstcontext.CASError{Element: id, Action: "pull", Reason: "failed to query remote ref", Temp: true, Err: err}
		}
		if !found {
			return &bstcontext.CASError{Element: id, Action: "pull", Reason: "no artifact on remote"}
		}
		data, err := client.Fetch([]digest.Digest{d})
		if err != nil {
			return &bstcontext.CASError{Element: id, Action: "pull", Reason: "failed to fetch artifact record", Temp: true, Err: err}
		}
		if err := restoreTreeBlobs(client, store, data[d]); err != nil {
			return &bstcontext.CASError{Element: id, Action: "pull", Reason: "failed to fetch artifact tree", Temp: true, Err: err}
		}
		if _, err := store.AddBlob(newReader(data[d])); err != nil {
			return &bstcontext.CASError{Element: id, Action: "pull", Reason: "failed to record artifact", Err: err}
		}
		return store.SetRef(artifactRefKey(id), d)
	}
}

// collectTreeBlobs walks the Merkle tree rooted at root and returns every
// blob (directory listings and files alike) the remote needs to have a
// complete, independently-readable copy.
func collectTreeBlobs(store *cas.Store, root digest.Digest) (map[digest.Digest][]byte, error) {
	out := make(map[digest.Digest][]byte)
	var walk func(d digest.Digest) error
	walk = func(d digest.Digest) error {
		if _, seen := out[d]; seen {
			return nil
		}
		raw, err := store.ReadAndVerify(d)
		if err != nil {
			return err
		}
		out[d] = raw
		dir, err := cas.DecodeDirectory(raw)
		if err != nil {
			// Not every blob decodes as a directory; leaf files are left
			// as opaque bytes and simply stop the walk here.
			return nil
		}
		for _, entry := range dir.Entries {
			if entry.Type == cas.EntryDirectory {
				if err := walk(entry.Digest); err != nil {
					return err
				}
			} else if entry.Type == cas.EntryFile {
				data, err := store.ReadAndVerify(entry.Digest)
				if err != nil {
					return err
				}
				out[entry.Digest] = data
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return out, nil
}

// restoreTreeBlobs is collectTreeBlobs's inverse for pull: it fetches every
// blob of the remote tree rooted at the decoded record's tree digest and
// installs it locally.
func restoreTreeBlobs(client *casremote.Client, store *cas.Store, recordData []byte) error {
	var rec artifactRecord
	if err := json.Unmarshal(recordData, &rec); err != nil {
		return err
	}
	pending := []digest.Digest{rec.Tree}
	for len(pending) > 0 {
		d := pending[0]
		pending = pending[1:]
		if store.Contains(d) {
			continue
		}
		data, err := client.Fetch([]digest.Digest{d})
		if err != nil {
			return err
		}
		if _, err := store.AddBlob(newReader(data[d])); err != nil {
			return err
		}
		dir, err := cas.DecodeDirectory(data[d])
		if err != nil {
			continue
		}
		for _, entry := range dir.Entries {
			if entry.Type == cas.EntryDirectory || entry.Type == cas.EntryFile {
				pending = append(pending, entry.Digest)
			}
		}
	}
	return nil
}
