package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/loader"
	"github.com/buildstream-go/buildstream/internal/plugin"
)

func newTrackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "track <element>...",
		Short: "Consult each element's sources for new refs and rewrite its element file",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTrack,
	}
}

// runTrack implements the track/ref round trip: each source
// already holding a ref is left alone unless it reports Inconsistent;
// consulted sources that resolve to a new ref have that ref written back
// into their source mapping and the owning element file is rewritten.
// Rewriting re-serializes the whole file, so hand-authored comments and key
// ordering in elements with trackable sources are not preserved.
func runTrack(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, elements, err := newLoader().Load(ctx, args)
	if err != nil {
		return &bstcontext.LoadError{Action: "track", Reason: "failed to resolve element graph", Err: err}
	}

	targets := make(map[string]bool, len(args))
	for _, name := range args {
		targets[loader.ElementID("", name)] = true
	}

	for id, elem := range elements {
		if !targets[id] {
			continue
		}
		changed := false
		for i := range elem.Sources {
			node := elem.Sources[i]
			node.File = elem.File
			src, err := Root.registry.NewSource(node.Kind)
			if err != nil {
				return &bstcontext.PluginError{Element: id, Action: "track", Reason: "unknown source kind", Err: err}
			}
			if err := src.Configure(node); err != nil {
				return &bstcontext.PluginError{Element: id, Action: "track", Reason: "invalid source configuration", Err: err}
			}
			if err := src.LoadRef(node); err != nil {
				return &bstcontext.SourceError{Element: id, Action: "track", Reason: "failed to load existing ref", Err: err}
			}
			if src.Consistency() != plugin.Inconsistent {
				continue
			}
			ref, err := src.Track(ctx)
			if err != nil {
				return &bstcontext.SourceError{Element: id, Action: "track", Reason: "failed to resolve ref", Temp: true, Err: err}
			}
			if ref == "" {
				continue
			}
			if err := src.SetRef(ref, node); err != nil {
				continue // source kind has no ref to persist (e.g. local)
			}
			changed = true
		}
		if changed {
			if err := rewriteElementFile(elem.File, elem.Sources); err != nil {
				return &bstcontext.LoadError{Element: id, Action: "track", Reason: "failed to rewrite element file", Err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tracked %s\n", id)
		}
	}
	return nil
}

// rewriteElementFile re-decodes path's raw document and replaces its
// `sources` list wholesale with the current in-memory source mappings,
// then re-encodes and overwrites the file.
func rewriteElementFile(path string, sources []plugin.Node) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	list := make([]any, len(sources))
	for i, node := range sources {
		list[i] = node.Data
	}
	doc["sources"] = list
	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}
	return os.WriteFile(path, out, mode)
}
