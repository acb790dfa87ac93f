package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/cas"
	"github.com/buildstream-go/buildstream/internal/config"
	"github.com/buildstream-go/buildstream/internal/loader"
	"github.com/buildstream-go/buildstream/internal/logging"
	"github.com/buildstream-go/buildstream/internal/plugin"
)

const (
	directoryFlag = "directory"
	optionFlag    = "option"
)

// App is bst's root command plus the per-invocation state every subcommand
// reads after PersistentPreRunE has resolved it.
type App struct {
	*cobra.Command

	project  *config.Project
	user     *config.User
	options  map[string]string
	registry *plugin.Registry
	bsCtx    *bstcontext.Context
}

// Root is the single process-wide App instance, populated by setupRoot and
// read by every subcommand's RunE.
var Root *App

func init() {
	Root = &App{Command: &cobra.Command{
		Use:   "bst [sub-command]",
		Short: "BuildStream: a build and integration system for software toolchains and runtime images",
		Long: `bst builds software toolchains and runtime images from declarative
element definitions, caching every build by a strong key derived from its
inputs and assembling each build in an isolated sandbox.`,
		PersistentPreRunE: setupRoot,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}}

	Root.PersistentFlags().StringP(directoryFlag, "C", ".", "path to the project directory (default: current directory)")
	Root.PersistentFlags().StringSliceP(optionFlag, "o", nil, "set a project option as key=value (repeatable)")
	logging.RegisterFlags(Root.PersistentFlags())

	Root.AddCommand(newBuildCmd())
	Root.AddCommand(newFetchCmd())
	Root.AddCommand(newTrackCmd())
	Root.AddCommand(newShowCmd())
	Root.AddCommand(newCheckoutCmd())
	Root.AddCommand(newShellCmd())
	Root.AddCommand(newPushCmd())
	Root.AddCommand(newPullCmd())
}

// setupRoot resolves the project, user, and option configuration, opens
// the local CAS, and constructs the process-wide bstcontext.Context ahead
// of every subcommand's RunE.
func setupRoot(cmd *cobra.Command, _ []string) error {
	logger, err := logging.FromCommand(cmd)
	if err != nil {
		return fmt.Errorf("bst: %w", err)
	}
	slog.SetDefault(logger)

	dir, err := cmd.Flags().GetString(directoryFlag)
	if err != nil {
		return err
	}
	root, err := loader.LocateProjectRoot(dir)
	if err != nil {
		return fmt.Errorf("bst: %w", err)
	}

	projectPath := filepath.Join(root, loader.ProjectConfigName)
	if _, statErr := os.Stat(projectPath); statErr != nil {
		projectPath = filepath.Join(root, "project.yaml")
	}
	project, err := config.LoadProject(projectPath)
	if err != nil {
		return fmt.Errorf("bst: %w", err)
	}
	project.Root = root

	user, err := config.LoadUser(userConfigPath())
	if err != nil {
		return fmt.Errorf("bst: %w", err)
	}

	cliOverrides, err := parseOptionFlags(cmd)
	if err != nil {
		return err
	}
	resolved, err := config.ResolveOptions(project, user, cliOverrides)
	if err != nil {
		return fmt.Errorf("bst: %w", err)
	}

	cacheDir := user.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(root, ".bst", "cache")
	}
	mirrorDir := user.MirrorDir
	if mirrorDir == "" {
		mirrorDir = filepath.Join(root, ".bst", "sources")
	}
	logDir := user.LogDir
	if logDir == "" {
		logDir = filepath.Join(root, ".bst", "logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("bst: failed to create log directory: %w", err)
	}

	store, err := cas.Open(filepath.Join(cacheDir, "cas"))
	if err != nil {
		return fmt.Errorf("bst: failed to open local cache: %w", err)
	}

	fetchers, builders, pushers, retries := 4, 4, 4, 0
	if s := user.Scheduler; s.Fetchers > 0 || s.Builders > 0 || s.Pushers > 0 || s.NetworkRetries > 0 {
		if s.Fetchers > 0 {
			fetchers = s.Fetchers
		}
		if s.Builders > 0 {
			builders = s.Builders
		}
		if s.Pushers > 0 {
			pushers = s.Pushers
		}
		retries = s.NetworkRetries
	}
	errorPolicy := user.Scheduler.OnError
	if errorPolicy == "" {
		errorPolicy = "continue"
	}

	bsCtx := bstcontext.New(
		bstcontext.WithCacheDir(cacheDir),
		bstcontext.WithMirrorDir(mirrorDir),
		bstcontext.WithLogDir(logDir),
		bstcontext.WithQueueSizes(fetchers, builders, pushers, retries),
		bstcontext.WithErrorPolicy(errorPolicy),
		bstcontext.WithStore(store),
		bstcontext.WithLogger(logger),
	)
	bsCtx.Bus().SetHandler(newMessagePrinter(cmd.OutOrStdout()))

	registry := plugin.NewRegistry()
	if err := registry.RegisterSource("local", plugin.NewLocalSource); err != nil {
		return fmt.Errorf("bst: %w", err)
	}
	if err := registry.RegisterElement("manual", func() plugin.Element { return plugin.NewBuildElement() }); err != nil {
		return fmt.Errorf("bst: %w", err)
	}

	Root.project = project
	Root.user = user
	Root.options = resolved
	Root.registry = registry
	Root.bsCtx = bsCtx

	cmd.SetContext(bstcontext.WithContext(cmd.Context(), bsCtx))
	return nil
}

func parseOptionFlags(cmd *cobra.Command) (map[string]string, error) {
	raw, err := cmd.Flags().GetStringSlice(optionFlag)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bst: invalid -o value %q, expected key=value", kv)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}

func userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bst", "bst.conf")
}

// newLoader constructs a fresh loader.Loader for the currently resolved
// project. Junction resolution is not wired: a project with a junction
// dependency fails to load with a clear error instead of silently skipping
// it, since no remote-checkout transport is configured here.
func newLoader() *loader.Loader {
	return loader.New(Root.project.Root, Root.project, Root.options, nil)
}
