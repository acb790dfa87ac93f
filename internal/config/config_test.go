package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/config"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadProjectDecodesCoreKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	writeFile(t, path, `
name: hello
element-path: elements
format-version: 1
aliases:
  upstream: https://example.com/
options:
  debug:
    type: bool
    default: "false"
fail-on-overlap: true
`)

	p, err := config.LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Name)
	assert.Equal(t, "elements", p.ElementPath)
	assert.Equal(t, 1, p.FormatVersion)
	assert.Equal(t, "https://example.com/", p.Aliases["upstream"])
	assert.True(t, p.FailOnOverlap)
	assert.Equal(t, config.OptionBool, p.Options["debug"].Kind)
}

func TestLoadProjectMissingFormatVersionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.yaml")
	writeFile(t, path, `name: hello`)

	_, err := config.LoadProject(path)
	assert.Error(t, err)
}

func TestLoadProjectMissingFileFails(t *testing.T) {
	_, err := config.LoadProject(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadUserMissingFileReturnsDefaults(t *testing.T) {
	u, err := config.LoadUser(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, u.CacheDir)
}

func TestLoadUserDecodesSchedulerSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.yaml")
	writeFile(t, path, `
cachedir: /var/cache/bst
scheduler:
  fetchers: 8
  on-error: quit
options:
  debug: "true"
`)

	u, err := config.LoadUser(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/bst", u.CacheDir)
	assert.Equal(t, 8, u.Scheduler.Fetchers)
	assert.Equal(t, "quit", u.Scheduler.OnError)
	assert.Equal(t, "true", u.Options["debug"])
}

func optionProject(t *testing.T) *config.Project {
	t.Helper()
	return &config.Project{
		Options: map[string]config.OptionDeclaration{
			"debug": {Kind: config.OptionBool, Default: "false"},
			"arch":  {Kind: config.OptionEnum, Values: []string{"x86_64", "aarch64"}, Default: "x86_64"},
			"name":  {Kind: config.OptionString, Default: "default-name"},
		},
	}
}

func TestResolveOptionsAppliesProjectDefaults(t *testing.T) {
	resolved, err := config.ResolveOptions(optionProject(t), &config.User{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "false", resolved["debug"])
	assert.Equal(t, "x86_64", resolved["arch"])
}

func TestResolveOptionsUserOverridesProjectDefault(t *testing.T) {
	user := &config.User{Options: map[string]string{"debug": "true"}}
	resolved, err := config.ResolveOptions(optionProject(t), user, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", resolved["debug"])
}

func TestResolveOptionsCLIOverridesUserConfig(t *testing.T) {
	user := &config.User{Options: map[string]string{"arch": "aarch64"}}
	resolved, err := config.ResolveOptions(optionProject(t), user, map[string]string{"arch": "x86_64"})
	require.NoError(t, err)
	assert.Equal(t, "x86_64", resolved["arch"])
}

func TestResolveOptionsRejectsUndeclaredOption(t *testing.T) {
	_, err := config.ResolveOptions(optionProject(t), &config.User{}, map[string]string{"bogus": "x"})
	assert.Error(t, err)
}

func TestResolveOptionsRejectsInvalidEnumValue(t *testing.T) {
	_, err := config.ResolveOptions(optionProject(t), &config.User{}, map[string]string{"arch": "riscv"})
	assert.Error(t, err)
}

func TestResolveOptionsRejectsInvalidBoolValue(t *testing.T) {
	_, err := config.ResolveOptions(optionProject(t), &config.User{}, map[string]string{"debug": "maybe"})
	assert.Error(t, err)
}
