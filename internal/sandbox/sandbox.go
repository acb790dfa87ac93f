// Package sandbox implements the assembly protocol: stage dependencies and
// sources, run integration and build commands in a subprocess group so
// cancellation/suspension can reach the whole command tree, and collect
// the result back into CAS as a new tree. The process-group exec idiom
// runs one self-contained build command group per assembly instead of a
// long-lived container.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/buildstream-go/buildstream/internal/cas"
	"github.com/buildstream-go/buildstream/internal/digest"
	"github.com/buildstream-go/buildstream/internal/plugin"
)

// Mark declares a directory's role ahead of staging.
// Marks are idempotent; overlapping marks are rejected.
type Mark struct {
	Path     string
	ReadOnly bool
}

// Sandbox is one element's isolated assembly workspace: a plain directory
// tree on the host standing in for a bwrap/FUSE/remote-execution backend
// treated as an external collaborator. The contract (configure, stage,
// integrate, run, collect) is what this package specifies; the actual
// isolation technology is pluggable and out of core scope.
type Sandbox struct {
	root   string
	store  *cas.Store
	marks  []Mark
	stdout io.Writer
	stderr io.Writer

	mu      sync.Mutex
	procGrp int // pgid of the currently running command, 0 if none
}

// New creates a Sandbox rooted at root, creating the directory if needed.
func New(root string, store *cas.Store, stdout, stderr io.Writer) (*Sandbox, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: failed to create root %s: %w", root, err)
	}
	return &Sandbox{root: root, store: store, stdout: stdout, stderr: stderr}, nil
}

func (s *Sandbox) Root() string      { return s.root }
func (s *Sandbox) Stdout() io.Writer { return s.stdout }
func (s *Sandbox) Stderr() io.Writer { return s.stderr }

// Mark declares a path's role. Marking the same path
// with conflicting read-only state is rejected.
func (s *Sandbox) Mark(path string, readOnly bool) error {
	for _, m := range s.marks {
		if m.Path == path {
			if m.ReadOnly != readOnly {
				return fmt.Errorf("sandbox: conflicting marks for %s", path)
			}
			return nil
		}
	}
	s.marks = append(s.marks, Mark{Path: path, ReadOnly: readOnly})
	if err := os.MkdirAll(filepath.Join(s.root, path), 0o755); err != nil {
		return fmt.Errorf("sandbox: failed to create marked directory %s: %w", path, err)
	}
	return nil
}

// StageDependency streams a build dependency's artifact tree into the
// sandbox at destPath, in the stable dependency order the caller already
// established. Overlapping paths from a
// previously-staged dependency follow policy: last-writer-wins with a
// logged warning by default (OverlapWarn), fail fast under OverlapError,
// or silently skip under OverlapIgnore.
func (s *Sandbox) StageDependency(ctx context.Context, destPath string, treeDigest digest.Digest, policy plugin.OverlapPolicy, warn func(path string)) error {
	dir, err := s.store.ReadTree(treeDigest)
	if err != nil {
		return fmt.Errorf("sandbox: failed to read dependency tree: %w", err)
	}
	return s.materialize(dir, filepath.Join(s.root, destPath), policy, warn)
}

func (s *Sandbox) materialize(dir cas.Directory, destRoot string, policy plugin.OverlapPolicy, warn func(string)) error {
	entries := append([]cas.TreeEntry(nil), dir.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for _, entry := range entries {
		dest := filepath.Join(destRoot, entry.Name)
		_, existedBefore := os.Lstat(dest)
		overlaps := existedBefore == nil

		if overlaps {
			switch policy {
			case plugin.OverlapError:
				return fmt.Errorf("sandbox: overlapping path %s (overlap policy=error)", dest)
			case plugin.OverlapIgnore:
				continue
			default:
				if warn != nil {
					warn(dest)
				}
			}
		}

		switch entry.Type {
		case cas.EntryDirectory:
			sub, err := s.store.ReadTree(entry.Digest)
			if err != nil {
				return fmt.Errorf("sandbox: failed to read subtree %s: %w", entry.Name, err)
			}
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("sandbox: failed to create directory %s: %w", dest, err)
			}
			if err := s.materialize(sub, dest, policy, warn); err != nil {
				return err
			}
		case cas.EntrySymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(entry.Target, dest); err != nil {
				return fmt.Errorf("sandbox: failed to create symlink %s: %w", dest, err)
			}
		default:
			data, err := s.store.ReadAndVerify(entry.Digest)
			if err != nil {
				return fmt.Errorf("sandbox: failed to read %s: %w", entry.Name, err)
			}
			if err := os.WriteFile(dest, data, os.FileMode(entry.Mode)); err != nil {
				return fmt.Errorf("sandbox: failed to write %s: %w", dest, err)
			}
		}
	}
	return nil
}

// StageTree satisfies plugin.Sandbox by accepting a raw digest string.
func (s *Sandbox) StageTree(ctx context.Context, destPath string, treeDigestStr string, overlap plugin.OverlapPolicy) error {
	d, err := digest.Parse(treeDigestStr)
	if err != nil {
		return fmt.Errorf("sandbox: invalid tree digest %q: %w", treeDigestStr, err)
	}
	dir, err := s.store.ReadTree(d)
	if err != nil {
		return err
	}
	return s.materialize(dir, filepath.Join(s.root, destPath), overlap, nil)
}

// Run executes argv as a subprocess group so Cancel/Suspend can reach the
// whole tree it spawns. A non-zero exit is a build failure; sandbox
// contents are retained by the caller for introspection.
func (s *Sandbox) Run(ctx context.Context, argv []string, opts plugin.RunOptions) error {
	if len(argv) == 0 {
		return fmt.Errorf("sandbox: empty command")
	}
	// #nosec G204 -- argv is plugin-declared build-command content, not
	// attacker-controlled input; the sandbox boundary is the isolation
	// mechanism, not argv validation.
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.root
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	env := os.Environ()
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("sandbox: failed to start %v: %w", argv, err)
	}

	s.mu.Lock()
	s.procGrp = cmd.Process.Pid
	s.mu.Unlock()

	err := cmd.Wait()

	s.mu.Lock()
	s.procGrp = 0
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("sandbox: command %v failed: %w", argv, err)
	}
	return nil
}

// Suspend pauses the currently running command's process group (SIGTSTP
// propagation,  "Suspend/cancel").
func (s *Sandbox) Suspend() error {
	return s.signalGroup(syscall.SIGSTOP)
}

// Resume continues a previously suspended process group.
func (s *Sandbox) Resume() error {
	return s.signalGroup(syscall.SIGCONT)
}

// Cancel forcibly terminates the running command's process group.
func (s *Sandbox) Cancel() error {
	return s.signalGroup(syscall.SIGKILL)
}

func (s *Sandbox) signalGroup(sig syscall.Signal) error {
	s.mu.Lock()
	pgid := s.procGrp
	s.mu.Unlock()
	if pgid == 0 {
		return nil
	}
	if err := syscall.Kill(-pgid, sig); err != nil {
		return fmt.Errorf("sandbox: failed to signal process group %d: %w", pgid, err)
	}
	return nil
}

// Collect adds every file and subdirectory under outputPath to CAS and
// returns the root Directory with its entries; the root Directory itself is
// not added to CAS and no digest is returned. Determinism normalization (fixed mtimes,
// cleared setuid/setgid, literal symlinks) is applied while walking.
func (s *Sandbox) Collect(outputPath string) (cas.Directory, []cas.TreeEntry, error) {
	root := filepath.Join(s.root, outputPath)
	entries, err := s.collectDir(root)
	if err != nil {
		return cas.Directory{}, nil, err
	}
	return cas.Directory{Entries: entries}, entries, nil
}

func (s *Sandbox) collectDir(dir string) ([]cas.TreeEntry, error) {
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: failed to read %s: %w", dir, err)
	}
	entries := make([]cas.TreeEntry, 0, len(infos))
	for _, info := range infos {
		path := filepath.Join(dir, info.Name())
		switch {
		case info.Type()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return nil, fmt.Errorf("sandbox: failed to read symlink %s: %w", path, err)
			}
			entries = append(entries, cas.TreeEntry{Name: info.Name(), Type: cas.EntrySymlink, Target: target})
		case info.IsDir():
			children, err := s.collectDir(path)
			if err != nil {
				return nil, err
			}
			d, err := s.store.AddTree(children)
			if err != nil {
				return nil, err
			}
			entries = append(entries, cas.TreeEntry{Name: info.Name(), Type: cas.EntryDirectory, Mode: 0o755, Digest: d})
		default:
			fi, err := info.Info()
			if err != nil {
				return nil, err
			}
			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("sandbox: failed to open %s: %w", path, err)
			}
			d, err := s.store.AddBlob(f)
			_ = f.Close()
			if err != nil {
				return nil, err
			}
			entries = append(entries, cas.TreeEntry{Name: info.Name(), Type: cas.EntryFile, Mode: normalizeMode(fi.Mode()), Digest: d})
		}
	}
	return entries, nil
}

// normalizeMode keeps only the permission bits, always clearing
// setuid/setgid, so collected artifact modes are deterministic regardless of what the build
// command happened to leave behind.
func normalizeMode(mode os.FileMode) uint32 {
	return uint32(mode.Perm() &^ (os.ModeSetuid | os.ModeSetgid))
}
