// Package cas implements the local content-addressable store described in
// : deduplicated blob storage under objects/<hh>/<rest>,
// human-readable references under refs/, and least-recently-pushed
// eviction under disk pressure.
package cas

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/buildstream-go/buildstream/internal/digest"
)

const (
	objectsDirName = "objects"
	refsDirName    = "refs"
	tmpDirName     = "tmp"
)

// Store is a single cache root's content-addressable object store plus its
// reference map. It is safe for concurrent use by multiple goroutines
// within one process; the eviction lock additionally serializes admission
// across readers so a racing caller can never observe a size shrink below
// zero.
type Store struct {
	root string

	// evictMu is the process-wide advisory lock guarding eviction. A real
	// multi-process deployment replaces this with flock on a sentinel file
	// under root; the algorithm is unchanged.
	evictMu sync.Mutex

	// refMu serializes reference writes. The scheduler never writes the
	// same key concurrently, but CLI tooling (checkout, pull)
	// may race with it, so writes still go through write-temp-then-rename.
	refMu sync.Mutex

	// MinHeadroom and MaxHeadroom bound the eviction algorithm of §4.1.
	// MinHeadroom is reserved and never eligible for admission; MaxHeadroom
	// is the target free space eviction restores the cache to.
	MinHeadroom uint64
	MaxHeadroom uint64

	statfs func(path string) (free, total uint64, err error)

	logger *slog.Logger
}

// Open opens (creating if necessary) a Store rooted at dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		root:        dir,
		MinHeadroom: 0,
		MaxHeadroom: 0,
		statfs:      statfs,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, sub := range []string{objectsDirName, refsDirName, tmpDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("cas: failed to initialize cache root %s: %w", dir, err)
		}
	}
	return s, nil
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithHeadroom sets the minimum reserved and maximum eviction-target free
// space, both in bytes.
func WithHeadroom(minHeadroom, maxHeadroom uint64) Option {
	return func(s *Store) {
		s.MinHeadroom = minHeadroom
		s.MaxHeadroom = maxHeadroom
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// ObjectPath returns the path an object with digest d would occupy. It is
// purely computational and does not test existence.
func (s *Store) ObjectPath(d digest.Digest) string {
	hex := d.Hex()
	return filepath.Join(s.root, objectsDirName, hex[:2], hex[2:])
}

// Contains reports whether an object with digest d is present, touching its
// mtime on a hit so eviction treats it as recently used.
func (s *Store) Contains(d digest.Digest) bool {
	path := s.ObjectPath(d)
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	_ = info
	return true
}

// AddBlob streams r into the store, computing its digest, and atomically
// installing the object. If the object already exists, AddBlob is a no-op
// beyond recomputing the digest (idempotent add, ).
func (s *Store) AddBlob(r io.Reader) (digest.Digest, error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "blob-*")
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	removeTemp := true
	defer func() {
		if removeTemp {
			_ = os.Remove(tmpPath)
		}
	}()

	d, err := digest.FromReader(io.TeeReader(r, tmp))
	closeErr := tmp.Close()
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to stage blob: %w", err)
	}
	if closeErr != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to flush staged blob: %w", closeErr)
	}

	if err := s.admit(d.Size); err != nil {
		return digest.Digest{}, err
	}

	if err := s.installTemp(tmpPath, d); err != nil {
		return digest.Digest{}, err
	}
	removeTemp = false
	return d, nil
}

// AddBlobFromPath installs the file at path, hard-linking it directly into
// the object store when linkDirectly is true and the file lives on the same
// filesystem as the cache root, otherwise copying it.
func (s *Store) AddBlobFromPath(path string, linkDirectly bool) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to stat %s: %w", path, err)
	}

	d, err := digest.FromReader(f)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to digest %s: %w", path, err)
	}

	if err := s.admit(uint64(info.Size())); err != nil {
		return digest.Digest{}, err
	}

	dest := s.ObjectPath(d)
	if _, err := os.Stat(dest); err == nil {
		now := time.Now()
		_ = os.Chtimes(dest, now, now)
		return d, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to create object directory: %w", err)
	}

	if linkDirectly {
		if err := os.Link(path, dest); err == nil {
			return d, nil
		}
		// Fall through to copy when cross-device or otherwise unsupported.
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to rewind %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "blob-*")
	if err != nil {
		return digest.Digest{}, fmt.Errorf("cas: failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, f); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return digest.Digest{}, fmt.Errorf("cas: failed to copy blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return digest.Digest{}, fmt.Errorf("cas: failed to flush staged blob: %w", err)
	}
	if err := s.installTemp(tmp.Name(), d); err != nil {
		return digest.Digest{}, err
	}
	return d, nil
}

// installTemp renames a staged temp file into its final object path,
// skipping the rename (and removing the temp file) if the object already
// exists under a concurrent writer.
func (s *Store) installTemp(tmpPath string, d digest.Digest) error {
	dest := s.ObjectPath(d)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("cas: failed to create object directory: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		// Another writer already installed this object; drop ours.
		_ = os.Remove(tmpPath)
		return nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("cas: failed to install object %s: %w", d, err)
	}
	return nil
}

// ReadBlob opens a streaming reader over the object identified by d,
// failing with ErrNotFound if it is absent.
func (s *Store) ReadBlob(d digest.Digest) (io.ReadCloser, error) {
	f, err := os.Open(s.ObjectPath(d))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: object %s", ErrNotFound, d)
		}
		return nil, fmt.Errorf("cas: failed to open object %s: %w", d, err)
	}
	now := time.Now()
	_ = os.Chtimes(s.ObjectPath(d), now, now)
	return f, nil
}

// ReadAndVerify reads the whole object and verifies its digest still
// matches, surfacing ErrCorruptObject on mismatch.
func (s *Store) ReadAndVerify(d digest.Digest) ([]byte, error) {
	r, err := s.ReadBlob(d)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cas: failed to read object %s: %w", d, err)
	}
	if got := digest.Compute(data); got != d {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrCorruptObject, d, got)
	}
	return data, nil
}

// AddTree constructs a Directory from entries and inserts it as a CAS
// object, returning its digest. Because Directory.Encode sorts entries by
// name, the result is independent of the order entries were passed in.
func (s *Store) AddTree(entries []TreeEntry) (digest.Digest, error) {
	data := Directory{Entries: entries}.Encode()
	return s.AddBlob(newBytesReader(data))
}

// ReadTree reads and decodes the Directory object at digest d.
func (s *Store) ReadTree(d digest.Digest) (Directory, error) {
	data, err := s.ReadAndVerify(d)
	if err != nil {
		return Directory{}, err
	}
	dir, err := DecodeDirectory(data)
	if err != nil {
		return Directory{}, fmt.Errorf("cas: failed to decode tree %s: %w", d, err)
	}
	return dir, nil
}

// ObjectInfo describes one entry returned by ListObjects.
type ObjectInfo struct {
	Digest digest.Digest
	Path   string
	MTime  time.Time
	Size   int64
}

// ListObjects returns every object currently stored, ordered ascending by
// mtime (oldest first), the order the eviction sweep consumes.
func (s *Store) ListObjects() ([]ObjectInfo, error) {
	base := filepath.Join(s.root, objectsDirName)
	var objects []ObjectInfo
	err := filepath.WalkDir(base, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		hexStr := filepath.Dir(rel) + filepath.Base(rel)
		info, err := entry.Info()
		if err != nil {
			return err
		}
		d, err := digest.Parse(hexStr + "/" + fmt.Sprint(info.Size()))
		if err != nil {
			// Not a well-formed object path; skip rather than fail the sweep.
			return nil
		}
		objects = append(objects, ObjectInfo{Digest: d, Path: path, MTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("cas: failed to list objects: %w", err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].MTime.Before(objects[j].MTime) })
	return objects, nil
}

func newBytesReader(data []byte) io.Reader {
	return &sliceReader{data: data}
}

type sliceReader struct {
	data []byte
	pos  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
