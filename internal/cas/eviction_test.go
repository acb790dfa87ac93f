package cas

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDiskUsage lets tests drive admit() without touching the real
// filesystem's free space.
func fakeDiskUsage(free, total uint64) func(string) (uint64, uint64, error) {
	return func(string) (uint64, uint64, error) { return free, total, nil }
}

func TestAdmitNoEvictionNeeded(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	s.statfs = fakeDiskUsage(1000, 2000)

	require.NoError(t, s.admit(500))
}

func TestAdmitArtifactTooLargeForTotalCapacity(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	s.statfs = fakeDiskUsage(100, 200)

	err = s.admit(500)
	require.ErrorIs(t, err, ErrArtifactTooLarge)
}

func TestAdmitEvictsOldestObjectsFirst(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	old, err := s.AddBlob(bytes.NewReader([]byte("old object bytes")))
	require.NoError(t, err)
	// Force the "old" object to look old; AddBlob just wrote it, so back-date it.
	backdated := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(s.ObjectPath(old), backdated, backdated))

	fresh, err := s.AddBlob(bytes.NewReader([]byte("fresh object bytes")))
	require.NoError(t, err)

	ref, err := s.AddBlob(bytes.NewReader([]byte("referenced object bytes, kept")))
	require.NoError(t, err)
	require.NoError(t, s.SetRef("proj/elem/key", ref))

	// Pretend the disk is almost full: admitting a big new object requires
	// evicting the old one.
	s.MaxHeadroom = 0
	s.statfs = fakeDiskUsage(1, 1000)

	require.NoError(t, s.admit(10))

	assert.False(t, s.Contains(old), "oldest object should have been evicted")
	assert.True(t, s.Contains(fresh), "fresher object should survive eviction")

	// The reference to an object that is still present must remain resolvable.
	resolved, err := s.ResolveRef("proj/elem/key")
	require.NoError(t, err)
	assert.Equal(t, ref, resolved)
}
