//go:build !linux

package cas

import "syscall"

// statfs on non-Linux platforms. BuildStream's sandbox assembly is a
// Linux-only concern (bwrap/FUSE, ), but the CAS itself has no
// such restriction, so a best-effort statfs keeps the store usable
// elsewhere even though eviction headroom math is approximate.
func statfs(path string) (free, total uint64, err error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	free = uint64(st.Bavail) * uint64(st.Bsize)
	total = uint64(st.Blocks) * uint64(st.Bsize)
	return free, total, nil
}
