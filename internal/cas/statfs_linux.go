//go:build linux

package cas

import "golang.org/x/sys/unix"

func statfs(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}
	// #nosec G115 -- block counts/sizes are always non-negative on Linux.
	total = uint64(st.Blocks) * uint64(st.Bsize)
	free = uint64(st.Bavail) * uint64(st.Bsize)
	return free, total, nil
}
