package cas

import (
	"fmt"
	"os"
)

// admit implements the least-recently-pushed eviction algorithm for an
// incoming object of size n:
//
//  1. free/total are computed net of MinHeadroom.
//  2. n > total is unconditionally fatal (ErrArtifactTooLarge).
//  3. n <= free admits immediately, no eviction needed.
//  4. Otherwise, under the eviction lock (re-checked after acquisition so
//     a racing caller doesn't over-evict), objects are unlinked oldest-mtime
//     first until the object fits within MaxHeadroom of free space, pruning
//     references whose target mtime is <= the last evicted object's mtime.
func (s *Store) admit(n uint64) error {
	free, total, err := s.diskSpace()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	if n > total {
		return fmt.Errorf("%w: object of %d bytes exceeds total cache capacity %d bytes", ErrArtifactTooLarge, n, total)
	}
	if n <= free {
		return nil
	}

	s.evictMu.Lock()
	defer s.evictMu.Unlock()

	// Re-check after acquiring the lock: another caller may have already
	// evicted enough space for us while we waited.
	free, _, err = s.diskSpace()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	if n <= free {
		return nil
	}

	return s.evictLocked(n, free)
}

// evictLocked performs the actual LRP sweep. Callers must hold evictMu.
func (s *Store) evictLocked(n, free uint64) error {
	target := int64(free) - int64(s.MaxHeadroom)
	need := int64(n) - target

	objects, err := s.ListObjects()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	var removed int64
	var lastEvictedMTimeUnix int64 = -1
	for _, obj := range objects {
		if removed >= need {
			break
		}
		if err := os.Remove(obj.Path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("cas: failed to evict object", "digest", obj.Digest.String(), "error", err)
			continue
		}
		removed += obj.Size
		lastEvictedMTimeUnix = obj.MTime.Unix()
	}

	if removed < need {
		return fmt.Errorf("%w: evicted %d bytes but still need %d more", ErrArtifactTooLarge, removed, need-removed)
	}

	if lastEvictedMTimeUnix >= 0 {
		if err := s.pruneRefsOlderThan(lastEvictedMTimeUnix); err != nil {
			s.logger.Warn("cas: failed to prune stale references after eviction", "error", err)
		}
	}

	return nil
}

func (s *Store) diskSpace() (free, total uint64, err error) {
	free, total, err = s.statfs(s.root)
	if err != nil {
		return 0, 0, err
	}
	if free > s.MinHeadroom {
		free -= s.MinHeadroom
	} else {
		free = 0
	}
	if total > s.MinHeadroom {
		total -= s.MinHeadroom
	} else {
		total = 0
	}
	return free, total, nil
}
