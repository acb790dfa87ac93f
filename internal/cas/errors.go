package cas

import "errors"

// Sentinel errors matching the CASError taxonomy. Callers distinguish
// transient from fatal failures with errors.Is.
var (
	// ErrNotFound is returned when an object or reference does not exist.
	// The store does not consult remotes, and no caller retries a local
	// NotFound against one.
	ErrNotFound = errors.New("cas: not found")

	// ErrCorruptObject is returned when a read object's computed digest does
	// not match the digest it was stored under. This is always fatal.
	ErrCorruptObject = errors.New("cas: corrupt object: digest mismatch")

	// ErrArtifactTooLarge is returned when an incoming object cannot be
	// admitted even after evicting every evictable object.
	ErrArtifactTooLarge = errors.New("cas: artifact too large for cache")

	// ErrTransient wraps a failure to query free disk space, or to list
	// objects during eviction, while admitting a new object. Admission is
	// not retried.
	ErrTransient = errors.New("cas: transient storage failure")
)
