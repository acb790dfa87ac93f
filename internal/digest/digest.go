// Package digest implements the content-addressing primitive shared by the
// local and remote CAS: a (SHA-256 hash, size) pair with a canonical
// "<hex>/<size>" textual form.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	ocidigest "github.com/opencontainers/go-digest"
)

// Size is the number of bytes in a SHA-256 hash.
const Size = sha256.Size

// ErrInvalidDigest is returned when a canonical digest string cannot be parsed.
var ErrInvalidDigest = errors.New("invalid digest")

// Digest identifies an immutable CAS object by the SHA-256 hash of its
// contents together with its size in bytes. Two digests are equal if and
// only if their hash and size are equal; under the SHA-256 collision
// assumption this also means their contents are equal.
type Digest struct {
	Hash [Size]byte
	Size uint64
}

// Compute returns the Digest of b.
func Compute(b []byte) Digest {
	return Digest{Hash: sha256.Sum256(b), Size: uint64(len(b))}
}

// FromReader streams r, returning its Digest without buffering the whole
// content in memory.
func FromReader(r io.Reader) (Digest, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Digest{}, fmt.Errorf("digest: failed to read content: %w", err)
	}
	var d Digest
	copy(d.Hash[:], h.Sum(nil))
	d.Size = uint64(n)
	return d, nil
}

// String renders the canonical "<hex>/<size>" form.
func (d Digest) String() string {
	return hex.EncodeToString(d.Hash[:]) + "/" + strconv.FormatUint(d.Size, 10)
}

// Hex returns the lowercase hex-encoded hash, with no size suffix.
func (d Digest) Hex() string {
	return hex.EncodeToString(d.Hash[:])
}

// IsZero reports whether d is the zero Digest (no hash, no size).
func (d Digest) IsZero() bool {
	return d.Size == 0 && d.Hash == [Size]byte{}
}

// Compare orders digests by hash first, then by size, giving a total order
// suitable for stable sorting of object listings.
func Compare(a, b Digest) int {
	if c := strings.Compare(string(a.Hash[:]), string(b.Hash[:])); c != 0 {
		return c
	}
	switch {
	case a.Size < b.Size:
		return -1
	case a.Size > b.Size:
		return 1
	default:
		return 0
	}
}

// Parse parses the canonical "<hex>/<size>" form produced by String.
func Parse(s string) (Digest, error) {
	hexPart, sizePart, ok := strings.Cut(s, "/")
	if !ok {
		return Digest{}, fmt.Errorf("%w: %q: missing '/' separator", ErrInvalidDigest, s)
	}
	raw, err := hex.DecodeString(hexPart)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %q: %w", ErrInvalidDigest, s, err)
	}
	if len(raw) != Size {
		return Digest{}, fmt.Errorf("%w: %q: expected %d hash bytes, got %d", ErrInvalidDigest, s, Size, len(raw))
	}
	size, err := strconv.ParseUint(sizePart, 10, 64)
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %q: %w", ErrInvalidDigest, s, err)
	}
	var d Digest
	copy(d.Hash[:], raw)
	d.Size = size
	return d, nil
}

// ToOCI converts d to the opencontainers/go-digest representation used at
// the remote-protocol boundary, where digests are exchanged alongside
// SHA-256-identified OCI blobs.
func (d Digest) ToOCI() ocidigest.Digest {
	return ocidigest.NewDigestFromBytes(ocidigest.SHA256, d.Hash[:])
}

// FromOCI validates and converts an opencontainers/go-digest value into a
// Digest, rejecting any algorithm other than SHA-256 (the only digest
// function this store negotiates, per the Capabilities.Get contract).
func FromOCI(d ocidigest.Digest, size uint64) (Digest, error) {
	if err := d.Validate(); err != nil {
		return Digest{}, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
	}
	if d.Algorithm() != ocidigest.SHA256 {
		return Digest{}, fmt.Errorf("%w: unsupported digest algorithm %q", ErrInvalidDigest, d.Algorithm())
	}
	raw, err := hex.DecodeString(d.Encoded())
	if err != nil {
		return Digest{}, fmt.Errorf("%w: %w", ErrInvalidDigest, err)
	}
	var out Digest
	copy(out.Hash[:], raw)
	out.Size = size
	return out, nil
}
