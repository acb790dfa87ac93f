package casremote

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/buildstream-go/buildstream/internal/digest"
)

// FormatBlobResource renders the ByteStream.Read resource name:
// "blobs/<hash>/<size>".
func FormatBlobResource(d digest.Digest) string {
	return fmt.Sprintf("blobs/%s/%d", d.Hex(), d.Size)
}

// ParseBlobResource parses a "blobs/<hash>/<size>" resource name.
func ParseBlobResource(name string) (digest.Digest, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[0] != "blobs" {
		return digest.Digest{}, fmt.Errorf("casremote: malformed blob resource name %q", name)
	}
	return digestFromHexSize(parts[1], parts[2])
}

// FormatUploadResource renders the ByteStream.Write resource name:
// "uploads/<uuid-v4>/blobs/<hash>/<size>".
func FormatUploadResource(d digest.Digest) string {
	return fmt.Sprintf("uploads/%s/blobs/%s/%d", uuid.New().String(), d.Hex(), d.Size)
}

// ParseUploadResource parses an "uploads/<uuid>/blobs/<hash>/<size>"
// resource name, returning the target digest.
func ParseUploadResource(name string) (digest.Digest, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 5 || parts[0] != "uploads" || parts[2] != "blobs" {
		return digest.Digest{}, fmt.Errorf("casremote: malformed upload resource name %q", name)
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return digest.Digest{}, fmt.Errorf("casremote: malformed upload resource name %q: %w", name, err)
	}
	return digestFromHexSize(parts[3], parts[4])
}

func digestFromHexSize(hexPart, sizePart string) (digest.Digest, error) {
	size, err := strconv.ParseUint(sizePart, 10, 64)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("casremote: invalid size %q: %w", sizePart, err)
	}
	return digest.Parse(hexPart + "/" + strconv.FormatUint(size, 10))
}
