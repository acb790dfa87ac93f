package casremote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/digest"
)

func TestBlobResourceRoundTrip(t *testing.T) {
	d := digest.Compute([]byte("hello world"))
	name := FormatBlobResource(d)
	assert.Regexp(t, `^blobs/[0-9a-f]{64}/\d+$`, name)

	got, err := ParseBlobResource(name)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestParseBlobResourceRejectsMalformed(t *testing.T) {
	_, err := ParseBlobResource("not-a-blob-resource")
	assert.Error(t, err)
}

func TestUploadResourceRoundTrip(t *testing.T) {
	d := digest.Compute([]byte("upload me"))
	name := FormatUploadResource(d)
	assert.Regexp(t, `^uploads/[0-9a-f-]{36}/blobs/[0-9a-f]{64}/\d+$`, name)

	got, err := ParseUploadResource(name)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestParseUploadResourceRejectsBadUUID(t *testing.T) {
	_, err := ParseUploadResource("uploads/not-a-uuid/blobs/ab/1")
	assert.Error(t, err)
}
