package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDigest() Digest {
	return Digest{Hash: []byte{0xde, 0xad, 0xbe, 0xef}, SizeBytes: 42}
}

func TestDigestRoundTrip(t *testing.T) {
	raw := appendDigest(nil, 1, sampleDigest())
	fields, err := walkFields(raw)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	got, err := fields[0].asDigest()
	require.NoError(t, err)
	assert.Equal(t, sampleDigest(), got)
}

func TestFindMissingRoundTrip(t *testing.T) {
	req := FindMissingRequest{Digests: []Digest{sampleDigest(), {Hash: []byte{1, 2}, SizeBytes: 7}}}
	got, err := UnmarshalFindMissingRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req, got)

	resp := FindMissingResponse{MissingDigests: []Digest{sampleDigest()}}
	gotResp, err := UnmarshalFindMissingResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp, gotResp)
}

func TestBatchReadRoundTrip(t *testing.T) {
	req := BatchReadRequest{Digests: []Digest{sampleDigest()}}
	gotReq, err := UnmarshalBatchReadRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req, gotReq)

	resp := BatchReadResponse{Responses: []BatchReadResponseEntry{
		{Digest: sampleDigest(), Data: []byte("hello"), Status: "OK"},
		{Digest: Digest{Hash: []byte{9}, SizeBytes: 1}, Status: "NotFound"},
	}}
	gotResp, err := UnmarshalBatchReadResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp, gotResp)
}

func TestBatchUpdateRoundTrip(t *testing.T) {
	req := BatchUpdateRequest{Blobs: []BatchUpdateBlob{
		{Digest: sampleDigest(), Data: []byte("payload")},
	}}
	gotReq, err := UnmarshalBatchUpdateRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req, gotReq)

	resp := BatchUpdateResponse{Responses: []BatchUpdateResponseEntry{
		{Digest: sampleDigest(), Status: "OK"},
	}}
	gotResp, err := UnmarshalBatchUpdateResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp, gotResp)
}

func TestReadRequestAndChunkRoundTrip(t *testing.T) {
	req := ReadRequest{ResourceName: "blobs/deadbeef/42", ReadOffset: 10}
	got, err := UnmarshalReadRequest(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req, got)

	chunk := ReadChunk{Data: []byte("chunk-data")}
	gotChunk, err := UnmarshalReadChunk(chunk.Marshal())
	require.NoError(t, err)
	assert.Equal(t, chunk, gotChunk)
}

func TestWriteChunkRoundTrip(t *testing.T) {
	chunk := WriteChunk{
		ResourceName: "uploads/123/blobs/deadbeef/42",
		WriteOffset:  4,
		Data:         []byte("rest"),
		FinishWrite:  true,
	}
	got, err := UnmarshalWriteChunk(chunk.Marshal())
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	resp := WriteResponse{CommittedSize: 42}
	gotResp, err := UnmarshalWriteResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp, gotResp)
}

func TestRefMessagesRoundTrip(t *testing.T) {
	getReq := RefGetRequest{Key: "project/element/abc123"}
	gotGetReq, err := UnmarshalRefGetRequest(getReq.Marshal())
	require.NoError(t, err)
	assert.Equal(t, getReq, gotGetReq)

	getResp := RefGetResponse{Digest: sampleDigest(), Found: true}
	gotGetResp, err := UnmarshalRefGetResponse(getResp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, getResp, gotGetResp)

	updateReq := RefUpdateRequest{Key: "project/element/abc123", Digest: sampleDigest()}
	gotUpdateReq, err := UnmarshalRefUpdateRequest(updateReq.Marshal())
	require.NoError(t, err)
	assert.Equal(t, updateReq, gotUpdateReq)

	statusResp := RefStatusResponse{AllowUpdates: true}
	gotStatusResp, err := UnmarshalRefStatusResponse(statusResp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, statusResp, gotStatusResp)
}

func TestCapabilitiesResponseRoundTrip(t *testing.T) {
	resp := CapabilitiesResponse{MaxBatchTotalSizeBytes: 1 << 20, DigestFunction: "SHA256"}
	got, err := UnmarshalCapabilitiesResponse(resp.Marshal())
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestStatusOnlyRoundTrip(t *testing.T) {
	s := StatusOnly{Status: "PermissionDenied"}
	got, err := UnmarshalStatusOnly(s.Marshal())
	require.NoError(t, err)
	assert.Equal(t, s, got)
}
