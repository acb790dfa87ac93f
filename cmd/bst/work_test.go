package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/cas"
	"github.com/buildstream-go/buildstream/internal/digest"
)

func TestArtifactRefKeyNamespacesByElementID(t *testing.T) {
	assert.Equal(t, "artifact/hello.bst", artifactRefKey("hello.bst"))
}

func TestSandboxDirPatternStripsUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "sub-hello-bst-*", sandboxDirPattern("sub:hello.bst"))
}

func TestStoreAndLookupArtifactRoundTrip(t *testing.T) {
	store, err := cas.Open(filepath.Join(t.TempDir(), "cas"))
	require.NoError(t, err)

	_, found, err := lookupArtifact(store, "hello.bst")
	require.NoError(t, err)
	assert.False(t, found)

	rec := artifactRecord{StrongKey: "deadbeef", Tree: digest.Digest{Size: 1}}
	require.NoError(t, storeArtifact(store, "hello.bst", rec))

	got, found, err := lookupArtifact(store, "hello.bst")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec, got)
}

func TestCollectTreeBlobsWalksNestedDirectories(t *testing.T) {
	store, err := cas.Open(filepath.Join(t.TempDir(), "cas"))
	require.NoError(t, err)

	fileDigest, err := store.AddBlob(newReader([]byte("hello")))
	require.NoError(t, err)

	subTree, err := store.AddTree([]cas.TreeEntry{
		{Name: "a.txt", Type: cas.EntryFile, Mode: 0o644, Digest: fileDigest},
	})
	require.NoError(t, err)

	rootTree, err := store.AddTree([]cas.TreeEntry{
		{Name: "sub", Type: cas.EntryDirectory, Mode: 0o755, Digest: subTree},
	})
	require.NoError(t, err)

	blobs, err := collectTreeBlobs(store, rootTree)
	require.NoError(t, err)
	assert.Contains(t, blobs, rootTree)
	assert.Contains(t, blobs, subTree)
	assert.Contains(t, blobs, fileDigest)
}
