package casremote

import (
	"bytes"
	"fmt"

	"github.com/buildstream-go/buildstream/internal/digest"
)

// Fetch retrieves every digest in digests from the remote, applying the
// batch/streaming cutover of : digests larger than the
// negotiated batch limit go through ByteStream.Read individually; the rest
// are queued into BatchRead calls until a batch would exceed the limit,
// then flushed.
func (c *Client) Fetch(digests []digest.Digest) (map[digest.Digest][]byte, error) {
	limit := c.MaxBatchTotalSizeBytes()
	if limit == 0 {
		limit = defaultMaxBatchTotalSize
	}

	result := make(map[digest.Digest][]byte, len(digests))
	var batch []digest.Digest
	var batchSize uint64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		data, err := c.BatchRead(batch)
		if err != nil {
			return err
		}
		for d, b := range data {
			result[d] = b
		}
		batch = nil
		batchSize = 0
		return nil
	}

	for _, d := range digests {
		if d.Size > limit {
			data, err := c.ReadBlob(d)
			if err != nil {
				return nil, err
			}
			result[d] = data
			continue
		}
		if batchSize+d.Size > limit {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, d)
		batchSize += d.Size
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return result, nil
}

// Push uploads every blob in blobs to the remote, applying the same
// batch/streaming cutover as Fetch.
func (c *Client) Push(blobs map[digest.Digest][]byte) error {
	limit := c.MaxBatchTotalSizeBytes()
	if limit == 0 {
		limit = defaultMaxBatchTotalSize
	}

	batch := make(map[digest.Digest][]byte)
	var batchSize uint64

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := c.BatchUpdate(batch); err != nil {
			return err
		}
		batch = make(map[digest.Digest][]byte)
		batchSize = 0
		return nil
	}

	for d, data := range blobs {
		if uint64(len(data)) != d.Size {
			return fmt.Errorf("casremote: blob %s has %d bytes, digest declares %d", d, len(data), d.Size)
		}
		if d.Size > limit {
			if err := c.WriteBlob(d, bytes.NewReader(data)); err != nil {
				return err
			}
			continue
		}
		if batchSize+d.Size > limit {
			if err := flush(); err != nil {
				return err
			}
		}
		batch[d] = data
		batchSize += d.Size
	}
	return flush()
}
