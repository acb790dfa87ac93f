package casremote

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/buildstream-go/buildstream/internal/casremote/pb"
	"github.com/buildstream-go/buildstream/internal/digest"
)

// ErrRemoteDenied is returned when the server reports PermissionDenied for
// a push-type operation.
var ErrRemoteDenied = errors.New("casremote: permission denied by remote")

// ErrRemoteNotFound is returned when the server reports NotFound for a
// fetch-type operation.
var ErrRemoteNotFound = errors.New("casremote: object not found on remote")

// Client is a connection to one CAS remote. It holds no lock and is not safe
// for concurrent use; this package provides no pool of Clients.
type Client struct {
	conn         net.Conn
	capabilities pb.CapabilitiesResponse
}

// Dial opens a Client over conn and probes Capabilities.Get, implementing
//  "capability probing at connect time" so the batch/
// streaming cutover threshold is known before the first transfer.
func Dial(conn net.Conn) (*Client, error) {
	c := &Client{conn: conn}
	if err := writeFrame(conn, methodCapabilitiesGet, nil); err != nil {
		return nil, err
	}
	resp, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("casremote: capabilities probe: %w", err)
	}
	caps, err := pb.UnmarshalCapabilitiesResponse(resp.payload)
	if err != nil {
		return nil, err
	}
	c.capabilities = caps
	return c, nil
}

// MaxBatchTotalSizeBytes is the server-advertised batch-size limit
// negotiated at Dial time.
func (c *Client) MaxBatchTotalSizeBytes() uint64 { return c.capabilities.MaxBatchTotalSizeBytes }

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// FindMissing returns the subset of digests the remote does not hold.
func (c *Client) FindMissing(digests []digest.Digest) ([]digest.Digest, error) {
	req := pb.FindMissingRequest{Digests: toWireDigests(digests)}
	if err := writeFrame(c.conn, methodFindMissing, req.Marshal()); err != nil {
		return nil, err
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	out, err := pb.UnmarshalFindMissingResponse(resp.payload)
	if err != nil {
		return nil, err
	}
	return fromWireDigests(out.MissingDigests)
}

// BatchRead fetches every digest in one round trip. Callers are
// responsible for keeping the total requested size within
// MaxBatchTotalSizeBytes.
func (c *Client) BatchRead(digests []digest.Digest) (map[digest.Digest][]byte, error) {
	req := pb.BatchReadRequest{Digests: toWireDigests(digests)}
	if err := writeFrame(c.conn, methodBatchRead, req.Marshal()); err != nil {
		return nil, err
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	out, err := pb.UnmarshalBatchReadResponse(resp.payload)
	if err != nil {
		return nil, err
	}
	result := make(map[digest.Digest][]byte, len(out.Responses))
	for _, entry := range out.Responses {
		d, err := fromWireDigest(entry.Digest)
		if err != nil {
			return nil, err
		}
		if entry.Status != StatusOK {
			return nil, mapStatusErr(entry.Status, d)
		}
		result[d] = entry.Data
	}
	return result, nil
}

// BatchUpdate uploads every blob in one round trip.
func (c *Client) BatchUpdate(blobs map[digest.Digest][]byte) error {
	req := pb.BatchUpdateRequest{}
	for d, data := range blobs {
		req.Blobs = append(req.Blobs, pb.BatchUpdateBlob{Digest: fromDigest(d), Data: data})
	}
	if err := writeFrame(c.conn, methodBatchUpdate, req.Marshal()); err != nil {
		return err
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return err
	}
	out, err := pb.UnmarshalBatchUpdateResponse(resp.payload)
	if err != nil {
		return err
	}
	for _, entry := range out.Responses {
		if entry.Status != StatusOK {
			d, _ := fromWireDigest(entry.Digest)
			return mapStatusErr(entry.Status, d)
		}
	}
	return nil
}

// ReadBlob streams a single object via ByteStream.Read, for objects larger
// than the negotiated batch limit.
func (c *Client) ReadBlob(d digest.Digest) ([]byte, error) {
	req := pb.ReadRequest{ResourceName: FormatBlobResource(d)}
	if err := writeFrame(c.conn, methodByteStreamRead, req.Marshal()); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for uint64(buf.Len()) < d.Size {
		f, err := readFrame(c.conn)
		if err != nil {
			return nil, err
		}
		if f.method == methodError {
			status, _ := pb.UnmarshalStatusOnly(f.payload)
			return nil, mapStatusErr(status.Status, d)
		}
		chunk, err := pb.UnmarshalReadChunk(f.payload)
		if err != nil {
			return nil, err
		}
		buf.Write(chunk.Data)
	}
	return buf.Bytes(), nil
}

// WriteBlob streams a single object via ByteStream.Write, chunking data
// into ≤1 MiB frames and marking the last one FinishWrite.
func (c *Client) WriteBlob(d digest.Digest, r io.Reader) error {
	resource := FormatUploadResource(d)
	buf := make([]byte, chunkSize)
	var offset uint64
	first := true
	for {
		n, err := io.ReadFull(r, buf)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return fmt.Errorf("casremote: read upload content: %w", err)
		}
		isLast := err == io.EOF || err == io.ErrUnexpectedEOF || uint64(n) < chunkSize
		chunk := pb.WriteChunk{
			WriteOffset: offset,
			Data:        append([]byte(nil), buf[:n]...),
			FinishWrite: isLast,
		}
		if first {
			chunk.ResourceName = resource
			first = false
		}
		if werr := writeFrame(c.conn, methodByteStreamWriteChunk, chunk.Marshal()); werr != nil {
			return werr
		}
		offset += uint64(n)
		if isLast {
			break
		}
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return err
	}
	if resp.method == methodError {
		status, _ := pb.UnmarshalStatusOnly(resp.payload)
		return mapStatusErr(status.Status, d)
	}
	out, err := pb.UnmarshalWriteResponse(resp.payload)
	if err != nil {
		return err
	}
	if out.CommittedSize != d.Size {
		return fmt.Errorf("%w: committed %d bytes, want %d", ErrRemoteDenied, out.CommittedSize, d.Size)
	}
	return nil
}

// RefGet resolves a named reference against the remote.
func (c *Client) RefGet(key string) (digest.Digest, bool, error) {
	req := pb.RefGetRequest{Key: key}
	if err := writeFrame(c.conn, methodRefGet, req.Marshal()); err != nil {
		return digest.Digest{}, false, err
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return digest.Digest{}, false, err
	}
	out, err := pb.UnmarshalRefGetResponse(resp.payload)
	if err != nil {
		return digest.Digest{}, false, err
	}
	if !out.Found {
		return digest.Digest{}, false, nil
	}
	d, err := fromWireDigest(out.Digest)
	return d, true, err
}

// RefUpdate writes a named reference on the remote.
func (c *Client) RefUpdate(key string, d digest.Digest) error {
	req := pb.RefUpdateRequest{Key: key, Digest: fromDigest(d)}
	if err := writeFrame(c.conn, methodRefUpdate, req.Marshal()); err != nil {
		return err
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return err
	}
	if resp.method == methodError {
		status, _ := pb.UnmarshalStatusOnly(resp.payload)
		return mapStatusErr(status.Status, d)
	}
	return nil
}

// RefStatus reports whether the remote currently accepts Ref.Update calls.
func (c *Client) RefStatus() (bool, error) {
	if err := writeFrame(c.conn, methodRefStatus, nil); err != nil {
		return false, err
	}
	resp, err := readFrame(c.conn)
	if err != nil {
		return false, err
	}
	out, err := pb.UnmarshalRefStatusResponse(resp.payload)
	if err != nil {
		return false, err
	}
	return out.AllowUpdates, nil
}

func mapStatusErr(status string, d digest.Digest) error {
	switch status {
	case StatusNotFound:
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, d)
	case StatusPermissionDenied:
		return fmt.Errorf("%w: %s", ErrRemoteDenied, d)
	default:
		return fmt.Errorf("casremote: remote returned %s for %s", status, d)
	}
}

func toWireDigests(digests []digest.Digest) []pb.Digest {
	out := make([]pb.Digest, len(digests))
	for i, d := range digests {
		out[i] = fromDigest(d)
	}
	return out
}

func fromWireDigests(wire []pb.Digest) ([]digest.Digest, error) {
	out := make([]digest.Digest, len(wire))
	for i, wd := range wire {
		d, err := fromWireDigest(wd)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

func fromWireDigest(wd pb.Digest) (digest.Digest, error) {
	return toDigest(wd)
}
