package casremote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/buildstream-go/buildstream/internal/cas"
	"github.com/buildstream-go/buildstream/internal/casremote/pb"
	"github.com/buildstream-go/buildstream/internal/digest"
)

// chunkSize bounds a single ByteStream frame to a 1 MiB limit.
const chunkSize = 1 << 20

// defaultMaxBatchTotalSize is the batch-size limit Capabilities.Get
// advertises when the server is not configured with one explicitly.
const defaultMaxBatchTotalSize = 1 << 20

// Server answers the CAS remote protocol against a local cas.Store.
type Server struct {
	Store                  *cas.Store
	MaxBatchTotalSizeBytes uint64
	AllowPush              bool
	Logger                 *slog.Logger
}

// NewServer constructs a Server over store with a conservative default
// batch size and push disabled; callers flip AllowPush for a push-capable
// remote.
func NewServer(store *cas.Store) *Server {
	return &Server{
		Store:                  store,
		MaxBatchTotalSizeBytes: defaultMaxBatchTotalSize,
		Logger:                 slog.Default(),
	}
}

// Serve accepts connections on ln until ctx is cancelled, handling each on
// its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("casremote: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.Logger.Warn("casremote: connection read failed", "error", err)
			}
			return
		}
		if err := s.dispatch(conn, req); err != nil {
			s.Logger.Warn("casremote: request failed", "method", req.method, "error", err)
			return
		}
	}
}

func (s *Server) dispatch(conn net.Conn, req frame) error {
	switch req.method {
	case methodCapabilitiesGet:
		return s.handleCapabilities(conn)
	case methodFindMissing:
		return s.handleFindMissing(conn, req.payload)
	case methodBatchRead:
		return s.handleBatchRead(conn, req.payload)
	case methodBatchUpdate:
		return s.handleBatchUpdate(conn, req.payload)
	case methodByteStreamRead:
		return s.handleByteStreamRead(conn, req.payload)
	case methodByteStreamWriteChunk:
		return s.handleByteStreamWrite(conn, req.payload)
	case methodRefGet:
		return s.handleRefGet(conn, req.payload)
	case methodRefUpdate:
		return s.handleRefUpdate(conn, req.payload)
	case methodRefStatus:
		return s.handleRefStatus(conn)
	default:
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusUnimplemented}.Marshal())
	}
}

func (s *Server) handleCapabilities(conn net.Conn) error {
	resp := pb.CapabilitiesResponse{
		MaxBatchTotalSizeBytes: s.MaxBatchTotalSizeBytes,
		DigestFunction:         "SHA256",
	}
	return writeFrame(conn, methodCapabilitiesGet, resp.Marshal())
}

func (s *Server) handleFindMissing(conn net.Conn, payload []byte) error {
	req, err := pb.UnmarshalFindMissingRequest(payload)
	if err != nil {
		return err
	}
	var missing []pb.Digest
	for _, wd := range req.Digests {
		d, err := toDigest(wd)
		if err != nil {
			return err
		}
		if !s.Store.Contains(d) {
			missing = append(missing, wd)
		}
	}
	return writeFrame(conn, methodFindMissing, pb.FindMissingResponse{MissingDigests: missing}.Marshal())
}

func (s *Server) handleBatchRead(conn net.Conn, payload []byte) error {
	req, err := pb.UnmarshalBatchReadRequest(payload)
	if err != nil {
		return err
	}
	resp := pb.BatchReadResponse{}
	for _, wd := range req.Digests {
		entry := pb.BatchReadResponseEntry{Digest: wd}
		d, err := toDigest(wd)
		if err != nil {
			entry.Status = StatusFailedPrecondition
			resp.Responses = append(resp.Responses, entry)
			continue
		}
		data, err := s.Store.ReadAndVerify(d)
		switch {
		case errors.Is(err, cas.ErrNotFound):
			entry.Status = StatusNotFound
		case errors.Is(err, cas.ErrCorruptObject):
			entry.Status = StatusFailedPrecondition
		case err != nil:
			entry.Status = StatusFailedPrecondition
		default:
			entry.Status = StatusOK
			entry.Data = data
		}
		resp.Responses = append(resp.Responses, entry)
	}
	return writeFrame(conn, methodBatchRead, resp.Marshal())
}

func (s *Server) handleBatchUpdate(conn net.Conn, payload []byte) error {
	req, err := pb.UnmarshalBatchUpdateRequest(payload)
	if err != nil {
		return err
	}
	resp := pb.BatchUpdateResponse{}
	for _, blob := range req.Blobs {
		entry := pb.BatchUpdateResponseEntry{Digest: blob.Digest}
		switch {
		case !s.AllowPush:
			entry.Status = StatusPermissionDenied
		default:
			wantDigest, err := toDigest(blob.Digest)
			if err != nil {
				entry.Status = StatusFailedPrecondition
				break
			}
			got, err := s.Store.AddBlob(bytes.NewReader(blob.Data))
			switch {
			case err != nil:
				entry.Status = StatusResourceExhausted
			case got != wantDigest:
				entry.Status = StatusFailedPrecondition
			default:
				entry.Status = StatusOK
			}
		}
		resp.Responses = append(resp.Responses, entry)
	}
	return writeFrame(conn, methodBatchUpdate, resp.Marshal())
}

func (s *Server) handleByteStreamRead(conn net.Conn, payload []byte) error {
	req, err := pb.UnmarshalReadRequest(payload)
	if err != nil {
		return err
	}
	d, err := ParseBlobResource(req.ResourceName)
	if err != nil {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusFailedPrecondition}.Marshal())
	}
	r, err := s.Store.ReadBlob(d)
	if err != nil {
		if errors.Is(err, cas.ErrNotFound) {
			return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusNotFound}.Marshal())
		}
		return err
	}
	defer r.Close()
	if req.ReadOffset > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(req.ReadOffset)); err != nil {
			return fmt.Errorf("casremote: seek to offset %d: %w", req.ReadOffset, err)
		}
	}
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := writeFrame(conn, methodByteStreamReadChunk, pb.ReadChunk{Data: append([]byte(nil), buf[:n]...)}.Marshal()); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("casremote: stream read: %w", err)
		}
	}
}

func (s *Server) handleByteStreamWrite(conn net.Conn, payload []byte) error {
	chunk, err := pb.UnmarshalWriteChunk(payload)
	if err != nil {
		return err
	}
	wantDigest, err := ParseUploadResource(chunk.ResourceName)
	if err != nil {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusFailedPrecondition}.Marshal())
	}
	if !s.AllowPush {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusPermissionDenied}.Marshal())
	}

	buf := bytes.NewBuffer(chunk.Data)
	for !chunk.FinishWrite {
		next, err := readFrame(conn)
		if err != nil {
			// The stream ended (EOF or otherwise) without a finishing
			// chunk; report FailedPrecondition rather than just dropping
			// the connection silently.
			return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusFailedPrecondition}.Marshal())
		}
		chunk, err = pb.UnmarshalWriteChunk(next.payload)
		if err != nil {
			return err
		}
		buf.Write(chunk.Data)
	}

	if uint64(buf.Len()) != wantDigest.Size {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusFailedPrecondition}.Marshal())
	}
	got, err := s.Store.AddBlob(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("casremote: stage uploaded blob: %w", err)
	}
	if got != wantDigest {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusFailedPrecondition}.Marshal())
	}
	return writeFrame(conn, methodByteStreamWriteResponse, pb.WriteResponse{CommittedSize: uint64(buf.Len())}.Marshal())
}

func (s *Server) handleRefGet(conn net.Conn, payload []byte) error {
	req, err := pb.UnmarshalRefGetRequest(payload)
	if err != nil {
		return err
	}
	d, err := s.Store.ResolveRef(req.Key)
	if errors.Is(err, cas.ErrNotFound) {
		return writeFrame(conn, methodRefGet, pb.RefGetResponse{Found: false}.Marshal())
	}
	if err != nil {
		return err
	}
	return writeFrame(conn, methodRefGet, pb.RefGetResponse{Digest: fromDigest(d), Found: true}.Marshal())
}

func (s *Server) handleRefUpdate(conn net.Conn, payload []byte) error {
	req, err := pb.UnmarshalRefUpdateRequest(payload)
	if err != nil {
		return err
	}
	if !s.AllowPush {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusPermissionDenied}.Marshal())
	}
	d, err := toDigest(req.Digest)
	if err != nil {
		return writeFrame(conn, methodError, pb.StatusOnly{Status: StatusFailedPrecondition}.Marshal())
	}
	if err := s.Store.SetRef(req.Key, d); err != nil {
		return fmt.Errorf("casremote: set ref %q: %w", req.Key, err)
	}
	return writeFrame(conn, methodRefUpdate, pb.StatusOnly{Status: StatusOK}.Marshal())
}

func (s *Server) handleRefStatus(conn net.Conn) error {
	return writeFrame(conn, methodRefStatus, pb.RefStatusResponse{AllowUpdates: s.AllowPush}.Marshal())
}

func toDigest(wd pb.Digest) (digest.Digest, error) {
	return digest.Parse(fmt.Sprintf("%x/%d", wd.Hash, wd.SizeBytes))
}

func fromDigest(d digest.Digest) pb.Digest {
	return pb.Digest{Hash: append([]byte(nil), d.Hash[:]...), SizeBytes: d.Size}
}
