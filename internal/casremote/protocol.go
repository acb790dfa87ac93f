// Package casremote implements a CAS remote protocol: a bidirectional,
// length-delimited RPC channel exposing Capabilities, CAS batch
// operations, ByteStream chunked transfer, and named references.
//
// Framing is not itself part of the protobuf wire format (protobuf messages
// carry no self-delimiting length), so each frame is a fixed-width
// big-endian length prefix around an opaque payload, the conventional way
// length-delimited protobuf is carried over a raw net.Conn rather than
// gRPC's HTTP/2 framing.
package casremote

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame, guarding against a corrupt or
// malicious length prefix causing an unbounded allocation.
const maxFrameSize = 64 << 20

// method identifies which RPC a frame carries.
type method byte

const (
	methodCapabilitiesGet method = iota + 1
	methodFindMissing
	methodBatchRead
	methodBatchUpdate
	methodByteStreamRead
	methodByteStreamReadChunk
	methodByteStreamWriteChunk
	methodByteStreamWriteResponse
	methodRefGet
	methodRefUpdate
	methodRefStatus
	methodError
)

// frame is one (method, payload) unit on the wire.
type frame struct {
	method  method
	payload []byte
}

// writeFrame writes m as a single frame: 1 byte method, 4 byte big-endian
// length, then payload.
func writeFrame(w io.Writer, m method, payload []byte) error {
	header := make([]byte, 5)
	header[0] = byte(m)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("casremote: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("casremote: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one frame written by writeFrame.
func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	n := binary.BigEndian.Uint32(header[1:])
	if n > maxFrameSize {
		return frame{}, fmt.Errorf("casremote: frame of %d bytes exceeds maximum %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return frame{}, fmt.Errorf("casremote: read frame payload: %w", err)
		}
	}
	return frame{method: method(header[0]), payload: payload}, nil
}

// errorStatus enumerates the status names carried in a methodError frame
// or a batch entry's Status field.
const (
	StatusOK                 = "OK"
	StatusNotFound           = "NotFound"
	StatusFailedPrecondition = "FailedPrecondition"
	StatusResourceExhausted  = "ResourceExhausted"
	StatusPermissionDenied   = "PermissionDenied"
	StatusUnimplemented      = "Unimplemented"
)
