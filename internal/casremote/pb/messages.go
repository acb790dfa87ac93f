// Package pb hand-encodes the CAS remote protocol's messages on the
// protobuf wire format using google.golang.org/protobuf/encoding/protowire.
// No .proto-generated message types exist for this protocol, so these types
// implement the wire format directly rather than through reflection-based
// marshaling, the way github.com/buildbarn/bb-storage composes protowire
// alongside generated remote-execution messages for its own CAS batching.
package pb

import "google.golang.org/protobuf/encoding/protowire"

// field is one decoded (number, type, raw-value-bytes) triple yielded while
// walking a message's wire bytes.
type field struct {
	num protowire.Number
	typ protowire.Type
	val []byte
}

// walkFields decodes b into its top-level fields, in order. It is the
// shared decode loop every message's Unmarshal below drives with a switch
// over (num, typ).
func walkFields(b []byte) ([]field, error) {
	var fields []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		fields = append(fields, field{num: num, typ: typ, val: b[:m]})
		b = b[m:]
	}
	return fields, nil
}

func (f field) asUint64() (uint64, error) {
	v, n := protowire.ConsumeVarint(f.val)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return v, nil
}

func (f field) asBool() (bool, error) {
	v, err := f.asUint64()
	return v != 0, err
}

func (f field) asBytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(f.val)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return append([]byte(nil), v...), nil
}

func (f field) asString() (string, error) {
	v, n := protowire.ConsumeString(f.val)
	if n < 0 {
		return "", protowire.ParseError(n)
	}
	return v, nil
}

// Digest is the wire form of a content digest: field 1 is the raw SHA-256
// hash bytes, field 2 is the size in bytes.
type Digest struct {
	Hash      []byte
	SizeBytes uint64
}

func (d Digest) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Hash)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, d.SizeBytes)
	return b
}

func appendDigest(b []byte, num protowire.Number, d Digest) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, d.marshal())
}

func unmarshalDigest(raw []byte) (Digest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return Digest{}, err
	}
	var d Digest
	for _, f := range fields {
		switch f.num {
		case 1:
			if d.Hash, err = f.asBytes(); err != nil {
				return Digest{}, err
			}
		case 2:
			if d.SizeBytes, err = f.asUint64(); err != nil {
				return Digest{}, err
			}
		}
	}
	return d, nil
}

func (f field) asDigest() (Digest, error) {
	v, n := protowire.ConsumeBytes(f.val)
	if n < 0 {
		return Digest{}, protowire.ParseError(n)
	}
	return unmarshalDigest(v)
}

// CapabilitiesResponse answers Capabilities.Get: the negotiated batch size
// limit and digest function (always "SHA256" per ).
type CapabilitiesResponse struct {
	MaxBatchTotalSizeBytes uint64
	DigestFunction         string
}

func (m CapabilitiesResponse) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.MaxBatchTotalSizeBytes)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.DigestFunction)
	return b
}

func UnmarshalCapabilitiesResponse(raw []byte) (CapabilitiesResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return CapabilitiesResponse{}, err
	}
	var m CapabilitiesResponse
	for _, f := range fields {
		switch f.num {
		case 1:
			if m.MaxBatchTotalSizeBytes, err = f.asUint64(); err != nil {
				return m, err
			}
		case 2:
			if m.DigestFunction, err = f.asString(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// FindMissingRequest carries the digest.size of every blob CAS.FindMissing
// should check for presence.
type FindMissingRequest struct {
	Digests []Digest
}

func (m FindMissingRequest) Marshal() []byte {
	var b []byte
	for _, d := range m.Digests {
		b = appendDigest(b, 1, d)
	}
	return b
}

func UnmarshalFindMissingRequest(raw []byte) (FindMissingRequest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return FindMissingRequest{}, err
	}
	var m FindMissingRequest
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		d, err := f.asDigest()
		if err != nil {
			return m, err
		}
		m.Digests = append(m.Digests, d)
	}
	return m, nil
}

// FindMissingResponse is the subset of the request's digests the server
// does not hold.
type FindMissingResponse struct {
	MissingDigests []Digest
}

func (m FindMissingResponse) Marshal() []byte {
	var b []byte
	for _, d := range m.MissingDigests {
		b = appendDigest(b, 1, d)
	}
	return b
}

func UnmarshalFindMissingResponse(raw []byte) (FindMissingResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return FindMissingResponse{}, err
	}
	var m FindMissingResponse
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		d, err := f.asDigest()
		if err != nil {
			return m, err
		}
		m.MissingDigests = append(m.MissingDigests, d)
	}
	return m, nil
}

// BatchReadRequest carries the digests CAS.BatchRead should return in one
// round trip; callers are responsible for keeping the total requested size
// under the negotiated batch limit.
type BatchReadRequest struct {
	Digests []Digest
}

func (m BatchReadRequest) Marshal() []byte {
	var b []byte
	for _, d := range m.Digests {
		b = appendDigest(b, 1, d)
	}
	return b
}

func UnmarshalBatchReadRequest(raw []byte) (BatchReadRequest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchReadRequest{}, err
	}
	var m BatchReadRequest
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		d, err := f.asDigest()
		if err != nil {
			return m, err
		}
		m.Digests = append(m.Digests, d)
	}
	return m, nil
}

// BatchReadResponseEntry is the per-digest result of a BatchRead: either
// Data is populated, or Status carries an error code name.
type BatchReadResponseEntry struct {
	Digest Digest
	Data   []byte
	Status string
}

func (e BatchReadResponseEntry) marshal() []byte {
	var b []byte
	b = appendDigest(b, 1, e.Digest)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Data)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, e.Status)
	return b
}

func unmarshalBatchReadResponseEntry(raw []byte) (BatchReadResponseEntry, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchReadResponseEntry{}, err
	}
	var e BatchReadResponseEntry
	for _, f := range fields {
		switch f.num {
		case 1:
			if e.Digest, err = f.asDigest(); err != nil {
				return e, err
			}
		case 2:
			if e.Data, err = f.asBytes(); err != nil {
				return e, err
			}
		case 3:
			if e.Status, err = f.asString(); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

// BatchReadResponse is the result of a CAS.BatchRead call.
type BatchReadResponse struct {
	Responses []BatchReadResponseEntry
}

func (m BatchReadResponse) Marshal() []byte {
	var b []byte
	for _, e := range m.Responses {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, e.marshal())
	}
	return b
}

func UnmarshalBatchReadResponse(raw []byte) (BatchReadResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchReadResponse{}, err
	}
	var m BatchReadResponse
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		v, n := protowire.ConsumeBytes(f.val)
		if n < 0 {
			return m, protowire.ParseError(n)
		}
		e, err := unmarshalBatchReadResponseEntry(v)
		if err != nil {
			return m, err
		}
		m.Responses = append(m.Responses, e)
	}
	return m, nil
}

// BatchUpdateBlob is one digest+content pair CAS.BatchUpdate uploads.
type BatchUpdateBlob struct {
	Digest Digest
	Data   []byte
}

func (e BatchUpdateBlob) marshal() []byte {
	var b []byte
	b = appendDigest(b, 1, e.Digest)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Data)
	return b
}

func unmarshalBatchUpdateBlob(raw []byte) (BatchUpdateBlob, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchUpdateBlob{}, err
	}
	var e BatchUpdateBlob
	for _, f := range fields {
		switch f.num {
		case 1:
			if e.Digest, err = f.asDigest(); err != nil {
				return e, err
			}
		case 2:
			if e.Data, err = f.asBytes(); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

// BatchUpdateRequest is the payload of a CAS.BatchUpdate call.
type BatchUpdateRequest struct {
	Blobs []BatchUpdateBlob
}

func (m BatchUpdateRequest) Marshal() []byte {
	var b []byte
	for _, blob := range m.Blobs {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, blob.marshal())
	}
	return b
}

func UnmarshalBatchUpdateRequest(raw []byte) (BatchUpdateRequest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchUpdateRequest{}, err
	}
	var m BatchUpdateRequest
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		v, n := protowire.ConsumeBytes(f.val)
		if n < 0 {
			return m, protowire.ParseError(n)
		}
		blob, err := unmarshalBatchUpdateBlob(v)
		if err != nil {
			return m, err
		}
		m.Blobs = append(m.Blobs, blob)
	}
	return m, nil
}

// BatchUpdateResponseEntry reports, per digest, whether the upload was
// accepted ("OK") or rejected (any other gRPC-style status code).
type BatchUpdateResponseEntry struct {
	Digest Digest
	Status string
}

func (e BatchUpdateResponseEntry) marshal() []byte {
	var b []byte
	b = appendDigest(b, 1, e.Digest)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, e.Status)
	return b
}

func unmarshalBatchUpdateResponseEntry(raw []byte) (BatchUpdateResponseEntry, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchUpdateResponseEntry{}, err
	}
	var e BatchUpdateResponseEntry
	for _, f := range fields {
		switch f.num {
		case 1:
			if e.Digest, err = f.asDigest(); err != nil {
				return e, err
			}
		case 2:
			if e.Status, err = f.asString(); err != nil {
				return e, err
			}
		}
	}
	return e, nil
}

// BatchUpdateResponse is the result of a CAS.BatchUpdate call.
type BatchUpdateResponse struct {
	Responses []BatchUpdateResponseEntry
}

func (m BatchUpdateResponse) Marshal() []byte {
	var b []byte
	for _, e := range m.Responses {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, e.marshal())
	}
	return b
}

func UnmarshalBatchUpdateResponse(raw []byte) (BatchUpdateResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return BatchUpdateResponse{}, err
	}
	var m BatchUpdateResponse
	for _, f := range fields {
		if f.num != 1 {
			continue
		}
		v, n := protowire.ConsumeBytes(f.val)
		if n < 0 {
			return m, protowire.ParseError(n)
		}
		e, err := unmarshalBatchUpdateResponseEntry(v)
		if err != nil {
			return m, err
		}
		m.Responses = append(m.Responses, e)
	}
	return m, nil
}

// ReadRequest opens a ByteStream.Read over resource, optionally resuming at ReadOffset.
type ReadRequest struct {
	ResourceName string
	ReadOffset   uint64
}

func (m ReadRequest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.ResourceName)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, m.ReadOffset)
	return b
}

func UnmarshalReadRequest(raw []byte) (ReadRequest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return ReadRequest{}, err
	}
	var m ReadRequest
	for _, f := range fields {
		switch f.num {
		case 1:
			if m.ResourceName, err = f.asString(); err != nil {
				return m, err
			}
		case 2:
			if m.ReadOffset, err = f.asUint64(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// ReadChunk is one frame of a ByteStream.Read response stream, at most 1
// MiB of Data per .
type ReadChunk struct {
	Data []byte
}

func (m ReadChunk) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Data)
	return b
}

func UnmarshalReadChunk(raw []byte) (ReadChunk, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return ReadChunk{}, err
	}
	var m ReadChunk
	for _, f := range fields {
		if f.num == 1 {
			if m.Data, err = f.asBytes(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// WriteChunk is one frame of a ByteStream.Write request stream. Resource is
// only required on the stream's first chunk; subsequent chunks may leave it empty.
type WriteChunk struct {
	ResourceName string
	WriteOffset  uint64
	Data         []byte
	FinishWrite  bool
}

func (m WriteChunk) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.ResourceName)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, m.WriteOffset)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Data)
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToUint(m.FinishWrite))
	return b
}

func UnmarshalWriteChunk(raw []byte) (WriteChunk, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return WriteChunk{}, err
	}
	var m WriteChunk
	for _, f := range fields {
		switch f.num {
		case 1:
			if m.ResourceName, err = f.asString(); err != nil {
				return m, err
			}
		case 2:
			if m.WriteOffset, err = f.asUint64(); err != nil {
				return m, err
			}
		case 3:
			if m.Data, err = f.asBytes(); err != nil {
				return m, err
			}
		case 4:
			if m.FinishWrite, err = f.asBool(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// WriteResponse acknowledges a completed ByteStream.Write with the total
// number of bytes the server committed.
type WriteResponse struct {
	CommittedSize uint64
}

func (m WriteResponse) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, m.CommittedSize)
	return b
}

func UnmarshalWriteResponse(raw []byte) (WriteResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return WriteResponse{}, err
	}
	var m WriteResponse
	for _, f := range fields {
		if f.num == 1 {
			if m.CommittedSize, err = f.asUint64(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// RefGetRequest looks up a named reference.
type RefGetRequest struct {
	Key string
}

func (m RefGetRequest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	return b
}

func UnmarshalRefGetRequest(raw []byte) (RefGetRequest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return RefGetRequest{}, err
	}
	var m RefGetRequest
	for _, f := range fields {
		if f.num == 1 {
			if m.Key, err = f.asString(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// RefGetResponse carries the digest a reference resolves to, or Found=false
// if the key is unset.
type RefGetResponse struct {
	Digest Digest
	Found  bool
}

func (m RefGetResponse) Marshal() []byte {
	var b []byte
	b = appendDigest(b, 1, m.Digest)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToUint(m.Found))
	return b
}

func UnmarshalRefGetResponse(raw []byte) (RefGetResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return RefGetResponse{}, err
	}
	var m RefGetResponse
	for _, f := range fields {
		switch f.num {
		case 1:
			if m.Digest, err = f.asDigest(); err != nil {
				return m, err
			}
		case 2:
			if m.Found, err = f.asBool(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// RefUpdateRequest writes a named reference; requires push permission on
// the server.
type RefUpdateRequest struct {
	Key    string
	Digest Digest
}

func (m RefUpdateRequest) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	b = appendDigest(b, 2, m.Digest)
	return b
}

func UnmarshalRefUpdateRequest(raw []byte) (RefUpdateRequest, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return RefUpdateRequest{}, err
	}
	var m RefUpdateRequest
	for _, f := range fields {
		switch f.num {
		case 1:
			if m.Key, err = f.asString(); err != nil {
				return m, err
			}
		case 2:
			if m.Digest, err = f.asDigest(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// RefStatusResponse answers Ref.Status.
type RefStatusResponse struct {
	AllowUpdates bool
}

func (m RefStatusResponse) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, boolToUint(m.AllowUpdates))
	return b
}

func UnmarshalRefStatusResponse(raw []byte) (RefStatusResponse, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return RefStatusResponse{}, err
	}
	var m RefStatusResponse
	for _, f := range fields {
		if f.num == 1 {
			if m.AllowUpdates, err = f.asBool(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

// StatusOnly carries a bare outcome with no payload: used for responses
// that signal success or failure without other data (e.g. Ref.Update).
type StatusOnly struct {
	Status string
}

func (m StatusOnly) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Status)
	return b
}

func UnmarshalStatusOnly(raw []byte) (StatusOnly, error) {
	fields, err := walkFields(raw)
	if err != nil {
		return StatusOnly{}, err
	}
	var m StatusOnly
	for _, f := range fields {
		if f.num == 1 {
			if m.Status, err = f.asString(); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
