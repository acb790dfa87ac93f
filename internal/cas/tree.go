package cas

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/buildstream-go/buildstream/internal/digest"
)

// EntryType discriminates the kind of a Directory child.
type EntryType uint8

const (
	EntryFile EntryType = iota
	EntryDirectory
	EntrySymlink
)

// TreeEntry is one (name, digest, mode) triple of a Directory listing.
// For EntrySymlink, Digest is the zero value and Target holds the link text.
type TreeEntry struct {
	Name   string
	Type   EntryType
	Mode   uint32
	Digest digest.Digest
	Target string // symlink target, only meaningful when Type == EntrySymlink
}

// Directory is a structured, protobuf-equivalent CAS object listing
// children by (name, digest, mode). Directories are themselves CAS
// objects, so nested Directory objects form a Merkle DAG.
type Directory struct {
	Entries []TreeEntry
}

// Encode serializes d deterministically: entries are sorted by name before
// encoding, so AddTree yields the same digest regardless of the caller's
// insertion order.
func (d Directory) Encode() []byte {
	entries := slices.Clone(d.Entries)
	slices.SortFunc(entries, func(a, b TreeEntry) int { return cmp.Compare(a.Name, b.Name) })

	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(entries)))
	for _, e := range entries {
		writeString(&buf, e.Name)
		buf.WriteByte(byte(e.Type))
		writeUvarint(&buf, uint64(e.Mode))
		switch e.Type {
		case EntrySymlink:
			writeString(&buf, e.Target)
		default:
			buf.Write(e.Digest.Hash[:])
			writeUvarint(&buf, e.Digest.Size)
		}
	}
	return buf.Bytes()
}

// DecodeDirectory parses bytes produced by Directory.Encode.
func DecodeDirectory(data []byte) (Directory, error) {
	r := bytes.NewReader(data)
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return Directory{}, fmt.Errorf("cas: corrupt directory: %w", err)
	}
	entries := make([]TreeEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		name, err := readString(r)
		if err != nil {
			return Directory{}, fmt.Errorf("cas: corrupt directory entry %d: %w", i, err)
		}
		typByte, err := r.ReadByte()
		if err != nil {
			return Directory{}, fmt.Errorf("cas: corrupt directory entry %d: %w", i, err)
		}
		mode, err := binary.ReadUvarint(r)
		if err != nil {
			return Directory{}, fmt.Errorf("cas: corrupt directory entry %d: %w", i, err)
		}
		entry := TreeEntry{Name: name, Type: EntryType(typByte), Mode: uint32(mode)}
		if entry.Type == EntrySymlink {
			target, err := readString(r)
			if err != nil {
				return Directory{}, fmt.Errorf("cas: corrupt directory entry %d: %w", i, err)
			}
			entry.Target = target
		} else {
			var hash [digest.Size]byte
			if _, err := io.ReadFull(r, hash[:]); err != nil {
				return Directory{}, fmt.Errorf("cas: corrupt directory entry %d: %w", i, err)
			}
			size, err := binary.ReadUvarint(r)
			if err != nil {
				return Directory{}, fmt.Errorf("cas: corrupt directory entry %d: %w", i, err)
			}
			entry.Digest = digest.Digest{Hash: hash, Size: size}
		}
		entries = append(entries, entry)
	}
	return Directory{Entries: entries}, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
