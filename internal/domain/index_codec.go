package domain

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Index snapshot wire format, little-endian:
//
//	magic "DQIX" | uint16 version | uint32 dim | uint32 count |
//	digest [32]byte | count x (uint32 chunkID | uint32 page | dim x float32)
const snapshotVersion uint16 = 1

// maxSnapshotEntries bounds decode allocations against corrupt headers.
const maxSnapshotEntries = 1 << 24

var snapshotMagic = [4]byte{'D', 'Q', 'I', 'X'}

// EncodeIndexSnapshot serializes a built index together with the chunk
// digest of the generation it belongs to.
func EncodeIndexSnapshot(w io.Writer, ix *VectorIndex, digest [32]byte) error {
	if !ix.Built() {
		return ErrNotBuilt
	}
	if _, err := w.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("failed to write snapshot magic: %w", err)
	}
	header := []any{snapshotVersion, uint32(ix.dim), uint32(len(ix.entries))}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("failed to write snapshot header: %w", err)
		}
	}
	if _, err := w.Write(digest[:]); err != nil {
		return fmt.Errorf("failed to write snapshot digest: %w", err)
	}
	for _, entry := range ix.entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(entry.ChunkID)); err != nil {
			return fmt.Errorf("failed to write snapshot entry: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(entry.Page)); err != nil {
			return fmt.Errorf("failed to write snapshot entry: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, entry.Vector); err != nil {
			return fmt.Errorf("failed to write snapshot vector: %w", err)
		}
	}
	return nil
}

// DecodeIndexSnapshot reads a snapshot back into a built index and returns
// the digest recorded at encode time. The returned index passes through
// Build, so snapshot corruption that survives the header checks still hits
// the index invariants.
func DecodeIndexSnapshot(r io.Reader) (*VectorIndex, [32]byte, error) {
	var digest [32]byte

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, digest, fmt.Errorf("failed to read snapshot magic: %w", err)
	}
	if magic != snapshotMagic {
		return nil, digest, fmt.Errorf("unrecognized snapshot magic %q", magic[:])
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, digest, fmt.Errorf("failed to read snapshot version: %w", err)
	}
	if version != snapshotVersion {
		return nil, digest, fmt.Errorf("unsupported snapshot version %d", version)
	}

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, digest, fmt.Errorf("failed to read snapshot dimension: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, digest, fmt.Errorf("failed to read snapshot entry count: %w", err)
	}
	if dim == 0 || dim > 1<<16 {
		return nil, digest, fmt.Errorf("implausible snapshot dimension %d", dim)
	}
	if count == 0 || count > maxSnapshotEntries {
		return nil, digest, fmt.Errorf("implausible snapshot entry count %d", count)
	}

	if _, err := io.ReadFull(r, digest[:]); err != nil {
		return nil, digest, fmt.Errorf("failed to read snapshot digest: %w", err)
	}

	entries := make([]IndexEntry, count)
	for i := range entries {
		var chunkID, page uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkID); err != nil {
			return nil, digest, fmt.Errorf("failed to read snapshot entry %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &page); err != nil {
			return nil, digest, fmt.Errorf("failed to read snapshot entry %d: %w", i, err)
		}
		vector := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vector); err != nil {
			return nil, digest, fmt.Errorf("failed to read snapshot vector %d: %w", i, err)
		}
		entries[i] = IndexEntry{ChunkID: int(chunkID), Page: int(page), Vector: vector}
	}

	ix := NewVectorIndex(int(dim))
	if err := ix.Build(entries); err != nil {
		return nil, digest, fmt.Errorf("failed to rebuild index from snapshot: %w", err)
	}
	return ix, digest, nil
}
