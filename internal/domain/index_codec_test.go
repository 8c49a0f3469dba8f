package domain_test

import (
	"bytes"
	"testing"

	"docqa/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexSnapshot_Roundtrip(t *testing.T) {
	ix := domain.NewVectorIndex(3)
	require.NoError(t, ix.Build([]domain.IndexEntry{
		{ChunkID: 0, Page: 1, Vector: []float32{1, 0, 0}},
		{ChunkID: 1, Page: 1, Vector: []float32{0, 1, 0}},
		{ChunkID: 2, Page: 3, Vector: []float32{0.577, 0.577, 0.577}},
	}))
	digest := domain.ChunksDigest([]domain.Chunk{
		{Ordinal: 0, Page: 1, Content: "alpha"},
		{Ordinal: 1, Page: 1, Content: "beta"},
		{Ordinal: 2, Page: 3, Content: "gamma"},
	})

	var buf bytes.Buffer
	require.NoError(t, domain.EncodeIndexSnapshot(&buf, ix, digest))

	decoded, gotDigest, err := domain.DecodeIndexSnapshot(&buf)
	require.NoError(t, err)

	assert.Equal(t, digest, gotDigest)
	assert.True(t, decoded.Built())
	assert.Equal(t, ix.Dim(), decoded.Dim())
	assert.Equal(t, ix.Len(), decoded.Len())
	assert.Equal(t, ix.Entries(), decoded.Entries())

	query := []float32{0.2, 0.9, 0.1}
	want, err := ix.Search(query, 3)
	require.NoError(t, err)
	got, err := decoded.Search(query, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestIndexSnapshot_Errors(t *testing.T) {
	buildIndex := func(t *testing.T) *domain.VectorIndex {
		t.Helper()
		ix := domain.NewVectorIndex(2)
		require.NoError(t, ix.Build([]domain.IndexEntry{
			{ChunkID: 0, Page: 1, Vector: []float32{1, 0}},
			{ChunkID: 1, Page: 2, Vector: []float32{0, 1}},
		}))
		return ix
	}

	t.Run("Refuses to encode an unbuilt index", func(t *testing.T) {
		var buf bytes.Buffer
		err := domain.EncodeIndexSnapshot(&buf, domain.NewVectorIndex(2), [32]byte{})
		assert.ErrorIs(t, err, domain.ErrNotBuilt)
	})

	t.Run("Rejects foreign magic bytes", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, domain.EncodeIndexSnapshot(&buf, buildIndex(t), [32]byte{}))

		data := buf.Bytes()
		data[0] = 'Z'
		_, _, err := domain.DecodeIndexSnapshot(bytes.NewReader(data))
		assert.ErrorContains(t, err, "magic")
	})

	t.Run("Rejects a truncated snapshot", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, domain.EncodeIndexSnapshot(&buf, buildIndex(t), [32]byte{}))

		data := buf.Bytes()
		_, _, err := domain.DecodeIndexSnapshot(bytes.NewReader(data[:len(data)-5]))
		assert.Error(t, err)
	})

	t.Run("Rejects an unsupported version", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, domain.EncodeIndexSnapshot(&buf, buildIndex(t), [32]byte{}))

		data := buf.Bytes()
		data[4] = 0xFF
		data[5] = 0xFF
		_, _, err := domain.DecodeIndexSnapshot(bytes.NewReader(data))
		assert.ErrorContains(t, err, "version")
	})

	t.Run("Rejects an empty reader", func(t *testing.T) {
		_, _, err := domain.DecodeIndexSnapshot(bytes.NewReader(nil))
		assert.Error(t, err)
	})
}
