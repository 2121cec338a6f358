package chunker

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histrag/internal/domain"
)

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "chunks.json")
	chunks := []domain.Chunk{
		{Content: "premier passage", Metadata: domain.ChunkMetadata{Book: "I", Chapter: "II", PageStart: 3, PageEnd: 4}},
		{Content: "second passage", Metadata: domain.ChunkMetadata{Book: "II", Section: "§ 1. — Bailli", SequenceIndex: 1}},
	}

	require.NoError(t, WriteFile(path, chunks))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, chunks, got)
}

func TestReadFileErrors(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSummarize(t *testing.T) {
	st := Summarize([]domain.Chunk{
		{Content: "aaaa", Metadata: domain.ChunkMetadata{Book: "II"}},
		{Content: "éé", Metadata: domain.ChunkMetadata{Book: "I"}},
		{Content: "aaaaaa", Metadata: domain.ChunkMetadata{Book: "II"}},
	})

	assert.Equal(t, 3, st.Count)
	assert.Equal(t, 2, st.Min)
	assert.Equal(t, 6, st.Max)
	assert.InDelta(t, 4.0, st.Average, 1e-9)
	assert.Equal(t, []BookCount{{Book: "II", Count: 2}, {Book: "I", Count: 1}}, st.PerBook)

	assert.Equal(t, Stats{}, Summarize(nil))
}
