package domain

// ChunkMetadata locates a chunk inside the book.
// PageStart and PageEnd are both 0 when no page marker was seen in the chunk's span.
type ChunkMetadata struct {
	Book          string `json:"book"`
	BookTitle     string `json:"book_title"`
	Chapter       string `json:"chapter"`
	Section       string `json:"section,omitempty"`
	PageStart     int    `json:"page_start"`
	PageEnd       int    `json:"page_end"`
	SequenceIndex int    `json:"sequence_index"`
}

// HasPages reports whether at least one page marker was attributed to the chunk.
func (m ChunkMetadata) HasPages() bool {
	return m.PageStart != 0 || m.PageEnd != 0
}

// Chunk is a bounded, metadata-tagged span of source text prepared for embedding.
// Content already includes the overlap carried from the previous chunk.
type Chunk struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Passage is a chunk paired with its embedding, ready to be persisted.
type Passage struct {
	Content  string
	Vector   []float32
	Metadata ChunkMetadata
}

// SearchResult is one ranked passage returned by retrieval.
// Similarity is 1 - cosine distance; higher is more relevant.
type SearchResult struct {
	ID         int64         `json:"id"`
	Content    string        `json:"content"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
}

// RetrievalFilter is a conjunctive equality predicate over metadata.
// Empty fields do not constrain the result.
type RetrievalFilter struct {
	Book    string `json:"book,omitempty"`
	Chapter string `json:"chapter,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f RetrievalFilter) IsEmpty() bool {
	return f.Book == "" && f.Chapter == ""
}

// Matches reports whether metadata satisfies every specified field.
func (f RetrievalFilter) Matches(m ChunkMetadata) bool {
	if f.Book != "" && m.Book != f.Book {
		return false
	}
	if f.Chapter != "" && m.Chapter != f.Chapter {
		return false
	}
	return true
}

// NearestQuery parameterizes a nearest-neighbour lookup against a vector store.
// Only rows with similarity strictly greater than Threshold are returned.
type NearestQuery struct {
	Threshold float64
	Limit     int
	Filter    RetrievalFilter
}
