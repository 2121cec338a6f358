package chunker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"histrag/internal/domain"
)

// WriteFile stores a chunk list as indented JSON, creating parent directories.
func WriteFile(path string, chunks []domain.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunks: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a chunk list written by WriteFile.
func ReadFile(path string) ([]domain.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read chunk list: %w", domain.ErrValidation, err)
	}
	var chunks []domain.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("%w: decode chunk list %s: %w", domain.ErrValidation, path, err)
	}
	return chunks, nil
}

// Stats describes a chunk list.
type Stats struct {
	Count   int
	Average float64
	Min     int
	Max     int
	PerBook []BookCount
}

// BookCount is the number of chunks attributed to one book.
type BookCount struct {
	Book  string
	Count int
}

// Summarize computes size statistics and the per-book distribution.
func Summarize(chunks []domain.Chunk) Stats {
	st := Stats{Count: len(chunks)}
	if len(chunks) == 0 {
		return st
	}
	total := 0
	perBook := map[string]int{}
	var order []string
	for i, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		total += n
		if i == 0 || n < st.Min {
			st.Min = n
		}
		if n > st.Max {
			st.Max = n
		}
		if _, ok := perBook[c.Metadata.Book]; !ok {
			order = append(order, c.Metadata.Book)
		}
		perBook[c.Metadata.Book]++
	}
	st.Average = float64(total) / float64(len(chunks))
	for _, b := range order {
		st.PerBook = append(st.PerBook, BookCount{Book: b, Count: perBook[b]})
	}
	return st
}
