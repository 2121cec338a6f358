// Package chunker turns normalized book text into bounded, overlapping,
// metadata-tagged chunks.
//
// Book and chapter headings always close the open chunk, so a chunk never spans
// two chapters. Section headings close it only once it is large enough. Oversized
// chunks are split on the last paragraph break, or cut hard when there is none.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"histrag/internal/domain"
	"histrag/internal/normalizer"
	"histrag/internal/segmenter"
)

// Default size limits, in characters.
const (
	DefaultMinChunkSize = 1500
	DefaultMaxChunkSize = 2500
	DefaultOverlapSize  = 300
	DefaultMinFlushSize = 100
	DefaultInitialBook  = "I"
)

var paragraphBreakRe = regexp.MustCompile(`\n\s*\n`)

// Config holds the size limits of the builder.
type Config struct {
	// MinChunkSize is the size past which a section heading closes the open chunk.
	MinChunkSize int
	// MaxChunkSize is the size past which the open chunk is split.
	MaxChunkSize int
	// OverlapSize is the number of trailing characters carried into the next chunk.
	OverlapSize int
	// MinFlushSize is the trimmed size below which a flushed buffer is dropped.
	MinFlushSize int
	// InitialBook is attributed to text seen before the first book heading.
	InitialBook string
}

// Builder splits normalized text into chunks. It is safe for concurrent use;
// each Build call runs with its own state.
type Builder struct {
	cfg Config
}

// NewBuilder creates a builder, substituting defaults for zero values.
func NewBuilder(cfg Config) *Builder {
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = DefaultMinChunkSize
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = DefaultMaxChunkSize
	}
	if cfg.MaxChunkSize < cfg.MinChunkSize {
		cfg.MaxChunkSize = cfg.MinChunkSize
	}
	if cfg.OverlapSize < 0 {
		cfg.OverlapSize = 0
	}
	if cfg.MinFlushSize <= 0 {
		cfg.MinFlushSize = DefaultMinFlushSize
	}
	if cfg.InitialBook == "" {
		cfg.InitialBook = DefaultInitialBook
	}
	return &Builder{cfg: cfg}
}

// Config returns the effective configuration.
func (b *Builder) Config() Config { return b.cfg }

// Chunk normalizes raw OCR text and builds chunks from it.
func (b *Builder) Chunk(raw string) []domain.Chunk {
	return b.Build(normalizer.Normalize(raw))
}

// Build runs the segmentation state machine over normalized text.
func (b *Builder) Build(normalized string) []domain.Chunk {
	r := &run{cfg: b.cfg, book: b.cfg.InitialBook}
	for _, line := range strings.Split(normalized, "\n") {
		r.feed(line)
	}
	r.flush()
	return r.chunks
}

// run is the mutable accumulator of a single Build call.
type run struct {
	cfg Config

	book    string
	chapter string
	section string

	buffer    strings.Builder
	bufferLen int
	pages     []int
	sequence  int
	overlap   string

	chunks []domain.Chunk
}

func (r *run) feed(line string) {
	if n, ok := normalizer.PageNumber(line); ok {
		r.pages = append(r.pages, n)
		return
	}

	if ev, ok := segmenter.Classify(line); ok {
		switch ev.Kind {
		case segmenter.Book:
			r.flush()
			r.book = ev.ID
			r.chapter = ""
			r.section = ""
			r.overlap = ""
		case segmenter.Chapter:
			r.flush()
			r.chapter = ev.ID
			r.section = ""
		case segmenter.Section:
			if r.bufferLen > r.cfg.MinChunkSize {
				r.flush()
			}
			r.section = ev.Label()
		}
	}

	r.write(line + "\n")

	if r.bufferLen > r.cfg.MaxChunkSize {
		r.split()
	}
}

// split closes an oversized buffer, holding back its last paragraph when possible.
func (r *run) split() {
	paragraphs := paragraphs(r.buffer.String())
	if len(paragraphs) <= 1 {
		r.flush()
		return
	}
	last := paragraphs[len(paragraphs)-1]
	r.reset(strings.Join(paragraphs[:len(paragraphs)-1], "\n\n"))
	r.flush()
	r.reset(strings.TrimRight(last, "\n") + "\n")
}

// flush emits the buffer as a chunk, or drops it when it is too small to matter.
// Pending pages survive a drop so they apply to the text that follows; heading
// lines in a dropped buffer are lost, their metadata lives on in the run state.
func (r *run) flush() {
	body, inline := normalizer.StripPageTags(r.buffer.String())
	body = strings.TrimSpace(body)
	r.pages = append(r.pages, inline...)

	if utf8.RuneCountInString(body) < r.cfg.MinFlushSize {
		r.reset("")
		return
	}

	start, end := pageRange(r.pages)
	r.chunks = append(r.chunks, domain.Chunk{
		Content: r.overlap + body,
		Metadata: domain.ChunkMetadata{
			Book:          r.book,
			BookTitle:     BookTitle(r.book),
			Chapter:       r.chapter,
			Section:       r.section,
			PageStart:     start,
			PageEnd:       end,
			SequenceIndex: r.sequence,
		},
	})

	r.overlap = ""
	if r.cfg.OverlapSize > 0 {
		r.overlap = lastRunes(body, r.cfg.OverlapSize) + "\n\n"
	}
	r.pages = nil
	r.sequence++
	r.reset("")
}

func (r *run) write(s string) {
	r.buffer.WriteString(s)
	r.bufferLen += utf8.RuneCountInString(s)
}

func (r *run) reset(s string) {
	r.buffer.Reset()
	r.bufferLen = 0
	if s != "" {
		r.write(s)
	}
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphBreakRe.Split(text, -1) {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

func pageRange(pages []int) (int, int) {
	if len(pages) == 0 {
		return 0, 0
	}
	lo, hi := pages[0], pages[0]
	for _, p := range pages[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	return lo, hi
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-n:])
}
