// Package ingest loads chunks into a vector store: truncate, then embed and
// insert one batch at a time.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"histrag/internal/domain"
	"histrag/internal/embedding"
	"histrag/internal/logger"
	"histrag/internal/retrieval"
	"histrag/internal/vectorstore"
)

const (
	DefaultBatchSize  = 20
	DefaultBatchDelay = 500 * time.Millisecond

	// VerifyQuery is the probe search run after ingestion.
	VerifyQuery     = "seigneurs d'Enghien"
	VerifyThreshold = 0.3
	VerifyCount     = 3
)

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Progress is reported before each batch and once more when the run completes.
type Progress struct {
	Done    int
	Total   int
	Batch   int
	Batches int
}

// Report summarizes a successful run.
type Report struct {
	RunID    string
	Inserted int
	Batches  int
	Elapsed  time.Duration
}

// Throughput returns inserted chunks per second.
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Inserted) / r.Elapsed.Seconds()
}

// BatchError identifies the batch that aborted a run. Batches before it
// remain persisted.
type BatchError struct {
	Batch int
	First int
	Last  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (chunks %d to %d): %v", e.Batch, e.First, e.Last, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Pipeline runs ingestion sequentially; no two batches are in flight at once.
type Pipeline struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewPipeline(embedder embedding.Embedder, store vectorstore.Storage, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	return &Pipeline{embedder: embedder, store: store, cfg: cfg, sleep: embedding.SleepContext}
}

// Run truncates the store and ingests chunks. onProgress may be nil.
func (p *Pipeline) Run(ctx context.Context, chunks []domain.Chunk, onProgress func(Progress)) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	start := time.Now()
	if onProgress == nil {
		onProgress = func(Progress) {}
	}

	logger.Info("ingest run %s: %d chunks", report.RunID, len(chunks))
	if err := p.store.Truncate(ctx); err != nil {
		return report, fmt.Errorf("truncate store: %w", err)
	}

	size := p.cfg.BatchSize
	batches := (len(chunks) + size - 1) / size
	for i := 0; i < len(chunks); i += size {
		end := min(i+size, len(chunks))
		batchNum := i/size + 1
		onProgress(Progress{Done: i, Total: len(chunks), Batch: batchNum, Batches: batches})

		if err := p.ingestBatch(ctx, chunks[i:end]); err != nil {
			report.Elapsed = time.Since(start)
			return report, &BatchError{Batch: batchNum, First: i, Last: end - 1, Err: err}
		}
		report.Inserted += end - i
		report.Batches++
		logger.Debug("batch %d/%d stored", batchNum, batches)

		if end < len(chunks) && p.cfg.BatchDelay > 0 {
			if err := p.sleep(ctx, p.cfg.BatchDelay); err != nil {
				report.Elapsed = time.Since(start)
				return report, err
			}
		}
	}
	onProgress(Progress{Done: len(chunks), Total: len(chunks), Batch: batches, Batches: batches})
	report.Elapsed = time.Since(start)
	return report, nil
}

func (p *Pipeline) ingestBatch(ctx context.Context, batch []domain.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d chunks", domain.ErrEmbeddingService, len(vecs), len(batch))
	}
	passages := make([]domain.Passage, len(batch))
	for i, c := range batch {
		passages[i] = domain.Passage{Content: c.Content, Vector: vecs[i], Metadata: c.Metadata}
	}
	_, err = p.store.Insert(ctx, passages)
	return err
}

// Verification is the outcome of the post-run sanity check.
type Verification struct {
	Count   int64
	Results []domain.SearchResult
}

// Verify counts stored rows and runs one probe search.
func (p *Pipeline) Verify(ctx context.Context, query string) (Verification, error) {
	if query == "" {
		query = VerifyQuery
	}
	n, err := p.store.Count(ctx)
	if err != nil {
		return Verification{}, err
	}
	engine := retrieval.NewEngine(p.embedder, p.store)
	results, err := engine.Search(ctx, query, retrieval.Options{Count: VerifyCount}.WithThreshold(VerifyThreshold))
	if err != nil {
		return Verification{Count: n}, err
	}
	return Verification{Count: n, Results: results}, nil
}
