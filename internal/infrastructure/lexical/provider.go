package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

const (
	defaultBatchSize = 2000
	defaultMaxDocs   = 50000
	// Below this corpus size the goroutine fan-out costs more than it saves.
	defaultParallelThreshold = 100
	maxBuildWorkers          = 8
)

// Options tunes index construction.
type Options struct {
	BatchSize         int
	MaxDocs           int
	ParallelThreshold int
	// Workers caps build parallelism; zero picks GOMAXPROCS up to 8.
	Workers int
	Logger  *slog.Logger
}

// Provider owns the current lexical index generation. Rebuild fetches a full
// corpus snapshot, tokenizes it, builds a fresh immutable Index and publishes
// it with a single atomic swap; searches in flight keep the generation they
// started with. An empty corpus leaves the index unset and searches return
// nothing.
type Provider struct {
	corpus            ports.CorpusProvider
	batchSize         int
	maxDocs           int
	parallelThreshold int
	workers           int
	logger            *slog.Logger

	current atomic.Pointer[Index]
}

func NewProvider(corpus ports.CorpusProvider, options Options) *Provider {
	if options.BatchSize <= 0 {
		options.BatchSize = defaultBatchSize
	}
	if options.MaxDocs <= 0 {
		options.MaxDocs = defaultMaxDocs
	}
	if options.ParallelThreshold <= 0 {
		options.ParallelThreshold = defaultParallelThreshold
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Provider{
		corpus:            corpus,
		batchSize:         options.BatchSize,
		maxDocs:           options.MaxDocs,
		parallelThreshold: options.ParallelThreshold,
		workers:           options.Workers,
		logger:            options.Logger,
	}
}

// Search scores against the current generation; nil until the first
// successful rebuild of a non-empty corpus.
func (p *Provider) Search(query string, topK int) []domain.EvidenceItem {
	idx := p.current.Load()
	if idx == nil {
		return nil
	}
	return idx.Search(query, topK)
}

// Rebuild snapshots the corpus and atomically replaces the index. The build
// runs to completion before the swap; a failed fetch keeps the prior
// generation serving.
func (p *Provider) Rebuild(ctx context.Context) error {
	start := time.Now()

	docs, err := p.fetchCorpus(ctx)
	if err != nil {
		return fmt.Errorf("fetch corpus snapshot: %w", err)
	}
	if len(docs) == 0 {
		p.logger.Info("lexical_index_skipped_empty_corpus")
		return nil
	}

	tokenized, err := p.tokenizeAll(ctx, docs)
	if err != nil {
		return fmt.Errorf("tokenize corpus: %w", err)
	}

	p.current.Store(BuildIndex(docs, tokenized))
	p.logger.Info("lexical_index_rebuilt",
		"documents", len(docs),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return nil
}

// DocumentCount reports the size of the current generation.
func (p *Provider) DocumentCount() int {
	idx := p.current.Load()
	if idx == nil {
		return 0
	}
	return idx.Len()
}

func (p *Provider) fetchCorpus(ctx context.Context) ([]domain.CorpusDocument, error) {
	docs := make([]domain.CorpusDocument, 0, p.batchSize)
	for offset := 0; offset < p.maxDocs; offset += p.batchSize {
		limit := p.batchSize
		if remaining := p.maxDocs - offset; remaining < limit {
			limit = remaining
		}
		batch, err := p.corpus.FetchBatch(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		docs = append(docs, batch...)
		if len(batch) < limit {
			break
		}
	}
	return docs, nil
}

// tokenizeAll maps the pure tokenizer over all documents, in parallel above
// the threshold. Workers own disjoint ranges and write by position, so
// corpus order is preserved regardless of scheduling.
func (p *Provider) tokenizeAll(ctx context.Context, docs []domain.CorpusDocument) ([][]string, error) {
	tokenized := make([][]string, len(docs))

	workers := p.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > maxBuildWorkers {
			workers = maxBuildWorkers
		}
	}
	if len(docs) < p.parallelThreshold || workers <= 1 {
		for i, doc := range docs {
			tokenized[i] = Tokenize(doc.Content)
		}
		return tokenized, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	chunk := (len(docs) + workers - 1) / workers
	for start := 0; start < len(docs); start += chunk {
		start := start
		end := start + chunk
		if end > len(docs) {
			end = len(docs)
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				tokenized[i] = Tokenize(docs[i].Content)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return tokenized, nil
}
