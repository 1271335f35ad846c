package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

// RetrievalMetrics receives engine observations. Implementations must be
// safe for concurrent use; a nil value disables recording.
type RetrievalMetrics interface {
	ObservePath(path string, results int, duration time.Duration)
	RerankFallback()
}

// RetrievalConfig tunes the engine. Zero values fall back to the reference
// defaults.
type RetrievalConfig struct {
	// TopKRetrieval is the per-path candidate budget.
	TopKRetrieval int
	// TopKRerank is the display budget; fused sets larger than this are
	// reranked down to it.
	TopKRerank int
	// SimilarityThreshold drops vector candidates below this similarity.
	SimilarityThreshold float64
}

func (c RetrievalConfig) normalize() RetrievalConfig {
	out := c
	if out.TopKRetrieval <= 0 {
		out.TopKRetrieval = 10
	}
	if out.TopKRerank <= 0 {
		out.TopKRerank = 3
	}
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = 0.7
	}
	return out
}

// RetrieveUseCase is the multi-path retrieval and ranking engine: vector,
// lexical and rule paths fan out concurrently, results are fused and
// deduplicated, and oversized candidate sets are reranked. Paths are
// read-only against shared state and degrade to empty on failure; the engine
// itself never returns an error from a path.
type RetrieveUseCase struct {
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
	lexical   ports.LexicalSearcher
	completer ports.TextCompleter
	rules     domain.RuleTable
	cfg       RetrievalConfig
	metrics   RetrievalMetrics
	logger    *slog.Logger
}

func NewRetrieveUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	lexical ports.LexicalSearcher,
	completer ports.TextCompleter,
	rules domain.RuleTable,
	cfg RetrievalConfig,
	metrics RetrievalMetrics,
	logger *slog.Logger,
) *RetrieveUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrieveUseCase{
		embedder:  embedder,
		vectorDB:  vectorDB,
		lexical:   lexical,
		completer: completer,
		rules:     rules,
		cfg:       cfg.normalize(),
		metrics:   metrics,
		logger:    logger,
	}
}

// Retrieve runs the full pipeline against an already optimized query and
// returns the final evidence list plus the rule signal. The returned error
// is always nil today; the signature keeps the inbound port stable.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, optimizedQuery string) ([]domain.EvidenceItem, domain.RuleSignal, error) {
	var (
		vectorItems  []domain.EvidenceItem
		lexicalItems []domain.EvidenceItem
		ruleItems    []domain.EvidenceItem
		signal       domain.RuleSignal
	)

	// Paths share no mutable state and never error; full parallel fan-out.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		vectorItems = uc.vectorSearch(groupCtx, optimizedQuery)
		return nil
	})
	group.Go(func() error {
		lexicalItems = uc.lexicalSearch(optimizedQuery)
		return nil
	})
	group.Go(func() error {
		ruleItems, signal = uc.ruleMatch(optimizedQuery)
		return nil
	})
	_ = group.Wait()

	merged := fuseAndDedup(vectorItems, lexicalItems, ruleItems)
	uc.logger.Info("multi_path_retrieval",
		"vector", len(vectorItems),
		"lexical", len(lexicalItems),
		"rule", len(ruleItems),
		"merged", len(merged),
		"category", signal.Category,
	)

	if len(merged) > uc.cfg.TopKRerank {
		merged = rerankEvidence(ctx, uc.completer, optimizedQuery, merged, uc.cfg.TopKRerank, uc.logger, uc.rerankFallback)
	}
	return merged, signal, nil
}

// vectorSearch embeds the query and converts nearest-neighbor distances into
// bounded similarities, dropping candidates below the threshold. Any failure
// degrades to no results.
func (uc *RetrieveUseCase) vectorSearch(ctx context.Context, query string) []domain.EvidenceItem {
	start := time.Now()
	items := uc.vectorSearchInner(ctx, query)
	uc.observePath("vector", len(items), time.Since(start))
	return items
}

func (uc *RetrieveUseCase) vectorSearchInner(ctx context.Context, query string) []domain.EvidenceItem {
	if uc.embedder == nil || uc.vectorDB == nil {
		return nil
	}

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		uc.logger.Warn("vector_path_embed_failed", "error", err)
		return nil
	}

	hits, err := uc.vectorDB.Search(ctx, queryVector, uc.cfg.TopKRetrieval)
	if err != nil {
		uc.logger.Warn("vector_path_search_failed", "error", err)
		return nil
	}

	items := make([]domain.EvidenceItem, 0, len(hits))
	for _, hit := range hits {
		// L2 distance, smaller is closer; map into (0, 1].
		similarity := 1.0 / (1.0 + hit.Distance)
		if similarity < uc.cfg.SimilarityThreshold {
			continue
		}
		items = append(items, domain.EvidenceItem{
			Origin:   domain.OriginVector,
			Content:  hit.Document.DisplayContent(),
			Score:    domain.Float64Ptr(similarity),
			Metadata: hit.Document.Metadata(),
		})
	}
	return items
}

func (uc *RetrieveUseCase) lexicalSearch(query string) []domain.EvidenceItem {
	if uc.lexical == nil {
		return nil
	}
	start := time.Now()
	items := uc.lexical.Search(query, uc.cfg.TopKRetrieval)
	uc.observePath("lexical", len(items), time.Since(start))
	return items
}

// ruleMatch scans the category table in declared order and reports the first
// category with a substring hit. The reference behavior yields no standalone
// evidence documents; the other paths surface matching content.
func (uc *RetrieveUseCase) ruleMatch(query string) ([]domain.EvidenceItem, domain.RuleSignal) {
	start := time.Now()
	signal := domain.RuleSignal{}
	for _, cat := range uc.rules.Categories {
		for _, keyword := range cat.Keywords {
			if keyword != "" && strings.Contains(query, keyword) {
				signal.Category = cat.Name
				break
			}
		}
		if signal.Category != "" {
			break
		}
	}

	// Emergency is checked independently of scan order so an emergency
	// keyword is flagged even when an earlier category matched first.
	signal.Emergency = isEmergency(uc.rules, query)
	if signal.Emergency {
		uc.logger.Warn("emergency_keywords_detected", "matched_category", signal.Category)
	}
	uc.observePath("rule", 0, time.Since(start))
	return nil, signal
}

// isEmergency checks the emergency category independently of scan order so
// an emergency keyword is flagged even when an earlier category matched.
func isEmergency(rules domain.RuleTable, query string) bool {
	for _, cat := range rules.Categories {
		if cat.Name != domain.EmergencyCategory {
			continue
		}
		for _, keyword := range cat.Keywords {
			if keyword != "" && strings.Contains(query, keyword) {
				return true
			}
		}
	}
	return false
}

func (uc *RetrieveUseCase) observePath(path string, results int, duration time.Duration) {
	if uc.metrics != nil {
		uc.metrics.ObservePath(path, results, duration)
	}
}

func (uc *RetrieveUseCase) rerankFallback() {
	if uc.metrics != nil {
		uc.metrics.RerankFallback()
	}
}
