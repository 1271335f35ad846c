package ports

import (
	"context"

	"github.com/clinicore/medrag/internal/core/domain"
)

// Embedder builds a query vector in the corpus embedding space.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs nearest-neighbor search over the indexed corpus.
// Hits carry the store's native distance; conversion to a similarity is the
// vector path's job.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int) ([]domain.VectorHit, error)
}

// CorpusProvider enumerates the indexed corpus in fixed-size batches.
// Used only for lexical index construction. A short batch signals exhaustion.
type CorpusProvider interface {
	FetchBatch(ctx context.Context, offset, limit int) ([]domain.CorpusDocument, error)
}

// LexicalSearcher scores a query against the current lexical index
// generation. Returns no results (never an error) when no index is built.
type LexicalSearcher interface {
	Search(query string, topK int) []domain.EvidenceItem
}

// LexicalRebuilder produces a fresh index generation and atomically
// publishes it. In-flight searches complete against the prior generation.
type LexicalRebuilder interface {
	Rebuild(ctx context.Context) error
}

// TextCompleter is a single-turn completion call used for query rewriting
// and reranking. Empty or malformed output is the caller's problem to
// degrade from, not a crash.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnswerGenerator creates the final user-facing answer from the original
// question plus the assembled evidence.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, evidence []domain.EvidenceItem, history []domain.Message) (string, error)
}

// AugmentationProvider is the external fallback evidence source, consulted
// only when the confidence gate signals insufficiency.
type AugmentationProvider interface {
	Search(ctx context.Context, query string) ([]domain.EvidenceItem, error)
}

// HistoryStore persists consult sessions and dialogue turns.
type HistoryStore interface {
	EnsureSession(ctx context.Context, userID, sessionID string) error
	AppendMessage(ctx context.Context, message domain.SessionMessage) error
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.SessionMessage, error)
}

// IndexEventQueue publishes/consumes knowledge-updated events that trigger
// lexical index rebuilds.
type IndexEventQueue interface {
	PublishKnowledgeUpdated(ctx context.Context, reason string) error
	SubscribeKnowledgeUpdated(ctx context.Context, handler func(context.Context, string) error) error
}
