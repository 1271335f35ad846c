package ports

import (
	"context"

	"github.com/clinicore/medrag/internal/core/domain"
)

// ConsultService answers a medical question end to end: optimize, retrieve,
// gate, augment when needed, generate.
type ConsultService interface {
	Consult(ctx context.Context, req domain.ConsultRequest) (*domain.ConsultResult, error)
}

// RetrievalEngine runs the multi-path retrieval pipeline against an already
// optimized query and returns ranked, deduplicated evidence plus the rule
// path's category signal.
type RetrievalEngine interface {
	Retrieve(ctx context.Context, optimizedQuery string) ([]domain.EvidenceItem, domain.RuleSignal, error)
}
