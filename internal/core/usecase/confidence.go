package usecase

import "github.com/clinicore/medrag/internal/core/domain"

// DefaultConfidenceThreshold gates augmentation when retrieval confidence
// stays below it.
const DefaultConfidenceThreshold = 0.5

// NeedsAugmentation decides whether external augmentation must be consulted:
// true when no evidence exists or when the best present score is strictly
// below the threshold. Score-less items (external ones, rule signals) cannot
// satisfy confidence.
func NeedsAugmentation(items []domain.EvidenceItem, threshold float64) domain.ConfidenceDecision {
	var best *float64
	for _, item := range items {
		if item.Score == nil {
			continue
		}
		if best == nil || *item.Score > *best {
			score := *item.Score
			best = &score
		}
	}

	if len(items) == 0 || best == nil {
		return domain.ConfidenceDecision{NeedsAugmentation: true, BestScore: best}
	}
	return domain.ConfidenceDecision{
		NeedsAugmentation: *best < threshold,
		BestScore:         best,
	}
}
