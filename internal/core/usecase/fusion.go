package usecase

import (
	"hash/fnv"

	"github.com/clinicore/medrag/internal/core/domain"
)

// fuseAndDedup concatenates path outputs in path-priority order and drops
// items whose content hash was already seen. The first occurrence keeps its
// origin and score; relative order of first appearances is preserved, so
// identical inputs always produce identical output.
func fuseAndDedup(vector, lexical, rule []domain.EvidenceItem) []domain.EvidenceItem {
	merged := make([]domain.EvidenceItem, 0, len(vector)+len(lexical)+len(rule))
	seen := make(map[uint64]struct{}, len(vector)+len(lexical)+len(rule))

	appendUnique := func(items []domain.EvidenceItem) {
		for _, item := range items {
			key := contentHash(item.Content)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, item)
		}
	}

	appendUnique(vector)
	appendUnique(lexical)
	appendUnique(rule)
	return merged
}

// contentHash is a stable hash over the full item text.
func contentHash(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return h.Sum64()
}
