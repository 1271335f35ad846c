package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

// rerankPreviewRunes bounds each candidate preview in the rerank prompt.
const rerankPreviewRunes = 200

// rerankEvidence asks the language model to pick the topK most relevant
// candidates. len(items) <= topK is a no-op. Any call or parse failure falls
// back to score-descending order; reranking never raises.
func rerankEvidence(
	ctx context.Context,
	completer ports.TextCompleter,
	query string,
	items []domain.EvidenceItem,
	topK int,
	logger *slog.Logger,
	onFallback func(),
) []domain.EvidenceItem {
	if topK <= 0 || len(items) <= topK {
		return items
	}

	fallback := func(reason string, err error) []domain.EvidenceItem {
		logger.Warn("rerank_fallback", "reason", reason, "error", err)
		if onFallback != nil {
			onFallback()
		}
		return scoreOrdered(items, topK)
	}

	if completer == nil {
		return fallback("no completer configured", nil)
	}

	response, err := completer.Complete(ctx, buildRerankPrompt(query, items, topK))
	if err != nil {
		return fallback("completion failed", err)
	}

	indices := parseRerankIndices(response, len(items), topK)
	if len(indices) == 0 {
		return fallback("no parseable indices", nil)
	}

	out := make([]domain.EvidenceItem, 0, len(indices))
	for _, idx := range indices {
		out = append(out, items[idx])
	}
	return out
}

func buildRerankPrompt(query string, items []domain.EvidenceItem, topK int) string {
	var candidates strings.Builder
	for i, item := range items {
		preview := []rune(item.Content)
		suffix := ""
		if len(preview) > rerankPreviewRunes {
			preview = preview[:rerankPreviewRunes]
			suffix = "..."
		}
		candidates.WriteString(fmt.Sprintf("[%d] %s%s\n\n", i, string(preview), suffix))
	}

	return fmt.Sprintf(`你是一个医疗问诊助手。用户问题是：%s

以下是候选知识片段：
%s
请根据相关性对这些知识片段排序，返回最相关的%d个片段的序号，用逗号分隔。
只返回序号，不要其他内容。例如：0,3,5`, query, candidates.String(), topK)
}

// parseRerankIndices parses the model output permissively: tokens split on
// commas and whitespace, non-numeric and out-of-range tokens dropped,
// duplicates removed, result capped at topK in the model's stated order.
func parseRerankIndices(raw string, itemCount, topK int) []int {
	tokens := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '，' || r == ' ' || r == '\n' || r == '\t'
	})

	seen := make(map[int]struct{}, topK)
	out := make([]int, 0, topK)
	for _, token := range tokens {
		idx, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil || idx < 0 || idx >= itemCount {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
		if len(out) == topK {
			break
		}
	}
	return out
}

// scoreOrdered is the degraded ordering: descending by score with missing
// scores treated as zero, stable, truncated to topK.
func scoreOrdered(items []domain.EvidenceItem, topK int) []domain.EvidenceItem {
	out := make([]domain.EvidenceItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return scoreOrZero(out[i]) > scoreOrZero(out[j])
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

func scoreOrZero(item domain.EvidenceItem) float64 {
	if item.Score == nil {
		return 0
	}
	return *item.Score
}
