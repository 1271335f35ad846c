package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

// rewriteHistoryTurns bounds how much dialogue context feeds the rewrite.
const rewriteHistoryTurns = 6

// QueryOptimizer turns a raw question into a retrieval-oriented query:
// an optional LLM rewrite (reference resolution, filler stripping) followed
// by an optional synonym normalization pass. The optimized string is used
// only for retrieval; answer generation keeps the original question.
type QueryOptimizer struct {
	completer        ports.TextCompleter
	synonyms         domain.SynonymTable
	rewriteEnabled   bool
	normalizeEnabled bool
	logger           *slog.Logger
}

func NewQueryOptimizer(
	completer ports.TextCompleter,
	synonyms domain.SynonymTable,
	rewriteEnabled, normalizeEnabled bool,
	logger *slog.Logger,
) *QueryOptimizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryOptimizer{
		completer:        completer,
		synonyms:         synonyms,
		rewriteEnabled:   rewriteEnabled,
		normalizeEnabled: normalizeEnabled,
		logger:           logger,
	}
}

// Optimize never fails: any rewrite error degrades to the pre-rewrite
// string. Empty/whitespace questions pass through unchanged.
func (o *QueryOptimizer) Optimize(ctx context.Context, question string, history []domain.Message) string {
	if strings.TrimSpace(question) == "" {
		return question
	}

	query := strings.TrimSpace(question)
	if o.rewriteEnabled && o.completer != nil {
		query = o.rewrite(ctx, query, history)
	}
	if o.normalizeEnabled {
		query = NormalizeKeywords(query, o.synonyms)
	}
	return query
}

func (o *QueryOptimizer) rewrite(ctx context.Context, question string, history []domain.Message) string {
	rewritten, err := o.completer.Complete(ctx, buildRewritePrompt(question, history))
	if err != nil {
		o.logger.Warn("query_rewrite_failed", "error", err)
		return question
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		o.logger.Warn("query_rewrite_empty_output")
		return question
	}
	// The template asks for exactly one line; keep only the first if the
	// model rambles anyway.
	if idx := strings.IndexByte(rewritten, '\n'); idx >= 0 {
		rewritten = strings.TrimSpace(rewritten[:idx])
	}
	return strings.Trim(rewritten, `"「」“”`)
}

// NormalizeKeywords applies the synonym table as literal substring
// replacements, in table order. Idempotent: the table maps colloquial terms
// onto standard terms that are not themselves table keys.
func NormalizeKeywords(query string, synonyms domain.SynonymTable) string {
	if strings.TrimSpace(query) == "" {
		return query
	}
	text := strings.TrimSpace(query)
	for _, entry := range synonyms {
		if strings.Contains(text, entry.Colloquial) {
			text = strings.ReplaceAll(text, entry.Colloquial, entry.Standard)
		}
	}
	return text
}

func buildRewritePrompt(question string, history []domain.Message) string {
	var historyBlock string
	if len(history) > 0 {
		recent := history
		if len(recent) > rewriteHistoryTurns {
			recent = recent[len(recent)-rewriteHistoryTurns:]
		}
		parts := make([]string, 0, len(recent))
		for _, msg := range recent {
			if msg.Role == "" || msg.Content == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
		}
		if len(parts) > 0 {
			historyBlock = "最近对话：\n" + strings.Join(parts, "\n") + "\n\n"
		}
	}

	return fmt.Sprintf(`你是一个医疗问诊检索助手。请将用户的提问改写成一句「仅包含医学相关关键信息的检索用问句」，用于在医疗知识库中检索。

要求：
1. 保留症状、部位、药物、疾病、检查等关键信息；
2. 若有指代（如「这个药」「上面的症状」），结合上下文替换为具体内容；
3. 去掉礼貌用语、语气词，输出简短一句，不要解释；
4. 若问题已清晰且无指代，可稍作同义替换（如「头疼」→「头痛」）以利检索；
5. 只输出改写后的一句话，不要加引号或前缀。

%s用户当前问题：%s

改写后的检索用问句：`, historyBlock, question)
}
