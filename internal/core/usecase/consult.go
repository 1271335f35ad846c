package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

const maxSuggestions = 5

// ConsultMetrics receives orchestration observations. Nil disables recording.
type ConsultMetrics interface {
	AugmentationTriggered()
}

// ConsultUseCase orchestrates one consult: optimize the question, run the
// retrieval engine, gate the evidence, augment from the external provider
// when the gate fires, generate the answer and persist the dialogue turn.
type ConsultUseCase struct {
	optimizer           *QueryOptimizer
	engine              ports.RetrievalEngine
	augment             ports.AugmentationProvider
	generator           ports.AnswerGenerator
	history             ports.HistoryStore
	historyTurns        int
	confidenceThreshold float64
	metrics             ConsultMetrics
	logger              *slog.Logger
}

func NewConsultUseCase(
	optimizer *QueryOptimizer,
	engine ports.RetrievalEngine,
	augment ports.AugmentationProvider,
	generator ports.AnswerGenerator,
	history ports.HistoryStore,
	historyTurns int,
	confidenceThreshold float64,
	metrics ConsultMetrics,
	logger *slog.Logger,
) *ConsultUseCase {
	if historyTurns <= 0 {
		historyTurns = rewriteHistoryTurns
	}
	if confidenceThreshold <= 0 {
		confidenceThreshold = DefaultConfidenceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsultUseCase{
		optimizer:           optimizer,
		engine:              engine,
		augment:             augment,
		generator:           generator,
		history:             history,
		historyTurns:        historyTurns,
		confidenceThreshold: confidenceThreshold,
		metrics:             metrics,
		logger:              logger,
	}
}

func (uc *ConsultUseCase) Consult(ctx context.Context, req domain.ConsultRequest) (*domain.ConsultResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "consult", fmt.Errorf("question is empty"))
	}

	history := uc.loadHistory(ctx, req.SessionID)

	// Retrieval sees the optimized query; answer generation and history keep
	// the original question.
	retrievalQuery := uc.optimizer.Optimize(ctx, req.Question, history)

	evidence, signal, err := uc.engine.Retrieve(ctx, retrievalQuery)
	if err != nil {
		// The engine degrades internally; a non-nil error here means a
		// programming mistake, not a retrieval failure.
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	decision := NeedsAugmentation(evidence, uc.confidenceThreshold)
	augmented := false
	if decision.NeedsAugmentation && uc.augment != nil {
		external, err := uc.augment.Search(ctx, retrievalQuery)
		if err != nil {
			uc.logger.Warn("augmentation_failed", "error", err)
		} else if len(external) > 0 {
			evidence = append(evidence, external...)
			augmented = true
		}
		if uc.metrics != nil {
			uc.metrics.AugmentationTriggered()
		}
	}

	answer, err := uc.generator.GenerateAnswer(ctx, req.Question, evidence, history)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	uc.persistTurn(ctx, req, answer)

	return &domain.ConsultResult{
		Answer:          answer,
		Sources:         evidence,
		Suggestions:     ExtractSuggestions(answer),
		MatchedCategory: signal.Category,
		Emergency:       signal.Emergency,
		Augmented:       augmented,
	}, nil
}

// loadHistory fetches the recent dialogue window; failures degrade to an
// empty history.
func (uc *ConsultUseCase) loadHistory(ctx context.Context, sessionID string) []domain.Message {
	if sessionID == "" || uc.history == nil {
		return nil
	}
	messages, err := uc.history.ListRecentMessages(ctx, sessionID, uc.historyTurns*2)
	if err != nil {
		uc.logger.Warn("history_load_failed", "session_id", sessionID, "error", err)
		return nil
	}
	out := make([]domain.Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, domain.Message{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// persistTurn appends the question/answer pair; failures only log.
func (uc *ConsultUseCase) persistTurn(ctx context.Context, req domain.ConsultRequest, answer string) {
	if req.SessionID == "" || uc.history == nil {
		return
	}
	if err := uc.history.EnsureSession(ctx, req.UserID, req.SessionID); err != nil {
		uc.logger.Warn("history_ensure_failed", "session_id", req.SessionID, "error", err)
		return
	}
	now := time.Now().UTC()
	turns := []domain.SessionMessage{
		{ID: uuid.NewString(), SessionID: req.SessionID, UserID: req.UserID, Role: "user", Content: req.Question, CreatedAt: now},
		{ID: uuid.NewString(), SessionID: req.SessionID, UserID: req.UserID, Role: "assistant", Content: answer, CreatedAt: now},
	}
	for _, msg := range turns {
		if err := uc.history.AppendMessage(ctx, msg); err != nil {
			uc.logger.Warn("history_append_failed", "session_id", req.SessionID, "error", err)
			return
		}
	}
}

// ExtractSuggestions pulls up to 5 structured suggestions from numbered or
// bulleted lines of the generated answer.
func ExtractSuggestions(answer string) []string {
	suggestions := make([]string, 0, maxSuggestions)
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first, _ := firstRune(line)
		if !(first >= '0' && first <= '9') && first != '-' && first != '•' {
			continue
		}
		suggestion := strings.TrimSpace(strings.TrimLeft(line, "0123456789.-•、 "))
		if suggestion != "" {
			suggestions = append(suggestions, suggestion)
		}
		if len(suggestions) == maxSuggestions {
			break
		}
	}
	return suggestions
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}
