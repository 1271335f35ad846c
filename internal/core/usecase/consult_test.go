package usecase

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/core/ports"
)

type stubEngine struct {
	items  []domain.EvidenceItem
	signal domain.RuleSignal
	gotQ   string
}

func (s *stubEngine) Retrieve(_ context.Context, optimizedQuery string) ([]domain.EvidenceItem, domain.RuleSignal, error) {
	s.gotQ = optimizedQuery
	return s.items, s.signal, nil
}

type stubAugmenter struct {
	items []domain.EvidenceItem
	err   error
	calls int
}

func (s *stubAugmenter) Search(context.Context, string) ([]domain.EvidenceItem, error) {
	s.calls++
	return s.items, s.err
}

type stubGenerator struct {
	answer      string
	err         error
	gotQuestion string
	gotEvidence []domain.EvidenceItem
}

func (s *stubGenerator) GenerateAnswer(_ context.Context, question string, evidence []domain.EvidenceItem, _ []domain.Message) (string, error) {
	s.gotQuestion = question
	s.gotEvidence = evidence
	return s.answer, s.err
}

type stubHistory struct {
	messages  []domain.SessionMessage
	listErr   error
	appendErr error
	appended  []domain.SessionMessage
}

func (s *stubHistory) EnsureSession(context.Context, string, string) error { return nil }

func (s *stubHistory) AppendMessage(_ context.Context, msg domain.SessionMessage) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, msg)
	return nil
}

func (s *stubHistory) ListRecentMessages(context.Context, string, int) ([]domain.SessionMessage, error) {
	return s.messages, s.listErr
}

type countingConsultMetrics struct {
	augmentations int
}

func (c *countingConsultMetrics) AugmentationTriggered() { c.augmentations++ }

func newConsultUC(engine *stubEngine, augment *stubAugmenter, generator *stubGenerator, history *stubHistory, metrics ConsultMetrics) *ConsultUseCase {
	optimizer := NewQueryOptimizer(nil, testSynonyms, false, true, nil)

	var augmentPort ports.AugmentationProvider
	if augment != nil {
		augmentPort = augment
	}
	var historyPort ports.HistoryStore
	if history != nil {
		historyPort = history
	}
	return NewConsultUseCase(optimizer, engine, augmentPort, generator, historyPort, 6, 0.5, metrics, nil)
}

func TestConsultRejectsEmptyQuestion(t *testing.T) {
	uc := newConsultUC(&stubEngine{}, nil, &stubGenerator{answer: "x"}, nil, nil)

	_, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestConsultGeneratorSeesOriginalQuestion(t *testing.T) {
	engine := &stubEngine{items: []domain.EvidenceItem{
		evidence(domain.OriginVector, "【感冒】发热", 0.9),
	}}
	generator := &stubGenerator{answer: "建议多休息"}
	uc := newConsultUC(engine, nil, generator, nil, nil)

	_, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "我脑袋疼怎么办"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	// Retrieval uses the normalized query, generation keeps the raw question.
	if engine.gotQ != "我头痛怎么办" {
		t.Fatalf("engine should see normalized query, got %q", engine.gotQ)
	}
	if generator.gotQuestion != "我脑袋疼怎么办" {
		t.Fatalf("generator should see original question, got %q", generator.gotQuestion)
	}
}

func TestConsultAugmentsOnLowConfidence(t *testing.T) {
	engine := &stubEngine{items: []domain.EvidenceItem{
		evidence(domain.OriginVector, "弱相关", 0.3),
	}}
	augment := &stubAugmenter{items: []domain.EvidenceItem{
		{Origin: domain.OriginExternal, Content: "联网结果", Metadata: map[string]string{"url": "https://example.com"}},
	}}
	generator := &stubGenerator{answer: "建议就医"}
	metrics := &countingConsultMetrics{}
	uc := newConsultUC(engine, augment, generator, nil, metrics)

	result, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "罕见病怎么治"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if augment.calls != 1 {
		t.Fatalf("expected one augmentation call, got %d", augment.calls)
	}
	if !result.Augmented {
		t.Fatalf("expected augmented result")
	}
	if len(result.Sources) != 2 || result.Sources[1].Origin != domain.OriginExternal {
		t.Fatalf("expected external evidence appended, got %v", result.Sources)
	}
	if metrics.augmentations != 1 {
		t.Fatalf("expected augmentation metric, got %d", metrics.augmentations)
	}
	if len(generator.gotEvidence) != 2 {
		t.Fatalf("generator must see augmented evidence, got %d items", len(generator.gotEvidence))
	}
}

func TestConsultSkipsAugmentationOnHighConfidence(t *testing.T) {
	engine := &stubEngine{items: []domain.EvidenceItem{
		evidence(domain.OriginVector, "强相关", 0.9),
	}}
	augment := &stubAugmenter{}
	uc := newConsultUC(engine, augment, &stubGenerator{answer: "建议"}, nil, nil)

	result, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "感冒怎么办"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if augment.calls != 0 {
		t.Fatalf("augmentation must not run at high confidence")
	}
	if result.Augmented {
		t.Fatalf("result must not be marked augmented")
	}
}

func TestConsultAugmentationFailureDegrades(t *testing.T) {
	engine := &stubEngine{}
	augment := &stubAugmenter{err: fmt.Errorf("bing down")}
	generator := &stubGenerator{answer: "知识库中未找到相关信息，建议就医"}
	uc := newConsultUC(engine, augment, generator, nil, nil)

	result, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "罕见病怎么治"})
	if err != nil {
		t.Fatalf("augmentation failure must not fail the consult, got %v", err)
	}
	if result.Augmented {
		t.Fatalf("failed augmentation must not mark the result augmented")
	}
	if result.Answer == "" {
		t.Fatalf("expected an answer despite augmentation failure")
	}
}

func TestConsultGeneratorErrorPropagates(t *testing.T) {
	uc := newConsultUC(&stubEngine{}, nil, &stubGenerator{err: fmt.Errorf("llm down")}, nil, nil)

	_, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "感冒怎么办"})
	if err == nil || !strings.Contains(err.Error(), "generate answer") {
		t.Fatalf("expected generation error to propagate, got %v", err)
	}
}

func TestConsultHistoryFailureDegradesToEmpty(t *testing.T) {
	history := &stubHistory{listErr: fmt.Errorf("db down")}
	uc := newConsultUC(&stubEngine{}, nil, &stubGenerator{answer: "建议"}, history, nil)

	_, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "感冒怎么办", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("history failure must not fail the consult, got %v", err)
	}
}

func TestConsultPersistsDialogueTurn(t *testing.T) {
	history := &stubHistory{}
	uc := newConsultUC(&stubEngine{}, nil, &stubGenerator{answer: "建议多喝水"}, history, nil)

	_, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "感冒怎么办", SessionID: "s-1", UserID: "u-1"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if len(history.appended) != 2 {
		t.Fatalf("expected user+assistant turns persisted, got %d", len(history.appended))
	}
	if history.appended[0].Role != "user" || history.appended[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %v", history.appended)
	}
	if history.appended[0].ID == history.appended[1].ID || history.appended[0].ID == "" {
		t.Fatalf("expected distinct non-empty message ids")
	}
}

func TestConsultPersistFailureOnlyLogs(t *testing.T) {
	history := &stubHistory{appendErr: fmt.Errorf("db down")}
	uc := newConsultUC(&stubEngine{}, nil, &stubGenerator{answer: "建议"}, history, nil)

	result, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "感冒怎么办", SessionID: "s-1"})
	if err != nil {
		t.Fatalf("persist failure must not fail the consult, got %v", err)
	}
	if result.Answer != "建议" {
		t.Fatalf("unexpected answer %q", result.Answer)
	}
}

func TestConsultCarriesRuleSignal(t *testing.T) {
	engine := &stubEngine{signal: domain.RuleSignal{Category: "symptom", Emergency: true}}
	uc := newConsultUC(engine, nil, &stubGenerator{answer: "请立即就医"}, nil, nil)

	result, err := uc.Consult(context.Background(), domain.ConsultRequest{Question: "胸痛呼吸困难"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if result.MatchedCategory != "symptom" || !result.Emergency {
		t.Fatalf("rule signal lost: %+v", result)
	}
}

func TestExtractSuggestions(t *testing.T) {
	answer := `根据您的症状，建议如下：
1. 多饮温水，保持休息
2. 体温超过38.5度时服用退热药
- 观察是否出现皮疹
• 保持室内通风
这不是建议行。
3. 若三天未好转请就医
4. 额外建议一
5. 额外建议二`

	got := ExtractSuggestions(answer)
	want := []string{
		"多饮温水，保持休息",
		"体温超过38.5度时服用退热药",
		"观察是否出现皮疹",
		"保持室内通风",
		"若三天未好转请就医",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractSuggestions = %v, want %v", got, want)
	}
}

func TestExtractSuggestionsEmptyAnswer(t *testing.T) {
	if got := ExtractSuggestions("没有分条建议的纯文本回答。"); len(got) != 0 {
		t.Fatalf("expected no suggestions, got %v", got)
	}
}
