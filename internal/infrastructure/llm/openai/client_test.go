package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clinicore/medrag/internal/core/domain"
)

func TestCompleterSendsPromptAndTrimsOutput(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  头痛 持续时间  "}},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "test-key", "chat-model", "embed-model", Options{})
	out, err := NewCompleter(client).Complete(context.Background(), "改写这句话")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "头痛 持续时间" {
		t.Fatalf("expected trimmed output, got %q", out)
	}
	if gotBody["model"] != "chat-model" {
		t.Fatalf("unexpected model %v", gotBody["model"])
	}
}

func TestCompleterEmptyChoicesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := New(server.URL, "", "chat-model", "embed-model", Options{})
	if _, err := NewCompleter(client).Complete(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestCompleterStatusErrorCarriesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := New(server.URL, "", "chat-model", "embed-model", Options{})
	_, err := NewCompleter(client).Complete(context.Background(), "q")

	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected HTTPStatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status %d", statusErr.StatusCode)
	}
	if !strings.Contains(statusErr.Body, "rate limited") {
		t.Fatalf("expected body capture, got %q", statusErr.Body)
	}
}

func TestEmbedQueryReturnsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "embed-model" {
			t.Fatalf("unexpected embed model %v", req["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "", "chat-model", "embed-model", Options{})
	vec, err := NewEmbedder(client).EmbedQuery(context.Background(), "我发热了")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedQueryEmptyResultErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	client := New(server.URL, "", "chat-model", "embed-model", Options{})
	if _, err := NewEmbedder(client).EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for empty embedding result")
	}
}

func TestGenerateAnswerLabelsEvidenceByOrigin(t *testing.T) {
	var gotBody struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Temperature float64 `json:"temperature"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "建议多休息"}},
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "", "chat-model", "embed-model", Options{})
	evidence := []domain.EvidenceItem{
		{Origin: domain.OriginVector, Content: "【感冒】发热 咳嗽"},
		{Origin: domain.OriginExternal, Content: "联网搜索片段"},
	}
	history := []domain.Message{{Role: "user", Content: "我昨天开始发热"}}

	answer, err := NewGenerator(client).GenerateAnswer(context.Background(), "我发热了怎么办", evidence, history)
	if err != nil {
		t.Fatalf("GenerateAnswer() error = %v", err)
	}
	if answer != "建议多休息" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("expected system+user messages, got %v", gotBody.Messages)
	}
	userPrompt := gotBody.Messages[1].Content
	if !strings.Contains(userPrompt, "【知识库】") || !strings.Contains(userPrompt, "【联网搜索】") {
		t.Fatalf("expected provenance labels in prompt:\n%s", userPrompt)
	}
	if !strings.Contains(userPrompt, "我昨天开始发热") {
		t.Fatalf("expected history block in prompt:\n%s", userPrompt)
	}
	if gotBody.Temperature != 0.7 {
		t.Fatalf("unexpected generation temperature %v", gotBody.Temperature)
	}
}
