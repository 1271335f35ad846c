// Package openai talks to an OpenAI-compatible API: chat completions for
// query rewriting, reranking and answer generation, embeddings for the
// vector path.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, apiKey, chatModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) chat(ctx context.Context, messages []chatMessage, temperature float64, operation string) (string, error) {
	request := chatRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: temperature,
	}

	var response chatResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1/chat/completions", request, &response, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai."+operation, call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("openai %s: empty choices", operation)
	}
	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai %s: empty completion", operation)
	}
	return content, nil
}

// Completer serves single-turn completion calls (rewrite, rerank).
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	return c.client.chat(ctx, []chatMessage{{Role: "user", Content: prompt}}, 0.1, "complete")
}

// Embedder builds query vectors in the corpus embedding space.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := embedRequest{
		Model: e.client.embedModel,
		Input: []string{text},
	}

	var response embedResponse
	call := func(callCtx context.Context) error {
		return e.client.postJSON(callCtx, "/v1/embeddings", request, &response, "embed")
	}

	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, "openai.embed", call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	if len(response.Data) == 0 || len(response.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("openai embed: empty embedding result")
	}
	return response.Data[0].Embedding, nil
}

// Generator creates the final user-facing answer.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, evidence []domain.EvidenceItem, history []domain.Message) (string, error) {
	messages := []chatMessage{
		{Role: "system", Content: answerSystemPrompt},
		{Role: "user", Content: buildAnswerUserPrompt(question, evidence, history)},
	}
	return g.client.chat(ctx, messages, 0.7, "generate")
}
