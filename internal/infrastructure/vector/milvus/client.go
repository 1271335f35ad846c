// Package milvus is a read-only client for the Milvus v2 REST API. It serves
// two boundary contracts: nearest-neighbor search for the vector path and
// paginated corpus enumeration for lexical index construction. Collection
// lifecycle (creation, schema, ingestion) is out of scope here.
package milvus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clinicore/medrag/internal/core/domain"
	"github.com/clinicore/medrag/internal/infrastructure/resilience"
)

// outputFields mirrors the disease knowledge-base collection schema.
var outputFields = []string{
	"id", "content", "name", "category_primary", "symptoms",
	"cure_department", "cure_way", "get_way", "cured_prob",
}

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// Search runs nearest-neighbor search and returns hits with the store's
// native L2 distance; similarity conversion belongs to the vector path.
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.VectorHit, error) {
	reqBody := map[string]any{
		"collectionName": c.collection,
		"data":           [][]float32{queryVector},
		"annsField":      "embedding",
		"limit":          limit,
		"outputFields":   outputFields,
	}

	var rows []map[string]any
	call := func(callCtx context.Context) error {
		var err error
		rows, err = c.postRows(callCtx, "/v2/vectordb/entities/search", reqBody, "search")
		return err
	}
	if err := c.execute(ctx, "milvus.search", call); err != nil {
		return nil, err
	}

	out := make([]domain.VectorHit, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.VectorHit{
			Distance: floatField(row, "distance"),
			Document: decodeDocument(row),
		})
	}
	return out, nil
}

// FetchBatch enumerates one page of the corpus in stable id order.
func (c *Client) FetchBatch(ctx context.Context, offset, limit int) ([]domain.CorpusDocument, error) {
	reqBody := map[string]any{
		"collectionName": c.collection,
		"filter":         `id != ""`,
		"outputFields":   outputFields,
		"limit":          limit,
		"offset":         offset,
	}

	var rows []map[string]any
	call := func(callCtx context.Context) error {
		var err error
		rows, err = c.postRows(callCtx, "/v2/vectordb/entities/query", reqBody, "query")
		return err
	}
	if err := c.execute(ctx, "milvus.query", call); err != nil {
		return nil, err
	}

	out := make([]domain.CorpusDocument, 0, len(rows))
	for _, row := range rows {
		out = append(out, decodeDocument(row))
	}
	return out, nil
}

func (c *Client) execute(ctx context.Context, operation string, call func(context.Context) error) error {
	if c.executor != nil {
		return c.executor.Execute(ctx, operation, call, classifyMilvusError)
	}
	return call(ctx)
}

func (c *Client) postRows(ctx context.Context, path string, payload any, operation string) ([]map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("milvus %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: msg}
		}
		return nil, &HTTPStatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var decoded struct {
		Code    int              `json:"code"`
		Message string           `json:"message"`
		Data    []map[string]any `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", operation, err)
	}
	if decoded.Code != 0 {
		return nil, fmt.Errorf("milvus %s code %d: %s", operation, decoded.Code, decoded.Message)
	}
	return decoded.Data, nil
}

func decodeDocument(row map[string]any) domain.CorpusDocument {
	return domain.CorpusDocument{
		ID:              stringField(row, "id"),
		Content:         stringField(row, "content"),
		Name:            stringField(row, "name"),
		CategoryPrimary: stringField(row, "category_primary"),
		Symptoms:        stringField(row, "symptoms"),
		CureDepartment:  stringField(row, "cure_department"),
		CureWay:         stringField(row, "cure_way"),
		GetWay:          stringField(row, "get_way"),
		CuredProb:       stringField(row, "cured_prob"),
	}
}

func stringField(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func floatField(row map[string]any, key string) float64 {
	v, ok := row[key]
	if !ok {
		return 0
	}
	f, _ := v.(float64)
	return f
}
