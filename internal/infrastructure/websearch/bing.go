// Package websearch provides the external augmentation provider used when
// local retrieval confidence is low.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clinicore/medrag/internal/core/domain"
)

const defaultResultCount = 3

// BingClient calls the Bing Web Search API. Results carry no score so they
// never participate in confidence evaluation.
type BingClient struct {
	endpoint    string
	apiKey      string
	resultCount int
	httpClient  *http.Client
}

type BingOptions struct {
	ResultCount int
	Timeout     time.Duration
}

func NewBingClient(endpoint, apiKey string, options BingOptions) *BingClient {
	count := options.ResultCount
	if count <= 0 {
		count = defaultResultCount
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BingClient{
		endpoint:    strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		resultCount: count,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *BingClient) Search(ctx context.Context, query string) ([]domain.EvidenceItem, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(c.resultCount))
	params.Set("mkt", "zh-CN")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create web search request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("web search status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		WebPages struct {
			Value []struct {
				Name    string `json:"name"`
				URL     string `json:"url"`
				Snippet string `json:"snippet"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}

	items := make([]domain.EvidenceItem, 0, len(decoded.WebPages.Value))
	for _, page := range decoded.WebPages.Value {
		content := strings.TrimSpace(page.Snippet)
		if content == "" {
			continue
		}
		if name := strings.TrimSpace(page.Name); name != "" {
			content = name + "\n" + content
		}
		items = append(items, domain.EvidenceItem{
			Origin:  domain.OriginExternal,
			Content: content,
			Score:   nil,
			Metadata: map[string]string{
				"title": page.Name,
				"url":   page.URL,
			},
		})
	}
	return items, nil
}
