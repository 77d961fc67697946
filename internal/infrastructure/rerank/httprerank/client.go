package httprerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuskondo/docquiz/internal/infrastructure/resilience"
)

// Client calls an external cross-encoder scoring service. The service
// takes a query plus candidate passages and returns one relevance
// score per passage, in input order.
type Client struct {
	endpoint   string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(endpoint string, timeout time.Duration, exec *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig(), nil)
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/") + "/rerank",
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
	}
}

func (c *Client) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"query":    query,
		"passages": passages,
	}

	var response struct {
		Scores []float64 `json:"scores"`
	}
	err := c.exec.Execute(ctx, "rerank", func(ctx context.Context) error {
		return c.postJSON(ctx, reqBody, &response)
	}, classifyRerankError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("rerank", err)
	}

	if len(response.Scores) != len(passages) {
		return nil, fmt.Errorf("rerank score count mismatch: %d scores for %d passages", len(response.Scores), len(passages))
	}
	return response.Scores, nil
}

func (c *Client) postJSON(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}
