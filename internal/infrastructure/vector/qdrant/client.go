package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuskondo/docquiz/internal/core/domain"
)

// Client is a read-only consumer of one qdrant collection. Indexing is
// owned by the ingestion pipeline; this client only searches, scrolls,
// fetches by id, and counts.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) Search(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if sourceFilter := sourceMatchFilter(filter); sourceFilter != nil {
		reqBody["filter"] = sourceFilter
	}

	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/search", c.collection), reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievedChunk{
			Chunk: chunkFromPayload(pointID(r.ID), r.Payload),
			Score: r.Score,
		})
	}
	return out, nil
}

// Scroll pages through the collection; the returned token is the
// next_page_offset, empty when the scroll is complete.
func (c *Client) Scroll(ctx context.Context, offset string, limit int) ([]domain.Chunk, string, error) {
	reqBody := map[string]any{
		"limit":        limit,
		"with_payload": true,
	}
	if offset != "" {
		reqBody["offset"] = offset
	}

	var scrollResp struct {
		Result struct {
			Points []struct {
				ID      any            `json:"id"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
			NextPageOffset any `json:"next_page_offset"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/scroll", c.collection), reqBody, &scrollResp, "scroll"); err != nil {
		return nil, "", err
	}

	chunks := make([]domain.Chunk, 0, len(scrollResp.Result.Points))
	for _, p := range scrollResp.Result.Points {
		chunks = append(chunks, chunkFromPayload(pointID(p.ID), p.Payload))
	}
	return chunks, pointID(scrollResp.Result.NextPageOffset), nil
}

func (c *Client) GetByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	reqBody := map[string]any{
		"ids":          ids,
		"with_payload": true,
	}

	var pointsResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points", c.collection), reqBody, &pointsResp, "get points"); err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(pointsResp.Result))
	for _, p := range pointsResp.Result {
		chunks = append(chunks, chunkFromPayload(pointID(p.ID), p.Payload))
	}
	return chunks, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/count", c.collection), map[string]any{"exact": true}, &countResp, "count"); err != nil {
		return 0, err
	}
	return countResp.Result.Count, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func sourceMatchFilter(filter domain.SearchFilter) map[string]any {
	if len(filter.Sources) == 0 {
		return nil
	}
	values := make([]any, 0, len(filter.Sources))
	for _, source := range filter.Sources {
		values = append(values, source)
	}
	return map[string]any{
		"must": []map[string]any{
			{
				"key": "source",
				"match": map[string]any{
					"any": values,
				},
			},
		},
	}
}

func chunkFromPayload(id string, payload map[string]any) domain.Chunk {
	return domain.Chunk{
		ID:         id,
		Source:     getStringPayload(payload, "source"),
		Page:       getIntPayload(payload, "page"),
		ChunkIndex: getIntPayload(payload, "chunk_index"),
		Text:       getStringPayload(payload, "text"),
	}
}

func pointID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return fmt.Sprintf("%d", int64(id))
	default:
		return fmt.Sprintf("%v", id)
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
