package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tsubaki/pkg/retrylimit"
)

// OpenAIProvider speaks the /chat/completions dialect against any
// compatible endpoint (OpenAI, a local proxy, etc.).
type OpenAIProvider struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	limiter *retrylimit.AdaptiveLimiter
}

// NewOpenAIProvider builds a provider. apiKey may be empty for keyless
// local endpoints. Calls are never retried, but the request rate adapts to
// the endpoint: it speeds up while calls succeed and backs off on 429s and
// server errors.
func NewOpenAIProvider(baseURL, model, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: retrylimit.NewAdaptiveLimiter(2, 1, 10, 1, 0.5),
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	payload := map[string]any{
		"model":    p.model,
		"messages": messages,
	}
	bodyBytes, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			p.limiter.RateLimited()
		}
		return "", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody))
	}
	p.limiter.Success()

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return cleanReply(parsed.Choices[0].Message.Content), nil
}
