package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const DefaultAnthropicBaseURL = "https://api.anthropic.com"

type ClaudeConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// claude calls the Anthropic Messages API. It has no image output and no web
// grounding, so chapters it writes carry no sources.
type claude struct {
	cfg        ClaudeConfig
	httpClient *http.Client
}

func NewClaude(cfg ClaudeConfig, stats *LLMStats) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAnthropicBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	c := &claude{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	return &Client{name: "claude", text: c, stats: stats, close: c.httpClient.CloseIdleConnections}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *claude) complete(ctx context.Context, cl call) (reply, error) {
	prompt := cl.prompt
	if cl.schema != nil {
		schema, err := json.Marshal(cl.schema)
		if err != nil {
			return reply{}, fmt.Errorf("marshal schema: %w", err)
		}
		prompt += "\n\nRespond with ONLY a JSON object matching this schema, no other text:\n" + string(schema)
	}

	body, err := postJSON(ctx, c.httpClient, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/messages",
		map[string]string{
			"x-api-key":         c.cfg.APIKey,
			"anthropic-version": "2023-06-01",
		},
		anthropicRequest{
			Model:     c.cfg.Model,
			MaxTokens: 8192,
			Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
		})
	if err != nil {
		return reply{}, err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return reply{}, malformed("complete", string(body), err)
	}
	if resp.Error != nil {
		return reply{}, fmt.Errorf("claude error: %s: %s", resp.Error.Type, resp.Error.Message)
	}
	var sb strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return reply{}, malformed("complete", string(body), errors.New("empty response"))
	}
	return reply{text: sb.String()}, nil
}
