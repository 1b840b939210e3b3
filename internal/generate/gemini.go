package generate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	Timeout    time.Duration
}

// gemini calls the generateContent REST endpoint.
type gemini struct {
	cfg        GeminiConfig
	httpClient *http.Client
}

// NewGemini returns a client for the Gemini API. It produces text, web
// grounding sources and images.
func NewGemini(cfg GeminiConfig, stats *LLMStats) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = "gemini-2.5-flash"
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = "gemini-2.5-flash-image"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	g := &gemini{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	return &Client{name: "gemini", text: g, img: g, stats: stats, close: g.httpClient.CloseIdleConnections}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType   string         `json:"responseMimeType,omitempty"`
	ResponseSchema     map[string]any `json:"responseSchema,omitempty"`
	ResponseModalities []string       `json:"responseModalities,omitempty"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools            []geminiTool            `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content           geminiContent `json:"content"`
		FinishReason      string        `json:"finishReason"`
		GroundingMetadata *struct {
			GroundingChunks []struct {
				Web *struct {
					URI   string `json:"uri"`
					Title string `json:"title"`
				} `json:"web"`
			} `json:"groundingChunks"`
		} `json:"groundingMetadata"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *gemini) generate(ctx context.Context, op, model string, req geminiRequest) (*geminiResponse, error) {
	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/v1beta/models/" + model + ":generateContent"
	body, err := postJSON(ctx, g.httpClient, url, map[string]string{"x-goog-api-key": g.cfg.APIKey}, req)
	if err != nil {
		return nil, err
	}
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed(op, string(body), err)
	}
	if len(resp.Candidates) == 0 {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "blocked: " + resp.PromptFeedback.BlockReason
		}
		return nil, malformed(op, string(body), errors.New(reason))
	}
	return &resp, nil
}

func (g *gemini) complete(ctx context.Context, c call) (reply, error) {
	req := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: c.prompt}}}},
	}
	if c.schema != nil {
		req.GenerationConfig = &geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   c.schema,
		}
	}
	if c.grounded {
		req.Tools = []geminiTool{{GoogleSearch: &struct{}{}}}
	}

	resp, err := g.generate(ctx, "complete", g.cfg.TextModel, req)
	if err != nil {
		return reply{}, err
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, p := range cand.Content.Parts {
		sb.WriteString(p.Text)
	}
	var sources []string
	if gm := cand.GroundingMetadata; gm != nil {
		for _, ch := range gm.GroundingChunks {
			if ch.Web != nil && ch.Web.URI != "" {
				sources = append(sources, ch.Web.URI)
			}
		}
	}
	return reply{text: sb.String(), sources: sources}, nil
}

func (g *gemini) image(ctx context.Context, prompt string) ([]byte, error) {
	req := geminiRequest{
		Contents:         []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"IMAGE"}},
	}
	resp, err := g.generate(ctx, "image", g.cfg.ImageModel, req)
	if err != nil {
		return nil, err
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return nil, malformed("image", "", err)
		}
		return data, nil
	}
	return nil, malformed("image", "", errors.New("no inline image in response"))
}
