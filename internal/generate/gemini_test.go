package generate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textResponse(text string, uris ...string) map[string]any {
	var chunks []any
	for _, u := range uris {
		chunks = append(chunks, map[string]any{"web": map[string]any{"uri": u, "title": "t"}})
	}
	cand := map[string]any{
		"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		"finishReason": "STOP",
	}
	if len(chunks) > 0 {
		cand["groundingMetadata"] = map[string]any{"groundingChunks": chunks}
	}
	return map[string]any{"candidates": []any{cand}}
}

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// geminiServer serves handler and records each decoded request.
func geminiServer(t *testing.T, handler func(r *http.Request, req geminiRequest) (int, any)) (*Client, *LLMStats) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, body := handler(r, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	stats := NewLLMStats(time.Hour)
	c := NewGemini(GeminiConfig{APIKey: "test-key", BaseURL: srv.URL}, stats)
	t.Cleanup(c.Close)
	return c, stats
}

func TestGemini_Outline(t *testing.T) {
	c, stats := geminiServer(t, func(r *http.Request, req geminiRequest) (int, any) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
		assert.Contains(t, req.Contents[0].Parts[0].Text, "exactly 5 thematic chapter titles")
		assert.Empty(t, req.Tools)
		return http.StatusOK, textResponse(`{"title":" Bees ","chapters":["Hives","","hives","Honey"]}`)
	})

	o, err := c.Outline(context.Background(), OutlineRequest{Topic: "bees", MinPages: 8, MaxPages: 12, Language: English})
	require.NoError(t, err)
	assert.Equal(t, "Bees", o.Title)
	assert.Equal(t, []string{"Hives", "Honey"}, o.Chapters)
	assert.Equal(t, 1, stats.Snapshot().ByOp["outline"].Count)
}

func TestGemini_ChapterWithImagePromptAndSources(t *testing.T) {
	c, _ := geminiServer(t, func(r *http.Request, req geminiRequest) (int, any) {
		require.Len(t, req.Tools, 1)
		assert.NotNil(t, req.Tools[0].GoogleSearch)
		assert.Nil(t, req.GenerationConfig)
		assert.Contains(t, req.Contents[0].Parts[0].Text, ImagePromptMarker)
		return http.StatusOK, textResponse("## Part\n\nBody text.\n\nIMAGE_PROMPT: a honeycomb at dawn",
			"https://a.example.com", "https://a.example.com", "", "ftp://x", "https://b.example.com")
	})

	res, err := c.ChapterContent(context.Background(), ChapterRequest{
		BookTitle: "Bees", ChapterTitle: "Hives", Language: English, WantImage: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "## Part\n\nBody text.", res.Content)
	assert.Equal(t, "a honeycomb at dawn", res.ImagePrompt)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, res.Sources)
}

func TestGemini_Image(t *testing.T) {
	data := pngBase64(t, 8, 4)
	c, _ := geminiServer(t, func(r *http.Request, req geminiRequest) (int, any) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash-image:generateContent", r.URL.Path)
		assert.Equal(t, []string{"IMAGE"}, req.GenerationConfig.ResponseModalities)
		return http.StatusOK, map[string]any{"candidates": []any{map[string]any{
			"content": map[string]any{"parts": []any{
				map[string]any{"text": "here you go"},
				map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": data}},
			}},
		}}}
	})

	img, err := c.Image(context.Background(), "a cat")
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 8, img.Width)
	assert.Equal(t, 4, img.Height)
}

func TestGemini_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      any
		retryable bool
		malformed bool
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]any{"error": "slow down"}, true, false},
		{"server error", http.StatusBadGateway, map[string]any{}, true, false},
		{"bad request", http.StatusBadRequest, map[string]any{"error": "nope"}, false, false},
		{"not json", http.StatusOK, textResponse("sorry, I cannot"), false, true},
		{"no candidates", http.StatusOK, map[string]any{"promptFeedback": map[string]any{"blockReason": "SAFETY"}}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := geminiServer(t, func(*http.Request, geminiRequest) (int, any) { return tt.status, tt.body })
			_, err := c.Outline(context.Background(), OutlineRequest{Topic: "x", MinPages: 1, MaxPages: 1})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, IsRetryable(err))
			var me *MalformedResponseError
			assert.Equal(t, tt.malformed, errors.As(err, &me))
		})
	}
}

func TestGemini_TransportFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewGemini(GeminiConfig{APIKey: "k", BaseURL: url}, nil)
	_, err := c.StructureText(context.Background(), "text")
	assert.True(t, IsRetryable(err))
}

func TestGemini_CanceledContextIsNotRetryable(t *testing.T) {
	c, _ := geminiServer(t, func(*http.Request, geminiRequest) (int, any) {
		return http.StatusOK, textResponse("{}")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Outline(ctx, OutlineRequest{Topic: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsRetryable(err))
}

func TestSelectTopReferences(t *testing.T) {
	refs := []string{"https://a.com", "https://b.com", "https://c.com", "https://d.com", "https://e.com"}

	t.Run("few references skip the call", func(t *testing.T) {
		c, _ := geminiServer(t, func(*http.Request, geminiRequest) (int, any) {
			t.Error("unexpected call")
			return http.StatusOK, textResponse("{}")
		})
		got, err := c.SelectTopReferences(context.Background(), refs[:3], "x", English, 3)
		require.NoError(t, err)
		assert.Equal(t, refs[:3], got)
	})

	t.Run("invented picks are dropped", func(t *testing.T) {
		c, _ := geminiServer(t, func(*http.Request, geminiRequest) (int, any) {
			return http.StatusOK, textResponse(`{"top_sources":["https://made-up.com","https://d.com","https://b.com","https://a.com","https://c.com"]}`)
		})
		got, err := c.SelectTopReferences(context.Background(), refs, "x", English, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://d.com", "https://b.com", "https://a.com"}, got)
	})

	t.Run("nothing usable is malformed", func(t *testing.T) {
		c, _ := geminiServer(t, func(*http.Request, geminiRequest) (int, any) {
			return http.StatusOK, textResponse(`{"top_sources":["https://made-up.com"]}`)
		})
		_, err := c.SelectTopReferences(context.Background(), refs, "x", English, 3)
		var me *MalformedResponseError
		assert.ErrorAs(t, err, &me)
	})
}

func TestGemini_CoverImage(t *testing.T) {
	data := pngBase64(t, 3, 2)
	calls := 0
	c, _ := geminiServer(t, func(r *http.Request, req geminiRequest) (int, any) {
		calls++
		if req.GenerationConfig != nil && len(req.GenerationConfig.ResponseModalities) > 0 {
			assert.Equal(t, "a golden hive", req.Contents[0].Parts[0].Text)
			return http.StatusOK, map[string]any{"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": data}},
				}},
			}}}
		}
		return http.StatusOK, textResponse("  a golden hive \n")
	})

	img, err := c.CoverImage(context.Background(), "Bees", "bees")
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, calls)
}
