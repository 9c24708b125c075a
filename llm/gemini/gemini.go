// Package gemini talks to the Google Generative Language REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"fuelagent"
	"fuelagent/llm"
)

const (
	provider = "gemini"

	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultEmbeddingModel = "text-embedding-004"
)

type ClientOpts struct {
	BaseURL        string
	EmbeddingModel string
	HTTPClient     fuelagent.HTTPClient
	Options        llm.Options
}

type Client struct {
	baseURL        string
	embeddingModel string
	httpClient     fuelagent.HTTPClient
	opts           llm.Options
}

func NewClient(opts ClientOpts) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultEmbeddingModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		embeddingModel: opts.EmbeddingModel,
		httpClient:     opts.HTTPClient,
		opts:           opts.Options.WithDefaults(),
	}
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type wirePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	TopP            float32 `json:"topP"`
	MaxOutputTokens int32   `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []wireContent    `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      wireContent `json:"content"`
		FinishReason string      `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type embedRequest struct {
	Model    string      `json:"model"`
	Content  wireContent `json:"content"`
	TaskType string      `json:"taskType"`
}

type embedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

// Generate sends a single-turn multimodal prompt to generateContent.
func (c *Client) Generate(ctx context.Context, target llm.Target, parts []llm.Part) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", provider, "target", target.String(), "parts_len", len(parts))

	content := wireContent{Role: "user"}
	for _, p := range parts {
		if p.IsImage() {
			content.Parts = append(content.Parts, wirePart{InlineData: &inlineData{
				MIMEType: p.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Data),
			}})
			continue
		}
		content.Parts = append(content.Parts, wirePart{Text: p.Text})
	}

	req := generateRequest{
		Contents: []wireContent{content},
		GenerationConfig: generationConfig{
			Temperature:     c.opts.Temperature,
			TopP:            c.opts.TopP,
			MaxOutputTokens: c.opts.MaxTokens,
		},
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, target.Model)
	if err := c.post(ctx, url, target.Credential, req, &resp); err != nil {
		return "", err
	}

	if resp.PromptFeedback.BlockReason != "" {
		slog.Warn("LLM_CLIENT: Prompt blocked", "provider", provider, "reason", resp.PromptFeedback.BlockReason)
		return "", fmt.Errorf("%s: prompt blocked: %s", provider, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%s: response has no candidates", provider)
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := b.String()

	slog.Info("LLM_CLIENT: Generate succeeded",
		"provider", provider,
		"target", target.String(),
		"finish_reason", resp.Candidates[0].FinishReason,
		"text_len", len(text),
	)

	if text == "" && resp.Candidates[0].FinishReason == "MAX_TOKENS" {
		return "", fmt.Errorf("%s: model hit MaxTokens limit", provider)
	}
	return text, nil
}

// Embed calls embedContent with the retrieval task type matching mode.
func (c *Client) Embed(ctx context.Context, cred llm.Credential, text string, mode llm.EmbedMode) ([]float64, error) {
	taskType := "RETRIEVAL_DOCUMENT"
	if mode == llm.EmbedQuery {
		taskType = "RETRIEVAL_QUERY"
	}

	req := embedRequest{
		Model:    "models/" + c.embeddingModel,
		Content:  wireContent{Parts: []wirePart{{Text: text}}},
		TaskType: taskType,
	}

	var resp embedResponse
	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.embeddingModel)
	if err := c.post(ctx, url, cred, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%s: empty embedding", provider)
	}
	return resp.Embedding.Values, nil
}

func (c *Client) post(ctx context.Context, url string, cred llm.Credential, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", cred.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.Classify(provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("LLM_CLIENT: Request failed", "provider", provider, "credential", cred.Name, "status", resp.StatusCode)
		return llm.StatusError(provider, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}
