// Package ollama talks to a local or proxied Ollama server.
package ollama

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

const provider = "ollama"

type options struct {
	Temperature   float32 `json:"temperature,omitempty"`
	TopP          float32 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	NumPredict    int32   `json:"num_predict,omitempty"`
}

type Client struct {
	chatEndpoint   string
	embedEndpoint  string
	embeddingModel string
	httpClient     fuelagent.HTTPClient
	options        options
}

type ClientOpts struct {
	BaseEndpoint   string
	EmbeddingModel string
	HTTPClient     fuelagent.HTTPClient
	Options        llm.Options
}

func NewClient(opts ClientOpts) (*Client, error) {
	if strings.TrimSpace(opts.BaseEndpoint) == "" {
		return nil, fmt.Errorf("invalid base endpoint")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = "nomic-embed-text"
	}

	o := opts.Options.WithDefaults()
	base := strings.TrimRight(opts.BaseEndpoint, "/")
	return &Client{
		chatEndpoint:   base + "/api/chat",
		embedEndpoint:  base + "/api/embed",
		embeddingModel: opts.EmbeddingModel,
		httpClient:     opts.HTTPClient,
		options: options{
			Temperature:   o.Temperature,
			TopP:          o.TopP,
			RepeatPenalty: 1.05,
			NumCtx:        16384,
			NumPredict:    o.MaxTokens,
		},
	}, nil
}

type wireMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type wireRequest struct {
	Model    string        `json:"model"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  options       `json:"options,omitempty"`
}

type wireResponse struct {
	Message wireMessage `json:"message"`
	// other metadata omitted but available
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}

// Generate sends all text parts as one user message and attaches images
// through Ollama's base64 images field.
func (c *Client) Generate(ctx context.Context, target llm.Target, parts []llm.Part) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", provider, "target", target.String(), "parts_len", len(parts))

	msg := wireMessage{Role: "user"}
	var texts []string
	for _, p := range parts {
		if p.IsImage() {
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(p.Data))
			continue
		}
		texts = append(texts, p.Text)
	}
	msg.Content = strings.Join(texts, "\n\n")

	var wr wireResponse
	err := c.post(ctx, c.chatEndpoint, target.Credential, wireRequest{
		Model:    target.Model,
		Messages: []wireMessage{msg},
		Stream:   false,
		Options:  c.options,
	}, &wr)
	if err != nil {
		return "", err
	}

	slog.Info("LLM_CLIENT: Generate succeeded", "provider", provider, "target", target.String(), "text_len", len(wr.Message.Content))

	// Return the model's content verbatim; extraction happens upstream.
	return wr.Message.Content, nil
}

// Embed calls /api/embed. Ollama models are symmetric so mode is ignored.
func (c *Client) Embed(ctx context.Context, cred llm.Credential, text string, mode llm.EmbedMode) ([]float64, error) {
	var er embedResponse
	if err := c.post(ctx, c.embedEndpoint, cred, embedRequest{Model: c.embeddingModel, Input: text}, &er); err != nil {
		return nil, err
	}
	if len(er.Embeddings) == 0 || len(er.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("%s: empty embedding", provider)
	}
	return er.Embeddings[0], nil
}

func (c *Client) post(ctx context.Context, url string, cred llm.Credential, in, out any) error {
	reqBytes, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBytes))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	// Hosted Ollama proxies authenticate with a bearer token.
	if cred.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.Classify(provider, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return llm.StatusError(provider, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		slog.Warn("LLM_CLIENT: decode failed", "provider", provider, "err", err, "body_len", len(body))
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}
