// Package bedrock adapts the Amazon Bedrock Converse and InvokeModel APIs to
// the llm interfaces.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"fuelagent/llm"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

const (
	provider = "bedrock"

	// defaultEmbeddingModel accepts {"inputText"} and answers {"embedding"}.
	defaultEmbeddingModel = "amazon.titan-embed-text-v2:0"
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(context.Context, *bedrockruntime.InvokeModelInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// ClientFactory builds a runtime client for one credential. For Bedrock the
// credential name is a shared-config profile.
type ClientFactory func(ctx context.Context, cred llm.Credential) (bedrockRuntimeClient, error)

// ProfileFactory loads AWS config for the credential's profile in region.
func ProfileFactory(region string) ClientFactory {
	return func(ctx context.Context, cred llm.Credential) (bedrockRuntimeClient, error) {
		opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
		if cred.Name != "" && cred.Name != "default" {
			opts = append(opts, config.WithSharedConfigProfile(cred.Name))
		}
		cfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config for %s: %w", cred.Name, err)
		}
		return bedrockruntime.NewFromConfig(cfg), nil
	}
}

type LLMOptions struct {
	Options        llm.Options
	EmbeddingModel string
}

type LLMClient struct {
	factory ClientFactory
	opts    LLMOptions

	mu      sync.Mutex
	clients map[string]bedrockRuntimeClient
}

func NewLLMClient(factory ClientFactory, opts LLMOptions) *LLMClient {
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultEmbeddingModel
	}
	opts.Options = opts.Options.WithDefaults()
	return &LLMClient{
		factory: factory,
		opts:    opts,
		clients: make(map[string]bedrockRuntimeClient),
	}
}

func (c *LLMClient) client(ctx context.Context, cred llm.Credential) (bedrockRuntimeClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if brc, ok := c.clients[cred.Name]; ok {
		return brc, nil
	}
	brc, err := c.factory(ctx, cred)
	if err != nil {
		return nil, err
	}
	c.clients[cred.Name] = brc
	return brc, nil
}

// Generate runs a single-turn Converse call with text and image blocks.
func (c *LLMClient) Generate(ctx context.Context, target llm.Target, parts []llm.Part) (string, error) {
	slog.Info("LLM_CLIENT: Invoked", "provider", provider, "target", target.String(), "parts_len", len(parts))

	brc, err := c.client(ctx, target.Credential)
	if err != nil {
		return "", err
	}

	msg := types.Message{Role: types.ConversationRoleUser}
	for _, p := range parts {
		if !p.IsImage() {
			msg.Content = append(msg.Content, &types.ContentBlockMemberText{Value: p.Text})
			continue
		}
		format, ok := imageFormat(p.MIMEType)
		if !ok {
			slog.Warn("LLM_CLIENT: Skipping image with unsupported format", "mime_type", p.MIMEType)
			continue
		}
		msg.Content = append(msg.Content, &types.ContentBlockMemberImage{Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: p.Data},
		}})
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(target.Model),
		Messages: []types.Message{msg},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.Options.MaxTokens),
			Temperature: aws.Float32(c.opts.Options.Temperature),
			TopP:        aws.Float32(c.opts.Options.TopP),
		},
	}
	out, err := brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock converse failed", "target", target.String(), "error", err)
		return "", classify(err)
	}

	var latency int64
	if out.Metrics != nil {
		latency = aws.ToInt64(out.Metrics.LatencyMs)
	}
	slog.Info("LLM_CLIENT: Bedrock converse succeeded",
		"target", target.String(),
		"stop_reason", out.StopReason,
		"latency_ms", latency,
	)

	switch out.StopReason {
	case types.StopReasonMaxTokens:
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit; consider increasing MaxTokens")
		return "", fmt.Errorf("model hit MaxTokens limit; consider increasing MaxTokens")
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		slog.Warn("LLM_CLIENT: Model response blocked by Bedrock safety filters")
		return "", fmt.Errorf("model response blocked by Bedrock safety filters")
	}

	return textFromOutput(out), nil
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed calls a Titan text embedding model. Titan embeddings are symmetric,
// so mode does not change the request.
func (c *LLMClient) Embed(ctx context.Context, cred llm.Credential, text string, mode llm.EmbedMode) ([]float64, error) {
	brc, err := c.client(ctx, cred)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	out, err := brc.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.opts.EmbeddingModel),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock embedding failed", "credential", cred.Name, "mode", mode.String(), "error", err)
		return nil, classify(err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%s: empty embedding", provider)
	}
	return resp.Embedding, nil
}

func imageFormat(mimeType string) (types.ImageFormat, bool) {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/png":
		return types.ImageFormatPng, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	}
	return "", false
}

func classify(err error) error {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "ThrottlingException", "ServiceQuotaExceededException", "TooManyRequestsException":
			return llm.RateLimited(provider, err)
		}
	}
	return llm.Classify(provider, err)
}

// textFromOutput joins the assistant's text blocks with newlines.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	if out == nil || out.Output == nil {
		return ""
	}

	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil || len(msg.Value.Content) == 0 {
		return ""
	}

	texts := make([]string, 0, len(msg.Value.Content))
	for _, cb := range msg.Value.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && t != nil && t.Value != "" {
			texts = append(texts, t.Value)
		}
	}
	return strings.Join(texts, "\n")
}
