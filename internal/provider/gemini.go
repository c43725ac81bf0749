package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/draftsmith/draftsmith/internal/config"
)

// Gemini implements Generator for Google Gemini.
type Gemini struct {
	client *genai.Client
	cfg    config.ProviderConfig
}

// NewGemini creates a Gemini-backed generator. The API key is resolved
// from the configured environment variable.
func NewGemini(ctx context.Context, cfg config.ProviderConfig) (*Gemini, error) {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (set %s)", cfg.APIKeyEnv)
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &Gemini{client: client, cfg: cfg}, nil
}

// Generate performs one generation call.
func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	profile := req.Profile
	if profile == "" {
		profile = g.cfg.Profile
	}
	modelName := g.cfg.Model(profile)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for profile %s", profile)
	}

	model := g.client.GenerativeModel(modelName)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, classify("generate", err)
	}

	text, err := extractText(resp)
	if err != nil {
		return nil, &Error{Provider: "gemini", Op: "generate", Cause: err}
	}
	if req.JSON {
		text = cleanJSONBlock(text)
	}

	usage := extractUsage(resp)
	return &Response{
		Text:    text,
		Model:   modelName,
		Usage:   usage,
		CostUSD: Cost(modelName, usage),
	}, nil
}

// Close releases resources held by the client.
func (g *Gemini) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// classify maps transport and API errors onto the transient/permanent split.
func classify(op string, err error) *Error {
	perr := &Error{Provider: "gemini", Op: op, Cause: err}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		perr.StatusCode = apiErr.Code
		switch apiErr.Code {
		case 408, 429, 500, 502, 503, 504:
			perr.Retryable = true
		}
		return perr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		perr.Retryable = true
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		perr.Retryable = true
		return perr
	}

	return perr
}

// extractText flattens the first candidate's text parts.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// extractUsage reads token counts from response metadata.
func extractUsage(resp *genai.GenerateContentResponse) Usage {
	if resp.UsageMetadata == nil {
		return Usage{}
	}
	return Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// Ensure Gemini implements Generator
var _ Generator = (*Gemini)(nil)
