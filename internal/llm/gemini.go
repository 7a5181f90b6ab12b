package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini-backed Completer.
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	Temperature float32
	// Timeout bounds each completion call. Zero means no per-call bound
	// beyond the caller's context.
	Timeout time.Duration
}

// Gemini completes queries through the Gemini API.
type Gemini struct {
	client      *genai.Client
	modelName   string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

// NewGemini creates a Gemini completer using API-key authentication.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key must not be empty")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("gemini: model name must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		logger:      logger,
	}, nil
}

// Complete sends the query, preceded by any history exchanges as alternating
// user/model turns, and returns the model's text. Provider failures and empty
// responses are reported as ErrUnavailable; a context deadline passes through
// unchanged so callers can distinguish timeouts.
func (g *Gemini) Complete(ctx context.Context, query string, history []Exchange) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	contents := buildContents(query, history)

	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature: &temp,
	}

	start := time.Now()
	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("gemini generate content: %w", ctx.Err())
		}
		g.logger.Warn("completion failed", "model", g.modelName, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	g.logger.Debug("completion succeeded",
		"model", g.modelName,
		"history", len(history),
		"duration", time.Since(start))
	return text, nil
}

// buildContents turns history exchanges into alternating user/model turns and
// appends the current query as the final user turn.
func buildContents(query string, history []Exchange) []*genai.Content {
	contents := make([]*genai.Content, 0, 2*len(history)+1)
	for _, e := range history {
		contents = append(contents, genai.NewContentFromText(e.Query, genai.RoleUser))
		if e.Response != "" {
			contents = append(contents, genai.NewContentFromText(e.Response, genai.RoleModel))
		}
	}
	return append(contents, genai.NewContentFromText(query, genai.RoleUser))
}
