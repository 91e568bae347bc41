package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"affiliate-poster/config"
	"affiliate-poster/models"
	"affiliate-poster/utils"
)

// SDKGenerator writes reviews through the google.golang.org/genai client.
// It applies the same candidate order and quota backoff as RESTGenerator,
// using the first configured API version.
type SDKGenerator struct {
	client *genai.Client
	models []string
	logger *utils.Logger
	retry  *utils.RetryConfig
}

// NewSDK creates an SDKGenerator.
func NewSDK(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*SDKGenerator, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if len(cfg.GeminiAPIVersions) > 0 {
		cc.HTTPOptions.APIVersion = cfg.GeminiAPIVersions[0]
	}
	if cfg.GeminiBaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.GeminiBaseURL + "/"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: sdk client: %w", err)
	}

	return &SDKGenerator{
		client: client,
		models: cfg.GeminiModels,
		logger: logger,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     utils.Backoff{Base: cfg.RetryBase, Max: cfg.RetryMax},
			Logger:      logger,
			ShouldRetry: func(err error) bool { return errors.Is(err, ErrQuotaExceeded) },
		},
	}, nil
}

// Generate tries each configured model in order.
func (g *SDKGenerator) Generate(ctx context.Context, p models.Product) (string, error) {
	prompt := BuildPrompt(p)

	var lastErr error
	for _, name := range g.models {
		name = strings.TrimPrefix(name, "models/")
		var text string
		err := g.retry.Do(ctx, "generate "+name, func() error {
			result, err := g.client.Models.GenerateContent(ctx, name, genai.Text(prompt), nil)
			if err != nil {
				if isQuotaSignal(0, err.Error()) || strings.Contains(err.Error(), "429") {
					return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
				}
				return err
			}
			text = firstText(result)
			if text == "" {
				return errors.New("gemini: empty text")
			}
			return nil
		})
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("[gemini] sdk %s failed: %v", name, err)
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrNoContent, lastErr)
}

func firstText(result *genai.GenerateContentResponse) string {
	if result == nil || len(result.Candidates) == 0 {
		return ""
	}
	c := result.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 || c.Content.Parts[0] == nil {
		return ""
	}
	return strings.TrimSpace(c.Content.Parts[0].Text)
}
