package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"affiliate-poster/config"
	"affiliate-poster/models"
	"affiliate-poster/utils"
)

// RESTGenerator writes reviews through the Generative Language REST API.
type RESTGenerator struct {
	cfg    *config.Config
	logger *utils.Logger
	http   *http.Client
	retry  *utils.RetryConfig

	once       sync.Once
	candidates []Candidate
}

// NewREST creates a RESTGenerator.
func NewREST(cfg *config.Config, logger *utils.Logger) *RESTGenerator {
	return &RESTGenerator{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     utils.Backoff{Base: cfg.RetryBase, Max: cfg.RetryMax},
			Logger:      logger,
			ShouldRetry: func(err error) bool { return errors.Is(err, ErrQuotaExceeded) },
		},
	}
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Generate tries each candidate in order and returns the first non-empty
// text. It returns ErrNoContent when all candidates fail.
func (g *RESTGenerator) Generate(ctx context.Context, p models.Product) (string, error) {
	prompt := BuildPrompt(p)

	var lastErr error
	for _, c := range g.candidateList(ctx) {
		var text string
		err := g.retry.Do(ctx, "generate "+c.String(), func() error {
			var err error
			text, err = g.generate(ctx, c, prompt)
			return err
		})
		if err == nil {
			g.logger.Debug("[gemini] %s produced %d chars", c, len(text))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("[gemini] %s failed: %v", c, err)
		lastErr = err
	}

	return "", fmt.Errorf("%w: %v", ErrNoContent, lastErr)
}

func (g *RESTGenerator) generate(ctx context.Context, c Candidate, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		g.cfg.GeminiBaseURL, c.Version, url.PathEscape(c.Model), url.QueryEscape(g.cfg.GeminiAPIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: request: %w", redactKey(err, g.cfg.GeminiAPIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if isQuotaSignal(resp.StatusCode, string(body)) {
			return "", fmt.Errorf("%w: http status %d", ErrQuotaExceeded, resp.StatusCode)
		}
		return "", fmt.Errorf("gemini: http status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var r generateResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if r.Error != nil {
		if r.Error.Code == http.StatusTooManyRequests || isQuotaSignal(0, r.Error.Status+" "+r.Error.Message) {
			return "", fmt.Errorf("%w: %s", ErrQuotaExceeded, r.Error.Message)
		}
		return "", fmt.Errorf("gemini: api error %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini: response has no candidates")
	}

	text := strings.TrimSpace(r.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", errors.New("gemini: empty text")
	}
	return text, nil
}

// candidateList returns the configured candidates, reordered by model
// discovery when enabled. Discovery runs once per generator.
func (g *RESTGenerator) candidateList(ctx context.Context) []Candidate {
	g.once.Do(func() {
		g.candidates = Candidates(g.cfg.GeminiModels, g.cfg.GeminiAPIVersions)
		if !g.cfg.GeminiDiscoverModels {
			return
		}
		discovered := g.discover(ctx)
		if len(discovered) == 0 {
			g.logger.Warn("[gemini] model discovery found nothing, using configured list")
			return
		}
		g.candidates = discovered
		g.logger.Info("[gemini] discovered %d usable model candidates", len(discovered))
	})
	return g.candidates
}

type listModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// discover lists models per API version. Configured models that are
// available come first in configured order, followed by any other model
// that supports generateContent.
func (g *RESTGenerator) discover(ctx context.Context) []Candidate {
	available := make(map[string][]string)
	var order []string

	for _, version := range g.cfg.GeminiAPIVersions {
		names, err := g.listModels(ctx, version)
		if err != nil {
			g.logger.Warn("[gemini] list models %s: %v", version, err)
			continue
		}
		for _, name := range names {
			if _, ok := available[name]; !ok {
				order = append(order, name)
			}
			available[name] = append(available[name], version)
		}
	}

	var out []Candidate
	used := make(map[string]bool)
	for _, m := range g.cfg.GeminiModels {
		m = strings.TrimPrefix(m, "models/")
		for _, v := range available[m] {
			out = append(out, Candidate{Version: v, Model: m})
		}
		used[m] = true
	}
	for _, m := range order {
		if used[m] {
			continue
		}
		for _, v := range available[m] {
			out = append(out, Candidate{Version: v, Model: m})
		}
	}
	return out
}

func (g *RESTGenerator) listModels(ctx context.Context, version string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s/models?key=%s", g.cfg.GeminiBaseURL, version, url.QueryEscape(g.cfg.GeminiAPIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, redactKey(err, g.cfg.GeminiAPIKey)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var r listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	var names []string
	for _, m := range r.Models {
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				names = append(names, strings.TrimPrefix(m.Name, "models/"))
				break
			}
		}
	}
	return names, nil
}

// redactKey strips the API key from URL errors before they are logged.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	msg := strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED")
	msg = strings.ReplaceAll(msg, key, "REDACTED")
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
