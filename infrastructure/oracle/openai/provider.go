// Package openai implements the oracle provider on the OpenAI chat
// completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	pkgerrors "brainflow-backend/pkg/errors"
)

// Config configures the OpenAI provider
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Provider calls the OpenAI chat completions endpoint
type Provider struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewProvider creates an OpenAI-backed oracle provider
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

var _ ports.OracleProvider = (*Provider)(nil)

// IsAvailable reports whether the provider has credentials
func (p *Provider) IsAvailable() bool {
	return p.config.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one chat completion request and returns the raw text
func (p *Provider) Complete(ctx context.Context, prompt string, options ports.OracleCompletionOptions) (string, error) {
	if !p.IsAvailable() {
		return "", pkgerrors.NewOracleError("openai provider has no API key", nil)
	}

	reqBody := chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}
	if options.Format == "json" {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", pkgerrors.NewOracleError("failed to marshal completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", pkgerrors.NewOracleError("failed to build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", pkgerrors.NewOracleError("completion request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.NewOracleError("failed to read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("OpenAI request rejected",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", time.Since(start)),
		)
		return "", pkgerrors.NewOracleError(
			fmt.Sprintf("openai returned status %d", resp.StatusCode), nil)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", pkgerrors.NewOracleError("failed to decode completion response", err)
	}
	if decoded.Error != nil {
		return "", pkgerrors.NewOracleError("openai error: "+decoded.Error.Message, nil)
	}
	if len(decoded.Choices) == 0 {
		return "", pkgerrors.NewOracleError("openai returned no choices", nil)
	}

	p.logger.Debug("Completion received",
		zap.String("model", p.config.Model),
		zap.Duration("elapsed", time.Since(start)),
	)
	return decoded.Choices[0].Message.Content, nil
}
