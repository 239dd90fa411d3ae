package ai

import (
	"context"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"`
	HTTPReferer string  `json:"http_referer"`
	XTitle      string  `json:"x_title"`
	Temperature float64 `json:"temperature"`
}

// openrouterProvider speaks the openai chat protocol with attribution headers.
type openrouterProvider struct {
	client      *openAIClient
	temperature float64
}

func (p *openrouterProvider) Name() string {
	return "openrouter"
}

func (p *openrouterProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return p.client.chat(ctx, model, prompt, p.temperature)
}

func createOpenRouterFactory(args interface{}) (IAIProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	return &openrouterProvider{
		client: &openAIClient{
			name:    "openrouter",
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: baseURL,
			headers: map[string]string{
				"HTTP-Referer": strings.TrimSpace(cfg.HTTPReferer),
				"X-Title":      strings.TrimSpace(cfg.XTitle),
			},
		},
		temperature: cfg.Temperature,
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
