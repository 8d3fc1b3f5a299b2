package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"codeassist/internal/config"
	"codeassist/internal/retry"
	"log/slog"
)

var (
	ErrInvalidModel = errors.New("model is required")
)

// OpenRouterClient ходит в OpenAI-совместимый chat/completions API.
// Подходит для OpenRouter и любого провайдера с тем же протоколом.
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	appReferer   string
	appTitle     string
	defaultModel string
	httpClient   *http.Client
	policy       retry.Policy
	logger       *slog.Logger

	mu          sync.RWMutex
	temperature float64
	maxTokens   int
}

func NewOpenRouterClient(cfg config.OpenRouterConfig, gen config.AssistantConfig, httpClient *http.Client, logger *slog.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		appReferer:   cfg.AppReferer,
		appTitle:     cfg.AppTitle,
		defaultModel: gen.Model,
		httpClient:   httpClient,
		policy:       retry.DefaultPolicy(),
		logger:       logger,
		temperature:  gen.Temperature,
		maxTokens:    gen.MaxTokens,
	}
}

// SetSampling обновляет параметры генерации для последующих запросов.
func (c *OpenRouterClient) SetSampling(temperature float64, maxTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.temperature = temperature
	c.maxTokens = maxTokens
}

func (c *OpenRouterClient) ChatCompletion(ctx context.Context, prompt string, model string) (string, error) {
	return c.ChatCompletionWithSystem(ctx, "", prompt, model)
}

func (c *OpenRouterClient) ChatCompletionWithSystem(ctx context.Context, systemPrompt string, prompt string, model string) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	return c.ChatCompletionMessages(ctx, model, messages)
}

// ChatCompletionMessages выполняет запрос с произвольным набором сообщений.
// Транзиентные сбои (429/5xx, обрывы сети) повторяются с бэкоффом.
func (c *OpenRouterClient) ChatCompletionMessages(ctx context.Context, model string, messages []Message) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return "", ErrInvalidModel
	}

	c.mu.RLock()
	requestBody := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	c.mu.RUnlock()

	buf, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, body, err := retry.DoHTTP(ctx, c.policy, c.logger, func(ctx context.Context) (*http.Response, []byte, error) {
		return c.doRequest(ctx, buf)
	})
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", errors.New("empty response from model")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *OpenRouterClient) doRequest(ctx context.Context, payload []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/chat/completions", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	// Атрибуция приложения в статистике OpenRouter.
	if c.appReferer != "" {
		req.Header.Set("HTTP-Referer", c.appReferer)
	}
	if c.appTitle != "" {
		req.Header.Set("X-Title", c.appTitle)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, body, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}
