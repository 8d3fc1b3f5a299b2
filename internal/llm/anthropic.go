package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"codeassist/internal/config"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient реализует Client поверх официального anthropic-sdk-go.
// Нужен для инсталляций, работающих с Anthropic напрямую, минуя OpenRouter.
type AnthropicClient struct {
	client       anthropic.Client
	defaultModel string

	mu          sync.RWMutex
	temperature float64
	maxTokens   int
}

func NewAnthropicClient(cfg config.AnthropicConfig, gen config.AssistantConfig, httpClient *http.Client) *AnthropicClient {
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	)
	return &AnthropicClient{
		client:       client,
		defaultModel: gen.Model,
		temperature:  gen.Temperature,
		maxTokens:    gen.MaxTokens,
	}
}

// SetSampling обновляет параметры генерации для последующих запросов.
func (c *AnthropicClient) SetSampling(temperature float64, maxTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.temperature = temperature
	c.maxTokens = maxTokens
}

func (c *AnthropicClient) ChatCompletion(ctx context.Context, prompt string, model string) (string, error) {
	return c.ChatCompletionWithSystem(ctx, "", prompt, model)
}

func (c *AnthropicClient) ChatCompletionWithSystem(ctx context.Context, systemPrompt string, prompt string, model string) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})

	return c.ChatCompletionMessages(ctx, model, messages)
}

func (c *AnthropicClient) ChatCompletionMessages(ctx context.Context, model string, messages []Message) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	if model == "" {
		return "", ErrInvalidModel
	}

	c.mu.RLock()
	temperature := c.temperature
	maxTokens := c.maxTokens
	c.mu.RUnlock()

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
	}

	// У Anthropic системный промпт передаётся отдельным полем, не сообщением.
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response from model")
	}
	return sb.String(), nil
}
