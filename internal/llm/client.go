package llm

import "context"

// Message — одно сообщение чата в проводном формате провайдера.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Client минимальный публичный интерфейс LLM клиента.
type Client interface {
	ChatCompletion(ctx context.Context, prompt string, model string) (string, error)
	ChatCompletionWithSystem(ctx context.Context, systemPrompt string, prompt string, model string) (string, error)
	ChatCompletionMessages(ctx context.Context, model string, messages []Message) (string, error)
}

// SamplingConfigurator реализуют клиенты, умеющие менять параметры генерации на лету.
type SamplingConfigurator interface {
	SetSampling(temperature float64, maxTokens int)
}
