package assistant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codeassist/internal/config"
	"codeassist/internal/llm"
)

// mockClient реализует llm.Client для тестов.
type mockClient struct {
	withSystemFunc func(ctx context.Context, systemPrompt string, prompt string, model string) (string, error)
	messagesFunc   func(ctx context.Context, model string, messages []llm.Message) (string, error)

	sampledTemperature float64
	sampledMaxTokens   int
}

func (m *mockClient) ChatCompletion(ctx context.Context, prompt string, model string) (string, error) {
	return m.ChatCompletionWithSystem(ctx, "", prompt, model)
}

func (m *mockClient) ChatCompletionWithSystem(ctx context.Context, systemPrompt string, prompt string, model string) (string, error) {
	if m.withSystemFunc != nil {
		return m.withSystemFunc(ctx, systemPrompt, prompt, model)
	}
	return "", errors.New("not implemented")
}

func (m *mockClient) ChatCompletionMessages(ctx context.Context, model string, messages []llm.Message) (string, error) {
	if m.messagesFunc != nil {
		return m.messagesFunc(ctx, model, messages)
	}
	return "", errors.New("not implemented")
}

func (m *mockClient) SetSampling(temperature float64, maxTokens int) {
	m.sampledTemperature = temperature
	m.sampledMaxTokens = maxTokens
}

func enabledSettings() config.AssistantConfig {
	return config.AssistantConfig{
		Model:       "test/model",
		Temperature: 0.7,
		MaxTokens:   2048,
		Enabled:     true,
		AutoSuggest: true,
	}
}

func newTestService(t *testing.T, client llm.Client, cacheTTL time.Duration) *Service {
	t.Helper()
	s := NewService(ServiceConfig{
		Client:   client,
		History:  NewMemoryHistoryStore(time.Hour),
		Settings: enabledSettings(),
		CacheTTL: cacheTTL,
	})
	t.Cleanup(s.Close)
	return s
}

func TestComplete_TruncatesContext(t *testing.T) {
	longBefore := strings.Repeat("a", 1500) + "MARKER_BEFORE"
	longAfter := "MARKER_AFTER" + strings.Repeat("b", 1500)

	var gotPrompt string
	client := &mockClient{
		withSystemFunc: func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
			gotPrompt = prompt
			return "completion", nil
		},
	}

	service := newTestService(t, client, 0)
	answer, err := service.Complete(context.Background(), CompletionRequest{
		FileName:   "main.go",
		Language:   "go",
		CodeBefore: longBefore,
		CodeAfter:  longAfter,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "completion" {
		t.Errorf("unexpected answer: %s", answer)
	}

	// Хвост кода до курсора должен остаться, начало — отрезаться.
	if !strings.Contains(gotPrompt, "MARKER_BEFORE") {
		t.Errorf("tail of code before cursor must survive truncation")
	}
	if !strings.Contains(gotPrompt, "MARKER_AFTER") {
		t.Errorf("head of code after cursor must survive truncation")
	}
	if strings.Contains(gotPrompt, strings.Repeat("a", 1100)) {
		t.Errorf("code before cursor was not truncated")
	}
	if strings.Contains(gotPrompt, strings.Repeat("b", 600)) {
		t.Errorf("code after cursor was not truncated")
	}
}

func TestComplete_CachesIdenticalRequests(t *testing.T) {
	var calls int
	client := &mockClient{
		withSystemFunc: func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
			calls++
			return "cached answer", nil
		},
	}

	service := newTestService(t, client, time.Minute)
	req := CompletionRequest{FileName: "a.go", Language: "go", CodeBefore: "x := 1"}

	for i := 0; i < 3; i++ {
		answer, err := service.Complete(context.Background(), req)
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if answer != "cached answer" {
			t.Errorf("unexpected answer: %s", answer)
		}
	}

	if calls != 1 {
		t.Errorf("expected 1 provider call, got %d", calls)
	}
}

func TestComplete_NoCacheWhenAutoSuggestOff(t *testing.T) {
	var calls int
	client := &mockClient{
		withSystemFunc: func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
			calls++
			return "fresh", nil
		},
	}

	service := newTestService(t, client, time.Minute)
	service.UpdateSettings(SettingsUpdate{AutoSuggest: boolPtr(false)})

	req := CompletionRequest{CodeBefore: "x := 1"}
	for i := 0; i < 2; i++ {
		if _, err := service.Complete(context.Background(), req); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}
	if calls != 2 {
		t.Errorf("expected 2 provider calls without caching, got %d", calls)
	}
}

func TestDisabledService(t *testing.T) {
	service := newTestService(t, &mockClient{}, 0)
	service.UpdateSettings(SettingsUpdate{Enabled: boolPtr(false)})

	ctx := context.Background()
	if _, err := service.Complete(ctx, CompletionRequest{}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Complete: expected ErrDisabled, got %v", err)
	}
	if _, err := service.Explain(ctx, CodeRequest{Code: "x"}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Explain: expected ErrDisabled, got %v", err)
	}
	if _, err := service.Chat(ctx, "s1", ChatRequest{Question: "hi"}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Chat: expected ErrDisabled, got %v", err)
	}
}

func TestExplain_RequiresCode(t *testing.T) {
	service := newTestService(t, &mockClient{}, 0)
	if _, err := service.Explain(context.Background(), CodeRequest{Code: "   "}); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("expected ErrEmptyCode, got %v", err)
	}
}

func TestChat_SavesHistoryAfterSuccess(t *testing.T) {
	var gotMessages []llm.Message
	client := &mockClient{
		messagesFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			gotMessages = messages
			return "first answer", nil
		},
	}

	store := NewMemoryHistoryStore(time.Hour)
	service := NewService(ServiceConfig{Client: client, History: store, Settings: enabledSettings()})
	t.Cleanup(service.Close)

	ctx := context.Background()
	answer, err := service.Chat(ctx, "session1", ChatRequest{Question: "What is a goroutine?", UseMemory: true})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if answer != "first answer" {
		t.Errorf("unexpected answer: %s", answer)
	}
	if len(gotMessages) != 2 || gotMessages[0].Role != "system" || gotMessages[1].Role != "user" {
		t.Fatalf("unexpected first-turn messages: %+v", gotMessages)
	}

	// История хранит вопрос без промптовой обвязки.
	history, found, err := store.Get(ctx, "session1")
	if err != nil || !found {
		t.Fatalf("history not saved: found=%v err=%v", found, err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages in history, got %d", len(history))
	}
	if history[0].Content != "What is a goroutine?" {
		t.Errorf("history must keep the bare question, got: %s", history[0].Content)
	}
	if history[1].Role != "assistant" || history[1].Content != "first answer" {
		t.Errorf("unexpected assistant turn: %+v", history[1])
	}

	// Второй вопрос должен увидеть историю первой пары.
	if _, err := service.Chat(ctx, "session1", ChatRequest{Question: "And a channel?", UseMemory: true}); err != nil {
		t.Fatalf("second Chat failed: %v", err)
	}
	if len(gotMessages) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d messages", len(gotMessages))
	}
	if gotMessages[1].Content != "What is a goroutine?" || gotMessages[2].Content != "first answer" {
		t.Errorf("history not replayed to the model: %+v", gotMessages)
	}
}

func TestChat_HistoryUntouchedOnError(t *testing.T) {
	client := &mockClient{
		messagesFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			return "", errors.New("provider down")
		},
	}

	store := NewMemoryHistoryStore(time.Hour)
	service := NewService(ServiceConfig{Client: client, History: store, Settings: enabledSettings()})
	t.Cleanup(service.Close)

	ctx := context.Background()
	if _, err := service.Chat(ctx, "session1", ChatRequest{Question: "hi", UseMemory: true}); err == nil {
		t.Fatalf("expected error from provider")
	}

	if _, found, _ := store.Get(ctx, "session1"); found {
		t.Errorf("history must not be saved when the model call fails")
	}
}

func TestChat_NoMemorySkipsHistory(t *testing.T) {
	client := &mockClient{
		messagesFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			return "answer", nil
		},
	}
	store := NewMemoryHistoryStore(time.Hour)
	service := NewService(ServiceConfig{Client: client, History: store, Settings: enabledSettings()})
	t.Cleanup(service.Close)

	ctx := context.Background()
	if _, err := service.Chat(ctx, "session1", ChatRequest{Question: "hi", UseMemory: false}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "session1"); found {
		t.Errorf("history must not be saved with UseMemory=false")
	}
}

func TestChat_RequiresSessionAndQuestion(t *testing.T) {
	service := newTestService(t, &mockClient{}, 0)
	ctx := context.Background()

	if _, err := service.Chat(ctx, "", ChatRequest{Question: "hi"}); !errors.Is(err, ErrEmptySession) {
		t.Errorf("expected ErrEmptySession, got %v", err)
	}
	if _, err := service.Chat(ctx, "s1", ChatRequest{Question: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestClearHistory(t *testing.T) {
	client := &mockClient{
		messagesFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			return "answer", nil
		},
	}
	store := NewMemoryHistoryStore(time.Hour)
	service := NewService(ServiceConfig{Client: client, History: store, Settings: enabledSettings()})
	t.Cleanup(service.Close)

	ctx := context.Background()
	if _, err := service.Chat(ctx, "session1", ChatRequest{Question: "hi", UseMemory: true}); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if err := service.ClearHistory(ctx, "session1"); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	if _, found, _ := store.Get(ctx, "session1"); found {
		t.Errorf("history must be gone after ClearHistory")
	}
}

func TestCorrectError_ParsesFencedCode(t *testing.T) {
	response := "The variable is undefined.\n\n```python\nx = 1\nprint(x)\n```\n\nDefine x before use."
	client := &mockClient{
		withSystemFunc: func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
			return response, nil
		},
	}

	service := newTestService(t, client, 0)
	correction, err := service.CorrectError(context.Background(), CorrectionRequest{
		Code:         "print(x)",
		ErrorMessage: "NameError",
	})
	if err != nil {
		t.Fatalf("CorrectError failed: %v", err)
	}

	if correction.CorrectedCode != "x = 1\nprint(x)" {
		t.Errorf("unexpected corrected code: %q", correction.CorrectedCode)
	}
	if correction.Analysis != response {
		t.Errorf("analysis must keep the full model answer")
	}
	if !strings.Contains(correction.Explanation, "Define x before use.") {
		t.Errorf("explanation missing prose after the code block: %q", correction.Explanation)
	}
	if strings.Contains(correction.Explanation, "print(x)") {
		t.Errorf("explanation must not contain the code block: %q", correction.Explanation)
	}
}

func TestCreateFile_StripsFence(t *testing.T) {
	client := &mockClient{
		withSystemFunc: func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
			return "```go\npackage main\n\nfunc main() {}\n```", nil
		},
	}

	service := newTestService(t, client, 0)
	content, err := service.CreateFile(context.Background(), FileRequest{
		FileName:     "main.go",
		Language:     "go",
		Requirements: "entry point",
	})
	if err != nil {
		t.Fatalf("CreateFile failed: %v", err)
	}
	if content != "package main\n\nfunc main() {}" {
		t.Errorf("fences not stripped: %q", content)
	}
}

func TestUpdateSettings_PushesSampling(t *testing.T) {
	client := &mockClient{}
	service := newTestService(t, client, 0)

	settings := service.UpdateSettings(SettingsUpdate{
		Temperature: floatPtr(0.1),
		MaxTokens:   intPtr(256),
		Model:       strPtr("openai/gpt-4o"),
	})

	if settings.Temperature != 0.1 || settings.MaxTokens != 256 || settings.Model != "openai/gpt-4o" {
		t.Errorf("settings not applied: %+v", settings)
	}
	if client.sampledTemperature != 0.1 || client.sampledMaxTokens != 256 {
		t.Errorf("sampling not pushed to the client: %v/%d", client.sampledTemperature, client.sampledMaxTokens)
	}
}

func TestTokenCount(t *testing.T) {
	service := newTestService(t, &mockClient{}, 0)

	if got := service.TokenCount(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("expected 10 tokens for 40 chars, got %d", got)
	}
	if got := service.TokenCount(""); got != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", got)
	}
}

func TestTestConnection(t *testing.T) {
	client := &mockClient{
		withSystemFunc: func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
			return "Hello", nil
		},
	}
	service := newTestService(t, client, 0)

	status := service.TestConnection(context.Background())
	if !status.OK || status.Response != "Hello" || status.Model != "test/model" {
		t.Errorf("unexpected status: %+v", status)
	}

	client.withSystemFunc = func(ctx context.Context, systemPrompt, prompt, model string) (string, error) {
		return "", errors.New("no route to host")
	}
	status = service.TestConnection(context.Background())
	if status.OK {
		t.Errorf("expected failed status")
	}
	if !strings.Contains(status.Message, "no route to host") {
		t.Errorf("provider error must be surfaced: %s", status.Message)
	}
}

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
