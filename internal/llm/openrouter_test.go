package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeassist/internal/config"
	"codeassist/internal/retry"
)

func testGen() config.AssistantConfig {
	return config.AssistantConfig{
		Model:       "test/model",
		Temperature: 0.7,
		MaxTokens:   2048,
	}
}

func newTestClient(t *testing.T, serverURL string) *OpenRouterClient {
	t.Helper()
	c := NewOpenRouterClient(config.OpenRouterConfig{
		APIKey:     "secret-key",
		BaseURL:    serverURL,
		AppReferer: "http://localhost",
		AppTitle:   "Code Editor AI",
	}, testGen(), http.DefaultClient, nil)
	// Быстрый бэкофф, чтобы тесты не спали.
	c.policy = retry.Policy{
		BaseDelay:   time.Millisecond,
		MaxAttempts: 3,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
	return c
}

func completionBody(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"choices":[{"message":{"role":"assistant","content":` + string(quoted) + `}}]}`
}

func TestOpenRouter_RequestShape(t *testing.T) {
	var got chatRequest
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(completionBody("done")))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	answer, err := client.ChatCompletionWithSystem(context.Background(), "be terse", "hello", "")
	if err != nil {
		t.Fatalf("ChatCompletionWithSystem failed: %v", err)
	}
	if answer != "done" {
		t.Errorf("unexpected answer: %s", answer)
	}

	if got.Model != "test/model" {
		t.Errorf("expected default model fallback, got: %s", got.Model)
	}
	if got.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got: %v", got.Temperature)
	}
	if got.MaxTokens != 2048 {
		t.Errorf("expected max_tokens 2048, got: %d", got.MaxTokens)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}

	if auth := gotHeaders.Get("Authorization"); auth != "Bearer secret-key" {
		t.Errorf("unexpected auth header: %s", auth)
	}
	if ref := gotHeaders.Get("HTTP-Referer"); ref != "http://localhost" {
		t.Errorf("unexpected referer header: %s", ref)
	}
	if title := gotHeaders.Get("X-Title"); title != "Code Editor AI" {
		t.Errorf("unexpected title header: %s", title)
	}
}

func TestOpenRouter_RetriesTransientStatus(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(completionBody("recovered")))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	answer, err := client.ChatCompletion(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("unexpected answer: %s", answer)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got: %d", calls)
	}
}

func TestOpenRouter_ClientErrorNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.ChatCompletion(context.Background(), "hello", "")
	if err == nil {
		t.Fatalf("expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("400 must not be retried, got %d calls", calls)
	}
	if !strings.Contains(err.Error(), "bad model") {
		t.Errorf("provider message must be surfaced, got: %v", err)
	}
}

func TestOpenRouter_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	_, err := client.ChatCompletion(context.Background(), "hello", "")
	if err == nil || !strings.Contains(err.Error(), "empty response") {
		t.Fatalf("expected empty response error, got: %v", err)
	}
}

func TestOpenRouter_NoModelAnywhere(t *testing.T) {
	gen := testGen()
	gen.Model = ""
	client := NewOpenRouterClient(config.OpenRouterConfig{BaseURL: "http://unused"}, gen, http.DefaultClient, nil)

	_, err := client.ChatCompletion(context.Background(), "hello", "")
	if !errors.Is(err, ErrInvalidModel) {
		t.Fatalf("expected ErrInvalidModel, got: %v", err)
	}
}

func TestOpenRouter_SetSampling(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(completionBody("ok")))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	client.SetSampling(0.1, 256)

	if _, err := client.ChatCompletion(context.Background(), "hello", ""); err != nil {
		t.Fatalf("ChatCompletion failed: %v", err)
	}
	if got.Temperature != 0.1 || got.MaxTokens != 256 {
		t.Errorf("sampling not applied: %+v", got)
	}
}
