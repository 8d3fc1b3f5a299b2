package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	ServiceToken   string
	RequestTimeout time.Duration
	HistoryTTL     time.Duration
	CacheTTL       time.Duration
	Provider       string
	OpenRouter     OpenRouterConfig
	Anthropic      AnthropicConfig
	Assistant      AssistantConfig
}

type OpenRouterConfig struct {
	APIKey     string
	BaseURL    string
	AppReferer string
	AppTitle   string
}

type AnthropicConfig struct {
	APIKey string
}

// AssistantConfig содержит настройки генерации и фичи-тогглы редактора.
type AssistantConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	Enabled         bool
	AutoSuggest     bool
	SuggestionDelay time.Duration
}

func Load() (Config, error) {
	var cfg Config

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.ServiceToken = getEnv("SERVICE_TOKEN", "")
	cfg.Provider = getEnv("AI_PROVIDER", "openrouter")

	reqTimeout, err := parseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_CLIENT_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = reqTimeout

	historyTTL, err := parseDuration(getEnv("CHAT_HISTORY_TTL", "2h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CHAT_HISTORY_TTL: %w", err)
	}
	cfg.HistoryTTL = historyTTL

	cacheTTL, err := parseDuration(getEnv("SUGGESTION_CACHE_TTL", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SUGGESTION_CACHE_TTL: %w", err)
	}
	cfg.CacheTTL = cacheTTL

	cfg.OpenRouter = OpenRouterConfig{
		APIKey:     getEnv("OPENROUTER_API_KEY", ""),
		BaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		AppReferer: getEnv("APP_REFERER", "http://localhost"),
		AppTitle:   getEnv("APP_TITLE", "Code Editor AI"),
	}

	cfg.Anthropic = AnthropicConfig{
		APIKey: getEnv("ANTHROPIC_API_KEY", ""),
	}

	temperature, err := parseFloatDefault(getEnv("AI_TEMPERATURE", ""), 0.7)
	if err != nil {
		return Config{}, fmt.Errorf("parse AI_TEMPERATURE: %w", err)
	}

	maxTokens, err := parseIntDefault(getEnv("AI_MAX_TOKENS", ""), 2048)
	if err != nil {
		return Config{}, fmt.Errorf("parse AI_MAX_TOKENS: %w", err)
	}

	enabled, err := parseBoolDefault(getEnv("AI_ENABLED", ""), true)
	if err != nil {
		return Config{}, fmt.Errorf("parse AI_ENABLED: %w", err)
	}

	autoSuggest, err := parseBoolDefault(getEnv("AI_AUTO_SUGGEST", ""), true)
	if err != nil {
		return Config{}, fmt.Errorf("parse AI_AUTO_SUGGEST: %w", err)
	}

	suggestionDelayMs, err := parseIntDefault(getEnv("AI_SUGGESTION_DELAY", ""), 1000)
	if err != nil {
		return Config{}, fmt.Errorf("parse AI_SUGGESTION_DELAY: %w", err)
	}

	cfg.Assistant = AssistantConfig{
		Model:           getEnv("AI_MODEL", "mistralai/devstral-2512:free"),
		Temperature:     temperature,
		MaxTokens:       maxTokens,
		Enabled:         enabled,
		AutoSuggest:     autoSuggest,
		SuggestionDelay: time.Duration(suggestionDelayMs) * time.Millisecond,
	}

	if path := getEnv("SETTINGS_PATH", ""); path != "" {
		if err := applySettingsFile(&cfg, path); err != nil {
			return Config{}, fmt.Errorf("apply settings file: %w", err)
		}
	}

	return cfg, nil
}

// settingsFile описывает опциональный JSON-файл с настройками ассистента.
// Указатели отличают отсутствующее поле от нулевого значения.
type settingsFile struct {
	Model             *string  `json:"model,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	MaxTokens         *int     `json:"max_tokens,omitempty"`
	Enabled           *bool    `json:"enabled,omitempty"`
	AutoSuggest       *bool    `json:"auto_suggest,omitempty"`
	SuggestionDelayMs *int     `json:"suggestion_delay_ms,omitempty"`
}

// applySettingsFile накладывает значения из файла поверх env-настроек.
// Отсутствующий файл не считается ошибкой.
func applySettingsFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var s settingsFile
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	if s.Model != nil {
		cfg.Assistant.Model = *s.Model
	}
	if s.Temperature != nil {
		cfg.Assistant.Temperature = *s.Temperature
	}
	if s.MaxTokens != nil {
		cfg.Assistant.MaxTokens = *s.MaxTokens
	}
	if s.Enabled != nil {
		cfg.Assistant.Enabled = *s.Enabled
	}
	if s.AutoSuggest != nil {
		cfg.Assistant.AutoSuggest = *s.AutoSuggest
	}
	if s.SuggestionDelayMs != nil {
		cfg.Assistant.SuggestionDelay = time.Duration(*s.SuggestionDelayMs) * time.Millisecond
	}

	return nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	return time.ParseDuration(value)
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

// parseBoolDefault parses optional boolean with default value.
func parseBoolDefault(value string, def bool) (bool, error) {
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, err
	}
	return parsed, nil
}

func parseIntDefault(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func parseFloatDefault(value string, def float64) (float64, error) {
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
