package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"codeassist/internal/config"
	"codeassist/internal/llm"
	"codeassist/internal/prompts"
	"log/slog"
)

// Пределы контекста в символах, чтобы не раздувать промпты.
const (
	maxCodeBefore  = 1000
	maxCodeAfter   = 500
	maxGenContext  = 1500
	maxFileContext = 2000
)

var (
	ErrDisabled         = errors.New("assistant is disabled")
	ErrEmptySession     = errors.New("session id is required")
	ErrEmptyQuestion    = errors.New("question is required")
	ErrEmptyCode        = errors.New("code is required")
	ErrEmptyRequirement = errors.New("requirement is required")
)

// Service — слой фич редактора поверх LLM клиента.
// Каждая операция: отрендерить промпт → сходить в модель → разобрать ответ.
type Service struct {
	client  llm.Client
	history HistoryStore
	cache   *suggestionCache
	logger  *slog.Logger

	mu       sync.RWMutex
	settings config.AssistantConfig
}

// ServiceConfig конфигурация для создания Service.
type ServiceConfig struct {
	Client   llm.Client
	History  HistoryStore
	Settings config.AssistantConfig
	CacheTTL time.Duration
	Logger   *slog.Logger
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		client:   cfg.Client,
		history:  cfg.History,
		logger:   cfg.Logger,
		settings: cfg.Settings,
	}
	if cfg.CacheTTL > 0 {
		s.cache = newSuggestionCache(cfg.CacheTTL)
	}
	return s
}

// Close освобождает фоновые ресурсы сервиса.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// Enabled сообщает, включён ли ассистент настройками.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Enabled
}

// Settings возвращает копию текущих настроек.
func (s *Service) Settings() config.AssistantConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SettingsUpdate описывает частичное обновление настроек.
// Указатели отличают отсутствующее поле от нулевого значения.
type SettingsUpdate struct {
	Model       *string  `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
	AutoSuggest *bool    `json:"auto_suggest,omitempty"`
}

// UpdateSettings применяет частичное обновление и возвращает итоговые настройки.
// Изменение температуры или лимита токенов пробрасывается в клиент.
func (s *Service) UpdateSettings(update SettingsUpdate) config.AssistantConfig {
	s.mu.Lock()
	if update.Model != nil {
		s.settings.Model = *update.Model
	}
	if update.Temperature != nil {
		s.settings.Temperature = *update.Temperature
	}
	if update.MaxTokens != nil {
		s.settings.MaxTokens = *update.MaxTokens
	}
	if update.Enabled != nil {
		s.settings.Enabled = *update.Enabled
	}
	if update.AutoSuggest != nil {
		s.settings.AutoSuggest = *update.AutoSuggest
	}
	settings := s.settings
	s.mu.Unlock()

	if sc, ok := s.client.(llm.SamplingConfigurator); ok {
		sc.SetSampling(settings.Temperature, settings.MaxTokens)
	}

	return settings
}

type CompletionRequest struct {
	FileName    string
	Language    string
	CodeBefore  string
	CodeAfter   string
	CurrentLine string
}

// Complete генерирует инлайн-продолжение кода от позиции курсора.
// Контекст обрезается: хвост кода до курсора и начало кода после.
// При включённом авто-саджесте одинаковые запросы отвечаются из кэша.
func (s *Service) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return "", err
	}

	system, user, err := prompts.Render(prompts.FeatureCompletion, prompts.CompletionData{
		FileName:    defaultStr(req.FileName, "untitled"),
		Language:    defaultStr(req.Language, "plaintext"),
		CodeBefore:  tailRunes(req.CodeBefore, maxCodeBefore),
		CodeAfter:   headRunes(req.CodeAfter, maxCodeAfter),
		CurrentLine: req.CurrentLine,
	})
	if err != nil {
		return "", err
	}

	var key string
	if s.cache != nil && settings.AutoSuggest {
		key = cacheKey(settings.Model, user)
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
	}

	answer, err := s.client.ChatCompletionWithSystem(ctx, system, user, settings.Model)
	if err != nil {
		return "", fmt.Errorf("generate completion: %w", err)
	}
	answer = strings.TrimSpace(answer)

	if key != "" {
		s.cache.Set(key, answer)
	}
	return answer, nil
}

type CodeRequest struct {
	FileName string
	Language string
	Code     string
}

// Explain объясняет выделенный фрагмент кода.
func (s *Service) Explain(ctx context.Context, req CodeRequest) (string, error) {
	return s.codeFeature(ctx, prompts.FeatureExplanation, req)
}

// Refactor предлагает улучшения для фрагмента кода.
func (s *Service) Refactor(ctx context.Context, req CodeRequest) (string, error) {
	return s.codeFeature(ctx, prompts.FeatureRefactoring, req)
}

// Document генерирует документацию для фрагмента кода.
func (s *Service) Document(ctx context.Context, req CodeRequest) (string, error) {
	return s.codeFeature(ctx, prompts.FeatureDocumentation, req)
}

func (s *Service) codeFeature(ctx context.Context, feature string, req CodeRequest) (string, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Code) == "" {
		return "", ErrEmptyCode
	}

	system, user, err := prompts.Render(feature, prompts.CodeData{
		FileName: defaultStr(req.FileName, "untitled"),
		Language: defaultStr(req.Language, "plaintext"),
		Code:     req.Code,
	})
	if err != nil {
		return "", err
	}

	answer, err := s.client.ChatCompletionWithSystem(ctx, system, user, settings.Model)
	if err != nil {
		return "", fmt.Errorf("%s: %w", feature, err)
	}
	return answer, nil
}

type GenerateRequest struct {
	FileName    string
	Language    string
	Context     string
	Requirement string
}

// Generate пишет код по текстовому описанию или TODO-комментарию.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Requirement) == "" {
		return "", ErrEmptyRequirement
	}

	system, user, err := prompts.Render(prompts.FeatureGeneration, prompts.GenerationData{
		FileName:    defaultStr(req.FileName, "untitled"),
		Language:    defaultStr(req.Language, "plaintext"),
		Context:     defaultStr(tailRunes(req.Context, maxGenContext), "No context provided"),
		Requirement: req.Requirement,
	})
	if err != nil {
		return "", err
	}

	answer, err := s.client.ChatCompletionWithSystem(ctx, system, user, settings.Model)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

type BugRequest struct {
	FileName     string
	Language     string
	Code         string
	ErrorMessage string
}

// DetectBugs ищет ошибки в коде и предлагает исправления.
func (s *Service) DetectBugs(ctx context.Context, req BugRequest) (string, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Code) == "" {
		return "", ErrEmptyCode
	}

	system, user, err := prompts.Render(prompts.FeatureBugDetection, prompts.BugData{
		FileName:     defaultStr(req.FileName, "untitled"),
		Language:     defaultStr(req.Language, "plaintext"),
		Code:         req.Code,
		ErrorMessage: defaultStr(req.ErrorMessage, "No specific error message provided"),
	})
	if err != nil {
		return "", err
	}

	answer, err := s.client.ChatCompletionWithSystem(ctx, system, user, settings.Model)
	if err != nil {
		return "", fmt.Errorf("detect bugs: %w", err)
	}
	return answer, nil
}

type CorrectionRequest struct {
	FileName     string
	Language     string
	Code         string
	ErrorMessage string
	StackTrace   string
}

// Correction — разобранный ответ на запрос исправления ошибки.
type Correction struct {
	Analysis      string `json:"analysis"`
	CorrectedCode string `json:"corrected_code"`
	Explanation   string `json:"explanation"`
}

// CorrectError анализирует ошибку и возвращает исправленный код.
// Исправление извлекается из первого код-блока ответа модели.
func (s *Service) CorrectError(ctx context.Context, req CorrectionRequest) (Correction, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return Correction{}, err
	}
	if strings.TrimSpace(req.Code) == "" {
		return Correction{}, ErrEmptyCode
	}

	system, user, err := prompts.Render(prompts.FeatureCorrection, prompts.CorrectionData{
		FileName:     defaultStr(req.FileName, "untitled"),
		Language:     defaultStr(req.Language, "plaintext"),
		Code:         req.Code,
		ErrorMessage: req.ErrorMessage,
		StackTrace:   defaultStr(req.StackTrace, "No stack trace available"),
	})
	if err != nil {
		return Correction{}, err
	}

	answer, err := s.client.ChatCompletionWithSystem(ctx, system, user, settings.Model)
	if err != nil {
		return Correction{}, fmt.Errorf("correct error: %w", err)
	}

	return parseCorrection(answer), nil
}

type ChatRequest struct {
	FileName    string
	Language    string
	FileContext string
	Question    string
	UseMemory   bool
}

// Chat выполняет диалоговый запрос с учётом истории сессии.
// Реплики сохраняются только после успешного ответа модели:
// при ошибке история не меняется.
func (s *Service) Chat(ctx context.Context, sessionID string, req ChatRequest) (string, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return "", err
	}
	if sessionID == "" {
		return "", ErrEmptySession
	}
	if strings.TrimSpace(req.Question) == "" {
		return "", ErrEmptyQuestion
	}

	system, user, err := prompts.Render(prompts.FeatureChat, prompts.ChatData{
		FileName:    defaultStr(req.FileName, "untitled"),
		Language:    defaultStr(req.Language, "plaintext"),
		FileContext: defaultStr(tailRunes(req.FileContext, maxFileContext), "No file context"),
		Question:    req.Question,
	})
	if err != nil {
		return "", err
	}

	messages := make([]llm.Message, 0, 8)
	messages = append(messages, llm.Message{Role: "system", Content: system})

	if req.UseMemory {
		history, _, err := s.history.Get(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("get chat history: %w", err)
		}
		for _, msg := range history {
			if msg.Role == "user" || msg.Role == "assistant" {
				messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
			}
		}
	}

	messages = append(messages, llm.Message{Role: "user", Content: user})

	answer, err := s.client.ChatCompletionMessages(ctx, settings.Model, messages)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	if req.UseMemory {
		// В историю пишем вопрос без обвязки промпта, как его задал пользователь.
		now := time.Now()
		turn := []Message{
			{Role: "user", Content: req.Question, Timestamp: now},
			{Role: "assistant", Content: answer, Timestamp: now},
		}
		if err := s.history.Append(ctx, sessionID, turn...); err != nil {
			// Ответ получен, проблема только с сохранением — логируем и отдаём ответ.
			if s.logger != nil {
				s.logger.Error("failed to save chat history",
					slog.String("error", err.Error()),
					slog.String("session_id", sessionID))
			}
		}
	}

	return answer, nil
}

// ClearHistory удаляет всю историю чат-сессии.
func (s *Service) ClearHistory(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySession
	}
	return s.history.Delete(ctx, sessionID)
}

type FileRequest struct {
	FileName       string
	Language       string
	Requirements   string
	ProjectContext string
	RelatedFiles   string
}

// CreateFile генерирует содержимое нового файла по требованиям.
// Обрамляющие markdown-фенсы из ответа модели убираются.
func (s *Service) CreateFile(ctx context.Context, req FileRequest) (string, error) {
	settings, err := s.checkEnabled()
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Requirements) == "" {
		return "", ErrEmptyRequirement
	}

	system, user, err := prompts.Render(prompts.FeatureFileCreation, prompts.FileCreationData{
		ProjectContext: defaultStr(req.ProjectContext, "No project context provided"),
		FileName:       defaultStr(req.FileName, "untitled"),
		Language:       defaultStr(req.Language, "plaintext"),
		Requirements:   req.Requirements,
		RelatedFiles:   defaultStr(req.RelatedFiles, "No related files provided"),
	})
	if err != nil {
		return "", err
	}

	answer, err := s.client.ChatCompletionWithSystem(ctx, system, user, settings.Model)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	return stripCodeFence(strings.TrimSpace(answer)), nil
}

// ConnectionStatus — результат проверки связи с провайдером.
type ConnectionStatus struct {
	OK       bool   `json:"ok"`
	Model    string `json:"model"`
	Message  string `json:"message"`
	Response string `json:"response,omitempty"`
}

// TestConnection делает пробный запрос к модели.
func (s *Service) TestConnection(ctx context.Context) ConnectionStatus {
	settings := s.Settings()

	answer, err := s.client.ChatCompletionWithSystem(ctx,
		"You are a helpful assistant.",
		"Say 'Hello' if you can hear me.",
		settings.Model)
	if err != nil {
		return ConnectionStatus{
			OK:      false,
			Model:   settings.Model,
			Message: fmt.Sprintf("connection test failed: %v", err),
		}
	}

	return ConnectionStatus{
		OK:       true,
		Model:    settings.Model,
		Message:  "connection ok",
		Response: answer,
	}
}

// TokenCount грубо оценивает число токенов (~4 символа на токен).
func (s *Service) TokenCount(text string) int {
	return utf8.RuneCountInString(text) / 4
}

func (s *Service) checkEnabled() (config.AssistantConfig, error) {
	settings := s.Settings()
	if !settings.Enabled {
		return config.AssistantConfig{}, ErrDisabled
	}
	return settings, nil
}

func defaultStr(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// tailRunes возвращает последние n символов строки (по рунам, не байтам).
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

// headRunes возвращает первые n символов строки.
func headRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
