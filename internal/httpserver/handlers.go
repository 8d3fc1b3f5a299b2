package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"codeassist/internal/assistant"
	"codeassist/internal/config"
	"codeassist/internal/llm"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Assistant — операции сервиса, нужные HTTP-слою.
type Assistant interface {
	Complete(ctx context.Context, req assistant.CompletionRequest) (string, error)
	Explain(ctx context.Context, req assistant.CodeRequest) (string, error)
	Refactor(ctx context.Context, req assistant.CodeRequest) (string, error)
	Document(ctx context.Context, req assistant.CodeRequest) (string, error)
	Generate(ctx context.Context, req assistant.GenerateRequest) (string, error)
	DetectBugs(ctx context.Context, req assistant.BugRequest) (string, error)
	CorrectError(ctx context.Context, req assistant.CorrectionRequest) (assistant.Correction, error)
	Chat(ctx context.Context, sessionID string, req assistant.ChatRequest) (string, error)
	ClearHistory(ctx context.Context, sessionID string) error
	CreateFile(ctx context.Context, req assistant.FileRequest) (string, error)
	TestConnection(ctx context.Context) assistant.ConnectionStatus
	TokenCount(text string) int
	Settings() config.AssistantConfig
	UpdateSettings(update assistant.SettingsUpdate) config.AssistantConfig
}

// Handler обслуживает REST API фич редактора.
type Handler struct {
	service Assistant
	logger  *slog.Logger
}

// HandlerDeps зависимости для создания Handler.
type HandlerDeps struct {
	Service Assistant
	Logger  *slog.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		service: deps.Service,
		logger:  deps.Logger,
	}
}

type codePayload struct {
	FileName string `json:"file_name"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

type resultResponse struct {
	Result string `json:"result"`
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName    string `json:"file_name"`
		Language    string `json:"language"`
		CodeBefore  string `json:"code_before"`
		CodeAfter   string `json:"code_after"`
		CurrentLine string `json:"current_line"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Complete(r.Context(), assistant.CompletionRequest{
		FileName:    req.FileName,
		Language:    req.Language,
		CodeBefore:  req.CodeBefore,
		CodeAfter:   req.CodeAfter,
		CurrentLine: req.CurrentLine,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	h.codeFeature(w, r, h.service.Explain)
}

func (h *Handler) Refactor(w http.ResponseWriter, r *http.Request) {
	h.codeFeature(w, r, h.service.Refactor)
}

func (h *Handler) Document(w http.ResponseWriter, r *http.Request) {
	h.codeFeature(w, r, h.service.Document)
}

func (h *Handler) codeFeature(w http.ResponseWriter, r *http.Request, call func(context.Context, assistant.CodeRequest) (string, error)) {
	var req codePayload
	if !h.decode(w, r, &req) {
		return
	}

	result, err := call(r.Context(), assistant.CodeRequest{
		FileName: req.FileName,
		Language: req.Language,
		Code:     req.Code,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName    string `json:"file_name"`
		Language    string `json:"language"`
		Context     string `json:"context"`
		Requirement string `json:"requirement"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.Generate(r.Context(), assistant.GenerateRequest{
		FileName:    req.FileName,
		Language:    req.Language,
		Context:     req.Context,
		Requirement: req.Requirement,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (h *Handler) DetectBugs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName     string `json:"file_name"`
		Language     string `json:"language"`
		Code         string `json:"code"`
		ErrorMessage string `json:"error_message"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.DetectBugs(r.Context(), assistant.BugRequest{
		FileName:     req.FileName,
		Language:     req.Language,
		Code:         req.Code,
		ErrorMessage: req.ErrorMessage,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, resultResponse{Result: result})
}

func (h *Handler) CorrectError(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName     string `json:"file_name"`
		Language     string `json:"language"`
		Code         string `json:"code"`
		ErrorMessage string `json:"error_message"`
		StackTrace   string `json:"stack_trace"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	correction, err := h.service.CorrectError(r.Context(), assistant.CorrectionRequest{
		FileName:     req.FileName,
		Language:     req.Language,
		Code:         req.Code,
		ErrorMessage: req.ErrorMessage,
		StackTrace:   req.StackTrace,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, correction)
}

func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileName       string `json:"file_name"`
		Language       string `json:"language"`
		Requirements   string `json:"requirements"`
		ProjectContext string `json:"project_context"`
		RelatedFiles   string `json:"related_files"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	content, err := h.service.CreateFile(r.Context(), assistant.FileRequest{
		FileName:       req.FileName,
		Language:       req.Language,
		Requirements:   req.Requirements,
		ProjectContext: req.ProjectContext,
		RelatedFiles:   req.RelatedFiles,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		FileName string `json:"file_name"`
		Content  string `json:"content"`
	}{FileName: req.FileName, Content: content})
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID   string `json:"session_id"`
		FileName    string `json:"file_name"`
		Language    string `json:"language"`
		FileContext string `json:"file_context"`
		Question    string `json:"question"`
		UseMemory   *bool  `json:"use_memory"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	// Новая сессия получает идентификатор на сервере.
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	useMemory := true
	if req.UseMemory != nil {
		useMemory = *req.UseMemory
	}

	answer, err := h.service.Chat(r.Context(), sessionID, assistant.ChatRequest{
		FileName:    req.FileName,
		Language:    req.Language,
		FileContext: req.FileContext,
		Question:    req.Question,
		UseMemory:   useMemory,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, struct {
		SessionID string `json:"session_id"`
		Answer    string `json:"answer"`
	}{SessionID: sessionID, Answer: answer})
}

func (h *Handler) ClearChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := h.service.ClearHistory(r.Context(), sessionID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, struct {
		Models []llm.ModelInfo `json:"models"`
	}{Models: llm.AvailableModels})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.service.TestConnection(r.Context()))
}

func (h *Handler) TokenCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	WriteJSON(w, http.StatusOK, struct {
		Tokens int `json:"tokens"`
	}{Tokens: h.service.TokenCount(req.Text)})
}

type settingsResponse struct {
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	Enabled           bool    `json:"enabled"`
	AutoSuggest       bool    `json:"auto_suggest"`
	SuggestionDelayMs int64   `json:"suggestion_delay_ms"`
}

func toSettingsResponse(s config.AssistantConfig) settingsResponse {
	return settingsResponse{
		Model:             s.Model,
		Temperature:       s.Temperature,
		MaxTokens:         s.MaxTokens,
		Enabled:           s.Enabled,
		AutoSuggest:       s.AutoSuggest,
		SuggestionDelayMs: s.SuggestionDelay.Milliseconds(),
	}
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, toSettingsResponse(h.service.Settings()))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update assistant.SettingsUpdate
	if !h.decode(w, r, &update) {
		return
	}
	WriteJSON(w, http.StatusOK, toSettingsResponse(h.service.UpdateSettings(update)))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", "failed to decode request body")
		return false
	}
	return true
}

// writeServiceError транслирует ошибки сервиса в HTTP-коды.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, assistant.ErrDisabled):
		WriteJSONError(w, http.StatusServiceUnavailable, "ai_disabled", "AI assistant is disabled")
	case errors.Is(err, assistant.ErrEmptyCode),
		errors.Is(err, assistant.ErrEmptyQuestion),
		errors.Is(err, assistant.ErrEmptySession),
		errors.Is(err, assistant.ErrEmptyRequirement):
		WriteJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("llm request failed", slog.String("error", err.Error()))
		}
		WriteJSONError(w, http.StatusBadGateway, "llm_error", err.Error())
	}
}
