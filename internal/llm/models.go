package llm

// AvailableModels содержит список рекомендованных моделей для работы с кодом.
// Идентификаторы указаны в формате OpenRouter.
var AvailableModels = []ModelInfo{
	{
		ID:          "mistralai/devstral-2512:free",
		Name:        "Devstral",
		Description: "Бесплатная модель Mistral, заточенная под код (по умолчанию)",
	},
	{
		ID:          "anthropic/claude-3.5-sonnet",
		Name:        "Claude 3.5 Sonnet",
		Description: "Сильная модель Anthropic для сложных задач рефакторинга",
	},
	{
		ID:          "openai/gpt-4o",
		Name:        "GPT-4o",
		Description: "Флагманская модель OpenAI",
	},
	{
		ID:          "qwen/qwen-2.5-coder-32b-instruct",
		Name:        "Qwen 2.5 Coder",
		Description: "Открытая модель, специализированная на генерации кода",
	},
	{
		ID:          "deepseek/deepseek-chat",
		Name:        "DeepSeek Chat",
		Description: "Экономичная модель с хорошим качеством",
	},
}

// ModelInfo описывает информацию о модели.
type ModelInfo struct {
	ID          string `json:"id"`          // идентификатор модели для API
	Name        string `json:"name"`        // короткое название для отображения
	Description string `json:"description"` // описание модели
}

// GetModelByID возвращает информацию о модели по её ID.
// Если модель не найдена, возвращает nil.
func GetModelByID(modelID string) *ModelInfo {
	for _, m := range AvailableModels {
		if m.ID == modelID {
			return &m
		}
	}
	return nil
}

// GetModelName возвращает короткое название модели по её ID.
// Если модель не найдена, возвращает сам ID.
func GetModelName(modelID string) string {
	if info := GetModelByID(modelID); info != nil {
		return info.Name
	}
	return modelID
}
