package assistant

import (
	"context"
	"time"
)

// Message представляет одну реплику в истории чат-сессии.
type Message struct {
	Role      string    `json:"role"`      // "user", "assistant"
	Content   string    `json:"content"`   // текст сообщения
	Timestamp time.Time `json:"timestamp"` // время добавления
}

// HistoryStore интерфейс для хранения истории чат-сессий редактора.
type HistoryStore interface {
	// Get возвращает историю сообщений для сессии.
	// Второй параметр bool указывает, найдена ли сессия.
	Get(ctx context.Context, sessionID string) ([]Message, bool, error)

	// Append добавляет новые сообщения к существующей сессии.
	// Если сессии не существует, она будет создана.
	Append(ctx context.Context, sessionID string, messages ...Message) error

	// Delete удаляет сессию и всю её историю.
	Delete(ctx context.Context, sessionID string) error

	// ClearExpired удаляет сессии, у которых истёк TTL.
	// Возвращает количество удалённых сессий.
	ClearExpired(ctx context.Context, now time.Time) (int, error)
}
