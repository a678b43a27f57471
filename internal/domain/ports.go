package domain

import "context"

// ChatStore defines chat persistence. Implementations must provide the three
// atomic guarantees the core relies on:
//
//   - CreateActiveChat is create-if-absent keyed by (UserID, IsActive): it
//     fails with ErrConflict when the user already has an active chat.
//   - AppendTurn serializes per-chat appends so two concurrent appends both
//     survive; it never rewrites the whole log.
//   - UpdateContext is a compare-and-swap on the context sub-record: the write
//     is rejected with ErrConflict unless the stored version equals baseVersion.
type ChatStore interface {
	CreateActiveChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id ChatID) (*Chat, error)
	FindActiveChat(ctx context.Context, userID UserID) (*Chat, error)
	AppendTurn(ctx context.Context, id ChatID, turn Turn) (*Chat, error)
	UpdateContext(ctx context.Context, id ChatID, baseVersion int64, next ChatContext) (*Chat, error)
	DeactivateChat(ctx context.Context, id ChatID) error
	SetTitle(ctx context.Context, id ChatID, title string) error
	DeleteChat(ctx context.Context, id ChatID, userID UserID) error
	ListChatsByUser(ctx context.Context, userID UserID, limit int) ([]*ChatSummary, error)
}

// Analysis is what the reasoning component derives from one user message.
// Suggestions and Topics are transient guidance: the caller decides what (if
// anything) gets persisted, via turn metadata or preference merges.
type Analysis struct {
	Reply       string
	Intent      string
	Suggestions []string
	Confidence  float64
	Topics      []string
}

// IntentAnalyzer is the downstream reasoning component: it consumes the
// bounded context window and produces a reply plus derived signals.
type IntentAnalyzer interface {
	Analyze(ctx context.Context, message string, window []ContextMessage) (Analysis, error)
}
