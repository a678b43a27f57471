package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pathwise/chatbot-service/internal/domain"
)

// ChatStore is a mutex-guarded in-memory implementation of domain.ChatStore,
// used for local development and tests. The mutex makes every operation a
// single atomic unit, matching what the document backends guarantee.
type ChatStore struct {
	mu    sync.RWMutex
	chats map[domain.ChatID]*domain.Chat
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		chats: make(map[domain.ChatID]*domain.Chat),
	}
}

func (s *ChatStore) CreateActiveChat(ctx context.Context, chat *domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.chats {
		if existing.UserID == chat.UserID && existing.IsActive {
			return domain.ErrConflict
		}
	}

	s.chats[chat.ID] = cloneChat(chat)
	return nil
}

func (s *ChatStore) GetChat(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneChat(chat), nil
}

func (s *ChatStore) FindActiveChat(ctx context.Context, userID domain.UserID) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chat := range s.chats {
		if chat.UserID == userID && chat.IsActive {
			return cloneChat(chat), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *ChatStore) AppendTurn(ctx context.Context, id domain.ChatID, turn domain.Turn) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	chat.Messages = append(chat.Messages, turn)
	// last_message_at only moves forward, even if turns land out of order.
	if turn.Timestamp.After(chat.LastMessageAt) {
		chat.LastMessageAt = turn.Timestamp
	}
	chat.UpdatedAt = turn.Timestamp
	return cloneChat(chat), nil
}

func (s *ChatStore) UpdateContext(ctx context.Context, id domain.ChatID, baseVersion int64, next domain.ChatContext) (*domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if chat.Context.Version != baseVersion {
		return nil, domain.ErrConflict
	}

	chat.Context = cloneContext(next)
	chat.UpdatedAt = time.Now()
	return cloneChat(chat), nil
}

func (s *ChatStore) DeactivateChat(ctx context.Context, id domain.ChatID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return domain.ErrNotFound
	}
	chat.IsActive = false
	chat.UpdatedAt = time.Now()
	return nil
}

func (s *ChatStore) SetTitle(ctx context.Context, id domain.ChatID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return domain.ErrNotFound
	}
	chat.Title = title
	chat.UpdatedAt = time.Now()
	return nil
}

func (s *ChatStore) DeleteChat(ctx context.Context, id domain.ChatID, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok || chat.UserID != userID {
		return domain.ErrNotFound
	}
	delete(s.chats, id)
	return nil
}

func (s *ChatStore) ListChatsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ChatSummary
	for _, chat := range s.chats {
		if chat.UserID != userID {
			continue
		}
		result = append(result, &domain.ChatSummary{
			ID:            chat.ID,
			Title:         chat.Title,
			LastMessageAt: chat.LastMessageAt,
			CreatedAt:     chat.CreatedAt,
			TurnCount:     len(chat.Messages),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// cloneChat copies a chat deeply enough that callers cannot mutate stored
// state behind the store's back.
func cloneChat(chat *domain.Chat) *domain.Chat {
	out := *chat
	out.Messages = make([]domain.Turn, len(chat.Messages))
	copy(out.Messages, chat.Messages)
	out.Context = cloneContext(chat.Context)
	return &out
}

func cloneContext(c domain.ChatContext) domain.ChatContext {
	out := c
	out.ConversationHistory = append([]string(nil), c.ConversationHistory...)
	out.UserPreferences.PreferredTopics = append([]string(nil), c.UserPreferences.PreferredTopics...)
	out.UserPreferences.CareerGoals = append([]string(nil), c.UserPreferences.CareerGoals...)
	return out
}
