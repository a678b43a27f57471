package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pathwise/chatbot-service/internal/domain"
)

// appendAttempts bounds the optimistic retry loop for per-chat writes. The
// WATCH-based transactions only collide when two writers hit the same chat at
// once, so a couple of retries is plenty.
const appendAttempts = 3

// Store implements domain.ChatStore on Redis. Each chat lives as one JSON
// document; an `active:` pointer key per user backs the create-if-absent
// guarantee via SETNX, and per-chat writes go through WATCH transactions so
// concurrent appends and context updates are never lost to a blind overwrite.
type Store struct {
	client *redis.Client
}

// NewStore connects to Redis using a redis:// URL.
func NewStore(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w: %v", domain.ErrUnavailable, err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func chatKey(id domain.ChatID) string {
	return fmt.Sprintf("chat:%s", id)
}

func activeKey(userID domain.UserID) string {
	return fmt.Sprintf("chat:user:%s:active", userID)
}

func indexKey(userID domain.UserID) string {
	return fmt.Sprintf("chat:user:%s:all", userID)
}

// ─────────────────────────────────────────
// Stored document (field names follow the chat JSON document layout)
// ─────────────────────────────────────────

type turnMetadataDoc struct {
	Confidence  float64  `json:"confidence,omitempty"`
	Intent      string   `json:"intent,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

type turnDoc struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *turnMetadataDoc `json:"metadata,omitempty"`
}

type contextDoc struct {
	CurrentIntent       string   `json:"currentIntent"`
	ConversationHistory []string `json:"conversationHistory"`
	PreferredTopics     []string `json:"preferredTopics"`
	SkillLevel          string   `json:"skillLevel"`
	CareerGoals         []string `json:"careerGoals"`
	Version             int64    `json:"version"`
}

type chatDoc struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	Messages      []turnDoc  `json:"messages"`
	IsActive      bool       `json:"isActive"`
	LastMessageAt time.Time  `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Context       contextDoc `json:"context"`
}

func toDoc(chat *domain.Chat) chatDoc {
	turns := make([]turnDoc, 0, len(chat.Messages))
	for _, t := range chat.Messages {
		td := turnDoc{
			ID:        string(t.ID),
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp,
		}
		if t.Metadata != nil {
			td.Metadata = &turnMetadataDoc{
				Confidence:  t.Metadata.Confidence,
				Intent:      t.Metadata.Intent,
				Suggestions: t.Metadata.Suggestions,
			}
		}
		turns = append(turns, td)
	}

	return chatDoc{
		ID:            string(chat.ID),
		UserID:        string(chat.UserID),
		Title:         chat.Title,
		Messages:      turns,
		IsActive:      chat.IsActive,
		LastMessageAt: chat.LastMessageAt,
		CreatedAt:     chat.CreatedAt,
		UpdatedAt:     chat.UpdatedAt,
		Context: contextDoc{
			CurrentIntent:       chat.Context.CurrentIntent,
			ConversationHistory: chat.Context.ConversationHistory,
			PreferredTopics:     chat.Context.UserPreferences.PreferredTopics,
			SkillLevel:          string(chat.Context.UserPreferences.SkillLevel),
			CareerGoals:         chat.Context.UserPreferences.CareerGoals,
			Version:             chat.Context.Version,
		},
	}
}

func fromDoc(d chatDoc) *domain.Chat {
	turns := make([]domain.Turn, 0, len(d.Messages))
	for _, t := range d.Messages {
		turn := domain.Turn{
			ID:        domain.TurnID(t.ID),
			Role:      domain.Role(t.Role),
			Content:   t.Content,
			Timestamp: t.Timestamp,
		}
		if t.Metadata != nil {
			turn.Metadata = &domain.TurnMetadata{
				Confidence:  t.Metadata.Confidence,
				Intent:      t.Metadata.Intent,
				Suggestions: t.Metadata.Suggestions,
			}
		}
		turns = append(turns, turn)
	}

	return &domain.Chat{
		ID:            domain.ChatID(d.ID),
		UserID:        domain.UserID(d.UserID),
		Title:         d.Title,
		Messages:      turns,
		IsActive:      d.IsActive,
		LastMessageAt: d.LastMessageAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Context: domain.ChatContext{
			CurrentIntent:       d.Context.CurrentIntent,
			ConversationHistory: d.Context.ConversationHistory,
			UserPreferences: domain.UserPreferences{
				PreferredTopics: d.Context.PreferredTopics,
				SkillLevel:      domain.SkillLevel(d.Context.SkillLevel),
				CareerGoals:     d.Context.CareerGoals,
			},
			Version: d.Context.Version,
		},
	}
}

// ─────────────────────────────────────────
// ChatStore implementation
// ─────────────────────────────────────────

// CreateActiveChat writes the chat document first and only then claims the
// user's active pointer with SETNX. The pointer is the single source of truth
// for "at most one active chat per user", and it must never reference a chat
// that is not readable yet: a concurrent FindActiveChat that resolves the
// pointer has to find the winner's document behind it. A loser of the SETNX
// race removes its unpublished document and gets ErrConflict.
func (s *Store) CreateActiveChat(ctx context.Context, chat *domain.Chat) error {
	if err := s.saveChat(ctx, chat); err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, activeKey(chat.UserID), string(chat.ID), 0).Result()
	if err != nil {
		s.client.Del(ctx, chatKey(chat.ID))
		return fmt.Errorf("redis CreateActiveChat: %w: %v", domain.ErrUnavailable, err)
	}
	if !ok {
		// The document was never pointed to or indexed, so it is invisible
		// to readers and safe to discard.
		s.client.Del(ctx, chatKey(chat.ID))
		return domain.ErrConflict
	}

	if err := s.client.SAdd(ctx, indexKey(chat.UserID), string(chat.ID)).Err(); err != nil {
		return fmt.Errorf("redis CreateActiveChat index: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	return s.loadChat(ctx, id)
}

func (s *Store) FindActiveChat(ctx context.Context, userID domain.UserID) (*domain.Chat, error) {
	id, err := s.client.Get(ctx, activeKey(userID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis FindActiveChat: %w: %v", domain.ErrUnavailable, err)
	}
	return s.loadChat(ctx, domain.ChatID(id))
}

// AppendTurn appends under a WATCH transaction so two concurrent appends to
// the same chat both land; the loser re-reads and retries.
func (s *Store) AppendTurn(ctx context.Context, id domain.ChatID, turn domain.Turn) (*domain.Chat, error) {
	var updated *domain.Chat

	for attempt := 0; attempt < appendAttempts; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			chat, err := s.loadChatTx(ctx, tx, id)
			if err != nil {
				return err
			}

			chat.Messages = append(chat.Messages, turn)
			chat.LastMessageAt = turn.Timestamp
			chat.UpdatedAt = turn.Timestamp

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return s.writeChat(ctx, pipe, chat)
			})
			if err != nil {
				return err
			}

			updated = chat
			return nil
		}, chatKey(id))

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, domain.ErrConflict
}

// UpdateContext swaps the context sub-record when the stored version still
// matches baseVersion. Version drift or a WATCH collision both surface as
// ErrConflict; the caller owns the retry.
func (s *Store) UpdateContext(ctx context.Context, id domain.ChatID, baseVersion int64, next domain.ChatContext) (*domain.Chat, error) {
	var updated *domain.Chat

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		chat, err := s.loadChatTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if chat.Context.Version != baseVersion {
			return domain.ErrConflict
		}

		chat.Context = next
		chat.UpdatedAt = time.Now()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.writeChat(ctx, pipe, chat)
		})
		if err != nil {
			return err
		}

		updated = chat
		return nil
	}, chatKey(id))

	if err == redis.TxFailedErr {
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeactivateChat(ctx context.Context, id domain.ChatID) error {
	chat, err := s.loadChat(ctx, id)
	if err != nil {
		return err
	}

	chat.IsActive = false
	chat.UpdatedAt = time.Now()
	if err := s.saveChat(ctx, chat); err != nil {
		return err
	}

	// Release the active pointer only if it still points at this chat.
	current, err := s.client.Get(ctx, activeKey(chat.UserID)).Result()
	if err == nil && current == string(id) {
		s.client.Del(ctx, activeKey(chat.UserID))
	}
	return nil
}

func (s *Store) SetTitle(ctx context.Context, id domain.ChatID, title string) error {
	chat, err := s.loadChat(ctx, id)
	if err != nil {
		return err
	}
	chat.Title = title
	chat.UpdatedAt = time.Now()
	return s.saveChat(ctx, chat)
}

func (s *Store) DeleteChat(ctx context.Context, id domain.ChatID, userID domain.UserID) error {
	chat, err := s.loadChat(ctx, id)
	if err != nil {
		return err
	}
	if chat.UserID != userID {
		return domain.ErrNotFound
	}

	if err := s.client.Del(ctx, chatKey(id)).Err(); err != nil {
		return fmt.Errorf("redis DeleteChat: %w: %v", domain.ErrUnavailable, err)
	}
	s.client.SRem(ctx, indexKey(userID), string(id))

	current, err := s.client.Get(ctx, activeKey(userID)).Result()
	if err == nil && current == string(id) {
		s.client.Del(ctx, activeKey(userID))
	}
	return nil
}

func (s *Store) ListChatsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.ChatSummary, error) {
	ids, err := s.client.SMembers(ctx, indexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ListChatsByUser: %w: %v", domain.ErrUnavailable, err)
	}

	var out []*domain.ChatSummary
	for _, id := range ids {
		chat, err := s.loadChat(ctx, domain.ChatID(id))
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.ChatSummary{
			ID:            chat.ID,
			Title:         chat.Title,
			LastMessageAt: chat.LastMessageAt,
			CreatedAt:     chat.CreatedAt,
			TurnCount:     len(chat.Messages),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) loadChat(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	data, err := s.client.Get(ctx, chatKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis loadChat: %w: %v", domain.ErrUnavailable, err)
	}
	return decodeChat([]byte(data))
}

func (s *Store) loadChatTx(ctx context.Context, tx *redis.Tx, id domain.ChatID) (*domain.Chat, error) {
	data, err := tx.Get(ctx, chatKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis loadChat: %w: %v", domain.ErrUnavailable, err)
	}
	return decodeChat([]byte(data))
}

func decodeChat(data []byte) (*domain.Chat, error) {
	var doc chatDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse chat document: %w", err)
	}
	return fromDoc(doc), nil
}

func (s *Store) saveChat(ctx context.Context, chat *domain.Chat) error {
	data, err := json.Marshal(toDoc(chat))
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	if err := s.client.Set(ctx, chatKey(chat.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis saveChat: %w: %v", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) writeChat(ctx context.Context, pipe redis.Pipeliner, chat *domain.Chat) error {
	data, err := json.Marshal(toDoc(chat))
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}
	return pipe.Set(ctx, chatKey(chat.ID), data, 0).Err()
}
